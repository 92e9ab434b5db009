package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/optionmesh/optionmesh/pkg/engine"
	"github.com/optionmesh/optionmesh/pkg/fees"
	"github.com/optionmesh/optionmesh/pkg/ledger"
	"github.com/optionmesh/optionmesh/pkg/util"
)

const (
	adminHex    = "0xAD00000000000000000000000000000000000000"
	makerHex    = "0xAA00000000000000000000000000000000000000"
	takerHex    = "0xBB00000000000000000000000000000000000000"
	contractHex = "0x0C00000000000000000000000000000000000000"
	wethHex     = "0xE000000000000000000000000000000000000000"
)

type apiFixture struct {
	srv     *Server
	eng     *engine.Engine
	tokens  *ledger.TokenBook
	options *ledger.OptionBook
	salt    int64
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		tokens:  ledger.NewTokenBook(),
		options: ledger.NewOptionBook(),
	}
	f.eng = engine.New(engine.Config{
		Self:     common.HexToAddress("0x5E1F000000000000000000000000000000000000"),
		Admin:    common.HexToAddress(adminHex),
		Treasury: common.HexToAddress("0x7E00000000000000000000000000000000000000"),
		Clock:    util.NewFakeClock(time.Unix(1_000_000, 0)),
		Fees:     fees.New(fees.DefaultFeeBps),
		Tokens:   f.tokens,
		Options:  f.options,
	})
	if err := f.eng.AddWhitelistedOptionContracts(common.HexToAddress(adminHex), []common.Address{common.HexToAddress(contractHex)}); err != nil {
		t.Fatalf("whitelist contract: %v", err)
	}
	if err := f.eng.AddWhitelistedPaymentTokens(common.HexToAddress(adminHex), []common.Address{common.HexToAddress(wethHex)}); err != nil {
		t.Fatalf("whitelist token: %v", err)
	}
	f.srv = NewServer(f.eng, nil, nil)
	return f
}

func (f *apiFixture) orderDTO() OrderDTO {
	f.salt++
	return OrderDTO{
		Maker:          makerHex,
		Side:           "sell",
		OptionContract: contractHex,
		OptionID:       "1",
		PaymentToken:   wethHex,
		PricePerUnit:   "1000000000000000000",
		ExpirationTime: 10_000_000,
		Salt:           fmt.Sprintf("%d", f.salt),
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	dto := f.orderDTO()

	rec := f.do(t, http.MethodPost, "/api/v1/orders", CreateOrderRequest{Order: dto, Amount: "5"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[CreateOrderResponse](t, rec)
	if resp.Amount != "5" {
		t.Errorf("amount = %s, want 5", resp.Amount)
	}

	order, err := dto.ToOrder()
	if err != nil {
		t.Fatalf("to order: %v", err)
	}
	if resp.Hash != order.Hash().Hex() {
		t.Errorf("hash = %s, want %s", resp.Hash, order.Hash().Hex())
	}
	if got := f.eng.Book().AmountOf(order.Hash()); got.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("remaining = %s, want 5", got)
	}
}

func TestCreateOrderEndpointRejectsDuplicate(t *testing.T) {
	f := newAPIFixture(t)
	dto := f.orderDTO()
	req := CreateOrderRequest{Order: dto, Amount: "1"}

	if rec := f.do(t, http.MethodPost, "/api/v1/orders", req); rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/v1/orders", req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateOrderEndpointBadRequests(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		mutate func(*CreateOrderRequest)
	}{
		{"bad maker", func(r *CreateOrderRequest) { r.Order.Maker = "nope" }},
		{"bad side", func(r *CreateOrderRequest) { r.Order.Side = "short" }},
		{"negative amount", func(r *CreateOrderRequest) { r.Amount = "-3" }},
		{"non-numeric amount", func(r *CreateOrderRequest) { r.Amount = "five" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateOrderRequest{Order: f.orderDTO(), Amount: "1"}
			tt.mutate(&req)
			rec := f.do(t, http.MethodPost, "/api/v1/orders", req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateOrdersEndpointAtomic(t *testing.T) {
	f := newAPIFixture(t)
	good := f.orderDTO()
	bad := f.orderDTO()
	bad.PaymentToken = "0xDEAD000000000000000000000000000000000000"

	rec := f.do(t, http.MethodPost, "/api/v1/orders/batch", CreateOrdersRequest{
		Orders:  []OrderDTO{good, bad},
		Amounts: []string{"1", "1"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}

	order, _ := good.ToOrder()
	if got := f.eng.Book().AmountOf(order.Hash()); got.Sign() != 0 {
		t.Errorf("remaining = %s, want 0 after rejected batch", got)
	}
}

func TestFillOrderEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	dto := f.orderDTO()

	maker := common.HexToAddress(makerHex)
	taker := common.HexToAddress(takerHex)
	if err := f.options.Mint(common.HexToAddress(contractHex), big.NewInt(1), maker, big.NewInt(2)); err != nil {
		t.Fatalf("mint options: %v", err)
	}
	f.options.SetApprovalForAll(common.HexToAddress(contractHex), maker, f.eng.Self(), true)
	if err := f.tokens.Mint(common.HexToAddress(wethHex), taker, new(big.Int).Mul(big.NewInt(2030), big.NewInt(1e15))); err != nil {
		t.Fatalf("mint tokens: %v", err)
	}
	f.tokens.IncreaseAllowance(common.HexToAddress(wethHex), taker, f.eng.Self(), new(big.Int).Mul(big.NewInt(1e9), big.NewInt(1e18)))

	if rec := f.do(t, http.MethodPost, "/api/v1/orders", CreateOrderRequest{Order: dto, Amount: "2"}); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/orders/fill", FillOrderRequest{
		Taker:     takerHex,
		Order:     dto,
		MaxAmount: "2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("fill status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[FillOrderResponse](t, rec)
	if resp.Filled != "2" {
		t.Errorf("filled = %s, want 2", resp.Filled)
	}
}

func TestFillOrderEndpointNotFound(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/orders/fill", FillOrderRequest{
		Taker:     takerHex,
		Order:     f.orderDTO(),
		MaxAmount: "1",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelOrderEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	dto := f.orderDTO()
	if rec := f.do(t, http.MethodPost, "/api/v1/orders", CreateOrderRequest{Order: dto, Amount: "1"}); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	// Only the maker may cancel.
	rec := f.do(t, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{Caller: takerHex, Order: dto})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign cancel status = %d, want 403", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{Caller: makerHex, Order: dto})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", rec.Code, rec.Body.String())
	}

	order, _ := dto.ToOrder()
	if got := f.eng.Book().AmountOf(order.Hash()); got.Sign() != 0 {
		t.Errorf("remaining = %s, want 0", got)
	}
}

func TestValidateOrdersEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	dto := f.orderDTO()
	if rec := f.do(t, http.MethodPost, "/api/v1/orders", CreateOrderRequest{Order: dto, Amount: "1"}); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	// Created but the maker holds no options: invalid. The second order was
	// never created: also invalid.
	rec := f.do(t, http.MethodPost, "/api/v1/orders/validate", ValidateOrdersRequest{
		Orders: []OrderDTO{dto, f.orderDTO()},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	valid := decodeBody[[]bool](t, rec)
	if len(valid) != 2 || valid[0] || valid[1] {
		t.Errorf("valid = %v, want [false false]", valid)
	}

	maker := common.HexToAddress(makerHex)
	if err := f.options.Mint(common.HexToAddress(contractHex), big.NewInt(1), maker, big.NewInt(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.options.SetApprovalForAll(common.HexToAddress(contractHex), maker, f.eng.Self(), true)

	rec = f.do(t, http.MethodPost, "/api/v1/orders/validate", ValidateOrdersRequest{Orders: []OrderDTO{dto}})
	valid = decodeBody[[]bool](t, rec)
	if len(valid) != 1 || !valid[0] {
		t.Errorf("valid = %v, want [true]", valid)
	}
}

func TestGetOrderEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	dto := f.orderDTO()
	if rec := f.do(t, http.MethodPost, "/api/v1/orders", CreateOrderRequest{Order: dto, Amount: "4"}); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	order, _ := dto.ToOrder()

	rec := f.do(t, http.MethodGet, "/api/v1/orders/"+order.Hash().Hex(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	status := decodeBody[OrderStatus](t, rec)
	if status.Remaining != "4" {
		t.Errorf("remaining = %s, want 4", status.Remaining)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/orders/not-a-hash", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad hash status = %d, want 400", rec.Code)
	}
}

func TestWhitelistEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	extra := "0x0D00000000000000000000000000000000000000"

	// Non-admin is rejected.
	rec := f.do(t, http.MethodPost, "/api/v1/admin/option-contracts", WhitelistUpdateRequest{
		Caller: makerHex,
		Add:    []string{extra},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/admin/option-contracts", WhitelistUpdateRequest{
		Caller: adminHex,
		Add:    []string{extra},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin add status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/whitelists", nil)
	resp := decodeBody[WhitelistsResponse](t, rec)
	if len(resp.OptionContracts) != 2 {
		t.Errorf("option contracts = %v, want 2 entries", resp.OptionContracts)
	}
	if len(resp.PaymentTokens) != 1 {
		t.Errorf("payment tokens = %v, want 1 entry", resp.PaymentTokens)
	}
}

func TestOrderDTORoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	dto := f.orderDTO()

	order, err := dto.ToOrder()
	if err != nil {
		t.Fatalf("to order: %v", err)
	}
	back := FromOrder(order)
	if back.Maker != common.HexToAddress(makerHex).Hex() || back.Side != "sell" {
		t.Errorf("round trip lost fields: %+v", back)
	}
	if back.Taker != "" {
		t.Errorf("unrestricted order must omit taker, got %q", back.Taker)
	}

	again, err := back.ToOrder()
	if err != nil {
		t.Fatalf("back to order: %v", err)
	}
	if again.Hash() != order.Hash() {
		t.Errorf("hash changed across round trip")
	}
}
