package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/optionmesh/optionmesh/pkg/engine"
	"github.com/optionmesh/optionmesh/pkg/ledger"
	"github.com/optionmesh/optionmesh/pkg/storage"
)

// Server hosts the REST surface and the WebSocket event stream in front of
// a matching engine. The journal is optional; without it order lookups
// return remaining amounts only.
type Server struct {
	eng     *engine.Engine
	journal *storage.Journal
	router  *mux.Router
	hub     *Hub
	log     *zap.SugaredLogger
}

func NewServer(eng *engine.Engine, journal *storage.Journal, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		eng:     eng,
		journal: journal,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		log:     log,
	}
	s.setupRoutes()
	return s
}

// Hub returns the event hub so the engine can be wired with it as a sink.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/batch", s.handleCreateOrders).Methods("POST")
	api.HandleFunc("/orders/fill", s.handleFillOrder).Methods("POST")
	api.HandleFunc("/orders/fill-batch", s.handleFillOrders).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/cancel-batch", s.handleCancelOrders).Methods("POST")
	api.HandleFunc("/orders/validate", s.handleValidateOrders).Methods("POST")
	api.HandleFunc("/orders/{hash}", s.handleGetOrder).Methods("GET")

	api.HandleFunc("/whitelists", s.handleGetWhitelists).Methods("GET")
	api.HandleFunc("/admin/option-contracts", s.handleOptionWhitelist).Methods("POST")
	api.HandleFunc("/admin/payment-tokens", s.handleTokenWhitelist).Methods("POST")

	s.router.HandleFunc("/ws", s.hub.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub and serves until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ==============================
// Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	order, err := req.Order.ToOrder()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	amount, err := parseBig("amount", req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	hash, err := s.eng.CreateOrder(order, amount)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, CreateOrderResponse{Hash: hash.Hex(), Amount: amount.String()})
}

func (s *Server) handleCreateOrders(w http.ResponseWriter, r *http.Request) {
	var req CreateOrdersRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Orders) != len(req.Amounts) {
		respondError(w, http.StatusBadRequest, "orders and amounts length mismatch", "")
		return
	}
	orders := make([]engine.Order, len(req.Orders))
	amounts := make([]*big.Int, len(req.Amounts))
	for i := range req.Orders {
		order, err := req.Orders[i].ToOrder()
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order", err.Error())
			return
		}
		amount, err := parseBig("amount", req.Amounts[i])
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
			return
		}
		orders[i], amounts[i] = order, amount
	}

	hashes, err := s.eng.CreateOrders(orders, amounts)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	out := make([]CreateOrderResponse, len(hashes))
	for i, h := range hashes {
		out[i] = CreateOrderResponse{Hash: h.Hex(), Amount: amounts[i].String()}
	}
	respondJSON(w, http.StatusCreated, out)
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	var req FillOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	taker, err := parseAddr("taker", req.Taker)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid taker", err.Error())
		return
	}
	order, err := req.Order.ToOrder()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	maxAmount, err := parseBig("maxAmount", req.MaxAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid maxAmount", err.Error())
		return
	}
	filled, err := s.eng.FillOrder(taker, order, maxAmount)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, FillOrderResponse{Hash: order.Hash().Hex(), Filled: filled.String()})
}

func (s *Server) handleFillOrders(w http.ResponseWriter, r *http.Request) {
	var req FillOrdersRequest
	if !s.decode(w, r, &req) {
		return
	}
	taker, err := parseAddr("taker", req.Taker)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid taker", err.Error())
		return
	}
	if len(req.Orders) != len(req.MaxAmounts) {
		respondError(w, http.StatusBadRequest, "orders and maxAmounts length mismatch", "")
		return
	}
	orders := make([]engine.Order, len(req.Orders))
	maxAmounts := make([]*big.Int, len(req.MaxAmounts))
	for i := range req.Orders {
		order, err := req.Orders[i].ToOrder()
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order", err.Error())
			return
		}
		maxAmount, err := parseBig("maxAmount", req.MaxAmounts[i])
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid maxAmount", err.Error())
			return
		}
		orders[i], maxAmounts[i] = order, maxAmount
	}

	results := s.eng.FillOrders(taker, orders, maxAmounts)
	out := make([]FillResultDTO, len(results))
	for i, res := range results {
		out[i] = FillResultDTO{Hash: res.Hash.Hex()}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		} else {
			out[i].Filled = res.Filled.String()
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}
	order, err := req.Order.ToOrder()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	if err := s.eng.CancelOrder(caller, order); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"hash": order.Hash().Hex()})
}

func (s *Server) handleCancelOrders(w http.ResponseWriter, r *http.Request) {
	var req CancelOrdersRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}
	orders := make([]engine.Order, len(req.Orders))
	for i := range req.Orders {
		order, err := req.Orders[i].ToOrder()
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order", err.Error())
			return
		}
		orders[i] = order
	}

	errs := s.eng.CancelOrders(caller, orders)
	out := make([]FillResultDTO, len(errs))
	for i := range errs {
		out[i] = FillResultDTO{Hash: orders[i].Hash().Hex()}
		if errs[i] != nil {
			out[i].Error = errs[i].Error()
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleValidateOrders(w http.ResponseWriter, r *http.Request) {
	var req ValidateOrdersRequest
	if !s.decode(w, r, &req) {
		return
	}
	orders := make([]engine.Order, len(req.Orders))
	for i := range req.Orders {
		order, err := req.Orders[i].ToOrder()
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order", err.Error())
			return
		}
		orders[i] = order
	}
	respondJSON(w, http.StatusOK, s.eng.AreOrdersValid(orders))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	hashStr := mux.Vars(r)["hash"]
	if len(hashStr) != 2+2*common.HashLength || hashStr[:2] != "0x" {
		respondError(w, http.StatusBadRequest, "invalid hash", "")
		return
	}
	hash := common.HexToHash(hashStr)

	status := OrderStatus{
		Hash:      hash.Hex(),
		Remaining: s.eng.Book().AmountOf(hash).String(),
	}
	if s.journal != nil {
		rec, err := s.journal.Order(hash)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "journal read failed", err.Error())
			return
		}
		if rec != nil {
			order := rec.Order()
			dto := FromOrder(order)
			status.Order = &dto
			status.Valid = s.eng.IsOrderValid(order)
		}
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetWhitelists(w http.ResponseWriter, r *http.Request) {
	contracts := s.eng.WhitelistedOptionContracts()
	tokens := s.eng.WhitelistedPaymentTokens()
	resp := WhitelistsResponse{
		OptionContracts: make([]string, len(contracts)),
		PaymentTokens:   make([]string, len(tokens)),
	}
	for i, c := range contracts {
		resp.OptionContracts[i] = c.Hex()
	}
	for i, t := range tokens {
		resp.PaymentTokens[i] = t.Hex()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOptionWhitelist(w http.ResponseWriter, r *http.Request) {
	s.handleWhitelistUpdate(w, r,
		s.eng.AddWhitelistedOptionContracts, s.eng.RemoveWhitelistedOptionContracts)
}

func (s *Server) handleTokenWhitelist(w http.ResponseWriter, r *http.Request) {
	s.handleWhitelistUpdate(w, r,
		s.eng.AddWhitelistedPaymentTokens, s.eng.RemoveWhitelistedPaymentTokens)
}

func (s *Server) handleWhitelistUpdate(
	w http.ResponseWriter, r *http.Request,
	add, remove func(common.Address, []common.Address) error,
) {
	var req WhitelistUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}
	toAdd, err := parseAddrs("add", req.Add)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}
	toRemove, err := parseAddrs("remove", req.Remove)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}
	if len(toAdd) > 0 {
		if err := add(caller, toAdd); err != nil {
			s.respondEngineError(w, err)
			return
		}
	}
	if len(toRemove) > 0 {
		if err := remove(caller, toRemove); err != nil {
			s.respondEngineError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error(), "")
}

// statusFor maps the engine's rejection taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotAdmin),
		errors.Is(err, engine.ErrNotOrderMaker),
		errors.Is(err, engine.ErrNotSpecifiedTaker):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientAllowance),
		errors.Is(err, ledger.ErrNotApproved):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func parseAddrs(field string, in []string) ([]common.Address, error) {
	out := make([]common.Address, len(in))
	for i, s := range in {
		addr, err := parseAddr(field, s)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg, detail string) {
	respondJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}
