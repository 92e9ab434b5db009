package api

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/optionmesh/optionmesh/pkg/engine"
)

// Wire representations: addresses as 0x-hex, big integers as decimal
// strings so precision survives JSON.

type OrderDTO struct {
	Maker          string `json:"maker"`
	Taker          string `json:"taker,omitempty"`
	Side           string `json:"side"` // "buy" or "sell"
	OptionContract string `json:"optionContract"`
	OptionID       string `json:"optionId"`
	PaymentToken   string `json:"paymentToken"`
	PricePerUnit   string `json:"pricePerUnit"`
	ExpirationTime uint64 `json:"expirationTime"`
	Salt           string `json:"salt"`
}

func (d *OrderDTO) ToOrder() (engine.Order, error) {
	var o engine.Order
	var err error

	if o.Maker, err = parseAddr("maker", d.Maker); err != nil {
		return o, err
	}
	if d.Taker != "" {
		if o.Taker, err = parseAddr("taker", d.Taker); err != nil {
			return o, err
		}
	}
	switch d.Side {
	case "buy":
		o.Side = engine.Buy
	case "sell":
		o.Side = engine.Sell
	default:
		return o, fmt.Errorf("side must be \"buy\" or \"sell\", got %q", d.Side)
	}
	if o.OptionContract, err = parseAddr("optionContract", d.OptionContract); err != nil {
		return o, err
	}
	if o.OptionID, err = parseBig("optionId", d.OptionID); err != nil {
		return o, err
	}
	if o.PaymentToken, err = parseAddr("paymentToken", d.PaymentToken); err != nil {
		return o, err
	}
	if o.PricePerUnit, err = parseBig("pricePerUnit", d.PricePerUnit); err != nil {
		return o, err
	}
	o.ExpirationTime = d.ExpirationTime
	if o.Salt, err = parseBig("salt", d.Salt); err != nil {
		return o, err
	}
	return o, nil
}

func FromOrder(o engine.Order) OrderDTO {
	d := OrderDTO{
		Maker:          o.Maker.Hex(),
		Side:           o.Side.String(),
		OptionContract: o.OptionContract.Hex(),
		OptionID:       bigString(o.OptionID),
		PaymentToken:   o.PaymentToken.Hex(),
		PricePerUnit:   bigString(o.PricePerUnit),
		ExpirationTime: o.ExpirationTime,
		Salt:           bigString(o.Salt),
	}
	if o.Restricted() {
		d.Taker = o.Taker.Hex()
	}
	return d
}

type CreateOrderRequest struct {
	Order  OrderDTO `json:"order"`
	Amount string   `json:"amount"`
}

type CreateOrdersRequest struct {
	Orders  []OrderDTO `json:"orders"`
	Amounts []string   `json:"amounts"`
}

type CreateOrderResponse struct {
	Hash   string `json:"hash"`
	Amount string `json:"amount"`
}

type FillOrderRequest struct {
	Taker     string   `json:"taker"`
	Order     OrderDTO `json:"order"`
	MaxAmount string   `json:"maxAmount"`
}

type FillOrdersRequest struct {
	Taker      string     `json:"taker"`
	Orders     []OrderDTO `json:"orders"`
	MaxAmounts []string   `json:"maxAmounts"`
}

type FillOrderResponse struct {
	Hash   string `json:"hash"`
	Filled string `json:"filled"`
}

type FillResultDTO struct {
	Hash   string `json:"hash"`
	Filled string `json:"filled,omitempty"`
	Error  string `json:"error,omitempty"`
}

type CancelOrderRequest struct {
	Caller string   `json:"caller"`
	Order  OrderDTO `json:"order"`
}

type CancelOrdersRequest struct {
	Caller string     `json:"caller"`
	Orders []OrderDTO `json:"orders"`
}

type ValidateOrdersRequest struct {
	Orders []OrderDTO `json:"orders"`
}

type OrderStatus struct {
	Hash      string    `json:"hash"`
	Remaining string    `json:"remaining"`
	Valid     bool      `json:"valid"`
	Order     *OrderDTO `json:"order,omitempty"`
}

type WhitelistUpdateRequest struct {
	Caller string   `json:"caller"`
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

type WhitelistsResponse struct {
	OptionContracts []string `json:"optionContracts"`
	PaymentTokens   []string `json:"paymentTokens"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func parseAddr(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseBig(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", field, s)
	}
	return v, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
