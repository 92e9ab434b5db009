package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OrderCreated mirrors every order field plus the computed hash and the
// reserved amount. Field order is fixed for downstream indexing.
type OrderCreated struct {
	Maker          common.Address `json:"maker"`
	Taker          common.Address `json:"taker"`
	Side           Side           `json:"side"`
	OptionContract common.Address `json:"optionContract"`
	OptionID       *big.Int       `json:"optionId"`
	PaymentToken   common.Address `json:"paymentToken"`
	PricePerUnit   *big.Int       `json:"pricePerUnit"`
	ExpirationTime uint64         `json:"expirationTime"`
	Salt           *big.Int       `json:"salt"`
	Hash           common.Hash    `json:"hash"`
	Amount         *big.Int       `json:"amount"`
}

// Order reconstructs the order the record was emitted for.
func (ev *OrderCreated) Order() Order {
	return Order{
		Maker:          ev.Maker,
		Taker:          ev.Taker,
		Side:           ev.Side,
		OptionContract: ev.OptionContract,
		OptionID:       ev.OptionID,
		PaymentToken:   ev.PaymentToken,
		PricePerUnit:   ev.PricePerUnit,
		ExpirationTime: ev.ExpirationTime,
		Salt:           ev.Salt,
	}
}

type OrderFilled struct {
	Hash         common.Hash    `json:"hash"`
	Maker        common.Address `json:"maker"`
	Taker        common.Address `json:"taker"`
	PaymentToken common.Address `json:"paymentToken"`
	Amount       *big.Int       `json:"amount"`
	PricePerUnit *big.Int       `json:"pricePerUnit"`
	MakerFee     *big.Int       `json:"makerFee"`
	TakerFee     *big.Int       `json:"takerFee"`
}

type OrderCancelled struct {
	Hash      common.Hash    `json:"hash"`
	Maker     common.Address `json:"maker"`
	Remaining *big.Int       `json:"remaining"` // amount cleared by the cancel
}

// EventSink observes engine state transitions. Implementations must not
// block: the engine calls them synchronously inside the operation.
type EventSink interface {
	OnOrderCreated(ev OrderCreated)
	OnOrderFilled(ev OrderFilled)
	OnOrderCancelled(ev OrderCancelled)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) OnOrderCreated(OrderCreated)     {}
func (NopSink) OnOrderFilled(OrderFilled)       {}
func (NopSink) OnOrderCancelled(OrderCancelled) {}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) OnOrderCreated(ev OrderCreated) {
	for _, s := range m {
		s.OnOrderCreated(ev)
	}
}

func (m MultiSink) OnOrderFilled(ev OrderFilled) {
	for _, s := range m {
		s.OnOrderFilled(ev)
	}
}

func (m MultiSink) OnOrderCancelled(ev OrderCancelled) {
	for _, s := range m {
		s.OnOrderCancelled(ev)
	}
}
