package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Order is a maker's buy or sell intent for a specific option instance.
// A buy order pays PaymentToken for options; a sell order pays options
// for PaymentToken. The zero Taker address means anyone may fill.
type Order struct {
	Maker          common.Address `json:"maker"`
	Taker          common.Address `json:"taker"`
	Side           Side           `json:"side"`
	OptionContract common.Address `json:"optionContract"`
	OptionID       *big.Int       `json:"optionId"`
	PaymentToken   common.Address `json:"paymentToken"`
	PricePerUnit   *big.Int       `json:"pricePerUnit"`   // payment token per option unit
	ExpirationTime uint64         `json:"expirationTime"` // unix seconds, 0 = never expires
	Salt           *big.Int       `json:"salt"`
}

// Hash returns the deterministic identity of the order: keccak256 over the
// fixed-width encoding of every field. Two orders with identical fields
// (salt included) always collide; any field change produces a new hash.
func (o *Order) Hash() common.Hash {
	buf := make([]byte, 0, 20*4+32*3+8+1)
	buf = append(buf, o.Maker.Bytes()...)
	buf = append(buf, o.Taker.Bytes()...)
	if o.Side == Buy {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, o.OptionContract.Bytes()...)
	buf = append(buf, pad32(o.OptionID)...)
	buf = append(buf, o.PaymentToken.Bytes()...)
	buf = append(buf, pad32(o.PricePerUnit)...)

	var exp [8]byte
	for i := 0; i < 8; i++ {
		exp[7-i] = byte(o.ExpirationTime >> (8 * i))
	}
	buf = append(buf, exp[:]...)
	buf = append(buf, pad32(o.Salt)...)

	return crypto.Keccak256Hash(buf)
}

// Restricted reports whether the order may only be filled by a specific taker.
func (o *Order) Restricted() bool {
	return o.Taker != (common.Address{})
}

// ExpiredAt reports whether the order is expired at the given unix time.
// ExpirationTime 0 never expires.
func (o *Order) ExpiredAt(now uint64) bool {
	return o.ExpirationTime != 0 && o.ExpirationTime < now
}

func pad32(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}
