// Package fees implements the market's fee policy: a flat basis-point
// schedule reduced by staking-tier discounts and referral rebates.
package fees

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// InverseBasisPoint is the denominator of every rate in this package.
const InverseBasisPoint = 10_000

// DefaultFeeBps is the undiscounted per-side fee: 1.5% of gross value.
const DefaultFeeBps = 150

// StakeSource reports how much a payer has staked, which drives the
// discount tier. Nil-safe at the Calculator level: no source, no discount.
type StakeSource interface {
	StakedOf(account common.Address) *big.Int
}

// Calculator computes per-payer fees. All math is integer and floored,
// matching the reference implementation's division by the inverse basis
// point. The zero value charges nothing; use New for the default schedule.
type Calculator struct {
	feeBps    int64
	discounts *DiscountSchedule
	stakes    StakeSource
	referrals *ReferralBook
}

func New(feeBps int64) *Calculator {
	return &Calculator{feeBps: feeBps}
}

// WithDiscounts attaches a staking discount schedule backed by the source.
func (c *Calculator) WithDiscounts(sched *DiscountSchedule, src StakeSource) *Calculator {
	c.discounts = sched
	c.stakes = src
	return c
}

// WithReferrals attaches a referral book; referred payers get the book's
// rebate off their fee.
func (c *Calculator) WithReferrals(book *ReferralBook) *Calculator {
	c.referrals = book
	return c
}

// FeeFor returns the fee withheld from payer on a gross traded value.
// Pure read: amount*bps/1e4, floored, minus any staking discount and
// referral rebate.
func (c *Calculator) FeeFor(payer common.Address, amount *big.Int, token common.Address) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}

	fee := new(big.Int).Mul(amount, big.NewInt(c.feeBps))
	fee.Div(fee, big.NewInt(InverseBasisPoint))

	if c.discounts != nil && c.stakes != nil {
		if bps := c.discounts.DiscountBps(c.stakes.StakedOf(payer)); bps > 0 {
			cut := new(big.Int).Mul(fee, big.NewInt(bps))
			cut.Div(cut, big.NewInt(InverseBasisPoint))
			fee.Sub(fee, cut)
		}
	}
	if c.referrals != nil {
		if _, ok := c.referrals.ReferrerOf(payer); ok {
			fee.Sub(fee, c.referrals.Rebate(fee))
		}
	}
	return fee
}
