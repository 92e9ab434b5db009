package fees

import "math/big"

// Tier grants a fee discount to payers whose staked balance reaches the
// threshold. Discounts are in inverse basis points of the base fee, not of
// the traded amount.
type Tier struct {
	Threshold *big.Int
	Bps       int64
}

// DiscountSchedule is an ascending list of staking tiers. A payer gets the
// highest tier whose threshold its stake reaches.
type DiscountSchedule struct {
	tiers []Tier
}

func NewDiscountSchedule(tiers []Tier) *DiscountSchedule {
	return &DiscountSchedule{tiers: tiers}
}

// DefaultDiscountSchedule mirrors the reference staking tiers: stake
// thresholds in whole tokens at 18 decimals, discounts from 25% up to 95%
// of the fee.
func DefaultDiscountSchedule() *DiscountSchedule {
	return NewDiscountSchedule([]Tier{
		{Threshold: tokens(5_000), Bps: 2_500},
		{Threshold: tokens(50_000), Bps: 5_000},
		{Threshold: tokens(250_000), Bps: 7_500},
		{Threshold: tokens(500_000), Bps: 9_500},
	})
}

// DiscountBps returns the discount for a staked balance, zero when no tier
// is reached or the balance is nil.
func (s *DiscountSchedule) DiscountBps(staked *big.Int) int64 {
	if staked == nil {
		return 0
	}
	var bps int64
	for _, t := range s.tiers {
		if staked.Cmp(t.Threshold) < 0 {
			break
		}
		bps = t.Bps
	}
	return bps
}

var weiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), weiPerToken)
}
