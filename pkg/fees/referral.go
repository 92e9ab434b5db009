package fees

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultReferralRebateBps is the share of the fee waived for a referred
// payer, and separately the share accrued to their referrer: 10% each.
const DefaultReferralRebateBps = 1_000

// ReferralBook links referred accounts to their referrer and accrues
// referrer rewards from fill fees. A referral is permanent: the first
// referrer wins, later registrations are ignored.
type ReferralBook struct {
	mu        sync.RWMutex
	rebateBps int64
	referrers map[common.Address]common.Address
	accrued   map[common.Address]*big.Int
}

func NewReferralBook() *ReferralBook {
	return &ReferralBook{
		rebateBps: DefaultReferralRebateBps,
		referrers: make(map[common.Address]common.Address),
		accrued:   make(map[common.Address]*big.Int),
	}
}

// Refer registers referrer for the referred account. Returns false if the
// account already has a referrer or refers itself.
func (b *ReferralBook) Refer(referred, referrer common.Address) bool {
	if referred == referrer || referrer == (common.Address{}) {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.referrers[referred]; ok {
		return false
	}
	b.referrers[referred] = referrer
	return true
}

func (b *ReferralBook) ReferrerOf(account common.Address) (common.Address, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ref, ok := b.referrers[account]
	return ref, ok
}

// Rebate returns the referral share of a fee, floored.
func (b *ReferralBook) Rebate(fee *big.Int) *big.Int {
	out := new(big.Int).Mul(fee, big.NewInt(b.rebateBps))
	return out.Div(out, big.NewInt(InverseBasisPoint))
}

// Accrue credits the payer's referrer with the referral share of the paid
// fee. No-op for unreferred payers.
func (b *ReferralBook) Accrue(payer common.Address, fee *big.Int) {
	if fee == nil || fee.Sign() <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	referrer, ok := b.referrers[payer]
	if !ok {
		return
	}
	reward := new(big.Int).Mul(fee, big.NewInt(b.rebateBps))
	reward.Div(reward, big.NewInt(InverseBasisPoint))
	if cur := b.accrued[referrer]; cur != nil {
		cur.Add(cur, reward)
	} else {
		b.accrued[referrer] = reward
	}
}

// AccruedOf returns the referrer's unclaimed reward balance.
func (b *ReferralBook) AccruedOf(referrer common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if cur := b.accrued[referrer]; cur != nil {
		return new(big.Int).Set(cur)
	}
	return new(big.Int)
}

// Claim zeroes and returns the referrer's accrued rewards.
func (b *ReferralBook) Claim(referrer common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.accrued[referrer]
	if cur == nil {
		return new(big.Int)
	}
	delete(b.accrued, referrer)
	return cur
}
