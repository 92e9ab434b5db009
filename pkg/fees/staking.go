package fees

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// StakeBook is an in-memory staking registry implementing StakeSource.
// Stands in for the staking contract a deployment would read tiers from.
type StakeBook struct {
	mu     sync.RWMutex
	staked map[common.Address]*big.Int
}

func NewStakeBook() *StakeBook {
	return &StakeBook{staked: make(map[common.Address]*big.Int)}
}

func (s *StakeBook) Stake(account common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.staked[account]; cur != nil {
		cur.Add(cur, amount)
	} else {
		s.staked[account] = new(big.Int).Set(amount)
	}
}

// Unstake removes up to amount from the account's stake.
func (s *StakeBook) Unstake(account common.Address, amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.staked[account]
	if cur == nil {
		return new(big.Int)
	}
	out := new(big.Int).Set(amount)
	if cur.Cmp(out) < 0 {
		out.Set(cur)
	}
	cur.Sub(cur, out)
	return out
}

func (s *StakeBook) StakedOf(account common.Address) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cur := s.staked[account]; cur != nil {
		return new(big.Int).Set(cur)
	}
	return new(big.Int)
}
