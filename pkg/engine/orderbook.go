package engine

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// OrderBook is the sole authority over the remaining fillable amount per
// order hash. An entry at zero is indistinguishable from one that never
// existed: both report zero and reject consume/clear the same way.
type OrderBook struct {
	mu        sync.RWMutex
	remaining map[common.Hash]*big.Int
}

func NewOrderBook() *OrderBook {
	return &OrderBook{remaining: make(map[common.Hash]*big.Int)}
}

// Reserve registers a fresh order with the given remaining amount.
// It fails if the hash already has a non-zero remaining amount.
func (b *OrderBook) Reserve(hash common.Hash, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur := b.remaining[hash]; cur != nil && cur.Sign() > 0 {
		return ErrDuplicateOrder
	}
	b.remaining[hash] = new(big.Int).Set(amount)
	return nil
}

// Consume decrements the entry by min(amount, remaining) and returns how
// much was actually taken. Requesting more than available fills only what
// is left; a zero entry fails with ErrOrderNotFound.
func (b *OrderBook) Consume(hash common.Hash, amount *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.remaining[hash]
	if cur == nil || cur.Sign() == 0 {
		return nil, ErrOrderNotFound
	}

	filled := new(big.Int).Set(amount)
	if cur.Cmp(filled) < 0 {
		filled.Set(cur)
	}
	cur.Sub(cur, filled)
	return filled, nil
}

// Clear zeroes the entry unconditionally.
func (b *OrderBook) Clear(hash common.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur := b.remaining[hash]; cur != nil {
		cur.SetInt64(0)
	}
}

// AmountOf returns the remaining amount for a hash, zero for unknown hashes.
func (b *OrderBook) AmountOf(hash common.Hash) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if cur := b.remaining[hash]; cur != nil {
		return new(big.Int).Set(cur)
	}
	return new(big.Int)
}

// Restore seeds the book from a snapshot, replacing any current state.
// Used to rebuild remaining amounts from the journal on startup.
func (b *OrderBook) Restore(snapshot map[common.Hash]*big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.remaining = make(map[common.Hash]*big.Int, len(snapshot))
	for h, v := range snapshot {
		b.remaining[h] = new(big.Int).Set(v)
	}
}
