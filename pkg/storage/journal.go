// Package storage persists the engine's observable records to Pebble so a
// restarted service can rebuild remaining amounts and replay its event
// history.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/optionmesh/optionmesh/pkg/engine"
)

// keys: o:<32-byte-hash> creation record, r:<32-byte-hash> remaining
// amount, e:<8-byte-seq> event envelope, seq counter.
func kOrder(h common.Hash) []byte     { return append([]byte("o:"), h[:]...) }
func kRemaining(h common.Hash) []byte { return append([]byte("r:"), h[:]...) }
func kEvent(seq uint64) []byte {
	k := make([]byte, 2+8)
	copy(k, "e:")
	binary.BigEndian.PutUint64(k[2:], seq)
	return k
}

var kSeq = []byte("seq")

// Journal is a pebble-backed order journal. It implements engine.EventSink:
// wire it into the engine and every creation, fill and cancel lands on disk
// synchronously.
type Journal struct {
	mu  sync.Mutex
	db  *pebble.DB
	seq uint64
	log *zap.SugaredLogger
}

func Open(path string, log *zap.SugaredLogger) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal at %s: %w", path, err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	j := &Journal{db: db, log: log}

	if val, closer, err := db.Get(kSeq); err == nil {
		j.seq = binary.BigEndian.Uint64(val)
		closer.Close()
	} else if err != pebble.ErrNotFound {
		db.Close()
		return nil, fmt.Errorf("read journal seq: %w", err)
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Envelope tags a persisted event with its kind.
type Envelope struct {
	Kind      string                 `json:"kind"` // "created", "filled", "cancelled"
	Created   *engine.OrderCreated   `json:"created,omitempty"`
	Filled    *engine.OrderFilled    `json:"filled,omitempty"`
	Cancelled *engine.OrderCancelled `json:"cancelled,omitempty"`
}

func (j *Journal) OnOrderCreated(ev engine.OrderCreated) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		j.log.Errorw("journal_marshal_failed", "hash", ev.Hash.Hex(), "err", err)
		return
	}
	batch := j.db.NewBatch()
	defer batch.Close()
	_ = batch.Set(kOrder(ev.Hash), data, nil)
	_ = batch.Set(kRemaining(ev.Hash), ev.Amount.Bytes(), nil)
	j.appendEvent(batch, Envelope{Kind: "created", Created: &ev})
	if err := batch.Commit(pebble.Sync); err != nil {
		j.log.Errorw("journal_commit_failed", "hash", ev.Hash.Hex(), "err", err)
	}
}

func (j *Journal) OnOrderFilled(ev engine.OrderFilled) {
	j.mu.Lock()
	defer j.mu.Unlock()

	remaining := j.remainingLocked(ev.Hash)
	remaining.Sub(remaining, ev.Amount)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}

	batch := j.db.NewBatch()
	defer batch.Close()
	_ = batch.Set(kRemaining(ev.Hash), remaining.Bytes(), nil)
	j.appendEvent(batch, Envelope{Kind: "filled", Filled: &ev})
	if err := batch.Commit(pebble.Sync); err != nil {
		j.log.Errorw("journal_commit_failed", "hash", ev.Hash.Hex(), "err", err)
	}
}

func (j *Journal) OnOrderCancelled(ev engine.OrderCancelled) {
	j.mu.Lock()
	defer j.mu.Unlock()

	batch := j.db.NewBatch()
	defer batch.Close()
	_ = batch.Set(kRemaining(ev.Hash), []byte{}, nil)
	j.appendEvent(batch, Envelope{Kind: "cancelled", Cancelled: &ev})
	if err := batch.Commit(pebble.Sync); err != nil {
		j.log.Errorw("journal_commit_failed", "hash", ev.Hash.Hex(), "err", err)
	}
}

func (j *Journal) appendEvent(batch *pebble.Batch, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		j.log.Errorw("journal_marshal_failed", "kind", env.Kind, "err", err)
		return
	}
	_ = batch.Set(kEvent(j.seq), data, nil)
	j.seq++
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], j.seq)
	_ = batch.Set(kSeq, seqBuf[:], nil)
}

func (j *Journal) remainingLocked(hash common.Hash) *big.Int {
	val, closer, err := j.db.Get(kRemaining(hash))
	if err != nil {
		return new(big.Int)
	}
	out := new(big.Int).SetBytes(val)
	closer.Close()
	return out
}

// Remaining returns the persisted remaining amount for an order hash.
func (j *Journal) Remaining(hash common.Hash) (*big.Int, error) {
	val, closer, err := j.db.Get(kRemaining(hash))
	if err == pebble.ErrNotFound {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read remaining: %w", err)
	}
	defer closer.Close()
	return new(big.Int).SetBytes(val), nil
}

// Order returns the creation record for a hash, or nil if never journaled.
func (j *Journal) Order(hash common.Hash) (*engine.OrderCreated, error) {
	val, closer, err := j.db.Get(kOrder(hash))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read order: %w", err)
	}
	defer closer.Close()

	var ev engine.OrderCreated
	if err := json.Unmarshal(val, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &ev, nil
}

// ReplayRemaining rebuilds the hash -> remaining snapshot for seeding an
// OrderBook after restart. Fully-consumed entries are skipped: zero is
// indistinguishable from never-created anyway.
func (j *Journal) ReplayRemaining() (map[common.Hash]*big.Int, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("r:"),
		UpperBound: []byte("r;"), // ';' is ':'+1
	})
	if err != nil {
		return nil, fmt.Errorf("iterate remaining: %w", err)
	}
	defer iter.Close()

	out := make(map[common.Hash]*big.Int)
	for iter.First(); iter.Valid(); iter.Next() {
		var h common.Hash
		copy(h[:], iter.Key()[2:])
		v := new(big.Int).SetBytes(iter.Value())
		if v.Sign() > 0 {
			out[h] = v
		}
	}
	return out, iter.Error()
}

// Events replays the journal in append order.
func (j *Journal) Events() ([]Envelope, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("e:"),
		UpperBound: []byte("e;"),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	defer iter.Close()

	var out []Envelope
	for iter.First(); iter.Valid(); iter.Next() {
		var env Envelope
		if err := json.Unmarshal(iter.Value(), &env); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		out = append(out, env)
	}
	return out, iter.Error()
}
