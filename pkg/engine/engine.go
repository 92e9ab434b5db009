package engine

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/optionmesh/optionmesh/pkg/util"
)

// FeeCalculator computes the fee withheld from a payer on a gross traded
// value. Policy-determined: implementations may discount per payer (staking
// tier, referral) but must be pure reads.
type FeeCalculator interface {
	FeeFor(payer common.Address, amount *big.Int, token common.Address) *big.Int
}

// TokenLedger is the payment-token capability. Transfer moves funds on
// behalf of operator: when operator != from it must enforce from's
// allowance to operator.
type TokenLedger interface {
	BalanceOf(account, token common.Address) *big.Int
	Allowance(owner, spender, token common.Address) *big.Int
	Transfer(operator, from, to, token common.Address, amount *big.Int) error
}

// OptionLedger is the option-collection capability, collection-scoped:
// balances and approvals live per (contract, optionID) / (contract, owner).
type OptionLedger interface {
	BalanceOf(account, contract common.Address, optionID *big.Int) *big.Int
	IsApprovedForAll(owner, operator, contract common.Address) bool
	Transfer(operator, from, to, contract common.Address, optionID, amount *big.Int) error
}

const lockStripes = 64

// Engine orchestrates order creation, validation, fills and cancellation
// against its OrderBook, settling through the ledger capabilities and
// routing fees to the treasury. Each instance owns its registry state:
// independent engines share nothing.
type Engine struct {
	self     common.Address // identity approvals are granted to
	admin    common.Address
	treasury common.Address

	clock   util.Clock
	fees    FeeCalculator
	tokens  TokenLedger
	options OptionLedger

	book *OrderBook
	sink EventSink
	log  *zap.SugaredLogger

	wmu             sync.RWMutex
	optionContracts map[common.Address]struct{}
	paymentTokens   map[common.Address]struct{}

	// Striped per-hash locks: fills and cancels against the same order are
	// linearized so Consume never double-spends remaining amount.
	locks [lockStripes]sync.Mutex
}

// Config wires an Engine's identity and collaborators. Clock, Sink and
// Logger are optional.
type Config struct {
	Self     common.Address
	Admin    common.Address
	Treasury common.Address

	Clock   util.Clock
	Fees    FeeCalculator
	Tokens  TokenLedger
	Options OptionLedger

	Sink   EventSink
	Logger *zap.SugaredLogger
}

func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Engine{
		self:            cfg.Self,
		admin:           cfg.Admin,
		treasury:        cfg.Treasury,
		clock:           cfg.Clock,
		fees:            cfg.Fees,
		tokens:          cfg.Tokens,
		options:         cfg.Options,
		book:            NewOrderBook(),
		sink:            cfg.Sink,
		log:             cfg.Logger,
		optionContracts: make(map[common.Address]struct{}),
		paymentTokens:   make(map[common.Address]struct{}),
	}
}

// Self returns the identity makers must approve for transfers.
func (e *Engine) Self() common.Address { return e.self }

// SetSink replaces the event sink. Call before the engine starts taking
// traffic; sinks are invoked without synchronization around this field.
func (e *Engine) SetSink(sink EventSink) {
	if sink == nil {
		sink = NopSink{}
	}
	e.sink = sink
}

// Book exposes the order book for read-side callers (API, journal replay).
func (e *Engine) Book() *OrderBook { return e.book }

func (e *Engine) lockFor(hash common.Hash) *sync.Mutex {
	return &e.locks[int(hash[0])%lockStripes]
}

func (e *Engine) now() uint64 {
	return uint64(e.clock.Now().Unix())
}

// ==============================
// Whitelists
// ==============================

func (e *Engine) AddWhitelistedOptionContracts(caller common.Address, contracts []common.Address) error {
	if caller != e.admin {
		return ErrNotAdmin
	}
	e.wmu.Lock()
	defer e.wmu.Unlock()
	for _, c := range contracts {
		e.optionContracts[c] = struct{}{}
	}
	return nil
}

func (e *Engine) RemoveWhitelistedOptionContracts(caller common.Address, contracts []common.Address) error {
	if caller != e.admin {
		return ErrNotAdmin
	}
	e.wmu.Lock()
	defer e.wmu.Unlock()
	for _, c := range contracts {
		delete(e.optionContracts, c)
	}
	return nil
}

func (e *Engine) AddWhitelistedPaymentTokens(caller common.Address, tokens []common.Address) error {
	if caller != e.admin {
		return ErrNotAdmin
	}
	e.wmu.Lock()
	defer e.wmu.Unlock()
	for _, t := range tokens {
		e.paymentTokens[t] = struct{}{}
	}
	return nil
}

func (e *Engine) RemoveWhitelistedPaymentTokens(caller common.Address, tokens []common.Address) error {
	if caller != e.admin {
		return ErrNotAdmin
	}
	e.wmu.Lock()
	defer e.wmu.Unlock()
	for _, t := range tokens {
		delete(e.paymentTokens, t)
	}
	return nil
}

func (e *Engine) IsWhitelistedOptionContract(c common.Address) bool {
	e.wmu.RLock()
	defer e.wmu.RUnlock()
	_, ok := e.optionContracts[c]
	return ok
}

func (e *Engine) IsWhitelistedPaymentToken(t common.Address) bool {
	e.wmu.RLock()
	defer e.wmu.RUnlock()
	_, ok := e.paymentTokens[t]
	return ok
}

func (e *Engine) WhitelistedOptionContracts() []common.Address {
	e.wmu.RLock()
	defer e.wmu.RUnlock()
	out := make([]common.Address, 0, len(e.optionContracts))
	for c := range e.optionContracts {
		out = append(out, c)
	}
	return out
}

func (e *Engine) WhitelistedPaymentTokens() []common.Address {
	e.wmu.RLock()
	defer e.wmu.RUnlock()
	out := make([]common.Address, 0, len(e.paymentTokens))
	for t := range e.paymentTokens {
		out = append(out, t)
	}
	return out
}

// ==============================
// Creation
// ==============================

func (e *Engine) validateCreate(order *Order, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if order.ExpiredAt(e.now()) {
		return ErrOptionExpired
	}
	if !e.IsWhitelistedOptionContract(order.OptionContract) {
		return ErrContractNotWhitelisted
	}
	if !e.IsWhitelistedPaymentToken(order.PaymentToken) {
		return ErrTokenNotWhitelisted
	}
	return nil
}

// CreateOrder registers a new order with the given amount and returns its
// hash. Whitelist checks apply at creation only; delisting a contract later
// does not invalidate live orders.
func (e *Engine) CreateOrder(order Order, amount *big.Int) (common.Hash, error) {
	if err := e.validateCreate(&order, amount); err != nil {
		return common.Hash{}, err
	}

	hash := order.Hash()
	if err := e.book.Reserve(hash, amount); err != nil {
		return common.Hash{}, err
	}

	ev := createdEvent(&order, hash, amount)
	e.sink.OnOrderCreated(ev)
	e.log.Debugw("order_created", "hash", hash.Hex(), "maker", order.Maker.Hex(),
		"side", order.Side.String(), "amount", amount.String())
	return hash, nil
}

// CreateOrders registers a batch over parallel order/amount slices,
// all-or-nothing: any rejection aborts the whole batch with no entry
// reserved and no record emitted. Creation records land in input order.
func (e *Engine) CreateOrders(orders []Order, amounts []*big.Int) ([]common.Hash, error) {
	if len(orders) != len(amounts) {
		return nil, ErrInvalidAmount
	}

	hashes := make([]common.Hash, len(orders))
	seen := make(map[common.Hash]struct{}, len(orders))
	for i := range orders {
		if err := e.validateCreate(&orders[i], amounts[i]); err != nil {
			return nil, err
		}
		h := orders[i].Hash()
		if _, dup := seen[h]; dup {
			return nil, ErrDuplicateOrder
		}
		if e.book.AmountOf(h).Sign() > 0 {
			return nil, ErrDuplicateOrder
		}
		seen[h] = struct{}{}
		hashes[i] = h
	}

	for i := range orders {
		if err := e.book.Reserve(hashes[i], amounts[i]); err != nil {
			// Undo earlier reservations so the batch stays atomic.
			for j := 0; j < i; j++ {
				e.book.Clear(hashes[j])
			}
			return nil, err
		}
	}
	for i := range orders {
		e.sink.OnOrderCreated(createdEvent(&orders[i], hashes[i], amounts[i]))
	}
	return hashes, nil
}

func createdEvent(order *Order, hash common.Hash, amount *big.Int) OrderCreated {
	return OrderCreated{
		Maker:          order.Maker,
		Taker:          order.Taker,
		Side:           order.Side,
		OptionContract: order.OptionContract,
		OptionID:       order.OptionID,
		PaymentToken:   order.PaymentToken,
		PricePerUnit:   order.PricePerUnit,
		ExpirationTime: order.ExpirationTime,
		Salt:           order.Salt,
		Hash:           hash,
		Amount:         new(big.Int).Set(amount),
	}
}

// ==============================
// Validity
// ==============================

// IsOrderValid reports whether the order could currently be filled for its
// full remaining amount. Pure read: checks remaining amount, expiry, then
// the maker's balances and approvals for whichever leg the maker owes.
func (e *Engine) IsOrderValid(order Order) bool {
	hash := order.Hash()
	remaining := e.book.AmountOf(hash)
	if remaining.Sign() == 0 {
		return false
	}
	if order.ExpiredAt(e.now()) {
		return false
	}

	if order.Side == Sell {
		if e.options.BalanceOf(order.Maker, order.OptionContract, order.OptionID).Cmp(remaining) < 0 {
			return false
		}
		return e.options.IsApprovedForAll(order.Maker, e.self, order.OptionContract)
	}

	// Buy order: maker must cover gross price plus its fee, in both balance
	// and allowance.
	gross := new(big.Int).Mul(remaining, order.PricePerUnit)
	total := new(big.Int).Add(gross, e.fees.FeeFor(order.Maker, gross, order.PaymentToken))
	if e.tokens.BalanceOf(order.Maker, order.PaymentToken).Cmp(total) < 0 {
		return false
	}
	return e.tokens.Allowance(order.Maker, e.self, order.PaymentToken).Cmp(total) >= 0
}

// AreOrdersValid maps IsOrderValid over the slice, one result per input.
func (e *Engine) AreOrdersValid(orders []Order) []bool {
	out := make([]bool, len(orders))
	for i := range orders {
		out[i] = e.IsOrderValid(orders[i])
	}
	return out
}

// ==============================
// Fills
// ==============================

// FillOrder fills up to maxAmount units of the order on behalf of taker
// and returns the amount actually filled (min of requested and remaining).
// Settlement and the book decrement are atomic: if any transfer leg fails,
// prior legs are compensated and the remaining amount is untouched.
func (e *Engine) FillOrder(taker common.Address, order Order, maxAmount *big.Int) (*big.Int, error) {
	if maxAmount == nil || maxAmount.Sign() <= 0 {
		return nil, ErrInvalidMaxAmount
	}

	hash := order.Hash()
	mu := e.lockFor(hash)
	mu.Lock()
	defer mu.Unlock()

	remaining := e.book.AmountOf(hash)
	if remaining.Sign() == 0 {
		return nil, ErrOrderNotFound
	}
	if order.ExpiredAt(e.now()) {
		return nil, ErrOrderExpired
	}
	if order.Restricted() && taker != order.Taker {
		return nil, ErrNotSpecifiedTaker
	}

	filled := new(big.Int).Set(maxAmount)
	if remaining.Cmp(filled) < 0 {
		filled.Set(remaining)
	}

	gross := new(big.Int).Mul(filled, order.PricePerUnit)
	makerFee := e.fees.FeeFor(order.Maker, gross, order.PaymentToken)
	takerFee := e.fees.FeeFor(taker, gross, order.PaymentToken)
	totalFee := new(big.Int).Add(makerFee, takerFee)

	var legs []leg
	if order.Side == Sell {
		// Taker pays: maker nets gross minus the maker fee, the treasury
		// takes both fee components, options move maker to taker.
		legs = []leg{
			tokenLeg(taker, order.Maker, order.PaymentToken, new(big.Int).Sub(gross, makerFee)),
			tokenLeg(taker, e.treasury, order.PaymentToken, totalFee),
			optionLeg(order.Maker, taker, order.OptionContract, order.OptionID, filled),
		}
	} else {
		legs = []leg{
			tokenLeg(order.Maker, taker, order.PaymentToken, new(big.Int).Sub(gross, takerFee)),
			tokenLeg(order.Maker, e.treasury, order.PaymentToken, totalFee),
			optionLeg(taker, order.Maker, order.OptionContract, order.OptionID, filled),
		}
	}

	if err := e.settle(legs); err != nil {
		return nil, err
	}

	if _, err := e.book.Consume(hash, filled); err != nil {
		// Unreachable while the per-hash lock is held; surface it rather
		// than hide a double spend.
		return nil, err
	}

	e.sink.OnOrderFilled(OrderFilled{
		Hash:         hash,
		Maker:        order.Maker,
		Taker:        taker,
		PaymentToken: order.PaymentToken,
		Amount:       filled,
		PricePerUnit: order.PricePerUnit,
		MakerFee:     makerFee,
		TakerFee:     takerFee,
	})
	e.log.Debugw("order_filled", "hash", hash.Hex(), "taker", taker.Hex(), "amount", filled.String())
	return filled, nil
}

// FillResult is one element's outcome in a FillOrders batch.
type FillResult struct {
	Hash   common.Hash
	Filled *big.Int
	Err    error
}

// FillOrders fills a batch best-effort in array order: one order's failure
// does not undo earlier fills in the same call. This intentionally differs
// from CreateOrders' all-or-nothing batching.
func (e *Engine) FillOrders(taker common.Address, orders []Order, maxAmounts []*big.Int) []FillResult {
	n := len(orders)
	if len(maxAmounts) < n {
		n = len(maxAmounts)
	}
	results := make([]FillResult, n)
	for i := 0; i < n; i++ {
		filled, err := e.FillOrder(taker, orders[i], maxAmounts[i])
		results[i] = FillResult{Hash: orders[i].Hash(), Filled: filled, Err: err}
	}
	return results
}

// ==============================
// Cancellation
// ==============================

// CancelOrder zeroes the order's remaining amount. Only the maker may
// cancel; a zero entry fails as not found regardless of how it got there.
func (e *Engine) CancelOrder(caller common.Address, order Order) error {
	if caller != order.Maker {
		return ErrNotOrderMaker
	}

	hash := order.Hash()
	mu := e.lockFor(hash)
	mu.Lock()
	defer mu.Unlock()

	remaining := e.book.AmountOf(hash)
	if remaining.Sign() == 0 {
		return ErrOrderNotFound
	}
	e.book.Clear(hash)

	e.sink.OnOrderCancelled(OrderCancelled{Hash: hash, Maker: order.Maker, Remaining: remaining})
	e.log.Debugw("order_cancelled", "hash", hash.Hex(), "maker", order.Maker.Hex())
	return nil
}

// CancelOrders cancels a batch best-effort, one error slot per input.
func (e *Engine) CancelOrders(caller common.Address, orders []Order) []error {
	errs := make([]error, len(orders))
	for i := range orders {
		errs[i] = e.CancelOrder(caller, orders[i])
	}
	return errs
}

// ==============================
// Settlement
// ==============================

type leg struct {
	isOption bool
	from, to common.Address
	token    common.Address // payment token, or option contract
	optionID *big.Int
	amount   *big.Int
}

func tokenLeg(from, to, token common.Address, amount *big.Int) leg {
	return leg{from: from, to: to, token: token, amount: amount}
}

func optionLeg(from, to, contract common.Address, optionID, amount *big.Int) leg {
	return leg{isOption: true, from: from, to: to, token: contract, optionID: optionID, amount: amount}
}

func (e *Engine) transfer(l leg) error {
	if l.amount.Sign() == 0 {
		return nil
	}
	if l.isOption {
		return e.options.Transfer(e.self, l.from, l.to, l.token, l.optionID, l.amount)
	}
	return e.tokens.Transfer(e.self, l.from, l.to, l.token, l.amount)
}

// settle executes the legs in order. On failure, already-executed legs are
// compensated by reverse transfers issued as the current holder, so the
// exchange is all-or-nothing from the caller's point of view.
func (e *Engine) settle(legs []leg) error {
	for i, l := range legs {
		if err := e.transfer(l); err != nil {
			for j := i - 1; j >= 0; j-- {
				undo := legs[j]
				undo.from, undo.to = undo.to, undo.from
				if undo.isOption {
					_ = e.options.Transfer(undo.from, undo.from, undo.to, undo.token, undo.optionID, undo.amount)
				} else {
					_ = e.tokens.Transfer(undo.from, undo.from, undo.to, undo.token, undo.amount)
				}
			}
			return err
		}
	}
	return nil
}
