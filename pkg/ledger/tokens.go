package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TokenBook tracks fungible-token balances and allowances per token
// identity. Transfers on behalf of a third party consume the owner's
// allowance to the operator, mirroring ERC20 transferFrom.
type TokenBook struct {
	mu         sync.RWMutex
	balances   map[common.Address]map[common.Address]*big.Int                // token -> account -> balance
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int // token -> owner -> spender -> allowance
}

func NewTokenBook() *TokenBook {
	return &TokenBook{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits freshly created tokens to an account.
func (tb *TokenBook) Mint(token, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.credit(token, to, amount)
	return nil
}

// Burn removes tokens from an account.
func (tb *TokenBook) Burn(token, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.debit(token, from, amount)
}

// Approve sets the spender's allowance to exactly amount.
func (tb *TokenBook) Approve(token, owner, spender common.Address, amount *big.Int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.allowanceRef(token, owner, spender).Set(amount)
}

// IncreaseAllowance adds to the spender's allowance.
func (tb *TokenBook) IncreaseAllowance(token, owner, spender common.Address, amount *big.Int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	cur := tb.allowanceRef(token, owner, spender)
	cur.Add(cur, amount)
}

func (tb *TokenBook) BalanceOf(account, token common.Address) *big.Int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	if accts := tb.balances[token]; accts != nil {
		if bal := accts[account]; bal != nil {
			return new(big.Int).Set(bal)
		}
	}
	return new(big.Int)
}

func (tb *TokenBook) Allowance(owner, spender, token common.Address) *big.Int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	if owners := tb.allowances[token]; owners != nil {
		if spenders := owners[owner]; spenders != nil {
			if a := spenders[spender]; a != nil {
				return new(big.Int).Set(a)
			}
		}
	}
	return new(big.Int)
}

// Transfer moves amount from from to to. When operator differs from the
// owner it must have sufficient allowance, which is consumed by the
// transfer. A zero amount is a no-op.
func (tb *TokenBook) Transfer(operator, from, to, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	var allowance *big.Int
	if operator != from {
		allowance = tb.allowanceRef(token, from, operator)
		if allowance.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
	}
	if err := tb.debit(token, from, amount); err != nil {
		return err
	}
	if allowance != nil {
		allowance.Sub(allowance, amount)
	}
	tb.credit(token, to, amount)
	return nil
}

func (tb *TokenBook) credit(token, account common.Address, amount *big.Int) {
	accts := tb.balances[token]
	if accts == nil {
		accts = make(map[common.Address]*big.Int)
		tb.balances[token] = accts
	}
	if bal := accts[account]; bal != nil {
		bal.Add(bal, amount)
	} else {
		accts[account] = new(big.Int).Set(amount)
	}
}

func (tb *TokenBook) debit(token, account common.Address, amount *big.Int) error {
	accts := tb.balances[token]
	if accts == nil {
		return ErrInsufficientBalance
	}
	bal := accts[account]
	if bal == nil || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	return nil
}

func (tb *TokenBook) allowanceRef(token, owner, spender common.Address) *big.Int {
	owners := tb.allowances[token]
	if owners == nil {
		owners = make(map[common.Address]map[common.Address]*big.Int)
		tb.allowances[token] = owners
	}
	spenders := owners[owner]
	if spenders == nil {
		spenders = make(map[common.Address]*big.Int)
		owners[owner] = spenders
	}
	a := spenders[spender]
	if a == nil {
		a = new(big.Int)
		spenders[spender] = a
	}
	return a
}
