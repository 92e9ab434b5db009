package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type optionKey struct {
	contract common.Address
	id       string // big.Int decimal form, usable as a map key
}

func keyFor(contract common.Address, optionID *big.Int) optionKey {
	id := "0"
	if optionID != nil {
		id = optionID.String()
	}
	return optionKey{contract: contract, id: id}
}

// OptionBook tracks option-unit balances per (contract, optionID) and
// blanket operator approvals per (contract, owner), mirroring ERC1155
// balanceOf / setApprovalForAll semantics.
type OptionBook struct {
	mu        sync.RWMutex
	balances  map[optionKey]map[common.Address]*big.Int              // (contract,id) -> account -> units
	approvals map[common.Address]map[common.Address]map[common.Address]bool // contract -> owner -> operator
}

func NewOptionBook() *OptionBook {
	return &OptionBook{
		balances:  make(map[optionKey]map[common.Address]*big.Int),
		approvals: make(map[common.Address]map[common.Address]map[common.Address]bool),
	}
}

// Mint credits option units to an account.
func (ob *OptionBook) Mint(contract common.Address, optionID *big.Int, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.credit(keyFor(contract, optionID), to, amount)
	return nil
}

// Burn removes option units from an account.
func (ob *OptionBook) Burn(contract common.Address, optionID *big.Int, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.debit(keyFor(contract, optionID), from, amount)
}

// SetApprovalForAll grants or revokes the operator's right to move any of
// the owner's units within the collection.
func (ob *OptionBook) SetApprovalForAll(contract, owner, operator common.Address, approved bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	owners := ob.approvals[contract]
	if owners == nil {
		owners = make(map[common.Address]map[common.Address]bool)
		ob.approvals[contract] = owners
	}
	ops := owners[owner]
	if ops == nil {
		ops = make(map[common.Address]bool)
		owners[owner] = ops
	}
	ops[operator] = approved
}

func (ob *OptionBook) BalanceOf(account, contract common.Address, optionID *big.Int) *big.Int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if accts := ob.balances[keyFor(contract, optionID)]; accts != nil {
		if bal := accts[account]; bal != nil {
			return new(big.Int).Set(bal)
		}
	}
	return new(big.Int)
}

func (ob *OptionBook) IsApprovedForAll(owner, operator, contract common.Address) bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if owners := ob.approvals[contract]; owners != nil {
		if ops := owners[owner]; ops != nil {
			return ops[operator]
		}
	}
	return false
}

// Transfer moves option units. An operator other than the owner must hold
// approval-for-all on the collection.
func (ob *OptionBook) Transfer(operator, from, to, contract common.Address, optionID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if operator != from && !ob.approvedLocked(contract, from, operator) {
		return ErrNotApproved
	}
	key := keyFor(contract, optionID)
	if err := ob.debit(key, from, amount); err != nil {
		return err
	}
	ob.credit(key, to, amount)
	return nil
}

func (ob *OptionBook) approvedLocked(contract, owner, operator common.Address) bool {
	if owners := ob.approvals[contract]; owners != nil {
		if ops := owners[owner]; ops != nil {
			return ops[operator]
		}
	}
	return false
}

func (ob *OptionBook) credit(key optionKey, account common.Address, amount *big.Int) {
	accts := ob.balances[key]
	if accts == nil {
		accts = make(map[common.Address]*big.Int)
		ob.balances[key] = accts
	}
	if bal := accts[account]; bal != nil {
		bal.Add(bal, amount)
	} else {
		accts[account] = new(big.Int).Set(amount)
	}
}

func (ob *OptionBook) debit(key optionKey, account common.Address, amount *big.Int) error {
	accts := ob.balances[key]
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
