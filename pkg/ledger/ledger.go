// Package ledger provides in-process token and option ledgers with
// ERC20 / ERC1155 balance, allowance and approval semantics. They back the
// matching engine in tests and simulation runs; a production deployment
// would substitute ledgers bridged to real settlement.
package ledger

import "errors"

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotApproved           = errors.New("operator not approved")
	ErrInvalidAmount         = errors.New("amount must be positive")
)
