package engine

import "errors"

// Rejection kinds surfaced by the engine. Messages match the reference
// market's revert reasons so callers can pattern-match on either the
// sentinel or the text.
var (
	ErrContractNotWhitelisted = errors.New("Option contract not whitelisted")
	ErrTokenNotWhitelisted    = errors.New("Payment token not whitelisted")

	// ErrOptionExpired is the creation-time rejection; ErrOrderExpired the
	// fill-time one. Same condition, distinct reasons.
	ErrOptionExpired = errors.New("Option expired")
	ErrOrderExpired  = errors.New("Order expired")

	// ErrOrderNotFound covers never-created, fully-filled and cancelled
	// orders alike: remaining amount zero is all the book knows.
	ErrOrderNotFound = errors.New("Order not found")

	ErrInvalidAmount     = errors.New("Amount must be > 0")
	ErrInvalidMaxAmount  = errors.New("MaxAmount must be > 0")
	ErrNotSpecifiedTaker = errors.New("Not specified taker")
	ErrNotOrderMaker     = errors.New("Not order maker")

	ErrDuplicateOrder = errors.New("Order already exists")

	ErrNotAdmin = errors.New("Not admin")
)
