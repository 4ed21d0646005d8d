package escrow

import "errors"

var (
	// ErrNotFound indicates the referenced escrow does not exist.
	ErrNotFound = errors.New("escrow: escrow not found")
	// ErrInvalidAmount indicates a non-positive principal amount.
	ErrInvalidAmount = errors.New("escrow: amount must be positive")
	// ErrInvalidCurrency indicates a currency outside the supported set.
	ErrInvalidCurrency = errors.New("escrow: unsupported currency")
	// ErrInvalidStatus indicates the escrow is not in a state that permits
	// the requested transition.
	ErrInvalidStatus = errors.New("escrow: invalid status for transition")
	// ErrNotAuthorized indicates the caller is not the party the operation
	// requires.
	ErrNotAuthorized = errors.New("escrow: caller not authorized")
	// ErrCapacityExceeded indicates the ledger is at its configured escrow
	// limit.
	ErrCapacityExceeded = errors.New("escrow: escrow capacity exceeded")
	// ErrDuplicateRequest indicates an escrow already exists for the
	// request.
	ErrDuplicateRequest = errors.New("escrow: request already escrowed")
	// ErrDisputeInProgress indicates a dispute is already attached.
	ErrDisputeInProgress = errors.New("escrow: dispute already in progress")
	// ErrInsufficientBalance indicates the funding account cannot cover the
	// transfer.
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
	// ErrAuthorityUnset indicates no fee recipient has been configured.
	ErrAuthorityUnset = errors.New("escrow: authority not configured")

	errNilState  = errors.New("escrow: state not configured")
	errNilParams = errors.New("escrow: params not configured")
)
