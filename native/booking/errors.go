package booking

import "errors"

// Rejection reasons surfaced by the ledger. Every precondition violation
// aborts the whole call; callers can branch on these with errors.Is.
var (
	ErrDuplicateBooking  = errors.New("booking: identifier already exists")
	ErrInvalidCommission = errors.New("booking: commission exceeds value")
	ErrInvalidValue      = errors.New("booking: value must be positive")
	ErrUnknownBooking    = errors.New("booking: not found")
	ErrAlreadyPaid       = errors.New("booking: already paid")
	ErrWrongPayer        = errors.New("booking: payer is not the customer")
	ErrWrongAmount       = errors.New("booking: amount does not match value")
	ErrNotPaid           = errors.New("booking: not paid")
	ErrTooEarly          = errors.New("booking: finalisation time not reached")
	ErrAlreadySettled    = errors.New("booking: already settled")
	ErrInsufficientFunds = errors.New("booking: insufficient funds")
)
