package booking

import (
	"fmt"
	"math/big"
)

// Status is the derived lifecycle phase of a booking. It is never persisted;
// the stored payment and settlement fields are authoritative and the phase is
// recomputed on demand so it can never drift from them.
type Status uint8

const (
	StatusCreated Status = iota
	StatusPaid
	StatusSettled
)

// String renders the status for event payloads and RPC responses.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusPaid:
		return "paid"
	case StatusSettled:
		return "settled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Booking captures one escrow record tying a fixed payment amount to a
// customer/supplier pair with a time lock and a commission carved out for the
// ledger's agent. Value, commission, parties and times are fixed at creation;
// PaidAmount and Settled are each set at most once and never unset. Records
// are never deleted.
type Booking struct {
	ID               [32]byte
	Customer         [20]byte
	Supplier         [20]byte
	Value            *big.Int
	Commission       *big.Int
	FinalisationTime int64
	CreatedAt        int64
	PaidAmount       *big.Int
	Settled          bool

	// Stay metadata carried for queries only; no transition consults it.
	CheckIn    int64
	CheckOut   int64
	Refundable bool
}

// Status derives the lifecycle phase from the payment and settlement fields.
func (b *Booking) Status() Status {
	switch {
	case b == nil:
		return StatusCreated
	case b.Settled:
		return StatusSettled
	case b.PaidAmount != nil && b.PaidAmount.Sign() > 0:
		return StatusPaid
	default:
		return StatusCreated
	}
}

// Paid reports whether the customer's payment has been taken into custody.
func (b *Booking) Paid() bool {
	return b != nil && b.PaidAmount != nil && b.PaidAmount.Sign() > 0
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Value = cloneBigInt(b.Value)
	clone.Commission = cloneBigInt(b.Commission)
	clone.PaidAmount = cloneBigInt(b.PaidAmount)
	return &clone
}

// Sanitize validates and normalises a booking record, returning a clone with
// non-nil amount fields. The original value is not mutated.
func Sanitize(b *Booking) (*Booking, error) {
	if b == nil {
		return nil, fmt.Errorf("nil booking")
	}
	clone := b.Clone()
	if clone.Value == nil || clone.Value.Sign() <= 0 {
		return nil, ErrInvalidValue
	}
	if clone.Commission.Sign() < 0 || clone.Commission.Cmp(clone.Value) > 0 {
		return nil, ErrInvalidCommission
	}
	if clone.PaidAmount.Sign() < 0 {
		return nil, fmt.Errorf("booking: negative paid amount")
	}
	if clone.PaidAmount.Sign() > 0 && clone.PaidAmount.Cmp(clone.Value) != 0 {
		return nil, fmt.Errorf("booking: paid amount must equal value")
	}
	if clone.Settled && clone.PaidAmount.Sign() == 0 {
		return nil, fmt.Errorf("booking: settled without payment")
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
