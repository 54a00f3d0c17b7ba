package booking

import (
	"errors"
	"math/big"
	"testing"
)

func TestStatusDerivation(t *testing.T) {
	b := &Booking{Value: big.NewInt(100), Commission: big.NewInt(10), PaidAmount: big.NewInt(0)}
	if b.Status() != StatusCreated {
		t.Fatalf("expected created, got %v", b.Status())
	}
	b.PaidAmount = big.NewInt(100)
	if b.Status() != StatusPaid {
		t.Fatalf("expected paid, got %v", b.Status())
	}
	b.Settled = true
	if b.Status() != StatusSettled {
		t.Fatalf("expected settled, got %v", b.Status())
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusCreated: "created",
		StatusPaid:    "paid",
		StatusSettled: "settled",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Fatalf("status %d renders %q, want %q", status, got, want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	b := &Booking{Value: big.NewInt(100), Commission: big.NewInt(10), PaidAmount: big.NewInt(100)}
	clone := b.Clone()
	clone.Value.SetInt64(1)
	clone.PaidAmount.SetInt64(1)
	if b.Value.Int64() != 100 || b.PaidAmount.Int64() != 100 {
		t.Fatalf("clone shares big.Int state with original")
	}
}

func TestSanitizeRejectsBadRecords(t *testing.T) {
	base := func() *Booking {
		return &Booking{Value: big.NewInt(100), Commission: big.NewInt(10), PaidAmount: big.NewInt(0)}
	}

	if _, err := Sanitize(nil); err == nil {
		t.Fatalf("nil booking accepted")
	}

	b := base()
	b.Value = big.NewInt(0)
	if _, err := Sanitize(b); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("zero value accepted: %v", err)
	}

	b = base()
	b.Commission = big.NewInt(101)
	if _, err := Sanitize(b); !errors.Is(err, ErrInvalidCommission) {
		t.Fatalf("oversized commission accepted: %v", err)
	}

	b = base()
	b.PaidAmount = big.NewInt(50)
	if _, err := Sanitize(b); err == nil {
		t.Fatalf("partial paid amount accepted")
	}

	b = base()
	b.Settled = true
	if _, err := Sanitize(b); err == nil {
		t.Fatalf("settled-but-unpaid record accepted")
	}
}

func TestSanitizeFillsNilAmounts(t *testing.T) {
	b := &Booking{Value: big.NewInt(100)}
	sanitized, err := Sanitize(b)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.Commission == nil || sanitized.PaidAmount == nil {
		t.Fatalf("nil amounts not normalised")
	}
	if sanitized.Commission.Sign() != 0 || sanitized.PaidAmount.Sign() != 0 {
		t.Fatalf("normalised amounts not zero")
	}
}
