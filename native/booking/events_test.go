package booking

import (
	"encoding/hex"
	"math/big"
	"testing"
)

func TestNewCreatedEventAttributes(t *testing.T) {
	b := &Booking{
		ID:               ComputeID([]byte("evt")),
		Customer:         newTestAddress(0x01),
		Supplier:         newTestAddress(0x02),
		Value:            big.NewInt(1000),
		Commission:       big.NewInt(100),
		FinalisationTime: 4200,
		CreatedAt:        4000,
		PaidAmount:       big.NewInt(0),
	}
	evt := NewCreatedEvent(b)
	if evt.Type != EventTypeBookingCreated {
		t.Fatalf("event type %q", evt.Type)
	}
	if evt.Attributes["id"] != hex.EncodeToString(b.ID[:]) {
		t.Fatalf("id attribute mismatch")
	}
	if evt.Attributes["value"] != "1000" || evt.Attributes["commission"] != "100" {
		t.Fatalf("amount attributes mismatch: %v", evt.Attributes)
	}
	if evt.Attributes["status"] != "created" {
		t.Fatalf("status attribute %q", evt.Attributes["status"])
	}
	if _, ok := evt.Attributes["paidAmount"]; ok {
		t.Fatalf("unpaid booking carries paidAmount attribute")
	}
}

func TestNewPaidEventCarriesPaidAmount(t *testing.T) {
	b := &Booking{
		ID:         ComputeID([]byte("evt-paid")),
		Customer:   newTestAddress(0x01),
		Supplier:   newTestAddress(0x02),
		Value:      big.NewInt(1000),
		Commission: big.NewInt(100),
		PaidAmount: big.NewInt(1000),
	}
	evt := NewPaidEvent(b)
	if evt.Attributes["paidAmount"] != "1000" {
		t.Fatalf("paidAmount attribute %q", evt.Attributes["paidAmount"])
	}
	if evt.Attributes["status"] != "paid" {
		t.Fatalf("status attribute %q", evt.Attributes["status"])
	}
}

func TestEventForNilBookingIsEmpty(t *testing.T) {
	evt := NewSettledEvent(nil)
	if evt.Type != EventTypeBookingSettled {
		t.Fatalf("event type %q", evt.Type)
	}
	if len(evt.Attributes) != 0 {
		t.Fatalf("nil booking produced attributes: %v", evt.Attributes)
	}
}
