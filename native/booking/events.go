package booking

import (
	"encoding/hex"
	"strconv"

	"bookingledger/core/types"
)

const (
	EventTypeBookingCreated = "booking.created"
	EventTypeBookingPaid    = "booking.paid"
	EventTypeBookingSettled = "booking.settled"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// booking.
func NewCreatedEvent(b *Booking) *types.Event { return newBookingEvent(EventTypeBookingCreated, b) }

// NewPaidEvent returns the canonical event payload emitted when the customer's
// payment is taken into custody.
func NewPaidEvent(b *Booking) *types.Event { return newBookingEvent(EventTypeBookingPaid, b) }

// NewSettledEvent returns the canonical event payload for a drawdown that
// distributed the custodied funds.
func NewSettledEvent(b *Booking) *types.Event { return newBookingEvent(EventTypeBookingSettled, b) }

func newBookingEvent(eventType string, b *Booking) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := Sanitize(b)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["customer"] = hex.EncodeToString(sanitized.Customer[:])
	attrs["supplier"] = hex.EncodeToString(sanitized.Supplier[:])
	attrs["value"] = sanitized.Value.String()
	attrs["commission"] = sanitized.Commission.String()
	attrs["finalisationTime"] = strconv.FormatInt(sanitized.FinalisationTime, 10)
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	attrs["status"] = sanitized.Status().String()
	if sanitized.Paid() {
		attrs["paidAmount"] = sanitized.PaidAmount.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
