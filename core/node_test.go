package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"bookingledger/crypto"
	"bookingledger/native/booking"
	"bookingledger/storage"
)

type nodeHarness struct {
	node     *Node
	now      int64
	id       [32]byte
	customer [20]byte
	supplier [20]byte
	value    *big.Int
	comm     *big.Int
	deadline int64
}

func newNodeHarness(t *testing.T) *nodeHarness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	agentKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	node, err := NewNode(db, agentKey)
	require.NoError(t, err)

	h := &nodeHarness{
		node:     node,
		now:      1_700_000_000,
		id:       booking.ComputeID([]byte("stay-77")),
		customer: [20]byte{0x01},
		supplier: [20]byte{0x02},
		value:    new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
		comm:     new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil),
	}
	h.deadline = h.now + 2*24*60*60
	node.SetNowFunc(func() int64 { return h.now })
	require.NoError(t, node.FundAccount(h.customer, new(big.Int).Mul(h.value, big.NewInt(3))))
	return h
}

func (h *nodeHarness) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	account, err := h.node.GetAccount(addr)
	require.NoError(t, err)
	return account.Balance
}

func TestNodeFullLifecycle(t *testing.T) {
	h := newNodeHarness(t)
	agent := h.node.AgentAddress().Bytes()

	_, err := h.node.CreateBooking(h.id, h.value, h.comm, h.customer, h.supplier, h.deadline, booking.Meta{})
	require.NoError(t, err)

	customerBefore := h.balance(t, h.customer)
	require.NoError(t, h.node.PayForBooking(h.id, h.customer, h.value))

	// Custody transfer: customer down by value, custody up by value.
	diff := new(big.Int).Sub(customerBefore, h.balance(t, h.customer))
	require.Zero(t, diff.Cmp(h.value))
	custody, err := h.node.CustodyBalance(h.id)
	require.NoError(t, err)
	require.Zero(t, custody.Cmp(h.value))

	// Before finalisation the customer holds the entitlement.
	entitled, err := h.node.BalanceOf(h.id, h.customer)
	require.NoError(t, err)
	require.Zero(t, entitled.Cmp(h.value))

	// Advance past finalisation: split flips without any stored transition.
	h.now = h.deadline + 1
	entitled, err = h.node.BalanceOf(h.id, h.customer)
	require.NoError(t, err)
	require.Zero(t, entitled.Sign())
	entitled, err = h.node.BalanceOf(h.id, agent)
	require.NoError(t, err)
	require.Zero(t, entitled.Cmp(h.comm))

	require.NoError(t, h.node.DrawDown(h.id, h.supplier))

	payout := new(big.Int).Sub(h.value, h.comm)
	require.Zero(t, h.balance(t, h.supplier).Cmp(payout))
	require.Zero(t, h.balance(t, agent).Cmp(h.comm))
	custody, err = h.node.CustodyBalance(h.id)
	require.NoError(t, err)
	require.Zero(t, custody.Sign())

	record, err := h.node.GetBooking(h.id)
	require.NoError(t, err)
	require.True(t, record.Settled)
	require.Equal(t, booking.StatusSettled, record.Status())

	entries := h.node.Events("booking.", 0)
	require.Len(t, entries, 3)
	require.Equal(t, booking.EventTypeBookingCreated, entries[0].Type)
	require.Equal(t, booking.EventTypeBookingPaid, entries[1].Type)
	require.Equal(t, booking.EventTypeBookingSettled, entries[2].Type)
}

func TestNodeRejectedCallLeavesNoTrace(t *testing.T) {
	h := newNodeHarness(t)

	_, err := h.node.CreateBooking(h.id, h.value, h.comm, h.customer, h.supplier, h.deadline, booking.Meta{})
	require.NoError(t, err)

	// Wrong payer: rejected, nothing committed, no event published.
	err = h.node.PayForBooking(h.id, h.supplier, h.value)
	require.ErrorIs(t, err, booking.ErrWrongPayer)
	record, err := h.node.GetBooking(h.id)
	require.NoError(t, err)
	require.False(t, record.Paid())
	require.Len(t, h.node.Events(booking.EventTypeBookingPaid, 0), 0)

	// The customer can still pay afterwards.
	require.NoError(t, h.node.PayForBooking(h.id, h.customer, h.value))
}

func TestNodeEarlyDrawDownRejected(t *testing.T) {
	h := newNodeHarness(t)
	_, err := h.node.CreateBooking(h.id, h.value, h.comm, h.customer, h.supplier, h.deadline, booking.Meta{})
	require.NoError(t, err)
	require.NoError(t, h.node.PayForBooking(h.id, h.customer, h.value))

	h.now = h.deadline - 1
	err = h.node.DrawDown(h.id, h.customer)
	require.ErrorIs(t, err, booking.ErrTooEarly)

	custody, err := h.node.CustodyBalance(h.id)
	require.NoError(t, err)
	require.Zero(t, custody.Cmp(h.value))
}

func TestNodeDuplicateCreateRejected(t *testing.T) {
	h := newNodeHarness(t)
	_, err := h.node.CreateBooking(h.id, h.value, h.comm, h.customer, h.supplier, h.deadline, booking.Meta{})
	require.NoError(t, err)

	_, err = h.node.CreateBooking(h.id, big.NewInt(1), big.NewInt(0), h.supplier, h.customer, h.deadline, booking.Meta{})
	require.ErrorIs(t, err, booking.ErrDuplicateBooking)

	record, err := h.node.GetBooking(h.id)
	require.NoError(t, err)
	require.Equal(t, h.customer, record.Customer)
	require.Zero(t, record.Value.Cmp(h.value))
}

func TestNodeClockNeverRunsBackwards(t *testing.T) {
	h := newNodeHarness(t)
	_, err := h.node.CreateBooking(h.id, h.value, h.comm, h.customer, h.supplier, h.deadline, booking.Meta{})
	require.NoError(t, err)
	require.NoError(t, h.node.PayForBooking(h.id, h.customer, h.value))

	// Reach the finalisation time, then yank the wall clock backwards. The
	// monotonic clamp keeps settlement enabled.
	h.now = h.deadline
	entitled, err := h.node.BalanceOf(h.id, h.node.AgentAddress().Bytes())
	require.NoError(t, err)
	require.Zero(t, entitled.Cmp(h.comm))

	h.now = h.deadline - 500
	require.NoError(t, h.node.DrawDown(h.id, h.customer))
}

func TestNodeFundAccountValidation(t *testing.T) {
	h := newNodeHarness(t)
	require.Error(t, h.node.FundAccount(h.supplier, big.NewInt(0)))
	require.Error(t, h.node.FundAccount(h.supplier, nil))
	require.NoError(t, h.node.FundAccount(h.supplier, big.NewInt(5)))
	require.EqualValues(t, 5, h.balance(t, h.supplier).Int64())
}
