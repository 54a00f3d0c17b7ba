package state

import (
	"math/big"
	"testing"

	"bookingledger/core/types"
	"bookingledger/native/booking"
	"bookingledger/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() {
		db.Close()
	})
	return NewManager(db)
}

func testBooking(id string) *booking.Booking {
	return &booking.Booking{
		ID:               booking.ComputeID([]byte(id)),
		Customer:         [20]byte{0x01},
		Supplier:         [20]byte{0x02},
		Value:            big.NewInt(1_000_000),
		Commission:       big.NewInt(100_000),
		FinalisationTime: 5_000,
		CreatedAt:        4_000,
		PaidAmount:       big.NewInt(0),
		CheckIn:          4_100,
		CheckOut:         4_900,
		Refundable:       true,
	}
}

func TestAccountRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	addr := []byte{0xAA, 0xBB}

	account, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get missing account: %v", err)
	}
	if account.Balance.Sign() != 0 || account.Nonce != 0 {
		t.Fatalf("missing account not zero-valued: %+v", account)
	}

	if err := manager.PutAccount(addr, &types.Account{Nonce: 3, Balance: big.NewInt(77)}); err != nil {
		t.Fatalf("put account: %v", err)
	}
	account, err = manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Nonce != 3 || account.Balance.Int64() != 77 {
		t.Fatalf("account round trip mismatch: %+v", account)
	}
}

func TestPutAccountRejectsNegativeBalance(t *testing.T) {
	manager := newTestManager(t)
	err := manager.PutAccount([]byte{0x01}, &types.Account{Balance: big.NewInt(-1)})
	if err == nil {
		t.Fatalf("negative balance accepted")
	}
}

func TestBookingRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	record := testBooking("round-trip")

	if err := manager.BookingPut(record); err != nil {
		t.Fatalf("booking put: %v", err)
	}
	loaded, ok := manager.BookingGet(record.ID)
	if !ok {
		t.Fatalf("booking not found after put")
	}
	if loaded.Customer != record.Customer || loaded.Supplier != record.Supplier {
		t.Fatalf("parties mismatch after round trip")
	}
	if loaded.Value.Cmp(record.Value) != 0 || loaded.Commission.Cmp(record.Commission) != 0 {
		t.Fatalf("amounts mismatch after round trip")
	}
	if loaded.FinalisationTime != record.FinalisationTime || loaded.CreatedAt != record.CreatedAt {
		t.Fatalf("timestamps mismatch after round trip")
	}
	if loaded.CheckIn != record.CheckIn || loaded.CheckOut != record.CheckOut || !loaded.Refundable {
		t.Fatalf("stay metadata mismatch after round trip")
	}
	if loaded.Paid() || loaded.Settled {
		t.Fatalf("fresh record not in created phase")
	}
}

func TestBookingPutRejectsInvalidRecord(t *testing.T) {
	manager := newTestManager(t)
	record := testBooking("invalid")
	record.Commission = new(big.Int).Add(record.Value, big.NewInt(1))

	if err := manager.BookingPut(record); err == nil {
		t.Fatalf("invalid record accepted")
	}
	if _, ok := manager.BookingGet(record.ID); ok {
		t.Fatalf("invalid record persisted")
	}
}

func TestBookingGetMissing(t *testing.T) {
	manager := newTestManager(t)
	if _, ok := manager.BookingGet(booking.ComputeID([]byte("missing"))); ok {
		t.Fatalf("missing booking reported as found")
	}
}

func TestCustodyCreditAndDebit(t *testing.T) {
	manager := newTestManager(t)
	id := booking.ComputeID([]byte("custody"))

	balance, err := manager.CustodyBalance(id)
	if err != nil {
		t.Fatalf("custody balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("fresh custody balance not zero: %s", balance)
	}

	if err := manager.CustodyCredit(id, big.NewInt(500)); err != nil {
		t.Fatalf("custody credit: %v", err)
	}
	balance, _ = manager.CustodyBalance(id)
	if balance.Int64() != 500 {
		t.Fatalf("custody balance %s after credit, want 500", balance)
	}

	if err := manager.CustodyDebit(id, big.NewInt(500)); err != nil {
		t.Fatalf("custody debit: %v", err)
	}
	balance, _ = manager.CustodyBalance(id)
	if balance.Sign() != 0 {
		t.Fatalf("custody balance %s after debit, want 0", balance)
	}
}

func TestCustodyDebitRejectsUnderflow(t *testing.T) {
	manager := newTestManager(t)
	id := booking.ComputeID([]byte("underflow"))
	if err := manager.CustodyCredit(id, big.NewInt(10)); err != nil {
		t.Fatalf("custody credit: %v", err)
	}
	if err := manager.CustodyDebit(id, big.NewInt(11)); err == nil {
		t.Fatalf("custody underflow accepted")
	}
}

func TestVaultAddressIsStable(t *testing.T) {
	manager := newTestManager(t)
	a, err := manager.VaultAddress()
	if err != nil {
		t.Fatalf("vault address: %v", err)
	}
	b, _ := manager.VaultAddress()
	if a != b {
		t.Fatalf("vault address not deterministic")
	}
	if a == ([20]byte{}) {
		t.Fatalf("vault address is zero")
	}
}

func TestManagerSatisfiesEngineState(t *testing.T) {
	manager := newTestManager(t)
	engine := booking.NewEngine()
	engine.SetState(manager)
	engine.SetAgent([20]byte{0x03})

	customer := [20]byte{0x01}
	if err := manager.PutAccount(customer[:], &types.Account{Balance: big.NewInt(2_000_000)}); err != nil {
		t.Fatalf("fund customer: %v", err)
	}

	record := testBooking("engine-state")
	if _, err := engine.Create(record.ID, record.Value, record.Commission, record.Customer, record.Supplier, record.FinalisationTime, booking.Meta{}); err != nil {
		t.Fatalf("create through manager: %v", err)
	}
	if err := engine.Pay(record.ID, customer, record.Value); err != nil {
		t.Fatalf("pay through manager: %v", err)
	}

	custody, err := manager.CustodyBalance(record.ID)
	if err != nil {
		t.Fatalf("custody balance: %v", err)
	}
	if custody.Cmp(record.Value) != 0 {
		t.Fatalf("custody %s after payment, want %s", custody, record.Value)
	}
}
