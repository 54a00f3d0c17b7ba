package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"bookingledger/core/types"
	"bookingledger/native/booking"
	"bookingledger/storage"
)

// Manager reads and writes ledger state on a key-value store. Keys are
// keccak256 hashes of a prefix plus the record identifier; values are
// RLP-encoded records. It implements the state interface the booking engine
// expects.
type Manager struct {
	store KVStore
}

// KVStore is the slice of storage.Database the manager relies on, so it works
// over both a raw backend and a storage.Overlay.
type KVStore interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Has(key []byte) (bool, error)
}

// NewManager creates a state manager operating on the provided store.
func NewManager(store KVStore) *Manager {
	return &Manager{store: store}
}

var (
	accountPrefix       = []byte("account:")
	bookingRecordPrefix = []byte("booking:record:")
	custodyPrefix       = []byte("booking:custody:")
	vaultSeed           = []byte("booking:vault")
)

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func bookingStorageKey(id [32]byte) []byte {
	buf := make([]byte, len(bookingRecordPrefix)+len(id))
	copy(buf, bookingRecordPrefix)
	copy(buf[len(bookingRecordPrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

func custodyKey(id [32]byte) []byte {
	buf := make([]byte, len(custodyPrefix)+len(id))
	copy(buf, custodyPrefix)
	copy(buf[len(custodyPrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// storedBooking is the RLP wire form of a booking record. Timestamps are kept
// as big integers because RLP has no signed integer encoding.
type storedBooking struct {
	ID               [32]byte
	Customer         [20]byte
	Supplier         [20]byte
	Value            *big.Int
	Commission       *big.Int
	PaidAmount       *big.Int
	FinalisationTime *big.Int
	CreatedAt        *big.Int
	CheckIn          *big.Int
	CheckOut         *big.Int
	Settled          bool
	Refundable       bool
}

func newStoredBooking(b *booking.Booking) *storedBooking {
	return &storedBooking{
		ID:               b.ID,
		Customer:         b.Customer,
		Supplier:         b.Supplier,
		Value:            b.Value,
		Commission:       b.Commission,
		PaidAmount:       b.PaidAmount,
		FinalisationTime: big.NewInt(b.FinalisationTime),
		CreatedAt:        big.NewInt(b.CreatedAt),
		CheckIn:          big.NewInt(b.CheckIn),
		CheckOut:         big.NewInt(b.CheckOut),
		Settled:          b.Settled,
		Refundable:       b.Refundable,
	}
}

func (s *storedBooking) toBooking() (*booking.Booking, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil booking record")
	}
	out := &booking.Booking{
		ID:         s.ID,
		Customer:   s.Customer,
		Supplier:   s.Supplier,
		Value:      s.Value,
		Commission: s.Commission,
		PaidAmount: s.PaidAmount,
		Settled:    s.Settled,
		Refundable: s.Refundable,
	}
	if s.FinalisationTime != nil {
		out.FinalisationTime = s.FinalisationTime.Int64()
	}
	if s.CreatedAt != nil {
		out.CreatedAt = s.CreatedAt.Int64()
	}
	if s.CheckIn != nil {
		out.CheckIn = s.CheckIn.Int64()
	}
	if s.CheckOut != nil {
		out.CheckOut = s.CheckOut.Int64()
	}
	return booking.Sanitize(out)
}

// GetAccount loads the account for an address, returning a zero-balance
// account when none has been stored yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	raw, err := m.store.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	balance := big.NewInt(0)
	if stored.Balance != nil {
		balance = new(big.Int).Set(stored.Balance)
	}
	return &types.Account{Nonce: stored.Nonce, Balance: balance}, nil
}

// PutAccount persists the account for an address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	balance := big.NewInt(0)
	if account.Balance != nil {
		if account.Balance.Sign() < 0 {
			return fmt.Errorf("state: negative account balance")
		}
		balance = account.Balance
	}
	raw, err := rlp.EncodeToBytes(&storedAccount{Nonce: account.Nonce, Balance: balance})
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	return m.store.Put(accountKey(addr), raw)
}

// BookingPut validates and persists a booking record.
func (m *Manager) BookingPut(b *booking.Booking) error {
	sanitized, err := booking.Sanitize(b)
	if err != nil {
		return err
	}
	raw, err := rlp.EncodeToBytes(newStoredBooking(sanitized))
	if err != nil {
		return fmt.Errorf("state: encode booking: %w", err)
	}
	return m.store.Put(bookingStorageKey(sanitized.ID), raw)
}

// BookingGet loads a booking record by identifier.
func (m *Manager) BookingGet(id [32]byte) (*booking.Booking, bool) {
	raw, err := m.store.Get(bookingStorageKey(id))
	if err != nil {
		return nil, false
	}
	var stored storedBooking
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false
	}
	record, err := stored.toBooking()
	if err != nil {
		return nil, false
	}
	return record, true
}

// CustodyBalance reports the custodial funds currently attributed to a
// booking.
func (m *Manager) CustodyBalance(id [32]byte) (*big.Int, error) {
	raw, err := m.store.Get(custodyKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	balance := new(big.Int)
	balance.SetBytes(raw)
	return balance, nil
}

// CustodyCredit attributes custodial funds to a booking.
func (m *Manager) CustodyCredit(id [32]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid custody credit amount")
	}
	current, err := m.CustodyBalance(id)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, amt)
	return m.store.Put(custodyKey(id), next.Bytes())
}

// CustodyDebit removes custodial funds attributed to a booking, rejecting
// any attempt to debit more than was credited.
func (m *Manager) CustodyDebit(id [32]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid custody debit amount")
	}
	current, err := m.CustodyBalance(id)
	if err != nil {
		return err
	}
	if current.Cmp(amt) < 0 {
		return fmt.Errorf("state: custody underflow for booking %x", id)
	}
	next := new(big.Int).Sub(current, amt)
	return m.store.Put(custodyKey(id), next.Bytes())
}

// VaultAddress returns the deterministic address holding custodied funds.
func (m *Manager) VaultAddress() ([20]byte, error) {
	hashed := ethcrypto.Keccak256(vaultSeed)
	var addr [20]byte
	copy(addr[:], hashed[len(hashed)-20:])
	return addr, nil
}
