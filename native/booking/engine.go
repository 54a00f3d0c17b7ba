package booking

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"bookingledger/core/events"
	"bookingledger/core/types"
)

var (
	errNilState = errors.New("booking engine: state not configured")
	errNilAgent = errors.New("booking engine: agent address not configured")
)

// engineState is the slice of ledger state the engine needs: booking records,
// party accounts, and the custody vault. The concrete implementation lives in
// core/state.
type engineState interface {
	BookingPut(*Booking) error
	BookingGet(id [32]byte) (*Booking, bool)
	CustodyCredit(id [32]byte, amt *big.Int) error
	CustodyDebit(id [32]byte, amt *big.Int) error
	VaultAddress() ([20]byte, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type bookingEvent struct {
	evt *types.Event
}

func (e bookingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e bookingEvent) Event() *types.Event { return e.evt }

// ComputeID derives the fixed-width booking identifier from a caller-supplied
// key. Equal keys always map to the same identifier.
func ComputeID(raw []byte) [32]byte {
	return ethcrypto.Keccak256Hash(raw)
}

// Engine owns the booking escrow state machine. All mutating operations are
// single-pass: every precondition is checked before any state or balance is
// touched, so a rejection leaves both untouched. Atomicity across the fund
// transfer and the record update is the caller's responsibility (core.Node
// runs the engine against a discardable state overlay).
type Engine struct {
	state   engineState
	emitter events.Emitter
	agent   [20]byte
	nowFn   func() int64
}

// NewEngine creates a booking engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAgent configures the commission-receiving identity.
func (e *Engine) SetAgent(addr [20]byte) { e.agent = addr }

// Agent returns the commission-receiving identity.
func (e *Engine) Agent() [20]byte { return e.agent }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(bookingEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) loadBooking(id [32]byte) (*Booking, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, ok := e.state.BookingGet(id)
	if !ok {
		return nil, ErrUnknownBooking
	}
	return record, nil
}

// transfer moves native funds between two identities, rejecting overdrafts.
func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("booking: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// Meta carries the stay metadata attached to a booking at creation.
type Meta struct {
	CheckIn    int64
	CheckOut   int64
	Refundable bool
}

// Create initialises and persists a new booking record. No funds move. The
// identifier must be unused; a collision rejects the call and leaves the
// existing record untouched.
func (e *Engine) Create(id [32]byte, value, commission *big.Int, customer, supplier [20]byte, finalisationTime int64, meta Meta) (*Booking, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if value == nil || value.Sign() <= 0 {
		return nil, ErrInvalidValue
	}
	com := cloneBigInt(commission)
	if com.Sign() < 0 || com.Cmp(value) > 0 {
		return nil, ErrInvalidCommission
	}
	if _, ok := e.state.BookingGet(id); ok {
		return nil, ErrDuplicateBooking
	}
	record := &Booking{
		ID:               id,
		Customer:         customer,
		Supplier:         supplier,
		Value:            cloneBigInt(value),
		Commission:       com,
		FinalisationTime: finalisationTime,
		CreatedAt:        e.now(),
		PaidAmount:       big.NewInt(0),
		CheckIn:          meta.CheckIn,
		CheckOut:         meta.CheckOut,
		Refundable:       meta.Refundable,
	}
	if err := e.state.BookingPut(record); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(record))
	return record.Clone(), nil
}

// Pay takes the booking value into custody. The payer must be the designated
// customer and the amount must match the booking value exactly; partial and
// over payments are rejected.
func (e *Engine) Pay(id [32]byte, payer [20]byte, amount *big.Int) error {
	record, err := e.loadBooking(id)
	if err != nil {
		return err
	}
	if record.Paid() {
		return ErrAlreadyPaid
	}
	if payer != record.Customer {
		return ErrWrongPayer
	}
	if amount == nil || amount.Cmp(record.Value) != 0 {
		return ErrWrongAmount
	}
	vault, err := e.state.VaultAddress()
	if err != nil {
		return err
	}
	if err := e.transfer(payer, vault, record.Value); err != nil {
		return err
	}
	if err := e.state.CustodyCredit(id, record.Value); err != nil {
		return err
	}
	record.PaidAmount = cloneBigInt(record.Value)
	if err := e.state.BookingPut(record); err != nil {
		return err
	}
	e.emit(NewPaidEvent(record))
	return nil
}

// DrawDown settles a paid booking once the finalisation time has passed,
// paying value minus commission to the supplier and the commission to the
// agent. Any identity may trigger settlement; the time lock, not the caller,
// gates the transition.
func (e *Engine) DrawDown(id [32]byte, caller [20]byte) error {
	record, err := e.loadBooking(id)
	if err != nil {
		return err
	}
	_ = caller // settlement is deliberately not caller-gated
	if !record.Paid() {
		return ErrNotPaid
	}
	if e.now() < record.FinalisationTime {
		return ErrTooEarly
	}
	if record.Settled {
		return ErrAlreadySettled
	}
	if e.agent == ([20]byte{}) {
		return errNilAgent
	}
	vault, err := e.state.VaultAddress()
	if err != nil {
		return err
	}
	total := cloneBigInt(record.Value)
	commission := cloneBigInt(record.Commission)
	payout := new(big.Int).Sub(total, commission)
	if payout.Sign() > 0 {
		if err := e.transfer(vault, record.Supplier, payout); err != nil {
			return err
		}
	}
	if commission.Sign() > 0 {
		if err := e.transfer(vault, e.agent, commission); err != nil {
			return err
		}
	}
	if err := e.state.CustodyDebit(id, total); err != nil {
		return err
	}
	record.Settled = true
	if err := e.state.BookingPut(record); err != nil {
		return err
	}
	e.emit(NewSettledEvent(record))
	return nil
}

// BalanceOf reports the viewer's current entitlement against the booking's
// custodied funds. It is a pure query: the result is derived from the stored
// payment state and the current time, never from a stored counter.
func (e *Engine) BalanceOf(id [32]byte, viewer [20]byte) (*big.Int, error) {
	record, err := e.loadBooking(id)
	if err != nil {
		return nil, err
	}
	return Entitlement(record, viewer, e.agent, e.now()), nil
}

// Get returns a clone of the booking record.
func (e *Engine) Get(id [32]byte) (*Booking, error) {
	record, err := e.loadBooking(id)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Entitlement computes the settlement entitlement table. Exactly one phase
// applies at any time:
//
//	unpaid                         -> everyone 0
//	paid, before finalisation time -> customer holds value
//	paid, at/after finalisation    -> supplier holds value-commission,
//	                                  agent holds commission
//	settled                        -> everyone 0
func Entitlement(b *Booking, viewer, agent [20]byte, now int64) *big.Int {
	if b == nil || !b.Paid() || b.Settled {
		return big.NewInt(0)
	}
	if now < b.FinalisationTime {
		if viewer == b.Customer {
			return cloneBigInt(b.Value)
		}
		return big.NewInt(0)
	}
	switch viewer {
	case b.Supplier:
		return new(big.Int).Sub(cloneBigInt(b.Value), cloneBigInt(b.Commission))
	case agent:
		return cloneBigInt(b.Commission)
	default:
		return big.NewInt(0)
	}
}
