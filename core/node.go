package core

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"bookingledger/core/events"
	"bookingledger/core/state"
	"bookingledger/core/types"
	"bookingledger/crypto"
	"bookingledger/native/booking"
	"bookingledger/storage"
)

const journalCapacity = 4096

// Node wires the booking engine, its state backend and the event journal
// together, and stands in for the execution substrate the escrow design
// assumes: every mutating call runs against a write overlay that is committed
// only when the engine call succeeds, so a fund transfer and its matching
// record update land together or not at all. A mutex serialises mutating
// calls; the loser of a race observes the committed post-state and fails its
// own precondition check.
type Node struct {
	db       storage.Database
	agentKey *crypto.PrivateKey
	journal  *events.Journal

	mu      sync.Mutex
	nowFn   func() int64
	lastNow int64
}

// NewNode creates a node over the given storage backend. The agent key is the
// ledger's owning identity; its address receives every commission.
func NewNode(db storage.Database, agentKey *crypto.PrivateKey) (*Node, error) {
	if db == nil {
		return nil, errors.New("node: storage not configured")
	}
	if agentKey == nil {
		return nil, errors.New("node: agent key not configured")
	}
	return &Node{
		db:       db,
		agentKey: agentKey,
		journal:  events.NewJournal(journalCapacity),
		nowFn:    func() int64 { return time.Now().Unix() },
	}, nil
}

// SetNowFunc overrides the node's time source. Intended for tests; the
// monotonic clamp below still applies.
func (n *Node) SetNowFunc(now func() int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	n.nowFn = now
}

// currentTime reads the clock, clamped so observed time never decreases.
// Callers must hold n.mu.
func (n *Node) currentTime() int64 {
	t := n.nowFn()
	if t < n.lastNow {
		t = n.lastNow
	}
	n.lastNow = t
	return t
}

// AgentAddress returns the commission-receiving identity.
func (n *Node) AgentAddress() crypto.Address {
	return n.agentKey.PubKey().Address()
}

// bufferedEmitter queues events during a transaction so they are only
// published once the overlay commits.
type bufferedEmitter struct {
	pending []events.Event
}

func (b *bufferedEmitter) Emit(evt events.Event) {
	b.pending = append(b.pending, evt)
}

func (n *Node) newEngine(manager *state.Manager, emitter events.Emitter) *booking.Engine {
	engine := booking.NewEngine()
	engine.SetState(manager)
	engine.SetAgent(n.AgentAddress().Bytes())
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return n.currentTime() })
	return engine
}

// withMutableState runs fn against an overlay of the backing store and
// commits the overlay only when fn succeeds. Buffered events are published
// after the commit.
func (n *Node) withMutableState(fn func(*booking.Engine, *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	overlay := storage.NewOverlay(n.db)
	manager := state.NewManager(overlay)
	emitter := &bufferedEmitter{}
	engine := n.newEngine(manager, emitter)
	if err := fn(engine, manager); err != nil {
		overlay.Discard()
		return err
	}
	if err := overlay.Commit(); err != nil {
		return fmt.Errorf("node: commit state: %w", err)
	}
	for _, evt := range emitter.pending {
		n.journal.Emit(evt)
	}
	return nil
}

// withReadState runs fn against the committed store, serialised with writers
// so queries never observe a half-applied transaction.
func (n *Node) withReadState(fn func(*booking.Engine, *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	manager := state.NewManager(n.db)
	engine := n.newEngine(manager, events.NoopEmitter{})
	return fn(engine, manager)
}

// CreateBooking registers a new escrow booking. No funds move.
func (n *Node) CreateBooking(id [32]byte, value, commission *big.Int, customer, supplier [20]byte, finalisationTime int64, meta booking.Meta) (*booking.Booking, error) {
	var created *booking.Booking
	err := n.withMutableState(func(engine *booking.Engine, _ *state.Manager) error {
		record, err := engine.Create(id, value, commission, customer, supplier, finalisationTime, meta)
		if err != nil {
			return err
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// PayForBooking moves the booking value from the payer into custody.
func (n *Node) PayForBooking(id [32]byte, payer [20]byte, amount *big.Int) error {
	return n.withMutableState(func(engine *booking.Engine, _ *state.Manager) error {
		return engine.Pay(id, payer, amount)
	})
}

// DrawDown settles a paid booking once its finalisation time has passed.
func (n *Node) DrawDown(id [32]byte, caller [20]byte) error {
	return n.withMutableState(func(engine *booking.Engine, _ *state.Manager) error {
		return engine.DrawDown(id, caller)
	})
}

// BalanceOf reports the viewer's current entitlement against a booking.
func (n *Node) BalanceOf(id [32]byte, viewer [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := n.withReadState(func(engine *booking.Engine, _ *state.Manager) error {
		entitled, err := engine.BalanceOf(id, viewer)
		if err != nil {
			return err
		}
		amount = entitled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// GetBooking returns the stored booking record.
func (n *Node) GetBooking(id [32]byte) (*booking.Booking, error) {
	var record *booking.Booking
	err := n.withReadState(func(engine *booking.Engine, _ *state.Manager) error {
		loaded, err := engine.Get(id)
		if err != nil {
			return err
		}
		record = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetAccount returns the native account for an address, zero-valued when the
// address has never been funded.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	var account *types.Account
	err := n.withReadState(func(_ *booking.Engine, manager *state.Manager) error {
		loaded, err := manager.GetAccount(addr[:])
		if err != nil {
			return err
		}
		account = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// CustodyBalance reports the custodial funds currently attributed to a
// booking.
func (n *Node) CustodyBalance(id [32]byte) (*big.Int, error) {
	var balance *big.Int
	err := n.withReadState(func(_ *booking.Engine, manager *state.Manager) error {
		current, err := manager.CustodyBalance(id)
		if err != nil {
			return err
		}
		balance = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// FundAccount credits freshly minted native funds to an address. It backs
// genesis allocations and the local faucet; booking operations never mint.
func (n *Node) FundAccount(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("node: funding amount must be positive")
	}
	return n.withMutableState(func(_ *booking.Engine, manager *state.Manager) error {
		account, err := manager.GetAccount(addr[:])
		if err != nil {
			return err
		}
		account.Balance = new(big.Int).Add(account.Balance, amount)
		return manager.PutAccount(addr[:], account)
	})
}

// Events returns retained ledger events whose type matches the prefix.
func (n *Node) Events(prefix string, limit int) []events.Entry {
	return n.journal.List(prefix, limit)
}
