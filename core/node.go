package core

import (
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ShivamSoni20/sol-gift/core/events"
	giftstate "github.com/ShivamSoni20/sol-gift/core/state"
	"github.com/ShivamSoni20/sol-gift/core/types"
	"github.com/ShivamSoni20/sol-gift/native/giftcard"
	"github.com/ShivamSoni20/sol-gift/observability"
	"github.com/ShivamSoni20/sol-gift/storage"
)

// eventBufferLimit caps the in-memory event log. Older events roll off the
// front once the cap is reached.
const eventBufferLimit = 512

// Node is the central controller. Every gift-card transition runs against a
// fresh state overlay that only commits to the database when the whole
// transition succeeds, so a rejected call leaves no partial writes behind.
type Node struct {
	db     storage.Database
	mu     sync.Mutex
	events []types.Event
	nowFn  func() int64
	logger *slog.Logger
}

// NewNode creates a node over the provided database.
func NewNode(db storage.Database) *Node {
	return &Node{
		db:     db,
		nowFn:  func() int64 { return time.Now().Unix() },
		logger: slog.Default(),
	}
}

// SetNowFunc overrides the node's time source. Intended for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	n.nowFn = now
}

type eventWithPayload interface {
	Event() *types.Event
}

// stagedEmitter collects events raised during a transition. They only reach
// the node's event log once the state overlay commits.
type stagedEmitter struct {
	events []types.Event
}

func (e *stagedEmitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	payload, ok := evt.(eventWithPayload)
	if !ok {
		e.events = append(e.events, types.Event{Type: evt.EventType(), Attributes: map[string]string{}})
		return
	}
	event := payload.Event()
	if event == nil {
		return
	}
	attrs := make(map[string]string, len(event.Attributes))
	for k, v := range event.Attributes {
		attrs[k] = v
	}
	e.events = append(e.events, types.Event{Type: event.Type, Attributes: attrs})
}

func (n *Node) newGiftCardEngine(manager *giftstate.Manager, emitter events.Emitter) *giftcard.Engine {
	engine := giftcard.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(n.nowFn)
	return engine
}

// apply runs fn against a fresh overlay and commits on success. The node lock
// serialises transitions so two calls can never interleave their reads and
// writes.
func (n *Node) apply(operation string, fn func(*giftcard.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	start := time.Now()
	manager := giftstate.NewManager(n.db)
	staged := &stagedEmitter{}
	engine := n.newGiftCardEngine(manager, staged)

	err := fn(engine)
	if err == nil {
		err = manager.Commit()
	}
	if err == nil {
		n.appendEvents(staged.events)
	} else {
		n.logger.Warn("gift-card transition rejected", "operation", operation, "error", err)
	}
	observability.NodeMetrics().ObserveTransition(operation, err, time.Since(start))
	return err
}

func (n *Node) appendEvents(batch []types.Event) {
	n.events = append(n.events, batch...)
	if overflow := len(n.events) - eventBufferLimit; overflow > 0 {
		n.events = append(n.events[:0], n.events[overflow:]...)
	}
}

// GiftCardIssue locks funds from the issuer and creates a new card.
func (n *Node) GiftCardIssue(issuer [20]byte, amount *big.Int, expiresAt int64, merchantName string, merchant [20]byte, uri string, nonce uint64) (*giftcard.GiftCard, error) {
	var card *giftcard.GiftCard
	err := n.apply("issue", func(engine *giftcard.Engine) error {
		issued, err := engine.Issue(issuer, amount, expiresAt, merchantName, merchant, uri, nonce)
		if err != nil {
			return err
		}
		card = issued
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// GiftCardTransfer conveys title from the current owner to newOwner and
// returns the updated record.
func (n *Node) GiftCardTransfer(id [32]byte, caller, newOwner [20]byte) (*giftcard.GiftCard, error) {
	var card *giftcard.GiftCard
	err := n.apply("transfer", func(engine *giftcard.Engine) error {
		if err := engine.Transfer(id, caller, newOwner); err != nil {
			return err
		}
		updated, err := engine.Get(id)
		if err != nil {
			return err
		}
		card = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// GiftCardRedeem releases amount (nil for the full remaining balance) to the
// merchant and returns the updated record.
func (n *Node) GiftCardRedeem(id [32]byte, caller [20]byte, amount *big.Int) (*giftcard.GiftCard, error) {
	var card *giftcard.GiftCard
	err := n.apply("redeem", func(engine *giftcard.Engine) error {
		if err := engine.Redeem(id, caller, amount); err != nil {
			return err
		}
		updated, err := engine.Get(id)
		if err != nil {
			return err
		}
		card = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// GiftCardReclaim settles an expired card back to its issuer and returns the
// updated record.
func (n *Node) GiftCardReclaim(id [32]byte, caller [20]byte) (*giftcard.GiftCard, error) {
	var card *giftcard.GiftCard
	err := n.apply("reclaim", func(engine *giftcard.Engine) error {
		if err := engine.Reclaim(id, caller); err != nil {
			return err
		}
		updated, err := engine.Get(id)
		if err != nil {
			return err
		}
		card = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// GiftCardGet returns the stored record for id.
func (n *Node) GiftCardGet(id [32]byte) (*giftcard.GiftCard, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	manager := giftstate.NewManager(n.db)
	card, ok := manager.GiftCardGet(id)
	if !ok {
		return nil, giftcard.ErrNotFound
	}
	return card, nil
}

// GiftCardBalance reports the funds currently escrowed for the card.
func (n *Node) GiftCardBalance(id [32]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	manager := giftstate.NewManager(n.db)
	if _, ok := manager.GiftCardGet(id); !ok {
		return nil, giftcard.ErrNotFound
	}
	return manager.VaultBalance(id)
}

// GetAccount returns the ledger account for addr.
func (n *Node) GetAccount(addr []byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	manager := giftstate.NewManager(n.db)
	return manager.GetAccount(addr)
}

// SetAccountBalance overwrites the balance for addr. Used for genesis funding
// and local development.
func (n *Node) SetAccountBalance(addr []byte, balance *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	manager := giftstate.NewManager(n.db)
	account, err := manager.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Set(balance)
	if err := manager.PutAccount(addr, account); err != nil {
		return err
	}
	return manager.Commit()
}

// Events returns a copy of the committed event log, oldest first.
func (n *Node) Events() []types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]types.Event, len(n.events))
	for i := range n.events {
		attrs := make(map[string]string, len(n.events[i].Attributes))
		for k, v := range n.events[i].Attributes {
			attrs[k] = v
		}
		out[i] = types.Event{Type: n.events[i].Type, Attributes: attrs}
	}
	return out
}
