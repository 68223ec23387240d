package events

import (
	"context"
	"sync"
	"time"

	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBetCreated            EventType = "bet_created"
	EventTypeContributionRecorded  EventType = "contribution_recorded"
	EventTypeContributionCancelled EventType = "contribution_cancelled"
	EventTypeBetStatusChanged      EventType = "bet_status_changed"
	EventTypeBetReleased           EventType = "bet_released"
	EventTypePayoutFailed          EventType = "payout_failed"
	EventTypeObligationClaimed     EventType = "obligation_claimed"
	EventTypeWeightConfiscated     EventType = "weight_confiscated"
	EventTypeLevelChanged          EventType = "level_changed"
)

// AllEventTypes lists every event the engine publishes
var AllEventTypes = []EventType{
	EventTypeBetCreated,
	EventTypeContributionRecorded,
	EventTypeContributionCancelled,
	EventTypeBetStatusChanged,
	EventTypeBetReleased,
	EventTypePayoutFailed,
	EventTypeObligationClaimed,
	EventTypeWeightConfiscated,
	EventTypeLevelChanged,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BetCreatedEvent announces a new bet and its address
type BetCreatedEvent struct {
	Bet              common.Address
	Creator          common.Address
	Chip             string
	Title            string
	Options          []string
	WageringDuration time.Duration
	DecidingDuration time.Duration
}

func (e BetCreatedEvent) Type() EventType {
	return EventTypeBetCreated
}

// ContributionRecordedEvent represents a wager, decision, dispute or arbitration
type ContributionRecordedEvent struct {
	Bet      common.Address
	Account  common.Address
	Category models.Category
	Option   int
	Amount   string
	Total    string
}

func (e ContributionRecordedEvent) Type() EventType {
	return EventTypeContributionRecorded
}

// ContributionCancelledEvent represents a withdrawn contribution and its refund
type ContributionCancelledEvent struct {
	Bet      common.Address
	Account  common.Address
	Category models.Category
	Option   int
	Refunded string
}

func (e ContributionCancelledEvent) Type() EventType {
	return EventTypeContributionCancelled
}

// BetStatusChangedEvent represents a bet phase transition
type BetStatusChangedEvent struct {
	Bet       common.Address
	OldStatus models.BetStatus
	NewStatus models.BetStatus
	At        time.Time
	Deadline  time.Time
	Winner    int
}

func (e BetStatusChangedEvent) Type() EventType {
	return EventTypeBetStatusChanged
}

// BetReleasedEvent summarizes a release
type BetReleasedEvent struct {
	Bet         common.Address
	Outcome     models.BetStatus
	Winner      int
	Payouts     int
	Obligations int
	ReleasedBy  common.Address
}

func (e BetReleasedEvent) Type() EventType {
	return EventTypeBetReleased
}

// PayoutFailedEvent represents a payout that became a claimable obligation
type PayoutFailedEvent struct {
	Bet        common.Address
	Account    common.Address
	Asset      models.Asset
	Kind       models.PayoutKind
	Amount     string
	Obligation string
	Reason     string
}

func (e PayoutFailedEvent) Type() EventType {
	return EventTypePayoutFailed
}

// ObligationClaimedEvent represents a previously failed payout delivered by Claim
type ObligationClaimedEvent struct {
	Bet        common.Address
	Account    common.Address
	Asset      models.Asset
	Amount     string
	Obligation string
}

func (e ObligationClaimedEvent) Type() EventType {
	return EventTypeObligationClaimed
}

// WeightConfiscatedEvent represents decided weight forfeited after an upheld dispute
type WeightConfiscatedEvent struct {
	Bet     common.Address
	Account common.Address
	Amount  string
}

func (e WeightConfiscatedEvent) Type() EventType {
	return EventTypeWeightConfiscated
}

// LevelChangedEvent represents a reputation change
type LevelChangedEvent struct {
	Bet     common.Address
	Account common.Address
	Delta   int
	Level   uint64
}

func (e LevelChangedEvent) Type() EventType {
	return EventTypeLevelChanged
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Emitter dispatches events to subscribers
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	inflight sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type on main event bus")
}

// SubscribeAll adds a handler for every event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, t := range AllEventTypes {
		b.Subscribe(t, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers on main event bus")

	// Handlers run asynchronously so engine calls never block on subscribers
	for i, handler := range handlers {
		b.inflight.Add(1)
		go func(h Handler, handlerIndex int) {
			defer b.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Wait blocks until every handler started so far has returned
func (b *Bus) Wait() {
	b.inflight.Wait()
}

// TransactionalBus holds events raised by one engine operation.
// They reach the underlying emitter only when the operation succeeds.
type TransactionalBus struct {
	real    Emitter
	pending []Event
}

func NewTransactionalBus(real Emitter) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns the queued events
func (b *TransactionalBus) Pending() []Event {
	return b.pending
}

// called after the operation committed
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events from transactional bus to main event bus")

	// Subscribers outlive the request that raised the events
	eventCtx := context.WithoutCancel(ctx)

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// called after a failed operation or to clear state.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
