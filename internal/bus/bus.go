// Package bus implements the matchmaker's notification bus: a typed
// in-process publish/subscribe surface coupling the engine to the HTTP and
// WebSocket edges.
//
// Delivery contract:
//   - Publish is synchronous with the mutation that produced the event, so a
//     subscriber observes a consistent post-mutation snapshot.
//   - Events are delivered to each subscriber in publish order.
//   - A panicking subscriber is contained and logged; it never propagates
//     back into the engine.
//   - Subscribers must not re-enter the engine and must not block; work that
//     blocks belongs on the subscriber's own goroutine.
package bus

import (
	"sync"

	"github.com/pixelstream-dev/matchmaker/internal/logger"
	"github.com/pixelstream-dev/matchmaker/internal/model"
)

// Kind identifies an event type on the bus.
type Kind string

const (
	NodeRegistered   Kind = "nodeRegistered"
	NodeUpdated      Kind = "nodeUpdated"
	NodeUnregistered Kind = "nodeUnregistered"

	SessionCreated       Kind = "sessionCreated"
	SessionQueued        Kind = "sessionQueued"
	SessionAssigned      Kind = "sessionAssigned"
	SessionStatusChanged Kind = "sessionStatusChanged"
	SessionRemoved       Kind = "sessionRemoved"

	QueueUpdated   Kind = "queueUpdated"
	SweepCompleted Kind = "sweepCompleted"

	HealthChanged    Kind = "healthChanged"
	ServiceUnhealthy Kind = "serviceUnhealthy"
	RecoveryOk       Kind = "recoveryOk"
	RecoveryFail     Kind = "recoveryFail"

	ServerShutdown Kind = "serverShutdown"
)

// Event is the envelope delivered to subscribers. Fields beyond Kind are
// populated per event type; all pointers are copies, never live engine state.
type Event struct {
	Kind Kind

	// Node is set on node* events and on sessionAssigned.
	Node *model.StreamNode

	// Session is set on session* events.
	Session *model.ClientSession

	// PrevStatus is set on sessionStatusChanged.
	PrevStatus model.SessionStatus

	// Reason distinguishes removal paths (e.g. "expired", "removed").
	Reason string

	// Check, Status, OldStatus are set on health events.
	Check     string
	Status    string
	OldStatus string

	// Removed is the sweep's removal count on sweepCompleted.
	Removed int

	// QueueLength accompanies queueUpdated.
	QueueLength int
}

// Handler consumes events. Handlers run synchronously on the publisher's
// goroutine, typically while the engine lock is held.
type Handler func(Event)

// Subscription represents a registered handler.
type Subscription struct {
	id  int
	bus *Bus
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.id)
}

type subscriber struct {
	id      int
	kinds   map[Kind]bool // nil means all kinds
	handler Handler
}

// Bus fans events out to subscribers in registration order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscriber
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every event kind.
func (b *Bus) Subscribe(h Handler) *Subscription {
	return b.subscribe(nil, h)
}

// SubscribeKinds registers a handler for the given kinds only.
func (b *Bus) SubscribeKinds(h Handler, kinds ...Kind) *Subscription {
	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return b.subscribe(set, h)
}

func (b *Bus) subscribe(kinds map[Kind]bool, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, kinds: kinds, handler: h})
	return &Subscription{id: b.nextID, bus: b}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every matching subscriber, in registration order,
// on the calling goroutine. Subscriber panics are contained.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.kinds != nil && !s.kinds[ev.Kind] {
			continue
		}
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Engine().Error().
				Interface("panic", r).
				Str("event", string(ev.Kind)).
				Msg("Notification subscriber panicked")
		}
	}()
	s.handler(ev)
}
