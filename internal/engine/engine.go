// Package engine implements the matchmaker core: the stream-node registry,
// the priority wait queue, the assignment state machine, and the liveness
// and expiry sweeps.
//
// Concurrency model:
//   - The engine is single-writer. Every public operation makes its changes
//     under the engine mutex, so mutations are atomic with respect to each
//     other regardless of which input (node TCP, client HTTP/WS, timer tick)
//     triggered them.
//   - Notifications publish synchronously on the calling goroutine. Session
//     and queue events publish inside the critical section; node events
//     (registered, updated, unregistered) and sweepCompleted publish right
//     after the mutex is released. Every event carries a copy taken under
//     the lock, so subscribers observe the post-mutation state. Subscribers
//     must not re-enter the engine.
//   - The assignment cooldown is written in the same critical section that
//     pops the queue head, which is what makes double-assignment impossible
//     between an assignment and the node's clientConnected message.
//
// The engine never holds transport references; the control layer owns the
// sockets and correlates disconnects to node ids itself.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/pixelstream-dev/matchmaker/internal/bus"
	"github.com/pixelstream-dev/matchmaker/internal/clock"
	"github.com/pixelstream-dev/matchmaker/internal/ident"
	"github.com/pixelstream-dev/matchmaker/internal/logger"
	"github.com/pixelstream-dev/matchmaker/internal/model"
	"github.com/pixelstream-dev/matchmaker/internal/session"
)

// Config carries the engine's timing knobs.
type Config struct {
	// AssignmentCooldown blocks a just-assigned node from being handed to a
	// second client before its clientConnected arrives.
	AssignmentCooldown time.Duration

	// StaleNodeAfter is how long a node may go without a ping before the
	// stale sweep unregisters it.
	StaleNodeAfter time.Duration

	// SweepInterval is the cadence of both the stale-node sweep and the
	// session expiry sweep.
	SweepInterval time.Duration

	// SessionTimeout expires sessions idle longer than this.
	SessionTimeout time.Duration

	// AverageHold is the assumed per-session hold used for queue ETAs.
	AverageHold time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AssignmentCooldown: 10 * time.Second,
		StaleNodeAfter:     120 * time.Second,
		SweepInterval:      60 * time.Second,
		SessionTimeout:     30 * time.Minute,
		AverageHold:        5 * time.Minute,
	}
}

// Stats is a read-only snapshot of engine state.
type Stats struct {
	TotalNodes       int `json:"totalNodes"`
	EligibleNodes    int `json:"eligibleNodes"`
	ConnectedClients int `json:"connectedClients"`
	QueueLength      int `json:"queueLength"`
	SessionCount     int `json:"sessionCount"`
}

// Engine is the matchmaker core. Create with New, wire the sweeps with
// Start, and tear down with Shutdown.
type Engine struct {
	cfg   Config
	clock clock.Clock
	bus   *bus.Bus
	store *session.Store

	mu         sync.Mutex
	nodes      map[string]*model.StreamNode
	order      []string          // node ids in insertion order
	byEndpoint map[string]string // "address:port" -> node id
	queue      waitQueue
	stopped    bool
}

// New creates an engine over the given store and bus.
func New(cfg Config, c clock.Clock, b *bus.Bus, store *session.Store) *Engine {
	return &Engine{
		cfg:        cfg,
		clock:      c,
		bus:        b,
		store:      store,
		nodes:      make(map[string]*model.StreamNode),
		byEndpoint: make(map[string]string),
	}
}

// Start registers the periodic sweeps on the scheduler.
func (e *Engine) Start(s *clock.Scheduler) {
	s.Every(e.cfg.SweepInterval, func() { e.SweepStaleNodes() })
	s.Every(e.cfg.SweepInterval, func() { e.SweepExpiredSessions() })
}

// RegisterNode inserts a node announced by a connect message and returns its
// id. A prior node on the same (address, port) is evicted first.
func (e *Engine) RegisterNode(msg *model.ControlMessage) (string, error) {
	if msg.Type != model.MessageTypeConnect {
		return "", fmt.Errorf("register requires a connect message, got %q", msg.Type)
	}
	if msg.Address == "" {
		return "", fmt.Errorf("connect message missing address")
	}
	if msg.Port <= 0 || msg.Port > 65535 {
		return "", fmt.Errorf("connect message has invalid port %d", msg.Port)
	}

	now := e.clock.Now()

	e.mu.Lock()
	e.checkRunningLocked()
	endpoint := fmt.Sprintf("%s:%d", msg.Address, msg.Port)
	var evicted *model.StreamNode
	if oldID, ok := e.byEndpoint[endpoint]; ok {
		evicted = e.removeNodeLocked(oldID)
	}

	node := &model.StreamNode{
		ID:         ident.NewNodeID(),
		Address:    msg.Address,
		Port:       msg.Port,
		Secure:     msg.HTTPS,
		Ready:      msg.Ready,
		LastPingAt: now,
		Metadata:   msg.Metadata,
	}
	if msg.PlayerConnected {
		node.ConnectedClients = 1
	}
	e.nodes[node.ID] = node
	e.order = append(e.order, node.ID)
	e.byEndpoint[endpoint] = node.ID
	out := *node
	e.mu.Unlock()

	if evicted != nil {
		logger.Engine().Info().
			Str("node_id", evicted.ID).
			Str("endpoint", endpoint).
			Msg("Evicted node re-registering on same endpoint")
		e.bus.Publish(bus.Event{Kind: bus.NodeUnregistered, Node: evicted})
	}

	logger.Engine().Info().
		Str("node_id", out.ID).
		Str("endpoint", endpoint).
		Bool("ready", out.Ready).
		Int("connected_clients", out.ConnectedClients).
		Msg("Node registered")

	e.bus.Publish(bus.Event{Kind: bus.NodeRegistered, Node: &out})
	return out.ID, nil
}

// UpdateNode applies a state-transition message to the node. An unknown node
// id is logged and ignored.
func (e *Engine) UpdateNode(nodeID string, msg *model.ControlMessage) {
	now := e.clock.Now()

	e.mu.Lock()
	node, ok := e.nodes[nodeID]
	if !ok {
		e.mu.Unlock()
		logger.Engine().Warn().
			Str("node_id", nodeID).
			Str("type", msg.Type).
			Msg("Update for unknown node")
		return
	}

	switch msg.Type {
	case model.MessageTypeStreamerConnected:
		node.Ready = true
	case model.MessageTypeStreamerDisconnected:
		node.Ready = false
	case model.MessageTypeClientConnected:
		node.ConnectedClients++
	case model.MessageTypeClientDisconnected:
		if node.ConnectedClients > 0 {
			node.ConnectedClients--
		}
		if node.ConnectedClients == 0 {
			// Node freed up; make it immediately eligible again.
			node.CooldownUntil = time.Time{}
		}
	case model.MessageTypePing:
		node.LastPingAt = now
	}
	out := *node
	e.mu.Unlock()

	e.bus.Publish(bus.Event{Kind: bus.NodeUpdated, Node: &out})
}

// UnregisterNode removes the node. Idempotent: unregistering an unknown id
// is a no-op.
func (e *Engine) UnregisterNode(nodeID string) bool {
	e.mu.Lock()
	removed := e.removeNodeLocked(nodeID)
	e.mu.Unlock()

	if removed == nil {
		return false
	}

	logger.Engine().Info().
		Str("node_id", removed.ID).
		Str("endpoint", removed.Endpoint()).
		Msg("Node unregistered")

	e.bus.Publish(bus.Event{Kind: bus.NodeUnregistered, Node: removed})
	return true
}

// checkRunningLocked guards mutating entry points against use after
// Shutdown, which is a programmer error rather than an input error.
func (e *Engine) checkRunningLocked() {
	if e.stopped {
		panic("engine: operation called after shutdown")
	}
}

// removeNodeLocked detaches the node from all indexes and returns a copy.
// Caller holds e.mu.
func (e *Engine) removeNodeLocked(nodeID string) *model.StreamNode {
	node, ok := e.nodes[nodeID]
	if !ok {
		return nil
	}
	delete(e.nodes, nodeID)
	delete(e.byEndpoint, fmt.Sprintf("%s:%d", node.Address, node.Port))
	for i, id := range e.order {
		if id == nodeID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	out := *node
	return &out
}

// AcquireNode returns the first eligible node in insertion order and starts
// its assignment cooldown. Returns false when no node is eligible.
func (e *Engine) AcquireNode() (model.StreamNode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acquireNodeLocked()
}

// acquireNodeLocked holds the eligibility scan and the cooldown write in one
// critical section. Caller holds e.mu.
func (e *Engine) acquireNodeLocked() (model.StreamNode, bool) {
	now := e.clock.Now()
	for _, id := range e.order {
		node := e.nodes[id]
		if node.EligibleAt(now) {
			node.CooldownUntil = now.Add(e.cfg.AssignmentCooldown)
			return *node, true
		}
	}
	return model.StreamNode{}, false
}

// Enqueue creates a queued session and inserts it into the wait queue per
// the priority rule. Returns a copy of the session.
func (e *Engine) Enqueue(clientID string, priority int) model.ClientSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkRunningLocked()

	sess := e.store.Create(clientID, priority)
	e.queue.insert(sess.ID, sess.Priority)

	logger.Engine().Info().
		Str("session_id", sess.ID).
		Int("priority", sess.Priority).
		Int("queue_length", e.queue.len()).
		Msg("Session enqueued")

	e.bus.Publish(bus.Event{Kind: bus.SessionQueued, Session: &sess})
	e.bus.Publish(bus.Event{Kind: bus.QueueUpdated, QueueLength: e.queue.len()})
	return sess
}

// QueuePosition reports the session's 1-based place in line, the total queue
// length, and an ETA derived from the configured average hold. Returns false
// for a session that is not queued.
func (e *Engine) QueuePosition(sessionID string) (model.QueuePosition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.queue.position(sessionID)
	if pos == 0 {
		return model.QueuePosition{}, false
	}
	return model.QueuePosition{
		Position:     pos,
		TotalInQueue: e.queue.len(),
		ETAMs:        int64(pos) * e.cfg.AverageHold.Milliseconds(),
	}, true
}

// DrainQueue matches waiting sessions to eligible nodes until either runs
// out. Returns whether at least one assignment happened.
func (e *Engine) DrainQueue() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	assigned := false
	for {
		head, ok := e.queue.peekHead()
		if !ok {
			break
		}

		// Drop queue entries whose session no longer exists before spending
		// a node cooldown on them.
		if _, exists := e.store.GetByID(head.sessionID); !exists {
			e.queue.popHead()
			continue
		}

		node, ok := e.acquireNodeLocked()
		if !ok {
			break
		}

		e.queue.popHead()
		sess, _ := e.store.UpdateStatus(head.sessionID, model.SessionConnected, node.ID)

		logger.Engine().Info().
			Str("session_id", sess.ID).
			Str("node_id", node.ID).
			Str("endpoint", node.Endpoint()).
			Msg("Session assigned to node")

		e.bus.Publish(bus.Event{Kind: bus.SessionAssigned, Session: &sess, Node: &node})
		assigned = true
	}

	if assigned {
		e.bus.Publish(bus.Event{Kind: bus.QueueUpdated, QueueLength: e.queue.len()})
	}
	return assigned
}

// RemoveSession drops the session from the queue and the store. Idempotent.
func (e *Engine) RemoveSession(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	wasQueued := e.queue.remove(sessionID)
	_, existed := e.store.Remove(sessionID, "removed")

	if wasQueued {
		e.bus.Publish(bus.Event{Kind: bus.QueueUpdated, QueueLength: e.queue.len()})
	}
	return existed || wasQueued
}

// SweepStaleNodes unregisters nodes that have not pinged within the stale
// window. Returns the number removed.
func (e *Engine) SweepStaleNodes() int {
	now := e.clock.Now()

	e.mu.Lock()
	var stale []*model.StreamNode
	for _, id := range append([]string(nil), e.order...) {
		node := e.nodes[id]
		if now.Sub(node.LastPingAt) > e.cfg.StaleNodeAfter {
			stale = append(stale, e.removeNodeLocked(id))
		}
	}
	e.mu.Unlock()

	for _, node := range stale {
		logger.Engine().Warn().
			Str("node_id", node.ID).
			Str("endpoint", node.Endpoint()).
			Time("last_ping", node.LastPingAt).
			Msg("Sweeping stale node")
		e.bus.Publish(bus.Event{Kind: bus.NodeUnregistered, Node: node})
	}
	return len(stale)
}

// SweepExpiredSessions removes sessions idle past the session timeout and
// publishes a sweepCompleted with the count.
func (e *Engine) SweepExpiredSessions() int {
	expired := e.store.ExpiredSnapshot(e.cfg.SessionTimeout)

	e.mu.Lock()
	removed := 0
	for _, sess := range expired {
		wasQueued := e.queue.remove(sess.ID)
		if _, ok := e.store.Remove(sess.ID, "expired"); ok {
			removed++
		}
		if wasQueued {
			e.bus.Publish(bus.Event{Kind: bus.QueueUpdated, QueueLength: e.queue.len()})
		}
	}
	e.mu.Unlock()

	if removed > 0 {
		logger.Engine().Info().Int("removed", removed).Msg("Session sweep completed")
	}
	e.bus.Publish(bus.Event{Kind: bus.SweepCompleted, Removed: removed})
	return removed
}

// Stats returns a read-only snapshot of engine state.
func (e *Engine) Stats() Stats {
	now := e.clock.Now()

	e.mu.Lock()
	st := Stats{
		TotalNodes:  len(e.nodes),
		QueueLength: e.queue.len(),
	}
	for _, node := range e.nodes {
		if node.EligibleAt(now) {
			st.EligibleNodes++
		}
		st.ConnectedClients += node.ConnectedClients
	}
	e.mu.Unlock()

	st.SessionCount = e.store.Stats().Total
	return st
}

// NodeSnapshot returns copies of all nodes in insertion order.
func (e *Engine) NodeSnapshot() []model.StreamNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.StreamNode, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.nodes[id])
	}
	return out
}

// GetNode returns a copy of the node, or false if it does not exist.
func (e *Engine) GetNode(nodeID string) (model.StreamNode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	node, ok := e.nodes[nodeID]
	if !ok {
		return model.StreamNode{}, false
	}
	return *node, true
}

// QueuedSessionIDs returns the queued session ids in service order.
func (e *Engine) QueuedSessionIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.ids()
}

// Shutdown drops all nodes, queued entries, and sessions. Called once the
// listeners are closed and the timers stopped; publishes nothing beyond the
// final serverShutdown notice emitted by the caller.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.nodes = make(map[string]*model.StreamNode)
	e.byEndpoint = make(map[string]string)
	e.order = nil
	e.queue = waitQueue{}
}
