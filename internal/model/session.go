package model

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a client session.
type SessionStatus string

const (
	// SessionQueued means the session is waiting in the priority queue.
	SessionQueued SessionStatus = "queued"

	// SessionConnected means the session has been matched to a node.
	SessionConnected SessionStatus = "connected"

	// SessionDisconnected means the client went away after being matched.
	SessionDisconnected SessionStatus = "disconnected"

	// SessionExpired means the session idled past the session timeout.
	SessionExpired SessionStatus = "expired"
)

// ClientSession represents a client's intent to be matched to a stream node.
//
// Invariants:
//   - a Queued session appears exactly once in the wait queue
//   - a Connected session has NodeID bound to a live node
//   - an Expired session is neither queued nor bound
type ClientSession struct {
	// ID is the opaque session identifier (session_<ts>_<suffix>).
	ID string `json:"id"`

	// ClientID is a caller-supplied label, sanitized on intake. Optional.
	ClientID string `json:"clientId,omitempty"`

	// NodeID is the node this session was matched to, if any.
	NodeID string `json:"nodeId,omitempty"`

	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`

	Status SessionStatus `json:"status"`

	// Priority orders the wait queue; higher value is served earlier.
	Priority int `json:"priority"`
}

// IdleFor returns how long the session has been without activity.
func (s *ClientSession) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// QueuePosition describes a queued session's place in line.
type QueuePosition struct {
	// Position is 1-based.
	Position     int   `json:"position"`
	TotalInQueue int   `json:"totalInQueue"`
	ETAMs        int64 `json:"etaMs"`
}

func joinHostPort(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
