// Package session implements the canonical client-session store.
//
// The store owns the session records; the engine's wait queue references
// them by id. All mutations are serialized behind a single mutex and publish
// their notifications while the mutation is still the freshest state, so
// subscribers always observe a consistent post-mutation snapshot.
package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/pixelstream-dev/matchmaker/internal/bus"
	"github.com/pixelstream-dev/matchmaker/internal/clock"
	"github.com/pixelstream-dev/matchmaker/internal/ident"
	"github.com/pixelstream-dev/matchmaker/internal/logger"
	"github.com/pixelstream-dev/matchmaker/internal/model"
)

// sanitizer strips markup from caller-supplied client labels. Strict policy:
// everything but plain text is dropped.
var sanitizer = bluemonday.StrictPolicy()

// SanitizeClientID normalizes a caller-supplied client label: angle brackets
// are removed, surrounding whitespace trimmed, and the remaining text runs
// through the strict policy so nothing markup-shaped survives.
func SanitizeClientID(clientID string) string {
	s := strings.ReplaceAll(clientID, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	s = strings.TrimSpace(s)
	return sanitizer.Sanitize(s)
}

// Stats is a read-only snapshot of store contents.
type Stats struct {
	Total        int                         `json:"total"`
	ByStatus     map[model.SessionStatus]int `json:"byStatus"`
	QueuedCount  int                         `json:"queuedCount"`
	ConnectedNow int                         `json:"connectedNow"`
}

// Store holds all live client sessions.
type Store struct {
	mu       sync.Mutex
	clock    clock.Clock
	bus      *bus.Bus
	sessions map[string]*model.ClientSession
}

// NewStore creates an empty session store publishing on b.
func NewStore(c clock.Clock, b *bus.Bus) *Store {
	return &Store{
		clock:    c,
		bus:      b,
		sessions: make(map[string]*model.ClientSession),
	}
}

// Create inserts a new queued session and returns a copy of it.
// The clientID is sanitized before storage.
func (s *Store) Create(clientID string, priority int) model.ClientSession {
	now := s.clock.Now()

	s.mu.Lock()
	sess := &model.ClientSession{
		ID:             ident.NewSessionID(now),
		ClientID:       SanitizeClientID(clientID),
		CreatedAt:      now,
		LastActivityAt: now,
		Status:         model.SessionQueued,
		Priority:       priority,
	}
	s.sessions[sess.ID] = sess
	out := *sess
	s.mu.Unlock()

	logger.Session().Debug().
		Str("session_id", out.ID).
		Str("client_id", out.ClientID).
		Int("priority", out.Priority).
		Msg("Session created")

	s.bus.Publish(bus.Event{Kind: bus.SessionCreated, Session: &out})
	return out
}

// GetByID returns a copy of the session, or false if it does not exist.
func (s *Store) GetByID(id string) (model.ClientSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return model.ClientSession{}, false
	}
	return *sess, true
}

// UpdateActivity bumps the session's activity timestamp. Returns false for
// an unknown session.
func (s *Store) UpdateActivity(id string) bool {
	now := s.clock.Now()

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		sess.LastActivityAt = now
	}
	s.mu.Unlock()

	if !ok {
		logger.Session().Warn().Str("session_id", id).Msg("Activity update for unknown session")
	}
	return ok
}

// UpdateStatus transitions the session's status and optionally binds it to a
// node (connected) or clears the binding. Activity is bumped alongside.
// Returns a copy of the updated session and whether it existed.
func (s *Store) UpdateStatus(id string, status model.SessionStatus, nodeID string) (model.ClientSession, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		logger.Session().Warn().Str("session_id", id).Msg("Status update for unknown session")
		return model.ClientSession{}, false
	}
	prev := sess.Status
	sess.Status = status
	sess.NodeID = nodeID
	sess.LastActivityAt = now
	out := *sess
	s.mu.Unlock()

	s.bus.Publish(bus.Event{Kind: bus.SessionStatusChanged, Session: &out, PrevStatus: prev})
	return out, true
}

// Remove deletes the session. Idempotent: removing an unknown id is a no-op
// and publishes nothing. The reason tags the removal path ("removed",
// "expired").
func (s *Store) Remove(id string, reason string) (model.ClientSession, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return model.ClientSession{}, false
	}

	out := *sess
	s.bus.Publish(bus.Event{Kind: bus.SessionRemoved, Session: &out, Reason: reason})
	return out, true
}

// ByStatus returns copies of all sessions in the given status.
func (s *Store) ByStatus(status model.SessionStatus) []model.ClientSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ClientSession
	for _, sess := range s.sessions {
		if sess.Status == status {
			out = append(out, *sess)
		}
	}
	sortByCreation(out)
	return out
}

// ByClient returns copies of all sessions carrying the given client label.
func (s *Store) ByClient(clientID string) []model.ClientSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ClientSession
	for _, sess := range s.sessions {
		if sess.ClientID == clientID {
			out = append(out, *sess)
		}
	}
	sortByCreation(out)
	return out
}

// ExpiredSnapshot returns copies of sessions idle longer than timeout.
func (s *Store) ExpiredSnapshot(timeout time.Duration) []model.ClientSession {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ClientSession
	for _, sess := range s.sessions {
		if now.Sub(sess.LastActivityAt) > timeout {
			out = append(out, *sess)
		}
	}
	sortByCreation(out)
	return out
}

// Stats returns a read-only snapshot of store counts.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Total:    len(s.sessions),
		ByStatus: make(map[model.SessionStatus]int),
	}
	for _, sess := range s.sessions {
		st.ByStatus[sess.Status]++
	}
	st.QueuedCount = st.ByStatus[model.SessionQueued]
	st.ConnectedNow = st.ByStatus[model.SessionConnected]
	return st
}

func sortByCreation(sessions []model.ClientSession) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
