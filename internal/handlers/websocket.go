// This file implements the client WebSocket surface.
//
// Message flow:
//  1. Browser establishes the WebSocket and receives a connected frame
//  2. Client sends joinQueue / getQueueStatus / updateActivity / ping
//  3. Engine notifications (assignment, expiry, queue movement) are pushed
//     as serverAssigned / sessionExpired / queueUpdate frames
//  4. On shutdown every client receives a serverShutdown frame
//
// Concurrency:
//   - Hub.Run() owns the client registry and all notification routing
//   - Each client has readPump and writePump goroutines
//   - Bus callbacks only enqueue onto the hub's event channel; the engine is
//     re-queried from the hub goroutine, never from inside a publish (a
//     publish may run under the engine lock)
package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pixelstream-dev/matchmaker/internal/bus"
	"github.com/pixelstream-dev/matchmaker/internal/clock"
	"github.com/pixelstream-dev/matchmaker/internal/engine"
	"github.com/pixelstream-dev/matchmaker/internal/logger"
	"github.com/pixelstream-dev/matchmaker/internal/session"
)

const (
	// writeWait is the deadline for a single outbound write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may go silent before the read fails.
	pongWait = 60 * time.Second

	// pingPeriod is the keepalive cadence. Must be below pongWait.
	pingPeriod = 30 * time.Second

	// sendBufferSize bounds a client's outbound queue. A client that falls
	// this far behind is disconnected rather than allowed to block the hub.
	sendBufferSize = 256
)

// Events the server emits over the WebSocket.
const (
	WSEventConnected       = "connected"
	WSEventQueueJoined     = "queueJoined"
	WSEventQueueStatus     = "queueStatus"
	WSEventQueueUpdate     = "queueUpdate"
	WSEventServerAssigned  = "serverAssigned"
	WSEventActivityUpdated = "activityUpdated"
	WSEventSessionExpired  = "sessionExpired"
	WSEventPong            = "pong"
	WSEventError           = "error"
	WSEventServerShutdown  = "serverShutdown"
)

// Events the server accepts from clients.
const (
	WSActionJoinQueue      = "joinQueue"
	WSActionGetQueueStatus = "getQueueStatus"
	WSActionUpdateActivity = "updateActivity"
	WSActionPing           = "ping"
)

// WSFrame is the envelope for every outbound WebSocket message.
type WSFrame struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsRequest is the envelope for every inbound WebSocket message.
type wsRequest struct {
	Type      string `json:"type"`
	ClientID  string `json:"clientId,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// WSClient represents an individual browser connection.
type WSClient struct {
	hub  *WSHub
	conn *websocket.Conn
	send chan []byte
	id   string

	// sessions are the session ids this connection created. Guarded by the
	// hub goroutine, which is the only mutator after registration.
	sessions map[string]bool
}

// WSHub maintains the active client connections and routes engine
// notifications to the sessions that care.
type WSHub struct {
	engine *engine.Engine
	store  *session.Store
	clock  clock.Clock

	upgrader websocket.Upgrader

	register   chan *WSClient
	unregister chan *WSClient
	bind       chan wsBinding
	events     chan bus.Event

	mu        sync.RWMutex
	clients   map[*WSClient]bool
	bySession map[string]*WSClient

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// wsBinding attaches a session id to the client that created it.
type wsBinding struct {
	client    *WSClient
	sessionID string
}

// NewWSHub creates the hub and subscribes it to the notification bus.
func NewWSHub(e *engine.Engine, store *session.Store, c clock.Clock, b *bus.Bus) *WSHub {
	h := &WSHub{
		engine: e,
		store:  store,
		clock:  c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Clients connect from arbitrary origins; assignment grants
				// nothing beyond what the public REST surface already does.
				return true
			},
		},
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		bind:       make(chan wsBinding),
		events:     make(chan bus.Event, 256),
		clients:    make(map[*WSClient]bool),
		bySession:  make(map[string]*WSClient),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}

	b.SubscribeKinds(h.onBusEvent, bus.SessionAssigned, bus.SessionRemoved, bus.QueueUpdated)
	return h
}

// onBusEvent runs inside Publish, possibly under the engine lock. It only
// hands the event to the hub goroutine; a full channel drops the event
// rather than blocking the engine.
func (h *WSHub) onBusEvent(ev bus.Event) {
	select {
	case h.events <- ev:
	default:
		logger.WebSocket().Warn().Str("event", string(ev.Kind)).Msg("Event buffer full, dropping notification")
	}
}

// Run processes registrations and notifications until Shutdown.
func (h *WSHub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logger.WebSocket().Info().Str("client_id", client.id).Int("total", total).Msg("WebSocket client registered")

		case client := <-h.unregister:
			h.dropClient(client)

		case binding := <-h.bind:
			h.mu.Lock()
			binding.client.sessions[binding.sessionID] = true
			h.bySession[binding.sessionID] = binding.client
			h.mu.Unlock()

		case ev := <-h.events:
			h.handleEvent(ev)

		case <-h.stopCh:
			h.closeAll()
			return
		}
	}
}

func (h *WSHub) dropClient(client *WSClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		for sessionID := range client.sessions {
			delete(h.bySession, sessionID)
		}
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	logger.WebSocket().Info().Str("client_id", client.id).Int("total", total).Msg("WebSocket client unregistered")
}

// handleEvent translates an engine notification into client pushes. Runs on
// the hub goroutine, so querying the engine here is safe.
func (h *WSHub) handleEvent(ev bus.Event) {
	switch ev.Kind {
	case bus.SessionAssigned:
		h.mu.RLock()
		client := h.bySession[ev.Session.ID]
		h.mu.RUnlock()
		if client == nil {
			return
		}
		client.push(h.frame(WSEventServerAssigned, gin.H{
			"sessionId":        ev.Session.ID,
			"signallingServer": ev.Node.Endpoint(),
			"protocol":         wsProtocol(ev.Node.Secure),
			"serverId":         ev.Node.ID,
		}))

	case bus.SessionRemoved:
		h.mu.Lock()
		client := h.bySession[ev.Session.ID]
		if client != nil {
			delete(client.sessions, ev.Session.ID)
		}
		delete(h.bySession, ev.Session.ID)
		h.mu.Unlock()
		if client != nil && ev.Reason == "expired" {
			client.push(h.frame(WSEventSessionExpired, gin.H{"sessionId": ev.Session.ID}))
		}

	case bus.QueueUpdated:
		// Re-query positions for every bound session still in the queue.
		h.mu.RLock()
		bindings := make(map[string]*WSClient, len(h.bySession))
		for sessionID, client := range h.bySession {
			bindings[sessionID] = client
		}
		h.mu.RUnlock()

		for sessionID, client := range bindings {
			pos, ok := h.engine.QueuePosition(sessionID)
			if !ok {
				continue
			}
			client.push(h.frame(WSEventQueueUpdate, gin.H{
				"sessionId":    sessionID,
				"position":     pos.Position,
				"totalInQueue": pos.TotalInQueue,
				"etaMs":        pos.ETAMs,
			}))
		}
	}
}

func (h *WSHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	shutdown := h.frame(WSEventServerShutdown, gin.H{"message": "Matchmaker shutting down"})
	for client := range h.clients {
		select {
		case client.send <- shutdown:
		default:
		}
		close(client.send)
		delete(h.clients, client)
	}
	h.bySession = make(map[string]*WSClient)
}

// Shutdown notifies every client and stops the hub goroutine.
func (h *WSHub) Shutdown() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	<-h.done
}

// Handle upgrades the HTTP request and runs the connection's pumps.
func (h *WSHub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WebSocket().Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSClient{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		id:       uuid.New().String(),
		sessions: make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.stopCh:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	client.push(h.frame(WSEventConnected, gin.H{"clientId": client.id}))
}

func (h *WSHub) frame(eventType string, data interface{}) []byte {
	payload, err := json.Marshal(WSFrame{
		Type:      eventType,
		Data:      data,
		Timestamp: h.clock.Now().UnixMilli(),
	})
	if err != nil {
		logger.WebSocket().Error().Err(err).Str("type", eventType).Msg("Failed to encode frame")
		return []byte(`{"type":"error","error":"internal encoding failure"}`)
	}
	return payload
}

func (h *WSHub) errorFrame(msg string) []byte {
	payload, _ := json.Marshal(WSFrame{
		Type:      WSEventError,
		Error:     msg,
		Timestamp: h.clock.Now().UnixMilli(),
	})
	return payload
}

// push queues a frame for the client, disconnecting it when the buffer is
// full rather than blocking the caller.
func (c *WSClient) push(frame []byte) {
	defer func() {
		// The send channel closes when the hub drops the client; a late push
		// from a racing goroutine must not take the process down.
		_ = recover()
	}()
	select {
	case c.send <- frame:
	default:
		logger.WebSocket().Warn().Str("client_id", c.id).Msg("Client send buffer full, dropping connection")
		c.conn.Close()
	}
}

// readPump pumps messages from the websocket connection into the engine.
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopCh:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.WebSocket().Warn().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.push(c.hub.errorFrame("invalid message"))
			continue
		}
		c.dispatch(&req)
	}
}

// dispatch applies one client request.
func (c *WSClient) dispatch(req *wsRequest) {
	h := c.hub
	switch req.Type {
	case WSActionJoinQueue:
		sess := h.engine.Enqueue(req.ClientID, req.Priority)
		select {
		case h.bind <- wsBinding{client: c, sessionID: sess.ID}:
		case <-h.stopCh:
			return
		}

		pos, _ := h.engine.QueuePosition(sess.ID)
		c.push(h.frame(WSEventQueueJoined, gin.H{
			"sessionId":    sess.ID,
			"position":     pos.Position,
			"totalInQueue": pos.TotalInQueue,
			"etaMs":        pos.ETAMs,
		}))

		// A free node serves the new session immediately; the resulting
		// serverAssigned frame follows the queueJoined above.
		h.engine.DrainQueue()

	case WSActionGetQueueStatus:
		pos, ok := h.engine.QueuePosition(req.SessionID)
		if !ok {
			c.push(h.errorFrame("session not found in queue"))
			return
		}
		c.push(h.frame(WSEventQueueStatus, gin.H{
			"sessionId":    req.SessionID,
			"position":     pos.Position,
			"totalInQueue": pos.TotalInQueue,
			"etaMs":        pos.ETAMs,
		}))

	case WSActionUpdateActivity:
		if !h.store.UpdateActivity(req.SessionID) {
			c.push(h.errorFrame("session not found"))
			return
		}
		c.push(h.frame(WSEventActivityUpdated, gin.H{"sessionId": req.SessionID}))

	case WSActionPing:
		c.push(h.frame(WSEventPong, nil))

	default:
		c.push(h.errorFrame("unknown message type"))
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
