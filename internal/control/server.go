// Package control implements the stream-node control protocol server.
//
// Connection Lifecycle:
//  1. Node dials the matchmaker's control port (one node per connection)
//  2. The first payload must be a connect message; the server registers the
//     node and binds the connection handle to the node id
//  3. Subsequent payloads drive node state transitions in the engine
//  4. Malformed JSON, an unknown message kind, or any message before connect
//     closes the connection
//  5. On close or error the bound node is unregistered
//
// Framing: each received TCP payload is a single UTF-8 JSON object. There is
// no length prefix and no message spans payloads.
//
// The engine never sees the sockets. The server keeps the only mapping from
// connection handle to node id, so transport objects stay at this layer.
package control

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/pixelstream-dev/matchmaker/internal/engine"
	"github.com/pixelstream-dev/matchmaker/internal/logger"
	"github.com/pixelstream-dev/matchmaker/internal/model"
)

// readBufferSize bounds a single control payload.
const readBufferSize = 64 * 1024

// Server accepts and drives node control connections.
type Server struct {
	engine *engine.Engine

	nextConnID atomic.Uint64

	mu       sync.Mutex
	listener net.Listener
	conns    map[uint64]net.Conn
	bindings map[uint64]string // connection handle -> node id
	closed   bool

	wg sync.WaitGroup
}

// NewServer creates a control server over the engine.
func NewServer(e *engine.Engine) *Server {
	return &Server{
		engine:   e,
		conns:    make(map[uint64]net.Conn),
		bindings: make(map[uint64]string),
	}
}

// Start binds the listen address and begins accepting connections in the
// background. Returns an error only for the bind itself.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logger.Control().Info().Str("addr", ln.Addr().String()).Msg("Control server listening")

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Control().Warn().Err(err).Msg("Accept failed")
			continue
		}

		id := s.nextConnID.Add(1)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[id] = conn
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(id, conn)
		}()
	}
}

// HandleConn drives a single node connection to completion. Exposed for
// tests that feed connections directly (net.Pipe) without a listener.
func (s *Server) HandleConn(conn net.Conn) {
	id := s.nextConnID.Add(1)
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()
	s.handleConn(id, conn)
}

// handleConn reads control payloads until the connection dies or the
// protocol is violated.
func (s *Server) handleConn(connID uint64, conn net.Conn) {
	log := logger.Control().With().
		Uint64("conn_id", connID).
		Str("remote", remoteAddr(conn)).
		Logger()

	log.Info().Msg("Node connection opened")

	defer func() {
		conn.Close()
		nodeID := s.release(connID)
		if nodeID != "" {
			s.engine.UnregisterNode(nodeID)
			s.engine.DrainQueue()
		}
		log.Info().Str("node_id", nodeID).Msg("Node connection closed")
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}

		msg, err := model.DecodeControlMessage(buf[:n])
		if err != nil {
			log.Warn().Err(err).Msg("Malformed control payload, closing connection")
			return
		}
		if !model.KnownMessageType(msg.Type) {
			log.Warn().Str("type", msg.Type).Msg("Unknown message type, closing connection")
			return
		}

		if !s.dispatch(connID, msg, &log) {
			return
		}
	}
}

// dispatch applies one decoded message. Returns false when the connection
// must be closed.
func (s *Server) dispatch(connID uint64, msg *model.ControlMessage, log *zerolog.Logger) bool {
	nodeID := s.boundNode(connID)

	if msg.Type == model.MessageTypeConnect {
		// Re-sending connect on a bound connection replaces the prior
		// registration, same as reconnecting on the same endpoint.
		newID, err := s.engine.RegisterNode(msg)
		if err != nil {
			log.Warn().Err(err).Msg("Rejected connect message, closing connection")
			return false
		}
		s.bind(connID, newID)
		if nodeID != "" && nodeID != newID {
			s.engine.UnregisterNode(nodeID)
		}
		s.engine.DrainQueue()
		return true
	}

	if nodeID == "" {
		log.Warn().Str("type", msg.Type).Msg("Message before connect, closing connection")
		return false
	}

	s.engine.UpdateNode(nodeID, msg)

	// Transitions that can free a node feed waiting sessions immediately.
	switch msg.Type {
	case model.MessageTypeStreamerConnected, model.MessageTypeClientDisconnected:
		s.engine.DrainQueue()
	}
	return true
}

// bind records the connection handle -> node id mapping.
func (s *Server) bind(connID uint64, nodeID string) {
	s.mu.Lock()
	s.bindings[connID] = nodeID
	s.mu.Unlock()
}

// boundNode returns the node bound to the connection, or "".
func (s *Server) boundNode(connID uint64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindings[connID]
}

// release drops the connection's tracking state and returns the node that
// was bound to it, if any.
func (s *Server) release(connID uint64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodeID := s.bindings[connID]
	delete(s.bindings, connID)
	delete(s.conns, connID)
	return nodeID
}

// CloseNode force-closes the control connection bound to the node. Used by
// the admin restart endpoint; the node is expected to reconnect. Returns
// false when no connection is bound to the node.
func (s *Server) CloseNode(nodeID string) bool {
	s.mu.Lock()
	var conn net.Conn
	for id, bound := range s.bindings {
		if bound == nodeID {
			conn = s.conns[id]
			break
		}
	}
	s.mu.Unlock()

	if conn == nil {
		return false
	}
	// The connection's reader observes the close and unregisters the node.
	conn.Close()
	return true
}

// Stop closes the listener and every open connection, then waits for all
// connection handlers to exit.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
