package control

import (
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelstream-dev/matchmaker/internal/bus"
	"github.com/pixelstream-dev/matchmaker/internal/engine"
	"github.com/pixelstream-dev/matchmaker/internal/session"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	b := bus.New()
	store := session.NewStore(fc, b)
	eng := engine.New(engine.DefaultConfig(), fc, b, store)
	return NewServer(eng), eng
}

// dialPipe wires a fake node connection into the server.
func dialPipe(t *testing.T, srv *Server) (net.Conn, chan struct{}) {
	t.Helper()
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		srv.HandleConn(server)
		close(done)
	}()
	t.Cleanup(func() { client.Close() })
	return client, done
}

func write(t *testing.T, conn net.Conn, payload string) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err := conn.Write([]byte(payload))
	require.NoError(t, err)
}

func waitForNodes(t *testing.T, eng *engine.Engine, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return eng.Stats().TotalNodes == want
	}, time.Second, 5*time.Millisecond)
}

func TestConnectRegistersNode(t *testing.T) {
	srv, eng := newTestServer(t)
	conn, _ := dialPipe(t, srv)

	write(t, conn, `{"type":"connect","address":"10.0.0.1","port":8080,"ready":true}`)
	waitForNodes(t, eng, 1)

	stats := eng.Stats()
	assert.Equal(t, 1, stats.EligibleNodes)
}

func TestDisconnectUnregistersNode(t *testing.T) {
	srv, eng := newTestServer(t)
	conn, done := dialPipe(t, srv)

	write(t, conn, `{"type":"connect","address":"10.0.0.1","port":8080,"ready":true}`)
	waitForNodes(t, eng, 1)

	conn.Close()
	<-done
	assert.Equal(t, 0, eng.Stats().TotalNodes)
}

func TestMalformedJSONClosesConnection(t *testing.T) {
	srv, eng := newTestServer(t)
	conn, done := dialPipe(t, srv)

	write(t, conn, `{"type":"connect","address":`)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection was not closed on malformed payload")
	}
	assert.Equal(t, 0, eng.Stats().TotalNodes)
}

func TestUnknownMessageTypeClosesConnection(t *testing.T) {
	srv, eng := newTestServer(t)
	conn, done := dialPipe(t, srv)

	write(t, conn, `{"type":"connect","address":"10.0.0.1","port":8080,"ready":true}`)
	waitForNodes(t, eng, 1)

	write(t, conn, `{"type":"teleport"}`)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection was not closed on unknown message type")
	}

	// The bound node goes with the connection.
	assert.Equal(t, 0, eng.Stats().TotalNodes)
}

func TestMessageBeforeConnectClosesConnection(t *testing.T) {
	srv, eng := newTestServer(t)
	conn, done := dialPipe(t, srv)

	write(t, conn, `{"type":"ping"}`)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection was not closed on pre-connect message")
	}
	assert.Equal(t, 0, eng.Stats().TotalNodes)
}

func TestStateTransitionsFlowThroughConnection(t *testing.T) {
	srv, eng := newTestServer(t)
	conn, _ := dialPipe(t, srv)

	write(t, conn, `{"type":"connect","address":"10.0.0.1","port":8080,"ready":false}`)
	waitForNodes(t, eng, 1)
	assert.Equal(t, 0, eng.Stats().EligibleNodes)

	write(t, conn, `{"type":"streamerConnected"}`)
	require.Eventually(t, func() bool {
		return eng.Stats().EligibleNodes == 1
	}, time.Second, 5*time.Millisecond)

	write(t, conn, `{"type":"clientConnected"}`)
	require.Eventually(t, func() bool {
		return eng.Stats().ConnectedClients == 1
	}, time.Second, 5*time.Millisecond)

	write(t, conn, `{"type":"clientDisconnected"}`)
	require.Eventually(t, func() bool {
		return eng.Stats().ConnectedClients == 0
	}, time.Second, 5*time.Millisecond)
}

func TestConnectDrainsWaitingQueue(t *testing.T) {
	srv, eng := newTestServer(t)

	sess := eng.Enqueue("waiting", 0)
	require.False(t, eng.DrainQueue())

	conn, _ := dialPipe(t, srv)
	write(t, conn, `{"type":"connect","address":"10.0.0.1","port":8080,"ready":true}`)

	require.Eventually(t, func() bool {
		return eng.Stats().QueueLength == 0
	}, time.Second, 5*time.Millisecond)

	_, ok := eng.QueuePosition(sess.ID)
	assert.False(t, ok)
}

func TestCloseNodeDropsConnection(t *testing.T) {
	srv, eng := newTestServer(t)
	conn, done := dialPipe(t, srv)

	write(t, conn, `{"type":"connect","address":"10.0.0.1","port":8080,"ready":true}`)
	waitForNodes(t, eng, 1)

	nodes := eng.NodeSnapshot()
	require.Len(t, nodes, 1)

	assert.True(t, srv.CloseNode(nodes[0].ID))
	<-done
	assert.Equal(t, 0, eng.Stats().TotalNodes)

	assert.False(t, srv.CloseNode(nodes[0].ID))
}

func TestServerStartAndStop(t *testing.T) {
	srv, eng := newTestServer(t)
	require.NoError(t, srv.Start("127.0.0.1:0"))

	addr := func() string {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.listener.Addr().String()
	}()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	write(t, conn, `{"type":"connect","address":"10.0.0.1","port":8080,"ready":true}`)
	waitForNodes(t, eng, 1)

	srv.Stop()
	assert.Equal(t, 0, eng.Stats().TotalNodes)
}
