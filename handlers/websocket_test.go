package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/4cecoder/arena/client"
	"github.com/4cecoder/arena/models"
	"github.com/4cecoder/arena/protocol"
	"github.com/4cecoder/arena/relay"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frame = time.Second / 60

func newTestServer(t *testing.T) (*httptest.Server, *relay.Relay) {
	t.Helper()
	rl := relay.New()
	srv := httptest.NewServer(NewRouter(rl, RouterConfig{
		Connection:     DefaultConnectionConfig(),
		AllowedOrigins: []string{"*"},
		StaticDir:      t.TempDir(),
	}))
	t.Cleanup(srv.Close)
	return srv, rl
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func startClient(t *testing.T, srv *httptest.Server, subprotocol string) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig(wsURL(srv))
	cfg.Subprotocol = subprotocol
	c := client.New(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		c.Close()
		<-done
	})

	require.Eventually(t, func() bool {
		c.Tick(frame)
		return c.Synced() && c.ID() != ""
	}, 5*time.Second, 10*time.Millisecond)
	return c
}

func TestTwoClientsSeeEachOtherMove(t *testing.T) {
	srv, rl := newTestServer(t)

	a := startClient(t, srv, protocol.JSONSubprotocol)
	b := startClient(t, srv, protocol.CBORSubprotocol)

	first := models.Transform{X: 1, Y: 0, Z: 1}
	a.SetLocalTransform(first)
	require.Eventually(t, func() bool {
		b.Tick(frame)
		m, ok := b.Mirror(a.ID())
		return ok && m.Authoritative == first
	}, 5*time.Second, 10*time.Millisecond)

	second := models.Transform{X: 2, Y: 0, Z: 1}
	a.SetLocalTransform(second)
	require.Eventually(t, func() bool {
		b.Tick(frame)
		m, ok := b.Mirror(a.ID())
		return ok && m.Authoritative == second && m.Render.Distance(second) < 1e-6
	}, 5*time.Second, 10*time.Millisecond)

	// A sees B too, but never itself.
	require.Eventually(t, func() bool {
		a.Tick(frame)
		_, ok := a.Mirror(b.ID())
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	_, ok := a.Mirror(a.ID())
	assert.False(t, ok)

	assert.Equal(t, 2, rl.Stats().Sessions)
}

func TestMinimalClientConfigConnects(t *testing.T) {
	srv, rl := newTestServer(t)

	c := client.New(client.Config{URL: wsURL(srv), ReconnectAttempts: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	defer func() {
		cancel()
		c.Close()
		assert.NoError(t, <-done)
	}()

	c.SetLocalTransform(models.Transform{X: 3})
	require.Eventually(t, func() bool {
		c.Tick(frame)
		if !c.Synced() {
			return false
		}
		s, ok := rl.Session(c.ID())
		return ok && s.Transform.X == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReconnectGetsNewSessionAndSnapshot(t *testing.T) {
	srv, rl := newTestServer(t)
	a := startClient(t, srv, protocol.JSONSubprotocol)
	b := startClient(t, srv, protocol.CBORSubprotocol)

	require.Eventually(t, func() bool {
		a.Tick(frame)
		b.Tick(frame)
		_, seesB := a.Mirror(b.ID())
		_, seesA := b.Mirror(a.ID())
		return seesA && seesB
	}, 5*time.Second, 10*time.Millisecond)
	oldA, oldB := a.ID(), b.ID()

	rl.Shutdown()

	require.Eventually(t, func() bool {
		a.Tick(frame)
		b.Tick(frame)
		if !a.Synced() || !b.Synced() {
			return false
		}
		idA, idB := a.ID(), b.ID()
		if idA == "" || idB == "" || idA == oldA || idB == oldB {
			return false
		}
		_, seesB := a.Mirror(idB)
		_, seesA := b.Mirror(idA)
		return seesA && seesB && len(a.Mirrors()) == 1 && len(b.Mirrors()) == 1
	}, 10*time.Second, 10*time.Millisecond)

	_, ok := a.Mirror(oldB)
	assert.False(t, ok)
	assert.Equal(t, client.Connected, a.State())
	assert.Eventually(t, func() bool {
		return rl.Stats().Sessions == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEventsReachOtherClients(t *testing.T) {
	srv, _ := newTestServer(t)
	a := startClient(t, srv, protocol.JSONSubprotocol)
	b := startClient(t, srv, protocol.JSONSubprotocol)

	require.Eventually(t, func() bool {
		a.Tick(frame)
		_, ok := a.Mirror(b.ID())
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Hit(b.ID(), 25))
	require.NoError(t, a.DestroyObject("platforms", "pl-7"))

	require.Eventually(t, func() bool {
		b.Tick(frame)
		st, ok := b.Object("platforms", "pl-7")
		return b.Health() == 75 && ok && st.Destroyed
	}, 5*time.Second, 10*time.Millisecond)

	m, _ := a.Mirror(b.ID())
	assert.Equal(t, 75.0, m.Health)
}

func TestDisconnectRemovesMirror(t *testing.T) {
	srv, rl := newTestServer(t)
	a := startClient(t, srv, protocol.JSONSubprotocol)
	b := startClient(t, srv, protocol.JSONSubprotocol)

	require.Eventually(t, func() bool {
		b.Tick(frame)
		_, ok := b.Mirror(a.ID())
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	id := a.ID()
	a.Close()

	require.Eventually(t, func() bool {
		b.Tick(frame)
		_, ok := b.Mirror(id)
		return !ok && rl.Stats().Sessions == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMalformedFrameIsDroppedNotFatal(t *testing.T) {
	srv, rl := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"playerMove","payload":{"x":1}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","payload":{"ack":"7"}}`)))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		msg, err := protocol.JSON.Decode(data)
		require.NoError(t, err)
		if pong, ok := msg.(protocol.Pong); ok {
			assert.Equal(t, "7", pong.Ack)
			break
		}
	}
	assert.Equal(t, 1, rl.Stats().Sessions)
}

func TestHealthAndStats(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats relay.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, relay.Stats{}, stats)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://game.example"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://game.example")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(r))

	assert.True(t, originChecker(nil)(r))
	assert.True(t, originChecker([]string{"*"})(r))
}
