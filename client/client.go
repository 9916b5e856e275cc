// Package client is the game-side half of the relay protocol: it keeps a
// connection to the relay alive, publishes the local transform and turns the
// relay's broadcasts into interpolated remote mirrors.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/4cecoder/arena/models"
	"github.com/4cecoder/arena/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrOutboxFull      = errors.New("outbound buffer full")
	ErrClosed          = errors.New("client closed")
	ErrReconnectFailed = errors.New("reconnection attempts exhausted")
)

type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

type Config struct {
	URL string
	// Subprotocol selects the wire codec; empty means JSON.
	Subprotocol string
	Header      http.Header

	PublishInterval   time.Duration
	ProbeInterval     time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	Interpolation     float64

	QueueLimit   int
	OutboxSize   int
	WriteTimeout time.Duration

	Clock  clockwork.Clock
	Dialer *websocket.Dialer
}

func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		Subprotocol:       protocol.JSONSubprotocol,
		PublishInterval:   10 * time.Millisecond,
		ProbeInterval:     2 * time.Second,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		ReconnectDelayMax: 5 * time.Second,
		Interpolation:     0.7,
		QueueLimit:        4096,
		OutboxSize:        64,
		WriteTimeout:      10 * time.Second,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig(cfg.URL)
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if cfg.Subprotocol == "" {
		cfg.Subprotocol = def.Subprotocol
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = def.PublishInterval
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if cfg.ReconnectAttempts < 0 {
		cfg.ReconnectAttempts = 0
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.ReconnectDelayMax < cfg.ReconnectDelay {
		cfg.ReconnectDelayMax = max(cfg.ReconnectDelay, def.ReconnectDelayMax)
	}
	if !(cfg.Interpolation > 0 && cfg.Interpolation < 1) {
		cfg.Interpolation = def.Interpolation
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = def.QueueLimit
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = def.OutboxSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return cfg
}

// Client owns one logical relay session across reconnects. Run drives the
// network; Tick, SetLocalTransform and the local actions are meant for the
// game loop and never block on the network.
type Client struct {
	cfg    Config
	clock  clockwork.Clock
	syncer *Synchronizer
	queue  *EventQueue
	probe  *latencyProbe

	mu     deadlock.Mutex
	state  ConnState
	gen    uint64
	local  models.Transform
	outbox chan protocol.Message
	cancel context.CancelFunc
	closed bool
}

// New builds a client. Unset or out-of-range settings fall back to
// DefaultConfig.
func New(cfg Config, p Presenter) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:    cfg,
		clock:  cfg.Clock,
		syncer: NewSynchronizer(p, cfg.Interpolation, cfg.Clock),
		queue:  NewEventQueue(cfg.QueueLimit),
		probe:  newLatencyProbe(cfg.Clock, cfg.ProbeInterval),
	}
}

// Run connects and keeps reconnecting until ctx is done, Close is called or
// ReconnectAttempts consecutive attempts fail. A successful connection resets
// the attempt count.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cancel = cancel
	c.mu.Unlock()

	attempt := 0
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempt = 0
		}
		attempt++
		if attempt > c.cfg.ReconnectAttempts {
			return fmt.Errorf("%w (%d): %v", ErrReconnectFailed, c.cfg.ReconnectAttempts, err)
		}

		delay := backoff(attempt, c.cfg.ReconnectDelay, c.cfg.ReconnectDelayMax)
		log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("relay connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(delay):
		}
	}
}

// session runs one connection to completion. It reports whether the dial
// succeeded and the error that ended the connection.
func (c *Client) session(ctx context.Context) (bool, error) {
	c.setState(Connecting)

	dialer := *c.cfg.Dialer
	dialer.Subprotocols = []string{c.cfg.Subprotocol}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		c.setState(Disconnected)
		return false, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	codec := protocol.CodecFor(conn.Subprotocol())
	outbox := make(chan protocol.Message, c.cfg.OutboxSize)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false, ErrClosed
	}
	c.gen++
	gen := c.gen
	c.state = Connected
	c.outbox = outbox
	c.mu.Unlock()

	c.probe.Reset()
	_ = c.queue.Enqueue(Event{Type: EventTypeConnected, Gen: gen})
	log.Info().Str("url", c.cfg.URL).Str("codec", codec.Subprotocol()).Uint64("generation", gen).Msg("connected to relay")

	connCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer stop()
		c.writeLoop(connCtx, conn, codec, outbox)
	}()
	go func() {
		defer wg.Done()
		c.publishLoop(connCtx, outbox)
	}()
	go func() {
		defer wg.Done()
		c.probeLoop(connCtx, outbox)
	}()

	err = c.readLoop(conn, codec, gen)
	stop()
	wg.Wait()

	c.mu.Lock()
	if c.gen == gen {
		c.state = Disconnected
		c.outbox = nil
	}
	c.mu.Unlock()
	_ = c.queue.Enqueue(Event{Type: EventTypeDisconnected, Gen: gen})

	return true, err
}

func (c *Client) readLoop(conn *websocket.Conn, codec protocol.Codec, gen uint64) error {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		msg, err := codec.Decode(frame)
		if err != nil {
			log.Warn().Err(err).Msg("dropping frame from relay")
			continue
		}
		if pong, ok := msg.(protocol.Pong); ok {
			c.probe.Pong(pong.Ack)
			continue
		}
		if err := c.queue.Enqueue(Event{Type: EventTypeMessage, Gen: gen, Message: msg}); err != nil {
			// Overflow ends the connection; the next one starts from a
			// fresh snapshot.
			return err
		}
	}
}

// writeLoop owns the socket's write side and closes the socket on exit,
// which also ends readLoop.
func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, codec protocol.Codec, outbox <-chan protocol.Message) {
	defer conn.Close()

	frameType := websocket.TextMessage
	if codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		case msg := <-outbox:
			frame, err := codec.Encode(msg)
			if err != nil {
				log.Error().Err(err).Str("event", msg.Type()).Msg("failed to encode message")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(frameType, frame); err != nil {
				log.Debug().Err(err).Msg("failed to write to relay")
				return
			}
		}
	}
}

// publishLoop pushes the local transform at a fixed cadence.
func (c *Client) publishLoop(ctx context.Context, outbox chan<- protocol.Message) {
	ticker := c.clock.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.mu.Lock()
			t := c.local
			c.mu.Unlock()
			select {
			case outbox <- protocol.PlayerMove{Transform: t}:
			default:
			}
		}
	}
}

func (c *Client) probeLoop(ctx context.Context, outbox chan<- protocol.Message) {
	ticker := c.clock.NewTicker(c.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			select {
			case outbox <- c.probe.Next():
			default:
			}
		}
	}
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// send queues msg on the current connection without blocking.
func (c *Client) send(msg protocol.Message) error {
	c.mu.Lock()
	outbox, closed := c.outbox, c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if outbox == nil {
		return ErrNotConnected
	}
	select {
	case outbox <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Tick applies every queued relay event and advances interpolation by dt.
// Call it once per rendered frame.
func (c *Client) Tick(dt time.Duration) {
	for _, ev := range c.queue.Drain() {
		c.syncer.Apply(ev)
	}
	c.syncer.Interpolate(dt)
}

// SetLocalTransform records the pose the publish loop sends next.
func (c *Client) SetLocalTransform(t models.Transform) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = t
}

func (c *Client) LocalTransform() models.Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// Shoot spawns a projectile locally and replicates it. The local projectile
// exists even when the send fails, but not when the shot is malformed.
func (c *Client) Shoot(position, velocity [3]float64) (models.Projectile, error) {
	shot := protocol.BallShot{Position: position, Velocity: velocity, ID: uuid.NewString()}
	if err := protocol.Validate(shot); err != nil {
		return models.Projectile{}, err
	}
	p := models.Projectile{
		ID:       shot.ID,
		Position: position,
		Velocity: velocity,
		SenderID: c.syncer.LocalID(),
	}
	c.syncer.LocalShot(p)
	return p, c.send(shot)
}

// Hit applies damage to playerID locally and tells the other sessions.
// Damage must be finite and not negative.
func (c *Client) Hit(playerID string, damage float64) error {
	hit := protocol.PlayerHit{PlayerID: playerID, Damage: damage}
	if err := protocol.Validate(hit); err != nil {
		return err
	}
	c.syncer.OnPlayerHit(hit)
	return c.send(hit)
}

func (c *Client) DestroyObject(kind, id string) error {
	msg := protocol.ObjectDestroyed{Kind: kind, ID: id}
	if err := protocol.Validate(msg); err != nil {
		return err
	}
	c.syncer.OnObjectDestroyed(kind, id)
	return c.send(msg)
}

// RespawnObject restores an object; position is optional.
func (c *Client) RespawnObject(kind, id string, position *[3]float64) error {
	msg := protocol.ObjectRespawned{Kind: kind, ID: id, Position: position}
	if err := protocol.Validate(msg); err != nil {
		return err
	}
	c.syncer.OnObjectRespawned(kind, id)
	return c.send(msg)
}

// Close stops Run, drops queued events and clears every mirror.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	c.outbox = nil
	c.state = Disconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.queue.ClearQueue()
	c.syncer.Reset()
}

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Latency is the last measured round trip, or zero when no pong arrived
// within two probe intervals.
func (c *Client) Latency() time.Duration {
	return c.probe.Latency()
}

// ID is the session id the relay assigned, or "" before it is known.
func (c *Client) ID() string {
	return c.syncer.LocalID()
}

func (c *Client) Mirrors() []RemoteMirror {
	return c.syncer.Mirrors()
}

func (c *Client) Mirror(id string) (RemoteMirror, bool) {
	return c.syncer.Mirror(id)
}

func (c *Client) Health() float64 {
	return c.syncer.Health()
}

func (c *Client) Object(kind, id string) (models.DestructibleState, bool) {
	return c.syncer.Object(kind, id)
}

func (c *Client) Synced() bool {
	return c.syncer.Synced()
}
