// Package relay owns the set of connected sessions and rebroadcasts transforms
// and discrete game events between them. It performs no simulation.
package relay

import (
	"time"

	"github.com/4cecoder/arena/models"
	"github.com/4cecoder/arena/protocol"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

// Conn is the relay's view of a client connection. Send must not block: it
// either queues the message for delivery or returns an error.
type Conn interface {
	Send(msg protocol.Message) error
	Close() error
}

// Session is one connected client.
type Session struct {
	ID          string
	Transform   models.Transform
	ConnectedAt time.Time

	conn Conn
}

type Stats struct {
	Sessions  int `json:"sessions"`
	Destroyed int `json:"destroyed"`
}

type Relay struct {
	mu       deadlock.Mutex
	sessions map[string]*Session
	objects  *Destructibles

	spawn models.Transform
	clock clockwork.Clock
	tap   Tap
	newID func() string
}

type Option func(*Relay)

func WithClock(c clockwork.Clock) Option {
	return func(r *Relay) { r.clock = c }
}

func WithTap(t Tap) Option {
	return func(r *Relay) {
		if t != nil {
			r.tap = t
		}
	}
}

// WithSpawn sets the transform assigned to new sessions.
func WithSpawn(t models.Transform) Option {
	return func(r *Relay) { r.spawn = t }
}

func WithIDGenerator(f func() string) Option {
	return func(r *Relay) { r.newID = f }
}

func New(opts ...Option) *Relay {
	r := &Relay{
		sessions: make(map[string]*Session),
		objects:  NewDestructibles(DefaultKinds...),
		clock:    clockwork.NewRealClock(),
		tap:      nopTap{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// delivery accumulates the sessions whose Send failed during a fan-out so they
// can be dropped once the registry lock is released.
type delivery struct {
	failed []*Session
}

func (d *delivery) send(s *Session, msg protocol.Message) {
	if err := s.conn.Send(msg); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Str("event", msg.Type()).Msg("dropping unreachable session")
		d.failed = append(d.failed, s)
	}
}

// broadcast must be called with r.mu held.
func (r *Relay) broadcast(d *delivery, exceptID string, msg protocol.Message) {
	for id, s := range r.sessions {
		if id == exceptID {
			continue
		}
		d.send(s, msg)
	}
}

// drop closes and removes every failed recipient. It must be called without
// r.mu held.
func (r *Relay) drop(d *delivery) {
	for _, s := range d.failed {
		if err := s.conn.Close(); err != nil {
			log.Debug().Err(err).Str("session_id", s.ID).Msg("close failed session")
		}
		r.Disconnect(s.ID)
	}
}

// Connect registers conn under a fresh id. The new session receives its id,
// a snapshot of every other session and the destructible state; every other
// session is told about the newcomer. All of it happens in one critical
// section so no concurrent event can slip between snapshot and registration.
func (r *Relay) Connect(conn Conn) string {
	var d delivery

	r.mu.Lock()
	id := r.newID()
	for r.sessions[id] != nil {
		id = r.newID()
	}

	others := make(map[string]models.Transform, len(r.sessions))
	for sid, s := range r.sessions {
		others[sid] = s.Transform
	}

	s := &Session{ID: id, Transform: r.spawn, ConnectedAt: r.clock.Now(), conn: conn}
	r.sessions[id] = s

	d.send(s, protocol.Connect{ID: id})
	d.send(s, protocol.CurrentPlayers{Players: others})
	d.send(s, protocol.GameState{Objects: r.objects.Snapshot()})

	joined := protocol.NewPlayer{PlayerState: models.PlayerState{ID: id, Transform: r.spawn}}
	r.broadcast(&d, id, joined)
	total := len(r.sessions)
	r.mu.Unlock()

	log.Info().Str("session_id", id).Int("sessions", total).Msg("session connected")
	r.tap.Publish(id, joined)
	r.drop(&d)
	return id
}

// TransformPush overwrites the session's transform and forwards it to every
// other session. Pushes for unknown ids are ignored.
func (r *Relay) TransformPush(id string, t models.Transform) {
	var d delivery

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	s.Transform = t
	r.broadcast(&d, id, protocol.PlayerMoved{PlayerState: models.PlayerState{ID: id, Transform: t}})
	r.mu.Unlock()

	r.drop(&d)
}

// Disconnect removes the session and tells everyone else. It reports whether
// a session was removed; repeated calls for the same id are no-ops.
func (r *Relay) Disconnect(id string) bool {
	var d delivery

	r.mu.Lock()
	if _, ok := r.sessions[id]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	left := protocol.PlayerDisconnected{ID: id}
	r.broadcast(&d, id, left)
	total := len(r.sessions)
	r.mu.Unlock()

	log.Info().Str("session_id", id).Int("sessions", total).Msg("session disconnected")
	r.tap.Publish(id, left)
	r.drop(&d)
	return true
}

// Forward relays a discrete game event from senderID. ballShot goes to an
// explicit list of every other session with the sender stamped in; the other
// events go to everyone but the sender. Destructible events update the
// relay's object state before they are forwarded. It reports whether the
// event was relayed.
func (r *Relay) Forward(senderID string, msg protocol.Message) bool {
	var d delivery

	r.mu.Lock()
	if _, ok := r.sessions[senderID]; !ok {
		r.mu.Unlock()
		log.Debug().Str("session_id", senderID).Str("event", msg.Type()).Msg("dropping event from unknown session")
		return false
	}

	switch m := msg.(type) {
	case protocol.BallShot:
		m.SenderID = senderID
		msg = m
		targets := make([]string, 0, len(r.sessions))
		for id := range r.sessions {
			if id != senderID {
				targets = append(targets, id)
			}
		}
		r.sendTo(&d, targets, msg)
	case protocol.PlayerHit:
		r.broadcast(&d, senderID, msg)
	case protocol.ObjectDestroyed:
		r.objects.Destroy(m.Kind, m.ID, r.clock.Now().UnixMilli())
		r.broadcast(&d, senderID, msg)
	case protocol.ObjectRespawned:
		r.objects.Respawn(m.Kind, m.ID)
		r.broadcast(&d, senderID, msg)
	default:
		r.mu.Unlock()
		log.Warn().Str("session_id", senderID).Str("event", msg.Type()).Msg("refusing to forward event")
		return false
	}
	r.mu.Unlock()

	r.tap.Publish(senderID, msg)
	r.drop(&d)
	return true
}

// sendTo must be called with r.mu held. Ids that have left are skipped.
func (r *Relay) sendTo(d *delivery, ids []string, msg protocol.Message) {
	for _, id := range ids {
		if s, ok := r.sessions[id]; ok {
			d.send(s, msg)
		}
	}
}

// Ping answers a latency probe on the caller's connection only.
func (r *Relay) Ping(id, ack string) {
	var d delivery

	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		d.send(s, protocol.Pong{Ack: ack})
	}
	r.mu.Unlock()

	r.drop(&d)
}

// Handle dispatches one decoded message received from session id.
func (r *Relay) Handle(id string, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.PlayerMove:
		r.TransformPush(id, m.Transform)
	case protocol.Ping:
		r.Ping(id, m.Ack)
	case protocol.BallShot, protocol.PlayerHit, protocol.ObjectDestroyed, protocol.ObjectRespawned:
		r.Forward(id, msg)
	default:
		log.Warn().Str("session_id", id).Str("event", msg.Type()).Msg("ignoring server-bound message of unexpected type")
	}
}

// Session returns a copy of the session's state.
func (r *Relay) Session(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return Session{ID: s.ID, Transform: s.Transform, ConnectedAt: s.ConnectedAt}, true
}

// Object returns the relay's record of a destructible object.
func (r *Relay) Object(kind, id string) (models.DestructibleState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.objects.Get(kind, id)
}

func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Sessions: len(r.sessions), Destroyed: r.objects.DestroyedCount()}
}

// Shutdown closes every connection. Read pumps observe the close and
// disconnect their sessions as usual.
func (r *Relay) Shutdown() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.sessions))
	for _, s := range r.sessions {
		conns = append(conns, s.conn)
	}
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
