package client

import (
	"sort"
	"time"

	"github.com/4cecoder/arena/models"
	"github.com/4cecoder/arena/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

// Synchronizer reconciles relay events into the local mirror set, the local
// player's health and the destructible-object map. It performs no I/O.
// Presenter callbacks run after the lock is released, in event order.
type Synchronizer struct {
	mu        deadlock.RWMutex
	presenter Presenter
	rate      float64
	clock     clockwork.Clock

	state   ConnState
	gen     uint64
	synced  bool
	localID string
	health  float64
	mirrors map[string]*RemoteMirror
	objects map[string]map[string]models.DestructibleState
}

func NewSynchronizer(p Presenter, rate float64, clock clockwork.Clock) *Synchronizer {
	if p == nil {
		p = NopPresenter{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Synchronizer{
		presenter: p,
		rate:      rate,
		clock:     clock,
		health:    models.MaxHealth,
		mirrors:   make(map[string]*RemoteMirror),
		objects:   make(map[string]map[string]models.DestructibleState),
	}
}

type notifications []func()

func (n notifications) run() {
	for _, f := range n {
		f()
	}
}

// Apply routes one queued event. Messages are dropped unless they belong to
// the current connection; incremental updates are also dropped until that
// connection's player snapshot has arrived.
func (s *Synchronizer) Apply(ev Event) {
	switch ev.Type {
	case EventTypeConnected:
		s.mu.Lock()
		s.state = Connected
		s.gen = ev.Gen
		s.synced = false
		s.localID = ""
		n := s.clearMirrorsLocked()
		s.mu.Unlock()
		n.run()
		return

	case EventTypeDisconnected:
		s.mu.Lock()
		if ev.Gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.state = Disconnected
		s.synced = false
		n := s.clearMirrorsLocked()
		s.mu.Unlock()
		n.run()
		return
	}

	s.mu.RLock()
	current := s.state == Connected && ev.Gen == s.gen
	synced := s.synced
	s.mu.RUnlock()
	if !current || ev.Message == nil {
		return
	}

	switch m := ev.Message.(type) {
	case protocol.Connect:
		s.mu.Lock()
		s.localID = m.ID
		s.mu.Unlock()
		return
	case protocol.CurrentPlayers:
		s.OnSnapshot(m.Players)
		return
	case protocol.GameState:
		s.OnGameState(m.Objects)
		return
	}

	if !synced {
		log.Debug().Str("event", ev.Message.Type()).Msg("dropping event received before snapshot")
		return
	}

	switch m := ev.Message.(type) {
	case protocol.NewPlayer:
		s.OnSessionAdded(m.ID, m.Transform)
	case protocol.PlayerMoved:
		s.OnTransformUpdate(m.ID, m.Transform)
	case protocol.PlayerDisconnected:
		s.OnSessionRemoved(m.ID)
	case protocol.BallShot:
		s.OnBallShot(m)
	case protocol.PlayerHit:
		s.OnPlayerHit(m)
	case protocol.ObjectDestroyed:
		s.OnObjectDestroyed(m.Kind, m.ID)
	case protocol.ObjectRespawned:
		s.OnObjectRespawned(m.Kind, m.ID)
	default:
		log.Debug().Str("event", ev.Message.Type()).Msg("ignoring client-bound message of unexpected type")
	}
}

// OnSnapshot replaces the mirror set with players, skipping the local
// session. Mirrors absent from the snapshot are removed.
func (s *Synchronizer) OnSnapshot(players map[string]models.Transform) {
	var n notifications

	s.mu.Lock()
	for id := range s.mirrors {
		if _, ok := players[id]; !ok || id == s.localID {
			delete(s.mirrors, id)
			n = append(n, func() { s.presenter.RemoteRemoved(id) })
		}
	}
	for id, t := range players {
		if id == s.localID {
			continue
		}
		if m, ok := s.mirrors[id]; ok {
			m.Authoritative, m.Render = t, t
			continue
		}
		m := newMirror(id, t)
		s.mirrors[id] = m
		snapshot := *m
		n = append(n, func() { s.presenter.RemoteAdded(snapshot) })
	}
	s.synced = true
	s.mu.Unlock()

	n.run()
}

// OnSessionAdded creates a mirror for a newly joined session. Duplicate ids
// and the local session are ignored.
func (s *Synchronizer) OnSessionAdded(id string, t models.Transform) {
	s.mu.Lock()
	if id == "" || id == s.localID || s.mirrors[id] != nil {
		s.mu.Unlock()
		return
	}
	m := newMirror(id, t)
	s.mirrors[id] = m
	snapshot := *m
	s.mu.Unlock()

	s.presenter.RemoteAdded(snapshot)
}

// OnTransformUpdate sets the authoritative transform of a known mirror.
// Updates for unknown ids never create a mirror.
func (s *Synchronizer) OnTransformUpdate(id string, t models.Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.mirrors[id]; ok {
		m.Authoritative = t
	}
}

func (s *Synchronizer) OnSessionRemoved(id string) {
	s.mu.Lock()
	_, ok := s.mirrors[id]
	delete(s.mirrors, id)
	s.mu.Unlock()

	if ok {
		s.presenter.RemoteRemoved(id)
	}
}

// Interpolate eases every mirror toward its authoritative transform by the
// fraction the configured rate yields for a tick of length dt.
func (s *Synchronizer) Interpolate(dt time.Duration) {
	f := ContractionFraction(s.rate, dt)
	if f <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.mirrors {
		m.Interpolate(f)
	}
}

// OnBallShot spawns a replicated projectile. Shots stamped with the local
// session id were already spawned locally and are skipped.
func (s *Synchronizer) OnBallShot(b protocol.BallShot) {
	s.mu.RLock()
	own := b.SenderID != "" && b.SenderID == s.localID
	s.mu.RUnlock()
	if own {
		return
	}
	s.presenter.ProjectileSpawned(b.Projectile(), true)
}

// LocalShot spawns a projectile fired by the local player.
func (s *Synchronizer) LocalShot(p models.Projectile) {
	s.presenter.ProjectileSpawned(p, false)
}

// OnPlayerHit applies damage to the local player or to a mirror. Health
// clamps at zero; reaching zero respawns the player with full health.
// Hits on unknown ids are ignored.
func (s *Synchronizer) OnPlayerHit(h protocol.PlayerHit) {
	var n notifications

	s.mu.Lock()
	var health *float64
	if h.PlayerID != "" && h.PlayerID == s.localID {
		health = &s.health
	} else if m, ok := s.mirrors[h.PlayerID]; ok {
		health = &m.Health
	}
	if health == nil {
		s.mu.Unlock()
		return
	}

	*health -= h.Damage
	if *health < 0 {
		*health = 0
	}
	left := *health
	n = append(n, func() { s.presenter.PlayerHit(h.PlayerID, h.Damage, left) })
	if left == 0 {
		*health = models.MaxHealth
		n = append(n, func() { s.presenter.PlayerRespawned(h.PlayerID, models.RespawnPoint) })
	}
	s.mu.Unlock()

	n.run()
}

// OnGameState replaces the destructible-object map.
func (s *Synchronizer) OnGameState(objects map[string]map[string]models.DestructibleState) {
	var n notifications

	s.mu.Lock()
	s.objects = make(map[string]map[string]models.DestructibleState, len(objects))
	for kind, byID := range objects {
		cp := make(map[string]models.DestructibleState, len(byID))
		for id, st := range byID {
			cp[id] = st
			n = append(n, func() { s.presenter.ObjectChanged(kind, id, st) })
		}
		s.objects[kind] = cp
	}
	s.mu.Unlock()

	n.run()
}

func (s *Synchronizer) OnObjectDestroyed(kind, id string) {
	st := models.DestructibleState{Destroyed: true, Timestamp: s.clock.Now().UnixMilli()}

	s.mu.Lock()
	byID, ok := s.objects[kind]
	if !ok {
		byID = make(map[string]models.DestructibleState)
		s.objects[kind] = byID
	}
	byID[id] = st
	s.mu.Unlock()

	s.presenter.ObjectChanged(kind, id, st)
}

// OnObjectRespawned clears the destroyed flag of a known object.
func (s *Synchronizer) OnObjectRespawned(kind, id string) {
	s.mu.Lock()
	st, ok := s.objects[kind][id]
	if ok {
		st.Destroyed = false
		s.objects[kind][id] = st
	}
	s.mu.Unlock()

	if ok {
		s.presenter.ObjectChanged(kind, id, st)
	}
}

// Reset forgets everything, as after an explicit close.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.state = Disconnected
	s.synced = false
	s.localID = ""
	s.health = models.MaxHealth
	s.objects = make(map[string]map[string]models.DestructibleState)
	n := s.clearMirrorsLocked()
	s.mu.Unlock()

	n.run()
}

func (s *Synchronizer) clearMirrorsLocked() notifications {
	var n notifications
	for id := range s.mirrors {
		n = append(n, func() { s.presenter.RemoteRemoved(id) })
	}
	s.mirrors = make(map[string]*RemoteMirror)
	return n
}

// Mirrors returns copies of all mirrors ordered by id.
func (s *Synchronizer) Mirrors() []RemoteMirror {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RemoteMirror, 0, len(s.mirrors))
	for _, m := range s.mirrors {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Synchronizer) Mirror(id string) (RemoteMirror, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mirrors[id]
	if !ok {
		return RemoteMirror{}, false
	}
	return *m, true
}

func (s *Synchronizer) Object(kind, id string) (models.DestructibleState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.objects[kind][id]
	return st, ok
}

func (s *Synchronizer) LocalID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localID
}

func (s *Synchronizer) Health() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// Synced reports whether the current connection's snapshot has been applied.
func (s *Synchronizer) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}
