package client

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/4cecoder/arena/models"
	"github.com/4cecoder/arena/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPresenter struct {
	NopPresenter

	mu          sync.Mutex
	added       []string
	removed     []string
	projectiles []models.Projectile
	remote      []bool
	hits        []float64
	respawned   []string
	objects     []string
}

func (p *recordingPresenter) RemoteAdded(m RemoteMirror) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, m.ID)
}

func (p *recordingPresenter) RemoteRemoved(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, id)
}

func (p *recordingPresenter) ProjectileSpawned(pr models.Projectile, remote bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.projectiles = append(p.projectiles, pr)
	p.remote = append(p.remote, remote)
}

func (p *recordingPresenter) PlayerHit(_ string, _, health float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits = append(p.hits, health)
}

func (p *recordingPresenter) PlayerRespawned(id string, _ models.Transform) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.respawned = append(p.respawned, id)
}

func (p *recordingPresenter) ObjectChanged(kind, id string, st models.DestructibleState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := "up"
	if st.Destroyed {
		state = "down"
	}
	p.objects = append(p.objects, kind+"/"+id+"="+state)
}

// connectedSync returns a synchronizer that has joined as localID on
// generation 1 and received an empty snapshot.
func connectedSync(t *testing.T, localID string) (*Synchronizer, *recordingPresenter) {
	t.Helper()
	p := &recordingPresenter{}
	s := NewSynchronizer(p, 0.7, clockwork.NewFakeClockAt(time.UnixMilli(1000)))
	s.Apply(Event{Type: EventTypeConnected, Gen: 1})
	s.Apply(Event{Type: EventTypeMessage, Gen: 1, Message: protocol.Connect{ID: localID}})
	s.Apply(Event{Type: EventTypeMessage, Gen: 1, Message: protocol.CurrentPlayers{}})
	require.True(t, s.Synced())
	return s, p
}

func msg(m protocol.Message) Event {
	return Event{Type: EventTypeMessage, Gen: 1, Message: m}
}

func TestSessionAddedIsIdempotent(t *testing.T) {
	s, p := connectedSync(t, "me")

	s.OnSessionAdded("a", models.Transform{X: 1})
	s.OnSessionAdded("a", models.Transform{X: 5})

	require.Len(t, s.Mirrors(), 1)
	m, _ := s.Mirror("a")
	assert.Equal(t, 1.0, m.Authoritative.X)
	assert.Equal(t, m.Authoritative, m.Render)
	assert.Equal(t, []string{"a"}, p.added)
}

func TestLocalSessionIsNeverMirrored(t *testing.T) {
	s, _ := connectedSync(t, "me")

	s.OnSessionAdded("me", models.Transform{})
	s.OnSnapshot(map[string]models.Transform{"me": {}, "a": {}})

	_, ok := s.Mirror("me")
	assert.False(t, ok)
	_, ok = s.Mirror("a")
	assert.True(t, ok)
}

func TestTransformUpdateForUnknownIDCreatesNothing(t *testing.T) {
	s, p := connectedSync(t, "me")

	s.OnTransformUpdate("ghost", models.Transform{X: 3})
	s.Apply(msg(protocol.PlayerMoved{PlayerState: models.PlayerState{ID: "ghost"}}))

	assert.Empty(t, s.Mirrors())
	assert.Empty(t, p.added)
}

func TestTransformUpdateOnlyMovesAuthoritative(t *testing.T) {
	s, _ := connectedSync(t, "me")
	s.OnSessionAdded("a", models.Transform{})

	s.OnTransformUpdate("a", models.Transform{X: 1, Z: 1})

	m, _ := s.Mirror("a")
	assert.Equal(t, models.Transform{X: 1, Z: 1}, m.Authoritative)
	assert.Equal(t, models.Transform{}, m.Render)
}

func TestInterpolationConverges(t *testing.T) {
	s, _ := connectedSync(t, "me")
	s.OnSessionAdded("a", models.Transform{})
	target := models.Transform{X: 1, Y: 0.5, Z: -1, RotationY: 0.4, RotationX: -0.2}
	s.OnTransformUpdate("a", target)

	s.Interpolate(referenceFrame)
	m, _ := s.Mirror("a")
	assert.InDelta(t, 0.7, m.Render.X, 1e-9)

	for i := 1; i < 50; i++ {
		s.Interpolate(referenceFrame)
	}
	m, _ = s.Mirror("a")
	assert.InDelta(t, target.X, m.Render.X, 1e-6)
	assert.InDelta(t, target.Y, m.Render.Y, 1e-6)
	assert.InDelta(t, target.Z, m.Render.Z, 1e-6)
	assert.InDelta(t, target.RotationY, m.Render.RotationY, 1e-6)
	assert.InDelta(t, target.RotationX, m.Render.RotationX, 1e-6)
}

func TestInterpolationIsFrameRateIndependent(t *testing.T) {
	one := ContractionFraction(0.7, 2*referenceFrame)
	two := 1 - (1-ContractionFraction(0.7, referenceFrame))*(1-ContractionFraction(0.7, referenceFrame))
	assert.InDelta(t, two, one, 1e-12)
	assert.Zero(t, ContractionFraction(0.7, 0))
}

func TestAngleTakesShortestArc(t *testing.T) {
	m := newMirror("a", models.Transform{RotationY: math.Pi - 0.1})
	m.Authoritative.RotationY = -math.Pi + 0.1

	m.Interpolate(0.5)

	// Halfway along the 0.2 rad arc through pi, not back across zero.
	assert.InDelta(t, math.Pi, m.Render.RotationY, 1e-9)
}

func TestSessionRemovedClearsMirror(t *testing.T) {
	s, p := connectedSync(t, "me")
	s.OnSessionAdded("a", models.Transform{})

	s.Apply(msg(protocol.PlayerDisconnected{ID: "a"}))
	s.OnSessionRemoved("a")

	assert.Empty(t, s.Mirrors())
	assert.Equal(t, []string{"a"}, p.removed)
}

func TestSnapshotReplacesMirrors(t *testing.T) {
	s, p := connectedSync(t, "me")
	s.OnSessionAdded("old", models.Transform{})

	s.OnSnapshot(map[string]models.Transform{"a": {X: 1}, "b": {X: 2}})

	mirrors := s.Mirrors()
	require.Len(t, mirrors, 2)
	assert.Equal(t, "a", mirrors[0].ID)
	assert.Equal(t, "b", mirrors[1].ID)
	assert.Contains(t, p.removed, "old")
}

func TestMessagesBeforeSnapshotAreDropped(t *testing.T) {
	p := &recordingPresenter{}
	s := NewSynchronizer(p, 0.7, clockwork.NewFakeClock())

	// Not connected yet.
	s.Apply(msg(protocol.NewPlayer{PlayerState: models.PlayerState{ID: "a"}}))
	assert.Empty(t, s.Mirrors())

	s.Apply(Event{Type: EventTypeConnected, Gen: 1})
	s.Apply(msg(protocol.Connect{ID: "me"}))
	s.Apply(msg(protocol.NewPlayer{PlayerState: models.PlayerState{ID: "a"}}))
	assert.Empty(t, s.Mirrors())

	s.Apply(msg(protocol.CurrentPlayers{Players: map[string]models.Transform{"b": {}}}))
	s.Apply(msg(protocol.NewPlayer{PlayerState: models.PlayerState{ID: "a"}}))
	assert.Len(t, s.Mirrors(), 2)
	assert.Equal(t, "me", s.LocalID())
}

func TestStaleGenerationIsDropped(t *testing.T) {
	s, _ := connectedSync(t, "me")
	s.Apply(Event{Type: EventTypeConnected, Gen: 2})
	s.Apply(Event{Type: EventTypeMessage, Gen: 2, Message: protocol.CurrentPlayers{}})

	s.Apply(msg(protocol.NewPlayer{PlayerState: models.PlayerState{ID: "late"}}))
	assert.Empty(t, s.Mirrors())

	// A disconnect from the previous connection must not tear down the new one.
	s.Apply(Event{Type: EventTypeMessage, Gen: 2, Message: protocol.NewPlayer{PlayerState: models.PlayerState{ID: "a"}}})
	s.Apply(Event{Type: EventTypeDisconnected, Gen: 1})
	assert.Len(t, s.Mirrors(), 1)

	s.Apply(Event{Type: EventTypeDisconnected, Gen: 2})
	assert.Empty(t, s.Mirrors())
}

func TestBallShotFromSelfIsSkipped(t *testing.T) {
	s, p := connectedSync(t, "me")

	s.Apply(msg(protocol.BallShot{ID: "b1", SenderID: "me"}))
	s.Apply(msg(protocol.BallShot{ID: "b2", SenderID: "other", Velocity: [3]float64{0, 0, -1}}))

	require.Len(t, p.projectiles, 1)
	assert.Equal(t, "b2", p.projectiles[0].ID)
	assert.Equal(t, "other", p.projectiles[0].SenderID)
	assert.True(t, p.remote[0])
}

func TestFourHitsRespawnLocalPlayer(t *testing.T) {
	s, p := connectedSync(t, "me")

	for i := 0; i < 3; i++ {
		s.Apply(msg(protocol.PlayerHit{PlayerID: "me", Damage: models.DefaultDamage}))
	}
	assert.Equal(t, 25.0, s.Health())

	s.Apply(msg(protocol.PlayerHit{PlayerID: "me", Damage: models.DefaultDamage}))
	assert.Equal(t, float64(models.MaxHealth), s.Health())
	assert.Equal(t, []float64{75, 50, 25, 0}, p.hits)
	assert.Equal(t, []string{"me"}, p.respawned)
}

func TestHitOnMirrorClampsAtZero(t *testing.T) {
	s, p := connectedSync(t, "me")
	s.OnSessionAdded("a", models.Transform{})

	s.OnPlayerHit(protocol.PlayerHit{PlayerID: "a", Damage: 250})
	m, _ := s.Mirror("a")
	assert.Equal(t, float64(models.MaxHealth), m.Health)
	assert.Equal(t, []float64{0}, p.hits)
	assert.Equal(t, []string{"a"}, p.respawned)

	s.OnPlayerHit(protocol.PlayerHit{PlayerID: "nobody", Damage: 10})
	assert.Len(t, p.hits, 1)
}

func TestDestructibleEvents(t *testing.T) {
	s, p := connectedSync(t, "me")
	s.Apply(msg(protocol.GameState{Objects: map[string]map[string]models.DestructibleState{
		"platforms": {"pl-1": {Destroyed: true, Timestamp: 5}},
	}}))

	st, ok := s.Object("platforms", "pl-1")
	require.True(t, ok)
	assert.True(t, st.Destroyed)

	s.Apply(msg(protocol.ObjectRespawned{Kind: "platforms", ID: "pl-1"}))
	st, _ = s.Object("platforms", "pl-1")
	assert.False(t, st.Destroyed)

	s.Apply(msg(protocol.ObjectDestroyed{Kind: "crates", ID: "c1"}))
	st, ok = s.Object("crates", "c1")
	require.True(t, ok)
	assert.Equal(t, int64(1000), st.Timestamp)

	// Respawning something never seen is a no-op.
	s.Apply(msg(protocol.ObjectRespawned{Kind: "crates", ID: "c2"}))
	_, ok = s.Object("crates", "c2")
	assert.False(t, ok)

	assert.Equal(t, []string{"platforms/pl-1=down", "platforms/pl-1=up", "crates/c1=down"}, p.objects)
}

func TestResetClearsEverything(t *testing.T) {
	s, p := connectedSync(t, "me")
	s.OnSessionAdded("a", models.Transform{})
	s.OnPlayerHit(protocol.PlayerHit{PlayerID: "me", Damage: 10})

	s.Reset()

	assert.Empty(t, s.Mirrors())
	assert.Empty(t, s.LocalID())
	assert.Equal(t, float64(models.MaxHealth), s.Health())
	assert.False(t, s.Synced())
	assert.Equal(t, []string{"a"}, p.removed)
}
