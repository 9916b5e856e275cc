package client

import "github.com/4cecoder/arena/models"

// Presenter is the rendering side of the game. The synchronizer calls it from
// the goroutine that drives Tick (or the one invoking a local action), never
// while holding its own lock.
type Presenter interface {
	RemoteAdded(m RemoteMirror)
	RemoteRemoved(id string)
	// ProjectileSpawned is called for local shots (remote=false) and for
	// shots replicated from other sessions.
	ProjectileSpawned(p models.Projectile, remote bool)
	PlayerHit(id string, damage, health float64)
	PlayerRespawned(id string, at models.Transform)
	ObjectChanged(kind, id string, st models.DestructibleState)
}

// NopPresenter ignores everything. Headless clients embed it and override
// what they care about.
type NopPresenter struct{}

func (NopPresenter) RemoteAdded(RemoteMirror)                               {}
func (NopPresenter) RemoteRemoved(string)                                   {}
func (NopPresenter) ProjectileSpawned(models.Projectile, bool)              {}
func (NopPresenter) PlayerHit(string, float64, float64)                     {}
func (NopPresenter) PlayerRespawned(string, models.Transform)               {}
func (NopPresenter) ObjectChanged(string, string, models.DestructibleState) {}
