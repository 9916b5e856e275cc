package relay

import "github.com/4cecoder/arena/models"

// DefaultKinds are the object types present in every fresh game state.
var DefaultKinds = []string{"players", "bullets", "jumpPads", "platforms"}

// Destructibles tracks which world objects are currently destroyed. It is not
// safe for concurrent use; the Relay guards it with the registry lock.
type Destructibles struct {
	objects map[string]map[string]models.DestructibleState
}

func NewDestructibles(kinds ...string) *Destructibles {
	d := &Destructibles{objects: make(map[string]map[string]models.DestructibleState)}
	for _, k := range kinds {
		d.objects[k] = make(map[string]models.DestructibleState)
	}
	return d
}

// Destroy marks an object destroyed at the given Unix millisecond timestamp,
// creating the kind if it has not been seen before.
func (d *Destructibles) Destroy(kind, id string, at int64) {
	byID, ok := d.objects[kind]
	if !ok {
		byID = make(map[string]models.DestructibleState)
		d.objects[kind] = byID
	}
	byID[id] = models.DestructibleState{Destroyed: true, Timestamp: at}
}

// Respawn clears the destroyed flag of a known object. It reports whether the
// object was known.
func (d *Destructibles) Respawn(kind, id string) bool {
	byID, ok := d.objects[kind]
	if !ok {
		return false
	}
	st, ok := byID[id]
	if !ok {
		return false
	}
	st.Destroyed = false
	byID[id] = st
	return true
}

func (d *Destructibles) Get(kind, id string) (models.DestructibleState, bool) {
	st, ok := d.objects[kind][id]
	return st, ok
}

// Snapshot returns a deep copy suitable for sending to a joining client.
func (d *Destructibles) Snapshot() map[string]map[string]models.DestructibleState {
	out := make(map[string]map[string]models.DestructibleState, len(d.objects))
	for kind, byID := range d.objects {
		cp := make(map[string]models.DestructibleState, len(byID))
		for id, st := range byID {
			cp[id] = st
		}
		out[kind] = cp
	}
	return out
}

// DestroyedCount is the number of objects currently flagged destroyed.
func (d *Destructibles) DestroyedCount() int {
	n := 0
	for _, byID := range d.objects {
		for _, st := range byID {
			if st.Destroyed {
				n++
			}
		}
	}
	return n
}
