package client

import (
	"math"
	"time"

	"github.com/4cecoder/arena/models"
)

// referenceFrame is the frame length the interpolation rate is defined for.
const referenceFrame = time.Second / 60

// snapEpsilon is the distance below which the render transform is set to the
// authoritative one outright.
const snapEpsilon = 1e-9

// RemoteMirror is the local replica of another session. Authoritative is the
// last transform received from the relay; Render is what gets drawn and only
// ever moves toward Authoritative.
type RemoteMirror struct {
	ID            string
	Authoritative models.Transform
	Render        models.Transform
	Health        float64
}

func newMirror(id string, t models.Transform) *RemoteMirror {
	return &RemoteMirror{ID: id, Authoritative: t, Render: t, Health: models.MaxHealth}
}

// ContractionFraction converts a per-reference-frame rate into the fraction of
// the remaining distance to cover in a tick of length dt, so motion looks the
// same at any frame rate.
func ContractionFraction(rate float64, dt time.Duration) float64 {
	if dt <= 0 {
		return 0
	}
	return 1 - math.Pow(1-rate, float64(dt)/float64(referenceFrame))
}

// Interpolate moves Render the given fraction of the way toward
// Authoritative. Yaw and pitch take the shortest arc.
func (m *RemoteMirror) Interpolate(fraction float64) {
	a, r := m.Authoritative, &m.Render
	r.X = approach(r.X, a.X, fraction)
	r.Y = approach(r.Y, a.Y, fraction)
	r.Z = approach(r.Z, a.Z, fraction)
	r.RotationY = approachAngle(r.RotationY, a.RotationY, fraction)
	r.RotationX = approachAngle(r.RotationX, a.RotationX, fraction)
}

func approach(from, to, f float64) float64 {
	next := from + (to-from)*f
	if math.Abs(to-next) < snapEpsilon {
		return to
	}
	return next
}

func approachAngle(from, to, f float64) float64 {
	d := math.Remainder(to-from, 2*math.Pi)
	next := from + d*f
	if math.Abs(d*(1-f)) < snapEpsilon {
		return to
	}
	return next
}
