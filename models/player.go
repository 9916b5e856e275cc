// Package models player.go
package models

import "math"

const (
	MaxHealth     = 100
	DefaultDamage = 25
)

// RespawnPoint is where a player reappears after their health reaches zero.
var RespawnPoint = Transform{X: 0, Y: 2.2, Z: 10}

// Transform is a player's pose: position plus yaw/pitch.
type Transform struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	RotationY float64 `json:"rotationY"`
	RotationX float64 `json:"rotationX"`
}

// Finite reports whether every component is a real number.
func (t Transform) Finite() bool {
	for _, v := range [...]float64{t.X, t.Y, t.Z, t.RotationY, t.RotationX} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Distance returns the positional distance between two transforms.
func (t Transform) Distance(o Transform) float64 {
	dx, dy, dz := o.X-t.X, o.Y-t.Y, o.Z-t.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

type PlayerState struct {
	ID string `json:"id"`
	Transform
}

type DestructibleState struct {
	Destroyed bool  `json:"destroyed"`
	Timestamp int64 `json:"timestamp"`
}

type Projectile struct {
	ID       string     `json:"id"`
	Position [3]float64 `json:"position"`
	Velocity [3]float64 `json:"velocity"`
	SenderID string     `json:"senderId,omitempty"`
}
