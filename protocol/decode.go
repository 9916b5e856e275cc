package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/4cecoder/arena/models"
)

var (
	ErrMalformed   = errors.New("malformed payload")
	ErrUnknownType = errors.New("unknown message type")
)

// wireTransform uses pointers so absent fields can be told apart from zeros.
type wireTransform struct {
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Z         *float64 `json:"z"`
	RotationY *float64 `json:"rotationY"`
	RotationX *float64 `json:"rotationX"`
}

func (w wireTransform) transform() (models.Transform, error) {
	if w.X == nil || w.Y == nil || w.Z == nil || w.RotationY == nil || w.RotationX == nil {
		return models.Transform{}, fmt.Errorf("%w: transform requires x, y, z, rotationY and rotationX", ErrMalformed)
	}
	t := models.Transform{X: *w.X, Y: *w.Y, Z: *w.Z, RotationY: *w.RotationY, RotationX: *w.RotationX}
	if !t.Finite() {
		return models.Transform{}, fmt.Errorf("%w: transform is not finite", ErrMalformed)
	}
	return t, nil
}

type wirePlayerState struct {
	ID        string   `json:"id"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Z         *float64 `json:"z"`
	RotationY *float64 `json:"rotationY"`
	RotationX *float64 `json:"rotationX"`
}

func (w wirePlayerState) state() (models.PlayerState, error) {
	if w.ID == "" {
		return models.PlayerState{}, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	t, err := wireTransform{X: w.X, Y: w.Y, Z: w.Z, RotationY: w.RotationY, RotationX: w.RotationX}.transform()
	if err != nil {
		return models.PlayerState{}, err
	}
	return models.PlayerState{ID: w.ID, Transform: t}, nil
}

type wireBallShot struct {
	Position []float64 `json:"position"`
	Velocity []float64 `json:"velocity"`
	ID       string    `json:"id"`
	SenderID string    `json:"senderId"`
}

type wirePlayerHit struct {
	PlayerID string   `json:"playerId"`
	Damage   *float64 `json:"damage"`
}

type wireObjectRespawned struct {
	Kind     string    `json:"type"`
	ID       string    `json:"id"`
	Position []float64 `json:"position"`
}

func vec3(name string, v []float64) ([3]float64, error) {
	var out [3]float64
	if len(v) != 3 {
		return out, fmt.Errorf("%w: %s must have 3 components, got %d", ErrMalformed, name, len(v))
	}
	copy(out[:], v)
	return out, finite3(name, out)
}

func finite3(name string, v [3]float64) error {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrMalformed, name)
		}
	}
	return nil
}

// Validate applies the decoder's payload rules to a message built in memory,
// so a sender can refuse what every receiver would drop.
func Validate(msg Message) error {
	switch m := msg.(type) {
	case PlayerMove:
		if !m.Transform.Finite() {
			return fmt.Errorf("%w: transform is not finite", ErrMalformed)
		}
	case BallShot:
		if m.ID == "" {
			return fmt.Errorf("%w: ballShot without id", ErrMalformed)
		}
		if err := finite3("position", m.Position); err != nil {
			return err
		}
		return finite3("velocity", m.Velocity)
	case PlayerHit:
		if m.PlayerID == "" {
			return fmt.Errorf("%w: playerHit without playerId", ErrMalformed)
		}
		if math.IsNaN(m.Damage) || math.IsInf(m.Damage, 0) {
			return fmt.Errorf("%w: damage is not finite", ErrMalformed)
		}
		if m.Damage < 0 {
			return fmt.Errorf("%w: negative damage", ErrMalformed)
		}
	case ObjectDestroyed:
		if m.Kind == "" || m.ID == "" {
			return fmt.Errorf("%w: objectDestroyed requires type and id", ErrMalformed)
		}
	case ObjectRespawned:
		if m.Kind == "" || m.ID == "" {
			return fmt.Errorf("%w: objectRespawned requires type and id", ErrMalformed)
		}
		if m.Position != nil {
			return finite3("position", *m.Position)
		}
	case nil:
		return fmt.Errorf("%w: nil message", ErrMalformed)
	}
	return nil
}

// decodePayload builds the typed message for typ, using unmarshal to fill
// wire structs from the raw payload. Required fields are checked here so the
// relay and the synchronizer only ever see complete messages.
func decodePayload(typ string, unmarshal func(v any) error) (Message, error) {
	wrap := func(err error) error {
		if errors.Is(err, ErrMalformed) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}

	switch typ {
	case TypeConnect:
		var m Connect
		if err := unmarshal(&m); err != nil {
			return nil, wrap(err)
		}
		if m.ID == "" {
			return nil, fmt.Errorf("%w: connect without id", ErrMalformed)
		}
		return m, nil

	case TypeCurrentPlayers:
		var raw map[string]wireTransform
		if err := unmarshal(&raw); err != nil {
			return nil, wrap(err)
		}
		players := make(map[string]models.Transform, len(raw))
		for id, w := range raw {
			t, err := w.transform()
			if err != nil {
				return nil, fmt.Errorf("player %s: %w", id, err)
			}
			players[id] = t
		}
		return CurrentPlayers{Players: players}, nil

	case TypeGameState:
		var objects map[string]map[string]models.DestructibleState
		if err := unmarshal(&objects); err != nil {
			return nil, wrap(err)
		}
		return GameState{Objects: objects}, nil

	case TypeNewPlayer, TypePlayerMoved:
		var w wirePlayerState
		if err := unmarshal(&w); err != nil {
			return nil, wrap(err)
		}
		s, err := w.state()
		if err != nil {
			return nil, err
		}
		if typ == TypeNewPlayer {
			return NewPlayer{PlayerState: s}, nil
		}
		return PlayerMoved{PlayerState: s}, nil

	case TypePlayerMove:
		var w wireTransform
		if err := unmarshal(&w); err != nil {
			return nil, wrap(err)
		}
		t, err := w.transform()
		if err != nil {
			return nil, err
		}
		return PlayerMove{Transform: t}, nil

	case TypePlayerDisconnected:
		var m PlayerDisconnected
		if err := unmarshal(&m); err != nil {
			return nil, wrap(err)
		}
		if m.ID == "" {
			return nil, fmt.Errorf("%w: playerDisconnected without id", ErrMalformed)
		}
		return m, nil

	case TypeBallShot:
		var w wireBallShot
		if err := unmarshal(&w); err != nil {
			return nil, wrap(err)
		}
		pos, err := vec3("position", w.Position)
		if err != nil {
			return nil, err
		}
		vel, err := vec3("velocity", w.Velocity)
		if err != nil {
			return nil, err
		}
		m := BallShot{Position: pos, Velocity: vel, ID: w.ID, SenderID: w.SenderID}
		if err := Validate(m); err != nil {
			return nil, err
		}
		return m, nil

	case TypePlayerHit:
		var w wirePlayerHit
		if err := unmarshal(&w); err != nil {
			return nil, wrap(err)
		}
		m := PlayerHit{PlayerID: w.PlayerID, Damage: models.DefaultDamage}
		if w.Damage != nil {
			m.Damage = *w.Damage
		}
		if err := Validate(m); err != nil {
			return nil, err
		}
		return m, nil

	case TypeObjectDestroyed:
		var m ObjectDestroyed
		if err := unmarshal(&m); err != nil {
			return nil, wrap(err)
		}
		if err := Validate(m); err != nil {
			return nil, err
		}
		return m, nil

	case TypeObjectRespawned:
		var w wireObjectRespawned
		if err := unmarshal(&w); err != nil {
			return nil, wrap(err)
		}
		m := ObjectRespawned{Kind: w.Kind, ID: w.ID}
		if w.Position != nil {
			pos, err := vec3("position", w.Position)
			if err != nil {
				return nil, err
			}
			m.Position = &pos
		}
		if err := Validate(m); err != nil {
			return nil, err
		}
		return m, nil

	case TypePing, TypePong:
		var p Ping
		if err := unmarshal(&p); err != nil {
			return nil, wrap(err)
		}
		if typ == TypePong {
			return Pong{Ack: p.Ack}, nil
		}
		return p, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}
