package protocol

import "github.com/4cecoder/arena/models"

const (
	TypeConnect            = "connect"
	TypeCurrentPlayers     = "currentPlayers"
	TypeGameState          = "gameState"
	TypeNewPlayer          = "newPlayer"
	TypePlayerMove         = "playerMove"
	TypePlayerMoved        = "playerMoved"
	TypePlayerDisconnected = "playerDisconnected"
	TypeBallShot           = "ballShot"
	TypePlayerHit          = "playerHit"
	TypeObjectDestroyed    = "objectDestroyed"
	TypeObjectRespawned    = "objectRespawned"
	TypePing               = "ping"
	TypePong               = "pong"
)

// Message is one variant of the closed set of events exchanged between the
// relay and its clients.
type Message interface {
	Type() string
}

// Connect tells a freshly connected client its session id.
type Connect struct {
	ID string `json:"id"`
}

// CurrentPlayers is the registry snapshot sent on join. It never contains the
// receiving session.
type CurrentPlayers struct {
	Players map[string]models.Transform
}

// GameState is the destructible-object snapshot sent on join, keyed by object
// type and then object id.
type GameState struct {
	Objects map[string]map[string]models.DestructibleState
}

type NewPlayer struct {
	models.PlayerState
}

// PlayerMove is the client's periodic transform push.
type PlayerMove struct {
	models.Transform
}

type PlayerMoved struct {
	models.PlayerState
}

type PlayerDisconnected struct {
	ID string `json:"id"`
}

type BallShot struct {
	Position [3]float64 `json:"position"`
	Velocity [3]float64 `json:"velocity"`
	ID       string     `json:"id"`
	SenderID string     `json:"senderId,omitempty"`
}

type PlayerHit struct {
	PlayerID string  `json:"playerId"`
	Damage   float64 `json:"damage"`
}

type ObjectDestroyed struct {
	Kind string `json:"type"`
	ID   string `json:"id"`
}

type ObjectRespawned struct {
	Kind     string      `json:"type"`
	ID       string      `json:"id"`
	Position *[3]float64 `json:"position,omitempty"`
}

type Ping struct {
	Ack string `json:"ack"`
}

type Pong struct {
	Ack string `json:"ack"`
}

func (Connect) Type() string            { return TypeConnect }
func (CurrentPlayers) Type() string     { return TypeCurrentPlayers }
func (GameState) Type() string          { return TypeGameState }
func (NewPlayer) Type() string          { return TypeNewPlayer }
func (PlayerMove) Type() string         { return TypePlayerMove }
func (PlayerMoved) Type() string        { return TypePlayerMoved }
func (PlayerDisconnected) Type() string { return TypePlayerDisconnected }
func (BallShot) Type() string           { return TypeBallShot }
func (PlayerHit) Type() string          { return TypePlayerHit }
func (ObjectDestroyed) Type() string    { return TypeObjectDestroyed }
func (ObjectRespawned) Type() string    { return TypeObjectRespawned }
func (Ping) Type() string               { return TypePing }
func (Pong) Type() string               { return TypePong }

// Projectile converts the event into the shared projectile model.
func (b BallShot) Projectile() models.Projectile {
	return models.Projectile{
		ID:       b.ID,
		Position: b.Position,
		Velocity: b.Velocity,
		SenderID: b.SenderID,
	}
}

// payload returns the value placed in the envelope for a message.
func payload(msg Message) any {
	switch m := msg.(type) {
	case CurrentPlayers:
		if m.Players == nil {
			return map[string]models.Transform{}
		}
		return m.Players
	case GameState:
		if m.Objects == nil {
			return map[string]map[string]models.DestructibleState{}
		}
		return m.Objects
	default:
		return msg
	}
}
