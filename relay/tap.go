package relay

import "github.com/4cecoder/arena/protocol"

// Tap observes every event the relay forwards. Publish is called outside the
// registry lock, once per relayed event, in relay order per sender.
type Tap interface {
	Publish(senderID string, msg protocol.Message)
}

type nopTap struct{}

func (nopTap) Publish(string, protocol.Message) {}

// TapFunc adapts a function to the Tap interface.
type TapFunc func(senderID string, msg protocol.Message)

func (f TapFunc) Publish(senderID string, msg protocol.Message) { f(senderID, msg) }
