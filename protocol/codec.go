package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	JSONSubprotocol = "arena.json"
	CBORSubprotocol = "arena.cbor"
)

// Codec turns messages into frames and back. Decode validates required
// fields and returns errors wrapping ErrMalformed or ErrUnknownType.
type Codec interface {
	Subprotocol() string
	Binary() bool
	Encode(msg Message) ([]byte, error)
	Decode(b []byte) (Message, error)
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = cborCodec{}
)

// Subprotocols lists the negotiable subprotocols in order of preference.
func Subprotocols() []string {
	return []string{CBORSubprotocol, JSONSubprotocol}
}

// CodecFor returns the codec negotiated for a websocket subprotocol.
// Browsers that negotiate nothing get JSON.
func CodecFor(subprotocol string) Codec {
	if subprotocol == CBORSubprotocol {
		return CBOR
	}
	return JSON
}

type jsonEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Subprotocol() string { return JSONSubprotocol }
func (jsonCodec) Binary() bool        { return false }

func (jsonCodec) Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("trying to encode nil message")
	}
	pb, err := json.Marshal(payload(msg))
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.Type(), err)
	}
	return json.Marshal(jsonEnvelope{Type: msg.Type(), Payload: pb})
}

func (jsonCodec) Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	var env jsonEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	if len(env.Payload) == 0 {
		return emptyPayload(env.Type)
	}
	return decodePayload(env.Type, func(v any) error {
		return json.Unmarshal(env.Payload, v)
	})
}

type cborEnvelope struct {
	Type    string          `cbor:"type"`
	Payload cbor.RawMessage `cbor:"payload,omitempty"`
}

type cborCodec struct{}

func (cborCodec) Subprotocol() string { return CBORSubprotocol }
func (cborCodec) Binary() bool        { return true }

func (cborCodec) Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("trying to encode nil message")
	}
	pb, err := cbor.Marshal(payload(msg))
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.Type(), err)
	}
	return cbor.Marshal(cborEnvelope{Type: msg.Type(), Payload: pb})
}

func (cborCodec) Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	var env cborEnvelope
	if err := cbor.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	if len(env.Payload) == 0 {
		return emptyPayload(env.Type)
	}
	return decodePayload(env.Type, func(v any) error {
		return cbor.Unmarshal(env.Payload, v)
	})
}

// emptyPayload handles frames that carry a type and nothing else. Only ping
// may omit its payload; the reply then echoes an empty ack.
func emptyPayload(typ string) (Message, error) {
	if typ == TypePing {
		return Ping{}, nil
	}
	return nil, fmt.Errorf("%w: empty payload for type %q", ErrMalformed, typ)
}
