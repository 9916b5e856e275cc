// Package handlers client.go
package handlers

import (
	"errors"
	"sync"
	"time"

	"github.com/4cecoder/arena/protocol"
	"github.com/4cecoder/arena/relay"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSlowConsumer is returned by Send when the client's buffer is full.
	ErrSlowConsumer = errors.New("client send buffer full")
	ErrClosed       = errors.New("client connection closed")
)

// ConnectionConfig holds the per-connection websocket settings.
type ConnectionConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   25 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

// Client is the server side of one websocket connection. It implements
// relay.Conn: Send never blocks the relay.
type Client struct {
	ID    string
	Conn  *websocket.Conn
	codec protocol.Codec
	cfg   ConnectionConfig

	send      chan protocol.Message
	done      chan struct{}
	closeOnce sync.Once
}

var _ relay.Conn = (*Client)(nil)

func NewClient(conn *websocket.Conn, codec protocol.Codec, cfg ConnectionConfig) *Client {
	return &Client{
		Conn:  conn,
		codec: codec,
		cfg:   cfg,
		send:  make(chan protocol.Message, cfg.SendBuffer),
		done:  make(chan struct{}),
	}
}

func (c *Client) Send(msg protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSlowConsumer
	}
}

// Close stops the write pump and closes the socket, which in turn ends the
// read pump. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteTimeout))
		err = c.Conn.Close()
	})
	return err
}

// ReadPump decodes frames and hands them to handle until the connection
// fails. Malformed frames are logged and skipped.
func (c *Client) ReadPump(handle func(protocol.Message)) {
	c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("session_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		msg, err := c.codec.Decode(frame)
		if err != nil {
			log.Warn().Err(err).Str("session_id", c.ID).Msg("dropping frame")
			continue
		}
		handle(msg)
	}
}

// WritePump encodes queued messages onto the socket and keeps the connection
// alive with pings. It returns when the client is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			frame, err := c.codec.Encode(msg)
			if err != nil {
				log.Error().Err(err).Str("session_id", c.ID).Str("event", msg.Type()).Msg("failed to encode message")
				continue
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(frameType, frame); err != nil {
				log.Debug().Err(err).Str("session_id", c.ID).Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("session_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}
