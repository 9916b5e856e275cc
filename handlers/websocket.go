package handlers

import (
	"net/http"
	"net/url"

	"github.com/4cecoder/arena/protocol"
	"github.com/4cecoder/arena/relay"
	"github.com/gorilla/websocket"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog/log"
)

// Server attaches websocket connections to a relay.
type Server struct {
	relay    *relay.Relay
	upgrader websocket.Upgrader
	cfg      ConnectionConfig
}

func NewServer(r *relay.Relay, cfg ConnectionConfig, allowedOrigins []string) *Server {
	return &Server{
		relay: r,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			Subprotocols:      protocol.Subprotocols(),
			CheckOrigin:       originChecker(allowedOrigins),
			EnableCompression: false,
		},
	}
}

// originChecker allows every origin when the list is empty or contains "*".
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[u.Scheme+"://"+u.Host]
	}
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade websocket connection")
		return
	}

	codec := protocol.CodecFor(conn.Subprotocol())
	client := NewClient(conn, codec, s.cfg)
	client.ID = s.relay.Connect(client)

	ua := useragent.Parse(r.UserAgent())
	log.Info().
		Str("session_id", client.ID).
		Str("remote_addr", r.RemoteAddr).
		Str("codec", codec.Subprotocol()).
		Str("browser", ua.Name).
		Str("os", ua.OS).
		Bool("bot", ua.Bot).
		Msg("websocket connection established")

	go client.WritePump()
	client.ReadPump(func(msg protocol.Message) {
		s.relay.Handle(client.ID, msg)
	})

	s.relay.Disconnect(client.ID)
	if err := client.Close(); err != nil {
		log.Debug().Err(err).Str("session_id", client.ID).Msg("close websocket")
	}
}
