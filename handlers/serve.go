// Package handlers serve.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/4cecoder/arena/relay"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RouterConfig collects what NewRouter needs beyond the relay itself.
type RouterConfig struct {
	Connection     ConnectionConfig
	AllowedOrigins []string
	StaticDir      string
}

// NewRouter wires the websocket endpoint, health and stats probes and the
// static game files. Plain HTTP/1.1 requests, websocket upgrades included,
// pass through the h2c wrapper untouched.
func NewRouter(rl *relay.Relay, cfg RouterConfig) http.Handler {
	ws := NewServer(rl, cfg.Connection, cfg.AllowedOrigins)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ws", ws.HandleWebSocket)
	r.Get("/health", HandleHealth)
	r.Get("/stats", HandleStats(rl))
	if cfg.StaticDir != "" {
		r.Get("/*", HandleRoot(cfg.StaticDir))
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(r), &http2.Server{})
}

func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func HandleStats(rl *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, rl.Stats())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
