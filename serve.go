package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/4cecoder/arena/config"
	"github.com/4cecoder/arena/handlers"
	"github.com/4cecoder/arena/relay"
	"github.com/4cecoder/arena/tap"
	"github.com/rs/zerolog/log"
)

func serveCommand(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []relay.Option
	if cfg.NATS.URL != "" {
		t, err := tap.NewNATS(tap.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := t.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close event tap")
			}
		}()
		opts = append(opts, relay.WithTap(t))
		log.Info().Str("url", cfg.NATS.URL).Str("prefix", cfg.NATS.SubjectPrefix).Msg("publishing relayed events to NATS")
	}

	rl := relay.New(opts...)
	router := handlers.NewRouter(rl, handlers.RouterConfig{
		Connection: handlers.ConnectionConfig{
			WriteTimeout:   cfg.Server.WriteTimeout,
			ReadTimeout:    cfg.Server.ReadTimeout,
			PingInterval:   cfg.Server.PingInterval,
			MaxMessageSize: cfg.Server.MaxMessageSize,
			SendBuffer:     cfg.Server.SendBuffer,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StaticDir:      cfg.Server.StaticDir,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("static_dir", cfg.Server.StaticDir).Msg("relay server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen on :%s: %w", cfg.Server.Port, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down relay server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	rl.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
