package main

import (
	"context"
	"math"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/4cecoder/arena/client"
	"github.com/4cecoder/arena/config"
	"github.com/4cecoder/arena/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	botFrame        = time.Second / 60
	botShotInterval = 2 * time.Second
)

// botPresenter logs what a headless player would otherwise draw.
type botPresenter struct {
	client.NopPresenter
	log zerolog.Logger
}

func (p botPresenter) RemoteAdded(m client.RemoteMirror) {
	p.log.Debug().Str("remote_id", m.ID).Msg("remote player appeared")
}

func (p botPresenter) RemoteRemoved(id string) {
	p.log.Debug().Str("remote_id", id).Msg("remote player left")
}

func (p botPresenter) PlayerHit(id string, damage, health float64) {
	p.log.Debug().Str("player_id", id).Float64("damage", damage).Float64("health", health).Msg("player hit")
}

func (p botPresenter) PlayerRespawned(id string, at models.Transform) {
	p.log.Info().Str("player_id", id).Msg("player respawned")
}

func botCommand(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if CLI.Bot.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, CLI.Bot.Duration)
		defer cancel()
	}

	var wg sync.WaitGroup
	for i := 0; i < CLI.Bot.Count; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runBot(ctx, cfg.Client, n)
		}(i)
	}
	wg.Wait()
	return nil
}

// runBot walks a circle around the spawn point, fires now and then and
// reports what it sees until ctx is done.
func runBot(ctx context.Context, cc config.ClientConfig, n int) {
	logger := log.With().Int("bot", n).Logger()

	cfg := client.DefaultConfig(CLI.Bot.URL)
	cfg.Subprotocol = CLI.Bot.Subprotocol
	cfg.PublishInterval = cc.PublishInterval
	cfg.ProbeInterval = cc.ProbeInterval
	cfg.ReconnectAttempts = cc.ReconnectAttempts
	cfg.ReconnectDelay = cc.ReconnectDelay
	cfg.ReconnectDelayMax = cc.ReconnectDelayMax
	cfg.Interpolation = cc.Interpolation

	c := client.New(cfg, botPresenter{log: logger})
	defer c.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	frames := time.NewTicker(botFrame)
	defer frames.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()
	shoot := time.NewTicker(botShotInterval)
	defer shoot.Stop()

	phase := float64(n) * math.Pi / 4
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			<-runErr
			return
		case err := <-runErr:
			if err != nil {
				logger.Error().Err(err).Msg("bot gave up")
			}
			return
		case <-report.C:
			logger.Info().
				Str("session_id", c.ID()).
				Str("state", c.State().String()).
				Int("remotes", len(c.Mirrors())).
				Dur("latency", c.Latency()).
				Float64("health", c.Health()).
				Msg("bot status")
		case now := <-frames.C:
			c.Tick(botFrame)

			angle := phase + now.Sub(start).Seconds()
			c.SetLocalTransform(models.Transform{
				X:         models.RespawnPoint.X + 5*math.Cos(angle),
				Y:         models.RespawnPoint.Y,
				Z:         models.RespawnPoint.Z + 5*math.Sin(angle),
				RotationY: angle + math.Pi/2,
			})
		case <-shoot.C:
			if !c.Synced() {
				continue
			}
			pos := c.LocalTransform()
			heading := pos.RotationY - math.Pi/2
			dir := [3]float64{-math.Sin(heading), 0, math.Cos(heading)}
			_, _ = c.Shoot([3]float64{pos.X, pos.Y, pos.Z}, [3]float64{dir[0] * 20, 2, dir[2] * 20})
		}
	}
}
