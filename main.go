package main

import (
	"fmt"
	"os"
	"time"

	"github.com/4cecoder/arena/config"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var CLI struct {
	Debug  bool   `help:"Whether to enable debug logging."`
	Config string `help:"YAML configuration file." type:"existingfile" short:"c"`

	Serve struct{} `cmd:"" default:"1" help:"Start the relay server."`

	Bot struct {
		URL         string        `help:"Relay websocket URL." default:"ws://localhost:3000/ws"`
		Count       int           `help:"Number of headless players." default:"4"`
		Duration    time.Duration `help:"How long to play; zero runs until interrupted." default:"0s"`
		Subprotocol string        `help:"Wire codec subprotocol." default:"arena.json" enum:"arena.json,arena.cbor"`
	} `cmd:"" help:"Run headless players against a relay."`

	Defaults struct{} `cmd:"" help:"Write the default configuration to standard output."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(consoleWriter)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	ctx := kong.Parse(&CLI,
		kong.Name("arena"),
		kong.Description("relay server and headless clients for the arena shooter"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if ctx.Command() == "defaults" {
		out, err := yaml.Marshal(config.Default())
		if err != nil {
			writeError(err)
		}
		os.Stdout.Write(out)
		return
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		writeError(err)
	}
	setLogLevel(cfg.LogLevel)

	switch ctx.Command() {
	case "serve":
		err = serveCommand(cfg)
	case "bot":
		err = botCommand(cfg)
	}
	if err != nil {
		writeError(err)
	}
}

func setLogLevel(level string) {
	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
		return
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("log_level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
