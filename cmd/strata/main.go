package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/strata/cmd/strata/commands"
	"github.com/openfroyo/strata/pkg/config"
	"github.com/openfroyo/strata/pkg/lookup"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	// Cancelled on interrupt so that watch sessions and span exports stop
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := commands.Execute(ctx, Version, Commit, BuildDate)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		log.Info().Msg("Interrupted, shutting down")
	}

	event := log.Error().Err(err).Str("version", Version)
	var lerr *lookup.LookupError
	if errors.As(err, &lerr) {
		event = event.Str("class", string(lerr.Class)).Str("key", lerr.Key)
		if lerr.Code != "" {
			event = event.Str("code", lerr.Code)
		}
		if lerr.Location != "" {
			event = event.Str("location", lerr.Location)
		}
	}
	event.Msg("strata failed")
	stop()
	os.Exit(1)
}

// setupLogging configures the process logger used before settings are read.
// STRATA_LOG_LEVEL and STRATA_LOG_FORMAT take the same values as the
// logging section of the settings file.
func setupLogging() {
	if strings.EqualFold(os.Getenv(config.EnvPrefix+"LOG_FORMAT"), "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	raw := os.Getenv(config.EnvPrefix + "LOG_LEVEL")
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if err != nil {
		log.Warn().Str("level", raw).Msg("Unknown log level, using info")
	}
}
