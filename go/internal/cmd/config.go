package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"
)

// setupLogging configures the global zerolog logger. LOG_LEVEL wins over
// --debug; LOG_FORMAT=json disables the console writer.
func setupLogging(debug bool) {
	if getEnv("LOG_FORMAT", "console") != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	if raw := getEnv("LOG_LEVEL", ""); raw != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(raw))
		if err != nil {
			log.Warn().Str("level", raw).Msg("unknown LOG_LEVEL, keeping default")
		} else {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)

	// Match GOMAXPROCS to the container CPU quota, undo func not needed
	if _, err := maxprocs.Set(maxprocs.Logger(maxprocsPrintf)); err != nil {
		log.Error().Err(err).Msg("failed to set GOMAXPROCS")
		os.Exit(1)
	}
}

func maxprocsPrintf(format string, v ...any) {
	log.Debug().Str("component", programName).Msg(fmt.Sprintf(format, v...))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
