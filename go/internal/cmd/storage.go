package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/facescan/go/internal/config"
	"github.com/mcdev12/facescan/go/internal/recognition"
	"github.com/mcdev12/facescan/go/internal/relay/gateway"
)

// openMirror connects the relay's JetStream mirror. It returns nil when no
// NATS URL is configured.
func openMirror(ctx context.Context, cfg config.RelayConfig) (gateway.UpdateMirror, error) {
	if cfg.NATSURL == "" {
		log.Info().Msg("state mirror disabled, relay state is lost on restart")
		return nil, nil
	}

	mirrorConfig := gateway.DefaultJetStreamMirrorConfig()
	mirrorConfig.URL = cfg.NATSURL
	mirrorConfig.StreamName = cfg.NATSStream
	mirrorConfig.SubjectPrefix = cfg.NATSSubjectPrefix
	mirrorConfig.MaxAge = cfg.NATSMaxAge

	mirror, err := gateway.NewJetStreamMirror(ctx, mirrorConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open state mirror: %w", err)
	}

	log.Info().
		Str("nats_url", cfg.NATSURL).
		Str("stream", cfg.NATSStream).
		Msg("state mirror enabled")
	return mirror, nil
}

// setupRecognition builds the kiosk's face recognition engine
func setupRecognition(ctx context.Context, cfg config.KioskConfig) (recognition.Engine, error) {
	if cfg.Recognizer == "mock" {
		return recognition.NewMock(mockSeed(cfg.MockSeed)), nil
	}

	fc := recognition.NewFaceClient(cfg.FaceURL, cfg.FaceThreshold, cfg.FaceSkip)
	if err := fc.Health(ctx); err != nil {
		// The kiosk still starts; scans fail until the service is up
		log.Warn().Err(err).Str("face_url", cfg.FaceURL).Msg("face service not reachable")
	}
	return fc, nil
}
