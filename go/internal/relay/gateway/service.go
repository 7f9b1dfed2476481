package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

// Service is the relay: it owns the connection manager, the last-known-copy
// cache and the optional mirror for the lifetime of the process.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	healthChecker     *RelayHealthChecker
	cache             *SnapshotCache
	mirror            UpdateMirror
}

// Config holds configuration for the relay service
type Config struct {
	ConnectionConfig ConnectionConfig
	// PromRegistry enables relay metrics when set
	PromRegistry prometheus.Registerer
}

// DefaultConfig returns default configuration for the relay
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates the relay. mirror may be nil; when set, the cache is
// seeded from it before any client connects.
func NewService(ctx context.Context, config Config, mirror UpdateMirror) (*Service, error) {
	cache := NewSnapshotCache()

	if mirror != nil {
		if err := mirror.Restore(ctx, cache); err != nil {
			return nil, fmt.Errorf("failed to restore mirrored state: %w", err)
		}
	}

	connectionManager := NewConnectionManager(config.ConnectionConfig, cache, mirror, newRelayMetrics(config.PromRegistry))

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(cache),
		healthChecker:     NewRelayHealthChecker(connectionManager, mirror),
		cache:             cache,
		mirror:            mirror,
	}, nil
}

// Start runs the dispatcher until ctx is cancelled, then stops the service
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting relay service")

	s.connectionManager.Start(ctx)

	log.Info().Msg("relay service shutting down")
	return s.Stop()
}

// Stop closes every connection and the mirror
func (s *Service) Stop() error {
	s.connectionManager.CloseAll()

	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close state mirror")
		}
	}

	log.Info().Msg("relay service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.Handle("/health/relay", s.healthChecker)
	log.Info().Msg("relay routes registered")
}

// GetStats returns statistics about the relay
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "relay"
	return stats
}

// Health runs the relay self-check
func (s *Service) Health(ctx context.Context) HealthStatus {
	return s.healthChecker.Check(ctx)
}

// Snapshot returns the relay's current copy of a collection
func (s *Service) Snapshot(kind protocol.CollectionKind) json.RawMessage {
	return s.cache.Get(kind)
}
