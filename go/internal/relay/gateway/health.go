package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// HealthStatus is the relay's self-check result
type HealthStatus struct {
	Healthy           bool
	DispatcherRunning bool
	MirrorEnabled     bool
	MirrorConnected   bool
	Connections       int
	LastMessageTime   time.Time
	Errors            []string
}

// HealthChecker reports on the relay's moving parts
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// connectedMirror is implemented by mirrors that hold a live connection
type connectedMirror interface {
	Connected() bool
}

// RelayHealthChecker checks the dispatcher loop and the optional mirror
type RelayHealthChecker struct {
	connectionManager *ConnectionManager
	mirror            UpdateMirror
}

// NewRelayHealthChecker creates a health checker. mirror may be nil.
func NewRelayHealthChecker(cm *ConnectionManager, mirror UpdateMirror) *RelayHealthChecker {
	return &RelayHealthChecker{connectionManager: cm, mirror: mirror}
}

// Check gathers the current status
func (h *RelayHealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	if err := ctx.Err(); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, "health check cancelled: "+err.Error())
		return status
	}

	status.DispatcherRunning = h.connectionManager.Running()
	if !status.DispatcherRunning {
		status.Healthy = false
		status.Errors = append(status.Errors, "dispatcher not running")
	}

	status.Connections = h.connectionManager.ConnectionCount()
	status.LastMessageTime = h.connectionManager.LastMessageTime()

	// An enabled mirror that lost NATS can no longer rehydrate a restarted relay
	if h.mirror != nil {
		status.MirrorEnabled = true
		status.MirrorConnected = true
		if cm, ok := h.mirror.(connectedMirror); ok {
			status.MirrorConnected = cm.Connected()
		}
		if !status.MirrorConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "state mirror disconnected")
		}
	}

	return status
}

// ServeHTTP writes the status as JSON; 503 when unhealthy
func (h *RelayHealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	response := map[string]interface{}{
		"healthy":            status.Healthy,
		"dispatcher_running": status.DispatcherRunning,
		"mirror_enabled":     status.MirrorEnabled,
		"mirror_connected":   status.MirrorConnected,
		"connections":        status.Connections,
		"errors":             status.Errors,
	}
	if !status.LastMessageTime.IsZero() {
		response["last_message_time"] = status.LastMessageTime
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}
