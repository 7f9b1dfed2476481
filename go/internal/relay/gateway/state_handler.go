package gateway

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

// StateHandler serves the relay's last-known copies over plain HTTP
type StateHandler struct {
	cache *SnapshotCache
}

// NewStateHandler creates a new state handler
func NewStateHandler(cache *SnapshotCache) *StateHandler {
	return &StateHandler{cache: cache}
}

// HandleGetState handles GET /api/state/{kind}
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	kind, err := protocol.ParseCollectionKind(strings.TrimPrefix(r.URL.Path, "/api/state/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(h.cache.Get(kind)); err != nil {
		log.Error().Err(err).Str("collection", string(kind)).Msg("failed to write state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state/", h.HandleGetState)
}
