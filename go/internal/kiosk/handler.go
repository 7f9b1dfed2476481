package kiosk

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Handler exposes the kiosk scan flow over JSON HTTP
type Handler struct {
	kiosk *Kiosk
}

// NewHandler creates a new kiosk handler
func NewHandler(k *Kiosk) *Handler {
	return &Handler{kiosk: k}
}

type scanRequest struct {
	Image string `json:"image"`
}

// RegisterRoutes registers the kiosk API routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/scan", h.HandleScan)
	mux.HandleFunc("GET /api/employees", h.HandleListEmployees)
	mux.HandleFunc("GET /api/attendance", h.HandleListAttendance)
}

// HandleScan handles POST /api/scan
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Image == "" {
		http.Error(w, "Failed to capture image", http.StatusBadRequest)
		return
	}

	result, err := h.kiosk.Scan(r.Context(), req.Image)
	if err != nil {
		if errors.Is(err, ErrNoEmployees) {
			http.Error(w, "No employees enrolled. Please add employees through the admin panel first.", http.StatusConflict)
			return
		}
		log.Error().Err(err).Msg("scan failed")
		http.Error(w, "Scan failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleListEmployees handles GET /api/employees
func (h *Handler) HandleListEmployees(w http.ResponseWriter, r *http.Request) {
	employees := h.kiosk.Mirror().Employees()
	for i := range employees {
		employees[i].FaceData = ""
	}
	writeJSON(w, http.StatusOK, employees)
}

// HandleListAttendance handles GET /api/attendance
func (h *Handler) HandleListAttendance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.kiosk.Mirror().AttendanceRecords())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
