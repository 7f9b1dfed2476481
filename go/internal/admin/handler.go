package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/facescan/go/internal/capture"
	"github.com/mcdev12/facescan/go/internal/models"
)

// Handler exposes the session to the admin UI over JSON HTTP
type Handler struct {
	session *Session
}

// NewHandler creates a new admin handler
func NewHandler(session *Session) *Handler {
	return &Handler{session: session}
}

// RegisterRoutes registers the admin API routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/employees", h.HandleListEmployees)
	mux.HandleFunc("POST /api/employees", h.HandleAddEmployee)
	mux.HandleFunc("PUT /api/employees/{id}", h.HandleUpdateEmployee)
	mux.HandleFunc("DELETE /api/employees/{id}", h.HandleDeleteEmployee)
	mux.HandleFunc("GET /api/departments", h.HandleListDepartments)
	mux.HandleFunc("GET /api/attendance", h.HandleListAttendance)
	mux.HandleFunc("POST /api/attendance", h.HandleAppendAttendance)
	mux.HandleFunc("GET /api/dashboard", h.HandleDashboard)
}

// HandleListEmployees handles GET /api/employees?search=&department=
func (h *Handler) HandleListEmployees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, h.session.FilterEmployees(q.Get("search"), q.Get("department")))
}

// HandleAddEmployee handles POST /api/employees
func (h *Handler) HandleAddEmployee(w http.ResponseWriter, r *http.Request) {
	var draft EmployeeDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if draft.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	employee, err := h.session.AddEmployee(r.Context(), draft)
	if err != nil {
		if errors.Is(err, capture.ErrCaptureCancelled) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		if employee == nil {
			log.Error().Err(err).Msg("failed to add employee")
			http.Error(w, "Failed to add employee", http.StatusInternalServerError)
			return
		}
		// Enrolled locally; the relay will get it on the next emission
		log.Warn().Err(err).Str("employee_id", employee.ID).Msg("employee added but not published")
	}

	writeJSON(w, http.StatusCreated, employee)
}

// HandleUpdateEmployee handles PUT /api/employees/{id}
func (h *Handler) HandleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	var employee models.Employee
	if err := json.NewDecoder(r.Body).Decode(&employee); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	employee.ID = r.PathValue("id")

	if err := h.session.UpdateEmployee(r.Context(), employee); err != nil {
		if !h.writeMutationError(w, err) {
			return
		}
	}
	writeJSON(w, http.StatusOK, employee)
}

// HandleDeleteEmployee handles DELETE /api/employees/{id}
func (h *Handler) HandleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := h.session.DeleteEmployee(r.Context(), r.PathValue("id")); err != nil {
		if !h.writeMutationError(w, err) {
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListDepartments handles GET /api/departments
func (h *Handler) HandleListDepartments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Departments())
}

// HandleListAttendance handles GET /api/attendance
func (h *Handler) HandleListAttendance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.AttendanceRecords())
}

// HandleAppendAttendance handles POST /api/attendance
func (h *Handler) HandleAppendAttendance(w http.ResponseWriter, r *http.Request) {
	var record models.AttendanceRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if record.EmployeeID == "" {
		http.Error(w, "employeeId is required", http.StatusBadRequest)
		return
	}

	if err := h.session.AppendAttendance(r.Context(), record); err != nil {
		log.Warn().Err(err).Str("record_id", record.ID).Msg("attendance recorded but not published")
	}
	writeJSON(w, http.StatusCreated, record)
}

// HandleDashboard handles GET /api/dashboard?date=YYYY-MM-DD
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Dashboard(r.URL.Query().Get("date")))
}

// writeMutationError reports err and returns whether the request should still
// succeed. Emission failures leave the local change in place.
func (h *Handler) writeMutationError(w http.ResponseWriter, err error) bool {
	if errors.Is(err, ErrEmployeeNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return false
	}
	log.Warn().Err(err).Msg("change applied but not published")
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
