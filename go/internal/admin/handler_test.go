package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcdev12/facescan/go/internal/models"
)

func newTestMux(t *testing.T) (*http.ServeMux, *Session) {
	t.Helper()
	s, _, _ := newTestSession(t)
	mux := http.NewServeMux()
	NewHandler(s).RegisterRoutes(mux)
	return mux, s
}

func do(t *testing.T, mux http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestHandlerEmployeeLifecycle(t *testing.T) {
	mux, s := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/api/employees", EmployeeDraft{Name: "John Doe", Department: "Engineering", Frames: frames})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Employee
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "EMP001", created.ID)

	created.Position = "Lead"
	rec = do(t, mux, http.MethodPut, "/api/employees/EMP001", created)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Lead", s.Employees()[0].Position)

	rec = do(t, mux, http.MethodGet, "/api/employees?department=Engineering", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Employee
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	rec = do(t, mux, http.MethodDelete, "/api/employees/EMP001", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, s.Employees())

	rec = do(t, mux, http.MethodDelete, "/api/employees/EMP001", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRejectsBadEnrollment(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/api/employees", EmployeeDraft{Frames: frames})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/employees", EmployeeDraft{Name: "No Face"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerAttendanceAndDashboard(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/api/attendance", models.AttendanceRecord{ID: "ATT1", EmployeeID: "EMP001", Date: "2025-03-03", Status: models.AttendanceStatusLate})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/attendance", nil)
	var log []models.AttendanceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &log))
	require.Len(t, log, 1)

	rec = do(t, mux, http.MethodGet, "/api/dashboard?date=2025-03-03", nil)
	var d DashboardSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	require.Equal(t, 1, d.Late)
}
