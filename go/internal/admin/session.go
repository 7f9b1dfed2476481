package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/facescan/go/internal/capture"
	"github.com/mcdev12/facescan/go/internal/models"
	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

// ErrEmployeeNotFound is returned when an id is not on the roster.
var ErrEmployeeNotFound = errors.New("employee not found")

const dateLayout = "2006-01-02"

// Emitter delivers envelopes to the relay. *client.Client satisfies it.
type Emitter interface {
	Send(env *protocol.Envelope) error
}

// EmployeeDraft is the enrollment form submitted before the face capture
type EmployeeDraft struct {
	Name         string               `json:"name"`
	Email        string               `json:"email"`
	Department   string               `json:"department"`
	Position     string               `json:"position"`
	WorkingHours *models.WorkingHours `json:"workingHours,omitempty"`
	// Frames are face samples taken by the enrolling client
	Frames []string `json:"frames,omitempty"`
}

// DashboardSummary counts one day of the attendance log
type DashboardSummary struct {
	Date           string `json:"date"`
	TotalEmployees int    `json:"totalEmployees"`
	Records        int    `json:"records"`
	Present        int    `json:"present"`
	Late           int    `json:"late"`
}

// Session owns the canonical roster and attendance log. Every mutation emits
// the complete new value of the collection it touched; the lock is held while
// emitting so the relay sees updates in mutation order.
type Session struct {
	mu         sync.Mutex
	employees  []models.Employee
	attendance []models.AttendanceRecord

	emitter  Emitter
	capturer capture.Capturer
	clock    clockwork.Clock
}

// NewSession creates an empty session
func NewSession(emitter Emitter, capturer capture.Capturer, clock clockwork.Clock) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Session{
		employees:  []models.Employee{},
		attendance: []models.AttendanceRecord{},
		emitter:    emitter,
		capturer:   capturer,
		clock:      clock,
	}
}

// Connect announces the publisher role and pushes both collections, so a
// relay that restarted gets the canonical state back.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.emitter.Send(protocol.NewSnapshotRequest(protocol.RolePublisher)); err != nil {
		return fmt.Errorf("announce publisher: %w", err)
	}
	if err := s.emitRoster(); err != nil {
		return err
	}
	return s.emitAttendance()
}

// AddEmployee captures a face template, then enrolls the employee. Nothing is
// committed when the capture is cancelled or fails.
func (s *Session) AddEmployee(ctx context.Context, draft EmployeeDraft) (*models.Employee, error) {
	template, err := s.capturer.Capture(ctx, capture.CaptureRequest{Name: draft.Name, Frames: draft.Frames})
	if err != nil {
		return nil, fmt.Errorf("capture face for %q: %w", draft.Name, err)
	}
	if len(template) == 0 {
		return nil, fmt.Errorf("capture face for %q: %w", draft.Name, capture.ErrCaptureCancelled)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wh := models.DefaultWorkingHours()
	if draft.WorkingHours != nil {
		wh = *draft.WorkingHours
		wh.WorkDays = append([]string(nil), draft.WorkingHours.WorkDays...)
	}

	employee := models.Employee{
		ID:           s.nextEmployeeID(),
		Name:         draft.Name,
		Email:        draft.Email,
		Department:   draft.Department,
		Position:     draft.Position,
		JoinDate:     s.clock.Now().Format(dateLayout),
		Status:       models.EmployeeStatusActive,
		Avatar:       placeholderAvatar(draft.Name),
		FaceData:     string(template),
		WorkingHours: &wh,
	}
	s.employees = append(s.employees, employee)

	log.Info().
		Str("employee_id", employee.ID).
		Str("department", employee.Department).
		Msg("employee enrolled")

	out := employee.Clone()
	return &out, s.emitRoster()
}

// UpdateEmployee replaces the roster entry with the same id
func (s *Session) UpdateEmployee(ctx context.Context, employee models.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(employee.ID)
	if idx < 0 {
		return fmt.Errorf("update %s: %w", employee.ID, ErrEmployeeNotFound)
	}
	s.employees[idx] = employee.Clone()

	log.Info().Str("employee_id", employee.ID).Msg("employee updated")
	return s.emitRoster()
}

// DeleteEmployee removes the employee and every attendance record that
// references it.
func (s *Session) DeleteEmployee(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("delete %s: %w", id, ErrEmployeeNotFound)
	}
	s.employees = append(s.employees[:idx:idx], s.employees[idx+1:]...)

	kept := make([]models.AttendanceRecord, 0, len(s.attendance))
	for _, rec := range s.attendance {
		if rec.EmployeeID != id {
			kept = append(kept, rec)
		}
	}
	removed := len(s.attendance) - len(kept)
	s.attendance = kept

	log.Info().
		Str("employee_id", id).
		Int("attendance_removed", removed).
		Msg("employee deleted")

	if err := s.emitRoster(); err != nil {
		return err
	}
	return s.emitAttendance()
}

// AppendAttendance adds a record to the log
func (s *Session) AppendAttendance(ctx context.Context, record models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attendance = append(s.attendance, record)

	log.Debug().
		Str("record_id", record.ID).
		Str("employee_id", record.EmployeeID).
		Str("status", string(record.Status)).
		Msg("attendance recorded")
	return s.emitAttendance()
}

// HandleMessage applies a frame pushed by the relay. Scan reports from kiosks
// are appended to the log; state updates are ignored since this session is
// the source of truth.
func (s *Session) HandleMessage(env *protocol.Envelope) {
	switch env.Kind {
	case protocol.KindScanReport:
		var record models.AttendanceRecord
		if err := protocol.DecodePayload(env, &record); err != nil {
			log.Warn().Err(err).Msg("ignoring undecodable scan report")
			return
		}
		if record.EmployeeID == "" {
			log.Warn().Str("record_id", record.ID).Msg("ignoring scan report without employee")
			return
		}
		if err := s.AppendAttendance(context.Background(), record); err != nil {
			log.Error().Err(err).Str("record_id", record.ID).Msg("failed to publish scanned attendance")
		}
	case protocol.KindStateUpdate:
		log.Debug().Str("collection", string(env.Type)).Msg("ignoring state update from relay")
	}
}

// Employees returns a copy of the roster
func (s *Session) Employees() []models.Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneEmployees(s.employees)
}

// AttendanceRecords returns a copy of the attendance log
func (s *Session) AttendanceRecords() []models.AttendanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneAttendance(s.attendance)
}

// FilterEmployees matches search against name or email, case-insensitively.
// An empty department or "all" matches every department.
func (s *Session) FilterEmployees(search, department string) []models.Employee {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(search)
	out := []models.Employee{}
	for _, e := range s.employees {
		if department != "" && department != "all" && e.Department != department {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(e.Name), needle) &&
			!strings.Contains(strings.ToLower(e.Email), needle) {
			continue
		}
		out = append(out, e.Clone())
	}
	return out
}

// Dashboard summarizes the records of date (YYYY-MM-DD); empty means today
func (s *Session) Dashboard(date string) DashboardSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if date == "" {
		date = s.clock.Now().Format(dateLayout)
	}
	summary := DashboardSummary{Date: date, TotalEmployees: len(s.employees)}
	for _, rec := range s.attendance {
		if rec.Date != date {
			continue
		}
		summary.Records++
		switch rec.Status {
		case models.AttendanceStatusPresent:
			summary.Present++
		case models.AttendanceStatusLate:
			summary.Late++
		}
	}
	return summary
}

// Departments lists the distinct departments in roster order
func (s *Session) Departments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	out := []string{}
	for _, e := range s.employees {
		if !seen[e.Department] {
			seen[e.Department] = true
			out = append(out, e.Department)
		}
	}
	return out
}

// emitRoster must be called with mu held
func (s *Session) emitRoster() error {
	env, err := protocol.NewStateUpdate(protocol.CollectionRoster, s.employees)
	if err != nil {
		return err
	}
	if err := s.emitter.Send(env); err != nil {
		return fmt.Errorf("emit roster: %w", err)
	}
	return nil
}

// emitAttendance must be called with mu held
func (s *Session) emitAttendance() error {
	env, err := protocol.NewStateUpdate(protocol.CollectionAttendance, s.attendance)
	if err != nil {
		return err
	}
	if err := s.emitter.Send(env); err != nil {
		return fmt.Errorf("emit attendance log: %w", err)
	}
	return nil
}

func (s *Session) indexOf(id string) int {
	for i, e := range s.employees {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// nextEmployeeID derives the id from the roster size, skipping ids still
// held after a delete.
func (s *Session) nextEmployeeID() string {
	for seq := len(s.employees) + 1; ; seq++ {
		id := fmt.Sprintf("EMP%03d", seq)
		if s.indexOf(id) < 0 {
			return id
		}
	}
}

func placeholderAvatar(name string) string {
	var initials strings.Builder
	for _, part := range strings.Fields(name) {
		initials.WriteRune([]rune(part)[0])
	}
	text := initials.String()
	if text == "" {
		text = "NA"
	}
	return "/placeholder.svg?height=40&width=40&text=" + text
}
