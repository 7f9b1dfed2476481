package kiosk

import (
	"sync"

	"github.com/mcdev12/facescan/go/internal/models"
	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

// Mirror is the kiosk's read-only copy of the replicated collections. An
// update replaces a collection wholesale; nothing is ever merged.
type Mirror struct {
	mu         sync.RWMutex
	employees  []models.Employee
	attendance []models.AttendanceRecord
}

// NewMirror creates an empty mirror
func NewMirror() *Mirror {
	return &Mirror{
		employees:  []models.Employee{},
		attendance: []models.AttendanceRecord{},
	}
}

// Apply replaces the collection named by a state update. Other kinds are
// ignored and reported as not applied.
func (m *Mirror) Apply(env *protocol.Envelope) (bool, error) {
	if env.Kind != protocol.KindStateUpdate {
		return false, nil
	}

	switch env.Type {
	case protocol.CollectionRoster:
		var employees []models.Employee
		if err := protocol.DecodePayload(env, &employees); err != nil {
			return false, err
		}
		m.ReplaceEmployees(employees)
	case protocol.CollectionAttendance:
		var records []models.AttendanceRecord
		if err := protocol.DecodePayload(env, &records); err != nil {
			return false, err
		}
		m.ReplaceAttendance(records)
	default:
		return false, nil
	}
	return true, nil
}

// ReplaceEmployees swaps in a new roster
func (m *Mirror) ReplaceEmployees(employees []models.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees = models.CloneEmployees(employees)
}

// ReplaceAttendance swaps in a new attendance log
func (m *Mirror) ReplaceAttendance(records []models.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance = models.CloneAttendance(records)
}

// AppendAttendance adds a locally produced record. The next attendance
// update from the relay supersedes it.
func (m *Mirror) AppendAttendance(record models.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance = append(m.attendance, record)
}

// Employees returns a copy of the roster
func (m *Mirror) Employees() []models.Employee {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.CloneEmployees(m.employees)
}

// AttendanceRecords returns a copy of the attendance log
func (m *Mirror) AttendanceRecords() []models.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.CloneAttendance(m.attendance)
}

// LatestRecord returns the last record of employeeID on date
func (m *Mirror) LatestRecord(employeeID, date string) (models.AttendanceRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.attendance) - 1; i >= 0; i-- {
		rec := m.attendance[i]
		if rec.EmployeeID == employeeID && rec.Date == date {
			return rec, true
		}
	}
	return models.AttendanceRecord{}, false
}
