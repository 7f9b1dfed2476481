package models

// Employee is a roster entry replicated to every kiosk.
type Employee struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	Department   string         `json:"department"`
	Position     string         `json:"position"`
	JoinDate     string         `json:"joinDate"`
	Status       EmployeeStatus `json:"status"`
	Avatar       string         `json:"avatar"`
	FaceData     string         `json:"faceData"`
	WorkingHours *WorkingHours  `json:"workingHours,omitempty"`
}

// EmployeeStatus represents whether an employee is still enrolled
type EmployeeStatus string

const (
	EmployeeStatusActive   EmployeeStatus = "active"
	EmployeeStatusInactive EmployeeStatus = "inactive"
)

// WorkingHours is the per-employee schedule used to classify scans
type WorkingHours struct {
	StartTime     string   `json:"startTime"`     // HH:MM
	EndTime       string   `json:"endTime"`       // HH:MM
	BreakDuration int      `json:"breakDuration"` // minutes
	WorkDays      []string `json:"workDays"`      // lowercase weekday names
}

// DefaultWorkingHours returns the schedule given to newly enrolled employees.
func DefaultWorkingHours() WorkingHours {
	return WorkingHours{
		StartTime:     "09:00",
		EndTime:       "18:00",
		BreakDuration: 60,
		WorkDays:      []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
	}
}

// WorksOn reports whether day (lowercase weekday name) is a work day.
func (w WorkingHours) WorksOn(day string) bool {
	for _, d := range w.WorkDays {
		if d == day {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can't mutate shared slices.
func (e Employee) Clone() Employee {
	if e.WorkingHours != nil {
		wh := *e.WorkingHours
		wh.WorkDays = append([]string(nil), e.WorkingHours.WorkDays...)
		e.WorkingHours = &wh
	}
	return e
}

// CloneEmployees deep-copies a roster. A nil roster becomes an empty one.
func CloneEmployees(in []Employee) []Employee {
	out := make([]Employee, 0, len(in))
	for _, e := range in {
		out = append(out, e.Clone())
	}
	return out
}
