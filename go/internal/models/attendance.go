package models

// AttendanceRecord is one entry of the attendance log. Records are appended,
// never edited; EmployeeName is a copy taken at scan time.
type AttendanceRecord struct {
	ID           string           `json:"id"`
	EmployeeID   string           `json:"employeeId"`
	EmployeeName string           `json:"employeeName"`
	Date         string           `json:"date"`     // YYYY-MM-DD
	CheckIn      string           `json:"checkIn"`  // HH:MM:SS or "-"
	CheckOut     string           `json:"checkOut"` // HH:MM:SS or "-"
	Status       AttendanceStatus `json:"status"`
	TotalHours   string           `json:"totalHours"`
}

// AttendanceStatus is the status tag stored on a record
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
)

// NoTime marks an unset check-in or check-out column.
const NoTime = "-"

// IsCheckIn reports whether the record was written by a check-in scan.
func (r AttendanceRecord) IsCheckIn() bool {
	return r.CheckIn != "" && r.CheckIn != NoTime
}

// CloneAttendance copies a log. A nil log becomes an empty one.
func CloneAttendance(in []AttendanceRecord) []AttendanceRecord {
	out := make([]AttendanceRecord, len(in))
	copy(out, in)
	return out
}
