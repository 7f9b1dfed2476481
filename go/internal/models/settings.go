package models

// WorkSettings holds the site-wide schedule defaults and the thresholds used
// when classifying a scan. It is read at kiosk startup and never replicated.
type WorkSettings struct {
	StartTime         string `json:"startTime" yaml:"start_time"`
	EndTime           string `json:"endTime" yaml:"end_time"`
	BreakDuration     int    `json:"breakDuration" yaml:"break_duration"`
	LateThreshold     int    `json:"lateThreshold" yaml:"late_threshold"`         // minutes after start
	EarlyThreshold    int    `json:"earlyThreshold" yaml:"early_threshold"`       // minutes before start
	OvertimeThreshold int    `json:"overtimeThreshold" yaml:"overtime_threshold"` // minutes after end
}

// DefaultWorkSettings returns the settings used when no file is configured.
func DefaultWorkSettings() WorkSettings {
	return WorkSettings{
		StartTime:         "09:00",
		EndTime:           "18:00",
		BreakDuration:     60,
		LateThreshold:     15,
		EarlyThreshold:    30,
		OvertimeThreshold: 30,
	}
}

// AttendanceCheck is the outcome of classifying a scan against a schedule
type AttendanceCheck struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
}

// CheckStatus is the classification of a scan time
type CheckStatus string

const (
	CheckStatusEarly         CheckStatus = "early"
	CheckStatusOnTime        CheckStatus = "on-time"
	CheckStatusLate          CheckStatus = "late"
	CheckStatusOvertime      CheckStatus = "overtime"
	CheckStatusNonWorkingDay CheckStatus = "non-working-day"
)
