package kiosk

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/facescan/go/internal/models"
)

// Classify places a scan at now against the employee's schedule. Employees
// without working hours use the schedule in settings on the default work days.
// Checks run in order: non-working day, early, overtime, late, on time.
func Classify(now time.Time, employee models.Employee, settings models.WorkSettings) models.AttendanceCheck {
	wh := scheduleFor(employee, settings)

	if !wh.WorksOn(strings.ToLower(now.Weekday().String())) {
		return models.AttendanceCheck{
			Status:  models.CheckStatusNonWorkingDay,
			Message: "Today is not a working day for this employee",
		}
	}

	current := now.Hour()*60 + now.Minute()
	start, err := minutesOf(wh.StartTime)
	if err != nil {
		start, _ = minutesOf(settings.StartTime)
	}
	end, err := minutesOf(wh.EndTime)
	if err != nil {
		end, _ = minutesOf(settings.EndTime)
	}

	// Overtime is checked before late, otherwise an evening scan always reads as late
	switch {
	case current < start-settings.EarlyThreshold:
		return models.AttendanceCheck{
			Status:  models.CheckStatusEarly,
			Message: fmt.Sprintf("Early arrival - work starts at %s", wh.StartTime),
		}
	case current > end+settings.OvertimeThreshold:
		return models.AttendanceCheck{
			Status:  models.CheckStatusOvertime,
			Message: fmt.Sprintf("Working overtime - work ends at %s", wh.EndTime),
		}
	case current > start+settings.LateThreshold:
		return models.AttendanceCheck{
			Status:  models.CheckStatusLate,
			Message: fmt.Sprintf("Late arrival - work started at %s", wh.StartTime),
		}
	default:
		return models.AttendanceCheck{
			Status:  models.CheckStatusOnTime,
			Message: "On time",
		}
	}
}

// RecordStatus maps a classification to the status stored on the record
func RecordStatus(check models.AttendanceCheck) models.AttendanceStatus {
	if check.Status == models.CheckStatusLate {
		return models.AttendanceStatusLate
	}
	return models.AttendanceStatusPresent
}

func scheduleFor(employee models.Employee, settings models.WorkSettings) models.WorkingHours {
	if employee.WorkingHours != nil {
		return *employee.WorkingHours
	}
	wh := models.DefaultWorkingHours()
	wh.StartTime = settings.StartTime
	wh.EndTime = settings.EndTime
	wh.BreakDuration = settings.BreakDuration
	return wh
}

// minutesOf parses HH:MM into minutes past midnight
func minutesOf(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// workedHours formats the time between a check-in (HH:MM:SS) and now as "Xh YYm"
func workedHours(checkIn string, now time.Time) string {
	in, err := time.Parse(timeLayout, checkIn)
	if err != nil {
		return models.NoTime
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), in.Hour(), in.Minute(), in.Second(), 0, now.Location())
	d := now.Sub(start)
	if d < 0 {
		return models.NoTime
	}
	return fmt.Sprintf("%dh %02dm", int(d.Hours()), int(d.Minutes())%60)
}
