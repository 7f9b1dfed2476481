package kiosk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/facescan/go/internal/models"
	"github.com/mcdev12/facescan/go/internal/recognition"
	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

// ErrNoEmployees is returned by Scan while the mirrored roster is empty.
var ErrNoEmployees = errors.New("no employees enrolled")

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// ScanAction is what a successful scan recorded
type ScanAction string

const (
	ActionCheckIn  ScanAction = "check-in"
	ActionCheckOut ScanAction = "check-out"
)

// Failure reasons reported on an unsuccessful ScanResult
const (
	ReasonNoFace        = "no-face-detected"
	ReasonNotRecognized = "not-recognized"
)

// ScanResult is the outcome of one scan
type ScanResult struct {
	Success          bool                     `json:"success"`
	Reason           string                   `json:"reason,omitempty"`
	Employee         *models.Employee         `json:"employee,omitempty"`
	Action           ScanAction               `json:"action,omitempty"`
	Time             string                   `json:"time,omitempty"`
	AttendanceStatus *models.AttendanceCheck  `json:"attendanceStatus,omitempty"`
	Record           *models.AttendanceRecord `json:"record,omitempty"`
	// Alert is set for early, late and overtime scans
	Alert bool `json:"alert"`
}

// Relay is the kiosk's connection to the relay. *client.Client satisfies it.
type Relay interface {
	Send(env *protocol.Envelope) error
}

// Deps holds the kiosk's collaborators
type Deps struct {
	Relay      Relay
	Store      *Store
	Detector   recognition.Detector
	Recognizer recognition.Recognizer
	Settings   models.WorkSettings
	Clock      clockwork.Clock
	// Location is the kiosk's wall clock zone; time.Local when nil
	Location *time.Location
}

// Kiosk is the subscriber role: it mirrors the published collections and
// turns face scans into attendance records.
type Kiosk struct {
	mirror     *Mirror
	store      *Store
	relay      Relay
	detector   recognition.Detector
	recognizer recognition.Recognizer
	settings   models.WorkSettings
	clock      clockwork.Clock
	location   *time.Location

	// scans are serialized so check-in/check-out decisions see earlier scans
	scanMu sync.Mutex
}

// New creates a kiosk with an empty mirror
func New(deps Deps) *Kiosk {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &Kiosk{
		mirror:     NewMirror(),
		store:      deps.Store,
		relay:      deps.Relay,
		detector:   deps.Detector,
		recognizer: deps.Recognizer,
		settings:   deps.Settings,
		clock:      deps.Clock,
		location:   deps.Location,
	}
}

// Mirror returns the kiosk's mirror
func (k *Kiosk) Mirror() *Mirror {
	return k.mirror
}

// Connect rehydrates the mirror from the local store and asks the relay for
// the current collections.
func (k *Kiosk) Connect(ctx context.Context) error {
	if k.store != nil {
		employees, records, err := k.store.Load()
		if err != nil {
			log.Warn().Err(err).Msg("starting with an empty mirror")
		} else {
			k.mirror.ReplaceEmployees(employees)
			k.mirror.ReplaceAttendance(records)
			log.Info().
				Int("employees", len(employees)).
				Int("attendance_records", len(records)).
				Msg("mirror rehydrated from local store")
		}
	}

	if err := k.relay.Send(protocol.NewSnapshotRequest(protocol.RoleSubscriber)); err != nil {
		return fmt.Errorf("request snapshot: %w", err)
	}
	return nil
}

// HandleMessage applies a frame pushed by the relay and persists the mirror
func (k *Kiosk) HandleMessage(env *protocol.Envelope) {
	applied, err := k.mirror.Apply(env)
	if err != nil {
		log.Warn().Err(err).Str("collection", string(env.Type)).Msg("ignoring undecodable state update")
		return
	}
	if !applied {
		return
	}

	log.Debug().Str("collection", string(env.Type)).Msg("mirror updated")
	k.persist()
}

// Scan runs detection and recognition on image and records the attendance
func (k *Kiosk) Scan(ctx context.Context, image string) (*ScanResult, error) {
	k.scanMu.Lock()
	defer k.scanMu.Unlock()

	employees := k.mirror.Employees()
	if len(employees) == 0 {
		return nil, ErrNoEmployees
	}

	found, err := k.detector.Detect(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detect face: %w", err)
	}
	if !found {
		return &ScanResult{Reason: ReasonNoFace}, nil
	}

	employee, err := k.recognizer.Recognize(ctx, image, employees)
	if err != nil {
		return nil, fmt.Errorf("recognize face: %w", err)
	}
	if employee == nil {
		return &ScanResult{Reason: ReasonNotRecognized}, nil
	}

	now := k.clock.Now().In(k.location)
	check := Classify(now, *employee, k.settings)
	record, action := k.buildRecord(*employee, check, now)

	k.mirror.AppendAttendance(record)
	k.persist()

	report, err := protocol.NewScanReport(record)
	if err != nil {
		return nil, err
	}
	if err := k.relay.Send(report); err != nil {
		// The record stays in the local mirror; the publisher never sees it
		log.Warn().Err(err).Str("record_id", record.ID).Msg("failed to report scan to relay")
	}

	alert := check.Status == models.CheckStatusLate ||
		check.Status == models.CheckStatusEarly ||
		check.Status == models.CheckStatusOvertime
	if alert {
		log.Warn().
			Str("employee_id", employee.ID).
			Str("status", string(check.Status)).
			Msg(check.Message)
	}

	log.Info().
		Str("employee_id", employee.ID).
		Str("action", string(action)).
		Str("status", string(record.Status)).
		Msg("scan recorded")

	shown := employee.Clone()
	shown.FaceData = ""
	return &ScanResult{
		Success:          true,
		Employee:         &shown,
		Action:           action,
		Time:             now.Format(timeLayout),
		AttendanceStatus: &check,
		Record:           &record,
		Alert:            alert,
	}, nil
}

// buildRecord checks the employee out when today's last record is an open
// check-in, otherwise in.
func (k *Kiosk) buildRecord(employee models.Employee, check models.AttendanceCheck, now time.Time) (models.AttendanceRecord, ScanAction) {
	date := now.Format(dateLayout)
	record := models.AttendanceRecord{
		ID:           "ATT-" + uuid.New().String(),
		EmployeeID:   employee.ID,
		EmployeeName: employee.Name,
		Date:         date,
		CheckIn:      models.NoTime,
		CheckOut:     models.NoTime,
		Status:       RecordStatus(check),
		TotalHours:   models.NoTime,
	}

	last, ok := k.mirror.LatestRecord(employee.ID, date)
	if ok && last.IsCheckIn() && last.CheckOut == models.NoTime {
		record.CheckOut = now.Format(timeLayout)
		record.TotalHours = workedHours(last.CheckIn, now)
		return record, ActionCheckOut
	}

	record.CheckIn = now.Format(timeLayout)
	return record, ActionCheckIn
}

func (k *Kiosk) persist() {
	if k.store == nil {
		return
	}
	if err := k.store.Save(k.mirror.Employees(), k.mirror.AttendanceRecords()); err != nil {
		log.Error().Err(err).Msg("failed to persist mirror")
	}
}
