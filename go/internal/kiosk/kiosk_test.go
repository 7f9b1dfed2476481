package kiosk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/facescan/go/internal/models"
	"github.com/mcdev12/facescan/go/internal/recognition"
	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

type recordingRelay struct {
	mu   sync.Mutex
	sent []*protocol.Envelope
	err  error
}

func (r *recordingRelay) Send(env *protocol.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, env)
	return nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func rosterUpdate(t *testing.T, employees ...models.Employee) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewStateUpdate(protocol.CollectionRoster, employees)
	require.NoError(t, err)
	return env
}

func newTestKiosk(t *testing.T, engine recognition.Engine, now time.Time) (*Kiosk, *recordingRelay, *clockwork.FakeClock) {
	t.Helper()
	relay := &recordingRelay{}
	clock := clockwork.NewFakeClockAt(now)
	k := New(Deps{
		Relay:      relay,
		Store:      newTestStore(t),
		Detector:   engine,
		Recognizer: engine,
		Settings:   models.DefaultWorkSettings(),
		Clock:      clock,
		Location:   time.UTC,
	})
	return k, relay, clock
}

func johnDoe() models.Employee {
	wh := models.DefaultWorkingHours()
	return models.Employee{ID: "EMP001", Name: "John Doe", FaceData: "tpl", WorkingHours: &wh}
}

func TestConnectRehydratesThenRequestsSnapshot(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save([]models.Employee{johnDoe()}, []models.AttendanceRecord{{ID: "ATT1", EmployeeID: "EMP001"}}))

	relay := &recordingRelay{}
	k := New(Deps{Relay: relay, Store: store, Settings: models.DefaultWorkSettings()})
	require.NoError(t, k.Connect(context.Background()))

	require.Len(t, k.Mirror().Employees(), 1)
	require.Len(t, k.Mirror().AttendanceRecords(), 1)
	require.Len(t, relay.sent, 1)
	require.Equal(t, protocol.KindSnapshotRequest, relay.sent[0].Kind)
	require.Equal(t, protocol.RoleSubscriber, relay.sent[0].Role)
}

func TestHandleMessageReplacesAndPersists(t *testing.T) {
	k, _, _ := newTestKiosk(t, recognition.NewMockWithRates(1, 1, 1), at(9, 0))

	k.HandleMessage(rosterUpdate(t, johnDoe(), models.Employee{ID: "EMP002"}))
	k.HandleMessage(rosterUpdate(t, models.Employee{ID: "EMP002"}))

	roster := k.Mirror().Employees()
	require.Len(t, roster, 1)
	require.Equal(t, "EMP002", roster[0].ID)

	stored, _, err := k.store.Load()
	require.NoError(t, err)
	require.Equal(t, roster, stored)
}

func TestScanWithEmptyRoster(t *testing.T) {
	k, relay, _ := newTestKiosk(t, recognition.NewMockWithRates(1, 1, 1), at(9, 0))

	_, err := k.Scan(context.Background(), "img")
	require.True(t, errors.Is(err, ErrNoEmployees))
	require.Empty(t, relay.sent)
}

func TestScanChecksInThenOut(t *testing.T) {
	k, relay, clock := newTestKiosk(t, recognition.NewMockWithRates(1, 1, 1), at(9, 20))
	k.HandleMessage(rosterUpdate(t, johnDoe()))
	ctx := context.Background()

	in, err := k.Scan(ctx, "img")
	require.NoError(t, err)
	require.True(t, in.Success)
	require.Equal(t, ActionCheckIn, in.Action)
	require.Equal(t, models.CheckStatusLate, in.AttendanceStatus.Status)
	require.Equal(t, models.AttendanceStatusLate, in.Record.Status)
	require.Equal(t, "09:20:00", in.Record.CheckIn)
	require.Equal(t, models.NoTime, in.Record.CheckOut)
	require.True(t, in.Alert)
	require.Empty(t, in.Employee.FaceData)

	clock.Advance(8*time.Hour + 30*time.Minute)
	out, err := k.Scan(ctx, "img")
	require.NoError(t, err)
	require.Equal(t, ActionCheckOut, out.Action)
	require.Equal(t, "17:50:00", out.Record.CheckOut)
	require.Equal(t, "8h 30m", out.Record.TotalHours)

	require.Len(t, k.Mirror().AttendanceRecords(), 2)
	require.Len(t, relay.sent, 2)
	for _, env := range relay.sent {
		require.Equal(t, protocol.KindScanReport, env.Kind)
	}

	var reported models.AttendanceRecord
	require.NoError(t, protocol.DecodePayload(relay.sent[1], &reported))
	require.Equal(t, *out.Record, reported)
}

func TestScanNotDetectedOrRecognized(t *testing.T) {
	ctx := context.Background()

	k, relay, _ := newTestKiosk(t, recognition.NewMockWithRates(1, 0, 1), at(9, 0))
	k.HandleMessage(rosterUpdate(t, johnDoe()))
	res, err := k.Scan(ctx, "img")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, ReasonNoFace, res.Reason)

	k, relay, _ = newTestKiosk(t, recognition.NewMockWithRates(1, 1, 0), at(9, 0))
	k.HandleMessage(rosterUpdate(t, johnDoe()))
	res, err = k.Scan(ctx, "img")
	require.NoError(t, err)
	require.Equal(t, ReasonNotRecognized, res.Reason)
	require.Empty(t, relay.sent)
	require.Empty(t, k.Mirror().AttendanceRecords())
}

func TestScanKeepsRecordWhenRelayIsDown(t *testing.T) {
	k, relay, _ := newTestKiosk(t, recognition.NewMockWithRates(1, 1, 1), at(9, 0))
	k.HandleMessage(rosterUpdate(t, johnDoe()))
	relay.err = errors.New("relay down")

	res, err := k.Scan(context.Background(), "img")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, k.Mirror().AttendanceRecords(), 1)
}

func TestStoreMissingKeysLoadEmpty(t *testing.T) {
	employees, records, err := newTestStore(t).Load()
	require.NoError(t, err)
	require.NotNil(t, employees)
	require.Empty(t, employees)
	require.Empty(t, records)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save([]models.Employee{johnDoe()}, nil))
	require.NoError(t, store.Close())

	store, err = OpenStore(dir)
	require.NoError(t, err)
	defer store.Close()

	employees, records, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, []models.Employee{johnDoe()}, employees)
	require.Empty(t, records)
}

func TestMirrorApplyIgnoresOtherKinds(t *testing.T) {
	m := NewMirror()
	report, err := protocol.NewScanReport(models.AttendanceRecord{ID: "ATT1"})
	require.NoError(t, err)

	applied, err := m.Apply(report)
	require.NoError(t, err)
	require.False(t, applied)
	require.Empty(t, m.AttendanceRecords())
}
