package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mcdev12/facescan/go/internal/relay/client"
	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

const waitFor = 2 * time.Second

// verifyNoLeaks checks for goroutine leaks after every other cleanup has run
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { goleak.VerifyNone(t) })
}

type testRelay struct {
	svc      *Service
	server   *httptest.Server
	registry *prometheus.Registry
	wsURL    string
	ctx      context.Context
}

// startRelay runs a relay behind an httptest server; everything is torn
// down, in order, when the test ends.
func startRelay(t *testing.T, mirror UpdateMirror) *testRelay {
	t.Helper()

	registry := prometheus.NewRegistry()
	cfg := DefaultConfig()
	cfg.PromRegistry = registry

	ctx, cancel := context.WithCancel(context.Background())
	svc, err := NewService(ctx, cfg, mirror)
	require.NoError(t, err)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Start(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		server.Close()
	})

	return &testRelay{
		svc:      svc,
		server:   server,
		registry: registry,
		wsURL:    "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		ctx:      ctx,
	}
}

type testClient struct {
	*client.Client
	msgs chan *protocol.Envelope
}

// connect dials the relay and, when role is set, announces it
func (r *testRelay) connect(t *testing.T, role protocol.Role) *testClient {
	t.Helper()

	c := client.New(r.wsURL, client.DefaultOptions())
	require.NoError(t, c.Dial(context.Background()))

	tc := &testClient{Client: c, msgs: make(chan *protocol.Envelope, 100)}
	ctx, cancel := context.WithCancel(r.ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Listen(ctx, func(env *protocol.Envelope) { tc.msgs <- env })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	if role != "" {
		require.NoError(t, c.Send(protocol.NewSnapshotRequest(role)))
	}
	return tc
}

func (c *testClient) next(t *testing.T) *protocol.Envelope {
	t.Helper()
	select {
	case env := <-c.msgs:
		return env
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for relay message")
		return nil
	}
}

func (c *testClient) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case env := <-c.msgs:
		t.Fatalf("unexpected %s message", env.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func (c *testClient) publish(t *testing.T, kind protocol.CollectionKind, value interface{}) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewStateUpdate(kind, value)
	require.NoError(t, err)
	require.NoError(t, c.Send(env))
	return env
}

func requireUpdate(t *testing.T, env *protocol.Envelope, kind protocol.CollectionKind, payload string) {
	t.Helper()
	require.Equal(t, protocol.KindStateUpdate, env.Kind)
	require.Equal(t, kind, env.Type)
	require.JSONEq(t, payload, string(env.Payload))
}

func (r *testRelay) waitForSnapshot(t *testing.T, kind protocol.CollectionKind, payload string) {
	t.Helper()
	require.Eventually(t, func() bool {
		got := r.svc.Snapshot(kind)
		var a, b interface{}
		return json.Unmarshal(got, &a) == nil && json.Unmarshal([]byte(payload), &b) == nil &&
			jsonEqual(a, b)
	}, waitFor, 10*time.Millisecond)
}

func jsonEqual(a, b interface{}) bool {
	x, _ := json.Marshal(a)
	y, _ := json.Marshal(b)
	return string(x) == string(y)
}

func TestSubscriberGetsEmptyCollectionsOnConnect(t *testing.T) {
	verifyNoLeaks(t)
	relay := startRelay(t, nil)

	sub := relay.connect(t, protocol.RoleSubscriber)
	requireUpdate(t, sub.next(t), protocol.CollectionRoster, `[]`)
	requireUpdate(t, sub.next(t), protocol.CollectionAttendance, `[]`)
	sub.expectNothing(t)
}

func TestPublisherGetsNoSnapshot(t *testing.T) {
	verifyNoLeaks(t)
	relay := startRelay(t, nil)

	pub := relay.connect(t, protocol.RolePublisher)
	pub.expectNothing(t)
}

func TestStateUpdateSkipsSenderAndScanReportReachesPublisher(t *testing.T) {
	verifyNoLeaks(t)
	relay := startRelay(t, nil)

	pub := relay.connect(t, protocol.RolePublisher)
	sub := relay.connect(t, protocol.RoleSubscriber)
	sub.next(t)
	sub.next(t)

	pub.publish(t, protocol.CollectionRoster, []map[string]string{{"id": "EMP001"}})
	requireUpdate(t, sub.next(t), protocol.CollectionRoster, `[{"id":"EMP001"}]`)

	report, err := protocol.NewScanReport(map[string]string{"id": "ATT1", "employeeId": "EMP001"})
	require.NoError(t, err)
	require.NoError(t, sub.Send(report))

	// The publisher's first message is the scan report, not its own update
	got := pub.next(t)
	require.Equal(t, protocol.KindScanReport, got.Kind)
	require.JSONEq(t, `{"id":"ATT1","employeeId":"EMP001"}`, string(got.Payload))

	// Scan reports never touch the cache or reach subscribers
	sub.expectNothing(t)
	require.JSONEq(t, `[]`, string(relay.svc.Snapshot(protocol.CollectionAttendance)))
}

func TestOrderedReplayAndLateSubscriber(t *testing.T) {
	verifyNoLeaks(t)
	relay := startRelay(t, nil)

	pub := relay.connect(t, protocol.RolePublisher)
	early := relay.connect(t, protocol.RoleSubscriber)
	early.next(t)
	early.next(t)

	versions := []string{`[{"id":"EMP001"}]`, `[{"id":"EMP001"},{"id":"EMP002"}]`, `[{"id":"EMP002"}]`}
	for _, v := range versions {
		pub.publish(t, protocol.CollectionRoster, json.RawMessage(v))
	}
	for _, v := range versions {
		requireUpdate(t, early.next(t), protocol.CollectionRoster, v)
	}

	relay.waitForSnapshot(t, protocol.CollectionRoster, versions[2])

	late := relay.connect(t, protocol.RoleSubscriber)
	requireUpdate(t, late.next(t), protocol.CollectionRoster, versions[2])
	requireUpdate(t, late.next(t), protocol.CollectionAttendance, `[]`)
	late.expectNothing(t)
}

func TestLastWriteWinsAcrossPublishers(t *testing.T) {
	verifyNoLeaks(t)
	relay := startRelay(t, nil)

	a := relay.connect(t, protocol.RolePublisher)
	b := relay.connect(t, protocol.RolePublisher)
	sub := relay.connect(t, protocol.RoleSubscriber)
	sub.next(t)
	sub.next(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		env, _ := protocol.NewStateUpdate(protocol.CollectionRoster, json.RawMessage(`[{"id":"A"}]`))
		a.Send(env)
	}()
	go func() {
		defer wg.Done()
		env, _ := protocol.NewStateUpdate(protocol.CollectionRoster, json.RawMessage(`[{"id":"B"}]`))
		b.Send(env)
	}()
	wg.Wait()

	sub.next(t)
	last := sub.next(t)

	// Whatever arrived last at the subscriber is what the relay kept
	require.JSONEq(t, string(last.Payload), string(relay.svc.Snapshot(protocol.CollectionRoster)))
}

func TestResendingTheSameUpdateIsIdempotent(t *testing.T) {
	verifyNoLeaks(t)
	relay := startRelay(t, nil)

	pub := relay.connect(t, protocol.RolePublisher)
	sub := relay.connect(t, protocol.RoleSubscriber)
	sub.next(t)
	sub.next(t)

	value := json.RawMessage(`[{"id":"ATT1","employeeId":"EMP001"}]`)
	pub.publish(t, protocol.CollectionAttendance, value)
	pub.publish(t, protocol.CollectionAttendance, value)

	first, second := sub.next(t), sub.next(t)
	require.JSONEq(t, string(first.Payload), string(second.Payload))
	relay.waitForSnapshot(t, protocol.CollectionAttendance, string(value))
}

func TestMalformedFrameDoesNotDisturbOtherConnections(t *testing.T) {
	verifyNoLeaks(t)
	relay := startRelay(t, nil)

	pub := relay.connect(t, protocol.RolePublisher)
	sub := relay.connect(t, protocol.RoleSubscriber)
	sub.next(t)
	sub.next(t)

	raw, _, err := websocket.DefaultDialer.Dial(relay.wsURL, nil)
	require.NoError(t, err)
	defer raw.Close()

	for _, frame := range []string{
		`not json`,
		`{"kind":"state-update","type":"roster","payload":{"id":"EMP001"}}`,
		`{"kind":"admin-action","type":"employees","payload":[]}`,
	} {
		require.NoError(t, raw.WriteMessage(websocket.TextMessage, []byte(frame)))
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(relay.svc.connectionManager.metrics.dropped.WithLabelValues("malformed")) == 3
	}, waitFor, 10*time.Millisecond)

	pub.publish(t, protocol.CollectionRoster, json.RawMessage(`[{"id":"EMP001"}]`))
	requireUpdate(t, sub.next(t), protocol.CollectionRoster, `[{"id":"EMP001"}]`)

	// The offending connection is still registered and still receives updates
	raw.SetReadDeadline(time.Now().Add(waitFor))
	_, frame, err := raw.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(frame)
	require.NoError(t, err)
	requireUpdate(t, env, protocol.CollectionRoster, `[{"id":"EMP001"}]`)
}

func TestScanReportWithoutPublisherIsDropped(t *testing.T) {
	verifyNoLeaks(t)
	relay := startRelay(t, nil)

	sub := relay.connect(t, protocol.RoleSubscriber)
	sub.next(t)
	sub.next(t)

	report, err := protocol.NewScanReport(map[string]string{"id": "ATT1"})
	require.NoError(t, err)
	require.NoError(t, sub.Send(report))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(relay.svc.connectionManager.metrics.dropped.WithLabelValues("no_publisher")) == 1
	}, waitFor, 10*time.Millisecond)
	sub.expectNothing(t)
}

func TestConnectionStats(t *testing.T) {
	verifyNoLeaks(t)
	relay := startRelay(t, nil)

	relay.connect(t, protocol.RolePublisher)
	sub := relay.connect(t, protocol.RoleSubscriber)
	sub.next(t)
	sub.next(t)
	relay.connect(t, "")

	require.Eventually(t, func() bool {
		stats := relay.svc.GetStats()
		return stats["publishers"] == 1 && stats["subscribers"] == 1 && stats["unannounced"] == 1
	}, waitFor, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	relay.svc.wsHandler.HandleConnectionStats(rec, httptest.NewRequest(http.MethodGet, "/ws/stats", nil))
	require.JSONEq(t, `{"total_connections":3,"publishers":1,"subscribers":1,"unannounced":1}`, rec.Body.String())
}
