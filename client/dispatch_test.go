package client

import (
	"log/slog"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/xraph/pulse/cache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newDispatchClient(rec *cache.Recorder) *Client {
	return New("http://unused", rec, WithLogger(testLogger()), WithTenant("org-1"))
}

func TestDispatchRunEventInvalidatesRunCaches(t *testing.T) {
	t.Parallel()

	rec := &cache.Recorder{}
	c := newDispatchClient(rec)

	c.dispatch([]byte(`{"type":"workflow_run_completed","tenant_id":"org-1","run_id":"42","run_attempt":2}`))

	want := []string{
		"workflow-runs/org-1",
		"dashboard-stats/org-1",
		"workflow-run/org-1/42",
		"workflow-run/org-1/42/2",
	}
	if got := rec.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestDispatchRunEventWithoutAttemptSkipsAttemptKey(t *testing.T) {
	t.Parallel()

	rec := &cache.Recorder{}
	c := newDispatchClient(rec)

	c.dispatch([]byte(`{"type":"workflow_run_queued","tenant_id":"org-1","run_id":"7"}`))

	want := []string{
		"workflow-runs/org-1",
		"dashboard-stats/org-1",
		"workflow-run/org-1/7",
	}
	if got := rec.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestDispatchJobEventInvalidatesOwningRun(t *testing.T) {
	t.Parallel()

	rec := &cache.Recorder{}
	c := newDispatchClient(rec)

	c.dispatch([]byte(`{"type":"workflow_job_completed","tenant_id":"org-1","run_id":"42","run_attempt":1}`))

	want := []string{
		"workflow-run/org-1/42",
		"workflow-run/org-1/42/1",
		"jobs/org-1",
		"dashboard-stats/org-1",
	}
	if got := rec.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestDispatchLegacyJobUpdatedTakesJobPath(t *testing.T) {
	t.Parallel()

	rec := &cache.Recorder{}
	c := newDispatchClient(rec)

	c.dispatch([]byte(`{"type":"job_updated","tenant_id":"org-1","run_id":"42"}`))

	want := []string{
		"workflow-run/org-1/42",
		"jobs/org-1",
		"dashboard-stats/org-1",
	}
	if got := rec.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestDispatchControlEnvelopesDoNotInvalidate(t *testing.T) {
	t.Parallel()

	rec := &cache.Recorder{}
	c := newDispatchClient(rec)

	c.dispatch([]byte(`{"type":"heartbeat"}`))
	c.dispatch([]byte(`{"type":"connected","tenant_id":"org-9"}`))

	if calls := rec.Calls(); len(calls) != 0 {
		t.Errorf("control envelopes caused invalidations: %v", calls)
	}
	// The connected envelope still teaches the client its tenant.
	if got := c.Tenant(); got != "org-9" {
		t.Errorf("tenant = %q, want org-9", got)
	}
}

func TestDispatchDroppedMarkerRefreshesEverything(t *testing.T) {
	t.Parallel()

	rec := &cache.Recorder{}
	c := newDispatchClient(rec)

	c.dispatch([]byte(`{"type":"events_dropped","tenant_id":"org-1","dropped":3}`))

	want := []string{
		"workflow-runs/org-1",
		"jobs/org-1",
		"runners/org-1",
	}
	if got := rec.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestDispatchMalformedAndUnknownAreIgnored(t *testing.T) {
	t.Parallel()

	rec := &cache.Recorder{}
	c := newDispatchClient(rec)

	c.dispatch([]byte(`{not json`))
	c.dispatch([]byte(`{"type":"deployment_started","tenant_id":"org-1"}`))

	if calls := rec.Calls(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
}

func TestReadEventsParsesSSEFraming(t *testing.T) {
	t.Parallel()

	rec := &cache.Recorder{}
	c := newDispatchClient(rec)

	stream := strings.Join([]string{
		": stream comment",
		"data: {\"type\":\"connected\",\"tenant_id\":\"org-1\"}",
		"",
		"event: message",
		"id: 3",
		"data: {\"type\":\"workflow_run_completed\",",
		"data: \"tenant_id\":\"org-1\",\"run_id\":\"42\"}",
		"",
		"data: {\"type\":\"heartbeat\"}",
		"",
	}, "\n")

	if err := c.readEvents(strings.NewReader(stream)); err != nil {
		t.Fatalf("readEvents: %v", err)
	}

	want := []string{
		"workflow-runs/org-1",
		"dashboard-stats/org-1",
		"workflow-run/org-1/42",
	}
	if got := rec.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}
