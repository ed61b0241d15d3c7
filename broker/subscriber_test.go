package broker

import (
	"encoding/json"
	"testing"

	"github.com/xraph/pulse/event"
)

func TestSendEvictsOldestWhenFull(t *testing.T) {
	t.Parallel()

	sub := newSubscription("c1", "org-1", 2)

	if !sub.send(runCompleted("org-1", "1", 1)) {
		t.Fatal("first send rejected")
	}
	if !sub.send(runCompleted("org-1", "2", 1)) {
		t.Fatal("second send rejected")
	}
	// Buffer full: the oldest event is evicted to make room.
	if !sub.send(runCompleted("org-1", "3", 1)) {
		t.Fatal("send into full buffer rejected, want eviction")
	}

	got := (<-sub.C()).RunID
	if got != "2" {
		t.Errorf("head after eviction = run %q, want 2", got)
	}
	if sub.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", sub.Dropped())
	}
}

func TestSendEvictsHeartbeatForFree(t *testing.T) {
	t.Parallel()

	sub := newSubscription("c1", "org-1", 1)

	if !sub.send(event.Heartbeat()) {
		t.Fatal("heartbeat send rejected")
	}
	if !sub.send(runCompleted("org-1", "1", 1)) {
		t.Fatal("send rejected, want heartbeat evicted")
	}

	if evt := <-sub.C(); evt.Type != event.TypeRunCompleted {
		t.Fatalf("got %q, want run_completed after heartbeat eviction", evt.Type)
	}
	if sub.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0 for evicted heartbeat", sub.Dropped())
	}
}

func TestDroppedMarkerPrecedesNextEvent(t *testing.T) {
	t.Parallel()

	sub := newSubscription("c1", "org-1", 4)

	// Record two drops without enqueuing anything.
	sub.dropped.Store(2)

	if !sub.send(runCompleted("org-1", "9", 1)) {
		t.Fatal("send rejected")
	}

	first := <-sub.C()
	if first.Type != event.TypeEventsDropped {
		t.Fatalf("first envelope type = %q, want events_dropped", first.Type)
	}
	raw, ok := first.Extra["dropped"]
	if !ok {
		t.Fatal("events_dropped marker missing dropped count")
	}
	var count int64
	if err := json.Unmarshal(raw, &count); err != nil {
		t.Fatalf("decode dropped count: %v", err)
	}
	if count != 2 {
		t.Errorf("marker count = %d, want 2", count)
	}

	if second := <-sub.C(); second.RunID != "9" {
		t.Errorf("second envelope run = %q, want 9", second.RunID)
	}
	if sub.Dropped() != 0 {
		t.Errorf("dropped = %d after marker, want 0", sub.Dropped())
	}
}

func TestSendAfterCloseIsRejected(t *testing.T) {
	t.Parallel()

	sub := newSubscription("c1", "org-1", 4)
	sub.close()
	sub.close() // idempotent

	if sub.send(runCompleted("org-1", "1", 1)) {
		t.Error("send after close succeeded, want rejection")
	}
	if _, open := <-sub.C(); open {
		t.Error("sink still open after close")
	}
}
