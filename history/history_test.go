package history

import (
	"context"
	"testing"
	"time"

	"github.com/gwww/upb-lib/events"
	"github.com/gwww/upb-lib/registry"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func testDevice(level int) registry.Device {
	return registry.Device{
		Addr: registry.DeviceAddr{Network: 194, Device: 9},
		Status: registry.Status{
			Level:     level,
			Known:     true,
			UpdatedAt: time.Now().UTC(),
		},
	}
}

func TestRecordAndHistory(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()

	for _, level := range []int{0, 50, 100} {
		if err := r.Record(ctx, testDevice(level), "test"); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := r.History(ctx, "194_9_0", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("History() returned %d entries, want 3", len(entries))
	}

	// Newest first.
	if entries[0].State.Level != 100 || entries[2].State.Level != 0 {
		t.Errorf("levels = %d..%d, want 100..0",
			entries[0].State.Level, entries[2].State.Level)
	}
	if entries[0].Source != "test" {
		t.Errorf("source = %q", entries[0].Source)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("created_at not recorded")
	}
}

func TestHistoryLimit(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := r.Record(ctx, testDevice(i), "test"); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := r.History(ctx, "194_9_0", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Errorf("History(limit=4) returned %d entries", len(entries))
	}
}

func TestHistoryUnknownDevice(t *testing.T) {
	r := openTestRecorder(t)

	entries, err := r.History(context.Background(), "1_1_0", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("History() returned %d entries, want 0", len(entries))
	}
}

func TestAttachRecordsBusEvents(t *testing.T) {
	r := openTestRecorder(t)
	bus := events.New()
	r.Attach(bus)

	dev := testDevice(75)
	bus.Publish(events.Event{Topic: events.DeviceUpdated, Device: &dev})

	entries, err := r.History(context.Background(), "194_9_0", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].State.Level != 75 {
		t.Fatalf("entries = %+v, want one level-75 entry", entries)
	}
}

func TestPrune(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()

	old := testDevice(10)
	old.Status.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := r.Record(ctx, old, "test"); err != nil {
		t.Fatal(err)
	}
	if err := r.Record(ctx, testDevice(20), "test"); err != nil {
		t.Fatal(err)
	}

	deleted, err := r.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Prune() deleted %d rows, want 1", deleted)
	}

	entries, err := r.History(ctx, "194_9_0", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].State.Level != 20 {
		t.Errorf("remaining entries = %+v", entries)
	}
}

func TestPruneRejectsNonPositive(t *testing.T) {
	r := openTestRecorder(t)
	if _, err := r.Prune(context.Background(), 0); err == nil {
		t.Error("Prune(0) should error")
	}
}
