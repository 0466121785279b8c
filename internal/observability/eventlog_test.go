package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndReadEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("NewJSONLEventLog failed: %v", err)
	}
	defer func() { _ = log.Close() }()

	events := []Event{
		{Level: "INFO", Type: EventTaskCreated, Message: "task created"},
		{Level: "ERROR", Type: EventSyncFailed, Message: "remote call failed"},
		{Level: "INFO", Type: EventSyncReloaded, Message: "board reloaded"},
	}
	for _, e := range events {
		if err := log.Write(e); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	all, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("read %d events, want 3", len(all))
	}
	if all[0].Time.IsZero() {
		t.Error("Write did not stamp a time")
	}

	errored, err := log.Read(EventFilter{Level: "ERROR"})
	if err != nil {
		t.Fatalf("filtered Read failed: %v", err)
	}
	if len(errored) != 1 || errored[0].Type != EventSyncFailed {
		t.Fatalf("level filter returned %+v", errored)
	}

	byType, err := log.Read(EventFilter{Type: EventTaskCreated})
	if err != nil {
		t.Fatalf("filtered Read failed: %v", err)
	}
	if len(byType) != 1 {
		t.Fatalf("type filter returned %d events", len(byType))
	}
}

func TestReadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("NewJSONLEventLog failed: %v", err)
	}
	defer func() { _ = log.Close() }()

	if err := log.Write(Event{Level: "INFO", Type: EventTaskMoved, Message: "ok"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("opening log for corruption: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("appending garbage: %v", err)
	}
	_ = f.Close()

	events, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("read %d events, want the 1 valid one", len(events))
	}
}

func TestTimeWindowFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("NewJSONLEventLog failed: %v", err)
	}
	defer func() { _ = log.Close() }()

	old := time.Now().UTC().Add(-48 * time.Hour)
	if err := log.Write(Event{Time: old, Level: "INFO", Type: EventAuthRefreshed}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := log.Write(Event{Level: "INFO", Type: EventAuthRefreshed}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	since := time.Now().UTC().Add(-time.Hour)
	recent, err := log.Read(EventFilter{Since: &since})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("since filter returned %d events, want 1", len(recent))
	}
}

func TestNopLogDiscards(t *testing.T) {
	log := Nop()
	if err := log.Write(Event{Type: EventTaskCreated}); err != nil {
		t.Fatalf("nop Write failed: %v", err)
	}
	events, err := log.Read(EventFilter{})
	if err != nil || events != nil {
		t.Fatalf("nop Read = %v, %v", events, err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("nop Close failed: %v", err)
	}
}
