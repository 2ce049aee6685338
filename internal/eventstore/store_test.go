package eventstore

import (
	"context"
	"path/filepath"
	"testing"
)

func TestAppendAndGetByRunID(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Append(ctx, "run-1", "RunStarted", nil, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, "run-1", "StageCompleted", []byte(`{"stage":"ingestion"}`), map[string]string{"stage": "ingestion"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, "run-2", "RunStarted", nil, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := store.GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByRunID: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != "RunStarted" || events[1].Type != "StageCompleted" {
		t.Errorf("order = %s, %s", events[0].Type, events[1].Type)
	}
	if events[1].Metadata["stage"] != "ingestion" {
		t.Errorf("metadata = %v", events[1].Metadata)
	}
	if string(events[1].Payload) != `{"stage":"ingestion"}` {
		t.Errorf("payload = %s", events[1].Payload)
	}
}

func TestGetByRunIDUnknownRun(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	events, err := store.GetByRunID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetByRunID: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want 0", len(events))
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Append(context.Background(), "run-1", "RunCompleted", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	events, err := reopened.GetByRunID(context.Background(), "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("events = %d, want 1", len(events))
	}
}
