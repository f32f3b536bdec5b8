package store

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v := json.RawMessage(`{"name":"a","n":1}`)
	if err := s.Append(ctx, 7, "k", v); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.ReadAll(ctx, 7, "k")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || string(got[0]) != string(v) {
		t.Fatalf("read after append = %v, want [%s]", got, v)
	}

	// Repeated reads before any mutation return identical results.
	again, err := s.ReadAll(ctx, 7, "k")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(again) != 1 || string(again[0]) != string(v) {
		t.Fatalf("second read = %v, want [%s]", again, v)
	}

	if err := s.Remove(ctx, 7, "k", v); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, _ = s.ReadAll(ctx, 7, "k")
	if len(got) != 0 {
		t.Fatalf("read after remove = %v, want empty", got)
	}
}

func TestMemoryStoreRemoveIsStructural(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Append(ctx, 1, "k", json.RawMessage(`{"a":1,"b":"x"}`)); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Same document, different field order and whitespace.
	if err := s.Remove(ctx, 1, "k", json.RawMessage(`{ "b": "x", "a": 1 }`)); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got, _ := s.ReadAll(ctx, 1, "k")
	if len(got) != 0 {
		t.Fatalf("structural remove left %v", got)
	}
}

func TestMemoryStoreRemoveFirstMatchOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v := json.RawMessage(`{"a":1}`)
	_ = s.Append(ctx, 1, "k", v)
	_ = s.Append(ctx, 1, "k", v)

	if err := s.Remove(ctx, 1, "k", v); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, _ := s.ReadAll(ctx, 1, "k")
	if len(got) != 1 {
		t.Fatalf("remove deleted %d values, want exactly one left", 2-len(got))
	}
}

func TestMemoryStoreRemoveMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Remove(ctx, 1, "k", json.RawMessage(`{"a":1}`)); err != nil {
		t.Fatalf("remove on empty store: %v", err)
	}
}

func TestMemoryStoreDeleteAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.Append(ctx, 1, "k", json.RawMessage(`1`))
	_ = s.Append(ctx, 1, "k", json.RawMessage(`2`))
	_ = s.Append(ctx, 1, "other", json.RawMessage(`3`))

	if err := s.DeleteAll(ctx, 1, "k"); err != nil {
		t.Fatalf("delete all: %v", err)
	}

	got, _ := s.ReadAll(ctx, 1, "k")
	if len(got) != 0 {
		t.Fatalf("delete all left %v", got)
	}
	other, _ := s.ReadAll(ctx, 1, "other")
	if len(other) != 1 {
		t.Fatalf("delete all touched another key: %v", other)
	}
}

func TestMemoryStoreEventIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.Append(ctx, 9, "k", json.RawMessage(`1`))
	_ = s.Append(ctx, 7, "k", json.RawMessage(`2`))
	_ = s.Append(ctx, 7, "k", json.RawMessage(`3`))
	_ = s.Append(ctx, 8, "unrelated", json.RawMessage(`4`))

	ids, err := s.EventIDs(ctx, "k")
	if err != nil {
		t.Fatalf("event ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 7 || ids[1] != 9 {
		t.Fatalf("event ids = %v, want [7 9]", ids)
	}

	n, err := s.CountAll(ctx, "k")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
}
