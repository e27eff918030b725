package store

import (
	"context"
	"testing"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	refs, err := m.Get(ctx, "s1", KeyCaptured)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("missing list = %v, want empty", refs)
	}

	want := []string{"a", "b", "c"}
	if err := m.Put(ctx, "s1", KeyCaptured, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	want[0] = "mutated"

	got, err := m.Get(ctx, "s1", KeyCaptured)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("got %v, want [a b c]", got)
	}

	other, _ := m.Get(ctx, "s2", KeyCaptured)
	if len(other) != 0 {
		t.Fatalf("sessions must be isolated, got %v", other)
	}
}

func TestMemoryValidation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Put(ctx, "", KeySelected, nil); err == nil {
		t.Fatal("expected error for empty session")
	}
	if _, err := m.Get(ctx, "s", " "); err == nil {
		t.Fatal("expected error for empty key")
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := m.Put(canceled, "s", KeySelected, []string{"x"}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
