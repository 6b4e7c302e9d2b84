package archive

import (
	"context"
	"testing"
)

func TestMemoryArchive_AppendAndHistory(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()

	if err := a.Append(ctx, "s1", []byte(`{"text":"hello"}`)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := a.Append(ctx, "s1", []byte(`{"text":"world"}`)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := a.Append(ctx, "s2", []byte(`{"text":"other"}`)); err != nil {
		t.Fatalf("append: %v", err)
	}

	history, err := a.History(ctx, "s1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if string(history[0]) != `{"text":"hello"}` {
		t.Errorf("messages out of order: %s", history[0])
	}

	other, _ := a.History(ctx, "s2")
	if len(other) != 1 {
		t.Errorf("sessions must be isolated, got %d messages", len(other))
	}
}

func TestMemoryArchive_HistoryIsACopy(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()
	a.Append(ctx, "s", []byte("one"))

	history, _ := a.History(ctx, "s")
	history[0][0] = 'X'

	again, _ := a.History(ctx, "s")
	if string(again[0]) != "one" {
		t.Error("mutating returned history must not corrupt the archive")
	}
}

func TestSessionKey(t *testing.T) {
	if got := sessionKey("abc"); got != "support:abc" {
		t.Errorf("expected support:abc, got %s", got)
	}
}
