//go:build cgo

package builtin

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/kenny-project/kenny/broker"
	"github.com/kenny-project/kenny/store"
	"github.com/kenny-project/kenny/tools"
)

func newTestStoreAndBroker(t *testing.T) (*store.Store, *broker.Broker) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), 4)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	b := broker.New(s.DB(), 4)
	t.Cleanup(func() {
		b.Close(context.Background())
		s.Close()
	})
	return s, b
}

func TestCreateReminderExecute(t *testing.T) {
	_, b := newTestStoreAndBroker(t)
	tool := CreateReminder(b)

	res, err := tool.Execute(context.Background(), tools.Args{"title": "call mom", "list_name": "personal"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Output == "" {
		t.Fatal("expected non-empty output")
	}
}

func TestAppendNoteCreatesThenAppends(t *testing.T) {
	_, b := newTestStoreAndBroker(t)
	tool := AppendNote(b)
	ctx := context.Background()

	if _, err := tool.Execute(ctx, tools.Args{"title": "groceries", "text": "milk"}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	res, err := tool.Execute(ctx, tools.Args{"title": "groceries", "text": "eggs"})
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if res.Output == "" {
		t.Fatal("expected non-empty output")
	}
}

func TestListUpcomingEventsEmpty(t *testing.T) {
	s, _ := newTestStoreAndBroker(t)
	tool := ListUpcomingEvents(s)

	res, err := tool.Execute(context.Background(), tools.Args{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var rows []eventRow
	if err := json.Unmarshal([]byte(res.Output), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no events in an empty store, got %d", len(rows))
	}
}
