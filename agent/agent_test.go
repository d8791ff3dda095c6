package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/kenny-project/kenny/llm"
	"github.com/kenny-project/kenny/store"
	"github.com/kenny-project/kenny/tools"
)

// scriptedChat returns canned JSON tool-selection responses in order,
// one per call to Chat.
type scriptedChat struct {
	responses []string
	calls     int
}

func (s *scriptedChat) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if s.calls >= len(s.responses) {
		return nil, fmt.Errorf("no more scripted responses")
	}
	resp := s.responses[s.calls]
	s.calls++
	return &llm.ChatResponse{Content: resp}, nil
}

func (s *scriptedChat) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("embed not supported by scriptedChat")
}

type fakeAuditor struct{ records []store.AuditRecord }

func (f *fakeAuditor) Record(ctx context.Context, rec store.AuditRecord) (int64, error) {
	f.records = append(f.records, rec)
	return int64(len(f.records)), nil
}

func (f *fakeAuditor) HasConfirmedDryRun(ctx context.Context, planID, operationHash string) (bool, error) {
	for _, r := range f.records {
		if r.PlanID == planID && r.OperationHash == operationHash && r.IsDryRun {
			return true, nil
		}
	}
	return false, nil
}

func newRegistryWithSearchTool(execFn func(ctx context.Context, args tools.Args) (tools.Result, error)) *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(&tools.Tool{
		Name:        "search_data",
		Description: "search the index",
		Mutating:    false,
		Parameters:  map[string]tools.ParamSpec{"query": {Type: tools.TypeString, Required: true}},
		Execute:     execFn,
	})
	return reg
}

func toolJSON(tool string, args map[string]any) string {
	b, _ := json.Marshal(map[string]any{"tool": tool, "args": args})
	return string(b)
}

func TestRunSucceedsOnFirstRound(t *testing.T) {
	reg := newRegistryWithSearchTool(func(ctx context.Context, args tools.Args) (tools.Result, error) {
		return tools.Result{Output: "found it"}, nil
	})
	chat := &scriptedChat{responses: []string{toolJSON("search_data", map[string]any{"query": "dentist"})}}
	exec := tools.NewExecutor(reg, &fakeAuditor{})
	eng := New(chat, reg, exec, Config{MaxRounds: 3})

	res, err := eng.Run(context.Background(), "find the dentist appointment")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success || res.Rounds != 1 {
		t.Fatalf("expected success on round 1, got %+v", res)
	}
}

func TestRunRetriesOnExecutionFailureThenSucceeds(t *testing.T) {
	attempt := 0
	reg := newRegistryWithSearchTool(func(ctx context.Context, args tools.Args) (tools.Result, error) {
		attempt++
		if attempt == 1 {
			return tools.Result{}, fmt.Errorf("transient failure")
		}
		return tools.Result{Output: "found it"}, nil
	})
	chat := &scriptedChat{responses: []string{
		toolJSON("search_data", map[string]any{"query": "dentist"}),
		toolJSON("search_data", map[string]any{"query": "dentist appointment"}),
	}}
	exec := tools.NewExecutor(reg, &fakeAuditor{})
	eng := New(chat, reg, exec, Config{MaxRounds: 3})

	res, err := eng.Run(context.Background(), "find the dentist appointment")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success || res.Rounds != 2 {
		t.Fatalf("expected success on round 2, got %+v", res)
	}
}

func TestRunFailsImmediatelyOnValidationError(t *testing.T) {
	reg := newRegistryWithSearchTool(func(ctx context.Context, args tools.Args) (tools.Result, error) {
		t.Fatal("tool should never execute when validation fails")
		return tools.Result{}, nil
	})
	chat := &scriptedChat{responses: []string{
		toolJSON("search_data", map[string]any{}), // missing required "query"
		toolJSON("search_data", map[string]any{"query": "would never be reached"}),
	}}
	exec := tools.NewExecutor(reg, &fakeAuditor{})
	eng := New(chat, reg, exec, Config{MaxRounds: 3})

	res, err := eng.Run(context.Background(), "find something")
	if err == nil {
		t.Fatal("expected an error for a validation failure")
	}
	if res.Success || res.Rounds != 1 {
		t.Fatalf("expected immediate failure on round 1 without retry, got %+v", res)
	}
	if chat.calls != 1 {
		t.Fatalf("expected exactly 1 chat call (no retry after validation failure), got %d", chat.calls)
	}
}

func TestRunRetriesUnknownToolSelectionThenSucceeds(t *testing.T) {
	reg := newRegistryWithSearchTool(func(ctx context.Context, args tools.Args) (tools.Result, error) {
		return tools.Result{Output: "found it"}, nil
	})
	chat := &scriptedChat{responses: []string{
		toolJSON("lookup_data", map[string]any{"query": "dentist"}), // not in the catalog
		toolJSON("search_data", map[string]any{"query": "dentist"}),
	}}
	exec := tools.NewExecutor(reg, &fakeAuditor{})
	eng := New(chat, reg, exec, Config{MaxRounds: 3})

	res, err := eng.Run(context.Background(), "find the dentist appointment")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success || res.Rounds != 2 {
		t.Fatalf("expected success on round 2 after an unknown-tool retry, got %+v", res)
	}
	if chat.calls != 2 {
		t.Fatalf("expected 2 chat calls (select, retry-with-alternatives), got %d", chat.calls)
	}
}

func TestRunExhaustsRoundsAndFails(t *testing.T) {
	reg := newRegistryWithSearchTool(func(ctx context.Context, args tools.Args) (tools.Result, error) {
		return tools.Result{}, fmt.Errorf("always fails")
	})
	chat := &scriptedChat{responses: []string{
		toolJSON("search_data", map[string]any{"query": "a"}),
		toolJSON("search_data", map[string]any{"query": "b"}),
	}}
	exec := tools.NewExecutor(reg, &fakeAuditor{})
	eng := New(chat, reg, exec, Config{MaxRounds: 2})

	res, err := eng.Run(context.Background(), "find something")
	if err == nil {
		t.Fatal("expected an error after exhausting rounds")
	}
	if res.Success || res.Rounds != 2 {
		t.Fatalf("expected failure after 2 rounds, got %+v", res)
	}
}

func TestRunMutatingToolGoesThroughDryRunThenConfirm(t *testing.T) {
	var calls []bool // records whether args contained a dry-run marker isn't tracked by Execute; track call count instead
	reg := tools.NewRegistry()
	reg.Register(&tools.Tool{
		Name:       "create_reminder",
		Mutating:   true,
		Parameters: map[string]tools.ParamSpec{"title": {Type: tools.TypeString, Required: true}},
		Execute: func(ctx context.Context, args tools.Args) (tools.Result, error) {
			calls = append(calls, true)
			return tools.Result{Output: "created"}, nil
		},
	})
	chat := &scriptedChat{responses: []string{toolJSON("create_reminder", map[string]any{"title": "call mom"})}}
	exec := tools.NewExecutor(reg, &fakeAuditor{})
	eng := New(chat, reg, exec, Config{MaxRounds: 1})

	res, err := eng.Run(context.Background(), "remind me to call mom")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	// A dry run never calls Execute (the executor short-circuits it), so
	// exactly one real call should have reached the tool's Execute func.
	if len(calls) != 1 {
		t.Fatalf("expected exactly 1 real execution (dry run doesn't call Execute), got %d", len(calls))
	}
}
