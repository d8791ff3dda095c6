package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/kenny-project/kenny/store"
)

type fakeAuditor struct {
	records []store.AuditRecord
}

func (f *fakeAuditor) Record(ctx context.Context, rec store.AuditRecord) (int64, error) {
	rec.ID = int64(len(f.records) + 1)
	f.records = append(f.records, rec)
	return rec.ID, nil
}

func (f *fakeAuditor) HasConfirmedDryRun(ctx context.Context, planID, operationHash string) (bool, error) {
	for _, r := range f.records {
		if r.PlanID == planID && r.OperationHash == operationHash && r.IsDryRun {
			return true, nil
		}
	}
	return false, nil
}

func newSearchTool() *Tool {
	return &Tool{
		Name:        "search_data",
		Description: "search indexed documents",
		Parameters:  map[string]ParamSpec{"query": {Type: TypeString, Required: true}},
		Mutating:    false,
		Execute: func(ctx context.Context, args Args) (Result, error) {
			return Result{Output: "found: " + args["query"].(string)}, nil
		},
	}
}

func newCreateReminderTool() *Tool {
	return &Tool{
		Name:        "create_reminder",
		Description: "create a reminder",
		Parameters:  map[string]ParamSpec{"title": {Type: TypeString, Required: true}},
		Mutating:    true,
		Execute: func(ctx context.Context, args Args) (Result, error) {
			return Result{Output: "created: " + args["title"].(string)}, nil
		},
	}
}

func newFailingTool() *Tool {
	return &Tool{
		Name:     "always_fails",
		Mutating: false,
		Execute: func(ctx context.Context, args Args) (Result, error) {
			return Result{}, errors.New("boom")
		},
	}
}

func TestExecuteReadOnlyToolRunsImmediately(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newSearchTool())
	aud := &fakeAuditor{}
	exec := NewExecutor(reg, aud)

	res, err := exec.Execute(context.Background(), Request{
		ToolName:      "search_data",
		Args:          Args{"query": "dentist"},
		CorrelationID: "c1",
		PlanID:        "p1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "found: dentist" {
		t.Fatalf("unexpected output: %q", res.Output)
	}
	if len(aud.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(aud.records))
	}
}

func TestExecuteMutatingToolRequiresDryRunFirst(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newCreateReminderTool())
	aud := &fakeAuditor{}
	exec := NewExecutor(reg, aud)

	req := Request{
		ToolName: "create_reminder",
		Args:     Args{"title": "call mom"},
		PlanID:   "plan-1",
	}

	if _, err := exec.Execute(context.Background(), req); err == nil {
		t.Fatal("expected ConfirmationMismatchError without a prior dry run")
	} else if _, ok := err.(*ConfirmationMismatchError); !ok {
		t.Fatalf("expected ConfirmationMismatchError, got %v", err)
	}

	dryReq := req
	dryReq.DryRun = true
	dryRes, err := exec.Execute(context.Background(), dryReq)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if !dryRes.WasDryRun || !dryRes.IsMutating || !dryRes.RequiresConfirmation {
		t.Fatalf("expected was_dry_run/is_mutating/requires_confirmation all true, got %+v", dryRes)
	}
	if dryRes.OperationHash == "" {
		t.Fatal("expected a non-empty operation_hash on the dry-run result")
	}

	res, err := exec.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("confirmed execution failed: %v", err)
	}
	if res.Output != "created: call mom" {
		t.Fatalf("unexpected output: %q", res.Output)
	}
}

func TestExecuteMismatchedArgsRequireFreshDryRun(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newCreateReminderTool())
	aud := &fakeAuditor{}
	exec := NewExecutor(reg, aud)

	dryReq := Request{ToolName: "create_reminder", Args: Args{"title": "call mom"}, PlanID: "plan-1", DryRun: true}
	if _, err := exec.Execute(context.Background(), dryReq); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	changedReq := Request{ToolName: "create_reminder", Args: Args{"title": "call dad"}, PlanID: "plan-1"}
	if _, err := exec.Execute(context.Background(), changedReq); err == nil {
		t.Fatal("expected confirmation mismatch for args that differ from the dry run")
	}
}

func TestExecuteValidationFailureIsAudited(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newSearchTool())
	aud := &fakeAuditor{}
	exec := NewExecutor(reg, aud)

	_, err := exec.Execute(context.Background(), Request{ToolName: "search_data", Args: Args{}})
	if _, ok := err.(*MissingParameterError); !ok {
		t.Fatalf("expected MissingParameterError, got %v", err)
	}
	if len(aud.records) != 1 || aud.records[0].Error == "" {
		t.Fatalf("expected validation failure to be audited with an error message")
	}
}

func TestExecuteToolErrorWrappedAsProcessFailed(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newFailingTool())
	aud := &fakeAuditor{}
	exec := NewExecutor(reg, aud)

	_, err := exec.Execute(context.Background(), Request{ToolName: "always_fails"})
	if _, ok := err.(*ProcessFailedError); !ok {
		t.Fatalf("expected ProcessFailedError, got %v", err)
	}
}

func TestExecuteUnknownToolReturnsToolNotFound(t *testing.T) {
	reg := NewRegistry()
	aud := &fakeAuditor{}
	exec := NewExecutor(reg, aud)

	_, err := exec.Execute(context.Background(), Request{ToolName: "nope"})
	if _, ok := err.(*ToolNotFoundError); !ok {
		t.Fatalf("expected ToolNotFoundError, got %v", err)
	}
}

func TestOperationHashStableAcrossKeyOrder(t *testing.T) {
	h1, err := operationHash("create_reminder", Args{"title": "a", "due": "today"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := operationHash("create_reminder", Args{"due": "today", "title": "a"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical hash regardless of map insertion order, got %s vs %s", h1, h2)
	}
}

func TestOperationHashDiffersByArgs(t *testing.T) {
	h1, _ := operationHash("create_reminder", Args{"title": "a"})
	h2, _ := operationHash("create_reminder", Args{"title": "b"})
	if h1 == h2 {
		t.Fatal("expected different args to produce different hashes")
	}
}
