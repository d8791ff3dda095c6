package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kenny-project/kenny/store"
)

// auditor is the subset of telemetry.Auditor the executor needs.
type auditor interface {
	Record(ctx context.Context, rec store.AuditRecord) (int64, error)
	HasConfirmedDryRun(ctx context.Context, planID, operationHash string) (bool, error)
}

// Executor runs tools out of a Registry under the dry-run/confirm
// protocol, auditing every call.
type Executor struct {
	registry *Registry
	auditor  auditor
}

// NewExecutor returns an Executor backed by the given registry and
// audit trail.
func NewExecutor(registry *Registry, auditor auditor) *Executor {
	return &Executor{registry: registry, auditor: auditor}
}

// Request is one call into the Executor: the tool name, its arguments,
// and the protocol envelope (correlation/plan identifiers, step index,
// and whether this is a dry run).
type Request struct {
	ToolName      string
	Args          Args
	CorrelationID string
	PlanID        string
	StepIndex     int
	DryRun        bool
}

// NewCorrelationID and NewPlanID generate the identifiers a caller
// attaches to a Request; one correlation_id spans an entire reasoning-
// loop run, one plan_id spans the dry-run/confirm pair for a single
// operation.
func NewCorrelationID() string { return uuid.NewString() }
func NewPlanID() string        { return uuid.NewString() }

// Execute validates args, enforces the dry-run/confirm protocol for
// mutating tools, runs the tool, and records an audit record for every
// outcome — including validation failures, which are audited with a
// non-empty Error and no Result.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	tool, err := e.registry.Get(req.ToolName)
	if err != nil {
		e.audit(ctx, req, req.ToolName, "", false, Result{}, err, 0)
		return Result{}, err
	}

	stripped := StripReserved(req.Args)
	if err := Validate(tool, stripped); err != nil {
		e.audit(ctx, req, tool.Name, "", false, Result{}, err, 0)
		return Result{}, err
	}

	hash, err := operationHash(tool.Name, stripped)
	if err != nil {
		failed := &ProcessFailedError{Tool: tool.Name, Msg: err.Error()}
		e.audit(ctx, req, tool.Name, "", false, Result{}, failed, 0)
		return Result{}, failed
	}

	if tool.Mutating && !req.DryRun {
		confirmed, err := e.auditor.HasConfirmedDryRun(ctx, req.PlanID, hash)
		if err != nil {
			failed := &ProcessFailedError{Tool: tool.Name, Msg: err.Error()}
			e.audit(ctx, req, tool.Name, hash, false, Result{}, failed, 0)
			return Result{}, failed
		}
		if !confirmed {
			mismatch := &ConfirmationMismatchError{Tool: tool.Name, OperationHash: hash}
			e.audit(ctx, req, tool.Name, hash, false, Result{}, mismatch, 0)
			return Result{}, mismatch
		}
	}

	if req.DryRun {
		res := Result{
			Output:               "",
			Summary:              "dry run: would execute " + tool.Name,
			WasDryRun:            true,
			IsMutating:           tool.Mutating,
			RequiresConfirmation: tool.Mutating,
			OperationHash:        hash,
		}
		e.audit(ctx, req, tool.Name, hash, true, res, nil, 0)
		return res, nil
	}

	start := time.Now()
	res, execErr := tool.Execute(ctx, stripped)
	elapsed := time.Since(start)

	if execErr != nil {
		wrapped := &ProcessFailedError{Tool: tool.Name, Msg: execErr.Error()}
		e.audit(ctx, req, tool.Name, hash, false, Result{}, wrapped, elapsed)
		return Result{}, wrapped
	}

	e.audit(ctx, req, tool.Name, hash, false, res, nil, elapsed)
	return res, nil
}

func (e *Executor) audit(ctx context.Context, req Request, toolName, hash string, isDryRun bool, res Result, err error, elapsed time.Duration) {
	rec := store.AuditRecord{
		CorrelationID: req.CorrelationID,
		PlanID:        req.PlanID,
		StepIndex:     req.StepIndex,
		ToolName:      toolName,
		IsDryRun:      isDryRun,
		Result:        res.Output,
		OperationHash: hash,
		DurationMS:    elapsed.Milliseconds(),
	}
	if argsJSON, jerr := json.Marshal(StripReserved(req.Args)); jerr == nil {
		rec.Arguments = string(argsJSON)
	}
	if err != nil {
		rec.Error = err.Error()
	}
	// Auditing is best-effort: a logging failure must never mask the
	// real result of a tool call to the reasoning loop.
	_, _ = e.auditor.Record(ctx, rec)
}

// operationHash computes SHA-256(tool_name || canonical_json(args)).
// encoding/json already serializes map[string]any keys in sorted order,
// so marshaling the stripped args map is already canonical.
func operationHash(toolName string, args Args) (string, error) {
	canonical, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
