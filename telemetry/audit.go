package telemetry

import (
	"context"

	"github.com/kenny-project/kenny/store"
)

// auditStore is the subset of *store.Store the audit trail needs.
type auditStore interface {
	InsertAuditRecord(ctx context.Context, a store.AuditRecord) (int64, error)
	HasDryRunAudit(ctx context.Context, planID, operationHash string) (bool, error)
	AuditRecordsByCorrelation(ctx context.Context, correlationID string) ([]store.AuditRecord, error)
	AuditRecordsByPlan(ctx context.Context, planID string) ([]store.AuditRecord, error)
}

// Auditor persists the append-only trail of tool invocations.
type Auditor struct {
	store auditStore
}

// NewAuditor returns an Auditor backed by the given store.
func NewAuditor(s auditStore) *Auditor {
	return &Auditor{store: s}
}

// Record writes one audit entry for a tool invocation, dry-run or real.
func (a *Auditor) Record(ctx context.Context, rec store.AuditRecord) (int64, error) {
	return a.store.InsertAuditRecord(ctx, rec)
}

// HasConfirmedDryRun reports whether a dry-run with the given operation
// hash was already recorded for this plan — the safety invariant a
// mutating tool's confirm step checks before actually executing.
func (a *Auditor) HasConfirmedDryRun(ctx context.Context, planID, operationHash string) (bool, error) {
	return a.store.HasDryRunAudit(ctx, planID, operationHash)
}

// ByCorrelation returns every audit record sharing a correlation_id, in
// the order tool calls occurred within one reasoning-loop run.
func (a *Auditor) ByCorrelation(ctx context.Context, correlationID string) ([]store.AuditRecord, error) {
	return a.store.AuditRecordsByCorrelation(ctx, correlationID)
}

// ByPlan returns every audit record sharing a plan_id.
func (a *Auditor) ByPlan(ctx context.Context, planID string) ([]store.AuditRecord, error) {
	return a.store.AuditRecordsByPlan(ctx, planID)
}
