package telemetry

import (
	"context"
	"testing"

	"github.com/kenny-project/kenny/store"
)

type fakeAuditStore struct {
	records []store.AuditRecord
}

func (f *fakeAuditStore) InsertAuditRecord(ctx context.Context, a store.AuditRecord) (int64, error) {
	a.ID = int64(len(f.records) + 1)
	f.records = append(f.records, a)
	return a.ID, nil
}

func (f *fakeAuditStore) HasDryRunAudit(ctx context.Context, planID, operationHash string) (bool, error) {
	for _, r := range f.records {
		if r.PlanID == planID && r.OperationHash == operationHash && r.IsDryRun {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAuditStore) AuditRecordsByCorrelation(ctx context.Context, correlationID string) ([]store.AuditRecord, error) {
	var out []store.AuditRecord
	for _, r := range f.records {
		if r.CorrelationID == correlationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) AuditRecordsByPlan(ctx context.Context, planID string) ([]store.AuditRecord, error) {
	var out []store.AuditRecord
	for _, r := range f.records {
		if r.PlanID == planID {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestAuditorHasConfirmedDryRun(t *testing.T) {
	fs := &fakeAuditStore{}
	a := NewAuditor(fs)
	ctx := context.Background()

	ok, err := a.HasConfirmedDryRun(ctx, "plan-1", "hash-1")
	if err != nil || ok {
		t.Fatalf("expected no dry-run recorded yet: ok=%v err=%v", ok, err)
	}

	if _, err := a.Record(ctx, store.AuditRecord{PlanID: "plan-1", OperationHash: "hash-1", IsDryRun: true, CorrelationID: "corr-1"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	ok, err = a.HasConfirmedDryRun(ctx, "plan-1", "hash-1")
	if err != nil || !ok {
		t.Fatalf("expected dry-run to be found: ok=%v err=%v", ok, err)
	}
}

func TestAuditorByCorrelationAndPlan(t *testing.T) {
	fs := &fakeAuditStore{}
	a := NewAuditor(fs)
	ctx := context.Background()

	a.Record(ctx, store.AuditRecord{CorrelationID: "c1", PlanID: "p1"})
	a.Record(ctx, store.AuditRecord{CorrelationID: "c1", PlanID: "p2"})
	a.Record(ctx, store.AuditRecord{CorrelationID: "c2", PlanID: "p1"})

	byCorr, err := a.ByCorrelation(ctx, "c1")
	if err != nil || len(byCorr) != 2 {
		t.Fatalf("expected 2 records for c1, got %d err=%v", len(byCorr), err)
	}

	byPlan, err := a.ByPlan(ctx, "p1")
	if err != nil || len(byPlan) != 2 {
		t.Fatalf("expected 2 records for p1, got %d err=%v", len(byPlan), err)
	}
}
