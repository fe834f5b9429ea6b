package memory

import (
	"context"
	"errors"
	"testing"

	"batchcore/pkg/domain"
)

func seedBatch(t *testing.T, store *Store, id string) BatchRecord {
	t.Helper()
	var created BatchRecord
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateBatch(BatchRecord{ID: id, Region: "west", Outcome: domain.OutcomePlanned})
		return err
	})
	if err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	return created
}

func TestRunInTransactionCommitsOnSuccess(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.PutResourceGroup(domain.ResourceGroup{ID: "sea-1", Kind: domain.KindSeaArea, UnitCount: 4}); err != nil {
			return err
		}
		b, err := tx.CreateBatch(BatchRecord{ID: "batch-0001", Region: "west", Outcome: domain.OutcomePlanned})
		if err != nil {
			return err
		}
		_, err = tx.CreateAssignment(AssignmentRecord{
			BatchID: b.ID,
			Entry: domain.ScheduleEntry{
				BatchID: b.ID, Stage: "grow", GroupID: "sea-1",
				UnitIDs: []string{"sea-1-u00"}, StartDay: 0, EndDay: 10,
			},
			ActualEndDay: 10,
		})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if got := store.ListBatches(); len(got) != 1 || got[0].ID != "batch-0001" {
		t.Fatalf("unexpected batches: %+v", got)
	}
	if got := store.ListAssignments(); len(got) != 1 || got[0].Entry.GroupID != "sea-1" {
		t.Fatalf("unexpected assignments: %+v", got)
	}
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	store := NewStore(nil)
	sentinel := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateBatch(BatchRecord{ID: "batch-0001"}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("want sentinel, got %v", err)
	}
	if got := store.ListBatches(); len(got) != 0 {
		t.Fatalf("failed transaction leaked state: %+v", got)
	}
}

type alwaysBlockRule struct{}

func (alwaysBlockRule) Name() string { return "always_block" }

func (alwaysBlockRule) Evaluate(context.Context, domain.RuleView) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{
		Rule: "always_block", Severity: domain.SeverityBlock, Message: "nope",
	}}}, nil
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(alwaysBlockRule{})
	store := NewStore(engine)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateBatch(BatchRecord{ID: "batch-0001"})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("want RuleViolationError, got %v", err)
	}
	if got := store.ListBatches(); len(got) != 0 {
		t.Fatalf("blocked transaction leaked state: %+v", got)
	}
}

func TestCreateReferentialGuards(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateAssignment(AssignmentRecord{BatchID: "ghost"}); err == nil {
			t.Error("assignment against unknown batch should fail")
		}
		if err := tx.CreateDailyState(domain.DailyState{BatchID: "ghost"}); err == nil {
			t.Error("daily state against unknown batch should fail")
		}
		if err := tx.AppendEvent(domain.Event{BatchID: "ghost"}); err == nil {
			t.Error("event against unknown batch should fail")
		}
		if _, err := tx.PutResourceGroup(domain.ResourceGroup{ID: "g", UnitCount: 0}); err == nil {
			t.Error("zero-unit group should fail")
		}
		if _, err := tx.PutStageDefinition(domain.StageDefinition{Name: "s"}); err == nil {
			t.Error("zero-duration stage should fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}

func TestExternalIDBindingIsIdempotent(t *testing.T) {
	store := NewStore(nil)
	seedBatch(t, store, "batch-0001")
	seedBatch(t, store, "batch-0002")

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.BindExternalID("run-7/batch-0001", "batch-0001")
	})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	// Re-binding the same pair succeeds; rebinding elsewhere is rejected.
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.BindExternalID("run-7/batch-0001", "batch-0001")
	})
	if err != nil {
		t.Fatalf("rebind same: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.BindExternalID("run-7/batch-0001", "batch-0002")
	})
	if err == nil {
		t.Fatal("conflicting rebind should fail")
	}

	if id, ok := store.LookupExternalID("run-7/batch-0001"); !ok || id != "batch-0001" {
		t.Fatalf("lookup = %q/%v", id, ok)
	}
	if _, ok := store.LookupExternalID("run-7/batch-0009"); ok {
		t.Fatal("unknown external id should miss")
	}
}

func TestDailyStatesAndEventsRoundTrip(t *testing.T) {
	store := NewStore(nil)
	seedBatch(t, store, "batch-0001")

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		for day := 2; day >= 0; day-- {
			if err := tx.CreateDailyState(domain.DailyState{BatchID: "batch-0001", Day: day, Stage: "grow", Population: 100 - day}); err != nil {
				return err
			}
		}
		return tx.AppendEvent(domain.Event{
			BatchID: "batch-0001", Day: 0, Type: domain.EventFeeding,
			Feeding: &domain.FeedingPayload{AmountKG: 1.5, FeedType: "grower-pellet", Population: 100},
		})
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	states := store.ListDailyStates("batch-0001")
	if len(states) != 3 {
		t.Fatalf("got %d states", len(states))
	}
	for i, st := range states {
		if st.Day != i {
			t.Fatalf("states not ordered by day: %+v", states)
		}
	}
	events := store.ListEvents("batch-0001")
	if len(events) != 1 || events[0].Feeding == nil {
		t.Fatalf("unexpected events: %+v", events)
	}
	// Mutating the returned payload must not reach stored state.
	events[0].Feeding.AmountKG = 99
	if again := store.ListEvents("batch-0001"); again[0].Feeding.AmountKG != 1.5 {
		t.Fatal("stored event aliased by returned slice")
	}
}

func TestSnapshotExportImportRoundTrip(t *testing.T) {
	store := NewStore(nil)
	seedBatch(t, store, "batch-0001")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if err := tx.CreateDailyState(domain.DailyState{BatchID: "batch-0001", Day: 0, Stage: "grow", Population: 10}); err != nil {
			return err
		}
		return tx.BindExternalID("run-1/batch-0001", "batch-0001")
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	restored := NewStore(nil)
	restored.ImportState(store.ExportState())
	if got := restored.ListBatches(); len(got) != 1 {
		t.Fatalf("restored batches: %+v", got)
	}
	if got := restored.ListDailyStates("batch-0001"); len(got) != 1 {
		t.Fatalf("restored states: %+v", got)
	}
	if _, ok := restored.LookupExternalID("run-1/batch-0001"); !ok {
		t.Fatal("restored store lost external id map")
	}
}

func TestViewReconstructsBatchPlans(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateBatch(BatchRecord{ID: "batch-0001", Region: "west", Outcome: domain.OutcomePlanned}); err != nil {
			return err
		}
		for _, e := range []domain.ScheduleEntry{
			{BatchID: "batch-0001", Stage: "grow", GroupID: "sea-1", UnitIDs: []string{"sea-1-u00"}, StartDay: 30, EndDay: 90},
			{BatchID: "batch-0001", Stage: "fry", GroupID: "hall-1", UnitIDs: []string{"hall-1-u00"}, StartDay: 0, EndDay: 30},
		} {
			if _, err := tx.CreateAssignment(AssignmentRecord{BatchID: e.BatchID, Entry: e, ActualEndDay: e.EndDay}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = store.View(context.Background(), func(view TransactionView) error {
		plans := view.ListBatchPlans()
		if len(plans) != 1 {
			t.Fatalf("got %d plans", len(plans))
		}
		if len(plans[0].Entries) != 2 || plans[0].Entries[0].Stage != "fry" {
			t.Fatalf("entries not in chronological order: %+v", plans[0].Entries)
		}
		if _, ok := view.FindBatch("batch-0001"); !ok {
			t.Fatal("FindBatch missed seeded batch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}
