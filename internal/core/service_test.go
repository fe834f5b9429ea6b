package core

import (
	"context"
	"testing"
	"time"

	"batchcore/internal/infra/persistence/memory"
	"batchcore/internal/sim"
	"batchcore/pkg/domain"
)

func testSchedule() domain.Schedule {
	return domain.Schedule{
		Epoch: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Stages: []domain.StageDefinition{
			{Name: "fry", Kind: domain.KindFreshwaterHall, DurationDays: 30, IdealUnits: 1, MinUnits: 1, TGC: 2.0, MaxWeightG: 80},
			{Name: "grow", Kind: domain.KindSeaArea, DurationDays: 60, IdealUnits: 1, MinUnits: 1, TGC: 3.0, MaxWeightG: 6500},
		},
		Groups: []domain.ResourceGroup{
			{ID: "hall-1", Name: "Hall 1", Kind: domain.KindFreshwaterHall, Region: "west", UnitCount: 2},
			{ID: "sea-1", Name: "Sea 1", Kind: domain.KindSeaArea, Region: "west", UnitCount: 2},
		},
		Batches: []domain.BatchPlan{
			{
				BatchID: "batch-0001", Region: "west", StartDay: 0, Outcome: domain.OutcomePlanned,
				Entries: []domain.ScheduleEntry{
					{BatchID: "batch-0001", Stage: "fry", GroupID: "hall-1", UnitIDs: []string{"hall-1-u00"}, StartDay: 0, EndDay: 30},
					{BatchID: "batch-0001", Stage: "grow", GroupID: "sea-1", UnitIDs: []string{"sea-1-u00"}, StartDay: 30, EndDay: 90},
				},
			},
			{
				BatchID: "batch-0002", Region: "west", StartDay: 30, Outcome: domain.OutcomeInfeasible,
				FailedStage: "grow", FailureReason: "no sea_area group in region west can hold stage grow",
			},
		},
	}
}

func TestImportScheduleIsIdempotent(t *testing.T) {
	svc := NewService(memory.NewStore(NewDefaultRulesEngine()))
	schedule := testSchedule()

	first, err := svc.ImportSchedule(context.Background(), "run-1", schedule)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	if first.BatchesCreated != 2 || first.BatchesSkipped != 0 {
		t.Fatalf("first import summary: %+v", first)
	}

	second, err := svc.ImportSchedule(context.Background(), "run-1", schedule)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.BatchesCreated != 0 || second.BatchesSkipped != 2 {
		t.Fatalf("second import summary: %+v", second)
	}
	if got := svc.Store().ListBatches(); len(got) != 2 {
		t.Fatalf("re-import created records: %+v", got)
	}

	// The infeasible batch is persisted as a first-class outcome.
	batches := svc.Store().ListBatches()
	if batches[1].Outcome != domain.OutcomeInfeasible {
		t.Fatalf("infeasible outcome lost: %+v", batches[1])
	}
}

func TestImportScheduleRequiresRunID(t *testing.T) {
	svc := NewService(memory.NewStore(nil))
	if _, err := svc.ImportSchedule(context.Background(), "", testSchedule()); err == nil {
		t.Fatal("empty run id should fail")
	}
}

func TestRecorderCommitsBatchOnHarvest(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	svc := NewService(store)
	schedule := testSchedule()
	if _, err := svc.ImportSchedule(context.Background(), "run-1", schedule); err != nil {
		t.Fatalf("import: %v", err)
	}

	rec := svc.Recorder("run-1", schedule)
	engine := sim.NewEngine(sim.DefaultConfig(), schedule)
	res, err := engine.SimulateBatch(context.Background(), schedule.Batches[0], rec)
	if err != nil {
		t.Fatalf("SimulateBatch: %v", err)
	}

	states := store.ListDailyStates("batch-0001")
	if len(states) != res.States {
		t.Fatalf("persisted %d states, simulated %d", len(states), res.States)
	}
	events := store.ListEvents("batch-0001")
	if len(events) != res.Events {
		t.Fatalf("persisted %d events, simulated %d", len(events), res.Events)
	}
	assignments := store.ListAssignments()
	if len(assignments) != 2 {
		t.Fatalf("got %d assignments, want 2", len(assignments))
	}
	for _, a := range assignments {
		if a.ActualEndDay <= a.Entry.StartDay {
			t.Fatalf("assignment %s has bogus actual end %d", a.ID, a.ActualEndDay)
		}
	}
	if pending := rec.Pending(); len(pending) != 0 {
		t.Fatalf("committed batch still pending: %v", pending)
	}
}

func TestRecorderReplayCreatesNoDuplicates(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	svc := NewService(store)
	schedule := testSchedule()
	if _, err := svc.ImportSchedule(context.Background(), "run-1", schedule); err != nil {
		t.Fatalf("import: %v", err)
	}

	engine := sim.NewEngine(sim.DefaultConfig(), schedule)
	for i := 0; i < 2; i++ {
		rec := svc.Recorder("run-1", schedule)
		if _, err := engine.SimulateBatch(context.Background(), schedule.Batches[0], rec); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	if got := len(store.ListAssignments()); got != 2 {
		t.Fatalf("replay duplicated assignments: %d", got)
	}
	states := store.ListDailyStates("batch-0001")
	if len(states) != 90 {
		t.Fatalf("replay duplicated states: %d", len(states))
	}
}

func TestRecorderKeepsFailedBatchPending(t *testing.T) {
	store := memory.NewStore(nil)
	svc := NewService(store)
	schedule := testSchedule()
	if _, err := svc.ImportSchedule(context.Background(), "run-1", schedule); err != nil {
		t.Fatalf("import: %v", err)
	}

	rec := svc.Recorder("run-1", schedule)
	// A stream that never reaches harvest stays buffered and unpersisted.
	if err := rec.RecordDailyState(context.Background(), domain.DailyState{BatchID: "batch-0001", Day: 0, Stage: "fry", Population: 10}); err != nil {
		t.Fatalf("RecordDailyState: %v", err)
	}
	if got := store.ListDailyStates("batch-0001"); len(got) != 0 {
		t.Fatalf("partial stream persisted: %+v", got)
	}
	if pending := rec.Pending(); len(pending) != 1 || pending[0] != "batch-0001" {
		t.Fatalf("pending = %v", pending)
	}
}

func TestServiceObservabilityHooks(t *testing.T) {
	metrics := NewExpvarMetricsRecorder("")
	tracer := NewJSONTracer(nil)
	svc := NewService(memory.NewStore(nil),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
	)
	if _, err := svc.ImportSchedule(context.Background(), "run-1", testSchedule()); err != nil {
		t.Fatalf("import: %v", err)
	}

	snap := metrics.Snapshot()
	if snap.Results["import_schedule"]["success"] != 1 {
		t.Fatalf("metrics missed the operation: %+v", snap.Results)
	}
	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Operation != "import_schedule" || entries[0].Status != "success" {
		t.Fatalf("tracer entries: %+v", entries)
	}
}
