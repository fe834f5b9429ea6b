package runner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"batchcore/internal/partition"
	"batchcore/internal/sim"
	"batchcore/pkg/domain"
)

type safeRecorder struct {
	mu     sync.Mutex
	states map[string][]domain.DailyState
	events map[string][]domain.Event
}

func newSafeRecorder() *safeRecorder {
	return &safeRecorder{
		states: map[string][]domain.DailyState{},
		events: map[string][]domain.Event{},
	}
}

func (r *safeRecorder) RecordDailyState(_ context.Context, state domain.DailyState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.BatchID] = append(r.states[state.BatchID], state)
	return nil
}

func (r *safeRecorder) RecordEvent(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.BatchID] = append(r.events[event.BatchID], event)
	return nil
}

type countingMetrics struct {
	mu         sync.Mutex
	byStatus   map[BatchStatus]int
	partitions map[int]bool
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{byStatus: map[BatchStatus]int{}, partitions: map[int]bool{}}
}

func (m *countingMetrics) BatchCompleted(status BatchStatus, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byStatus[status]++
}

func (m *countingMetrics) PartitionCompleted(index int, complete bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitions[index] = complete
}

func smallSchedule(batchIDs ...string) domain.Schedule {
	s := domain.Schedule{
		Epoch: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Stages: []domain.StageDefinition{
			{Name: "grow", Kind: domain.KindSeaArea, DurationDays: 10, IdealUnits: 1, MinUnits: 1, TGC: 3.0, MaxWeightG: 6500},
		},
		Groups: []domain.ResourceGroup{
			{ID: "sea-1", Name: "Sea 1", Kind: domain.KindSeaArea, Region: "west", UnitCount: len(batchIDs)},
		},
	}
	for i, id := range batchIDs {
		start := i * 10
		s.Batches = append(s.Batches, domain.BatchPlan{
			BatchID: id, Region: "west", StartDay: start, Outcome: domain.OutcomePlanned,
			Entries: []domain.ScheduleEntry{
				{BatchID: id, Stage: "grow", GroupID: "sea-1", UnitIDs: []string{"sea-1-u00"}, StartDay: start, EndDay: start + 10},
			},
		})
	}
	return s
}

func TestRunExecutesEveryPartitionedBatch(t *testing.T) {
	schedule := smallSchedule("batch-0001", "batch-0002", "batch-0003", "batch-0004", "batch-0005")
	parts, err := partition.Split(schedule, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	rec := newSafeRecorder()
	metrics := newCountingMetrics()
	report := New(sim.DefaultConfig(), schedule, parts, rec, WithMetrics(metrics)).Run(context.Background())

	if report.Succeeded != 5 || report.Failed != 0 || report.Infeasible != 0 {
		t.Fatalf("outcome counts = %d/%d/%d", report.Succeeded, report.Infeasible, report.Failed)
	}
	if report.ExitCode() != 0 {
		t.Fatalf("ExitCode = %d, want 0", report.ExitCode())
	}
	if len(report.Outcomes) != 5 {
		t.Fatalf("got %d outcomes", len(report.Outcomes))
	}
	for i := 1; i < len(report.Outcomes); i++ {
		if report.Outcomes[i].BatchID < report.Outcomes[i-1].BatchID {
			t.Fatal("outcomes must be sorted by batch ID")
		}
	}
	for _, b := range schedule.Batches {
		if got := len(rec.states[b.BatchID]); got != 10 {
			t.Fatalf("batch %s recorded %d states, want 10", b.BatchID, got)
		}
	}
	for _, p := range report.Partitions {
		if !p.Complete || p.Completed != p.Batches {
			t.Fatalf("partition %d incomplete: %+v", p.Index, p)
		}
		if !metrics.partitions[p.Index] {
			t.Fatalf("partition %d not reported to metrics as complete", p.Index)
		}
	}
	if metrics.byStatus[StatusSucceeded] != 5 {
		t.Fatalf("metrics counted %d successes", metrics.byStatus[StatusSucceeded])
	}
}

func TestRunIsolatesBatchFailures(t *testing.T) {
	schedule := smallSchedule("batch-0001", "batch-0002", "batch-0003")
	// Corrupt the middle batch; its neighbours share the partition.
	schedule.Batches[1].Entries[0].UnitIDs = nil
	parts, err := partition.Split(schedule, 1)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	report := New(sim.DefaultConfig(), schedule, parts, newSafeRecorder()).Run(context.Background())

	if report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("outcome counts = %d succeeded / %d failed", report.Succeeded, report.Failed)
	}
	if report.ExitCode() != 1 {
		t.Fatalf("ExitCode = %d, want 1", report.ExitCode())
	}
	var failed *BatchOutcome
	for i := range report.Outcomes {
		if report.Outcomes[i].Status == StatusFailed {
			failed = &report.Outcomes[i]
		}
	}
	if failed == nil || failed.BatchID != "batch-0002" {
		t.Fatalf("wrong failed outcome: %+v", failed)
	}
	if !strings.Contains(failed.Reason, "no units") {
		t.Fatalf("failure reason %q should name the missing units", failed.Reason)
	}
	// The partition still ran to completion.
	if !report.Partitions[0].Complete {
		t.Fatal("failure of one batch must not stop the partition")
	}
}

func TestRunReportsInfeasibleBatches(t *testing.T) {
	schedule := smallSchedule("batch-0001", "batch-0002")
	schedule.Batches[1].Outcome = domain.OutcomeInfeasible
	schedule.Batches[1].FailureReason = "no sea_area group free"
	// Hand-build the partition so the infeasible batch is executed anyway.
	parts := []domain.Partition{{Index: 0, BatchIDs: []string{"batch-0001", "batch-0002"}}}
	report := New(sim.DefaultConfig(), schedule, parts, newSafeRecorder()).Run(context.Background())

	if report.Succeeded != 1 || report.Infeasible != 1 || report.Failed != 0 {
		t.Fatalf("outcome counts = %d/%d/%d", report.Succeeded, report.Infeasible, report.Failed)
	}
	if report.ExitCode() != 0 {
		t.Fatalf("infeasible batches alone should not fail the run, got exit %d", report.ExitCode())
	}
	for _, out := range report.Outcomes {
		if out.BatchID == "batch-0002" && out.Reason != "no sea_area group free" {
			t.Fatalf("infeasible outcome lost its reason: %+v", out)
		}
	}
}

func TestRunFoldsUnpartitionedInfeasibleBatches(t *testing.T) {
	schedule := smallSchedule("batch-0001", "batch-0002", "batch-0003")
	schedule.Batches[1].Outcome = domain.OutcomeInfeasible
	schedule.Batches[1].FailureReason = "no sea_area group free"
	schedule.Batches[1].Entries = nil
	parts, err := partition.Split(schedule, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for _, p := range parts {
		for _, id := range p.BatchIDs {
			if id == "batch-0002" {
				t.Fatal("infeasible batch must not be partitioned")
			}
		}
	}
	metrics := newCountingMetrics()
	report := New(sim.DefaultConfig(), schedule, parts, newSafeRecorder(), WithMetrics(metrics)).Run(context.Background())

	if report.Succeeded != 2 || report.Infeasible != 1 || report.Failed != 0 {
		t.Fatalf("outcome counts = %d/%d/%d", report.Succeeded, report.Infeasible, report.Failed)
	}
	if len(report.Outcomes) != len(schedule.Batches) {
		t.Fatalf("got %d outcomes, want one per schedule batch", len(report.Outcomes))
	}
	var infeasible *BatchOutcome
	for i := range report.Outcomes {
		if report.Outcomes[i].BatchID == "batch-0002" {
			infeasible = &report.Outcomes[i]
		}
	}
	if infeasible == nil || infeasible.Status != StatusInfeasible {
		t.Fatalf("infeasible batch missing from report: %+v", infeasible)
	}
	if infeasible.Partition != UnpartitionedIndex {
		t.Fatalf("unpartitioned outcome carries partition %d", infeasible.Partition)
	}
	if infeasible.Reason != "no sea_area group free" {
		t.Fatalf("infeasible outcome lost its reason: %+v", infeasible)
	}
	if report.ExitCode() != 0 {
		t.Fatalf("infeasible batches alone should not fail the run, got exit %d", report.ExitCode())
	}
	if metrics.byStatus[StatusInfeasible] != 1 {
		t.Fatalf("metrics counted %d infeasible batches", metrics.byStatus[StatusInfeasible])
	}
}

// cancelAfterRecorder cancels the run once it has absorbed a fixed number of
// daily states, simulating an operator interrupt mid-batch.
type cancelAfterRecorder struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	after  int
	seen   int
}

func (r *cancelAfterRecorder) RecordDailyState(_ context.Context, _ domain.DailyState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen++
	if r.seen == r.after {
		r.cancel()
	}
	return nil
}

func (r *cancelAfterRecorder) RecordEvent(_ context.Context, _ domain.Event) error { return nil }

func TestRunDropsBatchInterruptedByCancellation(t *testing.T) {
	schedule := smallSchedule("batch-0001", "batch-0002")
	parts, err := partition.Split(schedule, 1)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &cancelAfterRecorder{cancel: cancel, after: 3}
	metrics := newCountingMetrics()
	report := New(sim.DefaultConfig(), schedule, parts, rec, WithMetrics(metrics)).Run(ctx)

	if report.Failed != 0 {
		t.Fatalf("interrupted batch counted as failed: %+v", report)
	}
	for _, out := range report.Outcomes {
		if out.BatchID == "batch-0001" {
			t.Fatalf("interrupted batch must not produce an outcome: %+v", out)
		}
	}
	if report.Partitions[0].Complete {
		t.Fatal("interrupted partition reported complete")
	}
	if report.ExitCode() != 1 {
		t.Fatalf("interrupted run must exit non-zero, got %d", report.ExitCode())
	}
	if metrics.byStatus[StatusFailed] != 0 {
		t.Fatalf("metrics counted %d failures for an interrupt", metrics.byStatus[StatusFailed])
	}
	if metrics.partitions[0] {
		t.Fatal("metrics should record the partition as incomplete")
	}
}

func TestRunCancelledBeforeStartReportsIncomplete(t *testing.T) {
	schedule := smallSchedule("batch-0001", "batch-0002", "batch-0003", "batch-0004")
	parts, err := partition.Split(schedule, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := New(sim.DefaultConfig(), schedule, parts, newSafeRecorder()).Run(ctx)

	if len(report.Outcomes) != 0 {
		t.Fatalf("cancelled run produced %d outcomes", len(report.Outcomes))
	}
	for _, p := range report.Partitions {
		if p.Complete || p.Completed != 0 {
			t.Fatalf("partition %d should be untouched: %+v", p.Index, p)
		}
	}
	if report.ExitCode() != 1 {
		t.Fatalf("incomplete run must exit non-zero, got %d", report.ExitCode())
	}
}

func TestRunUnknownBatchIDFails(t *testing.T) {
	schedule := smallSchedule("batch-0001")
	parts := []domain.Partition{{Index: 0, BatchIDs: []string{"batch-0001", "batch-9999"}}}
	report := New(sim.DefaultConfig(), schedule, parts, newSafeRecorder()).Run(context.Background())
	if report.Failed != 1 || report.Succeeded != 1 {
		t.Fatalf("outcome counts = %d succeeded / %d failed", report.Succeeded, report.Failed)
	}
}
