// Package runner executes a partitioned schedule: one goroutine per
// partition, batches within a partition strictly sequential. Partitions share
// no mutable state, so the run needs no cross-worker coordination beyond the
// final report merge.
package runner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"batchcore/internal/sim"
	"batchcore/pkg/domain"
)

// BatchStatus classifies the terminal state of one executed batch.
type BatchStatus string

const (
	StatusSucceeded  BatchStatus = "succeeded"
	StatusInfeasible BatchStatus = "infeasible"
	StatusFailed     BatchStatus = "failed"
)

// UnpartitionedIndex marks an outcome for a batch that never entered a
// partition; the planner excludes infeasible batches from worker slices.
const UnpartitionedIndex = -1

// BatchOutcome records how one batch finished. Partition is
// UnpartitionedIndex for batches reported straight from the schedule.
type BatchOutcome struct {
	BatchID   string      `json:"batch_id"`
	Partition int         `json:"partition"`
	Status    BatchStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	Days      int         `json:"days"`
	States    int         `json:"states"`
	Events    int         `json:"events"`
	Harvested bool        `json:"harvested"`
}

// PartitionReport summarises one worker's slice. A partition is incomplete
// when cancellation stopped it before its last batch; incomplete partitions
// are never retried.
type PartitionReport struct {
	Index     int  `json:"index"`
	Batches   int  `json:"batches"`
	Completed int  `json:"completed"`
	Complete  bool `json:"complete"`
}

// Report aggregates a full run.
type Report struct {
	Outcomes   []BatchOutcome    `json:"outcomes"`
	Partitions []PartitionReport `json:"partitions"`
	Succeeded  int               `json:"succeeded"`
	Infeasible int               `json:"infeasible"`
	Failed     int               `json:"failed"`
	States     int               `json:"states"`
	Events     int               `json:"events"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// ExitCode maps the report onto a process exit status: zero only when every
// batch succeeded and every partition ran to completion.
func (r Report) ExitCode() int {
	if r.Failed > 0 {
		return 1
	}
	for _, p := range r.Partitions {
		if !p.Complete {
			return 1
		}
	}
	return 0
}

// Metrics receives execution telemetry. Implementations must be safe for
// concurrent use.
type Metrics interface {
	BatchCompleted(status BatchStatus, days int)
	PartitionCompleted(index int, complete bool)
}

// NopMetrics discards all telemetry.
type NopMetrics struct{}

func (NopMetrics) BatchCompleted(BatchStatus, int) {}
func (NopMetrics) PartitionCompleted(int, bool)    {}

// Option adjusts runner construction.
type Option func(*Runner)

// WithMetrics attaches an execution telemetry sink.
func WithMetrics(m Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// Runner drives the simulation of every partition of a planned schedule.
type Runner struct {
	engine     *sim.Engine
	schedule   domain.Schedule
	partitions []domain.Partition
	rec        sim.Recorder
	metrics    Metrics
}

// New constructs a runner. The recorder is shared by all partitions and must
// be safe for concurrent use.
func New(cfg sim.Config, schedule domain.Schedule, partitions []domain.Partition, rec sim.Recorder, opts ...Option) *Runner {
	r := &Runner{
		engine:     sim.NewEngine(cfg, schedule),
		schedule:   schedule,
		partitions: partitions,
		rec:        rec,
		metrics:    NopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type partitionResult struct {
	report   PartitionReport
	outcomes []BatchOutcome
}

// Run executes every partition concurrently and blocks until all workers
// stop. Cancellation is honoured per batch: a batch interrupted mid-flight is
// dropped from the outcomes rather than counted as failed, remaining batches
// are skipped and the partition is reported incomplete. Batches the planner
// marked infeasible never enter a partition, so after the merge they are
// folded into the report straight from the schedule.
func (r *Runner) Run(ctx context.Context) Report {
	start := time.Now()
	results := make([]partitionResult, len(r.partitions))

	var wg sync.WaitGroup
	for i, part := range r.partitions {
		wg.Add(1)
		go func(slot int, part domain.Partition) {
			defer wg.Done()
			results[slot] = r.runPartition(ctx, part)
		}(i, part)
	}
	wg.Wait()

	report := Report{Elapsed: time.Since(start)}
	seen := make(map[string]struct{})
	for _, res := range results {
		report.Partitions = append(report.Partitions, res.report)
		for _, out := range res.outcomes {
			report.Outcomes = append(report.Outcomes, out)
			seen[out.BatchID] = struct{}{}
			switch out.Status {
			case StatusSucceeded:
				report.Succeeded++
			case StatusInfeasible:
				report.Infeasible++
			case StatusFailed:
				report.Failed++
			}
			report.States += out.States
			report.Events += out.Events
		}
	}
	for _, plan := range r.schedule.Batches {
		if plan.Outcome != domain.OutcomeInfeasible {
			continue
		}
		if _, ok := seen[plan.BatchID]; ok {
			continue
		}
		out := BatchOutcome{
			BatchID:   plan.BatchID,
			Partition: UnpartitionedIndex,
			Status:    StatusInfeasible,
			Reason:    plan.FailureReason,
		}
		report.Outcomes = append(report.Outcomes, out)
		report.Infeasible++
		r.metrics.BatchCompleted(out.Status, 0)
	}
	sort.Slice(report.Outcomes, func(i, j int) bool {
		return report.Outcomes[i].BatchID < report.Outcomes[j].BatchID
	})
	sort.Slice(report.Partitions, func(i, j int) bool {
		return report.Partitions[i].Index < report.Partitions[j].Index
	})
	return report
}

func (r *Runner) runPartition(ctx context.Context, part domain.Partition) partitionResult {
	res := partitionResult{report: PartitionReport{Index: part.Index, Batches: len(part.BatchIDs)}}
	for _, batchID := range part.BatchIDs {
		if ctx.Err() != nil {
			r.metrics.PartitionCompleted(part.Index, false)
			return res
		}
		out, interrupted := r.runBatch(ctx, part.Index, batchID)
		if interrupted {
			r.metrics.PartitionCompleted(part.Index, false)
			return res
		}
		res.outcomes = append(res.outcomes, out)
		res.report.Completed++
	}
	res.report.Complete = true
	r.metrics.PartitionCompleted(part.Index, true)
	return res
}

// runBatch simulates one batch and converts its result into an outcome. A
// batch failure never propagates to the rest of the partition. The second
// return is true when cancellation cut the batch short; an interrupted batch
// has no terminal status and produces no outcome.
func (r *Runner) runBatch(ctx context.Context, partition int, batchID string) (BatchOutcome, bool) {
	out := BatchOutcome{BatchID: batchID, Partition: partition}

	plan, ok := r.schedule.Batch(batchID)
	switch {
	case !ok:
		out.Status = StatusFailed
		out.Reason = "batch not present in schedule"
	case plan.Outcome == domain.OutcomeInfeasible:
		out.Status = StatusInfeasible
		out.Reason = plan.FailureReason
	default:
		res, err := r.engine.SimulateBatch(ctx, plan, r.rec)
		out.Days = res.Days
		out.States = res.States
		out.Events = res.Events
		out.Harvested = res.Harvested
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return BatchOutcome{}, true
		case err != nil:
			out.Status = StatusFailed
			out.Reason = err.Error()
		default:
			out.Status = StatusSucceeded
		}
	}

	r.metrics.BatchCompleted(out.Status, out.Days)
	return out, false
}
