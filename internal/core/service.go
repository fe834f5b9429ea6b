package core

import (
	"context"
	"fmt"
	"time"

	"batchcore/pkg/domain"
)

// Service exposes the transactional operations of the generation pipeline
// over any persistent store.
type Service struct {
	store   PersistentStore
	log     Logger
	metrics MetricsRecorder
	tracer  Tracer
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(log Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetricsRecorder attaches an operation metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer attaches a tracer opened around every service operation.
func WithTracer(tr Tracer) ServiceOption {
	return func(s *Service) {
		if tr != nil {
			s.tracer = tr
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		log:     noopLogger{},
		metrics: nil,
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := time.Now()
	err := fn(ctx)
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	}
	span.End(err)
	if err != nil {
		s.log.Error(operation+" failed", "error", err)
	}
	return err
}

// ImportSummary reports what an ImportSchedule call actually wrote.
type ImportSummary struct {
	Groups         int
	Stages         int
	BatchesCreated int
	BatchesSkipped int
}

// externalBatchID keys a batch record under the run's idempotency scope.
func externalBatchID(runID, batchID string) string {
	return runID + "/" + batchID
}

func externalAssignmentID(runID, batchID, stage string) string {
	return runID + "/" + batchID + "/" + stage
}

// ImportSchedule persists the planning artifacts of one run: resource
// groups, stage definitions, and one batch record per plan, infeasible
// plans included. Re-importing under the same run identifier creates no
// additional records.
func (s *Service) ImportSchedule(ctx context.Context, runID string, schedule domain.Schedule) (ImportSummary, error) {
	if runID == "" {
		return ImportSummary{}, fmt.Errorf("run id required")
	}
	var summary ImportSummary
	err := s.instrument(ctx, "import_schedule", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			for _, g := range schedule.Groups {
				if _, err := tx.PutResourceGroup(g); err != nil {
					return err
				}
				summary.Groups++
			}
			for _, st := range schedule.Stages {
				if _, err := tx.PutStageDefinition(st); err != nil {
					return err
				}
				summary.Stages++
			}
			for _, plan := range schedule.Batches {
				extID := externalBatchID(runID, plan.BatchID)
				if _, ok := tx.LookupExternalID(extID); ok {
					summary.BatchesSkipped++
					continue
				}
				rec, err := tx.CreateBatch(BatchRecord{
					ID:         plan.BatchID,
					ExternalID: extID,
					Region:     plan.Region,
					StartDay:   plan.StartDay,
					Outcome:    plan.Outcome,
				})
				if err != nil {
					return err
				}
				if err := tx.BindExternalID(extID, rec.ID); err != nil {
					return err
				}
				summary.BatchesCreated++
			}
			return nil
		})
		return err
	})
	if err != nil {
		return ImportSummary{}, err
	}
	s.log.Info("schedule imported",
		"run_id", runID,
		"batches_created", summary.BatchesCreated,
		"batches_skipped", summary.BatchesSkipped)
	return summary, nil
}

// CommitBatchOutput persists one simulated batch in a single transaction:
// its stage assignments with actual end days, every daily state, and every
// event. Commit is idempotent per run: if the batch's first assignment is
// already bound under this run the call writes nothing.
func (s *Service) CommitBatchOutput(ctx context.Context, runID string, plan domain.BatchPlan, actualEnds map[string]int, states []domain.DailyState, events []domain.Event) error {
	return s.instrument(ctx, "commit_batch_output", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			for _, entry := range plan.Entries {
				extID := externalAssignmentID(runID, plan.BatchID, entry.Stage)
				if _, ok := tx.LookupExternalID(extID); ok {
					return nil
				}
				actualEnd := entry.EndDay
				if end, ok := actualEnds[entry.Stage]; ok {
					actualEnd = plan.StartDay + end
				}
				rec, err := tx.CreateAssignment(AssignmentRecord{
					ExternalID:   extID,
					BatchID:      plan.BatchID,
					Entry:        entry,
					ActualEndDay: actualEnd,
				})
				if err != nil {
					return err
				}
				if err := tx.BindExternalID(extID, rec.ID); err != nil {
					return err
				}
			}
			for _, st := range states {
				if err := tx.CreateDailyState(st); err != nil {
					return err
				}
			}
			for _, ev := range events {
				if err := tx.AppendEvent(ev); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	})
}

// LookupExternalID resolves an idempotency key against the store.
func (s *Service) LookupExternalID(externalID string) (string, bool) {
	return s.store.LookupExternalID(externalID)
}

// EvaluateSchedule runs the engine's rules over plan-time artifacts before
// anything is simulated or persisted.
func EvaluateSchedule(ctx context.Context, engine *RulesEngine, schedule domain.Schedule, partitions []domain.Partition) (Result, error) {
	return engine.Evaluate(ctx, ScheduleView{Schedule: schedule, Partitions: partitions})
}
