package core

import (
	"batchcore/pkg/domain"
)

// NewDefaultRulesEngine returns the engine carrying every invariant rule the
// generator enforces over schedules, partitions, and simulation output.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewScheduleCapacityRule())
	engine.Register(NewScheduleUnitOverlapRule())
	engine.Register(NewStageContiguityRule())
	engine.Register(NewPartitionDisjointRule())
	engine.Register(NewTransferContinuityRule())
	engine.Register(NewPopulationMonotonicRule())
	return engine
}

// ScheduleView adapts a planned schedule and its partitions to the rule view
// interface so plan-time artifacts can be checked before anything is
// persisted or simulated.
type ScheduleView struct {
	Schedule   domain.Schedule
	Partitions []domain.Partition
}

var _ domain.RuleView = ScheduleView{}

func (v ScheduleView) ListResourceGroups() []domain.ResourceGroup {
	return append([]domain.ResourceGroup(nil), v.Schedule.Groups...)
}

func (v ScheduleView) ListScheduleEntries() []domain.ScheduleEntry {
	var out []domain.ScheduleEntry
	for _, b := range v.Schedule.Batches {
		out = append(out, b.Entries...)
	}
	domain.SortEntries(out)
	return out
}

func (v ScheduleView) ListBatchPlans() []domain.BatchPlan {
	return append([]domain.BatchPlan(nil), v.Schedule.Batches...)
}

func (v ScheduleView) ListPartitions() []domain.Partition {
	return append([]domain.Partition(nil), v.Partitions...)
}

// ListDailyStates returns nil: a plan-time view has no simulation output.
func (v ScheduleView) ListDailyStates(string) []domain.DailyState { return nil }

func (v ScheduleView) ListEvents(string) []domain.Event { return nil }
