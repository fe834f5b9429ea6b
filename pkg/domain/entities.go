// Package domain defines the core entities, event types, and rule evaluation
// primitives used by batchcore.
package domain

import (
	"fmt"
	"sort"
	"time"
)

// ResourceKind identifies the physical class of a resource group.
type ResourceKind string

// Supported resource group kinds.
const (
	// KindFreshwaterHall groups indoor rearing tanks fed by freshwater.
	KindFreshwaterHall ResourceKind = "freshwater_hall"
	// KindSeaArea groups open-water pens within one licensed sea area.
	KindSeaArea ResourceKind = "sea_area"
)

// ResourceGroup is a named pool of interchangeable rearing units with a hard
// unit count. Claims against a group never exceed UnitCount concurrently.
type ResourceGroup struct {
	ID        string       `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name"`
	Kind      ResourceKind `json:"kind" yaml:"kind"`
	Region    string       `json:"region" yaml:"region"`
	UnitCount int          `json:"unit_count" yaml:"unit_count"`
}

// StageDefinition describes one lifecycle stage of a batch. Stages are
// traversed strictly in table order.
type StageDefinition struct {
	Name         string       `json:"name" yaml:"name"`
	Kind         ResourceKind `json:"kind" yaml:"kind"`
	DurationDays int          `json:"duration_days" yaml:"duration_days"`
	IdealUnits   int          `json:"ideal_units" yaml:"ideal_units"`
	MinUnits     int          `json:"min_units" yaml:"min_units"`
	TGC          float64      `json:"tgc" yaml:"tgc"`
	MaxWeightG   float64      `json:"max_weight_g" yaml:"max_weight_g"`
	// TransferThresholdG ends the stage early when average weight crosses it.
	// Zero disables the trigger for the stage.
	TransferThresholdG float64 `json:"transfer_threshold_g,omitempty" yaml:"transfer_threshold_g,omitempty"`
}

// ScheduleEntry assigns a batch stage to concrete units of one resource group
// for the half-open day window [StartDay, EndDay) relative to the plan epoch.
type ScheduleEntry struct {
	BatchID string   `json:"batch_id"`
	Stage   string   `json:"stage"`
	GroupID string   `json:"group_id"`
	UnitIDs []string `json:"unit_ids"`
	// StartDay and EndDay count days from the plan epoch.
	StartDay int `json:"start_day"`
	EndDay   int `json:"end_day"`
}

// Days returns the planned length of the entry's window.
func (e ScheduleEntry) Days() int { return e.EndDay - e.StartDay }

// Overlaps reports whether two day windows intersect.
func (e ScheduleEntry) Overlaps(other ScheduleEntry) bool {
	return e.StartDay < other.EndDay && other.StartDay < e.EndDay
}

// PlanOutcome classifies the planning result for one batch.
type PlanOutcome string

// Planning outcomes recorded per batch. Infeasible batches are kept in the
// schedule so that partial planning failure stays inspectable.
const (
	OutcomePlanned    PlanOutcome = "planned"
	OutcomeInfeasible PlanOutcome = "infeasible"
)

// BatchPlan holds the ordered stage assignments of one batch together with
// its planning outcome.
type BatchPlan struct {
	BatchID  string          `json:"batch_id"`
	Region   string          `json:"region"`
	StartDay int             `json:"start_day"`
	Outcome  PlanOutcome     `json:"outcome"`
	Entries  []ScheduleEntry `json:"entries"`
	// FailedStage and FailureReason are populated for infeasible batches.
	FailedStage   string `json:"failed_stage,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Schedule is the deterministic artifact produced by one planning run. It is
// the sole hand-off between planning and execution.
type Schedule struct {
	Epoch   time.Time         `json:"epoch"`
	Stages  []StageDefinition `json:"stages"`
	Groups  []ResourceGroup   `json:"groups"`
	Batches []BatchPlan       `json:"batches"`
}

// PlannedBatches returns the batches that planned fully, in schedule order.
func (s Schedule) PlannedBatches() []BatchPlan {
	out := make([]BatchPlan, 0, len(s.Batches))
	for _, b := range s.Batches {
		if b.Outcome == OutcomePlanned {
			out = append(out, b)
		}
	}
	return out
}

// Batch returns the plan for the given batch ID.
func (s Schedule) Batch(id string) (BatchPlan, bool) {
	for _, b := range s.Batches {
		if b.BatchID == id {
			return b, true
		}
	}
	return BatchPlan{}, false
}

// Group returns the resource group with the given ID.
func (s Schedule) Group(id string) (ResourceGroup, bool) {
	for _, g := range s.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return ResourceGroup{}, false
}

// Stage returns the stage definition with the given name.
func (s Schedule) Stage(name string) (StageDefinition, bool) {
	for _, st := range s.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return StageDefinition{}, false
}

// ClaimedUnitDays sums unit-days claimed across all planned entries.
func (s Schedule) ClaimedUnitDays() int {
	total := 0
	for _, b := range s.Batches {
		for _, e := range b.Entries {
			total += len(e.UnitIDs) * e.Days()
		}
	}
	return total
}

// Partition is a contiguous chronological slice of the planned batches
// assigned to one worker. Partitions are self-contained: execution never
// reaches outside the batch IDs listed here.
type Partition struct {
	Index    int      `json:"index"`
	BatchIDs []string `json:"batch_ids"`
	// FirstDay and LastDay bound the day windows of the contained batches.
	FirstDay int `json:"first_day"`
	LastDay  int `json:"last_day"`
}

// DailyState is one day's biological snapshot of a batch.
type DailyState struct {
	BatchID    string  `json:"batch_id"`
	Day        int     `json:"day"`
	Stage      string  `json:"stage"`
	Population int     `json:"population"`
	AvgWeightG float64 `json:"avg_weight_g"`
	BiomassKG  float64 `json:"biomass_kg"`
}

// Validate reports structural problems with a schedule entry. The simulation
// engine fails the owning batch on the first violation instead of aborting
// the partition.
func (e ScheduleEntry) Validate() error {
	if e.BatchID == "" {
		return fmt.Errorf("schedule entry missing batch id")
	}
	if len(e.UnitIDs) == 0 {
		return fmt.Errorf("schedule entry %s/%s has no units", e.BatchID, e.Stage)
	}
	if e.EndDay <= e.StartDay {
		return fmt.Errorf("schedule entry %s/%s has empty window [%d,%d)", e.BatchID, e.Stage, e.StartDay, e.EndDay)
	}
	return nil
}

// SortEntries orders entries by start day, then batch, then stage for
// deterministic traversal and serialization.
func SortEntries(entries []ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].StartDay != entries[j].StartDay {
			return entries[i].StartDay < entries[j].StartDay
		}
		if entries[i].BatchID != entries[j].BatchID {
			return entries[i].BatchID < entries[j].BatchID
		}
		return entries[i].Stage < entries[j].Stage
	})
}
