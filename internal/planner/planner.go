// Package planner produces the deterministic schedule that assigns every
// batch lifecycle stage to concrete resource units. Planning is synchronous
// and single-threaded; the emitted schedule is immutable input for execution.
package planner

import (
	"fmt"
	"sort"
	"time"

	"batchcore/internal/capacity"
	"batchcore/pkg/domain"
)

// Params are the planning inputs. Identical params always produce a
// byte-identical schedule document.
type Params struct {
	BatchCount  int                      `yaml:"batch_count" json:"batch_count"`
	StaggerDays int                      `yaml:"stagger_days" json:"stagger_days"`
	Epoch       time.Time                `yaml:"epoch" json:"epoch"`
	Stages      []domain.StageDefinition `yaml:"stages" json:"stages"`
	Groups      []domain.ResourceGroup   `yaml:"groups" json:"groups"`
}

// Validate reports the first structural problem with the params.
func (p Params) Validate() error {
	if p.BatchCount <= 0 {
		return fmt.Errorf("batch count must be positive, got %d", p.BatchCount)
	}
	if p.StaggerDays <= 0 {
		return fmt.Errorf("stagger days must be positive, got %d", p.StaggerDays)
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("stage table is empty")
	}
	if len(p.Groups) == 0 {
		return fmt.Errorf("group table is empty")
	}
	for _, st := range p.Stages {
		if st.DurationDays <= 0 {
			return fmt.Errorf("stage %s: duration must be positive", st.Name)
		}
		if st.MinUnits <= 0 || st.IdealUnits < st.MinUnits {
			return fmt.Errorf("stage %s: need 0 < min_units <= ideal_units, got %d/%d", st.Name, st.MinUnits, st.IdealUnits)
		}
	}
	for _, g := range p.Groups {
		if g.UnitCount <= 0 {
			return fmt.Errorf("group %s: unit count must be positive", g.ID)
		}
	}
	return nil
}

// regions returns the distinct group regions in sorted order.
func (p Params) regions() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, g := range p.Groups {
		if _, ok := seen[g.Region]; ok {
			continue
		}
		seen[g.Region] = struct{}{}
		out = append(out, g.Region)
	}
	sort.Strings(out)
	return out
}

// Planner walks batches in a fixed order and reserves capacity for each
// lifecycle stage through the capacity index.
type Planner struct {
	index *capacity.Index
}

// New constructs a planner over a fresh capacity index for the given groups.
func New(groups []domain.ResourceGroup) *Planner {
	return &Planner{index: capacity.NewIndex(groups)}
}

// Index exposes the capacity index for saturation reporting after planning.
func (pl *Planner) Index() *capacity.Index { return pl.index }

// Plan produces the full schedule. Batches that cannot reserve even the
// minimum unit count for a stage are marked infeasible and kept in the
// output; planning always continues with the remaining batches.
func (pl *Planner) Plan(params Params) (domain.Schedule, error) {
	if err := params.Validate(); err != nil {
		return domain.Schedule{}, fmt.Errorf("invalid plan params: %w", err)
	}

	regions := params.regions()
	schedule := domain.Schedule{
		Epoch:  params.Epoch.UTC(),
		Stages: append([]domain.StageDefinition(nil), params.Stages...),
		Groups: sortedGroups(params.Groups),
	}

	for i := 0; i < params.BatchCount; i++ {
		// Alternate across regions so chronology interleaves the way real
		// operations stagger intake between sites.
		region := regions[i%len(regions)]
		batch := domain.BatchPlan{
			BatchID:  fmt.Sprintf("batch-%04d", i+1),
			Region:   region,
			StartDay: i * params.StaggerDays,
			Outcome:  domain.OutcomePlanned,
		}
		pl.planBatch(&batch, params.Stages)
		schedule.Batches = append(schedule.Batches, batch)
	}
	return schedule, nil
}

func (pl *Planner) planBatch(batch *domain.BatchPlan, stages []domain.StageDefinition) {
	day := batch.StartDay
	for _, stage := range stages {
		window := capacity.Window{Start: day, End: day + stage.DurationDays}
		reserved, err := pl.reserveWithFallback(stage, batch.Region, window)
		if err != nil {
			batch.Outcome = domain.OutcomeInfeasible
			batch.FailedStage = stage.Name
			batch.FailureReason = err.Error()
			return
		}
		batch.Entries = append(batch.Entries, domain.ScheduleEntry{
			BatchID: batch.BatchID,
			Stage:   stage.Name,
			GroupID: reserved.GroupID,
			UnitIDs: reserved.UnitIDs,
			StartDay: window.Start,
			EndDay:   window.End,
		})
		day = window.End
	}
}

// reserveWithFallback tries the ideal unit count first, then steps down one
// unit at a time to the stage minimum. Below the minimum the stage fails and
// the caller records the batch as infeasible.
func (pl *Planner) reserveWithFallback(stage domain.StageDefinition, region string, w capacity.Window) (capacity.ReservedUnits, error) {
	for count := stage.IdealUnits; count >= stage.MinUnits; count-- {
		groupID, ok := pl.index.FindGroup(stage.Kind, region, w, count)
		if !ok {
			continue
		}
		reserved, err := pl.index.Reserve(groupID, w, count)
		if err != nil {
			// FindGroup verified capacity; a failure here means the index
			// disagrees with itself and must surface loudly.
			return capacity.ReservedUnits{}, fmt.Errorf("reserve %s on %s: %w", stage.Name, groupID, err)
		}
		return reserved, nil
	}
	return capacity.ReservedUnits{}, fmt.Errorf("no %s group in region %s can hold stage %s: %w",
		stage.Kind, region, stage.Name,
		capacity.CapacityError{Requested: stage.MinUnits, Window: w})
}

func sortedGroups(groups []domain.ResourceGroup) []domain.ResourceGroup {
	out := append([]domain.ResourceGroup(nil), groups...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
