package core

import (
	"context"
	"fmt"

	"batchcore/pkg/domain"
)

// NewStageContiguityRule returns the rule enforcing that every planned
// batch's stage windows are back to back: stage n+1 starts on the day
// stage n ends, with no gap and no overlap.
func NewStageContiguityRule() domain.Rule {
	return stageContiguityRule{}
}

type stageContiguityRule struct{}

func (stageContiguityRule) Name() string { return "stage_contiguity" }

func (stageContiguityRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	res := domain.Result{}
	for _, plan := range view.ListBatchPlans() {
		if plan.Outcome != domain.OutcomePlanned {
			continue
		}
		entries := append([]domain.ScheduleEntry(nil), plan.Entries...)
		domain.SortEntries(entries)
		for i := 1; i < len(entries); i++ {
			if entries[i].StartDay != entries[i-1].EndDay {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "stage_contiguity",
					Severity: domain.SeverityBlock,
					Message: fmt.Sprintf("batch %s: stage %s starts day %d but stage %s ends day %d",
						plan.BatchID, entries[i].Stage, entries[i].StartDay, entries[i-1].Stage, entries[i-1].EndDay),
					BatchID: plan.BatchID,
				})
			}
		}
	}
	return res, nil
}
