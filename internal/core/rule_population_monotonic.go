package core

import (
	"context"
	"fmt"

	"batchcore/pkg/domain"
)

// NewPopulationMonotonicRule returns the rule enforcing that a batch's
// population never increases from one day to the next within a stage.
func NewPopulationMonotonicRule() domain.Rule {
	return populationMonotonicRule{}
}

type populationMonotonicRule struct{}

func (populationMonotonicRule) Name() string { return "population_monotonic" }

func (populationMonotonicRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	res := domain.Result{}
	for _, plan := range view.ListBatchPlans() {
		states := view.ListDailyStates(plan.BatchID)
		for i := 1; i < len(states); i++ {
			prev, cur := states[i-1], states[i]
			if cur.Stage != prev.Stage {
				continue
			}
			if cur.Population > prev.Population {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "population_monotonic",
					Severity: domain.SeverityBlock,
					Message: fmt.Sprintf("batch %s stage %s: population rose from %d (day %d) to %d (day %d)",
						plan.BatchID, cur.Stage, prev.Population, prev.Day, cur.Population, cur.Day),
					BatchID: plan.BatchID,
				})
			}
		}
	}
	return res, nil
}
