package core

import (
	"context"
	"fmt"

	"batchcore/pkg/domain"
)

// NewTransferContinuityRule returns the rule enforcing biological continuity
// across stage transfers: the destination stage's first daily state carries
// exactly the transferred population and average weight.
func NewTransferContinuityRule() domain.Rule {
	return transferContinuityRule{}
}

type transferContinuityRule struct{}

func (transferContinuityRule) Name() string { return "transfer_continuity" }

func (transferContinuityRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	res := domain.Result{}
	for _, plan := range view.ListBatchPlans() {
		states := view.ListDailyStates(plan.BatchID)
		if len(states) == 0 {
			continue
		}
		byDay := make(map[int]domain.DailyState, len(states))
		for _, st := range states {
			byDay[st.Day] = st
		}
		for _, ev := range view.ListEvents(plan.BatchID) {
			if ev.Type != domain.EventTransfer || ev.Transfer == nil {
				continue
			}
			landed, ok := byDay[ev.Day]
			if !ok {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "transfer_continuity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("batch %s: no daily state on transfer day %d", plan.BatchID, ev.Day),
					BatchID:  plan.BatchID,
				})
				continue
			}
			if landed.Population != ev.Transfer.Count || landed.AvgWeightG != ev.Transfer.AvgWeightG {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "transfer_continuity",
					Severity: domain.SeverityBlock,
					Message: fmt.Sprintf("batch %s day %d: transfer carried %d fish at %.2fg but destination opened with %d at %.2fg",
						plan.BatchID, ev.Day, ev.Transfer.Count, ev.Transfer.AvgWeightG, landed.Population, landed.AvgWeightG),
					BatchID: plan.BatchID,
				})
			}
		}
	}
	return res, nil
}
