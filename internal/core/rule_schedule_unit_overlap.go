package core

import (
	"context"
	"fmt"
	"sort"

	"batchcore/pkg/domain"
)

// NewScheduleUnitOverlapRule returns the rule enforcing that the claim
// windows of each physical unit never overlap. This is the double-booking
// check at unit granularity; the capacity rule covers the group aggregate.
func NewScheduleUnitOverlapRule() domain.Rule {
	return scheduleUnitOverlapRule{}
}

type scheduleUnitOverlapRule struct{}

func (scheduleUnitOverlapRule) Name() string { return "schedule_unit_overlap" }

type unitClaim struct {
	batchID  string
	startDay int
	endDay   int
}

func (scheduleUnitOverlapRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	claims := make(map[string][]unitClaim)
	for _, e := range view.ListScheduleEntries() {
		for _, unitID := range e.UnitIDs {
			key := e.GroupID + "/" + unitID
			claims[key] = append(claims[key], unitClaim{batchID: e.BatchID, startDay: e.StartDay, endDay: e.EndDay})
		}
	}

	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := domain.Result{}
	for _, key := range keys {
		cs := claims[key]
		sort.Slice(cs, func(i, j int) bool { return cs[i].startDay < cs[j].startDay })
		for i := 1; i < len(cs); i++ {
			if cs[i].startDay < cs[i-1].endDay {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "schedule_unit_overlap",
					Severity: domain.SeverityBlock,
					Message: fmt.Sprintf("unit %s double-booked: [%d,%d) by %s overlaps [%d,%d) by %s",
						key, cs[i-1].startDay, cs[i-1].endDay, cs[i-1].batchID, cs[i].startDay, cs[i].endDay, cs[i].batchID),
					BatchID: cs[i].batchID,
				})
			}
		}
	}
	return res, nil
}
