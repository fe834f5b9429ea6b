package core

import (
	"context"
	"fmt"
	"sort"

	"batchcore/pkg/domain"
)

// NewScheduleCapacityRule returns the rule enforcing that no resource group
// ever has more units claimed than it owns on any day.
func NewScheduleCapacityRule() domain.Rule {
	return scheduleCapacityRule{}
}

type scheduleCapacityRule struct{}

func (scheduleCapacityRule) Name() string { return "schedule_capacity" }

func (scheduleCapacityRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	capacities := make(map[string]int)
	for _, g := range view.ListResourceGroups() {
		capacities[g.ID] = g.UnitCount
	}

	// Sweep per group: +units at window start, -units at window end.
	type edge struct {
		day   int
		delta int
	}
	edges := make(map[string][]edge)
	for _, e := range view.ListScheduleEntries() {
		edges[e.GroupID] = append(edges[e.GroupID],
			edge{day: e.StartDay, delta: len(e.UnitIDs)},
			edge{day: e.EndDay, delta: -len(e.UnitIDs)})
	}

	res := domain.Result{}
	groupIDs := make([]string, 0, len(edges))
	for id := range edges {
		groupIDs = append(groupIDs, id)
	}
	sort.Strings(groupIDs)
	for _, groupID := range groupIDs {
		capacity, known := capacities[groupID]
		if !known {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "schedule_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("schedule references unknown resource group %s", groupID),
				GroupID:  groupID,
			})
			continue
		}
		es := edges[groupID]
		sort.Slice(es, func(i, j int) bool {
			if es[i].day != es[j].day {
				return es[i].day < es[j].day
			}
			// Releases apply before claims on the same day.
			return es[i].delta < es[j].delta
		})
		claimed, peakDay, peak := 0, 0, 0
		for _, e := range es {
			claimed += e.delta
			if claimed > peak {
				peak, peakDay = claimed, e.day
			}
		}
		if peak > capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "schedule_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("group %s over capacity on day %d: %d/%d units claimed", groupID, peakDay, peak, capacity),
				GroupID:  groupID,
			})
		}
	}
	return res, nil
}
