package core

import (
	"context"
	"fmt"
	"sort"

	"batchcore/pkg/domain"
)

// NewPartitionDisjointRule returns the rule enforcing that partitions form
// an exact cover of the planned batches: every planned batch appears in
// exactly one partition and no partition names an unplanned batch.
func NewPartitionDisjointRule() domain.Rule {
	return partitionDisjointRule{}
}

type partitionDisjointRule struct{}

func (partitionDisjointRule) Name() string { return "partition_disjoint" }

func (partitionDisjointRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	partitions := view.ListPartitions()
	if len(partitions) == 0 {
		return domain.Result{}, nil
	}

	planned := make(map[string]bool)
	for _, plan := range view.ListBatchPlans() {
		if plan.Outcome == domain.OutcomePlanned {
			planned[plan.BatchID] = true
		}
	}

	res := domain.Result{}
	owner := make(map[string]int)
	for _, part := range partitions {
		for _, batchID := range part.BatchIDs {
			if prev, seen := owner[batchID]; seen {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "partition_disjoint",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("batch %s assigned to partitions %d and %d", batchID, prev, part.Index),
					BatchID:  batchID,
				})
				continue
			}
			owner[batchID] = part.Index
			if !planned[batchID] {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "partition_disjoint",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("partition %d contains unplanned batch %s", part.Index, batchID),
					BatchID:  batchID,
				})
			}
		}
	}
	var missing []string
	for batchID := range planned {
		if _, covered := owner[batchID]; !covered {
			missing = append(missing, batchID)
		}
	}
	sort.Strings(missing)
	for _, batchID := range missing {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "partition_disjoint",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("planned batch %s missing from every partition", batchID),
			BatchID:  batchID,
		})
	}
	return res, nil
}
