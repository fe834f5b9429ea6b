// Package partition splits a planned schedule into contiguous chronological
// batch groups, one per worker. Because the planner already guarantees that
// no two batches share an overlapping (group, unit, window) triple, any
// batch-grained split is conflict-free: workers never coordinate at runtime.
package partition

import (
	"fmt"

	"batchcore/pkg/domain"
)

// Split divides the planned batches of a schedule into workerCount contiguous
// groups by start day. Partition sizes differ by at most one batch.
// Infeasible batches carry no assignments and are excluded.
func Split(schedule domain.Schedule, workerCount int) ([]domain.Partition, error) {
	if workerCount <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workerCount)
	}
	planned := schedule.PlannedBatches()
	if len(planned) == 0 {
		return nil, fmt.Errorf("schedule has no planned batches to partition")
	}
	if workerCount > len(planned) {
		workerCount = len(planned)
	}

	// Batches are already in start-day order; slice them into near-equal
	// contiguous runs, front-loading the remainder.
	base := len(planned) / workerCount
	extra := len(planned) % workerCount
	partitions := make([]domain.Partition, 0, workerCount)
	offset := 0
	for i := 0; i < workerCount; i++ {
		size := base
		if i < extra {
			size++
		}
		chunk := planned[offset : offset+size]
		offset += size

		p := domain.Partition{Index: i, FirstDay: chunk[0].StartDay}
		for _, b := range chunk {
			p.BatchIDs = append(p.BatchIDs, b.BatchID)
			if end := batchEndDay(b); end > p.LastDay {
				p.LastDay = end
			}
		}
		partitions = append(partitions, p)
	}
	return partitions, nil
}

func batchEndDay(b domain.BatchPlan) int {
	if len(b.Entries) == 0 {
		return b.StartDay
	}
	return b.Entries[len(b.Entries)-1].EndDay
}
