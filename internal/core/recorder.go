package core

import (
	"context"
	"fmt"
	"sync"

	"batchcore/internal/sim"
	"batchcore/pkg/domain"
)

// RunRecorder adapts the service to the simulation engine's recorder
// interface. Output is buffered per batch and committed in one transaction
// when the batch's harvest event arrives, so a batch that fails mid-flight
// persists nothing. Safe for concurrent use across partitions.
type RunRecorder struct {
	svc      *Service
	runID    string
	schedule domain.Schedule

	mu      sync.Mutex
	buffers map[string]*batchBuffer
}

var _ sim.Recorder = (*RunRecorder)(nil)

type batchBuffer struct {
	states     []domain.DailyState
	events     []domain.Event
	actualEnds map[string]int
}

// Recorder returns a recorder committing simulation output for one run.
func (s *Service) Recorder(runID string, schedule domain.Schedule) *RunRecorder {
	return &RunRecorder{
		svc:      s,
		runID:    runID,
		schedule: schedule,
		buffers:  make(map[string]*batchBuffer),
	}
}

func (r *RunRecorder) buffer(batchID string) *batchBuffer {
	buf, ok := r.buffers[batchID]
	if !ok {
		buf = &batchBuffer{actualEnds: make(map[string]int)}
		r.buffers[batchID] = buf
	}
	return buf
}

// RecordDailyState buffers one daily snapshot.
func (r *RunRecorder) RecordDailyState(_ context.Context, state domain.DailyState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := r.buffer(state.BatchID)
	buf.states = append(buf.states, state)
	return nil
}

// RecordEvent buffers one event. The harvest event terminates the batch and
// triggers the commit of its whole stream.
func (r *RunRecorder) RecordEvent(ctx context.Context, event domain.Event) error {
	r.mu.Lock()
	buf := r.buffer(event.BatchID)
	buf.events = append(buf.events, event)
	switch event.Type {
	case domain.EventTransfer:
		if event.Transfer != nil {
			buf.actualEnds[event.Transfer.FromStage] = event.Day
		}
	case domain.EventHarvest:
		plan, ok := r.schedule.Batch(event.BatchID)
		if !ok {
			r.mu.Unlock()
			return fmt.Errorf("harvest for unknown batch %s", event.BatchID)
		}
		if n := len(plan.Entries); n > 0 {
			buf.actualEnds[plan.Entries[n-1].Stage] = event.Day
		}
		delete(r.buffers, event.BatchID)
		r.mu.Unlock()
		return r.svc.CommitBatchOutput(ctx, r.runID, plan, buf.actualEnds, buf.states, buf.events)
	}
	r.mu.Unlock()
	return nil
}

// Pending returns the batch IDs with buffered, uncommitted output. After a
// clean run it is empty; a failed batch's partial stream shows up here.
func (r *RunRecorder) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.buffers))
	for id := range r.buffers {
		out = append(out, id)
	}
	return out
}
