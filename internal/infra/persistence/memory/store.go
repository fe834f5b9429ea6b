// Package memory provides the in-memory implementation of the batchcore
// persistence store. It is the canonical semantics: the sqlite and postgres
// stores wrap it and add durability.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"batchcore/pkg/domain"
)

// Compile-time contract assertion against the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// BatchRecord aliases domain.BatchRecord for store operations.
	BatchRecord = domain.BatchRecord
	// AssignmentRecord aliases domain.AssignmentRecord.
	AssignmentRecord = domain.AssignmentRecord
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used at commit time.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView for rule evaluation.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	groups      map[string]domain.ResourceGroup
	stages      map[string]domain.StageDefinition
	batches     map[string]BatchRecord
	assignments map[string]AssignmentRecord
	states      map[string][]domain.DailyState
	events      map[string][]domain.Event
	externalIDs map[string]string
}

// Snapshot captures a point-in-time clone of the store state for external
// persistence.
type Snapshot struct {
	Groups      map[string]domain.ResourceGroup   `json:"groups"`
	Stages      map[string]domain.StageDefinition `json:"stages"`
	Batches     map[string]BatchRecord            `json:"batches"`
	Assignments map[string]AssignmentRecord       `json:"assignments"`
	States      map[string][]domain.DailyState    `json:"states"`
	Events      map[string][]domain.Event         `json:"events"`
	ExternalIDs map[string]string                 `json:"external_ids"`
}

func newMemoryState() memoryState {
	return memoryState{
		groups:      make(map[string]domain.ResourceGroup),
		stages:      make(map[string]domain.StageDefinition),
		batches:     make(map[string]BatchRecord),
		assignments: make(map[string]AssignmentRecord),
		states:      make(map[string][]domain.DailyState),
		events:      make(map[string][]domain.Event),
		externalIDs: make(map[string]string),
	}
}

func cloneAssignment(a AssignmentRecord) AssignmentRecord {
	a.Entry.UnitIDs = append([]string(nil), a.Entry.UnitIDs...)
	return a
}

func cloneEvent(ev domain.Event) domain.Event {
	if ev.Feeding != nil {
		p := *ev.Feeding
		ev.Feeding = &p
	}
	if ev.Mortality != nil {
		p := *ev.Mortality
		ev.Mortality = &p
	}
	if ev.Sample != nil {
		p := *ev.Sample
		ev.Sample = &p
	}
	if ev.Transfer != nil {
		p := *ev.Transfer
		ev.Transfer = &p
	}
	if ev.Harvest != nil {
		p := *ev.Harvest
		ev.Harvest = &p
	}
	return ev
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.groups {
		out.groups[k] = v
	}
	for k, v := range s.stages {
		out.stages[k] = v
	}
	for k, v := range s.batches {
		out.batches[k] = v
	}
	for k, v := range s.assignments {
		out.assignments[k] = cloneAssignment(v)
	}
	for k, v := range s.states {
		out.states[k] = append([]domain.DailyState(nil), v...)
	}
	for k, v := range s.events {
		evs := make([]domain.Event, len(v))
		for i, ev := range v {
			evs[i] = cloneEvent(ev)
		}
		out.events[k] = evs
	}
	for k, v := range s.externalIDs {
		out.externalIDs[k] = v
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Groups:      c.groups,
		Stages:      c.stages,
		Batches:     c.batches,
		Assignments: c.assignments,
		States:      c.states,
		Events:      c.events,
		ExternalIDs: c.externalIDs,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Groups {
		state.groups[k] = v
	}
	for k, v := range s.Stages {
		state.stages[k] = v
	}
	for k, v := range s.Batches {
		state.batches[k] = v
	}
	for k, v := range s.Assignments {
		state.assignments[k] = cloneAssignment(v)
	}
	for k, v := range s.States {
		state.states[k] = append([]domain.DailyState(nil), v...)
	}
	for k, v := range s.Events {
		evs := make([]domain.Event, len(v))
		for i, ev := range v {
			evs[i] = cloneEvent(ev)
		}
		state.events[k] = evs
	}
	for k, v := range s.ExternalIDs {
		state.externalIDs[k] = v
	}
	return state
}

// Store provides an in-memory transactional store for generation output.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{state: newMemoryState(), engine: engine}
}

func newID(prefix string) string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return prefix + "-" + hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the engine evaluated at commit time.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy replaces the live state only when fn succeeds and no
// registered rule reports a blocking violation.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, newTransactionView(&tx.state))
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// ListBatches returns all batch records ordered by ID.
func (s *Store) ListBatches() []BatchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BatchRecord, 0, len(s.state.batches))
	for _, b := range s.state.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListAssignments returns all assignment records ordered by batch, then
// window start.
func (s *Store) ListAssignments() []AssignmentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AssignmentRecord, 0, len(s.state.assignments))
	for _, a := range s.state.assignments {
		out = append(out, cloneAssignment(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BatchID != out[j].BatchID {
			return out[i].BatchID < out[j].BatchID
		}
		return out[i].Entry.StartDay < out[j].Entry.StartDay
	})
	return out
}

// ListDailyStates returns the batch's daily states ordered by day.
func (s *Store) ListDailyStates(batchID string) []domain.DailyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.DailyState(nil), s.state.states[batchID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// ListEvents returns the batch's events in recorded order.
func (s *Store) ListEvents(batchID string) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.state.events[batchID]
	out := make([]domain.Event, len(evs))
	for i, ev := range evs {
		out[i] = cloneEvent(ev)
	}
	return out
}

// LookupExternalID resolves a source identifier to the record it produced.
func (s *Store) LookupExternalID(externalID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.state.externalIDs[externalID]
	return id, ok
}

type transaction struct {
	state memoryState
}

func (tx *transaction) Snapshot() TransactionView {
	snapshot := tx.state.clone()
	return newTransactionView(&snapshot)
}

func (tx *transaction) PutResourceGroup(g domain.ResourceGroup) (domain.ResourceGroup, error) {
	if g.ID == "" {
		return domain.ResourceGroup{}, fmt.Errorf("resource group requires an id")
	}
	if g.UnitCount <= 0 {
		return domain.ResourceGroup{}, fmt.Errorf("resource group %s requires a positive unit count", g.ID)
	}
	tx.state.groups[g.ID] = g
	return g, nil
}

func (tx *transaction) PutStageDefinition(st domain.StageDefinition) (domain.StageDefinition, error) {
	if st.Name == "" {
		return domain.StageDefinition{}, fmt.Errorf("stage definition requires a name")
	}
	if st.DurationDays <= 0 {
		return domain.StageDefinition{}, fmt.Errorf("stage %s requires a positive duration", st.Name)
	}
	tx.state.stages[st.Name] = st
	return st, nil
}

func (tx *transaction) CreateBatch(b BatchRecord) (BatchRecord, error) {
	if b.ID == "" {
		b.ID = newID("bat")
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return BatchRecord{}, fmt.Errorf("batch %s already exists", b.ID)
	}
	tx.state.batches[b.ID] = b
	return b, nil
}

func (tx *transaction) CreateAssignment(a AssignmentRecord) (AssignmentRecord, error) {
	if a.BatchID == "" {
		return AssignmentRecord{}, fmt.Errorf("assignment requires a batch id")
	}
	if _, ok := tx.state.batches[a.BatchID]; !ok {
		return AssignmentRecord{}, fmt.Errorf("assignment references unknown batch %s", a.BatchID)
	}
	if a.ID == "" {
		a.ID = newID("asg")
	}
	if _, exists := tx.state.assignments[a.ID]; exists {
		return AssignmentRecord{}, fmt.Errorf("assignment %s already exists", a.ID)
	}
	tx.state.assignments[a.ID] = cloneAssignment(a)
	return a, nil
}

func (tx *transaction) CreateDailyState(state domain.DailyState) error {
	if _, ok := tx.state.batches[state.BatchID]; !ok {
		return fmt.Errorf("daily state references unknown batch %s", state.BatchID)
	}
	tx.state.states[state.BatchID] = append(tx.state.states[state.BatchID], state)
	return nil
}

func (tx *transaction) AppendEvent(ev domain.Event) error {
	if _, ok := tx.state.batches[ev.BatchID]; !ok {
		return fmt.Errorf("event references unknown batch %s", ev.BatchID)
	}
	tx.state.events[ev.BatchID] = append(tx.state.events[ev.BatchID], cloneEvent(ev))
	return nil
}

func (tx *transaction) BindExternalID(externalID, recordID string) error {
	if externalID == "" || recordID == "" {
		return fmt.Errorf("external id binding requires both identifiers")
	}
	if existing, ok := tx.state.externalIDs[externalID]; ok && existing != recordID {
		return fmt.Errorf("external id %s already bound to %s", externalID, existing)
	}
	tx.state.externalIDs[externalID] = recordID
	return nil
}

func (tx *transaction) LookupExternalID(externalID string) (string, bool) {
	id, ok := tx.state.externalIDs[externalID]
	return id, ok
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListResourceGroups() []domain.ResourceGroup {
	out := make([]domain.ResourceGroup, 0, len(v.state.groups))
	for _, g := range v.state.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListScheduleEntries() []domain.ScheduleEntry {
	out := make([]domain.ScheduleEntry, 0, len(v.state.assignments))
	for _, a := range v.state.assignments {
		out = append(out, cloneAssignment(a).Entry)
	}
	domain.SortEntries(out)
	return out
}

// ListBatchPlans reconstructs plan shapes from the persisted batch and
// assignment records so plan-level rules can run against stored data.
func (v transactionView) ListBatchPlans() []domain.BatchPlan {
	entriesByBatch := make(map[string][]domain.ScheduleEntry)
	for _, a := range v.state.assignments {
		entriesByBatch[a.BatchID] = append(entriesByBatch[a.BatchID], cloneAssignment(a).Entry)
	}
	out := make([]domain.BatchPlan, 0, len(v.state.batches))
	for _, b := range v.state.batches {
		entries := entriesByBatch[b.ID]
		domain.SortEntries(entries)
		out = append(out, domain.BatchPlan{
			BatchID:  b.ID,
			Region:   b.Region,
			StartDay: b.StartDay,
			Outcome:  b.Outcome,
			Entries:  entries,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchID < out[j].BatchID })
	return out
}

// ListPartitions returns nil: partitions are a planning artifact and are not
// persisted.
func (v transactionView) ListPartitions() []domain.Partition { return nil }

func (v transactionView) ListDailyStates(batchID string) []domain.DailyState {
	out := append([]domain.DailyState(nil), v.state.states[batchID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func (v transactionView) ListEvents(batchID string) []domain.Event {
	evs := v.state.events[batchID]
	out := make([]domain.Event, len(evs))
	for i, ev := range evs {
		out[i] = cloneEvent(ev)
	}
	return out
}

func (v transactionView) FindBatch(id string) (BatchRecord, bool) {
	b, ok := v.state.batches[id]
	return b, ok
}

func (v transactionView) FindResourceGroup(id string) (domain.ResourceGroup, bool) {
	g, ok := v.state.groups[id]
	return g, ok
}
