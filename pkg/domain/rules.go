package domain

import (
	"context"
	"fmt"
	"strings"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine whether a violation blocks the run.
const (
	// SeverityBlock fails the planning run or persistence commit.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but allows the run to proceed.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation describes a single rule finding.
type Violation struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	BatchID  string   `json:"batch_id,omitempty"`
	GroupID  string   `json:"group_id,omitempty"`
}

// Result aggregates violations across rule evaluations.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends the other result's violations.
func (r *Result) Merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any violation carries block severity.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations abort an operation.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	msgs := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, fmt.Sprintf("%s: %s", v.Rule, v.Message))
		}
	}
	return "rule violations: " + strings.Join(msgs, "; ")
}

// RuleView provides read-only access to planning and simulation artifacts for
// rule evaluation. Planning-time views return no states or events.
type RuleView interface {
	ListResourceGroups() []ResourceGroup
	ListScheduleEntries() []ScheduleEntry
	ListBatchPlans() []BatchPlan
	ListPartitions() []Partition
	ListDailyStates(batchID string) []DailyState
	ListEvents(batchID string) []Event
}

// Rule defines an invariant check executed over a rule view.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		combined.Merge(res)
	}
	return combined, nil
}
