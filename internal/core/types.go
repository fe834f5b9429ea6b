// Package core wires the generation pipeline together: the transactional
// service over a persistent store, the invariant rules evaluated at commit
// and plan time, observability exporters, and storage driver selection.
package core

import "batchcore/pkg/domain"

type (
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction for service operations.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore.
	PersistentStore = domain.PersistentStore
	// BatchRecord aliases domain.BatchRecord.
	BatchRecord = domain.BatchRecord
	// AssignmentRecord aliases domain.AssignmentRecord.
	AssignmentRecord = domain.AssignmentRecord
)
