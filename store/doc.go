// Package store provides a DynamoDB data access layer with optimistic locking.
//
// Every row written through the store carries a numeric version attribute
// that changes on every write. Readers capture the version and present it
// back on the next write; a write presenting a stale version fails with
// [ErrConcurrentModification]. This is the only coordination mechanism: the
// store holds no locks and no in-process state.
//
// # Key Features
//
//   - Conditional create (fails if the key exists) as a single put, or in a
//     transaction with a parent check for entities that supply one
//   - Create-or-replace upserts that bump the version instead of resetting it
//   - Optimistic updates with an optional extra condition
//   - Multi-row transactional updates with per-item failure reporting
//   - Paginated partition queries
//   - Table provisioning for local development
//
// # Entity Interfaces
//
// All entities must implement the [Entity] interface:
//
//	type Entity interface {
//	    TableName() string
//	    GetKey() PK
//	    EntityRef() string
//	    EntityType() string
//	}
//
// Entities that depend on a parent row implement [ParentChecker]:
//
//	type ParentChecker interface {
//	    ParentCheck() *ConditionCheck
//	    ParentRef() string
//	}
//
// # Transactions
//
// [Store.TransactUpdate] and [Store.UpsertBatch] are limited to
// [MaxTransactItems] items. A cancelled transaction is reported as a
// [*ConditionFailedError] whose indexes name the failing checks and writes.
// A transaction cancelled only because another transaction held a checked
// row reports [ErrTransactionConflict] instead; nothing was written.
//
// # Errors
//
//   - [ErrNotFound] - entity doesn't exist
//   - [ErrParentNotFound] - parent or guard check failed
//   - [ErrAlreadyExists] - entity with key already exists
//   - [ErrConcurrentModification] - optimistic lock failed
//   - [ErrTooManyItems] - transaction over the service limit
//   - [ErrTransactionConflict] - row held by a concurrent transaction, retryable
package store
