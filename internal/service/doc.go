// Package service contains the application use cases: the task lifecycle
// engine, the points ledger, recurring task generation and due-soon
// reminders. It orchestrates domain objects and the store interfaces
// (defined in internal/store) and never depends on a concrete database.
//
// Key components:
//
// 1. TaskService:
//   - Creates, edits, reserves and deletes tasks
//   - Drives the claim, start, complete, approve and reject transitions through
//     the domain transition table and conditional store writes
//   - Approves inside a transaction so the status change and the award commit together
//
// 2. LedgerService:
//   - Manual point adjustments, history pages, totals and leaderboards
//   - Totals are always summed from the ledger; only leaderboard pages may be cached
//
// 3. RecurringGenerator and ReminderService:
//   - Batch jobs that isolate per-item failures and report counts
//
// Error Handling:
//   - Every error returned to callers unwraps to one of the domain error kinds
//     (validation, state conflict, unauthorized, not found, persistence)
//   - Notification failures are logged and never fail the triggering operation
package service
