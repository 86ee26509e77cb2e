// Package domain contains the task and points-ledger entities, the task
// lifecycle state machine, recurrence rules and the error taxonomy shared by
// every layer. It has no knowledge of storage or transport.
package domain
