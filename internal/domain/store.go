package domain

import "context"

// JournalStore keeps an append-only record of executions and the latest
// state of every position. It mirrors the state file and is never read back
// by the control loop.
type JournalStore interface {
	RecordExecution(ctx context.Context, intent TradeIntent, receipt ExecutionReceipt) error
	UpsertPosition(ctx context.Context, pos Position) error
}
