package storage

import (
	"context"

	"github.com/ftchann/vault-simulator/lib/result"
)

// Sink persists the records produced by one backtest run. Records are
// keyed by run id and their position in the run.
type Sink interface {
	PutSnapshots(ctx context.Context, runID string, snapshots []result.Snapshot) error
	PutRebalances(ctx context.Context, runID string, rebalances []result.Rebalance) error
	PutRun(ctx context.Context, runID string, run result.RunResult) error
}
