package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ftchann/vault-simulator/lib/result"
)

// Store provides Postgres persistence for backtest records.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateSchema creates the result tables when they do not exist yet.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vault_runs (
			run_id TEXT PRIMARY KEY,
			base_threshold INT NOT NULL,
			limit_threshold INT NOT NULL,
			end_amount NUMERIC NOT NULL,
			end_supply NUMERIC NOT NULL,
			protocol_fees0 NUMERIC NOT NULL,
			protocol_fees1 NUMERIC NOT NULL,
			rebalances INT NOT NULL,
			variance_hourly NUMERIC NOT NULL,
			variance_daily NUMERIC NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS vault_snapshots (
			run_id TEXT NOT NULL,
			seq INT NOT NULL,
			ts BIGINT NOT NULL,
			tick INT NOT NULL,
			amount0 NUMERIC NOT NULL,
			amount1 NUMERIC NOT NULL,
			value NUMERIC NOT NULL,
			price NUMERIC NOT NULL,
			total_supply NUMERIC NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
		CREATE TABLE IF NOT EXISTS vault_rebalances (
			run_id TEXT NOT NULL,
			seq INT NOT NULL,
			ts BIGINT NOT NULL,
			tick INT NOT NULL,
			base_lower INT NOT NULL,
			base_upper INT NOT NULL,
			limit_lower INT NOT NULL,
			limit_upper INT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
	`)
	return err
}

// PutSnapshots inserts or updates the snapshots of a run.
func (s *Store) PutSnapshots(ctx context.Context, runID string, snapshots []result.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, snapshot := range snapshots {
		batch.Queue(`
			INSERT INTO vault_snapshots (
				run_id, seq, ts, tick, amount0, amount1, value, price, total_supply
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, seq)
			DO UPDATE SET
				ts = EXCLUDED.ts,
				tick = EXCLUDED.tick,
				amount0 = EXCLUDED.amount0,
				amount1 = EXCLUDED.amount1,
				value = EXCLUDED.value,
				price = EXCLUDED.price,
				total_supply = EXCLUDED.total_supply
		`,
			runID,
			i,
			int64(snapshot.Timestamp),
			snapshot.Tick,
			snapshot.Amount0,
			snapshot.Amount1,
			snapshot.Value,
			snapshot.Price,
			snapshot.TotalSupply,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutRebalances inserts or updates the rebalance records of a run.
func (s *Store) PutRebalances(ctx context.Context, runID string, rebalances []result.Rebalance) error {
	if len(rebalances) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, rebalance := range rebalances {
		batch.Queue(`
			INSERT INTO vault_rebalances (
				run_id, seq, ts, tick, base_lower, base_upper, limit_lower, limit_upper
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (run_id, seq)
			DO UPDATE SET
				ts = EXCLUDED.ts,
				tick = EXCLUDED.tick,
				base_lower = EXCLUDED.base_lower,
				base_upper = EXCLUDED.base_upper,
				limit_lower = EXCLUDED.limit_lower,
				limit_upper = EXCLUDED.limit_upper
		`,
			runID,
			i,
			int64(rebalance.Timestamp),
			rebalance.Tick,
			rebalance.BaseLower,
			rebalance.BaseUpper,
			rebalance.LimitLower,
			rebalance.LimitUpper,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rebalances {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutRun inserts or updates the summary row of a run.
func (s *Store) PutRun(ctx context.Context, runID string, run result.RunResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vault_runs (
			run_id, base_threshold, limit_threshold, end_amount, end_supply,
			protocol_fees0, protocol_fees1, rebalances, variance_hourly, variance_daily,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (run_id)
		DO UPDATE SET
			base_threshold = EXCLUDED.base_threshold,
			limit_threshold = EXCLUDED.limit_threshold,
			end_amount = EXCLUDED.end_amount,
			end_supply = EXCLUDED.end_supply,
			protocol_fees0 = EXCLUDED.protocol_fees0,
			protocol_fees1 = EXCLUDED.protocol_fees1,
			rebalances = EXCLUDED.rebalances,
			variance_hourly = EXCLUDED.variance_hourly,
			variance_daily = EXCLUDED.variance_daily,
			updated_at = now()
	`,
		runID,
		run.BaseThreshold,
		run.LimitThreshold,
		run.EndAmount,
		run.EndSupply,
		run.ProtocolFees0,
		run.ProtocolFees1,
		run.Rebalances,
		run.VarianceHourly,
		run.VarianceDaily,
	)
	return err
}
