package recorder

import (
	"context"

	"github.com/jackc/pgx/v5"

	"simcore/internal/engine/timestep"
	"simcore/pkg/database"
)

const postgresInsertRowSQL = `
INSERT INTO recorder_rows (run_id, metric_set, step, scenario, metric_name, value)
VALUES ($1, $2, $3, $4, $5, $6)`

// PostgresSink persists every recorded row to the recorder_rows table (see
// migrations/00001_recorder_rows.sql) via pkg/database's pgx-backed pool,
// one row per (step, scenario, metric). RunID and MetricSet scope a single
// run's rows so multiple runs/metric sets can share one table.
type PostgresSink struct {
	ctx         context.Context
	db          database.DB
	runID       string
	metricSet   string
	metricNames []string
}

// NewPostgresSink writes rows tagged with runID/metricSet through db.
func NewPostgresSink(ctx context.Context, db database.DB, runID, metricSet string) *PostgresSink {
	return &PostgresSink{ctx: ctx, db: db, runID: runID, metricSet: metricSet}
}

func (p *PostgresSink) Setup(metricNames []string, steps []timestep.Timestep, scenarios []timestep.Scenario) error {
	p.metricNames = metricNames
	return nil
}

// WriteRow inserts one row per metric for this (step, scenario), all within
// a single transaction so a step's metrics never appear partially committed.
func (p *PostgresSink) WriteRow(step, scenario int, values []float64) error {
	return database.WithTransaction(p.ctx, p.db, func(tx pgx.Tx) error {
		for i, v := range values {
			if _, err := tx.Exec(p.ctx, postgresInsertRowSQL, p.runID, p.metricSet, step, scenario, p.metricNames[i], v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *PostgresSink) Flush(int) error { return nil }
func (p *PostgresSink) Close() error    { return nil }
