package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"formsummary/internal/instances"
)

// Repo implements instances.Repository over a Collect-style SQLite
// instances database.
//
// The database is opened read-only in spirit: only SELECTs are issued. Use a
// DSN such as "file:instances.db?mode=ro" to enforce that at the driver.
type Repo struct {
	db *sql.DB
}

var dialect = instances.Dialect{
	Placeholder: func(int) string { return "?" },
	Quote:       instances.DoubleQuote,
}

func init() {
	instances.RegisterStore("sqlite", New)
}

// New opens the database named by cfg.DSN and verifies connectivity.
func New(ctx context.Context, cfg instances.StoreConfig) (instances.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// AllByStatus implements instances.Repository.
func (r *Repo) AllByStatus(ctx context.Context, statuses ...instances.Status) ([]instances.Instance, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	q := instances.SelectByStatusSQL(len(statuses), dialect)

	rows, err := r.db.QueryContext(ctx, q, instances.StatusArgs(statuses)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query instances: %w", err)
	}
	defer rows.Close()

	return instances.ScanInstances(rows)
}
