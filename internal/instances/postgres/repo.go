package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"formsummary/internal/instances"
)

/*
Repo implements instances.Repository over a Postgres mirror of the
instances table (for example a reporting replica fed from device uploads).

Column names keep their camelCase spelling and are therefore always quoted.
*/
type Repo struct {
	pool *pgxpool.Pool
}

var dialect = instances.Dialect{
	Placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
	Quote:       instances.DoubleQuote,
}

func init() {
	instances.RegisterStore("postgres", New)
}

// New creates a pooled Postgres-backed Repo.
func New(ctx context.Context, cfg instances.StoreConfig) (instances.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// AllByStatus implements instances.Repository.
func (r *Repo) AllByStatus(ctx context.Context, statuses ...instances.Status) ([]instances.Instance, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, selectSQL(len(statuses)), instances.StatusArgs(statuses)...)
	if err != nil {
		return nil, fmt.Errorf("postgres query instances: %w", err)
	}
	defer rows.Close()

	return instances.ScanInstances(rows)
}

func selectSQL(n int) string {
	return instances.SelectByStatusSQL(n, dialect)
}
