package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"formsummary/internal/instances"
)

// Repo implements instances.Repository for Microsoft SQL Server.
//
// The "sqlserver" driver is registered by the blank import above. Bind
// parameters use the @pN form and identifiers are bracket-quoted so the
// query does not depend on the session's QUOTED_IDENTIFIER setting.
type Repo struct {
	db queryer
}

// queryer is the narrow *sql.DB surface used here, for testability.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

var dialect = instances.Dialect{
	Placeholder: func(i int) string { return "@p" + strconv.Itoa(i) },
	Quote:       bracket,
}

func init() {
	instances.RegisterStore("mssql", New)
}

// New opens a SQL Server connection and validates it with PingContext.
func New(ctx context.Context, cfg instances.StoreConfig) (instances.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Summaries are short, single-query passes.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql ping: %w", err)
	}
	return &Repo{db: db}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// AllByStatus implements instances.Repository.
func (r *Repo) AllByStatus(ctx context.Context, statuses ...instances.Status) ([]instances.Instance, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	q := instances.SelectByStatusSQL(len(statuses), dialect)
	rows, err := r.db.QueryContext(ctx, q, instances.StatusArgs(statuses)...)
	if err != nil {
		return nil, fmt.Errorf("mssql query instances: %w", err)
	}
	defer rows.Close()

	return instances.ScanInstances(rows)
}

func bracket(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}
