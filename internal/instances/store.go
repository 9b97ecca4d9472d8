package instances

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// StoreConfig selects and configures an instance store backend.
//
// Edge cases:
//   - Kind must match a registered backend ("sqlite", "postgres", "mssql", "dir").
//   - DSN is passed through to SQL backends; Dir is used by the directory backend.
//   - DisplayNames maps form id -> display name for backends whose records do
//     not carry one (the directory backend).
type StoreConfig struct {
	Kind         string
	DSN          string
	Dir          string
	DisplayNames map[string]string
}

// Repository is the query surface the summarise pipeline needs from a store.
type Repository interface {
	// AllByStatus returns every instance whose status is one of statuses, in
	// a stable store order.
	AllByStatus(ctx context.Context, statuses ...Status) ([]Instance, error)

	// Close releases backend resources. Call once.
	Close()
}

// QueryFinalized returns the candidate set for the pipeline: instances in
// the complete, submitted or submission-failed status. Each call is a fresh
// snapshot.
func QueryFinalized(ctx context.Context, repo Repository) ([]Instance, error) {
	list, err := repo.AllByStatus(ctx, Finalized...)
	if err != nil {
		return nil, fmt.Errorf("query finalized instances: %w", err)
	}
	return list, nil
}

type storeFactory func(ctx context.Context, cfg StoreConfig) (Repository, error)

var (
	storeMu        sync.RWMutex
	storeFactories = map[string]storeFactory{}
)

// RegisterStore registers a backend under kind. Call it from an init()
// function in the backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func RegisterStore(kind string, f storeFactory) {
	storeMu.Lock()
	defer storeMu.Unlock()

	if kind == "" {
		panic("instances: RegisterStore called with empty kind")
	}
	if f == nil {
		panic("instances: RegisterStore called with nil factory")
	}
	if _, exists := storeFactories[kind]; exists {
		panic(fmt.Sprintf("instances: store already registered for kind=%q", kind))
	}
	storeFactories[kind] = f
}

// Open constructs a Repository using the registered backend for cfg.Kind.
func Open(ctx context.Context, cfg StoreConfig) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("instances: missing store kind")
	}

	storeMu.RLock()
	f := storeFactories[cfg.Kind]
	storeMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported store.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds.
func Kinds() []string {
	storeMu.RLock()
	defer storeMu.RUnlock()

	out := make([]string, 0, len(storeFactories))
	for k := range storeFactories {
		out = append(out, k)
	}
	return out
}

// Table is the store table holding instance rows. Column names follow the
// Collect instances provider schema.
const Table = "instances"

// Dialect captures the few SQL differences between backends.
type Dialect struct {
	// Placeholder renders the 1-based i-th bind parameter.
	Placeholder func(i int) string
	// Quote quotes an identifier. Column names are camelCase and must keep
	// their case on Postgres.
	Quote func(ident string) string
}

// DoubleQuote is the ANSI identifier quoting used by SQLite and Postgres.
func DoubleQuote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

var selectColumns = []string{"_id", "jrFormId", "displayName", "status", "instanceFilePath"}

// SelectByStatusSQL builds the status query shared by the SQL backends.
func SelectByStatusSQL(n int, d Dialect) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.Placeholder(i + 1)
	}
	cols := make([]string, len(selectColumns))
	for i, c := range selectColumns {
		cols[i] = d.Quote(c)
	}
	return fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s IN (%s) AND %s IS NULL ORDER BY %s`,
		strings.Join(cols, ", "), d.Quote(Table), d.Quote("status"),
		strings.Join(ph, ", "), d.Quote("deletedDate"), d.Quote("_id"),
	)
}

// StatusArgs converts statuses into bind arguments.
func StatusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return args
}

// RowScanner is the subset of *sql.Rows / pgx.Rows used by ScanInstances.
type RowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// ScanInstances reads rows produced by SelectByStatusSQL. NULL form ids and
// display names come back as "".
func ScanInstances(rows RowScanner) ([]Instance, error) {
	var out []Instance
	for rows.Next() {
		var (
			id                   int64
			formID, name, status *string
			path                 *string
		)
		if err := rows.Scan(&id, &formID, &name, &status, &path); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out = append(out, Instance{
			ID:          strconv.FormatInt(id, 10),
			FormID:      deref(formID),
			DisplayName: deref(name),
			Status:      Status(deref(status)),
			FilePath:    deref(path),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
