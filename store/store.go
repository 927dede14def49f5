package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTableNotFound    = errors.New("table not found")
	ErrTableExists      = errors.New("table already exists")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrEmptyFilter      = errors.New("filter expression is required")
)

// Row maps column names to scalar values. A nil value is SQL NULL.
type Row map[string]any

// RowSet is the full materialized contents of a table as of one snapshot.
// It is a multiset: duplicate rows are preserved as distinct members.
type RowSet struct {
	Columns []string
	Rows    []Row
}

// Snapshot describes one immutable version of a table. Every successful
// write commits exactly one snapshot.
type Snapshot struct {
	ID        int64     `json:"snapshot_id"`
	Timestamp time.Time `json:"timestamp"`
	ParentID  *int64    `json:"parent_id"`
	Operation string    `json:"operation"`
}

// Column declares one column of a table schema. Type is the backend's
// SQL type name (TEXT, INTEGER, REAL).
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SnapshotSource is the read side of a versioned table store.
type SnapshotSource interface {
	// ListSnapshots returns all snapshots of a table in creation order.
	ListSnapshots(ctx context.Context, table string) ([]Snapshot, error)

	// ResolveRef resolves a snapshot reference, either a decimal snapshot
	// id or an ISO-8601 timestamp (latest snapshot at or before that
	// instant), to a concrete snapshot id.
	ResolveRef(ctx context.Context, table string, ref string) (int64, error)

	// MaterializeAsOf returns the table's full row set as of a snapshot,
	// with columns in declared order.
	MaterializeAsOf(ctx context.Context, table string, snapshotID int64) (*RowSet, error)
}

// TableWriter is the write side of a versioned table store. Filter
// expressions are boolean predicates in the backend's native SQL syntax.
// Each call returns the number of rows affected; a write that affects
// zero rows commits no snapshot.
type TableWriter interface {
	InsertRows(ctx context.Context, table string, rows []Row) (int64, error)
	UpdateRows(ctx context.Context, table string, filterExpr string, updates map[string]any) (int64, error)
	DeleteRows(ctx context.Context, table string, filterExpr string) (int64, error)
}

// Store is a complete versioned table store backend.
type Store interface {
	SnapshotSource
	TableWriter

	CreateTable(ctx context.Context, name string, cols []Column) error
	ListTables(ctx context.Context) ([]string, error)
	Schema(ctx context.Context, table string) ([]Column, error)
	Close() error
}
