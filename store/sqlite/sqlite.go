package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidelake/tidelake/store"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is a SQLite-backed versioned table store. Every successful write
// commits a new snapshot: the table's full row set is copied into a
// dedicated snapshot data table and metadata is recorded in the catalog.
type Store struct {
	db *sql.DB
}

func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver %w", err)
	}
	migrationDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", migrationDriver, "tidelake", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate migrations %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("failed to run migrations %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateTable(ctx context.Context, name string, cols []store.Column) error {
	if err := store.ValidateIdent(name); err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("table %q needs at least one column", name)
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		if err := store.ValidateIdent(c.Name); err != nil {
			return err
		}
		defs[i] = store.QuoteIdent(c.Name) + " " + c.Type
	}
	colsJSON, err := json.Marshal(cols)
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_tables WHERE name = ?", name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check table registry: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%q: %w", name, store.ErrTableExists)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO catalog_tables (name, columns) VALUES (?, ?)", name, string(colsJSON)); err != nil {
		return fmt.Errorf("failed to register table: %w", err)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", store.QuoteIdent(name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM catalog_tables ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query table registry: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) Schema(ctx context.Context, table string) ([]store.Column, error) {
	return s.schema(ctx, s.db, table)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) schema(ctx context.Context, q querier, table string) ([]store.Column, error) {
	var colsJSON string
	err := q.QueryRowContext(ctx, "SELECT columns FROM catalog_tables WHERE name = ?", table).Scan(&colsJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%q: %w", table, store.ErrTableNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	var cols []store.Column
	if err := json.Unmarshal([]byte(colsJSON), &cols); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	return cols, nil
}

func (s *Store) InsertRows(ctx context.Context, table string, rows []store.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cols, err := s.schema(ctx, tx, table)
	if err != nil {
		return 0, err
	}
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = store.QuoteIdent(c.Name)
		marks[i] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		store.QuoteIdent(table), strings.Join(names, ", "), strings.Join(marks, ", "))
	for _, row := range rows {
		args := make([]any, len(cols))
		for i, c := range cols {
			args[i] = row[c.Name]
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return 0, fmt.Errorf("failed to insert row: %w", err)
		}
	}
	if _, err := s.commitSnapshot(ctx, tx, table, "append"); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int64(len(rows)), nil
}

func (s *Store) UpdateRows(ctx context.Context, table string, filterExpr string, updates map[string]any) (int64, error) {
	if filterExpr == "" {
		return 0, store.ErrEmptyFilter
	}
	if len(updates) == 0 {
		return 0, fmt.Errorf("updates cannot be empty")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cols, err := s.schema(ctx, tx, table)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c.Name] = true
	}
	names := make([]string, 0, len(updates))
	for name := range updates {
		if !known[name] {
			return 0, fmt.Errorf("column %q does not exist in table %q", name, table)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	sets := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		sets[i] = store.QuoteIdent(name) + " = ?"
		args[i] = updates[name]
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		store.QuoteIdent(table), strings.Join(sets, ", "), filterExpr)
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update rows: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected count: %w", err)
	}
	if affected == 0 {
		return 0, nil
	}
	if _, err := s.commitSnapshot(ctx, tx, table, "overwrite"); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return affected, nil
}

func (s *Store) DeleteRows(ctx context.Context, table string, filterExpr string) (int64, error) {
	if filterExpr == "" {
		return 0, store.ErrEmptyFilter
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.schema(ctx, tx, table); err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", store.QuoteIdent(table), filterExpr)
	res, err := tx.ExecContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected count: %w", err)
	}
	if affected == 0 {
		return 0, nil
	}
	if _, err := s.commitSnapshot(ctx, tx, table, "delete"); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return affected, nil
}

// commitSnapshot records snapshot metadata and copies the table's current
// rows into an immutable snapshot data table, inside the write's own
// transaction.
func (s *Store) commitSnapshot(ctx context.Context, tx *sql.Tx, table, operation string) (int64, error) {
	var parent sql.NullInt64
	err := tx.QueryRowContext(ctx,
		"SELECT MAX(snapshot_id) FROM catalog_snapshots WHERE table_name = ?", table).Scan(&parent)
	if err != nil {
		return 0, fmt.Errorf("failed to read parent snapshot: %w", err)
	}
	var parentID any
	if parent.Valid {
		parentID = parent.Int64
	}
	var snapshotID int64
	err = tx.QueryRowContext(ctx,
		"INSERT INTO catalog_snapshots (table_name, created_at, parent_id, operation) VALUES (?, ?, ?, ?) RETURNING snapshot_id",
		table, time.Now().UTC().Format(time.RFC3339Nano), parentID, operation).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to record snapshot: %w", err)
	}
	copyStmt := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s",
		store.QuoteIdent(snapDataTable(snapshotID)), store.QuoteIdent(table))
	if _, err := tx.ExecContext(ctx, copyStmt); err != nil {
		return 0, fmt.Errorf("failed to copy snapshot data: %w", err)
	}
	return snapshotID, nil
}

func snapDataTable(snapshotID int64) string {
	return fmt.Sprintf("snap_%d", snapshotID)
}

func (s *Store) ListSnapshots(ctx context.Context, table string) ([]store.Snapshot, error) {
	if _, err := s.schema(ctx, s.db, table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT snapshot_id, created_at, parent_id, operation FROM catalog_snapshots WHERE table_name = ? ORDER BY snapshot_id", table)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]store.Snapshot, 0)
	for rows.Next() {
		var (
			snap      store.Snapshot
			createdAt string
			parent    sql.NullInt64
		)
		if err := rows.Scan(&snap.ID, &createdAt, &parent, &snap.Operation); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse snapshot timestamp: %w", err)
		}
		if parent.Valid {
			id := parent.Int64
			snap.ParentID = &id
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

func (s *Store) ResolveRef(ctx context.Context, table string, ref string) (int64, error) {
	snapshots, err := s.ListSnapshots(ctx, table)
	if err != nil {
		return 0, err
	}
	return store.ResolveRefFromList(ref, snapshots)
}

func (s *Store) MaterializeAsOf(ctx context.Context, table string, snapshotID int64) (*store.RowSet, error) {
	cols, err := s.schema(ctx, s.db, table)
	if err != nil {
		return nil, err
	}
	var exists int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM catalog_snapshots WHERE table_name = ? AND snapshot_id = ?", table, snapshotID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check snapshot: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("snapshot %d of %q: %w", snapshotID, table, store.ErrSnapshotNotFound)
	}

	names := make([]string, len(cols))
	columns := make([]string, len(cols))
	for i, c := range cols {
		names[i] = store.QuoteIdent(c.Name)
		columns[i] = c.Name
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), store.QuoteIdent(snapDataTable(snapshotID)))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot data: %w", err)
	}
	defer rows.Close()

	out := &store.RowSet{Columns: columns, Rows: make([]store.Row, 0)}
	for rows.Next() {
		values := make([]any, len(cols))
		dests := make([]any, len(cols))
		for i := range values {
			dests[i] = &values[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		row := make(store.Row, len(cols))
		for i, name := range columns {
			row[name] = normalizeValue(values[i])
		}
		out.Rows = append(out.Rows, row)
	}
	return out, rows.Err()
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
