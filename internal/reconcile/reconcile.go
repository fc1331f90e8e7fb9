// Package reconcile repairs primary-key columns whose stored default still
// carries the SQLite-style AUTOINCREMENT idiom, which PostgreSQL does not
// support. Each flagged column is rebound to an owned sequence advanced past
// the column's current maximum value.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/psihotips/psihotips-ops/pkg/database"
	"github.com/psihotips/psihotips-ops/pkg/logger"
)

// autoIncrementMarker is the idiom the catalog sweep looks for inside
// column_default expressions. Matching is case-insensitive.
const autoIncrementMarker = "autoincrement"

// schemaName is the only schema the bot's tables live in.
const schemaName = "public"

// IntrospectionError reports a failed catalog query. Reconciliation cannot
// proceed blind, so this is fatal.
type IntrospectionError struct {
	Err error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("schema introspection failed: %v", e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// ColumnFixError reports one column's failed corrective transaction. It is
// recorded in the report and does not abort the batch.
type ColumnFixError struct {
	Column FlaggedColumn
	Err    error
}

func (e *ColumnFixError) Error() string {
	return fmt.Sprintf("failed to fix %s.%s: %v", e.Column.Table, e.Column.Column, e.Err)
}

func (e *ColumnFixError) Unwrap() error { return e.Err }

// FlaggedColumn identifies one column whose default expression matched the
// marker. Produced per run by introspection, discarded afterwards.
type FlaggedColumn struct {
	Table  string
	Column string
}

// SequenceName is the deterministic name of the sequence backing the column.
func (f FlaggedColumn) SequenceName() string {
	return fmt.Sprintf("%s_%s_seq", f.Table, f.Column)
}

// fixStatements synthesizes the corrective transaction for the column:
// drop the broken default, recreate the owned sequence, rebind the default,
// and advance the sequence so the next insert gets MAX(column)+1 (or 1 on
// an empty table).
func (f FlaggedColumn) fixStatements() []string {
	table := quoteIdentifier(f.Table)
	column := quoteIdentifier(f.Column)
	sequence := quoteIdentifier(f.SequenceName())
	seqLiteral := quoteLiteral(sequence)

	return []string{
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, column),
		fmt.Sprintf("DROP SEQUENCE IF EXISTS %s", sequence),
		fmt.Sprintf("CREATE SEQUENCE %s OWNED BY %s.%s", sequence, table, column),
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT nextval(%s::regclass)", table, column, seqLiteral),
		fmt.Sprintf("SELECT setval(%s, COALESCE((SELECT MAX(%s) FROM %s), 0) + 1, false)", seqLiteral, column, table),
	}
}

// quoteIdentifier makes an arbitrary catalog name safe for interpolation
// into DDL.
func quoteIdentifier(name string) string {
	name = strings.ReplaceAll(name, `"`, `""`)
	return `"` + name + `"`
}

// quoteLiteral wraps a string as a SQL literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Reconciler drives introspection and per-column repair over one session.
type Reconciler struct {
	db  database.Session
	log logger.Logger
}

func New(db database.Session, log logger.Logger) *Reconciler {
	return &Reconciler{db: db, log: log}
}

// FlaggedColumns sweeps the catalog for columns whose default expression
// contains the marker. The result set, not any static table list, drives
// the repair loop.
func (r *Reconciler) FlaggedColumns(ctx context.Context) ([]FlaggedColumn, error) {
	rows, err := r.db.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND column_default ILIKE '%' || $2 || '%'
		ORDER BY table_name, column_name`,
		schemaName, autoIncrementMarker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flagged []FlaggedColumn
	for rows.Next() {
		var col FlaggedColumn
		if err := rows.Scan(&col.Table, &col.Column); err != nil {
			return nil, err
		}
		flagged = append(flagged, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return flagged, nil
}

// TableCount returns the number of base tables in the schema. Zero selects
// the bootstrap path instead of reconciliation.
func (r *Reconciler) TableCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'`,
		schemaName).Scan(&count)
	if err != nil {
		return 0, &IntrospectionError{Err: err}
	}
	return count, nil
}

// Reconcile introspects the live schema and repairs every flagged column.
// Running it again with no structural change in between is a no-op: repaired
// defaults read nextval(...), which no longer matches the marker.
func (r *Reconciler) Reconcile(ctx context.Context) (*Report, error) {
	flagged, err := r.FlaggedColumns(ctx)
	if err != nil {
		return nil, &IntrospectionError{Err: err}
	}

	if len(flagged) == 0 {
		r.log.Info("No columns with unsupported auto-increment defaults found")
	}

	return r.FixColumns(ctx, flagged), nil
}

// FixColumns applies the corrective transaction to each column in turn.
// Columns are independent: one failure is recorded and the loop moves on,
// so a single broken column never blocks repair of the others.
func (r *Reconciler) FixColumns(ctx context.Context, columns []FlaggedColumn) *Report {
	report := NewReport()

	for _, col := range columns {
		fields := map[string]string{"table": col.Table, "column": col.Column}
		if err := r.fixColumn(ctx, col); err != nil {
			fixErr := &ColumnFixError{Column: col, Err: err}
			r.log.WithFields(fields).Error("Failed to rebind column to sequence: " + err.Error())
			report.Add(col, fixErr)
			continue
		}
		r.log.WithFields(fields).Info("Rebound column default to sequence " + col.SequenceName())
		report.Add(col, nil)
	}

	return report
}

// fixColumn runs the five corrective statements in one transaction. Either
// the column ends up fully rebound or nothing takes effect.
func (r *Reconciler) fixColumn(ctx context.Context, col FlaggedColumn) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range col.fixStatements() {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}

	return tx.Commit(ctx)
}
