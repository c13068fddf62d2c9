// Package apply implements the Batch Applier (C6): it writes the three
// delta streams to the destination inside one transaction per table, in
// configurable batches, grounded on original_source/sync.py's batched
// DML execution (_perform_inserts/_perform_updates/_perform_deletes).
package apply

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Limetric/sqlmirror/catalog"
	"github.com/Limetric/sqlmirror/delta"
	"github.com/Limetric/sqlmirror/ledger"
)

// DefaultBatchSize matches spec.md §6's configuration default.
const DefaultBatchSize = 1000

// BatchKind labels which delta stream a batch belongs to, for progress
// reporting.
type BatchKind string

const (
	BatchDelete BatchKind = "DELETE"
	BatchUpdate BatchKind = "UPDATE"
	BatchInsert BatchKind = "INSERT"
)

// OnBatch is invoked after each flushed batch, for the orchestrator to
// relay as a BatchApplied progress event.
type OnBatch func(kind BatchKind, rows int)

// Applier writes delta sets to a destination table within a caller-owned
// transaction, in batches of BatchSize rows.
type Applier struct {
	BatchSize int
}

// NewApplier returns a Batch Applier (C6) with the given batch size,
// falling back to DefaultBatchSize if non-positive.
func NewApplier(batchSize int) *Applier {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Applier{BatchSize: batchSize}
}

// Apply writes deletes, then updates, then inserts — the strict
// within-table ordering spec.md §5 requires — and returns the row
// counters written. Any error aborts immediately; the caller rolls back
// the whole transaction, per the failure semantics in spec.md §4.6.
func (a *Applier) Apply(ctx context.Context, tx *sql.Tx, schema *catalog.TableSchema, pkColumns []string, result *delta.Result, onBatch OnBatch) (ledger.Counters, error) {
	var counters ledger.Counters

	deleted, err := a.applyDeletes(ctx, tx, schema.Ref, pkColumns, result.Deletes, onBatch)
	if err != nil {
		return counters, fmt.Errorf("apply: deletes: %w", err)
	}
	counters.Deleted = int64(deleted)

	dataCols := schema.DataColumns()

	updated, err := a.applyUpdates(ctx, tx, schema.Ref, pkColumns, dataCols, result.Updates, onBatch)
	if err != nil {
		return counters, fmt.Errorf("apply: updates: %w", err)
	}
	counters.Updated = int64(updated)

	identityCol := identityPKColumn(schema, pkColumns)
	inserted, err := a.applyInserts(ctx, tx, schema.Ref, dataCols, result.Inserts, identityCol, onBatch)
	if err != nil {
		return counters, fmt.Errorf("apply: inserts: %w", err)
	}
	counters.Inserted = int64(inserted)

	return counters, nil
}

// identityPKColumn returns the name of the table's identity column when
// it's also part of the effective PK, so the applier knows to toggle
// IDENTITY_INSERT; returns "" otherwise.
func identityPKColumn(schema *catalog.TableSchema, pkColumns []string) string {
	for _, col := range schema.Columns {
		if col.Identity == nil {
			continue
		}
		for _, pk := range pkColumns {
			if strings.EqualFold(pk, col.Name) {
				return col.Name
			}
		}
	}
	return ""
}

func (a *Applier) applyDeletes(ctx context.Context, tx *sql.Tx, ref catalog.TableRef, pkColumns []string, rows []delta.Row, onBatch OnBatch) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", qualifiedName(ref), pkPredicate(pkColumns)))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	total, inBatch := 0, 0
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.PK...); err != nil {
			return total, fmt.Errorf("delete %v: %w", row.PK, err)
		}
		total++
		inBatch++
		if inBatch == a.BatchSize {
			notify(onBatch, BatchDelete, inBatch)
			inBatch = 0
		}
	}
	if inBatch > 0 {
		notify(onBatch, BatchDelete, inBatch)
	}
	return total, nil
}

func (a *Applier) applyUpdates(ctx context.Context, tx *sql.Tx, ref catalog.TableRef, pkColumns []string, dataCols []catalog.ColumnDesc, rows []delta.Row, onBatch OnBatch) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	setCols := nonPKColumns(dataCols, pkColumns)
	if len(setCols) == 0 {
		return 0, nil
	}
	pkIndex := columnIndexes(dataCols, pkColumns)
	setIndex := columnIndexes(dataCols, setCols)

	setClause := make([]string, len(setCols))
	for i, c := range setCols {
		setClause[i] = fmt.Sprintf("%s = ?", quoteIdent(c))
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", qualifiedName(ref), strings.Join(setClause, ", "), pkPredicate(pkColumns))

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	total, inBatch := 0, 0
	for _, row := range rows {
		args := make([]any, 0, len(setIndex)+len(pkIndex))
		for _, idx := range setIndex {
			args = append(args, row.Values[idx])
		}
		for _, idx := range pkIndex {
			args = append(args, row.Values[idx])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return total, fmt.Errorf("update %v: %w", row.PK, err)
		}
		total++
		inBatch++
		if inBatch == a.BatchSize {
			notify(onBatch, BatchUpdate, inBatch)
			inBatch = 0
		}
	}
	if inBatch > 0 {
		notify(onBatch, BatchUpdate, inBatch)
	}
	return total, nil
}

func (a *Applier) applyInserts(ctx context.Context, tx *sql.Tx, ref catalog.TableRef, dataCols []catalog.ColumnDesc, rows []delta.Row, identityCol string, onBatch OnBatch) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	colNames := make([]string, len(dataCols))
	placeholders := make([]string, len(dataCols))
	for i, c := range dataCols {
		colNames[i] = c.Name
		placeholders[i] = "?"
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", qualifiedName(ref), quoteColumnList(colNames), strings.Join(placeholders, ", "))

	if identityCol != "" {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET IDENTITY_INSERT %s ON", qualifiedName(ref))); err != nil {
			return 0, fmt.Errorf("enable identity_insert: %w", err)
		}
		defer tx.ExecContext(ctx, fmt.Sprintf("SET IDENTITY_INSERT %s OFF", qualifiedName(ref)))
	}

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	total, inBatch := 0, 0
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Values...); err != nil {
			return total, fmt.Errorf("insert %v: %w", row.PK, err)
		}
		total++
		inBatch++
		if inBatch == a.BatchSize {
			notify(onBatch, BatchInsert, inBatch)
			inBatch = 0
		}
	}
	if inBatch > 0 {
		notify(onBatch, BatchInsert, inBatch)
	}
	return total, nil
}

func notify(onBatch OnBatch, kind BatchKind, rows int) {
	if onBatch != nil {
		onBatch(kind, rows)
	}
}

func nonPKColumns(dataCols []catalog.ColumnDesc, pkColumns []string) []string {
	var out []string
	for _, c := range dataCols {
		isPK := false
		for _, pk := range pkColumns {
			if strings.EqualFold(pk, c.Name) {
				isPK = true
				break
			}
		}
		if !isPK {
			out = append(out, c.Name)
		}
	}
	return out
}

func columnIndexes(dataCols []catalog.ColumnDesc, names []string) []int {
	idx := make([]int, len(names))
	for i, name := range names {
		for j, c := range dataCols {
			if strings.EqualFold(name, c.Name) {
				idx[i] = j
				break
			}
		}
	}
	return idx
}

func pkPredicate(pkColumns []string) string {
	parts := make([]string, len(pkColumns))
	for i, c := range pkColumns {
		parts[i] = fmt.Sprintf("%s = ?", quoteIdent(c))
	}
	return strings.Join(parts, " AND ")
}

func quoteIdent(name string) string { return "[" + name + "]" }

func qualifiedName(ref catalog.TableRef) string {
	return quoteIdent(ref.Schema) + "." + quoteIdent(ref.Name)
}

func quoteColumnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
