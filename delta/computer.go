// Package delta implements the Delta Computer (C5): it determines the
// INSERT, UPDATE, and DELETE row sets between a source and destination
// table. It streams (PK, rowversion-or-hash) tuples from each side in PK
// order and performs an ordered merge in memory — the portable technique
// spec.md §4.5 permits as an alternative to a same-server cross-database
// join, grounded on original_source/sync.py's per-table diff logic
// translated from Python set-difference into an ordered merge.
package delta

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Limetric/sqlmirror/catalog"
	"github.com/Limetric/sqlmirror/strategy"
)

// nullSentinel stands in for a NULL value inside the hash concatenation so
// NULL and empty string never collide, per spec.md §4.5.
const nullSentinel = "\x00"

// hashSeparator is CONCAT_WS's separator between hashed column values.
const hashSeparator = "␞"

// Row is one data row keyed by its primary-key tuple, with values in
// DataColumns order.
type Row struct {
	Key    string // canonical encoding of the PK tuple, for set membership
	PK     []any
	Values []any
}

// Result holds the three delta streams for one table, materialized in PK
// order. For large tables a real streaming consumer would page these;
// this implementation computes them eagerly since the merge itself is
// already a single ordered pass over both sides.
type Result struct {
	Inserts      []Row
	Updates      []Row
	Deletes      []Row // Deletes carries only PK, Values is nil
	NewHighWater []byte
}

// Computer computes delta sets between a source and destination
// connection for one table.
type Computer struct{}

// NewComputer returns a Delta Computer (C5).
func NewComputer() *Computer { return &Computer{} }

// Compute returns the INSERT/UPDATE/DELETE sets for one table, given the
// effective PK columns, optional row filter (a raw SQL boolean expression
// applied identically to both sides), and the strategy decision selected
// by the Change Strategy Selector.
func (c *Computer) Compute(ctx context.Context, srcDB, dstDB *sql.DB, schema *catalog.TableSchema, pkColumns []string, filter string, decision strategy.Decision) (*Result, error) {
	switch decision.Strategy {
	case strategy.Rowversion, strategy.RowversionInitial:
		return computeByRowversion(ctx, srcDB, dstDB, schema, pkColumns, filter, decision)
	default:
		return computeByHash(ctx, srcDB, dstDB, schema, pkColumns, filter)
	}
}

func computeByRowversion(ctx context.Context, srcDB, dstDB *sql.DB, schema *catalog.TableSchema, pkColumns []string, filter string, decision strategy.Decision) (*Result, error) {
	dataCols := schema.DataColumns()

	destKeys, err := fetchKeys(ctx, dstDB, schema.Ref, pkColumns, filter)
	if err != nil {
		return nil, fmt.Errorf("delta: fetch destination keys: %w", err)
	}
	srcKeys, err := fetchKeys(ctx, srcDB, schema.Ref, pkColumns, filter)
	if err != nil {
		return nil, fmt.Errorf("delta: fetch source keys: %w", err)
	}

	result := &Result{}
	result.Deletes = mergeDiff(srcKeys, destKeys) // present in dest, absent from source

	changed, newHigh, err := fetchChangedRows(ctx, srcDB, schema.Ref, pkColumns, dataCols, filter, decision.RowversionColumn, decision.HighWaterMark)
	if err != nil {
		return nil, fmt.Errorf("delta: fetch changed rows: %w", err)
	}
	result.NewHighWater = newHigh

	destKeySet := make(map[string]struct{}, len(destKeys))
	for _, k := range destKeys {
		destKeySet[k.Key] = struct{}{}
	}
	for _, row := range changed {
		if _, exists := destKeySet[row.Key]; exists {
			result.Updates = append(result.Updates, row)
		} else {
			result.Inserts = append(result.Inserts, row)
		}
	}
	return result, nil
}

func computeByHash(ctx context.Context, srcDB, dstDB *sql.DB, schema *catalog.TableSchema, pkColumns []string, filter string) (*Result, error) {
	dataCols := schema.DataColumns()

	srcRows, err := fetchHashedRows(ctx, srcDB, schema.Ref, pkColumns, dataCols, filter)
	if err != nil {
		return nil, fmt.Errorf("delta: fetch source rows: %w", err)
	}
	dstRows, err := fetchHashedRows(ctx, dstDB, schema.Ref, pkColumns, dataCols, filter)
	if err != nil {
		return nil, fmt.Errorf("delta: fetch destination rows: %w", err)
	}

	result := &Result{}
	si, di := 0, 0
	for si < len(srcRows) && di < len(dstRows) {
		s, d := srcRows[si], dstRows[di]
		switch {
		case s.key < d.key:
			result.Inserts = append(result.Inserts, s.row)
			si++
		case d.key < s.key:
			result.Deletes = append(result.Deletes, Row{Key: d.key, PK: d.row.PK})
			di++
		default:
			if s.hash != d.hash {
				result.Updates = append(result.Updates, s.row)
			}
			si++
			di++
		}
	}
	for ; si < len(srcRows); si++ {
		result.Inserts = append(result.Inserts, srcRows[si].row)
	}
	for ; di < len(dstRows); di++ {
		result.Deletes = append(result.Deletes, Row{Key: dstRows[di].key, PK: dstRows[di].row.PK})
	}
	return result, nil
}

// mergeDiff returns the keys present in b but absent from a (the DELETE
// set when a is source and b is destination), both inputs already
// ordered ascending by PK.
func mergeDiff(a, b []Row) []Row {
	var out []Row
	ai, bi := 0, 0
	for ai < len(a) && bi < len(b) {
		switch {
		case a[ai].Key < b[bi].Key:
			ai++
		case b[bi].Key < a[ai].Key:
			out = append(out, b[bi])
			bi++
		default:
			ai++
			bi++
		}
	}
	for ; bi < len(b); bi++ {
		out = append(out, b[bi])
	}
	return out
}

func fetchKeys(ctx context.Context, db *sql.DB, ref catalog.TableRef, pkColumns []string, filter string) ([]Row, error) {
	q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		quoteColumnList(pkColumns), qualifiedName(ref), whereClause(filter), quoteColumnList(pkColumns))

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		pk := make([]any, len(pkColumns))
		ptrs := make([]any, len(pkColumns))
		for i := range pk {
			ptrs[i] = &pk[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, Row{Key: encodeKey(pk), PK: pk})
	}
	return out, rows.Err()
}

// fetchChangedRows returns every source row whose rowversion exceeds
// highWater, along with the maximum rowversion observed — captured
// before any write, per spec.md §4.5.
func fetchChangedRows(ctx context.Context, db *sql.DB, ref catalog.TableRef, pkColumns []string, dataCols []catalog.ColumnDesc, filter, rowversionColumn string, highWater []byte) ([]Row, []byte, error) {
	colNames := columnNames(dataCols)
	condition := fmt.Sprintf("%s > @highWater", quoteIdent(rowversionColumn))
	if filter != "" {
		condition = filter + " AND " + condition
	}
	q := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s ORDER BY %s",
		quoteColumnList(colNames), quoteIdent(rowversionColumn), qualifiedName(ref),
		condition, quoteColumnList(pkColumns))

	rows, err := db.QueryContext(ctx, q, sql.Named("highWater", highWater))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	pkIndex := pkColumnIndexes(colNames, pkColumns)

	var out []Row
	maxRV := append([]byte(nil), highWater...)
	for rows.Next() {
		values := make([]any, len(colNames))
		var rv []byte
		ptrs := make([]any, len(values)+1)
		for i := range values {
			ptrs[i] = &values[i]
		}
		ptrs[len(values)] = &rv
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		pk := make([]any, len(pkIndex))
		for i, idx := range pkIndex {
			pk[i] = values[idx]
		}
		out = append(out, Row{Key: encodeKey(pk), PK: pk, Values: values})
		if string(rv) > string(maxRV) {
			maxRV = rv
		}
	}
	return out, maxRV, rows.Err()
}

type hashedRow struct {
	key  string
	hash string
	row  Row
}

func fetchHashedRows(ctx context.Context, db *sql.DB, ref catalog.TableRef, pkColumns []string, dataCols []catalog.ColumnDesc, filter string) ([]hashedRow, error) {
	colNames := columnNames(dataCols)
	hashExpr := buildHashExpression(colNames)
	q := fmt.Sprintf("SELECT %s, %s AS row_hash FROM %s%s ORDER BY %s",
		quoteColumnList(colNames), hashExpr, qualifiedName(ref), whereClause(filter), quoteColumnList(pkColumns))

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pkIndex := pkColumnIndexes(colNames, pkColumns)

	var out []hashedRow
	for rows.Next() {
		values := make([]any, len(colNames))
		var hash []byte
		ptrs := make([]any, len(values)+1)
		for i := range values {
			ptrs[i] = &values[i]
		}
		ptrs[len(values)] = &hash
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		pk := make([]any, len(pkIndex))
		for i, idx := range pkIndex {
			pk[i] = values[idx]
		}
		row := Row{Key: encodeKey(pk), PK: pk, Values: values}
		out = append(out, hashedRow{key: row.Key, hash: string(hash), row: row})
	}
	return out, rows.Err()
}

// buildHashExpression renders HASHBYTES('SHA2_256', CONCAT_WS(...)) over
// every data column, coalescing NULLs to a sentinel first so NULL and
// empty string never hash the same.
func buildHashExpression(colNames []string) string {
	parts := make([]string, len(colNames))
	for i, c := range colNames {
		parts[i] = fmt.Sprintf("ISNULL(CONVERT(NVARCHAR(MAX), %s), N'%s')", quoteIdent(c), nullSentinel)
	}
	return fmt.Sprintf("HASHBYTES('SHA2_256', CONCAT_WS(N'%s', %s))", hashSeparator, strings.Join(parts, ", "))
}

func columnNames(cols []catalog.ColumnDesc) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func pkColumnIndexes(colNames, pkColumns []string) []int {
	idx := make([]int, len(pkColumns))
	for i, pk := range pkColumns {
		for j, c := range colNames {
			if strings.EqualFold(pk, c) {
				idx[i] = j
				break
			}
		}
	}
	return idx
}

func encodeKey(pk []any) string {
	parts := make([]string, len(pk))
	for i, v := range pk {
		parts[i] = fmt.Sprintf("%T:%v", v, v)
	}
	return strings.Join(parts, "\x1f")
}

func whereClause(filter string) string {
	if filter == "" {
		return ""
	}
	return " WHERE " + filter
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
