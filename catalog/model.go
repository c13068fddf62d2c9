// Package catalog reads SQL Server system catalog metadata and builds an
// in-memory structural description of a table.
package catalog

import "strings"

// TableRef identifies a table by schema and name. Case is preserved for
// rendering but equality is case-insensitive, matching SQL Server's default
// case-insensitive collation behavior on identifiers.
type TableRef struct {
	Schema string
	Name   string
}

func (r TableRef) String() string {
	return "[" + r.Schema + "].[" + r.Name + "]"
}

// Equal reports whether two refs name the same table, case-insensitively.
func (r TableRef) Equal(other TableRef) bool {
	return strings.EqualFold(r.Schema, other.Schema) && strings.EqualFold(r.Name, other.Name)
}

// IdentityDesc describes an IDENTITY(seed,increment) column.
type IdentityDesc struct {
	Seed      int64
	Increment int64
}

// ComputedDesc describes a computed column's expression.
type ComputedDesc struct {
	Expression string
	Persisted  bool
}

// ColumnDesc is the full structural description of one column.
type ColumnDesc struct {
	Ordinal      int
	Name         string
	BaseType     string // e.g. "nvarchar", "decimal", "int"
	Length       int64  // character/byte length; -1 means MAX
	Precision    int64
	Scale        int64
	Nullable     bool
	Collation    string // only meaningful for character types
	Identity     *IdentityDesc
	IsRowversion bool
	IsRowGUID    bool // ROWGUIDCOL — supplemented from original_source/schema.py
	Computed     *ComputedDesc
	Default      *string // default-constraint expression, as stored
}

// KeyDesc is an ordered list of column names forming a key.
type KeyDesc struct {
	Name    string
	Columns []string
}

// Empty reports whether the key carries no columns (no PK detected).
func (k KeyDesc) Empty() bool { return len(k.Columns) == 0 }

// UniqueConstraint is a UNIQUE constraint over an ordered column list.
type UniqueConstraint struct {
	Name    string
	Columns []string
}

// IndexKind distinguishes clustered from nonclustered indexes.
type IndexKind string

const (
	Clustered    IndexKind = "CLUSTERED"
	NonClustered IndexKind = "NONCLUSTERED"
)

// IndexKeyColumn is one key column of an index, with its sort direction.
type IndexKeyColumn struct {
	Name       string
	Descending bool
}

// IndexDesc describes one non-PK index.
type IndexDesc struct {
	Name       string
	Kind       IndexKind
	Unique     bool
	Columns    []IndexKeyColumn
	Include    []string // non-key (INCLUDE) columns
	Filter     *string  // filtered-index predicate, if any
	FillFactor int      // 0 = unset/default — supplemented from original_source/schema.py
}

// ForeignKeyDesc describes a foreign key constraint.
type ForeignKeyDesc struct {
	Name       string
	Columns    []string // local columns, ordered
	Referenced TableRef
	RefColumns []string // referenced columns, ordered
	OnDelete   string   // NO_ACTION, CASCADE, SET_NULL, SET_DEFAULT
	OnUpdate   string
	Disabled   bool // NOCHECK — supplemented from original_source/schema.py
}

// CheckConstraintDesc describes a CHECK constraint.
type CheckConstraintDesc struct {
	Name       string
	Expression string
	Disabled   bool
}

// TriggerDesc describes a DML trigger attached to the table.
type TriggerDesc struct {
	Name     string
	Timing   string   // AFTER | INSTEAD OF
	Events   []string // subset of INSERT, UPDATE, DELETE
	Body     string
	Disabled bool
}

// TableSchema is the full structural description of one table, as read by
// the Catalog Reader (C1) or rendered by the DDL Emitter (C2).
type TableSchema struct {
	Ref         TableRef
	Columns     []ColumnDesc
	PrimaryKey  KeyDesc
	Uniques     []UniqueConstraint
	Indexes     []IndexDesc
	ForeignKeys []ForeignKeyDesc
	Checks      []CheckConstraintDesc
	Triggers    []TriggerDesc
}

// ColumnByName returns the column with the given name, case-insensitively.
func (t *TableSchema) ColumnByName(name string) (ColumnDesc, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnDesc{}, false
}

// RowversionColumn returns the table's single ROWVERSION column, if any.
func (t *TableSchema) RowversionColumn() (ColumnDesc, bool) {
	for _, c := range t.Columns {
		if c.IsRowversion {
			return c, true
		}
	}
	return ColumnDesc{}, false
}

// DataColumns returns every column except computed and rowversion columns —
// the set the Delta Computer (C5) hashes and the Batch Applier (C6) writes.
func (t *TableSchema) DataColumns() []ColumnDesc {
	cols := make([]ColumnDesc, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Computed != nil || c.IsRowversion {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// SourceObjects holds non-table source objects discovered alongside the
// selected tables — views, routines, and server/database triggers outside
// the table set. Supplemented from the teacher's source_objects.go, which
// reports the same class of non-migrated objects for its own domain.
type SourceObjects struct {
	Views    []string
	Routines []string
	Triggers []string
}

// Warnings renders one advisory line per non-table object found, mirroring
// sourceObjectWarnings in the teacher repo.
func (o *SourceObjects) Warnings() []string {
	if o == nil {
		return nil
	}
	var warnings []string
	if len(o.Views) == 0 && len(o.Routines) == 0 && len(o.Triggers) == 0 {
		return warnings
	}
	for _, v := range o.Views {
		warnings = append(warnings, "view not mirrored: "+v)
	}
	for _, r := range o.Routines {
		warnings = append(warnings, "routine not mirrored: "+r)
	}
	for _, t := range o.Triggers {
		warnings = append(warnings, "server/database trigger not mirrored: "+t)
	}
	return warnings
}
