// Package ddl renders catalog.TableSchema descriptions into ordered
// CREATE TABLE / ALTER TABLE statement sequences, grounded on the
// teacher's generateCreateTable style and on original_source/schema.py's
// SchemaBuilder statement ordering.
package ddl

import (
	"fmt"
	"strings"

	"github.com/Limetric/sqlmirror/catalog"
)

// Emitter produces DDL statement sequences from table schemas. It holds no
// state — every method is a pure function of its arguments.
type Emitter struct{}

// NewEmitter returns a DDL Emitter (C2).
func NewEmitter() *Emitter { return &Emitter{} }

// EmitCreateTable renders the statements to create one table in isolation:
// CREATE TABLE, PRIMARY KEY, UNIQUE constraints, non-PK indexes, CHECK
// constraints, FOREIGN KEY constraints, then triggers — in that order, per
// the single-table ordering rule. DEFAULT constraints are always inlined in
// the column definitions, so no separate DEFAULT statement is emitted.
func (e *Emitter) EmitCreateTable(t *catalog.TableSchema) []string {
	var stmts []string
	stmts = append(stmts, e.createTableStatement(t))
	if s := e.primaryKeyStatement(t); s != "" {
		stmts = append(stmts, s)
	}
	stmts = append(stmts, e.uniqueStatements(t)...)
	stmts = append(stmts, e.indexStatements(t)...)
	stmts = append(stmts, e.checkStatements(t)...)
	stmts = append(stmts, e.foreignKeyStatements(t)...)
	stmts = append(stmts, e.triggerStatements(t)...)
	return stmts
}

// EmitBatch renders statements for a set of tables. Cycles across foreign
// keys are broken by emitting every table's CREATE TABLE and non-FK
// constraints first (in referenced-first topological order where the
// graph is acyclic), then every FOREIGN KEY as a second-pass ALTER TABLE,
// so creation never fails on a not-yet-created referenced table.
func (e *Emitter) EmitBatch(tables []*catalog.TableSchema) []string {
	ordered := topoSortByForeignKeys(tables)

	var stmts []string
	for _, t := range ordered {
		stmts = append(stmts, e.createTableStatement(t))
		if s := e.primaryKeyStatement(t); s != "" {
			stmts = append(stmts, s)
		}
		stmts = append(stmts, e.uniqueStatements(t)...)
		stmts = append(stmts, e.indexStatements(t)...)
		stmts = append(stmts, e.checkStatements(t)...)
	}
	for _, t := range ordered {
		stmts = append(stmts, e.foreignKeyStatements(t)...)
	}
	for _, t := range ordered {
		stmts = append(stmts, e.triggerStatements(t)...)
	}
	return stmts
}

func quoteIdent(name string) string { return "[" + name + "]" }

func qualifiedName(ref catalog.TableRef) string {
	return quoteIdent(ref.Schema) + "." + quoteIdent(ref.Name)
}

func (e *Emitter) createTableStatement(t *catalog.TableSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", qualifiedName(t.Ref))
	for i, c := range t.Columns {
		b.WriteString("    ")
		b.WriteString(columnClause(c))
		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

// columnClause renders one column definition, grounded on
// original_source/schema.py's per-column rendering in
// generate_create_table_script.
func columnClause(c catalog.ColumnDesc) string {
	var b strings.Builder
	b.WriteString(quoteIdent(c.Name))
	b.WriteString(" ")

	if c.Computed != nil {
		b.WriteString("AS (")
		b.WriteString(c.Computed.Expression)
		b.WriteString(")")
		if c.Computed.Persisted {
			b.WriteString(" PERSISTED")
		}
		return b.String()
	}

	if c.IsRowversion {
		b.WriteString("ROWVERSION")
		return b.String()
	}

	b.WriteString(renderType(c))

	if c.Collation != "" {
		fmt.Fprintf(&b, " COLLATE %s", c.Collation)
	}

	if c.Identity != nil {
		fmt.Fprintf(&b, " IDENTITY(%d,%d)", c.Identity.Seed, c.Identity.Increment)
	}

	if c.IsRowGUID {
		b.WriteString(" ROWGUIDCOL")
	}

	if c.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}

	if c.Default != nil {
		fmt.Fprintf(&b, " DEFAULT %s", *c.Default)
	}

	return b.String()
}

// renderType reproduces the catalog form exactly, e.g. NVARCHAR(128),
// DECIMAL(18,4), VARBINARY(MAX).
func renderType(c catalog.ColumnDesc) string {
	name := strings.ToUpper(c.BaseType)
	switch strings.ToLower(c.BaseType) {
	case "char", "varchar", "binary", "varbinary":
		if c.Length == -1 {
			return fmt.Sprintf("%s(MAX)", name)
		}
		return fmt.Sprintf("%s(%d)", name, c.Length)
	case "nchar", "nvarchar":
		if c.Length == -1 {
			return fmt.Sprintf("%s(MAX)", name)
		}
		return fmt.Sprintf("%s(%d)", name, c.Length)
	case "decimal", "numeric":
		return fmt.Sprintf("%s(%d,%d)", name, c.Precision, c.Scale)
	case "time", "datetime2", "datetimeoffset":
		if c.Scale > 0 {
			return fmt.Sprintf("%s(%d)", name, c.Scale)
		}
		return name
	case "float":
		if c.Precision > 0 && c.Precision != 53 {
			return fmt.Sprintf("%s(%d)", name, c.Precision)
		}
		return name
	default:
		return name
	}
}

func (e *Emitter) primaryKeyStatement(t *catalog.TableSchema) string {
	if t.PrimaryKey.Empty() {
		return ""
	}
	return fmt.Sprintf(
		"ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY CLUSTERED (%s)",
		qualifiedName(t.Ref), quoteIdent(t.PrimaryKey.Name), quoteColumnList(t.PrimaryKey.Columns),
	)
}

func (e *Emitter) uniqueStatements(t *catalog.TableSchema) []string {
	stmts := make([]string, 0, len(t.Uniques))
	for _, u := range t.Uniques {
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
			qualifiedName(t.Ref), quoteIdent(u.Name), quoteColumnList(u.Columns),
		))
	}
	return stmts
}

// indexStatements renders non-PK indexes with ASC/DESC key columns,
// INCLUDE(...), a filtered WHERE predicate, and WITH (FILLFACTOR=n) —
// FillFactor supplemented from original_source/schema.py.
func (e *Emitter) indexStatements(t *catalog.TableSchema) []string {
	stmts := make([]string, 0, len(t.Indexes))
	for _, idx := range t.Indexes {
		var b strings.Builder
		b.WriteString("CREATE ")
		if idx.Unique {
			b.WriteString("UNIQUE ")
		}
		b.WriteString(string(idx.Kind))
		fmt.Fprintf(&b, " INDEX %s ON %s (%s)", quoteIdent(idx.Name), qualifiedName(t.Ref), quoteKeyColumnList(idx.Columns))

		if len(idx.Include) > 0 {
			fmt.Fprintf(&b, " INCLUDE (%s)", quoteColumnList(idx.Include))
		}
		if idx.Filter != nil && *idx.Filter != "" {
			fmt.Fprintf(&b, " WHERE %s", *idx.Filter)
		}
		if idx.FillFactor > 0 {
			fmt.Fprintf(&b, " WITH (FILLFACTOR = %d)", idx.FillFactor)
		}
		stmts = append(stmts, b.String())
	}
	return stmts
}

func (e *Emitter) checkStatements(t *catalog.TableSchema) []string {
	stmts := make([]string, 0, len(t.Checks))
	for _, c := range t.Checks {
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)",
			qualifiedName(t.Ref), quoteIdent(c.Name), c.Expression,
		))
		if c.Disabled {
			stmts = append(stmts, fmt.Sprintf(
				"ALTER TABLE %s NOCHECK CONSTRAINT %s", qualifiedName(t.Ref), quoteIdent(c.Name),
			))
		}
	}
	return stmts
}

// foreignKeyStatements renders each FK as ALTER TABLE ... ADD CONSTRAINT,
// with a trailing NOCHECK CONSTRAINT when the source FK was disabled —
// supplemented from original_source/schema.py's disabled-constraint
// fidelity.
func (e *Emitter) foreignKeyStatements(t *catalog.TableSchema) []string {
	stmts := make([]string, 0, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		var b strings.Builder
		fmt.Fprintf(&b, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			qualifiedName(t.Ref), quoteIdent(fk.Name), quoteColumnList(fk.Columns),
			qualifiedName(fk.Referenced), quoteColumnList(fk.RefColumns))
		if fk.OnDelete != "" && fk.OnDelete != "NO_ACTION" {
			fmt.Fprintf(&b, " ON DELETE %s", strings.ReplaceAll(fk.OnDelete, "_", " "))
		}
		if fk.OnUpdate != "" && fk.OnUpdate != "NO_ACTION" {
			fmt.Fprintf(&b, " ON UPDATE %s", strings.ReplaceAll(fk.OnUpdate, "_", " "))
		}
		stmts = append(stmts, b.String())
		if fk.Disabled {
			stmts = append(stmts, fmt.Sprintf(
				"ALTER TABLE %s NOCHECK CONSTRAINT %s", qualifiedName(t.Ref), quoteIdent(fk.Name),
			))
		}
	}
	return stmts
}

// triggerStatements re-emits each trigger body verbatim (the source is
// the only faithful definition of its logic), with a trailing DISABLE
// TRIGGER when the source trigger was disabled.
func (e *Emitter) triggerStatements(t *catalog.TableSchema) []string {
	stmts := make([]string, 0, len(t.Triggers))
	for _, tr := range t.Triggers {
		stmts = append(stmts, tr.Body)
		if tr.Disabled {
			stmts = append(stmts, fmt.Sprintf(
				"DISABLE TRIGGER %s ON %s", quoteIdent(tr.Name), qualifiedName(t.Ref),
			))
		}
	}
	return stmts
}

func quoteColumnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func quoteKeyColumnList(cols []catalog.IndexKeyColumn) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		dir := "ASC"
		if c.Descending {
			dir = "DESC"
		}
		parts[i] = fmt.Sprintf("%s %s", quoteIdent(c.Name), dir)
	}
	return strings.Join(parts, ", ")
}
