package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Reader reads structural descriptions from SQL Server system catalogs.
// It holds no state of its own beyond the connection it's given per call —
// callers own connection lifetime, exactly as the orchestrator hands the
// reader a live *sql.DB for the duration of one table.
type Reader struct{}

// NewReader returns a Catalog Reader (C1).
func NewReader() *Reader { return &Reader{} }

// TableExists reports whether ref names an existing table in db, mirroring
// original_source/sync.py's dest_db.table_exists check.
func (r *Reader) TableExists(ctx context.Context, db *sql.DB, ref TableRef) (bool, error) {
	id, err := tableObjectID(ctx, db, ref)
	if err != nil {
		return false, err
	}
	return id != 0, nil
}

// ReadTable returns the full structural description of one table, or
// ErrTableNotFound if it doesn't exist in db.
func (r *Reader) ReadTable(ctx context.Context, db *sql.DB, ref TableRef) (*TableSchema, error) {
	objectID, err := tableObjectID(ctx, db, ref)
	if err != nil {
		return nil, err
	}
	if objectID == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, ref)
	}

	schema := &TableSchema{Ref: ref}

	if schema.Columns, err = readColumns(ctx, db, objectID); err != nil {
		return nil, fmt.Errorf("catalog: read columns for %s: %w", ref, err)
	}
	if schema.PrimaryKey, err = readPrimaryKey(ctx, db, objectID); err != nil {
		return nil, fmt.Errorf("catalog: read primary key for %s: %w", ref, err)
	}
	if schema.Uniques, err = readUniqueConstraints(ctx, db, objectID); err != nil {
		return nil, fmt.Errorf("catalog: read unique constraints for %s: %w", ref, err)
	}
	if schema.Indexes, err = readIndexes(ctx, db, objectID); err != nil {
		return nil, fmt.Errorf("catalog: read indexes for %s: %w", ref, err)
	}
	if schema.ForeignKeys, err = readForeignKeys(ctx, db, objectID); err != nil {
		return nil, fmt.Errorf("catalog: read foreign keys for %s: %w", ref, err)
	}
	if schema.Checks, err = readCheckConstraints(ctx, db, objectID); err != nil {
		return nil, fmt.Errorf("catalog: read check constraints for %s: %w", ref, err)
	}
	if schema.Triggers, err = readTriggers(ctx, db, objectID); err != nil {
		return nil, fmt.Errorf("catalog: read triggers for %s: %w", ref, err)
	}
	if err := applyDefaultConstraints(ctx, db, objectID, schema); err != nil {
		return nil, fmt.Errorf("catalog: read default constraints for %s: %w", ref, err)
	}

	return schema, nil
}

func tableObjectID(ctx context.Context, db *sql.DB, ref TableRef) (int64, error) {
	const q = `
		SELECT t.object_id
		FROM sys.tables t
		INNER JOIN sys.schemas s ON t.schema_id = s.schema_id
		WHERE s.name = @schema AND t.name = @table`
	var id int64
	err := db.QueryRowContext(ctx, q, sql.Named("schema", ref.Schema), sql.Named("table", ref.Name)).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
	}
	return id, nil
}

// readColumns grounds on original_source/schema.py's _get_columns query:
// sys.columns joined to sys.types, sys.identity_columns, sys.computed_columns.
func readColumns(ctx context.Context, db *sql.DB, objectID int64) ([]ColumnDesc, error) {
	const q = `
		SELECT
			c.column_id,
			c.name,
			t.name AS type_name,
			c.max_length,
			c.precision,
			c.scale,
			c.is_nullable,
			c.is_identity,
			c.is_computed,
			c.is_rowguidcol,
			CASE WHEN t.name IN ('timestamp', 'rowversion') THEN 1 ELSE 0 END AS is_rowversion,
			CAST(ISNULL(ic.seed_value, 0) AS BIGINT),
			CAST(ISNULL(ic.increment_value, 0) AS BIGINT),
			ISNULL(c.collation_name, ''),
			cc.definition,
			ISNULL(cc.is_persisted, 0)
		FROM sys.columns c
		INNER JOIN sys.types t ON c.user_type_id = t.user_type_id
		LEFT JOIN sys.identity_columns ic ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		LEFT JOIN sys.computed_columns cc ON c.object_id = cc.object_id AND c.column_id = cc.column_id
		WHERE c.object_id = @id
		ORDER BY c.column_id`

	rows, err := db.QueryContext(ctx, q, sql.Named("id", objectID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
	}
	defer rows.Close()

	var cols []ColumnDesc
	for rows.Next() {
		var (
			c                      ColumnDesc
			typeName               string
			maxLength              int64
			isIdentity, isComputed bool
			isRowGUID, isRV        bool
			seed, increment        int64
			computedDef            sql.NullString
			computedPersisted      bool
		)
		if err := rows.Scan(
			&c.Ordinal, &c.Name, &typeName, &maxLength, &c.Precision, &c.Scale,
			&c.Nullable, &isIdentity, &isComputed, &isRowGUID, &isRV,
			&seed, &increment, &c.Collation, &computedDef, &computedPersisted,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
		}

		c.BaseType = typeName
		c.Length = columnLength(typeName, maxLength)
		c.IsRowversion = isRV
		c.IsRowGUID = isRowGUID
		if isIdentity {
			c.Identity = &IdentityDesc{Seed: seed, Increment: increment}
		}
		if isComputed && computedDef.Valid {
			c.Computed = &ComputedDesc{Expression: computedDef.String, Persisted: computedPersisted}
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// columnLength converts sys.columns.max_length to a character count for
// nchar/nvarchar (stored in bytes, double-width) and passes byte lengths
// through unchanged otherwise; -1 denotes MAX.
func columnLength(typeName string, maxLength int64) int64 {
	if maxLength == -1 {
		return -1
	}
	if strings.HasPrefix(typeName, "n") && (typeName == "nchar" || typeName == "nvarchar") {
		return maxLength / 2
	}
	return maxLength
}

func applyDefaultConstraints(ctx context.Context, db *sql.DB, objectID int64, schema *TableSchema) error {
	const q = `
		SELECT c.name, dc.definition
		FROM sys.default_constraints dc
		INNER JOIN sys.columns c ON dc.parent_object_id = c.object_id AND dc.parent_column_id = c.column_id
		WHERE dc.parent_object_id = @id`
	rows, err := db.QueryContext(ctx, q, sql.Named("id", objectID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
	}
	defer rows.Close()

	defaults := make(map[string]string)
	for rows.Next() {
		var col, def string
		if err := rows.Scan(&col, &def); err != nil {
			return fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
		}
		defaults[col] = def
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range schema.Columns {
		if def, ok := defaults[schema.Columns[i].Name]; ok {
			d := def
			schema.Columns[i].Default = &d
		}
	}
	return nil
}

// readPrimaryKey grounds on original_source/schema.py's _get_primary_key.
func readPrimaryKey(ctx context.Context, db *sql.DB, objectID int64) (KeyDesc, error) {
	const q = `
		SELECT kc.name, c.name
		FROM sys.key_constraints kc
		INNER JOIN sys.indexes i ON kc.parent_object_id = i.object_id AND kc.unique_index_id = i.index_id
		INNER JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
		INNER JOIN sys.columns c ON ic.object_id = c.object_id AND ic.column_id = c.column_id
		WHERE kc.parent_object_id = @id AND kc.type = 'PK'
		ORDER BY ic.key_ordinal`

	rows, err := db.QueryContext(ctx, q, sql.Named("id", objectID))
	if err != nil {
		return KeyDesc{}, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
	}
	defer rows.Close()

	var pk KeyDesc
	for rows.Next() {
		var name, col string
		if err := rows.Scan(&name, &col); err != nil {
			return KeyDesc{}, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
		}
		pk.Name = name
		pk.Columns = append(pk.Columns, col)
	}
	return pk, rows.Err()
}

func readUniqueConstraints(ctx context.Context, db *sql.DB, objectID int64) ([]UniqueConstraint, error) {
	const q = `
		SELECT kc.name, c.name
		FROM sys.key_constraints kc
		INNER JOIN sys.indexes i ON kc.parent_object_id = i.object_id AND kc.unique_index_id = i.index_id
		INNER JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
		INNER JOIN sys.columns c ON ic.object_id = c.object_id AND ic.column_id = c.column_id
		WHERE kc.parent_object_id = @id AND kc.type = 'UQ'
		ORDER BY kc.name, ic.key_ordinal`

	rows, err := db.QueryContext(ctx, q, sql.Named("id", objectID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
	}
	defer rows.Close()

	order := make([]string, 0)
	byName := make(map[string]*UniqueConstraint)
	for rows.Next() {
		var name, col string
		if err := rows.Scan(&name, &col); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
		}
		uc, ok := byName[name]
		if !ok {
			uc = &UniqueConstraint{Name: name}
			byName[name] = uc
			order = append(order, name)
		}
		uc.Columns = append(uc.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]UniqueConstraint, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

// readIndexes grounds on original_source/schema.py's _get_indexes, excluding
// the PK's backing index (i.type > 0 AND i.is_primary_key = 0) and
// de-duplicating by index_id as the engine can return the PK index twice
// under some catalog views — the tie-break spec.md §4.1 calls for.
func readIndexes(ctx context.Context, db *sql.DB, objectID int64) ([]IndexDesc, error) {
	const q = `
		SELECT
			i.index_id, i.name, i.type_desc, i.is_unique, i.fill_factor,
			i.has_filter, ISNULL(i.filter_definition, ''),
			ic.key_ordinal, ic.is_descending_key, ic.is_included_column,
			c.name
		FROM sys.indexes i
		INNER JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
		INNER JOIN sys.columns c ON ic.object_id = c.object_id AND ic.column_id = c.column_id
		WHERE i.object_id = @id AND i.is_primary_key = 0 AND i.type > 0
		ORDER BY i.index_id, ic.key_ordinal, ic.is_included_column`

	rows, err := db.QueryContext(ctx, q, sql.Named("id", objectID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
	}
	defer rows.Close()

	order := make([]int64, 0)
	byID := make(map[int64]*IndexDesc)
	filters := make(map[int64]string)
	for rows.Next() {
		var (
			indexID                       int64
			name, typeDesc, filterDef     string
			unique, hasFilter             bool
			fillFactor                    int
			keyOrdinal                    int
			descending, included          bool
			colName                       string
		)
		if err := rows.Scan(&indexID, &name, &typeDesc, &unique, &fillFactor,
			&hasFilter, &filterDef, &keyOrdinal, &descending, &included, &colName); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
		}

		idx, ok := byID[indexID]
		if !ok {
			idx = &IndexDesc{
				Name:       name,
				Kind:       indexKind(typeDesc),
				Unique:     unique,
				FillFactor: fillFactor,
			}
			byID[indexID] = idx
			order = append(order, indexID)
			if hasFilter && filterDef != "" {
				filters[indexID] = filterDef
			}
		}

		if included {
			idx.Include = append(idx.Include, colName)
		} else {
			idx.Columns = append(idx.Columns, IndexKeyColumn{Name: colName, Descending: descending})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]IndexDesc, 0, len(order))
	for _, id := range order {
		idx := *byID[id]
		if f, ok := filters[id]; ok {
			idx.Filter = &f
		}
		out = append(out, idx)
	}
	return out, nil
}

func indexKind(typeDesc string) IndexKind {
	if strings.Contains(strings.ToUpper(typeDesc), "CLUSTERED") && !strings.Contains(strings.ToUpper(typeDesc), "NONCLUSTERED") {
		return Clustered
	}
	return NonClustered
}

// readForeignKeys grounds on original_source/schema.py's _get_foreign_keys.
func readForeignKeys(ctx context.Context, db *sql.DB, objectID int64) ([]ForeignKeyDesc, error) {
	const q = `
		SELECT
			fk.name, fk.is_disabled,
			fk.delete_referential_action_desc, fk.update_referential_action_desc,
			SCHEMA_NAME(rt.schema_id), rt.name,
			pc.name, rc.name
		FROM sys.foreign_keys fk
		INNER JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
		INNER JOIN sys.columns pc ON fkc.parent_object_id = pc.object_id AND fkc.parent_column_id = pc.column_id
		INNER JOIN sys.columns rc ON fkc.referenced_object_id = rc.object_id AND fkc.referenced_column_id = rc.column_id
		INNER JOIN sys.tables rt ON fkc.referenced_object_id = rt.object_id
		WHERE fk.parent_object_id = @id
		ORDER BY fk.name, fkc.constraint_column_id`

	rows, err := db.QueryContext(ctx, q, sql.Named("id", objectID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
	}
	defer rows.Close()

	order := make([]string, 0)
	byName := make(map[string]*ForeignKeyDesc)
	for rows.Next() {
		var (
			name, deleteAction, updateAction string
			disabled                         bool
			refSchema, refTable              string
			localCol, refCol                 string
		)
		if err := rows.Scan(&name, &disabled, &deleteAction, &updateAction,
			&refSchema, &refTable, &localCol, &refCol); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
		}
		fk, ok := byName[name]
		if !ok {
			fk = &ForeignKeyDesc{
				Name:       name,
				Disabled:   disabled,
				Referenced: TableRef{Schema: refSchema, Name: refTable},
				OnDelete:   deleteAction,
				OnUpdate:   updateAction,
			}
			byName[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, localCol)
		fk.RefColumns = append(fk.RefColumns, refCol)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ForeignKeyDesc, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func readCheckConstraints(ctx context.Context, db *sql.DB, objectID int64) ([]CheckConstraintDesc, error) {
	const q = `
		SELECT name, definition, is_disabled
		FROM sys.check_constraints
		WHERE parent_object_id = @id
		ORDER BY name`
	rows, err := db.QueryContext(ctx, q, sql.Named("id", objectID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
	}
	defer rows.Close()

	var out []CheckConstraintDesc
	for rows.Next() {
		var c CheckConstraintDesc
		if err := rows.Scan(&c.Name, &c.Expression, &c.Disabled); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func readTriggers(ctx context.Context, db *sql.DB, objectID int64) ([]TriggerDesc, error) {
	const q = `
		SELECT
			tr.name, tr.is_disabled, tr.is_instead_of_trigger,
			OBJECT_DEFINITION(tr.object_id)
		FROM sys.triggers tr
		WHERE tr.parent_id = @id
		ORDER BY tr.name`
	rows, err := db.QueryContext(ctx, q, sql.Named("id", objectID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
	}
	defer rows.Close()

	var out []TriggerDesc
	for rows.Next() {
		var (
			name              string
			disabled, instead bool
			body              sql.NullString
		)
		if err := rows.Scan(&name, &disabled, &instead, &body); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogQueryFailed, err)
		}
		t := TriggerDesc{Name: name, Disabled: disabled, Body: body.String}
		if instead {
			t.Timing = "INSTEAD OF"
		} else {
			t.Timing = "AFTER"
		}
		t.Events = triggerEvents(ctx, db, name)
		out = append(out, t)
	}
	return out, rows.Err()
}

func triggerEvents(ctx context.Context, db *sql.DB, triggerName string) []string {
	const q = `
		SELECT te.type_desc
		FROM sys.trigger_events te
		INNER JOIN sys.triggers tr ON te.object_id = tr.object_id
		WHERE tr.name = @name`
	rows, err := db.QueryContext(ctx, q, sql.Named("name", triggerName))
	if err != nil {
		return nil
	}
	defer rows.Close()

	var events []string
	for rows.Next() {
		var e string
		if rows.Scan(&e) == nil {
			events = append(events, e)
		}
	}
	return events
}

// ReadSourceObjects enumerates the views and routines in the schema, plus
// the database-level (parent_class 0) triggers, which are not filtered by
// schema — supplemented from the teacher's
// source_objects.go / sourceObjectWarnings diagnostic.
func ReadSourceObjects(ctx context.Context, db *sql.DB, schema string) (*SourceObjects, error) {
	objs := &SourceObjects{}

	if err := collectStrings(ctx, db, `
		SELECT v.name FROM sys.views v
		INNER JOIN sys.schemas s ON v.schema_id = s.schema_id
		WHERE s.name = @schema ORDER BY v.name`, schema, &objs.Views); err != nil {
		return nil, fmt.Errorf("catalog: read views: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT o.type_desc, o.name FROM sys.objects o
		INNER JOIN sys.schemas s ON o.schema_id = s.schema_id
		WHERE s.name = @schema AND o.type IN ('P', 'FN', 'IF', 'TF')
		ORDER BY o.type_desc, o.name`, sql.Named("schema", schema))
	if err != nil {
		return nil, fmt.Errorf("catalog: read routines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, name string
		if err := rows.Scan(&kind, &name); err != nil {
			return nil, fmt.Errorf("catalog: scan routine: %w", err)
		}
		objs.Routines = append(objs.Routines, kind+" "+name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate routines: %w", err)
	}

	if err := collectStrings(ctx, db, `
		SELECT tr.name FROM sys.triggers tr
		WHERE tr.parent_class = 0
		ORDER BY tr.name`, "", &objs.Triggers); err != nil {
		return nil, fmt.Errorf("catalog: read server/db triggers: %w", err)
	}

	return objs, nil
}

func collectStrings(ctx context.Context, db *sql.DB, query, param string, out *[]string) error {
	var rows *sql.Rows
	var err error
	if param != "" {
		rows, err = db.QueryContext(ctx, query, sql.Named("schema", param))
	} else {
		rows, err = db.QueryContext(ctx, query)
	}
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return err
		}
		*out = append(*out, v)
	}
	return rows.Err()
}
