// Package ledger maintains the destination-resident sync metadata table
// (C3), grounded on original_source/metadata.py's SyncMetadataManager:
// same table shape, same MERGE upsert, same additive counters.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Limetric/sqlmirror/catalog"
)

// Status mirrors the last_sync_status enum column.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusOK      Status = "OK"
	StatusPartial Status = "PARTIAL"
	StatusError   Status = "ERROR"
)

// Strategy mirrors the change_detection_strategy enum column.
type Strategy string

const (
	StrategyRowversion Strategy = "ROWVERSION"
	StrategyInitial    Strategy = "INITIAL"
	StrategyHash       Strategy = "HASH"
)

// ErrNotFound is returned by Load when no ledger row exists for the table.
var ErrNotFound = errors.New("ledger: entry not found")

// Entry is one row of the sync ledger, as defined by the persisted state
// layout.
type Entry struct {
	Schema                  string
	Table                   string
	PrimaryKeyColumns       []string
	PKAutoDetected          bool
	WhereClause             string
	ChangeDetectionStrategy Strategy
	RowversionColumn        string
	LastRowversionSynced    []byte
	LastHashSynced          string
	LastSyncDate            time.Time
	LastSyncStatus          Status
	RecordsInserted         int64
	RecordsUpdated          int64
	RecordsDeleted          int64
	LastErrorMessage        string
	LastErrorDate           sql.NullTime
	CreatedDate             time.Time
	ModifiedDate            time.Time
}

// Ref returns the table this entry describes.
func (e *Entry) Ref() catalog.TableRef { return catalog.TableRef{Schema: e.Schema, Name: e.Table} }

// Ledger manages the sync metadata table in a destination database, under
// a configurable schema/table name (defaults dbo.SyncMetadata, per
// original_source/metadata.py).
type Ledger struct {
	Schema string
	Table  string
}

// NewLedger returns a Metadata Ledger (C3) addressing the given
// schema-qualified table name. Empty values fall back to the defaults.
func NewLedger(schema, table string) *Ledger {
	if schema == "" {
		schema = "dbo"
	}
	if table == "" {
		table = "SyncMetadata"
	}
	return &Ledger{Schema: schema, Table: table}
}

func (l *Ledger) qualified() string {
	return "[" + l.Schema + "].[" + l.Table + "]"
}

// EnsureTable creates the ledger table and its supporting index if they
// don't already exist, mirroring metadata.py's _ensure_metadata_table.
func (l *Ledger) EnsureTable(ctx context.Context, db *sql.DB) error {
	stmt := fmt.Sprintf(`
IF NOT EXISTS (
    SELECT 1 FROM sys.tables t
    INNER JOIN sys.schemas s ON t.schema_id = s.schema_id
    WHERE s.name = '%s' AND t.name = '%s'
)
BEGIN
    CREATE TABLE %s (
        id INT IDENTITY(1,1) PRIMARY KEY,
        schema_name NVARCHAR(128) NOT NULL,
        table_name NVARCHAR(128) NOT NULL,
        primary_key_columns NVARCHAR(MAX) NOT NULL,
        pk_auto_detected BIT NOT NULL DEFAULT 1,
        where_clause NVARCHAR(MAX) NULL,
        change_detection_strategy NVARCHAR(50) NOT NULL,
        rowversion_column NVARCHAR(128) NULL,
        last_rowversion_synced BINARY(8) NULL,
        last_hash_synced NVARCHAR(64) NULL,
        last_sync_date DATETIME2 NULL,
        last_sync_status NVARCHAR(50) NULL,
        records_inserted INT NOT NULL DEFAULT 0,
        records_updated INT NOT NULL DEFAULT 0,
        records_deleted INT NOT NULL DEFAULT 0,
        last_error_message NVARCHAR(MAX) NULL,
        last_error_date DATETIME2 NULL,
        created_date DATETIME2 NOT NULL DEFAULT GETDATE(),
        modified_date DATETIME2 NOT NULL DEFAULT GETDATE(),
        CONSTRAINT UQ_%s_Table UNIQUE (schema_name, table_name)
    );
    CREATE INDEX IX_%s_LastSync ON %s (last_sync_date);
END`, l.Schema, l.Table, l.qualified(), l.Table, l.Table, l.qualified())

	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("ledger: ensure table: %w", err)
	}
	return nil
}

// Load returns the ledger entry for ref, or ErrNotFound if none exists.
func (l *Ledger) Load(ctx context.Context, db *sql.DB, ref catalog.TableRef) (*Entry, error) {
	q := fmt.Sprintf(`
		SELECT schema_name, table_name, primary_key_columns, pk_auto_detected,
		       ISNULL(where_clause, ''), change_detection_strategy,
		       ISNULL(rowversion_column, ''), last_rowversion_synced,
		       ISNULL(last_hash_synced, ''), last_sync_date, ISNULL(last_sync_status, ''),
		       records_inserted, records_updated, records_deleted,
		       ISNULL(last_error_message, ''), last_error_date, created_date, modified_date
		FROM %s WHERE schema_name = @schema AND table_name = @table`, l.qualified())

	row := db.QueryRowContext(ctx, q, sql.Named("schema", ref.Schema), sql.Named("table", ref.Name))

	var (
		e        Entry
		pkCols   string
		strategy string
		lastSync sql.NullTime
		status   string
	)
	err := row.Scan(&e.Schema, &e.Table, &pkCols, &e.PKAutoDetected, &e.WhereClause,
		&strategy, &e.RowversionColumn, &e.LastRowversionSynced, &e.LastHashSynced,
		&lastSync, &status, &e.RecordsInserted, &e.RecordsUpdated, &e.RecordsDeleted,
		&e.LastErrorMessage, &e.LastErrorDate, &e.CreatedDate, &e.ModifiedDate)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: load %s: %w", ref, err)
	}

	e.ChangeDetectionStrategy = Strategy(strategy)
	e.LastSyncStatus = Status(status)
	if lastSync.Valid {
		e.LastSyncDate = lastSync.Time
	}
	if pkCols != "" {
		e.PrimaryKeyColumns = strings.Split(pkCols, ",")
	}
	return &e, nil
}

// Initialize upserts a ledger row for ref with the given PK columns,
// detection flag, and row filter, mirroring metadata.py's upsert_metadata
// MERGE statement. Must run in the same transaction as the data deltas it
// describes.
func (l *Ledger) Initialize(ctx context.Context, tx *sql.Tx, ref catalog.TableRef, pkColumns []string, pkAutoDetected bool, whereClause string, strategy Strategy, rowversionColumn string) error {
	q := fmt.Sprintf(`
MERGE %s AS target
USING (SELECT @schema AS schema_name, @table AS table_name) AS src
ON target.schema_name = src.schema_name AND target.table_name = src.table_name
WHEN MATCHED THEN UPDATE SET
    primary_key_columns = @pk,
    pk_auto_detected = @pkAuto,
    where_clause = @where,
    change_detection_strategy = @strategy,
    rowversion_column = @rvCol,
    modified_date = GETDATE()
WHEN NOT MATCHED THEN INSERT
    (schema_name, table_name, primary_key_columns, pk_auto_detected, where_clause,
     change_detection_strategy, rowversion_column, created_date, modified_date)
VALUES
    (@schema, @table, @pk, @pkAuto, @where, @strategy, @rvCol, GETDATE(), GETDATE());`, l.qualified())

	_, err := tx.ExecContext(ctx, q,
		sql.Named("schema", ref.Schema), sql.Named("table", ref.Name),
		sql.Named("pk", strings.Join(pkColumns, ",")), sql.Named("pkAuto", pkAutoDetected),
		sql.Named("where", nullableString(whereClause)), sql.Named("strategy", string(strategy)),
		sql.Named("rvCol", nullableString(rowversionColumn)))
	if err != nil {
		return fmt.Errorf("ledger: initialize %s: %w", ref, err)
	}
	return nil
}

// RecordStart marks ref RUNNING, in the same transaction as the upcoming
// data deltas.
func (l *Ledger) RecordStart(ctx context.Context, tx *sql.Tx, ref catalog.TableRef) error {
	q := fmt.Sprintf(`UPDATE %s SET last_sync_status = @status, modified_date = GETDATE()
		WHERE schema_name = @schema AND table_name = @table`, l.qualified())
	_, err := tx.ExecContext(ctx, q, sql.Named("status", string(StatusRunning)),
		sql.Named("schema", ref.Schema), sql.Named("table", ref.Name))
	if err != nil {
		return fmt.Errorf("ledger: record start %s: %w", ref, err)
	}
	return nil
}

// Counters carries the row counts a table sync applied, for RecordSuccess.
type Counters struct {
	Inserted int64
	Updated  int64
	Deleted  int64
}

// RecordSuccess marks ref OK, additively accumulates counters, and writes
// newRowversion as the new high-water mark — only if non-nil, since
// last_rowversion_synced is written only when the table is in ROWVERSION
// strategy. Must run in the same transaction as the applied deltas.
func (l *Ledger) RecordSuccess(ctx context.Context, tx *sql.Tx, ref catalog.TableRef, counters Counters, newRowversion []byte) error {
	q := fmt.Sprintf(`
		UPDATE %s SET
		    last_sync_status = @status,
		    last_sync_date = GETDATE(),
		    records_inserted = records_inserted + @ins,
		    records_updated = records_updated + @upd,
		    records_deleted = records_deleted + @del,
		    last_error_message = NULL,
		    last_rowversion_synced = COALESCE(@rv, last_rowversion_synced),
		    modified_date = GETDATE()
		WHERE schema_name = @schema AND table_name = @table`, l.qualified())

	_, err := tx.ExecContext(ctx, q,
		sql.Named("status", string(StatusOK)),
		sql.Named("ins", counters.Inserted), sql.Named("upd", counters.Updated), sql.Named("del", counters.Deleted),
		sql.Named("rv", newRowversion),
		sql.Named("schema", ref.Schema), sql.Named("table", ref.Name))
	if err != nil {
		return fmt.Errorf("ledger: record success %s: %w", ref, err)
	}
	return nil
}

// RecordError marks ref ERROR with message, in its own short transaction —
// separate from the rolled-back data transaction, mirroring
// metadata.py's update_sync_status error-message branch.
func (l *Ledger) RecordError(ctx context.Context, db *sql.DB, ref catalog.TableRef, message string) error {
	q := fmt.Sprintf(`
		UPDATE %s SET
		    last_sync_status = @status,
		    last_sync_date = GETDATE(),
		    last_error_message = @msg,
		    last_error_date = GETDATE(),
		    modified_date = GETDATE()
		WHERE schema_name = @schema AND table_name = @table`, l.qualified())
	_, err := db.ExecContext(ctx, q, sql.Named("status", string(StatusError)), sql.Named("msg", message),
		sql.Named("schema", ref.Schema), sql.Named("table", ref.Name))
	if err != nil {
		return fmt.Errorf("ledger: record error %s: %w", ref, err)
	}
	return nil
}

// Summary returns every ledger row ordered by most recent sync, for a
// human-readable run report — supplemented from metadata.py's
// get_sync_summary.
func (l *Ledger) Summary(ctx context.Context, db *sql.DB) ([]Entry, error) {
	q := fmt.Sprintf(`
		SELECT schema_name, table_name, primary_key_columns, pk_auto_detected,
		       ISNULL(where_clause, ''), change_detection_strategy,
		       ISNULL(rowversion_column, ''), last_rowversion_synced,
		       ISNULL(last_hash_synced, ''), last_sync_date, ISNULL(last_sync_status, ''),
		       records_inserted, records_updated, records_deleted,
		       ISNULL(last_error_message, ''), last_error_date, created_date, modified_date
		FROM %s ORDER BY last_sync_date DESC`, l.qualified())

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ledger: summary: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			pkCols   string
			strategy string
			lastSync sql.NullTime
			status   string
		)
		if err := rows.Scan(&e.Schema, &e.Table, &pkCols, &e.PKAutoDetected, &e.WhereClause,
			&strategy, &e.RowversionColumn, &e.LastRowversionSynced, &e.LastHashSynced,
			&lastSync, &status, &e.RecordsInserted, &e.RecordsUpdated, &e.RecordsDeleted,
			&e.LastErrorMessage, &e.LastErrorDate, &e.CreatedDate, &e.ModifiedDate); err != nil {
			return nil, fmt.Errorf("ledger: scan summary row: %w", err)
		}
		e.ChangeDetectionStrategy = Strategy(strategy)
		e.LastSyncStatus = Status(status)
		if lastSync.Valid {
			e.LastSyncDate = lastSync.Time
		}
		if pkCols != "" {
			e.PrimaryKeyColumns = strings.Split(pkCols, ",")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Reset clears ref's high-water marks and counters to force a full
// resync, mirroring metadata.py's reset_table_metadata.
func (l *Ledger) Reset(ctx context.Context, db *sql.DB, ref catalog.TableRef) error {
	q := fmt.Sprintf(`
		UPDATE %s SET
		    last_rowversion_synced = NULL,
		    last_hash_synced = NULL,
		    records_inserted = 0,
		    records_updated = 0,
		    records_deleted = 0,
		    last_error_message = NULL,
		    last_error_date = NULL,
		    modified_date = GETDATE()
		WHERE schema_name = @schema AND table_name = @table`, l.qualified())
	_, err := db.ExecContext(ctx, q, sql.Named("schema", ref.Schema), sql.Named("table", ref.Name))
	if err != nil {
		return fmt.Errorf("ledger: reset %s: %w", ref, err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
