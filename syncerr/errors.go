// Package syncerr defines the closed error taxonomy the orchestrator
// classifies failures into before emitting a TableFailed event or writing
// a ledger error entry. Every lower package still wraps errors the plain
// way, with fmt.Errorf("%w"); this package adds the one piece of structure
// that classification and reporting need on top of that.
package syncerr

import "fmt"

// Kind is a closed taxonomy of failure categories a table sync can hit.
type Kind string

const (
	ConnectionFailed       Kind = "CONNECTION_FAILED"
	CatalogQueryFailed     Kind = "CATALOG_QUERY_FAILED"
	TableNotFound          Kind = "TABLE_NOT_FOUND"
	NoPrimaryKey           Kind = "NO_PRIMARY_KEY"
	InvalidPKOverride      Kind = "INVALID_PK_OVERRIDE"
	DDLExecutionFailed     Kind = "DDL_EXECUTION_FAILED"
	DeltaComputationFailed Kind = "DELTA_COMPUTATION_FAILED"
	BatchApplyFailed       Kind = "BATCH_APPLY_FAILED"
	LedgerUpdateFailed     Kind = "LEDGER_UPDATE_FAILED"
	Canceled               Kind = "CANCELED"
)

// TableRef is a minimal schema+name pair, duplicated from the catalog
// package's type to avoid this leaf package importing database/sql's
// transitive dependency graph through catalog.
type TableRef struct {
	Schema string
	Name   string
}

func (r TableRef) String() string { return "[" + r.Schema + "].[" + r.Name + "]" }

// Error is the classified error the orchestrator attaches to a
// TableFailed event and a ledger error entry.
type Error struct {
	Kind  Kind
	Table TableRef
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a classified Error of the given kind for table ref.
func New(kind Kind, table TableRef, err error) *Error {
	return &Error{Kind: kind, Table: table, Err: err}
}
