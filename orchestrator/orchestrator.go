// Package orchestrator implements the Table Orchestrator (C7): it drives
// every selected table through catalog read, schema creation, strategy
// selection, delta computation, and batch apply, in foreign-key
// dependency order with bounded parallelism within a level. Grounded on
// original_source/sync.py's SyncOrchestrator.synchronize_tables and the
// teacher's main.go pipeline-step style.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Limetric/sqlmirror/apply"
	"github.com/Limetric/sqlmirror/catalog"
	"github.com/Limetric/sqlmirror/ddl"
	"github.com/Limetric/sqlmirror/delta"
	"github.com/Limetric/sqlmirror/internal/telemetry"
	"github.com/Limetric/sqlmirror/ledger"
	"github.com/Limetric/sqlmirror/strategy"
	"github.com/Limetric/sqlmirror/syncerr"
)

// TableSpec is one table selected for this run, with its PK/filter
// overrides, mirroring original_source/config.py's TableSyncConfig.
type TableSpec struct {
	Ref                catalog.TableRef
	PrimaryKeyOverride []string
	WhereClause        string
}

// Options configures one orchestrator run, matching the recognized
// engine options in spec.md §6.
type Options struct {
	BatchSize                int
	MaxParallelTables        int
	ConnectionTimeoutSeconds int
	CommandTimeoutSeconds    int
	LedgerSchema             string
	LedgerTable              string
}

// DefaultOptions returns the spec.md §6 defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:                apply.DefaultBatchSize,
		MaxParallelTables:        5,
		ConnectionTimeoutSeconds: 30,
		CommandTimeoutSeconds:    300,
		LedgerSchema:             "dbo",
		LedgerTable:              "SyncMetadata",
	}
}

// Orchestrator is the Table Orchestrator (C7).
type Orchestrator struct {
	Source *sql.DB
	Dest   *sql.DB
	Opts   Options

	reader   *catalog.Reader
	emitter  *ddl.Emitter
	computer *delta.Computer
	applier  *apply.Applier
	led      *ledger.Ledger
	bus      *eventBus
}

// New constructs an Orchestrator over two already-open connections.
func New(source, dest *sql.DB, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = apply.DefaultBatchSize
	}
	if opts.MaxParallelTables <= 0 {
		opts.MaxParallelTables = 5
	}
	return &Orchestrator{
		Source:   source,
		Dest:     dest,
		Opts:     opts,
		reader:   catalog.NewReader(),
		emitter:  ddl.NewEmitter(),
		computer: delta.NewComputer(),
		applier:  apply.NewApplier(opts.BatchSize),
		led:      ledger.NewLedger(opts.LedgerSchema, opts.LedgerTable),
		bus:      newEventBus(1024),
	}
}

// Events returns the channel of progress events for the external
// collaborator to drain. Must be read from concurrently with Run, or the
// bounded buffer will start dropping events rather than block.
func (o *Orchestrator) Events() <-chan Event { return o.bus.Events() }

// Run ensures the ledger table exists, then drives every table in spec
// through the full pipeline in dependency order, honoring ctx
// cancellation between tables and between batches.
func (o *Orchestrator) Run(ctx context.Context, tables []TableSpec) (*RunSummary, error) {
	defer o.bus.close()

	start := time.Now()
	runID := uuid.NewString()
	summary := &RunSummary{RunID: runID, TablesTotal: len(tables)}

	if err := o.led.EnsureTable(ctx, o.Dest); err != nil {
		return summary, syncerr.New(syncerr.ConnectionFailed, syncerr.TableRef{}, err)
	}

	specByRef := make(map[catalog.TableRef]TableSpec, len(tables))
	schemas := make(map[catalog.TableRef]*catalog.TableSchema, len(tables))

	for _, spec := range tables {
		specByRef[spec.Ref] = spec
		schema, err := o.reader.ReadTable(ctx, o.Source, spec.Ref)
		if err != nil {
			kind := syncerr.CatalogQueryFailed
			if errors.Is(err, catalog.ErrTableNotFound) {
				kind = syncerr.TableNotFound
			}
			o.failTable(ctx, spec.Ref, syncerr.New(kind, toSyncerrRef(spec.Ref), err))
			summary.TablesFailed++
			continue
		}
		schemas[spec.Ref] = schema
	}

	levels := levelize(schemas)

	for _, level := range levels {
		if ctx.Err() != nil {
			break
		}
		if err := o.runLevel(ctx, level, specByRef, schemas, summary); err != nil {
			return summary, err
		}
	}

	telemetry.RunSummary(summary.TablesTotal, summary.TablesOK, summary.TablesFailed, time.Since(start))
	return summary, nil
}

// runLevel runs every table in one dependency level with parallelism
// bounded by MaxParallelTables. A non-nil error from syncTable is returned
// as ConnectionFailed and aborts the whole run; since syncTable records and
// absorbs every table-scoped failure, the level otherwise continues.
func (o *Orchestrator) runLevel(ctx context.Context, level []catalog.TableRef, specByRef map[catalog.TableRef]TableSpec, schemas map[catalog.TableRef]*catalog.TableSchema, summary *RunSummary) error {
	eg, egCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(o.Opts.MaxParallelTables))

	var mu timedCounter
	for _, ref := range level {
		ref := ref
		if egCtx.Err() != nil {
			break
		}
		if err := sem.Acquire(egCtx, 1); err != nil {
			break
		}
		eg.Go(func() error {
			defer sem.Release(1)
			fatal := o.syncTable(egCtx, specByRef[ref], schemas[ref], &mu)
			return fatal
		})
	}

	err := eg.Wait()
	summary.TablesOK += mu.ok
	summary.TablesFailed += mu.failed
	if err != nil {
		return syncerr.New(syncerr.ConnectionFailed, syncerr.TableRef{}, err)
	}
	return nil
}

// timedCounter accumulates per-level outcome counts; access is
// serialized by each goroutine owning a disjoint table, except for the
// two counters which are only ever mutated after a table's own work
// completes, so a simple mutex is enough.
type timedCounter struct {
	mu     sync.Mutex
	ok     int
	failed int
}

// syncTable runs steps 1-6 of the per-table pipeline for one table.
// Every failure is classified, recorded against the table, and absorbed
// here, so it always returns nil; no failure inside a table is classified
// as ConnectionFailed.
func (o *Orchestrator) syncTable(ctx context.Context, spec TableSpec, schema *catalog.TableSchema, counter *timedCounter) error {
	ref := schema.Ref
	start := time.Now()
	o.bus.emit(TableStarted{Ref: ref})

	pk, err := resolveEffectivePK(schema, spec.PrimaryKeyOverride)
	if err != nil {
		kind := syncerr.NoPrimaryKey
		if errors.Is(err, errInvalidPKOverride) {
			kind = syncerr.InvalidPKOverride
		}
		o.failTable(ctx, ref, syncerr.New(kind, toSyncerrRef(ref), err))
		counter.mu.Lock()
		counter.failed++
		counter.mu.Unlock()
		return nil
	}

	exists, err := o.reader.TableExists(ctx, o.Dest, ref)
	if err != nil {
		o.failTable(ctx, ref, syncerr.New(syncerr.CatalogQueryFailed, toSyncerrRef(ref), err))
		counter.mu.Lock()
		counter.failed++
		counter.mu.Unlock()
		return nil
	}
	if !exists {
		stmts := o.emitter.EmitCreateTable(schema)
		for _, stmt := range stmts {
			cmdCtx, cancel := o.commandTimeout(ctx)
			_, err := o.Dest.ExecContext(cmdCtx, stmt)
			cancel()
			if err != nil {
				o.failTable(ctx, ref, syncerr.New(syncerr.DDLExecutionFailed, toSyncerrRef(ref), err))
				counter.mu.Lock()
				counter.failed++
				counter.mu.Unlock()
				return nil
			}
		}
		o.bus.emit(TableSchemaCreated{Ref: ref})
	}

	entry, err := o.led.Load(ctx, o.Dest, ref)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		o.failTable(ctx, ref, syncerr.New(syncerr.LedgerUpdateFailed, toSyncerrRef(ref), err))
		counter.mu.Lock()
		counter.failed++
		counter.mu.Unlock()
		return nil
	}
	if errors.Is(err, ledger.ErrNotFound) {
		entry = nil
	}

	decision := strategy.Select(schema, entry)
	o.bus.emit(TableStrategySelected{Ref: ref, Strategy: decision.Strategy})

	if ctx.Err() != nil {
		o.failTable(ctx, ref, syncerr.New(syncerr.Canceled, toSyncerrRef(ref), ctx.Err()))
		counter.mu.Lock()
		counter.failed++
		counter.mu.Unlock()
		return nil
	}

	computeCtx, cancelCompute := o.commandTimeout(ctx)
	result, err := o.computer.Compute(computeCtx, o.Source, o.Dest, schema, pk.Columns, spec.WhereClause, decision)
	cancelCompute()
	if err != nil {
		o.failTable(ctx, ref, syncerr.New(syncerr.DeltaComputationFailed, toSyncerrRef(ref), err))
		counter.mu.Lock()
		counter.failed++
		counter.mu.Unlock()
		return nil
	}

	counters, kind, err := o.applyWithinTransaction(ctx, schema, pk, spec, decision, entry, result)
	if err != nil {
		o.failTable(ctx, ref, syncerr.New(kind, toSyncerrRef(ref), err))
		counter.mu.Lock()
		counter.failed++
		counter.mu.Unlock()
		return nil
	}

	telemetry.TableDone(ref.Schema, ref.Name, counters.Inserted, counters.Updated, counters.Deleted, time.Since(start))
	o.bus.emit(TableCompleted{Ref: ref, Inserted: counters.Inserted, Updated: counters.Updated, Deleted: counters.Deleted})
	counter.mu.Lock()
	counter.ok++
	counter.mu.Unlock()
	return nil
}

// applyWithinTransaction runs the ledger bookkeeping and batch apply for
// one table inside a single transaction, returning the ErrorKind the
// failing step belongs to so the caller can classify accurately: ledger
// MERGE/upsert failures are LedgerUpdateFailed, not BatchApplyFailed.
func (o *Orchestrator) applyWithinTransaction(ctx context.Context, schema *catalog.TableSchema, pk catalog.KeyDesc, spec TableSpec, decision strategy.Decision, entry *ledger.Entry, result *delta.Result) (ledger.Counters, syncerr.Kind, error) {
	ref := schema.Ref
	tx, err := o.Dest.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Counters{}, syncerr.BatchApplyFailed, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	strategyName := ledger.Strategy(decision.Strategy)
	if decision.Strategy == strategy.RowversionInitial {
		strategyName = ledger.StrategyInitial
	}
	if entry == nil {
		if err := o.led.Initialize(ctx, tx, ref, pk.Columns, spec.PrimaryKeyOverride == nil, spec.WhereClause, strategyName, decision.RowversionColumn); err != nil {
			return ledger.Counters{}, syncerr.LedgerUpdateFailed, err
		}
	}
	if err := o.led.RecordStart(ctx, tx, ref); err != nil {
		return ledger.Counters{}, syncerr.LedgerUpdateFailed, err
	}

	counters, err := o.applier.Apply(ctx, tx, schema, pk.Columns, result, func(kind apply.BatchKind, rows int) {
		o.bus.emit(BatchApplied{Ref: ref, Kind: kind, Rows: rows})
	})
	if err != nil {
		return ledger.Counters{}, syncerr.BatchApplyFailed, err
	}

	var newHigh []byte
	if decision.Strategy != strategy.Hash {
		newHigh = result.NewHighWater
	}
	if err := o.led.RecordSuccess(ctx, tx, ref, counters, newHigh); err != nil {
		return ledger.Counters{}, syncerr.LedgerUpdateFailed, err
	}

	if err := tx.Commit(); err != nil {
		return ledger.Counters{}, syncerr.BatchApplyFailed, fmt.Errorf("commit: %w", err)
	}
	return counters, "", nil
}

func (o *Orchestrator) failTable(ctx context.Context, ref catalog.TableRef, err *syncerr.Error) {
	telemetry.TableFailed(ref.Schema, ref.Name, err)
	o.bus.emit(TableFailed{Ref: ref, Err: err})
	if recErr := o.led.RecordError(context.WithoutCancel(ctx), o.Dest, ref, err.Error()); recErr != nil {
		telemetry.Phase("ledger: failed to record error for %s: %v", ref, recErr)
	}
}

// errInvalidPKOverride is returned by resolveEffectivePK when an override
// column isn't present in the source table, distinct from the
// no-PK-at-all case below.
var errInvalidPKOverride = errors.New("primary key override column not found in source")

func resolveEffectivePK(schema *catalog.TableSchema, override []string) (catalog.KeyDesc, error) {
	if len(override) > 0 {
		for _, col := range override {
			if _, ok := schema.ColumnByName(col); !ok {
				return catalog.KeyDesc{}, fmt.Errorf("%w: %q", errInvalidPKOverride, col)
			}
		}
		return catalog.KeyDesc{Name: "", Columns: override}, nil
	}
	if !schema.PrimaryKey.Empty() {
		return schema.PrimaryKey, nil
	}
	return catalog.KeyDesc{}, fmt.Errorf("no primary key detected and no override supplied for %s", schema.Ref)
}

func toSyncerrRef(ref catalog.TableRef) syncerr.TableRef {
	return syncerr.TableRef{Schema: ref.Schema, Name: ref.Name}
}

// commandTimeout bounds one DDL statement or one delta computation, per spec.md §5's
// 300s default (original_source/config.py's COMMAND_TIMEOUT).
func (o *Orchestrator) commandTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := time.Duration(o.Opts.CommandTimeoutSeconds) * time.Second
	if d <= 0 {
		d = 300 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
