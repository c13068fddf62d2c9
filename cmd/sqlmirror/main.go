// Command sqlmirror is the thin CLI wrapper around the core mirror/sync
// engine: it reads the TOML config, opens the two SQL Server connections,
// drives one orchestrator run, and prints the result. Every decision
// about *what* to do lives in the library packages; this file only
// wires them together, in the teacher's main.go style.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/spf13/cobra"

	"github.com/Limetric/sqlmirror/catalog"
	"github.com/Limetric/sqlmirror/config"
	"github.com/Limetric/sqlmirror/ledger"
	"github.com/Limetric/sqlmirror/orchestrator"
)

var (
	configPath string
	resyncRefs []string
)

var rootCmd = &cobra.Command{
	Use:   "sqlmirror [config.toml]",
	Short: "SQL Server to SQL Server incremental table mirror",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSync,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to run TOML config file")
	rootCmd.Flags().StringSliceVar(&resyncRefs, "resync", nil, "schema.table pairs to force a full resync before running (clears their ledger high-water marks)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: sqlmirror <config.toml> or sqlmirror --config <config.toml>")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("sqlmirror — SQL Server table mirror")
	log.Printf("config: batch_size=%d max_parallel_tables=%d ledger=%s.%s tables=%d",
		cfg.BatchSize, cfg.MaxParallelTables, cfg.LedgerSchema, cfg.LedgerTable, len(cfg.Tables))

	connTimeout := time.Duration(cfg.ConnectionTimeoutSeconds) * time.Second

	log.Printf("connecting to source...")
	source, err := openSQLServer(ctx, cfg.Source.DSN, connTimeout)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer source.Close()

	log.Printf("connecting to destination...")
	dest, err := openSQLServer(ctx, cfg.Target.DSN, connTimeout)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer dest.Close()

	if len(resyncRefs) > 0 {
		led := ledger.NewLedger(cfg.LedgerSchema, cfg.LedgerTable)
		for _, raw := range resyncRefs {
			ref, err := parseTableRef(raw)
			if err != nil {
				return err
			}
			log.Printf("resync: clearing ledger high-water for %s", ref)
			if err := led.Reset(ctx, dest, ref); err != nil {
				return fmt.Errorf("resync %s: %w", ref, err)
			}
		}
	}

	opts := orchestrator.Options{
		BatchSize:                cfg.BatchSize,
		MaxParallelTables:        cfg.MaxParallelTables,
		ConnectionTimeoutSeconds: cfg.ConnectionTimeoutSeconds,
		CommandTimeoutSeconds:    cfg.CommandTimeoutSeconds,
		LedgerSchema:             cfg.LedgerSchema,
		LedgerTable:              cfg.LedgerTable,
	}
	orch := orchestrator.New(source, dest, opts)

	var specs []orchestrator.TableSpec
	for _, t := range cfg.Tables {
		if t.Disabled {
			continue
		}
		specs = append(specs, orchestrator.TableSpec{
			Ref:                catalog.TableRef{Schema: t.Schema, Name: t.Table},
			PrimaryKeyOverride: t.PrimaryKeyColumns,
			WhereClause:        t.WhereClause,
		})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range orch.Events() {
			logEvent(event)
		}
	}()

	start := time.Now()
	summary, err := orch.Run(ctx, specs)
	<-done
	if err != nil {
		return fmt.Errorf("run %s: %w", summary.RunID, err)
	}

	led := ledger.NewLedger(cfg.LedgerSchema, cfg.LedgerTable)
	rows, sumErr := led.Summary(ctx, dest)
	if sumErr != nil {
		log.Printf("warning: could not read ledger summary: %v", sumErr)
	} else {
		printSummary(rows)
	}

	log.Printf("run %s: %d total, %d ok, %d failed, elapsed %s",
		summary.RunID, summary.TablesTotal, summary.TablesOK, summary.TablesFailed, time.Since(start).Round(time.Millisecond))

	if summary.TablesFailed > 0 {
		os.Exit(1)
	}
	return nil
}

func openSQLServer(ctx context.Context, dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

func logEvent(event orchestrator.Event) {
	switch e := event.(type) {
	case orchestrator.TableStarted:
		log.Printf("%s: started", e.Ref)
	case orchestrator.TableSchemaCreated:
		log.Printf("%s: destination table created", e.Ref)
	case orchestrator.TableStrategySelected:
		log.Printf("%s: strategy=%s", e.Ref, e.Strategy)
	case orchestrator.BatchApplied:
		log.Printf("%s: %s batch of %d rows", e.Ref, e.Kind, e.Rows)
	case orchestrator.TableCompleted:
		log.Printf("%s: ok — %d inserted, %d updated, %d deleted", e.Ref, e.Inserted, e.Updated, e.Deleted)
	case orchestrator.TableFailed:
		log.Printf("%s: failed — %v", e.Ref, e.Err)
	}
}

func printSummary(rows []ledger.Entry) {
	fmt.Println()
	fmt.Println("sync summary")
	fmt.Println("-------------")
	for _, r := range rows {
		fmt.Printf("%s.%s\tstrategy=%s\tstatus=%s\tinserted=%d\tupdated=%d\tdeleted=%d\n",
			r.Schema, r.Table, r.ChangeDetectionStrategy, r.LastSyncStatus, r.RecordsInserted, r.RecordsUpdated, r.RecordsDeleted)
	}
	fmt.Println()
}

func parseTableRef(raw string) (catalog.TableRef, error) {
	for i := len(raw) - 1; i >= 0; i-- {
		if raw[i] == '.' {
			return catalog.TableRef{Schema: raw[:i], Name: raw[i+1:]}, nil
		}
	}
	return catalog.TableRef{}, fmt.Errorf("invalid --resync value %q, expected schema.table", raw)
}
