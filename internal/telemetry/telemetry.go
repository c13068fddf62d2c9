// Package telemetry provides the module's operational log: short
// log.Printf lines at phase boundaries, in the teacher's style (main.go,
// ddl.go, post.go all log this way), with row-count and duration
// formatting via github.com/dustin/go-humanize.
package telemetry

import (
	"log"
	"time"

	"github.com/dustin/go-humanize"
)

// Phase logs a one-line phase-boundary message.
func Phase(format string, args ...any) {
	log.Printf(format, args...)
}

// TableDone logs a completed table with humanized row counts and elapsed
// time, mirroring the teacher's migration-summary log lines.
func TableDone(schema, table string, inserted, updated, deleted int64, elapsed time.Duration) {
	log.Printf("%s.%s: %s inserted, %s updated, %s deleted in %s",
		schema, table,
		humanize.Comma(inserted), humanize.Comma(updated), humanize.Comma(deleted),
		elapsed.Round(time.Millisecond))
}

// TableFailed logs a table that errored out.
func TableFailed(schema, table string, err error) {
	log.Printf("%s.%s: FAILED: %v", schema, table, err)
}

// RunSummary logs the final run totals.
func RunSummary(total, ok, failed int, elapsed time.Duration) {
	log.Printf("run complete: %s tables total, %s ok, %s failed, in %s",
		humanize.Comma(int64(total)), humanize.Comma(int64(ok)), humanize.Comma(int64(failed)),
		elapsed.Round(time.Millisecond))
}
