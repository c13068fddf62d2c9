package orchestrator

import (
	"github.com/Limetric/sqlmirror/apply"
	"github.com/Limetric/sqlmirror/catalog"
	"github.com/Limetric/sqlmirror/strategy"
)

// Event is one structured progress event emitted to the external
// collaborator, per spec.md §6's output list.
type Event interface{ eventKind() string }

// TableStarted fires when a table begins processing.
type TableStarted struct{ Ref catalog.TableRef }

// TableSchemaCreated fires after the destination table is created because
// it didn't already exist.
type TableSchemaCreated struct{ Ref catalog.TableRef }

// TableStrategySelected fires once the Change Strategy Selector has
// decided a table's detection strategy.
type TableStrategySelected struct {
	Ref      catalog.TableRef
	Strategy strategy.Kind
}

// BatchApplied fires once per flushed batch inside the Batch Applier.
type BatchApplied struct {
	Ref  catalog.TableRef
	Kind apply.BatchKind
	Rows int
}

// TableCompleted fires when a table finishes successfully.
type TableCompleted struct {
	Ref      catalog.TableRef
	Inserted int64
	Updated  int64
	Deleted  int64
}

// TableFailed fires when a table's sync errors out.
type TableFailed struct {
	Ref catalog.TableRef
	Err error
}

func (TableStarted) eventKind() string          { return "TableStarted" }
func (TableSchemaCreated) eventKind() string    { return "TableSchemaCreated" }
func (TableStrategySelected) eventKind() string { return "TableStrategySelected" }
func (BatchApplied) eventKind() string          { return "BatchApplied" }
func (TableCompleted) eventKind() string        { return "TableCompleted" }
func (TableFailed) eventKind() string           { return "TableFailed" }

// RunSummary is the final tally Run returns once a run completes; it is
// not sent on the event channel.
type RunSummary struct {
	RunID        string
	TablesTotal  int
	TablesOK     int
	TablesFailed int
}

// eventBus is a non-blocking, bounded fan-out of progress events — a slow
// or absent consumer never stalls the core pipeline, per spec.md §5's
// requirement that progress events never block foreground I/O.
type eventBus struct {
	ch chan Event
}

func newEventBus(capacity int) *eventBus {
	return &eventBus{ch: make(chan Event, capacity)}
}

func (b *eventBus) emit(e Event) {
	select {
	case b.ch <- e:
	default:
		// Consumer isn't keeping up; drop rather than block the pipeline.
	}
}

// Events returns the channel the external collaborator drains progress
// events from.
func (b *eventBus) Events() <-chan Event { return b.ch }

func (b *eventBus) close() { close(b.ch) }
