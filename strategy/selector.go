// Package strategy implements the Change Strategy Selector (C4), grounded
// on original_source/sync.py's _detect_change_strategy.
package strategy

import (
	"bytes"

	"github.com/Limetric/sqlmirror/catalog"
	"github.com/Limetric/sqlmirror/ledger"
)

// Kind is the selected change-detection strategy for one table.
type Kind string

const (
	Rowversion        Kind = "ROWVERSION"
	RowversionInitial Kind = "ROWVERSION-INITIAL"
	Hash              Kind = "HASH"
)

// InitialHighWater is the zero rowversion sentinel used when a table has
// a rowversion column but no recorded high-water mark yet — process all
// rows.
var InitialHighWater = make([]byte, 8)

// Decision is the selector's output for one table.
type Decision struct {
	Strategy         Kind
	RowversionColumn string // empty unless Strategy is Rowversion or RowversionInitial
	HighWaterMark    []byte // nil for Hash
}

// Select decides a table's change-detection strategy from its schema and
// its (possibly absent) ledger entry, per:
//   - rowversion column present AND ledger has an 8-byte, non-zero
//     high-water for that same column → ROWVERSION, resume from the stored
//     mark.
//   - rowversion column present but no such stored high-water (absent,
//     null, or all zero) → ROWVERSION-INITIAL, process all rows from the
//     zero mark.
//   - otherwise → HASH.
func Select(schema *catalog.TableSchema, entry *ledger.Entry) Decision {
	rv, hasRowversion := schema.RowversionColumn()
	if !hasRowversion {
		return Decision{Strategy: Hash}
	}

	if entry != nil &&
		entry.RowversionColumn == rv.Name &&
		len(entry.LastRowversionSynced) == 8 &&
		!bytes.Equal(entry.LastRowversionSynced, InitialHighWater) {
		return Decision{
			Strategy:         Rowversion,
			RowversionColumn: rv.Name,
			HighWaterMark:    entry.LastRowversionSynced,
		}
	}

	return Decision{
		Strategy:         RowversionInitial,
		RowversionColumn: rv.Name,
		HighWaterMark:    InitialHighWater,
	}
}
