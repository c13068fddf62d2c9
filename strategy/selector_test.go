package strategy

import (
	"bytes"
	"testing"

	"github.com/Limetric/sqlmirror/catalog"
	"github.com/Limetric/sqlmirror/ledger"
)

func schemaWithRowversion() *catalog.TableSchema {
	return &catalog.TableSchema{Columns: []catalog.ColumnDesc{
		{Name: "Id"}, {Name: "Name"}, {Name: "RV", IsRowversion: true},
	}}
}

func schemaWithoutRowversion() *catalog.TableSchema {
	return &catalog.TableSchema{Columns: []catalog.ColumnDesc{{Name: "Id"}, {Name: "Name"}}}
}

func TestSelectHashWhenNoRowversionColumn(t *testing.T) {
	got := Select(schemaWithoutRowversion(), nil)
	if got.Strategy != Hash {
		t.Errorf("Select() = %v, want HASH", got.Strategy)
	}
	if got.HighWaterMark != nil {
		t.Errorf("HASH strategy should carry no high-water mark, got %v", got.HighWaterMark)
	}
}

func TestSelectRowversionInitialWhenNoLedgerEntry(t *testing.T) {
	got := Select(schemaWithRowversion(), nil)
	if got.Strategy != RowversionInitial {
		t.Errorf("Select() = %v, want ROWVERSION-INITIAL", got.Strategy)
	}
	if !bytes.Equal(got.HighWaterMark, InitialHighWater) {
		t.Errorf("HighWaterMark = %v, want zero mark", got.HighWaterMark)
	}
}

func TestSelectRowversionInitialWhenLedgerMarkIsZero(t *testing.T) {
	entry := &ledger.Entry{RowversionColumn: "RV", LastRowversionSynced: InitialHighWater}
	got := Select(schemaWithRowversion(), entry)
	if got.Strategy != RowversionInitial {
		t.Errorf("Select() = %v, want ROWVERSION-INITIAL", got.Strategy)
	}
}

func TestSelectRowversionWhenLedgerHasHighWater(t *testing.T) {
	mark := []byte{0, 0, 0, 0, 0, 0, 0, 42}
	entry := &ledger.Entry{RowversionColumn: "RV", LastRowversionSynced: mark}
	got := Select(schemaWithRowversion(), entry)
	if got.Strategy != Rowversion {
		t.Errorf("Select() = %v, want ROWVERSION", got.Strategy)
	}
	if !bytes.Equal(got.HighWaterMark, mark) {
		t.Errorf("HighWaterMark = %v, want %v", got.HighWaterMark, mark)
	}
}

func TestSelectRowversionInitialWhenLedgerColumnMismatches(t *testing.T) {
	mark := []byte{0, 0, 0, 0, 0, 0, 0, 1}
	entry := &ledger.Entry{RowversionColumn: "OtherColumn", LastRowversionSynced: mark}
	got := Select(schemaWithRowversion(), entry)
	if got.Strategy != RowversionInitial {
		t.Errorf("Select() = %v, want ROWVERSION-INITIAL when ledger tracks a different column", got.Strategy)
	}
}
