package apply

import (
	"testing"

	"github.com/Limetric/sqlmirror/catalog"
)

func TestIdentityPKColumn(t *testing.T) {
	schema := &catalog.TableSchema{Columns: []catalog.ColumnDesc{
		{Name: "Id", Identity: &catalog.IdentityDesc{Seed: 1, Increment: 1}},
		{Name: "Name"},
	}}
	if got := identityPKColumn(schema, []string{"Id"}); got != "Id" {
		t.Errorf("identityPKColumn() = %q, want Id", got)
	}
	if got := identityPKColumn(schema, []string{"Name"}); got != "" {
		t.Errorf("identityPKColumn() = %q, want empty when PK excludes the identity column", got)
	}
}

func TestNonPKColumns(t *testing.T) {
	cols := []catalog.ColumnDesc{{Name: "Id"}, {Name: "Name"}, {Name: "Region"}}
	got := nonPKColumns(cols, []string{"Id"})
	if len(got) != 2 || got[0] != "Name" || got[1] != "Region" {
		t.Errorf("nonPKColumns() = %v, want [Name Region]", got)
	}
}

func TestNonPKColumnsAllExcluded(t *testing.T) {
	cols := []catalog.ColumnDesc{{Name: "Id"}}
	if got := nonPKColumns(cols, []string{"Id"}); len(got) != 0 {
		t.Errorf("nonPKColumns() = %v, want empty", got)
	}
}

func TestColumnIndexes(t *testing.T) {
	cols := []catalog.ColumnDesc{{Name: "Id"}, {Name: "Name"}, {Name: "Region"}}
	idx := columnIndexes(cols, []string{"Region", "Id"})
	if len(idx) != 2 || idx[0] != 2 || idx[1] != 0 {
		t.Errorf("columnIndexes() = %v, want [2 0]", idx)
	}
}

func TestPkPredicate(t *testing.T) {
	got := pkPredicate([]string{"Id", "Region"})
	want := "[Id] = ? AND [Region] = ?"
	if got != want {
		t.Errorf("pkPredicate() = %q, want %q", got, want)
	}
}

func TestQualifiedName(t *testing.T) {
	ref := catalog.TableRef{Schema: "dbo", Name: "Customer"}
	if got, want := qualifiedName(ref), "[dbo].[Customer]"; got != want {
		t.Errorf("qualifiedName() = %q, want %q", got, want)
	}
}

func TestNotifyNilCallbackIsNoop(t *testing.T) {
	notify(nil, BatchInsert, 10)
}

func TestNotifyInvokesCallback(t *testing.T) {
	var gotKind BatchKind
	var gotRows int
	notify(func(kind BatchKind, rows int) {
		gotKind, gotRows = kind, rows
	}, BatchDelete, 42)
	if gotKind != BatchDelete || gotRows != 42 {
		t.Errorf("notify() callback got (%v, %d), want (%v, 42)", gotKind, gotRows, BatchDelete)
	}
}
