package delta

import (
	"testing"

	"github.com/Limetric/sqlmirror/catalog"
)

func TestMergeDiff(t *testing.T) {
	a := []Row{{Key: "1"}, {Key: "2"}, {Key: "4"}}
	b := []Row{{Key: "2"}, {Key: "3"}, {Key: "4"}, {Key: "5"}}

	got := mergeDiff(a, b)
	want := []string{"3", "5"}
	if len(got) != len(want) {
		t.Fatalf("mergeDiff() returned %d rows, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Key != w {
			t.Errorf("mergeDiff()[%d] = %q, want %q", i, got[i].Key, w)
		}
	}
}

func TestMergeDiffEmptyWhenEqual(t *testing.T) {
	a := []Row{{Key: "1"}, {Key: "2"}}
	b := []Row{{Key: "1"}, {Key: "2"}}
	if got := mergeDiff(a, b); len(got) != 0 {
		t.Errorf("mergeDiff() on identical sets = %v, want empty", got)
	}
}

func TestEncodeKeyIsDeterministicAndDistinguishesValues(t *testing.T) {
	k1 := encodeKey([]any{int64(1), "a"})
	k2 := encodeKey([]any{int64(1), "a"})
	k3 := encodeKey([]any{int64(2), "a"})

	if k1 != k2 {
		t.Errorf("encodeKey should be deterministic: %q != %q", k1, k2)
	}
	if k1 == k3 {
		t.Errorf("encodeKey should distinguish differing PK values: %q == %q", k1, k3)
	}
}

func TestPkColumnIndexes(t *testing.T) {
	cols := []string{"Id", "Name", "Region"}
	idx := pkColumnIndexes(cols, []string{"Region", "Id"})
	if len(idx) != 2 || idx[0] != 2 || idx[1] != 0 {
		t.Errorf("pkColumnIndexes() = %v, want [2 0]", idx)
	}
}

func TestBuildHashExpressionCoalescesNulls(t *testing.T) {
	expr := buildHashExpression([]string{"Name", "Total"})
	if got, want := expr, "HASHBYTES('SHA2_256', CONCAT_WS(N'␞', ISNULL(CONVERT(NVARCHAR(MAX), [Name]), N'\x00'), ISNULL(CONVERT(NVARCHAR(MAX), [Total]), N'\x00')))"; got != want {
		t.Errorf("buildHashExpression() =\n%q\nwant\n%q", got, want)
	}
}

func TestColumnNames(t *testing.T) {
	cols := []catalog.ColumnDesc{{Name: "Id"}, {Name: "Name"}}
	got := columnNames(cols)
	if len(got) != 2 || got[0] != "Id" || got[1] != "Name" {
		t.Errorf("columnNames() = %v, want [Id Name]", got)
	}
}
