package orchestrator

import (
	"testing"

	"github.com/Limetric/sqlmirror/catalog"
)

func levelOf(levels [][]catalog.TableRef, ref catalog.TableRef) int {
	for i, level := range levels {
		for _, r := range level {
			if r.Equal(ref) {
				return i
			}
		}
	}
	return -1
}

func TestLevelizeOrdersReferencedBeforeReferencer(t *testing.T) {
	customer := catalog.TableRef{Schema: "dbo", Name: "Customer"}
	order := catalog.TableRef{Schema: "dbo", Name: "Order"}
	lineItem := catalog.TableRef{Schema: "dbo", Name: "LineItem"}

	schemas := map[catalog.TableRef]*catalog.TableSchema{
		customer: {Ref: customer},
		order: {Ref: order, ForeignKeys: []catalog.ForeignKeyDesc{
			{Name: "FK_Order_Customer", Referenced: customer},
		}},
		lineItem: {Ref: lineItem, ForeignKeys: []catalog.ForeignKeyDesc{
			{Name: "FK_LineItem_Order", Referenced: order},
		}},
	}

	levels := levelize(schemas)

	lc, lo, ll := levelOf(levels, customer), levelOf(levels, order), levelOf(levels, lineItem)
	if lc >= lo {
		t.Errorf("Customer (level %d) should precede Order (level %d)", lc, lo)
	}
	if lo >= ll {
		t.Errorf("Order (level %d) should precede LineItem (level %d)", lo, ll)
	}
}

func TestLevelizeIndependentTablesShareALevel(t *testing.T) {
	a := catalog.TableRef{Schema: "dbo", Name: "A"}
	b := catalog.TableRef{Schema: "dbo", Name: "B"}
	schemas := map[catalog.TableRef]*catalog.TableSchema{
		a: {Ref: a},
		b: {Ref: b},
	}
	levels := levelize(schemas)
	if len(levels) != 1 || len(levels[0]) != 2 {
		t.Errorf("levelize() = %v, want a single level containing both tables", levels)
	}
}

func TestLevelizeBreaksCycles(t *testing.T) {
	a := catalog.TableRef{Schema: "dbo", Name: "A"}
	b := catalog.TableRef{Schema: "dbo", Name: "B"}
	schemas := map[catalog.TableRef]*catalog.TableSchema{
		a: {Ref: a, ForeignKeys: []catalog.ForeignKeyDesc{{Name: "FK_A_B", Referenced: b}}},
		b: {Ref: b, ForeignKeys: []catalog.ForeignKeyDesc{{Name: "FK_B_A", Referenced: a}}},
	}
	levels := levelize(schemas)

	total := 0
	for _, level := range levels {
		total += len(level)
	}
	if total != 2 {
		t.Fatalf("levelize() on a cycle dropped tables: got %d refs total, want 2", total)
	}
}

func TestLevelizeIgnoresSelfReference(t *testing.T) {
	a := catalog.TableRef{Schema: "dbo", Name: "Node"}
	schemas := map[catalog.TableRef]*catalog.TableSchema{
		a: {Ref: a, ForeignKeys: []catalog.ForeignKeyDesc{{Name: "FK_Node_Parent", Referenced: a}}},
	}
	levels := levelize(schemas)
	if len(levels) != 1 || len(levels[0]) != 1 {
		t.Errorf("levelize() on self-referencing table = %v, want single table in a single level", levels)
	}
}

func TestLevelizeIgnoresReferencesOutsideTheRun(t *testing.T) {
	a := catalog.TableRef{Schema: "dbo", Name: "A"}
	outside := catalog.TableRef{Schema: "dbo", Name: "NotInThisRun"}
	schemas := map[catalog.TableRef]*catalog.TableSchema{
		a: {Ref: a, ForeignKeys: []catalog.ForeignKeyDesc{{Name: "FK_A_Outside", Referenced: outside}}},
	}
	levels := levelize(schemas)
	if len(levels) != 1 || len(levels[0]) != 1 || !levels[0][0].Equal(a) {
		t.Errorf("levelize() = %v, want A alone in level 0", levels)
	}
}
