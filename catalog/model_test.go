package catalog

import "testing"

func TestTableRefEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b TableRef
		want bool
	}{
		{"same case", TableRef{"dbo", "Customer"}, TableRef{"dbo", "Customer"}, true},
		{"different case", TableRef{"DBO", "customer"}, TableRef{"dbo", "Customer"}, true},
		{"different table", TableRef{"dbo", "Customer"}, TableRef{"dbo", "Order"}, false},
		{"different schema", TableRef{"dbo", "Customer"}, TableRef{"sales", "Customer"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Equal(c.b); got != c.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
			}
		})
	}
}

func TestTableRefString(t *testing.T) {
	ref := TableRef{Schema: "dbo", Name: "Customer"}
	if got, want := ref.String(), "[dbo].[Customer]"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestKeyDescEmpty(t *testing.T) {
	if !(KeyDesc{}).Empty() {
		t.Error("zero-value KeyDesc should be Empty")
	}
	if (KeyDesc{Columns: []string{"Id"}}).Empty() {
		t.Error("KeyDesc with columns should not be Empty")
	}
}

func TestTableSchemaColumnByName(t *testing.T) {
	schema := &TableSchema{Columns: []ColumnDesc{
		{Name: "Id"}, {Name: "Name"},
	}}
	if _, ok := schema.ColumnByName("NAME"); !ok {
		t.Error("ColumnByName should be case-insensitive")
	}
	if _, ok := schema.ColumnByName("Missing"); ok {
		t.Error("ColumnByName should report absence")
	}
}

func TestTableSchemaDataColumns(t *testing.T) {
	schema := &TableSchema{Columns: []ColumnDesc{
		{Name: "Id"},
		{Name: "RV", IsRowversion: true},
		{Name: "Total", Computed: &ComputedDesc{Expression: "Qty * Price"}},
		{Name: "Name"},
	}}
	got := schema.DataColumns()
	if len(got) != 2 {
		t.Fatalf("DataColumns() returned %d columns, want 2", len(got))
	}
	if got[0].Name != "Id" || got[1].Name != "Name" {
		t.Errorf("DataColumns() = %+v, want Id, Name", got)
	}
}

func TestTableSchemaRowversionColumn(t *testing.T) {
	schema := &TableSchema{Columns: []ColumnDesc{{Name: "Id"}, {Name: "RV", IsRowversion: true}}}
	col, ok := schema.RowversionColumn()
	if !ok || col.Name != "RV" {
		t.Errorf("RowversionColumn() = %+v, %v, want RV, true", col, ok)
	}

	noRV := &TableSchema{Columns: []ColumnDesc{{Name: "Id"}}}
	if _, ok := noRV.RowversionColumn(); ok {
		t.Error("RowversionColumn() should report absence when no column is flagged")
	}
}

func TestSourceObjectsWarnings(t *testing.T) {
	empty := &SourceObjects{}
	if warnings := empty.Warnings(); warnings != nil {
		t.Errorf("Warnings() on empty SourceObjects = %v, want nil", warnings)
	}

	objs := &SourceObjects{Views: []string{"vCustomer"}, Routines: []string{"P usp_archive"}, Triggers: []string{"trAudit"}}
	warnings := objs.Warnings()
	if len(warnings) != 3 {
		t.Fatalf("Warnings() returned %d lines, want 3", len(warnings))
	}
}

func TestColumnLength(t *testing.T) {
	cases := []struct {
		typeName  string
		maxLength int64
		want      int64
	}{
		{"nvarchar", -1, -1},
		{"nvarchar", 200, 100},
		{"nchar", 20, 10},
		{"varchar", 50, 50},
		{"int", 4, 4},
	}
	for _, c := range cases {
		if got := columnLength(c.typeName, c.maxLength); got != c.want {
			t.Errorf("columnLength(%q, %d) = %d, want %d", c.typeName, c.maxLength, got, c.want)
		}
	}
}

func TestIndexKind(t *testing.T) {
	if indexKind("CLUSTERED") != Clustered {
		t.Error("expected CLUSTERED to map to Clustered")
	}
	if indexKind("NONCLUSTERED") != NonClustered {
		t.Error("expected NONCLUSTERED to map to NonClustered")
	}
	if indexKind("HEAP") != NonClustered {
		t.Error("expected unrecognized type_desc to default to NonClustered")
	}
}
