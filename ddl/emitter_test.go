package ddl

import (
	"strings"
	"testing"

	"github.com/Limetric/sqlmirror/catalog"
)

func TestCreateTableStatementColumnClauses(t *testing.T) {
	schema := &catalog.TableSchema{
		Ref: catalog.TableRef{Schema: "dbo", Name: "Customer"},
		Columns: []catalog.ColumnDesc{
			{Name: "Id", BaseType: "int", Identity: &catalog.IdentityDesc{Seed: 1, Increment: 1}, Nullable: false},
			{Name: "Name", BaseType: "nvarchar", Length: 100, Collation: "SQL_Latin1_General_CP1_CI_AS", Nullable: false},
			{Name: "RV", IsRowversion: true},
			{Name: "Total", Computed: &catalog.ComputedDesc{Expression: "[Qty]*[Price]", Persisted: true}},
		},
	}

	e := NewEmitter()
	stmt := e.createTableStatement(schema)

	for _, want := range []string{
		"CREATE TABLE [dbo].[Customer]",
		"[Id] INT IDENTITY(1,1) NOT NULL",
		"[Name] NVARCHAR(100) COLLATE SQL_Latin1_General_CP1_CI_AS NOT NULL",
		"[RV] ROWVERSION",
		"[Total] AS ([Qty]*[Price]) PERSISTED",
	} {
		if !strings.Contains(stmt, want) {
			t.Errorf("createTableStatement() missing %q\ngot: %s", want, stmt)
		}
	}
}

func TestRenderType(t *testing.T) {
	cases := []struct {
		col  catalog.ColumnDesc
		want string
	}{
		{catalog.ColumnDesc{BaseType: "nvarchar", Length: 128}, "NVARCHAR(128)"},
		{catalog.ColumnDesc{BaseType: "nvarchar", Length: -1}, "NVARCHAR(MAX)"},
		{catalog.ColumnDesc{BaseType: "decimal", Precision: 18, Scale: 4}, "DECIMAL(18,4)"},
		{catalog.ColumnDesc{BaseType: "varbinary", Length: -1}, "VARBINARY(MAX)"},
		{catalog.ColumnDesc{BaseType: "int"}, "INT"},
		{catalog.ColumnDesc{BaseType: "datetime2", Scale: 3}, "DATETIME2(3)"},
		{catalog.ColumnDesc{BaseType: "datetime2", Scale: 0}, "DATETIME2"},
	}
	for _, c := range cases {
		if got := renderType(c.col); got != c.want {
			t.Errorf("renderType(%+v) = %q, want %q", c.col, got, c.want)
		}
	}
}

func TestEmitCreateTableOrdering(t *testing.T) {
	schema := &catalog.TableSchema{
		Ref:        catalog.TableRef{Schema: "dbo", Name: "Order"},
		Columns:    []catalog.ColumnDesc{{Name: "Id", BaseType: "int"}, {Name: "CustomerId", BaseType: "int"}},
		PrimaryKey: catalog.KeyDesc{Name: "PK_Order", Columns: []string{"Id"}},
		Uniques:    []catalog.UniqueConstraint{{Name: "UQ_Order_Code", Columns: []string{"CustomerId"}}},
		Indexes:    []catalog.IndexDesc{{Name: "IX_Order_CustomerId", Kind: catalog.NonClustered, Columns: []catalog.IndexKeyColumn{{Name: "CustomerId"}}}},
		Checks:     []catalog.CheckConstraintDesc{{Name: "CK_Order_Id", Expression: "[Id] > 0"}},
		ForeignKeys: []catalog.ForeignKeyDesc{{
			Name: "FK_Order_Customer", Columns: []string{"CustomerId"},
			Referenced: catalog.TableRef{Schema: "dbo", Name: "Customer"}, RefColumns: []string{"Id"},
		}},
	}

	e := NewEmitter()
	stmts := e.EmitCreateTable(schema)

	indexOf := func(substr string) int {
		for i, s := range stmts {
			if strings.Contains(s, substr) {
				return i
			}
		}
		return -1
	}

	create := indexOf("CREATE TABLE")
	pk := indexOf("PRIMARY KEY")
	unique := indexOf("UNIQUE (")
	index := indexOf("CREATE NONCLUSTERED INDEX")
	check := indexOf("CHECK (")
	fk := indexOf("FOREIGN KEY")

	if !(create < pk && pk < unique && unique < index && index < check && check < fk) {
		t.Errorf("statement ordering violated: create=%d pk=%d unique=%d index=%d check=%d fk=%d",
			create, pk, unique, index, check, fk)
	}
}

func TestIndexStatementsRenderIncludeFilterFillFactor(t *testing.T) {
	filter := "[Active] = 1"
	schema := &catalog.TableSchema{
		Ref: catalog.TableRef{Schema: "dbo", Name: "Customer"},
		Indexes: []catalog.IndexDesc{{
			Name:       "IX_Customer_Filtered",
			Kind:       catalog.NonClustered,
			Columns:    []catalog.IndexKeyColumn{{Name: "Region", Descending: true}},
			Include:    []string{"Name"},
			Filter:     &filter,
			FillFactor: 80,
		}},
	}
	e := NewEmitter()
	stmts := e.indexStatements(schema)
	if len(stmts) != 1 {
		t.Fatalf("indexStatements() returned %d statements, want 1", len(stmts))
	}
	stmt := stmts[0]
	for _, want := range []string{"[Region] DESC", "INCLUDE ([Name])", "WHERE [Active] = 1", "WITH (FILLFACTOR = 80)"} {
		if !strings.Contains(stmt, want) {
			t.Errorf("index statement missing %q\ngot: %s", want, stmt)
		}
	}
}

func TestForeignKeyStatementEmitsNocheckWhenDisabled(t *testing.T) {
	schema := &catalog.TableSchema{
		Ref: catalog.TableRef{Schema: "dbo", Name: "Order"},
		ForeignKeys: []catalog.ForeignKeyDesc{{
			Name: "FK_Order_Customer", Columns: []string{"CustomerId"},
			Referenced: catalog.TableRef{Schema: "dbo", Name: "Customer"}, RefColumns: []string{"Id"},
			Disabled: true, OnDelete: "CASCADE",
		}},
	}
	e := NewEmitter()
	stmts := e.foreignKeyStatements(schema)
	if len(stmts) != 2 {
		t.Fatalf("foreignKeyStatements() returned %d statements, want 2 (ADD + NOCHECK)", len(stmts))
	}
	if !strings.Contains(stmts[0], "ON DELETE CASCADE") {
		t.Errorf("expected ON DELETE CASCADE, got %s", stmts[0])
	}
	if !strings.Contains(stmts[1], "NOCHECK CONSTRAINT [FK_Order_Customer]") {
		t.Errorf("expected NOCHECK statement, got %s", stmts[1])
	}
}

func TestEmitBatchBreaksCyclesWithTwoPassFKs(t *testing.T) {
	a := &catalog.TableSchema{
		Ref:     catalog.TableRef{Schema: "dbo", Name: "A"},
		Columns: []catalog.ColumnDesc{{Name: "Id", BaseType: "int"}, {Name: "BId", BaseType: "int"}},
		ForeignKeys: []catalog.ForeignKeyDesc{{
			Name: "FK_A_B", Columns: []string{"BId"},
			Referenced: catalog.TableRef{Schema: "dbo", Name: "B"}, RefColumns: []string{"Id"},
		}},
	}
	b := &catalog.TableSchema{
		Ref:     catalog.TableRef{Schema: "dbo", Name: "B"},
		Columns: []catalog.ColumnDesc{{Name: "Id", BaseType: "int"}, {Name: "AId", BaseType: "int"}},
		ForeignKeys: []catalog.ForeignKeyDesc{{
			Name: "FK_B_A", Columns: []string{"AId"},
			Referenced: catalog.TableRef{Schema: "dbo", Name: "A"}, RefColumns: []string{"Id"},
		}},
	}

	e := NewEmitter()
	stmts := e.EmitBatch([]*catalog.TableSchema{a, b})

	lastCreate, firstFK := -1, -1
	for i, s := range stmts {
		if strings.HasPrefix(s, "CREATE TABLE") {
			lastCreate = i
		}
		if firstFK == -1 && strings.Contains(s, "ADD CONSTRAINT [FK_") {
			firstFK = i
		}
	}
	if firstFK == -1 || firstFK < lastCreate {
		t.Errorf("expected all CREATE TABLE statements before any FOREIGN KEY, lastCreate=%d firstFK=%d", lastCreate, firstFK)
	}
}
