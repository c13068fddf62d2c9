package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Limetric/sqlmirror/catalog"
	"github.com/Limetric/sqlmirror/syncerr"
)

func TestResolveEffectivePKUsesOverride(t *testing.T) {
	schema := &catalog.TableSchema{Columns: []catalog.ColumnDesc{{Name: "Id"}, {Name: "Region"}}}
	pk, err := resolveEffectivePK(schema, []string{"Region", "Id"})
	if err != nil {
		t.Fatalf("resolveEffectivePK() error: %v", err)
	}
	if len(pk.Columns) != 2 || pk.Columns[0] != "Region" || pk.Columns[1] != "Id" {
		t.Errorf("resolveEffectivePK() = %v, want override columns preserved in order", pk.Columns)
	}
}

func TestResolveEffectivePKRejectsUnknownOverrideColumn(t *testing.T) {
	schema := &catalog.TableSchema{Columns: []catalog.ColumnDesc{{Name: "Id"}}}
	_, err := resolveEffectivePK(schema, []string{"Missing"})
	if err == nil {
		t.Fatal("resolveEffectivePK() with an unknown override column should fail")
	}
	if !errors.Is(err, errInvalidPKOverride) {
		t.Errorf("resolveEffectivePK() error = %v, want it to wrap errInvalidPKOverride", err)
	}
}

func TestResolveEffectivePKFallsBackToCatalogPK(t *testing.T) {
	schema := &catalog.TableSchema{PrimaryKey: catalog.KeyDesc{Name: "PK_T", Columns: []string{"Id"}}}
	pk, err := resolveEffectivePK(schema, nil)
	if err != nil {
		t.Fatalf("resolveEffectivePK() error: %v", err)
	}
	if pk.Name != "PK_T" {
		t.Errorf("resolveEffectivePK() = %v, want the catalog PK", pk)
	}
}

func TestResolveEffectivePKFailsWhenNeitherIsAvailable(t *testing.T) {
	schema := &catalog.TableSchema{Ref: catalog.TableRef{Schema: "dbo", Name: "NoKey"}}
	_, err := resolveEffectivePK(schema, nil)
	if err == nil {
		t.Fatal("resolveEffectivePK() with no PK and no override should fail")
	}
	if errors.Is(err, errInvalidPKOverride) {
		t.Error("resolveEffectivePK() with no override should not be classified as an invalid override")
	}
}

func TestToSyncerrRef(t *testing.T) {
	ref := catalog.TableRef{Schema: "dbo", Name: "Customer"}
	got := toSyncerrRef(ref)
	if got.Schema != "dbo" || got.Name != "Customer" {
		t.Errorf("toSyncerrRef() = %+v", got)
	}
	var _ syncerr.TableRef = got
}

func TestCommandTimeoutDefaultsWhenUnset(t *testing.T) {
	o := &Orchestrator{Opts: Options{}}
	ctx, cancel := o.commandTimeout(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("commandTimeout() produced a context with no deadline")
	}
	if d := time.Until(deadline); d <= 0 || d > 301*time.Second {
		t.Errorf("commandTimeout() default deadline = %v, want ~300s", d)
	}
}

func TestCommandTimeoutUsesConfiguredSeconds(t *testing.T) {
	o := &Orchestrator{Opts: Options{CommandTimeoutSeconds: 5}}
	ctx, cancel := o.commandTimeout(context.Background())
	defer cancel()
	deadline, _ := ctx.Deadline()
	if d := time.Until(deadline); d <= 0 || d > 6*time.Second {
		t.Errorf("commandTimeout() deadline = %v, want ~5s", d)
	}
}
