package sla

import (
	"testing"

	"github.com/ormasoftchile/dataward/pkg/contract"
	"github.com/ormasoftchile/dataward/pkg/dataset"
	"github.com/ormasoftchile/dataward/pkg/finding"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func twoColContract(sla contract.SLARule) *contract.Contract {
	return &contract.Contract{
		Name: "orders",
		Columns: []contract.Column{
			{Name: "id", Spec: contract.ColumnSpec{Type: contract.TypeInteger}},
			{Name: "email", Spec: contract.ColumnSpec{Type: contract.TypeString, Nullable: true}},
		},
		SLA: sla,
	}
}

// twoColDataset builds rows of (id, email) where a nil email is a null
// cell.
func twoColDataset(rows ...[2]any) *dataset.Dataset {
	ds := dataset.New([]string{"id", "email"})
	for _, r := range rows {
		ds.Append(dataset.Row{"id": dataset.V(r[0]), "email": dataset.V(r[1])})
	}
	return ds
}

func TestRowCountBounds(t *testing.T) {
	c := twoColContract(contract.SLARule{MinRows: 1, MaxRows: i64(1_000_000)})
	ds := twoColDataset([2]any{"1", "a@x.com"})

	res := Enforce(c, ds, nil, "")
	if !res.Step.Success {
		t.Fatalf("expected pass, findings: %v", res.Step.Findings)
	}
	if res.Metrics.RowCount != 1 {
		t.Errorf("RowCount = %d, want 1", res.Metrics.RowCount)
	}
}

func TestMinRowsBreach(t *testing.T) {
	c := twoColContract(contract.SLARule{MinRows: 5})
	ds := twoColDataset([2]any{"1", "a@x.com"})

	res := Enforce(c, ds, nil, "")
	if res.Step.Success {
		t.Fatal("expected breach")
	}
	if !res.Step.HasCode(finding.CodeRowCount) {
		t.Errorf("expected %s, got %v", finding.CodeRowCount, res.Step.Findings)
	}
}

func TestMaxRowsBreach(t *testing.T) {
	c := twoColContract(contract.SLARule{MaxRows: i64(1)})
	ds := twoColDataset([2]any{"1", "a"}, [2]any{"2", "b"})

	res := Enforce(c, ds, nil, "")
	if !res.Step.HasCode(finding.CodeRowCount) {
		t.Errorf("expected %s, got %v", finding.CodeRowCount, res.Step.Findings)
	}
}

// Whole-row completeness: 7 of 10 rows fully populated across declared
// columns is 0.70, below a 0.95 threshold.
func TestWholeRowCompleteness(t *testing.T) {
	c := twoColContract(contract.SLARule{CompletenessThreshold: f64(0.95)})
	ds := dataset.New([]string{"id", "email"})
	for i := 0; i < 7; i++ {
		ds.Append(dataset.Row{"id": dataset.V(i), "email": dataset.V("a@x.com")})
	}
	for i := 0; i < 3; i++ {
		ds.Append(dataset.Row{"id": dataset.V(100 + i), "email": dataset.Null()})
	}

	res := Enforce(c, ds, nil, "")
	if res.Step.Success {
		t.Fatal("expected completeness breach")
	}
	if !res.Step.HasCode(finding.CodeCompleteness) {
		t.Errorf("expected %s, got %v", finding.CodeCompleteness, res.Step.Findings)
	}
	if res.Metrics.Completeness != 0.7 {
		t.Errorf("Completeness = %v, want 0.7", res.Metrics.Completeness)
	}
}

// Per-column mode only scores non-nullable columns; nullable email can
// be entirely null without breaching.
func TestPerColumnCompleteness(t *testing.T) {
	c := twoColContract(contract.SLARule{
		CompletenessThreshold: f64(0.95),
		CompletenessMode:      contract.CompletenessPerColumn,
	})
	ds := twoColDataset(
		[2]any{"1", nil},
		[2]any{"2", nil},
	)

	res := Enforce(c, ds, nil, "")
	if !res.Step.Success {
		t.Fatalf("nullable column nulls must not breach per-column mode: %v", res.Step.Findings)
	}
	if res.Metrics.Completeness != 1.0 {
		t.Errorf("Completeness = %v, want 1.0", res.Metrics.Completeness)
	}
}

func TestPerColumnCompletenessBreach(t *testing.T) {
	c := twoColContract(contract.SLARule{
		CompletenessThreshold: f64(0.95),
		CompletenessMode:      contract.CompletenessPerColumn,
	})
	ds := twoColDataset(
		[2]any{"1", "a"},
		[2]any{nil, "b"},
	)

	res := Enforce(c, ds, nil, "")
	if res.Step.Success {
		t.Fatal("expected breach on non-nullable id column")
	}
	var found bool
	for _, f := range res.Step.Findings {
		if f.Code == finding.CodeCompleteness && f.Column == "id" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected per-column finding on id, got %v", res.Step.Findings)
	}
}

// An empty dataset is vacuously complete; only min_rows can fail it.
func TestZeroRows(t *testing.T) {
	c := twoColContract(contract.SLARule{CompletenessThreshold: f64(0.95)})
	res := Enforce(c, dataset.New([]string{"id", "email"}), nil, "")
	if !res.Step.Success {
		t.Fatalf("zero rows with no min_rows must pass: %v", res.Step.Findings)
	}
	if res.Metrics.Completeness != 1.0 {
		t.Errorf("Completeness = %v, want 1.0", res.Metrics.Completeness)
	}

	c = twoColContract(contract.SLARule{MinRows: 1, CompletenessThreshold: f64(0.95)})
	res = Enforce(c, dataset.New([]string{"id", "email"}), nil, "")
	if res.Step.Success {
		t.Fatal("min_rows 1 must fail on zero rows")
	}
	if !res.Step.HasCode(finding.CodeRowCount) {
		t.Errorf("expected %s only, got %v", finding.CodeRowCount, res.Step.Findings)
	}
	if res.Step.HasCode(finding.CodeCompleteness) {
		t.Errorf("zero rows must not also breach completeness: %v", res.Step.Findings)
	}
}

func TestDuplicateRowsMetric(t *testing.T) {
	c := twoColContract(contract.SLARule{Custom: map[string]float64{"duplicate_rows": 0}})
	ds := twoColDataset(
		[2]any{"1", "a"},
		[2]any{"1", "a"},
		[2]any{"1", "a"},
		[2]any{"2", "b"},
	)

	res := Enforce(c, ds, nil, "")
	if res.Metrics.DuplicateRows != 2 {
		t.Errorf("DuplicateRows = %d, want 2 (extra copies beyond the first)", res.Metrics.DuplicateRows)
	}
	if res.Step.Success {
		t.Fatal("duplicate_rows is a ceiling metric; 2 > 0 must breach")
	}
	if !res.Step.HasCode(finding.CodeThreshold) {
		t.Errorf("expected %s, got %v", finding.CodeThreshold, res.Step.Findings)
	}
}

func TestNullCellsMetric(t *testing.T) {
	c := twoColContract(contract.SLARule{Custom: map[string]float64{"null_cells": 5}})
	ds := twoColDataset(
		[2]any{"1", nil},
		[2]any{nil, "b"},
	)

	res := Enforce(c, ds, nil, "")
	if res.Metrics.NullCells != 2 {
		t.Errorf("NullCells = %d, want 2", res.Metrics.NullCells)
	}
	if !res.Step.Success {
		t.Errorf("2 null cells under ceiling 5 must pass: %v", res.Step.Findings)
	}
	if res.Metrics.NullCounts["email"] != 1 || res.Metrics.NullCounts["id"] != 1 {
		t.Errorf("NullCounts = %v", res.Metrics.NullCounts)
	}
}

// Unknown metric names warn rather than fail: they may be contract
// fields aimed at a newer enforcer.
func TestUnknownMetricWarns(t *testing.T) {
	c := twoColContract(contract.SLARule{Custom: map[string]float64{"freshness_score": 0.9}})
	ds := twoColDataset([2]any{"1", "a"})

	res := Enforce(c, ds, nil, "")
	if !res.Step.Success {
		t.Fatalf("unknown metric must not fail: %v", res.Step.Findings)
	}
	if !res.Step.HasCode(finding.CodeUnknownMetric) {
		t.Errorf("expected %s warning, got %v", finding.CodeUnknownMetric, res.Step.Findings)
	}
}

func TestRegisteredCustomMetric(t *testing.T) {
	reg := NewMetricRegistry()
	reg.Register("always_low", Metric{fn: func(*contract.Contract, *dataset.Dataset, *Snapshot) (float64, error) {
		return 0.1, nil
	}})
	c := twoColContract(contract.SLARule{Custom: map[string]float64{"always_low": 0.5}})
	ds := twoColDataset([2]any{"1", "a"})

	res := Enforce(c, ds, reg, "")
	if res.Step.Success {
		t.Fatal("floor metric 0.1 under threshold 0.5 must breach")
	}
	if res.Metrics.Custom["always_low"] != 0.1 {
		t.Errorf("Custom = %v", res.Metrics.Custom)
	}
}

func TestExprMetric(t *testing.T) {
	reg := NewMetricRegistry()
	if err := reg.RegisterExpr("null_ratio", "null_cells / (row_count * 2)", true); err != nil {
		t.Fatalf("RegisterExpr: %v", err)
	}
	c := twoColContract(contract.SLARule{Custom: map[string]float64{"null_ratio": 0.1}})
	ds := twoColDataset(
		[2]any{"1", nil},
		[2]any{"2", "b"},
	)

	res := Enforce(c, ds, reg, "")
	if res.Step.Success {
		t.Fatal("null ratio 0.25 over ceiling 0.1 must breach")
	}
	if got := res.Metrics.Custom["null_ratio"]; got != 0.25 {
		t.Errorf("null_ratio = %v, want 0.25", got)
	}
}

func TestExprMetricCompileError(t *testing.T) {
	reg := NewMetricRegistry()
	if err := reg.RegisterExpr("broken", "row_count +", false); err == nil {
		t.Fatal("expected compile error")
	}
}

// The contract's completeness mode can be overridden per run.
func TestModeOverride(t *testing.T) {
	c := twoColContract(contract.SLARule{CompletenessThreshold: f64(0.95)})
	ds := twoColDataset(
		[2]any{"1", nil},
		[2]any{"2", nil},
	)

	// whole_row default: 0/2 complete rows, breach.
	if res := Enforce(c, ds, nil, ""); res.Step.Success {
		t.Fatal("whole_row mode must breach")
	}
	// per_column override: email is nullable, id fully populated, pass.
	if res := Enforce(c, ds, nil, contract.CompletenessPerColumn); !res.Step.Success {
		t.Fatalf("per_column override must pass: %v", res.Step.Findings)
	}
}
