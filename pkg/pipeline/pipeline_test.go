package pipeline

import (
	"errors"
	"testing"

	"github.com/ormasoftchile/dataward/pkg/contract"
	"github.com/ormasoftchile/dataward/pkg/dataset"
	"github.com/ormasoftchile/dataward/pkg/finding"
	"github.com/ormasoftchile/dataward/pkg/sla"
	"github.com/ormasoftchile/dataward/pkg/validate"
)

func f64(v float64) *float64 { return &v }

func userContract() *contract.Contract {
	return &contract.Contract{
		Name:    "users",
		Version: "1.0.0",
		Columns: []contract.Column{
			{Name: "id", Spec: contract.ColumnSpec{Type: contract.TypeInteger}},
			{Name: "email", Spec: contract.ColumnSpec{Type: contract.TypeString}},
			{Name: "age", Spec: contract.ColumnSpec{Type: contract.TypeInteger, Nullable: true}},
		},
		Constraints: []contract.Constraint{
			{Kind: contract.KindPattern, Column: "email", Pattern: `[^@]+@[^@]+`},
			{Kind: contract.KindUniqueness, Column: "id"},
		},
		SLA: contract.SLARule{MinRows: 1, CompletenessThreshold: f64(0.5)},
	}
}

func userRows(rows ...[3]any) *dataset.Dataset {
	ds := dataset.New([]string{"id", "email", "age"})
	for _, r := range rows {
		ds.Append(dataset.Row{
			"id": dataset.V(r[0]), "email": dataset.V(r[1]), "age": dataset.V(r[2]),
		})
	}
	return ds
}

func TestRunClean(t *testing.T) {
	ds := userRows(
		[3]any{"1", "a@x.com", "30"},
		[3]any{"2", "b@x.com", nil},
	)
	res, err := Run(userContract(), ds, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, findings: %v", res.Findings())
	}
	if res.State != StateDone {
		t.Errorf("State = %s, want DONE", res.State)
	}
	if len(res.Steps) != 3 {
		t.Errorf("Steps = %d, want 3", len(res.Steps))
	}
	if res.InputRows != 2 || res.OutputRows != 2 {
		t.Errorf("rows in/out = %d/%d, want 2/2", res.InputRows, res.OutputRows)
	}
	if res.Metrics.RowCount != 2 {
		t.Errorf("Metrics.RowCount = %d", res.Metrics.RowCount)
	}
}

// The same inputs run twice must produce the same findings: the
// pipeline holds no state between runs and never mutates its inputs.
func TestRunIdempotent(t *testing.T) {
	c := userContract()
	ds := userRows(
		[3]any{"1", "not-an-email", "30"},
		[3]any{"1", "b@x.com", nil},
	)
	first, err := Run(c, ds, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := Run(c, ds, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ff, sf := first.Findings(), second.Findings()
	if len(ff) != len(sf) {
		t.Fatalf("finding count drifted: %d then %d", len(ff), len(sf))
	}
	for i := range ff {
		if ff[i].Code != sf[i].Code || ff[i].Count != sf[i].Count {
			t.Errorf("finding %d drifted: %v vs %v", i, ff[i], sf[i])
		}
	}
	if ds.Len() != 2 {
		t.Errorf("input dataset mutated, Len = %d", ds.Len())
	}
}

func TestSelfInconsistentContract(t *testing.T) {
	c := userContract()
	c.Constraints = append(c.Constraints, contract.Constraint{
		Kind: contract.KindPattern, Column: "ghost", Pattern: "x",
	})
	_, err := Run(c, userRows(), Options{})
	if err == nil {
		t.Fatal("expected error for self-inconsistent contract")
	}
	var ce *contract.ContractError
	if !errors.As(err, &ce) {
		t.Errorf("error type = %T, want *contract.ContractError", err)
	}
}

// Default policy: all stages run even when an early one fails, so one
// report carries every category of finding.
func TestRunAllStagesByDefault(t *testing.T) {
	ds := dataset.New([]string{"email", "age"}) // id missing entirely
	ds.Append(dataset.Row{"email": dataset.V("a@x.com"), "age": dataset.V("30")})

	res, err := Run(userContract(), ds, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.State != StateDone {
		t.Errorf("State = %s, want DONE (no fail-fast requested)", res.State)
	}
	if len(res.Steps) != 3 {
		t.Errorf("Steps = %d, want all 3", len(res.Steps))
	}
}

// Fail-fast on a missing required column: exactly one missing_column
// finding, and neither constraints nor SLA run.
func TestFailFastMissingColumn(t *testing.T) {
	ds := dataset.New([]string{"email", "age"})
	ds.Append(dataset.Row{"email": dataset.V("a@x.com"), "age": dataset.V("30")})

	res, err := Run(userContract(), ds, Options{FailFast: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.State != StateFailed {
		t.Errorf("State = %s, want FAILED", res.State)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("Steps = %d, want schema only", len(res.Steps))
	}
	missing := 0
	for _, f := range res.Findings() {
		if f.Code == finding.CodeMissingColumn {
			missing++
		}
	}
	if missing != 1 {
		t.Errorf("missing_column findings = %d, want exactly 1", missing)
	}
}

// A type mismatch is recoverable: fail-fast still lets later stages run.
func TestFailFastRecoverableFailure(t *testing.T) {
	ds := userRows([3]any{"abc", "a@x.com", "30"})

	res, err := Run(userContract(), ds, Options{FailFast: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if len(res.Steps) != 3 {
		t.Errorf("Steps = %d, want all 3 (type mismatch is recoverable)", len(res.Steps))
	}
}

// A panicking custom rule surfaces as a constraint eval_error, never as
// a pipeline abort.
func TestStagePanicContained(t *testing.T) {
	reg := validate.NewRegistry()
	reg.Register("explode", func(contract.Constraint, dataset.Value, dataset.Row) (bool, error) {
		panic("boom")
	})
	c := userContract()
	c.Constraints = append(c.Constraints, contract.Constraint{
		Kind: contract.KindCustom, Column: "id", Rule: "explode",
	})
	ds := userRows([3]any{"1", "a@x.com", nil})

	res, err := Run(c, ds, Options{Rules: reg})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure from the panicking rule")
	}
	if res.State != StateDone {
		t.Errorf("State = %s, want DONE", res.State)
	}
	found := false
	for _, f := range res.Findings() {
		if f.Code == finding.CodeEvalError {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s, got %v", finding.CodeEvalError, res.Findings())
	}
}

func TestDropInvalidRows(t *testing.T) {
	ds := userRows(
		[3]any{"1", "a@x.com", "30"},
		[3]any{"abc", "b@x.com", nil}, // type mismatch on id
		[3]any{"3", nil, nil},         // null email, non-nullable
	)
	res, err := Run(userContract(), ds, Options{DropInvalidRows: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OutputRows != 1 {
		t.Errorf("OutputRows = %d, want 1", res.OutputRows)
	}
	if res.InputRows != 3 || ds.Len() != 3 {
		t.Error("input dataset must stay intact")
	}
}

func TestTransformationsAppliedOnSuccess(t *testing.T) {
	c := userContract()
	c.Transformations = []contract.Transformation{
		{Op: "uppercase", Column: "email"},
		{Op: "rename_column", Column: "email", To: "email_address"},
		{Op: "drop_column", Column: "age"},
	}
	ds := userRows([3]any{"1", "a@x.com", "30"})

	res, err := Run(c, ds, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success: %v", res.Findings())
	}
	out := res.Output
	if out.HasColumn("age") || !out.HasColumn("email_address") {
		t.Errorf("output columns = %v", out.Columns())
	}
	if got := out.Row(0).Get("email_address").Text(); got != "A@X.COM" {
		t.Errorf("email_address = %q, want A@X.COM", got)
	}
	// Source untouched.
	if got := ds.Row(0).Get("email").Text(); got != "a@x.com" {
		t.Errorf("input row mutated: %q", got)
	}
}

func TestTransformationsSkippedOnFailure(t *testing.T) {
	c := userContract()
	c.Transformations = []contract.Transformation{{Op: "drop_column", Column: "age"}}
	ds := userRows([3]any{"1", "not-an-email", "30"})

	res, err := Run(c, ds, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Fatal("expected pattern failure")
	}
	if !res.Output.HasColumn("age") {
		t.Error("failed runs must not transform the output")
	}
}

func TestCustomMetricThroughOptions(t *testing.T) {
	metrics := sla.NewMetricRegistry()
	if err := metrics.RegisterExpr("dup_ratio", "duplicate_rows / row_count", true); err != nil {
		t.Fatalf("RegisterExpr: %v", err)
	}
	c := userContract()
	c.SLA.Custom = map[string]float64{"dup_ratio": 0.1}
	ds := userRows(
		[3]any{"1", "a@x.com", nil},
		[3]any{"1", "a@x.com", nil},
	)

	res, err := Run(c, ds, Options{Metrics: metrics})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Fatal("dup ratio 0.5 over ceiling 0.1 must breach")
	}
	if got := res.Metrics.Custom["dup_ratio"]; got != 0.5 {
		t.Errorf("dup_ratio = %v, want 0.5", got)
	}
}
