package sla

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/ormasoftchile/dataward/pkg/contract"
	"github.com/ormasoftchile/dataward/pkg/dataset"
)

// MetricFunc computes one named metric for a (contract, dataset) pair.
// The precomputed snapshot is available so cheap metrics don't rescan
// the dataset.
type MetricFunc func(c *contract.Contract, ds *dataset.Dataset, snap *Snapshot) (float64, error)

// Metric pairs a metric function with its threshold direction. By
// default the contract threshold is a floor (the metric must reach it);
// Ceiling metrics invert that (the metric must stay under it), which
// fits counts of bad things like duplicate rows.
type Metric struct {
	fn      MetricFunc
	Ceiling bool
}

func (m Metric) eval(c *contract.Contract, ds *dataset.Dataset, snap *Snapshot) (float64, error) {
	return m.fn(c, ds, snap)
}

func (m Metric) directionString() string {
	if m.Ceiling {
		return "must not exceed"
	}
	return "must reach"
}

// MetricRegistry maps custom SLA threshold names to metrics. Thresholds
// in a contract's sla section beyond the built-in keys are resolved
// here at enforcement time.
type MetricRegistry struct {
	metrics map[string]Metric
}

// NewMetricRegistry returns a registry with the built-in metrics:
// row_count and completeness (floors), duplicate_rows and null_cells
// (ceilings).
func NewMetricRegistry() *MetricRegistry {
	r := &MetricRegistry{metrics: make(map[string]Metric)}
	r.Register("row_count", Metric{fn: func(_ *contract.Contract, _ *dataset.Dataset, s *Snapshot) (float64, error) {
		return float64(s.RowCount), nil
	}})
	r.Register("completeness", Metric{fn: func(_ *contract.Contract, _ *dataset.Dataset, s *Snapshot) (float64, error) {
		return s.Completeness, nil
	}})
	r.Register("duplicate_rows", Metric{fn: func(_ *contract.Contract, _ *dataset.Dataset, s *Snapshot) (float64, error) {
		return float64(s.DuplicateRows), nil
	}, Ceiling: true})
	r.Register("null_cells", Metric{fn: func(_ *contract.Contract, _ *dataset.Dataset, s *Snapshot) (float64, error) {
		return float64(s.NullCells), nil
	}, Ceiling: true})
	return r
}

// Register adds or replaces a named metric.
func (r *MetricRegistry) Register(name string, m Metric) {
	r.metrics[name] = m
}

// RegisterExpr registers a metric computed from an expression over the
// snapshot: row_count, completeness, duplicate_rows and null_cells are
// in scope. The expression must evaluate to a number.
func (r *MetricRegistry) RegisterExpr(name, src string, ceiling bool) error {
	env := snapshotEnv(&Snapshot{})
	program, err := expr.Compile(src, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return fmt.Errorf("compile metric %q: %w", name, err)
	}
	r.Register(name, Metric{
		Ceiling: ceiling,
		fn: func(_ *contract.Contract, _ *dataset.Dataset, snap *Snapshot) (float64, error) {
			out, err := expr.Run(program, snapshotEnv(snap))
			if err != nil {
				return 0, fmt.Errorf("eval metric %q: %w", name, err)
			}
			f, ok := out.(float64)
			if !ok {
				return 0, fmt.Errorf("metric %q did not return a number (got %T)", name, out)
			}
			return f, nil
		},
	})
	return nil
}

func (r *MetricRegistry) lookup(name string) (Metric, bool) {
	m, ok := r.metrics[name]
	return m, ok
}

func snapshotEnv(s *Snapshot) map[string]any {
	return map[string]any{
		"row_count":      float64(s.RowCount),
		"completeness":   s.Completeness,
		"duplicate_rows": float64(s.DuplicateRows),
		"null_cells":     float64(s.NullCells),
	}
}
