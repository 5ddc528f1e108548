// Package sla implements dataset-level service-level enforcement:
// row-count bounds, completeness ratio and named custom thresholds
// resolved through a metric registry.
package sla

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ormasoftchile/dataward/pkg/contract"
	"github.com/ormasoftchile/dataward/pkg/dataset"
	"github.com/ormasoftchile/dataward/pkg/finding"
)

// StepName is the pipeline step name for SLA enforcement.
const StepName = "sla_enforcement"

// Snapshot is the full metrics picture for one enforcement run. It is
// carried on the result regardless of pass/fail for observability.
type Snapshot struct {
	RowCount      int64              `json:"row_count"`
	Completeness  float64            `json:"completeness"`
	NullCounts    map[string]int     `json:"null_counts"`
	NullCells     int                `json:"null_cells"`
	DuplicateRows int                `json:"duplicate_rows"`
	Custom        map[string]float64 `json:"custom,omitempty"`
}

// Result is the outcome of one SLA enforcement run.
type Result struct {
	Step    *finding.StepResult `json:"step"`
	Metrics Snapshot            `json:"metrics"`
}

// Enforce checks the contract's SLA rule over the dataset. modeOverride,
// when non-empty, overrides the contract's completeness mode. Never
// mutates the dataset; pure except for the clock.
func Enforce(c *contract.Contract, ds *dataset.Dataset, reg *MetricRegistry, modeOverride string) *Result {
	start := time.Now()
	if reg == nil {
		reg = NewMetricRegistry()
	}
	rule := c.SLA
	step := &finding.StepResult{Name: StepName}

	mode := rule.CompletenessMode
	if modeOverride != "" {
		mode = modeOverride
	}
	if mode == "" {
		mode = contract.CompletenessWholeRow
	}

	snap := profile(c, ds, mode)

	// Row-count bounds.
	if snap.RowCount < rule.MinRows {
		step.Findings = append(step.Findings, finding.Finding{
			Kind:     finding.KindSLA,
			Severity: finding.SeverityError,
			Code:     finding.CodeRowCount,
			Message:  fmt.Sprintf("row count %d is below minimum %d", snap.RowCount, rule.MinRows),
			Count:    int(snap.RowCount),
		})
	}
	if rule.MaxRows != nil && snap.RowCount > *rule.MaxRows {
		step.Findings = append(step.Findings, finding.Finding{
			Kind:     finding.KindSLA,
			Severity: finding.SeverityError,
			Code:     finding.CodeRowCount,
			Message:  fmt.Sprintf("row count %d exceeds maximum %d", snap.RowCount, *rule.MaxRows),
			Count:    int(snap.RowCount),
		})
	}

	// Completeness threshold.
	if rule.CompletenessThreshold != nil {
		threshold := *rule.CompletenessThreshold
		switch mode {
		case contract.CompletenessPerColumn:
			for _, col := range c.Columns {
				if col.Spec.Nullable {
					continue
				}
				ratio := columnCompleteness(ds, col.Name)
				if ratio < threshold {
					step.Findings = append(step.Findings, finding.Finding{
						Kind:     finding.KindSLA,
						Severity: finding.SeverityError,
						Code:     finding.CodeCompleteness,
						Column:   col.Name,
						Message:  fmt.Sprintf("column completeness %.4f is below threshold %.4f", ratio, threshold),
					})
				}
			}
		default: // whole_row
			if snap.Completeness < threshold {
				step.Findings = append(step.Findings, finding.Finding{
					Kind:     finding.KindSLA,
					Severity: finding.SeverityError,
					Code:     finding.CodeCompleteness,
					Message:  fmt.Sprintf("completeness %.4f is below threshold %.4f", snap.Completeness, threshold),
				})
			}
		}
	}

	// Named custom thresholds against the metric registry. Names are
	// walked in sorted order so finding accumulation is deterministic.
	names := make([]string, 0, len(rule.Custom))
	for name := range rule.Custom {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		threshold := rule.Custom[name]
		metric, ok := reg.lookup(name)
		if !ok {
			// Unknown metric names may be forward-compatible contract
			// fields — warn, don't fail.
			step.Findings = append(step.Findings, finding.Finding{
				Kind:     finding.KindSLA,
				Severity: finding.SeverityWarning,
				Code:     finding.CodeUnknownMetric,
				Message:  fmt.Sprintf("no metric registered for custom threshold %q", name),
			})
			continue
		}
		value, err := metric.eval(c, ds, &snap)
		if err != nil {
			step.Findings = append(step.Findings, finding.Finding{
				Kind:     finding.KindSLA,
				Severity: finding.SeverityError,
				Code:     finding.CodeThreshold,
				Message:  fmt.Sprintf("metric %q failed to evaluate: %v", name, err),
			})
			continue
		}
		if snap.Custom == nil {
			snap.Custom = make(map[string]float64)
		}
		snap.Custom[name] = value
		if breached(metric, value, threshold) {
			step.Findings = append(step.Findings, finding.Finding{
				Kind:     finding.KindSLA,
				Severity: finding.SeverityError,
				Code:     finding.CodeThreshold,
				Message:  fmt.Sprintf("metric %q = %v breaches threshold %v (%s)", name, value, threshold, metric.directionString()),
			})
		}
	}

	step.Duration = time.Since(start)
	step.Finalize()
	return &Result{Step: step, Metrics: snap}
}

// profile computes the metrics snapshot. Zero rows are vacuously
// complete (ratio 1.0) — no division by the row count happens then.
func profile(c *contract.Contract, ds *dataset.Dataset, mode string) Snapshot {
	snap := Snapshot{
		RowCount:   int64(ds.Len()),
		NullCounts: make(map[string]int, len(ds.Columns())),
	}

	cols := ds.Columns()
	fingerprints := make(map[string]int, ds.Len())
	completeRows := 0
	for i := 0; i < ds.Len(); i++ {
		row := ds.Row(i)
		var fp strings.Builder
		for _, col := range cols {
			v := row.Get(col)
			if v.IsNull() {
				snap.NullCounts[col]++
				snap.NullCells++
				fp.WriteString("\x00")
			} else {
				fp.WriteString(v.Text())
			}
			fp.WriteString("\x1f")
		}
		fingerprints[fp.String()]++

		complete := true
		for _, col := range c.Columns {
			if row.Get(col.Name).IsNull() {
				complete = false
				break
			}
		}
		if complete {
			completeRows++
		}
	}
	for _, n := range fingerprints {
		if n > 1 {
			snap.DuplicateRows += n - 1
		}
	}

	switch {
	case ds.Len() == 0:
		snap.Completeness = 1.0
	case mode == contract.CompletenessPerColumn:
		snap.Completeness = 1.0
		for _, col := range c.Columns {
			if col.Spec.Nullable {
				continue
			}
			if r := columnCompleteness(ds, col.Name); r < snap.Completeness {
				snap.Completeness = r
			}
		}
	default:
		snap.Completeness = float64(completeRows) / float64(ds.Len())
	}
	return snap
}

// columnCompleteness is the non-null ratio for a single column; 1.0 on
// an empty dataset.
func columnCompleteness(ds *dataset.Dataset, col string) float64 {
	if ds.Len() == 0 {
		return 1.0
	}
	nonNull := 0
	for i := 0; i < ds.Len(); i++ {
		if !ds.Row(i).Get(col).IsNull() {
			nonNull++
		}
	}
	return float64(nonNull) / float64(ds.Len())
}

func breached(m Metric, value, threshold float64) bool {
	if m.Ceiling {
		return value > threshold
	}
	return value < threshold
}
