// Package validate implements the schema and constraint validators.
// Both are pure functions of (contract fragment, dataset) → findings;
// neither performs I/O nor mutates its inputs.
package validate

import (
	"fmt"
	"time"

	"github.com/ormasoftchile/dataward/pkg/contract"
	"github.com/ormasoftchile/dataward/pkg/dataset"
	"github.com/ormasoftchile/dataward/pkg/finding"
)

// sampleCap bounds the number of offending row indices quoted in a
// finding message so messages stay finite on large datasets.
const sampleCap = 5

// StepNameSchema is the pipeline step name for schema validation.
const StepNameSchema = "schema_validation"

// Schema checks column presence, declared type compatibility and
// nullability of the dataset against the contract schema. Extra
// dataset columns are tolerated and reported as info findings.
func Schema(c *contract.Contract, ds *dataset.Dataset) *finding.StepResult {
	start := time.Now()
	res := &finding.StepResult{Name: StepNameSchema}

	for _, col := range c.Columns {
		if !ds.HasColumn(col.Name) {
			res.Findings = append(res.Findings, finding.Finding{
				Kind:     finding.KindSchema,
				Severity: finding.SeverityError,
				Code:     finding.CodeMissingColumn,
				Column:   col.Name,
				Message:  fmt.Sprintf("required column %q is missing from the dataset", col.Name),
			})
			continue
		}
		res.Findings = append(res.Findings, checkColumn(col.Name, col.Spec, ds)...)
	}

	declared := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		declared[col.Name] = true
	}
	for _, name := range ds.Columns() {
		if !declared[name] {
			res.Findings = append(res.Findings, finding.Finding{
				Kind:     finding.KindSchema,
				Severity: finding.SeverityInfo,
				Code:     finding.CodeUndeclaredColumn,
				Column:   name,
				Message:  fmt.Sprintf("dataset column %q is not declared in the contract", name),
			})
		}
	}

	res.Duration = time.Since(start)
	res.Finalize()
	return res
}

// checkColumn scans one present column for type mismatches and null
// violations, sampling offending row indices up to sampleCap.
func checkColumn(name string, spec contract.ColumnSpec, ds *dataset.Dataset) []finding.Finding {
	var badType, nulls []int
	badTypeCount, nullCount := 0, 0

	for i := 0; i < ds.Len(); i++ {
		v := ds.Row(i).Get(name)
		if v.IsNull() {
			if !spec.Nullable {
				nullCount++
				if len(nulls) < sampleCap {
					nulls = append(nulls, i)
				}
			}
			continue
		}
		if !Compatible(spec.Type, v) {
			badTypeCount++
			if len(badType) < sampleCap {
				badType = append(badType, i)
			}
		}
	}

	var out []finding.Finding
	if badTypeCount > 0 {
		out = append(out, finding.Finding{
			Kind:     finding.KindSchema,
			Severity: finding.SeverityError,
			Code:     finding.CodeTypeMismatch,
			Column:   name,
			Count:    badTypeCount,
			Message:  fmt.Sprintf("%d values are not compatible with type %s (sample rows %v)", badTypeCount, spec.Type, badType),
		})
	}
	if nullCount > 0 {
		out = append(out, finding.Finding{
			Kind:     finding.KindSchema,
			Severity: finding.SeverityError,
			Code:     finding.CodeNullViolation,
			Column:   name,
			Count:    nullCount,
			Message:  fmt.Sprintf("%d null values in non-nullable column (sample rows %v)", nullCount, nulls),
		})
	}
	return out
}

// Compatible reports whether a non-null value satisfies the declared
// column type: integer requires lossless integer representation, float
// any numeric, string any scalar, boolean the closed literal set, date
// the fixed ISO-8601 calendar format.
func Compatible(t contract.ColumnType, v dataset.Value) bool {
	switch t {
	case contract.TypeInteger:
		_, err := v.Int64()
		return err == nil
	case contract.TypeFloat:
		_, err := v.Float64()
		return err == nil
	case contract.TypeString:
		return true
	case contract.TypeBoolean:
		_, err := v.Bool()
		return err == nil
	case contract.TypeDate:
		_, err := v.Date()
		return err == nil
	default:
		return false
	}
}

// RowConforms reports whether a single row passes the schema rules for
// every declared column. Used for optional invalid-row filtering.
func RowConforms(c *contract.Contract, r dataset.Row) bool {
	for _, col := range c.Columns {
		v := r.Get(col.Name)
		if v.IsNull() {
			if !col.Spec.Nullable {
				return false
			}
			continue
		}
		if !Compatible(col.Spec.Type, v) {
			return false
		}
	}
	return true
}
