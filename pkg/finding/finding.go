// Package finding defines the validation outcome types shared by the
// schema validator, constraint validator, SLA enforcer and pipeline.
package finding

import (
	"fmt"
	"time"
)

// Kind identifies which stage of the pipeline produced a finding.
type Kind string

const (
	KindSchema     Kind = "schema"
	KindConstraint Kind = "constraint"
	KindSLA        Kind = "sla"
	KindPipeline   Kind = "pipeline"
)

// Severity classifies a finding. Only error-severity findings flip a
// step's success flag; warnings and infos are reported but non-fatal.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Machine-readable finding codes. Stable across releases — downstream
// consumers key alerting and dashboards off these strings.
const (
	CodeMissingColumn    = "schema.missing_column"
	CodeTypeMismatch     = "schema.type_mismatch"
	CodeNullViolation    = "schema.null_violation"
	CodeUndeclaredColumn = "schema.undeclared_column"

	CodePattern     = "constraint.pattern"
	CodeEnum        = "constraint.enum"
	CodeRange       = "constraint.range"
	CodeUniqueness  = "constraint.uniqueness"
	CodeCustom      = "constraint.custom"
	CodeUnknownRule = "constraint.unknown_rule"
	CodeEvalError   = "constraint.eval_error"

	CodeRowCount      = "sla.row_count"
	CodeCompleteness  = "sla.completeness"
	CodeUnknownMetric = "sla.unknown_metric"
	CodeThreshold     = "sla.threshold"

	CodeInternalError = "pipeline.internal_error"
)

// Finding is a single validation outcome with a machine-readable code.
// Findings are accumulated across stages and never discarded until the
// pipeline aggregates them into its result.
type Finding struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Column   string   `json:"column,omitempty"`
	Message  string   `json:"message"`
	Count    int      `json:"count,omitempty"` // violating values, duplicate groups, etc.
}

func (f Finding) String() string {
	if f.Column != "" {
		return fmt.Sprintf("[%s] %s (%s): %s", f.Severity, f.Code, f.Column, f.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Code, f.Message)
}

// StepResult is the outcome of one pipeline stage.
type StepResult struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Findings []Finding     `json:"findings,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Errors returns only the error-severity findings.
func (r *StepResult) Errors() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}

// HasCode reports whether any finding carries the given code.
func (r *StepResult) HasCode(code string) bool {
	for _, f := range r.Findings {
		if f.Code == code {
			return true
		}
	}
	return false
}

// Finalize sets Success from the accumulated findings: a step succeeds
// when it produced no error-severity finding.
func (r *StepResult) Finalize() {
	r.Success = len(r.Errors()) == 0
}
