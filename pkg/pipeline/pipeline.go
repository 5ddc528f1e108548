// Package pipeline implements the validation pipeline orchestrator: a
// fixed-order state machine driving the schema validator, constraint
// validator and SLA enforcer over one dataset and aggregating a single
// result.
package pipeline

import (
	"fmt"
	"time"

	"github.com/ormasoftchile/dataward/pkg/contract"
	"github.com/ormasoftchile/dataward/pkg/dataset"
	"github.com/ormasoftchile/dataward/pkg/finding"
	"github.com/ormasoftchile/dataward/pkg/sla"
	"github.com/ormasoftchile/dataward/pkg/validate"
)

// State is the orchestrator's position in the fixed stage order.
type State string

const (
	StateInit        State = "INIT"
	StateSchema      State = "SCHEMA"
	StateConstraints State = "CONSTRAINTS"
	StateSLA         State = "SLA"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED" // fail-fast short-circuit
)

// Options configure one pipeline run.
type Options struct {
	// FailFast stops after the first stage reporting a non-recoverable
	// error. Default is to run every stage and aggregate all findings.
	FailFast bool

	// DropInvalidRows produces a filtered output dataset without the
	// rows that violate schema rules. Off by default — the output
	// dataset then equals the input.
	DropInvalidRows bool

	// BatchSize chunks constraint evaluation; <= 0 evaluates the whole
	// dataset as one batch. Finding order is identical either way.
	BatchSize int

	// CompletenessMode overrides the contract's completeness mode.
	CompletenessMode string

	// Rules supplies custom constraint evaluators; nil uses the
	// built-in registry.
	Rules *validate.Registry

	// Metrics supplies custom SLA metrics; nil uses the built-in
	// registry.
	Metrics *sla.MetricRegistry
}

// Result is the aggregated outcome of one pipeline run. Constructed
// once per run and immutable once returned.
type Result struct {
	Success    bool                  `json:"success"`
	State      State                 `json:"state"`
	Steps      []*finding.StepResult `json:"steps"`
	Metrics    sla.Snapshot          `json:"metrics"`
	InputRows  int                   `json:"input_rows"`
	OutputRows int                   `json:"output_rows"`
	StartedAt  time.Time             `json:"started_at"`
	Duration   time.Duration         `json:"duration_ns"`

	// Output is the derived dataset: the input itself unless row
	// filtering or transformations produced a new one.
	Output *dataset.Dataset `json:"-"`
}

// Findings flattens every step's findings in accumulation order.
func (r *Result) Findings() []finding.Finding {
	var out []finding.Finding
	for _, s := range r.Steps {
		out = append(out, s.Findings...)
	}
	return out
}

// Run validates the dataset against the contract. The contract's
// self-consistency is re-checked defensively; an inconsistent contract
// is the only condition that returns an error. Data-quality problems
// never error — they come back as findings on the Result. The input
// dataset is never mutated.
func Run(c *contract.Contract, ds *dataset.Dataset, opts Options) (*Result, error) {
	if err := c.CheckSelfConsistency(); err != nil {
		return nil, err
	}

	res := &Result{
		State:     StateInit,
		InputRows: ds.Len(),
		StartedAt: time.Now(),
	}

	// SCHEMA
	res.State = StateSchema
	schemaStep := capture(validate.StepNameSchema, func() *finding.StepResult {
		return validate.Schema(c, ds)
	})
	res.Steps = append(res.Steps, schemaStep)
	if opts.FailFast && nonRecoverable(schemaStep) {
		return finish(res, ds, c, opts, StateFailed), nil
	}

	// CONSTRAINTS
	res.State = StateConstraints
	conStep := capture(validate.StepNameConstraints, func() *finding.StepResult {
		return validate.Constraints(c.EffectiveConstraints(), ds, opts.Rules, opts.BatchSize)
	})
	res.Steps = append(res.Steps, conStep)
	if opts.FailFast && nonRecoverable(conStep) {
		return finish(res, ds, c, opts, StateFailed), nil
	}

	// SLA
	res.State = StateSLA
	var slaRes *sla.Result
	slaStep := capture(sla.StepName, func() *finding.StepResult {
		slaRes = sla.Enforce(c, ds, opts.Metrics, opts.CompletenessMode)
		return slaRes.Step
	})
	res.Steps = append(res.Steps, slaStep)
	if slaRes != nil {
		res.Metrics = slaRes.Metrics
	}

	return finish(res, ds, c, opts, StateDone), nil
}

// finish aggregates step successes, derives the output dataset and
// seals the result.
func finish(res *Result, ds *dataset.Dataset, c *contract.Contract, opts Options, terminal State) *Result {
	res.State = terminal
	res.Success = true
	for _, s := range res.Steps {
		res.Success = res.Success && s.Success
	}

	out := ds
	if opts.DropInvalidRows {
		out = ds.Filter(func(_ int, r dataset.Row) bool {
			return validate.RowConforms(c, r)
		})
	}
	if res.Success && len(c.Transformations) > 0 {
		out = applyTransformations(c.Transformations, out)
	}
	res.Output = out
	res.OutputRows = out.Len()
	res.Duration = time.Since(res.StartedAt)
	return res
}

// capture runs one stage, converting a panic into a failed step with a
// pipeline.internal_error finding so one stage's bug cannot abort the
// whole run.
func capture(name string, fn func() *finding.StepResult) (step *finding.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			step = &finding.StepResult{
				Name:    name,
				Success: false,
				Findings: []finding.Finding{{
					Kind:     finding.KindPipeline,
					Severity: finding.SeverityError,
					Code:     finding.CodeInternalError,
					Message:  fmt.Sprintf("stage %s failed internally: %v", name, r),
				}},
			}
		}
	}()
	return fn()
}

// nonRecoverable reports whether a step's failure makes later stages
// meaningless under fail-fast: a missing required column always does,
// as does an internal stage fault.
func nonRecoverable(step *finding.StepResult) bool {
	if step.Success {
		return false
	}
	return step.HasCode(finding.CodeMissingColumn) || step.HasCode(finding.CodeInternalError)
}
