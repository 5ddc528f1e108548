package validate

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ormasoftchile/dataward/pkg/contract"
	"github.com/ormasoftchile/dataward/pkg/dataset"
	"github.com/ormasoftchile/dataward/pkg/finding"
)

// StepNameConstraints is the pipeline step name for constraint validation.
const StepNameConstraints = "constraint_validation"

// errUnknownRule marks a custom constraint whose rule key is not
// registered. Reported as constraint.unknown_rule, never as a crash —
// this is the designed extension point.
var errUnknownRule = errors.New("unknown custom rule")

// kindEvaluator evaluates one constraint over the dataset and returns
// the violation count plus a human-readable summary. Adding a
// constraint kind means registering a new entry in kindEvaluators, not
// editing a dispatcher.
type kindEvaluator func(con contract.Constraint, ds *dataset.Dataset, reg *Registry, batchSize int) (count int, msg string, err error)

var kindEvaluators = map[contract.ConstraintKind]kindEvaluator{
	contract.KindPattern:    evalPattern,
	contract.KindEnum:       evalEnum,
	contract.KindRange:      evalRange,
	contract.KindUniqueness: evalUniqueness,
	contract.KindCustom:     evalCustom,
}

// codeForKind maps constraint kinds to finding codes.
var codeForKind = map[contract.ConstraintKind]string{
	contract.KindPattern:    finding.CodePattern,
	contract.KindEnum:       finding.CodeEnum,
	contract.KindRange:      finding.CodeRange,
	contract.KindUniqueness: finding.CodeUniqueness,
	contract.KindCustom:     finding.CodeCustom,
}

// Constraints evaluates every constraint independently over the
// dataset. A fault inside one constraint's evaluation is converted to
// a constraint.eval_error finding and the remaining constraints still
// run (collect-and-continue, never fail-fast).
func Constraints(cons []contract.Constraint, ds *dataset.Dataset, reg *Registry, batchSize int) *finding.StepResult {
	start := time.Now()
	res := &finding.StepResult{Name: StepNameConstraints}
	if reg == nil {
		reg = NewRegistry()
	}

	for i, con := range cons {
		if f := evalOne(i, con, ds, reg, batchSize); f != nil {
			res.Findings = append(res.Findings, *f)
		}
	}

	res.Duration = time.Since(start)
	res.Finalize()
	return res
}

// evalOne evaluates a single constraint, recovering panics into
// eval_error findings.
func evalOne(idx int, con contract.Constraint, ds *dataset.Dataset, reg *Registry, batchSize int) (f *finding.Finding) {
	defer func() {
		if r := recover(); r != nil {
			f = &finding.Finding{
				Kind:     finding.KindConstraint,
				Severity: finding.SeverityError,
				Code:     finding.CodeEvalError,
				Column:   con.Column,
				Message:  fmt.Sprintf("constraint %d (%s) panicked during evaluation: %v", idx, con.Kind, r),
			}
		}
	}()

	eval, ok := kindEvaluators[con.Kind]
	if !ok {
		return &finding.Finding{
			Kind:     finding.KindConstraint,
			Severity: finding.SeverityError,
			Code:     finding.CodeEvalError,
			Column:   con.Column,
			Message:  fmt.Sprintf("no evaluator for constraint kind %q", con.Kind),
		}
	}

	count, msg, err := eval(con, ds, reg, batchSize)
	if errors.Is(err, errUnknownRule) {
		return &finding.Finding{
			Kind:     finding.KindConstraint,
			Severity: finding.SeverityError,
			Code:     finding.CodeUnknownRule,
			Column:   con.Column,
			Message:  err.Error(),
		}
	}
	if err != nil {
		return &finding.Finding{
			Kind:     finding.KindConstraint,
			Severity: finding.SeverityError,
			Code:     finding.CodeEvalError,
			Column:   con.Column,
			Message:  fmt.Sprintf("constraint %d (%s): %v", idx, con.Kind, err),
		}
	}
	if count == 0 {
		return nil
	}

	sev := finding.SeverityError
	if con.Severity == "warning" {
		sev = finding.SeverityWarning
	}
	return &finding.Finding{
		Kind:     finding.KindConstraint,
		Severity: sev,
		Code:     codeForKind[con.Kind],
		Column:   con.Column,
		Count:    count,
		Message:  msg,
	}
}

// eachValue walks the constraint's column batch by batch, applying the
// null-exemption policy, and calls check for each value in scope.
// Ordering is the dataset row order regardless of batch size.
func eachValue(con contract.Constraint, ds *dataset.Dataset, batchSize int, check func(i int, v dataset.Value, r dataset.Row)) {
	_ = ds.EachBatch(batchSize, func(start int, rows []dataset.Row) error {
		for j, r := range rows {
			v := r.Get(con.Column)
			if v.IsNull() && !con.AppliesToNull {
				continue
			}
			check(start+j, v, r)
		}
		return nil
	})
}

func evalPattern(con contract.Constraint, ds *dataset.Dataset, _ *Registry, batchSize int) (int, string, error) {
	// Full-match semantics: the whole value must match, not a substring.
	re, err := regexp.Compile(`\A(?:` + con.Pattern + `)\z`)
	if err != nil {
		return 0, "", fmt.Errorf("compile pattern %q: %w", con.Pattern, err)
	}
	count := 0
	var sample []int
	eachValue(con, ds, batchSize, func(i int, v dataset.Value, _ dataset.Row) {
		if !re.MatchString(v.Text()) {
			count++
			if len(sample) < sampleCap {
				sample = append(sample, i)
			}
		}
	})
	return count, fmt.Sprintf("%d values in column %q do not match pattern %q (sample rows %v)", count, con.Column, con.Pattern, sample), nil
}

func evalEnum(con contract.Constraint, ds *dataset.Dataset, _ *Registry, batchSize int) (int, string, error) {
	allowed := make(map[string]bool, len(con.Enum))
	for _, e := range con.Enum {
		allowed[e] = true
	}
	count := 0
	var sample []int
	eachValue(con, ds, batchSize, func(i int, v dataset.Value, _ dataset.Row) {
		if !allowed[v.Text()] {
			count++
			if len(sample) < sampleCap {
				sample = append(sample, i)
			}
		}
	})
	return count, fmt.Sprintf("%d values in column %q are not members of the allowed set (sample rows %v)", count, con.Column, sample), nil
}

func evalRange(con contract.Constraint, ds *dataset.Dataset, _ *Registry, batchSize int) (int, string, error) {
	if con.Range == nil {
		return 0, "", fmt.Errorf("range constraint on %q has no bounds", con.Column)
	}
	count := 0
	var sample []int
	eachValue(con, ds, batchSize, func(i int, v dataset.Value, _ dataset.Row) {
		n, err := v.Float64()
		inRange := err == nil &&
			(con.Range.Min == nil || n >= *con.Range.Min) &&
			(con.Range.Max == nil || n <= *con.Range.Max)
		if !inRange {
			count++
			if len(sample) < sampleCap {
				sample = append(sample, i)
			}
		}
	})
	return count, fmt.Sprintf("%d values in column %q fall outside %s (sample rows %v)", count, con.Column, rangeString(con.Range), sample), nil
}

func evalUniqueness(con contract.Constraint, ds *dataset.Dataset, _ *Registry, batchSize int) (int, string, error) {
	// Duplicate groups, not duplicate rows: three rows sharing one value
	// count as one group. Nulls never collide with each other.
	occurrences := make(map[string]int)
	_ = ds.EachBatch(batchSize, func(_ int, rows []dataset.Row) error {
		for _, r := range rows {
			v := r.Get(con.Column)
			if v.IsNull() {
				continue
			}
			occurrences[v.Text()]++
		}
		return nil
	})
	groups := 0
	for _, n := range occurrences {
		if n > 1 {
			groups++
		}
	}
	return groups, fmt.Sprintf("%d duplicate value groups in column %q", groups, con.Column), nil
}

func evalCustom(con contract.Constraint, ds *dataset.Dataset, reg *Registry, batchSize int) (int, string, error) {
	rule, name, err := reg.resolve(con)
	if err != nil {
		return 0, "", err
	}
	count := 0
	var sample []int
	var ruleErr error
	_ = ds.EachBatch(batchSize, func(start int, rows []dataset.Row) error {
		for j, r := range rows {
			if ruleErr != nil {
				return nil
			}
			v := r.Get(con.Column)
			ok, err := rule(con, v, r)
			if err != nil {
				ruleErr = fmt.Errorf("rule %q at row %d: %w", name, start+j, err)
				return nil
			}
			if !ok {
				count++
				if len(sample) < sampleCap {
					sample = append(sample, start+j)
				}
			}
		}
		return nil
	})
	if ruleErr != nil {
		return 0, "", ruleErr
	}
	return count, fmt.Sprintf("%d values in column %q violate custom rule %q (sample rows %v)", count, con.Column, name, sample), nil
}

func rangeString(r *contract.NumericRange) string {
	switch {
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf("[%v, %v]", *r.Min, *r.Max)
	case r.Min != nil:
		return fmt.Sprintf("[%v, +inf)", *r.Min)
	case r.Max != nil:
		return fmt.Sprintf("(-inf, %v]", *r.Max)
	default:
		return "(-inf, +inf)"
	}
}
