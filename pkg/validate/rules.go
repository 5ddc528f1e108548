package validate

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ormasoftchile/dataward/pkg/contract"
	"github.com/ormasoftchile/dataward/pkg/dataset"
)

// Rule is a custom per-value check. It receives every value in the
// constraint's column, nulls included — null handling is the rule's
// own business (not_null would be useless otherwise). ok=false counts
// as a violation; a non-nil error aborts this constraint only.
type Rule func(con contract.Constraint, v dataset.Value, row dataset.Row) (ok bool, err error)

// Registry maps custom rule names to evaluators. The zero registry is
// not usable; NewRegistry pre-populates the built-in rules.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry returns a registry holding the built-in rules:
// not_null, min_value and max_value.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[string]Rule)}
	r.Register("not_null", ruleNotNull)
	r.Register("min_value", ruleMinValue)
	r.Register("max_value", ruleMaxValue)
	return r
}

// Register adds or replaces a named rule.
func (r *Registry) Register(name string, rule Rule) {
	r.rules[name] = rule
}

// resolve picks the evaluator for a custom constraint: an inline expr
// if declared, otherwise a registered rule by name. Unknown names
// return errUnknownRule.
func (r *Registry) resolve(con contract.Constraint) (Rule, string, error) {
	if con.Expr != "" {
		rule, err := exprRule(con.Expr)
		if err != nil {
			return nil, "", err
		}
		return rule, "expr:" + con.Expr, nil
	}
	rule, ok := r.rules[con.Rule]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", errUnknownRule, con.Rule)
	}
	return rule, con.Rule, nil
}

func ruleNotNull(_ contract.Constraint, v dataset.Value, _ dataset.Row) (bool, error) {
	return !v.IsNull(), nil
}

func ruleMinValue(con contract.Constraint, v dataset.Value, _ dataset.Row) (bool, error) {
	if con.Value == nil {
		return false, fmt.Errorf("min_value requires a value parameter")
	}
	if v.IsNull() {
		return true, nil
	}
	n, err := v.Float64()
	if err != nil {
		return false, nil // non-numeric cannot satisfy a numeric bound
	}
	return n >= *con.Value, nil
}

func ruleMaxValue(con contract.Constraint, v dataset.Value, _ dataset.Row) (bool, error) {
	if con.Value == nil {
		return false, fmt.Errorf("max_value requires a value parameter")
	}
	if v.IsNull() {
		return true, nil
	}
	n, err := v.Float64()
	if err != nil {
		return false, nil
	}
	return n <= *con.Value, nil
}

// exprRule compiles an inline expression into a Rule. The expression
// sees the cell as `value` (nil when null), its text rendering as
// `text`, a `null` flag, and the whole row as `row` (column → raw
// value). It must evaluate to a boolean; false is a violation. Null
// values are exempt unless applies_to_null is set, matching the
// built-in kinds.
func exprRule(src string) (Rule, error) {
	env := map[string]any{
		"value": any(nil),
		"text":  "",
		"null":  false,
		"row":   map[string]any{},
	}
	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expr %q: %w", src, err)
	}
	return func(con contract.Constraint, v dataset.Value, row dataset.Row) (bool, error) {
		if v.IsNull() && !con.AppliesToNull {
			return true, nil
		}
		out, err := runExpr(program, v, row)
		if err != nil {
			return false, fmt.Errorf("eval expr %q: %w", src, err)
		}
		return out, nil
	}, nil
}

func runExpr(program *vm.Program, v dataset.Value, row dataset.Row) (bool, error) {
	rowEnv := make(map[string]any, len(row))
	for col, cell := range row {
		rowEnv[col] = cell.Raw()
	}
	out, err := expr.Run(program, map[string]any{
		"value": v.Raw(),
		"text":  v.Text(),
		"null":  v.IsNull(),
		"row":   rowEnv,
	})
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return bool (got %T)", out)
	}
	return b, nil
}
