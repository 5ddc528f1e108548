// Package contract defines the Go types for the data contract YAML
// document and provides parsing, semantic validation and the
// self-consistency check enforced whenever a contract is constructed.
package contract

import (
	"fmt"
	"regexp"
)

// ColumnType is the closed set of declarable column types.
type ColumnType string

const (
	TypeInteger ColumnType = "integer"
	TypeFloat   ColumnType = "float"
	TypeString  ColumnType = "string"
	TypeBoolean ColumnType = "boolean"
	TypeDate    ColumnType = "date"
)

// Valid reports whether t is one of the declarable types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeInteger, TypeFloat, TypeString, TypeBoolean, TypeDate:
		return true
	}
	return false
}

// Numeric reports whether values of this type are ordered numbers.
func (t ColumnType) Numeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// NumericRange is an inclusive numeric interval. Either bound may be
// omitted to leave that side unbounded.
type NumericRange struct {
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// ColumnSpec declares the expectations for a single dataset column.
type ColumnSpec struct {
	Type     ColumnType    `yaml:"type"               json:"type"               jsonschema:"required,enum=integer,enum=float,enum=string,enum=boolean,enum=date"`
	Nullable bool          `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Pattern  string        `yaml:"pattern,omitempty"  json:"pattern,omitempty"`
	Enum     []string      `yaml:"enum,omitempty"     json:"enum,omitempty"`
	Range    *NumericRange `yaml:"range,omitempty"    json:"range,omitempty"`
	Default  *string       `yaml:"default,omitempty"  json:"default,omitempty"`
}

// Column pairs a column name with its spec. The contract keeps columns
// as an ordered slice so document order survives parsing.
type Column struct {
	Name string
	Spec ColumnSpec
}

// ConstraintKind tags the evaluation strategy for a constraint.
type ConstraintKind string

const (
	KindPattern    ConstraintKind = "pattern"
	KindEnum       ConstraintKind = "enum"
	KindRange      ConstraintKind = "range"
	KindUniqueness ConstraintKind = "uniqueness"
	KindCustom     ConstraintKind = "custom"
)

// Constraint is one per-column quality rule. Constructed at contract
// load time and read-only thereafter.
type Constraint struct {
	Kind   ConstraintKind `yaml:"kind"   json:"kind"   jsonschema:"required,enum=pattern,enum=enum,enum=range,enum=uniqueness,enum=custom"`
	Column string         `yaml:"column" json:"column" jsonschema:"required"`

	Pattern string        `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Enum    []string      `yaml:"enum,omitempty"    json:"enum,omitempty"`
	Range   *NumericRange `yaml:"range,omitempty"   json:"range,omitempty"`

	// Rule names a registered custom evaluator; Expr is an inline
	// expression rule evaluated per value. Exactly one of the two is
	// meaningful for kind: custom.
	Rule  string   `yaml:"rule,omitempty"  json:"rule,omitempty"`
	Expr  string   `yaml:"expr,omitempty"  json:"expr,omitempty"`
	Value *float64 `yaml:"value,omitempty" json:"value,omitempty"`

	// AppliesToNull opts null values into pattern/enum/range/custom
	// evaluation. Default is exemption — nullability is the schema
	// validator's concern.
	AppliesToNull bool `yaml:"applies_to_null,omitempty" json:"applies_to_null,omitempty"`

	// Severity downgrades the constraint to advisory ("warning"); empty
	// means "error".
	Severity string `yaml:"severity,omitempty" json:"severity,omitempty" jsonschema:"enum=error,enum=warning"`
}

// Completeness modes for the SLA completeness ratio.
const (
	CompletenessWholeRow  = "whole_row"
	CompletenessPerColumn = "per_column"
)

// SLARule holds the dataset-level service levels. Named custom
// thresholds are preserved verbatim in Custom and resolved against the
// enforcer's metric registry at run time.
type SLARule struct {
	MinRows               int64              `yaml:"min_rows,omitempty"               json:"min_rows,omitempty"`
	MaxRows               *int64             `yaml:"max_rows,omitempty"               json:"max_rows,omitempty"`
	CompletenessThreshold *float64           `yaml:"completeness_threshold,omitempty" json:"completeness_threshold,omitempty"`
	CompletenessMode      string             `yaml:"completeness_mode,omitempty"      json:"completeness_mode,omitempty" jsonschema:"enum=whole_row,enum=per_column"`
	Custom                map[string]float64 `yaml:"-" json:"custom,omitempty"`
}

// Transformation is one post-validation dataset transformation applied
// in declaration order to the output dataset.
type Transformation struct {
	Op     string `yaml:"op"           json:"op"     jsonschema:"required,enum=rename_column,enum=drop_column,enum=uppercase,enum=lowercase,enum=trim"`
	Column string `yaml:"column"       json:"column" jsonschema:"required"`
	To     string `yaml:"to,omitempty" json:"to,omitempty"`
}

// Contract is the immutable in-memory representation of a parsed data
// contract. The pipeline never mutates it; one Contract may serve many
// concurrent validation runs.
type Contract struct {
	Name            string
	Version         string
	SourcePath      string
	TargetPath      string
	Columns         []Column
	Constraints     []Constraint
	SLA             SLARule
	Transformations []Transformation

	// Extensions preserves unknown top-level document fields so new
	// contract keys survive a load/store round trip without core changes.
	Extensions map[string]any
}

// Column returns the spec for a declared column.
func (c *Contract) Column(name string) (ColumnSpec, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col.Spec, true
		}
	}
	return ColumnSpec{}, false
}

// ColumnNames returns the declared column names in document order.
func (c *Contract) ColumnNames() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}
	return names
}

// EffectiveConstraints folds column-level pattern/enum/range specs into
// constraint records and appends the explicit constraints list. A
// column spec shorthand and a standalone constraint are evaluated the
// same way; column-derived constraints come first, in column order.
func (c *Contract) EffectiveConstraints() []Constraint {
	var out []Constraint
	for _, col := range c.Columns {
		if col.Spec.Pattern != "" {
			out = append(out, Constraint{Kind: KindPattern, Column: col.Name, Pattern: col.Spec.Pattern})
		}
		if len(col.Spec.Enum) > 0 {
			out = append(out, Constraint{Kind: KindEnum, Column: col.Name, Enum: col.Spec.Enum})
		}
		if col.Spec.Range != nil {
			out = append(out, Constraint{Kind: KindRange, Column: col.Name, Range: col.Spec.Range})
		}
	}
	return append(out, c.Constraints...)
}

// Problem is a single contract validation problem with location context.
type Problem struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (p *Problem) Error() string {
	return fmt.Sprintf("[%s] %s: %s", p.Phase, p.Path, p.Message)
}

// ContractError reports a malformed or self-inconsistent contract. It
// is the only error allowed to abort before a pipeline run starts.
type ContractError struct {
	Problems []*Problem
}

func (e *ContractError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid contract: %s", e.Problems[0].Error())
	}
	return fmt.Sprintf("invalid contract: %d problems, first: %s", len(e.Problems), e.Problems[0].Error())
}

// CheckSelfConsistency enforces the contract's structural invariants:
// constraints must reference declared columns, SLA bounds must not be
// inverted, and a non-nullable column must not declare a null-implying
// default. Returns a *ContractError accumulating every violation, or
// nil when the contract is consistent. Warnings (e.g. a range spec on a
// string column) do not fail the check; DomainProblems exposes them.
func (c *Contract) CheckSelfConsistency() error {
	var errs []*Problem
	for _, p := range c.DomainProblems() {
		if p.Severity == "error" {
			errs = append(errs, p)
		}
	}
	if len(errs) > 0 {
		return &ContractError{Problems: errs}
	}
	return nil
}

// DomainProblems runs the domain-rule checks and returns every problem
// found, warnings included.
func (c *Contract) DomainProblems() []*Problem {
	var probs []*Problem
	errf := func(path, format string, args ...any) {
		probs = append(probs, &Problem{Phase: "domain", Path: path, Message: fmt.Sprintf(format, args...), Severity: "error"})
	}
	warnf := func(path, format string, args ...any) {
		probs = append(probs, &Problem{Phase: "domain", Path: path, Message: fmt.Sprintf(format, args...), Severity: "warning"})
	}

	if c.Name == "" {
		errf("name", "contract name is required")
	}

	seen := map[string]bool{}
	for i, col := range c.Columns {
		path := fmt.Sprintf("schema.columns.%s", col.Name)
		if seen[col.Name] {
			errf(path, "duplicate column %q", col.Name)
		}
		seen[col.Name] = true

		spec := col.Spec
		if !spec.Type.Valid() {
			errf(path+".type", "unknown column type %q", spec.Type)
		}
		if spec.Pattern != "" {
			if _, err := regexp.Compile(spec.Pattern); err != nil {
				errf(path+".pattern", "invalid pattern: %v", err)
			}
			if spec.Type != TypeString {
				warnf(path+".pattern", "pattern on %s column has no effect", spec.Type)
			}
		}
		if spec.Range != nil {
			if !spec.Type.Numeric() {
				warnf(path+".range", "range on %s column has no effect", spec.Type)
			}
			if spec.Range.Min != nil && spec.Range.Max != nil && *spec.Range.Min > *spec.Range.Max {
				errf(path+".range", "min %v exceeds max %v", *spec.Range.Min, *spec.Range.Max)
			}
		}
		if !spec.Nullable && spec.Default != nil && *spec.Default == "" {
			errf(path, "column is not nullable but declares a default implying nulls")
		}
		_ = i
	}

	for i, con := range c.Constraints {
		path := fmt.Sprintf("constraints[%d]", i)
		if _, ok := c.Column(con.Column); !ok {
			errf(path+".column", "constraint references unknown column %q", con.Column)
		}
		switch con.Kind {
		case KindPattern:
			if con.Pattern == "" {
				errf(path+".pattern", "pattern constraint requires a pattern")
			} else if _, err := regexp.Compile(con.Pattern); err != nil {
				errf(path+".pattern", "invalid pattern: %v", err)
			}
		case KindEnum:
			if len(con.Enum) == 0 {
				errf(path+".enum", "enum constraint requires allowed values")
			}
		case KindRange:
			if con.Range == nil || (con.Range.Min == nil && con.Range.Max == nil) {
				errf(path+".range", "range constraint requires at least one bound")
			} else if con.Range.Min != nil && con.Range.Max != nil && *con.Range.Min > *con.Range.Max {
				errf(path+".range", "min %v exceeds max %v", *con.Range.Min, *con.Range.Max)
			}
		case KindUniqueness:
			// no parameters
		case KindCustom:
			if con.Rule == "" && con.Expr == "" {
				errf(path, "custom constraint requires a rule name or an expr")
			}
		default:
			errf(path+".kind", "unknown constraint kind %q", con.Kind)
		}
		if con.Severity != "" && con.Severity != "error" && con.Severity != "warning" {
			errf(path+".severity", "severity must be error or warning, got %q", con.Severity)
		}
	}

	if c.SLA.MinRows < 0 {
		errf("sla.min_rows", "min_rows must be >= 0, got %d", c.SLA.MinRows)
	}
	if c.SLA.MaxRows != nil && *c.SLA.MaxRows < c.SLA.MinRows {
		errf("sla", "min_rows %d exceeds max_rows %d", c.SLA.MinRows, *c.SLA.MaxRows)
	}
	if t := c.SLA.CompletenessThreshold; t != nil && (*t < 0 || *t > 1) {
		errf("sla.completeness_threshold", "threshold must be within [0,1], got %v", *t)
	}
	if m := c.SLA.CompletenessMode; m != "" && m != CompletenessWholeRow && m != CompletenessPerColumn {
		errf("sla.completeness_mode", "mode must be %s or %s, got %q", CompletenessWholeRow, CompletenessPerColumn, m)
	}

	for i, tr := range c.Transformations {
		path := fmt.Sprintf("transformations[%d]", i)
		switch tr.Op {
		case "rename_column":
			if tr.To == "" {
				errf(path+".to", "rename_column requires a to name")
			}
		case "drop_column", "uppercase", "lowercase", "trim":
			// column-only ops
		default:
			errf(path+".op", "unknown transformation op %q", tr.Op)
		}
		if _, ok := c.Column(tr.Column); !ok {
			warnf(path+".column", "transformation targets undeclared column %q", tr.Column)
		}
	}

	return probs
}
