package contract

import (
	"testing"
)

const sampleYAML = `
name: customers
version: "1.2"
source_path: examples/customers.csv
target_path: output/customers_validated.csv
schema:
  columns:
    id:
      type: integer
      nullable: false
    email:
      type: string
      nullable: false
      pattern: ".+@.+"
    country:
      type: string
      nullable: true
      enum: [US, CA, MX]
    age:
      type: integer
      nullable: true
      range: {min: 0, max: 150}
constraints:
  - kind: uniqueness
    column: id
  - kind: enum
    column: country
    enum: [US, CA, MX]
sla:
  min_rows: 1
  max_rows: 1000000
  completeness_threshold: 0.95
  freshness_score: 0.9
transformations:
  - op: trim
    column: email
`

func TestParseSample(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Name != "customers" || c.Version != "1.2" {
		t.Errorf("identity = %q v%q", c.Name, c.Version)
	}
	if c.SourcePath != "examples/customers.csv" {
		t.Errorf("SourcePath = %q", c.SourcePath)
	}

	// Column order must follow the document.
	want := []string{"id", "email", "country", "age"}
	got := c.ColumnNames()
	if len(got) != len(want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	age, _ := c.Column("age")
	if age.Range == nil || *age.Range.Min != 0 || *age.Range.Max != 150 {
		t.Errorf("age range = %+v", age.Range)
	}
	if len(c.Constraints) != 2 {
		t.Errorf("constraints = %d, want 2", len(c.Constraints))
	}
	if c.SLA.MinRows != 1 || c.SLA.MaxRows == nil || *c.SLA.MaxRows != 1000000 {
		t.Errorf("sla rows = %d..%v", c.SLA.MinRows, c.SLA.MaxRows)
	}
	if c.SLA.CompletenessThreshold == nil || *c.SLA.CompletenessThreshold != 0.95 {
		t.Errorf("completeness threshold = %v", c.SLA.CompletenessThreshold)
	}
	// Unknown sla keys become named custom thresholds.
	if c.SLA.Custom["freshness_score"] != 0.9 {
		t.Errorf("custom thresholds = %v", c.SLA.Custom)
	}
	if len(c.Transformations) != 1 || c.Transformations[0].Op != "trim" {
		t.Errorf("transformations = %+v", c.Transformations)
	}

	if err := c.CheckSelfConsistency(); err != nil {
		t.Errorf("sample contract should be consistent: %v", err)
	}
}

// TestLegacyS3PathKeys checks the legacy source_s3_path/target_s3_path
// keys still load, and that the new keys win when both are present.
func TestLegacyS3PathKeys(t *testing.T) {
	c, err := Parse([]byte(`
name: legacy
schema:
  columns:
    id: {type: integer}
source_s3_path: s3://bucket/in.csv
target_s3_path: s3://bucket/out.csv
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.SourcePath != "s3://bucket/in.csv" || c.TargetPath != "s3://bucket/out.csv" {
		t.Errorf("legacy paths = %q, %q", c.SourcePath, c.TargetPath)
	}

	c, err = Parse([]byte(`
name: both
schema:
  columns:
    id: {type: integer}
source_s3_path: s3://bucket/old.csv
source_path: local/new.csv
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.SourcePath != "local/new.csv" {
		t.Errorf("source_path should supersede legacy key, got %q", c.SourcePath)
	}
}

// TestUnknownTopLevelFieldsPreserved checks forward-compatible fields
// survive in Extensions instead of being dropped.
func TestUnknownTopLevelFieldsPreserved(t *testing.T) {
	c, err := Parse([]byte(`
name: forward
schema:
  columns:
    id: {type: integer}
owner_team: data-platform
labels:
  tier: gold
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Extensions["owner_team"] != "data-platform" {
		t.Errorf("Extensions = %v", c.Extensions)
	}
	labels, ok := c.Extensions["labels"].(map[string]any)
	if !ok || labels["tier"] != "gold" {
		t.Errorf("labels extension = %v", c.Extensions["labels"])
	}
}

func TestNonNumericCustomThreshold(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
schema:
  columns:
    id: {type: integer}
sla:
  freshness: very
`))
	if err == nil {
		t.Fatal("expected error for non-numeric custom threshold")
	}
}

func TestParseNotAMapping(t *testing.T) {
	if _, err := Parse([]byte(`[1, 2, 3]`)); err == nil {
		t.Fatal("expected error for non-mapping document")
	}
}

// TestValidateBytesPhases checks the three-phase validator reports
// structural, semantic and domain problems.
func TestValidateBytesPhases(t *testing.T) {
	// Structural: broken YAML.
	if _, probs := ValidateBytes([]byte("name: [unclosed")); len(probs) == 0 || probs[0].Phase != "structural" {
		t.Errorf("expected structural problem, got %v", probs)
	}

	// Semantic: constraint missing its required column field.
	_, probs := ValidateBytes([]byte(`
name: semantic
schema:
  columns:
    id: {type: integer}
constraints:
  - kind: uniqueness
`))
	foundSemantic := false
	for _, p := range probs {
		if p.Phase == "semantic" {
			foundSemantic = true
		}
	}
	if !foundSemantic {
		t.Errorf("expected semantic problem, got %v", probs)
	}

	// Domain: constraint against a missing column.
	_, probs = ValidateBytes([]byte(`
name: domain
schema:
  columns:
    id: {type: integer}
constraints:
  - kind: uniqueness
    column: ghost
`))
	foundDomain := false
	for _, p := range probs {
		if p.Phase == "domain" {
			foundDomain = true
		}
	}
	if !foundDomain {
		t.Errorf("expected domain problem, got %v", probs)
	}
}

func TestParseAndVerify(t *testing.T) {
	if _, err := ParseAndVerify([]byte(sampleYAML)); err != nil {
		t.Fatalf("ParseAndVerify(sample): %v", err)
	}
	_, err := ParseAndVerify([]byte(`
name: broken
schema:
  columns:
    id: {type: integer}
sla:
  min_rows: 10
  max_rows: 1
`))
	if err == nil {
		t.Fatal("expected ContractError")
	}
	if _, ok := err.(*ContractError); !ok {
		t.Errorf("expected *ContractError, got %T", err)
	}
}
