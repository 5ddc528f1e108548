package contract

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// contractDoc mirrors the contract YAML wire shape for JSON Schema
// generation. The runtime Contract type keeps columns ordered and folds
// legacy path keys, so the reflected document shape lives here instead.
type contractDoc struct {
	Name            string           `json:"name" jsonschema:"required"`
	Version         string           `json:"version,omitempty"`
	SourcePath      string           `json:"source_path,omitempty"`
	TargetPath      string           `json:"target_path,omitempty"`
	SourceS3Path    string           `json:"source_s3_path,omitempty"`
	TargetS3Path    string           `json:"target_s3_path,omitempty"`
	Schema          schemaDoc        `json:"schema" jsonschema:"required"`
	Constraints     []Constraint     `json:"constraints,omitempty"`
	SLA             map[string]any   `json:"sla,omitempty"`
	Transformations []Transformation `json:"transformations,omitempty"`
}

type schemaDoc struct {
	Columns map[string]ColumnSpec `json:"columns" jsonschema:"required"`
}

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document for
// contract YAML files using invopop/jsonschema. Additional properties
// are allowed so forward-compatible extension fields validate cleanly.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false
	r.AllowAdditionalProperties = true

	s := r.Reflect(&contractDoc{})
	s.ID = "https://github.com/ormasoftchile/dataward/schemas/contract-v1.json"
	s.Title = "Data Contract v1"
	s.Description = "Schema for dataward data contract YAML documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
