package contract

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and structurally parses a contract YAML file.
func LoadFile(path string) (*Contract, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open contract: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load structurally parses a contract from an io.Reader.
func Load(r io.Reader) (*Contract, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read contract: %w", err)
	}
	return Parse(data)
}

// Parse decodes contract YAML. Parsing is structural only — callers
// that accept contracts from the outside follow up with ParseAndVerify
// or CheckSelfConsistency.
func Parse(data []byte) (*Contract, error) {
	var c Contract
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}
	return &c, nil
}

// ParseAndVerify decodes contract YAML and enforces the full contract
// invariant set (structural decode, JSON Schema semantic validation,
// self-consistency). Any failure surfaces as a *ContractError.
func ParseAndVerify(data []byte) (*Contract, error) {
	c, probs := ValidateBytes(data)
	var errs []*Problem
	for _, p := range probs {
		if p.Severity == "error" {
			errs = append(errs, p)
		}
	}
	if len(errs) > 0 {
		return nil, &ContractError{Problems: errs}
	}
	return c, nil
}

// UnmarshalYAML decodes the top-level contract document. Column order
// inside schema.columns is preserved; unknown top-level keys are kept
// in Extensions; the legacy source_s3_path/target_s3_path keys are
// accepted but superseded by source_path/target_path.
func (c *Contract) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("contract document must be a mapping, got %s", nodeKind(node))
	}

	var legacySource, legacyTarget string
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		var err error
		switch key {
		case "name":
			err = val.Decode(&c.Name)
		case "version":
			err = val.Decode(&c.Version)
		case "source_path":
			err = val.Decode(&c.SourcePath)
		case "target_path":
			err = val.Decode(&c.TargetPath)
		case "source_s3_path":
			err = val.Decode(&legacySource)
		case "target_s3_path":
			err = val.Decode(&legacyTarget)
		case "schema":
			err = decodeSchema(val, c)
		case "constraints":
			err = val.Decode(&c.Constraints)
		case "sla":
			err = val.Decode(&c.SLA)
		case "transformations":
			err = val.Decode(&c.Transformations)
		default:
			var v any
			if err = val.Decode(&v); err == nil {
				if c.Extensions == nil {
					c.Extensions = make(map[string]any)
				}
				c.Extensions[key] = v
			}
		}
		if err != nil {
			return fmt.Errorf("contract field %q: %w", key, err)
		}
	}

	if c.SourcePath == "" {
		c.SourcePath = legacySource
	}
	if c.TargetPath == "" {
		c.TargetPath = legacyTarget
	}
	return nil
}

// decodeSchema reads the schema section, walking the columns mapping in
// document order.
func decodeSchema(node *yaml.Node, c *Contract) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("must be a mapping, got %s", nodeKind(node))
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		if key != "columns" {
			return fmt.Errorf("unknown field %q", key)
		}
		if val.Kind != yaml.MappingNode {
			return fmt.Errorf("columns must be a mapping, got %s", nodeKind(val))
		}
		for j := 0; j+1 < len(val.Content); j += 2 {
			name := val.Content[j].Value
			var spec ColumnSpec
			if err := val.Content[j+1].Decode(&spec); err != nil {
				return fmt.Errorf("column %q: %w", name, err)
			}
			c.Columns = append(c.Columns, Column{Name: name, Spec: spec})
		}
	}
	return nil
}

// UnmarshalYAML decodes the sla section. Keys beyond the built-in rule
// fields are custom thresholds and must be numeric; they are preserved
// in Custom for the metric registry to resolve at run time.
func (s *SLARule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("must be a mapping, got %s", nodeKind(node))
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		var err error
		switch key {
		case "min_rows":
			err = val.Decode(&s.MinRows)
		case "max_rows":
			err = val.Decode(&s.MaxRows)
		case "completeness_threshold":
			err = val.Decode(&s.CompletenessThreshold)
		case "completeness_mode":
			err = val.Decode(&s.CompletenessMode)
		default:
			var f float64
			if err = val.Decode(&f); err != nil {
				return fmt.Errorf("%s: custom threshold must be numeric: %w", key, err)
			}
			if s.Custom == nil {
				s.Custom = make(map[string]float64)
			}
			s.Custom[key] = f
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	default:
		return "document"
	}
}
