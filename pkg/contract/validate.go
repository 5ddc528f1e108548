package contract

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// ValidateFile performs the full 3-phase validation pipeline on a
// contract file.
// Phase 1: Structural (YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (self-consistency rules)
func ValidateFile(path string) (*Contract, []*Problem) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []*Problem{{
			Phase:    "structural",
			Path:     "",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return ValidateBytes(data)
}

// ValidateBytes runs all three validation phases over contract YAML and
// returns every problem found. The parsed contract is returned whenever
// phase 1 succeeds, even if later phases report problems.
func ValidateBytes(data []byte) (*Contract, []*Problem) {
	var allProblems []*Problem

	// Phase 1: Structural — YAML decode
	c, err := Parse(data)
	if err != nil {
		allProblems = append(allProblems, &Problem{
			Phase:    "structural",
			Path:     "",
			Message:  err.Error(),
			Severity: "error",
		})
		return nil, allProblems
	}

	// Phase 2: Semantic — JSON Schema validation of the raw document
	allProblems = append(allProblems, validateSemantic(data)...)

	// Phase 3: Domain — self-consistency rules
	allProblems = append(allProblems, c.DomainProblems()...)

	return c, allProblems
}

// validateSemantic validates the raw YAML document against the
// generated contract JSON Schema.
func validateSemantic(data []byte) []*Problem {
	semErr := func(format string, args ...any) []*Problem {
		return []*Problem{{
			Phase:    "semantic",
			Path:     "",
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		}}
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return semErr("decode document: %v", err)
	}
	// Route through JSON so the instance uses JSON-native types.
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return semErr("marshal document: %v", err)
	}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return semErr("unmarshal document: %v", err)
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semErr("generate schema: %v", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semErr("unmarshal schema: %v", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("contract-v1.json", schemaDoc); err != nil {
		return semErr("add schema resource: %v", err)
	}
	sch, err := c.Compile("contract-v1.json")
	if err != nil {
		return semErr("compile schema: %v", err)
	}

	if err := sch.Validate(doc); err != nil {
		var probs []*Problem
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				probs = append(probs, &Problem{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			probs = append(probs, &Problem{
				Phase:    "semantic",
				Path:     "",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return probs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
