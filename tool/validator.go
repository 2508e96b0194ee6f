package tool

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// Validator checks decoded tool arguments against a tool's schema
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError lists every problem found in a set of arguments. The
// message is written for the model, which reads it as a failed tool result.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid arguments: " + strings.Join(e.Problems, "; ")
}

// Is reports whether the target matches this error type.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArguments
}

// ValidateInput validates raw JSON input against a tool's schema
func (v *Validator) ValidateInput(schema ToolSchema, input json.RawMessage) error {
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("input is not a JSON object: %v", err)}}
	}
	return v.ValidateArguments(schema, args)
}

// ValidateArguments validates decoded arguments against a tool's schema
func (v *Validator) ValidateArguments(schema ToolSchema, args map[string]any) error {
	if schema.Type != "object" {
		return fmt.Errorf("schema type must be 'object', got '%s'", schema.Type)
	}

	var problems []string
	for _, required := range schema.Required {
		if _, exists := args[required]; !exists {
			problems = append(problems, fmt.Sprintf("missing required field '%s'", required))
		}
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		value, exists := args[name]
		if !exists {
			continue
		}
		problems = v.checkProperty(name, schema.Properties[name], value, problems)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (v *Validator) checkProperty(name string, def PropertyDef, value any, problems []string) []string {
	if value == nil {
		return problems
	}

	if problem := checkType(name, def.Type, value); problem != "" {
		return append(problems, problem)
	}

	if len(def.Enum) > 0 {
		s, ok := value.(string)
		if !ok || !slices.Contains(def.Enum, s) {
			problems = append(problems, fmt.Sprintf("field '%s': value %v not in allowed values %v", name, value, def.Enum))
		}
	}

	switch def.Type {
	case "number", "integer":
		n, _ := value.(float64)
		if def.Minimum != nil && n < *def.Minimum {
			problems = append(problems, fmt.Sprintf("field '%s': value %v is less than minimum %v", name, n, *def.Minimum))
		}
		if def.Maximum != nil && n > *def.Maximum {
			problems = append(problems, fmt.Sprintf("field '%s': value %v exceeds maximum %v", name, n, *def.Maximum))
		}

	case "string":
		length := utf8.RuneCountInString(value.(string))
		if def.MinLength != nil && length < *def.MinLength {
			problems = append(problems, fmt.Sprintf("field '%s': length %d is less than minimum %d", name, length, *def.MinLength))
		}
		if def.MaxLength != nil && length > *def.MaxLength {
			problems = append(problems, fmt.Sprintf("field '%s': length %d exceeds maximum %d", name, length, *def.MaxLength))
		}

	case "array":
		if def.Items != nil {
			for i, item := range value.([]any) {
				problems = v.checkProperty(fmt.Sprintf("%s[%d]", name, i), *def.Items, item, problems)
			}
		}

	case "object":
		obj := value.(map[string]any)
		for propName, propDef := range def.Properties {
			if propVal, exists := obj[propName]; exists {
				problems = v.checkProperty(name+"."+propName, propDef, propVal, problems)
			}
		}
	}

	return problems
}

// checkType returns a problem description, or "" when value matches.
// Values are expected in encoding/json's decoded form.
func checkType(name string, expected string, value any) string {
	ok := true
	switch expected {
	case "string":
		_, ok = value.(string)
	case "number":
		_, ok = value.(float64)
	case "integer":
		f, isNum := value.(float64)
		ok = isNum && f == float64(int64(f))
	case "boolean":
		_, ok = value.(bool)
	case "array":
		_, ok = value.([]any)
	case "object":
		_, ok = value.(map[string]any)
	}
	if ok {
		return ""
	}
	return fmt.Sprintf("field '%s': expected %s, got %s", name, expected, jsonTypeName(value))
}

func jsonTypeName(value any) string {
	switch v := value.(type) {
	case string:
		return "string"
	case float64:
		if v == float64(int64(v)) {
			return "integer"
		}
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
