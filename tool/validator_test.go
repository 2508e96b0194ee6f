package tool

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidator_ValidateInput(t *testing.T) {
	validator := NewValidator()

	object := func(required []string, props map[string]PropertyDef) ToolSchema {
		return ToolSchema{Type: "object", Properties: props, Required: required}
	}
	searchSchema := object([]string{"query"}, map[string]PropertyDef{
		"query": {Type: "string", MinLength: intPtr(1), MaxLength: intPtr(8)},
		"top_k": {Type: "integer", Minimum: ptr(1), Maximum: ptr(20)},
		"scope": {Type: "string", Enum: []string{"docs", "web"}},
	})

	tests := []struct {
		name    string
		schema  ToolSchema
		input   string
		wantErr bool
	}{
		{"valid", searchSchema, `{"query":"wiggle","top_k":5,"scope":"docs"}`, false},
		{"missing required", searchSchema, `{"top_k":5}`, true},
		{"wrong type", searchSchema, `{"query":123}`, true},
		{"enum miss", searchSchema, `{"query":"x","scope":"mail"}`, true},
		{"below minimum", searchSchema, `{"query":"x","top_k":0}`, true},
		{"above maximum", searchSchema, `{"query":"x","top_k":21}`, true},
		{"integer given float", searchSchema, `{"query":"x","top_k":2.5}`, true},
		{"string too short", searchSchema, `{"query":""}`, true},
		{"string too long", searchSchema, `{"query":"expression"}`, true},
		{"length counts characters", searchSchema, `{"query":"ñññññññ"}`, false},
		{"null optional is ok", searchSchema, `{"query":"x","scope":null}`, false},
		{"invalid json", searchSchema, `{query}`, true},
		{
			"array items",
			object(nil, map[string]PropertyDef{"layers": {Type: "array", Items: &PropertyDef{Type: "string"}}}),
			`{"layers":["Shape 1",2]}`,
			true,
		},
		{
			"boolean",
			object(nil, map[string]PropertyDef{"solo": {Type: "boolean"}}),
			`{"solo":"yes"}`,
			true,
		},
		{
			"nested object",
			object(nil, map[string]PropertyDef{"layer": {Type: "object", Properties: map[string]PropertyDef{
				"opacity": {Type: "number", Minimum: ptr(0), Maximum: ptr(100)},
			}}}),
			`{"layer":{"opacity":140}}`,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateInput(tt.schema, json.RawMessage(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInput() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArguments) {
				t.Errorf("expected ErrInvalidArguments, got %v", err)
			}
		})
	}
}

func TestValidator_ReportsEveryProblem(t *testing.T) {
	schema := ToolSchema{
		Type: "object",
		Properties: map[string]PropertyDef{
			"query": {Type: "string"},
			"top_k": {Type: "integer"},
		},
		Required: []string{"query", "source"},
	}

	err := NewValidator().ValidateArguments(schema, map[string]any{"top_k": "three"})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Problems) != 3 {
		t.Fatalf("expected 3 problems, got %v", verr.Problems)
	}
	for _, want := range []string{"'query'", "'source'", "expected integer, got string"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err.Error(), want)
		}
	}
}

func TestValidator_InvalidSchemaType(t *testing.T) {
	err := NewValidator().ValidateArguments(ToolSchema{Type: "array"}, map[string]any{})
	if err == nil {
		t.Error("expected error for non-object schema type")
	}
}

func ptr(f float64) *float64 {
	return &f
}

func intPtr(i int) *int {
	return &i
}
