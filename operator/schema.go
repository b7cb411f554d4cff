package operator

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
)

// Field declares one named input or output field of an operator contract.
type Field struct {
	Name     string    `yaml:"name" json:"name"`
	Type     FieldType `yaml:"type" json:"type"`
	Required bool      `yaml:"required" json:"required"`

	// Min and Max bound numeric fields. For object fields they bound every
	// numeric member (dial and weight maps).
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// Schema declares an operator's input and output contract. Schemas are data:
// the orchestrator validates against whatever is registered for the operator,
// so a new operator version is a schema registration, not a code change.
type Schema struct {
	Op      Op      `yaml:"operator" json:"operator"`
	Version string  `yaml:"version" json:"version"`
	Input   []Field `yaml:"input" json:"input"`
	Output  []Field `yaml:"output" json:"output"`
}

// SchemaRegistry holds the active schema per operator. Reads are concurrent;
// replacement (hot reload) takes the write lock.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[Op]*Schema
}

// NewSchemaRegistry returns a registry preloaded with the built-in contracts.
func NewSchemaRegistry() *SchemaRegistry {
	r := &SchemaRegistry{schemas: make(map[Op]*Schema)}
	for _, s := range defaultSchemas() {
		r.schemas[s.Op] = s
	}
	return r
}

// Get returns the schema for an operator, or nil.
func (r *SchemaRegistry) Get(op Op) *Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schemas[op]
}

// Register installs or replaces the schema for an operator.
func (r *SchemaRegistry) Register(s *Schema) error {
	switch s.Op {
	case OpExtract, OpResolve, OpWeight, OpLock, OpStyle, OpVerify, OpRewrite:
	default:
		return fmt.Errorf("unknown operator %q", s.Op)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Op] = s
	return nil
}

// LoadFile reads schema declarations from a YAML file and registers each one.
func (r *SchemaRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}
	var doc struct {
		Schemas []*Schema `yaml:"schemas"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse schema file: %w", err)
	}
	for _, s := range doc.Schemas {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// ValidateInput checks a caller-supplied payload against the operator's input
// contract. The returned error names the first failing field.
func (r *SchemaRegistry) ValidateInput(op Op, payload any) error {
	s := r.Get(op)
	if s == nil {
		return fmt.Errorf("no schema registered for %s", op)
	}
	return validateFields(op, "input", s.Input, payload)
}

// ValidateOutput checks an operator's own output against its output contract.
func (r *SchemaRegistry) ValidateOutput(op Op, payload any) error {
	s := r.Get(op)
	if s == nil {
		return fmt.Errorf("no schema registered for %s", op)
	}
	return validateFields(op, "output", s.Output, payload)
}

// validateFields checks field presence, types, and value ranges. Payload
// structs are flattened through their JSON form so validation follows the
// declared wire contract, not Go struct internals.
func validateFields(op Op, side string, fields []Field, payload any) error {
	if payload == nil {
		return fmt.Errorf("%s %s: payload is nil", op, side)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s %s: payload not serializable: %w", op, side, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("%s %s: payload is not an object: %w", op, side, err)
	}

	for _, f := range fields {
		v, present := m[f.Name]
		if !present || v == nil {
			if f.Required {
				return fmt.Errorf("%s %s: missing required field %q", op, side, f.Name)
			}
			continue
		}
		if err := checkType(f, v); err != nil {
			return fmt.Errorf("%s %s: field %q: %w", op, side, f.Name, err)
		}
	}
	return nil
}

func checkType(f Field, v any) error {
	switch f.Type {
	case FieldString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case FieldNumber:
		n, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected number, got %T", v)
		}
		return checkRange(f, n)
	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	case FieldObject:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
		if f.Min != nil || f.Max != nil {
			for k, member := range m {
				if n, isNum := member.(float64); isNum {
					if err := checkRange(f, n); err != nil {
						return fmt.Errorf("member %q: %w", k, err)
					}
				}
			}
		}
	case FieldArray:
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
	default:
		return fmt.Errorf("unknown field type %q", f.Type)
	}
	return nil
}

func checkRange(f Field, n float64) error {
	if f.Min != nil && n < *f.Min {
		return fmt.Errorf("value %g below minimum %g", n, *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return fmt.Errorf("value %g above maximum %g", n, *f.Max)
	}
	return nil
}

func ptr(f float64) *float64 { return &f }

// defaultSchemas declares the built-in v1 contracts for all seven operators.
func defaultSchemas() []*Schema {
	return []*Schema{
		{
			Op: OpExtract, Version: "v1",
			Input:  []Field{{Name: "text", Type: FieldString, Required: true}},
			Output: []Field{{Name: "candidates", Type: FieldObject, Required: true}},
		},
		{
			Op: OpResolve, Version: "v1",
			Input:  []Field{{Name: "candidates", Type: FieldObject, Required: true}},
			Output: []Field{{Name: "graph", Type: FieldObject, Required: true}},
		},
		{
			Op: OpWeight, Version: "v1",
			Input: []Field{
				{Name: "graph", Type: FieldObject, Required: true},
				{Name: "ontology_version", Type: FieldString},
			},
			Output: []Field{{Name: "graph", Type: FieldObject, Required: true}},
		},
		{
			Op: OpLock, Version: "v1",
			Input: []Field{
				{Name: "graph", Type: FieldObject, Required: true},
				{Name: "locks", Type: FieldObject, Required: true},
				{Name: "invariants", Type: FieldArray},
			},
			Output: []Field{{Name: "locked", Type: FieldObject, Required: true}},
		},
		{
			Op: OpStyle, Version: "v1",
			Input: []Field{
				{Name: "dials", Type: FieldObject, Required: true, Min: ptr(0), Max: ptr(1)},
				{Name: "style_targets", Type: FieldArray},
				{Name: "editor_brief", Type: FieldString},
			},
			Output: []Field{{Name: "signal", Type: FieldObject, Required: true}},
		},
		{
			Op: OpVerify, Version: "v1",
			Input: []Field{
				{Name: "draft", Type: FieldObject, Required: true},
				{Name: "locked", Type: FieldObject, Required: true},
				{Name: "editor_brief", Type: FieldString},
				{Name: "style_targets", Type: FieldArray},
			},
			Output: []Field{
				{Name: "violations", Type: FieldArray, Required: true},
				{Name: "metrics", Type: FieldArray},
			},
		},
		{
			Op: OpRewrite, Version: "v1",
			Input: []Field{
				{Name: "draft", Type: FieldObject, Required: true},
				{Name: "violations", Type: FieldArray, Required: true},
			},
			Output: []Field{{Name: "draft", Type: FieldObject, Required: true}},
		},
	}
}
