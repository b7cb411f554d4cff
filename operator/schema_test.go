package operator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/graph"
)

func TestSchemaRegistryDefaults(t *testing.T) {
	r := NewSchemaRegistry()
	for _, op := range Ops() {
		s := r.Get(op)
		require.NotNil(t, s, "missing default schema for %s", op)
		assert.Equal(t, "v1", s.Version)
	}
}

func TestValidateInputMissingRequired(t *testing.T) {
	r := NewSchemaRegistry()

	err := r.ValidateInput(OpExtract, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "text"`)

	assert.NoError(t, r.ValidateInput(OpExtract, ExtractInput{Text: "hello"}))
}

func TestValidateInputTypeMismatch(t *testing.T) {
	r := NewSchemaRegistry()

	err := r.ValidateInput(OpExtract, map[string]any{"text": 42})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected string")
}

func TestValidateStyleDialRange(t *testing.T) {
	r := NewSchemaRegistry()

	in := StyleInput{Dials: constraint.Dials{constraint.DialSoul: 0.5}}
	assert.NoError(t, r.ValidateInput(OpStyle, in))

	err := r.ValidateInput(OpStyle, map[string]any{
		"dials": map[string]any{"soul": 1.7},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "above maximum")
}

func TestValidateOutput(t *testing.T) {
	r := NewSchemaRegistry()

	out := &VerifyOutput{Violations: []constraint.Violation{}}
	assert.NoError(t, r.ValidateOutput(OpVerify, out))

	err := r.ValidateOutput(OpVerify, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "violations"`)
}

func TestRegisterUnknownOperator(t *testing.T) {
	r := NewSchemaRegistry()
	err := r.Register(&Schema{Op: "TRANSMUTE"})
	assert.ErrorContains(t, err, "unknown operator")
}

func TestLoadFileOverridesSchema(t *testing.T) {
	r := NewSchemaRegistry()

	path := filepath.Join(t.TempDir(), "schemas.yaml")
	content := `schemas:
  - operator: EXTRACT
    version: v2
    input:
      - name: text
        type: string
        required: true
      - name: language
        type: string
        required: true
    output:
      - name: candidates
        type: object
        required: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, r.LoadFile(path))

	s := r.Get(OpExtract)
	assert.Equal(t, "v2", s.Version)

	err := r.ValidateInput(OpExtract, map[string]any{"text": "hi"})
	assert.ErrorContains(t, err, `missing required field "language"`)
}

func TestRegistryComplete(t *testing.T) {
	r := &Registry{}
	assert.False(t, r.Complete())
}

func TestValidateGraphPayloads(t *testing.T) {
	r := NewSchemaRegistry()

	g := &graph.Graph{Nodes: []graph.Node{{ID: "n1", Label: "Alice", Confidence: 0.5}}}
	assert.NoError(t, r.ValidateInput(OpResolve, ResolveInput{Candidates: g}))

	err := r.ValidateInput(OpResolve, ResolveInput{})
	assert.ErrorContains(t, err, `missing required field "candidates"`)
}
