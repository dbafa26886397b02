package primitive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptobjects/core/internal/capability"
)

func TestSchemaFor_ReflectsRequiredAndOptional(t *testing.T) {
	params := SchemaFor(&writeFileArgs{})
	assert.Equal(t, "object", params["type"])

	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "path")
	assert.Contains(t, props, "content")

	required, ok := params["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "path")
	assert.Contains(t, required, "content")

	// list_files' path carries omitempty, so it must not be required.
	listParams := SchemaFor(&listFilesArgs{})
	_, hasRequired := listParams["required"]
	assert.False(t, hasRequired)
}

func TestValidateSchema_RejectsBrokenSchema(t *testing.T) {
	require.NoError(t, ValidateSchema(capability.Parameters{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "string"}},
	}))

	err := ValidateSchema(capability.Parameters{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "not-a-type"}},
	})
	require.Error(t, err)
}

func TestValidateArgs(t *testing.T) {
	params := capability.Parameters{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string"},
		},
		"required": []string{"url"},
	}

	require.NoError(t, ValidateArgs(params, map[string]any{"url": "https://example.com"}))

	err := ValidateArgs(params, map[string]any{})
	require.Error(t, err)

	err = ValidateArgs(params, map[string]any{"url": 42})
	require.Error(t, err)

	// An empty declaration accepts anything.
	require.NoError(t, ValidateArgs(nil, map[string]any{"whatever": true}))
}

func TestBuiltins_HaveObjectSchemas(t *testing.T) {
	for _, p := range Builtins(t.TempDir(), nil) {
		params := p.Parameters()
		assert.Equal(t, "object", params["type"], "primitive %s", p.Name())
		assert.NotEmpty(t, p.Description(), "primitive %s", p.Name())
	}
}
