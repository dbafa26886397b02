package environment

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptobjects/core/internal/capability"
)

func writePO(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	content := "---\nname: " + name + "\ndescription: test PO\n---\n" + body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0644))
}

func TestNew_BootsWithoutLLMCredentials(t *testing.T) {
	dir := t.TempDir()
	writePO(t, filepath.Join(dir, "objects"), "greeter", "You are a friendly greeter.")

	env, err := New(context.Background(), Config{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close(context.Background()) })

	info := env.Info()
	assert.Contains(t, info.PromptObjects, "greeter")
	assert.Contains(t, info.Primitives, "read_file")
	assert.Contains(t, info.Primitives, "write_file")
	assert.Empty(t, info.ActiveProvider) // no API keys set in this test
}

func TestNew_RegistersUniversalCapabilities(t *testing.T) {
	dir := t.TempDir()
	env, err := New(context.Background(), Config{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close(context.Background()) })

	for _, name := range []string{"ask_human", "think", "modify_prompt", "create_capability", "store_env_data", "list_capabilities"} {
		assert.True(t, env.Registry.Has(name), "expected universal capability %q to be registered", name)
	}
}

func TestNew_RejectsDuplicatePromptObjectNames(t *testing.T) {
	dir := t.TempDir()
	objectsDir := filepath.Join(dir, "objects")
	writePO(t, objectsDir, "greeter", "first")
	// Overwrite with a second file carrying the same frontmatter name.
	require.NoError(t, os.WriteFile(filepath.Join(objectsDir, "greeter-2.md"),
		[]byte("---\nname: greeter\ndescription: dup\n---\nsecond\n"), 0644))

	_, err := New(context.Background(), Config{Dir: dir})
	require.Error(t, err)
}

func TestSend_UnknownPromptObjectIsAnError(t *testing.T) {
	dir := t.TempDir()
	env, err := New(context.Background(), Config{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close(context.Background()) })

	_, err = env.Send(context.Background(), "does_not_exist", "api", capability.NewTextMessage("hi"))
	require.Error(t, err)
}
