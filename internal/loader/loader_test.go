package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePromptObject_SplitsFrontmatterAndBody(t *testing.T) {
	data := []byte("---\nname: greeter\ndescription: greets\ncapabilities:\n  - read_file\n---\nYou greet people.\nWarmly.")
	pof, err := ParsePromptObject("greeter.md", data)
	require.NoError(t, err)
	assert.Equal(t, "greeter", pof.Frontmatter.Name)
	assert.Equal(t, "greets", pof.Frontmatter.Description)
	assert.Equal(t, []string{"read_file"}, pof.Frontmatter.Capabilities)
	assert.Equal(t, "You greet people.\nWarmly.", pof.Body)
}

func TestParsePromptObject_RequiresName(t *testing.T) {
	_, err := ParsePromptObject("x.md", []byte("---\ndescription: no name\n---\nbody"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestParsePromptObject_RequiresDelimiters(t *testing.T) {
	_, err := ParsePromptObject("x.md", []byte("name: no delimiters\nbody"))
	require.Error(t, err)

	_, err = ParsePromptObject("x.md", []byte("---\nname: unclosed\nbody"))
	require.Error(t, err)
}

func TestParsePromptObject_WatchesEnvDataForms(t *testing.T) {
	pof, err := ParsePromptObject("w.md", []byte("---\nname: watcher\nwatches_env_data: true\n---\nbody"))
	require.NoError(t, err)
	require.NotNil(t, pof.Frontmatter.WatchesEnvData)
	assert.True(t, pof.Frontmatter.WatchesEnvData.All)

	pof, err = ParsePromptObject("w.md", []byte("---\nname: watcher\nwatches_env_data:\n  - finding\n  - status\n---\nbody"))
	require.NoError(t, err)
	require.NotNil(t, pof.Frontmatter.WatchesEnvData)
	assert.Equal(t, []string{"finding", "status"}, pof.Frontmatter.WatchesEnvData.Keys)
}

func TestLoadDir_RejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("---\nname: same\n---\none"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("---\nname: same\n---\ntwo"), 0644))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadDir_MissingDirIsEmpty(t *testing.T) {
	files, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLoadDir_SortsByName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "z.md"), []byte("---\nname: zeta\n---\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("---\nname: alpha\n---\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not a po"), 0644))

	files, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "alpha", files[0].Frontmatter.Name)
	assert.Equal(t, "zeta", files[1].Frontmatter.Name)
}

func TestWritePromptObject_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := DefaultPOPath(dir, "writer")
	fm := Frontmatter{
		Name:         "writer",
		Description:  "writes things",
		Capabilities: []string{"write_file", "read_file"},
	}
	require.NoError(t, WritePromptObject(path, fm, "The body.\n"))

	back, err := ReloadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fm.Name, back.Frontmatter.Name)
	assert.Equal(t, fm.Description, back.Frontmatter.Description)
	assert.Equal(t, fm.Capabilities, back.Frontmatter.Capabilities)
	assert.Equal(t, "The body.\n", back.Body)
}
