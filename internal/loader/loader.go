// Package loader reads prompt-object definition files (YAML frontmatter
// + markdown body) and primitive source files from an environment
// directory, handing back plain data the engine and primitive runtime
// turn into registered capabilities.
package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/promptobjects/core/internal/poerr"
)

// WatchesEnvData models the frontmatter field that may be a bare bool
// or a list of specific keys.
type WatchesEnvData struct {
	All  bool
	Keys []string
}

// UnmarshalYAML accepts either `true`/`false` or a string list.
func (w *WatchesEnvData) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := value.Decode(&b); err != nil {
			return err
		}
		w.All = b
		return nil
	case yaml.SequenceNode:
		var keys []string
		if err := value.Decode(&keys); err != nil {
			return err
		}
		w.Keys = keys
		return nil
	default:
		return fmt.Errorf("watches_env_data: unsupported YAML node kind")
	}
}

// Frontmatter is the set of recognized PO frontmatter keys.
type Frontmatter struct {
	Name            string          `yaml:"name"`
	Description     string          `yaml:"description"`
	Capabilities    []string        `yaml:"capabilities"`
	WatchesEnvData  *WatchesEnvData `yaml:"watches_env_data"`
}

// PromptObjectFile is a fully parsed PO definition: frontmatter plus the
// literal markdown body (the LLM system prompt, verbatim).
type PromptObjectFile struct {
	Frontmatter Frontmatter
	Body        string
	Path        string
}

const delimiter = "---"

// ParsePromptObject splits a file's bytes into frontmatter + body and
// decodes the frontmatter as YAML. The opening and closing delimiters
// must each be on their own line.
func ParsePromptObject(path string, data []byte) (*PromptObjectFile, error) {
	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != delimiter {
		return nil, poerr.New(poerr.KindConfig, path+": missing opening frontmatter delimiter")
	}
	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return nil, poerr.New(poerr.KindConfig, path+": missing closing frontmatter delimiter")
	}

	fmBlock := strings.Join(lines[1:closeIdx], "\n")
	body := strings.Join(lines[closeIdx+1:], "\n")
	body = strings.TrimPrefix(body, "\n")

	var fm Frontmatter
	dec := yaml.NewDecoder(bytes.NewReader([]byte(fmBlock)))
	if err := dec.Decode(&fm); err != nil {
		return nil, poerr.Wrap(poerr.KindConfig, path+": invalid frontmatter YAML", err)
	}
	if fm.Name == "" {
		return nil, poerr.New(poerr.KindConfig, path+": frontmatter missing required 'name'")
	}

	return &PromptObjectFile{Frontmatter: fm, Body: body, Path: path}, nil
}

// LoadDir reads every *.md file in dir as a PromptObjectFile. Duplicate
// names are rejected. Files are returned sorted by name for
// deterministic boot order.
func LoadDir(dir string) ([]*PromptObjectFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, poerr.Wrap(poerr.KindConfig, "reading prompt object directory "+dir, err)
	}

	var files []*PromptObjectFile
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, poerr.Wrap(poerr.KindConfig, "reading "+full, err)
		}
		pof, err := ParsePromptObject(full, data)
		if err != nil {
			return nil, err
		}
		if prior, ok := seen[pof.Frontmatter.Name]; ok {
			return nil, poerr.New(poerr.KindConfig,
				fmt.Sprintf("duplicate prompt object name %q in %s and %s", pof.Frontmatter.Name, prior, full))
		}
		seen[pof.Frontmatter.Name] = full
		files = append(files, pof)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Frontmatter.Name < files[j].Frontmatter.Name })
	return files, nil
}

// ReloadFile re-parses a single PO file, for use by reload_po and by an
// external file-watcher collaborator.
func ReloadFile(path string) (*PromptObjectFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindConfig, "reading "+path, err)
	}
	return ParsePromptObject(path, data)
}

// WritePromptObject serializes a Frontmatter + body back to disk in the
// canonical format, used by modify_prompt/create_capability/
// add_capability/remove_capability to persist edits.
func WritePromptObject(path string, fm Frontmatter, body string) error {
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return poerr.Wrap(poerr.KindConfig, "encoding frontmatter", err)
	}
	enc.Close()
	buf.WriteString(delimiter + "\n")
	if !strings.HasPrefix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString(body)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return poerr.Wrap(poerr.KindStore, "writing "+path, err)
	}
	return nil
}

// DefaultPOPath returns the canonical path for a PO name under an
// environment's objects directory.
func DefaultPOPath(objectsDir, name string) string {
	return filepath.Join(objectsDir, name+".md")
}
