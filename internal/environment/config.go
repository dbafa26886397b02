// Package environment assembles every other package into one running
// instance: the registry, store, bus, human queue, LLM provider
// registry, metrics, tracing, and engine. No mutable process-level
// state lives outside the Environment value, so multiple environments
// can coexist in-process.
package environment

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/promptobjects/core/internal/poerr"
)

// Manifest is the on-disk `manifest.yml` an environment directory
// carries.
type Manifest struct {
	Name          string `yaml:"name"`
	DefaultSource string `yaml:"default_source"`
	LLMProvider   string `yaml:"llm_provider"`
	LLMModel      string `yaml:"llm_model"`
}

// Config is everything New needs to boot an Environment, resolved from
// a manifest plus overridable fields (a CLI layer fills Dir and leaves
// the rest to LoadManifest's defaults).
type Config struct {
	// Dir is the environment directory: manifest.yml, objects/,
	// primitives/, sessions.db all live under it.
	Dir string

	// MaxTurns bounds each PO turn's LLM-call/tool-dispatch iterations;
	// 0 means unbounded.
	MaxTurns int

	// TracingEnabled turns on span export scaffolding.
	TracingEnabled bool
}

func (c Config) objectsDir() string    { return filepath.Join(c.Dir, "objects") }
func (c Config) primitivesDir() string { return filepath.Join(c.Dir, "primitives") }
func (c Config) dbPath() string        { return filepath.Join(c.Dir, "sessions.db") }
func (c Config) manifestPath() string  { return filepath.Join(c.Dir, "manifest.yml") }

// LoadManifest reads manifest.yml from dir, defaulting to a bare
// Manifest named after the directory if the file is absent — the
// "zero-config" path a freshly `promptctl new`-ed environment starts from.
func LoadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.yml"))
	if os.IsNotExist(err) {
		return Manifest{Name: filepath.Base(dir), DefaultSource: "api"}, nil
	}
	if err != nil {
		return Manifest{}, poerr.Wrap(poerr.KindConfig, "reading manifest.yml", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, poerr.Wrap(poerr.KindConfig, "parsing manifest.yml", err)
	}
	if m.DefaultSource == "" {
		m.DefaultSource = "api"
	}
	return m, nil
}

// WriteManifest writes m to dir/manifest.yml, used by `promptctl new`.
func WriteManifest(dir string, m Manifest) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return poerr.Wrap(poerr.KindStore, "creating environment directory", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return poerr.Wrap(poerr.KindConfig, "encoding manifest.yml", err)
	}
	return os.WriteFile(filepath.Join(dir, "manifest.yml"), data, 0644)
}
