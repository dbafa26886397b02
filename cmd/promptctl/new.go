package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/promptobjects/core/internal/environment"
	"github.com/promptobjects/core/internal/loader"
)

// NewCmd scaffolds an environment directory: manifest, objects/ with a
// starter prompt object, primitives/, and a .gitignore that keeps the
// session database out of version control.
type NewCmd struct {
	Name     string `arg:"" help:"Environment name (also the directory name)."`
	Template string `help:"Starter template (greeter, coordinator)." default:"greeter"`
	Path     string `help:"Parent directory to create the environment in." default:"." type:"path"`
}

var templates = map[string]struct {
	fm   loader.Frontmatter
	body string
}{
	"greeter": {
		fm: loader.Frontmatter{
			Name:        "greeter",
			Description: "Greets people warmly.",
		},
		body: "You are a warm, friendly greeter. Greet whoever messages you and make them feel welcome.\n",
	},
	"coordinator": {
		fm: loader.Frontmatter{
			Name:         "coordinator",
			Description:  "Coordinates work across the environment's capabilities.",
			Capabilities: []string{"read_file", "list_files"},
		},
		body: "You coordinate work. Break requests into steps, use your capabilities to gather what you need, and report back concisely.\n",
	},
}

func (c *NewCmd) Run() error {
	tpl, ok := templates[c.Template]
	if !ok {
		return fmt.Errorf("unknown template %q (have: greeter, coordinator)", c.Template)
	}

	dir := filepath.Join(c.Path, c.Name)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%s already exists", dir)
	}

	if err := environment.WriteManifest(dir, environment.Manifest{Name: c.Name, DefaultSource: "api"}); err != nil {
		return err
	}
	for _, sub := range []string{"objects", "primitives"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return err
		}
	}
	poPath := loader.DefaultPOPath(filepath.Join(dir, "objects"), tpl.fm.Name)
	if err := loader.WritePromptObject(poPath, tpl.fm, tpl.body); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("sessions.db\nsessions.db-*\n"), 0644); err != nil {
		return err
	}

	fmt.Printf("created %s with template %s\n", dir, c.Template)
	return nil
}
