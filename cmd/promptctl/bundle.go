package main

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExportCmd writes an environment directory to a zip bundle, leaving
// the session database out unless asked for.
type ExportCmd struct {
	Env             string `arg:"" help:"Environment directory." type:"path"`
	Output          string `short:"o" help:"Output bundle path (default: <env>.zip)."`
	IncludeSessions bool   `help:"Include the session database in the bundle."`
}

func (c *ExportCmd) Run() error {
	out := c.Output
	if out == "" {
		out = filepath.Clean(c.Env) + ".zip"
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	root := filepath.Clean(c.Env)
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !c.IncludeSessions && isSessionDB(rel) {
			return nil
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", root, out)
	return nil
}

// isSessionDB matches the SQLite file and its WAL/SHM siblings.
func isSessionDB(rel string) bool {
	base := filepath.Base(rel)
	return base == "sessions.db" || strings.HasPrefix(base, "sessions.db-")
}

// ImportCmd extracts a bundle into a directory.
type ImportCmd struct {
	Bundle string `arg:"" help:"Bundle file to import." type:"path"`
	Path   string `help:"Destination directory (default: bundle name without extension)." type:"path"`
}

func (c *ImportCmd) Run() error {
	dest := c.Path
	if dest == "" {
		dest = strings.TrimSuffix(filepath.Base(c.Bundle), filepath.Ext(c.Bundle))
	}
	zr, err := zip.OpenReader(c.Bundle)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, zf := range zr.File {
		target := filepath.Join(dest, filepath.FromSlash(zf.Name))
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(dest)+string(filepath.Separator)) {
			return fmt.Errorf("bundle entry escapes destination: %s", zf.Name)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractFile(zf, target); err != nil {
			return err
		}
	}
	fmt.Printf("imported %s into %s\n", c.Bundle, dest)
	return nil
}

func extractFile(zf *zip.File, target string) error {
	src, err := zf.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, zf.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}
