package primitive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/promptobjects/core/internal/poerr"
)

// decodeArgs fills dst from msg.Extra (falling back to nothing if Extra
// is absent), the same loose-typed decode every universal/primitive
// argument path uses.
func decodeArgs(extra map[string]any, dst any) error {
	if extra == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return dec.Decode(extra)
}

// Argument structs for the shipped primitives; their JSON-Schema
// declarations are reflected from these so schema and decode target
// never drift.
type readFileArgs struct {
	Path string `json:"path" jsonschema:"description=path relative to the environment directory"`
}

type listFilesArgs struct {
	Path string `json:"path,omitempty" jsonschema:"description=directory relative to the environment directory; defaults to '.'"`
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"description=path relative to the environment directory"`
	Content string `json:"content"`
}

type httpGetArgs struct {
	URL string `json:"url"`
}

// Builtins returns the primitives that ship with every environment,
// sandboxed to baseDir for the filesystem ones. httpClient is injected
// so callers can cap timeouts/redirects; a nil client falls back to a
// 30s default.
func Builtins(baseDir string, httpClient *http.Client) []*Primitive {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return []*Primitive{
		readFilePrimitive(baseDir),
		listFilesPrimitive(baseDir),
		writeFilePrimitive(baseDir),
		httpGetPrimitive(httpClient),
	}
}

// resolveInBase joins and cleans path against baseDir, rejecting any
// result that escapes it.
func resolveInBase(baseDir, path string) (string, error) {
	full := filepath.Join(baseDir, path)
	full = filepath.Clean(full)
	baseClean := filepath.Clean(baseDir)
	if full != baseClean && !strings.HasPrefix(full, baseClean+string(filepath.Separator)) {
		return "", poerr.New(poerr.KindInvalidInput, "path escapes environment directory: "+path)
	}
	return full, nil
}

func readFilePrimitive(baseDir string) *Primitive {
	return New("read_file", "Reads a file's contents from the environment directory.", SchemaFor(&readFileArgs{}),
		func(ctx context.Context, message string, extra map[string]any) (any, error) {
			var args readFileArgs
			if err := decodeArgs(extra, &args); err != nil {
				return nil, err
			}
			if args.Path == "" {
				args.Path = message
			}
			full, err := resolveInBase(baseDir, args.Path)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(full)
			if err != nil {
				return nil, fmt.Errorf("read_file %s: %w", args.Path, err)
			}
			return string(data), nil
		})
}

func listFilesPrimitive(baseDir string) *Primitive {
	return New("list_files", "Lists file names in a directory under the environment directory.", SchemaFor(&listFilesArgs{}),
		func(ctx context.Context, message string, extra map[string]any) (any, error) {
			var args listFilesArgs
			if err := decodeArgs(extra, &args); err != nil {
				return nil, err
			}
			if args.Path == "" {
				args.Path = "."
			}
			full, err := resolveInBase(baseDir, args.Path)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(full)
			if err != nil {
				return nil, fmt.Errorf("list_files %s: %w", args.Path, err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			return names, nil
		})
}

func writeFilePrimitive(baseDir string) *Primitive {
	return New("write_file", "Writes content to a file under the environment directory, creating parent directories as needed.", SchemaFor(&writeFileArgs{}),
		func(ctx context.Context, message string, extra map[string]any) (any, error) {
			var args writeFileArgs
			if err := decodeArgs(extra, &args); err != nil {
				return nil, err
			}
			if args.Path == "" {
				return nil, poerr.New(poerr.KindInvalidInput, "write_file requires 'path'")
			}
			full, err := resolveInBase(baseDir, args.Path)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
				return nil, fmt.Errorf("write_file %s: %w", args.Path, err)
			}
			if err := os.WriteFile(full, []byte(args.Content), 0644); err != nil {
				return nil, fmt.Errorf("write_file %s: %w", args.Path, err)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), nil
		})
}

func httpGetPrimitive(client *http.Client) *Primitive {
	return New("http_get", "Performs an HTTP GET request and returns the response body as text.", SchemaFor(&httpGetArgs{}),
		func(ctx context.Context, message string, extra map[string]any) (any, error) {
			var args httpGetArgs
			if err := decodeArgs(extra, &args); err != nil {
				return nil, err
			}
			if args.URL == "" {
				args.URL = message
			}
			if args.URL == "" {
				return nil, poerr.New(poerr.KindInvalidInput, "http_get requires 'url'")
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
			if err != nil {
				return nil, fmt.Errorf("http_get %s: %w", args.URL, err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("http_get %s: %w", args.URL, err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return nil, fmt.Errorf("http_get %s: reading response: %w", args.URL, err)
			}
			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("http_get %s: status %d", args.URL, resp.StatusCode)
			}
			return string(body), nil
		})
}
