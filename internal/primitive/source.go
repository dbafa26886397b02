package primitive

import (
	"context"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"plugin"
	"runtime"

	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/poerr"
)

// Exported symbol names a primitive source file must define. A
// compiled primitive plugin exposes these as package-level functions;
// Compile resolves them by name via plugin.Lookup.
const (
	symName        = "Name"
	symDescription = "Description"
	symParameters  = "Parameters"
	symReceive     = "Receive"
)

// CheckSyntax parses Go source without compiling it, used to reject a
// malformed create_primitive/modify_primitive submission immediately
// rather than failing later at compile time.
func CheckSyntax(src []byte) error {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "primitive.go", src, parser.AllErrors); err != nil {
		return poerr.Wrap(poerr.KindInvalidInput, "primitive source has a syntax error", err)
	}
	return nil
}

// PluginSupported reports whether runtime.GOOS is one Go builds
// plugins for (linux, darwin, freebsd). It does not check whether the
// binary was built with cgo; on a build without cgo it still returns
// true for those systems and Compile returns an error.
func PluginSupported() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
		return true
	default:
		return false
	}
}

// Compile writes src to <name>.go under dir (kept as the primitive's
// source path), builds it as a Go
// plugin, and loads the four required symbols into a Primitive. name
// and description/parameters/fn are pulled by calling the plugin's
// exported functions once at load time; Receive is invoked per call.
//
// This runs `go build -buildmode=plugin` as a subprocess at runtime,
// the same way a long-running server might hot-load an extension; it
// is unrelated to (and does not replace) the project's own build.
func Compile(dir, name string, src []byte) (*Primitive, error) {
	if !PluginSupported() {
		return nil, poerr.New(poerr.KindCapability, "compiled primitives are not supported on "+runtime.GOOS)
	}
	if err := CheckSyntax(src); err != nil {
		return nil, err
	}

	srcPath := filepath.Join(dir, name+".go")
	if err := os.WriteFile(srcPath, src, 0644); err != nil {
		return nil, poerr.Wrap(poerr.KindStore, "writing primitive source", err)
	}

	soPath := filepath.Join(dir, name+".so")
	cmd := exec.Command("go", "build", "-buildmode=plugin", "-o", soPath, srcPath)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, poerr.Wrap(poerr.KindCapability, "compiling primitive "+name+": "+string(out), err)
	}

	p, err := plugin.Open(soPath)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindCapability, "loading compiled primitive "+name, err)
	}

	nameFn, err := lookupNameFn(p)
	if err != nil {
		return nil, err
	}
	descFn, err := lookupDescFn(p)
	if err != nil {
		return nil, err
	}
	paramsFn, err := lookupParamsFn(p)
	if err != nil {
		return nil, err
	}
	receiveFn, err := lookupReceiveFn(p)
	if err != nil {
		return nil, err
	}

	prim := New(nameFn(), descFn(), paramsFn(), receiveFn)
	prim.sourcePath = srcPath
	return prim, nil
}

func lookupNameFn(p *plugin.Plugin) (func() string, error) {
	sym, err := p.Lookup(symName)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindCapability, "primitive missing Name()", err)
	}
	fn, ok := sym.(func() string)
	if !ok {
		return nil, poerr.New(poerr.KindCapability, "Name has the wrong signature, want func() string")
	}
	return fn, nil
}

func lookupDescFn(p *plugin.Plugin) (func() string, error) {
	sym, err := p.Lookup(symDescription)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindCapability, "primitive missing Description()", err)
	}
	fn, ok := sym.(func() string)
	if !ok {
		return nil, poerr.New(poerr.KindCapability, "Description has the wrong signature, want func() string")
	}
	return fn, nil
}

func lookupParamsFn(p *plugin.Plugin) (func() capability.Parameters, error) {
	sym, err := p.Lookup(symParameters)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindCapability, "primitive missing Parameters()", err)
	}
	fn, ok := sym.(func() capability.Parameters)
	if !ok {
		return nil, poerr.New(poerr.KindCapability, "Parameters has the wrong signature, want func() capability.Parameters")
	}
	return fn, nil
}

func lookupReceiveFn(p *plugin.Plugin) (Func, error) {
	sym, err := p.Lookup(symReceive)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindCapability, "primitive missing Receive()", err)
	}
	// A package-level function looks up with its unnamed func type.
	switch fn := sym.(type) {
	case Func:
		return fn, nil
	case func(context.Context, string, map[string]any) (any, error):
		return Func(fn), nil
	}
	return nil, poerr.New(poerr.KindCapability, "Receive has the wrong signature, want primitive.Func")
}
