package primitive

import (
	"bytes"
	"context"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/poerr"
)

// InterpretedSpec is the script format used on platforms where
// compiled Go plugins aren't available (PluginSupported() == false).
// It trades arbitrary code for a small, safe template: the message
// text and its extra fields are the only inputs, and text/template is
// the only control flow.
type InterpretedSpec struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Parameters  capability.Parameters `yaml:"parameters"`
	Template    string               `yaml:"template"`
}

// ParseInterpretedSpec decodes a YAML interpreted-primitive script.
func ParseInterpretedSpec(src []byte) (*InterpretedSpec, error) {
	var spec InterpretedSpec
	if err := yaml.Unmarshal(src, &spec); err != nil {
		return nil, poerr.Wrap(poerr.KindInvalidInput, "invalid interpreted primitive script", err)
	}
	if spec.Name == "" {
		return nil, poerr.New(poerr.KindInvalidInput, "interpreted primitive missing 'name'")
	}
	if spec.Template == "" {
		return nil, poerr.New(poerr.KindInvalidInput, "interpreted primitive missing 'template'")
	}
	return &spec, nil
}

// Interpret builds a Primitive that renders spec.Template against the
// incoming message, for use where Compile is unavailable.
func Interpret(spec *InterpretedSpec) (*Primitive, error) {
	tmpl, err := template.New(spec.Name).Parse(spec.Template)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindInvalidInput, "interpreted primitive template error", err)
	}
	fn := func(ctx context.Context, message string, extra map[string]any) (any, error) {
		data := map[string]any{"Message": message}
		for k, v := range extra {
			data[k] = v
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, poerr.Wrap(poerr.KindCapability, "rendering interpreted primitive "+spec.Name, err)
		}
		return buf.String(), nil
	}
	return New(spec.Name, spec.Description, spec.Parameters, fn), nil
}
