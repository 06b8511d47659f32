package functions

import (
	"bytes"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/strata/pkg/lookup"
)

// pathOption returns the "path" option set by the lookup engine.
func pathOption(options map[string]any) (string, error) {
	p, ok := options["path"].(string)
	if !ok || p == "" {
		return "", fmt.Errorf("option 'path' is required")
	}
	return p, nil
}

func readPath(pc lookup.ProviderContext, options map[string]any) (string, []byte, error) {
	path, err := pathOption(options)
	if err != nil {
		return "", nil, err
	}
	data, err := afero.ReadFile(pc.Fs(), path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return path, data, nil
}

func yamlData(pc lookup.ProviderContext, options map[string]any) (any, error) {
	path, data, err := readPath(pc, options)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return map[string]any{}, nil
	}
	var out any
	if err := doc.Decode(&out); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return orderedTable(out, yamlKeyOrder(doc.Content[0])), nil
}

// orderedTable attaches key order to a decoded table. Other values are
// returned as is for the engine to reject.
func orderedTable(out any, order map[string][]string) any {
	switch m := out.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return lookup.OrderedTable{Data: m, KeyOrder: order}
	default:
		return out
	}
}

// yamlKeyOrder returns the document order of the keys of every mapping held
// by a top level key of n.
func yamlKeyOrder(n *yaml.Node) map[string][]string {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	order := make(map[string][]string)
	for i := 0; i+1 < len(n.Content); i += 2 {
		v := n.Content[i+1]
		if v.Kind == yaml.AliasNode && v.Alias != nil {
			v = v.Alias
		}
		if v.Kind != yaml.MappingNode {
			continue
		}
		keys := make([]string, 0, len(v.Content)/2)
		for j := 0; j+1 < len(v.Content); j += 2 {
			keys = append(keys, v.Content[j].Value)
		}
		order[n.Content[i].Value] = keys
	}
	return order
}

// decodeJSON decodes data keeping integers exact.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func jsonData(pc lookup.ProviderContext, options map[string]any) (any, error) {
	path, data, err := readPath(pc, options)
	if err != nil {
		return nil, err
	}
	doc := jsonc.ToJSON(data)
	out, err := decodeJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	if _, ok := out.(map[string]any); !ok {
		return orderedTable(out, nil), nil
	}
	order, err := jsonKeyOrder(doc)
	if err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return orderedTable(out, order), nil
}

// jsonKeyOrder returns the document order of the keys of every object held
// by a top level key of the JSON object doc.
func jsonKeyOrder(doc []byte) (map[string][]string, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	order := make(map[string][]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		keys, err := objectKeys(dec)
		if err != nil {
			return nil, err
		}
		if keys != nil {
			order[key] = keys
		}
	}
	return order, nil
}

// objectKeys consumes the next value of dec and returns its keys when it is
// an object.
func objectKeys(dec *json.Decoder) ([]string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, nil
	}
	var keys []string
	if delim == '{' {
		keys = []string{}
	}
	for dec.More() {
		if delim == '{' {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			k, _ := tok.(string)
			keys = append(keys, k)
		}
		if _, err := objectKeys(dec); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return keys, nil
}

// hclData reads the top level attributes of an HCL file. Expressions are
// evaluated without variables or functions.
func hclData(pc lookup.ProviderContext, options map[string]any) (any, error) {
	path, data, err := readPath(pc, options)
	if err != nil {
		return nil, err
	}
	file, diags := hclsyntax.ParseConfig(data, path, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	out := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		if !val.IsWhollyKnown() {
			return nil, fmt.Errorf("%s: attribute %s is not a constant", path, name)
		}
		doc, err := ctyjson.Marshal(val, val.Type())
		if err != nil {
			return nil, fmt.Errorf("%s: attribute %s: %w", path, name, err)
		}
		v, err := decodeJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: attribute %s: %w", path, name, err)
		}
		out[name] = v
	}
	return out, nil
}
