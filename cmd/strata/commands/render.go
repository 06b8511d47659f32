package commands

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/strata/pkg/lookup"
	"github.com/openfroyo/strata/pkg/types"
)

const (
	renderString = "s"
	renderJSON   = "json"
	renderYAML   = "yaml"
)

// renderValue writes a lookup result. Sensitive values render redacted in
// every format.
func renderValue(w io.Writer, v any, format string) error {
	switch format {
	case renderString, "":
		_, err := fmt.Fprintln(w, types.Stringify(v))
		return err
	case renderJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case renderYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to render YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown render format %q, expected s, json or yaml", format)
	}
}

func renderExplanation(w io.Writer, e *lookup.Explainer, format string) error {
	if format == renderString || format == "" {
		_, err := io.WriteString(w, e.Text())
		return err
	}
	return renderValue(w, e.ToMap(), format)
}
