package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how responses are printed.
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
)

// print writes data in the selected format, even when err is set, and
// returns err.
func (r *RootCommand) print(data json.RawMessage, err error) error {
	if len(data) == 0 {
		return err
	}

	out, fmtErr := format(data, OutputFormat(r.v.GetString("output")))
	if fmtErr != nil {
		return fmtErr
	}
	fmt.Fprintf(r.out, "Result: %s\n", out)
	return err
}

func format(data json.RawMessage, f OutputFormat) (string, error) {
	switch f {
	case FormatJSON, "":
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return "", fmt.Errorf("format response: %w", err)
		}
		return buf.String(), nil
	case FormatYAML:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		out, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("format response: %w", err)
		}
		return "\n" + string(bytes.TrimRight(out, "\n")), nil
	default:
		return "", fmt.Errorf("unknown output format %q", f)
	}
}
