package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	er "github.com/gofhir/elmrequirements"
)

// Write serializes rep to w as JSON or YAML. YAML output uses the JSON
// field names.
func Write(w io.Writer, rep *Report, format string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	switch format {
	case er.FormatJSON, "":
		data = append(data, '\n')
		_, err = w.Write(data)
		return err

	case er.FormatYAML:
		// JSON is valid YAML; decoding it into a node keeps the field order.
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("converting report: %w", err)
		}
		blockStyle(&doc)

		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(&doc); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return err
		}
		_, err = w.Write(buf.Bytes())
		return err

	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// blockStyle clears the flow and quoting styles inherited from JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		blockStyle(child)
	}
}
