package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

var outputFormats = []string{"table", "json", "yaml"}

func validateFormat(format string) error {
	for _, f := range outputFormats {
		if f == format {
			return nil
		}
	}

	return fmt.Errorf("unsupported format %q (supported: table, json, yaml)", format)
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()

		return enc.Encode(v)
	}

	return validateFormat(format)
}
