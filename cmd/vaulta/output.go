package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/vaulta/vaulta-go/internal/config"
	"github.com/vaulta/vaulta-go/model"
)

// render writes v as indented JSON or as YAML. YAML is derived from the JSON
// form so both formats share field names and timestamp layouts.
func render(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	if format == config.OutputYAML {
		data, err = yaml.JSONToYAML(data)
		if err != nil {
			return fmt.Errorf("converting output to yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	}

	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// parseLabels turns repeated key=value flags into labels. Values that are
// valid JSON keep their type, anything else is a string.
func parseLabels(pairs []string) (model.Labels, error) {
	labels := model.Labels{}

	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("label %q must be in key=value form", p)
		}

		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			labels[key] = decoded
			continue
		}
		labels[key] = value
	}

	return labels, nil
}

// withDisplaySize fills in sizes the server left unformatted.
func withDisplaySize(assets []model.Asset) []model.Asset {
	for i := range assets {
		assets[i].HumanReadableSize = assets[i].DisplaySize()
	}

	return assets
}
