package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ashureev/symptom-intake/internal/domain"
)

// Report export formats.
const (
	FormatJSON = "json"
	FormatTOML = "toml"
)

// WriteReport encodes report to w as JSON or TOML.
func WriteReport(w io.Writer, report domain.StructuredReport, format string) error {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatTOML:
		data, err := toml.Marshal(report)
		if err != nil {
			return fmt.Errorf("encode report as toml: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// FormatForPath picks the export format from a file extension.
func FormatForPath(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".toml") {
		return FormatTOML
	}
	return FormatJSON
}
