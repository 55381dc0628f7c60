package export

import (
	"fmt"
	"strings"

	"mercator-hq/agentgov/pkg/audit"
)

// Supported export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ForFormat returns the exporter for a format name. JSON output is
// pretty-printed and CSV output has a header row.
func ForFormat(format string) (audit.Exporter, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return NewJSONExporter(true), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	}
	return nil, audit.NewExportError(format, 0, fmt.Errorf("unsupported format %q (must be 'json' or 'csv')", format))
}
