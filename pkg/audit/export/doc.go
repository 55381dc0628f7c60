// Package export writes audit events in JSON or CSV.
//
// # JSON Export
//
// The JSON exporter writes an array of events using their JSON field names:
//
//	exporter := export.NewJSONExporter(true)
//	if err := exporter.Export(ctx, events, os.Stdout); err != nil {
//	    return err
//	}
//
// # CSV Export
//
// The CSV exporter writes one row per event with the audit_events columns.
// Details and metadata are JSON objects inside a quoted cell.
//
//	f, err := os.Create("audit.csv")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	err = export.NewCSVExporter(true).Export(ctx, events, f)
//
// # Streaming
//
// ExportStream consumes events from a channel so large result sets never need
// to be held in memory at once.
//
// # Error Handling
//
// Exporters return audit.ExportError for encoding and writer failures.
package export
