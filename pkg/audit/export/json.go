package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/agentgov/pkg/audit"
)

// JSONExporter exports audit events as a JSON array.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Export writes events to w as a JSON array. No events produce "[]".
func (e *JSONExporter) Export(ctx context.Context, events []*audit.Event, w io.Writer) error {
	if len(events) == 0 {
		_, err := w.Write([]byte("[]"))
		return err
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(events, "", "  ")
	} else {
		data, err = json.Marshal(events)
	}
	if err != nil {
		return audit.NewExportError("json", len(events), err)
	}

	if _, err := w.Write(data); err != nil {
		return audit.NewExportError("json", len(events), err)
	}
	return nil
}

// ExportStream writes events from a channel as a JSON array, one event at a
// time, until the channel is closed or ctx is cancelled.
func (e *JSONExporter) ExportStream(ctx context.Context, eventsCh <-chan *audit.Event, w io.Writer) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return audit.NewExportError("json", 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				if _, err := w.Write([]byte("]")); err != nil {
					return audit.NewExportError("json", count, err)
				}
				return nil
			}

			if count > 0 {
				sep := ","
				if e.Pretty {
					sep = ",\n"
				}
				if _, err := w.Write([]byte(sep)); err != nil {
					return audit.NewExportError("json", count, err)
				}
			}

			data, err := e.serializeEvent(event)
			if err != nil {
				return audit.NewExportError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return audit.NewExportError("json", count, err)
			}
			count++
		}
	}
}

func (e *JSONExporter) serializeEvent(event *audit.Event) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(event, "  ", "  ")
	}
	return json.Marshal(event)
}
