package export

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"mercator-hq/agentgov/pkg/audit"
)

// CSVExporter exports audit events in CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Header returns the CSV column names. They match the audit_events columns.
func Header() []string {
	return []string{
		"event_id", "event_type", "action", "timestamp", "outcome",
		"agent_id", "session_id", "user_id", "risk_level",
		"details", "metadata", "correlation_id", "parent_event_id",
	}
}

// Export writes events to w in CSV format. Details and metadata are written
// as JSON objects.
func (e *CSVExporter) Export(ctx context.Context, events []*audit.Event, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Header()); err != nil {
			return audit.NewExportError("csv", len(events), err)
		}
	}

	for _, event := range events {
		if err := writer.Write(eventToRow(event)); err != nil {
			return audit.NewExportError("csv", len(events), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return audit.NewExportError("csv", len(events), err)
	}
	return nil
}

// ExportStream writes events from a channel in CSV format until the channel
// is closed or ctx is cancelled. Output is flushed every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, eventsCh <-chan *audit.Event, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(Header()); err != nil {
			return audit.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", count, err)
				}
				return nil
			}

			if err := writer.Write(eventToRow(event)); err != nil {
				return audit.NewExportError("csv", count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", count, err)
				}
			}
		}
	}
}

func eventToRow(e *audit.Event) []string {
	return []string{
		e.EventID,
		e.EventType,
		e.Action,
		e.Timestamp.Format(time.RFC3339Nano),
		string(e.Outcome),
		e.AgentID,
		e.SessionID,
		e.UserID,
		e.RiskLevel,
		audit.EncodeMap(e.Details),
		audit.EncodeMap(e.Metadata),
		e.CorrelationID,
		e.ParentEventID,
	}
}
