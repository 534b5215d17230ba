package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportJSON writes records as a JSON array.
func ExportJSON(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to export audit records as JSON: %w", err)
	}
	return nil
}

var csvHeader = []string{
	"id", "timestamp", "method", "path", "username", "auth_type",
	"status_code", "duration_ms", "request_id", "metadata",
}

// ExportCSV writes records as CSV with a header row. Metadata maps are
// flattened to a JSON string column.
func ExportCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range records {
		row, err := recordToRow(&records[i])
		if err != nil {
			return fmt.Errorf("failed to encode audit record %s: %w", records[i].ID, err)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func recordToRow(r *Record) ([]string, error) {
	metadata := ""
	if len(r.Metadata) > 0 {
		b, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, err
		}
		metadata = string(b)
	}

	return []string{
		r.ID,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Method,
		r.Path,
		r.Username,
		r.AuthType,
		strconv.Itoa(r.StatusCode),
		strconv.FormatInt(r.DurationMS, 10),
		r.RequestID,
		metadata,
	}, nil
}
