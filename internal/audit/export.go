package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

var csvHeader = []string{
	"ID",
	"Timestamp",
	"ActorID",
	"Action",
	"Entity",
	"EntityID",
	"Detail",
	"IPAddress",
	"RequestID",
}

// cell quotes values a spreadsheet would evaluate as a formula.
func cell(value string) string {
	if value != "" && strings.ContainsRune("=+-@\t\r", rune(value[0])) {
		return "'" + value
	}
	return value
}

// WriteCSV writes entries with a header row.
func WriteCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, entry := range entries {
		row := []string{
			cell(entry.ID),
			entry.CreatedAt.UTC().Format(time.RFC3339),
			cell(entry.ActorID),
			string(entry.Action),
			string(entry.Entity),
			cell(entry.EntityID),
			cell(entry.Detail),
			cell(entry.IP),
			cell(entry.RequestID),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	return nil
}
