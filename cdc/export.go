package cdc

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

type jsonExport struct {
	Table        string   `json:"table"`
	FromSnapshot *int64   `json:"from_snapshot"`
	ToSnapshot   *int64   `json:"to_snapshot"`
	ExportedAt   string   `json:"exported_at"`
	Summary      Summary  `json:"summary"`
	Changes      []Change `json:"changes"`
}

// Export serializes a change set to a JSON or CSV string. The JSON form
// round-trips through UnmarshalChanges for replay; the CSV form emits one
// row per insert/delete and an UPDATE_BEFORE/UPDATE_AFTER pair per update
// over the sorted union of all columns seen in the changes.
func Export(cs *ChangeSet, format string) (string, error) {
	switch format {
	case FormatJSON:
		return exportJSON(cs)
	case FormatCSV:
		return exportCSV(cs)
	default:
		return "", fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}
}

func exportJSON(cs *ChangeSet) (string, error) {
	changes := cs.Changes
	if changes == nil {
		changes = make([]Change, 0)
	}
	out, err := json.MarshalIndent(jsonExport{
		Table:        cs.Table,
		FromSnapshot: cs.FromSnapshotID,
		ToSnapshot:   cs.ToSnapshotID,
		ExportedAt:   time.Now().UTC().Format(time.RFC3339),
		Summary:      cs.Summary,
		Changes:      changes,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}
	return string(out), nil
}

func exportCSV(cs *ChangeSet) (string, error) {
	seen := make(map[string]bool)
	for _, c := range cs.Changes {
		switch v := c.(type) {
		case Insert:
			for col := range v.Row {
				seen[col] = true
			}
		case Delete:
			for col := range v.Row {
				seen[col] = true
			}
		case Update:
			for col := range v.After {
				seen[col] = true
			}
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(append([]string{"change_type"}, cols...)); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}
	writeRow := func(tag string, row map[string]any) error {
		record := make([]string, 0, len(cols)+1)
		record = append(record, tag)
		for _, col := range cols {
			record = append(record, formatCSVValue(row[col]))
		}
		return w.Write(record)
	}
	for _, c := range cs.Changes {
		var err error
		switch v := c.(type) {
		case Insert:
			err = writeRow("INSERT", v.Row)
		case Delete:
			err = writeRow("DELETE", v.Row)
		case Update:
			if err = writeRow("UPDATE_BEFORE", v.Before); err == nil {
				err = writeRow("UPDATE_AFTER", v.After)
			}
		}
		if err != nil {
			return "", fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return b.String(), nil
}

func formatCSVValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}
