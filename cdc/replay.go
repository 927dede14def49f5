package cdc

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tidelake/tidelake/store"
)

// ReplayResult reports the outcome of applying a change batch. Replay is
// deliberately not transactional: Errors must always be checked, a
// result with no error return can still carry partial failures.
type ReplayResult struct {
	TargetTable    string   `json:"target_table"`
	BatchID        string   `json:"batch_id"`
	InsertsApplied int      `json:"inserts_applied"`
	UpdatesApplied int      `json:"updates_applied"`
	DeletesApplied int      `json:"deletes_applied"`
	Errors         []string `json:"errors"`
}

func (r *ReplayResult) TotalApplied() int {
	return r.InsertsApplied + r.UpdatesApplied + r.DeletesApplied
}

// Replay applies captured changes to a target table in order, one at a
// time. A failure on any single change is recorded and processing
// continues with the next change.
func Replay(ctx context.Context, changes []Change, target string, w store.TableWriter, log logrus.FieldLogger) *ReplayResult {
	if log == nil {
		log = logrus.StandardLogger()
	}
	result := &ReplayResult{
		TargetTable: target,
		BatchID:     uuid.New().String(),
		Errors:      make([]string, 0),
	}
	fail := func(t ChangeType, err error) {
		replayErrors.Inc()
		msg := fmt.Sprintf("%s: %v", t, err)
		log.WithField("table", target).Warn(msg)
		result.Errors = append(result.Errors, msg)
	}

	for _, change := range changes {
		switch c := change.(type) {
		case Insert:
			if _, err := w.InsertRows(ctx, target, []store.Row{c.Row}); err != nil {
				fail(ChangeInsert, err)
				continue
			}
			result.InsertsApplied++

		case Delete:
			filter := equalityFilter(c.Row)
			n, err := w.DeleteRows(ctx, target, filter)
			if err != nil {
				fail(ChangeDelete, err)
				continue
			}
			if n == 0 {
				fail(ChangeDelete, fmt.Errorf("no rows matched filter %s", filter))
				continue
			}
			result.DeletesApplied++

		case Update:
			if len(c.Key) == 0 {
				continue
			}
			updates := make(map[string]any)
			for col, v := range c.After {
				if _, isKey := c.Key[col]; !isKey {
					updates[col] = v
				}
			}
			if len(updates) == 0 {
				continue
			}
			filter := equalityFilter(c.Key)
			n, err := w.UpdateRows(ctx, target, filter, updates)
			if err != nil {
				fail(ChangeUpdate, err)
				continue
			}
			if n == 0 {
				fail(ChangeUpdate, fmt.Errorf("no rows matched filter %s", filter))
				continue
			}
			result.UpdatesApplied++
		}
	}
	return result
}

// equalityFilter builds a conjunctive equality predicate over every
// column of a row, in sorted column order for determinism. NULLs become
// IS NULL predicates and string literals are escaped.
func equalityFilter(row map[string]any) string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		if row[col] == nil {
			parts = append(parts, store.QuoteIdent(col)+" IS NULL")
			continue
		}
		parts = append(parts, store.QuoteIdent(col)+" = "+formatLiteral(row[col]))
	}
	return strings.Join(parts, " AND ")
}

func formatLiteral(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case []byte:
		return formatLiteral(string(t))
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return "'" + t.UTC().Format(time.RFC3339Nano) + "'"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
