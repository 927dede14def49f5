package cdc

import (
	"github.com/sirupsen/logrus"

	"github.com/tidelake/tidelake/store"
)

// Classify partitions raw added/removed rows into Insert, Update and
// Delete changes using the key columns to establish row identity.
//
// Removed rows are indexed by key tuple; when two removed rows share a
// key the last one wins and the collision is logged as a warning. An
// added row whose key is present in the index becomes an Update against
// the indexed row, otherwise an Insert. Removed rows whose key was never
// matched become trailing Deletes. Updates and Inserts come out in
// added's order, Deletes in removed's order.
func Classify(added, removed []store.Row, keys, columns []string, log logrus.FieldLogger) []Change {
	if log == nil {
		log = logrus.StandardLogger()
	}
	changes := make([]Change, 0, len(added)+len(removed))

	removedByKey := make(map[string]store.Row, len(removed))
	for _, row := range removed {
		key := encodeRow(row, keys)
		if _, ok := removedByKey[key]; ok {
			log.WithField("key", keyValues(row, keys)).Warn("duplicate key in removed rows, keeping last")
		}
		removedByKey[key] = row
	}

	matched := make(map[string]bool)
	for _, row := range added {
		key := encodeRow(row, keys)
		old, ok := removedByKey[key]
		if !ok {
			changes = append(changes, Insert{Row: row})
			continue
		}
		changed := make([]string, 0)
		for _, c := range columns {
			if containsColumn(keys, c) {
				continue
			}
			if !valuesEqual(row[c], old[c]) {
				changed = append(changed, c)
			}
		}
		changes = append(changes, Update{
			Key:            keyValues(row, keys),
			Before:         old,
			After:          row,
			ChangedColumns: changed,
		})
		matched[key] = true
	}

	for _, row := range removed {
		if matched[encodeRow(row, keys)] {
			continue
		}
		changes = append(changes, Delete{Row: row})
	}
	return changes
}

func keyValues(row store.Row, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = row[k]
	}
	return out
}

func containsColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}
