package cdc

import "github.com/tidelake/tidelake/store"

// Diff computes the two one-sided multiset differences between two row
// sets over a shared column list: added is to−from, removed is from−to.
// A row is added when its multiplicity in to exceeds its multiplicity in
// from, and symmetrically for removed. Rows are compared by full value
// equality across all columns, not by key. Order is preserved: added in
// to's iteration order, removed in from's.
//
// Callers handle the no-prior-snapshot case themselves (all rows are
// inserts); Diff is never invoked with an artificially empty from side.
func Diff(from, to *store.RowSet, columns []string) (added, removed []store.Row) {
	fromCounts := make(map[string]int, len(from.Rows))
	for _, row := range from.Rows {
		fromCounts[encodeRow(row, columns)]++
	}
	remaining := make(map[string]int, len(fromCounts))
	for k, n := range fromCounts {
		remaining[k] = n
	}
	added = make([]store.Row, 0)
	for _, row := range to.Rows {
		key := encodeRow(row, columns)
		if remaining[key] > 0 {
			remaining[key]--
			continue
		}
		added = append(added, row)
	}

	toCounts := make(map[string]int, len(to.Rows))
	for _, row := range to.Rows {
		toCounts[encodeRow(row, columns)]++
	}
	removed = make([]store.Row, 0)
	for _, row := range from.Rows {
		key := encodeRow(row, columns)
		if toCounts[key] > 0 {
			toCounts[key]--
			continue
		}
		removed = append(removed, row)
	}
	return added, removed
}
