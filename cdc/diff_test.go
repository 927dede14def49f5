package cdc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidelake/tidelake/store"
)

func rowSet(columns []string, rows ...store.Row) *store.RowSet {
	return &store.RowSet{Columns: columns, Rows: rows}
}

func TestDiffIdentical(t *testing.T) {
	cols := []string{"id", "name"}
	a := rowSet(cols,
		store.Row{"id": int64(1), "name": "a"},
		store.Row{"id": int64(2), "name": "b"},
	)
	added, removed := Diff(a, a, cols)
	require.Empty(t, added)
	require.Empty(t, removed)
}

func TestDiffAddedAndRemoved(t *testing.T) {
	cols := []string{"id", "name"}
	from := rowSet(cols,
		store.Row{"id": int64(1), "name": "a"},
		store.Row{"id": int64(2), "name": "b"},
	)
	to := rowSet(cols,
		store.Row{"id": int64(1), "name": "a"},
		store.Row{"id": int64(3), "name": "c"},
	)
	added, removed := Diff(from, to, cols)
	require.Equal(t, []store.Row{{"id": int64(3), "name": "c"}}, added)
	require.Equal(t, []store.Row{{"id": int64(2), "name": "b"}}, removed)
}

func TestDiffMultisetSemantics(t *testing.T) {
	// Duplicates are distinct members: two copies minus one copy leaves one.
	cols := []string{"id"}
	from := rowSet(cols, store.Row{"id": int64(1)})
	to := rowSet(cols, store.Row{"id": int64(1)}, store.Row{"id": int64(1)})

	added, removed := Diff(from, to, cols)
	require.Len(t, added, 1)
	require.Empty(t, removed)

	added, removed = Diff(to, from, cols)
	require.Empty(t, added)
	require.Len(t, removed, 1)
}

func TestDiffNullHandling(t *testing.T) {
	cols := []string{"id", "name"}
	from := rowSet(cols, store.Row{"id": int64(1), "name": nil})
	to := rowSet(cols, store.Row{"id": int64(1), "name": nil})
	added, removed := Diff(from, to, cols)
	require.Empty(t, added)
	require.Empty(t, removed)

	to = rowSet(cols, store.Row{"id": int64(1), "name": "x"})
	added, removed = Diff(from, to, cols)
	require.Len(t, added, 1)
	require.Len(t, removed, 1)
}

func TestDiffDistinguishesValueTypes(t *testing.T) {
	cols := []string{"v"}
	from := rowSet(cols, store.Row{"v": int64(1)})
	to := rowSet(cols, store.Row{"v": float64(1)})
	added, removed := Diff(from, to, cols)
	require.Len(t, added, 1)
	require.Len(t, removed, 1)
}

func TestDiffPreservesOrder(t *testing.T) {
	cols := []string{"id"}
	from := rowSet(cols)
	to := rowSet(cols,
		store.Row{"id": int64(3)},
		store.Row{"id": int64(1)},
		store.Row{"id": int64(2)},
	)
	added, _ := Diff(from, to, cols)
	require.Equal(t, []store.Row{{"id": int64(3)}, {"id": int64(1)}, {"id": int64(2)}}, added)
}
