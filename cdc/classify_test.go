package cdc

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/tidelake/tidelake/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestClassifyPureInsert(t *testing.T) {
	cols := []string{"id", "name"}
	added := []store.Row{{"id": int64(2), "name": "b"}}
	changes := Classify(added, nil, []string{"id"}, cols, testLogger())
	require.Len(t, changes, 1)
	require.Equal(t, Insert{Row: added[0]}, changes[0])
}

func TestClassifyUpdateDetection(t *testing.T) {
	cols := []string{"id", "name", "value"}
	added := []store.Row{{"id": int64(1), "name": "a", "value": int64(20)}}
	removed := []store.Row{{"id": int64(1), "name": "a", "value": int64(10)}}

	changes := Classify(added, removed, []string{"id"}, cols, testLogger())
	require.Len(t, changes, 1)
	update, ok := changes[0].(Update)
	require.True(t, ok, "expected an update, got %T", changes[0])
	require.Equal(t, map[string]any{"id": int64(1)}, update.Key)
	require.Equal(t, removed[0], update.Before)
	require.Equal(t, added[0], update.After)
	require.Equal(t, []string{"value"}, update.ChangedColumns)
}

func TestClassifyDelete(t *testing.T) {
	cols := []string{"id", "name"}
	removed := []store.Row{{"id": int64(2), "name": "b"}}
	changes := Classify(nil, removed, []string{"id"}, cols, testLogger())
	require.Len(t, changes, 1)
	require.Equal(t, Delete{Row: removed[0]}, changes[0])
}

func TestClassifyMixedOrdering(t *testing.T) {
	// Updates and inserts in added order, then deletes in removed order.
	cols := []string{"id", "v"}
	added := []store.Row{
		{"id": int64(1), "v": "new"},
		{"id": int64(5), "v": "x"},
	}
	removed := []store.Row{
		{"id": int64(9), "v": "gone"},
		{"id": int64(1), "v": "old"},
	}
	changes := Classify(added, removed, []string{"id"}, cols, testLogger())
	require.Len(t, changes, 3)
	require.Equal(t, ChangeUpdate, changes[0].Type())
	require.Equal(t, ChangeInsert, changes[1].Type())
	require.Equal(t, ChangeDelete, changes[2].Type())
	require.Equal(t, int64(9), changes[2].(Delete).Row["id"])
}

func TestClassifyPartition(t *testing.T) {
	// Every key lands in exactly one change variant.
	cols := []string{"id", "v"}
	added := []store.Row{
		{"id": int64(1), "v": "a2"},
		{"id": int64(2), "v": "b"},
	}
	removed := []store.Row{
		{"id": int64(1), "v": "a1"},
		{"id": int64(3), "v": "c"},
	}
	changes := Classify(added, removed, []string{"id"}, cols, testLogger())
	seen := make(map[int64]int)
	for _, c := range changes {
		switch v := c.(type) {
		case Insert:
			seen[v.Row["id"].(int64)]++
		case Update:
			seen[v.After["id"].(int64)]++
		case Delete:
			seen[v.Row["id"].(int64)]++
		}
	}
	require.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1}, seen)
}

func TestClassifyNoKeyInChangedColumns(t *testing.T) {
	cols := []string{"id", "region", "v"}
	keys := []string{"id", "region"}
	added := []store.Row{{"id": int64(1), "region": "eu", "v": int64(2)}}
	removed := []store.Row{{"id": int64(1), "region": "eu", "v": int64(1)}}
	changes := Classify(added, removed, keys, cols, testLogger())
	require.Len(t, changes, 1)
	update := changes[0].(Update)
	for _, c := range update.ChangedColumns {
		require.NotContains(t, keys, c)
	}
	require.Equal(t, []string{"v"}, update.ChangedColumns)
}

func TestClassifyNullValueComparison(t *testing.T) {
	cols := []string{"id", "a", "b"}
	added := []store.Row{{"id": int64(1), "a": nil, "b": "x"}}
	removed := []store.Row{{"id": int64(1), "a": nil, "b": nil}}
	changes := Classify(added, removed, []string{"id"}, cols, testLogger())
	update := changes[0].(Update)
	// Two nulls are equal, null versus non-null is different.
	require.Equal(t, []string{"b"}, update.ChangedColumns)
}

func TestClassifyDuplicateRemovedKeysKeepLast(t *testing.T) {
	cols := []string{"id", "v"}
	removed := []store.Row{
		{"id": int64(1), "v": "first"},
		{"id": int64(1), "v": "second"},
	}
	added := []store.Row{{"id": int64(1), "v": "new"}}
	changes := Classify(added, removed, []string{"id"}, cols, testLogger())
	require.Len(t, changes, 1)
	update := changes[0].(Update)
	require.Equal(t, "second", update.Before["v"])
}

func TestClassifyChangedColumnsInSchemaOrder(t *testing.T) {
	cols := []string{"id", "z", "a", "m"}
	added := []store.Row{{"id": int64(1), "z": "2", "a": "2", "m": "2"}}
	removed := []store.Row{{"id": int64(1), "z": "1", "a": "1", "m": "1"}}
	changes := Classify(added, removed, []string{"id"}, cols, testLogger())
	require.Equal(t, []string{"z", "a", "m"}, changes[0].(Update).ChangedColumns)
}
