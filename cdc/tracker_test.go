package cdc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidelake/tidelake/store"
)

// fakeSource serves canned snapshots and row sets for tracker tests.
type fakeSource struct {
	snapshots []store.Snapshot
	data      map[int64]*store.RowSet
	broken    map[int64]bool
}

func (f *fakeSource) ListSnapshots(ctx context.Context, table string) ([]store.Snapshot, error) {
	return f.snapshots, nil
}

func (f *fakeSource) ResolveRef(ctx context.Context, table string, ref string) (int64, error) {
	return store.ResolveRefFromList(ref, f.snapshots)
}

func (f *fakeSource) MaterializeAsOf(ctx context.Context, table string, snapshotID int64) (*store.RowSet, error) {
	if f.broken[snapshotID] {
		return nil, errors.New("data file unreadable")
	}
	rs, ok := f.data[snapshotID]
	if !ok {
		return nil, store.ErrSnapshotNotFound
	}
	return rs, nil
}

func snapAt(id int64, minutes int) store.Snapshot {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return store.Snapshot{ID: id, Timestamp: base.Add(time.Duration(minutes) * time.Minute), Operation: "append"}
}

func TestChangesScenarioInsert(t *testing.T) {
	cols := []string{"id", "name"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0), snapAt(2, 1)},
		data: map[int64]*store.RowSet{
			1: rowSet(cols, store.Row{"id": int64(1), "name": "a"}),
			2: rowSet(cols, store.Row{"id": int64(1), "name": "a"}, store.Row{"id": int64(2), "name": "b"}),
		},
	}
	cs, err := NewTracker(src, testLogger()).Changes(context.Background(), "orders", "1", "2", []string{"id"})
	require.NoError(t, err)
	require.Equal(t, Summary{Inserts: 1}, cs.Summary)
	require.Equal(t, Insert{Row: store.Row{"id": int64(2), "name": "b"}}, cs.Changes[0])
	require.Equal(t, int64(1), *cs.FromSnapshotID)
	require.Equal(t, int64(2), *cs.ToSnapshotID)
}

func TestChangesScenarioUpdate(t *testing.T) {
	cols := []string{"id", "name", "value"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0), snapAt(2, 1)},
		data: map[int64]*store.RowSet{
			1: rowSet(cols, store.Row{"id": int64(1), "name": "a", "value": int64(10)}),
			2: rowSet(cols, store.Row{"id": int64(1), "name": "a", "value": int64(20)}),
		},
	}
	cs, err := NewTracker(src, testLogger()).Changes(context.Background(), "orders", "1", "2", []string{"id"})
	require.NoError(t, err)
	require.Equal(t, Summary{Updates: 1}, cs.Summary)
	update := cs.Changes[0].(Update)
	require.Equal(t, map[string]any{"id": int64(1)}, update.Key)
	require.Equal(t, []string{"value"}, update.ChangedColumns)
}

func TestChangesScenarioDelete(t *testing.T) {
	cols := []string{"id", "name"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0), snapAt(2, 1)},
		data: map[int64]*store.RowSet{
			1: rowSet(cols, store.Row{"id": int64(1), "name": "a"}, store.Row{"id": int64(2), "name": "b"}),
			2: rowSet(cols, store.Row{"id": int64(1), "name": "a"}),
		},
	}
	cs, err := NewTracker(src, testLogger()).Changes(context.Background(), "orders", "1", "2", []string{"id"})
	require.NoError(t, err)
	require.Equal(t, Summary{Deletes: 1}, cs.Summary)
	require.Equal(t, Delete{Row: store.Row{"id": int64(2), "name": "b"}}, cs.Changes[0])
}

func TestChangesNoPriorSnapshot(t *testing.T) {
	// Single snapshot: everything in it is an insert, no diff involved.
	cols := []string{"id"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0)},
		data: map[int64]*store.RowSet{
			1: rowSet(cols, store.Row{"id": int64(1)}, store.Row{"id": int64(2)}, store.Row{"id": int64(3)}),
		},
	}
	cs, err := NewTracker(src, testLogger()).Changes(context.Background(), "orders", "", "", nil)
	require.NoError(t, err)
	require.Nil(t, cs.FromSnapshotID)
	require.Equal(t, int64(1), *cs.ToSnapshotID)
	require.Equal(t, Summary{Inserts: 3}, cs.Summary)
	require.Len(t, cs.Changes, 3)
}

func TestChangesSameSnapshot(t *testing.T) {
	cols := []string{"id"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0), snapAt(2, 1)},
		data: map[int64]*store.RowSet{
			1: rowSet(cols, store.Row{"id": int64(1)}),
			2: rowSet(cols, store.Row{"id": int64(1)}),
		},
	}
	cs, err := NewTracker(src, testLogger()).Changes(context.Background(), "orders", "2", "2", nil)
	require.NoError(t, err)
	require.Empty(t, cs.Changes)
	require.Equal(t, Summary{}, cs.Summary)
	require.Equal(t, *cs.FromSnapshotID, *cs.ToSnapshotID)
}

func TestChangesDefaultsToLastPair(t *testing.T) {
	cols := []string{"id"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0), snapAt(2, 1), snapAt(3, 2)},
		data: map[int64]*store.RowSet{
			1: rowSet(cols),
			2: rowSet(cols, store.Row{"id": int64(1)}),
			3: rowSet(cols, store.Row{"id": int64(1)}, store.Row{"id": int64(2)}),
		},
	}
	cs, err := NewTracker(src, testLogger()).Changes(context.Background(), "orders", "", "", nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), *cs.FromSnapshotID)
	require.Equal(t, int64(3), *cs.ToSnapshotID)
	require.Equal(t, Summary{Inserts: 1}, cs.Summary)
}

func TestChangesNoSnapshots(t *testing.T) {
	src := &fakeSource{data: map[int64]*store.RowSet{}}
	cs, err := NewTracker(src, testLogger()).Changes(context.Background(), "orders", "", "", nil)
	require.NoError(t, err)
	require.Nil(t, cs.FromSnapshotID)
	require.Nil(t, cs.ToSnapshotID)
	require.Empty(t, cs.Changes)
}

func TestChangesUnresolvableRef(t *testing.T) {
	cols := []string{"id"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0)},
		data:      map[int64]*store.RowSet{1: rowSet(cols)},
	}
	_, err := NewTracker(src, testLogger()).Changes(context.Background(), "orders", "99", "", nil)
	require.True(t, errors.Is(err, store.ErrSnapshotNotFound))
}

func TestChangesConservation(t *testing.T) {
	cols := []string{"id", "v"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0), snapAt(2, 1)},
		data: map[int64]*store.RowSet{
			1: rowSet(cols,
				store.Row{"id": int64(1), "v": "a"},
				store.Row{"id": int64(2), "v": "b"},
				store.Row{"id": int64(3), "v": "c"},
			),
			2: rowSet(cols,
				store.Row{"id": int64(1), "v": "a2"},
				store.Row{"id": int64(3), "v": "c"},
				store.Row{"id": int64(4), "v": "d"},
			),
		},
	}
	cs, err := NewTracker(src, testLogger()).Changes(context.Background(), "orders", "1", "2", []string{"id"})
	require.NoError(t, err)
	require.Equal(t, len(cs.Changes), cs.Summary.Total())
	require.Equal(t, Summary{Inserts: 1, Updates: 1, Deletes: 1}, cs.Summary)
}

func TestChangeLogNewestFirst(t *testing.T) {
	cols := []string{"id"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0), snapAt(2, 1), snapAt(3, 2)},
		data: map[int64]*store.RowSet{
			1: rowSet(cols, store.Row{"id": int64(1)}),
			2: rowSet(cols, store.Row{"id": int64(1)}, store.Row{"id": int64(2)}),
			3: rowSet(cols, store.Row{"id": int64(2)}),
		},
	}
	entries, err := NewTracker(src, testLogger()).ChangeLog(context.Background(), "orders", 100, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(2), entries[0].FromSnapshotID)
	require.Equal(t, int64(3), entries[0].ToSnapshotID)
	require.Equal(t, Summary{Deletes: 1}, entries[0].Summary)
	require.Equal(t, int64(1), entries[1].FromSnapshotID)
	require.Equal(t, Summary{Inserts: 1}, entries[1].Summary)
	require.Equal(t, 1, entries[0].ChangeCount)
}

func TestChangeLogLimitTakesTail(t *testing.T) {
	cols := []string{"id"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0), snapAt(2, 1), snapAt(3, 2), snapAt(4, 3)},
		data: map[int64]*store.RowSet{
			1: rowSet(cols),
			2: rowSet(cols, store.Row{"id": int64(1)}),
			3: rowSet(cols, store.Row{"id": int64(1)}, store.Row{"id": int64(2)}),
			4: rowSet(cols, store.Row{"id": int64(1)}),
		},
	}
	entries, err := NewTracker(src, testLogger()).ChangeLog(context.Background(), "orders", 2, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// The two most recent transitions only.
	require.Equal(t, int64(4), entries[0].ToSnapshotID)
	require.Equal(t, int64(3), entries[1].ToSnapshotID)
}

func TestChangeLogSkipsBrokenPair(t *testing.T) {
	cols := []string{"id"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0), snapAt(2, 1), snapAt(3, 2)},
		data: map[int64]*store.RowSet{
			1: rowSet(cols, store.Row{"id": int64(1)}),
			2: rowSet(cols, store.Row{"id": int64(1)}, store.Row{"id": int64(2)}),
			3: rowSet(cols, store.Row{"id": int64(2)}),
		},
		broken: map[int64]bool{2: true},
	}
	entries, err := NewTracker(src, testLogger()).ChangeLog(context.Background(), "orders", 100, nil)
	require.NoError(t, err)
	// Both pairs touch snapshot 2, so both are skipped, but the log
	// build itself does not fail.
	require.Empty(t, entries)
}

func TestSummaryAffectedColumns(t *testing.T) {
	cols := []string{"id", "name", "value"}
	src := &fakeSource{
		snapshots: []store.Snapshot{snapAt(1, 0), snapAt(2, 1)},
		data: map[int64]*store.RowSet{
			1: rowSet(cols,
				store.Row{"id": int64(1), "name": "a", "value": int64(10)},
				store.Row{"id": int64(2), "name": "b", "value": int64(5)},
			),
			2: rowSet(cols,
				store.Row{"id": int64(1), "name": "a", "value": int64(20)},
			),
		},
	}
	summary, err := NewTracker(src, testLogger()).Summary(context.Background(), "orders", "1", "2", []string{"id"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Updates)
	require.Equal(t, 1, summary.Deletes)
	require.Equal(t, 2, summary.TotalChanges)
	// Update contributes its changed columns, delete its whole row.
	require.Equal(t, []string{"id", "name", "value"}, summary.AffectedColumns)
}
