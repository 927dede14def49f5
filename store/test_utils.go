package store

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// StoreTest exercises the versioned-write contract against any Store
// backend. Backend test files call these with their own connection.
type StoreTest struct{}

func testTableName() string {
	return "t_" + uuid.New().String()[:8]
}

func (s *StoreTest) TestVersionedWrites(t *testing.T, st Store) {
	ctx := context.Background()
	table := testTableName()
	err := st.CreateTable(ctx, table, []Column{
		{Name: "id", Type: "INTEGER"},
		{Name: "name", Type: "TEXT"},
		{Name: "amount", Type: "REAL"},
	})
	require.NoError(t, err, "failed to create table")

	n, err := st.InsertRows(ctx, table, []Row{
		{"id": int64(1), "name": "alpha", "amount": 10.5},
		{"id": int64(2), "name": "beta", "amount": nil},
	})
	require.NoError(t, err, "failed to insert rows")
	require.Equal(t, int64(2), n)

	n, err = st.UpdateRows(ctx, table, `"id" = 2`, map[string]any{"amount": 7.25})
	require.NoError(t, err, "failed to update rows")
	require.Equal(t, int64(1), n)

	n, err = st.DeleteRows(ctx, table, `"id" = 1`)
	require.NoError(t, err, "failed to delete rows")
	require.Equal(t, int64(1), n)

	snapshots, err := st.ListSnapshots(ctx, table)
	require.NoError(t, err, "failed to list snapshots")
	require.Len(t, snapshots, 3)
	require.Equal(t, "append", snapshots[0].Operation)
	require.Equal(t, "overwrite", snapshots[1].Operation)
	require.Equal(t, "delete", snapshots[2].Operation)
	require.Nil(t, snapshots[0].ParentID)
	require.Equal(t, snapshots[0].ID, *snapshots[1].ParentID)
	require.Equal(t, snapshots[1].ID, *snapshots[2].ParentID)
	require.False(t, snapshots[1].Timestamp.Before(snapshots[0].Timestamp))

	// The first snapshot stays immutable through later writes.
	rs, err := st.MaterializeAsOf(ctx, table, snapshots[0].ID)
	require.NoError(t, err, "failed to materialize first snapshot")
	require.Equal(t, []string{"id", "name", "amount"}, rs.Columns)
	require.Len(t, rs.Rows, 2)
	require.Equal(t, Row{"id": int64(1), "name": "alpha", "amount": 10.5}, rs.Rows[0])
	require.Nil(t, rs.Rows[1]["amount"])

	rs, err = st.MaterializeAsOf(ctx, table, snapshots[2].ID)
	require.NoError(t, err, "failed to materialize last snapshot")
	require.Len(t, rs.Rows, 1)
	require.Equal(t, int64(2), rs.Rows[0]["id"])
	require.Equal(t, 7.25, rs.Rows[0]["amount"])
}

func (s *StoreTest) TestZeroMatchWritesCommitNoSnapshot(t *testing.T, st Store) {
	ctx := context.Background()
	table := testTableName()
	err := st.CreateTable(ctx, table, []Column{{Name: "id", Type: "INTEGER"}})
	require.NoError(t, err, "failed to create table")

	_, err = st.InsertRows(ctx, table, []Row{{"id": int64(1)}})
	require.NoError(t, err, "failed to insert rows")

	n, err := st.UpdateRows(ctx, table, `"id" = 99`, map[string]any{"id": int64(3)})
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	n, err = st.DeleteRows(ctx, table, `"id" = 99`)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	snapshots, err := st.ListSnapshots(ctx, table)
	require.NoError(t, err, "failed to list snapshots")
	require.Len(t, snapshots, 1)
}

func (s *StoreTest) TestResolveRef(t *testing.T, st Store) {
	ctx := context.Background()
	table := testTableName()
	err := st.CreateTable(ctx, table, []Column{{Name: "id", Type: "INTEGER"}})
	require.NoError(t, err, "failed to create table")

	_, err = st.InsertRows(ctx, table, []Row{{"id": int64(1)}})
	require.NoError(t, err)
	_, err = st.InsertRows(ctx, table, []Row{{"id": int64(2)}})
	require.NoError(t, err)

	snapshots, err := st.ListSnapshots(ctx, table)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	id, err := st.ResolveRef(ctx, table, strconv.FormatInt(snapshots[1].ID, 10))
	require.NoError(t, err)
	require.Equal(t, snapshots[1].ID, id)

	_, err = st.ResolveRef(ctx, table, "12345")
	require.True(t, errors.Is(err, ErrSnapshotNotFound))

	_, err = st.MaterializeAsOf(ctx, table, 12345)
	require.True(t, errors.Is(err, ErrSnapshotNotFound))
}

func (s *StoreTest) TestUnknownTable(t *testing.T, st Store) {
	ctx := context.Background()
	_, err := st.ListSnapshots(ctx, "no_such_table")
	require.True(t, errors.Is(err, ErrTableNotFound))

	_, err = st.InsertRows(ctx, "no_such_table", []Row{{"id": int64(1)}})
	require.True(t, errors.Is(err, ErrTableNotFound))
}
