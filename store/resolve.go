package store

import (
	"fmt"
	"strconv"
	"time"
)

var refTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ResolveRefFromList resolves a snapshot reference against an ordered
// snapshot list. A decimal ref must match a snapshot id exactly; an
// ISO-8601 ref resolves to the latest snapshot at or before that instant.
func ResolveRefFromList(ref string, snapshots []Snapshot) (int64, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for _, s := range snapshots {
			if s.ID == id {
				return id, nil
			}
		}
		return 0, fmt.Errorf("snapshot id %d: %w", id, ErrSnapshotNotFound)
	}

	ts, err := parseRefTime(ref)
	if err != nil {
		return 0, fmt.Errorf("ref %q is neither a snapshot id nor a timestamp: %w", ref, ErrSnapshotNotFound)
	}
	var found *Snapshot
	for i := range snapshots {
		if !snapshots[i].Timestamp.After(ts) {
			found = &snapshots[i]
		}
	}
	if found == nil {
		return 0, fmt.Errorf("no snapshot at or before %s: %w", ref, ErrSnapshotNotFound)
	}
	return found.ID, nil
}

func parseRefTime(ref string) (time.Time, error) {
	for _, layout := range refTimeLayouts {
		if ts, err := time.Parse(layout, ref); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", ref)
}
