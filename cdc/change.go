package cdc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidelake/tidelake/store"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is a closed sum over the three row-level change variants. Each
// variant carries only the fields it needs; the JSON form tags every
// change with a "type" field.
type Change interface {
	Type() ChangeType
	isChange()
}

type Insert struct {
	Row store.Row `json:"row"`
}

func (Insert) Type() ChangeType { return ChangeInsert }
func (Insert) isChange()        {}

func (c Insert) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type ChangeType `json:"type"`
		Row  store.Row  `json:"row"`
	}{ChangeInsert, c.Row})
}

type Update struct {
	// Key holds the identity key columns and their values.
	Key    map[string]any `json:"key"`
	Before store.Row      `json:"before"`
	After  store.Row      `json:"after"`
	// ChangedColumns lists the non-key columns whose value differs
	// between Before and After, in schema order.
	ChangedColumns []string `json:"changed_columns"`
}

func (Update) Type() ChangeType { return ChangeUpdate }
func (Update) isChange()        {}

func (c Update) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type           ChangeType     `json:"type"`
		Key            map[string]any `json:"key"`
		Before         store.Row      `json:"before"`
		After          store.Row      `json:"after"`
		ChangedColumns []string       `json:"changed_columns"`
	}{ChangeUpdate, c.Key, c.Before, c.After, c.ChangedColumns})
}

type Delete struct {
	Row store.Row `json:"row"`
}

func (Delete) Type() ChangeType { return ChangeDelete }
func (Delete) isChange()        {}

func (c Delete) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type ChangeType `json:"type"`
		Row  store.Row  `json:"row"`
	}{ChangeDelete, c.Row})
}

// UnmarshalChanges decodes a JSON array of tagged changes, as produced by
// the JSON export, back into the typed variants.
func UnmarshalChanges(data []byte) ([]Change, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode change list: %w", err)
	}
	changes := make([]Change, 0, len(raw))
	for i, msg := range raw {
		var tag struct {
			Type ChangeType `json:"type"`
		}
		if err := json.Unmarshal(msg, &tag); err != nil {
			return nil, fmt.Errorf("failed to decode change %d: %w", i, err)
		}
		switch tag.Type {
		case ChangeInsert:
			var c Insert
			if err := json.Unmarshal(msg, &c); err != nil {
				return nil, fmt.Errorf("failed to decode insert %d: %w", i, err)
			}
			changes = append(changes, c)
		case ChangeUpdate:
			var c Update
			if err := json.Unmarshal(msg, &c); err != nil {
				return nil, fmt.Errorf("failed to decode update %d: %w", i, err)
			}
			changes = append(changes, c)
		case ChangeDelete:
			var c Delete
			if err := json.Unmarshal(msg, &c); err != nil {
				return nil, fmt.Errorf("failed to decode delete %d: %w", i, err)
			}
			changes = append(changes, c)
		default:
			return nil, fmt.Errorf("change %d has unknown type %q", i, tag.Type)
		}
	}
	return changes, nil
}

type Summary struct {
	Inserts int `json:"inserts"`
	Updates int `json:"updates"`
	Deletes int `json:"deletes"`
}

func (s Summary) Total() int {
	return s.Inserts + s.Updates + s.Deletes
}

func summarize(changes []Change) Summary {
	var s Summary
	for _, c := range changes {
		switch c.Type() {
		case ChangeInsert:
			s.Inserts++
		case ChangeUpdate:
			s.Updates++
		case ChangeDelete:
			s.Deletes++
		}
	}
	return s
}

// ChangeSet is the classified difference between two snapshots of a
// table. FromSnapshotID is nil only when the table had no prior snapshot.
type ChangeSet struct {
	Table          string   `json:"table"`
	FromSnapshotID *int64   `json:"from_snapshot_id"`
	ToSnapshotID   *int64   `json:"to_snapshot_id"`
	Changes        []Change `json:"changes"`
	Summary        Summary  `json:"summary"`
}

// ChangeLogEntry summarizes one snapshot-to-snapshot transition.
type ChangeLogEntry struct {
	FromSnapshotID int64     `json:"from_snapshot_id"`
	ToSnapshotID   int64     `json:"to_snapshot_id"`
	Timestamp      time.Time `json:"timestamp"`
	Operation      string    `json:"operation"`
	Summary        Summary   `json:"summary"`
	ChangeCount    int       `json:"total_change_count"`
}

// ChangeSummary aggregates a ChangeSet down to counts plus the sorted
// union of columns touched by any change.
type ChangeSummary struct {
	Table           string   `json:"table"`
	FromSnapshotID  *int64   `json:"from_snapshot_id"`
	ToSnapshotID    *int64   `json:"to_snapshot_id"`
	Inserts         int      `json:"inserts"`
	Updates         int      `json:"updates"`
	Deletes         int      `json:"deletes"`
	TotalChanges    int      `json:"total_changes"`
	AffectedColumns []string `json:"affected_columns"`
}
