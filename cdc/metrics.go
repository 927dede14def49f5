package cdc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	changesClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidelake_changes_classified_total",
		Help: "Row-level changes classified, by change type.",
	}, []string{"type"})

	changelogPairsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidelake_changelog_pairs_skipped_total",
		Help: "Snapshot pairs skipped while building a change log.",
	})

	replayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidelake_replay_errors_total",
		Help: "Changes that failed to apply during replay.",
	})
)

func countChanges(s Summary) {
	changesClassified.WithLabelValues(string(ChangeInsert)).Add(float64(s.Inserts))
	changesClassified.WithLabelValues(string(ChangeUpdate)).Add(float64(s.Updates))
	changesClassified.WithLabelValues(string(ChangeDelete)).Add(float64(s.Deletes))
}
