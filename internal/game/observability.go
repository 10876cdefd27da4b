package game

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics with bounded cardinality (no per-player or per-world labels).
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "game_tick_duration_seconds",
		Help:    "Time spent in one world tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	worldGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_worlds_active",
		Help: "Currently running worlds",
	})

	snapshotsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_snapshots_dropped_total",
		Help: "Snapshots replaced in subscriber channels because the consumer lagged",
	})

	runnerPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_runner_panics_total",
		Help: "World runners torn down by a panic",
	})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_events_dropped_total",
		Help: "Events shed because the listener delivery queue was full",
	})

	snapshotSaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_snapshot_saves_total",
		Help: "Snapshots persisted to disk",
	})

	snapshotSaveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_snapshot_save_errors_total",
		Help: "Snapshot persistence failures",
	})
)
