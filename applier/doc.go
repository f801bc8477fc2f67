// Package applier applies Events to a target database. A Channel is a single
// goroutine owning one database connection, which applies the Events queued
// to it in FIFO order, each within one transaction. ChangeSets of an Event
// are rewritten into bulk statements by a batch.Optimizer, informed by
// primary-key metadata held in a TableCache.
//
// A Channel halts on its first failed statement, returning an *ApplyError
// which carries the failing SQL text and row position. Halting is local to
// the Channel: sibling Channels continue to apply. Server warnings raised
// while applying are logged and counted, and never fail the Channel.
package applier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	applyEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardapply_apply_events_total",
		Help: "Cumulative number of events committed by an apply channel.",
	}, []string{"channel"})
	applyRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardapply_apply_rows_total",
		Help: "Cumulative number of row changes committed by an apply channel.",
	}, []string{"channel"})
	applyStatementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardapply_apply_statements_total",
		Help: "Cumulative number of statements executed by an apply channel, by statement kind.",
	}, []string{"channel", "kind"})
	applyWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardapply_apply_warnings_total",
		Help: "Cumulative number of server warnings raised while applying.",
	}, []string{"channel"})
	applyFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardapply_apply_failures_total",
		Help: "Cumulative number of apply channels halted by a failed statement.",
	}, []string{"channel"})
	applyEventSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shardapply_apply_event_seconds",
		Help:    "Duration of applying and committing an event.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"channel"})
	tableCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shardapply_apply_table_cache_misses_total",
		Help: "Cumulative number of table metadata lookups which missed the cache.",
	})
)
