// Package pipeline wires a Source of Events, an assignment.Service, and a
// fixed set of applier.Channels into a running apply pipeline. The
// Coordinator labels each Event with the Channel of its shard and enqueues it
// there, which serializes all Events of a shard onto a single Channel.
package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardapply_dispatch_events_total",
		Help: "Cumulative number of events dispatched to an apply channel.",
	}, []string{"channel"})
	dispatchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardapply_dispatch_failures_total",
		Help: "Cumulative number of events which could not be dispatched, by reason.",
	}, []string{"reason"})
)
