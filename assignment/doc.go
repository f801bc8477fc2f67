// Package assignment implements the durable binding of shards to parallel
// apply channels. Each shard is bound to exactly one channel on first use,
// and thereafter keeps that channel for the lifetime of the deployment: all
// events of a shard are applied by a single channel, in order, which is what
// preserves per-shard ordering without per-event locking.
//
// Table is the relational persistence of Assignments, and owns validation of
// persisted Assignments against the configured channel count. A reduced
// channel count is never tolerated: were a shard assigned to a channel which
// no longer exists, its events would be re-bound to another channel while
// earlier events may remain un-applied, splitting the shard.
//
// Service is the authoritative, synchronized cache over a Table. It allocates
// channels round-robin to previously-unseen shards, persisting each Assignment
// before it's returned (write-before-use), and manages the lifecycle of its
// single store connection, including re-connection after idle periods.
package assignment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assignmentAllocatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shardapply_assignment_allocated_total",
		Help: "Cumulative number of shard / channel assignments allocated and persisted.",
	})
	assignmentAccessFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shardapply_assignment_access_failures_total",
		Help: "Cumulative number of failed accesses of the assignment store.",
	})
	assignmentReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shardapply_assignment_store_reconnects_total",
		Help: "Cumulative number of idle-timeout re-connections of the assignment store.",
	})
	assignmentsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shardapply_assignments",
		Help: "Number of shard / channel assignments known to the assignment service.",
	})
	assignmentMaxChannelGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shardapply_assignment_max_channel",
		Help: "Highest channel number assigned to any shard, or -1 if none.",
	})
)
