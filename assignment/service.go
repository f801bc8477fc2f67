package assignment

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.shardapply.dev/core/dialect"
	pb "go.shardapply.dev/core/protocol"
)

// Opener opens a new *DB of the assignment store.
type Opener func() (*sql.DB, error)

// Service is the authoritative cache and allocator of shard Assignments.
// GetChannelAssignment and InsertChannelAssignment are serialized by a single
// critical section, which also guards re-connection of the store connection.
// A Service is constructed once per pipeline, prepared on pipeline start, and
// closed on its release.
type Service struct {
	cfg   Config
	table Table
	open  Opener
	// Now returns the current time. It may be replaced by tests.
	Now func() time.Time

	mu             sync.Mutex
	db             *sql.DB                   // Store connection. Owned exclusively by the Service.
	assignments    map[pb.ShardID]pb.Channel // Cache of all Assignments.
	nextChannel    pb.Channel                // Round-robin cursor.
	maxChannel     pb.Channel                // High-water mark of assigned channels, or -1.
	lastAccess     time.Time                 // Time of the last store access.
	accessFailures int64                     // Number of failed runtime store accesses.
	reconnects     int64                     // Number of idle re-connections.
}

// Status is a point-in-time snapshot of a Service, for monitoring.
type Status struct {
	Name             string     `json:"name"`
	TotalAssignments int        `json:"totalAssignments"`
	MaxChannel       pb.Channel `json:"maxChannel"`
	AccessFailures   int64      `json:"accessFailures"`
	Active           bool       `json:"active"`
	Reconnects       int64      `json:"reconnects"`
	LastAccess       time.Time  `json:"lastAccess"`
}

// NewService returns a Service of the validated Config, which persists
// Assignments in the |d| Dialect through connections built by |open|.
// An empty Config Name is replaced with a generated one.
func NewService(cfg Config, d dialect.Dialect, open Opener) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid assignment config")
	}
	if cfg.Name == "" {
		cfg.Name = petname.Generate(2, "-")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTableName
	}
	return &Service{
		cfg:         cfg,
		table:       Table{Dialect: d, Schema: cfg.Schema, Name: cfg.Table},
		open:        open,
		Now:         time.Now,
		assignments: make(map[pb.ShardID]pb.Channel),
		maxChannel:  -1,
	}, nil
}

// Active is true if the Service is backed by a durable store.
func (s *Service) Active() bool { return !s.cfg.Disabled }

// Channels returns the configured channel count.
func (s *Service) Channels() int { return s.cfg.Channels }

// Name of the Service.
func (s *Service) Name() string { return s.cfg.Name }

// Prepare connects to the store, creates and validates its Table against the
// configured channel count, and loads all Assignments into the cache. An
// inactive Service returns immediately. Errors of Prepare are fatal.
func (s *Service) Prepare(ctx context.Context) error {
	if !s.Active() {
		log.WithField("name", s.cfg.Name).Info("channel assignment service is disabled")
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	if err := s.connect(ctx); err != nil {
		return errors.WithMessage(err, "connecting to assignment store")
	}
	s.lastAccess = s.Now()

	if err := s.table.Initialize(ctx, s.db, s.cfg.Channels); err != nil {
		return errors.WithMessage(err, "initializing assignment table")
	}
	var list, err = s.table.List(ctx, s.db)
	if err != nil {
		return errors.WithMessage(err, "loading assignments")
	}

	s.assignments = make(map[pb.ShardID]pb.Channel, len(list))
	s.maxChannel = -1
	for _, a := range list {
		s.assignments[a.ShardID] = a.Channel
		if a.Channel > s.maxChannel {
			s.maxChannel = a.Channel
		}
	}
	// Resume the round-robin after the highest channel already in use.
	s.nextChannel = (s.maxChannel + 1) % pb.Channel(s.cfg.Channels)
	s.updateGauges()

	log.WithFields(log.Fields{
		"name":        s.cfg.Name,
		"table":       s.table.QualifiedName(),
		"channels":    s.cfg.Channels,
		"assignments": len(s.assignments),
		"maxChannel":  s.maxChannel,
	}).Info("loaded channel assignments")

	return nil
}

// GetChannelAssignment returns the Channel of |shard|, allocating and
// persisting a new Assignment if the shard hasn't been seen before. New
// Assignments are allocated round-robin over the configured channels.
// Store failures are returned as *AccessError, and leave the cache unchanged.
func (s *Service) GetChannelAssignment(ctx context.Context, shard pb.ShardID) (pb.Channel, error) {
	if !s.Active() {
		return -1, ErrServiceInactive
	} else if err := shard.Validate(); err != nil {
		return -1, pb.ExtendContext(err, "ShardID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.assignments[shard]; ok {
		if int(ch) >= s.cfg.Channels {
			return -1, errors.WithMessagef(ErrInconsistentConfiguration,
				"shard %s is assigned to channel %d, but only %d channels are configured",
				shard, ch, s.cfg.Channels)
		}
		return ch, nil
	}

	var ch = s.nextChannel
	if int(ch) >= s.cfg.Channels {
		ch = 0
	}
	if err := s.persist(ctx, pb.Assignment{ShardID: shard, Channel: ch}); err != nil {
		return -1, err
	}
	s.nextChannel = ch + 1
	assignmentAllocatedTotal.Inc()

	log.WithFields(log.Fields{"shard": shard, "channel": ch}).Debug("allocated channel assignment")
	return ch, nil
}

// InsertChannelAssignment explicitly assigns |shard| to |channel|, as when a
// loader already knows the desired channel. Re-inserting an identical
// Assignment is a no-op, while a conflicting one fails with ErrAssignmentConflict.
func (s *Service) InsertChannelAssignment(ctx context.Context, shard pb.ShardID, channel pb.Channel) error {
	if !s.Active() {
		return ErrServiceInactive
	}
	var a = pb.Assignment{ShardID: shard, Channel: channel}
	if err := a.Validate(s.cfg.Channels); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.assignments[shard]; ok && cur == channel {
		return nil
	} else if ok {
		return errors.WithMessagef(ErrAssignmentConflict,
			"shard %s is assigned to channel %d, not %d", shard, cur, channel)
	}
	return s.persist(ctx, a)
}

// ListAssignments returns a snapshot of all Assignments, ordered on ShardID.
func (s *Service) ListAssignments() []pb.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out = make([]pb.Assignment, 0, len(s.assignments))
	for shard, ch := range s.assignments {
		out = append(out, pb.Assignment{ShardID: shard, Channel: ch})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShardID < out[j].ShardID })
	return out
}

// ReduceAssignments removes all Assignments from the store and the cache,
// allowing shards to be freshly re-allocated over the configured channels.
// It proceeds only if every persisted Assignment is valid under the configured
// channel count, and must only be called while no events are in flight.
// It returns the number of removed Assignments.
func (s *Service) ReduceAssignments(ctx context.Context) (int64, error) {
	if !s.Active() {
		return 0, ErrServiceInactive
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var db, err = s.storeHandle(ctx)
	if err != nil {
		return 0, s.accessFailure("reconnect", "", err)
	}
	max, err := s.table.MaxAssignedChannel(ctx, db)
	if err != nil {
		return 0, s.accessFailure("max-channel", "", err)
	} else if int(max) >= s.cfg.Channels {
		return 0, errors.WithMessagef(ErrInconsistentConfiguration,
			"refusing to reduce: channel %d is assigned, but only %d channels are configured",
			max, s.cfg.Channels)
	}
	n, err := s.table.DeleteAll(ctx, db)
	if err != nil {
		return 0, s.accessFailure("delete", "", err)
	}

	s.assignments = make(map[pb.ShardID]pb.Channel)
	s.nextChannel, s.maxChannel = 0, -1
	s.updateGauges()

	log.WithFields(log.Fields{"name": s.cfg.Name, "removed": n}).Warn("reduced channel assignments")
	return n, nil
}

// RemoveChannelAssignment removes the Assignment of |shard|, as when a shard
// is decommissioned. Like ReduceAssignments, it must only be called while no
// events of the shard are in flight. It returns false if the shard wasn't
// assigned.
func (s *Service) RemoveChannelAssignment(ctx context.Context, shard pb.ShardID) (bool, error) {
	if !s.Active() {
		return false, ErrServiceInactive
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var db, err = s.storeHandle(ctx)
	if err != nil {
		return false, s.accessFailure("reconnect", shard, err)
	}
	n, err := s.table.Delete(ctx, db, shard)
	if err != nil {
		return false, s.accessFailure("delete", shard, err)
	}
	delete(s.assignments, shard)

	s.maxChannel = -1
	for _, ch := range s.assignments {
		if ch > s.maxChannel {
			s.maxChannel = ch
		}
	}
	s.updateGauges()

	log.WithFields(log.Fields{"name": s.cfg.Name, "shard": shard, "removed": n}).Warn("removed channel assignment")
	return n != 0, nil
}

// Status returns a snapshot of the Service for monitoring.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Name:             s.cfg.Name,
		TotalAssignments: len(s.assignments),
		MaxChannel:       s.maxChannel,
		AccessFailures:   s.accessFailures,
		Active:           s.Active(),
		Reconnects:       s.reconnects,
		LastAccess:       s.lastAccess,
	}
}

// Close the store connection of the Service.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	var err = s.db.Close()
	s.db = nil
	return err
}

// persist writes Assignment |a| to the store and, only once it's durable,
// to the cache. s.mu must be held.
func (s *Service) persist(ctx context.Context, a pb.Assignment) error {
	var db, err = s.storeHandle(ctx)
	if err != nil {
		return s.accessFailure("reconnect", a.ShardID, err)
	} else if err = s.table.Insert(ctx, db, a); err != nil {
		return s.accessFailure("insert", a.ShardID, err)
	}

	s.assignments[a.ShardID] = a.Channel
	if a.Channel > s.maxChannel {
		s.maxChannel = a.Channel
	}
	s.updateGauges()
	return nil
}

// storeHandle returns the store connection, first closing and re-opening it
// if it's been idle for longer than the configured ReconnectTimeout.
// s.mu must be held.
func (s *Service) storeHandle(ctx context.Context) (*sql.DB, error) {
	var now = s.Now()

	if s.db != nil && s.cfg.ReconnectTimeout > 0 && now.Sub(s.lastAccess) > s.cfg.ReconnectTimeout {
		log.WithFields(log.Fields{
			"name": s.cfg.Name,
			"idle": now.Sub(s.lastAccess),
		}).Debug("re-connecting idle assignment store connection")

		if err := s.db.Close(); err != nil {
			log.WithField("err", err).Warn("failed to close idle assignment store connection")
		}
		s.db = nil
		s.reconnects++
		assignmentReconnectsTotal.Inc()
	}
	if s.db == nil {
		if err := s.connect(ctx); err != nil {
			return nil, err
		}
	}
	s.lastAccess = now
	return s.db, nil
}

// connect opens and pings a new store connection. s.mu must be held.
func (s *Service) connect(ctx context.Context) error {
	var db, err = s.open()
	if err != nil {
		return errors.WithMessage(err, "opening store")
	}
	// The Service uses a single store connection.
	db.SetMaxOpenConns(1)

	if err = dialect.Ping(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

// accessFailure records and logs a failed store access, returning it as an
// *AccessError. s.mu must be held.
func (s *Service) accessFailure(op string, shard pb.ShardID, err error) error {
	s.accessFailures++
	assignmentAccessFailuresTotal.Inc()

	log.WithFields(log.Fields{
		"name":     s.cfg.Name,
		"op":       op,
		"shard":    shard,
		"failures": s.accessFailures,
		"err":      err,
	}).Warn("assignment store access failed")

	return &AccessError{Op: op, ShardID: shard, Err: err}
}

func (s *Service) updateGauges() {
	assignmentsGauge.Set(float64(len(s.assignments)))
	assignmentMaxChannelGauge.Set(float64(s.maxChannel))
}
