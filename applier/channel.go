package applier

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.shardapply.dev/core/batch"
	"go.shardapply.dev/core/dialect"
	pb "go.shardapply.dev/core/protocol"
)

// Opener opens the *DB of a Channel. |onWarning| must be invoked with each
// warning raised by the server while executing statements.
type Opener func(onWarning func(msg string)) (*sql.DB, error)

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	// ID of the Channel.
	ID pb.Channel
	// QueueSize is the number of Events which may be queued to the Channel
	// before Enqueue blocks.
	QueueSize int
	// MaxRows bounds the rows of a single bulk statement. Zero is unbounded.
	MaxRows int
	// TableCacheSize and TableCacheTTL configure the Channel's TableCache.
	TableCacheSize int
	TableCacheTTL  time.Duration
}

// Channel applies queued Events, in order, to the target database.
type Channel struct {
	id        pb.Channel
	label     string
	db        *sql.DB
	optimizer *batch.Optimizer
	tables    *TableCache

	queue    chan pb.Event
	haltedCh chan struct{}

	mu     sync.Mutex
	status Status
}

// Status is a point-in-time snapshot of a Channel.
type Status struct {
	ID        pb.Channel `json:"id"`
	Events    int64      `json:"events"`
	Rows      int64      `json:"rows"`
	LastSeqno int64      `json:"lastSeqno"`
	Warnings  int64      `json:"warnings"`
	Queued    int        `json:"queued"`
	Halted    bool       `json:"halted"`
	Err       string     `json:"err,omitempty"`
}

// NewChannel returns a Channel of the ChannelConfig, which opens and
// exclusively owns a *DB of Dialect |d|.
func NewChannel(cfg ChannelConfig, d dialect.Dialect, open Opener) (*Channel, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.TableCacheSize <= 0 {
		cfg.TableCacheSize = 256
	}
	var c = &Channel{
		id:        cfg.ID,
		label:     strconv.Itoa(int(cfg.ID)),
		optimizer: &batch.Optimizer{Dialect: d, MaxRows: cfg.MaxRows},
		tables:    NewTableCache(d, cfg.TableCacheSize, cfg.TableCacheTTL),
		queue:     make(chan pb.Event, cfg.QueueSize),
		haltedCh:  make(chan struct{}),
		status:    Status{ID: cfg.ID, LastSeqno: -1},
	}

	var db, err = open(c.onWarning)
	if err != nil {
		return nil, errors.WithMessagef(err, "opening channel %d", cfg.ID)
	}
	// Statements of a Channel are strictly sequential.
	db.SetMaxOpenConns(1)
	c.db = db

	return c, nil
}

// ID of the Channel.
func (c *Channel) ID() pb.Channel { return c.id }

// Enqueue |ev| for application, blocking while the queue is full.
// It returns ErrChannelHalted if the Channel has halted, including when the
// halt raced with the queueing of |ev|. Enqueue must not be called
// concurrently with CloseQueue, nor after it.
func (c *Channel) Enqueue(ctx context.Context, ev pb.Event) error {
	if c.isHalted() {
		return ErrChannelHalted
	}
	select {
	case c.queue <- ev:
	case <-c.haltedCh:
		return ErrChannelHalted
	case <-ctx.Done():
		return ctx.Err()
	}
	// A halted Channel never applies its queued Events.
	if c.isHalted() {
		return ErrChannelHalted
	}
	return nil
}

func (c *Channel) isHalted() bool {
	select {
	case <-c.haltedCh:
		return true
	default:
		return false
	}
}

// CloseQueue signals that no further Events will be enqueued. Run returns
// after applying all Events already queued.
func (c *Channel) CloseQueue() { close(c.queue) }

// Run applies queued Events until the queue is closed and drained, or |ctx|
// is cancelled, returning nil. If an Event fails to apply, its transaction is
// rolled back, the Channel halts, and Run returns the *ApplyError.
//
// |onApplied|, if non-nil, is called with each Event after its transaction
// commits, in queue order. Events which fail, or which remain queued upon
// cancellation or halt, are never passed to |onApplied|.
func (c *Channel) Run(ctx context.Context, onApplied func(pb.Event)) error {
	log.WithField("channel", c.id).Debug("apply channel started")

	for {
		var ev pb.Event
		var ok bool

		select {
		case ev, ok = <-c.queue:
		case <-ctx.Done():
			log.WithField("channel", c.id).Debug("apply channel cancelled")
			return nil
		}
		if !ok {
			log.WithField("channel", c.id).Debug("apply channel drained")
			return nil
		}

		if err := c.apply(ctx, ev); err != nil {
			if ctx.Err() != nil {
				// The in-flight transaction was aborted by cancellation.
				log.WithFields(log.Fields{"channel": c.id, "seqno": ev.Seqno}).
					Info("apply channel cancelled during event")
				return nil
			}
			c.halt(err)
			return err
		}
		if onApplied != nil {
			onApplied(ev)
		}
	}
}

// Status returns a snapshot of the Channel.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s = c.status
	s.Queued = len(c.queue)
	return s
}

// Close the *DB of the Channel. Run must have returned.
func (c *Channel) Close() error {
	return c.db.Close()
}

// apply |ev| within a single transaction.
func (c *Channel) apply(ctx context.Context, ev pb.Event) error {
	var started = time.Now()
	var applyErr = func(cs, row int, text string, err error) error {
		return &ApplyError{
			Channel:   c.id,
			Seqno:     ev.Seqno,
			ShardID:   ev.ShardID,
			ChangeSet: cs,
			Row:       row,
			SQL:       text,
			Err:       err,
		}
	}

	var tx, err = c.db.BeginTx(ctx, nil)
	if err != nil {
		return applyErr(0, -1, "", errors.WithMessage(err, "begin"))
	}
	// Rollback is a no-op after a successful Commit.
	defer func() { _ = tx.Rollback() }()

	for i := range ev.ChangeSets {
		var cs = ev.ChangeSets[i]

		info, err := c.tables.Lookup(ctx, tx, cs.Schema, cs.Table)
		if err != nil {
			return applyErr(i, -1, "", err)
		}
		for _, stmt := range c.optimizer.Build(cs, info) {
			if _, err = tx.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
				// Table definitions may have changed.
				c.tables.Invalidate(cs.Schema, cs.Table)
				return applyErr(i, stmt.FirstRow, stmt.SQL, err)
			}
			applyStatementsTotal.WithLabelValues(c.label, stmt.Kind.String()).Inc()
		}
	}
	if err = tx.Commit(); err != nil {
		return applyErr(0, -1, "", errors.WithMessage(err, "commit"))
	}

	var rows = ev.RowCount()
	applyEventsTotal.WithLabelValues(c.label).Inc()
	applyRowsTotal.WithLabelValues(c.label).Add(float64(rows))
	applyEventSeconds.WithLabelValues(c.label).Observe(time.Since(started).Seconds())

	c.mu.Lock()
	c.status.Events++
	c.status.Rows += int64(rows)
	c.status.LastSeqno = ev.Seqno
	c.mu.Unlock()

	return nil
}

// halt the Channel on |err|.
func (c *Channel) halt(err error) {
	applyFailuresTotal.WithLabelValues(c.label).Inc()

	c.mu.Lock()
	c.status.Halted = true
	c.status.Err = err.Error()
	c.mu.Unlock()

	close(c.haltedCh)

	var fields = log.Fields{"channel": c.id, "err": err}
	var ae *ApplyError
	if errors.As(err, &ae) {
		fields["seqno"] = ae.Seqno
		fields["shard"] = ae.ShardID
		fields["sql"] = ae.SQL
	}
	log.WithFields(fields).Error("apply channel halted")
}

// onWarning records a server warning. It doesn't fail the Channel,
// nor reset its progress.
func (c *Channel) onWarning(msg string) {
	applyWarningsTotal.WithLabelValues(c.label).Inc()

	c.mu.Lock()
	c.status.Warnings++
	c.mu.Unlock()

	log.WithFields(log.Fields{"channel": c.id, "warning": msg}).Warn("server warning while applying")
}
