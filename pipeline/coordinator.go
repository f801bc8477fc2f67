package pipeline

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.shardapply.dev/core/applier"
	"go.shardapply.dev/core/assignment"
	pb "go.shardapply.dev/core/protocol"
	"go.shardapply.dev/core/task"
)

// Source is a sequence of Events to apply.
type Source interface {
	// Next returns the next Event, blocking until one is available.
	// It returns io.EOF when the Source is exhausted.
	Next(ctx context.Context) (pb.Event, error)
	// Applied is called with each Event after its transaction has committed
	// to the target. Calls are ordered for Events of a single Channel, and
	// concurrent across Channels. Events which are never applied, because
	// their Channel halted or the Coordinator stopped first, are never passed
	// to Applied.
	Applied(ev pb.Event)
}

// Coordinator routes Events to the Channels of their shards.
type Coordinator struct {
	// RetryInterval is the delay between attempts to dispatch an Event whose
	// channel couldn't be assigned due to an *assignment.AccessError.
	RetryInterval time.Duration

	runID    string
	service  *assignment.Service
	channels []*applier.Channel

	mu    sync.Mutex
	tasks *task.Group
}

// Status is a point-in-time snapshot of a Coordinator.
type Status struct {
	RunID      string            `json:"runId"`
	Assignment assignment.Status `json:"assignment"`
	Channels   []applier.Status  `json:"channels"`
	Tasks      []task.State      `json:"tasks,omitempty"`
}

// NewCoordinator returns a Coordinator of the prepared |service| and its
// |channels|, which must number service.Channels() and be ordered on ID.
// A disabled |service| may route only to a single Channel.
func NewCoordinator(service *assignment.Service, channels []*applier.Channel) (*Coordinator, error) {
	if len(channels) != service.Channels() {
		return nil, errors.Errorf("expected %d channels (got %d)", service.Channels(), len(channels))
	} else if !service.Active() && len(channels) != 1 {
		return nil, errors.Errorf("channel assignment service is disabled, but %d channels are configured", len(channels))
	}
	for i, ch := range channels {
		if ch.ID() != pb.Channel(i) {
			return nil, errors.Errorf("channels[%d] has ID %d", i, ch.ID())
		}
	}
	return &Coordinator{
		RetryInterval: time.Second,
		runID:         uuid.New().String(),
		service:       service,
		channels:      channels,
	}, nil
}

// RunID uniquely identifies this Coordinator.
func (c *Coordinator) RunID() string { return c.runID }

// Dispatch |ev| to the Channel of its shard, allocating the shard's channel
// if it's not yet assigned. A halted Channel fails with
// applier.ErrChannelHalted, while an unavailable assignment store fails
// with an *assignment.AccessError.
func (c *Coordinator) Dispatch(ctx context.Context, ev pb.Event) (pb.Channel, error) {
	if err := ev.Validate(); err != nil {
		dispatchFailuresTotal.WithLabelValues("invalid").Inc()
		return -1, errors.WithMessage(err, "invalid event")
	}

	var ch pb.Channel
	if c.service.Active() {
		var err error
		if ch, err = c.service.GetChannelAssignment(ctx, ev.ShardID); err != nil {
			dispatchFailuresTotal.WithLabelValues("assignment").Inc()
			return -1, err
		}
	}

	if err := c.channels[ch].Enqueue(ctx, ev); err == applier.ErrChannelHalted {
		dispatchFailuresTotal.WithLabelValues("halted").Inc()
		return ch, err
	} else if err != nil {
		return ch, err
	}
	dispatchEventsTotal.WithLabelValues(strconv.Itoa(int(ch))).Inc()
	return ch, nil
}

// Run the Coordinator, pumping Events from |src| until it's exhausted or
// |ctx| is cancelled, and applying them through the Channels. Run returns
// once all Channels have stopped. A halted Channel doesn't stop its
// siblings: Events of its shards are logged and skipped, and Run then fails
// with applier.ErrChannelHalted.
func (c *Coordinator) Run(ctx context.Context, src Source) error {
	var tasks = task.NewGroup(ctx)

	for _, ch := range c.channels {
		var ch = ch
		tasks.Queue("channel "+strconv.Itoa(int(ch.ID())), func() error {
			// A halted Channel logs its *ApplyError, and its siblings continue.
			_ = ch.Run(tasks.Context(), src.Applied)
			return nil
		})
	}
	tasks.Queue("dispatch", func() error {
		defer func() {
			for _, ch := range c.channels {
				ch.CloseQueue()
			}
		}()
		return c.pump(tasks.Context(), src)
	})

	log.WithFields(log.Fields{
		"run":      c.runID,
		"channels": len(c.channels),
	}).Info("starting apply pipeline")

	tasks.GoRun()

	c.mu.Lock()
	c.tasks = tasks
	c.mu.Unlock()

	var err = tasks.Wait()
	if err == nil {
		err = c.haltedErr()
	}

	log.WithFields(log.Fields{"run": c.runID, "err": err}).Info("apply pipeline stopped")
	return err
}

// haltedErr returns applier.ErrChannelHalted, naming each halted Channel,
// or nil if no Channel halted.
func (c *Coordinator) haltedErr() error {
	var halted []pb.Channel
	for _, ch := range c.channels {
		if ch.Status().Halted {
			halted = append(halted, ch.ID())
		}
	}
	if len(halted) == 0 {
		return nil
	}
	return errors.WithMessagef(applier.ErrChannelHalted, "channels %v", halted)
}

// pump Events from |src| to their Channels.
func (c *Coordinator) pump(ctx context.Context, src Source) error {
	for {
		var ev, err = src.Next(ctx)
		if err == io.EOF {
			return nil
		} else if ctx.Err() != nil {
			return nil
		} else if err != nil {
			return errors.WithMessage(err, "reading source")
		}

		ch, err := c.Dispatch(ctx, ev)
		for assignment.IsAccessError(err) && ctx.Err() == nil {
			log.WithFields(log.Fields{
				"run":   c.runID,
				"shard": ev.ShardID,
				"seqno": ev.Seqno,
				"err":   err,
			}).Warn("failed to assign channel (will retry)")

			select {
			case <-time.After(c.RetryInterval):
			case <-ctx.Done():
			}
			ch, err = c.Dispatch(ctx, ev)
		}

		switch {
		case err == nil:
		case errors.Cause(err) == applier.ErrChannelHalted:
			log.WithFields(log.Fields{
				"run":     c.runID,
				"shard":   ev.ShardID,
				"seqno":   ev.Seqno,
				"channel": ch,
			}).Warn("skipping event of halted channel")
		case ctx.Err() != nil:
			return nil
		default:
			return errors.WithMessagef(err, "dispatching seqno %d of shard %s", ev.Seqno, ev.ShardID)
		}
	}
}

// Status returns a snapshot of the Coordinator.
func (c *Coordinator) Status() Status {
	var s = Status{
		RunID:      c.runID,
		Assignment: c.service.Status(),
	}
	for _, ch := range c.channels {
		s.Channels = append(s.Channels, ch.Status())
	}
	c.mu.Lock()
	if c.tasks != nil {
		s.Tasks = c.tasks.States()
	}
	c.mu.Unlock()
	return s
}
