// Package task runs groups of long-lived, cooperating goroutines, such as the
// apply channels and the event pump of a pipeline.
package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Group is a group of named tasks which are started together, and then
// collectively waited upon. The first task to return a non-nil error cancels
// the Group Context, which all tasks should monitor. Queue and GoRun are not
// thread-safe. Context and Cancel may be called from any goroutine, as may
// States once GoRun has returned.
type Group struct {
	ctx      context.Context
	cancelFn context.CancelFunc
	eg       *errgroup.Group

	tasks   []*task
	started bool
}

// State of a queued task.
type State struct {
	Desc     string        `json:"desc"`
	Running  bool          `json:"running"`
	Err      string        `json:"err,omitempty"`
	Duration time.Duration `json:"duration"`
}

type task struct {
	desc string
	fn   func() error

	mu    sync.Mutex
	begin time.Time
	end   time.Time
	err   error
}

// NewGroup returns a new, empty Group derived from |ctx|.
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	return &Group{ctx: ctx, cancelFn: cancel, eg: eg}
}

// Context of the Group. It's cancelled by a task returning an error, by
// Cancel, or by cancellation of the parent Context.
func (g *Group) Context() context.Context { return g.ctx }

// Cancel the Group Context.
func (g *Group) Cancel() { g.cancelFn() }

// Queue |fn| for execution under description |desc|. Queue panics if
// called after GoRun.
func (g *Group) Queue(desc string, fn func() error) {
	if g.started {
		panic("Queue called after GoRun")
	}
	g.tasks = append(g.tasks, &task{desc: desc, fn: fn})
}

// GoRun all queued tasks. It panics if called more than once.
func (g *Group) GoRun() {
	if g.started {
		panic("GoRun already called")
	}
	g.started = true

	for _, t := range g.tasks {
		t.mu.Lock()
		t.begin = time.Now()
		t.mu.Unlock()

		g.eg.Go(func() error {
			var err = t.fn()

			t.mu.Lock()
			t.end, t.err = time.Now(), err
			t.mu.Unlock()

			if err != nil {
				log.WithFields(log.Fields{"task": t.desc, "err": err}).Debug("task failed")
				return errors.WithMessage(err, t.desc)
			}
			log.WithField("task", t.desc).Debug("task completed")
			return nil
		})
	}
}

// Wait for all started tasks to complete, returning the first non-nil error.
// It panics if GoRun hasn't been called.
func (g *Group) Wait() error {
	if !g.started {
		panic("Wait called before GoRun")
	}
	var err = g.eg.Wait()
	g.cancelFn()
	return err
}

// States returns the State of each queued task, ordered on description.
func (g *Group) States() []State {
	var out = make([]State, 0, len(g.tasks))
	var now = time.Now()

	for _, t := range g.tasks {
		t.mu.Lock()
		var s = State{Desc: t.desc, Running: !t.begin.IsZero() && t.end.IsZero()}
		if t.err != nil {
			s.Err = t.err.Error()
		}
		if !t.end.IsZero() {
			s.Duration = t.end.Sub(t.begin)
		} else if !t.begin.IsZero() {
			s.Duration = now.Sub(t.begin)
		}
		t.mu.Unlock()

		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Desc < out[j].Desc })
	return out
}
