package applier

import (
	"fmt"

	"github.com/pkg/errors"
	pb "go.shardapply.dev/core/protocol"
)

// ErrChannelHalted is returned when Events are enqueued to a Channel which
// has halted.
var ErrChannelHalted = errors.New("apply channel halted")

// ApplyError is the failure of a Channel to apply an Event. Row is the index,
// within ChangeSets[ChangeSet].Rows, of the first row of the failing
// statement, or -1 if the failure isn't attributable to a statement.
// SQL is the text of the failing statement, if any.
type ApplyError struct {
	Channel   pb.Channel
	Seqno     int64
	ShardID   pb.ShardID
	ChangeSet int
	Row       int
	SQL       string
	Err       error
}

func (e *ApplyError) Error() string {
	var s = fmt.Sprintf("channel %d: applying seqno %d of shard %s", e.Channel, e.Seqno, e.ShardID)
	if e.Row >= 0 {
		s += fmt.Sprintf(" (ChangeSets[%d].Rows[%d])", e.ChangeSet, e.Row)
	}
	s += ": " + e.Err.Error()
	if e.SQL != "" {
		s += fmt.Sprintf(" [sql: %s]", e.SQL)
	}
	return s
}

// Unwrap returns the underlying error of the ApplyError.
func (e *ApplyError) Unwrap() error { return e.Err }
