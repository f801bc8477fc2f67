package assignment

import (
	"fmt"

	"github.com/pkg/errors"
	pb "go.shardapply.dev/core/protocol"
)

var (
	// ErrServiceInactive is returned by operations of a Service which has
	// been disabled by configuration, eg because the target is not relational.
	ErrServiceInactive = errors.New("service not enabled")
	// ErrInconsistentConfiguration is returned when persisted Assignments
	// reference a channel which is not valid under the configured channel count.
	// It's fatal: the process must not continue to apply events.
	ErrInconsistentConfiguration = errors.New("inconsistent channel configuration")
	// ErrAssignmentConflict is returned when an explicit Assignment would
	// re-bind a shard to a different channel.
	ErrAssignmentConflict = errors.New("shard is assigned to a different channel")
)

// AccessError is a recoverable failure to read or write the assignment store
// during runtime operation. The Service cache remains valid, and the operation
// may be retried by the caller.
type AccessError struct {
	Op      string
	ShardID pb.ShardID
	Err     error
}

func (e *AccessError) Error() string {
	if e.ShardID == "" {
		return fmt.Sprintf("assignment store %s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("assignment store %s (shard %s): %s", e.Op, e.ShardID, e.Err)
}

// Unwrap returns the underlying error of the AccessError.
func (e *AccessError) Unwrap() error { return e.Err }

// IsAccessError returns true if |err| is, or wraps, an *AccessError.
func IsAccessError(err error) bool {
	var ae *AccessError
	return errors.As(err, &ae)
}
