package assignment

import (
	"time"

	pb "go.shardapply.dev/core/protocol"
)

// Config of a Service. It's built once at startup, and validated by NewService.
type Config struct {
	// Name of the Service, as presented in its Status.
	Name string
	// Channels is the number of parallel apply channels. It must be positive
	// and must not be reduced below any previously assigned channel.
	Channels int
	// Schema and Table name of persisted Assignments.
	Schema string
	Table  string
	// ReconnectTimeout is the maximum idle duration of the store connection,
	// after which it's closed and re-opened prior to its next use.
	// Zero disables re-connection.
	ReconnectTimeout time.Duration
	// Disabled Services have no durable backing, and all active-only
	// operations fail with ErrServiceInactive.
	Disabled bool
}

// Validate returns an error if the Config is not well-formed.
func (c Config) Validate() error {
	if c.Channels <= 0 {
		return pb.NewValidationError("invalid Channels (%d; expected > 0)", c.Channels)
	} else if c.ReconnectTimeout < 0 {
		return pb.NewValidationError("invalid ReconnectTimeout (%s; expected >= 0)", c.ReconnectTimeout)
	} else if err := pb.ValidateIdentifier(c.Schema, 0, pb.MaxIdentifierLen); err != nil {
		return pb.ExtendContext(err, "Schema")
	} else if err = pb.ValidateIdentifier(c.Table, 0, pb.MaxIdentifierLen); err != nil {
		return pb.ExtendContext(err, "Table")
	}
	return nil
}
