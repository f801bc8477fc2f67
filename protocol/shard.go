package protocol

import (
	"strings"
	"unicode/utf8"
)

// ShardID uniquely identifies a unit of change, such as one logical database,
// whose Events must be applied in a single total order. ShardIDs are opaque.
type ShardID string

// Validate returns an error if the ShardID is not well-formed.
func (id ShardID) Validate() error {
	if l := len(id); l == 0 || l > MaxShardIDLen {
		return NewValidationError("invalid length (%d; expected 1 <= length <= %d)", l, MaxShardIDLen)
	} else if !utf8.ValidString(string(id)) {
		return NewValidationError("not valid UTF-8 (%q)", string(id))
	} else if strings.TrimSpace(string(id)) != string(id) {
		return NewValidationError("has leading or trailing whitespace (%q)", string(id))
	}
	return nil
}

// String returns the ShardID as a string.
func (id ShardID) String() string { return string(id) }

// Channel is the index of a parallel apply channel, in the range
// [0, channelCount) of the deployment.
type Channel int

// Validate returns an error if the Channel is not in [0, |count|).
func (c Channel) Validate(count int) error {
	if c < 0 || int(c) >= count {
		return NewValidationError("invalid channel (%d; expected 0 <= channel < %d)", c, count)
	}
	return nil
}

// Assignment is the durable binding of a ShardID to a Channel. A ShardID has
// exactly one Assignment for the lifetime of the deployment.
type Assignment struct {
	ShardID ShardID `yaml:"shard" json:"shard"`
	Channel Channel `yaml:"channel" json:"channel"`
}

// Validate returns an error if the Assignment is not well-formed with respect
// to the deployment's |channelCount|.
func (a Assignment) Validate(channelCount int) error {
	if err := a.ShardID.Validate(); err != nil {
		return ExtendContext(err, "ShardID")
	} else if err = a.Channel.Validate(channelCount); err != nil {
		return ExtendContext(err, "Channel")
	}
	return nil
}
