// Package protocol defines the core datamodel shared by the assignment service,
// the batch optimizer and apply channels: shard identifiers and channels,
// durable Assignments, and the row-change Events delivered by an extractor.
// As with other datamodel packages, a central goal is to be exacting in the
// allowed "shapes" of these types through implementations of Validator, so that
// downstream components may assume well-formed inputs. In particular, every
// schema, table and column name which reaches generated SQL has been validated
// as a plain identifier.
//
// By convention, this package is usually imported as `pb`. Eg,
//
// import pb "go.shardapply.dev/core/protocol"
package protocol
