// Package source reads Events from the external change extractor. Each
// source yields Events in extracted order, and implements pipeline.Source.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	pb "go.shardapply.dev/core/protocol"
)

// File reads a stream of JSON-encoded Events, such as one Event per line.
type File struct {
	name    string
	closer  io.Closer
	dec     *json.Decoder
	decoded int64
}

// NewFile returns a File which reads Events from |r|.
func NewFile(name string, r io.Reader) *File {
	return &File{name: name, dec: json.NewDecoder(bufio.NewReaderSize(r, 1<<16))}
}

// OpenFile returns a File which reads Events from |path|, or from stdin if
// |path| is "-".
func OpenFile(path string) (*File, error) {
	if path == "-" {
		return NewFile("stdin", os.Stdin), nil
	}
	var f, err = os.Open(path)
	if err != nil {
		return nil, errors.WithMessage(err, "opening event file")
	}
	var out = NewFile(path, f)
	out.closer = f
	return out, nil
}

// Next decodes the next Event. It returns io.EOF at the end of the stream.
func (f *File) Next(ctx context.Context) (pb.Event, error) {
	if err := ctx.Err(); err != nil {
		return pb.Event{}, err
	}
	var ev pb.Event
	if err := f.dec.Decode(&ev); err == io.EOF {
		log.WithFields(log.Fields{"file": f.name, "events": f.decoded}).Info("reached end of event file")
		return pb.Event{}, io.EOF
	} else if err != nil {
		return pb.Event{}, errors.WithMessagef(err, "decoding event %d of %s", f.decoded, f.name)
	}
	f.decoded++
	return ev, nil
}

// Applied is a no-op: a File has no notion of consumed offsets.
func (f *File) Applied(pb.Event) {}

// Close the File.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
