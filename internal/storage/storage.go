// internal/storage/storage.go
package storage

import (
	"errors"

	"github.com/pathnav/navigator/pkg/core"
)

// ErrNoSession is returned when data arrives outside StartSession/EndSession.
var ErrNoSession = errors.New("no active session")

// Backend is the interface every flight-log implementation satisfies.
// Calls come from the navigator goroutine; implementations that write from their own
// goroutines must copy what they keep.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Recording (IDs are assigned on the passed pointer where the backend has them)
	RecordEdgeEvent(e *core.EdgeEvent) error
	RecordFrame(f *core.Frame) error
	RecordTrack(t *core.Track) error
}

// Exporter is an optional interface for backends that write a file at EndSession.
type Exporter interface {
	ExportedFilePath() string
	ExportMetadata() core.UploadMetadata
}

// Discard is a Backend that drops everything.
type Discard struct{}

var _ Backend = Discard{}

func (Discard) Init() error                           { return nil }
func (Discard) Close() error                          { return nil }
func (Discard) StartSession(*core.Session) error      { return nil }
func (Discard) EndSession() error                     { return nil }
func (Discard) RecordEdgeEvent(*core.EdgeEvent) error { return nil }
func (Discard) RecordFrame(*core.Frame) error         { return nil }
func (Discard) RecordTrack(*core.Track) error         { return nil }
