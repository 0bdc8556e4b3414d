// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/pathnav/navigator/internal/config"
	"github.com/pathnav/navigator/internal/storage"
	"github.com/pathnav/navigator/pkg/core"
)

// ErrNoSession is storage.ErrNoSession.
var ErrNoSession = storage.ErrNoSession

// Backend keeps the flight log of one session in memory and writes it as JSON
// when the session ends.
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	events []core.EdgeEvent
	frames []core.Frame
	tracks []core.Track

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins a new flight log, dropping anything held from a previous one.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.ID == 0 {
		s.ID = 1
	}
	session := *s
	b.session = &session
	b.events = nil
	b.frames = nil
	b.tracks = nil
	b.idCounter = 0
	b.lastExportPath = ""
	return nil
}

// EndSession exports the flight log. The data stays readable until the next
// StartSession.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	return b.exportJSON()
}

// RecordEdgeEvent stores a navigator transition and assigns its ID.
func (b *Backend) RecordEdgeEvent(e *core.EdgeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.idCounter++
	e.ID = b.idCounter
	e.SessionID = b.session.ID
	b.events = append(b.events, *e)
	return nil
}

// RecordFrame stores a tracking sample.
func (b *Backend) RecordFrame(f *core.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	f.SessionID = b.session.ID
	b.frames = append(b.frames, *f)
	return nil
}

// RecordTrack stores the geometry of a finished recording and assigns its ID.
func (b *Backend) RecordTrack(t *core.Track) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.idCounter++
	t.ID = b.idCounter
	t.SessionID = b.session.ID
	track := *t
	track.Ticks = append([]int64(nil), t.Ticks...)
	track.Points = append([]core.Vec3(nil), t.Points...)
	b.tracks = append(b.tracks, track)
	return nil
}

// Events returns a copy of the stored edge events.
func (b *Backend) Events() []core.EdgeEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.EdgeEvent(nil), b.events...)
}

// Frames returns a copy of the stored frames.
func (b *Backend) Frames() []core.Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.Frame(nil), b.frames...)
}

// Tracks returns a copy of the stored tracks.
func (b *Backend) Tracks() []core.Track {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.Track(nil), b.tracks...)
}

// ExportedFilePath returns the file written by the last EndSession, or "".
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// ExportMetadata describes the current session for upload. Duration runs to the
// latest tick recorded.
func (b *Backend) ExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return core.UploadMetadata{}
	}

	var last int64
	for _, e := range b.events {
		last = max(last, e.Tick)
	}
	for _, f := range b.frames {
		last = max(last, f.Tick)
	}
	return core.UploadMetadata{
		VehicleName: b.session.VehicleName,
		Duration:    float64(last) * b.session.SecondsPerTick,
	}
}
