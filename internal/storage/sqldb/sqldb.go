// Package sqldb implements the storage.Backend interface on gorm, over sqlite or
// PostgreSQL. Rows are converted on the caller's goroutine, queued, and written in
// batches by a background writer, so recording never waits on the database.
package sqldb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pathnav/navigator/internal/database"
	"github.com/pathnav/navigator/internal/model"
	"github.com/pathnav/navigator/internal/model/convert"
	"github.com/pathnav/navigator/internal/queue"
	"github.com/pathnav/navigator/internal/storage"
	"github.com/pathnav/navigator/pkg/core"
	"github.com/rs/zerolog"
)

// ErrNoSession is storage.ErrNoSession.
var ErrNoSession = storage.ErrNoSession

const batchSize = 500

// Options tunes the writer.
type Options struct {
	// FlushInterval between background writes. Defaults to one second.
	FlushInterval time.Duration
	Clock         clock.Clock
}

// Backend writes the flight log through a database.Manager.
type Backend struct {
	db     *database.Manager
	log    zerolog.Logger
	opts   Options
	events *queue.Queue[model.EdgeEvent]
	frames *queue.Queue[model.Frame]
	tracks *queue.Queue[model.Track]

	mu      sync.Mutex
	session uint
	// writeMu serializes batches between the writer and explicit flushes.
	writeMu sync.Mutex

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a backend on an already connected manager.
func New(db *database.Manager, opts Options) *Backend {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Backend{
		db:     db,
		log:    db.Logger.With().Str("backend", "sqldb").Logger(),
		opts:   opts,
		events: queue.New[model.EdgeEvent](),
		frames: queue.New[model.Frame](),
		tracks: queue.New[model.Track](),
	}
}

// Init migrates the schema and starts the writer.
func (b *Backend) Init() error {
	if err := b.db.Setup(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.writeLoop()
	return nil
}

// Close stops the writer, writes what is left and closes the connection.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		b.wg.Wait()
		b.stopChan = nil
	}
	flushErr := b.Flush()
	return errors.Join(flushErr, b.db.Close())
}

func (b *Backend) writeLoop() {
	defer b.wg.Done()
	ticker := b.opts.Clock.Ticker(b.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.log.Error().Err(err).Msg("Failed to write flight log")
			}
		}
	}
}

// Flush writes every queued event, track and frame.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	return errors.Join(
		writeBatch(b, "edge events", b.events.Drain()),
		writeBatch(b, "tracks", b.tracks.Drain()),
		writeBatch(b, "frames", b.frames.Drain()),
	)
}

func writeBatch[T any](b *Backend, what string, batch []T) error {
	if len(batch) == 0 {
		return nil
	}
	start := time.Now()
	if err := b.db.DB.CreateInBatches(batch, batchSize).Error; err != nil {
		return fmt.Errorf("failed to insert %d %s: %w", len(batch), what, err)
	}
	b.log.Debug().Int("rows", len(batch)).Str("table", what).Dur("duration", time.Since(start)).Msg("Wrote batch")
	return nil
}

func (b *Backend) current() (uint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == 0 {
		return 0, ErrNoSession
	}
	return b.session, nil
}

// StartSession inserts the session row and assigns its ID.
func (b *Backend) StartSession(s *core.Session) error {
	row := convert.CoreToSession(*s)
	row.ID = 0
	if err := b.db.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	s.ID = row.ID

	b.mu.Lock()
	b.session = row.ID
	b.mu.Unlock()

	b.log.Info().Uint("session", row.ID).Str("vehicle", s.VehicleName).Msg("Session started")
	return nil
}

// EndSession writes pending rows, stamps the end time and, for an in-memory
// sqlite database with a dump path, saves it to disk.
func (b *Backend) EndSession() error {
	id, err := b.current()
	if err != nil {
		return err
	}
	if err := b.Flush(); err != nil {
		return err
	}
	if err := b.db.DB.Model(&model.Session{}).Where("id = ?", id).
		Update("end_time", time.Now()).Error; err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	b.mu.Lock()
	b.session = 0
	b.mu.Unlock()

	if b.db.Dialect == "sqlite" && b.db.SqliteFilePath != "" {
		if err := b.db.DumpMemoryToDisk(); err != nil {
			return err
		}
	}
	b.log.Info().Uint("session", id).Msg("Session ended")
	return nil
}

// RecordEdgeEvent queues the event for the writer.
func (b *Backend) RecordEdgeEvent(e *core.EdgeEvent) error {
	id, err := b.current()
	if err != nil {
		return err
	}
	e.SessionID = id
	row, err := convert.CoreToEdgeEvent(*e)
	if err != nil {
		return err
	}
	row.ID = 0
	b.events.Push(row)
	return nil
}

// RecordFrame queues the frame for the writer.
func (b *Backend) RecordFrame(f *core.Frame) error {
	id, err := b.current()
	if err != nil {
		return err
	}
	f.SessionID = id
	b.frames.Push(convert.CoreToFrame(*f))
	return nil
}

// RecordTrack queues the track for the writer.
func (b *Backend) RecordTrack(t *core.Track) error {
	id, err := b.current()
	if err != nil {
		return err
	}
	t.SessionID = id
	row, err := convert.CoreToTrack(*t)
	if err != nil {
		return err
	}
	row.ID = 0
	b.tracks.Push(row)
	return nil
}

// PendingFrames returns the number of frames not yet written.
func (b *Backend) PendingFrames() int {
	return b.frames.Len()
}

// Pending returns the number of queued rows of every kind.
func (b *Backend) Pending() int {
	return b.events.Len() + b.tracks.Len() + b.frames.Len()
}

// Events returns the stored events of a session in insertion order.
func (b *Backend) Events(sessionID uint) ([]core.EdgeEvent, error) {
	var rows []model.EdgeEvent
	if err := b.db.DB.Where("session_id = ?", sessionID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.EdgeEvent, len(rows))
	for i, r := range rows {
		out[i] = convert.EdgeEventToCore(r)
	}
	return out, nil
}

// LatestTrack returns the most recent track recorded for an edge in any session.
func (b *Backend) LatestTrack(start, end string) (core.Track, error) {
	var row model.Track
	err := b.db.DB.Where("start_waypoint = ? AND end_waypoint = ?", start, end).
		Order("id DESC").First(&row).Error
	if err != nil {
		return core.Track{}, err
	}
	return convert.TrackToCore(row)
}

// FrameCount returns the number of stored frames of a session.
func (b *Backend) FrameCount(sessionID uint) (int64, error) {
	var n int64
	err := b.db.DB.Model(&model.Frame{}).Where("session_id = ?", sessionID).Count(&n).Error
	return n, err
}
