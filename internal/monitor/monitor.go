// Package monitor keeps a status file next to the logs with the latest navigator
// snapshot. The file is rewritten in place so tail -f style tools and dashboards
// always see a single JSON document.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	// Status returns the value written under "status".
	Status func() any
	// Pending reports queued commands; optional.
	Pending func() int
	Path    string
	// Every writes the file once per this many ticks. Values below 1 mean every tick.
	Every  int
	Clock  clock.Clock
	Logger *slog.Logger
}

// Report is the document written to the status file.
type Report struct {
	Time    time.Time `json:"time"`
	Ticks   uint64    `json:"ticks"`
	Pending int       `json:"pending"`
	Status  any       `json:"status"`
}

// Service writes status reports from the scheduler goroutine.
type Service struct {
	deps  Dependencies
	file  *os.File
	ticks uint64
	mu    sync.Mutex
}

// NewService creates a new monitor service
func NewService(deps Dependencies) (*Service, error) {
	if deps.Status == nil {
		return nil, errors.New("monitor needs a status source")
	}
	if deps.Path == "" {
		return nil, errors.New("monitor needs a status file path")
	}
	if deps.Every < 1 {
		deps.Every = 1
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}, nil
}

// Open creates the status file, truncating an old one.
func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.deps.Path), 0755); err != nil {
		return fmt.Errorf("error creating status directory: %w", err)
	}
	f, err := os.Create(s.deps.Path)
	if err != nil {
		return fmt.Errorf("error creating status file: %w", err)
	}
	s.file = f
	s.deps.Logger.Debug("status monitor started", "path", s.deps.Path, "every", s.deps.Every)
	return nil
}

// Step counts a tick and rewrites the file when one is due. It is meant to run
// as a scheduler step.
func (s *Service) Step(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++
	if s.file == nil || s.ticks%uint64(s.deps.Every) != 0 {
		return nil
	}
	return s.write()
}

// Write rewrites the file now, regardless of the tick count.
func (s *Service) Write() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("status file not open")
	}
	return s.write()
}

func (s *Service) write() error {
	report := Report{
		Time:   s.deps.Clock.Now().UTC(),
		Ticks:  s.ticks,
		Status: s.deps.Status(),
	}
	if s.deps.Pending != nil {
		report.Pending = s.deps.Pending()
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding status: %w", err)
	}
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("error truncating status file: %w", err)
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return fmt.Errorf("error rewinding status file: %w", err)
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("error writing status file: %w", err)
	}
	return nil
}

// Close writes a last report and closes the file.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	werr := s.write()
	cerr := s.file.Close()
	s.file = nil
	return errors.Join(werr, cerr)
}
