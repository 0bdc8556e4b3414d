// Package websocket streams the flight log to a live viewer over a WebSocket.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pathnav/navigator/internal/storage"
	"github.com/pathnav/navigator/pkg/core"
	"github.com/pathnav/navigator/pkg/streaming"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/pathnav/navigator/internal/storage/websocket"

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string

	// Zero values pick the defaults: 10s ack timeout, 10 reconnects, 30s backoff cap.
	AckTimeout   time.Duration
	MaxReconnect int
	MaxBackoff   time.Duration
	Clock        clock.Clock
}

// Backend streams session messages and flight data. Frames, events and tracks are
// fire-and-forget; StartSession and EndSession wait for the server's ack.
type Backend struct {
	conn       *connection
	ackTimeout time.Duration

	mu        sync.Mutex
	session   *core.Session
	idCounter uint
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		conn:       newConnection(cfg, logger.With("backend", "websocket")),
		ackTimeout: cfg.AckTimeout,
	}
	if b.ackTimeout <= 0 {
		b.ackTimeout = 10 * time.Second
	}
	if dropped, err := otel.Meter(instrumentationName).Int64Counter(
		"storage.websocket.dropped",
		metric.WithDescription("Messages dropped because the send queue was full"),
	); err == nil {
		b.conn.dropped = func() { dropped.Add(context.Background(), 1) }
	}
	return b
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial()
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession announces the session and waits for the ack. The message is
// replayed after every reconnect until EndSession.
func (b *Backend) StartSession(s *core.Session) error {
	if s.ID == 0 {
		s.ID = 1
	}
	session := *s

	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: &session})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.session = &session
	b.idCounter = 0
	b.mu.Unlock()

	b.conn.setSessionMsg(data)
	return b.conn.sendAndWait(data, streaming.TypeStartSession, b.ackTimeout)
}

// EndSession sends end_session and waits for the ack.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	active := b.session != nil
	b.session = nil
	b.mu.Unlock()
	if !active {
		return storage.ErrNoSession
	}

	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, b.ackTimeout)
	b.conn.setSessionMsg(nil)
	return err
}

func (b *Backend) RecordEdgeEvent(e *core.EdgeEvent) error {
	if err := b.stamp(&e.ID, &e.SessionID); err != nil {
		return err
	}
	return b.sendEnvelope(streaming.TypeEdgeEvent, e)
}

func (b *Backend) RecordFrame(f *core.Frame) error {
	if err := b.stamp(nil, &f.SessionID); err != nil {
		return err
	}
	return b.sendEnvelope(streaming.TypeFrame, f)
}

func (b *Backend) RecordTrack(t *core.Track) error {
	if err := b.stamp(&t.ID, &t.SessionID); err != nil {
		return err
	}
	return b.sendEnvelope(streaming.TypeTrack, t)
}

// stamp sets the session ID and, when id is non-nil, the next record ID.
func (b *Backend) stamp(id, sessionID *uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return storage.ErrNoSession
	}
	if id != nil {
		b.idCounter++
		*id = b.idCounter
	}
	*sessionID = b.session.ID
	return nil
}
