package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	ws "github.com/gorilla/websocket"
	"github.com/pathnav/navigator/pkg/streaming"
)

const (
	sendChSize = 4096
	ackChSize  = 16
	writeWait  = 10 * time.Second
)

var errClosed = errors.New("websocket connection closed")

// connection owns one WebSocket and the single goroutine allowed to write to it.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	stop   chan struct{} // closed when conn is replaced
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{}
	closed bool

	wsURL  string
	secret string

	// replayed first after a reconnect
	sessionMsg []byte

	maxReconnect int
	maxBackoff   time.Duration
	clock        clock.Clock
	logger       *slog.Logger
	dropped      func()
}

func newConnection(cfg Config, logger *slog.Logger) *connection {
	c := &connection{
		sendCh:       make(chan []byte, sendChSize),
		ackCh:        make(chan streaming.AckMessage, ackChSize),
		done:         make(chan struct{}),
		wsURL:        cfg.URL,
		secret:       cfg.Secret,
		maxReconnect: cfg.MaxReconnect,
		maxBackoff:   cfg.MaxBackoff,
		clock:        cfg.Clock,
		logger:       logger,
		dropped:      func() {},
	}
	if c.maxReconnect <= 0 {
		c.maxReconnect = 10
	}
	if c.maxBackoff <= 0 {
		c.maxBackoff = 30 * time.Second
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	return c
}

func (c *connection) dial() error {
	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	if !c.start(conn) {
		return errClosed
	}
	return nil
}

// start installs conn and its loops. It reports false once the connection is closed.
func (c *connection) start(conn *ws.Conn) bool {
	stop := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.stop = stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn)
	return true
}

// dialOnce dials with the shared secret as a query parameter.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh into conn until shutdown or a write error.
func (c *connection) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.sendCh:
			if err := c.write(conn, data); err != nil {
				c.logger.Warn("websocket write error", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

func (c *connection) write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// readLoop forwards acks to ackCh. Anything else from the server is ignored.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("websocket read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("ignoring server message", "raw", string(message))
			continue
		}
		select {
		case c.ackCh <- ack:
		default:
			c.logger.Debug("ack channel full, dropping", "for", ack.For)
		}
	}
}

// reconnect replaces a failed conn with exponential backoff, replays the session
// message and restarts the loops. Only the first caller for a given conn proceeds.
func (c *connection) reconnect(failed *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != failed {
		c.mu.Unlock()
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	close(c.stop)
	c.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= c.maxReconnect; attempt++ {
		c.logger.Info("reconnecting websocket", "attempt", attempt, "backoff", backoff)
		select {
		case <-c.done:
			return
		case <-c.clock.After(backoff):
		}

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}

		c.mu.Lock()
		replay := c.sessionMsg
		c.mu.Unlock()

		if replay != nil {
			if err := c.write(conn, replay); err != nil {
				c.logger.Warn("session replay failed", "error", err)
				_ = conn.Close()
				continue
			}
		}

		if c.start(conn) {
			c.logger.Info("websocket reconnected", "attempt", attempt)
		}
		return
	}

	c.logger.Error("websocket reconnect gave up", "maxAttempts", c.maxReconnect)
}

// send queues data for the write loop, dropping it when the queue is full.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.dropped()
		c.logger.Warn("websocket send queue full, dropping message")
	}
}

// sendAndWait queues data and blocks until the server acks msgType.
func (c *connection) sendAndWait(data []byte, msgType string, timeout time.Duration) error {
	c.send(data)

	timer := c.clock.Timer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == msgType {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", msgType)
		case <-c.done:
			return fmt.Errorf("%w while waiting for ack of %q", errClosed, msgType)
		}
	}
}

func (c *connection) setSessionMsg(data []byte) {
	c.mu.Lock()
	c.sessionMsg = data
	c.mu.Unlock()
}

// close sends a close frame and stops both loops.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return conn.Close()
}
