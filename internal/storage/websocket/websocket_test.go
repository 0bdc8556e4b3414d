package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathnav/navigator/internal/storage"
	"github.com/pathnav/navigator/pkg/core"
	"github.com/pathnav/navigator/pkg/streaming"
)

var _ storage.Backend = (*Backend)(nil)

type serverOpts struct {
	noAck bool
	// dropOn closes the first connection when a message of this type arrives.
	dropOn string
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
	secrets  []string
	conns    int
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]streaming.Envelope(nil), m.messages...)
}

func (m *messageLog) count(msgType string) int {
	n := 0
	for _, env := range m.all() {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

// testServer upgrades every request, records the envelopes and acks session messages.
func testServer(t *testing.T, opts serverOpts) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		ml.mu.Lock()
		ml.conns++
		first := ml.conns == 1
		ml.secrets = append(ml.secrets, r.URL.Query().Get("secret"))
		ml.mu.Unlock()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if first && opts.dropOn != "" && env.Type == opts.dropOn {
				return
			}
			if !opts.noAck && streaming.NeedsAck(env.Type) {
				data, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, ml
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStartAndEndSession(t *testing.T) {
	srv, ml := testServer(t, serverOpts{})

	b := New(Config{URL: wsURL(srv), Secret: "test"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	s := &core.Session{VehicleName: "drone", TickRate: "fast"}
	require.NoError(t, b.StartSession(s))
	assert.Equal(t, uint(1), s.ID)
	require.NoError(t, b.EndSession())

	msgs := ml.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, streaming.TypeStartSession, msgs[0].Type)
	assert.Equal(t, streaming.TypeEndSession, msgs[1].Type)

	var payload streaming.StartSessionPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, "drone", payload.Session.VehicleName)

	ml.mu.Lock()
	assert.Equal(t, []string{"test"}, ml.secrets)
	ml.mu.Unlock()
}

func TestRecordsStreamInOrder(t *testing.T) {
	srv, ml := testServer(t, serverOpts{})

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{VehicleName: "drone"}))

	e := &core.EdgeEvent{Kind: core.EventEdgeStarted, Start: "A", End: "B"}
	f := &core.Frame{Start: "A", End: "B", PathTick: 4, PositionError: 0.2}
	tr := &core.Track{Start: "A", End: "B", Ticks: []int64{0}, Points: []core.Vec3{{X: 1}}}
	require.NoError(t, b.RecordEdgeEvent(e))
	require.NoError(t, b.RecordFrame(f))
	require.NoError(t, b.RecordTrack(tr))

	assert.Equal(t, uint(1), e.ID)
	assert.Equal(t, uint(2), tr.ID)
	assert.Equal(t, uint(1), f.SessionID)

	// end_session is acked only after everything queued before it arrived
	require.NoError(t, b.EndSession())

	var types []string
	for _, m := range ml.all() {
		types = append(types, m.Type)
	}
	assert.Equal(t, []string{
		streaming.TypeStartSession,
		streaming.TypeEdgeEvent,
		streaming.TypeFrame,
		streaming.TypeTrack,
		streaming.TypeEndSession,
	}, types)

	var got core.Frame
	require.NoError(t, json.Unmarshal(ml.all()[2].Payload, &got))
	assert.Equal(t, int64(4), got.PathTick)
	assert.InDelta(t, 0.2, got.PositionError, 1e-12)
}

func TestRecordWithoutSession(t *testing.T) {
	srv, _ := testServer(t, serverOpts{})

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.ErrorIs(t, b.RecordFrame(&core.Frame{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordEdgeEvent(&core.EdgeEvent{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordTrack(&core.Track{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.EndSession(), storage.ErrNoSession)
}

func TestStartSession_AckTimeout(t *testing.T) {
	srv, _ := testServer(t, serverOpts{noAck: true})

	b := New(Config{URL: wsURL(srv), AckTimeout: 50 * time.Millisecond}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	err := b.StartSession(&core.Session{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout waiting for ack")
}

func TestInit_DialFailure(t *testing.T) {
	b := New(Config{URL: "ws://127.0.0.1:1/stream"}, nil)
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestReconnectReplaysSession(t *testing.T) {
	srv, ml := testServer(t, serverOpts{dropOn: streaming.TypeFrame})
	mock := clock.NewMock()

	b := New(Config{URL: wsURL(srv), Clock: mock, MaxReconnect: 100}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{VehicleName: "drone"}))
	require.NoError(t, b.RecordFrame(&core.Frame{}))

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return ml.count(streaming.TypeStartSession) == 2
	}, 5*time.Second, 10*time.Millisecond)

	ml.mu.Lock()
	assert.Equal(t, 2, ml.conns)
	ml.mu.Unlock()
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, _ := testServer(t, serverOpts{})

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}
