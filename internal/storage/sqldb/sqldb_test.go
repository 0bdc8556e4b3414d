package sqldb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pathnav/navigator/internal/database"
	"github.com/pathnav/navigator/internal/model"
	"github.com/pathnav/navigator/internal/storage"
	"github.com/pathnav/navigator/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

func newBackend(t *testing.T, dumpPath string, clk clock.Clock) *Backend {
	t.Helper()
	m := database.NewManager(zerolog.Nop())
	require.NoError(t, m.ConnectSqlite(database.InMemory, dumpPath))

	b := New(m, Options{FlushInterval: time.Second, Clock: clk})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func session() *core.Session {
	return &core.Session{
		VehicleName:    "drone",
		TickRate:       "fast",
		SecondsPerTick: 1.0 / 60,
		StartTime:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestStartSession_AssignsID(t *testing.T) {
	b := newBackend(t, "", clock.NewMock())

	s := session()
	require.NoError(t, b.StartSession(s))
	assert.NotZero(t, s.ID)

	var row model.Session
	require.NoError(t, b.db.DB.First(&row, s.ID).Error)
	assert.Equal(t, "drone", row.VehicleName)
	assert.False(t, row.EndTime.Valid)
}

func TestRecordWithoutSession(t *testing.T) {
	b := newBackend(t, "", clock.NewMock())

	assert.ErrorIs(t, b.RecordEdgeEvent(&core.EdgeEvent{}), ErrNoSession)
	assert.ErrorIs(t, b.RecordFrame(&core.Frame{}), ErrNoSession)
	assert.ErrorIs(t, b.RecordTrack(&core.Track{}), ErrNoSession)
	assert.ErrorIs(t, b.EndSession(), ErrNoSession)
}

func TestRecordEdgeEvent(t *testing.T) {
	b := newBackend(t, "", clock.NewMock())
	s := session()
	require.NoError(t, b.StartSession(s))

	e := &core.EdgeEvent{
		Tick:    12,
		Kind:    core.EventRecordingStopped,
		Start:   "A",
		End:     "B",
		Details: map[string]any{"points": 4},
	}
	require.NoError(t, b.RecordEdgeEvent(e))
	assert.Equal(t, s.ID, e.SessionID)
	require.NoError(t, b.Flush())

	events, err := b.Events(s.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.EventRecordingStopped, events[0].Kind)
	assert.Equal(t, "B", events[0].End)
	assert.Equal(t, float64(4), events[0].Details["points"])
}

func TestRecordTrack(t *testing.T) {
	b := newBackend(t, "", clock.NewMock())
	require.NoError(t, b.StartSession(session()))

	tr := &core.Track{
		Start: "A", End: "B", Duration: 8, Efficiency: 0.75,
		Ticks:  []int64{0, 8},
		Points: []core.Vec3{{}, {X: 6, Y: 8}},
	}
	require.NoError(t, b.RecordTrack(tr))
	require.NoError(t, b.Flush())

	got, err := b.LatestTrack("A", "B")
	require.NoError(t, err)
	assert.NotZero(t, got.ID)
	assert.Equal(t, []int64{0, 8}, got.Ticks)
	require.Len(t, got.Points, 2)
	assert.InDelta(t, 8.0, got.Points[1].Y, 1e-9)

	var row model.Track
	require.NoError(t, b.db.DB.First(&row, got.ID).Error)
	assert.InDelta(t, 10.0, row.Length, 1e-9)
}

func TestRecordTrack_Invalid(t *testing.T) {
	b := newBackend(t, "", clock.NewMock())
	require.NoError(t, b.StartSession(session()))

	err := b.RecordTrack(&core.Track{Ticks: []int64{0}, Points: []core.Vec3{{}, {}}})
	assert.Error(t, err)
	assert.Zero(t, b.Pending())
}

func TestRecord_QueuedUntilFlush(t *testing.T) {
	b := newBackend(t, "", clock.NewMock())
	s := session()
	require.NoError(t, b.StartSession(s))

	require.NoError(t, b.RecordEdgeEvent(&core.EdgeEvent{Kind: core.EventRecordingStarted, Start: "A", End: "B"}))
	require.NoError(t, b.RecordTrack(&core.Track{
		Start: "A", End: "B",
		Ticks:  []int64{0, 4},
		Points: []core.Vec3{{}, {X: 1}},
	}))
	require.NoError(t, b.RecordEdgeEvent(&core.EdgeEvent{Kind: core.EventRecordingStopped, Start: "A", End: "B"}))
	assert.Equal(t, 3, b.Pending())

	events, err := b.Events(s.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
	_, err = b.LatestTrack("A", "B")
	assert.Error(t, err)

	require.NoError(t, b.Flush())
	assert.Zero(t, b.Pending())

	events, err = b.Events(s.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, core.EventRecordingStarted, events[0].Kind)
	assert.Equal(t, core.EventRecordingStopped, events[1].Kind)
	_, err = b.LatestTrack("A", "B")
	assert.NoError(t, err)
}

func TestFrames_QueuedUntilFlush(t *testing.T) {
	b := newBackend(t, "", clock.NewMock())
	s := session()
	require.NoError(t, b.StartSession(s))

	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordFrame(&core.Frame{Tick: int64(i), Start: "A", End: "B", PositionError: 0.1}))
	}
	assert.Equal(t, 5, b.PendingFrames())

	n, err := b.FrameCount(s.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, b.Flush())
	assert.Zero(t, b.PendingFrames())
	n, err = b.FrameCount(s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestFrames_WriterLoop(t *testing.T) {
	mock := clock.NewMock()
	b := newBackend(t, "", mock)
	s := session()
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.RecordFrame(&core.Frame{Tick: 1}))

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		n, err := b.FrameCount(s.ID)
		return err == nil && n == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEndSession_FlushesAndCloses(t *testing.T) {
	b := newBackend(t, "", clock.NewMock())
	s := session()
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.RecordFrame(&core.Frame{Tick: 1}))

	require.NoError(t, b.EndSession())

	n, err := b.FrameCount(s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var row model.Session
	require.NoError(t, b.db.DB.First(&row, s.ID).Error)
	assert.True(t, row.EndTime.Valid)

	assert.ErrorIs(t, b.RecordFrame(&core.Frame{}), ErrNoSession)
}

func TestEndSession_DumpsInMemoryDB(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "flight.db")
	b := newBackend(t, dump, clock.NewMock())
	require.NoError(t, b.StartSession(session()))
	require.NoError(t, b.RecordEdgeEvent(&core.EdgeEvent{Kind: core.EventRouteStarted}))

	require.NoError(t, b.EndSession())

	info, err := os.Stat(dump)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSessionsAreSeparate(t *testing.T) {
	b := newBackend(t, "", clock.NewMock())

	first := session()
	require.NoError(t, b.StartSession(first))
	require.NoError(t, b.RecordEdgeEvent(&core.EdgeEvent{Kind: core.EventRouteStarted}))
	require.NoError(t, b.EndSession())

	second := session()
	require.NoError(t, b.StartSession(second))
	require.NoError(t, b.RecordEdgeEvent(&core.EdgeEvent{Kind: core.EventRouteStopped}))
	require.NoError(t, b.Flush())

	assert.NotEqual(t, first.ID, second.ID)
	events, err := b.Events(second.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.EventRouteStopped, events[0].Kind)
}
