package convert

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pathnav/navigator/internal/model"
	"github.com/pathnav/navigator/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	s := core.Session{
		ID:             3,
		VehicleName:    "drone",
		TickRate:       "fast",
		SecondsPerTick: 1.0 / 60,
		StartTime:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Version:        "1.2.0",
	}

	got := SessionToCore(CoreToSession(s))
	assert.Equal(t, s, got)
}

func TestEdgeEventRoundTrip(t *testing.T) {
	e := core.EdgeEvent{
		ID:        5,
		SessionID: 1,
		Time:      time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC),
		Tick:      60,
		Kind:      core.EventRecordingStopped,
		Start:     "A",
		End:       "B",
		Details:   map[string]any{"points": 12, "efficiency": 0.9},
	}

	m, err := CoreToEdgeEvent(e)
	require.NoError(t, err)
	assert.Equal(t, "recording_stopped", m.Kind)
	assert.Equal(t, "A", m.StartWaypoint)
	assert.JSONEq(t, `{"points":12,"efficiency":0.9}`, string(m.Details))

	back := EdgeEventToCore(m)
	assert.Equal(t, e.Kind, back.Kind)
	assert.Equal(t, float64(12), back.Details["points"])
}

func TestCoreToEdgeEvent_NilDetails(t *testing.T) {
	m, err := CoreToEdgeEvent(core.EdgeEvent{Kind: core.EventRouteStopped})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(m.Details))
	assert.Nil(t, EdgeEventToCore(m).Details["anything"])
}

func TestCoreToEdgeEvent_BadDetails(t *testing.T) {
	_, err := CoreToEdgeEvent(core.EdgeEvent{Details: map[string]any{"bad": math.NaN()}})
	require.Error(t, err)
}

func TestCoreToFrame(t *testing.T) {
	f := core.Frame{
		SessionID:         2,
		Tick:              100,
		Start:             "B",
		End:               "C",
		PathTick:          40,
		Reference:         core.Vec3{X: 1, Y: 2, Z: 3},
		Actual:            core.Vec3{X: 1, Y: 2, Z: 2.5},
		ReferenceVelocity: core.Vec3{X: 3, Y: 4},
		ActualVelocity:    core.Vec3{Z: -2},
		PositionError:     0.5,
		AttitudeError:     core.Vec3{X: 0.1, Y: -0.2, Z: 0.3},
	}

	m := CoreToFrame(f)
	assert.Equal(t, int64(40), m.PathTick)
	assert.Equal(t, 3.0, m.ReferenceZ)
	assert.Equal(t, 2.5, m.ActualZ)
	assert.InDelta(t, 5.0, m.ReferenceSpeed, 1e-12)
	assert.InDelta(t, 2.0, m.ActualSpeed, 1e-12)
	assert.Equal(t, -0.2, m.YawError)
	assert.Equal(t, 0.3, m.RollError)
}

func TestTrackRoundTrip(t *testing.T) {
	tr := core.Track{
		ID:         9,
		SessionID:  1,
		Start:      "A",
		End:        "B",
		Duration:   120,
		Efficiency: 0.95,
		Ticks:      []int64{0, 60, 120},
		Points: []core.Vec3{
			{X: 0, Y: 0, Z: 0},
			{X: 3, Y: 4, Z: 0},
			{X: 3, Y: 4, Z: -12},
		},
	}

	m, err := CoreToTrack(tr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.Path, "LINESTRING Z"), m.Path)
	assert.InDelta(t, 17.0, m.Length, 1e-9)
	assert.JSONEq(t, `[0,60,120]`, string(m.Ticks))

	back, err := TrackToCore(m)
	require.NoError(t, err)
	assert.Equal(t, tr.Ticks, back.Ticks)
	require.Len(t, back.Points, 3)
	for i := range tr.Points {
		assert.InDelta(t, tr.Points[i].X, back.Points[i].X, 1e-9)
		assert.InDelta(t, tr.Points[i].Y, back.Points[i].Y, 1e-9)
		assert.InDelta(t, tr.Points[i].Z, back.Points[i].Z, 1e-9)
	}
}

func TestCoreToTrack_SinglePoint(t *testing.T) {
	m, err := CoreToTrack(core.Track{Ticks: []int64{0}, Points: []core.Vec3{{X: 1}}})
	require.NoError(t, err)
	assert.Equal(t, emptyPath, m.Path)
	assert.Zero(t, m.Length)

	back, err := TrackToCore(m)
	require.NoError(t, err)
	assert.Empty(t, back.Points)
}

func TestCoreToTrack_MismatchedTicks(t *testing.T) {
	_, err := CoreToTrack(core.Track{Ticks: []int64{0}, Points: []core.Vec3{{}, {}}})
	require.Error(t, err)
}

func TestCoreToTrack_InvalidPath(t *testing.T) {
	_, err := CoreToTrack(core.Track{
		Start: "A", End: "B",
		Ticks:  []int64{0, 5},
		Points: []core.Vec3{{X: 1}, {X: math.Inf(1)}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "track path")
}

func TestTrackToCore_BadPath(t *testing.T) {
	_, err := TrackToCore(model.Track{Path: "POINT Z (1 2 3)"})
	require.Error(t, err)

	_, err = TrackToCore(model.Track{Path: "not wkt"})
	require.Error(t, err)
}
