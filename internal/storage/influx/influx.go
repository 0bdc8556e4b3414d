// Package influxstorage writes the flight log as InfluxDB time series: frames become
// "tracking" points, navigator transitions "edge_event" points and finished
// recordings a "track" summary point.
package influxstorage

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pathnav/navigator/internal/influx"
	"github.com/pathnav/navigator/internal/storage"
	"github.com/pathnav/navigator/pkg/core"
)

const (
	MeasurementTracking  = "tracking"
	MeasurementEdgeEvent = "edge_event"
	MeasurementTrack     = "track"
)

// Backend implements storage.Backend on top of an influx.Manager.
type Backend struct {
	manager *influx.Manager

	mu        sync.Mutex
	session   *core.Session
	idCounter uint
}

// New creates a backend writing through manager. The manager is connected by Init.
func New(manager *influx.Manager) *Backend {
	return &Backend{manager: manager}
}

func (b *Backend) Init() error {
	return b.manager.Connect(context.Background())
}

func (b *Backend) Close() error {
	return b.manager.Close()
}

// StartSession tags every following point with the session's vehicle and ID.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.ID == 0 {
		s.ID = 1
	}
	session := *s
	b.session = &session
	b.idCounter = 0
	return nil
}

func (b *Backend) EndSession() error {
	b.mu.Lock()
	active := b.session != nil
	b.session = nil
	b.mu.Unlock()

	if !active {
		return storage.ErrNoSession
	}
	return b.manager.Flush()
}

func (b *Backend) RecordEdgeEvent(e *core.EdgeEvent) error {
	s, err := b.nextID(&e.ID)
	if err != nil {
		return err
	}
	e.SessionID = s.ID
	return b.manager.WritePoint(EdgeEventPoint(s, e))
}

func (b *Backend) RecordFrame(f *core.Frame) error {
	s, err := b.current()
	if err != nil {
		return err
	}
	f.SessionID = s.ID
	return b.manager.WritePoint(FramePoint(s, f))
}

func (b *Backend) RecordTrack(t *core.Track) error {
	s, err := b.nextID(&t.ID)
	if err != nil {
		return err
	}
	t.SessionID = s.ID
	return b.manager.WritePoint(TrackPoint(s, t))
}

func (b *Backend) current() (core.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return core.Session{}, storage.ErrNoSession
	}
	return *b.session, nil
}

func (b *Backend) nextID(id *uint) (core.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return core.Session{}, storage.ErrNoSession
	}
	b.idCounter++
	*id = b.idCounter
	return *b.session, nil
}

func edgeName(start, end string) string {
	if start == "" && end == "" {
		return ""
	}
	return start + "->" + end
}

func basePoint(measurement string, s core.Session) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(measurement).
		AddTag("vehicle", s.VehicleName).
		AddTag("session", strconv.FormatUint(uint64(s.ID), 10))
}

// FramePoint converts a tracking sample.
func FramePoint(s core.Session, f *core.Frame) *influxdb2_write.Point {
	p := basePoint(MeasurementTracking, s).
		AddField("tick", f.Tick).
		AddField("path_tick", f.PathTick).
		AddField("position_error", f.PositionError).
		AddField("pitch_error", f.AttitudeError.X).
		AddField("yaw_error", f.AttitudeError.Y).
		AddField("roll_error", f.AttitudeError.Z).
		AddField("ref_x", f.Reference.X).
		AddField("ref_y", f.Reference.Y).
		AddField("ref_z", f.Reference.Z).
		AddField("pos_x", f.Actual.X).
		AddField("pos_y", f.Actual.Y).
		AddField("pos_z", f.Actual.Z).
		AddField("ref_speed", f.ReferenceVelocity.R3().Norm()).
		AddField("speed", f.ActualVelocity.R3().Norm()).
		SetTime(f.Time)
	if edge := edgeName(f.Start, f.End); edge != "" {
		p.AddTag("edge", edge)
	}
	return p
}

// EdgeEventPoint converts a navigator transition. Scalar details become fields;
// anything else is formatted as a string.
func EdgeEventPoint(s core.Session, e *core.EdgeEvent) *influxdb2_write.Point {
	p := basePoint(MeasurementEdgeEvent, s).
		AddTag("kind", string(e.Kind)).
		AddField("tick", e.Tick).
		AddField("event_id", int64(e.ID)).
		SetTime(e.Time)
	if edge := edgeName(e.Start, e.End); edge != "" {
		p.AddTag("edge", edge)
	}
	if e.Mode != "" {
		p.AddTag("mode", e.Mode)
	}
	for k, v := range e.Details {
		switch v.(type) {
		case bool, string, int, int32, int64, uint, uint32, uint64, float32, float64:
			p.AddField(k, v)
		default:
			p.AddField(k, fmt.Sprint(v))
		}
	}
	return p
}

// TrackPoint summarizes a finished recording.
func TrackPoint(s core.Session, t *core.Track) *influxdb2_write.Point {
	length := 0.0
	for i := 1; i < len(t.Points); i++ {
		length += t.Points[i].R3().Sub(t.Points[i-1].R3()).Norm()
	}
	p := basePoint(MeasurementTrack, s).
		AddField("track_id", int64(t.ID)).
		AddField("duration", t.Duration).
		AddField("efficiency", t.Efficiency).
		AddField("points", int64(len(t.Points))).
		AddField("length", length).
		SetTime(t.Time)
	if edge := edgeName(t.Start, t.End); edge != "" {
		p.AddTag("edge", edge)
	}
	return p
}
