// Package convert maps flight-log records between pkg/core and the gorm models.
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/pathnav/navigator/internal/model"
	"github.com/pathnav/navigator/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// emptyPath is stored for tracks with fewer than two motion samples.
const emptyPath = "LINESTRING Z EMPTY"

// CoreToSession converts a core session to its gorm model.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		ID:             s.ID,
		VehicleName:    s.VehicleName,
		TickRate:       s.TickRate,
		SecondsPerTick: s.SecondsPerTick,
		StartTime:      s.StartTime,
		Version:        s.Version,
	}
}

// SessionToCore converts back. EndTime has no core counterpart.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:             s.ID,
		VehicleName:    s.VehicleName,
		TickRate:       s.TickRate,
		SecondsPerTick: s.SecondsPerTick,
		StartTime:      s.StartTime,
		Version:        s.Version,
	}
}

// CoreToEdgeEvent converts a core event. Details are stored as a JSON object;
// a value that cannot be marshaled fails the conversion.
func CoreToEdgeEvent(e core.EdgeEvent) (model.EdgeEvent, error) {
	details, err := toJSON(e.Details)
	if err != nil {
		return model.EdgeEvent{}, fmt.Errorf("event details: %w", err)
	}
	return model.EdgeEvent{
		ID:            e.ID,
		SessionID:     e.SessionID,
		Time:          e.Time,
		Tick:          e.Tick,
		Kind:          string(e.Kind),
		StartWaypoint: e.Start,
		EndWaypoint:   e.End,
		Mode:          e.Mode,
		Details:       details,
	}, nil
}

// EdgeEventToCore converts back. Numbers in Details decode as float64.
func EdgeEventToCore(e model.EdgeEvent) core.EdgeEvent {
	var details map[string]any
	if len(e.Details) > 0 {
		_ = json.Unmarshal(e.Details, &details)
	}
	return core.EdgeEvent{
		ID:        e.ID,
		SessionID: e.SessionID,
		Time:      e.Time,
		Tick:      e.Tick,
		Kind:      core.EdgeEventKind(e.Kind),
		Start:     e.StartWaypoint,
		End:       e.EndWaypoint,
		Mode:      e.Mode,
		Details:   details,
	}
}

// CoreToFrame flattens a core frame. Velocities are reduced to speeds.
func CoreToFrame(f core.Frame) model.Frame {
	return model.Frame{
		SessionID:      f.SessionID,
		Time:           f.Time,
		Tick:           f.Tick,
		StartWaypoint:  f.Start,
		EndWaypoint:    f.End,
		PathTick:       f.PathTick,
		ReferenceX:     f.Reference.X,
		ReferenceY:     f.Reference.Y,
		ReferenceZ:     f.Reference.Z,
		ActualX:        f.Actual.X,
		ActualY:        f.Actual.Y,
		ActualZ:        f.Actual.Z,
		ReferenceSpeed: f.ReferenceVelocity.R3().Norm(),
		ActualSpeed:    f.ActualVelocity.R3().Norm(),
		PositionError:  f.PositionError,
		PitchError:     f.AttitudeError.X,
		YawError:       f.AttitudeError.Y,
		RollError:      f.AttitudeError.Z,
	}
}

// CoreToTrack converts a core track. Points become a LINESTRING Z; Ticks and
// Points must have the same length.
func CoreToTrack(t core.Track) (model.Track, error) {
	if len(t.Ticks) != len(t.Points) {
		return model.Track{}, fmt.Errorf("track %s->%s has %d ticks for %d points", t.Start, t.End, len(t.Ticks), len(t.Points))
	}
	ticks, err := toJSON(t.Ticks)
	if err != nil {
		return model.Track{}, fmt.Errorf("track ticks: %w", err)
	}

	path := emptyPath
	var length float64
	if len(t.Points) >= 2 {
		ls, err := pointsToLineString(t.Points)
		if err != nil {
			return model.Track{}, fmt.Errorf("track path: %w", err)
		}
		path = ls.AsText()
		length = polylineLength(t.Points)
	}

	return model.Track{
		ID:            t.ID,
		SessionID:     t.SessionID,
		Time:          t.Time,
		StartWaypoint: t.Start,
		EndWaypoint:   t.End,
		Duration:      t.Duration,
		Efficiency:    t.Efficiency,
		Length:        length,
		Path:          path,
		Ticks:         ticks,
	}, nil
}

// TrackToCore parses the stored WKT path back into points.
func TrackToCore(t model.Track) (core.Track, error) {
	out := core.Track{
		ID:         t.ID,
		SessionID:  t.SessionID,
		Time:       t.Time,
		Start:      t.StartWaypoint,
		End:        t.EndWaypoint,
		Duration:   t.Duration,
		Efficiency: t.Efficiency,
	}
	if len(t.Ticks) > 0 {
		if err := json.Unmarshal(t.Ticks, &out.Ticks); err != nil {
			return out, fmt.Errorf("track ticks: %w", err)
		}
	}

	points, err := parsePath(t.Path)
	if err != nil {
		return out, err
	}
	out.Points = points
	return out, nil
}

func pointsToLineString(points []core.Vec3) (geom.LineString, error) {
	coords := make([]float64, 0, len(points)*3)
	for _, p := range points {
		coords = append(coords, p.X, p.Y, p.Z)
	}
	seq := geom.NewSequence(coords, geom.DimXYZ)
	return geom.NewLineString(seq)
}

func parsePath(wkt string) ([]core.Vec3, error) {
	if wkt == "" {
		return nil, nil
	}
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("track path: %w", err)
	}
	if g.Type() != geom.TypeLineString {
		return nil, fmt.Errorf("track path is a %s, want LineString", g.Type())
	}

	seq := g.MustAsLineString().Coordinates()
	if seq.Length() == 0 {
		return nil, nil
	}
	points := make([]core.Vec3, seq.Length())
	for i := range points {
		c := seq.Get(i)
		points[i] = core.Vec3{X: c.XY.X, Y: c.XY.Y, Z: c.Z}
	}
	return points, nil
}

func polylineLength(points []core.Vec3) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += points[i].R3().Sub(points[i-1].R3()).Norm()
	}
	return total
}

func toJSON(v any) (datatypes.JSON, error) {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 0 {
			return datatypes.JSON("{}"), nil
		}
	case []int64:
		if len(x) == 0 {
			return datatypes.JSON("[]"), nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
