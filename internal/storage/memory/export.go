// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportVersion is bumped whenever FlightExport changes shape.
const ExportVersion = 1

// FlightExport is the root JSON structure
type FlightExport struct {
	Version        int         `json:"version"`
	Navigator      string      `json:"navigatorVersion"`
	Vehicle        string      `json:"vehicle"`
	TickRate       string      `json:"tickRate"`
	SecondsPerTick float64     `json:"secondsPerTick"`
	StartTime      time.Time   `json:"startTime"`
	Events         []EventJSON `json:"events"`
	Tracks         []TrackJSON `json:"tracks"`
	// Frames are [tick, pathTick, "A->B", [rx,ry,rz], [ax,ay,az], positionError, [ex,ey,ez]].
	Frames [][]any `json:"frames"`
}

// EventJSON is one navigator transition.
type EventJSON struct {
	Tick    int64          `json:"tick"`
	Time    time.Time      `json:"time"`
	Kind    string         `json:"kind"`
	Edge    string         `json:"edge"`
	Mode    string         `json:"mode,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// TrackJSON is a recorded path as [tick, x, y, z] rows.
type TrackJSON struct {
	Edge       string      `json:"edge"`
	Duration   int64       `json:"duration"`
	Efficiency float64     `json:"efficiency"`
	Points     [][]float64 `json:"points"`
}

// exportJSON writes the session to a JSON file, gzipped when configured.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	vehicle := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(b.session.VehicleName)
	if vehicle == "" {
		vehicle = "vehicle"
	}
	timestamp := b.session.StartTime.UTC().Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", vehicle, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", vehicle, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func edgeName(start, end string) string {
	return start + "->" + end
}

func (b *Backend) buildExport() FlightExport {
	export := FlightExport{
		Version:        ExportVersion,
		Navigator:      b.session.Version,
		Vehicle:        b.session.VehicleName,
		TickRate:       b.session.TickRate,
		SecondsPerTick: b.session.SecondsPerTick,
		StartTime:      b.session.StartTime.UTC(),
		Events:         make([]EventJSON, 0, len(b.events)),
		Tracks:         make([]TrackJSON, 0, len(b.tracks)),
		Frames:         make([][]any, 0, len(b.frames)),
	}

	for _, e := range b.events {
		export.Events = append(export.Events, EventJSON{
			Tick:    e.Tick,
			Time:    e.Time.UTC(),
			Kind:    string(e.Kind),
			Edge:    edgeName(e.Start, e.End),
			Mode:    e.Mode,
			Details: e.Details,
		})
	}

	for _, t := range b.tracks {
		points := make([][]float64, 0, len(t.Points))
		for i, p := range t.Points {
			var at int64
			if i < len(t.Ticks) {
				at = t.Ticks[i]
			}
			points = append(points, []float64{float64(at), p.X, p.Y, p.Z})
		}
		export.Tracks = append(export.Tracks, TrackJSON{
			Edge:       edgeName(t.Start, t.End),
			Duration:   t.Duration,
			Efficiency: t.Efficiency,
			Points:     points,
		})
	}

	for _, f := range b.frames {
		export.Frames = append(export.Frames, []any{
			f.Tick,
			f.PathTick,
			edgeName(f.Start, f.End),
			[]float64{f.Reference.X, f.Reference.Y, f.Reference.Z},
			[]float64{f.Actual.X, f.Actual.Y, f.Actual.Z},
			f.PositionError,
			[]float64{f.AttitudeError.X, f.AttitudeError.Y, f.AttitudeError.Z},
		})
	}

	return export
}

func writeJSON(path string, data FlightExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data FlightExport) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer func() {
		if cerr := gzWriter.Close(); err == nil {
			err = cerr
		}
	}()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
