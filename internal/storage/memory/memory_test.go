// internal/storage/memory/memory_test.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pathnav/navigator/internal/config"
	"github.com/pathnav/navigator/internal/storage"
	"github.com/pathnav/navigator/pkg/core"
)

var (
	_ storage.Backend  = (*Backend)(nil)
	_ storage.Exporter = (*Backend)(nil)
)

func testSession() *core.Session {
	return &core.Session{
		VehicleName:    "Cargo Drone",
		TickRate:       "fast",
		SecondsPerTick: 1.0 / 60,
		StartTime:      time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
		Version:        "test",
	}
}

func TestInitAndClose(t *testing.T) {
	b := New(config.MemoryConfig{})

	if err := b.Init(); err != nil {
		t.Errorf("Init failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestRecordWithoutSession(t *testing.T) {
	b := New(config.MemoryConfig{})

	if err := b.RecordEdgeEvent(&core.EdgeEvent{}); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
	if err := b.RecordFrame(&core.Frame{}); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
	if err := b.RecordTrack(&core.Track{}); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
	if err := b.EndSession(); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestStartSessionResets(t *testing.T) {
	b := New(config.MemoryConfig{})
	s := testSession()
	if err := b.StartSession(s); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if s.ID != 1 {
		t.Errorf("expected session ID 1, got %d", s.ID)
	}

	_ = b.RecordEdgeEvent(&core.EdgeEvent{Kind: core.EventRecordingStarted})
	_ = b.RecordFrame(&core.Frame{Tick: 1})
	_ = b.RecordTrack(&core.Track{Start: "A", End: "B"})

	if err := b.StartSession(testSession()); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if len(b.Events()) != 0 || len(b.Frames()) != 0 || len(b.Tracks()) != 0 {
		t.Error("expected collections to be reset")
	}
}

func TestRecordAssignsIDs(t *testing.T) {
	b := New(config.MemoryConfig{})
	s := testSession()
	s.ID = 7
	_ = b.StartSession(s)

	e1 := &core.EdgeEvent{Kind: core.EventRecordingStarted, Start: "A", End: "B"}
	tr := &core.Track{Start: "A", End: "B", Ticks: []int64{0, 4}, Points: []core.Vec3{{}, {X: 1}}}
	e2 := &core.EdgeEvent{Kind: core.EventRecordingStopped, Start: "A", End: "B"}
	_ = b.RecordEdgeEvent(e1)
	_ = b.RecordTrack(tr)
	_ = b.RecordEdgeEvent(e2)

	if e1.ID != 1 || tr.ID != 2 || e2.ID != 3 {
		t.Errorf("expected IDs 1,2,3, got %d,%d,%d", e1.ID, tr.ID, e2.ID)
	}
	if e1.SessionID != 7 || tr.SessionID != 7 {
		t.Errorf("expected session ID 7, got %d and %d", e1.SessionID, tr.SessionID)
	}

	tr.Points[1].X = 99
	if got := b.Tracks()[0].Points[1].X; got != 1 {
		t.Errorf("stored track must not alias the caller's slice, got X=%v", got)
	}
}

func TestConcurrentRecording(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(testSession())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = b.RecordFrame(&core.Frame{Tick: int64(i*100 + j)})
				_ = b.Frames()
			}
		}(i)
	}
	wg.Wait()

	if n := len(b.Frames()); n != 400 {
		t.Errorf("expected 400 frames, got %d", n)
	}
}

func fill(b *Backend) {
	_ = b.RecordEdgeEvent(&core.EdgeEvent{
		Tick: 0, Kind: core.EventRecordingStarted, Start: "A", End: "B",
	})
	_ = b.RecordTrack(&core.Track{
		Start: "A", End: "B", Duration: 8, Efficiency: 0.75,
		Ticks:  []int64{0, 8},
		Points: []core.Vec3{{X: 0, Y: 0, Z: 0}, {X: 4, Y: 0, Z: -2}},
	})
	_ = b.RecordEdgeEvent(&core.EdgeEvent{
		Tick: 8, Kind: core.EventRecordingStopped, Start: "A", End: "B",
		Details: map[string]any{"points": 2},
	})
	_ = b.RecordFrame(&core.Frame{
		Tick: 20, PathTick: 3, Start: "A", End: "B",
		Reference:     core.Vec3{X: 1},
		Actual:        core.Vec3{X: 0.9},
		PositionError: 0.1,
		AttitudeError: core.Vec3{Y: 0.02},
	})
}

func TestBuildExport(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(testSession())
	fill(b)

	export := b.buildExport()

	if export.Version != ExportVersion {
		t.Errorf("expected version %d, got %d", ExportVersion, export.Version)
	}
	if export.Vehicle != "Cargo Drone" {
		t.Errorf("expected vehicle 'Cargo Drone', got %s", export.Vehicle)
	}
	if len(export.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(export.Events))
	}
	if export.Events[1].Kind != "recording_stopped" || export.Events[1].Edge != "A->B" {
		t.Errorf("unexpected event %+v", export.Events[1])
	}
	if len(export.Tracks) != 1 || len(export.Tracks[0].Points) != 2 {
		t.Fatalf("expected 1 track with 2 points, got %+v", export.Tracks)
	}
	if got := export.Tracks[0].Points[1]; got[0] != 8 || got[1] != 4 || got[3] != -2 {
		t.Errorf("expected [8 4 0 -2], got %v", got)
	}
	if len(export.Frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(export.Frames))
	}
	if export.Frames[0][2] != "A->B" {
		t.Errorf("expected edge A->B in frame, got %v", export.Frames[0][2])
	}
}

func TestEndSession_WritesJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: false})
	_ = b.StartSession(testSession())
	fill(b)

	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	path := b.ExportedFilePath()
	if filepath.Base(path) != "Cargo_Drone_20260301_103000.json" {
		t.Errorf("unexpected export name %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	var export FlightExport
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("failed to parse export: %v", err)
	}
	if export.TickRate != "fast" {
		t.Errorf("expected tickRate fast, got %s", export.TickRate)
	}
	if len(export.Events) != 2 || len(export.Tracks) != 1 || len(export.Frames) != 1 {
		t.Errorf("unexpected export sizes: %d events, %d tracks, %d frames",
			len(export.Events), len(export.Tracks), len(export.Frames))
	}

	if len(b.Events()) != 2 {
		t.Error("data should stay readable after EndSession")
	}
}

func TestEndSession_WritesGzip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	_ = b.StartSession(testSession())
	fill(b)

	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	path := b.ExportedFilePath()
	if !strings.HasSuffix(path, ".json.gz") {
		t.Fatalf("expected .json.gz, got %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("failed to open gzip: %v", err)
	}
	defer gz.Close()

	var export FlightExport
	if err := json.NewDecoder(gz).Decode(&export); err != nil {
		t.Fatalf("failed to decode export: %v", err)
	}
	if export.Tracks[0].Efficiency != 0.75 {
		t.Errorf("expected efficiency 0.75, got %v", export.Tracks[0].Efficiency)
	}
}

func TestEndSession_BadOutputDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	b := New(config.MemoryConfig{OutputDir: filepath.Join(file, "sub")})
	_ = b.StartSession(testSession())

	if err := b.EndSession(); err == nil {
		t.Error("expected error for unusable output directory")
	}
	if b.ExportedFilePath() != "" {
		t.Error("no export path on failure")
	}
}

func TestExportMetadata(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	if meta := b.ExportMetadata(); meta != (core.UploadMetadata{}) {
		t.Errorf("expected empty metadata without a session, got %+v", meta)
	}

	_ = b.StartSession(testSession())
	_ = b.RecordEdgeEvent(&core.EdgeEvent{Tick: 60, Kind: core.EventRouteStarted})
	_ = b.RecordFrame(&core.Frame{Tick: 180})

	meta := b.ExportMetadata()
	if meta.VehicleName != "Cargo Drone" {
		t.Errorf("expected vehicle Cargo Drone, got %q", meta.VehicleName)
	}
	if diff := meta.Duration - 3.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected duration 3s, got %v", meta.Duration)
	}
}
