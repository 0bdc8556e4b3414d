package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pathnav/navigator/internal/config"
	"github.com/pathnav/navigator/internal/storage/memory"
	"github.com/pathnav/navigator/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type viewer struct {
	mu      sync.Mutex
	uploads []map[string]string
}

func newViewer(t *testing.T) (*httptest.Server, *viewer) {
	t.Helper()
	v := &viewer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthcheck":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/flights/add":
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			v.mu.Lock()
			v.uploads = append(v.uploads, map[string]string{
				"vehicleName": r.FormValue("vehicleName"),
				"tag":         r.FormValue("tag"),
				"duration":    r.FormValue("duration"),
			})
			v.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, v
}

func exportedBackend(t *testing.T) *memory.Backend {
	t.Helper()
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir(), CompressOutput: true})
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(&core.Session{
		VehicleName:    "Cargo Drone",
		SecondsPerTick: 0.5,
		StartTime:      time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
	}))
	require.NoError(t, b.RecordFrame(&core.Frame{Tick: 10}))
	return b
}

func TestCloseStorage_Uploads(t *testing.T) {
	srv, v := newViewer(t)
	b := exportedBackend(t)

	closeStorage(b, slog.Default(), config.APIConfig{ServerURL: srv.URL, Upload: true, Tag: "survey"})

	assert.NotEmpty(t, b.ExportedFilePath())
	v.mu.Lock()
	defer v.mu.Unlock()
	require.Len(t, v.uploads, 1)
	assert.Equal(t, "Cargo Drone", v.uploads[0]["vehicleName"])
	assert.Equal(t, "survey", v.uploads[0]["tag"])
	assert.Equal(t, "5.000", v.uploads[0]["duration"])
}

func TestCloseStorage_UploadDisabled(t *testing.T) {
	srv, v := newViewer(t)
	b := exportedBackend(t)

	closeStorage(b, slog.Default(), config.APIConfig{ServerURL: srv.URL})

	assert.NotEmpty(t, b.ExportedFilePath())
	v.mu.Lock()
	defer v.mu.Unlock()
	assert.Empty(t, v.uploads)
}

func TestCloseStorage_ViewerDown(t *testing.T) {
	b := exportedBackend(t)
	closeStorage(b, slog.Default(), config.APIConfig{ServerURL: "http://127.0.0.1:1", Upload: true})
	assert.NotEmpty(t, b.ExportedFilePath())
}
