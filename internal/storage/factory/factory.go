// Package factory builds the configured flight-log backend.
package factory

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pathnav/navigator/internal/config"
	"github.com/pathnav/navigator/internal/database"
	"github.com/pathnav/navigator/internal/influx"
	"github.com/pathnav/navigator/internal/logging"
	"github.com/pathnav/navigator/internal/storage"
	influxstorage "github.com/pathnav/navigator/internal/storage/influx"
	"github.com/pathnav/navigator/internal/storage/memory"
	"github.com/pathnav/navigator/internal/storage/sqldb"
	wsstorage "github.com/pathnav/navigator/internal/storage/websocket"
)

// Storage types accepted in storage.type.
const (
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeInflux    = "influx"
	TypeWebSocket = "websocket"
	TypeNone      = "none"
)

// Dependencies are the process-wide pieces a backend may need.
type Dependencies struct {
	Logger *slog.Logger
	// LogWriter receives the JSON logs of the database and influx managers.
	LogWriter    io.Writer
	SessionStart time.Time
}

// NewBackend creates the backend named by cfg.Type. Database connections are opened
// here; schema setup and server handshakes happen in the backend's Init.
func NewBackend(cfg config.StorageConfig, deps Dependencies) (storage.Backend, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.LogWriter == nil {
		deps.LogWriter = os.Stderr
	}
	stamp := deps.SessionStart.UTC().Format("20060102_150405")

	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case TypeMemory, "":
		deps.Logger.Info("memory storage backend selected", "outputDir", cfg.Memory.OutputDir)
		return memory.New(cfg.Memory), nil

	case TypeSQLite:
		db := database.NewManager(logging.NewZerolog(deps.LogWriter, cfg.LogLevel, "sqlite"))
		dumpPath := ""
		if cfg.SQLite.Path == "" || cfg.SQLite.Path == database.InMemory {
			dumpPath = filepath.Join(cfg.Memory.OutputDir, fmt.Sprintf("navigator_%s.db", stamp))
		} else if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		if err := db.ConnectSqlite(cfg.SQLite.Path, dumpPath); err != nil {
			return nil, err
		}
		deps.Logger.Info("sqlite storage backend selected", "path", cfg.SQLite.Path)
		return sqldb.New(db, sqldb.Options{}), nil

	case TypePostgres:
		db := database.NewManager(logging.NewZerolog(deps.LogWriter, cfg.LogLevel, "postgres"))
		if err := db.ConnectPostgres(cfg.Postgres); err != nil {
			return nil, err
		}
		deps.Logger.Info("postgres storage backend selected", "host", cfg.Postgres.Host)
		return sqldb.New(db, sqldb.Options{}), nil

	case TypeInflux:
		backup := filepath.Join(cfg.Memory.OutputDir, fmt.Sprintf("influx_%s.lp.gz", stamp))
		m := influx.NewManager(cfg.Influx, logging.NewZerolog(deps.LogWriter, cfg.LogLevel, "influx"), backup)
		deps.Logger.Info("influx storage backend selected", "url", cfg.Influx.URL(), "bucket", cfg.Influx.Bucket)
		return influxstorage.New(m), nil

	case TypeWebSocket:
		deps.Logger.Info("websocket storage backend selected", "url", cfg.WebSocket.URL)
		return wsstorage.New(wsstorage.Config{
			URL:    httpToWS(cfg.WebSocket.URL),
			Secret: cfg.WebSocket.Secret,
		}, deps.Logger), nil

	case TypeNone:
		deps.Logger.Info("flight log disabled")
		return storage.Discard{}, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(raw string) string {
	s := strings.TrimRight(raw, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
