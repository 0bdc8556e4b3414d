package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pathnav/navigator/internal/api"
	"github.com/pathnav/navigator/internal/config"
	"github.com/pathnav/navigator/internal/storage"
	"github.com/pathnav/navigator/internal/storage/factory"
	"github.com/pathnav/navigator/internal/tick"
	"github.com/pathnav/navigator/pkg/core"
)

// initStorage creates and initializes the configured flight log and opens the
// session for vehicleName. A backend that fails to come up is replaced by
// storage.Discard so the navigator still runs.
func initStorage(cfg config.StorageConfig, logger *slog.Logger, logWriter io.Writer, vehicleName string, start time.Time) (storage.Backend, *core.Session) {
	session := &core.Session{
		VehicleName:    vehicleName,
		TickRate:       tick.CurrentRate().String(),
		SecondsPerTick: tick.SecondsPerTick(),
		StartTime:      start,
		Version:        fmt.Sprintf("%s (%s)", Version, BuildDate),
	}

	backend, err := factory.NewBackend(cfg, factory.Dependencies{
		Logger:       logger,
		LogWriter:    logWriter,
		SessionStart: start,
	})
	if err == nil {
		err = backend.Init()
	}
	if err == nil {
		err = backend.StartSession(session)
	}
	if err != nil {
		logger.Error("flight log unavailable, discarding", "type", cfg.Type, "error", err)
		if backend != nil {
			_ = backend.Close()
		}
		backend = storage.Discard{}
		_ = backend.StartSession(session)
	}

	logger.Info("flight log session started", "type", cfg.Type, "session", session.ID)
	return backend, session
}

// closeStorage ends the session, uploads the export when configured and
// releases the backend.
func closeStorage(backend storage.Backend, logger *slog.Logger, apiCfg config.APIConfig) {
	if err := backend.EndSession(); err != nil {
		logger.Warn("failed to end flight log session", "error", err)
	}
	if exp, ok := backend.(storage.Exporter); ok && exp.ExportedFilePath() != "" {
		logger.Info("flight log exported", "path", exp.ExportedFilePath())
		if apiCfg.Upload {
			uploadExport(exp, apiCfg, logger)
		}
	}
	if err := backend.Close(); err != nil {
		logger.Warn("failed to close flight log", "error", err)
	}
}

func uploadExport(exp storage.Exporter, cfg config.APIConfig, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := api.New(cfg.ServerURL, cfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		logger.Warn("flight viewer unreachable, export kept locally", "url", cfg.ServerURL, "error", err)
		return
	}
	meta := exp.ExportMetadata()
	meta.Tag = cfg.Tag
	if err := client.Upload(ctx, exp.ExportedFilePath(), meta); err != nil {
		logger.Error("failed to upload flight log", "path", exp.ExportedFilePath(), "error", err)
		return
	}
	logger.Info("flight log uploaded", "url", cfg.ServerURL, "vehicle", meta.VehicleName, "duration", meta.Duration)
}
