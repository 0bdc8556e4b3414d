// Command navigator runs the path navigator against a simulated vehicle. Command
// lines (record;A;B, patrol;A;B;C, stop, halt, ...) are read from stdin and applied
// between ticks.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pathnav/navigator/internal/attitude"
	"github.com/pathnav/navigator/internal/config"
	"github.com/pathnav/navigator/internal/dispatcher"
	"github.com/pathnav/navigator/internal/logging"
	"github.com/pathnav/navigator/internal/monitor"
	"github.com/pathnav/navigator/internal/navigator"
	intOtel "github.com/pathnav/navigator/internal/otel"
	"github.com/pathnav/navigator/internal/scheduler"
	"github.com/pathnav/navigator/internal/sim"
	"github.com/pathnav/navigator/internal/thrust"
	"github.com/pathnav/navigator/internal/tick"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildDate and Version can be set at build time via ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

func main() {
	if err := run(os.Args[1:], os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, "navigator:", err)
		os.Exit(1)
	}
}

func run(args []string, commands io.Reader) error {
	flags := pflag.NewFlagSet("navigator", pflag.ContinueOnError)
	configDir := flags.StringP("config", "c", ".", "directory containing "+config.FileName)
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("tick-rate", "fast", "fast, medium or slow")
	flags.String("storage", "memory", "memory, sqlite, postgres, influx, websocket or none")
	if err := flags.Parse(args); err != nil {
		return err
	}
	for key, name := range map[string]string{
		"logLevel":     "log-level",
		"tickRate":     "tick-rate",
		"storage.type": "storage",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}

	start := time.Now()

	slogManager := logging.NewSlogManager()
	slogManager.Setup(logging.Options{Level: viper.GetString("logLevel")})
	logger := slogManager.Logger()

	if err := config.Load(*configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	rate, err := config.TickRate()
	if err != nil {
		return err
	}
	if err := tick.Initialize(rate); err != nil {
		return err
	}

	simCfg := config.SimConfig()

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, simCfg.Name, start)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	otelCfg := config.GetOTelConfig()
	var provider *intOtel.Provider
	if otelCfg.Enabled {
		pcfg := intOtel.Config{
			Enabled:        true,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      logFile,
			MetricInterval: otelCfg.MetricInterval,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		}
		if otelCfg.Metrics {
			pcfg.MetricWriter = logFile
		}
		provider, err = intOtel.New(pcfg)
		if err != nil {
			logger.Error("Failed to initialize OTel provider", "error", err)
			provider = nil
		}
	}

	var current atomic.Pointer[navigator.Navigator]
	var otelLogs *sdklog.LoggerProvider
	if provider != nil {
		otelLogs = provider.LoggerProvider()
	}
	slogManager.Setup(logging.Options{
		File:     io.MultiWriter(os.Stdout, logFile),
		Level:    viper.GetString("logLevel"),
		Provider: otelLogs,
		Context: func() []slog.Attr {
			if nav := current.Load(); nav != nil {
				return nav.LogAttrs()
			}
			return nil
		},
	})
	logger = slogManager.Logger()
	slog.SetDefault(logger)

	attitudeCfg, err := config.AttitudeConfig()
	if err != nil {
		return err
	}
	craft := sim.New(simCfg)
	propulsion := thrust.New(config.ThrustConfig(), craft)
	orientation := attitude.New(attitudeCfg, craft)

	storageCfg := config.GetStorageConfig()
	backend, session := initStorage(storageCfg, logger, logFile, simCfg.Name, start)

	nav, err := navigator.New(navigator.Dependencies{
		Provider:   craft,
		Propulsion: propulsion,
		Attitude:   orientation,
		Logger:     logger,
		FlightLog:  backend,
		SessionID:  session.ID,
		FrameEvery: storageCfg.FrameEvery,
	})
	if err != nil {
		closeStorage(backend, logger, config.APIConfig{})
		return err
	}
	current.Store(nav)

	d, err := dispatcher.New(logging.NewDispatcherLogger(
		logging.NewZerolog(logFile, viper.GetString("logLevel"), "dispatcher"),
	))
	if err != nil {
		return err
	}

	interval := time.Duration(tick.SecondsPerTick() * float64(time.Second))
	hand := &pilot{
		vehicle:    craft,
		propulsion: propulsion,
		attitude:   orientation,
		flying:     func() bool { return len(nav.Route()) > 0 },
	}

	steps := []scheduler.Step{
		{Name: "navigator", Run: nav.Tick},
		{Name: "pilot", Run: hand.step},
		{Name: "sim", Run: func(context.Context) error {
			craft.Step(tick.SecondsPerTick())
			return nil
		}},
	}

	var sched *scheduler.Scheduler
	status := startMonitor(config.GetMonitorConfig(), logger, func() any { return nav.Status() }, func() int {
		return sched.Pending()
	})
	if status != nil {
		steps = append(steps, scheduler.Step{Name: "monitor", Run: status.Step})
		defer func() {
			if err := status.Close(); err != nil {
				logger.Warn("failed to close status file", "error", err)
			}
		}()
	}

	sched, err = scheduler.New(scheduler.Config{
		Interval:   interval,
		Dispatcher: d,
		Logger:     logger,
		Steps:      steps,
	})
	if err != nil {
		return err
	}
	nav.RegisterCommands(d, sched.Halt)
	hand.register(d)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		err := sched.Feed(ctx, commands)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, scheduler.ErrNotRunning) {
			logger.Warn("command input stopped", "error", err)
		}
	}()

	logger.Info("navigator running",
		"version", Version,
		"vehicle", simCfg.Name,
		"tickRate", rate.String(),
		"interval", interval,
		"storage", storageCfg.Type,
	)

	runErr := sched.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	nav.Stop()
	closeStorage(backend, logger, config.GetAPIConfig())
	logger.Info("navigator stopped", "ticks", sched.Ticks())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := slogManager.Flush(shutdownCtx); err != nil {
		logger.Warn("Failed to flush logs", "error", err)
	}
	if provider != nil {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	return runErr
}

// startMonitor opens the status file, or returns nil when it is disabled or
// cannot be created.
func startMonitor(cfg config.MonitorConfig, logger *slog.Logger, status func() any, pending func() int) *monitor.Service {
	if !cfg.Enabled {
		return nil
	}
	svc, err := monitor.NewService(monitor.Dependencies{
		Status:  status,
		Pending: pending,
		Path:    cfg.Path,
		Every:   cfg.Every,
		Logger:  logger,
	})
	if err == nil {
		err = svc.Open()
	}
	if err != nil {
		logger.Warn("status monitor disabled", "path", cfg.Path, "error", err)
		return nil
	}
	return svc
}
