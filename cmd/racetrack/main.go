package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/OCAP2/racetrack/internal/api"
	"github.com/OCAP2/racetrack/internal/config"
	"github.com/OCAP2/racetrack/internal/dispatcher"
	"github.com/OCAP2/racetrack/internal/influx"
	"github.com/OCAP2/racetrack/internal/logging"
	"github.com/OCAP2/racetrack/internal/monitor"
	intOtel "github.com/OCAP2/racetrack/internal/otel"
	"github.com/OCAP2/racetrack/internal/parser"
	"github.com/OCAP2/racetrack/internal/race"
	"github.com/OCAP2/racetrack/internal/session"
	"github.com/OCAP2/racetrack/internal/storage"
	"github.com/OCAP2/racetrack/internal/worker"

	"github.com/spf13/pflag"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildVersion and BuildDate can be set at build time via ldflags
var (
	BuildVersion = "0.0.1"
	BuildDate    = "unknown"
)

const processName = "racetrack"

type host struct {
	slogManager *logging.SlogManager
	logger      *slog.Logger
	logFile     *os.File
	otel        *intOtel.Provider
	backend     storage.Backend
	influx      *influx.Manager
	session     *session.Context
	dispatcher  *dispatcher.Dispatcher
	monitor     *monitor.Service
}

func main() {
	configDir := pflag.StringP("config", "c", ".", "directory containing "+config.FileName)
	pflag.Parse()

	h, err := setup(*configDir, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "racetrack: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, os.Stdin, os.Stdout, h.dispatcher); err != nil {
		h.logger.Error("Command loop stopped", "error", err)
	}
	h.shutdown()
}

func setup(configDir string, sessionStart time.Time) (*host, error) {
	h := &host{
		slogManager: logging.NewSlogManager(),
		session:     session.NewContext(),
	}
	h.slogManager.Setup(nil, "info", nil)
	h.logger = h.slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		h.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		h.logger.Info("Loaded config", "dir", configDir)
	}
	logLevel := config.GetString("logLevel")
	logsDir := config.GetString("logsDir")

	var err error
	h.logFile, err = logging.OpenLogFile(logsDir, processName, sessionStart)
	if err != nil {
		h.logger.Error("Failed to create/open log file!", "error", err)
	}

	raceCfg := config.GetRaceConfig()
	h.setupLogging(logLevel, raceCfg)

	h.backend, err = storage.NewBackend(config.GetStorageConfig(), storage.Dependencies{
		LogManager:   h.slogManager,
		SessionStart: sessionStart,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := h.backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	h.logger.Info("Storage backend initialized", "type", config.GetStorageConfig().Type)

	zlog := logging.NewZerolog(h.logOutput(), logLevel)

	var metrics worker.MetricsWriter
	h.influx = influx.NewManager(config.GetInfluxConfig(), zlog,
		filepath.Join(logsDir, fmt.Sprintf("influx_backup_%s.log.gz", sessionStart.Format("20060102_150405"))))
	if err := h.influx.Connect(); err != nil {
		h.influx = nil
		h.logger.Info("InfluxDB not used", "reason", err)
	} else {
		metrics = h.influx
	}

	var uploader worker.Uploader
	apiCfg := config.GetAPIConfig()
	if apiCfg.UploadOnConclude {
		client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
		if err := client.Healthcheck(); err != nil {
			h.logger.Warn("Results server is offline", "url", apiCfg.ServerURL, "error", err)
		} else {
			h.logger.Info("Results server is online", "url", apiCfg.ServerURL)
		}
		uploader = client
	}

	h.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	h.dispatcher.Register(":VERSION:", func(e dispatcher.Event) (any, error) {
		return []string{BuildVersion, BuildDate}, nil
	})

	var telemetry worker.Flusher
	if h.otel != nil {
		telemetry = h.otel
	}

	workers := worker.NewManager(worker.Dependencies{
		LogManager:   h.slogManager,
		Parser:       parser.NewParser(h.logger, BuildVersion, sessionStart.UnixNano()),
		Session:      h.session,
		RaceConfig:   raceCfg,
		HasAuthority: func() bool { return raceCfg.Authority },
		Metrics:      metrics,
		Uploader:     uploader,
		Telemetry:    telemetry,
	}, h.backend)
	workers.RegisterHandlers(h.dispatcher)
	h.logger.Info("Race handlers registered", "role", workers.Role().String())

	h.monitor = monitor.NewService(monitor.Dependencies{
		LogManager: h.slogManager,
		Session:    h.session,
		Storage:    h.backend,
		Buffers:    h.dispatcher,
		Influx:     h.influx,
		StatusDir:  logsDir,
		Interval:   raceCfg.RefreshInterval,
	})
	if err := h.monitor.Start(); err != nil {
		h.logger.Error("Failed to start status monitor", "error", err)
	}

	return h, nil
}

func (h *host) logOutput() io.Writer {
	if h.logFile != nil {
		return h.logFile
	}
	return os.Stderr
}

func (h *host) setupLogging(level string, raceCfg config.RaceConfig) {
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		role := race.Observer
		if raceCfg.Authority {
			role = race.Authority
		}
		p, err := intOtel.New(intOtel.Config{
			Enabled:        true,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: BuildVersion,
			Role:           role.String(),
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			LogWriter:      h.logOutput(),
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			h.logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			h.otel = p
		}
	}

	opts := []logging.SetupOption{logging.WithContextProvider(h.session.LogAttrs)}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGELFWriter(gl.Address, processName)
		if err != nil {
			h.logger.Warn("Graylog unavailable", "error", err)
		} else {
			opts = append(opts, logging.WithGELF(w, gl.Level))
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if h.otel != nil {
		otelLogProvider = h.otel.LoggerProvider()
	}
	var file io.Writer
	if h.logFile != nil {
		file = h.logFile
	}
	h.slogManager.Setup(file, level, otelLogProvider, opts...)
	h.logger = h.slogManager.Logger()
	if h.logFile != nil {
		h.logger.Info("Logging to file", "path", h.logFile.Name())
	}
}

func (h *host) shutdown() {
	h.logger.Info("Shutting down")
	h.monitor.Stop()

	if ctrl := h.session.Controller(); ctrl != nil && !ctrl.IsRaceConcluded() {
		if _, err := h.dispatcher.Dispatch(dispatcher.Event{Command: worker.CmdConclude, Timestamp: time.Now()}); err != nil {
			h.logger.Warn("Failed to conclude race on shutdown", "error", err)
		}
	}
	h.dispatcher.Close()

	if err := h.backend.Close(); err != nil {
		h.logger.Error("Failed to close storage backend", "error", err)
	}
	if h.influx != nil {
		if err := h.influx.Close(); err != nil {
			h.logger.Error("Failed to close InfluxDB", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.slogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "racetrack: flushing logs: %v\n", err)
	}
	if h.otel != nil {
		if err := h.otel.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "racetrack: shutting down telemetry: %v\n", err)
		}
	}
	if h.logFile != nil {
		h.logFile.Close()
	}
}
