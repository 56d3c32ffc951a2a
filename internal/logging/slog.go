package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// consoleOut receives console logs. stdout carries command responses, so
// the console handler writes to stderr.
var consoleOut io.Writer = os.Stderr

// instrumentationName names the otelslog logger.
const instrumentationName = "racetrack"

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// SetupOption adds optional outputs to Setup.
type SetupOption func(*setupOptions)

type setupOptions struct {
	gelf      io.Writer
	gelfLevel string
	provider  ContextProvider
}

// WithGELF also ships records at level or above to Graylog through w
// (see NewGELFWriter).
func WithGELF(w io.Writer, level string) SetupOption {
	return func(o *setupOptions) {
		o.gelf = w
		o.gelfLevel = level
	}
}

// WithContextProvider nests the provider's attributes under "race" on every record.
func WithContextProvider(p ContextProvider) SetupOption {
	return func(o *setupOptions) { o.provider = p }
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// textOptions formats timestamps as UTC RFC3339.
func textOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
				a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
			}
			return a
		},
	}
}

// Setup initializes the logging system.
// Records go to file, or to the console (stderr) when file is nil, and
// additionally to Graylog and OTel when configured. If provider is nil,
// OTel logging is disabled.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...SetupOption) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}

	lvl := parseLevel(level)
	m.logProvider = provider

	out := file
	if out == nil {
		out = consoleOut
	}
	sinks := []slog.Handler{slog.NewTextHandler(out, textOptions(lvl))}

	if o.gelf != nil {
		sinks = append(sinks, slog.NewTextHandler(o.gelf, textOptions(max(lvl, parseLevel(o.gelfLevel)))))
	}

	if provider != nil {
		sinks = append(sinks, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)))
	}

	handler := Fanout(sinks...)
	if o.provider != nil {
		handler = NewContextHandler(handler, "race", o.provider)
	}

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", level)
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// WriteLog writes a log entry tagged with the calling function name.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m.logger == nil {
		return
	}
	m.logger.Log(context.Background(), parseLevel(level), data, "function", functionName)
}
