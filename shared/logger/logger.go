package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Config controls handler selection and verbosity.
type Config struct {
	Service      string // tagged on every record, e.g. "api-service"
	Level        string // debug, info, warn, error
	Format       string // json, console
	Output       string // stdout, stderr
	EnableSource bool   // include source file:line
	TimeFormat   string // console timestamp layout
}

// Logger wraps slog.Logger
type Logger struct {
	*slog.Logger
}

// New builds a logger from config. Console format uses tint for
// colored output; anything else gets the JSON handler.
func New(config *Config) (*Logger, error) {
	level := parseLevel(config.Level)

	var writer io.Writer
	switch config.Output {
	case "stderr":
		writer = os.Stderr
	default:
		writer = os.Stdout
	}

	var handler slog.Handler
	switch config.Format {
	case "console", "":
		timeFormat := config.TimeFormat
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}

		handler = tint.NewHandler(writer, &tint.Options{
			Level:      level,
			AddSource:  config.EnableSource,
			TimeFormat: timeFormat,
		})
	default:
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level:     level,
			AddSource: config.EnableSource,
		})
	}

	log := slog.New(handler)
	if config.Service != "" {
		log = log.With(slog.String("service", config.Service))
	}

	return &Logger{Logger: log}, nil
}

// NewDefault returns a console logger at info level, tagged with the
// given service name. Meant for tests and early startup before config
// is loaded.
func NewDefault(service string) *Logger {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.TimeOnly,
	})

	log := slog.New(handler)
	if service != "" {
		log = log.With(slog.String("service", service))
	}

	return &Logger{Logger: log}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying the extra key-value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}
