// Package observability provides structured logging for the progression
// daemon and a bridge that logs character events.
package observability

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/progression/internal/config"
)

// ServiceName is attached to every log line as the "service" field.
const ServiceName = "progressiond"

// NewLogger creates a structured logger writing to stderr.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	return newLogger(cfg, zapcore.Lock(os.Stderr))
}

func newLogger(cfg config.LoggingConfig, out zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var (
		enc  zapcore.Encoder
		opts = []zap.Option{zap.AddCaller(), zap.ErrorOutput(out)}
	)
	switch cfg.Format {
	case "json":
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	case "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewConsoleEncoder(ec)
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	core := zapcore.NewCore(enc, out, zap.NewAtomicLevelAt(level))
	if cfg.Format == "json" {
		// Regeneration ticks can log many identical debug lines per second.
		core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
	}
	return zap.New(core, opts...).With(zap.String("service", ServiceName)), nil
}
