// Package logger holds the process-wide zap logger. Components take a named
// child via Named so their entries carry a "logger" field such as
// "ledger" or "jobs.inbox".
package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sugar *zap.SugaredLogger
	once  sync.Once
)

// Option adjusts the zap config built by New.
type Option func(*zap.Config)

// WithLevel overrides the environment's default level. Unknown or empty
// names are ignored.
func WithLevel(name string) Option {
	return func(cfg *zap.Config) {
		if name == "" {
			return
		}
		lvl, err := zapcore.ParseLevel(strings.ToLower(name))
		if err != nil {
			return
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
}

// New builds a logger for env. "production" logs JSON at info, "test" is a
// no-op, anything else logs to the console at debug.
func New(env string, opts ...Option) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "test":
		return zap.NewNop(), nil
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg.Build()
}

// Init installs the global logger once. A build failure falls back to a
// no-op logger rather than crashing startup.
func Init(env string, opts ...Option) {
	once.Do(func() {
		base, err := New(env, opts...)
		if err != nil {
			base = zap.NewNop()
		}
		sugar = base.Sugar()
	})
}

// Get returns the global logger, initializing a development one if needed.
func Get() *zap.SugaredLogger {
	if sugar == nil {
		Init("development")
	}
	return sugar
}

// Named returns a child logger for one component.
func Named(component string) *zap.SugaredLogger {
	return Get().Named(component)
}

// Sync flushes buffered entries.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
