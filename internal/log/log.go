// Package log builds the daemon's structured logger.
// The rest of the code only sees a logr.Logger; zap is the backend.
package log

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options contains configuration settings for the logger.
type Options struct {
	// Name is added as the logger name on every entry.
	Name string `mapstructure:"name"`
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is json or console.
	Format string `mapstructure:"format"`
	// DisableCaller stops annotating entries with file:line.
	DisableCaller bool `mapstructure:"disable-caller"`
	// OutputPaths defaults to stderr.
	OutputPaths []string `mapstructure:"output-paths"`
}

// NewOptions returns Options with defaults suitable for a systemd unit.
func NewOptions() *Options {
	return &Options{
		Name:        "incubator",
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	}
}

// AddFlags binds command-line flags to the Options fields.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "log.name", o.Name, "Logger name added to every entry.")
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum log level (debug, info, warn, error).")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log output format (json or console).")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Disable the caller field in logs.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Log output paths (stdout, stderr, or files).")
}

// Validate checks level and format.
func (o *Options) Validate() error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(o.Level)); err != nil {
		return fmt.Errorf("log level %q: %w", o.Level, err)
	}
	if o.Format != "json" && o.Format != "console" {
		return fmt.Errorf("log format %q: must be json or console", o.Format)
	}
	return nil
}

// New builds a logr.Logger backed by zap.
// Debug level maps to logr V(1).
func New(opts *Options) (logr.Logger, error) {
	if opts == nil {
		opts = NewOptions()
	}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "timestamp",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	outputPaths := opts.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	cfg := zap.Config{
		DisableCaller:    opts.DisableCaller,
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         opts.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	z, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return logr.Discard(), fmt.Errorf("build zap logger: %w", err)
	}
	if opts.Name != "" {
		z = z.Named(opts.Name)
	}
	return zapr.NewLogger(z), nil
}

// Sync flushes any buffered entries of a logger returned by New.
func Sync(l logr.Logger) {
	if u, ok := l.GetSink().(zapr.Underlier); ok {
		_ = u.GetUnderlying().Sync()
	}
}

