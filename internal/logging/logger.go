// Package logging provides structured logging for gantry on top of zap.
//
// A package-level default logger mirrors the small API the rest of the code
// base uses (SetLevel, With, Debug, Info, Warn, Error). Components that want
// their own logger take a *Logger through their options; a nil *Logger is
// valid and discards everything.
package logging

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Supported output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config controls logger construction.
type Config struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// DefaultConfig logs warnings and above to stderr in console format.
func DefaultConfig() Config {
	return Config{Level: "warn", Format: FormatConsole}
}

// Validate checks the level and format.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	if c.Format != FormatConsole && c.Format != FormatJSON {
		return fmt.Errorf("format must be %q or %q, got %q", FormatConsole, FormatJSON, c.Format)
	}
	return nil
}

// ParseLevel converts a level name to a zapcore.Level.
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// Logger wraps a zap logger with a mutable level.
type Logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// New builds a logger writing to stderr.
func New(cfg Config) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	lvl, _ := ParseLevel(cfg.Level)
	atom := zap.NewAtomicLevelAt(lvl)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if cfg.Format == FormatJSON {
		enc = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), atom)
	return &Logger{zap: zap.New(core), level: atom}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

// NewObserved returns a logger recording entries at or above level, for
// assertions in tests.
func NewObserved(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{zap: zap.New(core), level: zap.NewAtomicLevelAt(level)}, logs
}

// SetLevel changes the minimum enabled level.
func (l *Logger) SetLevel(level zapcore.Level) {
	if l == nil {
		return
	}
	l.level.SetLevel(level)
}

// With returns a child logger carrying additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{zap: l.zap.With(fields...), level: l.level}
}

// Named returns a child logger with a name segment appended.
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{zap: l.zap.Named(name), level: l.level}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	if l != nil {
		l.zap.Debug(msg, fields...)
	}
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	if l != nil {
		l.zap.Info(msg, fields...)
	}
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	if l != nil {
		l.zap.Warn(msg, fields...)
	}
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	if l != nil {
		l.zap.Error(msg, fields...)
	}
}

// Sync flushes buffered entries. Harmless errors from syncing a terminal
// are ignored.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	err := l.zap.Sync()
	var errno syscall.Errno
	if err != nil && errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}

// Underlying exposes the zap logger for libraries that need one.
func (l *Logger) Underlying() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.zap
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = mustDefault()
)

func mustDefault() *Logger {
	l, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return l
}

// Default returns the package-level logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the package-level logger.
func SetDefault(l *Logger) {
	if l == nil {
		l = NewNop()
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// SetLevel sets the minimum level of the default logger.
func SetLevel(level zapcore.Level) { Default().SetLevel(level) }

// With returns a child of the default logger.
func With(fields ...zap.Field) *Logger { return Default().With(fields...) }

// Debug logs at debug level using the default logger.
func Debug(msg string, fields ...zap.Field) { Default().Debug(msg, fields...) }

// Info logs at info level using the default logger.
func Info(msg string, fields ...zap.Field) { Default().Info(msg, fields...) }

// Warn logs at warn level using the default logger.
func Warn(msg string, fields ...zap.Field) { Default().Warn(msg, fields...) }

// Error logs at error level using the default logger.
func Error(msg string, fields ...zap.Field) { Default().Error(msg, fields...) }
