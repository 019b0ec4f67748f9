package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with a small structured-field API.
type Logger struct {
	zl zerolog.Logger
}

// Config holds logger settings.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

// New creates a configured logger.
func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat}
	}

	zl := zerolog.New(output).With().Timestamp().Logger()
	return &Logger{zl: zl}, nil
}

// Nop returns a logger that discards everything, for tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger carrying the given fields on every event.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.addToContext(ctx)
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) emit(event *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.addTo(event)
	}
	event.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), msg, fields) }

// Field is one structured log attribute.
type Field struct {
	key string
	val interface{}
}

func (f Field) addTo(event *zerolog.Event) {
	switch v := f.val.(type) {
	case string:
		event.Str(f.key, v)
	case int:
		event.Int(f.key, v)
	case int64:
		event.Int64(f.key, v)
	case float64:
		event.Float64(f.key, v)
	case bool:
		event.Bool(f.key, v)
	case time.Duration:
		event.Dur(f.key, v)
	case error:
		event.AnErr(f.key, v)
	default:
		event.Interface(f.key, v)
	}
}

func (f Field) addToContext(ctx zerolog.Context) zerolog.Context {
	switch v := f.val.(type) {
	case string:
		return ctx.Str(f.key, v)
	case int:
		return ctx.Int(f.key, v)
	default:
		return ctx.Interface(f.key, f.val)
	}
}

// --- Field constructors ---

func String(key, value string) Field          { return Field{key: key, val: value} }
func Int(key string, value int) Field         { return Field{key: key, val: value} }
func Int64(key string, value int64) Field     { return Field{key: key, val: value} }
func Float64(key string, value float64) Field { return Field{key: key, val: value} }
func Bool(key string, value bool) Field       { return Field{key: key, val: value} }
func Error(err error) Field                   { return Field{key: "error", val: err} }
func Duration(key string, value time.Duration) Field {
	return Field{key: key, val: value}
}
func Strings(key string, value []string) Field {
	return Field{key: key, val: strings.Join(value, ", ")}
}
