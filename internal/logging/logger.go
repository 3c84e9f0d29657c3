package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents different log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a user supplied level name to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger interface for structured logging
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      LogLevel
	Format     string // "console" or "json"
	Output     io.Writer
	TimeFormat string
	Component  string
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:      LevelInfo,
		Format:     "console",
		Output:     os.Stderr,
		TimeFormat: time.TimeOnly,
	}
}

// NewLogger creates a logger for the configured format. The console format
// is meant for the interactive development loop, json for CI logs.
func NewLogger(config *LoggerConfig) Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}
	if config.Format == "json" {
		return newJSONLogger(config)
	}
	return newConsoleLogger(config)
}

// ConsoleLogger renders human readable lines through zerolog's console
// writer. Messages carry the component as a bracketed prefix, so task
// output reads "[styles] Finished 'styles'".
type ConsoleLogger struct {
	logger    zerolog.Logger
	component string
}

func newConsoleLogger(config *LoggerConfig) *ConsoleLogger {
	timeFormat := config.TimeFormat
	if timeFormat == "" {
		timeFormat = time.TimeOnly
	}
	writer := zerolog.ConsoleWriter{
		Out:        config.Output,
		TimeFormat: timeFormat,
		NoColor:    !isTerminal(config.Output),
	}

	l := zerolog.New(writer).Level(toZerolog(config.Level)).With().Timestamp().Logger()
	c := &ConsoleLogger{logger: l}
	if config.Component != "" {
		return c.WithComponent(config.Component).(*ConsoleLogger)
	}
	return c
}

// Debug logs a debug message
func (l *ConsoleLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(l.logger.Debug(), nil, msg, fields)
}

// Info logs an info message
func (l *ConsoleLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(l.logger.Info(), nil, msg, fields)
}

// Warn logs a warning message
func (l *ConsoleLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(l.logger.Warn(), err, msg, fields)
}

// Error logs an error message
func (l *ConsoleLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(l.logger.Error(), err, msg, fields)
}

func (l *ConsoleLogger) emit(evt *zerolog.Event, err error, msg string, fields []interface{}) {
	if evt == nil {
		return
	}
	if err != nil {
		evt = evt.Err(err)
	}
	if l.component != "" {
		msg = "[" + l.component + "] " + msg
	}
	evt.Fields(fields).Msg(msg)
}

// With creates a new logger with additional fields
func (l *ConsoleLogger) With(fields ...interface{}) Logger {
	return &ConsoleLogger{
		logger:    l.logger.With().Fields(fields).Logger(),
		component: l.component,
	}
}

// WithComponent creates a new logger with component context
func (l *ConsoleLogger) WithComponent(component string) Logger {
	return &ConsoleLogger{
		logger:    l.logger,
		component: component,
	}
}

func toZerolog(level LogLevel) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// JSONLogger implements structured logging with log/slog
type JSONLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	fields    map[string]interface{}
}

func newJSONLogger(config *LoggerConfig) *JSONLogger {
	opts := &slog.HandlerOptions{
		Level: toSlog(config.Level),
	}
	return &JSONLogger{
		logger:    slog.New(slog.NewJSONHandler(config.Output, opts)),
		level:     config.Level,
		component: config.Component,
		fields:    make(map[string]interface{}),
	}
}

// Debug logs a debug message
func (l *JSONLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	if l.level > LevelDebug {
		return
	}
	l.log(ctx, slog.LevelDebug, nil, msg, fields...)
}

// Info logs an info message
func (l *JSONLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	if l.level > LevelInfo {
		return
	}
	l.log(ctx, slog.LevelInfo, nil, msg, fields...)
}

// Warn logs a warning message
func (l *JSONLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	if l.level > LevelWarn {
		return
	}
	l.log(ctx, slog.LevelWarn, err, msg, fields...)
}

// Error logs an error message
func (l *JSONLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelError, err, msg, fields...)
}

// With creates a new logger with additional fields
func (l *JSONLogger) With(fields ...interface{}) Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields)/2)
	for k, v := range l.fields {
		newFields[k] = v
	}

	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			newFields[key] = fields[i+1]
		}
	}

	return &JSONLogger{
		logger:    l.logger,
		level:     l.level,
		component: l.component,
		fields:    newFields,
	}
}

// WithComponent creates a new logger with component context
func (l *JSONLogger) WithComponent(component string) Logger {
	return &JSONLogger{
		logger:    l.logger,
		level:     l.level,
		component: component,
		fields:    l.fields,
	}
}

func (l *JSONLogger) log(ctx context.Context, level slog.Level, err error, msg string, fields ...interface{}) {
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := make([]slog.Attr, 0, len(l.fields)+len(fields)/2+2)

	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	for k, v := range l.fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			attrs = append(attrs, slog.Any(key, fields[i+1]))
		}
	}

	l.logger.LogAttrs(ctx, level, msg, attrs...)
}

func toSlog(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &ConsoleLogger{logger: zerolog.Nop()}
}

// PerfLogger tracks how long an operation took
type PerfLogger struct {
	Logger
	startTime time.Time
	operation string
}

// StartOperation begins performance tracking
func StartOperation(l Logger, operation string) *PerfLogger {
	return &PerfLogger{
		Logger:    l.With("operation", operation),
		startTime: time.Now(),
		operation: operation,
	}
}

// End completes performance tracking and logs the duration
func (p *PerfLogger) End(ctx context.Context) {
	p.Info(ctx, "Finished '"+p.operation+"'", "duration", time.Since(p.startTime).Round(time.Millisecond).String())
}

// EndWithError completes performance tracking and logs an error
func (p *PerfLogger) EndWithError(ctx context.Context, err error) {
	p.Error(ctx, err, "'"+p.operation+"' errored", "duration", time.Since(p.startTime).Round(time.Millisecond).String())
}
