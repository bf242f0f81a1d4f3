// Package logging provides structured logging using Zap tee'd into the OpenTelemetry log bridge
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"lease_engine/internal/core"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is the instrumentation scope used for bridged log records
const ServiceName = "lease_engine"

// Options configures a ZapLogger
type Options struct {
	Level  string    // DEBUG, INFO, WARN, ERROR, FATAL
	Format string    // console or json
	Output io.Writer // defaults to stdout
}

// ZapLogger implements core.ILogger on top of zap
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger creates a console logger at the given level
func NewZapLogger(levelStr string) (*ZapLogger, error) {
	return New(Options{Level: levelStr})
}

// New creates a logger writing to opts.Output and to the global OTel logger provider
func New(opts Options) (*ZapLogger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format: %s", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	local := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	bridge := otelzap.NewCore(ServiceName, otelzap.WithLoggerProvider(global.GetLoggerProvider()))

	return &ZapLogger{
		logger: zap.New(zapcore.NewTee(local, bridge), zap.AddCaller(), zap.AddCallerSkip(1)),
	}, nil
}

// NewNop returns a logger that discards everything
func NewNop() *ZapLogger {
	return &ZapLogger{logger: zap.NewNop()}
}

// ParseLevel parses a log level string; empty means INFO
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zap.DebugLevel, nil
	case "", "INFO":
		return zap.InfoLevel, nil
	case "WARN":
		return zap.WarnLevel, nil
	case "ERROR":
		return zap.ErrorLevel, nil
	case "FATAL":
		return zap.FatalLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// toZapFields converts alternating key/value pairs to zap fields
func toZapFields(fields []interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", fields[i])
		}
		if err, isErr := fields[i+1].(error); isErr {
			zapFields = append(zapFields, zap.NamedError(key, err))
			continue
		}
		zapFields = append(zapFields, zap.Any(key, fields[i+1]))
	}
	return zapFields
}

func (l *ZapLogger) Debug(msg string, fields ...interface{}) { l.logger.Debug(msg, toZapFields(fields)...) }
func (l *ZapLogger) Info(msg string, fields ...interface{})  { l.logger.Info(msg, toZapFields(fields)...) }
func (l *ZapLogger) Warn(msg string, fields ...interface{})  { l.logger.Warn(msg, toZapFields(fields)...) }
func (l *ZapLogger) Error(msg string, fields ...interface{}) { l.logger.Error(msg, toZapFields(fields)...) }
func (l *ZapLogger) Fatal(msg string, fields ...interface{}) { l.logger.Fatal(msg, toZapFields(fields)...) }

func (l *ZapLogger) WithField(key string, value interface{}) core.ILogger {
	return &ZapLogger{logger: l.logger.With(toZapFields([]interface{}{key, value})...)}
}

func (l *ZapLogger) WithFields(fields map[string]interface{}) core.ILogger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, toZapFields([]interface{}{k, v})...)
	}
	return &ZapLogger{logger: l.logger.With(zapFields...)}
}

// Sync flushes any buffered log entries
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}
