// Package logger builds the zap loggers used across MiniSQL. The process
// logger comes from New; every storage component derives its own named child
// with Component.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every entry written by a logger from New.
const ServiceName = "minisql"

// Config is the logger section of the engine configuration.
type Config struct {
	// Level is debug, info, warn or error. Anything else means info.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
	// OutputFile is stdout, stderr or a path that is appended to.
	OutputFile string `yaml:"output_file"`
}

// New builds the process logger.
func New(config Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(config.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	sink, err := openSink(config.OutputFile)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoderFor(config.Format), sink, level)
	return zap.New(core, zap.AddCaller(), zap.Fields(zap.String("service", ServiceName))), nil
}

// Component returns the logger a storage component writes to: base named
// after the component and carrying fields. A nil base yields a no-op logger,
// so components can be built without any logging setup.
func Component(base *zap.Logger, name string, fields ...zap.Field) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	l := base.Named(name)
	if len(fields) > 0 {
		l = l.With(fields...)
	}
	return l
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func encoderFor(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.EqualFold(format, "console") {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

func openSink(outputFile string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputFile) {
	case "stdout", "":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	file, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", outputFile, err)
	}
	return zapcore.AddSync(file), nil
}
