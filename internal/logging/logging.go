// Package logging builds the process logger: colour-coded levels on stderr with
// timestamps rendered in a configurable time zone.
package logging

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // containers often ship without a zoneinfo database

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a sugared logger writing to stderr.
// level is one of debug, info, warn, error (case-insensitive); timezone is an IANA name.
func New(name, level, timezone string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(normalizeLevel(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid log timezone %q: %w", timezone, err)
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(EncoderConfig(loc)),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core, zap.AddCaller()).
		Named(name).
		With(zap.Int("pid", os.Getpid())).
		Sugar(), nil
}

// EncoderConfig renders ISO-8601 timestamps in loc and colour-coded capital levels.
func EncoderConfig(loc *time.Location) zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(loc).Format("2006-01-02T15:04:05.000-07:00"))
	}
	return cfg
}

// normalizeLevel also accepts the "warning" and "critical" spellings.
func normalizeLevel(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "warning":
		return "warn"
	case "critical":
		return "error"
	default:
		return l
	}
}
