package logging

import (
	"io"
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level string
	Dev   bool
	// File, when set, receives JSON logs in addition to stdout. It is rotated
	// daily as File.YYYYMMDD and File itself links to the current one.
	File   string
	MaxAge time.Duration
}

func levelFromString(l string) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds the process logger.
func New(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)

	var consoleEnc zapcore.Encoder
	if cfg.Dev {
		consoleEnc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		consoleEnc = zapcore.NewJSONEncoder(productionEncoderConfig())
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.AddSync(os.Stdout), lvl),
	}

	if cfg.File != "" {
		w, err := rotatingWriter(cfg.File, cfg.MaxAge)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(productionEncoderConfig()), zapcore.AddSync(w), lvl))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Dev {
		opts = append(opts, zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

func productionEncoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}

func rotatingWriter(path string, maxAge time.Duration) (io.Writer, error) {
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	return rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
	)
}
