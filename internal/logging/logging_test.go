package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Fatalf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carebook.log")

	logger, err := New(Config{Level: "info", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hello file")
	_ = logger.Sync()

	matches, err := filepath.Glob(path + ".*")
	if err != nil || len(matches) == 0 {
		t.Fatalf("expected a dated log file, got %v (%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello file"`) {
		t.Fatalf("log line missing, got %q", data)
	}
}

func TestNewDevelopment(t *testing.T) {
	logger, err := New(Config{Dev: true, Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug level should be enabled")
	}
}
