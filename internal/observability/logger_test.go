package observability

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":         zapcore.InfoLevel,
		"debug":    zapcore.DebugLevel,
		"DEBUG":    zapcore.DebugLevel,
		" Warn ":   zapcore.WarnLevel,
		"error":    zapcore.ErrorLevel,
		"verbose":  zapcore.InfoLevel,
		"critical": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLogLevel(in).Level(); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_HonorsLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	logger, err := NewLogger("weather-pipeline")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info enabled with LOG_LEVEL=warn")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn disabled with LOG_LEVEL=warn")
	}
}

func TestNewLogger_NoApp(t *testing.T) {
	logger, err := NewLogger("")
	if err != nil {
		t.Fatalf("NewLogger(\"\") error = %v", err)
	}
	_ = logger.Sync()
}
