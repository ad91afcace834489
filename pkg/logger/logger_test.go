package logger

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCallerPointsAtCallSite(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := InfoLogger
	InfoLogger = zap.New(core, zap.AddCaller(), helperSkip)
	defer func() { InfoLogger = prev }()

	Info("through the helper %d", 1)
	Zap().Info("direct")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if got := filepath.Base(e.Caller.File); got != "logger_test.go" {
			t.Errorf("%q: expected caller logger_test.go, got %s", e.Message, got)
		}
		if e.ContextMap()["service"] != serviceName {
			t.Errorf("%q: missing service field", e.Message)
		}
	}
}

func TestHelpersBeforeInit(t *testing.T) {
	prev := InfoLogger
	InfoLogger = nil
	defer func() { InfoLogger = prev }()

	// must not panic
	Debug("x")
	Warn("y")
	Error("z")
	Zap().Info("nop")
}
