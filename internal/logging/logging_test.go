package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New("debug", "console")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug level enabled")
	}

	logger, err = New("warn", "json")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info disabled at warn level")
	}
}

func TestNewRejectsUnknownInput(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatalf("expected error for bad level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected error for bad format")
	}
}
