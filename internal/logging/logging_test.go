package logging

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewParsesLevel(t *testing.T) {
	logger := New(Options{Level: "debug"})
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug level, got %s", logger.GetLevel())
	}

	logger = New(Options{Level: "nonsense"})
	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected fallback to info, got %s", logger.GetLevel())
	}
}

func TestNewWritesRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cargo.log")
	logger := New(Options{Level: "info", File: file})
	logger.WithField("order_id", 123456).Info("order created")

	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Error("expected JSON formatter")
	}
}
