// Package testing carries small shared helpers for package tests.
package testing

import (
	"testing"

	"consulta-vehicular-go/internal/platform/config"
	"consulta-vehicular-go/internal/platform/logging"
)

// SetupTestConfig returns the default configuration with the server
// bound to localhost so tests never open public ports.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log.Level = "debug"
	return cfg
}

// SetupTestLogger builds a stdout-only logger for tests.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.New(logging.Config{Level: "debug"})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return logger
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}
