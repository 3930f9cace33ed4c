package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nhle/uptask/internal/model"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "uptask.log")

	log, closer, err := New(model.LogConfig{Level: "debug", File: path, Format: "json"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.WithField("project", "p1").Debug("selected project")
	if err := closer.Close(); err != nil {
		t.Fatalf("closing log file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"project":"p1"`) {
		t.Fatalf("expected structured field in log, got %s", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(model.LogConfig{Level: "loud"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}
