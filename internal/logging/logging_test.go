package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/testutil"
)

var (
	_ interfaces.Logger = (*logging.ZerologLogger)(nil)
	_ interfaces.Logger = (*testutil.DummyLogger)(nil)
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a log line, got nothing")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("unmarshal log line %q: %v", line, err)
	}
	return m
}

func TestZerologLogger_WritesTypedFields(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWithWriter(&buf, logging.Config{Level: "debug", Format: "json"})

	l.Info("scan queued",
		logging.F("job_id", "01HZX"),
		logging.F("count", 3),
		logging.F("elapsed", 2*time.Second),
		logging.Err(errors.New("boom")),
	)

	m := decodeLine(t, &buf)
	if m["message"] != "scan queued" {
		t.Errorf("unexpected message: %v", m["message"])
	}
	if m["level"] != "info" {
		t.Errorf("unexpected level: %v", m["level"])
	}
	if m["job_id"] != "01HZX" {
		t.Errorf("unexpected job_id: %v", m["job_id"])
	}
	if m["count"] != float64(3) {
		t.Errorf("unexpected count: %v", m["count"])
	}
	if m["error"] != "boom" {
		t.Errorf("unexpected error field: %v", m["error"])
	}
}

func TestZerologLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWithWriter(&buf, logging.Config{Level: "warn"})

	l.Debug("hidden")
	l.Info("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("expected debug/info to be filtered, got %q", buf.String())
	}

	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn entry, got %q", buf.String())
	}
}

func TestZerologLogger_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWithWriter(&buf, logging.Config{Level: "loud"})

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered at default level, got %q", buf.String())
	}
	l.Info("visible")
	if buf.Len() == 0 {
		t.Fatal("expected info entry")
	}
}

func TestZerologLogger_WithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWithWriter(&buf, logging.Config{Level: "info"})

	child := l.With(logging.F("component", "queue"))
	child.Error("claim failed")

	m := decodeLine(t, &buf)
	if m["component"] != "queue" {
		t.Errorf("expected component field from With, got %v", m["component"])
	}
}

func TestErr_NilError(t *testing.T) {
	f := logging.Err(nil)
	if f.Key != "error" || f.Value != "" {
		t.Errorf("unexpected field for nil error: %+v", f)
	}
}

func TestWith_ReturnsInterfacesLogger(t *testing.T) {
	var buf bytes.Buffer
	var l interfaces.Logger = logging.NewWithWriter(&buf, logging.Config{Level: "info", Format: "json"})

	child := l.With(interfaces.Field{Key: "job_id", Value: "j1"})
	child.Info("claimed", logging.F("category", "Books"))

	m := decodeLine(t, &buf)
	if m["job_id"] != "j1" || m["category"] != "Books" {
		t.Errorf("expected fields from interfaces.Field and logging.F, got %v", m)
	}
}
