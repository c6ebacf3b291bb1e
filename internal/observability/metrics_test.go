package observability

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestObserveStatus(t *testing.T) {
	m := NewMetrics(testLogger)
	m.ObserveStatus(200)
	m.ObserveStatus(404)
	m.ObserveStatus(503)
	m.ObserveRequestError()

	snap := m.Snapshot()
	if snap["requests_total"] != 4 {
		t.Errorf("expected 4 requests, got %d", snap["requests_total"])
	}
	if snap["responses_2xx"] != 1 || snap["responses_4xx"] != 1 || snap["responses_5xx"] != 1 {
		t.Errorf("unexpected status buckets: %v", snap)
	}
	if snap["requests_failed"] != 1 {
		t.Errorf("expected 1 failed request, got %d", snap["requests_failed"])
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStatus(200)
	m.ObserveRequestError()
}

func TestWriteText(t *testing.T) {
	m := NewMetrics(testLogger)
	m.FilesWritten.Add(2)

	var buf bytes.Buffer
	if err := m.WriteText(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "jepx_files_written 2\n") {
		t.Errorf("missing files_written line in:\n%s", out)
	}
	if strings.Index(out, "jepx_bytes_downloaded") > strings.Index(out, "jepx_steps_total") {
		t.Error("expected metrics sorted by name")
	}
}
