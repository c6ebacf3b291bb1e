package observability

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync/atomic"
)

// Metrics tracks operational counters for one retrieval run.
type Metrics struct {
	// Navigation metrics
	StepsTotal  atomic.Int64
	StepsFailed atomic.Int64

	// Side-channel request metrics
	RequestsTotal  atomic.Int64
	RequestsFailed atomic.Int64
	Responses2xx   atomic.Int64
	Responses4xx   atomic.Int64
	Responses5xx   atomic.Int64

	// Artifact metrics
	BytesDownloaded atomic.Int64
	FilesWritten    atomic.Int64
	FilesSkipped    atomic.Int64
	FilesRejected   atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ObserveStatus counts a completed HTTP response by status class.
func (m *Metrics) ObserveStatus(status int) {
	if m == nil {
		return
	}
	m.RequestsTotal.Add(1)
	switch {
	case status >= 200 && status < 300:
		m.Responses2xx.Add(1)
	case status >= 400 && status < 500:
		m.Responses4xx.Add(1)
	case status >= 500:
		m.Responses5xx.Add(1)
	}
}

// ObserveRequestError counts a request that failed before a full response was read.
func (m *Metrics) ObserveRequestError() {
	if m == nil {
		return
	}
	m.RequestsTotal.Add(1)
	m.RequestsFailed.Add(1)
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"steps_total":      m.StepsTotal.Load(),
		"steps_failed":     m.StepsFailed.Load(),
		"requests_total":   m.RequestsTotal.Load(),
		"requests_failed":  m.RequestsFailed.Load(),
		"responses_2xx":    m.Responses2xx.Load(),
		"responses_4xx":    m.Responses4xx.Load(),
		"responses_5xx":    m.Responses5xx.Load(),
		"bytes_downloaded": m.BytesDownloaded.Load(),
		"files_written":    m.FilesWritten.Load(),
		"files_skipped":    m.FilesSkipped.Load(),
		"files_rejected":   m.FilesRejected.Load(),
	}
}

// WriteText writes the counters in Prometheus text exposition format, sorted by name,
// for node-exporter textfile collection.
func (m *Metrics) WriteText(w io.Writer) error {
	snap := m.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		metric := "jepx_" + name
		if _, err := fmt.Fprintf(w, "# TYPE %s counter\n%s %d\n", metric, metric, snap[name]); err != nil {
			return err
		}
	}
	return nil
}

// Log emits the snapshot as a single structured record.
func (m *Metrics) Log() {
	snap := m.Snapshot()
	attrs := make([]any, 0, len(snap)*2)
	for k, v := range snap {
		attrs = append(attrs, k, v)
	}
	m.logger.Info("run metrics", attrs...)
}
