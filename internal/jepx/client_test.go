package jepx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/IshaanNene/jepx/internal/automation"
	"github.com/IshaanNene/jepx/internal/config"
	"github.com/IshaanNene/jepx/internal/market"
	"github.com/IshaanNene/jepx/internal/session"
	"github.com/IshaanNene/jepx/internal/session/sessiontest"
	"github.com/IshaanNene/jepx/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Site.BaseURL = baseURL
	cfg.Storage.OutputPath = filepath.Join(t.TempDir(), "csv")
	return cfg
}

func TestRunVirtualPrice(t *testing.T) {
	var sawCookie atomic.Bool
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("session"); err == nil && ck.Value == "s1" {
			sawCookie.Store(true)
		}
		if r.URL.Query().Get("dir") == "virtualprice_diff" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Write(bytes.Repeat([]byte("x"), 128))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL+"/")
	page := sessiontest.NewFakePage(market.VirtualPriceButton)
	page.CookieList = []*http.Cookie{{Name: "session", Value: "s1"}}
	h := &sessiontest.Handle{FakePage: page}

	client := New(cfg, testLogger, WithOpener(sessiontest.Opener(h)), WithWaiter(automation.Instant{}))
	date := types.TargetDate{Year: 2025, Month: time.April, Day: 24}

	result, err := client.Run(context.Background(), market.KindVirtualPrice, date, RunOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, 1, h.Closed)
	assert.True(t, result.Report.OK())
	assert.True(t, sawCookie.Load())

	require.Len(t, result.Outcomes, 2)
	written := result.Written()
	require.Len(t, written, 1)
	assert.Equal(t, filepath.Join(cfg.Storage.OutputPath, "virtualprice_2025.csv"), written[0].Path)
	assert.FileExists(t, written[0].Path)
	assert.NoFileExists(t, filepath.Join(cfg.Storage.OutputPath, "virtualprice_diff_2025.csv"))
	assert.ErrorIs(t, result.Err(), types.ErrBadStatus)

	snap := client.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap["files_written"])
	assert.Equal(t, int64(1), snap["files_rejected"])
}

func TestRunRecordsSpans(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 128))
	}))
	defer srv.Close()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	cfg := testConfig(t, srv.URL+"/")
	h := &sessiontest.Handle{FakePage: sessiontest.NewFakePage(market.VirtualPriceButton)}
	client := New(cfg, testLogger,
		WithOpener(sessiontest.Opener(h)),
		WithWaiter(automation.Instant{}),
		WithTracerProvider(tp),
	)
	date := types.TargetDate{Year: 2025, Month: time.April, Day: 24}
	_, err := client.Run(context.Background(), market.KindVirtualPrice, date, RunOptions{Overwrite: true})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 3)
	run := spans[2]
	assert.Equal(t, "jepx:Run", run.Name())
	for _, s := range spans[:2] {
		assert.Equal(t, "fetcher:FetchFile", s.Name())
		assert.Equal(t, run.SpanContext().SpanID(), s.Parent().SpanID())
		var status int64
		for _, kv := range s.Attributes() {
			if kv.Key == "http.status_code" {
				status = kv.Value.AsInt64()
			}
		}
		assert.Equal(t, int64(http.StatusOK), status)
	}
}

func TestRunContinuesAfterNavigationFailures(t *testing.T) {
	cfg := testConfig(t, "https://www.jepx.jp/")
	page := sessiontest.NewFakePage() // no download trigger on the page
	page.Download = &types.Artifact{Name: "unit.csv", Data: []byte("a,b\n1,2\n")}
	h := &sessiontest.Handle{FakePage: page}

	client := New(cfg, testLogger, WithOpener(sessiontest.Opener(h)), WithWaiter(automation.Instant{}))
	result, err := client.Run(context.Background(), market.KindUnit, types.TargetDate{}, RunOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, 1, h.Closed)

	failed := result.Report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "select-csv-format", failed[0].Step)

	require.Len(t, result.Outcomes, 1)
	assert.ErrorIs(t, result.Outcomes[0].Err, types.ErrElementMissing)
}

func TestRunUnknownItem(t *testing.T) {
	opened := false
	open := func(context.Context, session.Options) (session.Handle, error) {
		opened = true
		return nil, errors.New("should not open")
	}
	client := New(testConfig(t, "https://www.jepx.jp/"), testLogger, WithOpener(open))

	_, err := client.Run(context.Background(), "weather", types.TargetDate{}, RunOptions{})
	assert.ErrorIs(t, err, types.ErrUnknownItem)
	assert.False(t, opened)
}

func TestRunLaunchFailure(t *testing.T) {
	var gotOpts session.Options
	open := func(_ context.Context, opts session.Options) (session.Handle, error) {
		gotOpts = opts
		return nil, types.ErrSessionLaunch
	}
	client := New(testConfig(t, "https://www.jepx.jp/"), testLogger, WithOpener(open))

	_, err := client.Run(context.Background(), market.KindOutages, types.TargetDate{}, RunOptions{Visible: true})
	assert.ErrorIs(t, err, types.ErrSessionLaunch)
	assert.True(t, gotOpts.Visible)
	assert.True(t, gotOpts.AcceptDownloads)
}
