package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/jepx/internal/config"
	"github.com/IshaanNene/jepx/internal/session/sessiontest"
	"github.com/IshaanNene/jepx/internal/storage"
	"github.com/IshaanNene/jepx/internal/types"
)

var virtualPriceDate = types.TargetDate{Year: 2025, Month: time.April, Day: 24}

func newEnv(t *testing.T, c *Client, overwrite bool) (*Env, string) {
	t.Helper()
	base := filepath.Join(t.TempDir(), "csv")
	page := sessiontest.NewFakePage()
	page.CurrentURL = "https://www.jepx.jp/electricpower/market-data/spot/"
	return &Env{
		Page:      page,
		Client:    c,
		Sink:      storage.NewSink(base, testLogger),
		Overwrite: overwrite,
		Logger:    testLogger,
	}, base
}

func virtualPriceFetch() DirectFetch {
	return DirectFetch{
		Datasets: []string{"virtualprice", "virtualprice_diff"},
		Naming:   storage.NamingFiscalYear,
	}
}

func TestDirectFetchVirtualPriceWritesBothFiles(t *testing.T) {
	var (
		mu       sync.Mutex
		referers []string
	)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		referers = append(referers, r.Header.Get("Referer"))
		mu.Unlock()
		w.Write([]byte(r.URL.Query().Get("file") + "\n"))
		w.Write(csvBody(150))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	env, base := newEnv(t, c, true)

	outcomes := virtualPriceFetch().Retrieve(context.Background(), env, virtualPriceDate)
	require.Len(t, outcomes, 2)

	want := []string{
		filepath.Join(base, "virtualprice_2025.csv"),
		filepath.Join(base, "virtualprice_diff_2025.csv"),
	}
	for i, out := range outcomes {
		require.NoError(t, out.Err)
		assert.Equal(t, want[i], out.Path)
		data, err := os.ReadFile(want[i])
		require.NoError(t, err)
		assert.Equal(t, filepath.Base(want[i])+"\n", string(data[:len(filepath.Base(want[i]))+1]))
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, referers, 2)
	for _, ref := range referers {
		assert.Equal(t, "https://www.jepx.jp/electricpower/market-data/spot/", ref)
	}
}

func TestDirectFetchOneFailureWritesOnlyTheOther(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dir") == "virtualprice_diff" {
			w.Write([]byte("<html>error</html>"))
			return
		}
		w.Write(csvBody(150))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	env, base := newEnv(t, c, true)

	outcomes := virtualPriceFetch().Retrieve(context.Background(), env, virtualPriceDate)
	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, types.ErrBodyTooSmall)

	assert.FileExists(t, filepath.Join(base, "virtualprice_2025.csv"))
	assert.NoFileExists(t, filepath.Join(base, "virtualprice_diff_2025.csv"))
}

func TestDirectFetchOversizedBodyWritesNothing(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dir") == "virtualprice_diff" {
			w.Write(csvBody(500))
			return
		}
		w.Write(csvBody(150))
	}))
	defer srv.Close()

	c, m := newTestClientWith(t, srv, func(f *config.FetchConfig) { f.MaxBodySize = 200 })
	env, base := newEnv(t, c, true)
	env.Metrics = m

	outcomes := virtualPriceFetch().Retrieve(context.Background(), env, virtualPriceDate)
	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, types.ErrBodyTooLarge)
	assert.Zero(t, outcomes[1].Size)

	assert.FileExists(t, filepath.Join(base, "virtualprice_2025.csv"))
	assert.NoFileExists(t, filepath.Join(base, "virtualprice_diff_2025.csv"))
	assert.Equal(t, int64(1), m.FilesWritten.Load())
	assert.Equal(t, int64(1), m.FilesRejected.Load())
}

func TestDirectFetchNoOverwriteSkipsNetwork(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write(csvBody(500))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	env, base := newEnv(t, c, false)

	sentinel := []byte("existing data")
	old := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, name := range []string{"virtualprice_2025.csv", "virtualprice_diff_2025.csv"} {
		path := filepath.Join(base, name)
		require.NoError(t, os.MkdirAll(base, 0o755))
		require.NoError(t, os.WriteFile(path, sentinel, 0o644))
		require.NoError(t, os.Chtimes(path, old, old))
	}

	outcomes := virtualPriceFetch().Retrieve(context.Background(), env, virtualPriceDate)

	assert.Zero(t, requests.Load())
	for _, out := range outcomes {
		assert.True(t, out.Skipped)
		assert.NoError(t, out.Err)

		data, err := os.ReadFile(out.Path)
		require.NoError(t, err)
		assert.Equal(t, sentinel, data)

		info, err := os.Stat(out.Path)
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(old))
	}
}

func TestDirectFetchTokenFailureWritesNothing(t *testing.T) {
	var fileReads atomic.Int64
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/js/csv_read.php" {
			fileReads.Add(1)
			w.Write(csvBody(500))
			return
		}
		w.Write([]byte("<html><body>no form here</body></html>"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	env, base := newEnv(t, c, true)

	f := DirectFetch{Datasets: []string{"spot_summary"}, Naming: storage.NamingFiscalYear, TokenPage: "electricpower/market-data/spot/"}
	outcomes := f.Retrieve(context.Background(), env, virtualPriceDate)

	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, types.ErrNoCSRFToken)
	assert.Zero(t, fileReads.Load())
	assert.NoFileExists(t, filepath.Join(base, "spot_summary_2025.csv"))
}

func TestDirectFetchSendsToken(t *testing.T) {
	var (
		mu     sync.Mutex
		tokens []string
	)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/js/csv_read.php" {
			mu.Lock()
			tokens = append(tokens, r.URL.Query().Get("_csrf"))
			mu.Unlock()
			w.Write(csvBody(500))
			return
		}
		w.Write([]byte(`<input type="hidden" name="_csrf" value="t0k">`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	env, base := newEnv(t, c, true)

	f := DirectFetch{Datasets: []string{"spot_bid_curves"}, Naming: storage.NamingDate, TokenPage: "electricpower/market-data/spot/bid-curves/"}
	outcomes := f.Retrieve(context.Background(), env, virtualPriceDate)

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, filepath.Join(base, "2025", "spot_bid_curves_20250424.csv"), outcomes[0].Path)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"t0k"}, tokens)
}

func TestDownloadCapture(t *testing.T) {
	env, base := newEnv(t, nil, true)
	env.Sink.WithClock(func() time.Time { return time.Date(2025, 4, 24, 9, 5, 7, 0, time.Local) })

	page := env.Page.(*sessiontest.FakePage)
	page.Present["input[type='submit'][value='CSVダウンロード']"] = true
	page.Download = &types.Artifact{Name: "unit.csv", Data: csvBody(300)}

	d := DownloadCapture{Trigger: "input[type='submit'][value='CSVダウンロード']", Prefix: "unit"}
	outcomes := d.Retrieve(context.Background(), env, types.TargetDate{})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, filepath.Join(base, "unit_20250424_090507.csv"), outcomes[0].Path)
	assert.Equal(t, 300, outcomes[0].Size)

	if diff := cmp.Diff([]string{"click input[type='submit'][value='CSVダウンロード']"}, page.CallLog()); diff != "" {
		t.Errorf("call log mismatch (-want +got):\n%s", diff)
	}
}

func TestDownloadCaptureFailures(t *testing.T) {
	tests := []struct {
		name    string
		present bool
		art     *types.Artifact
		artErr  error
		wantErr error
	}{
		{name: "trigger missing", present: false, wantErr: types.ErrElementMissing},
		{name: "timeout", present: true, wantErr: types.ErrDownloadTimeout},
		{name: "empty file", present: true, art: &types.Artifact{Name: "x.csv"}},
		{name: "driver error", present: true, artErr: errors.New("download canceled")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, base := newEnv(t, nil, true)
			page := env.Page.(*sessiontest.FakePage)
			page.Present["#dl"] = tt.present
			page.Download = tt.art
			page.DownloadErr = tt.artErr

			outcomes := DownloadCapture{Trigger: "#dl", Prefix: "outages"}.Retrieve(context.Background(), env, types.TargetDate{})
			require.Len(t, outcomes, 1)
			require.Error(t, outcomes[0].Err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, outcomes[0].Err, tt.wantErr)
			}
			assert.NoDirExists(t, base)
		})
	}
}
