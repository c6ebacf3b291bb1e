package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/IshaanNene/jepx/internal/observability"
	"github.com/IshaanNene/jepx/internal/session"
	"github.com/IshaanNene/jepx/internal/storage"
	"github.com/IshaanNene/jepx/internal/types"
)

// Env carries everything a strategy needs for one retrieval.
type Env struct {
	Page      session.Page
	Client    *Client
	Sink      *storage.Sink
	Overwrite bool
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

func (e *Env) referer() string {
	if e.Page == nil {
		return ""
	}
	return e.Page.URL()
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Outcome is the result of retrieving one artifact. Err is nil when a file was
// written or the write was skipped.
type Outcome struct {
	Dataset string
	Path    string
	Size    int
	Skipped bool
	Err     error
}

// Strategy retrieves the artifacts of one data item once its page is ready.
// Failures are reported per artifact and never returned as a single error.
type Strategy interface {
	Name() string
	Retrieve(ctx context.Context, env *Env, date types.TargetDate) []Outcome
}

// DownloadCapture clicks an explicit CSV download control and stores the
// browser download under a timestamped name.
type DownloadCapture struct {
	Trigger string
	Prefix  string
}

func (d DownloadCapture) Name() string { return "download-capture" }

func (d DownloadCapture) Retrieve(ctx context.Context, env *Env, date types.TargetDate) []Outcome {
	out := Outcome{Dataset: d.Prefix}
	log := env.logger().With("strategy", d.Name(), "dataset", d.Prefix)

	if env.Page == nil {
		out.Err = types.ErrSessionClosed
		return []Outcome{out}
	}

	artifact, err := env.Page.CaptureDownload(ctx, func() error {
		return env.Page.Click(ctx, d.Trigger)
	})
	if err == nil && artifact.Size() == 0 {
		err = errors.New("download produced an empty file")
	}
	if err != nil {
		out.Err = fmt.Errorf("capture download via %s: %w", d.Trigger, err)
		log.Warn("download failed, no file written", "trigger", d.Trigger, "error", err)
		return []Outcome{out}
	}
	if env.Metrics != nil {
		env.Metrics.BytesDownloaded.Add(int64(artifact.Size()))
	}

	out.Path = env.Sink.Path(storage.NamingTimestamp, d.Prefix, date)
	if err := env.Sink.Write(out.Path, artifact.Data); err != nil {
		out.Err = err
		log.Warn("write failed", "path", out.Path, "error", err)
		return []Outcome{out}
	}
	out.Size = artifact.Size()
	if env.Metrics != nil {
		env.Metrics.FilesWritten.Add(1)
	}
	return []Outcome{out}
}

// DirectFetch reads dataset files straight from the file-read endpoint. Each
// dataset directory yields one file named {dir}_{identifier}.csv both on the
// server and locally.
type DirectFetch struct {
	Datasets []string
	Naming   storage.Naming

	// TokenPage, if set, is fetched once for a CSRF token sent with every request.
	TokenPage string
}

func (d DirectFetch) Name() string { return "direct-fetch" }

func (d DirectFetch) Retrieve(ctx context.Context, env *Env, date types.TargetDate) []Outcome {
	outcomes := make([]Outcome, 0, len(d.Datasets))
	log := env.logger().With("strategy", d.Name())

	var (
		token    string
		tokenErr error
		tokenSet bool
	)

	for _, dir := range d.Datasets {
		out := Outcome{Dataset: dir, Path: env.Sink.Path(d.Naming, dir, date)}

		if !env.Overwrite && env.Sink.Exists(out.Path) {
			out.Skipped = true
			if env.Metrics != nil {
				env.Metrics.FilesSkipped.Add(1)
			}
			log.Info("file exists, skipping download", "dataset", dir, "path", out.Path)
			outcomes = append(outcomes, out)
			continue
		}

		if d.TokenPage != "" && !tokenSet {
			token, tokenErr = env.Client.FetchToken(ctx, d.TokenPage)
			tokenSet = true
			if tokenErr != nil {
				log.Warn("csrf token unavailable", "page", d.TokenPage, "error", tokenErr)
			}
		}
		if tokenErr != nil {
			out.Err = tokenErr
			outcomes = append(outcomes, out)
			continue
		}

		data, err := env.Client.FetchFile(ctx, dir, filepath.Base(out.Path), token, env.referer())
		if err != nil {
			out.Err = err
			if env.Metrics != nil && (errors.Is(err, types.ErrBodyTooSmall) || errors.Is(err, types.ErrBodyTooLarge) || errors.Is(err, types.ErrBadStatus)) {
				env.Metrics.FilesRejected.Add(1)
			}
			log.Warn("fetch failed, no file written", "dataset", dir, "error", err)
			outcomes = append(outcomes, out)
			continue
		}

		if err := env.Sink.Write(out.Path, data); err != nil {
			out.Err = err
			log.Warn("write failed", "path", out.Path, "error", err)
			outcomes = append(outcomes, out)
			continue
		}
		out.Size = len(data)
		if env.Metrics != nil {
			env.Metrics.FilesWritten.Add(1)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}
