// Package jepx runs one data-item retrieval end to end: open a browser session,
// navigate to the item's view, retrieve its artifacts and close the session.
package jepx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/IshaanNene/jepx/internal/automation"
	"github.com/IshaanNene/jepx/internal/config"
	"github.com/IshaanNene/jepx/internal/fetcher"
	"github.com/IshaanNene/jepx/internal/market"
	"github.com/IshaanNene/jepx/internal/observability"
	"github.com/IshaanNene/jepx/internal/session"
	"github.com/IshaanNene/jepx/internal/storage"
	"github.com/IshaanNene/jepx/internal/types"
)

// Client wires session, navigation, retrieval and storage together.
type Client struct {
	cfg     *config.Config
	open    session.Opener
	runner  *automation.Runner
	waiter  automation.Waiter
	sink    *storage.Sink
	metrics *observability.Metrics
	tracing trace.TracerProvider
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithOpener replaces the browser launcher.
func WithOpener(open session.Opener) Option {
	return func(c *Client) { c.open = open }
}

// WithWaiter replaces the settle strategy used by every recipe.
func WithWaiter(w automation.Waiter) Option {
	return func(c *Client) { c.waiter = w }
}

// WithSink replaces the file sink.
func WithSink(s *storage.Sink) Option {
	return func(c *Client) { c.sink = s }
}

// WithMetrics records run counters into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracerProvider records the run and its requests as spans of tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracing = tp }
}

// New creates a Client from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		runner: automation.NewRunner(logger),
		waiter: automation.FixedDelay(cfg.Browser.SettleDelay),
		logger: logger.With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.open == nil {
		c.open = session.RodOpener(&cfg.Browser, logger)
	}
	if c.sink == nil {
		c.sink = storage.NewSink(cfg.Storage.OutputPath, logger)
	}
	if c.metrics == nil {
		c.metrics = observability.NewMetrics(logger)
	}
	if c.tracing == nil {
		c.tracing = otel.GetTracerProvider()
	}
	return c
}

// Metrics returns the client's run counters.
func (c *Client) Metrics() *observability.Metrics { return c.metrics }

// RunOptions are decided by the caller for each run.
type RunOptions struct {
	Visible   bool
	Overwrite bool
	Area      string
}

// Result is everything a run produced. Navigation failures live in Report,
// retrieval failures in Outcomes.
type Result struct {
	Kind     market.Kind
	Date     types.TargetDate
	Report   *automation.Report
	Outcomes []fetcher.Outcome
	Duration time.Duration
}

// Written returns the outcomes that produced a file.
func (r *Result) Written() []fetcher.Outcome {
	var out []fetcher.Outcome
	for _, o := range r.Outcomes {
		if o.Err == nil && !o.Skipped {
			out = append(out, o)
		}
	}
	return out
}

// Err joins every retrieval failure, or returns nil.
func (r *Result) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Dataset, o.Err))
		}
	}
	return errors.Join(errs...)
}

// Run retrieves one item for date. Only failures that prevent a session from
// existing are returned as errors; everything else is reported in Result.
func (c *Client) Run(ctx context.Context, kind market.Kind, date types.TargetDate, opts RunOptions) (*Result, error) {
	item, err := market.Lookup(kind)
	if err != nil {
		return nil, err
	}
	strategy := item.Strategy(market.Params{Area: opts.Area})

	ctx, span := c.tracing.Tracer("jepx").Start(ctx, "jepx:Run", trace.WithAttributes(
		attribute.String("jepx.item", string(kind)),
		attribute.String("jepx.date", date.String()),
		attribute.String("jepx.strategy", strategy.Name()),
	))
	defer span.End()

	httpClient, err := fetcher.NewClient(&c.cfg.Site, &c.cfg.Fetch, c.logger,
		fetcher.WithMetrics(c.metrics),
		fetcher.WithTracerProvider(c.tracing),
	)
	if err != nil {
		return nil, err
	}

	_, capture := strategy.(fetcher.DownloadCapture)
	sessOpts := session.Options{Visible: opts.Visible, AcceptDownloads: capture}

	log := c.logger.With("item", kind, "date", date.String(), "strategy", strategy.Name())
	log.Info("retrieval started")

	start := time.Now()
	result := &Result{Kind: kind, Date: date}

	err = session.With(ctx, c.open, sessOpts, func(h session.Handle) error {
		page := h.Page()

		result.Report = c.runner.Run(ctx, page, item.Recipe(c.cfg.Site.BaseURL, date, c.waiter))
		c.metrics.StepsTotal.Add(int64(len(result.Report.Results)))
		c.metrics.StepsFailed.Add(int64(len(result.Report.Failed())))

		cookies, err := page.Cookies()
		if err != nil {
			log.Warn("could not read session cookies", "error", err)
		} else {
			httpClient.UseCookies(cookies)
		}

		env := &fetcher.Env{
			Page:      page,
			Client:    httpClient,
			Sink:      c.sink,
			Overwrite: opts.Overwrite,
			Metrics:   c.metrics,
			Logger:    log,
		}
		result.Outcomes = strategy.Retrieve(ctx, env, date)
		return nil
	})
	result.Duration = time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session failed")
		return result, err
	}
	span.SetAttributes(attribute.Int("jepx.files_written", len(result.Written())))

	log.Info("retrieval finished",
		"written", len(result.Written()),
		"artifacts", len(result.Outcomes),
		"failed_steps", len(result.Report.Failed()),
		"duration", result.Duration,
	)
	return result, nil
}
