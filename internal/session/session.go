// Package session owns the lifecycle of the headless browser used to drive the
// market-data website: one browser process, one browsing context, one page.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/jepx/internal/config"
	"github.com/IshaanNene/jepx/internal/types"
)

// Options are decided at each call site rather than in config.
type Options struct {
	// Visible launches a headed browser with slow motion for debugging.
	Visible bool

	// AcceptDownloads prepares a download directory for download capture.
	AcceptDownloads bool
}

// Handle is an open session as seen by navigation and retrieval code.
type Handle interface {
	Page() Page
	Close() error
}

// Opener starts a session. RodOpener is the production implementation.
type Opener func(ctx context.Context, opts Options) (Handle, error)

// Session wraps a rod browser process, an incognito context and a single page.
type Session struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	context     *rod.Browser
	page        *RodPage
	downloadDir string
	logger      *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// RodOpener returns an Opener that launches Chromium through rod.
func RodOpener(cfg *config.BrowserConfig, logger *slog.Logger) Opener {
	return func(ctx context.Context, opts Options) (Handle, error) {
		s, err := Open(ctx, cfg, opts, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Open launches the browser, creates a browsing context and one stealth page.
// On failure everything created so far is torn down before returning.
func Open(ctx context.Context, cfg *config.BrowserConfig, opts Options, logger *slog.Logger) (*Session, error) {
	s := &Session{logger: logger.With("component", "session")}

	if err := s.open(ctx, cfg, opts); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %w", types.ErrSessionLaunch, err)
	}

	s.logger.Info("browser session ready",
		"visible", opts.Visible,
		"downloads", opts.AcceptDownloads,
	)
	return s, nil
}

func (s *Session) open(ctx context.Context, cfg *config.BrowserConfig, opts Options) error {
	l := launcher.New().
		Context(ctx).
		Headless(!opts.Visible).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")

	if opts.Visible {
		l = l.Set("start-maximized")
	} else {
		l = l.Set("disable-gpu")
	}
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.WindowSize != "" {
		l = l.Set("window-size", cfg.WindowSize)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	s.launcher = l

	browser := rod.New().ControlURL(controlURL)
	if opts.Visible && cfg.SlowMotion > 0 {
		browser = browser.SlowMotion(cfg.SlowMotion)
	}
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	s.browser = browser

	incognito, err := browser.Incognito()
	if err != nil {
		return fmt.Errorf("create browsing context: %w", err)
	}
	s.context = incognito

	page, err := stealth.Page(incognito)
	if err != nil {
		return fmt.Errorf("stealth page: %w", err)
	}

	if opts.AcceptDownloads {
		dir, err := os.MkdirTemp("", "jepx-downloads-*")
		if err != nil {
			_ = page.Close()
			return fmt.Errorf("create download dir: %w", err)
		}
		s.downloadDir = dir
	}

	s.page = &RodPage{
		page:              page,
		browser:           incognito,
		downloadDir:       s.downloadDir,
		elementTimeout:    cfg.ElementTimeout,
		navigationTimeout: cfg.NavigationTimeout,
		downloadTimeout:   cfg.DownloadTimeout,
		logger:            s.logger,
	}
	return nil
}

// Page returns the session's single page.
func (s *Session) Page() Page {
	if s == nil || s.page == nil {
		return nil
	}
	return s.page
}

// Close tears down page, context, browser and the browser process. It tolerates
// a partially opened session and is safe to call more than once.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		var errs []error
		if s.page != nil {
			errs = append(errs, s.page.page.Close())
		}
		if s.context != nil {
			errs = append(errs, s.context.Close())
		}
		if s.browser != nil {
			errs = append(errs, s.browser.Close())
		}
		// Kill and Cleanup are only valid for a launcher that actually started a process.
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		if s.downloadDir != "" {
			errs = append(errs, os.RemoveAll(s.downloadDir))
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.logger.Warn("session teardown incomplete", "error", s.closeErr)
		} else {
			s.logger.Debug("browser session closed")
		}
	})
	return s.closeErr
}

// With opens a session, runs fn and closes the session on every exit path,
// including panics inside fn. Launch failures are returned unwrapped from Open.
func With(ctx context.Context, open Opener, opts Options, fn func(Handle) error) (err error) {
	h, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close session: %w", cerr))
		}
	}()
	return fn(h)
}
