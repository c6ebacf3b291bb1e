package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/IshaanNene/jepx/internal/types"
)

// RodPage implements Page on top of a rod page.
type RodPage struct {
	page              *rod.Page
	browser           *rod.Browser
	downloadDir       string
	elementTimeout    time.Duration
	navigationTimeout time.Duration
	downloadTimeout   time.Duration
	logger            *slog.Logger
}

// Navigate loads url and waits for the document to settle.
func (p *RodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.navigationTimeout)
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	if err := page.WaitStable(300 * time.Millisecond); err != nil {
		p.logger.Warn("page stability timeout, continuing", "url", url, "error", err)
	}
	return nil
}

// element looks up selector within the element timeout.
func (p *RodPage) element(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := p.page.Context(ctx).Timeout(p.elementTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrElementMissing, selector, err)
	}
	return el.CancelTimeout(), nil
}

// Click clicks an element matched by the CSS selector.
func (p *RodPage) Click(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Check ticks a checkbox through a DOM click so the page's change handlers fire
// even when the input itself is visually hidden behind a styled label.
func (p *RodPage) Check(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	res, err := el.Eval(`function() { if (!this.checked) { this.click(); } return this.checked; }`)
	if err != nil {
		return fmt.Errorf("check %s: %w", selector, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("check %s: checkbox did not become checked", selector)
	}
	return nil
}

// SelectValue selects an option from a <select> dropdown by its value attribute.
func (p *RodPage) SelectValue(ctx context.Context, selector, value string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	opt := fmt.Sprintf(`option[value="%s"]`, value)
	if err := el.Select([]string{opt}, true, rod.SelectorTypeCSSSector); err != nil {
		return fmt.Errorf("%w: %s %s: %v", types.ErrElementMissing, selector, opt, err)
	}
	return nil
}

// Text returns the trimmed visible text of an element.
func (p *RodPage) Text(ctx context.Context, selector string) (string, error) {
	el, err := p.element(ctx, selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("text %s: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

// SetValue assigns the value property of an element.
func (p *RodPage) SetValue(ctx context.Context, selector, value string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	if _, err := el.Eval(`function(v) { this.value = v; }`, value); err != nil {
		return fmt.Errorf("set value %s: %w", selector, err)
	}
	return nil
}

// CaptureDownload arms a download listener on the browsing context, runs
// trigger and reads the completed file back into memory.
func (p *RodPage) CaptureDownload(ctx context.Context, trigger func() error) (*types.Artifact, error) {
	if p.downloadDir == "" {
		return nil, errors.New("session was opened without download support")
	}

	ctx, cancel := context.WithTimeout(ctx, p.downloadTimeout)
	defer cancel()

	wait := p.browser.Context(ctx).WaitDownload(p.downloadDir)

	if err := trigger(); err != nil {
		return nil, fmt.Errorf("trigger download: %w", err)
	}

	info := wait()
	if ctx.Err() != nil || info == nil {
		return nil, fmt.Errorf("%w within %s", types.ErrDownloadTimeout, p.downloadTimeout)
	}

	path := filepath.Join(p.downloadDir, info.GUID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read download: %w", err)
	}
	_ = os.Remove(path)

	p.logger.Debug("download captured",
		"url", info.URL,
		"suggested", info.SuggestedFilename,
		"size", len(data),
	)
	return &types.Artifact{Name: info.SuggestedFilename, Data: data}, nil
}

// URL returns the current document URL, or "" if it cannot be read.
func (p *RodPage) URL() string {
	info, err := p.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// Cookies returns the current document's cookies in net/http form.
func (p *RodPage) Cookies() ([]*http.Cookie, error) {
	cookies, err := p.page.Cookies(nil)
	if err != nil {
		return nil, err
	}
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out, nil
}
