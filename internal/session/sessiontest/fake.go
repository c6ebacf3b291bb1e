// Package sessiontest provides an in-memory session.Page for tests.
package sessiontest

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/IshaanNene/jepx/internal/session"
	"github.com/IshaanNene/jepx/internal/types"
)

// FakePage records every interaction and answers from static fixtures.
// Selectors not registered through the fixture maps behave as missing elements.
type FakePage struct {
	mu sync.Mutex

	CurrentURL string
	Present    map[string]bool
	Texts      map[string]string
	Options    map[string][]string

	Download    *types.Artifact
	DownloadErr error
	CookieList  []*http.Cookie

	Calls    []string
	Selected map[string]string
	Values   map[string]string
	Checked  map[string]bool
}

var _ session.Page = (*FakePage)(nil)

// NewFakePage returns a page on which the given selectors exist.
func NewFakePage(present ...string) *FakePage {
	p := &FakePage{
		Present:  make(map[string]bool),
		Texts:    make(map[string]string),
		Options:  make(map[string][]string),
		Selected: make(map[string]string),
		Values:   make(map[string]string),
		Checked:  make(map[string]bool),
	}
	for _, sel := range present {
		p.Present[sel] = true
	}
	return p
}

func (p *FakePage) record(format string, args ...any) {
	p.Calls = append(p.Calls, fmt.Sprintf(format, args...))
}

func (p *FakePage) missing(selector string) error {
	return fmt.Errorf("%w: %s", types.ErrElementMissing, selector)
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("goto %s", url)
	p.CurrentURL = url
	return ctx.Err()
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("click %s", selector)
	if !p.Present[selector] {
		return p.missing(selector)
	}
	return nil
}

func (p *FakePage) Check(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("check %s", selector)
	if !p.Present[selector] {
		return p.missing(selector)
	}
	p.Checked[selector] = true
	return nil
}

func (p *FakePage) SelectValue(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("select %s=%s", selector, value)
	opts, ok := p.Options[selector]
	if !ok || !slices.Contains(opts, value) {
		return p.missing(fmt.Sprintf("%s option[value=%q]", selector, value))
	}
	p.Selected[selector] = value
	return nil
}

func (p *FakePage) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.Texts[selector]
	if !ok {
		return "", p.missing(selector)
	}
	return text, nil
}

func (p *FakePage) SetValue(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("set %s=%s", selector, value)
	if !p.Present[selector] {
		return p.missing(selector)
	}
	p.Values[selector] = value
	return nil
}

func (p *FakePage) CaptureDownload(ctx context.Context, trigger func() error) (*types.Artifact, error) {
	if err := trigger(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DownloadErr != nil {
		return nil, p.DownloadErr
	}
	if p.Download == nil {
		return nil, types.ErrDownloadTimeout
	}
	return p.Download, nil
}

func (p *FakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL
}

func (p *FakePage) Cookies() ([]*http.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CookieList, nil
}

// CallLog returns a copy of the recorded interactions.
func (p *FakePage) CallLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.Calls)
}

// Handle adapts a FakePage to session.Handle and counts Close calls.
type Handle struct {
	FakePage *FakePage
	Closed   int
}

func (h *Handle) Page() session.Page { return h.FakePage }
func (h *Handle) Close() error       { h.Closed++; return nil }

// Opener returns a session.Opener that always yields h.
func Opener(h *Handle) session.Opener {
	return func(ctx context.Context, opts session.Options) (session.Handle, error) {
		return h, nil
	}
}
