package session

import (
	"context"
	"net/http"

	"github.com/IshaanNene/jepx/internal/types"
)

// Page is the set of navigation primitives a recipe step may use.
// The rod-backed implementation is *RodPage; tests substitute fakes.
type Page interface {
	// Navigate loads url and waits for the page to become stable.
	Navigate(ctx context.Context, url string) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Check ticks the checkbox matching selector if it is not already ticked.
	Check(ctx context.Context, selector string) error

	// SelectValue selects the <option> whose value attribute equals value.
	SelectValue(ctx context.Context, selector, value string) error

	// Text returns the visible text of the element matching selector.
	Text(ctx context.Context, selector string) (string, error)

	// SetValue assigns the value property of the element matching selector.
	SetValue(ctx context.Context, selector, value string) error

	// CaptureDownload arms a download listener, runs trigger and waits for the
	// resulting download to complete.
	CaptureDownload(ctx context.Context, trigger func() error) (*types.Artifact, error)

	// URL is the address of the currently loaded document.
	URL() string

	// Cookies returns the cookies visible to the current document.
	Cookies() ([]*http.Cookie, error)
}
