package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/IshaanNene/jepx/internal/session"
	"github.com/IshaanNene/jepx/internal/types"
)

// Condition reports whether the page has reached the state a step waits for.
type Condition func(ctx context.Context, p session.Page) bool

// Waiter decides how a step waits for the page to re-render.
type Waiter interface {
	Settle(ctx context.Context, p session.Page, ready Condition) error
}

// FixedDelay sleeps for a fixed duration and ignores the condition.
type FixedDelay time.Duration

func (d FixedDelay) Settle(ctx context.Context, _ session.Page, _ Condition) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(d))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poll evaluates the condition every Interval until it holds or Timeout passes.
// A nil condition is treated as already satisfied.
type Poll struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (w Poll) Settle(ctx context.Context, p session.Page, ready Condition) error {
	if ready == nil {
		return nil
	}
	interval := w.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if ready(ctx, p) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w after %s", types.ErrSettleTimeout, w.Timeout)
		case <-ticker.C:
		}
	}
}

// Instant never waits. Tests use it in place of real delays.
type Instant struct{}

func (Instant) Settle(context.Context, session.Page, Condition) error { return nil }

// ElementPresent holds once selector can be located on the page.
func ElementPresent(selector string) Condition {
	return func(ctx context.Context, p session.Page) bool {
		_, err := p.Text(ctx, selector)
		return err == nil
	}
}
