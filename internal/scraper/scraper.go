package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/amalyzedev/amazon-review-scraper/internal/browser"
)

var ErrInvalidURL = errors.New("invalid Amazon product URL")

// Session is the consumer-side view of a browser session. Collectors
// depend on this, not on the playwright-backed implementation, so they
// test without a browser. State lets callers verify the session was
// opened before committing to a run.
type Session interface {
	Navigate(ctx context.Context, url string) error
	CurrentDocument() (string, error)
	ApplyIdentity(userAgent string) error
	State() browser.State
	Close() error
}

// Pacer decides inter-request delays and identity rotation.
type Pacer interface {
	NextDelay() time.Duration
	NextIdentity() (string, error)
}
