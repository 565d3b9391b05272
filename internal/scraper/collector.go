package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amalyzedev/amazon-review-scraper/internal/browser"
	"github.com/amalyzedev/amazon-review-scraper/internal/metrics"
	"github.com/amalyzedev/amazon-review-scraper/internal/models"
	"github.com/amalyzedev/amazon-review-scraper/internal/parser"
)

// ratingOrder is the fixed iteration order across star filters.
var ratingOrder = []int{5, 4, 3, 2, 1}

type CollectConfig struct {
	// Ratings selects the star filters to visit. Empty means one
	// unfiltered pass over the "all ratings" view.
	Ratings           []int
	MaxPagesPerRating int
	MaxRetriesPerPage int
}

func DefaultCollectConfig() CollectConfig {
	return CollectConfig{
		Ratings:           []int{5, 4, 3, 2, 1},
		MaxPagesPerRating: 10,
		MaxRetriesPerPage: 3,
	}
}

// ReviewCollector walks rating filters and pages, pacing every request,
// deduplicating records and degrading to partial data on failure. The
// returned result is always usable, even when every page failed.
type ReviewCollector struct {
	session Session
	pacer   Pacer
	parser  parser.Parser
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewReviewCollector(session Session, pacer Pacer, p parser.Parser, m *metrics.Metrics, logger *slog.Logger) *ReviewCollector {
	return &ReviewCollector{
		session: session,
		pacer:   pacer,
		parser:  p,
		metrics: m,
		logger:  logger.With("component", "review_collector"),
	}
}

// Collect gathers review pages for productURL. A non-nil result comes
// back in every case; the error return is reserved for preconditions
// (bad URL, session not open) and cancellation, with the partial data
// still attached.
func (c *ReviewCollector) Collect(ctx context.Context, productURL string, cfg CollectConfig) (*models.ScrapeResult, error) {
	result := &models.ScrapeResult{
		RunID:     uuid.New().String(),
		Reviews:   []models.ReviewRecord{},
		StartedAt: time.Now(),
	}

	asin, err := ExtractASIN(productURL)
	if err != nil {
		result.FinishedAt = time.Now()
		return result, err
	}

	// An unopened session would fail every page the same way; reject
	// the run up front instead of accumulating soft errors.
	if state := c.session.State(); state != browser.StateReady {
		result.FinishedAt = time.Now()
		if state == browser.StateClosed {
			return result, browser.ErrSessionClosed
		}
		return result, browser.ErrSessionNotReady
	}

	if cfg.MaxPagesPerRating < 1 {
		cfg.MaxPagesPerRating = 1
	}
	if cfg.MaxRetriesPerPage < 0 {
		cfg.MaxRetriesPerPage = 0
	}

	ratings := selectRatings(cfg.Ratings)
	seen := make(map[models.ReviewKey]struct{})

	c.logger.Info("starting review collection",
		"run_id", result.RunID,
		"asin", asin,
		"ratings", ratings,
		"max_pages", cfg.MaxPagesPerRating)

	for _, rating := range ratings {
		if err := c.collectRating(ctx, result, seen, asin, rating, cfg); err != nil {
			// Cancellation is the only error that crosses rating
			// boundaries. Tear the session down and hand back what we
			// have.
			c.session.Close()
			result.FinishedAt = time.Now()
			return result, err
		}
	}

	result.FinishedAt = time.Now()
	c.logger.Info("review collection finished",
		"run_id", result.RunID,
		"reviews", len(result.Reviews),
		"errors", len(result.Errors))

	return result, nil
}

// collectRating pages through one star filter. Returns an error only on
// cancellation; everything else degrades to soft errors on the result.
func (c *ReviewCollector) collectRating(ctx context.Context, result *models.ScrapeResult, seen map[models.ReviewKey]struct{}, asin string, rating int, cfg CollectConfig) error {
	staleStreak := 0

	for page := 1; page <= cfg.MaxPagesPerRating; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		parsed, err := c.fetchPage(ctx, asin, rating, page, cfg.MaxRetriesPerPage)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.recordError(result, "fetch", rating, page, err)
			continue
		}

		for _, skip := range parsed.Skipped {
			c.recordError(result, "parse", rating, page, skip)
		}

		novel := 0
		for _, record := range parsed.Records {
			if record.Rating == 0 && rating > 0 {
				record.Rating = rating
			}
			key := record.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result.Reviews = append(result.Reviews, record)
			novel++
		}
		c.metrics.AddReviews(novel)

		c.logger.Debug("page collected",
			"rating", rating, "page", page,
			"records", len(parsed.Records), "novel", novel,
			"has_next", parsed.HasNextPage)

		if novel == 0 {
			staleStreak++
			// Two consecutive pages without a novel record means the
			// pagination has looped or stalled. Soft stop.
			if staleStreak >= 2 {
				c.logger.Info("pagination stalled, stopping filter", "rating", rating, "page", page)
				return nil
			}
		} else {
			staleStreak = 0
		}

		if !parsed.HasNextPage {
			return nil
		}
	}

	return nil
}

// fetchPage performs the paced fetch-and-parse for one (rating, page),
// retrying transient failures with the same pacing step as a normal
// request so retries never tighten the request pattern.
func (c *ReviewCollector) fetchPage(ctx context.Context, asin string, rating, page, maxRetries int) (*parser.ReviewPage, error) {
	pageURL := ReviewPageURL(asin, rating, page)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.IncRetries()
		}

		if err := c.pause(ctx); err != nil {
			return nil, err
		}

		identity, err := c.pacer.NextIdentity()
		if err != nil {
			// Configuration error, not retryable.
			return nil, err
		}
		if err := c.session.ApplyIdentity(identity); err != nil {
			lastErr = err
			continue
		}

		start := time.Now()
		err = c.session.Navigate(ctx, pageURL)
		c.metrics.ObserveNavigation(time.Since(start))
		c.metrics.IncPages()
		if err != nil {
			if !isRetryable(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		html, err := c.session.CurrentDocument()
		if err != nil {
			lastErr = err
			continue
		}

		parsed, err := c.parser.ParseReviewPage(html)
		if err != nil {
			// A block page can be transient; retry within budget.
			if !isRetryable(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		return parsed, nil
	}

	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

// pause suspends for the policy's next delay, honoring cancellation.
func (c *ReviewCollector) pause(ctx context.Context) error {
	delay := c.pacer.NextDelay()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *ReviewCollector) recordError(result *models.ScrapeResult, stage string, rating, page int, err error) {
	c.metrics.IncSoftError(stage)
	c.logger.Warn("soft error recorded", "stage", stage, "rating", rating, "page", page, "error", err)
	result.Errors = append(result.Errors, models.ScrapeError{
		Stage:   stage,
		Rating:  rating,
		Page:    page,
		Message: err.Error(),
		Time:    time.Now(),
	})
}

// selectRatings keeps the fixed 5..1 order, dropping out-of-range
// values. Empty input means a single unfiltered pass (rating 0).
func selectRatings(requested []int) []int {
	if len(requested) == 0 {
		return []int{0}
	}

	want := make(map[int]bool, len(requested))
	for _, r := range requested {
		if r >= 1 && r <= 5 {
			want[r] = true
		}
	}

	var ratings []int
	for _, r := range ratingOrder {
		if want[r] {
			ratings = append(ratings, r)
		}
	}
	if len(ratings) == 0 {
		return []int{0}
	}
	return ratings
}

func isRetryable(err error) bool {
	return errors.Is(err, browser.ErrNavigationTimeout) ||
		errors.Is(err, browser.ErrNavigation) ||
		errors.Is(err, parser.ErrUnrecognizedPage)
}
