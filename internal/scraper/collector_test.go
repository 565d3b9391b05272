package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amalyzedev/amazon-review-scraper/internal/browser"
	"github.com/amalyzedev/amazon-review-scraper/internal/models"
	"github.com/amalyzedev/amazon-review-scraper/internal/pacing"
	"github.com/amalyzedev/amazon-review-scraper/internal/parser"
)

const testASIN = "B0TESTASIN"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProductURL() string {
	return "https://www.amazon.in/dp/" + testASIN
}

// fakeSession satisfies Session. CurrentDocument hands back the last
// navigated URL so the fake parser can key pages off it.
type fakeSession struct {
	mu            sync.Mutex
	state         browser.State
	events        []string
	navigated     []string
	lastURL       string
	closed        bool
	navErr        map[string]error
	afterNavigate func(url string, total int)
}

func newFakeSession() *fakeSession {
	return &fakeSession{state: browser.StateReady, navErr: map[string]error{}}
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.events = append(s.events, "navigate:"+url)
	s.navigated = append(s.navigated, url)
	s.lastURL = url
	hook := s.afterNavigate
	total := len(s.navigated)
	err := s.navErr[url]
	s.mu.Unlock()

	if hook != nil {
		hook(url, total)
	}
	return err
}

func (s *fakeSession) CurrentDocument() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastURL, nil
}

func (s *fakeSession) ApplyIdentity(userAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "identity:"+userAgent)
	return nil
}

func (s *fakeSession) State() browser.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.state = browser.StateClosed
	return nil
}

func (s *fakeSession) navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

// fakePacer returns zero delays and a fixed identity rotation.
type fakePacer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakePacer) NextDelay() time.Duration { return 0 }

func (p *fakePacer) NextIdentity() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.calls++
	return fmt.Sprintf("ua-%d", p.calls%2), nil
}

// fakeParser maps a navigated URL (standing in for its HTML) to a
// canned review page or product.
type fakeParser struct {
	pages    map[string]*parser.ReviewPage
	pageErr  map[string]error
	products map[string]*models.ProductInfo
	prodErr  map[string]error
}

func newFakeParser() *fakeParser {
	return &fakeParser{
		pages:    map[string]*parser.ReviewPage{},
		pageErr:  map[string]error{},
		products: map[string]*models.ProductInfo{},
		prodErr:  map[string]error{},
	}
}

func (p *fakeParser) ParseProduct(html string) (*models.ProductInfo, error) {
	if err := p.prodErr[html]; err != nil {
		return nil, err
	}
	if info, ok := p.products[html]; ok {
		return info, nil
	}
	return nil, parser.ErrUnrecognizedPage
}

func (p *fakeParser) ParseReviewPage(html string) (*parser.ReviewPage, error) {
	if err := p.pageErr[html]; err != nil {
		return nil, err
	}
	if page, ok := p.pages[html]; ok {
		return page, nil
	}
	return &parser.ReviewPage{}, nil
}

func (p *fakeParser) addPage(rating, page, count int, hasNext bool) {
	p.pages[ReviewPageURL(testASIN, rating, page)] = &parser.ReviewPage{
		Records:     makeReviews(rating, page, count),
		HasNextPage: hasNext,
	}
}

func makeReviews(rating, page, count int) []models.ReviewRecord {
	records := make([]models.ReviewRecord, 0, count)
	for i := 0; i < count; i++ {
		date := time.Date(2024, time.May, 1+i, 0, 0, 0, 0, time.UTC)
		records = append(records, models.ReviewRecord{
			ReviewerID:  fmt.Sprintf("reviewer-%d-%d-%d", rating, page, i),
			Title:       "Solid",
			Body:        fmt.Sprintf("body %d/%d/%d", rating, page, i),
			Rating:      rating,
			Verified:    i%2 == 0,
			Date:        &date,
			CollectedAt: time.Now(),
		})
	}
	return records
}

func newTestCollector(session *fakeSession, pacer *fakePacer, p *fakeParser) *ReviewCollector {
	return NewReviewCollector(session, pacer, p, nil, testLogger())
}

func TestCollectFullPass(t *testing.T) {
	session := newFakeSession()
	p := newFakeParser()
	p.addPage(5, 1, 10, true)
	p.addPage(5, 2, 10, true)
	p.addPage(1, 1, 10, true)
	p.addPage(1, 2, 10, true)

	collector := newTestCollector(session, &fakePacer{}, p)

	result, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{5, 1},
		MaxPagesPerRating: 2,
		MaxRetriesPerPage: 0,
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Len(t, result.Reviews, 40)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.RunID)
	assert.False(t, result.FinishedAt.IsZero())

	// Page budget caps each filter even with next-page still enabled.
	assert.Len(t, session.navigations(), 4)
}

func TestCollectStopsWhenPaginationEnds(t *testing.T) {
	session := newFakeSession()
	p := newFakeParser()
	p.addPage(5, 1, 10, true)
	p.addPage(5, 2, 10, true)
	p.addPage(1, 1, 10, false) // last page of the one-star filter
	p.addPage(1, 2, 10, true)  // must never be requested

	collector := newTestCollector(session, &fakePacer{}, p)

	result, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{5, 1},
		MaxPagesPerRating: 2,
	})
	require.NoError(t, err)

	assert.Len(t, result.Reviews, 30)
	assert.NotContains(t, session.navigations(), ReviewPageURL(testASIN, 1, 2))
}

func TestCollectRatingsVisitedInFixedOrder(t *testing.T) {
	session := newFakeSession()
	p := newFakeParser()
	for _, rating := range []int{1, 3, 5} {
		p.addPage(rating, 1, 1, false)
	}

	collector := newTestCollector(session, &fakePacer{}, p)

	_, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{1, 3, 5}, // request order must not matter
		MaxPagesPerRating: 1,
	})
	require.NoError(t, err)

	want := []string{
		ReviewPageURL(testASIN, 5, 1),
		ReviewPageURL(testASIN, 3, 1),
		ReviewPageURL(testASIN, 1, 1),
	}
	assert.Equal(t, want, session.navigations())
}

func TestCollectEmptyRatingsMeansUnfilteredPass(t *testing.T) {
	session := newFakeSession()
	p := newFakeParser()
	p.addPage(0, 1, 5, false)

	collector := newTestCollector(session, &fakePacer{}, p)

	result, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		MaxPagesPerRating: 3,
	})
	require.NoError(t, err)

	assert.Len(t, result.Reviews, 5)
	require.Len(t, session.navigations(), 1)
	assert.NotContains(t, session.navigations()[0], "filterByStar")
}

func TestCollectDeduplicatesAcrossPages(t *testing.T) {
	session := newFakeSession()
	p := newFakeParser()
	p.addPage(5, 1, 10, true)
	// Page 2 repeats page 1's records plus three new ones.
	page2 := &parser.ReviewPage{
		Records:     append(makeReviews(5, 1, 10), makeReviews(5, 2, 3)...),
		HasNextPage: false,
	}
	p.pages[ReviewPageURL(testASIN, 5, 2)] = page2

	collector := newTestCollector(session, &fakePacer{}, p)

	result, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{5},
		MaxPagesPerRating: 5,
	})
	require.NoError(t, err)

	assert.Len(t, result.Reviews, 13)
}

func TestCollectStallStopAfterTwoStalePages(t *testing.T) {
	session := newFakeSession()
	p := newFakeParser()
	p.addPage(5, 1, 10, true)
	// Pages 2 and 3 are pure repeats: pagination has looped.
	p.pages[ReviewPageURL(testASIN, 5, 2)] = &parser.ReviewPage{
		Records: makeReviews(5, 1, 10), HasNextPage: true,
	}
	p.pages[ReviewPageURL(testASIN, 5, 3)] = &parser.ReviewPage{
		Records: makeReviews(5, 1, 10), HasNextPage: true,
	}
	p.addPage(5, 4, 10, true) // must never be requested

	collector := newTestCollector(session, &fakePacer{}, p)

	result, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{5},
		MaxPagesPerRating: 10,
	})
	require.NoError(t, err)

	assert.Len(t, result.Reviews, 10)
	assert.Len(t, session.navigations(), 3)
}

func TestCollectRatingInheritedFromFilter(t *testing.T) {
	session := newFakeSession()
	p := newFakeParser()

	records := makeReviews(4, 1, 3)
	for i := range records {
		records[i].Rating = 0 // parser could not read the stars
	}
	p.pages[ReviewPageURL(testASIN, 4, 1)] = &parser.ReviewPage{Records: records}

	collector := newTestCollector(session, &fakePacer{}, p)

	result, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{4},
		MaxPagesPerRating: 1,
	})
	require.NoError(t, err)

	require.Len(t, result.Reviews, 3)
	for _, rev := range result.Reviews {
		assert.Equal(t, 4, rev.Rating)
	}
}

func TestCollectRetriesThenRecordsSoftError(t *testing.T) {
	session := newFakeSession()
	badURL := ReviewPageURL(testASIN, 5, 1)
	session.navErr[badURL] = fmt.Errorf("%w: connection reset", browser.ErrNavigation)

	p := newFakeParser()
	collector := newTestCollector(session, &fakePacer{}, p)

	result, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{5},
		MaxPagesPerRating: 1,
		MaxRetriesPerPage: 2,
	})
	require.NoError(t, err)

	// Initial attempt plus two retries, then one soft error on the run.
	assert.Len(t, session.navigations(), 3)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "fetch", result.Errors[0].Stage)
	assert.Equal(t, 5, result.Errors[0].Rating)
	assert.Equal(t, 1, result.Errors[0].Page)
	assert.Contains(t, result.Errors[0].Message, "retries exhausted")
}

func TestCollectBlockPageIsRetryable(t *testing.T) {
	session := newFakeSession()
	p := newFakeParser()

	url := ReviewPageURL(testASIN, 5, 1)
	p.pageErr[url] = fmt.Errorf("blocked: %w", parser.ErrUnrecognizedPage)

	collector := newTestCollector(session, &fakePacer{}, p)

	result, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{5},
		MaxPagesPerRating: 1,
		MaxRetriesPerPage: 1,
	})
	require.NoError(t, err)

	assert.Len(t, session.navigations(), 2)
	require.Len(t, result.Errors, 1)
}

func TestCollectSessionClosedIsFatalForPage(t *testing.T) {
	session := newFakeSession()
	url := ReviewPageURL(testASIN, 5, 1)
	session.navErr[url] = browser.ErrSessionClosed

	collector := newTestCollector(session, &fakePacer{}, newFakeParser())

	result, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{5},
		MaxPagesPerRating: 1,
		MaxRetriesPerPage: 3,
	})
	require.NoError(t, err)

	// Not retryable: one attempt only, one soft error.
	assert.Len(t, session.navigations(), 1)
	require.Len(t, result.Errors, 1)
}

func TestCollectEmptyIdentityPoolFailsPage(t *testing.T) {
	session := newFakeSession()
	pacer := &fakePacer{err: pacing.ErrEmptyPool}

	collector := newTestCollector(session, pacer, newFakeParser())

	result, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{5},
		MaxPagesPerRating: 1,
		MaxRetriesPerPage: 3,
	})
	require.NoError(t, err)

	// Configuration errors never navigate and never retry.
	assert.Empty(t, session.navigations())
	require.Len(t, result.Errors, 1)
}

func TestCollectIdentityAppliedBeforeEveryNavigation(t *testing.T) {
	session := newFakeSession()
	p := newFakeParser()
	p.addPage(5, 1, 2, true)
	p.addPage(5, 2, 2, false)

	collector := newTestCollector(session, &fakePacer{}, p)

	_, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{5},
		MaxPagesPerRating: 2,
	})
	require.NoError(t, err)

	session.mu.Lock()
	events := append([]string(nil), session.events...)
	session.mu.Unlock()

	for i, ev := range events {
		if strings.HasPrefix(ev, "navigate:") {
			require.Greater(t, i, 0)
			assert.True(t, strings.HasPrefix(events[i-1], "identity:"),
				"navigation %q not preceded by an identity change", ev)
		}
	}
}

func TestCollectCancellationReturnsPartialResult(t *testing.T) {
	session := newFakeSession()
	p := newFakeParser()
	p.addPage(5, 1, 10, true)
	p.addPage(5, 2, 10, true)

	ctx, cancel := context.WithCancel(context.Background())
	session.afterNavigate = func(url string, total int) {
		if total == 1 {
			cancel()
		}
	}

	collector := newTestCollector(session, &fakePacer{}, p)

	result, err := collector.Collect(ctx, testProductURL(), CollectConfig{
		Ratings:           []int{5, 4},
		MaxPagesPerRating: 5,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	// Only the first page made it in; the session is torn down.
	assert.Len(t, result.Reviews, 10)
	assert.Len(t, session.navigations(), 1)
	assert.True(t, session.closed)
	assert.False(t, result.FinishedAt.IsZero())
}

func TestCollectRejectsUnopenedSession(t *testing.T) {
	session := newFakeSession()
	session.state = browser.StateUnstarted

	p := newFakeParser()
	p.addPage(5, 1, 10, false)

	collector := newTestCollector(session, &fakePacer{}, p)

	result, err := collector.Collect(context.Background(), testProductURL(), CollectConfig{
		Ratings:           []int{5},
		MaxPagesPerRating: 3,
	})
	assert.ErrorIs(t, err, browser.ErrSessionNotReady)
	require.NotNil(t, result)

	// One precondition failure, not a soft error per page.
	assert.Empty(t, session.navigations())
	assert.Empty(t, result.Errors)
	assert.False(t, result.FinishedAt.IsZero())
}

func TestCollectRejectsClosedSession(t *testing.T) {
	session := newFakeSession()
	require.NoError(t, session.Close())

	collector := newTestCollector(session, &fakePacer{}, newFakeParser())

	result, err := collector.Collect(context.Background(), testProductURL(), DefaultCollectConfig())
	assert.ErrorIs(t, err, browser.ErrSessionClosed)
	require.NotNil(t, result)
	assert.Empty(t, session.navigations())
}

func TestCollectInvalidURL(t *testing.T) {
	collector := newTestCollector(newFakeSession(), &fakePacer{}, newFakeParser())

	result, err := collector.Collect(context.Background(), "https://example.com/dp/B0TESTASIN", DefaultCollectConfig())
	assert.ErrorIs(t, err, ErrInvalidURL)
	require.NotNil(t, result)
	assert.Empty(t, result.Reviews)
}

func TestDefaultCollectConfig(t *testing.T) {
	cfg := DefaultCollectConfig()

	assert.Equal(t, []int{5, 4, 3, 2, 1}, cfg.Ratings)
	assert.Equal(t, 10, cfg.MaxPagesPerRating)
	assert.Equal(t, 3, cfg.MaxRetriesPerPage)
}

func TestSelectRatings(t *testing.T) {
	tests := []struct {
		name string
		in   []int
		want []int
	}{
		{"empty means unfiltered", nil, []int{0}},
		{"order fixed regardless of request", []int{1, 5, 3}, []int{5, 3, 1}},
		{"out of range dropped", []int{0, 6, 2, -1}, []int{2}},
		{"all out of range falls back to unfiltered", []int{7, 9}, []int{0}},
		{"duplicates collapse", []int{5, 5, 5}, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectRatings(tt.in))
		})
	}
}
