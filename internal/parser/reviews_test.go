package parser

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reviewFixture struct {
	profileHref string
	displayName string
	title       string
	body        string
	stars       string
	dateText    string
	verified    bool
	helpful     string
	omitDate    bool
}

func (f reviewFixture) render() string {
	var b strings.Builder
	b.WriteString(`<div data-hook="review">`)
	b.WriteString(`<div data-hook="genome-widget"><a class="a-profile" href="` + f.profileHref + `">`)
	b.WriteString(`<span class="a-profile-name">` + f.displayName + `</span></a></div>`)
	if f.stars != "" {
		b.WriteString(`<i class="review-rating"><span class="a-icon-alt">` + f.stars + `</span></i>`)
	}
	if f.title != "" {
		b.WriteString(`<a data-hook="review-title"><span>` + f.title + `</span></a>`)
	}
	if !f.omitDate {
		b.WriteString(`<span data-hook="review-date">` + f.dateText + `</span>`)
	}
	if f.verified {
		b.WriteString(`<span data-hook="avp-badge">Verified Purchase</span>`)
	}
	if f.body != "" {
		b.WriteString(`<span data-hook="review-body"><span>` + f.body + `</span></span>`)
	}
	if f.helpful != "" {
		b.WriteString(`<span data-hook="helpful-vote-statement">` + f.helpful + `</span>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func reviewListPage(nextEnabled bool, reviews ...reviewFixture) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="cm_cr-review_list">`)
	for _, r := range reviews {
		b.WriteString(r.render())
	}
	b.WriteString(`</div>`)
	if nextEnabled {
		b.WriteString(`<ul class="a-pagination"><li class="a-last"><a href="#">Next</a></li></ul>`)
	} else {
		b.WriteString(`<ul class="a-pagination"><li class="a-last a-disabled">Next</li></ul>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func fullReview(n int) reviewFixture {
	return reviewFixture{
		profileHref: fmt.Sprintf("/gp/profile/AHXYZ%04d/ref=cm_cr", n),
		displayName: fmt.Sprintf("Reviewer %d", n),
		title:       fmt.Sprintf("Review title %d", n),
		body:        fmt.Sprintf("Review body %d with enough text.", n),
		stars:       "5.0 out of 5 stars",
		dateText:    "Reviewed in India on 12 March 2023",
		verified:    n%2 == 0,
	}
}

func TestParseReviewPage(t *testing.T) {
	html := reviewListPage(true, fullReview(1), fullReview(2), fullReview(3))

	p := NewAmazonParser()
	page, err := p.ParseReviewPage(html)
	require.NoError(t, err)

	assert.True(t, page.HasNextPage)
	assert.Empty(t, page.Skipped)
	require.Len(t, page.Records, 3)

	first := page.Records[0]
	assert.Equal(t, "AHXYZ0001", first.ReviewerID)
	assert.Equal(t, "Review title 1", first.Title)
	assert.Equal(t, "Review body 1 with enough text.", first.Body)
	assert.Equal(t, 5, first.Rating)
	assert.False(t, first.Verified)
	assert.True(t, page.Records[1].Verified)

	require.NotNil(t, first.Date)
	assert.Equal(t, time.Date(2023, time.March, 12, 0, 0, 0, 0, time.UTC), first.Date.UTC())
}

func TestParseReviewPageSkipsMalformedEntry(t *testing.T) {
	broken := fullReview(3)
	broken.omitDate = true

	html := reviewListPage(true, fullReview(1), fullReview(2), broken, fullReview(4), fullReview(5))

	p := NewAmazonParser()
	page, err := p.ParseReviewPage(html)
	require.NoError(t, err)

	// The malformed entry is recorded and skipped; the rest still parse.
	assert.Len(t, page.Records, 4)
	require.Len(t, page.Skipped, 1)
	assert.Contains(t, page.Skipped[0].Error(), "review entry 3")
	assert.Contains(t, page.Skipped[0].Error(), "missing review date element")
}

func TestParseReviewPageMissingBodySkipped(t *testing.T) {
	noBody := fullReview(1)
	noBody.body = ""

	html := reviewListPage(false, noBody)

	p := NewAmazonParser()
	page, err := p.ParseReviewPage(html)
	require.NoError(t, err)

	assert.Empty(t, page.Records)
	require.Len(t, page.Skipped, 1)
	assert.Contains(t, page.Skipped[0].Error(), "missing review body")
}

func TestParseReviewPageEmptyFilterResult(t *testing.T) {
	html := `<html><body><div id="cm_cr-review_list"></div></body></html>`

	p := NewAmazonParser()
	page, err := p.ParseReviewPage(html)
	require.NoError(t, err)

	assert.Empty(t, page.Records)
	assert.False(t, page.HasNextPage)
}

func TestParseReviewPageUnrecognized(t *testing.T) {
	p := NewAmazonParser()

	page, err := p.ParseReviewPage(`<html><body><h1>Something went wrong</h1></body></html>`)
	assert.Nil(t, page)
	assert.ErrorIs(t, err, ErrUnrecognizedPage)
}

func TestParseReviewPageBlockPage(t *testing.T) {
	p := NewAmazonParser()

	page, err := p.ParseReviewPage(`<html><body><input id="captchacharacters"></body></html>`)
	assert.Nil(t, page)
	assert.ErrorIs(t, err, ErrUnrecognizedPage)
}

func TestHasNextPageDisabled(t *testing.T) {
	html := reviewListPage(false, fullReview(1))

	p := NewAmazonParser()
	page, err := p.ParseReviewPage(html)
	require.NoError(t, err)

	assert.False(t, page.HasNextPage)
}

func TestExtractReviewerIDFallsBackToDisplayName(t *testing.T) {
	fixture := fullReview(1)
	fixture.profileHref = "/hz/nothing-useful"
	fixture.displayName = "Plain Name"

	html := reviewListPage(false, fixture)

	p := NewAmazonParser()
	page, err := p.ParseReviewPage(html)
	require.NoError(t, err)

	require.Len(t, page.Records, 1)
	assert.Equal(t, "Plain Name", page.Records[0].ReviewerID)
}

func TestParseReviewDate(t *testing.T) {
	tests := []struct {
		text string
		want *time.Time
	}{
		{"Reviewed in India on 12 March 2023", timePtr(2023, time.March, 12)},
		{"Reviewed in the United States on January 5, 2024", timePtr(2024, time.January, 5)},
		{"02 July 2022", timePtr(2022, time.July, 2)},
		{"2021-11-30", timePtr(2021, time.November, 30)},
		{"not a date at all ???", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := parseReviewDate(tt.text)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, got.UTC())
		})
	}
}

func timePtr(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestExtractHelpfulVotes(t *testing.T) {
	tests := []struct {
		name    string
		helpful string
		want    *int
	}{
		{"plural", "1,204 people found this helpful", intPtr(1204)},
		{"singular", "One person found this helpful", intPtr(1)},
		{"absent", "", nil},
	}

	p := NewAmazonParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := fullReview(1)
			fixture.helpful = tt.helpful

			page, err := p.ParseReviewPage(reviewListPage(false, fixture))
			require.NoError(t, err)
			require.Len(t, page.Records, 1)

			if tt.want == nil {
				assert.Nil(t, page.Records[0].HelpfulVotes)
				return
			}
			require.NotNil(t, page.Records[0].HelpfulVotes)
			assert.Equal(t, *tt.want, *page.Records[0].HelpfulVotes)
		})
	}
}

func intPtr(n int) *int { return &n }

func TestExtractStarRatingOutOfRange(t *testing.T) {
	fixture := fullReview(1)
	fixture.stars = "9.0 out of 5 stars"

	p := NewAmazonParser()
	page, err := p.ParseReviewPage(reviewListPage(false, fixture))
	require.NoError(t, err)
	require.Len(t, page.Records, 1)

	// Out-of-range text degrades to unknown, not to a bogus value.
	assert.Equal(t, 0, page.Records[0].Rating)
}
