package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractASIN(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"dp path", "https://www.amazon.in/dp/B08N5WRWNW", "B08N5WRWNW"},
		{"dp path with slug", "https://www.amazon.in/acme-widget/dp/B08N5WRWNW/ref=sr_1_1", "B08N5WRWNW"},
		{"product path", "https://amazon.com/product/B000000001", "B000000001"},
		{"gp product path", "https://www.amazon.co.uk/gp/product/B0C1D2E3F4?th=1", "B0C1D2E3F4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asin, err := ExtractASIN(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, asin)
		})
	}
}

func TestExtractASINRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"non-amazon host", "https://example.com/dp/B08N5WRWNW"},
		{"amazon lookalike", "https://notamazon.in/dp/B08N5WRWNW"},
		{"no product path", "https://www.amazon.in/gp/bestsellers"},
		{"short identifier", "https://www.amazon.in/dp/B08N5"},
		{"lowercase identifier", "https://www.amazon.in/dp/b08n5wrwnw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractASIN(tt.url)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestProductURL(t *testing.T) {
	assert.Equal(t, "https://www.amazon.in/dp/B08N5WRWNW", ProductURL("B08N5WRWNW"))
}

func TestReviewPageURL(t *testing.T) {
	url := ReviewPageURL("B08N5WRWNW", 5, 3)

	assert.Contains(t, url, "/product-reviews/B08N5WRWNW/")
	assert.Contains(t, url, "pageNumber=3")
	assert.Contains(t, url, "filterByStar=five_star")
	assert.Contains(t, url, "reviewerType=all_reviews")
}

func TestReviewPageURLUnfiltered(t *testing.T) {
	url := ReviewPageURL("B08N5WRWNW", 0, 1)

	assert.Contains(t, url, "pageNumber=1")
	assert.NotContains(t, url, "filterByStar")
}

func TestReviewPageURLStarSlugs(t *testing.T) {
	slugs := map[int]string{
		5: "five_star",
		4: "four_star",
		3: "three_star",
		2: "two_star",
		1: "one_star",
	}

	for rating, slug := range slugs {
		assert.Contains(t, ReviewPageURL("B08N5WRWNW", rating, 1), "filterByStar="+slug)
	}
}
