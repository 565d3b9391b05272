package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const baseURL = "https://www.amazon.in"

var asinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/dp/([A-Z0-9]{10})`),
	regexp.MustCompile(`/product/([A-Z0-9]{10})`),
	regexp.MustCompile(`/gp/product/([A-Z0-9]{10})`),
}

var starFilters = map[int]string{
	5: "five_star",
	4: "four_star",
	3: "three_star",
	2: "two_star",
	1: "one_star",
}

// ExtractASIN validates that rawURL belongs to an amazon.* host and
// resolves to a single catalog entry, returning its ASIN.
func ExtractASIN(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if !strings.HasPrefix(host, "amazon.") {
		return "", fmt.Errorf("%w: host %q is not an Amazon domain", ErrInvalidURL, parsed.Hostname())
	}

	for _, pattern := range asinPatterns {
		if matches := pattern.FindStringSubmatch(parsed.Path); len(matches) > 1 {
			return matches[1], nil
		}
	}

	return "", fmt.Errorf("%w: no product identifier in %q", ErrInvalidURL, rawURL)
}

// ProductURL builds the canonical product page URL for an ASIN.
func ProductURL(asin string) string {
	return fmt.Sprintf("%s/dp/%s", baseURL, asin)
}

// ReviewPageURL builds the paginated review listing URL. Rating 0 means
// the unfiltered "all ratings" view.
func ReviewPageURL(asin string, rating, page int) string {
	u := fmt.Sprintf("%s/product-reviews/%s/ref=cm_cr_arp_d_viewopt_sr?ie=UTF8&reviewerType=all_reviews&pageNumber=%d",
		baseURL, asin, page)
	if slug, ok := starFilters[rating]; ok {
		u += "&filterByStar=" + slug
	}
	return u
}
