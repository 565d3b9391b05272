package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/amalyzedev/amazon-review-scraper/internal/models"
)

var (
	reviewDatePattern   = regexp.MustCompile(`(?i)reviewed in .+? on (.+)$`)
	helpfulVotesPattern = regexp.MustCompile(`([\d,]+)\s+people found this helpful`)
	profileTokenPattern = regexp.MustCompile(`/gp/profile/([^/?]+)`)
)

var reviewDateLayouts = []string{
	"2 January 2006",
	"January 2, 2006",
	"02 January 2006",
	"2006-01-02",
}

// ParseReviewPage extracts every review entry visible on one page plus
// whether the next-page control is enabled. One malformed entry is
// skipped and recorded; the rest of the page still yields.
func (p *AmazonParser) ParseReviewPage(html string) (*ReviewPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if isBlockPage(doc) {
		return nil, fmt.Errorf("blocked or login-walled: %w", ErrUnrecognizedPage)
	}

	containers := doc.Find("[data-hook='review']")
	if containers.Length() == 0 {
		// An empty filter result is a recognized page; anything else is not.
		if doc.Find("#cm_cr-review_list, [data-hook='reviews-medley-footer'], .review-views").Length() == 0 &&
			doc.Find("[data-hook='cr-filter-info-review-rating-count']").Length() == 0 {
			return nil, fmt.Errorf("no review list found: %w", ErrUnrecognizedPage)
		}
	}

	page := &ReviewPage{
		HasNextPage: hasNextPage(doc),
	}

	containers.Each(func(i int, s *goquery.Selection) {
		record, err := extractReview(s)
		if err != nil {
			page.Skipped = append(page.Skipped, fmt.Errorf("review entry %d: %w", i+1, err))
			return
		}
		page.Records = append(page.Records, *record)
	})

	return page, nil
}

func extractReview(s *goquery.Selection) (*models.ReviewRecord, error) {
	body := strings.TrimSpace(s.Find("[data-hook='review-body'] span").First().Text())
	if body == "" {
		body = strings.TrimSpace(s.Find("[data-hook='review-body']").First().Text())
	}
	if body == "" {
		return nil, fmt.Errorf("missing review body")
	}

	reviewerID := extractReviewerID(s)
	if reviewerID == "" {
		return nil, fmt.Errorf("missing reviewer identity")
	}

	dateSel := s.Find("[data-hook='review-date']")
	if dateSel.Length() == 0 {
		return nil, fmt.Errorf("missing review date element")
	}

	record := &models.ReviewRecord{
		ReviewerID:   reviewerID,
		Title:        extractReviewTitle(s),
		Body:         body,
		Rating:       extractStarRating(s),
		Verified:     s.Find("[data-hook='avp-badge']").Length() > 0,
		Date:         parseReviewDate(strings.TrimSpace(dateSel.First().Text())),
		HelpfulVotes: extractHelpfulVotes(s),
		CollectedAt:  time.Now(),
	}

	return record, nil
}

// extractReviewerID prefers the stable profile token over the display
// name, which is all some entries expose.
func extractReviewerID(s *goquery.Selection) string {
	if href, ok := s.Find("a.a-profile, [data-hook='genome-widget'] a").First().Attr("href"); ok {
		if matches := profileTokenPattern.FindStringSubmatch(href); len(matches) > 1 {
			return matches[1]
		}
	}
	return strings.TrimSpace(s.Find(".a-profile-name").First().Text())
}

func extractReviewTitle(s *goquery.Selection) string {
	title := strings.TrimSpace(s.Find("[data-hook='review-title'] span").Last().Text())
	if title == "" {
		title = strings.TrimSpace(s.Find("[data-hook='review-title']").First().Text())
	}
	return title
}

// extractStarRating reads "4.0 out of 5 stars"-style text and keeps the
// leading integer. Zero means unknown; the collector fills it from the
// active star filter.
func extractStarRating(s *goquery.Selection) int {
	text := strings.TrimSpace(s.Find("i.review-rating span.a-icon-alt").First().Text())
	if text == "" {
		text = strings.TrimSpace(s.Find("i.review-rating").First().Text())
	}
	if text == "" {
		text = strings.TrimSpace(s.Find("[data-hook='review-star-rating'] span").First().Text())
	}

	matches := ratingPattern.FindStringSubmatch(text)
	if len(matches) < 2 {
		return 0
	}
	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0
	}

	rating := int(value)
	if rating < 1 || rating > 5 {
		return 0
	}
	return rating
}

// parseReviewDate tolerates "Reviewed in India on 12 March 2023" and
// several bare locale layouts. Unparsable text gives nil, not an error.
func parseReviewDate(text string) *time.Time {
	if text == "" {
		return nil
	}

	if matches := reviewDatePattern.FindStringSubmatch(text); len(matches) > 1 {
		text = strings.TrimSpace(matches[1])
	}

	for _, layout := range reviewDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return &t
		}
	}
	if t, err := dateparse.ParseAny(text); err == nil {
		return &t
	}
	return nil
}

func extractHelpfulVotes(s *goquery.Selection) *int {
	text := strings.TrimSpace(s.Find("[data-hook='helpful-vote-statement']").First().Text())
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "One person") {
		votes := 1
		return &votes
	}

	matches := helpfulVotesPattern.FindStringSubmatch(text)
	if len(matches) < 2 {
		return nil
	}
	votes, err := strconv.Atoi(strings.ReplaceAll(matches[1], ",", ""))
	if err != nil {
		return nil
	}
	return &votes
}

// hasNextPage reports whether the pagination "next" control is present
// and not disabled.
func hasNextPage(doc *goquery.Document) bool {
	next := doc.Find("ul.a-pagination li.a-last")
	if next.Length() == 0 {
		return false
	}
	return !next.HasClass("a-disabled")
}
