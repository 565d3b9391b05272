package parser

import (
	"errors"

	"github.com/amalyzedev/amazon-review-scraper/internal/models"
)

// ErrUnrecognizedPage means the document is structurally not the page we
// asked for: a login wall, a captcha interstitial, or an error page.
// Individual missing fields never produce it.
var ErrUnrecognizedPage = errors.New("page structure not recognized")

// ReviewPage is the extraction of one rendered review page. Skipped
// holds one soft error per malformed entry; well-formed entries around
// a bad one are still returned.
type ReviewPage struct {
	Records     []models.ReviewRecord
	HasNextPage bool
	Skipped     []error
}

type Parser interface {
	ParseProduct(html string) (*models.ProductInfo, error)
	ParseReviewPage(html string) (*ReviewPage, error)
}
