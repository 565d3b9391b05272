package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amalyzedev/amazon-review-scraper/internal/models"
	"github.com/amalyzedev/amazon-review-scraper/internal/parser"
)

// ProductScraper drives one session + parser pass to produce a
// ProductInfo. Navigation and parse errors propagate unchanged; retry
// policy lives in the collector layer so it stays uniform.
type ProductScraper struct {
	session Session
	parser  parser.Parser
	logger  *slog.Logger
}

func NewProductScraper(session Session, p parser.Parser, logger *slog.Logger) *ProductScraper {
	return &ProductScraper{
		session: session,
		parser:  p,
		logger:  logger.With("component", "product_scraper"),
	}
}

func (s *ProductScraper) Scrape(ctx context.Context, productURL string) (*models.ProductInfo, error) {
	asin, err := ExtractASIN(productURL)
	if err != nil {
		return nil, err
	}

	target := ProductURL(asin)
	s.logger.Info("scraping product", "asin", asin, "url", target)

	if err := s.session.Navigate(ctx, target); err != nil {
		return nil, err
	}

	html, err := s.session.CurrentDocument()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot product page: %w", err)
	}

	info, err := s.parser.ParseProduct(html)
	if err != nil {
		return nil, err
	}

	info.ASIN = asin
	info.URL = target

	return info, nil
}
