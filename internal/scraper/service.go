package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/amalyzedev/amazon-review-scraper/internal/models"
	"github.com/amalyzedev/amazon-review-scraper/internal/parser"
)

// ResultStore persists a finished run.
type ResultStore interface {
	SaveResult(ctx context.Context, result *models.ScrapeResult) error
}

// EventPublisher announces a finished run to downstream consumers.
type EventPublisher interface {
	PublishReviewsCollected(ctx context.Context, result *models.ScrapeResult) error
}

// Service is the unit the API and CLI drive: one product pass plus one
// review collection, merged into a single ScrapeResult, optionally
// persisted and published.
type Service struct {
	session   Session
	pacer     Pacer
	parser    parser.Parser
	collector *ReviewCollector
	product   *ProductScraper
	store     ResultStore
	publisher EventPublisher
	logger    *slog.Logger
}

type ServiceOption func(*Service)

func WithStore(store ResultStore) ServiceOption {
	return func(s *Service) { s.store = store }
}

func WithPublisher(pub EventPublisher) ServiceOption {
	return func(s *Service) { s.publisher = pub }
}

func NewService(session Session, pacer Pacer, p parser.Parser, collector *ReviewCollector, product *ProductScraper, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		session:   session,
		pacer:     pacer,
		parser:    p,
		collector: collector,
		product:   product,
		logger:    logger.With("component", "scraper_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape runs the full pipeline for one product URL. The product pass
// failing is a soft error; review collection still runs so callers get
// whatever is extractable.
func (s *Service) Scrape(ctx context.Context, productURL string, cfg CollectConfig) (*models.ScrapeResult, error) {
	if _, err := ExtractASIN(productURL); err != nil {
		return nil, err
	}

	product, productErr := s.product.Scrape(ctx, productURL)

	result, err := s.collector.Collect(ctx, productURL, cfg)
	result.Product = product

	if productErr != nil {
		result.Errors = append(result.Errors, models.ScrapeError{
			Stage:   "product",
			Message: productErr.Error(),
			Time:    time.Now(),
		})
	}

	if err != nil {
		return result, err
	}

	if s.store != nil {
		if storeErr := s.store.SaveResult(ctx, result); storeErr != nil {
			s.logger.Error("failed to persist result", "run_id", result.RunID, "error", storeErr)
		}
	}
	if s.publisher != nil {
		if pubErr := s.publisher.PublishReviewsCollected(ctx, result); pubErr != nil {
			s.logger.Error("failed to publish collection event", "run_id", result.RunID, "error", pubErr)
		}
	}

	return result, nil
}
