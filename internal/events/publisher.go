package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/amalyzedev/amazon-review-scraper/internal/database"
	"github.com/amalyzedev/amazon-review-scraper/internal/models"
)

type EventType string

const (
	// EventTypeReviewsCollected is published when a scrape run finishes.
	EventTypeReviewsCollected EventType = "REVIEWS_COLLECTED"
)

// ReviewsCollectedPayload is the downstream-facing summary of one run.
type ReviewsCollectedPayload struct {
	EventID         string      `json:"event_id"`
	EventType       string      `json:"event_type"`
	Timestamp       time.Time   `json:"timestamp"`
	RunID           string      `json:"run_id"`
	ASIN            string      `json:"asin,omitempty"`
	Title           string      `json:"title,omitempty"`
	TotalReviews    int         `json:"total_reviews"`
	ByStar          map[int]int `json:"by_star"`
	VerifiedPercent float64     `json:"verified_percent"`
	MeanRating      float64     `json:"mean_rating"`
	ErrorCount      int         `json:"error_count"`
	Source          string      `json:"source"`
}

// Publisher writes collection events through the transactional outbox,
// so an event exists exactly when its run row does.
type Publisher struct {
	db     *database.DB
	outbox *database.OutboxRepository
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishReviewsCollected inserts a REVIEWS_COLLECTED event into the
// outbox for the relay to pick up.
func (p *Publisher) PublishReviewsCollected(ctx context.Context, result *models.ScrapeResult) error {
	stats := result.Stats()

	payload := &ReviewsCollectedPayload{
		EventID:         uuid.New().String(),
		EventType:       string(EventTypeReviewsCollected),
		Timestamp:       time.Now(),
		RunID:           result.RunID,
		TotalReviews:    stats.Total,
		ByStar:          stats.ByStar,
		VerifiedPercent: stats.VerifiedPercent,
		MeanRating:      stats.MeanRating,
		ErrorCount:      len(result.Errors),
		Source:          "scraper",
	}
	if result.Product != nil {
		payload.ASIN = result.Product.ASIN
		payload.Title = result.Product.Title
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: "scrape_run",
		AggregateID:   result.RunID,
		EventType:     string(EventTypeReviewsCollected),
		Payload:       data,
		TargetStream:  "stream:review_scrapes",
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		return p.outbox.InsertWithTx(ctx, tx, outboxEvent)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"run_id", payload.RunID,
		"outbox_id", outboxEvent.ID,
	)

	return nil
}
