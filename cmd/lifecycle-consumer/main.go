package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// lifecycle-consumer tails the scrape event stream and maintains the
// per-product review summary table from REVIEWS_COLLECTED events.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	logger.Info("Connected to Redis", "addr", redisAddr)

	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "review_scraper"),
	)

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Connected to database")

	consumer := &Consumer{
		redis:  rdb,
		db:     db,
		logger: logger,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Consumer error: %v", err)
	}
}

type Consumer struct {
	redis  *redis.Client
	db     *pgxpool.Pool
	logger *slog.Logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Consumer) Run(ctx context.Context) error {
	streamKey := getEnv("REDIS_STREAM", "stream:review_scrapes")
	consumerGroup := getEnv("REDIS_CONSUMER_GROUP", "review-summary-group")
	consumerName := getEnv("REDIS_CONSUMER_NAME", "consumer-1")

	// Create consumer group (ignore error if already exists)
	c.redis.XGroupCreateMkStream(ctx, streamKey, consumerGroup, "0").Err()

	c.logger.Info("Starting consumer", "stream", streamKey, "group", consumerGroup)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    consumerGroup,
				Consumer: consumerName,
				Streams:  []string{streamKey, ">"},
				Count:    10,
				Block:    5 * time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					continue // No new messages
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("Failed to read from stream", "error", err)
				time.Sleep(1 * time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					if err := c.processMessage(ctx, message); err != nil {
						c.logger.Error("Failed to process message", "id", message.ID, "error", err)
						continue
					}

					if err := c.redis.XAck(ctx, streamKey, consumerGroup, message.ID).Err(); err != nil {
						c.logger.Error("Failed to acknowledge message", "id", message.ID, "error", err)
					}
				}
			}
		}
	}
}

// reviewsCollected mirrors the payload the scraper publishes for
// finished runs.
type reviewsCollected struct {
	RunID           string         `json:"run_id"`
	ASIN            string         `json:"asin"`
	Title           string         `json:"title"`
	TotalReviews    int            `json:"total_reviews"`
	ByStar          map[string]int `json:"by_star"`
	VerifiedPercent float64        `json:"verified_percent"`
	MeanRating      float64        `json:"mean_rating"`
	ErrorCount      int            `json:"error_count"`
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	eventType, ok := msg.Values["event_type"].(string)
	if !ok || eventType != "REVIEWS_COLLECTED" {
		return nil // Skip non-matching events
	}

	dataStr, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("missing data in event")
	}

	// The relay wraps the payload in an envelope with routing metadata.
	var envelope struct {
		Payload reviewsCollected `json:"payload"`
	}
	if err := json.Unmarshal([]byte(dataStr), &envelope); err != nil {
		return fmt.Errorf("failed to parse event data: %w", err)
	}

	payload := envelope.Payload
	if payload.RunID == "" {
		return fmt.Errorf("missing run_id in payload")
	}

	c.logger.Info("Processing run summary",
		"message_id", msg.ID,
		"run_id", payload.RunID,
		"asin", payload.ASIN,
		"reviews", payload.TotalReviews,
	)

	// Runs without product metadata (blocked product page) carry no
	// ASIN; there is nothing to roll up.
	if payload.ASIN == "" {
		c.logger.Info("Skipping run without ASIN", "run_id", payload.RunID)
		return nil
	}

	byStar, err := json.Marshal(payload.ByStar)
	if err != nil {
		return fmt.Errorf("failed to marshal star counts: %w", err)
	}

	query := `
		INSERT INTO review_summary (asin, title, last_run_id, total_reviews, by_star, verified_percent, mean_rating, error_count, collected_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (asin) DO UPDATE SET
			title = EXCLUDED.title,
			last_run_id = EXCLUDED.last_run_id,
			total_reviews = EXCLUDED.total_reviews,
			by_star = EXCLUDED.by_star,
			verified_percent = EXCLUDED.verified_percent,
			mean_rating = EXCLUDED.mean_rating,
			error_count = EXCLUDED.error_count,
			collected_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP`

	_, err = c.db.Exec(ctx, query,
		payload.ASIN,
		payload.Title,
		payload.RunID,
		payload.TotalReviews,
		byStar,
		payload.VerifiedPercent,
		payload.MeanRating,
		payload.ErrorCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert review summary: %w", err)
	}

	c.logger.Info("Updated review summary",
		"asin", payload.ASIN,
		"run_id", payload.RunID,
		"total_reviews", payload.TotalReviews,
		"mean_rating", payload.MeanRating,
	)

	return nil
}
