package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/amalyzedev/amazon-review-scraper/internal/models"
)

// RunRepository persists finished scrape runs: one scrape_run row per
// run plus one review row per deduplicated record.
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveResult stores the run and its reviews in one transaction. Reviews
// go in via CopyFrom since a run can easily carry hundreds of rows.
func (r *RunRepository) SaveResult(ctx context.Context, result *models.ScrapeResult) error {
	productJSON, err := json.Marshal(result.Product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}
	statsJSON, err := json.Marshal(result.Stats())
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	errorsJSON, err := json.Marshal(result.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	asin := ""
	if result.Product != nil {
		asin = result.Product.ASIN
	}

	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		runQuery := `
			INSERT INTO scrape_run (
				id, asin, product, stats, errors,
				review_count, error_count, started_at, finished_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		_, err := tx.Exec(ctx, runQuery,
			result.RunID, asin, productJSON, statsJSON, errorsJSON,
			len(result.Reviews), len(result.Errors),
			result.StartedAt, result.FinishedAt)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		if len(result.Reviews) == 0 {
			return nil
		}

		rows := make([][]interface{}, 0, len(result.Reviews))
		for i := range result.Reviews {
			rev := &result.Reviews[i]
			var date *time.Time
			if rev.Date != nil {
				date = rev.Date
			}
			rows = append(rows, []interface{}{
				result.RunID, i, rev.ReviewerID, rev.Title, rev.Body,
				rev.Rating, rev.Verified, date, rev.HelpfulVotes, rev.CollectedAt,
			})
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"review"},
			[]string{
				"run_id", "position", "reviewer_id", "title", "body",
				"rating", "verified", "review_date", "helpful_votes", "collected_at",
			},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy reviews: %w", err)
		}

		return nil
	})
}

// GetRun loads one run summary without its review rows.
func (r *RunRepository) GetRun(ctx context.Context, runID string) (*models.ScrapeResult, error) {
	query := `
		SELECT id, product, errors, started_at, finished_at
		FROM scrape_run
		WHERE id = $1`

	var productJSON, errorsJSON []byte
	result := &models.ScrapeResult{}
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&result.RunID, &productJSON, &errorsJSON,
		&result.StartedAt, &result.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if len(productJSON) > 0 {
		if err := json.Unmarshal(productJSON, &result.Product); err != nil {
			return nil, fmt.Errorf("failed to unmarshal product: %w", err)
		}
	}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &result.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
		}
	}

	return result, nil
}

// GetRunReviews loads the review rows of a run in collection order.
func (r *RunRepository) GetRunReviews(ctx context.Context, runID string) ([]models.ReviewRecord, error) {
	query := `
		SELECT reviewer_id, title, body, rating, verified,
		       review_date, helpful_votes, collected_at
		FROM review
		WHERE run_id = $1
		ORDER BY position`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.ReviewRecord
	for rows.Next() {
		var rev models.ReviewRecord
		err := rows.Scan(
			&rev.ReviewerID, &rev.Title, &rev.Body, &rev.Rating, &rev.Verified,
			&rev.Date, &rev.HelpfulVotes, &rev.CollectedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, rev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return reviews, nil
}
