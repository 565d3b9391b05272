package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/amalyzedev/amazon-review-scraper/internal/database"
	"github.com/amalyzedev/amazon-review-scraper/internal/scraper"
)

// StartWorker runs the background job loop until the context ends. One
// job at a time; each gets its own browser session via the Runner.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case <-ticker.C:
			m.processNextJob(ctx)
		}
	}
}

func (m *Manager) processNextJob(ctx context.Context) {
	job, err := m.repo.ClaimNext(ctx)
	if err != nil {
		if !errors.Is(err, database.ErrJobNotFound) {
			m.logger.Error("failed to claim job", "error", err)
		}
		return
	}

	m.logger.Info("processing job", "id", job.ID, "url", job.ProductURL)

	var cfg scraper.CollectConfig
	if len(job.Config) > 0 {
		if err := json.Unmarshal(job.Config, &cfg); err != nil {
			m.logger.Error("invalid job config", "id", job.ID, "error", err)
			m.repo.MarkFailed(ctx, job.ID, err)
			return
		}
	}
	if cfg.MaxPagesPerRating == 0 {
		cfg = scraper.DefaultCollectConfig()
	}

	result, err := m.runner.Run(ctx, job.ProductURL, cfg)
	if err != nil {
		m.logger.Error("job failed", "id", job.ID, "error", err)
		m.repo.MarkFailed(ctx, job.ID, err)
		return
	}

	if err := m.repo.MarkCompleted(ctx, job.ID, result.RunID); err != nil {
		m.logger.Error("failed to mark job completed", "id", job.ID, "error", err)
		return
	}

	m.logger.Info("job completed",
		"id", job.ID,
		"run_id", result.RunID,
		"reviews", len(result.Reviews),
		"errors", len(result.Errors))
}
