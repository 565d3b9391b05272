package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/amalyzedev/amazon-review-scraper/internal/database"
	"github.com/amalyzedev/amazon-review-scraper/internal/models"
	"github.com/amalyzedev/amazon-review-scraper/internal/scraper"
)

// Runner executes one scrape with its own browser session. The worker
// gives every job a fresh session so concurrent jobs never share one.
type Runner interface {
	Run(ctx context.Context, productURL string, cfg scraper.CollectConfig) (*models.ScrapeResult, error)
}

type Manager struct {
	repo   *database.JobRepository
	runner Runner
	logger *slog.Logger
}

func NewManager(repo *database.JobRepository, runner Runner, logger *slog.Logger) *Manager {
	return &Manager{
		repo:   repo,
		runner: runner,
		logger: logger.With("component", "job_manager"),
	}
}

// CreateJob queues a scrape of one product URL.
func (m *Manager) CreateJob(ctx context.Context, productURL string, cfg scraper.CollectConfig) (*database.ScrapeJob, error) {
	if _, err := scraper.ExtractASIN(productURL); err != nil {
		return nil, err
	}

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	job, err := m.repo.Create(ctx, productURL, configJSON)
	if err != nil {
		return nil, err
	}

	m.logger.Info("job created", "id", job.ID, "url", productURL)
	return job, nil
}

func (m *Manager) GetJob(ctx context.Context, jobID string) (*database.ScrapeJob, error) {
	return m.repo.Get(ctx, jobID)
}

func (m *Manager) ListJobs(ctx context.Context) ([]*database.ScrapeJob, error) {
	return m.repo.List(ctx, 100)
}
