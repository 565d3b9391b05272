package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/amalyzedev/amazon-review-scraper/internal/cache"
	"github.com/amalyzedev/amazon-review-scraper/internal/database"
	"github.com/amalyzedev/amazon-review-scraper/internal/jobs"
	"github.com/amalyzedev/amazon-review-scraper/internal/models"
	"github.com/amalyzedev/amazon-review-scraper/internal/scraper"
)

// Scraper is what the synchronous extraction endpoints drive. Each call
// owns its own browser session underneath.
type Scraper interface {
	ScrapeProduct(ctx context.Context, url string) (*models.ProductInfo, error)
	ScrapeReviews(ctx context.Context, url string, cfg scraper.CollectConfig) (*models.ScrapeResult, error)
}

type Handlers struct {
	scraper Scraper
	jobs    *jobs.Manager
	cache   *cache.ResultCache
	logger  *slog.Logger
}

func NewHandlers(s Scraper, jobManager *jobs.Manager, resultCache *cache.ResultCache, logger *slog.Logger) *Handlers {
	return &Handlers{
		scraper: s,
		jobs:    jobManager,
		cache:   resultCache,
		logger:  logger.With("component", "api"),
	}
}

type ExtractProductRequest struct {
	URL string `json:"url"`
}

// ExtractProduct handles synchronous product metadata extraction.
func (h *Handlers) ExtractProduct(w http.ResponseWriter, r *http.Request) {
	var req ExtractProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	product, err := h.scraper.ScrapeProduct(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, scraper.ErrInvalidURL) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to extract product", "url", req.URL, "error", err)
		h.respondError(w, http.StatusBadGateway, "extraction failed")
		return
	}

	h.respondJSON(w, http.StatusOK, product)
}

type ExtractReviewsRequest struct {
	URL               string `json:"url"`
	Ratings           []int  `json:"ratings,omitempty"`
	MaxPagesPerRating int    `json:"max_pages_per_rating,omitempty"`
	MaxRetriesPerPage int    `json:"max_retries_per_page,omitempty"`
}

func (r *ExtractReviewsRequest) collectConfig(defaults scraper.CollectConfig) scraper.CollectConfig {
	cfg := defaults
	if len(r.Ratings) > 0 {
		cfg.Ratings = r.Ratings
	}
	if r.MaxPagesPerRating > 0 {
		cfg.MaxPagesPerRating = r.MaxPagesPerRating
	}
	if r.MaxRetriesPerPage > 0 {
		cfg.MaxRetriesPerPage = r.MaxRetriesPerPage
	}
	return cfg
}

// ExtractReviews handles synchronous review collection. Recent results
// are served from the LRU cache without touching the browser.
func (h *Handlers) ExtractReviews(w http.ResponseWriter, r *http.Request) {
	var req ExtractReviewsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	asin, err := scraper.ExtractASIN(req.URL)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.cache != nil {
		if cached, ok := h.cache.Get(asin); ok {
			h.logger.Debug("serving cached result", "asin", asin)
			h.respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	result, err := h.scraper.ScrapeReviews(r.Context(), req.URL, req.collectConfig(scraper.DefaultCollectConfig()))
	if err != nil {
		h.logger.Error("failed to extract reviews", "url", req.URL, "error", err)
		// The result still carries the partial data; return it with
		// the error noted instead of dropping it.
		if result != nil {
			h.respondJSON(w, http.StatusOK, result)
			return
		}
		h.respondError(w, http.StatusBadGateway, "extraction failed")
		return
	}

	if h.cache != nil {
		h.cache.Put(asin, result)
	}

	h.respondJSON(w, http.StatusOK, result)
}

type CreateJobRequest struct {
	URL               string `json:"url"`
	Ratings           []int  `json:"ratings,omitempty"`
	MaxPagesPerRating int    `json:"max_pages_per_rating,omitempty"`
	MaxRetriesPerPage int    `json:"max_retries_per_page,omitempty"`
}

type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// CreateJob queues a persistent scrape job for the background worker.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	cfg := (&ExtractReviewsRequest{
		Ratings:           req.Ratings,
		MaxPagesPerRating: req.MaxPagesPerRating,
		MaxRetriesPerPage: req.MaxRetriesPerPage,
	}).collectConfig(scraper.DefaultCollectConfig())

	job, err := h.jobs.CreateJob(r.Context(), req.URL, cfg)
	if err != nil {
		if errors.Is(err, scraper.ErrInvalidURL) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			h.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to get job", "id", jobID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, jobs)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
