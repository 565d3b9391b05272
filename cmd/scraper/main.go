package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/amalyzedev/amazon-review-scraper/internal/browser"
	"github.com/amalyzedev/amazon-review-scraper/internal/config"
	"github.com/amalyzedev/amazon-review-scraper/internal/models"
	"github.com/amalyzedev/amazon-review-scraper/internal/pacing"
	"github.com/amalyzedev/amazon-review-scraper/internal/parser"
	"github.com/amalyzedev/amazon-review-scraper/internal/queue"
	"github.com/amalyzedev/amazon-review-scraper/internal/scraper"
	"github.com/amalyzedev/amazon-review-scraper/pkg/logger"
)

func main() {
	var (
		urls     = flag.String("urls", "", "comma-separated product URLs to scrape")
		ratings  = flag.String("ratings", "5,4,3,2,1", "star ratings to collect, or 'all' for one unfiltered pass")
		maxPages = flag.Int("pages", 0, "max pages per rating (0 = config default)")
		retries  = flag.Int("retries", -1, "max retries per page (-1 = config default)")
		format   = flag.String("format", "json", "output format: json or csv")
		outDir   = flag.String("out", ".", "output directory")
		headless = flag.Bool("headless", true, "run the browser headless")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, "text")

	if *urls == "" {
		fmt.Fprintln(os.Stderr, "usage: scraper -urls <product-url>[,<product-url>...]")
		os.Exit(2)
	}

	collectCfg := scraper.CollectConfig{
		Ratings:           parseRatings(*ratings),
		MaxPagesPerRating: cfg.Scraper.MaxPagesPerRating,
		MaxRetriesPerPage: cfg.Scraper.MaxRetriesPerPage,
	}
	if *maxPages > 0 {
		collectCfg.MaxPagesPerRating = *maxPages
	}
	if *retries >= 0 {
		collectCfg.MaxRetriesPerPage = *retries
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	// Tasks go through the queue so interleaved invocations and future
	// prioritization reuse one code path.
	tasks := queue.NewInMemoryQueue()
	for _, rawURL := range strings.Split(*urls, ",") {
		rawURL = strings.TrimSpace(rawURL)
		if rawURL == "" {
			continue
		}
		tasks.Push(&queue.Task{
			ID:        uuid.New().String(),
			URL:       rawURL,
			Config:    collectCfg,
			CreatedAt: time.Now(),
		})
	}
	tasks.Close()

	browserOpts := browserOptions(cfg, *headless)

	exitCode := 0
	for {
		task, err := tasks.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || errors.Is(err, context.Canceled) {
				break
			}
			log.Error("failed to pop task", "error", err)
			break
		}

		if err := runTask(ctx, cfg, browserOpts, task, *format, *outDir, log); err != nil {
			log.Error("task failed", "url", task.URL, "error", err)
			exitCode = 1
		}
	}

	os.Exit(exitCode)
}

// runTask scrapes one product URL with its own browser session.
func runTask(ctx context.Context, cfg *config.Config, opts *browser.Options, task *queue.Task, format, outDir string, log *slog.Logger) error {
	session := browser.NewSession(opts)
	if err := session.Open(); err != nil {
		return err
	}
	defer session.Close()

	pacer := pacing.New(pacing.Config{
		MinDelay:   cfg.Pacing.MinDelay,
		MaxDelay:   cfg.Pacing.MaxDelay,
		Identities: identityPool(cfg),
		Strategy:   pacing.Strategy(cfg.Pacing.Strategy),
	})

	amazonParser := parser.NewAmazonParser()
	product := scraper.NewProductScraper(session, amazonParser, log)
	collector := scraper.NewReviewCollector(session, pacer, amazonParser, nil, log)
	service := scraper.NewService(session, pacer, amazonParser, collector, product, log)

	result, err := service.Scrape(ctx, task.URL, task.Config)
	if result == nil {
		return err
	}

	if writeErr := writeResult(result, format, outDir); writeErr != nil {
		return writeErr
	}

	stats := result.Stats()
	log.Info("scrape finished",
		"url", task.URL,
		"reviews", stats.Total,
		"verified_percent", fmt.Sprintf("%.1f", stats.VerifiedPercent),
		"soft_errors", len(result.Errors))

	return err
}

func writeResult(result *models.ScrapeResult, format, outDir string) error {
	base := result.RunID
	if result.Product != nil && result.Product.ASIN != "" {
		base = result.Product.ASIN
	}

	switch format {
	case "csv":
		reviewsPath := filepath.Join(outDir, base+"_reviews.csv")
		f, err := os.Create(reviewsPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", reviewsPath, err)
		}
		defer f.Close()
		if err := models.WriteReviewsCSV(f, result.Reviews); err != nil {
			return err
		}

		if result.Product != nil {
			productPath := filepath.Join(outDir, base+"_product.csv")
			pf, err := os.Create(productPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", productPath, err)
			}
			defer pf.Close()
			if err := models.WriteProductCSV(pf, result.Product); err != nil {
				return err
			}
		}
		return nil
	default:
		path := filepath.Join(outDir, base+".json")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}

func parseRatings(raw string) []int {
	if strings.EqualFold(strings.TrimSpace(raw), "all") {
		return nil
	}
	var ratings []int
	for _, part := range strings.Split(raw, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			ratings = append(ratings, n)
		}
	}
	return ratings
}

func browserOptions(cfg *config.Config, headless bool) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = headless
	opts.Timeout = cfg.Browser.Timeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	return opts
}

func identityPool(cfg *config.Config) []string {
	if len(cfg.Pacing.Identities) > 0 {
		return cfg.Pacing.Identities
	}
	return pacing.DefaultConfig().Identities
}
