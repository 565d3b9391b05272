package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/amalyzedev/amazon-review-scraper/internal/api"
	"github.com/amalyzedev/amazon-review-scraper/internal/browser"
	"github.com/amalyzedev/amazon-review-scraper/internal/cache"
	"github.com/amalyzedev/amazon-review-scraper/internal/config"
	"github.com/amalyzedev/amazon-review-scraper/internal/database"
	"github.com/amalyzedev/amazon-review-scraper/internal/events"
	"github.com/amalyzedev/amazon-review-scraper/internal/jobs"
	"github.com/amalyzedev/amazon-review-scraper/internal/metrics"
	"github.com/amalyzedev/amazon-review-scraper/internal/models"
	"github.com/amalyzedev/amazon-review-scraper/internal/pacing"
	"github.com/amalyzedev/amazon-review-scraper/internal/parser"
	"github.com/amalyzedev/amazon-review-scraper/internal/scraper"
	"github.com/amalyzedev/amazon-review-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.New()
	runs := database.NewRunRepository(db)
	publisher := events.NewPublisher(db, log)

	scrapeRunner := &browserRunner{
		cfg:       cfg,
		metrics:   m,
		runs:      runs,
		publisher: publisher,
		logger:    log,
	}

	jobManager := jobs.NewManager(database.NewJobRepository(db), scrapeRunner, log)
	go jobManager.StartWorker(ctx)

	relay := database.NewRelay(db, rdb, log, database.RelayConfig{Metrics: m})
	go func() {
		if err := relay.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error("relay stopped", "error", err)
		}
	}()

	resultCache := cache.New(cfg.Cache.Size, cfg.Cache.TTL)
	handlers := api.NewHandlers(scrapeRunner, jobManager, resultCache, log)
	router := api.NewRouter(handlers, m)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info("review-api listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// browserRunner builds a fresh browser session per call so concurrent
// requests and jobs never share one.
type browserRunner struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	runs      *database.RunRepository
	publisher *events.Publisher
	logger    *slog.Logger
}

func (r *browserRunner) newSession() (*browser.Session, error) {
	opts := browser.DefaultOptions()
	opts.Headless = r.cfg.Browser.Headless
	opts.Timeout = r.cfg.Browser.Timeout
	opts.ViewportWidth = r.cfg.Browser.ViewportWidth
	opts.ViewportHeight = r.cfg.Browser.ViewportHeight
	opts.AcceptLanguage = r.cfg.Browser.AcceptLanguage
	opts.TimezoneID = r.cfg.Browser.TimezoneID
	opts.Locale = r.cfg.Browser.Locale
	opts.ProxyServer = r.cfg.Browser.ProxyServer

	session := browser.NewSession(opts)
	if err := session.Open(); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *browserRunner) newPacer() *pacing.Policy {
	identities := r.cfg.Pacing.Identities
	if len(identities) == 0 {
		identities = pacing.DefaultConfig().Identities
	}
	return pacing.New(pacing.Config{
		MinDelay:   r.cfg.Pacing.MinDelay,
		MaxDelay:   r.cfg.Pacing.MaxDelay,
		Identities: identities,
		Strategy:   pacing.Strategy(r.cfg.Pacing.Strategy),
	})
}

// Run implements jobs.Runner: the full pipeline with persistence and
// event publication.
func (r *browserRunner) Run(ctx context.Context, productURL string, cfg scraper.CollectConfig) (*models.ScrapeResult, error) {
	session, err := r.newSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	pacer := r.newPacer()
	amazonParser := parser.NewAmazonParser()
	product := scraper.NewProductScraper(session, amazonParser, r.logger)
	collector := scraper.NewReviewCollector(session, pacer, amazonParser, r.metrics, r.logger)
	service := scraper.NewService(session, pacer, amazonParser, collector, product, r.logger,
		scraper.WithStore(r.runs), scraper.WithPublisher(r.publisher))

	return service.Scrape(ctx, productURL, cfg)
}

// ScrapeProduct implements the synchronous product endpoint: one
// navigation, no review collection, nothing persisted.
func (r *browserRunner) ScrapeProduct(ctx context.Context, productURL string) (*models.ProductInfo, error) {
	session, err := r.newSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	product := scraper.NewProductScraper(session, parser.NewAmazonParser(), r.logger)
	return product.Scrape(ctx, productURL)
}

// ScrapeReviews implements the synchronous reviews endpoint.
func (r *browserRunner) ScrapeReviews(ctx context.Context, productURL string, cfg scraper.CollectConfig) (*models.ScrapeResult, error) {
	return r.Run(ctx, productURL, cfg)
}
