package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for the scraping core. All
// methods are nil-receiver safe so wiring metrics stays optional.
type Metrics struct {
	Registry           *prometheus.Registry
	PagesFetchedTotal  prometheus.Counter
	ReviewsTotal       prometheus.Counter
	RetriesTotal       prometheus.Counter
	SoftErrorsTotal    *prometheus.CounterVec
	NavigationDuration prometheus.Histogram
	OutboxBacklog      prometheus.Gauge
	OutboxDeadLetters  prometheus.Gauge
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scraper_pages_fetched_total",
		Help: "Total review pages fetched, retries included.",
	})
	reviews := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scraper_reviews_collected_total",
		Help: "Total novel reviews appended to results.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scraper_retries_total",
		Help: "Total page retry attempts.",
	})
	softErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_soft_errors_total",
		Help: "Total soft errors recorded, by stage.",
	}, []string{"stage"})
	navDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_navigation_duration_seconds",
		Help:    "Browser navigation latency.",
		Buckets: prometheus.DefBuckets,
	})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scraper_outbox_backlog",
		Help: "Outbox events awaiting publication, retries included.",
	})
	deadLetters := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scraper_outbox_dead_letters",
		Help: "Outbox events that exhausted their retries.",
	})

	registry.MustRegister(pages, reviews, retries, softErrors, navDuration, backlog, deadLetters)

	return &Metrics{
		Registry:           registry,
		PagesFetchedTotal:  pages,
		ReviewsTotal:       reviews,
		RetriesTotal:       retries,
		SoftErrorsTotal:    softErrors,
		NavigationDuration: navDuration,
		OutboxBacklog:      backlog,
		OutboxDeadLetters:  deadLetters,
	}
}

func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesFetchedTotal.Inc()
}

func (m *Metrics) AddReviews(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReviewsTotal.Add(float64(n))
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) IncSoftError(stage string) {
	if m == nil {
		return
	}
	m.SoftErrorsTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) SetOutboxDepth(backlog, deadLetters int64) {
	if m == nil {
		return
	}
	m.OutboxBacklog.Set(float64(backlog))
	m.OutboxDeadLetters.Set(float64(deadLetters))
}

func (m *Metrics) ObserveNavigation(d time.Duration) {
	if m == nil {
		return
	}
	m.NavigationDuration.Observe(d.Seconds())
}
