package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/amalyzedev/amazon-review-scraper/internal/models"
)

// ResultCache keeps recent scrape results for the synchronous API path,
// keyed by ASIN, so a repeated request within the TTL skips the browser
// entirely.
type ResultCache struct {
	lru *expirable.LRU[string, *models.ScrapeResult]
}

func New(size int, ttl time.Duration) *ResultCache {
	return &ResultCache{
		lru: expirable.NewLRU[string, *models.ScrapeResult](size, nil, ttl),
	}
}

func (c *ResultCache) Get(asin string) (*models.ScrapeResult, bool) {
	return c.lru.Get(asin)
}

func (c *ResultCache) Put(asin string, result *models.ScrapeResult) {
	c.lru.Add(asin, result)
}

func (c *ResultCache) Len() int {
	return c.lru.Len()
}
