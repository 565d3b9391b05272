package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amalyzedev/amazon-review-scraper/internal/models"
)

func TestGetPut(t *testing.T) {
	c := New(4, time.Minute)

	_, ok := c.Get("B08N5WRWNW")
	assert.False(t, ok)

	result := &models.ScrapeResult{RunID: "run-1"}
	c.Put("B08N5WRWNW", result)

	got, ok := c.Get("B08N5WRWNW")
	require.True(t, ok)
	assert.Same(t, result, got)
	assert.Equal(t, 1, c.Len())
}

func TestEviction(t *testing.T) {
	c := New(2, time.Minute)

	c.Put("a", &models.ScrapeResult{RunID: "1"})
	c.Put("b", &models.ScrapeResult{RunID: "2"})
	c.Put("c", &models.ScrapeResult{RunID: "3"})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
}

func TestExpiry(t *testing.T) {
	c := New(4, 30*time.Millisecond)

	c.Put("B08N5WRWNW", &models.ScrapeResult{RunID: "run-1"})
	time.Sleep(80 * time.Millisecond)

	_, ok := c.Get("B08N5WRWNW")
	assert.False(t, ok)
}
