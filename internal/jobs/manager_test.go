package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amalyzedev/amazon-review-scraper/internal/scraper"
)

func TestCreateJobRejectsInvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(nil, nil, logger)

	tests := []struct {
		name string
		url  string
	}{
		{"non-amazon host", "https://example.com/dp/B08N5WRWNW"},
		{"no product path", "https://www.amazon.in/gp/bestsellers"},
		{"garbage", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := m.CreateJob(context.Background(), tt.url, scraper.DefaultCollectConfig())
			assert.Nil(t, job)
			assert.ErrorIs(t, err, scraper.ErrInvalidURL)
		})
	}
}
