package models

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// ProductInfo is the structured summary of one product page.
// Immutable once built by the parser.
type ProductInfo struct {
	ASIN      string        `json:"asin"`
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	Brand     string        `json:"brand,omitempty"`
	Price     *Price        `json:"price,omitempty"`
	Rating    RatingSummary `json:"rating"`
	Features  []string      `json:"features,omitempty"`
	ScrapedAt time.Time     `json:"scraped_at"`
}

type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type RatingSummary struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// ReviewRecord is one extracted customer review. Rating 0 means the page
// did not expose a rating and the active star filter could not supply one.
type ReviewRecord struct {
	ReviewerID   string     `json:"reviewer_id"`
	Title        string     `json:"title,omitempty"`
	Body         string     `json:"body"`
	Rating       int        `json:"rating"`
	Verified     bool       `json:"verified"`
	Date         *time.Time `json:"date,omitempty"`
	HelpfulVotes *int       `json:"helpful_votes,omitempty"`
	CollectedAt  time.Time  `json:"collected_at"`
}

// ReviewKey identifies a review across rating filters and overlapping
// pages. The same review can surface twice when pagination reorders or
// when it is visible under both a star filter and the unfiltered view.
type ReviewKey struct {
	ReviewerID string
	Date       string
	BodyHash   uint64
}

func (r *ReviewRecord) Key() ReviewKey {
	date := ""
	if r.Date != nil {
		date = r.Date.Format("2006-01-02")
	}
	return ReviewKey{
		ReviewerID: r.ReviewerID,
		Date:       date,
		BodyHash:   xxhash.Sum64String(r.Body),
	}
}

// ScrapeError is a soft failure recorded during collection. It never
// aborts a run on its own.
type ScrapeError struct {
	Stage   string    `json:"stage"`
	Rating  int       `json:"rating,omitempty"`
	Page    int       `json:"page,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ScrapeResult is the full output of one run: product summary, reviews
// in first-seen order, and every soft error encountered. Built once,
// owned by the caller.
type ScrapeResult struct {
	RunID      string        `json:"run_id"`
	Product    *ProductInfo  `json:"product,omitempty"`
	Reviews    []ReviewRecord `json:"reviews"`
	Errors     []ScrapeError `json:"errors,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Stats summarizes a collected result for events and exports.
type Stats struct {
	Total           int         `json:"total"`
	ByStar          map[int]int `json:"by_star"`
	Verified        int         `json:"verified"`
	VerifiedPercent float64     `json:"verified_percent"`
	MeanRating      float64     `json:"mean_rating"`
}

func (r *ScrapeResult) Stats() Stats {
	stats := Stats{ByStar: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	stats.Total = len(r.Reviews)

	ratingSum := 0
	rated := 0
	for _, rev := range r.Reviews {
		if rev.Rating >= 1 && rev.Rating <= 5 {
			stats.ByStar[rev.Rating]++
			ratingSum += rev.Rating
			rated++
		}
		if rev.Verified {
			stats.Verified++
		}
	}

	if stats.Total > 0 {
		stats.VerifiedPercent = float64(stats.Verified) / float64(stats.Total) * 100
	}
	if rated > 0 {
		stats.MeanRating = float64(ratingSum) / float64(rated)
	}

	return stats
}
