package models

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Tabular serialization is the only contract the analysis, charting and
// export collaborators depend on: one row per review plus a single-row
// product summary.

var reviewHeader = []string{
	"reviewer_id", "title", "body", "rating", "verified",
	"date", "helpful_votes", "collected_at",
}

var productHeader = []string{
	"asin", "url", "title", "brand", "price", "currency",
	"rating_average", "rating_count", "features",
}

func (r *ReviewRecord) row() []string {
	date := ""
	if r.Date != nil {
		date = r.Date.Format("2006-01-02")
	}
	votes := ""
	if r.HelpfulVotes != nil {
		votes = strconv.Itoa(*r.HelpfulVotes)
	}
	return []string{
		r.ReviewerID,
		r.Title,
		r.Body,
		strconv.Itoa(r.Rating),
		strconv.FormatBool(r.Verified),
		date,
		votes,
		r.CollectedAt.Format("2006-01-02 15:04:05"),
	}
}

func (p *ProductInfo) row() []string {
	price, currency := "", ""
	if p.Price != nil {
		price = strconv.FormatFloat(p.Price.Amount, 'f', 2, 64)
		currency = p.Price.Currency
	}
	return []string{
		p.ASIN,
		p.URL,
		p.Title,
		p.Brand,
		price,
		currency,
		strconv.FormatFloat(p.Rating.Average, 'f', 1, 64),
		strconv.Itoa(p.Rating.Count),
		strings.Join(p.Features, " | "),
	}
}

// WriteReviewsCSV writes the review sequence in collection order.
func WriteReviewsCSV(w io.Writer, reviews []ReviewRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(reviewHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range reviews {
		if err := cw.Write(reviews[i].row()); err != nil {
			return fmt.Errorf("failed to write review row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteProductCSV writes the single-row product summary.
func WriteProductCSV(w io.Writer, product *ProductInfo) error {
	if product == nil {
		return fmt.Errorf("no product to write")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(productHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.Write(product.row()); err != nil {
		return fmt.Errorf("failed to write product row: %w", err)
	}

	cw.Flush()
	return cw.Error()
}
