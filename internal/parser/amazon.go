package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/amalyzedev/amazon-review-scraper/internal/models"
)

var (
	numberPattern = regexp.MustCompile(`([\d,]+(?:\.\d+)?)`)
	ratingPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

var priceSelectors = []string{
	"#corePrice_feature_div .a-price-whole",
	".a-price .a-offscreen",
	"span.a-price span[aria-hidden='true']",
}

var brandSelectors = []string{
	"#bylineInfo",
	"#bylineInfo_feature_div a",
	"a#bylineInfo",
}

var currencySymbols = map[string]string{
	"₹": "INR",
	"$": "USD",
	"£": "GBP",
	"€": "EUR",
}

// AmazonParser holds every site-specific selector. A layout change on
// the site means editing this package and nothing else.
type AmazonParser struct{}

func NewAmazonParser() *AmazonParser {
	return &AmazonParser{}
}

// ParseProduct extracts a ProductInfo field by field. Each field tries
// its primary selector then fallbacks; a field that resolves to nothing
// stays at its zero value rather than aborting the parse.
func (p *AmazonParser) ParseProduct(html string) (*models.ProductInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if isBlockPage(doc) {
		return nil, fmt.Errorf("blocked or login-walled: %w", ErrUnrecognizedPage)
	}

	title := strings.TrimSpace(doc.Find("#productTitle").Text())
	if title == "" && doc.Find("#dp-container, #ppd, #centerCol").Length() == 0 {
		return nil, fmt.Errorf("no product markers found: %w", ErrUnrecognizedPage)
	}

	info := &models.ProductInfo{
		Title:     title,
		Brand:     p.extractBrand(doc),
		Price:     p.extractPrice(doc),
		Rating:    p.extractRatingSummary(doc),
		Features:  p.extractFeatures(doc),
		ScrapedAt: time.Now(),
	}

	return info, nil
}

func (p *AmazonParser) extractBrand(doc *goquery.Document) string {
	for _, selector := range brandSelectors {
		brand := strings.TrimSpace(doc.Find(selector).First().Text())
		if brand == "" {
			continue
		}
		brand = strings.TrimPrefix(brand, "Brand: ")
		brand = strings.TrimPrefix(brand, "Visit the ")
		brand = strings.TrimSuffix(brand, " Store")
		return strings.TrimSpace(brand)
	}
	return ""
}

func (p *AmazonParser) extractPrice(doc *goquery.Document) *models.Price {
	for _, selector := range priceSelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text == "" {
			continue
		}
		if price := parsePriceText(text); price != nil {
			return price
		}
	}
	return nil
}

func parsePriceText(text string) *models.Price {
	currency := ""
	for symbol, code := range currencySymbols {
		if strings.Contains(text, symbol) {
			currency = code
			break
		}
	}

	matches := numberPattern.FindStringSubmatch(text)
	if len(matches) < 2 {
		return nil
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(matches[1], ",", ""), 64)
	if err != nil || amount <= 0 {
		return nil
	}

	return &models.Price{Amount: amount, Currency: currency}
}

func (p *AmazonParser) extractRatingSummary(doc *goquery.Document) models.RatingSummary {
	summary := models.RatingSummary{}

	// "4.2 out of 5 stars"
	ratingText := strings.TrimSpace(doc.Find("span.a-icon-alt").First().Text())
	if ratingText == "" {
		ratingText = strings.TrimSpace(doc.Find(".a-size-medium.a-color-base").First().Text())
	}
	if matches := ratingPattern.FindStringSubmatch(ratingText); len(matches) > 1 {
		summary.Average, _ = strconv.ParseFloat(matches[1], 64)
	}

	// "1,234 ratings"
	countText := strings.TrimSpace(doc.Find("#acrCustomerReviewText").First().Text())
	if matches := numberPattern.FindStringSubmatch(countText); len(matches) > 1 {
		summary.Count, _ = strconv.Atoi(strings.ReplaceAll(matches[1], ",", ""))
	}

	return summary
}

func (p *AmazonParser) extractFeatures(doc *goquery.Document) []string {
	var features []string
	doc.Find("#feature-bullets .a-list-item").Each(func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			features = append(features, text)
		}
	})
	return features
}

// isBlockPage recognizes the login wall and captcha interstitials the
// site serves when it has flagged the session.
func isBlockPage(doc *goquery.Document) bool {
	if doc.Find("#captchacharacters").Length() > 0 {
		return true
	}
	text := doc.Text()
	return strings.Contains(text, "Sign in to continue") ||
		strings.Contains(text, "Type the characters you see in this image")
}
