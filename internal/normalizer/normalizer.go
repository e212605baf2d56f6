package normalizer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"joaogchv/promocollector/internal/scraper"
	"joaogchv/promocollector/logger"
)

// Promotion is the canonical, durable form of a collected listing
type Promotion struct {
	Marketplace     string    `json:"marketplace"`
	ItemID          string    `json:"item_id"`
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Price           float64   `json:"price"`
	OriginalPrice   *float64  `json:"original_price,omitempty"`
	DiscountPercent *float64  `json:"discount_percent,omitempty"`
	Seller          string    `json:"seller"`
	ImageURL        string    `json:"image_url,omitempty"`
	Source          string    `json:"source"`
	DedupeKey       string    `json:"dedupe_key"`
	ExecutionID     string    `json:"execution_id"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Normalizer converts raw listings into canonical promotions, rejecting
// records that cannot be made valid
type Normalizer struct {
	idPattern *regexp.Regexp
	log       *logger.Logger
}

// New creates a normalizer. idPattern matches the marketplace item
// identifier inside a detail URL, e.g. `MLB\d+`.
func New(idPattern string) *Normalizer {
	return &Normalizer{
		idPattern: regexp.MustCompile(idPattern),
		log:       logger.ForPipeline(),
	}
}

// NormalizePrice parses a localized currency string such as "R$ 1.250,50"
// into 1250.50. Returns false when the text does not parse.
func NormalizePrice(priceText string) (float64, bool) {
	if priceText == "" {
		return 0, false
	}

	// Strip currency symbol and whitespace, drop thousands separators,
	// then turn the decimal comma into a decimal point
	clean := strings.TrimSpace(strings.ReplaceAll(priceText, "R$", ""))
	clean = strings.ReplaceAll(clean, ".", "")
	clean = strings.ReplaceAll(clean, ",", ".")

	value, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ExtractDiscountPercent computes the discount percentage rounded to two
// decimals. Either price being absent (zero) or non-positive yields false:
// "no discount known" is distinct from a literal zero-percent discount.
func ExtractDiscountPercent(originalPrice, currentPrice float64) (float64, bool) {
	if originalPrice <= 0 || currentPrice <= 0 {
		return 0, false
	}
	discount := ((originalPrice - currentPrice) / originalPrice) * 100
	return math.Round(discount*100) / 100, true
}

// ExtractItemID pulls the marketplace item identifier out of a detail URL,
// or "" when the URL carries none
func (n *Normalizer) ExtractItemID(url string) string {
	return n.idPattern.FindString(url)
}

// DedupeKey derives the uniqueness key for one item-price snapshot. The
// price is canonicalized to its shortest decimal form so 100.5 and 100.50
// produce the same key.
func DedupeKey(marketplace, itemID string, price float64) string {
	return marketplace + "#" + itemID + "#" + strconv.FormatFloat(price, 'f', -1, 64)
}

// Normalize converts one raw listing, or returns nil when the record is
// structurally invalid. Rejection is per-record and never fatal.
func (n *Normalizer) Normalize(raw scraper.RawListing, executionID string, collectedAt time.Time) *Promotion {
	price, ok := NormalizePrice(raw.RawPriceText)
	if !ok || price <= 0 {
		n.log.Debug().Str("title", raw.Title).Str("raw_price", raw.RawPriceText).Msg("Rejected listing with unparseable or non-positive price")
		return nil
	}

	itemID := n.ExtractItemID(raw.DetailURL)
	if raw.Marketplace == "" || itemID == "" || raw.DetailURL == "" || raw.Title == "" {
		n.log.Debug().Str("url", raw.DetailURL).Msg("Rejected listing with missing required field")
		return nil
	}

	var originalPrice *float64
	if original, ok := NormalizePrice(raw.RawOriginalPriceText); ok && original > 0 {
		originalPrice = &original
	}

	var discountPercent *float64
	if originalPrice != nil {
		if discount, ok := ExtractDiscountPercent(*originalPrice, price); ok {
			discountPercent = &discount
		}
	}

	seller := raw.SellerName
	if seller == "" {
		seller = "N/A"
	}

	return &Promotion{
		Marketplace:     raw.Marketplace,
		ItemID:          itemID,
		URL:             raw.DetailURL,
		Title:           raw.Title,
		Price:           price,
		OriginalPrice:   originalPrice,
		DiscountPercent: discountPercent,
		Seller:          seller,
		ImageURL:        raw.ImageURL,
		Source:          raw.SourceTag,
		DedupeKey:       DedupeKey(raw.Marketplace, itemID, price),
		ExecutionID:     executionID,
		CollectedAt:     collectedAt,
	}
}

// NormalizeAll converts a batch, silently dropping rejected records
func (n *Normalizer) NormalizeAll(raws []scraper.RawListing, executionID string, collectedAt time.Time) []Promotion {
	normalized := make([]Promotion, 0, len(raws))
	for _, raw := range raws {
		if p := n.Normalize(raw, executionID, collectedAt); p != nil {
			normalized = append(normalized, *p)
		}
	}
	n.log.Info().Int("accepted", len(normalized)).Int("collected", len(raws)).Msg("Normalized batch")
	return normalized
}
