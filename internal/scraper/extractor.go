package scraper

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"joaogchv/promocollector/logger"
)

// Extractor turns a page body into raw listing candidates for one
// marketplace. A candidate missing a title, a detail link, or a price text
// is dropped; everything else propagates for the normalizer to judge.
type Extractor struct {
	marketplace    Marketplace
	itemsPerSource int
}

// NewExtractor creates an extractor capped at itemsPerSource candidates
// per page
func NewExtractor(marketplace Marketplace, itemsPerSource int) *Extractor {
	return &Extractor{
		marketplace:    marketplace,
		itemsPerSource: itemsPerSource,
	}
}

// Extract parses the page body and returns the raw listings it can resolve.
// A body that fails to parse or matches no layout yields an empty slice.
func (e *Extractor) Extract(body []byte, sourceTag string) []RawListing {
	log := logger.ForSource(sourceTag)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to parse page markup")
		return nil
	}

	// First selector in the cascade with any matches wins
	var selections *goquery.Selection
	var selectors CandidateSelectors
	for _, cs := range e.marketplace.Cascade {
		found := doc.Find(cs.Candidate)
		if found.Length() > 0 {
			selections = found
			selectors = cs
			break
		}
	}
	if selections == nil {
		log.Debug().Msg("No known layout matched the page")
		return nil
	}

	var listings []RawListing
	selections.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(listings) >= e.itemsPerSource {
			return false
		}
		if listing := e.extractCandidate(s, selectors, sourceTag); listing != nil {
			listings = append(listings, *listing)
		}
		return true
	})

	log.Debug().Int("count", len(listings)).Msg("Extracted raw listings")
	return listings
}

// extractCandidate resolves one candidate element, or nil if a required
// field is missing
func (e *Extractor) extractCandidate(s *goquery.Selection, selectors CandidateSelectors, sourceTag string) *RawListing {
	linkSel := s.Find(selectors.TitleLink).First()
	if linkSel.Length() == 0 {
		linkSel = s.Find("a").First()
	}
	if linkSel.Length() == 0 {
		return nil
	}

	title := strings.TrimSpace(linkSel.Text())
	detailURL, _ := linkSel.Attr("href")
	detailURL = strings.TrimSpace(detailURL)
	if title == "" || detailURL == "" {
		return nil
	}

	priceText := strings.TrimSpace(s.Find(selectors.Price).First().Text())
	if priceText == "" {
		return nil
	}

	originalPriceText := strings.TrimSpace(s.Find(selectors.OriginalPrice).First().Text())

	var imageURL string
	imgSel := s.Find(selectors.Image).First()
	if src, exists := imgSel.Attr("src"); exists && src != "" {
		imageURL = src
	} else if src, exists := imgSel.Attr("data-src"); exists {
		imageURL = src
	}

	return &RawListing{
		Marketplace:          e.marketplace.Name,
		SourceTag:            sourceTag,
		Title:                title,
		DetailURL:            detailURL,
		RawPriceText:         priceText,
		RawOriginalPriceText: originalPriceText,
		SellerName:           e.marketplace.DefaultSeller,
		ImageURL:             imageURL,
	}
}
