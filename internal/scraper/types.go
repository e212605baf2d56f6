package scraper

// RawListing is a candidate promotion as extracted from a page, before any
// normalization. Only DetailURL is guaranteed to be present.
type RawListing struct {
	Marketplace          string
	SourceTag            string
	Title                string
	DetailURL            string
	RawPriceText         string
	RawOriginalPriceText string
	SellerName           string
	ImageURL             string
}

// CandidateSelectors describes how to pull listing fields out of one page
// layout. A marketplace carries an ordered cascade of these, tried in
// sequence until one matches (upstream markup drifts without versioning).
type CandidateSelectors struct {
	Candidate     string
	TitleLink     string
	Price         string
	OriginalPrice string
	Image         string
}

// Marketplace bundles the extraction rules for one upstream marketplace
type Marketplace struct {
	Name          string
	DefaultSeller string
	IDPattern     string
	Cascade       []CandidateSelectors
}

// MercadoLivre returns the extraction rules for the Mercado Livre offers
// pages. The cascade covers the 2024/2025 offers layout plus two legacy ones.
func MercadoLivre() Marketplace {
	return Marketplace{
		Name:          "mercadolivre",
		DefaultSeller: "Mercado Livre",
		IDPattern:     `MLB\d+`,
		Cascade: []CandidateSelectors{
			{
				Candidate:     ".poly-card",
				TitleLink:     "a.poly-component__title",
				Price:         ".poly-price__current .andes-money-amount__fraction",
				OriginalPrice: ".poly-price__comparison .andes-money-amount__fraction",
				Image:         "img",
			},
			{
				Candidate:     ".promotion-item",
				TitleLink:     "a",
				Price:         ".promotion-item__price .andes-money-amount__fraction",
				OriginalPrice: ".promotion-item__oldprice .andes-money-amount__fraction",
				Image:         "img",
			},
			{
				Candidate:     ".ui-search-result",
				TitleLink:     "a",
				Price:         ".andes-money-amount__fraction",
				OriginalPrice: ".ui-search-price__original-value .andes-money-amount__fraction",
				Image:         "img",
			},
		},
	}
}
