package domain

import (
	"fmt"
	"strings"
)

// PlanTier identifies a pricing variant offered by a provider for the same test
type PlanTier string

const (
	TierNormal       PlanTier = "normal"
	TierPremium      PlanTier = "premium"
	TierSubscription PlanTier = "subscription"
)

// PlanTiers lists every tier in display order
var PlanTiers = []PlanTier{TierNormal, TierPremium, TierSubscription}

// ParsePlanTier converts a string into a known PlanTier
func ParsePlanTier(s string) (PlanTier, error) {
	for _, t := range PlanTiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlanTier, s)
}

// PriceQuote is a single offered price. Amount is never negative.
type PriceQuote struct {
	Amount   float64 `json:"amount" yaml:"amount"`
	Currency string  `json:"currency" yaml:"currency"`
}

// PriceSheet holds the optional quotes of one provider, keyed by plan tier.
// A nil quote means the tier is not offered, which is distinct from a zero price.
type PriceSheet struct {
	Normal       *PriceQuote `json:"normal,omitempty" yaml:"normal,omitempty"`
	Premium      *PriceQuote `json:"premium,omitempty" yaml:"premium,omitempty"`
	Subscription *PriceQuote `json:"subscription,omitempty" yaml:"subscription,omitempty"`
}

// Quote returns the quote for a tier and whether the tier is offered
func (p PriceSheet) Quote(tier PlanTier) (PriceQuote, bool) {
	var q *PriceQuote
	switch tier {
	case TierNormal:
		q = p.Normal
	case TierPremium:
		q = p.Premium
	case TierSubscription:
		q = p.Subscription
	}
	if q == nil {
		return PriceQuote{}, false
	}
	return *q, true
}

// SetQuote stores a quote for the given tier
func (p *PriceSheet) SetQuote(tier PlanTier, q PriceQuote) error {
	if q.Amount < 0 {
		return fmt.Errorf("%w: negative amount %.2f", ErrInvalidInput, q.Amount)
	}
	switch tier {
	case TierNormal:
		p.Normal = &q
	case TierPremium:
		p.Premium = &q
	case TierSubscription:
		p.Subscription = &q
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPlanTier, tier)
	}
	return nil
}

// Empty reports whether no tier is offered
func (p PriceSheet) Empty() bool {
	return p.Normal == nil && p.Premium == nil && p.Subscription == nil
}

func (p PriceSheet) clone() PriceSheet {
	var out PriceSheet
	for _, tier := range PlanTiers {
		if q, ok := p.Quote(tier); ok {
			_ = out.SetQuote(tier, q)
		}
	}
	return out
}

// CatalogEntry is a canonical medical test as stored by the Candidate Source
type CatalogEntry struct {
	Name             string                `json:"name" yaml:"name"`
	Category         string                `json:"category,omitempty" yaml:"category,omitempty"`
	AlternativeNames []string              `json:"alternativeNames,omitempty" yaml:"alternative_names,omitempty"`
	Prices           map[string]PriceSheet `json:"prices" yaml:"prices"`
}

// Clone returns a deep copy so that callers cannot mutate shared price data
func (e CatalogEntry) Clone() CatalogEntry {
	out := CatalogEntry{
		Name:     e.Name,
		Category: e.Category,
	}
	if len(e.AlternativeNames) > 0 {
		out.AlternativeNames = append([]string(nil), e.AlternativeNames...)
	}
	out.Prices = make(map[string]PriceSheet, len(e.Prices))
	for provider, sheet := range e.Prices {
		out.Prices[provider] = sheet.clone()
	}
	return out
}

// Candidate is one ranked search result returned by the Candidate Source
type Candidate struct {
	Name             string   `json:"name"`
	Category         string   `json:"category,omitempty"`
	AlternativeNames []string `json:"alternativeNames,omitempty"`
	Score            float64  `json:"score"`
}

// Validate checks that the entry is named and carries no negative amounts
func (e CatalogEntry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: catalog entry without a name", ErrInvalidInput)
	}
	for provider, sheet := range e.Prices {
		for _, tier := range PlanTiers {
			if q, ok := sheet.Quote(tier); ok && q.Amount < 0 {
				return fmt.Errorf("%w: %s %s %s has negative amount %.2f", ErrInvalidInput, e.Name, provider, tier, q.Amount)
			}
		}
	}
	return nil
}

// CategoryCount is the number of catalog entries in one category
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}
