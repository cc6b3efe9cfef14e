package catalogapi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/medicompare/backend/internal/domain"
)

// Response "source" values that mean the remote catalog is degraded
const (
	sourceSample = "sample"
	sourceError  = "error"
)

// priceInfo is one remote price. Promotional fields are ignored.
type priceInfo struct {
	Amount   *float64 `json:"amount"`
	Currency string   `json:"currency"`
}

type analysisDTO struct {
	Name             string                          `json:"name"`
	Category         string                          `json:"category"`
	AlternativeNames []string                        `json:"alternative_names"`
	Prices           map[string]map[string]priceInfo `json:"prices"`
	Found            *bool                           `json:"found,omitempty"`
	Score            *float64                        `json:"score,omitempty"`
}

type searchResponse struct {
	Results []analysisDTO `json:"results"`
	Total   int           `json:"total"`
	Source  string        `json:"source"`
	Error   string        `json:"error"`
}

type compareRequest struct {
	AnalysisNames []string `json:"analysis_names"`
}

type compareResponse struct {
	Results []analysisDTO `json:"results"`
	Source  string        `json:"source"`
	Error   string        `json:"error"`
}

func (r searchResponse) sourceErr() error {
	return checkSource(r.Source, r.Error)
}

func (r compareResponse) sourceErr() error {
	return checkSource(r.Source, r.Error)
}

// checkSource rejects placeholder and error payloads the API returns with status 200
func checkSource(source, msg string) error {
	switch source {
	case sourceError:
		return fmt.Errorf("%w: remote catalog error: %s", domain.ErrLookupFailed, msg)
	case sourceSample:
		return fmt.Errorf("%w: remote catalog has no database", domain.ErrLookupFailed)
	}
	return nil
}

// MapToCandidates converts remote search results to ranked candidates.
// The remote API does not always score results, so unscored ones get 100 for an
// exact name and 50 otherwise. Results are ordered by descending score, keeping the
// API order within a score.
func MapToCandidates(results []analysisDTO, query string) []domain.Candidate {
	candidates := make([]domain.Candidate, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Name) == "" {
			continue
		}
		score := 50.0
		switch {
		case r.Score != nil:
			score = *r.Score
		case strings.EqualFold(strings.TrimSpace(r.Name), strings.TrimSpace(query)):
			score = 100
		}
		candidates = append(candidates, domain.Candidate{
			Name:             r.Name,
			Category:         r.Category,
			AlternativeNames: append([]string(nil), r.AlternativeNames...),
			Score:            score,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// MapToCatalogEntry converts a remote analysis into a catalog entry.
// Tiers the domain does not know (premium_standard) and quotes without an amount
// or with a negative amount are dropped.
func MapToCatalogEntry(a analysisDTO) domain.CatalogEntry {
	entry := domain.CatalogEntry{
		Name:     a.Name,
		Category: a.Category,
		Prices:   make(map[string]domain.PriceSheet, len(a.Prices)),
	}
	if len(a.AlternativeNames) > 0 {
		entry.AlternativeNames = append([]string(nil), a.AlternativeNames...)
	}

	for provider, tiers := range a.Prices {
		var sheet domain.PriceSheet
		for tierName, info := range tiers {
			tier, err := domain.ParsePlanTier(tierName)
			if err != nil || info.Amount == nil {
				continue
			}
			currency := info.Currency
			if currency == "" {
				currency = "RON"
			}
			_ = sheet.SetQuote(tier, domain.PriceQuote{Amount: *info.Amount, Currency: currency})
		}
		if !sheet.Empty() {
			entry.Prices[provider] = sheet
		}
	}
	return entry
}
