package domain

// DetectedItem is one raw string produced by OCR or typed search.
// ID is unique within a session and never reused.
type DetectedItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ItemState tracks where a detected item is in its resolution lifecycle
type ItemState string

const (
	StateUnknown   ItemState = ""
	StatePending   ItemState = "pending"
	StateMatched   ItemState = "matched"
	StateDismissed ItemState = "dismissed"
)

// PendingItem wraps a DetectedItem that did not resolve automatically
type PendingItem struct {
	ID           string      `json:"id"`
	DetectedText string      `json:"detectedText"`
	CurrentQuery string      `json:"currentQuery"`
	Suggestions  []Candidate `json:"suggestions"`
}

// MatchedEntry is a confirmed catalog entry in the comparison table
type MatchedEntry struct {
	Name             string                `json:"name"`
	Category         string                `json:"category,omitempty"`
	AlternativeNames []string              `json:"alternativeNames,omitempty"`
	Prices           map[string]PriceSheet `json:"prices"`
}

// NewMatchedEntry copies the catalog data needed by the comparison table
func NewMatchedEntry(entry CatalogEntry) MatchedEntry {
	c := entry.Clone()
	return MatchedEntry{
		Name:             c.Name,
		Category:         c.Category,
		AlternativeNames: c.AlternativeNames,
		Prices:           c.Prices,
	}
}

// MatchKind is the decision produced by the matcher for one text item
type MatchKind string

const (
	AutoMatched MatchKind = "auto_matched"
	Pending     MatchKind = "pending"
)

// MatchMode selects how strictly the matcher accepts a candidate
type MatchMode int

const (
	// ModeStrict requires an exact normalized canonical-name match (OCR batches)
	ModeStrict MatchMode = iota
	// ModeInteractive also accepts an exact normalized alternative-name match (typed search)
	ModeInteractive
)

// MatchOutcome is the result of matching a single text item.
// LookupErr is set when the Candidate Source failed; the outcome is then Pending.
type MatchOutcome struct {
	Kind       MatchKind
	Entry      CatalogEntry
	Candidates []Candidate
	LookupErr  error
}

// AddResult reports what happened when adding an entry to the comparison table
type AddResult string

const (
	Added          AddResult = "added"
	AlreadyPresent AddResult = "already_present"
)

// ProviderTotals is the derived per-provider aggregate of the comparison table
type ProviderTotals struct {
	Amounts  map[PlanTier]float64 `json:"amounts"`
	Counts   map[PlanTier]int     `json:"counts"`
	Currency string               `json:"currency,omitempty"`
	// MixedCurrency is set when quotes summed for this provider used more than one currency
	MixedCurrency bool `json:"mixedCurrency,omitempty"`
	HasData       bool `json:"hasData"`
}

// Totals maps provider identifier to its aggregate
type Totals map[string]ProviderTotals

// Amount returns the summed amount for (provider, tier) and whether any entry contributed
func (t Totals) Amount(provider string, tier PlanTier) (float64, bool) {
	pt, ok := t[provider]
	if !ok || pt.Counts[tier] == 0 {
		return 0, false
	}
	return pt.Amounts[tier], true
}
