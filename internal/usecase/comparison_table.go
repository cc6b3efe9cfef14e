package usecase

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/medicompare/backend/internal/domain"
)

// ComparisonTable owns the ordered set of matched entries and their derived totals.
// Totals are rebuilt from scratch after every mutation, never patched.
type ComparisonTable struct {
	normalizer *Normalizer

	mu      sync.RWMutex
	entries []domain.MatchedEntry
	keys    map[string]struct{}
	totals  domain.Totals
}

// NewComparisonTable creates an empty table
func NewComparisonTable(normalizer *Normalizer) *ComparisonTable {
	return &ComparisonTable{
		normalizer: normalizer,
		keys:       make(map[string]struct{}),
		totals:     domain.Totals{},
	}
}

// Add appends the entry unless its canonical name is already present (case-insensitive).
// The uniqueness check and the append form one critical section.
func (t *ComparisonTable) Add(entry domain.CatalogEntry) (domain.AddResult, error) {
	key := t.normalizer.Key(entry.Name)
	if key == "" {
		return "", fmt.Errorf("%w: entry without name", domain.ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.keys[key]; ok {
		return domain.AlreadyPresent, nil
	}

	t.entries = append(t.entries, domain.NewMatchedEntry(entry))
	t.keys[key] = struct{}{}
	t.totals = computeTotals(t.entries)
	return domain.Added, nil
}

// RemoveAt removes and returns the entry at index
func (t *ComparisonTable) RemoveAt(index int) (domain.MatchedEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.entries) {
		return domain.MatchedEntry{}, fmt.Errorf("%w: %d (table has %d entries)", domain.ErrIndexOutOfRange, index, len(t.entries))
	}

	removed := t.entries[index]
	t.entries = append(t.entries[:index:index], t.entries[index+1:]...)
	delete(t.keys, t.normalizer.Key(removed.Name))
	t.totals = computeTotals(t.entries)
	return removed, nil
}

// Contains reports whether a canonical name is already in the table
func (t *ComparisonTable) Contains(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.keys[t.normalizer.Key(name)]
	return ok
}

// Entries returns a copy of the entries in insertion order
func (t *ComparisonTable) Entries() []domain.MatchedEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.MatchedEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries
func (t *ComparisonTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Totals returns a copy of the current totals
func (t *ComparisonTable) Totals() domain.Totals {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneTotals(t.totals)
}

// Savings returns |totalA - totalB| for a tier. ok is false when either provider has
// no non-zero total for the tier, and also when the totals are equal.
func (t *ComparisonTable) Savings(providerA, providerB string, tier domain.PlanTier) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return savings(t.totals, providerA, providerB, tier)
}

// Providers returns the providers that appear in any entry, sorted
func (t *ComparisonTable) Providers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedProviders(t.totals)
}

// DisplayProviders returns Providers, or the default placeholder set for an empty table
func (t *ComparisonTable) DisplayProviders() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.entries) == 0 {
		return domain.DefaultProviderSlugs()
	}
	return sortedProviders(t.totals)
}

// BestProvider returns the provider with the lowest non-zero total for a tier.
// Ties go to the provider id that sorts first.
func (t *ComparisonTable) BestProvider(tier domain.PlanTier) (string, float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var (
		best   string
		amount float64
		found  bool
	)
	for _, p := range sortedProviders(t.totals) {
		v, ok := t.totals.Amount(p, tier)
		if !ok || v == 0 {
			continue
		}
		if !found || v < amount {
			best, amount, found = p, v, true
		}
	}
	return best, amount, found
}

// computeTotals sums amounts per (provider, tier). Providers with no contributing
// quote in any tier are left out rather than shown with zero.
func computeTotals(entries []domain.MatchedEntry) domain.Totals {
	totals := domain.Totals{}
	for _, e := range entries {
		for provider, sheet := range e.Prices {
			for _, tier := range domain.PlanTiers {
				q, ok := sheet.Quote(tier)
				if !ok {
					continue
				}
				pt, exists := totals[provider]
				if !exists {
					pt = domain.ProviderTotals{
						Amounts:  make(map[domain.PlanTier]float64),
						Counts:   make(map[domain.PlanTier]int),
						Currency: q.Currency,
					}
				}
				pt.Amounts[tier] += q.Amount
				pt.Counts[tier]++
				pt.HasData = true
				if q.Currency != "" && pt.Currency != "" && q.Currency != pt.Currency {
					pt.MixedCurrency = true
				}
				if pt.Currency == "" {
					pt.Currency = q.Currency
				}
				totals[provider] = pt
			}
		}
	}

	for provider, pt := range totals {
		for tier, v := range pt.Amounts {
			pt.Amounts[tier] = roundCents(v)
		}
		totals[provider] = pt
	}
	return totals
}

func savings(totals domain.Totals, providerA, providerB string, tier domain.PlanTier) (float64, bool) {
	a, okA := totals.Amount(providerA, tier)
	b, okB := totals.Amount(providerB, tier)
	if !okA || !okB || a == 0 || b == 0 {
		return 0, false
	}

	diff := roundCents(math.Abs(a - b))
	if diff == 0 {
		return 0, false
	}
	return diff, true
}

func sortedProviders(totals domain.Totals) []string {
	out := make([]string, 0, len(totals))
	for p := range totals {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func cloneTotals(in domain.Totals) domain.Totals {
	out := make(domain.Totals, len(in))
	for p, pt := range in {
		c := pt
		c.Amounts = make(map[domain.PlanTier]float64, len(pt.Amounts))
		for k, v := range pt.Amounts {
			c.Amounts[k] = v
		}
		c.Counts = make(map[domain.PlanTier]int, len(pt.Counts))
		for k, v := range pt.Counts {
			c.Counts[k] = v
		}
		out[p] = c
	}
	return out
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
