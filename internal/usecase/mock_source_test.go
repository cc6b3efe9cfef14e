package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/medicompare/backend/internal/domain"
)

// mockSource is a hand-written Candidate Source over a fixed catalog.
// Search returns every entry whose lower-cased name or alternative name contains the query.
type mockSource struct {
	mu      sync.Mutex
	entries []domain.CatalogEntry

	searchErr error
	fetchErr  error
	// delays per query let tests complete lookups out of order
	delays map[string]time.Duration
	// results per query override the substring search
	results map[string][]domain.Candidate
	errs    map[string]error

	searchCalls atomic.Int32
	fetchCalls  atomic.Int32
	queries     []string
}

func newMockSource(entries ...domain.CatalogEntry) *mockSource {
	return &mockSource{
		entries: entries,
		delays:  make(map[string]time.Duration),
		results: make(map[string][]domain.Candidate),
		errs:    make(map[string]error),
	}
}

func (m *mockSource) SearchCandidates(ctx context.Context, query string, limit int) ([]domain.Candidate, error) {
	m.searchCalls.Add(1)

	m.mu.Lock()
	m.queries = append(m.queries, query)
	delay := m.delays[query]
	err := m.searchErr
	if qerr, ok := m.errs[query]; ok {
		err = qerr
	}
	fixed, hasFixed := m.results[query]
	entries := m.entries
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if hasFixed {
		return append([]domain.Candidate(nil), fixed...), nil
	}

	var out []domain.Candidate
	for _, e := range entries {
		if matchesQuery(e, query) {
			out = append(out, domain.Candidate{
				Name:             e.Name,
				Category:         e.Category,
				AlternativeNames: e.AlternativeNames,
				Score:            50,
			})
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockSource) FetchCatalogEntry(ctx context.Context, name string) (domain.CatalogEntry, error) {
	m.fetchCalls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fetchErr != nil {
		return domain.CatalogEntry{}, m.fetchErr
	}
	for _, e := range m.entries {
		if strings.EqualFold(e.Name, name) {
			return e.Clone(), nil
		}
	}
	return domain.CatalogEntry{}, domain.ErrNotFound
}

func (m *mockSource) setSearchErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchErr = err
}

func (m *mockSource) failQuery(query string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[query] = err
}

func (m *mockSource) setDelay(query string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[query] = d
}

func (m *mockSource) setResults(query string, results []domain.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[query] = results
}

func (m *mockSource) seenQueries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

func matchesQuery(e domain.CatalogEntry, query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(e.Name), q) {
		return true
	}
	for _, alt := range e.AlternativeNames {
		if strings.Contains(strings.ToLower(alt), q) {
			return true
		}
	}
	return false
}

// mockRecognizer returns canned lines or an error
type mockRecognizer struct {
	lines []string
	err   error
}

func (r *mockRecognizer) Recognize(ctx context.Context, image []byte, contentType string) ([]string, error) {
	return r.lines, r.err
}

func ron(amount float64) *domain.PriceQuote {
	return &domain.PriceQuote{Amount: amount, Currency: "RON"}
}

func hemoleucograma() domain.CatalogEntry {
	return domain.CatalogEntry{
		Name:             "Hemoleucograma",
		Category:         "Hematologie",
		AlternativeNames: []string{"HLG", "Hemoleucograma completa"},
		Prices: map[string]domain.PriceSheet{
			"reginamaria": {Normal: ron(25), Premium: ron(20)},
			"medlife":     {Normal: ron(30)},
		},
	}
}

func tsh() domain.CatalogEntry {
	return domain.CatalogEntry{
		Name:     "TSH",
		Category: "Endocrinologie",
		Prices: map[string]domain.PriceSheet{
			"reginamaria": {Normal: ron(45)},
			"medlife":     {Normal: ron(42)},
		},
	}
}

func glicemie() domain.CatalogEntry {
	return domain.CatalogEntry{
		Name:     "Glicemie",
		Category: "Biochimie",
		Prices: map[string]domain.PriceSheet{
			"synevo": {Normal: ron(10), Subscription: ron(0)},
		},
	}
}

func testCatalog() *mockSource {
	return newMockSource(hemoleucograma(), tsh(), glicemie())
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
