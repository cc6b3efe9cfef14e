package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/medicompare/backend/internal/domain"
)

// CandidateSource wraps a domain.CandidateSource and caches successful responses.
// Failures are never cached so that a retry reaches the backend again.
type CandidateSource struct {
	next  domain.CandidateSource
	cache domain.CacheRepository
	ttl   time.Duration
}

var _ domain.CandidateSource = (*CandidateSource)(nil)

// NewCandidateSource creates a caching decorator around next
func NewCandidateSource(next domain.CandidateSource, cache domain.CacheRepository, ttl time.Duration) *CandidateSource {
	return &CandidateSource{next: next, cache: cache, ttl: ttl}
}

// SearchCandidates returns cached candidates for (query, limit) or asks the wrapped source
func (s *CandidateSource) SearchCandidates(ctx context.Context, normalizedQuery string, limit int) ([]domain.Candidate, error) {
	key := fmt.Sprintf("candidates:%d:%s", limit, normalizedQuery)
	if v, err := s.cache.Get(ctx, key); err == nil {
		if list, ok := v.([]domain.Candidate); ok {
			return append([]domain.Candidate(nil), list...), nil
		}
	}

	list, err := s.next.SearchCandidates(ctx, normalizedQuery, limit)
	if err != nil {
		return nil, err
	}

	stored := append([]domain.Candidate(nil), list...)
	_ = s.cache.Set(ctx, key, stored, s.ttl)
	return list, nil
}

// FetchCatalogEntry returns a cached entry or asks the wrapped source
func (s *CandidateSource) FetchCatalogEntry(ctx context.Context, name string) (domain.CatalogEntry, error) {
	key := "entry:" + name
	if v, err := s.cache.Get(ctx, key); err == nil {
		if entry, ok := v.(domain.CatalogEntry); ok {
			return entry.Clone(), nil
		}
	}

	entry, err := s.next.FetchCatalogEntry(ctx, name)
	if err != nil {
		return domain.CatalogEntry{}, err
	}

	_ = s.cache.Set(ctx, key, entry.Clone(), s.ttl)
	return entry, nil
}
