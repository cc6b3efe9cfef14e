package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicompare/backend/internal/domain"
)

type countingSource struct {
	searches  int
	fetches   int
	searchErr error
	fetchErr  error
}

func (s *countingSource) SearchCandidates(ctx context.Context, q string, limit int) ([]domain.Candidate, error) {
	s.searches++
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return []domain.Candidate{{Name: "TSH", Score: 100}}, nil
}

func (s *countingSource) FetchCatalogEntry(ctx context.Context, name string) (domain.CatalogEntry, error) {
	s.fetches++
	if s.fetchErr != nil {
		return domain.CatalogEntry{}, s.fetchErr
	}
	return domain.CatalogEntry{
		Name: name,
		Prices: map[string]domain.PriceSheet{
			"medlife": {Normal: &domain.PriceQuote{Amount: 42, Currency: "RON"}},
		},
	}, nil
}

func TestCandidateSource_CachesSearches(t *testing.T) {
	mem := NewMemoryCache()
	defer mem.Close()
	next := &countingSource{}
	src := NewCandidateSource(next, mem, time.Minute)
	ctx := context.Background()

	first, err := src.SearchCandidates(ctx, "tsh", 10)
	require.NoError(t, err)
	second, err := src.SearchCandidates(ctx, "tsh", 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.searches)

	t.Run("different limit is a different key", func(t *testing.T) {
		_, err := src.SearchCandidates(ctx, "tsh", 5)
		require.NoError(t, err)
		assert.Equal(t, 2, next.searches)
	})

	t.Run("mutating a returned slice does not touch the cache", func(t *testing.T) {
		got, err := src.SearchCandidates(ctx, "tsh", 10)
		require.NoError(t, err)
		got[0].Name = "changed"

		again, err := src.SearchCandidates(ctx, "tsh", 10)
		require.NoError(t, err)
		assert.Equal(t, "TSH", again[0].Name)
	})
}

func TestCandidateSource_DoesNotCacheFailures(t *testing.T) {
	mem := NewMemoryCache()
	defer mem.Close()
	next := &countingSource{searchErr: errors.New("boom"), fetchErr: domain.ErrNotFound}
	src := NewCandidateSource(next, mem, time.Minute)
	ctx := context.Background()

	_, err := src.SearchCandidates(ctx, "tsh", 10)
	require.Error(t, err)
	_, err = src.SearchCandidates(ctx, "tsh", 10)
	require.Error(t, err)
	assert.Equal(t, 2, next.searches)

	_, err = src.FetchCatalogEntry(ctx, "TSH")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = src.FetchCatalogEntry(ctx, "TSH")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 2, next.fetches)
}

func TestCandidateSource_CachesEntriesAsCopies(t *testing.T) {
	mem := NewMemoryCache()
	defer mem.Close()
	next := &countingSource{}
	src := NewCandidateSource(next, mem, time.Minute)
	ctx := context.Background()

	entry, err := src.FetchCatalogEntry(ctx, "TSH")
	require.NoError(t, err)
	entry.Prices["medlife"].Normal.Amount = 1

	cached, err := src.FetchCatalogEntry(ctx, "TSH")
	require.NoError(t, err)
	assert.Equal(t, 1, next.fetches)
	assert.Equal(t, 42.0, cached.Prices["medlife"].Normal.Amount)
}
