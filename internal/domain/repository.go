package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CandidateSource is the catalog search backend.
// SearchCandidates returns results by descending relevance; an empty slice is a valid response.
// FetchCatalogEntry returns ErrNotFound when the name is unknown.
type CandidateSource interface {
	SearchCandidates(ctx context.Context, normalizedQuery string, limit int) ([]Candidate, error)
	FetchCatalogEntry(ctx context.Context, name string) (CatalogEntry, error)
}

// Recognizer turns an image into raw text lines. Zero lines is a valid result.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, contentType string) ([]string, error)
}
