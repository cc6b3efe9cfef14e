package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/medicompare/backend/internal/domain"
)

const (
	defaultLookupTimeout  = 30 * time.Second
	defaultCandidateLimit = 10
)

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	LookupTimeout  time.Duration
	CandidateLimit int
}

// MatchingService decides whether a text item resolves to exactly one catalog entry
// or has to be queued as pending.
type MatchingService struct {
	source         domain.CandidateSource
	normalizer     *Normalizer
	lookupTimeout  time.Duration
	candidateLimit int
	logger         zerolog.Logger
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(
	source domain.CandidateSource,
	normalizer *Normalizer,
	config MatchConfig,
	logger zerolog.Logger,
) *MatchingService {
	timeout := config.LookupTimeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}

	limit := config.CandidateLimit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}

	return &MatchingService{
		source:         source,
		normalizer:     normalizer,
		lookupTimeout:  timeout,
		candidateLimit: limit,
		logger:         logger.With().Str("component", "matcher").Logger(),
	}
}

// Match classifies one text item.
//
// Blank input returns ErrInvalidInput and never reaches the Candidate Source.
// A failing Candidate Source is treated as zero candidates: the outcome is Pending
// with LookupErr set so that the caller can surface a warning.
// Only an exact normalized-name match is accepted automatically; fuzzy candidates
// are returned for an explicit pick.
func (s *MatchingService) Match(ctx context.Context, text string, mode domain.MatchMode) (domain.MatchOutcome, error) {
	key := s.normalizer.Key(text)
	if key == "" {
		return domain.MatchOutcome{}, domain.ErrInvalidInput
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	candidates, err := s.source.SearchCandidates(lookupCtx, key, s.candidateLimit)
	if err != nil {
		s.logger.Warn().Err(err).Str("query", key).Msg("candidate search failed, item stays pending")
		return domain.MatchOutcome{
			Kind:      domain.Pending,
			LookupErr: fmt.Errorf("%w: %v", domain.ErrLookupFailed, err),
		}, nil
	}

	for _, c := range candidates {
		s.logger.Debug().
			Str("query", key).
			Str("candidate", c.Name).
			Float64("score", c.Score).
			Msg("candidate")
	}

	best, ok := s.selectExact(text, key, candidates, mode)
	if !ok {
		s.logger.Debug().Str("query", key).Int("candidates", len(candidates)).Msg("no exact match, pending")
		return domain.MatchOutcome{Kind: domain.Pending, Candidates: candidates}, nil
	}

	entry, err := s.fetch(lookupCtx, best.Name)
	if err != nil {
		s.logger.Warn().Err(err).Str("name", best.Name).Msg("could not materialize matched entry")
		return domain.MatchOutcome{Kind: domain.Pending, Candidates: candidates, LookupErr: err}, nil
	}

	s.logger.Debug().Str("query", key).Str("match", entry.Name).Msg("auto matched")
	return domain.MatchOutcome{Kind: domain.AutoMatched, Entry: entry, Candidates: candidates}, nil
}

// Resolve materializes a candidate the user picked explicitly.
// An explicit pick overrides the exact-match rule.
func (s *MatchingService) Resolve(ctx context.Context, candidateName string) (domain.CatalogEntry, error) {
	if s.normalizer.Key(candidateName) == "" {
		return domain.CatalogEntry{}, domain.ErrInvalidInput
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	return s.fetch(lookupCtx, candidateName)
}

// ExactCandidate returns the candidate whose canonical name is an exact normalized
// match for query, using the same tie-break as Match
func (s *MatchingService) ExactCandidate(query string, candidates []domain.Candidate) (domain.Candidate, bool) {
	key := s.normalizer.Key(query)
	if key == "" {
		return domain.Candidate{}, false
	}
	return s.selectExact(query, key, candidates, domain.ModeStrict)
}

func (s *MatchingService) fetch(ctx context.Context, name string) (domain.CatalogEntry, error) {
	entry, err := s.source.FetchCatalogEntry(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.CatalogEntry{}, err
		}
		if errors.Is(err, domain.ErrLookupFailed) {
			return domain.CatalogEntry{}, err
		}
		return domain.CatalogEntry{}, fmt.Errorf("%w: %v", domain.ErrLookupFailed, err)
	}
	return entry, nil
}

// selectExact picks the candidate whose normalized canonical name equals the query key.
// Interactive mode falls back to exact alternative-name matches.
// Ties go to the shortest edit distance between raw name and raw query, then to
// the Candidate Source order.
func (s *MatchingService) selectExact(
	rawQuery, key string,
	candidates []domain.Candidate,
	mode domain.MatchMode,
) (domain.Candidate, bool) {
	var exact []domain.Candidate
	for _, c := range candidates {
		if s.normalizer.Key(c.Name) == key {
			exact = append(exact, c)
		}
	}

	if len(exact) == 0 && mode == domain.ModeInteractive {
		for _, c := range candidates {
			for _, alt := range c.AlternativeNames {
				if s.normalizer.Key(alt) == key {
					exact = append(exact, c)
					break
				}
			}
		}
	}

	if len(exact) == 0 {
		return domain.Candidate{}, false
	}

	best := exact[0]
	bestDist := levenshteinDistance(best.Name, rawQuery)
	for _, c := range exact[1:] {
		if d := levenshteinDistance(c.Name, rawQuery); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, true
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	// Two rows instead of the full matrix
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}
