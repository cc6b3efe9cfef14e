package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/medicompare/backend/internal/domain"
)

const (
	defaultDebounce       = 250 * time.Millisecond
	defaultMinQueryLength = 2
)

// SuggestionConfig holds configuration for a suggestion session
type SuggestionConfig struct {
	Debounce       time.Duration
	MinQueryLength int
	Limit          int
	// Timeout bounds a single lookup. Zero means no bound beyond last-request-wins.
	Timeout time.Duration
}

// ResultsHook is called with every accepted (non-stale, non-failed) lookup result
type ResultsHook func(query string, results []domain.Candidate)

// SuggestionSession turns a stream of query edits into at most one live lookup.
//
// Every issued lookup is tagged with a sequence number; a completion is applied only
// when its number is still the session's current one (last request wins), whatever
// the completion order. Edits, picks and Close bump the sequence, which cancels the
// in-flight lookup and makes its eventual result ignorable.
type SuggestionSession struct {
	source         domain.CandidateSource
	normalizer     *Normalizer
	debounce       time.Duration
	minQueryLength int
	limit          int
	timeout        time.Duration
	logger         zerolog.Logger

	mu          sync.Mutex
	query       string
	seq         uint64
	timer       *time.Timer
	cancel      context.CancelFunc
	suggestions []domain.Candidate
	lastErr     error
	closed      bool
	onResults   ResultsHook

	// hookMu serializes hook calls so an older result never lands after a newer one
	hookMu sync.Mutex
}

// NewSuggestionSession creates an idle session with no query
func NewSuggestionSession(
	source domain.CandidateSource,
	normalizer *Normalizer,
	config SuggestionConfig,
	logger zerolog.Logger,
) *SuggestionSession {
	debounce := config.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	minLen := config.MinQueryLength
	if minLen <= 0 {
		minLen = defaultMinQueryLength
	}

	limit := config.Limit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}

	return &SuggestionSession{
		source:         source,
		normalizer:     normalizer,
		debounce:       debounce,
		minQueryLength: minLen,
		limit:          limit,
		timeout:        config.Timeout,
		logger:         logger.With().Str("component", "suggestions").Logger(),
	}
}

// SetResultsHook registers a callback for accepted results. Calls run one at a time outside
// the session lock, and a result that went stale before its turn is not delivered.
func (s *SuggestionSession) SetResultsHook(hook ResultsHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResults = hook
}

// OnQueryChanged records an edit. Queries shorter than the minimum clear suggestions
// immediately; longer ones (re)start the debounce timer.
func (s *SuggestionSession) OnQueryChanged(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.query = text
	s.stopTimerLocked()
	s.invalidateLocked()

	key := s.normalizer.Key(text)
	if utf8.RuneCountInString(key) < s.minQueryLength {
		s.suggestions = nil
		s.lastErr = nil
		return
	}

	gen := s.seq
	s.timer = time.AfterFunc(s.debounce, func() {
		s.issue(gen, key, text)
	})
}

// OnSuggestionPicked cancels any pending debounce or lookup and returns the pick
// so the owner can move the item toward a match.
func (s *SuggestionSession) OnSuggestionPicked(c domain.Candidate) domain.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.invalidateLocked()
	s.suggestions = nil
	s.lastErr = nil
	return c
}

// VisibleSuggestions returns the suggestions of the most recently issued lookup
func (s *SuggestionSession) VisibleSuggestions() []domain.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Candidate, len(s.suggestions))
	copy(out, s.suggestions)
	return out
}

// SetSuggestions seeds the visible list, e.g. with the candidates of the initial match.
// It also invalidates any lookup still in flight.
func (s *SuggestionSession) SetSuggestions(list []domain.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.stopTimerLocked()
	s.invalidateLocked()
	s.suggestions = append([]domain.Candidate(nil), list...)
	s.lastErr = nil
}

// Query returns the text of the last edit
func (s *SuggestionSession) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// LastError returns the failure of the last accepted lookup, if any
func (s *SuggestionSession) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close stops the session; in-flight results are discarded
func (s *SuggestionSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.stopTimerLocked()
	s.invalidateLocked()
	s.suggestions = nil
}

func (s *SuggestionSession) issue(gen uint64, key, query string) {
	s.mu.Lock()
	if s.closed || s.seq != gen {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	s.timer = nil

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	s.cancel = cancel
	s.mu.Unlock()

	results, err := s.source.SearchCandidates(ctx, key, s.limit)
	cancel()

	s.mu.Lock()
	if s.seq != seq {
		s.mu.Unlock()
		s.logger.Debug().
			Err(domain.ErrStaleResultDiscarded).
			Uint64("seq", seq).
			Str("query", key).
			Msg("dropping suggestions")
		return
	}
	s.cancel = nil

	if err != nil {
		s.suggestions = nil
		s.lastErr = fmt.Errorf("%w: %v", domain.ErrLookupFailed, err)
		s.mu.Unlock()
		s.logger.Warn().Err(err).Str("query", key).Msg("suggestion lookup failed")
		return
	}

	s.suggestions = append([]domain.Candidate(nil), results...)
	s.lastErr = nil
	hook := s.onResults
	s.mu.Unlock()

	if hook == nil {
		return
	}
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	if !s.current(seq) {
		return
	}
	hook(query, results)
}

func (s *SuggestionSession) current(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.seq == seq
}

func (s *SuggestionSession) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// invalidateLocked makes every outstanding lookup and scheduled timer stale
func (s *SuggestionSession) invalidateLocked() {
	s.seq++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
