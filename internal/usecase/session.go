package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medicompare/backend/internal/domain"
)

const (
	defaultBatchConcurrency = 4
	autoResolveTimeout      = 30 * time.Second
)

// SessionConfig holds configuration for a comparison session
type SessionConfig struct {
	Suggestions      SuggestionConfig
	BatchConcurrency int
}

// SessionDeps are the collaborators shared by all sessions
type SessionDeps struct {
	Source     domain.CandidateSource
	Normalizer *Normalizer
	Matcher    *MatchingService
	// Recognizer may be nil when no OCR service is configured
	Recognizer domain.Recognizer
	Lines      *LinePreprocessor
}

// SubmitResult reports how one detected item was classified
type SubmitResult struct {
	Item    domain.DetectedItem `json:"item"`
	Kind    domain.MatchKind    `json:"kind"`
	Name    string              `json:"name,omitempty"`
	Added   domain.AddResult    `json:"added,omitempty"`
	Pending *domain.PendingItem `json:"pending,omitempty"`
	Warning string              `json:"warning,omitempty"`
	// LookupErr is the Candidate Source failure behind Warning, if any
	LookupErr error `json:"-"`
}

// TableSnapshot is a consistent view of the comparison table
type TableSnapshot struct {
	Entries   []domain.MatchedEntry `json:"entries"`
	Totals    domain.Totals         `json:"totals"`
	Providers []string              `json:"providers"`
}

// Session is one user's comparison: a pending set, a comparison table and one
// suggestion session per pending item. No state is shared between sessions.
type Session struct {
	id         string
	source     domain.CandidateSource
	normalizer *Normalizer
	matcher    *MatchingService
	recognizer domain.Recognizer
	lines      *LinePreprocessor
	pending    *ResolutionMachine
	table      *ComparisonTable
	config     SessionConfig
	logger     zerolog.Logger

	nextID atomic.Uint64

	mu          sync.Mutex
	suggestions map[string]*SuggestionSession
	closed      bool
}

// NewSession creates an empty session
func NewSession(id string, deps SessionDeps, config SessionConfig, logger zerolog.Logger) *Session {
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = defaultBatchConcurrency
	}

	lines := deps.Lines
	if lines == nil {
		lines = NewLinePreprocessor(defaultMaxDetectedLines, logger)
	}

	return &Session{
		id:          id,
		source:      deps.Source,
		normalizer:  deps.Normalizer,
		matcher:     deps.Matcher,
		recognizer:  deps.Recognizer,
		lines:       lines,
		pending:     NewResolutionMachine(),
		table:       NewComparisonTable(deps.Normalizer),
		config:      config,
		logger:      logger.With().Str("component", "session").Str("session", id).Logger(),
		suggestions: make(map[string]*SuggestionSession),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// SubmitTypedQuery matches one typed name. Without an exact match the text becomes a
// pending item whose suggestions are the fuzzy candidates.
func (s *Session) SubmitTypedQuery(ctx context.Context, text string) (SubmitResult, error) {
	if s.normalizer.Key(text) == "" {
		return SubmitResult{}, domain.ErrInvalidInput
	}

	item := s.newItem(text)
	outcome, err := s.matcher.Match(ctx, text, domain.ModeInteractive)
	if err != nil {
		return SubmitResult{}, err
	}
	return s.apply(item, outcome)
}

// SubmitOCRBatch matches detected lines in parallel and applies the classifications
// one item at a time in input order. A failed lookup degrades only its own item.
// Blank lines are skipped.
func (s *Session) SubmitOCRBatch(ctx context.Context, lines []string) ([]SubmitResult, error) {
	var items []domain.DetectedItem
	for _, line := range lines {
		if s.normalizer.Key(line) == "" {
			continue
		}
		items = append(items, s.newItem(line))
	}
	if len(items) == 0 {
		return []SubmitResult{}, nil
	}

	outcomes := make([]domain.MatchOutcome, len(items))
	var g errgroup.Group
	g.SetLimit(s.config.BatchConcurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			outcome, err := s.matcher.Match(ctx, item.Text, domain.ModeStrict)
			if err != nil {
				// Only blank input errors, and blank lines were filtered above
				outcome = domain.MatchOutcome{Kind: domain.Pending, LookupErr: err}
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	results := make([]SubmitResult, 0, len(items))
	for i, item := range items {
		res, err := s.apply(item, outcomes[i])
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	s.logger.Info().
		Int("lines", len(lines)).
		Int("items", len(items)).
		Int("pending", s.pending.Len()).
		Int("matched", s.table.Len()).
		Msg("ocr batch classified")
	return results, nil
}

// SubmitImage recognizes an image and submits the cleaned lines as an OCR batch.
// An image without detections yields no items and no error.
func (s *Session) SubmitImage(ctx context.Context, image []byte, contentType string) ([]SubmitResult, error) {
	if s.recognizer == nil {
		return nil, fmt.Errorf("%w: recognition service not configured", domain.ErrLookupFailed)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInvalidInput)
	}

	raw, err := s.recognizer.Recognize(ctx, image, contentType)
	if err != nil {
		if errors.Is(err, domain.ErrLookupFailed) || errors.Is(err, domain.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrLookupFailed, err)
	}
	return s.SubmitDetectedText(ctx, raw)
}

// SubmitDetectedText cleans raw recognized text (headers, values, bullets) and submits
// what is left as an OCR batch
func (s *Session) SubmitDetectedText(ctx context.Context, raw []string) ([]SubmitResult, error) {
	lines := s.lines.Preprocess(raw)
	s.logger.Debug().Int("raw", len(raw)).Int("kept", len(lines)).Msg("recognized lines")
	return s.SubmitOCRBatch(ctx, lines)
}

// EditPending changes a pending item's resolver query and schedules a debounced lookup.
// An accepted result that contains an exact match resolves the item.
func (s *Session) EditPending(id, text string) error {
	if err := s.pending.UpdateQuery(id, text); err != nil {
		return err
	}

	sess, ok := s.suggestionSession(id)
	if !ok {
		return domain.ErrItemNotFound
	}
	sess.OnQueryChanged(text)
	return nil
}

// PendingSuggestions returns the visible suggestions of a pending item
func (s *Session) PendingSuggestions(id string) ([]domain.Candidate, error) {
	if _, err := s.pending.Get(id); err != nil {
		return nil, err
	}

	sess, ok := s.suggestionSession(id)
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return sess.VisibleSuggestions(), nil
}

// PickSuggestion resolves a pending item with an explicitly chosen candidate.
// If the catalog lookup fails the item stays pending with the suggestions it showed.
func (s *Session) PickSuggestion(ctx context.Context, id, candidateName string) (SubmitResult, error) {
	if _, err := s.pending.Get(id); err != nil {
		return SubmitResult{}, err
	}

	sess, ok := s.suggestionSession(id)
	var shown []domain.Candidate
	if ok {
		shown = sess.VisibleSuggestions()
		sess.OnSuggestionPicked(domain.Candidate{Name: candidateName})
	}

	res, err := s.resolvePending(ctx, id, candidateName)
	if err != nil && ok {
		sess.SetSuggestions(shown)
	}
	return res, err
}

// Dismiss removes a pending item. The comparison table is never touched.
func (s *Session) Dismiss(id string) error {
	if _, err := s.pending.Dismiss(id); err != nil {
		return err
	}
	s.closeSuggestions(id)
	s.logger.Debug().Str("item", id).Msg("dismissed")
	return nil
}

// RemoveMatched removes the table entry at index
func (s *Session) RemoveMatched(index int) (domain.MatchedEntry, error) {
	return s.table.RemoveAt(index)
}

// Table returns the entries, totals and providers to display
func (s *Session) Table() TableSnapshot {
	return TableSnapshot{
		Entries:   s.table.Entries(),
		Totals:    s.table.Totals(),
		Providers: s.table.DisplayProviders(),
	}
}

// Totals returns the per-provider per-tier totals
func (s *Session) Totals() domain.Totals {
	return s.table.Totals()
}

// Savings compares two providers' totals for a tier
func (s *Session) Savings(providerA, providerB string, tier domain.PlanTier) (float64, bool) {
	return s.table.Savings(providerA, providerB, tier)
}

// BestProvider returns the cheapest provider with data for a tier
func (s *Session) BestProvider(tier domain.PlanTier) (string, float64, bool) {
	return s.table.BestProvider(tier)
}

// PendingItems returns the pending items in creation order with their live suggestions
func (s *Session) PendingItems() []domain.PendingItem {
	items := s.pending.List()
	for i := range items {
		if sess, ok := s.suggestionSession(items[i].ID); ok {
			items[i].Suggestions = sess.VisibleSuggestions()
		}
	}
	return items
}

// ItemState returns the lifecycle state of a detected item
func (s *Session) ItemState(id string) domain.ItemState {
	return s.pending.State(id)
}

// ExportTable renders the table as CSV
func (s *Session) ExportTable() (string, error) {
	return s.table.Export()
}

// Close stops all suggestion sessions. In-flight lookups are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, sess := range s.suggestions {
		sess.Close()
		delete(s.suggestions, id)
	}
}

func (s *Session) newItem(text string) domain.DetectedItem {
	return domain.DetectedItem{
		ID:   fmt.Sprintf("item-%d", s.nextID.Add(1)),
		Text: text,
	}
}

func (s *Session) apply(item domain.DetectedItem, outcome domain.MatchOutcome) (SubmitResult, error) {
	res := SubmitResult{Item: item, Kind: outcome.Kind, LookupErr: outcome.LookupErr}
	if outcome.LookupErr != nil {
		res.Warning = outcome.LookupErr.Error()
	}

	if outcome.Kind == domain.AutoMatched {
		added, err := s.table.Add(outcome.Entry)
		if err != nil {
			return SubmitResult{}, err
		}
		res.Name = outcome.Entry.Name
		res.Added = added
		if added == domain.AlreadyPresent {
			s.logger.Info().Str("name", outcome.Entry.Name).Msg("already in comparison")
		}
		return res, nil
	}

	p, err := s.pending.Enqueue(item, outcome.Candidates)
	if err != nil {
		return SubmitResult{}, err
	}
	s.openSuggestions(p)
	res.Kind = domain.Pending
	res.Pending = &p
	return res, nil
}

func (s *Session) openSuggestions(p domain.PendingItem) {
	sess := NewSuggestionSession(s.source, s.normalizer, s.config.Suggestions, s.logger)
	sess.SetSuggestions(p.Suggestions)

	id := p.ID
	sess.SetResultsHook(func(query string, results []domain.Candidate) {
		s.onSuggestions(id, query, results)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sess.Close()
		return
	}
	s.suggestions[id] = sess
}

// onSuggestions keeps the pending snapshot current and auto-resolves on an exact hit
func (s *Session) onSuggestions(id, query string, results []domain.Candidate) {
	if err := s.pending.SetSuggestions(id, results); err != nil {
		return
	}

	item, err := s.pending.Get(id)
	if err != nil || item.CurrentQuery != query {
		return
	}

	exact, ok := s.matcher.ExactCandidate(query, results)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), autoResolveTimeout)
	defer cancel()
	if _, err := s.resolvePending(ctx, id, exact.Name); err != nil {
		s.logger.Debug().Err(err).Str("item", id).Msg("auto resolution skipped")
	}
}

// resolvePending moves an item from the pending set into the table.
// The catalog fetch happens first so a failure leaves the item pending.
func (s *Session) resolvePending(ctx context.Context, id, name string) (SubmitResult, error) {
	entry, err := s.matcher.Resolve(ctx, name)
	if err != nil {
		return SubmitResult{}, err
	}

	p, err := s.pending.Resolve(id)
	if err != nil {
		return SubmitResult{}, err
	}
	s.closeSuggestions(id)

	added, err := s.table.Add(entry)
	if err != nil {
		return SubmitResult{}, err
	}

	s.logger.Debug().Str("item", id).Str("name", entry.Name).Str("result", string(added)).Msg("resolved")
	return SubmitResult{
		Item:  domain.DetectedItem{ID: p.ID, Text: p.DetectedText},
		Kind:  domain.AutoMatched,
		Name:  entry.Name,
		Added: added,
	}, nil
}

func (s *Session) suggestionSession(id string) (*SuggestionSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.suggestions[id]
	return sess, ok
}

func (s *Session) closeSuggestions(id string) {
	s.mu.Lock()
	sess, ok := s.suggestions[id]
	delete(s.suggestions, id)
	s.mu.Unlock()

	if ok {
		sess.Close()
	}
}
