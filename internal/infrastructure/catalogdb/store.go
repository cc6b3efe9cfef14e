// Package catalogdb is a Candidate Source backed by an SQLite catalog of medical analyses.
//
// Usage:
//
//	store, err := catalogdb.Open("data/catalog.db", logger, catalogdb.WithKeyFunc(normalizer.Key))
//
// In tests:
//
//	store, err := catalogdb.OpenMemory(logger)
package catalogdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/medicompare/backend/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL UNIQUE,
	name_key          TEXT NOT NULL,
	category          TEXT NOT NULL DEFAULT '',
	alternative_names TEXT NOT NULL DEFAULT '[]',
	prices            TEXT NOT NULL DEFAULT '{}',
	updated_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_analyses_name_key ON analyses(name_key);
CREATE INDEX IF NOT EXISTS idx_analyses_category ON analyses(category);

CREATE TABLE IF NOT EXISTS analysis_aliases (
	analysis_id INTEGER NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
	alias_key   TEXT NOT NULL,
	PRIMARY KEY (analysis_id, alias_key)
);
CREATE INDEX IF NOT EXISTS idx_analysis_aliases_key ON analysis_aliases(alias_key);
`

// rows pulled from SQLite before ranking in Go
const searchScanLimit = 200

// KeyFunc maps a display name to its normalized lookup key
type KeyFunc func(string) string

type config struct {
	busyTimeout int
	mkdirAll    bool
	key         KeyFunc
}

func defaults() config {
	return config{
		busyTimeout: 10_000,
		key:         defaultKey,
	}
}

// Option customises Open behaviour
type Option func(*config)

// WithKeyFunc sets the key function used to index and query names.
// It must be the same function the caller uses to normalize queries.
func WithKeyFunc(fn KeyFunc) Option {
	return func(c *config) {
		if fn != nil {
			c.key = fn
		}
	}
}

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithMkdirAll creates parent directories of the database path before opening
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// Store is the SQLite catalog
type Store struct {
	db     *sql.DB
	key    KeyFunc
	logger zerolog.Logger
}

var _ domain.CandidateSource = (*Store)(nil)

// Open opens (and migrates) the catalog database at path
func Open(path string, logger zerolog.Logger, opts ...Option) (*Store, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("catalogdb: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalogdb: open: %w", err)
	}

	// each connection to ":memory:" is a separate database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := applyPragmas(db, &cfg); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalogdb: exec schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalogdb: ping: %w", err)
	}

	return &Store{
		db:     db,
		key:    cfg.key,
		logger: logger.With().Str("component", "catalogdb").Logger(),
	}, nil
}

// OpenMemory opens an empty in-memory catalog
func OpenMemory(logger zerolog.Logger, opts ...Option) (*Store, error) {
	return Open(":memory:", logger, opts...)
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func applyPragmas(db *sql.DB, cfg *config) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("catalogdb: %s: %w", p, err)
		}
	}
	return nil
}

// Upsert inserts or replaces one catalog entry, keyed by its canonical name
func (s *Store) Upsert(ctx context.Context, entry domain.CatalogEntry) error {
	_, err := s.Import(ctx, []domain.CatalogEntry{entry})
	return err
}

// Import upserts all entries in a single transaction and returns how many were written.
// Nothing is written when any entry is invalid.
func (s *Store) Import(ctx context.Context, entries []domain.CatalogEntry) (int, error) {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalogdb: begin: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if err := s.upsertTx(ctx, tx, e); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalogdb: commit: %w", err)
	}

	s.logger.Info().Int("entries", len(entries)).Msg("catalog imported")
	return len(entries), nil
}

func (s *Store) upsertTx(ctx context.Context, tx *sql.Tx, e domain.CatalogEntry) error {
	name := strings.TrimSpace(e.Name)
	alts, err := json.Marshal(nonNilStrings(e.AlternativeNames))
	if err != nil {
		return fmt.Errorf("catalogdb: encode alternative names: %w", err)
	}
	prices := e.Prices
	if prices == nil {
		prices = map[string]domain.PriceSheet{}
	}
	pricesJSON, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("catalogdb: encode prices: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO analyses (name, name_key, category, alternative_names, prices)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			name_key = excluded.name_key,
			category = excluded.category,
			alternative_names = excluded.alternative_names,
			prices = excluded.prices,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		RETURNING id`,
		name, s.key(name), strings.TrimSpace(e.Category), string(alts), string(pricesJSON),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("catalogdb: upsert %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_aliases WHERE analysis_id = ?`, id); err != nil {
		return fmt.Errorf("catalogdb: clear aliases of %q: %w", name, err)
	}
	for _, alt := range e.AlternativeNames {
		key := s.key(alt)
		if key == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO analysis_aliases (analysis_id, alias_key) VALUES (?, ?)`, id, key,
		); err != nil {
			return fmt.Errorf("catalogdb: alias %q of %q: %w", alt, name, err)
		}
	}
	return nil
}

// SearchCandidates returns entries whose canonical or alternative names share a token with
// the query, ranked by token coverage
func (s *Store) SearchCandidates(ctx context.Context, normalizedQuery string, limit int) ([]domain.Candidate, error) {
	query := s.key(normalizedQuery)
	if query == "" || limit <= 0 {
		return []domain.Candidate{}, nil
	}

	patterns := searchPatterns(query)
	var conds []string
	var args []interface{}
	for _, p := range patterns {
		conds = append(conds,
			`a.name_key LIKE ? ESCAPE '\'`,
			`EXISTS (SELECT 1 FROM analysis_aliases al WHERE al.analysis_id = a.id AND al.alias_key LIKE ? ESCAPE '\')`,
		)
		args = append(args, p, p)
	}
	// exact name and alias hits must survive the scan limit
	args = append(args, query, query, searchScanLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.name, a.category, a.alternative_names
		FROM analyses a
		WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY a.name_key = ? DESC,
			EXISTS (SELECT 1 FROM analysis_aliases al WHERE al.analysis_id = a.id AND al.alias_key = ?) DESC,
			a.name
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog search: %v", domain.ErrLookupFailed, err)
	}
	defer rows.Close()

	candidates := []domain.Candidate{}
	for rows.Next() {
		var c domain.Candidate
		var alts string
		if err := rows.Scan(&c.Name, &c.Category, &alts); err != nil {
			return nil, fmt.Errorf("%w: catalog scan: %v", domain.ErrLookupFailed, err)
		}
		if err := json.Unmarshal([]byte(alts), &c.AlternativeNames); err != nil {
			return nil, fmt.Errorf("%w: decode alternative names of %q: %v", domain.ErrLookupFailed, c.Name, err)
		}
		c.Score = s.score(query, c)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: catalog rows: %v", domain.ErrLookupFailed, err)
	}

	rankCandidates(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	s.logger.Debug().Str("query", query).Int("results", len(candidates)).Msg("catalog search")
	return candidates, nil
}

// FetchCatalogEntry returns the full entry for a canonical name.
// The name is compared exactly first and by normalized key second.
func (s *Store) FetchCatalogEntry(ctx context.Context, name string) (domain.CatalogEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.CatalogEntry{}, domain.ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT name, category, alternative_names, prices
		FROM analyses
		WHERE name = ? OR name_key = ?
		ORDER BY name = ? DESC, id
		LIMIT 1`, name, s.key(name), name)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CatalogEntry{}, fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}
	if err != nil {
		return domain.CatalogEntry{}, fmt.Errorf("%w: fetch %q: %v", domain.ErrLookupFailed, name, err)
	}
	return entry, nil
}

// List returns catalog entries ordered by name, optionally restricted to one category
func (s *Store) List(ctx context.Context, category string, offset, limit int) ([]domain.CatalogEntry, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	var args []interface{}
	if category != "" {
		where = "WHERE category = ?"
		args = append(args, category)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count analyses: %v", domain.ErrLookupFailed, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, category, alternative_names, prices
		FROM analyses `+where+`
		ORDER BY name
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list analyses: %v", domain.ErrLookupFailed, err)
	}
	defer rows.Close()

	entries := []domain.CatalogEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: list analyses: %v", domain.ErrLookupFailed, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: list analyses: %v", domain.ErrLookupFailed, err)
	}
	return entries, total, nil
}

// Categories returns the non-empty categories with their entry counts, largest first
func (s *Store) Categories(ctx context.Context) ([]domain.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*) AS n
		FROM analyses
		WHERE category <> ''
		GROUP BY category
		ORDER BY n DESC, category`)
	if err != nil {
		return nil, fmt.Errorf("%w: categories: %v", domain.ErrLookupFailed, err)
	}
	defer rows.Close()

	out := []domain.CategoryCount{}
	for rows.Next() {
		var c domain.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("%w: categories: %v", domain.ErrLookupFailed, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of catalog entries
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalogdb: count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (domain.CatalogEntry, error) {
	var e domain.CatalogEntry
	var alts, prices string
	if err := row.Scan(&e.Name, &e.Category, &alts, &prices); err != nil {
		return domain.CatalogEntry{}, err
	}
	if err := json.Unmarshal([]byte(alts), &e.AlternativeNames); err != nil {
		return domain.CatalogEntry{}, fmt.Errorf("decode alternative names: %w", err)
	}
	if len(e.AlternativeNames) == 0 {
		e.AlternativeNames = nil
	}
	e.Prices = map[string]domain.PriceSheet{}
	if err := json.Unmarshal([]byte(prices), &e.Prices); err != nil {
		return domain.CatalogEntry{}, fmt.Errorf("decode prices: %w", err)
	}
	return e, nil
}

// searchPatterns builds LIKE patterns for the whole query and each token of two or more runes
func searchPatterns(query string) []string {
	seen := map[string]bool{}
	var patterns []string
	add := func(s string) {
		if seen[s] {
			return
		}
		seen[s] = true
		patterns = append(patterns, "%"+escapeLike(s)+"%")
	}

	add(query)
	for _, tok := range strings.Fields(query) {
		if len([]rune(tok)) >= 2 {
			add(tok)
		}
	}
	return patterns
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func defaultKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
