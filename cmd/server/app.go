package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medicompare/backend/config"
	httpDelivery "github.com/medicompare/backend/internal/delivery/http"
	"github.com/medicompare/backend/internal/domain"
	"github.com/medicompare/backend/internal/infrastructure/cache"
	"github.com/medicompare/backend/internal/infrastructure/catalogapi"
	"github.com/medicompare/backend/internal/infrastructure/catalogdb"
	"github.com/medicompare/backend/internal/infrastructure/ocr"
	"github.com/medicompare/backend/internal/usecase"
)

// app holds the wired dependencies shared by the serve and compare commands
type app struct {
	normalizer *usecase.Normalizer
	source     domain.CandidateSource
	browser    httpDelivery.CatalogBrowser
	sessions   *usecase.SessionManager

	cache *cache.MemoryCache
	store *catalogdb.Store
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{
		normalizer: usecase.NewNormalizer(usecase.NormalizerConfig{
			FoldDiacritics: cfg.Matching.FoldDiacritics,
		}),
		cache: cache.NewMemoryCache(),
	}

	var backend domain.CandidateSource
	switch cfg.Catalog.Source {
	case config.SourceSQLite:
		store, err := openStore(cfg, a.normalizer, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if cfg.Catalog.SeedFile != "" {
			n, err := store.SeedFromFile(context.Background(), cfg.Catalog.SeedFile)
			if err != nil {
				_ = store.Close()
				a.Close()
				return nil, fmt.Errorf("seed catalog: %w", err)
			}
			logger.Info().Str("file", cfg.Catalog.SeedFile).Int("entries", n).Msg("catalog seeded")
		}
		a.store = store
		a.browser = store
		backend = store
	case config.SourceRemote:
		backend = catalogapi.NewClient(catalogapi.Config{
			BaseURL:   cfg.Catalog.BaseURL,
			APIKey:    cfg.Catalog.APIKey,
			Timeout:   cfg.Catalog.LookupTimeout,
			RateLimit: cfg.Catalog.RateLimit,
		}, logger)
		logger.Info().Str("base_url", cfg.Catalog.BaseURL).Msg("using remote catalog")
	default:
		a.Close()
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}

	a.source = cache.NewCandidateSource(backend, a.cache, cfg.Cache.TTL)

	deps := usecase.SessionDeps{
		Source:     a.source,
		Normalizer: a.normalizer,
		Matcher: usecase.NewMatchingService(a.source, a.normalizer, usecase.MatchConfig{
			LookupTimeout:  cfg.Catalog.LookupTimeout,
			CandidateLimit: cfg.Matching.SuggestionLimit,
		}, logger),
		Lines: usecase.NewLinePreprocessor(0, logger),
	}
	if cfg.OCR.BaseURL != "" {
		deps.Recognizer = ocr.NewClient(cfg.OCR.BaseURL, cfg.OCR.Timeout, logger)
	} else {
		logger.Warn().Msg("ocr.base_url not set, image upload disabled")
	}

	a.sessions = usecase.NewSessionManager(a.cache, deps, usecase.SessionConfig{
		Suggestions: usecase.SuggestionConfig{
			Debounce:       cfg.Matching.Debounce,
			MinQueryLength: cfg.Matching.MinQueryLength,
			Limit:          cfg.Matching.SuggestionLimit,
			Timeout:        cfg.Catalog.LookupTimeout,
		},
		BatchConcurrency: cfg.Matching.BatchConcurrency,
	}, cfg.Cache.SessionTTL, logger)
	a.cache.OnEvicted(a.sessions.Evicted)

	return a, nil
}

func openStore(cfg *config.Config, normalizer *usecase.Normalizer, logger zerolog.Logger) (*catalogdb.Store, error) {
	store, err := catalogdb.Open(cfg.Catalog.DBPath, logger,
		catalogdb.WithKeyFunc(normalizer.Key),
		catalogdb.WithMkdirAll(),
	)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	return store, nil
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
