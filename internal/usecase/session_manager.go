package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medicompare/backend/internal/domain"
)

const (
	defaultSessionTTL = 2 * time.Hour
	sessionKeyPrefix  = "session:"
)

// SessionManager creates comparison sessions and expires idle ones.
// Sessions live in the cache under "session:{id}"; every access refreshes the TTL.
type SessionManager struct {
	cache  domain.CacheRepository
	deps   SessionDeps
	config SessionConfig
	ttl    time.Duration
	logger zerolog.Logger
}

// NewSessionManager creates a session manager backed by the given cache
func NewSessionManager(
	cache domain.CacheRepository,
	deps SessionDeps,
	config SessionConfig,
	ttl time.Duration,
	logger zerolog.Logger,
) *SessionManager {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionManager{
		cache:  cache,
		deps:   deps,
		config: config,
		ttl:    ttl,
		logger: logger,
	}
}

// Create starts a new empty session
func (m *SessionManager) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	sess := NewSession(id, m.deps, m.config, m.logger)
	if err := m.cache.Set(ctx, sessionKey(id), sess, m.ttl); err != nil {
		return nil, err
	}
	m.logger.Info().Str("session", id).Msg("session created")
	return sess, nil
}

// Get returns a live session and refreshes its expiry
func (m *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	value, err := m.cache.Get(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	sess, ok := value.(*Session)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	if err := m.cache.Set(ctx, sessionKey(id), sess, m.ttl); err != nil {
		m.logger.Warn().Err(err).Str("session", id).Msg("could not refresh session ttl")
	}
	return sess, nil
}

// Delete closes and forgets a session
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Close()
	return m.cache.Delete(ctx, sessionKey(id))
}

// Evicted closes a session the cache dropped after its TTL ran out, stopping its
// suggestion timers and lookups. Other cache entries are ignored.
func (m *SessionManager) Evicted(key string, value interface{}) {
	if !strings.HasPrefix(key, sessionKeyPrefix) {
		return
	}
	sess, ok := value.(*Session)
	if !ok {
		return
	}
	sess.Close()
	m.logger.Info().Str("session", sess.ID()).Msg("session expired")
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}
