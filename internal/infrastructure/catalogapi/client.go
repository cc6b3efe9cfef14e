package catalogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/medicompare/backend/internal/domain"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRateLimit  = 10
	defaultRetryDelay = 500 * time.Millisecond
	maxAttempts       = 3
	userAgent         = "MediCompare/1.0"
)

// Config holds the remote catalog connection settings
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	RetryDelay time.Duration
}

// Client is a Candidate Source backed by a remote medical analyses API
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	retryDelay  time.Duration
	rateLimiter *rate.Limiter
	logger      zerolog.Logger
}

var _ domain.CandidateSource = (*Client)(nil)

// NewClient creates a new remote catalog client
func NewClient(config Config, logger zerolog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := config.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	delay := config.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiKey:      config.APIKey,
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		retryDelay:  delay,
		rateLimiter: rate.NewLimiter(rate.Limit(limit), int(limit)+1),
		logger:      logger.With().Str("component", "catalogapi").Logger(),
	}
}

// SearchCandidates queries GET /api/v1/analyses/search.
// The remote side compiles the query as a case-insensitive regex, so it is sent quoted.
func (c *Client) SearchCandidates(ctx context.Context, normalizedQuery string, limit int) ([]domain.Candidate, error) {
	params := url.Values{}
	params.Add("query", regexp.QuoteMeta(normalizedQuery))
	params.Add("limit", strconv.Itoa(limit))
	reqURL := fmt.Sprintf("%s/api/v1/analyses/search?%s", c.baseURL, params.Encode())

	body, err := c.do(ctx, http.MethodGet, reqURL, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.Candidate{}, nil
	}
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", domain.ErrLookupFailed, err)
	}
	if err := resp.sourceErr(); err != nil {
		return nil, err
	}

	candidates := MapToCandidates(resp.Results, normalizedQuery)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	c.logger.Debug().Str("query", normalizedQuery).Int("results", len(candidates)).Msg("remote search")
	return candidates, nil
}

// FetchCatalogEntry asks POST /api/v1/analyses/compare for a single name.
// The remote side returns the first pattern hit, so the name is sent as an anchored literal
// and a result for a different analysis still counts as not found.
func (c *Client) FetchCatalogEntry(ctx context.Context, name string) (domain.CatalogEntry, error) {
	payload, err := json.Marshal(compareRequest{AnalysisNames: []string{exactPattern(name)}})
	if err != nil {
		return domain.CatalogEntry{}, fmt.Errorf("failed to encode request: %w", err)
	}
	reqURL := fmt.Sprintf("%s/api/v1/analyses/compare", c.baseURL)

	body, err := c.do(ctx, http.MethodPost, reqURL, payload)
	if err != nil {
		return domain.CatalogEntry{}, err
	}

	var resp compareResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.CatalogEntry{}, fmt.Errorf("%w: decode compare response: %v", domain.ErrLookupFailed, err)
	}
	if err := resp.sourceErr(); err != nil {
		return domain.CatalogEntry{}, err
	}

	for _, a := range resp.Results {
		if a.Found != nil && !*a.Found {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(a.Name), strings.TrimSpace(name)) {
			c.logger.Debug().Str("asked", name).Str("got", a.Name).Msg("compare returned a different analysis")
			continue
		}
		return MapToCatalogEntry(a), nil
	}
	return domain.CatalogEntry{}, fmt.Errorf("%w: %s", domain.ErrNotFound, name)
}

// do executes a request with rate limiting and up to maxAttempts tries.
// 5xx, 429 and transport errors are retried with exponential backoff; 404 maps to ErrNotFound.
func (c *Client) do(ctx context.Context, method, reqURL string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrLookupFailed, err)
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrLookupFailed, err)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Str("url", req.URL.Path).Msg("request error")
			lastErr = fmt.Errorf("%w: %v", domain.ErrLookupFailed, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, fmt.Errorf("%w: read body: %v", domain.ErrLookupFailed, readErr)
			}
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, domain.ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn().
				Int("attempt", attempt).
				Int("status", resp.StatusCode).
				Str("url", req.URL.Path).
				Msg("catalog API error, retrying")
			lastErr = fmt.Errorf("%w: status %d", domain.ErrLookupFailed, resp.StatusCode)
		default:
			return nil, fmt.Errorf("%w: status %d, body: %s", domain.ErrLookupFailed, resp.StatusCode, truncate(string(body), 200))
		}
	}

	c.logger.Error().Err(lastErr).Str("url", reqURL).Msg("all retries failed")
	return nil, lastErr
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.retryDelay << (attempt - 2)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func exactPattern(name string) string {
	return "^" + regexp.QuoteMeta(strings.TrimSpace(name)) + "$"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
