package catalogapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicompare/backend/internal/domain"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:    baseURL,
		APIKey:     "test-api-key",
		RateLimit:  1000,
		RetryDelay: time.Millisecond,
	}, zerolog.Nop())
}

func TestNewClient(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://api.example.com/", APIKey: "k"}, zerolog.Nop())

	assert.Equal(t, "https://api.example.com", client.baseURL)
	assert.Equal(t, "k", client.apiKey)
	assert.Equal(t, defaultTimeout, client.httpClient.Timeout)
	assert.Equal(t, defaultRetryDelay, client.retryDelay)
	assert.NotNil(t, client.rateLimiter)
}

func TestSearchCandidates_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analyses/search", r.URL.Path)
		assert.Equal(t, "hemoleucograma", r.URL.Query().Get("query"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "test-api-key", r.Header.Get("X-API-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"results": [
				{"name": "Hemoleucograma", "category": "blood", "alternative_names": ["HLG"]},
				{"name": "Hemoleucograma cu formula", "category": "blood"}
			],
			"total": 2,
			"source": "database"
		}`))
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).SearchCandidates(context.Background(), "hemoleucograma", 10)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Hemoleucograma", got[0].Name)
	assert.Equal(t, []string{"HLG"}, got[0].AlternativeNames)
	assert.Equal(t, 100.0, got[0].Score)
	assert.Equal(t, 50.0, got[1].Score)
}

func TestSearchCandidates_DegradedSources(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "error payload with status 200",
			body: `{"results": [], "total": 0, "source": "error", "error": "db down"}`,
		},
		{
			name: "sample payload when the remote has no database",
			body: `{"results": [{"name": "Hemoglobina"}], "total": 1, "source": "sample"}`,
		},
		{
			name: "malformed JSON",
			body: `{"results": [`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).SearchCandidates(context.Background(), "hemo", 10)
			assert.ErrorIs(t, err, domain.ErrLookupFailed)
		})
	}
}

func TestSearchCandidates_NotFoundIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).SearchCandidates(context.Background(), "xyz", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchCandidates_RespectsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": [{"name": "A"}, {"name": "B"}, {"name": "C"}], "source": "database"}`))
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).SearchCandidates(context.Background(), "x", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results": [{"name": "TSH"}], "source": "database"}`))
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).SearchCandidates(context.Background(), "tsh", 10)

	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SearchCandidates(context.Background(), "tsh", 10)

	assert.ErrorIs(t, err, domain.ErrLookupFailed)
	assert.Equal(t, int32(maxAttempts), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SearchCandidates(context.Background(), "tsh", 10)

	assert.ErrorIs(t, err, domain.ErrLookupFailed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).SearchCandidates(ctx, "tsh", 10)
	assert.ErrorIs(t, err, domain.ErrLookupFailed)
}

func TestFetchCatalogEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/analyses/compare", r.URL.Path)

		var req compareRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.AnalysisNames, 1) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch req.AnalysisNames[0] {
		case `^Hemoleucograma$`:
			_, _ = w.Write([]byte(`{
				"results": [{
					"name": "Hemoleucograma",
					"category": "blood",
					"prices": {
						"reginamaria": {"normal": {"amount": 25, "currency": "RON"}, "premium_standard": {"amount": 22}},
						"medlife": {"normal": {"amount": 30, "currency": "RON"}, "premium": null}
					}
				}],
				"source": "database"
			}`))
		case `^Colesterol$`:
			_, _ = w.Write([]byte(`{"results": [{"name": "Colesterol total", "prices": {}}], "source": "database"}`))
		default:
			_, _ = w.Write([]byte(`{"results": [{"name": "XYZ-UNKNOWN-TEST", "prices": {}, "found": false}], "source": "database"}`))
		}
	}))
	defer server.Close()
	client := newTestClient(server.URL)
	ctx := context.Background()

	t.Run("maps known tiers and drops the rest", func(t *testing.T) {
		entry, err := client.FetchCatalogEntry(ctx, "Hemoleucograma")
		require.NoError(t, err)

		assert.Equal(t, "Hemoleucograma", entry.Name)
		require.Contains(t, entry.Prices, "reginamaria")
		q, ok := entry.Prices["reginamaria"].Quote(domain.TierNormal)
		require.True(t, ok)
		assert.Equal(t, domain.PriceQuote{Amount: 25, Currency: "RON"}, q)
		_, ok = entry.Prices["medlife"].Quote(domain.TierPremium)
		assert.False(t, ok)
	})

	t.Run("placeholder results are not found", func(t *testing.T) {
		_, err := client.FetchCatalogEntry(ctx, "XYZ-UNKNOWN-TEST")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("a different analysis is not found", func(t *testing.T) {
		_, err := client.FetchCatalogEntry(ctx, "Colesterol")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

// regexCatalog answers like the remote API: the query is compiled as a case-insensitive
// pattern, search returns every hit and compare returns the first one
func regexCatalog(t *testing.T, names ...string) *httptest.Server {
	t.Helper()

	find := func(w http.ResponseWriter, pattern string) []analysisDTO {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			_ = json.NewEncoder(w).Encode(map[string]string{"source": "error", "error": err.Error()})
			return nil
		}
		out := []analysisDTO{}
		for _, n := range names {
			if re.MatchString(n) {
				out = append(out, analysisDTO{Name: n})
			}
		}
		return out
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/analyses/search":
			if hits := find(w, r.URL.Query().Get("query")); hits != nil {
				_ = json.NewEncoder(w).Encode(searchResponse{Results: hits, Total: len(hits), Source: "database"})
			}
		case "/api/v1/analyses/compare":
			var req compareRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			hits := find(w, req.AnalysisNames[0])
			if hits == nil {
				return
			}
			if len(hits) > 1 {
				hits = hits[:1]
			}
			_ = json.NewEncoder(w).Encode(compareResponse{Results: hits, Source: "database"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSearchCandidates_RankedAndQuoted(t *testing.T) {
	server := regexCatalog(t, "Glicemie dupa masa", "Glicemie (a jeun)", "Glicemie")
	client := newTestClient(server.URL)
	ctx := context.Background()

	t.Run("exact name comes first", func(t *testing.T) {
		got, err := client.SearchCandidates(ctx, "glicemie", 10)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "Glicemie", got[0].Name)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
		}
	})

	t.Run("regex metacharacters are literal", func(t *testing.T) {
		got, err := client.SearchCandidates(ctx, "glicemie (a", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Glicemie (a jeun)", got[0].Name)
	})
}

func TestFetchCatalogEntry_AnchoredName(t *testing.T) {
	server := regexCatalog(t, "Glicemie dupa masa", "Glicemie (a jeun)", "Glicemie")
	client := newTestClient(server.URL)
	ctx := context.Background()

	tests := []struct {
		name    string
		ask     string
		want    string
		wantErr error
	}{
		{name: "longer name sharing a prefix is skipped", ask: "Glicemie", want: "Glicemie"},
		{name: "case is ignored", ask: "glicemie dupa masa", want: "Glicemie dupa masa"},
		{name: "parentheses are literal", ask: "Glicemie (a jeun)", want: "Glicemie (a jeun)"},
		{name: "unknown name", ask: "Glic", wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := client.FetchCatalogEntry(ctx, tt.ask)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, entry.Name)
		})
	}
}
