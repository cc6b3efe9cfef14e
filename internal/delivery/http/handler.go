package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/medicompare/backend/internal/domain"
	"github.com/medicompare/backend/internal/usecase"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	defaultListLimit   = 50
	maxListLimit       = 200
	maxUploadSize      = 10 << 20
)

// CatalogBrowser lists the catalog; only the SQLite source supports it
type CatalogBrowser interface {
	Categories(ctx context.Context) ([]domain.CategoryCount, error)
	List(ctx context.Context, category string, offset, limit int) ([]domain.CatalogEntry, int, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sessions   *usecase.SessionManager
	source     domain.CandidateSource
	normalizer *usecase.Normalizer
	browser    CatalogBrowser
	providers  []domain.Provider
	logger     zerolog.Logger
}

// NewHandler creates a new HTTP handler. browser may be nil.
func NewHandler(
	sessions *usecase.SessionManager,
	source domain.CandidateSource,
	normalizer *usecase.Normalizer,
	browser CatalogBrowser,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		sessions:   sessions,
		source:     source,
		normalizer: normalizer,
		browser:    browser,
		providers:  domain.DefaultProviders,
		logger:     logger.With().Str("component", "http").Logger(),
	}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type queryRequest struct {
	Text string `json:"text" binding:"required"`
}

type linesRequest struct {
	Lines []string `json:"lines" binding:"required"`
	// Preprocess runs the OCR line cleanup before matching
	Preprocess bool `json:"preprocess"`
}

type editRequest struct {
	Query string `json:"query"`
}

type pickRequest struct {
	Name string `json:"name" binding:"required"`
}

type batchResponse struct {
	Results []usecase.SubmitResult `json:"results"`
	Matched int                    `json:"matched"`
	Pending int                    `json:"pending"`
}

type savingsResponse struct {
	ProviderA string          `json:"providerA"`
	ProviderB string          `json:"providerB"`
	Tier      domain.PlanTier `json:"tier"`
	// Amount is null when either side has no data or the totals are equal
	Amount *float64 `json:"amount"`
}

type bestProvider struct {
	Provider string  `json:"provider"`
	Amount   float64 `json:"amount"`
}

type tableResponse struct {
	usecase.TableSnapshot
	Best map[domain.PlanTier]bestProvider `json:"best"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "medicompare-backend",
		"version": "1.0.0",
	})
}

// ListProviders returns the providers shown in the comparison table
func (h *Handler) ListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.providers})
}

// SearchAnalyses returns ranked catalog candidates for a free-text query
func (h *Handler) SearchAnalyses(c *gin.Context) {
	key := h.normalizer.Key(c.Query("query"))
	if key == "" {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}

	limit, err := intQuery(c, "limit", defaultSearchLimit)
	if err != nil || limit < 1 {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	results, err := h.source.SearchCandidates(c.Request.Context(), key, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}

// ListAnalyses pages through the catalog, optionally filtered by category
func (h *Handler) ListAnalyses(c *gin.Context) {
	if h.browser == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "catalog source does not support listing", Code: "not_supported"})
		return
	}

	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}
	limit, err := intQuery(c, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	entries, total, err := h.browser.List(c.Request.Context(), c.Query("category"), offset, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": entries, "total": total, "offset": offset, "limit": limit})
}

// ListCategories returns catalog categories with their entry counts
func (h *Handler) ListCategories(c *gin.Context) {
	if h.browser == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "catalog source does not support categories", Code: "not_supported"})
		return
	}

	cats, err := h.browser.Categories(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

// CreateSession starts a new comparison session
func (h *Handler) CreateSession(c *gin.Context) {
	sess, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": sess.ID()})
}

// DeleteSession closes a session
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitQuery matches one typed test name
func (h *Handler) SubmitQuery(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}

	result, err := sess.SubmitTypedQuery(c.Request.Context(), req.Text)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SubmitLines matches a batch of recognized lines
func (h *Handler) SubmitLines(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req linesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}

	var results []usecase.SubmitResult
	var err error
	if req.Preprocess {
		results, err = sess.SubmitDetectedText(c.Request.Context(), req.Lines)
	} else {
		results, err = sess.SubmitOCRBatch(c.Request.Context(), req.Lines)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBatchResponse(results))
}

// SubmitImage runs recognition on an uploaded image and matches the lines found
func (h *Handler) SubmitImage(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}

	results, err := sess.SubmitImage(c.Request.Context(), image, header.Header.Get("Content-Type"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBatchResponse(results))
}

// ListPending returns the unresolved items in creation order
func (h *Handler) ListPending(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": sess.PendingItems()})
}

// EditPending updates a pending item's query; suggestions refresh asynchronously
func (h *Handler) EditPending(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}

	if err := sess.EditPending(c.Param("itemId"), req.Query); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": c.Param("itemId"), "query": req.Query})
}

// PendingSuggestions returns the suggestions currently visible for a pending item
func (h *Handler) PendingSuggestions(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	id := c.Param("itemId")
	suggestions, err := sess.PendingSuggestions(id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "suggestions": suggestions})
}

// PickSuggestion resolves a pending item with the chosen candidate
func (h *Handler) PickSuggestion(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req pickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}

	result, err := sess.PickSuggestion(c.Request.Context(), c.Param("itemId"), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DismissPending drops a pending item without touching the table
func (h *Handler) DismissPending(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	if err := sess.Dismiss(c.Param("itemId")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTable returns the matched entries with totals and the cheapest provider per tier
func (h *Handler) GetTable(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	resp := tableResponse{
		TableSnapshot: sess.Table(),
		Best:          make(map[domain.PlanTier]bestProvider),
	}
	for _, tier := range domain.PlanTiers {
		if provider, amount, ok := sess.BestProvider(tier); ok {
			resp.Best[tier] = bestProvider{Provider: provider, Amount: amount}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// RemoveEntry removes the table entry at the given position
func (h *Handler) RemoveEntry(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}

	removed, err := sess.RemoveMatched(index)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed, "totals": sess.Totals()})
}

// GetSavings compares the totals of two providers for one tier
func (h *Handler) GetSavings(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	a, b := c.Query("a"), c.Query("b")
	if a == "" || b == "" {
		h.writeError(c, domain.ErrInvalidInput)
		return
	}

	tier := domain.TierNormal
	if raw := c.Query("tier"); raw != "" {
		parsed, err := domain.ParsePlanTier(raw)
		if err != nil {
			h.writeError(c, err)
			return
		}
		tier = parsed
	}

	resp := savingsResponse{ProviderA: a, ProviderB: b, Tier: tier}
	if amount, ok := sess.Savings(a, b, tier); ok {
		resp.Amount = &amount
	}
	c.JSON(http.StatusOK, resp)
}

// ExportTable downloads the comparison table as CSV
func (h *Handler) ExportTable(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	csv, err := sess.ExportTable()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="comparison.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csv))
}

func (h *Handler) session(c *gin.Context) (*usecase.Session, bool) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return sess, true
}

// writeError maps domain errors to HTTP status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownPlanTier):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrSessionNotFound):
		status, code = http.StatusNotFound, "session_not_found"
	case errors.Is(err, domain.ErrItemNotFound):
		status, code = http.StatusNotFound, "item_not_found"
	case errors.Is(err, domain.ErrIndexOutOfRange):
		status, code = http.StatusNotFound, "index_out_of_range"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrLookupFailed):
		status, code = http.StatusBadGateway, "lookup_failed"
	}

	if status >= 500 {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func newBatchResponse(results []usecase.SubmitResult) batchResponse {
	resp := batchResponse{Results: results}
	if resp.Results == nil {
		resp.Results = []usecase.SubmitResult{}
	}
	for _, r := range results {
		if r.Kind == domain.AutoMatched {
			resp.Matched++
		} else {
			resp.Pending++
		}
	}
	return resp
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
