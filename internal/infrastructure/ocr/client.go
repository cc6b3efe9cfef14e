package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/medicompare/backend/internal/domain"
)

const (
	defaultTimeout = 60 * time.Second
	maxImageSize   = 10 << 20
	userAgent      = "MediCompare/1.0"
)

// processResponse is the body returned by POST /api/v1/ocr/process
type processResponse struct {
	RawText    string   `json:"raw_text"`
	Analyses   []string `json:"analyses"`
	FoundCount int      `json:"found_count"`
}

// Client is a Recognizer backed by a remote OCR service
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
	logger      zerolog.Logger
}

var _ domain.Recognizer = (*Client)(nil)

// NewClient creates a new OCR client. One recognition per second is allowed with a burst of 3.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		rateLimiter: rate.NewLimiter(rate.Limit(1), 3),
		logger:      logger.With().Str("component", "ocr").Logger(),
	}
}

// Recognize uploads the image and returns the recognized text lines.
// The raw text is preferred; the service's own extracted analyses are used when it is empty.
func (c *Client) Recognize(ctx context.Context, image []byte, contentType string) ([]string, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInvalidInput)
	}
	if len(image) > maxImageSize {
		return nil, fmt.Errorf("%w: image larger than %d bytes", domain.ErrInvalidInput, maxImageSize)
	}
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: file must be an image, got %s", domain.ErrInvalidInput, contentType)
	}

	body, formType, err := encodeImage(image, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrLookupFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/ocr/process", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn().Int("status", resp.StatusCode).Str("body", string(msg)).Msg("recognition failed")
		if resp.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.TrimSpace(string(msg)))
		}
		return nil, fmt.Errorf("%w: status %d", domain.ErrLookupFailed, resp.StatusCode)
	}

	var out processResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrLookupFailed, err)
	}

	lines := splitLines(out.RawText)
	if len(lines) == 0 {
		lines = append([]string{}, out.Analyses...)
	}

	c.logger.Info().
		Int("lines", len(lines)).
		Int("found", out.FoundCount).
		Dur("took", time.Since(start)).
		Msg("image recognized")
	return lines, nil
}

func encodeImage(image []byte, contentType string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="recommendation"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func splitLines(text string) []string {
	lines := []string{}
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
