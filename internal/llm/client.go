package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/imaging"
	"github.com/spherical/flyer-extractor/internal/metrics"
	"github.com/spherical/flyer-extractor/internal/observability"
)

const (
	defaultTimeout   = 45 * time.Second
	defaultMaxSide   = 1024
	defaultQuality   = 85
	imageMIMEType    = "image/jpeg"
	errorBodyLimit   = 512
	responseMIMEType = "application/json"
)

// GenerationConfig mirrors the generationConfig block of a generateContent request.
type GenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"topK"`
	TopP             float64 `json:"topP"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMIMEType string  `json:"responseMimeType"`
}

// DefaultGenerationConfig returns near-deterministic decoding with bounded output.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:      0.1,
		TopK:             1,
		TopP:             1,
		MaxOutputTokens:  4096,
		ResponseMIMEType: responseMIMEType,
	}
}

// Request is the generateContent request body
type Request struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// Content is one turn of the request
type Content struct {
	Parts []Part `json:"parts"`
}

// Part is either text or inline image data
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// InlineData carries a base64 payload
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Response is the generateContent success envelope
type Response struct {
	Candidates []Candidate `json:"candidates"`
}

// Candidate is one generated answer
type Candidate struct {
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
}

// ImageEncoder turns a page image into the base64 JPEG payload.
type ImageEncoder func(path string) (string, error)

// ClientOptions configures a Client. Rotator is required.
type ClientOptions struct {
	Rotator    *Rotator
	Generation GenerationConfig
	HTTPClient *http.Client
	Retry      RetryPolicy
	Encoder    ImageEncoder
	Metrics    *metrics.Metrics
	Logger     *observability.Logger
}

// Client extracts products from page images through the Gemini generateContent API.
type Client struct {
	rotator    *Rotator
	generation GenerationConfig
	httpClient *http.Client
	retry      RetryPolicy
	encode     ImageEncoder
	metrics    *metrics.Metrics
	logger     *observability.Logger
}

// NewClient creates a new vision client
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Rotator == nil {
		return nil, domain.ConfigError("vision client requires a credential rotator", nil)
	}

	c := &Client{
		rotator:    opts.Rotator,
		generation: opts.Generation,
		httpClient: opts.HTTPClient,
		retry:      opts.Retry.withDefaults(),
		encode:     opts.Encoder,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}

	if c.generation == (GenerationConfig{}) {
		c.generation = DefaultGenerationConfig()
	}
	if c.generation.ResponseMIMEType == "" {
		c.generation.ResponseMIMEType = responseMIMEType
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.encode == nil {
		c.encode = imaging.VisionEncoder(defaultMaxSide, defaultQuality)
	}
	if c.logger == nil {
		c.logger = observability.Nop()
	}
	c.logger = c.logger.WithOperation("vision_extract")

	onRetry := c.retry.OnRetry
	c.retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.metrics.IncRetries()
		c.logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", c.retry.MaxAttempts).
			Dur("wait", wait).
			Err(err).
			Msg("vision request failed, retrying")
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
	}

	return c, nil
}

// Extract sends one page to the vision service and returns the products found.
// It never fails: every error is logged and degrades to an empty slice.
func (c *Client) Extract(ctx context.Context, page domain.PageImage) []domain.RawProduct {
	logger := c.logger.WithContext(ctx).WithPage(page.PageNumber, 0)

	encoded, err := c.encode(page.ImagePath)
	if err != nil {
		logger.Error().Err(err).Str("image", page.ImagePath).Msg("failed to encode page image")
		c.metrics.IncError(string(domain.ErrorTypeIO))
		return []domain.RawProduct{}
	}

	body, err := json.Marshal(c.buildRequest(encoded))
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal request")
		return []domain.RawProduct{}
	}

	var products []domain.RawProduct
	err = c.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		p, err := c.attempt(ctx, body)
		if err != nil {
			return err
		}
		products = p
		return nil
	})
	if err != nil {
		errType := domain.TypeOf(err)
		if errType == "" {
			errType = "canceled"
		}
		c.metrics.IncError(string(errType))
		logger.Warn().Err(err).Str("error_type", string(errType)).Msg("no products extracted from page")
		return []domain.RawProduct{}
	}

	logger.Info().Int("products", len(products)).Msg("page extracted")
	return products
}

// buildRequest constructs the API request with the image
func (c *Client) buildRequest(encodedImage string) *Request {
	return &Request{
		Contents: []Content{{
			Parts: []Part{
				{Text: Prompt()},
				{InlineData: &InlineData{MIMEType: imageMIMEType, Data: encodedImage}},
			},
		}},
		GenerationConfig: c.generation,
	}
}

// attempt performs one request with the next credential and classifies the outcome.
func (c *Client) attempt(ctx context.Context, body []byte) ([]domain.RawProduct, error) {
	cred := c.rotator.Next()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, domain.RejectedError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		c.metrics.IncRequest("transport_error")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.TransientError("request failed", redactKey(err, cred))
	}
	defer resp.Body.Close()

	c.metrics.IncRequest(strconv.Itoa(resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		msg := fmt.Sprintf("service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
		if shouldRetry(resp.StatusCode) {
			return nil, domain.TransientError(msg, nil)
		}
		return nil, domain.RejectedError(msg, nil)
	}

	var envelope Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, domain.MalformedResponseError("decode response envelope", err)
	}

	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return nil, domain.RejectedError("response has no candidates", nil)
	}

	products, skipped, err := ParseProducts(envelope.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.logger.Warn().Int("skipped", skipped).Msg("dropped product entries that are not objects")
	}
	return products, nil
}

// redactKey keeps the API key out of transport error messages.
func redactKey(err error, cred Credential) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = cred.Endpoint
	}
	return err
}
