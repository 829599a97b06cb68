package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/pkg/config"
	apperrors "github.com/dealsight/backend/pkg/errors"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client implements the transcript categorization provider against the
// OpenAI responses API.
type Client struct {
	apiKey        string
	model         string
	promptVersion string
	baseURL       string
	httpClient    *http.Client
	limiter       *tokenBucket
}

// NewClient creates a new OpenAI categorization client.
func NewClient(cfg *config.OpenAIConfig) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	promptVersion := cfg.PromptVersion
	if promptVersion == "" {
		promptVersion = "v1"
	}

	return &Client{
		apiKey:        cfg.APIKey,
		model:         model,
		promptVersion: promptVersion,
		baseURL:       defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: newTokenBucket(cfg.RateLimitRPM, cfg.RateLimitBurst),
	}, nil
}

// Provider returns the provider identifier
func (c *Client) Provider() string { return "openai" }

// Model returns the configured model identifier
func (c *Client) Model() string { return c.model }

// PromptVersion returns the configured prompt version
func (c *Client) PromptVersion() string { return c.promptVersion }

type responseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseOutput struct {
	Content []responseContent `json:"content"`
}

type responseEnvelope struct {
	Output []responseOutput `json:"output"`
}

// ExtractCategories categorizes a meeting transcript into the fixed category
// domains. The parsed payload is validated before being returned so values
// outside the known domains surface as errors here rather than as silent
// zero encodings at training time.
func (c *Client) ExtractCategories(ctx context.Context, transcription string) (*entities.CategoryData, error) {
	if strings.TrimSpace(transcription) == "" {
		return nil, apperrors.NewValidationError("transcription is empty")
	}

	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			recordCategorizationMetric(ctx, c.model, 0, 0, err)
			return nil, err
		}
		recordRateLimitWait(ctx, c.model, time.Since(waitStart))
	}

	payload := map[string]interface{}{
		"model": c.model,
		"input": []map[string]string{
			{"role": "system", "content": categorizationSystemPrompt()},
			{"role": "user", "content": buildCategorizationUserPrompt(transcription)},
		},
		"temperature":       0.1,
		"max_output_tokens": 800,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordCategorizationMetric(ctx, c.model, 0, time.Since(start), err)
		return nil, apperrors.NewExternalError("openai request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("status %d", resp.StatusCode)
		recordCategorizationMetric(ctx, c.model, resp.StatusCode, time.Since(start), statusErr)
		return nil, apperrors.NewExternalError(fmt.Sprintf("openai request failed with status %d", resp.StatusCode), statusErr)
	}

	var envelope responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		recordCategorizationMetric(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return nil, apperrors.NewExternalError("failed to decode openai response", err)
	}

	var text string
	for _, out := range envelope.Output {
		for _, content := range out.Content {
			if content.Type == "output_text" && content.Text != "" {
				text = content.Text
				break
			}
		}
		if text != "" {
			break
		}
	}

	if text == "" {
		err := errors.New("missing output text")
		recordCategorizationMetric(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return nil, apperrors.NewExternalError("openai response missing output text", err)
	}

	data, err := parseCategoryPayload(text)
	if err != nil {
		recordCategorizationMetric(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return nil, err
	}

	recordCategorizationMetric(ctx, c.model, resp.StatusCode, time.Since(start), nil)
	return data, nil
}

// parseCategoryPayload strips Markdown fences, unmarshals the JSON payload
// and validates it against the fixed category domains.
func parseCategoryPayload(text string) (*entities.CategoryData, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	cleaned = strings.TrimSpace(cleaned)

	var data entities.CategoryData
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, apperrors.NewExternalError("failed to parse category payload", err)
	}

	if err := data.Validate(); err != nil {
		return nil, err
	}

	return &data, nil
}

func newTokenBucket(rpm, burst int) *tokenBucket {
	if rpm == 0 {
		rpm = 60
	}
	if rpm < 0 {
		return nil
	}
	if burst <= 0 {
		burst = 5
	}

	bucket := &tokenBucket{
		tokens: make(chan struct{}, burst),
	}
	for i := 0; i < burst; i++ {
		bucket.tokens <- struct{}{}
	}

	interval := time.Minute / time.Duration(rpm)
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			select {
			case bucket.tokens <- struct{}{}:
			default:
			}
		}
	}()

	return bucket
}

type tokenBucket struct {
	tokens chan struct{}
}

func (b *tokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.tokens:
		return nil
	}
}

type categorizationMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
	rateLimitWait   metric.Float64Histogram
}

var metricsInit = false
var catMetrics categorizationMetrics

func ensureMetrics() {
	if metricsInit {
		return
	}
	meter := otel.Meter("github.com/dealsight/backend/openai")

	requestCount, err := meter.Int64Counter(
		"ai.categorization.request.count",
		metric.WithDescription("Number of categorization requests"),
	)
	if err != nil {
		return
	}
	requestDuration, err := meter.Float64Histogram(
		"ai.categorization.request.duration",
		metric.WithDescription("Categorization request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	requestErrors, err := meter.Int64Counter(
		"ai.categorization.request.errors",
		metric.WithDescription("Number of categorization request errors"),
	)
	if err != nil {
		return
	}
	rateLimitWait, err := meter.Float64Histogram(
		"ai.categorization.rate_limit.wait",
		metric.WithDescription("Time spent waiting for the rate limiter in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}

	catMetrics = categorizationMetrics{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		requestErrors:   requestErrors,
		rateLimitWait:   rateLimitWait,
	}
	metricsInit = true
}

func recordCategorizationMetric(ctx context.Context, model string, statusCode int, duration time.Duration, err error) {
	ensureMetrics()
	if !metricsInit {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.model", model),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}

	catMetrics.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	catMetrics.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		catMetrics.requestErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func recordRateLimitWait(ctx context.Context, model string, wait time.Duration) {
	ensureMetrics()
	if !metricsInit {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.model", model),
	}
	catMetrics.rateLimitWait.Record(ctx, float64(wait.Milliseconds()), metric.WithAttributes(attrs...))
}
