package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/hello-drektopia/redditbot-go/internal/config"
	"github.com/hello-drektopia/redditbot-go/internal/middleware"
	"github.com/hello-drektopia/redditbot-go/internal/models"
	"github.com/hello-drektopia/redditbot-go/internal/services/cache"
	botlog "github.com/hello-drektopia/redditbot-go/pkg/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// MaxAttempts bounds every provider call, including the first try
	MaxAttempts = 2
	// RetryDelay separates the attempts
	RetryDelay = 125 * time.Millisecond

	timeoutMarker = "context deadline exceeded"

	finishContentFilter = "content_filter"
	finishNull          = "null"
)

// Service is the LLM provider surface used by the reply pipeline
type Service interface {
	Complete(ctx context.Context, req CompletionRequest) (*models.CompletionResult, error)
	CheckModeration(ctx context.Context, apiKey string, text *string) (bool, error)
}

// CompletionRequest is one system+user chat completion
type CompletionRequest struct {
	APIKey       string
	Model        string
	SystemPrompt string
	UserMessage  string
	Temperature  float64
}

type chatRequest struct {
	Model       string           `json:"model"`
	Temperature float64          `json:"temperature"`
	Messages    []models.Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason *string        `json:"finish_reason"`
		Message      models.Message `json:"message"`
	} `json:"choices"`
}

type moderationRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged bool `json:"flagged"`
	} `json:"results"`
}

// Client talks to an OpenAI-compatible chat-completion and moderation API
type Client struct {
	baseURL         string
	moderationModel string
	httpClient      *retryablehttp.Client
	limiter         *rate.Limiter
	cache           cache.Service
	metrics         *middleware.Metrics
	logger          *logrus.Logger
}

// Option customises a Client
type Option func(*Client)

// WithTransport replaces the HTTP transport
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient.Transport = rt
	}
}

// WithRetryDelay overrides the fixed delay between attempts
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryWaitMin = d
		c.httpClient.RetryWaitMax = d
	}
}

// NewClient creates a provider client
func NewClient(cfg *config.OpenAIConfig, verdicts cache.Service, metrics *middleware.Metrics, logger *logrus.Logger, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = MaxAttempts - 1
	rc.RetryWaitMin = RetryDelay
	rc.RetryWaitMax = RetryDelay
	rc.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return min
	}
	rc.CheckRetry = TimeoutRetryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = retryablehttp.LeveledLogger(botlog.NewLeveled(logger.WithField("subsystem", "ai")))

	moderationModel := cfg.ModerationModel
	if moderationModel == "" {
		moderationModel = "text-moderation-stable"
	}

	c := &Client{
		baseURL:         strings.TrimSuffix(cfg.BaseURL, "/"),
		moderationModel: moderationModel,
		httpClient:      rc,
		cache:           verdicts,
		metrics:         metrics,
		logger:          logger,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TimeoutRetryPolicy retries only transport failures that hit a deadline.
// HTTP responses of any status are returned to the caller as-is.
func TimeoutRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return IsTimeout(err), nil
	}
	return false, nil
}

// IsTimeout reports whether a transport error was a deadline expiry
func IsTimeout(err error) bool {
	return err != nil && strings.Contains(err.Error(), timeoutMarker)
}

// Complete runs one chat completion
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*models.CompletionResult, error) {
	payload := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages: []models.Message{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserMessage},
		},
	}

	status, body, err := c.post(ctx, "chat/completions", req.APIKey, payload)
	if err != nil {
		return nil, err
	}

	if status < 200 || status > 299 {
		c.logger.WithFields(logrus.Fields{
			"status": status,
			"body":   string(body),
		}).Error("Completion request failed")
		return &models.CompletionResult{Kind: models.ResultHTTPError, Status: status}, nil
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse completion response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, &models.ProviderError{Message: "completion response has no choices"}
	}

	choice := result.Choices[0]
	if choice.FinishReason != nil {
		switch reason := *choice.FinishReason; reason {
		case finishContentFilter, finishNull:
			return &models.CompletionResult{Kind: models.ResultAbnormalFinish, FinishReason: reason}, nil
		}
	}

	return &models.CompletionResult{Kind: models.ResultContent, Content: choice.Message.Content}, nil
}

// CheckModeration asks the provider whether text violates content policy.
// Absent or empty text is never sent.
func (c *Client) CheckModeration(ctx context.Context, apiKey string, text *string) (bool, error) {
	if text == nil || *text == "" {
		return false, nil
	}

	if flagged, found := c.cache.Get(ctx, *text, c.moderationModel); found {
		return flagged, nil
	}

	status, body, err := c.post(ctx, "moderations", apiKey, moderationRequest{
		Model: c.moderationModel,
		Input: *text,
	})
	if err != nil {
		return false, fmt.Errorf("moderation check failed: %w", err)
	}
	if status < 200 || status > 299 {
		return false, &models.ProviderError{Status: status, Message: fmt.Sprintf("response not ok for moderation check: %d", status)}
	}

	var result moderationResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return false, fmt.Errorf("failed to parse moderation response: %w", err)
	}

	flagged := len(result.Results) > 0 && result.Results[0].Flagged
	if err := c.cache.Set(ctx, *text, c.moderationModel, flagged); err != nil {
		c.logger.WithError(err).Warn("Failed to cache moderation verdict")
	}
	return flagged, nil
}

// post sends one JSON request through the retrying client
func (c *Client) post(ctx context.Context, endpoint, apiKey string, payload interface{}) (int, []byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("outbound rate limit wait: %w", err)
		}
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, endpoint)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAIRequest(endpoint, "transport_error", time.Since(start))
		c.logger.WithError(err).WithField("endpoint", endpoint).Error("Fetch error calling provider")
		return 0, nil, fmt.Errorf("fetching failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordAIRequest(endpoint, "transport_error", time.Since(start))
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	status := "success"
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		status = "http_error"
	}
	c.metrics.RecordAIRequest(endpoint, status, time.Since(start))
	c.logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("Provider call resolved")

	return resp.StatusCode, body, nil
}
