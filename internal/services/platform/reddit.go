package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/hello-drektopia/redditbot-go/internal/config"
	"github.com/hello-drektopia/redditbot-go/internal/models"
	botlog "github.com/hello-drektopia/redditbot-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

// RedditClient calls the reddit REST API with a bearer token
type RedditClient struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *retryablehttp.Client
	logger     *logrus.Logger
}

// Option customises a RedditClient
type Option func(*RedditClient)

// WithTransport replaces the HTTP transport
func WithTransport(rt http.RoundTripper) Option {
	return func(c *RedditClient) {
		c.httpClient.HTTPClient.Transport = rt
	}
}

// WithRetryWait sets the bounds of the retry backoff
func WithRetryWait(min, max time.Duration) Option {
	return func(c *RedditClient) {
		c.httpClient.RetryWaitMin = min
		c.httpClient.RetryWaitMax = max
	}
}

// NewRedditClient creates a platform client
func NewRedditClient(cfg *config.PlatformConfig, logger *logrus.Logger, opts ...Option) *RedditClient {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.CheckRetry = ReadOnlyRetryPolicy
	rc.Logger = retryablehttp.LeveledLogger(botlog.NewLeveled(logger.WithField("subsystem", "platform")))

	c := &RedditClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		httpClient: rc,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type writeKey struct{}

// asWrite marks ctx as carrying a non-idempotent request
func asWrite(ctx context.Context) context.Context {
	return context.WithValue(ctx, writeKey{}, true)
}

// ReadOnlyRetryPolicy retries GETs the way retryablehttp does by default, minus 429.
// Writes are never retried, whether they failed in transport or got a response.
func ReadOnlyRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if ctx.Value(writeKey{}) != nil {
		return false, nil
	}
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	if resp != nil && resp.Request != nil && resp.Request.Method != http.MethodGet {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type thing struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

type thingData struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	LinkID         string  `json:"link_id"`
	ParentID       string  `json:"parent_id"`
	AuthorFullname string  `json:"author_fullname"`
	Body           *string `json:"body"`
	Selftext       *string `json:"selftext"`
	IsSelf         bool    `json:"is_self"`
	Locked         bool    `json:"locked"`
	Removed        bool    `json:"removed"`
	Spam           bool    `json:"spam"`
}

type listing struct {
	Data struct {
		Children []thing `json:"children"`
	} `json:"data"`
}

type jsonResult struct {
	JSON struct {
		Errors [][]interface{} `json:"errors"`
	} `json:"json"`
}

// GetComment fetches a comment by fullname
func (c *RedditClient) GetComment(ctx context.Context, id string) (*models.ContentItem, error) {
	t, err := c.info(ctx, WithPrefix(CommentPrefix, id))
	if err != nil {
		return nil, err
	}
	if t.Kind != "t1" {
		return nil, fmt.Errorf("thing %s is a %s, not a comment", id, t.Kind)
	}

	item := models.NewComment(t.Data.Name, t.Data.LinkID, t.Data.ParentID, t.Data.Body)
	fill(item, &t.Data)
	return item, nil
}

// GetPost fetches a post by fullname. Link and image posts have no body.
func (c *RedditClient) GetPost(ctx context.Context, id string) (*models.ContentItem, error) {
	t, err := c.info(ctx, WithPrefix(PostPrefix, id))
	if err != nil {
		return nil, err
	}
	if t.Kind != "t3" {
		return nil, fmt.Errorf("thing %s is a %s, not a post", id, t.Kind)
	}

	var body *string
	if t.Data.IsSelf && t.Data.Selftext != nil {
		body = t.Data.Selftext
	}
	item := models.NewPost(t.Data.Name, body)
	fill(item, &t.Data)
	return item, nil
}

func fill(item *models.ContentItem, d *thingData) {
	item.AuthorID = d.AuthorFullname
	item.Locked = d.Locked
	item.Removed = d.Removed
	item.Spam = d.Spam
}

// SubmitComment replies to a comment or post
func (c *RedditClient) SubmitComment(ctx context.Context, parentID, text string) error {
	return c.postForm(ctx, "/api/comment", url.Values{
		"api_type": {"json"},
		"thing_id": {parentID},
		"text":     {text},
	})
}

// SendPrivateMessage sends a private message to a user
func (c *RedditClient) SendPrivateMessage(ctx context.Context, to, subject, text string) error {
	return c.postForm(ctx, "/api/compose", url.Values{
		"api_type": {"json"},
		"to":       {to},
		"subject":  {subject},
		"text":     {text},
	})
}

// AppUser returns the account the bot runs as
func (c *RedditClient) AppUser(ctx context.Context) (*models.User, error) {
	var me struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, "/api/v1/me", &me); err != nil {
		return nil, err
	}
	return &models.User{ID: WithPrefix(UserPrefix, me.ID), Username: me.Name}, nil
}

func (c *RedditClient) info(ctx context.Context, fullname string) (*thing, error) {
	var l listing
	if err := c.getJSON(ctx, "/api/info?id="+url.QueryEscape(fullname), &l); err != nil {
		return nil, err
	}
	if len(l.Data.Children) == 0 {
		return nil, fmt.Errorf("thing %s not found", fullname)
	}
	return &l.Data.Children[0], nil
}

func (c *RedditClient) newRequest(ctx context.Context, method, path string, body interface{}) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *RedditClient) do(req *retryablehttp.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read platform response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WithFields(logrus.Fields{
			"url":    req.URL.Path,
			"status": resp.StatusCode,
		}).Warn("Platform API returned an error")
		return nil, fmt.Errorf("platform API error: %d %s", resp.StatusCode, req.URL.Path)
	}
	return body, nil
}

func (c *RedditClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse platform response: %w", err)
	}
	return nil
}

func (c *RedditClient) postForm(ctx context.Context, path string, form url.Values) error {
	req, err := c.newRequest(asWrite(ctx), http.MethodPost, path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return err
	}

	var result jsonResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse platform response: %w", err)
	}
	if len(result.JSON.Errors) > 0 {
		return fmt.Errorf("platform rejected %s: %v", path, result.JSON.Errors[0])
	}
	return nil
}
