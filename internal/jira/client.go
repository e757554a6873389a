package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const errorPreviewLimit = 200

var ErrIssueNotFound = errors.New("issue not found")

// API is what the downloader needs from Jira.
type API interface {
	GetIssue(ctx context.Context, key string) (*Issue, error)
	GetAttachments(ctx context.Context, key string) ([]Attachment, error)
	DownloadFile(ctx context.Context, rawURL, path string) error
}

type ClientConfig struct {
	BaseURL           string
	Email             string
	APIToken          string
	Timeout           time.Duration
	RequestsPerSecond float64
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the Jira REST API. It is safe for concurrent use: the
// underlying http.Client and rate.Limiter are shared by all callers.
type Client struct {
	baseURL  string
	email    string
	apiToken string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

var _ API = (*Client)(nil)

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// GetIssue fetches the fields needed to resolve attachment URLs.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s?fields=summary,description,attachment",
		c.baseURL, url.PathEscape(key))

	resp, err := c.do(ctx, http.MethodGet, endpoint, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrIssueNotFound, key)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("failed to get issue %s: %s", key, statusError(resp))
	}

	var issue Issue
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return nil, fmt.Errorf("failed to decode issue %s: %w", key, err)
	}
	return &issue, nil
}

func (c *Client) GetAttachments(ctx context.Context, key string) ([]Attachment, error) {
	issue, err := c.GetIssue(ctx, key)
	if err != nil {
		return nil, err
	}
	return issue.Fields.Attachment, nil
}

// DownloadFile streams rawURL into path. CloudFront-signed URLs are tried
// without credentials first and retried once with basic auth.
func (c *Client) DownloadFile(ctx context.Context, rawURL, path string) error {
	cloudfront := isCloudFrontSignedURL(rawURL)

	resp, err := c.do(ctx, http.MethodGet, rawURL, !cloudfront)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", rawURL, err)
	}

	if resp.StatusCode/100 != 2 && cloudfront {
		c.logger.Debug("signed URL rejected, retrying with basic auth",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode))
		resp.Body.Close()

		resp, err = c.do(ctx, http.MethodGet, rawURL, true)
		if err != nil {
			return fmt.Errorf("failed to download with basic auth %s: %w", rawURL, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return errors.New(downloadError(resp))
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return file.Close()
}

func (c *Client) do(ctx context.Context, method, rawURL string, auth bool) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.baseURL != "" {
		req.Header.Set("Referer", c.baseURL)
	}
	if auth {
		req.SetBasicAuth(c.email, c.apiToken)
	}

	return c.http.Do(req)
}

func isCloudFrontSignedURL(rawURL string) bool {
	return strings.Contains(rawURL, "cloudfront.net") &&
		strings.Contains(rawURL, "Expires=") &&
		strings.Contains(rawURL, "Signature=")
}

func downloadError(resp *http.Response) string {
	return "download failed with " + statusError(resp)
}

func statusError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorPreviewLimit+1))
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("status: %d", resp.StatusCode)
	}
	if len(text) > errorPreviewLimit {
		text = text[:errorPreviewLimit] + "..."
	}
	return fmt.Sprintf("status: %d - %s", resp.StatusCode, text)
}
