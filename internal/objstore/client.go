package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"orgfhir/internal/config"
)

const defaultMaxTries = 5

var (
	ErrNotConfigured = errors.New("object storage is not configured")
	ErrNotFound      = errors.New("object not found")
)

// StatusError is a non-2xx answer from the storage API.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("storage api error: %s %s status=%d body=%s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the Supabase storage REST API for a single bucket.
type Client struct {
	baseURL    string
	key        string
	bucket     string
	httpClient *http.Client
	limiter    *RateLimiter
	maxTries   uint
	newBackOff func() backoff.BackOff
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.SupabaseURL, "/"),
		key:        cfg.SupabaseKey,
		bucket:     cfg.StorageBucket,
		httpClient: &http.Client{Timeout: time.Duration(cfg.StorageTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.StorageRateLimitRPS),
		maxTries:   defaultMaxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			return b
		},
	}
}

func (c *Client) Bucket() string { return c.bucket }

// Download returns the content of one object. A missing object yields
// ErrNotFound.
func (c *Client) Download(ctx context.Context, objectPath string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, objectPath, nil, "")
}

// Upload stores content under objectPath, overwriting any existing object.
func (c *Client) Upload(ctx context.Context, objectPath string, content []byte, contentType string) error {
	_, err := c.do(ctx, http.MethodPost, objectPath, content, contentType)
	return err
}

func (c *Client) objectURL(objectPath string) (string, error) {
	if c.baseURL == "" || strings.TrimSpace(c.key) == "" {
		return "", ErrNotConfigured
	}
	segments := []string{c.baseURL, "storage/v1/object", url.PathEscape(c.bucket)}
	for _, part := range strings.Split(strings.Trim(objectPath, "/"), "/") {
		segments = append(segments, url.PathEscape(part))
	}
	return strings.Join(segments, "/"), nil
}

func (c *Client) do(ctx context.Context, method, objectPath string, body []byte, contentType string) ([]byte, error) {
	target, err := c.objectURL(objectPath)
	if err != nil {
		return nil, err
	}

	operation := func() ([]byte, error) {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("apikey", c.key)
		if body != nil {
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("x-upsert", "true")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, backoff.Permanent(fmt.Errorf("%w: %s/%s", ErrNotFound, c.bucket, objectPath))
		}
		statusErr := &StatusError{Method: method, Path: objectPath, StatusCode: resp.StatusCode, Body: string(respBody)}
		if !isRetryableStatus(resp.StatusCode) {
			return nil, backoff.Permanent(statusErr)
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, statusErr
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
