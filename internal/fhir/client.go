package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2/clientcredentials"

	"orgfhir/internal/config"
)

const (
	ContentType     = "application/fhir+json"
	defaultMaxTries = 4
)

var ErrNoServer = errors.New("FHIR_SERVER is not set")

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fhir server error: status=%d body=%s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// NewClient builds a client for FHIR_SERVER. A bare host[:port] is addressed
// over plain http. With FHIR_TOKEN_URL set, requests carry an OAuth2 token
// obtained through the client-credentials flow.
func NewClient(ctx context.Context, cfg config.Config) (*Client, error) {
	server := strings.TrimSpace(cfg.FHIRServer)
	if server == "" {
		return nil, ErrNoServer
	}
	baseURL := server
	if !strings.Contains(server, "://") {
		baseURL = "http://" + server
	}

	httpClient := &http.Client{}
	if cfg.FHIRTokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.FHIRClientID,
			ClientSecret: cfg.FHIRClientSecret,
			TokenURL:     cfg.FHIRTokenURL,
			Scopes:       cfg.FHIRScopes,
		}
		httpClient = cc.Client(ctx)
	}
	httpClient.Timeout = time.Duration(cfg.FHIRTimeoutMs) * time.Millisecond

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		maxTries:   defaultMaxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			return b
		},
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// SubmitTransaction posts a transaction bundle to the server base and returns
// the response bundle body. A transaction is applied atomically by the server,
// so only gateway and throttling answers are retried.
func (c *Client) SubmitTransaction(ctx context.Context, bundle Bundle) ([]byte, error) {
	if bundle.Type != BundleTransaction {
		return nil, fmt.Errorf("expected %s bundle, got %q", BundleTransaction, bundle.Type)
	}
	payload, err := json.Marshal(bundle)
	if err != nil {
		return nil, err
	}

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", ContentType)
		req.Header.Set("Accept", ContentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, backoff.Permanent(readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
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
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
