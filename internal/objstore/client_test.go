package objstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"orgfhir/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(rt roundTripFunc) *Client {
	client := NewClient(config.Config{
		SupabaseURL:         "https://project.supabase.test/",
		SupabaseKey:         "service-key",
		StorageBucket:       "zhodnoceni_procesu",
		StorageRateLimitRPS: 1000,
		StorageTimeoutMs:    1000,
	})
	client.httpClient = &http.Client{Transport: rt}
	client.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return client
}

func TestDownloadWithRetry(t *testing.T) {
	attempt := 0
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/storage/v1/object/zhodnoceni_procesu/CI.csv", r.URL.Path)
		require.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		require.Equal(t, "service-key", r.Header.Get("apikey"))
		attempt++
		if attempt == 1 {
			return response(http.StatusServiceUnavailable, `{"error":"busy"}`), nil
		}
		return response(http.StatusOK, "department\nCI\n"), nil
	})

	blob, err := client.Download(context.Background(), "CI.csv")
	require.NoError(t, err)
	require.Equal(t, "department\nCI\n", string(blob))
	require.Equal(t, 2, attempt)
}

func TestDownloadNotFoundIsPermanent(t *testing.T) {
	attempt := 0
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		attempt++
		return response(http.StatusNotFound, `{"error":"not_found"}`), nil
	})

	_, err := client.Download(context.Background(), "OPZ.csv")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, attempt)
}

func TestDownloadGivesUpAfterMaxTries(t *testing.T) {
	attempt := 0
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		attempt++
		return response(http.StatusBadGateway, "bad gateway"), nil
	})

	_, err := client.Download(context.Background(), "CI.csv")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	require.Equal(t, defaultMaxTries, attempt)
}

func TestUploadSetsUpsert(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/storage/v1/object/zhodnoceni_procesu/IO.csv", r.URL.Path)
		require.Equal(t, "true", r.Header.Get("x-upsert"))
		require.Equal(t, "text/csv", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, "a,b\n", string(body))
		return response(http.StatusOK, `{"Key":"zhodnoceni_procesu/IO.csv"}`), nil
	})

	require.NoError(t, client.Upload(context.Background(), "IO.csv", []byte("a,b\n"), "text/csv"))
}

func TestUploadBadRequestIsPermanent(t *testing.T) {
	attempt := 0
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		attempt++
		return response(http.StatusBadRequest, `{"error":"invalid"}`), nil
	})

	err := client.Upload(context.Background(), "IO.csv", []byte("x"), "")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 1, attempt)
}

func TestClientNotConfigured(t *testing.T) {
	client := NewClient(config.Config{StorageBucket: "b"})
	_, err := client.Download(context.Background(), "CI.csv")
	require.ErrorIs(t, err, ErrNotConfigured)
}

type memMetadata struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memMetadata) SetMetadata(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

func TestSyncDownloadAll(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		switch filepath.Base(r.URL.Path) {
		case "CI.csv":
			return response(http.StatusOK, "department\nCI\n"), nil
		case "EO.csv":
			return response(http.StatusNotFound, ""), nil
		default:
			return response(http.StatusForbidden, "denied"), nil
		}
	})
	meta := &memMetadata{}
	dir := filepath.Join(t.TempDir(), "current")

	res, err := NewSyncService(client, meta, zerolog.Nop()).DownloadAll(context.Background(), dir, []string{"CI", "EO", "IO"})
	require.NoError(t, err)
	require.Equal(t, []string{"CI.csv"}, res.Transferred)
	require.Equal(t, []string{"EO.csv"}, res.Missing)
	require.Equal(t, []string{"IO.csv"}, res.Failed)

	blob, err := os.ReadFile(filepath.Join(dir, "CI.csv"))
	require.NoError(t, err)
	require.Equal(t, "department\nCI\n", string(blob))
	require.Contains(t, meta.values, metaLastDownload)
}

func TestSyncUploadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "IO.csv"), []byte("io"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CI.csv"), []byte("ci"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	var mu sync.Mutex
	uploaded := []string{}
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		uploaded = append(uploaded, filepath.Base(r.URL.Path))
		return response(http.StatusOK, "{}"), nil
	})

	res, err := NewSyncService(client, nil, zerolog.Nop()).UploadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, []string{"CI.csv", "IO.csv"}, res.Transferred)
	require.Equal(t, []string{"CI.csv", "IO.csv"}, uploaded)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	limiter := NewRateLimiter(1)
	require.NoError(t, limiter.WaitTurn(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, limiter.WaitTurn(ctx), context.Canceled)
}
