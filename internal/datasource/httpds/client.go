// Package httpds implements an HTTP(S) data source with built-in retry and
// exponential backoff, used when the pipeline input is a remote object URI
// rather than a local file.
//
// Design goals:
//
//   - Keep a tiny, explicit API (Open).
//   - Handle transient failures with exponential backoff.
//   - Respect context cancellation during requests and backoff waits.
//   - Be easy to test by injecting a custom RoundTripper and sleep function.
package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config configures the HTTP data source.
//
// Zero values are given defaults:
//   - Timeout:        30s
//   - MaxRetries:     3
//   - InitialBackoff: 200ms
//   - MaxBackoff:     5s
type Config struct {
	// Timeout is the per-request timeout applied at the http.Client level.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the initial request.
	// MaxRetries=0 means only the initial attempt.
	MaxRetries int

	// InitialBackoff is the base backoff for the first retry; each retry
	// doubles it up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Transport is an optional custom RoundTripper, mainly for tests.
	Transport http.RoundTripper
}

// Source fetches a remote object over HTTP(S), retrying transient failures.
type Source struct {
	url            string
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	// sleep is injectable to make tests fast and deterministic.
	sleep func(time.Duration)
}

// New constructs a Source for url, applying Config defaults for zero values.
func New(url string, cfg Config) *Source {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Source{
		url:            url,
		httpClient:     &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		sleep:          time.Sleep,
	}
}

// Open performs a GET against the configured URL and returns the response
// body. Transport errors and 5xx responses are retried with exponential
// backoff; 4xx responses fail immediately (retrying cannot help).
//
// A final failure here aborts the whole run: the source could not be opened
// and no line was emitted.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	backoff := s.initialBackoff
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			s.sleep(backoff)
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp.Body, nil
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("httpds: GET %s: %s", s.url, resp.Status)
		default:
			resp.Body.Close()
			return nil, fmt.Errorf("httpds: GET %s: %s", s.url, resp.Status)
		}
	}

	return nil, fmt.Errorf("httpds: GET %s: retries exhausted: %w", s.url, lastErr)
}
