package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// maxBodyBytes caps a single feed payload.
const maxBodyBytes = 64 << 20

// Client performs rate-limited, timeout-bounded GETs against upstream feeds.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	maxBody    int64
	logger     *slog.Logger
}

// NewClient creates a feed client. requestsPerSecond throttles outbound
// requests across all feeds; burst allows a refresh to fan out at once.
func NewClient(timeout time.Duration, requestsPerSecond float64, burst int, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		maxBody: maxBodyBytes,
		logger:  logger,
	}
}

// Get returns the full response body. Transport failures and non-2xx
// statuses are errors.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("get %s: status %d: %s", url, resp.StatusCode, body)
	}

	// Oversized bodies are rejected, never truncated.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("get %s: body exceeds %d bytes", url, c.maxBody)
	}
	c.logger.Debug("fetched feed", "url", url, "bytes", len(body), "duration", time.Since(start))
	return body, nil
}
