package forecast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/aurora-alert-service/internal/domain"
)

// userAgent identifies us to the SWPC endpoint, which asks API consumers to
// send a contact string.
const userAgent = "aurora-alert-service/1.0"

// Client fetches the OVATION forecast document over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a forecast client with a bounded request timeout.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch downloads and parses the current forecast. It returns the parsed grid
// together with the raw payload so the caller can persist the exact bytes.
// Network errors, non-2xx statuses, and parse failures all surface as errors;
// the cache layer decides whether to fall back.
func (c *Client) Fetch(ctx context.Context) (*domain.Grid, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, fmt.Errorf("forecast API error: status %d: %s", resp.StatusCode, body)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read forecast body: %w", err)
	}

	grid, err := domain.ParseGrid(raw)
	if err != nil {
		return nil, nil, err
	}

	c.logger.Debug("forecast fetched",
		"samples", len(grid.Samples),
		"generated_at", grid.GeneratedAt,
		"duration", time.Since(start),
	)
	return grid, raw, nil
}
