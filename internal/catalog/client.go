package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the TMDB API.
	DefaultBaseURL = "https://api.themoviedb.org/3"

	// DefaultImageBaseURL prefixes poster paths returned by TMDB.
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/w500"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 10
)

// Client resolves poster image URLs from IMDB ids via the TMDB find API.
type Client struct {
	baseURL      string
	imageBaseURL string
	apiKey       string
	httpClient   *http.Client
	logger       arbor.ILogger
	limiter      *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithImageBaseURL sets a custom image base URL.
func WithImageBaseURL(imageBaseURL string) ClientOption {
	return func(c *Client) {
		c.imageBaseURL = imageBaseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new TMDB catalog client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		imageBaseURL: DefaultImageBaseURL,
		apiKey:       apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// findResult is one media entry in a TMDB find response.
type findResult struct {
	PosterPath string `json:"poster_path"`
}

// findResponse is the TMDB /find/{id} response body.
type findResponse struct {
	MovieResults []findResult `json:"movie_results"`
	TVResults    []findResult `json:"tv_results"`
}

// ResolvePoster looks up the poster URL for an IMDB id. An id TMDB does not
// know, or one without a poster, resolves to an empty URL without error.
func (c *Client) ResolvePoster(ctx context.Context, externalID string) (string, error) {
	if c.apiKey == "" || externalID == "" {
		return "", nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("external_source", "imdb_id")
	reqURL := fmt.Sprintf("%s/find/%s?%s", c.baseURL, url.PathEscape(externalID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("external_id", externalID).
			Msg("Catalog poster lookup")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("catalog API returned status %d: %s", resp.StatusCode, string(body))
	}

	var found findResponse
	if err := json.Unmarshal(body, &found); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	for _, results := range [][]findResult{found.MovieResults, found.TVResults} {
		for _, r := range results {
			if r.PosterPath != "" {
				return c.imageBaseURL + r.PosterPath, nil
			}
		}
	}

	return "", nil
}
