package serpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/pharmyrus/internal/httpclient"
	"github.com/ternarybob/pharmyrus/internal/models"
)

const (
	// DefaultBaseURL is the SerpAPI host.
	DefaultBaseURL = "https://serpapi.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	// DefaultResults is the number of organic results requested per query.
	DefaultResults = 10

	serviceName = "SerpAPI"
	searchPath  = "/search.json"
)

// ErrMissingAPIKey is returned when a search is attempted without a key
var ErrMissingAPIKey = errors.New("serpapi: api key not configured")

// Client runs Google searches through SerpAPI.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
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
		c.limiter = httpclient.NewLimiter(requestsPerSecond, DefaultRateLimit)
	}
}

// NewClient creates a new SerpAPI client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: httpclient.NewDefaultHTTPClient(DefaultTimeout),
		limiter:    httpclient.NewLimiter(DefaultRateLimit, DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Search returns the organic results for query. num <= 0 requests
// DefaultResults. A query with no hits returns an empty slice.
func (c *Client) Search(ctx context.Context, query string, num int) ([]models.SearchResult, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if num <= 0 {
		num = DefaultResults
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", c.apiKey)
	params.Set("num", strconv.Itoa(num))

	var resp searchResponse
	err := httpclient.GetJSON(ctx, c.httpClient, c.limiter, c.logger, httpclient.Request{
		Service:  serviceName,
		Endpoint: searchPath,
		URL:      c.baseURL + searchPath + "?" + params.Encode(),
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Error != "" && len(resp.OrganicResults) == 0 {
		if isEmptyResult(resp.Error) {
			return []models.SearchResult{}, nil
		}
		return nil, fmt.Errorf("serpapi search failed: %s", resp.Error)
	}

	results := make([]models.SearchResult, 0, len(resp.OrganicResults))
	for _, r := range resp.OrganicResults {
		results = append(results, models.SearchResult{
			Position: r.Position,
			Title:    r.Title,
			Link:     r.Link,
			Snippet:  r.Snippet,
		})
	}
	return results, nil
}

func isEmptyResult(message string) bool {
	return strings.Contains(strings.ToLower(message), "hasn't returned any results")
}

type searchResponse struct {
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
	Error string `json:"error"`
}
