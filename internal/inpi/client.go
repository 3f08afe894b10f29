package inpi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/pharmyrus/internal/httpclient"
	"github.com/ternarybob/pharmyrus/internal/models"
)

const (
	// DefaultBaseURL is the INPI patent search proxy.
	DefaultBaseURL = "https://crawler3-production.up.railway.app/api/data/inpi/patents"

	// DefaultTimeout is long because the proxy scrapes the registry live.
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 2

	// DetailURL is the public registry page for one application.
	DetailURL = "https://busca.inpi.gov.br/pePI/servlet/PatenteServletController?Action=detail&CodPedido="

	serviceName = "INPI"
	country     = "BR"
)

// Client searches the Brazilian patent registry.
type Client struct {
	baseURL    string
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

// NewClient creates a new INPI client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: httpclient.NewDefaultHTTPClient(DefaultTimeout),
		limiter:    httpclient.NewLimiter(DefaultRateLimit, DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Country returns the registry's jurisdiction code.
func (c *Client) Country() string {
	return country
}

// Search returns BR applications matching term. Entries whose number does
// not start with BR are skipped; no match is an empty slice.
func (c *Client) Search(ctx context.Context, term string) ([]models.RegistryPatent, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("search term is required")
	}

	params := url.Values{}
	params.Set("medicine", term)

	var resp searchResponse
	err := httpclient.GetJSON(ctx, c.httpClient, c.limiter, c.logger, httpclient.Request{
		Service:  serviceName,
		Endpoint: "?medicine=" + term,
		URL:      c.baseURL + "?" + params.Encode(),
	}, &resp)
	if err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return []models.RegistryPatent{}, nil
		}
		return nil, err
	}

	patents := make([]models.RegistryPatent, 0, len(resp.Data))
	for _, p := range resp.Data {
		number := strings.TrimSpace(p.Title)
		if !strings.HasPrefix(number, country) {
			continue
		}
		patents = append(patents, models.RegistryPatent{
			Number:     strings.ReplaceAll(number, " ", "-"),
			Title:      strings.TrimSpace(p.Summary),
			Applicant:  strings.TrimSpace(p.Applicant),
			FilingDate: strings.TrimSpace(p.DepositDate),
			Link:       DetailURL + url.QueryEscape(number),
			Term:       term,
		})
	}
	return patents, nil
}

// searchResponse carries the application number in "title"
type searchResponse struct {
	Data []struct {
		Title       string `json:"title"`
		Applicant   string `json:"applicant"`
		DepositDate string `json:"depositDate"`
		Summary     string `json:"summary"`
	} `json:"data"`
}
