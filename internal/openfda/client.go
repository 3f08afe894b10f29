package openfda

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
	// DefaultBaseURL is the openFDA drug API root.
	DefaultBaseURL = "https://api.fda.gov/drug"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit keeps unauthenticated use under 240 requests a minute.
	DefaultRateLimit = 4

	// Approval statuses reported in the payload.
	StatusApproved = "Approved"
	StatusNotFound = "Not Found"

	serviceName = "openFDA"
	ndcPath     = "/ndc.json"
	maxProducts = 10
)

// Client queries the openFDA NDC directory.
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

// WithAPIKey sets an optional API key for higher quotas.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
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

// NewClient creates a new openFDA client.
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

// ApprovalStatus lists up to ten NDC products for molecule's generic name.
// openFDA answers 404 when nothing matches; that is a "Not Found" status,
// not an error.
func (c *Client) ApprovalStatus(ctx context.Context, molecule string) (*models.ApprovalPayload, error) {
	name := strings.TrimSpace(molecule)
	if name == "" {
		return nil, fmt.Errorf("molecule name is required")
	}

	params := url.Values{}
	params.Set("search", fmt.Sprintf("generic_name:%q", name))
	params.Set("limit", fmt.Sprint(maxProducts))
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	var resp ndcResponse
	err := httpclient.GetJSON(ctx, c.httpClient, c.limiter, c.logger, httpclient.Request{
		Service:  serviceName,
		Endpoint: ndcPath,
		URL:      c.baseURL + ndcPath + "?" + params.Encode(),
	}, &resp)
	if err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return &models.ApprovalPayload{Status: StatusNotFound, Products: []models.ApprovalProduct{}}, nil
		}
		return nil, err
	}

	payload := &models.ApprovalPayload{
		Status:   StatusNotFound,
		Products: make([]models.ApprovalProduct, 0, min(len(resp.Results), maxProducts)),
		Total:    resp.Meta.Results.Total,
	}
	if payload.Total == 0 {
		payload.Total = len(resp.Results)
	}

	for _, r := range resp.Results[:min(len(resp.Results), maxProducts)] {
		route := r.Route
		if route == nil {
			route = []string{}
		}
		payload.Products = append(payload.Products, models.ApprovalProduct{
			ProductNDC:        r.ProductNDC,
			BrandName:         r.BrandName,
			GenericName:       r.GenericName,
			Labeler:           r.LabelerName,
			DosageForm:        r.DosageForm,
			Route:             route,
			MarketingCategory: r.MarketingCategory,
			ApplicationNumber: r.ApplicationNumber,
		})
	}
	if len(payload.Products) > 0 {
		payload.Status = StatusApproved
	}

	return payload, nil
}

type ndcResponse struct {
	Meta struct {
		Results struct {
			Total int `json:"total"`
		} `json:"results"`
	} `json:"meta"`
	Results []struct {
		ProductNDC        string   `json:"product_ndc"`
		BrandName         string   `json:"brand_name"`
		GenericName       string   `json:"generic_name"`
		LabelerName       string   `json:"labeler_name"`
		DosageForm        string   `json:"dosage_form"`
		Route             []string `json:"route"`
		MarketingCategory string   `json:"marketing_category"`
		ApplicationNumber string   `json:"application_number"`
	} `json:"results"`
}
