package pubchem

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/pharmyrus/internal/httpclient"
	"github.com/ternarybob/pharmyrus/internal/models"
)

const (
	// DefaultBaseURL is the PUG REST root.
	DefaultBaseURL = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit stays under the service's five requests per second.
	DefaultRateLimit = 5

	serviceName = "PubChem"

	maxSynonyms      = 50
	devCodeWindow    = 100
	maxDevCodes      = 20
	propertyNameList = "MolecularFormula,MolecularWeight,IUPACName,CanonicalSMILES,InChI,InChIKey"
)

var (
	devCodePattern = regexp.MustCompile(`(?i)^[A-Z]{2,5}-?\d{3,7}[A-Z]?$`)
	casPattern     = regexp.MustCompile(`^\d{2,7}-\d{2}-\d$`)
)

// Client resolves molecule names against PubChem.
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

// NewClient creates a new PubChem client.
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

// Resolve returns synonyms, development codes, the CAS number and compound
// properties for molecule. A missing property record is not an error.
func (c *Client) Resolve(ctx context.Context, molecule string) (*models.SynonymPayload, error) {
	name := strings.TrimSpace(molecule)
	if name == "" {
		return nil, fmt.Errorf("molecule name is required")
	}

	var synonyms synonymsResponse
	path := "/compound/name/" + url.PathEscape(name) + "/synonyms/JSON"
	if err := c.get(ctx, path, &synonyms); err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return nil, fmt.Errorf("molecule %q: %w", name, httpclient.ErrNotFound)
		}
		return nil, err
	}

	payload := &models.SynonymPayload{
		Synonyms: []string{},
		DevCodes: []string{},
	}
	if info := synonyms.InformationList.Information; len(info) > 0 {
		all := info[0].Synonym
		payload.CID = info[0].CID
		payload.TotalRecords = len(all)
		payload.Synonyms = append(payload.Synonyms, all[:min(len(all), maxSynonyms)]...)
		payload.DevCodes, payload.CAS = classifySynonyms(all)
	}

	var props propertiesResponse
	path = "/compound/name/" + url.PathEscape(name) + "/property/" + propertyNameList + "/JSON"
	if err := c.get(ctx, path, &props); err != nil {
		if ctx.Err() != nil {
			return payload, ctx.Err()
		}
		if c.logger != nil {
			c.logger.Debug().
				Str("molecule", name).
				Err(err).
				Msg("PubChem properties unavailable")
		}
		return payload, nil
	}

	if list := props.PropertyTable.Properties; len(list) > 0 {
		p := list[0]
		if p.CID != 0 {
			payload.CID = p.CID
		}
		payload.Formula = p.MolecularFormula
		payload.Weight = string(p.MolecularWeight)
		payload.IUPACName = p.IUPACName
		payload.SMILES = p.CanonicalSMILES
		if payload.SMILES == "" {
			payload.SMILES = p.SMILES
		}
		payload.InChI = p.InChI
		payload.InChIKey = p.InChIKey
	}

	return payload, nil
}

// classifySynonyms picks development codes and the first CAS number from
// the leading synonyms.
func classifySynonyms(synonyms []string) ([]string, string) {
	devCodes := []string{}
	cas := ""
	for _, s := range synonyms[:min(len(synonyms), devCodeWindow)] {
		s = strings.TrimSpace(s)
		if len(devCodes) < maxDevCodes && devCodePattern.MatchString(s) {
			devCodes = append(devCodes, s)
		}
		if cas == "" && casPattern.MatchString(s) {
			cas = s
		}
	}
	return devCodes, cas
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return httpclient.GetJSON(ctx, c.httpClient, c.limiter, c.logger, httpclient.Request{
		Service:  serviceName,
		Endpoint: path,
		URL:      c.baseURL + path,
	}, result)
}
