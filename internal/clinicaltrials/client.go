package clinicaltrials

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/pharmyrus/internal/httpclient"
	"github.com/ternarybob/pharmyrus/internal/models"
)

const (
	// DefaultBaseURL is the ClinicalTrials.gov v2 API root.
	DefaultBaseURL = "https://clinicaltrials.gov/api/v2"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	serviceName  = "ClinicalTrials"
	studiesPath  = "/studies"
	pageSize     = 100
	maxDetailed  = 20
	unknownValue = "Unknown"
)

// Client queries ClinicalTrials.gov.
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

// NewClient creates a new ClinicalTrials.gov client.
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

// Trials fetches one page of studies mentioning molecule. The total counts
// the whole page; phase, status, sponsor and country breakdowns and the
// detailed list cover the first twenty studies.
func (c *Client) Trials(ctx context.Context, molecule string) (*models.TrialsPayload, error) {
	term := strings.TrimSpace(molecule)
	if term == "" {
		return nil, fmt.Errorf("molecule name is required")
	}

	params := url.Values{}
	params.Set("query.term", term)
	params.Set("pageSize", strconv.Itoa(pageSize))

	var resp studiesResponse
	err := httpclient.GetJSON(ctx, c.httpClient, c.limiter, c.logger, httpclient.Request{
		Service:  serviceName,
		Endpoint: studiesPath,
		URL:      c.baseURL + studiesPath + "?" + params.Encode(),
	}, &resp)
	if err != nil {
		return nil, err
	}

	return summarise(resp.Studies), nil
}

func summarise(studies []study) *models.TrialsPayload {
	payload := &models.TrialsPayload{
		Total:     len(studies),
		ByPhase:   map[string]int{},
		ByStatus:  map[string]int{},
		Sponsors:  []string{},
		Countries: []string{},
		Trials:    []models.TrialSummary{},
	}

	sponsors := map[string]bool{}
	countries := map[string]bool{}

	for _, s := range studies[:min(len(studies), maxDetailed)] {
		proto := s.ProtocolSection

		phase := unknownValue
		if len(proto.DesignModule.Phases) > 0 {
			phase = proto.DesignModule.Phases[0]
		}
		status := proto.StatusModule.OverallStatus
		if status == "" {
			status = unknownValue
		}
		payload.ByPhase[phase]++
		payload.ByStatus[status]++

		sponsor := proto.SponsorCollaboratorsModule.LeadSponsor.Name
		if sponsor != "" {
			sponsors[sponsor] = true
		}

		trialCountries := []string{}
		seen := map[string]bool{}
		for _, loc := range proto.ContactsLocationsModule.Locations {
			if loc.Country == "" {
				continue
			}
			countries[loc.Country] = true
			if !seen[loc.Country] {
				seen[loc.Country] = true
				trialCountries = append(trialCountries, loc.Country)
			}
		}

		phases := proto.DesignModule.Phases
		if phases == nil {
			phases = []string{}
		}
		payload.Trials = append(payload.Trials, models.TrialSummary{
			NCTID:      proto.IdentificationModule.NCTID,
			Title:      proto.IdentificationModule.BriefTitle,
			Status:     status,
			Phases:     phases,
			Sponsor:    sponsor,
			Countries:  trialCountries,
			StartDate:  proto.StatusModule.StartDateStruct.Date,
			Enrollment: proto.StatusModule.EnrollmentInfo.Count,
		})
	}

	payload.Sponsors = sortedKeys(sponsors)
	payload.Countries = sortedKeys(countries)
	return payload
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type studiesResponse struct {
	Studies []study `json:"studies"`
}

type study struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID      string `json:"nctId"`
			BriefTitle string `json:"briefTitle"`
		} `json:"identificationModule"`
		StatusModule struct {
			OverallStatus   string `json:"overallStatus"`
			StartDateStruct struct {
				Date string `json:"date"`
			} `json:"startDateStruct"`
			EnrollmentInfo struct {
				Count int `json:"count"`
			} `json:"enrollmentInfo"`
		} `json:"statusModule"`
		DesignModule struct {
			Phases []string `json:"phases"`
		} `json:"designModule"`
		SponsorCollaboratorsModule struct {
			LeadSponsor struct {
				Name string `json:"name"`
			} `json:"leadSponsor"`
		} `json:"sponsorCollaboratorsModule"`
		ContactsLocationsModule struct {
			Locations []struct {
				Country string `json:"country"`
			} `json:"locations"`
		} `json:"contactsLocationsModule"`
	} `json:"protocolSection"`
}
