package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/pharmyrus/internal/common"
)

// maxErrorBody bounds how much of a failed response is kept in an APIError
const maxErrorBody = 512

// ErrNotFound is returned when a lookup service has no record for the query
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from a lookup service.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s (status: %d, endpoint: %s)", e.Service, e.Message, e.StatusCode, e.Endpoint)
}

// Is matches ErrNotFound for 404 responses
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Temporary reports whether the request may succeed if repeated
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
	}
}

// NewLimiter returns a limiter allowing requestsPerSecond with an equal
// burst. Zero or negative falls back to fallback.
func NewLimiter(requestsPerSecond, fallback int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = fallback
	}
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
}

// Request describes one JSON GET against a lookup service
type Request struct {
	Service  string
	Endpoint string // Logged and reported in errors, never carries credentials
	URL      string
	Header   http.Header
}

// GetJSON waits for the limiter, performs the request and decodes a 200
// response into result. Other statuses become *APIError.
func GetJSON(ctx context.Context, httpClient *http.Client, limiter *rate.Limiter, logger arbor.ILogger, r Request, result interface{}) error {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s rate limiter: %w", r.Service, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", common.UserAgentSuffix())
	for k, values := range r.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	startTime := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", r.Service, err)
	}
	defer resp.Body.Close()

	if logger != nil {
		logger.Debug().
			Str("service", r.Service).
			Str("endpoint", r.Endpoint).
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(startTime)).
			Msg("Lookup request")
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Service:    r.Service,
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   r.Endpoint,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", r.Service, err)
	}
	return nil
}
