package crawler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/interfaces"
	"github.com/ternarybob/pharmyrus/internal/models"
)

// DefaultBaseURL is the patent database host
const DefaultBaseURL = "https://patentscope.wipo.int"

// identifierPattern accepts WO numbers with an optional kind code suffix
var identifierPattern = regexp.MustCompile(`^WO\d{6,12}(?:[A-Z]\d?)?$`)

// NormalizeIdentifier upper-cases an identifier, strips spaces, dashes and
// slashes and ensures the WO prefix: "wo 2016/168716" → "WO2016168716".
func NormalizeIdentifier(identifier string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(identifier))
	id = strings.NewReplacer(" ", "", "-", "", "/", "").Replace(id)
	if id == "" {
		return "", fmt.Errorf("empty patent identifier")
	}
	if !strings.HasPrefix(id, "WO") {
		id = "WO" + id
	}
	if !identifierPattern.MatchString(id) {
		return "", fmt.Errorf("invalid patent identifier %q", identifier)
	}
	return id, nil
}

// WIPOCrawler performs single extraction attempts against the patent
// detail page. Retries and session ownership belong to the pool.
type WIPOCrawler struct {
	baseURL    string
	strategies *StrategySet
	table      *TableExtractor
	limiter    *HostLimiter
	logger     arbor.ILogger
	now        func() time.Time
}

// WIPOCrawlerConfig holds crawler settings
type WIPOCrawlerConfig struct {
	BaseURL      string
	ContentWait  time.Duration
	RequestDelay time.Duration // Minimum spacing between page loads, 0 disables
}

// NewWIPOCrawler creates a crawler with the default strategy catalogue
func NewWIPOCrawler(config WIPOCrawlerConfig, logger arbor.ILogger) *WIPOCrawler {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	strategies := DefaultStrategies(baseURL)
	return &WIPOCrawler{
		baseURL:    baseURL,
		strategies: strategies,
		table:      NewTableExtractor(strategies, config.ContentWait, logger),
		limiter:    NewHostLimiter(config.RequestDelay),
		logger:     logger,
		now:        time.Now,
	}
}

// Strategies exposes the catalogue so callers can append strategies
func (c *WIPOCrawler) Strategies() *StrategySet {
	return c.strategies
}

// DetailURL returns the detail page URL for a normalised identifier
func (c *WIPOCrawler) DetailURL(identifier string) string {
	return fmt.Sprintf("%s/search/en/detail.jsf?docId=%s", c.baseURL, identifier)
}

// Crawl runs one extraction attempt on page. It always returns the data it
// gathered, together with an error when the attempt should count as failed:
// a navigation error, the attempt's deadline, or ErrNoData when no field was
// populated. A missing national phase table alone is not an error once other
// fields were found.
func (c *WIPOCrawler) Crawl(ctx context.Context, page interfaces.PageSession, identifier string) (*models.ExtractionResult, error) {
	wo, err := NormalizeIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	url := c.DetailURL(wo)
	result := &models.ExtractionResult{
		Record: models.NewPatentRecord(wo, url),
		Debug:  models.NewExtractionDebug(),
	}

	if err := c.limiter.Wait(ctx, url); err != nil {
		return result, err
	}

	startTime := time.Now()
	if err := page.Navigate(ctx, url); err != nil {
		var navErr *NavigationError
		if !errors.As(err, &navErr) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			err = &NavigationError{URL: url, Transient: true, Err: err}
		}
		result.Debug.Errors = append(result.Debug.Errors, err.Error())
		return result, err
	}

	record := result.Record
	debug := &result.Debug

	applyString(ctx, page, c.strategies.Title, &record.Title, debug)
	applyString(ctx, page, c.strategies.Abstract, &record.Abstract, debug)
	applyString(ctx, page, c.strategies.Applicant, &record.Applicant, debug)
	applyList(ctx, page, c.strategies.Inventors, &record.Inventors, debug)
	applyString(ctx, page, c.strategies.FilingDate, &record.FilingDate, debug)
	applyString(ctx, page, c.strategies.PublicationDate, &record.PublicationDate, debug)
	applyString(ctx, page, c.strategies.PriorityDate, &record.PriorityDate, debug)
	applyList(ctx, page, c.strategies.Classification, &record.ClassificationCodes, debug)
	applyString(ctx, page, c.strategies.PDFLink, &record.PDFLink, debug)

	table := c.table.Extract(ctx, page)
	record.WorldwideApplications = table.Applications
	debug.Table = &table.Debug
	debug.Trace = append(debug.Trace, table.Attempts...)
	if table.Debug.TabStrategy != "" {
		debug.StrategyByField[FieldNationalTab] = table.Debug.TabStrategy
	}
	if table.Debug.RowStrategy != "" {
		debug.StrategyByField[FieldNationalRows] = table.Debug.RowStrategy
		debug.SelectorsFound = append(debug.SelectorsFound, FieldNationalRows+":"+table.Debug.RowStrategy)
	}
	if table.Err != nil {
		debug.Errors = append(debug.Errors, table.Err.Error())
	}

	record.Countries = familyCountries(record.WorldwideApplications)
	record.ExtractedAt = c.now().UTC()
	debug.TotalWorldwideApps = record.TotalApplications()
	debug.CountriesFound = len(record.Countries)
	result.Valid = record.IsValid()

	c.logger.Debug().
		Str("patent", wo).
		Bool("valid", result.Valid).
		Int("fields", record.PopulatedFields()).
		Int("worldwide_apps", debug.TotalWorldwideApps).
		Int("countries", debug.CountriesFound).
		Dur("duration", time.Since(startTime)).
		Msg("Extraction attempt finished")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if !result.Valid {
		if table.Err != nil {
			return result, errors.Join(ErrNoData, table.Err)
		}
		return result, ErrNoData
	}
	return result, nil
}

func applyString(ctx context.Context, page interfaces.PageSession, chain *Chain[string], target *string, debug *models.ExtractionDebug) {
	match := chain.Run(ctx, page)
	debug.Trace = append(debug.Trace, match.Attempts...)
	if match.Found {
		*target = match.Value
		recordMatch(debug, chain.Field, match.Strategy)
	}
}

func applyList(ctx context.Context, page interfaces.PageSession, chain *Chain[[]string], target *[]string, debug *models.ExtractionDebug) {
	match := chain.Run(ctx, page)
	debug.Trace = append(debug.Trace, match.Attempts...)
	if match.Found {
		*target = match.Value
		recordMatch(debug, chain.Field, match.Strategy)
	}
}

func recordMatch(debug *models.ExtractionDebug, field, strategy string) {
	debug.StrategyByField[field] = strategy
	debug.SelectorsFound = append(debug.SelectorsFound, field+":"+strategy)
}

// familyCountries returns the sorted, unique country codes of the family
func familyCountries(apps map[string][]models.WorldwideApplicationEntry) []string {
	seen := map[string]bool{}
	countries := []string{}
	for _, entries := range apps {
		for _, e := range entries {
			if e.CountryCode != "" && !seen[e.CountryCode] {
				seen[e.CountryCode] = true
				countries = append(countries, e.CountryCode)
			}
		}
	}
	sort.Strings(countries)
	return countries
}
