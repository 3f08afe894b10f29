package crawler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/interfaces"
	"github.com/ternarybob/pharmyrus/internal/models"
)

const maxTableNotes = 20

// filingDateFormats are tried in order when bucketing rows by year
var filingDateFormats = []string{
	"02.01.2006",
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	"20060102",
	"2.1.2006",
	"Jan 2, 2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"02-01-2006",
}

var countryCode = regexp.MustCompile(`^[A-Z]{2,3}$`)

var countryInParens = regexp.MustCompile(`\(([A-Z]{2,3})\)\s*$`)

// officeCodes maps office names seen in the national phase table to codes
var officeCodes = map[string]string{
	"brazil":                       "BR",
	"united states of america":     "US",
	"united states":                "US",
	"european patent office":       "EP",
	"japan":                        "JP",
	"china":                        "CN",
	"republic of korea":            "KR",
	"canada":                       "CA",
	"australia":                    "AU",
	"india":                        "IN",
	"mexico":                       "MX",
	"russian federation":           "RU",
	"eurasian patent organization": "EA",
	"israel":                       "IL",
	"south africa":                 "ZA",
	"singapore":                    "SG",
	"new zealand":                  "NZ",
	"argentina":                    "AR",
	"chile":                        "CL",
	"colombia":                     "CO",
	"peru":                         "PE",
	"philippines":                  "PH",
	"indonesia":                    "ID",
	"ukraine":                      "UA",
}

// columnMap holds cell indexes for each entry field
type columnMap struct {
	date    int
	country int
	number  int
	status  int
}

// positionalColumns is used when the table has no recognisable header
var positionalColumns = columnMap{date: 0, country: 1, number: 2, status: 3}

// TableResult is the outcome of one worldwide-applications pass
type TableResult struct {
	Applications map[string][]models.WorldwideApplicationEntry
	Debug        models.TableDebug
	Attempts     []models.StrategyAttempt
	Err          error
}

// Total returns the number of entries across every year bucket
func (r *TableResult) Total() int {
	total := 0
	for _, entries := range r.Applications {
		total += len(entries)
	}
	return total
}

// TableExtractor opens the national phase tab and parses its table.
type TableExtractor struct {
	strategies  *StrategySet
	contentWait time.Duration
	logger      arbor.ILogger
}

// NewTableExtractor creates an extractor bounded by contentWait while the
// table populates
func NewTableExtractor(strategies *StrategySet, contentWait time.Duration, logger arbor.ILogger) *TableExtractor {
	if contentWait <= 0 {
		contentWait = 10 * time.Second
	}
	return &TableExtractor{
		strategies:  strategies,
		contentWait: contentWait,
		logger:      logger,
	}
}

// Extract runs one pass of the state machine
// Idle → TabLocated → TabClicked → AwaitingContent → TableLocated → RowsParsed → Extracted,
// or Failed when the tab or the table is never found. Zero parsed rows is
// still Extracted.
func (e *TableExtractor) Extract(ctx context.Context, page interfaces.PageSession) *TableResult {
	result := &TableResult{
		Applications: map[string][]models.WorldwideApplicationEntry{},
		Debug: models.TableDebug{
			State:       models.TableIdle,
			Transitions: []string{string(models.TableIdle)},
		},
	}

	tab, clicked := e.openTab(ctx, page, result)
	if !clicked {
		return e.fail(result, ErrTabNotFound)
	}
	result.Debug.TabStrategy = tab.Name

	e.transition(result, models.TableAwaitingContent)
	var rows []interfaces.DOMNode
	waitErr := page.WaitForCondition(ctx, func(ctx context.Context) bool {
		match := e.strategies.Rows.Run(ctx, page)
		if match.Found {
			rows = match.Value
			result.Debug.RowStrategy = match.Strategy
		}
		return match.Found
	}, e.contentWait)

	// Record the row strategy trace once, from a final pass over the page
	final := e.strategies.Rows.Run(ctx, page)
	result.Attempts = append(result.Attempts, final.Attempts...)
	if final.Found {
		rows = final.Value
		result.Debug.RowStrategy = final.Strategy
	}

	if len(rows) == 0 {
		if waitErr != nil && !errors.Is(waitErr, ErrWaitTimeout) {
			return e.fail(result, waitErr)
		}
		return e.fail(result, fmt.Errorf("%w: %v", ErrTableNotFound, waitErr))
	}
	e.transition(result, models.TableLocated)

	e.parseRows(rows, result)
	e.transition(result, models.TableRowsParsed)
	e.transition(result, models.TableExtracted)

	e.logger.Debug().
		Str("row_strategy", result.Debug.RowStrategy).
		Int("rows_seen", result.Debug.RowsSeen).
		Int("rows_parsed", result.Debug.RowsParsed).
		Int("rows_skipped", result.Debug.RowsSkipped).
		Int("dates_dropped", result.Debug.DatesDropped).
		Msg("National phase table extracted")

	return result
}

// openTab tries each tab strategy: locate, then click.
func (e *TableExtractor) openTab(ctx context.Context, page interfaces.PageSession, result *TableResult) (TabStrategy, bool) {
	for i, tab := range e.strategies.Tabs {
		if ctx.Err() != nil {
			break
		}
		attempt := models.StrategyAttempt{Field: FieldNationalTab, Strategy: tab.Name, Index: i + 1}

		nodes, err := page.QueryAll(ctx, tab.Locator)
		if err != nil {
			attempt.Outcome = models.StrategyFault
			attempt.Detail = err.Error()
			result.Attempts = append(result.Attempts, attempt)
			continue
		}
		if len(nodes) == 0 {
			attempt.Outcome = models.StrategyMiss
			result.Attempts = append(result.Attempts, attempt)
			continue
		}
		if result.Debug.State == models.TableIdle {
			e.transition(result, models.TableTabLocated)
		}

		if _, err := page.Click(ctx, []interfaces.Locator{tab.Locator}); err != nil {
			attempt.Outcome = models.StrategyFault
			attempt.Detail = err.Error()
			result.Attempts = append(result.Attempts, attempt)
			continue
		}

		attempt.Outcome = models.StrategyMatched
		result.Attempts = append(result.Attempts, attempt)
		e.transition(result, models.TableTabClicked)
		return tab, true
	}
	return TabStrategy{}, false
}

// parseRows maps rows to entries grouped by filing year.
func (e *TableExtractor) parseRows(rows []interfaces.DOMNode, result *TableResult) {
	columns := positionalColumns

	for i, row := range rows {
		cells := row.QueryAll(css("td"))
		if len(cells) == 0 {
			// Header row
			if headers := row.QueryAll(css("th")); len(headers) > 0 {
				if mapped, ok := mapHeader(headers); ok {
					columns = mapped
				}
			}
			continue
		}
		result.Debug.RowsSeen++

		if len(cells) < 3 {
			result.Debug.RowsSkipped++
			continue
		}

		country, ok := normalizeCountry(cellText(cells, columns.country))
		if !ok {
			result.Debug.RowsSkipped++
			continue
		}

		filingDate := cellText(cells, columns.date)
		year, ok := filingYear(filingDate)
		if !ok {
			result.Debug.DatesDropped++
			e.note(result, fmt.Sprintf("row %d: unparsable filing date %q, entry dropped", i+1, filingDate))
			continue
		}

		status := cellText(cells, columns.status)
		entry := models.WorldwideApplicationEntry{
			FilingDate:        filingDate,
			CountryCode:       country,
			ApplicationNumber: cellText(cells, columns.number),
			LegalStatus:       status,
			LegalStatusCat:    models.NormalizeLegalStatus(status),
		}
		key := strconv.Itoa(year)
		result.Applications[key] = append(result.Applications[key], entry)
		result.Debug.RowsParsed++
	}
}

// mapHeader derives column positions from header labels. It needs at least
// the date and country columns to be trusted.
func mapHeader(headers []interfaces.DOMNode) (columnMap, bool) {
	columns := columnMap{date: -1, country: -1, number: -1, status: -1}
	for i, h := range headers {
		label := strings.ToLower(h.Text())
		switch {
		case columns.status < 0 && strings.Contains(label, "status"):
			columns.status = i
		case columns.date < 0 && strings.Contains(label, "date"):
			columns.date = i
		case columns.country < 0 && (strings.Contains(label, "office") || strings.Contains(label, "country") || strings.Contains(label, "state")):
			columns.country = i
		case columns.number < 0 && (strings.Contains(label, "number") || strings.Contains(label, "no.")):
			columns.number = i
		}
	}
	if columns.date < 0 || columns.country < 0 {
		return positionalColumns, false
	}
	return columns, true
}

func cellText(cells []interfaces.DOMNode, index int) string {
	if index < 0 || index >= len(cells) {
		return ""
	}
	return cells[index].Text()
}

// normalizeCountry accepts short office codes, "Name (CC)" cells and a
// fixed list of office names.
func normalizeCountry(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	upper := strings.ToUpper(text)
	if countryCode.MatchString(upper) {
		return upper, true
	}
	if m := countryInParens.FindStringSubmatch(upper); m != nil {
		return m[1], true
	}
	if code, ok := officeCodes[strings.ToLower(text)]; ok {
		return code, true
	}
	return "", false
}

// filingYear parses a filing date with the known formats
func filingYear(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	for _, layout := range filingDateFormats {
		if t, err := time.Parse(layout, text); err == nil {
			return t.Year(), true
		}
	}
	return 0, false
}

func (e *TableExtractor) transition(result *TableResult, state models.TableState) {
	result.Debug.State = state
	result.Debug.Transitions = append(result.Debug.Transitions, string(state))
}

func (e *TableExtractor) fail(result *TableResult, err error) *TableResult {
	e.transition(result, models.TableFailed)
	result.Err = err
	result.Debug.Error = err.Error()
	e.logger.Debug().
		Err(err).
		Strs("transitions", result.Debug.Transitions).
		Msg("National phase extraction failed")
	return result
}

func (e *TableExtractor) note(result *TableResult, note string) {
	if len(result.Debug.Notes) < maxTableNotes {
		result.Debug.Notes = append(result.Debug.Notes, note)
	}
}
