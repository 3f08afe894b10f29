package models

// StrategyOutcome is the result of one selector strategy attempt.
type StrategyOutcome string

const (
	StrategyMatched StrategyOutcome = "matched"
	StrategyMiss    StrategyOutcome = "miss"
	StrategyFault   StrategyOutcome = "fault"
)

// StrategyAttempt records a single selector strategy tried for a field.
// Index is 1-based within the field's chain.
type StrategyAttempt struct {
	Field    string          `json:"field"`
	Strategy string          `json:"strategy"`
	Index    int             `json:"index"`
	Outcome  StrategyOutcome `json:"outcome"`
	Detail   string          `json:"detail,omitempty"`
}

// TableState is the lifecycle state of a worldwide-applications extraction pass.
type TableState string

const (
	TableIdle            TableState = "idle"
	TableTabLocated      TableState = "tab_located"
	TableTabClicked      TableState = "tab_clicked"
	TableAwaitingContent TableState = "awaiting_content"
	TableLocated         TableState = "table_located"
	TableRowsParsed      TableState = "rows_parsed"
	TableExtracted       TableState = "extracted"
	TableFailed          TableState = "failed"
)

// TableDebug summarises one worldwide-applications extraction pass.
type TableDebug struct {
	State        TableState `json:"state"`
	Transitions  []string   `json:"transitions"`
	TabStrategy  string     `json:"tab_strategy,omitempty"`
	RowStrategy  string     `json:"row_strategy,omitempty"`
	RowsSeen     int        `json:"rows_seen"`
	RowsParsed   int        `json:"rows_parsed"`
	RowsSkipped  int        `json:"rows_skipped"`
	DatesDropped int        `json:"dates_dropped"`
	Notes        []string   `json:"notes,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// ExtractionDebug is the debug object attached to every extraction.
type ExtractionDebug struct {
	SelectorsFound       []string          `json:"selectors_found"`
	StrategyByField      map[string]string `json:"strategy_by_field"`
	TotalWorldwideApps   int               `json:"total_worldwide_apps"`
	CountriesFound       int               `json:"countries_found"`
	JurisdictionFound    int               `json:"jurisdiction_patents_found"`
	CountryFilterApplied string            `json:"country_filter_applied,omitempty"`
	Attempts             int               `json:"retry_attempts"`
	Table                *TableDebug       `json:"table,omitempty"`
	Trace                []StrategyAttempt `json:"trace"`
	Errors               []string          `json:"errors,omitempty"`
	FromCache            bool              `json:"from_cache"`
}

// NewExtractionDebug returns a debug object with empty collections.
func NewExtractionDebug() ExtractionDebug {
	return ExtractionDebug{
		SelectorsFound:  []string{},
		StrategyByField: map[string]string{},
		Trace:           []StrategyAttempt{},
	}
}

// ExtractionResult wraps a patent record with its debug trace and validity.
type ExtractionResult struct {
	Record *PatentRecord   `json:"record"`
	Debug  ExtractionDebug `json:"debug"`
	Valid  bool            `json:"valid"`
}

// Clone returns a deep copy of the result.
func (r *ExtractionResult) Clone() *ExtractionResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Record = r.Record.Clone()
	c.Debug.SelectorsFound = append([]string{}, r.Debug.SelectorsFound...)
	c.Debug.Trace = append([]StrategyAttempt{}, r.Debug.Trace...)
	c.Debug.Errors = append([]string(nil), r.Debug.Errors...)
	c.Debug.StrategyByField = make(map[string]string, len(r.Debug.StrategyByField))
	for k, v := range r.Debug.StrategyByField {
		c.Debug.StrategyByField[k] = v
	}
	if r.Debug.Table != nil {
		t := *r.Debug.Table
		t.Transitions = append([]string{}, r.Debug.Table.Transitions...)
		t.Notes = append([]string(nil), r.Debug.Table.Notes...)
		c.Debug.Table = &t
	}
	return &c
}
