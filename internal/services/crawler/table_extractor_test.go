package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/models"
)

func newTableExtractor(wait time.Duration) *TableExtractor {
	return NewTableExtractor(DefaultStrategies(DefaultBaseURL), wait, arbor.NewLogger())
}

func TestTableExtractor_SeventyRows(t *testing.T) {
	rows, perYear := seventyRows()
	rows = append(rows,
		row("Brazil", "14.04.2016"),                              // too few cells
		row("Atlantis Republic", "14.04.2016", "X-1", "Pending"), // unknown office
		row("", "01.01.2017", "X-2", "Pending"),                  // empty office
		row("Japan", "not a date", "JP-1", "Pending"),            // dropped date
	)

	page := navigated(t, detailPage(), detailPageWithTable(rows...))
	page.RevealAfterPolls = 3

	result := newTableExtractor(2*time.Second).Extract(context.Background(), page)
	require.NoError(t, result.Err)

	assert.Equal(t, models.TableExtracted, result.Debug.State)
	assert.Equal(t, []string{
		string(models.TableIdle),
		string(models.TableTabLocated),
		string(models.TableTabClicked),
		string(models.TableAwaitingContent),
		string(models.TableLocated),
		string(models.TableRowsParsed),
		string(models.TableExtracted),
	}, result.Debug.Transitions)

	assert.Equal(t, 74, result.Debug.RowsSeen)
	assert.Equal(t, 70, result.Debug.RowsParsed)
	assert.Equal(t, 3, result.Debug.RowsSkipped)
	assert.Equal(t, 1, result.Debug.DatesDropped)
	require.Len(t, result.Debug.Notes, 1)
	assert.Contains(t, result.Debug.Notes[0], "not a date")

	assert.Equal(t, 70, result.Total(), "bucket sizes add up to parsed rows")
	for year, n := range perYear {
		assert.Len(t, result.Applications[year], n, "year %s", year)
	}

	assert.Equal(t, `a:has-text("National Phase")`, result.Debug.TabStrategy)
	assert.Equal(t, "table.national-phase-table tr", result.Debug.RowStrategy)

	first := result.Applications["2016"][0]
	assert.Equal(t, "BR", first.CountryCode)
	assert.Equal(t, "APP-0000", first.ApplicationNumber)
	assert.Equal(t, "Granted", first.LegalStatus)
	assert.Equal(t, models.LegalStatusActive, first.LegalStatusCat)

	countries := map[string]bool{}
	for _, entries := range result.Applications {
		for _, e := range entries {
			countries[e.CountryCode] = true
		}
	}
	for _, code := range []string{"BR", "US", "EP", "JP", "CN", "KR", "CA", "AU", "IN", "MX"} {
		assert.True(t, countries[code], "country %s", code)
	}
}

func TestTableExtractor_TabMissing(t *testing.T) {
	page := navigated(t, emptyPage())

	result := newTableExtractor(50 * time.Millisecond).Extract(context.Background(), page)
	assert.ErrorIs(t, result.Err, ErrTabNotFound)
	assert.Equal(t, models.TableFailed, result.Debug.State)
	assert.Equal(t, []string{string(models.TableIdle), string(models.TableFailed)}, result.Debug.Transitions)
	assert.Empty(t, result.Applications)
	assert.Len(t, result.Attempts, len(DefaultStrategies(DefaultBaseURL).Tabs))
}

func TestTableExtractor_TableNeverPopulates(t *testing.T) {
	page := navigated(t, detailPage())

	start := time.Now()
	result := newTableExtractor(60 * time.Millisecond).Extract(context.Background(), page)

	assert.ErrorIs(t, result.Err, ErrTableNotFound)
	assert.Equal(t, models.TableFailed, result.Debug.State)
	assert.Contains(t, result.Debug.Transitions, string(models.TableAwaitingContent))
	assert.Less(t, time.Since(start), time.Second, "the wait is bounded by the content wait")
}

func TestTableExtractor_PositionalColumns(t *testing.T) {
	table := `<table class="national-phase-table">` +
		row("2017-05-02", "US", "15/123,456", "Granted") +
		row("03.11.2017", "EP", "16718282.1", "Withdrawn") +
		`</table>`
	page := navigated(t, detailPage(), "<html><body>"+table+"<a>National Phase</a></body></html>")

	result := newTableExtractor(time.Second).Extract(context.Background(), page)
	require.NoError(t, result.Err)

	require.Len(t, result.Applications["2017"], 2)
	us := result.Applications["2017"][0]
	assert.Equal(t, "US", us.CountryCode)
	assert.Equal(t, "15/123,456", us.ApplicationNumber)
	assert.Equal(t, "2017-05-02", us.FilingDate)
	assert.Equal(t, models.LegalStatusInactive, result.Applications["2017"][1].LegalStatusCat)
}

func TestTableExtractor_EmptyTableIsExtracted(t *testing.T) {
	table := `<table class="national-phase-table">` +
		row("Atlantis Republic", "01.01.2017", "X", "Y") +
		row("Lemuria", "01.01.2017", "X", "Y") +
		`</table>`
	page := navigated(t, detailPage(), "<html><body>"+table+"</body></html>")

	result := newTableExtractor(time.Second).Extract(context.Background(), page)
	require.NoError(t, result.Err)
	assert.Equal(t, models.TableExtracted, result.Debug.State)
	assert.Equal(t, 0, result.Total())
	assert.Equal(t, 2, result.Debug.RowsSkipped)
}

func TestNormalizeCountry(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"br", "BR", true},
		{"EP", "EP", true},
		{"Republic of Korea (KR)", "KR", true},
		{"United States of America", "US", true},
		{"Eurasian Patent Organization", "EA", true},
		{"", "", false},
		{"N/A", "", false},
		{"-", "", false},
		{"\u2014", "", false},
		{"X", "", false},
		{"B1", "", false},
		{"Atlantis Republic", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizeCountry(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilingYear(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"14.04.2016", 2016, true},
		{"2017-05-02", 2017, true},
		{"02/05/2018", 2018, true},
		{"20190102", 2019, true},
		{"Jan 2, 2020", 2020, true},
		{"02 Jan 2021", 2021, true},
		{"January 2, 2022", 2022, true},
		{"2016", 0, false},
		{"soon", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := filingYear(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
