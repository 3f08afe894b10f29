package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLegalStatus(t *testing.T) {
	tests := []struct {
		status string
		want   LegalStatusCategory
	}{
		{"Granted", LegalStatusActive},
		{"  IN FORCE ", LegalStatusActive},
		{"Not in force", LegalStatusInactive},
		{"Deemed withdrawn", LegalStatusInactive},
		{"Lapsed", LegalStatusInactive},
		{"Expired", LegalStatusInactive},
		{"National phase entered", LegalStatusPending},
		{"Under examination", LegalStatusPending},
		{"Published", LegalStatusPending},
		{"", LegalStatusUnknown},
		{"-", LegalStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLegalStatus(tt.status))
		})
	}
}

func sampleRecord() *PatentRecord {
	r := NewPatentRecord("WO2016168716", "https://patentscope.wipo.int/search/en/detail.jsf?docId=WO2016168716")
	r.WorldwideApplications["2017"] = []WorldwideApplicationEntry{
		{CountryCode: "BR", ApplicationNumber: "BR2", FilingDate: "2017-01-02"},
		{CountryCode: "US", ApplicationNumber: "US1", FilingDate: "2017-03-01"},
	}
	r.WorldwideApplications["2016"] = []WorldwideApplicationEntry{
		{CountryCode: "BR", ApplicationNumber: "BR1", FilingDate: "2016-05-05"},
	}
	return r
}

func TestPatentRecordValidity(t *testing.T) {
	var nilRecord *PatentRecord
	assert.False(t, nilRecord.IsValid())
	assert.Zero(t, nilRecord.TotalApplications())
	assert.Zero(t, nilRecord.PopulatedFields())

	empty := NewPatentRecord("WO2016168716", "")
	assert.False(t, empty.IsValid())
	assert.Zero(t, empty.PopulatedFields())

	withDate := NewPatentRecord("WO2016168716", "")
	withDate.PriorityDate = "2015-04-15"
	assert.True(t, withDate.IsValid())

	withTable := sampleRecord()
	assert.True(t, withTable.IsValid())
	assert.Equal(t, 3, withTable.TotalApplications())
	assert.Equal(t, 1, withTable.PopulatedFields())

	withTable.Title = "Crystalline forms"
	withTable.Inventors = []string{"A. Person"}
	assert.Equal(t, 3, withTable.PopulatedFields())
}

func TestFilterJurisdiction(t *testing.T) {
	r := sampleRecord()

	br := r.FilterJurisdiction("BR")
	require.Len(t, br, 2)
	assert.Equal(t, "BR1", br[0].ApplicationNumber, "older years first")
	assert.Equal(t, "BR2", br[1].ApplicationNumber)

	assert.Empty(t, r.FilterJurisdiction("JP"))
	assert.NotNil(t, r.FilterJurisdiction(""))
}

func TestPatentRecordClone(t *testing.T) {
	r := sampleRecord()
	r.Inventors = []string{"A. Person"}

	c := r.Clone()
	c.Inventors[0] = "Changed"
	c.WorldwideApplications["2016"][0].CountryCode = "XX"
	c.WorldwideApplications["2018"] = nil

	assert.Equal(t, "A. Person", r.Inventors[0])
	assert.Equal(t, "BR", r.WorldwideApplications["2016"][0].CountryCode)
	assert.NotContains(t, r.WorldwideApplications, "2018")

	var nilRecord *PatentRecord
	assert.Nil(t, nilRecord.Clone())
}

func TestExtractionResultClone(t *testing.T) {
	debug := NewExtractionDebug()
	debug.StrategyByField["title"] = "h3.tab_title"
	debug.Table = &TableDebug{State: TableExtracted, Transitions: []string{"idle", "extracted"}}
	result := &ExtractionResult{Record: sampleRecord(), Debug: debug, Valid: true}

	c := result.Clone()
	c.Debug.StrategyByField["title"] = "div.title"
	c.Debug.Table.Transitions[0] = "failed"
	c.Record.Title = "Other"

	assert.Equal(t, "h3.tab_title", result.Debug.StrategyByField["title"])
	assert.Equal(t, "idle", result.Debug.Table.Transitions[0])
	assert.Empty(t, result.Record.Title)
	assert.True(t, c.Valid)
}

func TestLayerStatusMerged(t *testing.T) {
	assert.True(t, LayerSuccess.Merged())
	assert.True(t, LayerPartial.Merged())
	assert.False(t, LayerFailed.Merged())
	assert.False(t, LayerTimedOut.Merged())
}

func TestPipelineReportLayer(t *testing.T) {
	report := &PipelineReport{Layers: []PipelineLayerResult{
		{Name: LayerSynonyms, Status: LayerSuccess},
		{Name: LayerTrials, Status: LayerFailed},
	}}

	layer := report.Layer(LayerTrials)
	require.NotNil(t, layer)
	assert.Equal(t, LayerFailed, layer.Status)
	assert.Nil(t, report.Layer(LayerApproval))
}
