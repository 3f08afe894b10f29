package pipeline

import (
	"strings"
	"unicode"

	"github.com/ternarybob/pharmyrus/internal/models"
)

const genericNameLimit = 100

// summaryJurisdictions are the offices counted in the executive summary
var summaryJurisdictions = []string{"BR", "US", "EP", "JP", "CN", "WO"}

// aggregatePatents lists WO patents first, then registry hits, keeping the
// first occurrence of each number.
func aggregatePatents(details *models.PatentDetailsPayload, registry *models.RegistryPayload) []models.AggregatedPatent {
	all := []models.AggregatedPatent{}
	seen := map[string]bool{}

	if details != nil {
		for _, result := range details.Patents {
			record := result.Record
			if record == nil || record.PublicationNumber == "" || seen[record.PublicationNumber] {
				continue
			}
			seen[record.PublicationNumber] = true
			all = append(all, models.AggregatedPatent{
				Number:        record.PublicationNumber,
				Type:          "WO",
				Source:        "wipo",
				Title:         record.Title,
				Applicant:     record.Applicant,
				Jurisdiction:  "WO",
				FilingDate:    record.FilingDate,
				Link:          record.SourceURL,
				Countries:     append([]string{}, record.Countries...),
				WorldwideApps: record.TotalApplications(),
			})
		}
	}

	if registry != nil {
		for _, p := range registry.Patents {
			if p.Number == "" || seen[p.Number] {
				continue
			}
			seen[p.Number] = true
			all = append(all, models.AggregatedPatent{
				Number:       p.Number,
				Type:         registry.Country,
				Source:       "inpi",
				Title:        p.Title,
				Applicant:    p.Applicant,
				Jurisdiction: registry.Country,
				FilingDate:   p.FilingDate,
				Link:         p.Link,
			})
		}
	}

	return all
}

func buildExecutiveSummary(report *models.PipelineReport) *models.ExecutiveSummary {
	summary := &models.ExecutiveSummary{
		Molecule:        report.Molecule,
		CommercialName:  titleCase(report.Molecule),
		DevCodes:        []string{},
		TotalPatents:    len(report.AllPatents),
		ByJurisdiction:  map[string]int{},
		ApprovalStatus:  "Unknown",
		LayersTotal:     len(report.Layers),
		LayersSucceeded: 0,
	}

	if s := report.Synonyms; s != nil {
		summary.GenericName = truncateRunes(s.IUPACName, genericNameLimit)
		summary.CAS = s.CAS
		summary.DevCodes = append(summary.DevCodes, s.DevCodes...)
	}
	if report.Approval != nil && report.Approval.Status != "" {
		summary.ApprovalStatus = report.Approval.Status
	}
	if report.Trials != nil {
		summary.ClinicalTrials = report.Trials.Total
	}

	families := map[string]bool{}
	countries := map[string]bool{}
	for _, code := range summaryJurisdictions {
		summary.ByJurisdiction[code] = 0
	}
	for _, p := range report.AllPatents {
		families[p.Number] = true
		for _, c := range p.Countries {
			countries[c] = true
		}
		for _, code := range summaryJurisdictions {
			if p.Type == code || containsString(p.Countries, code) {
				summary.ByJurisdiction[code]++
			}
		}
	}
	summary.TotalFamilies = len(families)
	summary.FamilyCountries = len(countries)

	for _, layer := range report.Layers {
		if layer.Status == models.LayerSuccess {
			summary.LayersSucceeded++
		}
	}

	if len(report.AllPatents) > 0 {
		summary.ConsistencyScore = 1
	}
	return summary
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
