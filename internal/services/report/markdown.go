// Package report renders pipeline reports and single extractions as
// markdown, HTML or JSON.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/pharmyrus/internal/models"
)

// maxTableRows bounds the per-section tables in markdown output
const maxTableRows = 50

// Markdown renders a pipeline report.
func Markdown(r *models.PipelineReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Patent intelligence: %s\n\n", escapeCell(r.Molecule))
	fmt.Fprintf(&b, "Run `%s` generated %s in %s.\n\n", r.RunID, r.GeneratedAt.Format(time.RFC3339), time.Duration(r.DurationMs)*time.Millisecond)

	if s := r.ExecutiveSummary; s != nil {
		b.WriteString("## Executive summary\n\n")
		b.WriteString("| Field | Value |\n|---|---|\n")
		row(&b, "Molecule", s.Molecule)
		row(&b, "Commercial name", s.CommercialName)
		row(&b, "Generic name", s.GenericName)
		row(&b, "CAS", s.CAS)
		row(&b, "Development codes", strings.Join(s.DevCodes, ", "))
		row(&b, "Total patents", fmt.Sprint(s.TotalPatents))
		row(&b, "Patent families", fmt.Sprint(s.TotalFamilies))
		row(&b, "Family countries", fmt.Sprint(s.FamilyCountries))
		row(&b, "FDA status", s.ApprovalStatus)
		row(&b, "Clinical trials", fmt.Sprint(s.ClinicalTrials))
		row(&b, "Layers succeeded", fmt.Sprintf("%d / %d", s.LayersSucceeded, s.LayersTotal))
		b.WriteString("\n")

		if len(s.ByJurisdiction) > 0 {
			b.WriteString("| Jurisdiction | Patents |\n|---|---|\n")
			for _, code := range sortedKeys(s.ByJurisdiction) {
				fmt.Fprintf(&b, "| %s | %d |\n", code, s.ByJurisdiction[code])
			}
			b.WriteString("\n")
		}
	}

	if len(r.AllPatents) > 0 {
		b.WriteString("## Patents\n\n")
		b.WriteString("| Number | Source | Title | Applicant | Filing date | Countries |\n|---|---|---|---|---|---|\n")
		for i, p := range r.AllPatents {
			if i == maxTableRows {
				fmt.Fprintf(&b, "\n_%d more not shown._\n", len(r.AllPatents)-maxTableRows)
				break
			}
			number := escapeCell(p.Number)
			if p.Link != "" {
				number = fmt.Sprintf("[%s](%s)", number, p.Link)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				number, p.Source, escapeCell(p.Title), escapeCell(p.Applicant), escapeCell(p.FilingDate), strings.Join(p.Countries, " "))
		}
		b.WriteString("\n")
	}

	if t := r.Trials; t != nil && t.Total > 0 {
		b.WriteString("## Clinical trials\n\n")
		fmt.Fprintf(&b, "%d trials. Sponsors: %s.\n\n", t.Total, escapeCell(strings.Join(t.Sponsors, "; ")))
		b.WriteString("| NCT ID | Title | Status | Phases |\n|---|---|---|---|\n")
		for _, trial := range t.Trials {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", trial.NCTID, escapeCell(trial.Title), trial.Status, strings.Join(trial.Phases, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Layers\n\n")
	b.WriteString("| Layer | Status | Duration | Data points | Error |\n|---|---|---|---|---|\n")
	for _, l := range r.Layers {
		fmt.Fprintf(&b, "| %s | %s | %dms | %d | %s |\n", l.Name, l.Status, l.DurationMs, l.DataPoints, escapeCell(l.Error))
	}

	return b.String()
}

// ExtractionMarkdown renders a single patent extraction.
func ExtractionMarkdown(result *models.ExtractionResult) string {
	var b strings.Builder
	record := result.Record

	fmt.Fprintf(&b, "# %s\n\n", record.PublicationNumber)
	if record.Title != "" {
		fmt.Fprintf(&b, "**%s**\n\n", escapeCell(record.Title))
	}

	b.WriteString("| Field | Value |\n|---|---|\n")
	row(&b, "Applicant", record.Applicant)
	row(&b, "Inventors", strings.Join(record.Inventors, "; "))
	row(&b, "Filing date", record.FilingDate)
	row(&b, "Publication date", record.PublicationDate)
	row(&b, "Priority date", record.PriorityDate)
	row(&b, "Classification", strings.Join(record.ClassificationCodes, ", "))
	row(&b, "Family countries", strings.Join(record.Countries, " "))
	row(&b, "Valid", fmt.Sprint(result.Valid))
	row(&b, "Attempts", fmt.Sprint(result.Debug.Attempts))
	row(&b, "From cache", fmt.Sprint(result.Debug.FromCache))
	b.WriteString("\n")

	if record.Abstract != "" {
		fmt.Fprintf(&b, "## Abstract\n\n%s\n\n", record.Abstract)
	}

	if total := record.TotalApplications(); total > 0 {
		fmt.Fprintf(&b, "## Worldwide applications (%d)\n\n", total)
		b.WriteString("| Year | Country | Number | Filing date | Status |\n|---|---|---|---|---|\n")
		years := make([]string, 0, len(record.WorldwideApplications))
		for year := range record.WorldwideApplications {
			years = append(years, year)
		}
		sort.Strings(years)
		for _, year := range years {
			for _, e := range record.WorldwideApplications[year] {
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", year, e.CountryCode, escapeCell(e.ApplicationNumber), e.FilingDate, e.LegalStatusCat)
			}
		}
		b.WriteString("\n")
	}

	if juris := result.Debug.CountryFilterApplied; juris != "" {
		fmt.Fprintf(&b, "%d of the family's applications were filed in %s.\n", len(record.JurisdictionPatents), juris)
	}

	return b.String()
}

func row(b *strings.Builder, field, value string) {
	if value == "" {
		value = "-"
	}
	fmt.Fprintf(b, "| %s | %s |\n", field, escapeCell(value))
}

// escapeCell keeps a value on one table row
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
