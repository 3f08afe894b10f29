package models

import (
	"sort"
	"time"
)

// PatentRecord is the structured result of one patent detail extraction.
// Missing fields are empty strings or empty collections, never nil, so that
// the JSON shape is stable for callers.
type PatentRecord struct {
	PublicationNumber     string                                 `json:"publication_number"`
	Title                 string                                 `json:"title"`
	Abstract              string                                 `json:"abstract"`
	Applicant             string                                 `json:"applicant"`
	Inventors             []string                               `json:"inventors"`
	FilingDate            string                                 `json:"filing_date"`
	PublicationDate       string                                 `json:"publication_date"`
	PriorityDate          string                                 `json:"priority_date"`
	ClassificationCodes   []string                               `json:"classification_codes"`
	PDFLink               string                                 `json:"pdf_link"`
	WorldwideApplications map[string][]WorldwideApplicationEntry `json:"worldwide_applications"`
	Countries             []string                               `json:"countries"`
	JurisdictionPatents   []WorldwideApplicationEntry            `json:"jurisdiction_patents"`
	SourceURL             string                                 `json:"source_url"`
	ExtractedAt           time.Time                              `json:"extracted_at"`
}

// WorldwideApplicationEntry is one national-phase filing of a patent family.
type WorldwideApplicationEntry struct {
	FilingDate        string              `json:"filing_date"`
	CountryCode       string              `json:"country_code"`
	ApplicationNumber string              `json:"application_number"`
	LegalStatus       string              `json:"legal_status"`
	LegalStatusCat    LegalStatusCategory `json:"legal_status_cat"`
}

// NewPatentRecord returns a record with all collections initialised.
func NewPatentRecord(publicationNumber, sourceURL string) *PatentRecord {
	return &PatentRecord{
		PublicationNumber:     publicationNumber,
		Inventors:             []string{},
		ClassificationCodes:   []string{},
		WorldwideApplications: map[string][]WorldwideApplicationEntry{},
		Countries:             []string{},
		JurisdictionPatents:   []WorldwideApplicationEntry{},
		SourceURL:             sourceURL,
	}
}

// TotalApplications counts entries across every year bucket.
func (r *PatentRecord) TotalApplications() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, entries := range r.WorldwideApplications {
		total += len(entries)
	}
	return total
}

// PopulatedFields counts scalar fields and collections that carry data.
// Used to pick the most complete attempt when every attempt fails.
func (r *PatentRecord) PopulatedFields() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, s := range []string{r.Title, r.Abstract, r.Applicant, r.FilingDate, r.PublicationDate, r.PriorityDate, r.PDFLink} {
		if s != "" {
			n++
		}
	}
	if len(r.Inventors) > 0 {
		n++
	}
	if len(r.ClassificationCodes) > 0 {
		n++
	}
	if r.TotalApplications() > 0 {
		n++
	}
	return n
}

// IsValid reports whether the record carries any usable data: a title,
// abstract, applicant, any date or any worldwide application.
func (r *PatentRecord) IsValid() bool {
	if r == nil {
		return false
	}
	if r.Title != "" || r.Abstract != "" || r.Applicant != "" {
		return true
	}
	if r.FilingDate != "" || r.PublicationDate != "" || r.PriorityDate != "" {
		return true
	}
	return r.TotalApplications() > 0
}

// FilterJurisdiction returns the worldwide entries filed in country.
func (r *PatentRecord) FilterJurisdiction(country string) []WorldwideApplicationEntry {
	out := []WorldwideApplicationEntry{}
	if r == nil || country == "" {
		return out
	}
	years := make([]string, 0, len(r.WorldwideApplications))
	for year := range r.WorldwideApplications {
		years = append(years, year)
	}
	sort.Strings(years)
	for _, year := range years {
		for _, e := range r.WorldwideApplications[year] {
			if e.CountryCode == country {
				out = append(out, e)
			}
		}
	}
	return out
}

// Clone returns a deep copy so cached records cannot be mutated by callers.
func (r *PatentRecord) Clone() *PatentRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Inventors = append([]string{}, r.Inventors...)
	c.ClassificationCodes = append([]string{}, r.ClassificationCodes...)
	c.Countries = append([]string{}, r.Countries...)
	c.JurisdictionPatents = append([]WorldwideApplicationEntry{}, r.JurisdictionPatents...)
	c.WorldwideApplications = make(map[string][]WorldwideApplicationEntry, len(r.WorldwideApplications))
	for year, entries := range r.WorldwideApplications {
		c.WorldwideApplications[year] = append([]WorldwideApplicationEntry{}, entries...)
	}
	return &c
}
