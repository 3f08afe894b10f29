package models

import "time"

// LayerStatus is the terminal status of one pipeline layer.
type LayerStatus string

const (
	LayerSuccess  LayerStatus = "success"
	LayerPartial  LayerStatus = "partial"
	LayerFailed   LayerStatus = "failed"
	LayerTimedOut LayerStatus = "timed-out"
)

// Merged reports whether a layer with this status contributes to the report.
func (s LayerStatus) Merged() bool {
	return s == LayerSuccess || s == LayerPartial
}

// Layer names in execution order.
const (
	LayerSynonyms      = "synonyms"
	LayerDiscovery     = "discovery"
	LayerPatentDetails = "patent_details"
	LayerJurisdiction  = "jurisdiction"
	LayerApproval      = "approval"
	LayerTrials        = "trials"
)

// LayerOrder is the fixed ordering of pipeline layers.
var LayerOrder = []string{
	LayerSynonyms,
	LayerDiscovery,
	LayerPatentDetails,
	LayerJurisdiction,
	LayerApproval,
	LayerTrials,
}

// PipelineLayerResult is the outcome of one layer. Payload is carried to the
// merge step only and is never serialised in the debug breakdown.
type PipelineLayerResult struct {
	Name       string         `json:"name"`
	Status     LayerStatus    `json:"status"`
	Duration   time.Duration  `json:"-"`
	DurationMs int64          `json:"duration_ms"`
	DataPoints int            `json:"data_points"`
	Details    map[string]any `json:"details,omitempty"`
	Error      string         `json:"error,omitempty"`
	Payload    any            `json:"-"`
}

// PipelineRequest is the validated input of one orchestration run.
type PipelineRequest struct {
	Molecule     string `json:"molecule" validate:"required,min=2,max=200"`
	Jurisdiction string `json:"jurisdiction,omitempty" validate:"omitempty,len=2,alpha"`
	Limit        int    `json:"limit" validate:"min=1,max=50"`
}

// PipelineReport is the merged output of one orchestration run.
type PipelineReport struct {
	RunID            string                `json:"run_id"`
	Molecule         string                `json:"molecule"`
	Jurisdiction     string                `json:"jurisdiction,omitempty"`
	Limit            int                   `json:"limit"`
	Synonyms         *SynonymPayload       `json:"synonyms,omitempty"`
	Discovery        *DiscoveryPayload     `json:"discovery,omitempty"`
	Patents          *PatentDetailsPayload `json:"patents,omitempty"`
	Registry         *RegistryPayload      `json:"registry,omitempty"`
	Approval         *ApprovalPayload      `json:"approval,omitempty"`
	Trials           *TrialsPayload        `json:"clinical_trials,omitempty"`
	AllPatents       []AggregatedPatent    `json:"all_patents"`
	ExecutiveSummary *ExecutiveSummary     `json:"executive_summary,omitempty"`
	Layers           []PipelineLayerResult `json:"debug_layers"`
	MergedLayers     []string              `json:"merged_layers"`
	Errors           map[string]string     `json:"errors,omitempty"`
	StartedAt        time.Time             `json:"started_at"`
	GeneratedAt      time.Time             `json:"generated_at"`
	DurationMs       int64                 `json:"duration_ms"`
}

// Layer returns the debug entry for name, or nil.
func (r *PipelineReport) Layer(name string) *PipelineLayerResult {
	for i := range r.Layers {
		if r.Layers[i].Name == name {
			return &r.Layers[i]
		}
	}
	return nil
}

// SynonymPayload is the output of the synonym resolution layer.
type SynonymPayload struct {
	CID          int      `json:"cid,omitempty"`
	Synonyms     []string `json:"synonyms"`
	DevCodes     []string `json:"dev_codes"`
	CAS          string   `json:"cas,omitempty"`
	Formula      string   `json:"molecular_formula,omitempty"`
	Weight       string   `json:"molecular_weight,omitempty"`
	IUPACName    string   `json:"iupac_name,omitempty"`
	SMILES       string   `json:"smiles,omitempty"`
	InChI        string   `json:"inchi,omitempty"`
	InChIKey     string   `json:"inchi_key,omitempty"`
	TotalRecords int      `json:"total_synonyms"`
}

// DiscoveryPayload is the output of the candidate discovery layer.
type DiscoveryPayload struct {
	Candidates     []string `json:"wo_numbers"`
	QueriesPlanned int      `json:"queries_planned"`
	QueriesRun     int      `json:"queries_run"`
	QueriesFailed  int      `json:"queries_failed"`
	TotalFound     int      `json:"total_found"`
}

// PatentDetailsPayload is the output of the detail extraction layer.
type PatentDetailsPayload struct {
	Patents   []*ExtractionResult `json:"patents"`
	Requested int                 `json:"requested"`
	Valid     int                 `json:"valid"`
	Filtered  int                 `json:"filtered_by_jurisdiction"`
	Failed    map[string]string   `json:"failed,omitempty"`
}

// RegistryPatent is one national registry hit.
type RegistryPatent struct {
	Number     string `json:"number"`
	Title      string `json:"title,omitempty"`
	Applicant  string `json:"applicant,omitempty"`
	FilingDate string `json:"filing_date,omitempty"`
	Link       string `json:"link,omitempty"`
	Term       string `json:"search_term"`
}

// RegistryPayload is the output of the local-jurisdiction registry layer.
type RegistryPayload struct {
	Country string           `json:"country"`
	Patents []RegistryPatent `json:"patents"`
	Terms   []string         `json:"search_terms"`
}

// ApprovalProduct is one regulatory product listing.
type ApprovalProduct struct {
	ProductNDC        string   `json:"product_ndc"`
	BrandName         string   `json:"brand_name"`
	GenericName       string   `json:"generic_name"`
	Labeler           string   `json:"labeler_name"`
	DosageForm        string   `json:"dosage_form"`
	Route             []string `json:"route"`
	MarketingCategory string   `json:"marketing_category,omitempty"`
	ApplicationNumber string   `json:"application_number,omitempty"`
}

// ApprovalPayload is the output of the regulatory approval layer.
type ApprovalPayload struct {
	Status   string            `json:"approval_status"`
	Products []ApprovalProduct `json:"products"`
	Total    int               `json:"total_results"`
}

// TrialSummary is one clinical trial record.
type TrialSummary struct {
	NCTID      string   `json:"nct_id"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Phases     []string `json:"phases"`
	Sponsor    string   `json:"sponsor"`
	Countries  []string `json:"countries"`
	StartDate  string   `json:"start_date,omitempty"`
	Enrollment int      `json:"enrollment,omitempty"`
}

// TrialsPayload is the output of the clinical trial layer.
type TrialsPayload struct {
	Total     int            `json:"total_trials"`
	ByPhase   map[string]int `json:"by_phase"`
	ByStatus  map[string]int `json:"by_status"`
	Sponsors  []string       `json:"sponsors"`
	Countries []string       `json:"countries"`
	Trials    []TrialSummary `json:"trials"`
}

// AggregatedPatent is one entry in the deduplicated patent list.
type AggregatedPatent struct {
	Number        string   `json:"patent_number"`
	Type          string   `json:"type"`
	Source        string   `json:"source"`
	Title         string   `json:"title,omitempty"`
	Applicant     string   `json:"applicant,omitempty"`
	Jurisdiction  string   `json:"jurisdiction"`
	FilingDate    string   `json:"filing_date,omitempty"`
	Link          string   `json:"link,omitempty"`
	Countries     []string `json:"countries,omitempty"`
	WorldwideApps int      `json:"worldwide_apps,omitempty"`
}

// ExecutiveSummary is the headline view of a pipeline report.
type ExecutiveSummary struct {
	Molecule         string         `json:"molecule_name"`
	GenericName      string         `json:"generic_name,omitempty"`
	CommercialName   string         `json:"commercial_name"`
	CAS              string         `json:"cas_number,omitempty"`
	DevCodes         []string       `json:"development_codes"`
	TotalPatents     int            `json:"total_patents"`
	TotalFamilies    int            `json:"total_families"`
	ByJurisdiction   map[string]int `json:"jurisdictions"`
	FamilyCountries  int            `json:"family_countries"`
	ApprovalStatus   string         `json:"fda_status"`
	ClinicalTrials   int            `json:"clinical_trials_count"`
	ConsistencyScore float64        `json:"consistency_score"`
	LayersSucceeded  int            `json:"layers_succeeded"`
	LayersTotal      int            `json:"layers_total"`
}
