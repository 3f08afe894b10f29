package models

// SearchResult is one organic web search hit.
type SearchResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
}

// FetchOutcome pairs an identifier with its extraction result or error.
// Err is kept out of the JSON shape; Error carries its message.
type FetchOutcome struct {
	Identifier string            `json:"identifier"`
	Result     *ExtractionResult `json:"result,omitempty"`
	Err        error             `json:"-"`
	Error      string            `json:"error,omitempty"`
}
