package interfaces

import (
	"context"

	"github.com/ternarybob/pharmyrus/internal/models"
)

// SynonymLookup resolves a molecule name to synonyms, development codes and
// physico-chemical identifiers.
type SynonymLookup interface {
	Resolve(ctx context.Context, molecule string) (*models.SynonymPayload, error)
}

// SearchEngine runs a web search and returns the organic results.
type SearchEngine interface {
	Search(ctx context.Context, query string, num int) ([]models.SearchResult, error)
}

// RegistryLookup searches a national patent registry by free-text term.
type RegistryLookup interface {
	Country() string
	Search(ctx context.Context, term string) ([]models.RegistryPatent, error)
}

// ApprovalLookup reports the regulatory approval status of a molecule.
type ApprovalLookup interface {
	ApprovalStatus(ctx context.Context, molecule string) (*models.ApprovalPayload, error)
}

// TrialsLookup summarises clinical trials registered for a molecule.
type TrialsLookup interface {
	Trials(ctx context.Context, molecule string) (*models.TrialsPayload, error)
}

// PatentFetcher extracts patent details through the bounded crawler pool.
type PatentFetcher interface {
	FetchPatent(ctx context.Context, identifier, jurisdiction string) (*models.ExtractionResult, error)
	FetchMany(ctx context.Context, identifiers []string, jurisdiction string) []models.FetchOutcome
}
