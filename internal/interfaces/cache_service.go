// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"github.com/ternarybob/pharmyrus/internal/models"
)

// ResultCache stores completed extractions keyed by identifier and
// jurisdiction filter. Implementations never return an entry older than
// their TTL.
type ResultCache interface {
	// Get returns a fresh cached result and true, or nil and false.
	Get(key string) (*models.ExtractionResult, bool)

	// Set stores result under key with the cache's TTL.
	Set(key string, result *models.ExtractionResult) error

	// Delete removes key if present.
	Delete(key string)

	// Sweep evicts expired entries and returns how many were removed.
	Sweep() int

	// Len returns the number of stored entries, fresh or not.
	Len() int

	// Close releases the backing store.
	Close() error
}
