package models

import "strings"

// LegalStatusCategory is the normalised bucket for a free-text legal status.
type LegalStatusCategory string

const (
	LegalStatusActive   LegalStatusCategory = "active"
	LegalStatusPending  LegalStatusCategory = "pending"
	LegalStatusInactive LegalStatusCategory = "inactive"
	LegalStatusUnknown  LegalStatusCategory = "unknown"
)

// Inactive terms are matched first so "not in force" never reads as active.
var (
	inactiveStatusTerms = []string{
		"not in force", "withdrawn", "abandoned", "lapsed", "expired", "refused",
		"rejected", "revoked", "ceased", "dead", "terminated", "deemed withdrawn",
	}
	activeStatusTerms = []string{
		"grant", "in force", "active", "registered", "patented", "valid",
	}
	pendingStatusTerms = []string{
		"pending", "filed", "published", "examination", "entered", "entry",
		"application", "search", "under review",
	}
)

// NormalizeLegalStatus maps a legal status string to its category.
func NormalizeLegalStatus(status string) LegalStatusCategory {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return LegalStatusUnknown
	}
	for _, term := range inactiveStatusTerms {
		if strings.Contains(s, term) {
			return LegalStatusInactive
		}
	}
	for _, term := range activeStatusTerms {
		if strings.Contains(s, term) {
			return LegalStatusActive
		}
	}
	for _, term := range pendingStatusTerms {
		if strings.Contains(s, term) {
			return LegalStatusPending
		}
	}
	return LegalStatusUnknown
}
