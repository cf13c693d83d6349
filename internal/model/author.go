package model

import "strings"

// Author is the unified shape for both manuscript authors and reviewer
// candidates. IDs are sourced from the upstream database when available,
// otherwise synthesised deterministically by the adapter.
type Author struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Email            string        `json:"email,omitempty"`
	Affiliations     []Affiliation `json:"affiliations,omitempty"`
	PublicationCount int           `json:"publication_count"`
	ClinicalTrials   int           `json:"clinical_trials"`
	Retractions      int           `json:"retractions"`
	ResearchAreas    []string      `json:"research_areas,omitempty"`
	MeshTerms        []string      `json:"mesh_terms,omitempty"`
}

// Affiliation is an institutional affiliation. InstitutionName is required.
type Affiliation struct {
	ID              string `json:"id"`
	InstitutionName string `json:"institution_name"`
	Department      string `json:"department,omitempty"`
	Address         string `json:"address,omitempty"`
	Country         string `json:"country,omitempty"`
}

// Key returns the dedup key for affiliation unions: case-folded
// institution name plus country.
func (a Affiliation) Key() string {
	return strings.ToLower(strings.TrimSpace(a.InstitutionName)) + "|" + strings.ToLower(strings.TrimSpace(a.Country))
}

// NormalizeName trims, collapses internal whitespace, and case-folds a
// person or institution name for matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// MergeAffiliations unions two affiliation sets keyed by Key(),
// preserving the order of a then the unseen entries of b.
func MergeAffiliations(a, b []Affiliation) []Affiliation {
	seen := make(map[string]bool, len(a))
	out := make([]Affiliation, 0, len(a)+len(b))
	for _, aff := range a {
		if aff.InstitutionName == "" || seen[aff.Key()] {
			continue
		}
		seen[aff.Key()] = true
		out = append(out, aff)
	}
	for _, aff := range b {
		if aff.InstitutionName == "" || seen[aff.Key()] {
			continue
		}
		seen[aff.Key()] = true
		out = append(out, aff)
	}
	return out
}

// MergeStringSets unions two string sets case-insensitively, preserving
// the order of a then the unseen entries of b.
func MergeStringSets(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		folded := strings.ToLower(strings.TrimSpace(s))
		if folded == "" || seen[folded] {
			continue
		}
		seen[folded] = true
		out = append(out, s)
	}
	for _, s := range b {
		folded := strings.ToLower(strings.TrimSpace(s))
		if folded == "" || seen[folded] {
			continue
		}
		seen[folded] = true
		out = append(out, s)
	}
	return out
}
