package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKeywords(t *testing.T) {
	m := ManuscriptMetadata{Keywords: []string{"Oncology", " oncology ", "", "CRISPR", "crispr", "Immunology"}}
	m.NormalizeKeywords()
	assert.Equal(t, []string{"Oncology", "CRISPR", "Immunology"}, m.Keywords)
}

func TestStepOrdinal(t *testing.T) {
	assert.Equal(t, 0, StepUpload.Ordinal())
	assert.Less(t, StepDatabaseSearch.Ordinal(), StepValidation.Ordinal())
	assert.Equal(t, -1, ProcessStep("BOGUS").Ordinal())
}

func TestSearchStateTerminal(t *testing.T) {
	assert.True(t, SearchCompleted.Terminal())
	assert.True(t, SearchError.Terminal())
	assert.False(t, SearchPending.Terminal())
	assert.False(t, SearchSearching.Terminal())
}

func TestMergeAffiliations(t *testing.T) {
	a := []Affiliation{
		{ID: "a1", InstitutionName: "Test University", Country: "US"},
		{ID: "a2", InstitutionName: "Other Institute", Country: "DE"},
	}
	b := []Affiliation{
		{ID: "b1", InstitutionName: "test university", Country: "us"}, // dup of a1
		{ID: "b2", InstitutionName: "New College", Country: "UK"},
		{ID: "b3", InstitutionName: ""}, // missing name is dropped
	}
	merged := MergeAffiliations(a, b)
	assert.Len(t, merged, 3)
	assert.Equal(t, "a1", merged[0].ID)
	assert.Equal(t, "b2", merged[2].ID)
}

func TestMergeStringSets(t *testing.T) {
	got := MergeStringSets([]string{"Oncology", "Genetics"}, []string{"oncology", "Surgery", ""})
	assert.Equal(t, []string{"Oncology", "Genetics", "Surgery"}, got)
}

func TestHasConflict(t *testing.T) {
	var nilRec *ValidationRecord
	assert.False(t, nilRec.HasConflict(ConflictCoAuthor))

	rec := &ValidationRecord{Conflicts: []ConflictKind{ConflictInstitutional}}
	assert.True(t, rec.HasConflict(ConflictInstitutional))
	assert.False(t, rec.HasConflict(ConflictManuscriptAuthor))
}

func TestStatusClone(t *testing.T) {
	var nilStatus *SearchStatus
	assert.Nil(t, nilStatus.Clone())

	s := &SearchStatus{Databases: map[SourceID]DatabaseProgress{
		SourcePubMed: {State: SearchSearching},
	}}
	c := s.Clone()
	c.Databases[SourcePubMed] = DatabaseProgress{State: SearchCompleted}
	assert.Equal(t, SearchSearching, s.Databases[SourcePubMed].State)
}
