package validation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/repo"
)

func newTestPipeline(t *testing.T) (*Pipeline, *repo.Memory, uuid.UUID) {
	t.Helper()
	mem := repo.NewMemory()
	p, err := mem.CreateProcess(context.Background(), model.Process{
		OwnerID: "owner-1",
		Title:   "Sepsis biomarkers",
		Step:    model.StepDatabaseSearch,
		Status:  model.ProcessProcessing,
	})
	require.NoError(t, err)
	return New(mem, nil, 2), mem, p.ID
}

func addCandidate(t *testing.T, mem *repo.Memory, pid uuid.UUID, a model.Author) {
	t.Helper()
	require.NoError(t, mem.SaveCandidate(context.Background(), model.Candidate{
		ProcessID: pid,
		Author:    a,
		Role:      model.RoleCandidate,
		Source:    model.SourcePubMed,
	}))
}

func recordOf(t *testing.T, mem *repo.Memory, pid uuid.UUID, authorID string) *model.ValidationRecord {
	t.Helper()
	c, err := mem.GetCandidate(context.Background(), pid, authorID)
	require.NoError(t, err)
	require.NotNil(t, c.Validation)
	return c.Validation
}

func stepByName(t *testing.T, rec *model.ValidationRecord, name string) model.StepResult {
	t.Helper()
	for _, s := range rec.Steps {
		if s.StepName == name {
			return s
		}
	}
	t.Fatalf("step %q not found", name)
	return model.StepResult{}
}

func TestValidateManuscriptAuthorIsCandidate(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	addCandidate(t, mem, pid, model.Author{
		ID: "pubmed-jd", Name: "John Doe", Email: "john.doe@test.edu", PublicationCount: 10,
	})

	meta := model.ManuscriptMetadata{
		Authors: []model.Author{{Name: "John Doe", Email: "john.doe@test.edu"}},
	}
	res, err := pl.Validate(context.Background(), pid, meta, model.DefaultValidationConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCandidates)
	assert.Zero(t, res.PassedCandidates)

	rec := recordOf(t, mem, pid, "pubmed-jd")
	require.NotEmpty(t, rec.Steps)
	assert.Equal(t, StepManuscriptAuthor, rec.Steps[0].StepName)
	assert.False(t, rec.Steps[0].Passed)
	assert.True(t, rec.HasConflict(model.ConflictManuscriptAuthor))
	assert.False(t, rec.Passed)
	// All five steps still ran.
	assert.Len(t, rec.Steps, 5)
}

func TestValidateNameSimilarityCatchesVariants(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	// One character off from the manuscript author's name keeps the
	// similarity above 0.9 for names this long.
	addCandidate(t, mem, pid, model.Author{ID: "pubmed-v", Name: "Christopher Alexandr", PublicationCount: 10})

	meta := model.ManuscriptMetadata{Authors: []model.Author{{Name: "Christopher Alexander"}}}
	_, err := pl.Validate(context.Background(), pid, meta, model.DefaultValidationConfig())
	require.NoError(t, err)

	rec := recordOf(t, mem, pid, "pubmed-v")
	assert.True(t, rec.HasConflict(model.ConflictManuscriptAuthor))
}

func TestValidateOrcidEmailNeverMatches(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	// Synthesised placeholder addresses must not act as identity keys.
	addCandidate(t, mem, pid, model.Author{
		ID: "wiley-x", Name: "Maria Garcia", Email: "0000-0002-1825-0097@orcid.org", PublicationCount: 10,
	})

	meta := model.ManuscriptMetadata{
		Authors: []model.Author{{Name: "Somebody Else", Email: "0000-0002-1825-0097@orcid.org"}},
	}
	_, err := pl.Validate(context.Background(), pid, meta, model.DefaultValidationConfig())
	require.NoError(t, err)

	rec := recordOf(t, mem, pid, "wiley-x")
	assert.False(t, rec.HasConflict(model.ConflictManuscriptAuthor))
	assert.True(t, rec.Passed)
}

func TestValidateInstitutionalSimilarity(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	addCandidate(t, mem, pid, model.Author{
		ID: "pubmed-i", Name: "Jane Smith", PublicationCount: 10,
		Affiliations: []model.Affiliation{{ID: "aff-1", InstitutionName: "Test University Medical Center"}},
	})

	meta := model.ManuscriptMetadata{
		Authors:      []model.Author{{Name: "John Doe"}},
		Affiliations: []model.Affiliation{{ID: "aff-2", InstitutionName: "Test University"}},
	}
	_, err := pl.Validate(context.Background(), pid, meta, model.DefaultValidationConfig())
	require.NoError(t, err)

	rec := recordOf(t, mem, pid, "pubmed-i")
	step := stepByName(t, rec, StepInstitutional)
	assert.False(t, step.Passed)
	assert.True(t, rec.HasConflict(model.ConflictInstitutional))
	assert.False(t, rec.Passed)
}

func TestValidateThresholdBoundaries(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	addCandidate(t, mem, pid, model.Author{ID: "pubmed-t", Name: "Low Output", PublicationCount: 2, Retractions: 0})

	cfg := model.DefaultValidationConfig() // minPublications 5, maxRetractions 0
	_, err := pl.Validate(context.Background(), pid, model.ManuscriptMetadata{}, cfg)
	require.NoError(t, err)

	rec := recordOf(t, mem, pid, "pubmed-t")
	pub := stepByName(t, rec, StepPublicationThreshold)
	assert.False(t, pub.Passed)
	assert.Contains(t, pub.Message, "Publication count (2) below minimum (5)")

	// The retraction step still executed and passes on the inclusive boundary.
	ret := stepByName(t, rec, StepRetraction)
	assert.True(t, ret.Passed)
	assert.Empty(t, rec.Conflicts)
	assert.False(t, rec.Passed)
}

func TestValidateRetractionsExceeded(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	addCandidate(t, mem, pid, model.Author{ID: "pubmed-r", Name: "Flagged", PublicationCount: 20, Retractions: 3})

	_, err := pl.Validate(context.Background(), pid, model.ManuscriptMetadata{}, model.DefaultValidationConfig())
	require.NoError(t, err)

	rec := recordOf(t, mem, pid, "pubmed-r")
	assert.False(t, rec.Passed)
	require.Len(t, rec.RetractionFlags, 1)
	assert.Contains(t, rec.RetractionFlags[0], "3 retracted")

	pub := stepByName(t, rec, StepPublicationThreshold)
	assert.False(t, pub.Passed)
	assert.Contains(t, pub.Message, "Retraction count (3) exceeds maximum (0)")
}

func TestValidateCoAuthorHeuristic(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	addCandidate(t, mem, pid, model.Author{
		ID: "pubmed-c", Name: "Jane Smith", PublicationCount: 10,
		ResearchAreas: []string{"Oncology", "Immunotherapy", "Genomics"},
	})

	meta := model.ManuscriptMetadata{
		Authors: []model.Author{{Name: "John Doe", ResearchAreas: []string{"oncology", "immunotherapy"}}},
	}
	_, err := pl.Validate(context.Background(), pid, meta, model.DefaultValidationConfig())
	require.NoError(t, err)

	rec := recordOf(t, mem, pid, "pubmed-c")
	assert.True(t, rec.HasConflict(model.ConflictCoAuthor))
	assert.False(t, rec.Passed)
}

func TestValidateDisabledChecks(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	addCandidate(t, mem, pid, model.Author{
		ID: "pubmed-d", Name: "Jane Smith", PublicationCount: 10,
		ResearchAreas: []string{"Oncology", "Immunotherapy"},
		Affiliations:  []model.Affiliation{{ID: "aff-1", InstitutionName: "Test University"}},
	})

	cfg := model.DefaultValidationConfig()
	cfg.CheckCoAuthorConflict = false
	cfg.CheckInstitutionalConflict = false
	meta := model.ManuscriptMetadata{
		Authors:      []model.Author{{Name: "John Doe", ResearchAreas: []string{"Oncology", "Immunotherapy"}}},
		Affiliations: []model.Affiliation{{ID: "aff-2", InstitutionName: "Test University"}},
	}
	_, err := pl.Validate(context.Background(), pid, meta, cfg)
	require.NoError(t, err)

	rec := recordOf(t, mem, pid, "pubmed-d")
	assert.True(t, rec.Passed)
	assert.Empty(t, rec.Conflicts)
	assert.Len(t, rec.Steps, 5, "disabled steps are still reported")
}

func TestValidateMetrics(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	addCandidate(t, mem, pid, model.Author{ID: "pubmed-m", Name: "Jane Smith", PublicationCount: 11})

	_, err := pl.Validate(context.Background(), pid, model.ManuscriptMetadata{}, model.DefaultValidationConfig())
	require.NoError(t, err)

	rec := recordOf(t, mem, pid, "pubmed-m")
	assert.Equal(t, 11, rec.Metrics.TotalPublications)
	assert.Equal(t, 3, rec.Metrics.RecentPublications, "floor(11 * 0.3)")
}

func TestRevalidateReplacesRecords(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	addCandidate(t, mem, pid, model.Author{ID: "pubmed-rv", Name: "Jane Smith", PublicationCount: 6})

	cfg := model.DefaultValidationConfig()
	res1, err := pl.Validate(context.Background(), pid, model.ManuscriptMetadata{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, res1.PassedCandidates)

	// Stricter threshold flips the outcome.
	cfg.MinPublications = 10
	res2, err := pl.Revalidate(context.Background(), pid, model.ManuscriptMetadata{}, cfg)
	require.NoError(t, err)
	assert.Zero(t, res2.PassedCandidates)

	rec := recordOf(t, mem, pid, "pubmed-rv")
	assert.False(t, rec.Passed)
}

func TestRevalidateSameConfigIsIdempotent(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	addCandidate(t, mem, pid, model.Author{ID: "pubmed-id", Name: "Jane Smith", PublicationCount: 6})

	cfg := model.DefaultValidationConfig()
	_, err := pl.Validate(context.Background(), pid, model.ManuscriptMetadata{}, cfg)
	require.NoError(t, err)
	first := recordOf(t, mem, pid, "pubmed-id")

	_, err = pl.Revalidate(context.Background(), pid, model.ManuscriptMetadata{}, cfg)
	require.NoError(t, err)
	second := recordOf(t, mem, pid, "pubmed-id")

	first.ValidatedAt, second.ValidatedAt = time.Time{}, time.Time{}
	assert.Equal(t, first, second)
}

func TestValidateManyCandidatesInParallel(t *testing.T) {
	pl, mem, pid := newTestPipeline(t)
	for i := 0; i < 25; i++ {
		addCandidate(t, mem, pid, model.Author{
			ID: uuid.NewString(), Name: uuid.NewString(), PublicationCount: i,
		})
	}

	res, err := pl.Validate(context.Background(), pid, model.ManuscriptMetadata{}, model.DefaultValidationConfig())
	require.NoError(t, err)
	assert.Equal(t, 25, res.TotalCandidates)
	assert.Equal(t, 25, res.ValidatedCandidates)
	assert.Equal(t, 20, res.PassedCandidates, "counts 0-4 fall below the minimum of 5")
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"John Doe", "John Doe", 1, 1},
		{"John Doe", "john  doe", 1, 1},
		{"John Doe", "Jonh Doe", 0.7, 0.99},
		{"John Doe", "Mary Major", 0, 0.5},
		{"", "", 1, 1},
	}
	for _, tt := range tests {
		got := NameSimilarity(tt.a, tt.b)
		assert.GreaterOrEqual(t, got, tt.min, "%q vs %q", tt.a, tt.b)
		assert.LessOrEqual(t, got, tt.max, "%q vs %q", tt.a, tt.b)
	}
}

func TestInstitutionSimilarityStopwords(t *testing.T) {
	got := InstitutionSimilarity("Test University", "Test University Medical Center")
	assert.Greater(t, got, 0.8)

	other := InstitutionSimilarity("Test University", "Completely Different Institute")
	assert.Less(t, other, 0.8)
}

func TestUsableEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"JS@Uni.edu", "js@uni.edu", true},
		{"0000-0002-1825-0097@orcid.org", "", false},
		{"not-an-email", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := usableEmail(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
