package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refmatch/refmatch/internal/aggregate"
	"github.com/refmatch/refmatch/internal/apperr"
	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/repo"
	"github.com/refmatch/refmatch/internal/sources"
)

// fakeAdapter is a scripted sources.Adapter for orchestration tests.
type fakeAdapter struct {
	source  model.SourceID
	authors []model.Author
	err     error
	block   chan struct{} // when set, SearchAuthors waits for close or ctx
}

func (f *fakeAdapter) Source() model.SourceID { return f.source }

func (f *fakeAdapter) SearchAuthors(ctx context.Context, _ model.SearchTerms, _ sources.SearchOptions) (*sources.AdapterResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &sources.AdapterResult{
		Source:     f.source,
		Authors:    f.authors,
		TotalFound: len(f.authors),
	}, nil
}

func (f *fakeAdapter) SearchByName(context.Context, string, sources.SearchOptions) ([]model.Author, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.authors, nil
}

func (f *fakeAdapter) SearchByEmail(context.Context, string) ([]model.Author, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.authors, nil
}

func (f *fakeAdapter) GetAuthorProfile(_ context.Context, id string) (*model.Author, error) {
	for _, a := range f.authors {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, nil
}

func newTestOrchestrator(t *testing.T, adapters ...sources.Adapter) (*Orchestrator, *repo.Memory, uuid.UUID) {
	t.Helper()
	mem := repo.NewMemory()
	p, err := mem.CreateProcess(context.Background(), model.Process{
		OwnerID: "owner-1",
		Title:   "Sepsis biomarkers",
		Step:    model.StepKeywordEnhancement,
		Status:  model.ProcessProcessing,
	})
	require.NoError(t, err)
	o := New(adapters, aggregate.New(mem, nil), mem, nil, Config{TaskTimeout: 2 * time.Second})
	return o, mem, p.ID
}

func waitForCompletion(t *testing.T, o *Orchestrator, pid uuid.UUID) *model.SearchStatus {
	t.Helper()
	var status *model.SearchStatus
	require.Eventually(t, func() bool {
		s, err := o.GetStatus(pid)
		if err != nil {
			return false
		}
		status = s
		return s.State.Terminal()
	}, 3*time.Second, 5*time.Millisecond)
	return status
}

func TestStartSearchPartialFailure(t *testing.T) {
	o, mem, pid := newTestOrchestrator(t,
		&fakeAdapter{source: model.SourcePubMed, err: errors.New("PubMed API error")},
		&fakeAdapter{source: model.SourceElsevier, authors: []model.Author{{ID: "elsevier-a", Name: "Jane Smith", PublicationCount: 8}}},
		&fakeAdapter{source: model.SourceWiley, authors: []model.Author{{ID: "wiley-b", Name: "John Doe", PublicationCount: 5}}},
	)

	require.NoError(t, o.StartSearch(context.Background(), pid, model.SearchTerms{Keywords: []string{"sepsis"}}))
	status := waitForCompletion(t, o, pid)

	// One source failing never fails the search.
	assert.Equal(t, model.SearchCompleted, status.State)
	assert.Equal(t, 2, status.TotalAuthorsFound)
	assert.False(t, status.EndTime.IsZero())

	pm := status.Databases[model.SourcePubMed]
	assert.Equal(t, model.SearchError, pm.State)
	assert.Equal(t, "PubMed API error", pm.Error)

	for _, src := range []model.SourceID{model.SourceElsevier, model.SourceWiley} {
		slot := status.Databases[src]
		assert.Equal(t, model.SearchCompleted, slot.State)
		assert.Equal(t, 100, slot.Percent)
		assert.Equal(t, 1, slot.AuthorsFound)
	}

	cands, err := mem.ListCandidates(context.Background(), pid, nil)
	require.NoError(t, err)
	assert.Len(t, cands, 2)

	proc, err := mem.GetProcess(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, model.StepDatabaseSearch, proc.Step)
	assert.Equal(t, model.ProcessProcessing, proc.Status)
}

func TestStartSearchMergesSameAuthorAcrossSources(t *testing.T) {
	o, mem, pid := newTestOrchestrator(t,
		&fakeAdapter{source: model.SourcePubMed, authors: []model.Author{{ID: "pubmed-a", Name: "Jane Smith", PublicationCount: 12}}},
		&fakeAdapter{source: model.SourceElsevier, authors: []model.Author{{ID: "elsevier-b", Name: "jane smith", PublicationCount: 20}}},
	)

	require.NoError(t, o.StartSearch(context.Background(), pid, model.SearchTerms{Keywords: []string{"x"}}))
	waitForCompletion(t, o, pid)

	cands, err := mem.ListCandidates(context.Background(), pid, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, 20, cands[0].Author.PublicationCount)
}

func TestStartSearchConflictWhileRunning(t *testing.T) {
	gate := make(chan struct{})
	o, _, pid := newTestOrchestrator(t,
		&fakeAdapter{source: model.SourcePubMed, block: gate},
	)

	require.NoError(t, o.StartSearch(context.Background(), pid, model.SearchTerms{Keywords: []string{"x"}}))

	err := o.StartSearch(context.Background(), pid, model.SearchTerms{Keywords: []string{"x"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflictState, apperr.KindOf(err))

	close(gate)
	waitForCompletion(t, o, pid)

	// A finished search can be restarted.
	require.NoError(t, o.StartSearch(context.Background(), pid, model.SearchTerms{Keywords: []string{"x"}}))
	waitForCompletion(t, o, pid)
}

func TestStartSearchUnknownProcess(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeAdapter{source: model.SourcePubMed})
	err := o.StartSearch(context.Background(), uuid.New(), model.SearchTerms{})
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestGetStatusUnknownProcess(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeAdapter{source: model.SourcePubMed})
	_, err := o.GetStatus(uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetStatusReturnsSnapshot(t *testing.T) {
	o, _, pid := newTestOrchestrator(t,
		&fakeAdapter{source: model.SourcePubMed, authors: []model.Author{{ID: "pubmed-a", Name: "Jane Smith"}}},
	)
	require.NoError(t, o.StartSearch(context.Background(), pid, model.SearchTerms{Keywords: []string{"x"}}))
	waitForCompletion(t, o, pid)

	a, err := o.GetStatus(pid)
	require.NoError(t, err)
	a.Databases[model.SourcePubMed] = model.DatabaseProgress{State: model.SearchError}

	b, err := o.GetStatus(pid)
	require.NoError(t, err)
	assert.Equal(t, model.SearchCompleted, b.Databases[model.SourcePubMed].State)
}

func TestClearStatusCancelsInFlight(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	o, _, pid := newTestOrchestrator(t,
		&fakeAdapter{source: model.SourcePubMed, block: gate},
	)

	require.NoError(t, o.StartSearch(context.Background(), pid, model.SearchTerms{Keywords: []string{"x"}}))
	o.ClearStatus(pid)

	_, err := o.GetStatus(pid)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Clearing again, or clearing a process that never searched, is fine.
	o.ClearStatus(pid)
	o.ClearStatus(uuid.New())
}

// ctxRejectingRepo fails writes once their context is cancelled, the
// way a real database connection would.
type ctxRejectingRepo struct {
	*repo.Memory
}

func (r *ctxRejectingRepo) UpdateProcess(ctx context.Context, p model.Process) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.Memory.UpdateProcess(ctx, p)
}

func TestClearStatusStillPersistsProcessStatus(t *testing.T) {
	gate := make(chan struct{})
	rep := &ctxRejectingRepo{Memory: repo.NewMemory()}
	p, err := rep.CreateProcess(context.Background(), model.Process{
		OwnerID: "owner-1",
		Title:   "Sepsis biomarkers",
	})
	require.NoError(t, err)
	o := New(
		[]sources.Adapter{&fakeAdapter{source: model.SourcePubMed, block: gate}},
		aggregate.New(rep, nil), rep, nil, Config{TaskTimeout: 2 * time.Second},
	)

	require.NoError(t, o.StartSearch(context.Background(), p.ID, model.SearchTerms{Keywords: []string{"x"}}))
	o.ClearStatus(p.ID)
	close(gate)

	// The cancelled run must still move the process out of SEARCHING.
	require.Eventually(t, func() bool {
		got, err := rep.GetProcess(context.Background(), p.ID)
		return err == nil && got.Status == model.ProcessProcessing
	}, 3*time.Second, 5*time.Millisecond)
}

func TestSearchByNameDedupesAcrossSources(t *testing.T) {
	o, _, _ := newTestOrchestrator(t,
		&fakeAdapter{source: model.SourcePubMed, authors: []model.Author{{ID: "pubmed-a", Name: "Jane Smith", PublicationCount: 3}}},
		&fakeAdapter{source: model.SourceElsevier, authors: []model.Author{{ID: "elsevier-b", Name: "JANE SMITH", PublicationCount: 9}}},
	)

	authors, err := o.SearchByName(context.Background(), "Jane Smith", sources.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, authors, 1)
	assert.Equal(t, 9, authors[0].PublicationCount)
}

func TestSearchByNameToleratesPartialFailure(t *testing.T) {
	o, _, _ := newTestOrchestrator(t,
		&fakeAdapter{source: model.SourcePubMed, err: errors.New("boom")},
		&fakeAdapter{source: model.SourceElsevier, authors: []model.Author{{ID: "elsevier-b", Name: "Jane Smith"}}},
	)

	authors, err := o.SearchByName(context.Background(), "Jane Smith", sources.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, authors, 1)
}

func TestSearchByNameAllSourcesFail(t *testing.T) {
	o, _, _ := newTestOrchestrator(t,
		&fakeAdapter{source: model.SourcePubMed, err: errors.New("boom")},
		&fakeAdapter{source: model.SourceElsevier, err: errors.New("boom")},
	)

	_, err := o.SearchByName(context.Background(), "Jane Smith", sources.SearchOptions{})
	require.Error(t, err)
}

func TestResolveAuthorDispatchesOnPrefix(t *testing.T) {
	o, _, _ := newTestOrchestrator(t,
		&fakeAdapter{source: model.SourcePubMed, authors: []model.Author{{ID: "pubmed-abc", Name: "Jane Smith"}}},
		&fakeAdapter{source: model.SourceTaylorFrancis, authors: []model.Author{{ID: "taylor_francis-xyz", Name: "John Doe"}}},
	)

	got, err := o.ResolveAuthor(context.Background(), "taylor_francis-xyz")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "John Doe", got.Name)

	unknown, err := o.ResolveAuthor(context.Background(), "scopus-zzz")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	_, err = o.ResolveAuthor(context.Background(), "noseparator")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidationInput, apperr.KindOf(err))
}
