package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/refmatch/refmatch/internal/model"
)

// Memory is an in-memory Repository. Safe for concurrent use.
// Used by unit tests and by deployments without a DATABASE_URL.
type Memory struct {
	mu         sync.RWMutex
	processes  map[uuid.UUID]model.Process
	candidates map[uuid.UUID]map[string]model.Candidate // processID -> authorID -> candidate
	authors    map[string]model.Author
	shortlists map[uuid.UUID][]model.Shortlist
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		processes:  make(map[uuid.UUID]model.Process),
		candidates: make(map[uuid.UUID]map[string]model.Candidate),
		authors:    make(map[string]model.Author),
		shortlists: make(map[uuid.UUID][]model.Shortlist),
	}
}

var _ Repository = (*Memory)(nil)

// CreateProcess stores a new process, assigning an ID when absent.
func (m *Memory) CreateProcess(_ context.Context, p model.Process) (model.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.processes[p.ID] = p
	return p, nil
}

// GetProcess returns the process or ErrNotFound.
func (m *Memory) GetProcess(_ context.Context, id uuid.UUID) (model.Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.processes[id]
	if !ok {
		return model.Process{}, ErrNotFound
	}
	return p, nil
}

// UpdateProcess replaces the stored process.
func (m *Memory) UpdateProcess(_ context.Context, p model.Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.processes[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	m.processes[p.ID] = p
	return nil
}

// GetCandidate returns the candidate or ErrNotFound.
func (m *Memory) GetCandidate(_ context.Context, processID uuid.UUID, authorID string) (model.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.candidates[processID][authorID]
	if !ok {
		return model.Candidate{}, ErrNotFound
	}
	return c, nil
}

// SaveCandidate inserts or replaces a candidate.
func (m *Memory) SaveCandidate(_ context.Context, c model.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byAuthor, ok := m.candidates[c.ProcessID]
	if !ok {
		byAuthor = make(map[string]model.Candidate)
		m.candidates[c.ProcessID] = byAuthor
	}
	now := time.Now().UTC()
	if existing, ok := byAuthor[c.Author.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	byAuthor[c.Author.ID] = c
	return nil
}

// ListCandidates returns the process's candidates, optionally filtered by
// role, sorted by author ID for deterministic output.
func (m *Memory) ListCandidates(_ context.Context, processID uuid.UUID, role *model.CandidateRole) ([]model.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Candidate, 0, len(m.candidates[processID]))
	for _, c := range m.candidates[processID] {
		if role != nil && c.Role != *role {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Author.ID < out[j].Author.ID })
	return out, nil
}

// UpdateValidation replaces the candidate's validation record.
func (m *Memory) UpdateValidation(_ context.Context, processID uuid.UUID, authorID string, rec *model.ValidationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.candidates[processID][authorID]
	if !ok {
		return ErrNotFound
	}
	c.Validation = rec
	c.UpdatedAt = time.Now().UTC()
	m.candidates[processID][authorID] = c
	return nil
}

// ClearValidation removes every validation record for the process.
func (m *Memory) ClearValidation(_ context.Context, processID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.candidates[processID] {
		c.Validation = nil
		m.candidates[processID][id] = c
	}
	return nil
}

// UpsertAuthor inserts the author or merges it monotonically into the
// existing record, returning the stored state.
func (m *Memory) UpsertAuthor(_ context.Context, a model.Author) (model.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.authors[a.ID]
	if !ok {
		m.authors[a.ID] = a
		return a, nil
	}
	merged := MergeAuthor(existing, a)
	m.authors[a.ID] = merged
	return merged, nil
}

// CreateShortlist stores the shortlist and flips member roles to
// SHORTLISTED. Members that are not candidates of the process are rejected.
func (m *Memory) CreateShortlist(_ context.Context, s model.Shortlist) (model.Shortlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byAuthor := m.candidates[s.ProcessID]
	for _, id := range s.AuthorIDs {
		if _, ok := byAuthor[id]; !ok {
			return model.Shortlist{}, ErrNotFound
		}
	}

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	for _, id := range s.AuthorIDs {
		c := byAuthor[id]
		c.Role = model.RoleShortlisted
		byAuthor[id] = c
	}
	m.shortlists[s.ProcessID] = append(m.shortlists[s.ProcessID], s)
	return s, nil
}

// ListShortlists returns the process's shortlists in creation order.
func (m *Memory) ListShortlists(_ context.Context, processID uuid.UUID) ([]model.Shortlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Shortlist, len(m.shortlists[processID]))
	copy(out, m.shortlists[processID])
	return out, nil
}
