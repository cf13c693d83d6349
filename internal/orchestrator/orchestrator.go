// Package orchestrator runs the federated search: it fans a process's
// search terms out to every configured database adapter, tracks per-source
// progress in an in-memory registry, and folds results into the candidate
// pool through the aggregator.
//
// Adapter failures are isolated. A source that errors gets an ERROR slot
// with its message, while the overall search still completes with whatever
// the remaining sources returned.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/refmatch/refmatch/internal/aggregate"
	"github.com/refmatch/refmatch/internal/apperr"
	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/repo"
	"github.com/refmatch/refmatch/internal/sources"
)

// DefaultTaskTimeout bounds one adapter's search task.
const DefaultTaskTimeout = 300 * time.Second

// Config tunes the orchestrator.
type Config struct {
	// TaskTimeout bounds each adapter task. Zero means DefaultTaskTimeout.
	TaskTimeout time.Duration
	// MaxResults is passed to each adapter; zero lets every adapter use
	// its own default.
	MaxResults int
}

// Orchestrator coordinates searches across the configured adapters.
type Orchestrator struct {
	adapters []sources.Adapter
	agg      *aggregate.Aggregator
	repo     repo.Repository
	logger   *slog.Logger
	cfg      Config

	mu   sync.Mutex
	runs map[uuid.UUID]*run
}

// run is one process's live search: its status plus the cancel func for
// the in-flight adapter tasks.
type run struct {
	mu     sync.Mutex
	status *model.SearchStatus
	cancel context.CancelFunc
}

// New creates an Orchestrator over the given adapters.
func New(adapters []sources.Adapter, agg *aggregate.Aggregator, r repo.Repository, logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	return &Orchestrator{
		adapters: adapters,
		agg:      agg,
		repo:     r,
		logger:   logger,
		cfg:      cfg,
		runs:     make(map[uuid.UUID]*run),
	}
}

// Sources lists the adapters the orchestrator will query, in fan-out order.
func (o *Orchestrator) Sources() []model.SourceID {
	out := make([]model.SourceID, len(o.adapters))
	for i, a := range o.adapters {
		out[i] = a.Source()
	}
	return out
}

// StartSearch launches the federated search for a process and returns
// immediately. Progress is observed through GetStatus. Starting a search
// while one is already running for the same process is a conflict.
func (o *Orchestrator) StartSearch(ctx context.Context, processID uuid.UUID, terms model.SearchTerms) error {
	if len(o.adapters) == 0 {
		return apperr.New(apperr.KindValidationInput, "", "no search sources configured")
	}

	proc, err := o.repo.GetProcess(ctx, processID)
	if err != nil {
		return fmt.Errorf("orchestrator: load process: %w", err)
	}

	o.mu.Lock()
	if cur, ok := o.runs[processID]; ok {
		cur.mu.Lock()
		terminal := cur.status.State.Terminal()
		cur.mu.Unlock()
		if !terminal {
			o.mu.Unlock()
			return apperr.New(apperr.KindConflictState, "", "search already running for process "+processID.String())
		}
	}

	status := &model.SearchStatus{
		ProcessID: processID,
		State:     model.SearchSearching,
		Databases: make(map[model.SourceID]model.DatabaseProgress, len(o.adapters)),
		StartTime: time.Now().UTC(),
	}
	for _, a := range o.adapters {
		status.Databases[a.Source()] = model.DatabaseProgress{State: model.SearchPending}
	}

	// The search outlives the HTTP request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{status: status, cancel: cancel}
	o.runs[processID] = r
	o.mu.Unlock()

	proc.Step = model.StepDatabaseSearch
	proc.Status = model.ProcessSearching
	if err := o.repo.UpdateProcess(ctx, proc); err != nil {
		o.logger.WarnContext(ctx, "update process at search start", "process_id", processID, "error", err)
	}

	go o.fanOut(runCtx, r, proc, terms)
	return nil
}

func (o *Orchestrator) fanOut(ctx context.Context, r *run, proc model.Process, terms model.SearchTerms) {
	var wg sync.WaitGroup
	for _, adapter := range o.adapters {
		wg.Add(1)
		go func(a sources.Adapter) {
			defer wg.Done()
			o.runAdapter(ctx, r, proc.ID, a, terms)
		}(adapter)
	}
	wg.Wait()

	r.mu.Lock()
	r.status.State = model.SearchCompleted
	r.status.EndTime = time.Now().UTC()
	total := r.status.TotalAuthorsFound
	r.mu.Unlock()

	// ClearStatus cancels ctx; the terminal status write must still land.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	proc.Status = model.ProcessProcessing
	if err := o.repo.UpdateProcess(wctx, proc); err != nil {
		o.logger.WarnContext(ctx, "update process at search end", "process_id", proc.ID, "error", err)
	}
	o.logger.InfoContext(ctx, "federated search completed",
		"process_id", proc.ID,
		"total_authors_found", total,
	)
}

func (o *Orchestrator) runAdapter(ctx context.Context, r *run, processID uuid.UUID, a sources.Adapter, terms model.SearchTerms) {
	src := a.Source()
	taskCtx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout)
	defer cancel()

	r.update(src, func(p *model.DatabaseProgress) {
		p.State = model.SearchSearching
		p.Percent = 10
		p.StartTime = time.Now().UTC()
	})

	res, err := a.SearchAuthors(taskCtx, terms, sources.SearchOptions{MaxResults: o.cfg.MaxResults})
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "timeout"
		}
		o.logger.WarnContext(ctx, "adapter search failed", "process_id", processID, "source", string(src), "error", err)
		r.update(src, func(p *model.DatabaseProgress) {
			p.State = model.SearchError
			p.Error = msg
			p.EndTime = time.Now().UTC()
		})
		return
	}

	r.update(src, func(p *model.DatabaseProgress) { p.Percent = 70 })

	if _, err := o.agg.Ingest(taskCtx, processID, src, res.Authors); err != nil {
		o.logger.ErrorContext(ctx, "aggregate adapter result", "process_id", processID, "source", string(src), "error", err)
		r.update(src, func(p *model.DatabaseProgress) {
			p.State = model.SearchError
			p.Error = err.Error()
			p.EndTime = time.Now().UTC()
		})
		return
	}

	found := len(res.Authors)
	r.update(src, func(p *model.DatabaseProgress) {
		p.State = model.SearchCompleted
		p.Percent = 100
		p.AuthorsFound = found
		p.EndTime = time.Now().UTC()
	})
}

// update mutates one source's progress slot and recomputes the total.
func (r *run) update(src model.SourceID, fn func(p *model.DatabaseProgress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.status.Databases[src]
	fn(&p)
	r.status.Databases[src] = p

	total := 0
	for _, dp := range r.status.Databases {
		total += dp.AuthorsFound
	}
	r.status.TotalAuthorsFound = total
}

// GetStatus returns a snapshot of the process's search progress.
func (o *Orchestrator) GetStatus(processID uuid.UUID) (*model.SearchStatus, error) {
	o.mu.Lock()
	r, ok := o.runs[processID]
	o.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "", "no search status for process "+processID.String())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.Clone(), nil
}

// ClearStatus cancels any in-flight search for the process and drops its
// status from the registry. Clearing an unknown process is a no-op.
func (o *Orchestrator) ClearStatus(processID uuid.UUID) {
	o.mu.Lock()
	r, ok := o.runs[processID]
	if ok {
		delete(o.runs, processID)
	}
	o.mu.Unlock()
	if ok {
		r.cancel()
	}
}

// SearchByName runs a synchronous manual search across every adapter and
// returns the merged, name-deduplicated results. Individual adapter
// failures are tolerated; an error is returned only when every adapter
// fails.
func (o *Orchestrator) SearchByName(ctx context.Context, name string, opts sources.SearchOptions) ([]model.Author, error) {
	return o.manualSearch(ctx, func(a sources.Adapter) ([]model.Author, error) {
		return a.SearchByName(ctx, name, opts)
	})
}

// SearchByEmail is the email variant of SearchByName. Sources that do not
// index emails contribute nothing.
func (o *Orchestrator) SearchByEmail(ctx context.Context, email string) ([]model.Author, error) {
	return o.manualSearch(ctx, func(a sources.Adapter) ([]model.Author, error) {
		return a.SearchByEmail(ctx, email)
	})
}

func (o *Orchestrator) manualSearch(ctx context.Context, query func(a sources.Adapter) ([]model.Author, error)) ([]model.Author, error) {
	var (
		mu       sync.Mutex
		authors  []model.Author
		firstErr error
		failures int
	)

	g, _ := errgroup.WithContext(ctx)
	for _, adapter := range o.adapters {
		a := adapter
		g.Go(func() error {
			found, err := query(a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.logger.WarnContext(ctx, "manual search failed", "source", string(a.Source()), "error", err)
				failures++
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			authors = append(authors, found...)
			return nil
		})
	}
	_ = g.Wait()

	if failures == len(o.adapters) && firstErr != nil {
		return nil, firstErr
	}
	return aggregate.DedupeByName(authors), nil
}

// ResolveAuthor fetches a full author profile for a synthetic candidate
// id by dispatching on the id's source prefix. It returns nil when no
// adapter owns the prefix or the author is unknown upstream.
func (o *Orchestrator) ResolveAuthor(ctx context.Context, id string) (*model.Author, error) {
	prefix, _, ok := strings.Cut(id, "-")
	if !ok {
		return nil, apperr.New(apperr.KindValidationInput, "", "malformed author id "+id)
	}
	for _, a := range o.adapters {
		if strings.ToLower(string(a.Source())) == prefix {
			return a.GetAuthorProfile(ctx, id)
		}
	}
	return nil, nil
}
