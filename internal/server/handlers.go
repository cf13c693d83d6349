package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/refmatch/refmatch/internal/aggregate"
	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/orchestrator"
	"github.com/refmatch/refmatch/internal/recommend"
	"github.com/refmatch/refmatch/internal/repo"
	"github.com/refmatch/refmatch/internal/sources"
	"github.com/refmatch/refmatch/internal/validation"
)

// Pinger reports storage backend health. *storage.DB implements it; the
// in-memory repository does not, which the health endpoint reports as
// "memory".
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	repo       repo.Repository
	orch       *orchestrator.Orchestrator
	agg        *aggregate.Aggregator
	pipeline   *validation.Pipeline
	recommend  *recommend.Service
	pinger     Pinger
	logger     *slog.Logger
	version    string
	defaultCfg model.ValidationConfig
	startedAt  time.Time
}

// HandlersDeps holds dependencies for creating Handlers.
type HandlersDeps struct {
	Repo              repo.Repository
	Orchestrator      *orchestrator.Orchestrator
	Aggregator        *aggregate.Aggregator
	Pipeline          *validation.Pipeline
	Recommend         *recommend.Service
	Pinger            Pinger // nil for the in-memory repository
	Logger            *slog.Logger
	Version           string
	DefaultValidation model.ValidationConfig
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		repo:       deps.Repo,
		orch:       deps.Orchestrator,
		agg:        deps.Aggregator,
		pipeline:   deps.Pipeline,
		recommend:  deps.Recommend,
		pinger:     deps.Pinger,
		logger:     deps.Logger,
		version:    deps.Version,
		defaultCfg: deps.DefaultValidation,
		startedAt:  time.Now(),
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:  "ok",
		Version: h.version,
		Storage: "memory",
		Sources: h.orch.Sources(),
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	}
	status := http.StatusOK
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Storage = "error"
			status = http.StatusServiceUnavailable
		} else {
			resp.Storage = "ok"
		}
	}
	writeJSON(w, r, status, resp)
}

// HandleCreateProcess handles POST /v1/processes.
func (h *Handlers) HandleCreateProcess(w http.ResponseWriter, r *http.Request) {
	var req model.CreateProcessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.OwnerID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "owner_id is required")
		return
	}
	if req.Title == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "title is required")
		return
	}

	p := model.Process{OwnerID: req.OwnerID, Title: req.Title}
	if req.Metadata != nil {
		req.Metadata.NormalizeKeywords()
		p.Metadata = *req.Metadata
		p.Step = model.StepMetadataExtraction
	}

	created, err := h.repo.CreateProcess(r.Context(), p)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create process", "error", err)
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// HandleGetProcess handles GET /v1/processes/{process_id}.
func (h *Handlers) HandleGetProcess(w http.ResponseWriter, r *http.Request) {
	processID, ok := h.processID(w, r)
	if !ok {
		return
	}
	p, err := h.repo.GetProcess(r.Context(), processID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// HandleUpdateMetadata handles PUT /v1/processes/{process_id}/metadata.
// Uploading new metadata moves a freshly created process forward to the
// metadata step; later steps are never regressed.
func (h *Handlers) HandleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	processID, ok := h.processID(w, r)
	if !ok {
		return
	}
	var meta model.ManuscriptMetadata
	if err := decodeJSON(r, &meta); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	meta.NormalizeKeywords()

	p, err := h.repo.GetProcess(r.Context(), processID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p.Metadata = meta
	if p.Step.Ordinal() < model.StepMetadataExtraction.Ordinal() {
		p.Step = model.StepMetadataExtraction
	}
	if err := h.repo.UpdateProcess(r.Context(), p); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// HandleStartSearch handles POST /v1/processes/{process_id}/search.
// Returns 202; progress is polled via the status endpoint.
func (h *Handlers) HandleStartSearch(w http.ResponseWriter, r *http.Request) {
	processID, ok := h.processID(w, r)
	if !ok {
		return
	}
	var req model.StartSearchRequest
	if err := decodeJSONOptional(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	terms := model.SearchTerms{
		Keywords:       req.Keywords,
		MeshTerms:      req.MeshTerms,
		BooleanQueries: req.BooleanQueries,
	}
	if len(terms.Keywords) == 0 && len(terms.BooleanQueries) == 0 {
		p, err := h.repo.GetProcess(r.Context(), processID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		terms.Keywords = p.Metadata.Keywords
	}
	if len(terms.Keywords) == 0 && len(terms.BooleanQueries) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "no search keywords: supply keywords or upload manuscript metadata first")
		return
	}

	if err := h.orch.StartSearch(r.Context(), processID, terms); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]any{
		"process_id": processID,
		"state":      model.SearchSearching,
	})
}

// HandleSearchStatus handles GET /v1/processes/{process_id}/search/status.
func (h *Handlers) HandleSearchStatus(w http.ResponseWriter, r *http.Request) {
	processID, ok := h.processID(w, r)
	if !ok {
		return
	}
	status, err := h.orch.GetStatus(processID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// HandleClearSearchStatus handles DELETE /v1/processes/{process_id}/search/status.
// Cancels an in-flight search; clearing an unknown process is a no-op.
func (h *Handlers) HandleClearSearchStatus(w http.ResponseWriter, r *http.Request) {
	processID, ok := h.processID(w, r)
	if !ok {
		return
	}
	h.orch.ClearStatus(processID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleManualSearch handles GET /v1/search/authors. Exactly one of the
// name and email query parameters must be set.
func (h *Handlers) HandleManualSearch(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if (name == "") == (email == "") {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "exactly one of name and email is required")
		return
	}

	var (
		authors []model.Author
		err     error
	)
	if name != "" {
		opts := sources.SearchOptions{}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 {
				opts.MaxResults = n
			}
		}
		authors, err = h.orch.SearchByName(r.Context(), name, opts)
	} else {
		authors, err = h.orch.SearchByEmail(r.Context(), email)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if authors == nil {
		authors = []model.Author{}
	}
	writeJSON(w, r, http.StatusOK, model.ManualSearchResponse{Authors: authors, Total: len(authors)})
}

// HandleAddCandidate handles POST /v1/processes/{process_id}/candidates.
// The author id comes from a prior manual search; the full profile is
// re-fetched from the owning source and merged into the candidate pool.
func (h *Handlers) HandleAddCandidate(w http.ResponseWriter, r *http.Request) {
	processID, ok := h.processID(w, r)
	if !ok {
		return
	}
	var req model.AddCandidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.AuthorID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "author_id is required")
		return
	}

	if _, err := h.repo.GetProcess(r.Context(), processID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	author, err := h.orch.ResolveAuthor(r.Context(), req.AuthorID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if author == nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "author "+req.AuthorID+" not found in any configured source")
		return
	}

	prefix, _, _ := strings.Cut(req.AuthorID, "-")
	src := model.SourceID(strings.ToUpper(prefix))
	if _, err := h.agg.Ingest(r.Context(), processID, src, []model.Author{*author}); err != nil {
		writeDomainError(w, r, err)
		return
	}

	cand, err := h.repo.GetCandidate(r.Context(), processID, author.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, cand)
}

// HandleValidate handles POST /v1/processes/{process_id}/validate.
func (h *Handlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	h.runValidation(w, r, false)
}

// HandleRevalidate handles POST /v1/processes/{process_id}/revalidate.
// Existing validation records are cleared before the pipeline reruns.
func (h *Handlers) HandleRevalidate(w http.ResponseWriter, r *http.Request) {
	h.runValidation(w, r, true)
}

func (h *Handlers) runValidation(w http.ResponseWriter, r *http.Request, clear bool) {
	processID, ok := h.processID(w, r)
	if !ok {
		return
	}
	var req model.ValidateRequest
	if err := decodeJSONOptional(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	meta := req.Metadata
	if meta == nil {
		p, err := h.repo.GetProcess(r.Context(), processID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		meta = &p.Metadata
	}
	cfg := h.defaultCfg
	if req.Config != nil {
		cfg = *req.Config
	}

	var (
		result model.ProcessValidationResult
		err    error
	)
	if clear {
		result, err = h.pipeline.Revalidate(r.Context(), processID, *meta, cfg)
	} else {
		result, err = h.pipeline.Validate(r.Context(), processID, *meta, cfg)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "validation run", "process_id", processID, "error", err)
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.ValidateResponse{ProcessID: processID, Result: result})
}

// HandleRecommendations handles POST /v1/processes/{process_id}/recommendations.
// The body carries filters, sort, and pagination; an empty body means the
// default first page ordered by relevance.
func (h *Handlers) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	processID, ok := h.processID(w, r)
	if !ok {
		return
	}
	var q model.RecommendationQuery
	if err := decodeJSONOptional(r, &q); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	if _, err := h.repo.GetProcess(r.Context(), processID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp, err := h.recommend.GetRecommendations(r.Context(), processID, q.Filters, q.Sort, q.Page, q.Limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleFilterOptions handles GET /v1/processes/{process_id}/filter-options.
func (h *Handlers) HandleFilterOptions(w http.ResponseWriter, r *http.Request) {
	processID, ok := h.processID(w, r)
	if !ok {
		return
	}
	if _, err := h.repo.GetProcess(r.Context(), processID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	opts, err := h.recommend.GetFilterOptions(r.Context(), processID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, opts)
}

// HandleCreateShortlist handles POST /v1/processes/{process_id}/shortlists.
func (h *Handlers) HandleCreateShortlist(w http.ResponseWriter, r *http.Request) {
	processID, ok := h.processID(w, r)
	if !ok {
		return
	}
	var req model.CreateShortlistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}
	if len(req.AuthorIDs) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "author_ids must not be empty")
		return
	}

	if _, err := h.repo.GetProcess(r.Context(), processID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	s, err := h.repo.CreateShortlist(r.Context(), model.Shortlist{
		ProcessID: processID,
		Name:      req.Name,
		AuthorIDs: req.AuthorIDs,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, s)
}

// HandleListShortlists handles GET /v1/processes/{process_id}/shortlists.
func (h *Handlers) HandleListShortlists(w http.ResponseWriter, r *http.Request) {
	processID, ok := h.processID(w, r)
	if !ok {
		return
	}
	if _, err := h.repo.GetProcess(r.Context(), processID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	lists, err := h.repo.ListShortlists(r.Context(), processID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if lists == nil {
		lists = []model.Shortlist{}
	}
	writeJSON(w, r, http.StatusOK, lists)
}

// processID parses the process_id path segment, writing a 400 on failure.
func (h *Handlers) processID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("process_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid process id")
		return uuid.Nil, false
	}
	return id, true
}
