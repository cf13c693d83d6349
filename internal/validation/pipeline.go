// Package validation runs the conflict-of-interest pipeline over a
// process's candidates.
//
// Five checks run in a fixed order for every candidate, and all of them
// execute even after an earlier failure so a reviewer coordinator sees
// every disqualifying reason at once. The resulting ValidationRecord is
// persisted per candidate; the batch never fails because one candidate
// did.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/repo"
)

// Step names, in execution order.
const (
	StepManuscriptAuthor     = "Manuscript Author Check"
	StepCoAuthor             = "Co-author Conflict Check"
	StepInstitutional        = "Institutional Conflict Check"
	StepPublicationThreshold = "Publication Threshold Check"
	StepRetraction           = "Retraction Check"
)

const (
	nameMatchThreshold        = 0.9
	institutionMatchThreshold = 0.8
	defaultParallelism        = 4
)

// Pipeline validates a process's candidates against its manuscript.
type Pipeline struct {
	repo        repo.Repository
	logger      *slog.Logger
	parallelism int
	now         func() time.Time
}

// New creates a Pipeline. parallelism bounds how many candidates are
// validated concurrently; zero or negative selects the default.
func New(r repo.Repository, logger *slog.Logger, parallelism int) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &Pipeline{repo: r, logger: logger, parallelism: parallelism, now: time.Now}
}

// Validate runs the pipeline over every CANDIDATE-role candidate of the
// process and persists a ValidationRecord for each. Per-candidate
// failures are recorded, not returned; the error covers repository and
// input problems only.
func (p *Pipeline) Validate(ctx context.Context, processID uuid.UUID, meta model.ManuscriptMetadata, cfg model.ValidationConfig) (model.ProcessValidationResult, error) {
	proc, err := p.repo.GetProcess(ctx, processID)
	if err != nil {
		return model.ProcessValidationResult{}, fmt.Errorf("validation: load process: %w", err)
	}

	role := model.RoleCandidate
	candidates, err := p.repo.ListCandidates(ctx, processID, &role)
	if err != nil {
		return model.ProcessValidationResult{}, fmt.Errorf("validation: list candidates: %w", err)
	}

	proc.Step = model.StepValidation
	proc.Status = model.ProcessValidating
	if err := p.repo.UpdateProcess(ctx, proc); err != nil {
		p.logger.WarnContext(ctx, "update process at validation start", "process_id", processID, "error", err)
	}

	ms := newManuscript(meta)
	validatedAt := p.now().UTC()

	records := make([]*model.ValidationRecord, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, cand := range candidates {
		g.Go(func() error {
			rec := p.validateCandidate(ms, cand.Author, cfg)
			rec.ValidatedAt = validatedAt
			if err := p.repo.UpdateValidation(gctx, processID, cand.Author.ID, rec); err != nil {
				return fmt.Errorf("validation: persist record for %s: %w", cand.Author.ID, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.ProcessValidationResult{}, err
	}

	result := model.ProcessValidationResult{
		TotalCandidates: len(candidates),
		ValidatedAt:     validatedAt,
	}
	for _, rec := range records {
		result.ValidatedCandidates++
		if rec.Passed {
			result.PassedCandidates++
		}
	}

	proc.Status = model.ProcessProcessing
	if err := p.repo.UpdateProcess(ctx, proc); err != nil {
		p.logger.WarnContext(ctx, "update process at validation end", "process_id", processID, "error", err)
	}

	p.logger.InfoContext(ctx, "validation completed",
		"process_id", processID,
		"total", result.TotalCandidates,
		"passed", result.PassedCandidates,
	)
	return result, nil
}

// Revalidate clears every existing ValidationRecord for the process and
// runs the pipeline again with the supplied config.
func (p *Pipeline) Revalidate(ctx context.Context, processID uuid.UUID, meta model.ManuscriptMetadata, cfg model.ValidationConfig) (model.ProcessValidationResult, error) {
	if err := p.repo.ClearValidation(ctx, processID); err != nil {
		return model.ProcessValidationResult{}, fmt.Errorf("validation: clear records: %w", err)
	}
	return p.Validate(ctx, processID, meta, cfg)
}

// manuscript is the pre-folded view of the manuscript used by the checks.
type manuscript struct {
	authors      []model.Author
	authorEmails []string // folded well-formed emails, aligned with authors
	authorAreas  []map[string]bool
	affiliations []model.Affiliation
}

func newManuscript(meta model.ManuscriptMetadata) *manuscript {
	ms := &manuscript{
		authors:      meta.Authors,
		authorEmails: make([]string, len(meta.Authors)),
		authorAreas:  make([]map[string]bool, len(meta.Authors)),
		affiliations: meta.Affiliations,
	}
	for i, a := range meta.Authors {
		if email, ok := usableEmail(a.Email); ok {
			ms.authorEmails[i] = email
		}
		areas := make(map[string]bool, len(a.ResearchAreas))
		for _, ra := range a.ResearchAreas {
			areas[strings.ToLower(strings.TrimSpace(ra))] = true
		}
		ms.authorAreas[i] = areas
		ms.affiliations = model.MergeAffiliations(ms.affiliations, a.Affiliations)
	}
	return ms
}

func (p *Pipeline) validateCandidate(ms *manuscript, cand model.Author, cfg model.ValidationConfig) *model.ValidationRecord {
	rec := &model.ValidationRecord{
		Metrics: model.PublicationMetrics{
			TotalPublications: cand.PublicationCount,
			// Placeholder until real date-windowed counts exist.
			RecentPublications: cand.PublicationCount * 3 / 10,
		},
	}

	rec.Steps = append(rec.Steps, p.checkManuscriptAuthor(ms, cand, rec))
	rec.Steps = append(rec.Steps, p.checkCoAuthor(ms, cand, cfg, rec))
	rec.Steps = append(rec.Steps, p.checkInstitutional(ms, cand, cfg, rec))
	rec.Steps = append(rec.Steps, p.checkPublicationThreshold(cand, cfg))
	rec.Steps = append(rec.Steps, p.checkRetractions(cand, cfg, rec))

	rec.Passed = len(rec.Conflicts) == 0 &&
		cand.PublicationCount >= cfg.MinPublications &&
		cand.Retractions <= cfg.MaxRetractions
	return rec
}

func (p *Pipeline) checkManuscriptAuthor(ms *manuscript, cand model.Author, rec *model.ValidationRecord) model.StepResult {
	res := model.StepResult{StepName: StepManuscriptAuthor, Passed: true}
	candEmail, candHasEmail := usableEmail(cand.Email)
	candName := model.NormalizeName(cand.Name)

	for i, author := range ms.authors {
		if candHasEmail && ms.authorEmails[i] != "" {
			if candEmail == ms.authorEmails[i] {
				res.Passed = false
				res.Message = "candidate email matches manuscript author " + author.Name
				res.Details = map[string]string{"matched_author": author.Name, "match": "email"}
				break
			}
			continue
		}
		if candName == model.NormalizeName(author.Name) || NameSimilarity(cand.Name, author.Name) > nameMatchThreshold {
			res.Passed = false
			res.Message = "candidate name matches manuscript author " + author.Name
			res.Details = map[string]string{"matched_author": author.Name, "match": "name"}
			break
		}
	}
	if !res.Passed {
		rec.Conflicts = append(rec.Conflicts, model.ConflictManuscriptAuthor)
	}
	return res
}

func (p *Pipeline) checkCoAuthor(ms *manuscript, cand model.Author, cfg model.ValidationConfig, rec *model.ValidationRecord) model.StepResult {
	res := model.StepResult{StepName: StepCoAuthor, Passed: true}
	if !cfg.CheckCoAuthorConflict {
		res.Message = "check disabled"
		return res
	}

	// Heuristic: two or more shared research areas with any manuscript
	// author suggests likely co-authorship. A real co-publication lookup
	// is a future extension.
	for i, author := range ms.authors {
		shared := 0
		var overlap []string
		for _, area := range cand.ResearchAreas {
			if ms.authorAreas[i][strings.ToLower(strings.TrimSpace(area))] {
				shared++
				overlap = append(overlap, area)
			}
		}
		if shared >= 2 {
			res.Passed = false
			res.Message = "shared research areas with manuscript author " + author.Name
			res.Details = map[string]string{
				"matched_author": author.Name,
				"shared_areas":   strings.Join(overlap, ", "),
			}
			break
		}
	}
	if !res.Passed {
		rec.Conflicts = append(rec.Conflicts, model.ConflictCoAuthor)
	}
	return res
}

func (p *Pipeline) checkInstitutional(ms *manuscript, cand model.Author, cfg model.ValidationConfig, rec *model.ValidationRecord) model.StepResult {
	res := model.StepResult{StepName: StepInstitutional, Passed: true}
	if !cfg.CheckInstitutionalConflict {
		res.Message = "check disabled"
		return res
	}

	for _, ca := range cand.Affiliations {
		for _, ma := range ms.affiliations {
			exact := strings.EqualFold(strings.TrimSpace(ca.InstitutionName), strings.TrimSpace(ma.InstitutionName))
			if exact || InstitutionSimilarity(ca.InstitutionName, ma.InstitutionName) > institutionMatchThreshold {
				res.Passed = false
				res.Message = fmt.Sprintf("affiliation %q matches manuscript affiliation %q", ca.InstitutionName, ma.InstitutionName)
				res.Details = map[string]string{
					"candidate_institution":  ca.InstitutionName,
					"manuscript_institution": ma.InstitutionName,
				}
				break
			}
		}
		if !res.Passed {
			break
		}
	}
	if !res.Passed {
		rec.Conflicts = append(rec.Conflicts, model.ConflictInstitutional)
	}
	return res
}

func (p *Pipeline) checkPublicationThreshold(cand model.Author, cfg model.ValidationConfig) model.StepResult {
	res := model.StepResult{StepName: StepPublicationThreshold, Passed: true}
	var reasons []string
	if cand.PublicationCount < cfg.MinPublications {
		reasons = append(reasons, fmt.Sprintf("Publication count (%d) below minimum (%d)", cand.PublicationCount, cfg.MinPublications))
	}
	if cand.Retractions > cfg.MaxRetractions {
		reasons = append(reasons, fmt.Sprintf("Retraction count (%d) exceeds maximum (%d)", cand.Retractions, cfg.MaxRetractions))
	}
	if len(reasons) > 0 {
		res.Passed = false
		res.Message = strings.Join(reasons, "; ")
	}
	return res
}

func (p *Pipeline) checkRetractions(cand model.Author, cfg model.ValidationConfig, rec *model.ValidationRecord) model.StepResult {
	res := model.StepResult{StepName: StepRetraction, Passed: true}
	if cand.Retractions > 0 {
		rec.RetractionFlags = append(rec.RetractionFlags,
			fmt.Sprintf("%d retracted publication(s) on record", cand.Retractions))
	}
	// Inclusive boundary: retractions equal to the maximum still pass.
	if cand.Retractions > cfg.MaxRetractions {
		res.Passed = false
		res.Message = fmt.Sprintf("Retraction count (%d) exceeds maximum (%d)", cand.Retractions, cfg.MaxRetractions)
	}
	return res
}

// usableEmail reports whether the address may serve as an identity match
// key: it must parse as an address and must not be an ORCID-derived
// placeholder of the form <orcid>@orcid.org.
func usableEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", false
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", false
	}
	if strings.HasSuffix(email, "@orcid.org") {
		return "", false
	}
	return email, true
}
