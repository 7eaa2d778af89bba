package books

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/promptdeck/promptdeck/cmd/server/internal/apperrors"
	"github.com/promptdeck/promptdeck/cmd/server/internal/groups"
	"github.com/promptdeck/promptdeck/cmd/server/internal/llm"
	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
	"github.com/promptdeck/promptdeck/pkg/metrics"
)

// StageResolver resolves a stage of a group into provider messages.
type StageResolver interface {
	Get(ctx context.Context, id string) (*groups.PromptGroup, error)
	ResolveStage(ctx context.Context, groupID, stageType string, values map[string]string) (*groups.ResolvedStage, error)
}

// Service orchestrates staged generation runs.
type Service struct {
	repo      *Repository
	groups    StageResolver
	provider  llm.Provider
	batchSize int
}

func NewService(repo *Repository, resolver StageResolver, provider llm.Provider, batchSize int) *Service {
	if batchSize < 1 {
		batchSize = 5
	}
	return &Service{repo: repo, groups: resolver, provider: provider, batchSize: batchSize}
}

// CreateBook starts a new book task bound to a group.
func (s *Service) CreateBook(ctx context.Context, actor prompts.Actor, groupID, title string) (*Book, error) {
	if _, err := s.groups.Get(ctx, groupID); err != nil {
		return nil, err
	}
	b := &Book{AuthorID: actor.ID, GroupID: groupID, Title: title}
	if err := s.repo.CreateBook(ctx, b); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "create book", err)
	}
	return b, nil
}

// GetBook returns the book with all its stage results. Author or admin only.
func (s *Service) GetBook(ctx context.Context, actor prompts.Actor, id string) (*Book, []*StageResult, error) {
	b, err := s.ownedBook(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	results, err := s.repo.ResultsForBook(ctx, id)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindInternal, "load stage results", err)
	}
	return b, results, nil
}

func (s *Service) ListBooks(ctx context.Context, actor prompts.Actor) ([]*Book, error) {
	out, err := s.repo.ListBooks(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list books", err)
	}
	return out, nil
}

// StageResults returns the unit rows of one stage.
func (s *Service) StageResults(ctx context.Context, actor prompts.Actor, bookID, stageType string) ([]*StageResult, error) {
	if _, err := s.ownedBook(ctx, actor, bookID); err != nil {
		return nil, err
	}
	results, err := s.repo.ResultsForStage(ctx, bookID, stageType)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "load stage results", err)
	}
	return results, nil
}

func (s *Service) ownedBook(ctx context.Context, actor prompts.Actor, id string) (*Book, error) {
	b, err := s.repo.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NotFound("book")
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "load book", err)
	}
	if b.AuthorID != actor.ID && !actor.IsAdmin {
		return nil, apperrors.Forbidden("not your book")
	}
	return b, nil
}

// RunStage executes every unit of the stage. Chapter content units run with a
// bounded number of concurrent provider calls; every other stage loops one
// call per parent unit. A unit that fails to generate or parse is recorded
// as failed without blocking its siblings.
func (s *Service) RunStage(ctx context.Context, actor prompts.Actor, bookID, stageType string, params map[string]string) (*StageRun, error) {
	return s.run(ctx, actor, bookID, stageType, params, false)
}

// RetryStage re-executes only the units that previously failed.
func (s *Service) RetryStage(ctx context.Context, actor prompts.Actor, bookID, stageType string, params map[string]string) (*StageRun, error) {
	return s.run(ctx, actor, bookID, stageType, params, true)
}

type unit struct {
	key    string
	values map[string]string
}

func (s *Service) run(ctx context.Context, actor prompts.Actor, bookID, stageType string, params map[string]string, onlyFailed bool) (*StageRun, error) {
	if !groups.ValidStage(stageType) {
		return nil, apperrors.Validation(fmt.Sprintf("unknown stage type %q", stageType), nil)
	}
	b, err := s.ownedBook(ctx, actor, bookID)
	if err != nil {
		return nil, err
	}

	upstream, err := s.upstreamValues(ctx, bookID)
	if err != nil {
		return nil, err
	}
	units, err := s.unitsForStage(ctx, bookID, stageType)
	if err != nil {
		return nil, err
	}

	if onlyFailed {
		units, err = s.filterFailed(ctx, bookID, stageType, units)
		if err != nil {
			return nil, err
		}
		if len(units) == 0 {
			return nil, apperrors.Conflict("no failed units to retry")
		}
	}

	results := make([]*StageResult, len(units))
	runUnit := func(i int) {
		u := units[i]
		values := mergeValues(upstream, params, u.values)
		results[i] = s.executeUnit(ctx, b, stageType, u.key, values)
	}

	if stageType == groups.StageContent {
		var g errgroup.Group
		g.SetLimit(s.batchSize)
		for i := range units {
			i := i
			g.Go(func() error {
				runUnit(i)
				return nil
			})
		}
		g.Wait()
	} else {
		for i := range units {
			runUnit(i)
		}
	}

	runSummary := &StageRun{BookID: bookID, StageType: stageType, Results: results}
	for _, res := range results {
		if res.Status == ResultSucceeded {
			runSummary.Succeeded++
		} else {
			runSummary.Failed++
		}
	}
	s.refreshStatus(ctx, b)
	return runSummary, nil
}

// refreshStatus moves the book to in-progress after its first run and to
// completed once every required stage has succeeded across all units. The
// update is best effort; a failure leaves the old status standing.
func (s *Service) refreshStatus(ctx context.Context, b *Book) {
	status := BookInProgress
	if done, err := s.requiredStagesDone(ctx, b); err == nil && done {
		status = BookCompleted
	}
	if b.Status == status {
		return
	}
	if err := s.repo.UpdateBook(ctx, b.ID, b.Title, status); err == nil {
		b.Status = status
	}
}

func (s *Service) requiredStagesDone(ctx context.Context, b *Book) (bool, error) {
	g, err := s.groups.Get(ctx, b.GroupID)
	if err != nil {
		return false, err
	}
	all, err := s.repo.ResultsForBook(ctx, b.ID)
	if err != nil {
		return false, err
	}
	succeeded := make(map[string]bool)
	outstanding := make(map[string]bool)
	for _, res := range all {
		if res.Status == ResultSucceeded {
			succeeded[res.StageType] = true
		} else {
			outstanding[res.StageType] = true
		}
	}
	for _, item := range g.Items {
		if !item.IsRequired {
			continue
		}
		if !succeeded[item.StageType] || outstanding[item.StageType] {
			return false, nil
		}
	}
	return true, nil
}

// executeUnit resolves, generates, parses, and persists one unit. All failure
// modes end in a stored failed row, never an error return.
func (s *Service) executeUnit(ctx context.Context, b *Book, stageType, unitKey string, values map[string]string) *StageResult {
	res := &StageResult{
		BookID:      b.ID,
		StageType:   stageType,
		UnitKey:     unitKey,
		Status:      ResultRunning,
		InputParams: values,
	}
	_ = s.repo.SaveResult(ctx, res)

	fail := func(err error) *StageResult {
		res.Status = ResultFailed
		res.Error = err.Error()
		_ = s.repo.SaveResult(ctx, res)
		return res
	}

	resolved, err := s.groups.ResolveStage(ctx, b.GroupID, stageType, values)
	if err != nil {
		return fail(err)
	}

	start := time.Now()
	raw, err := s.provider.Generate(ctx, resolved.Messages)
	if err != nil {
		metrics.RecordGenerationCall(stageType, "error", time.Since(start).Seconds())
		return fail(fmt.Errorf("generation failed: %w", err))
	}
	metrics.RecordGenerationCall(stageType, "ok", time.Since(start).Seconds())
	res.RawOutput = raw

	parsed, err := parseOutput(resolved.Shape, raw)
	if err != nil {
		return fail(fmt.Errorf("output does not match expected %s shape: %w", resolved.Shape, err))
	}
	res.ParsedOutput = parsed
	res.Status = ResultSucceeded
	_ = s.repo.SaveResult(ctx, res)
	return res
}

// upstreamValues exposes each succeeded single-unit stage's output as a named
// input for later stages, keyed by the stage type with dashes as underscores.
func (s *Service) upstreamValues(ctx context.Context, bookID string) (map[string]string, error) {
	all, err := s.repo.ResultsForBook(ctx, bookID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "load stage results", err)
	}
	values := make(map[string]string)
	for _, res := range all {
		if res.UnitKey != "" || res.Status != ResultSucceeded {
			continue
		}
		values[stageKey(res.StageType)] = res.ParsedOutput
	}
	return values, nil
}

func stageKey(stageType string) string {
	return strings.ReplaceAll(stageType, "-", "_")
}

// unitsForStage derives the generation units. Outline stages loop one unit
// per parent element; chapter content gets one unit per chapter; everything
// else runs as a single unit.
func (s *Service) unitsForStage(ctx context.Context, bookID, stageType string) ([]unit, error) {
	switch stageType {
	case groups.StageOutlineVolume:
		return s.childUnits(ctx, bookID, groups.StageOutlineMain, "node", "outline_node")
	case groups.StageOutlineChapter:
		return s.childUnits(ctx, bookID, groups.StageOutlineVolume, "volume", "volume")
	case groups.StageContent:
		return s.childUnits(ctx, bookID, groups.StageOutlineChapter, "chapter", "chapter")
	default:
		return []unit{{key: "", values: nil}}, nil
	}
}

// childUnits flattens the parent stage's succeeded unit arrays into one unit
// per element. The element itself is passed under valueKey.
func (s *Service) childUnits(ctx context.Context, bookID, parentStage, keyPrefix, valueKey string) ([]unit, error) {
	parents, err := s.repo.ResultsForStage(ctx, bookID, parentStage)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "load parent results", err)
	}

	var units []unit
	seq := 0
	succeeded := false
	for _, parent := range parents {
		if parent.Status != ResultSucceeded {
			continue
		}
		succeeded = true
		var elems []json.RawMessage
		if err := json.Unmarshal([]byte(parent.ParsedOutput), &elems); err != nil {
			return nil, apperrors.Conflict(fmt.Sprintf("stage %s output is not a JSON array", parentStage))
		}
		for _, elem := range elems {
			seq++
			units = append(units, unit{
				key: fmt.Sprintf("%s-%03d", keyPrefix, seq),
				values: map[string]string{
					valueKey:             elementValue(elem),
					valueKey + "_index":  fmt.Sprintf("%d", seq),
					valueKey + "_parent": parent.UnitKey,
				},
			})
		}
	}
	if !succeeded {
		return nil, apperrors.Conflict(fmt.Sprintf("stage %s has no successful results yet", parentStage))
	}
	if len(units) == 0 {
		return nil, apperrors.Conflict(fmt.Sprintf("stage %s produced no units", parentStage))
	}
	return units, nil
}

// elementValue renders one parent array element for substitution: plain
// strings are used as-is, anything else stays compact JSON.
func elementValue(elem json.RawMessage) string {
	var s string
	if err := json.Unmarshal(elem, &s); err == nil {
		return s
	}
	return string(elem)
}

func (s *Service) filterFailed(ctx context.Context, bookID, stageType string, units []unit) ([]unit, error) {
	existing, err := s.repo.ResultsForStage(ctx, bookID, stageType)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "load stage results", err)
	}
	failed := make(map[string]bool)
	for _, res := range existing {
		if res.Status == ResultFailed {
			failed[res.UnitKey] = true
		}
	}
	var out []unit
	for _, u := range units {
		if failed[u.key] {
			out = append(out, u)
		}
	}
	return out, nil
}

func mergeValues(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// parseOutput validates raw against the declared shape and returns the
// canonical stored form. JSON shapes tolerate markdown code fences around
// the payload; a mismatch is an error, never a coercion.
func parseOutput(shape, raw string) (string, error) {
	switch shape {
	case groups.ShapeText:
		return raw, nil
	case groups.ShapeJSONArray:
		var arr []json.RawMessage
		cleaned := stripFences(raw)
		if err := json.Unmarshal([]byte(cleaned), &arr); err != nil {
			return "", err
		}
		out, err := json.Marshal(arr)
		return string(out), err
	case groups.ShapeJSONObject:
		var obj map[string]json.RawMessage
		cleaned := stripFences(raw)
		if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
			return "", err
		}
		out, err := json.Marshal(obj)
		return string(out), err
	default:
		return raw, nil
	}
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
