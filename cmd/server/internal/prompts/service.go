package prompts

import (
	"context"
	"errors"
	"fmt"

	"github.com/promptdeck/promptdeck/cmd/server/internal/apperrors"
)

// Actor identifies the caller of a service operation.
type Actor struct {
	ID      string
	IsAdmin bool
}

// AccessChecker resolves whether a user may perform an action on a prompt.
// Implemented by the access package; declared here so prompts does not depend
// on it.
type AccessChecker interface {
	Can(ctx context.Context, userID, action string, p *Prompt) (bool, error)
}

// ContentInput is one content block in a create or update request. Parameters
// carries only author overrides for description and required; the effective
// list is always recomputed from the text.
type ContentInput struct {
	Role       string      `json:"role" binding:"required"`
	Kind       string      `json:"kind"`
	SortOrder  int         `json:"sort_order"`
	Enabled    *bool       `json:"enabled"`
	Text       string      `json:"text"`
	Parameters []Parameter `json:"parameters"`
}

// PromptInput is the write payload for a prompt.
type PromptInput struct {
	Name               string         `json:"name" binding:"required"`
	Description        string         `json:"description"`
	CategoryID         string         `json:"category_id"`
	IsPublic           *bool          `json:"is_public"`
	IsContentPublic    *bool          `json:"is_content_public"`
	RequireApplication bool           `json:"require_application"`
	Contents           []ContentInput `json:"contents" binding:"required"`
}

// Service wraps the repository with validation and authorization.
type Service struct {
	repo   *Repository
	access AccessChecker
}

func NewService(repo *Repository, access AccessChecker) *Service {
	return &Service{repo: repo, access: access}
}

func validateInput(in *PromptInput) error {
	var fieldErrs []string
	if in.Name == "" {
		fieldErrs = append(fieldErrs, "name is required")
	}
	if len(in.Contents) == 0 {
		fieldErrs = append(fieldErrs, "at least one content block is required")
	}
	for i, c := range in.Contents {
		if !ValidRole(c.Role) {
			fieldErrs = append(fieldErrs, fmt.Sprintf("contents[%d]: invalid role %q", i, c.Role))
		}
		switch c.Kind {
		case "", KindText, KindCharacter, KindWorldview:
		default:
			fieldErrs = append(fieldErrs, fmt.Sprintf("contents[%d]: invalid kind %q", i, c.Kind))
		}
	}
	// Gating a prompt forces its content non-public.
	contentPublic := in.IsContentPublic == nil || *in.IsContentPublic
	if in.RequireApplication && contentPublic {
		fieldErrs = append(fieldErrs, "require_application conflicts with is_content_public")
	}
	if len(fieldErrs) > 0 {
		return apperrors.Validation("invalid prompt", fieldErrs)
	}
	return nil
}

func buildContents(inputs []ContentInput) []Content {
	contents := make([]Content, 0, len(inputs))
	for i, in := range inputs {
		kind := in.Kind
		if kind == "" {
			kind = KindText
		}
		enabled := true
		if in.Enabled != nil {
			enabled = *in.Enabled
		}
		sortOrder := in.SortOrder
		if sortOrder == 0 {
			sortOrder = i
		}
		contents = append(contents, Content{
			Role:       in.Role,
			Kind:       kind,
			SortOrder:  sortOrder,
			Enabled:    enabled,
			Text:       in.Text,
			Parameters: ExtractParameters(in.Text, in.Parameters),
		})
	}
	return contents
}

// Create stores a new draft prompt owned by the actor.
func (s *Service) Create(ctx context.Context, actor Actor, in *PromptInput) (*Prompt, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	p := &Prompt{
		AuthorID:           actor.ID,
		CategoryID:         in.CategoryID,
		Name:               in.Name,
		Description:        in.Description,
		Status:             StatusDraft,
		IsPublic:           in.IsPublic == nil || *in.IsPublic,
		IsContentPublic:    in.IsContentPublic == nil || *in.IsContentPublic,
		RequireApplication: in.RequireApplication,
		Contents:           buildContents(in.Contents),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "create prompt", err)
	}
	return p, nil
}

// Update rewrites the prompt. Only the author or an admin may call it.
// Parameters are recomputed from the new content text.
func (s *Service) Update(ctx context.Context, actor Actor, id string, in *PromptInput) (*Prompt, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "prompt")
	}
	if existing.AuthorID != actor.ID && !actor.IsAdmin {
		return nil, apperrors.Forbidden("only the author or an admin may modify this prompt")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	existing.CategoryID = in.CategoryID
	existing.Name = in.Name
	existing.Description = in.Description
	existing.IsPublic = in.IsPublic == nil || *in.IsPublic
	existing.IsContentPublic = in.IsContentPublic == nil || *in.IsContentPublic
	existing.RequireApplication = in.RequireApplication
	existing.Contents = buildContents(in.Contents)

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, mapRepoErr(err, "prompt")
	}
	return existing, nil
}

// Delete soft-deletes the prompt. Author or admin only.
func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return mapRepoErr(err, "prompt")
	}
	if p.AuthorID != actor.ID && !actor.IsAdmin {
		return apperrors.Forbidden("only the author or an admin may delete this prompt")
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return mapRepoErr(err, "prompt")
	}
	return nil
}

// Get fetches a prompt in full mode and bumps the view counter. Non-authors
// cannot see drafts or archived prompts; content text is withheld when the
// content is gated and the caller holds no view permission.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*Prompt, error) {
	p, err := s.fetchVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !s.contentVisible(ctx, actor, p) {
		redactContents(p)
	}
	// View bump failure never blocks the read.
	_ = s.repo.IncrementCounter(ctx, id, CounterView, 1)
	return p, nil
}

// GetConfig fetches a prompt in config mode: parameter names and descriptions
// only, raw content text always withheld.
func (s *Service) GetConfig(ctx context.Context, actor Actor, id string) (*Prompt, error) {
	p, err := s.fetchVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	redactContents(p)
	return p, nil
}

func (s *Service) fetchVisible(ctx context.Context, actor Actor, id string) (*Prompt, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "prompt")
	}
	isOwner := p.AuthorID == actor.ID || actor.IsAdmin
	if p.Status != StatusPublished && !isOwner {
		return nil, apperrors.Forbidden("prompt is not published")
	}
	if p.IsBanned && !isOwner {
		return nil, apperrors.Banned(p.BanReason)
	}
	if !p.IsPublic && !isOwner {
		ok, err := s.access.Can(ctx, actor.ID, ActionView, p)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "authorization check", err)
		}
		if !ok {
			return nil, apperrors.NotFound("prompt")
		}
	}
	return p, nil
}

func (s *Service) contentVisible(ctx context.Context, actor Actor, p *Prompt) bool {
	if p.AuthorID == actor.ID || actor.IsAdmin {
		return true
	}
	if p.IsContentPublic {
		return true
	}
	ok, err := s.access.Can(ctx, actor.ID, ActionUse, p)
	return err == nil && ok
}

func redactContents(p *Prompt) {
	for i := range p.Contents {
		p.Contents[i].Text = ""
	}
}

// List pages prompts visible to the actor. Admins see everything.
func (s *Service) List(ctx context.Context, actor Actor, f ListFilter) ([]*Prompt, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	if !actor.IsAdmin {
		f.ViewerID = actor.ID
	}
	out, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindInternal, "list prompts", err)
	}
	return out, total, nil
}

// Publish moves a draft or archived prompt to published.
func (s *Service) Publish(ctx context.Context, actor Actor, id string) error {
	return s.transition(ctx, actor, id, StatusPublished, StatusDraft, StatusArchived)
}

// Archive moves a published prompt to archived.
func (s *Service) Archive(ctx context.Context, actor Actor, id string) error {
	return s.transition(ctx, actor, id, StatusArchived, StatusPublished)
}

func (s *Service) transition(ctx context.Context, actor Actor, id, to string, from ...string) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return mapRepoErr(err, "prompt")
	}
	if p.AuthorID != actor.ID && !actor.IsAdmin {
		return apperrors.Forbidden("only the author or an admin may change prompt status")
	}
	allowed := false
	for _, st := range from {
		if p.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return apperrors.Conflict(fmt.Sprintf("cannot move prompt from %s to %s", p.Status, to))
	}
	if err := s.repo.SetStatus(ctx, id, to); err != nil {
		return mapRepoErr(err, "prompt")
	}
	return nil
}

// Use records one use of the prompt after checking use rights. Banned prompts
// are denied with their ban reason for everyone but the author and admins.
func (s *Service) Use(ctx context.Context, actor Actor, id string) (*Prompt, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "prompt")
	}
	isOwner := p.AuthorID == actor.ID || actor.IsAdmin
	if p.Status != StatusPublished && !isOwner {
		return nil, apperrors.Forbidden("prompt is not published")
	}
	if p.IsBanned && !isOwner {
		return nil, apperrors.Banned(p.BanReason)
	}
	if !isOwner {
		ok, err := s.access.Can(ctx, actor.ID, ActionUse, p)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "authorization check", err)
		}
		if !ok {
			return nil, apperrors.Forbidden("you do not have permission to use this prompt")
		}
	}
	if err := s.repo.IncrementCounter(ctx, id, CounterUse, 1); err != nil {
		return nil, mapRepoErr(err, "prompt")
	}
	p.UseCount++
	return p, nil
}

// Like bumps the like counter.
func (s *Service) Like(ctx context.Context, actor Actor, id string) error {
	if _, err := s.fetchVisible(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.IncrementCounter(ctx, id, CounterLike, 1); err != nil {
		return mapRepoErr(err, "prompt")
	}
	return nil
}

// Ban flags the prompt with a reason. Admin only.
func (s *Service) Ban(ctx context.Context, actor Actor, id, reason string) error {
	if !actor.IsAdmin {
		return apperrors.Forbidden("admin only")
	}
	if reason == "" {
		return apperrors.Validation("ban reason is required", nil)
	}
	if err := s.repo.SetBan(ctx, id, true, reason); err != nil {
		return mapRepoErr(err, "prompt")
	}
	return nil
}

// Unban clears the ban flag. Admin only.
func (s *Service) Unban(ctx context.Context, actor Actor, id string) error {
	if !actor.IsAdmin {
		return apperrors.Forbidden("admin only")
	}
	if err := s.repo.SetBan(ctx, id, false, ""); err != nil {
		return mapRepoErr(err, "prompt")
	}
	return nil
}

// --- categories ---

func (s *Service) CreateCategory(ctx context.Context, actor Actor, c *Category) error {
	if !actor.IsAdmin {
		return apperrors.Forbidden("admin only")
	}
	if c.Name == "" {
		return apperrors.Validation("category name is required", nil)
	}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "create category", err)
	}
	return nil
}

func (s *Service) UpdateCategory(ctx context.Context, actor Actor, c *Category) error {
	if !actor.IsAdmin {
		return apperrors.Forbidden("admin only")
	}
	if c.Name == "" {
		return apperrors.Validation("category name is required", nil)
	}
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return mapRepoErr(err, "category")
	}
	return nil
}

func (s *Service) DeleteCategory(ctx context.Context, actor Actor, id string) error {
	if !actor.IsAdmin {
		return apperrors.Forbidden("admin only")
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return mapRepoErr(err, "category")
	}
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]*Category, error) {
	out, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list categories", err)
	}
	return out, nil
}

func mapRepoErr(err error, resource string) error {
	if errors.Is(err, ErrNotFound) {
		return apperrors.NotFound(resource)
	}
	return apperrors.Wrap(apperrors.KindInternal, resource+" storage", err)
}
