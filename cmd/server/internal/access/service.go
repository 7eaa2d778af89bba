package access

import (
	"context"
	"errors"

	"github.com/promptdeck/promptdeck/cmd/server/internal/apperrors"
	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
)

// PromptGetter is the slice of the prompt repository this package needs.
type PromptGetter interface {
	GetByID(ctx context.Context, id string) (*prompts.Prompt, error)
}

// Service manages permission grants and the application workflow.
type Service struct {
	repo        *Repository
	promptStore PromptGetter
}

func NewService(repo *Repository, promptStore PromptGetter) *Service {
	return &Service{repo: repo, promptStore: promptStore}
}

func (s *Service) getPrompt(ctx context.Context, id string) (*prompts.Prompt, error) {
	p, err := s.promptStore.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, prompts.ErrNotFound) {
			return nil, apperrors.NotFound("prompt")
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "load prompt", err)
	}
	return p, nil
}

func (s *Service) requireManage(ctx context.Context, actor prompts.Actor, promptID string) (*prompts.Prompt, error) {
	p, err := s.getPrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if p.AuthorID != actor.ID && !actor.IsAdmin {
		return nil, apperrors.Forbidden("only the prompt author or an admin may manage access")
	}
	return p, nil
}

// Grant gives userID the action on the prompt. Author or admin only; granting
// the same right twice is a conflict.
func (s *Service) Grant(ctx context.Context, actor prompts.Actor, promptID, userID, action string) (*Permission, error) {
	if action != prompts.ActionView && action != prompts.ActionUse && action != prompts.ActionEdit {
		return nil, apperrors.Validation("invalid action", map[string]string{"action": action})
	}
	p, err := s.requireManage(ctx, actor, promptID)
	if err != nil {
		return nil, err
	}
	if userID == p.AuthorID {
		return nil, apperrors.Validation("the author already holds all rights", nil)
	}

	perm := &Permission{PromptID: promptID, UserID: userID, Action: action}
	if err := s.repo.InsertPermission(ctx, perm); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, apperrors.Conflict("permission already granted")
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "grant permission", err)
	}
	return perm, nil
}

// Revoke removes every grant userID holds on the prompt. The user must
// re-apply afterwards.
func (s *Service) Revoke(ctx context.Context, actor prompts.Actor, promptID, userID string) error {
	if _, err := s.requireManage(ctx, actor, promptID); err != nil {
		return err
	}
	if err := s.repo.DeletePermissions(ctx, promptID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperrors.NotFound("permission")
		}
		return apperrors.Wrap(apperrors.KindInternal, "revoke permission", err)
	}
	return nil
}

// ListPermissions returns the grants on a prompt. Author or admin only.
func (s *Service) ListPermissions(ctx context.Context, actor prompts.Actor, promptID string) ([]*Permission, error) {
	if _, err := s.requireManage(ctx, actor, promptID); err != nil {
		return nil, err
	}
	out, err := s.repo.ListPermissions(ctx, promptID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list permissions", err)
	}
	return out, nil
}

// Apply files an application to use a gated prompt. The author cannot apply
// to their own prompt; a second pending application is a conflict.
func (s *Service) Apply(ctx context.Context, actor prompts.Actor, promptID, reason string) (*Application, error) {
	p, err := s.getPrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if p.AuthorID == actor.ID {
		return nil, apperrors.Validation("you cannot apply to your own prompt", nil)
	}

	pending, err := s.repo.HasApplication(ctx, promptID, actor.ID, ApplicationPending)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "check applications", err)
	}
	if pending {
		return nil, apperrors.Conflict("an application is already pending")
	}
	approved, err := s.repo.HasApplication(ctx, promptID, actor.ID, ApplicationApproved)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "check applications", err)
	}
	if approved {
		return nil, apperrors.Conflict("an approved application already exists")
	}

	a := &Application{PromptID: promptID, UserID: actor.ID, Reason: reason}
	if err := s.repo.InsertApplication(ctx, a); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "create application", err)
	}
	return a, nil
}

// Review approves or rejects a pending application. Only the prompt author or
// an admin may review; reviewing a non-pending application is a conflict.
// Approval does not create a permission row.
func (s *Service) Review(ctx context.Context, actor prompts.Actor, applicationID, status, note string) (*Application, error) {
	if status != ApplicationApproved && status != ApplicationRejected {
		return nil, apperrors.Validation("status must be approved or rejected", nil)
	}
	a, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NotFound("application")
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "load application", err)
	}
	if _, err := s.requireManage(ctx, actor, a.PromptID); err != nil {
		return nil, err
	}
	if a.Status != ApplicationPending {
		return nil, apperrors.Conflict("application has already been reviewed")
	}
	if err := s.repo.ReviewApplication(ctx, applicationID, status, actor.ID, note); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.Conflict("application has already been reviewed")
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "review application", err)
	}
	return s.repo.GetApplication(ctx, applicationID)
}

// ListApplications returns the applications filed against a prompt. Author or
// admin only.
func (s *Service) ListApplications(ctx context.Context, actor prompts.Actor, promptID string) ([]*Application, error) {
	if _, err := s.requireManage(ctx, actor, promptID); err != nil {
		return nil, err
	}
	out, err := s.repo.ListApplicationsByPrompt(ctx, promptID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list applications", err)
	}
	return out, nil
}

// ListMine returns the actor's own applications.
func (s *Service) ListMine(ctx context.Context, actor prompts.Actor) ([]*Application, error) {
	out, err := s.repo.ListApplicationsByUser(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list applications", err)
	}
	return out, nil
}

// Checker resolves "may user U perform action A on prompt P". It satisfies
// prompts.AccessChecker.
type Checker struct {
	repo *Repository
}

func NewChecker(repo *Repository) *Checker {
	return &Checker{repo: repo}
}

// Can resolves access in order: author holds all rights, then explicit
// grants, then visibility flags. Gated prompts require an approved
// application or a grant; edit always requires a grant.
func (c *Checker) Can(ctx context.Context, userID, action string, p *prompts.Prompt) (bool, error) {
	if userID == p.AuthorID {
		return true, nil
	}
	if userID == "" {
		return false, nil
	}
	granted, err := c.repo.HasPermission(ctx, p.ID, userID, action)
	if err != nil {
		return false, err
	}
	if granted {
		return true, nil
	}
	if action != prompts.ActionView && action != prompts.ActionUse {
		return false, nil
	}
	if p.RequireApplication {
		return c.repo.HasApplication(ctx, p.ID, userID, ApplicationApproved)
	}
	return p.IsPublic, nil
}
