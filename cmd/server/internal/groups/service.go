package groups

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/promptdeck/promptdeck/cmd/server/internal/apperrors"
	"github.com/promptdeck/promptdeck/cmd/server/internal/llm"
	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
)

// PromptGetter is the slice of the prompt repository this package needs.
type PromptGetter interface {
	GetByID(ctx context.Context, id string) (*prompts.Prompt, error)
}

// GroupInput is the write payload for a prompt group.
type GroupInput struct {
	Name        string      `json:"name" binding:"required"`
	Description string      `json:"description"`
	Items       []ItemInput `json:"items" binding:"required"`
}

type ItemInput struct {
	PromptID   string `json:"prompt_id"`
	StageType  string `json:"stage_type"`
	IsRequired *bool  `json:"is_required"`
	SortOrder  int    `json:"sort_order"`
}

// ResolvedStage is a stage turned into ready-to-send provider messages plus
// the output shape the caller must parse the response as.
type ResolvedStage struct {
	StageType string        `json:"stage_type"`
	PromptID  string        `json:"prompt_id"`
	Messages  []llm.Message `json:"messages"`
	Shape     string        `json:"shape"`
}

// Service validates and resolves prompt groups.
type Service struct {
	repo        *Repository
	promptStore PromptGetter
}

func NewService(repo *Repository, promptStore PromptGetter) *Service {
	return &Service{repo: repo, promptStore: promptStore}
}

func (s *Service) validateItems(ctx context.Context, inputs []ItemInput) ([]Item, error) {
	if len(inputs) == 0 {
		return nil, apperrors.Validation("a group needs at least one item", nil)
	}
	seen := make(map[string]bool, len(inputs))
	items := make([]Item, 0, len(inputs))
	for i, in := range inputs {
		if !ValidStage(in.StageType) {
			return nil, apperrors.Validation(fmt.Sprintf("items[%d]: unknown stage type %q", i, in.StageType), nil)
		}
		if seen[in.StageType] {
			return nil, apperrors.Conflict(fmt.Sprintf("duplicate stage type %q", in.StageType))
		}
		seen[in.StageType] = true
		if in.PromptID == "" {
			return nil, apperrors.Validation(fmt.Sprintf("items[%d]: a prompt must be selected", i), nil)
		}
		if _, err := s.promptStore.GetByID(ctx, in.PromptID); err != nil {
			if errors.Is(err, prompts.ErrNotFound) {
				return nil, apperrors.Validation(fmt.Sprintf("items[%d]: prompt %s does not exist", i, in.PromptID), nil)
			}
			return nil, apperrors.Wrap(apperrors.KindInternal, "load prompt", err)
		}
		required := in.IsRequired == nil || *in.IsRequired
		items = append(items, Item{
			PromptID:   in.PromptID,
			StageType:  in.StageType,
			IsRequired: required,
			SortOrder:  in.SortOrder,
		})
	}
	return items, nil
}

// Create validates and stores a new group owned by the actor.
func (s *Service) Create(ctx context.Context, actor prompts.Actor, in *GroupInput) (*PromptGroup, error) {
	if in.Name == "" {
		return nil, apperrors.Validation("group name is required", nil)
	}
	items, err := s.validateItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}
	g := &PromptGroup{
		AuthorID:    actor.ID,
		Name:        in.Name,
		Description: in.Description,
		Items:       items,
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "create group", err)
	}
	return g, nil
}

// Update rewrites the group. Author or admin only.
func (s *Service) Update(ctx context.Context, actor prompts.Actor, id string, in *GroupInput) (*PromptGroup, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.AuthorID != actor.ID && !actor.IsAdmin {
		return nil, apperrors.Forbidden("only the author or an admin may modify this group")
	}
	if in.Name == "" {
		return nil, apperrors.Validation("group name is required", nil)
	}
	items, err := s.validateItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}
	g.Name = in.Name
	g.Description = in.Description
	g.Items = items
	if err := s.repo.Update(ctx, g); err != nil {
		return nil, mapRepoErr(err)
	}
	return g, nil
}

func (s *Service) Get(ctx context.Context, id string) (*PromptGroup, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return g, nil
}

func (s *Service) List(ctx context.Context) ([]*PromptGroup, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list groups", err)
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, actor prompts.Actor, id string) error {
	g, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if g.AuthorID != actor.ID && !actor.IsAdmin {
		return apperrors.Forbidden("only the author or an admin may delete this group")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoErr(err)
	}
	return nil
}

// ResolveStage renders the stage's bound prompt with the given values and
// returns the messages to send plus the declared output shape. Enabled
// content blocks become one message each in sort order; parameters marked
// optional by the author may be absent and render empty.
func (s *Service) ResolveStage(ctx context.Context, groupID, stageType string, values map[string]string) (*ResolvedStage, error) {
	if !ValidStage(stageType) {
		return nil, apperrors.Validation(fmt.Sprintf("unknown stage type %q", stageType), nil)
	}
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	item, ok := g.ItemForStage(stageType)
	if !ok {
		return nil, apperrors.NotFound("stage binding")
	}

	p, err := s.promptStore.GetByID(ctx, item.PromptID)
	if err != nil {
		if errors.Is(err, prompts.ErrNotFound) {
			return nil, apperrors.NotFound("prompt")
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "load prompt", err)
	}
	if p.IsBanned {
		return nil, apperrors.Banned(p.BanReason)
	}

	contents := make([]prompts.Content, len(p.Contents))
	copy(contents, p.Contents)
	sort.SliceStable(contents, func(i, j int) bool { return contents[i].SortOrder < contents[j].SortOrder })

	var messages []llm.Message
	for _, c := range contents {
		if !c.Enabled {
			continue
		}
		optional := make(map[string]bool)
		for _, param := range c.Parameters {
			if !param.Required {
				optional[param.Name] = true
			}
		}
		text, err := prompts.ParseTemplate(c.Text).Render(values, optional)
		if err != nil {
			return nil, apperrors.Validation(err.Error(), nil)
		}
		messages = append(messages, llm.Message{Role: c.Role, Content: text})
	}
	if len(messages) == 0 {
		return nil, apperrors.Validation("prompt has no enabled content", nil)
	}

	return &ResolvedStage{
		StageType: stageType,
		PromptID:  p.ID,
		Messages:  messages,
		Shape:     StageShape(stageType),
	}, nil
}

func mapRepoErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperrors.NotFound("prompt group")
	}
	return apperrors.Wrap(apperrors.KindInternal, "group storage", err)
}
