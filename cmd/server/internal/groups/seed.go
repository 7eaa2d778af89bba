package groups

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
)

// PromptCreator stores seeded prompts.
type PromptCreator interface {
	Create(ctx context.Context, p *prompts.Prompt) error
}

type seedFile struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Stages      []seedStage `yaml:"stages"`
}

type seedStage struct {
	Stage    string     `yaml:"stage"`
	Required *bool      `yaml:"required"`
	Prompt   seedPrompt `yaml:"prompt"`
}

type seedPrompt struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Contents    []seedContent `yaml:"contents"`
}

type seedContent struct {
	Role string `yaml:"role"`
	Kind string `yaml:"kind"`
	Text string `yaml:"text"`
}

// SeedFromFile loads a pipeline definition and creates its prompts and group
// owned by ownerID. A group with the same name already existing means the
// seed has run before; nothing is changed then.
func SeedFromFile(ctx context.Context, path, ownerID string, repo *Repository, promptStore PromptCreator) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pipeline file: %w", err)
	}
	var def seedFile
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return fmt.Errorf("parse pipeline file: %w", err)
	}
	if def.Name == "" || len(def.Stages) == 0 {
		return errors.New("pipeline file needs a name and at least one stage")
	}

	if _, err := repo.GetByName(ctx, def.Name); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	g := &PromptGroup{
		AuthorID:    ownerID,
		Name:        def.Name,
		Description: def.Description,
	}
	for i, st := range def.Stages {
		if !ValidStage(st.Stage) {
			return fmt.Errorf("pipeline stage %d: unknown stage type %q", i, st.Stage)
		}
		p := &prompts.Prompt{
			AuthorID:        ownerID,
			Name:            st.Prompt.Name,
			Description:     st.Prompt.Description,
			Status:          prompts.StatusPublished,
			IsPublic:        true,
			IsContentPublic: true,
		}
		for j, c := range st.Prompt.Contents {
			kind := c.Kind
			if kind == "" {
				kind = prompts.KindText
			}
			p.Contents = append(p.Contents, prompts.Content{
				Role:       c.Role,
				Kind:       kind,
				SortOrder:  j,
				Enabled:    true,
				Text:       c.Text,
				Parameters: prompts.ExtractParameters(c.Text, nil),
			})
		}
		if err := promptStore.Create(ctx, p); err != nil {
			return fmt.Errorf("seed prompt for stage %s: %w", st.Stage, err)
		}
		g.Items = append(g.Items, Item{
			PromptID:   p.ID,
			StageType:  st.Stage,
			IsRequired: st.Required == nil || *st.Required,
			SortOrder:  i,
		})
	}
	return repo.Create(ctx, g)
}
