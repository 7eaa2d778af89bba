package groups

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdeck/promptdeck/cmd/server/internal/apperrors"
	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
	"github.com/promptdeck/promptdeck/cmd/server/internal/store"
)

type fixture struct {
	svc     *Service
	repo    *Repository
	prompts *prompts.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	insertUser(t, db, "author-1", "alice")
	insertUser(t, db, "other-1", "bob")

	repo := NewRepository(db)
	promptRepo := prompts.NewRepository(db)
	return &fixture{
		svc:     NewService(repo, promptRepo),
		repo:    repo,
		prompts: promptRepo,
	}
}

func insertUser(t *testing.T, db *sql.DB, id, name string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(
		`INSERT INTO users (id, username, password_hash, is_admin, created_at, updated_at) VALUES (?, ?, 'x', 0, ?, ?)`,
		id, name, now, now)
	require.NoError(t, err)
}

func (f *fixture) createPrompt(t *testing.T, text string) *prompts.Prompt {
	t.Helper()
	p := &prompts.Prompt{
		AuthorID:        "author-1",
		Name:            "stage prompt",
		Status:          prompts.StatusPublished,
		IsPublic:        true,
		IsContentPublic: true,
		Contents: []prompts.Content{
			{Role: prompts.RoleSystem, Kind: prompts.KindText, Enabled: true, Text: "You are a novelist."},
			{Role: prompts.RoleUser, Kind: prompts.KindText, Enabled: true, Text: text,
				Parameters: prompts.ExtractParameters(text, nil)},
		},
	}
	require.NoError(t, f.prompts.Create(context.Background(), p))
	return p
}

func TestGroupCreate_Validation(t *testing.T) {
	f := newFixture(t)
	actor := prompts.Actor{ID: "author-1"}
	p := f.createPrompt(t, "write about {{topic}}")

	tests := []struct {
		name  string
		input GroupInput
		kind  apperrors.Kind
	}{
		{
			name:  "no items",
			input: GroupInput{Name: "empty"},
			kind:  apperrors.KindValidation,
		},
		{
			name: "duplicate stage type",
			input: GroupInput{Name: "dup", Items: []ItemInput{
				{PromptID: p.ID, StageType: StageIdea},
				{PromptID: p.ID, StageType: StageIdea},
			}},
			kind: apperrors.KindConflict,
		},
		{
			name: "unknown stage type",
			input: GroupInput{Name: "bad", Items: []ItemInput{
				{PromptID: p.ID, StageType: "prologue"},
			}},
			kind: apperrors.KindValidation,
		},
		{
			name: "missing prompt binding",
			input: GroupInput{Name: "unbound", Items: []ItemInput{
				{StageType: StageIdea},
			}},
			kind: apperrors.KindValidation,
		},
		{
			name: "prompt does not exist",
			input: GroupInput{Name: "ghost", Items: []ItemInput{
				{PromptID: "missing", StageType: StageIdea},
			}},
			kind: apperrors.KindValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), actor, &tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}
}

func TestGroupCreate_AllStagesBound(t *testing.T) {
	f := newFixture(t)
	actor := prompts.Actor{ID: "author-1"}
	p := f.createPrompt(t, "write about {{topic}}")

	g, err := f.svc.Create(context.Background(), actor, &GroupInput{
		Name: "full pipeline",
		Items: []ItemInput{
			{PromptID: p.ID, StageType: StageIdea},
			{PromptID: p.ID, StageType: StageTitle},
			{PromptID: p.ID, StageType: StageOutlineMain},
			{PromptID: p.ID, StageType: StageContent},
		},
	})
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), g.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 4)
	assert.True(t, got.Items[0].IsRequired)
}

func TestGroupUpdate_OnlyAuthor(t *testing.T) {
	f := newFixture(t)
	p := f.createPrompt(t, "x")
	g, err := f.svc.Create(context.Background(), prompts.Actor{ID: "author-1"}, &GroupInput{
		Name:  "mine",
		Items: []ItemInput{{PromptID: p.ID, StageType: StageIdea}},
	})
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), prompts.Actor{ID: "other-1"}, g.ID, &GroupInput{
		Name:  "stolen",
		Items: []ItemInput{{PromptID: p.ID, StageType: StageIdea}},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
}

func TestResolveStage(t *testing.T) {
	f := newFixture(t)
	p := f.createPrompt(t, "Write a chapter about {{topic}} in ${style}.")
	g, err := f.svc.Create(context.Background(), prompts.Actor{ID: "author-1"}, &GroupInput{
		Name: "pipeline",
		Items: []ItemInput{
			{PromptID: p.ID, StageType: StageContent},
			{PromptID: p.ID, StageType: StageTitle},
		},
	})
	require.NoError(t, err)

	resolved, err := f.svc.ResolveStage(context.Background(), g.ID, StageContent,
		map[string]string{"topic": "the sea", "style": "terse"})
	require.NoError(t, err)
	assert.Equal(t, ShapeText, resolved.Shape)
	require.Len(t, resolved.Messages, 2)
	assert.Equal(t, prompts.RoleSystem, resolved.Messages[0].Role)
	assert.Equal(t, "Write a chapter about the sea in terse.", resolved.Messages[1].Content)

	// Title stage declares a JSON array response.
	resolved, err = f.svc.ResolveStage(context.Background(), g.ID, StageTitle,
		map[string]string{"topic": "t", "style": "s"})
	require.NoError(t, err)
	assert.Equal(t, ShapeJSONArray, resolved.Shape)
}

func TestResolveStage_MissingParameter(t *testing.T) {
	f := newFixture(t)
	p := f.createPrompt(t, "Write about {{topic}}.")
	g, err := f.svc.Create(context.Background(), prompts.Actor{ID: "author-1"}, &GroupInput{
		Name:  "pipeline",
		Items: []ItemInput{{PromptID: p.ID, StageType: StageIdea}},
	})
	require.NoError(t, err)

	_, err = f.svc.ResolveStage(context.Background(), g.ID, StageIdea, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "topic")
}

func TestResolveStage_UnboundStage(t *testing.T) {
	f := newFixture(t)
	p := f.createPrompt(t, "x")
	g, err := f.svc.Create(context.Background(), prompts.Actor{ID: "author-1"}, &GroupInput{
		Name:  "pipeline",
		Items: []ItemInput{{PromptID: p.ID, StageType: StageIdea}},
	})
	require.NoError(t, err)

	_, err = f.svc.ResolveStage(context.Background(), g.ID, StageReview, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestSeedFromFile(t *testing.T) {
	f := newFixture(t)

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: default book pipeline
description: seeded stages
stages:
  - stage: idea
    prompt:
      name: idea generator
      contents:
        - role: system
          text: You are a novelist.
        - role: user
          text: "Brainstorm a premise about {{theme}}."
  - stage: title
    required: false
    prompt:
      name: title generator
      contents:
        - role: user
          text: "Suggest titles for: ${premise}"
`), 0o644))

	require.NoError(t, SeedFromFile(context.Background(), path, "author-1", f.repo, f.prompts))

	g, err := f.repo.GetByName(context.Background(), "default book pipeline")
	require.NoError(t, err)
	require.Len(t, g.Items, 2)
	assert.Equal(t, StageIdea, g.Items[0].StageType)
	assert.False(t, g.Items[1].IsRequired)

	p, err := f.prompts.GetByID(context.Background(), g.Items[0].PromptID)
	require.NoError(t, err)
	require.Len(t, p.Contents, 2)
	require.Len(t, p.Contents[1].Parameters, 1)
	assert.Equal(t, "theme", p.Contents[1].Parameters[0].Name)

	// Running the seed again is a no-op.
	require.NoError(t, SeedFromFile(context.Background(), path, "author-1", f.repo, f.prompts))
	again, err := f.repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, again, 1)
}
