package access

import (
	"context"
	"database/sql"
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
	checker *Checker
	prompts *prompts.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	insertUser(t, db, "author-1", "alice")
	insertUser(t, db, "applicant-1", "bob")
	insertUser(t, db, "applicant-2", "carol")

	repo := NewRepository(db)
	promptRepo := prompts.NewRepository(db)
	return &fixture{
		svc:     NewService(repo, promptRepo),
		checker: NewChecker(repo),
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

func (f *fixture) createPrompt(t *testing.T, gated bool) *prompts.Prompt {
	t.Helper()
	p := &prompts.Prompt{
		AuthorID:           "author-1",
		Name:               "gated prompt",
		Status:             prompts.StatusPublished,
		IsPublic:           true,
		IsContentPublic:    !gated,
		RequireApplication: gated,
		Contents: []prompts.Content{
			{Role: prompts.RoleUser, Kind: prompts.KindText, Enabled: true, Text: "write {{thing}}"},
		},
	}
	require.NoError(t, f.prompts.Create(context.Background(), p))
	return p
}

func TestGrantAndRevoke(t *testing.T) {
	f := newFixture(t)
	author := prompts.Actor{ID: "author-1"}
	p := f.createPrompt(t, true)

	perm, err := f.svc.Grant(context.Background(), author, p.ID, "applicant-1", prompts.ActionUse)
	require.NoError(t, err)
	assert.Equal(t, prompts.ActionUse, perm.Action)

	_, err = f.svc.Grant(context.Background(), author, p.ID, "applicant-1", prompts.ActionUse)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	ok, err := f.checker.Can(context.Background(), "applicant-1", prompts.ActionUse, p)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.svc.Revoke(context.Background(), author, p.ID, "applicant-1"))

	ok, err = f.checker.Can(context.Background(), "applicant-1", prompts.ActionUse, p)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrant_NonAuthorForbidden(t *testing.T) {
	f := newFixture(t)
	p := f.createPrompt(t, true)

	_, err := f.svc.Grant(context.Background(), prompts.Actor{ID: "applicant-1"}, p.ID, "applicant-2", prompts.ActionUse)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
}

func TestApply_OwnPromptRejected(t *testing.T) {
	f := newFixture(t)
	p := f.createPrompt(t, true)

	_, err := f.svc.Apply(context.Background(), prompts.Actor{ID: "author-1"}, p.ID, "let me in")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestApply_DuplicatePendingConflicts(t *testing.T) {
	f := newFixture(t)
	p := f.createPrompt(t, true)
	applicant := prompts.Actor{ID: "applicant-1"}

	_, err := f.svc.Apply(context.Background(), applicant, p.ID, "first")
	require.NoError(t, err)

	_, err = f.svc.Apply(context.Background(), applicant, p.ID, "second")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestReview_StateMachine(t *testing.T) {
	f := newFixture(t)
	author := prompts.Actor{ID: "author-1"}
	p := f.createPrompt(t, true)

	a, err := f.svc.Apply(context.Background(), prompts.Actor{ID: "applicant-1"}, p.ID, "please")
	require.NoError(t, err)
	assert.Equal(t, ApplicationPending, a.Status)

	// Only the author or an admin may review.
	_, err = f.svc.Review(context.Background(), prompts.Actor{ID: "applicant-2"}, a.ID, ApplicationApproved, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	reviewed, err := f.svc.Review(context.Background(), author, a.ID, ApplicationApproved, "welcome")
	require.NoError(t, err)
	assert.Equal(t, ApplicationApproved, reviewed.Status)
	assert.Equal(t, "author-1", reviewed.ReviewerID)
	assert.Equal(t, "welcome", reviewed.ReviewNote)
	require.NotNil(t, reviewed.ReviewedAt)

	// Terminal states are final.
	_, err = f.svc.Review(context.Background(), author, a.ID, ApplicationRejected, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestReview_InvalidStatus(t *testing.T) {
	f := newFixture(t)
	p := f.createPrompt(t, true)
	a, err := f.svc.Apply(context.Background(), prompts.Actor{ID: "applicant-1"}, p.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Review(context.Background(), prompts.Actor{ID: "author-1"}, a.ID, "maybe", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestRejectionFlow(t *testing.T) {
	f := newFixture(t)
	author := prompts.Actor{ID: "author-1"}
	applicant := prompts.Actor{ID: "applicant-1"}
	p := f.createPrompt(t, true)

	a, err := f.svc.Apply(context.Background(), applicant, p.ID, "test")
	require.NoError(t, err)

	_, err = f.svc.Review(context.Background(), author, a.ID, ApplicationRejected, "not relevant")
	require.NoError(t, err)

	mine, err := f.svc.ListMine(context.Background(), applicant)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ApplicationRejected, mine[0].Status)
	assert.Equal(t, "not relevant", mine[0].ReviewNote)

	// A rejected applicant may file a fresh application.
	_, err = f.svc.Apply(context.Background(), applicant, p.ID, "trying again")
	require.NoError(t, err)
}

func TestChecker_Resolution(t *testing.T) {
	f := newFixture(t)
	author := prompts.Actor{ID: "author-1"}
	gated := f.createPrompt(t, true)
	open := f.createPrompt(t, false)

	tests := []struct {
		name   string
		userID string
		action string
		prompt *prompts.Prompt
		want   bool
	}{
		{"author has all rights", "author-1", prompts.ActionEdit, gated, true},
		{"anonymous denied", "", prompts.ActionView, open, false},
		{"public not gated allows use", "applicant-1", prompts.ActionUse, open, true},
		{"gated denies use without approval", "applicant-1", prompts.ActionUse, gated, false},
		{"edit requires explicit grant", "applicant-1", prompts.ActionEdit, open, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.checker.Can(context.Background(), tt.userID, tt.action, tt.prompt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	// An approved application unlocks use on the gated prompt.
	a, err := f.svc.Apply(context.Background(), prompts.Actor{ID: "applicant-1"}, gated.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Review(context.Background(), author, a.ID, ApplicationApproved, "")
	require.NoError(t, err)

	ok, err := f.checker.Can(context.Background(), "applicant-1", prompts.ActionUse, gated)
	require.NoError(t, err)
	assert.True(t, ok)
}
