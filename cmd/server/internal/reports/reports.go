// Package reports lets users flag prompts for moderation.
package reports

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/promptdeck/promptdeck/cmd/server/internal/apperrors"
	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
)

const timeLayout = time.RFC3339

// Report is one user complaint against a prompt.
type Report struct {
	ID         string    `json:"id"`
	PromptID   string    `json:"prompt_id"`
	ReporterID string    `json:"reporter_id"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// PromptGetter is the slice of the prompt repository this package needs.
type PromptGetter interface {
	GetByID(ctx context.Context, id string) (*prompts.Prompt, error)
}

type Service struct {
	db          *sql.DB
	promptStore PromptGetter
}

func NewService(db *sql.DB, promptStore PromptGetter) *Service {
	return &Service{db: db, promptStore: promptStore}
}

// File records a report against a prompt.
func (s *Service) File(ctx context.Context, actor prompts.Actor, promptID, reason string) (*Report, error) {
	if reason == "" {
		return nil, apperrors.Validation("a reason is required", nil)
	}
	if _, err := s.promptStore.GetByID(ctx, promptID); err != nil {
		if errors.Is(err, prompts.ErrNotFound) {
			return nil, apperrors.NotFound("prompt")
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "load prompt", err)
	}

	r := &Report{
		ID:         uuid.NewString(),
		PromptID:   promptID,
		ReporterID: actor.ID,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompt_reports (id, prompt_id, reporter_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.PromptID, r.ReporterID, r.Reason, r.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "insert report", err)
	}
	return r, nil
}

// List returns all reports, newest first. Admin only.
func (s *Service) List(ctx context.Context, actor prompts.Actor) ([]*Report, error) {
	if !actor.IsAdmin {
		return nil, apperrors.Forbidden("admin only")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt_id, reporter_id, reason, created_at
		FROM prompt_reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "query reports", err)
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		var r Report
		var createdAt string
		if err := rows.Scan(&r.ID, &r.PromptID, &r.ReporterID, &r.Reason, &createdAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scan report", err)
		}
		r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}
