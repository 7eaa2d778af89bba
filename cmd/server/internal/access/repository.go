package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

const timeLayout = time.RFC3339

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// --- permissions ---

func (r *Repository) InsertPermission(ctx context.Context, p *Permission) error {
	p.CreatedAt = time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permissions (id, prompt_id, user_id, action, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.PromptID, p.UserID, p.Action, p.CreatedAt.Format(timeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrDuplicate
		}
		return fmt.Errorf("insert permission: %w", err)
	}
	return nil
}

// DeletePermissions removes all grants for the user on the prompt. Revocation
// is a hard delete.
func (r *Repository) DeletePermissions(ctx context.Context, promptID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM permissions WHERE prompt_id = ? AND user_id = ?`, promptID, userID)
	if err != nil {
		return fmt.Errorf("delete permissions: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) HasPermission(ctx context.Context, promptID, userID, action string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM permissions WHERE prompt_id = ? AND user_id = ? AND action = ?`,
		promptID, userID, action).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) ListPermissions(ctx context.Context, promptID string) ([]*Permission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, prompt_id, user_id, action, created_at
		FROM permissions WHERE prompt_id = ? ORDER BY created_at`, promptID)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	var out []*Permission
	for rows.Next() {
		var p Permission
		var createdAt string
		if err := rows.Scan(&p.ID, &p.PromptID, &p.UserID, &p.Action, &createdAt); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- applications ---

func (r *Repository) InsertApplication(ctx context.Context, a *Application) error {
	a.CreatedAt = time.Now().UTC()
	a.Status = ApplicationPending
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO applications (id, prompt_id, user_id, reason, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.PromptID, a.UserID, a.Reason, a.Status, a.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (r *Repository) GetApplication(ctx context.Context, id string) (*Application, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, prompt_id, user_id, reason, status,
			COALESCE(reviewer_id, ''), review_note, reviewed_at, created_at
		FROM applications WHERE id = ?`, id)
	return scanApplication(row)
}

func scanApplication(row interface{ Scan(...any) error }) (*Application, error) {
	var a Application
	var reviewedAt sql.NullString
	var createdAt string
	err := row.Scan(&a.ID, &a.PromptID, &a.UserID, &a.Reason, &a.Status,
		&a.ReviewerID, &a.ReviewNote, &reviewedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan application: %w", err)
	}
	if reviewedAt.Valid {
		t, _ := time.Parse(timeLayout, reviewedAt.String)
		a.ReviewedAt = &t
	}
	a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &a, nil
}

// ReviewApplication moves a pending application to a terminal state, stamping
// reviewer, note, and time. Returns ErrNotFound when the application is
// missing or no longer pending.
func (r *Repository) ReviewApplication(ctx context.Context, id, status, reviewerID, note string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE applications SET status = ?, reviewer_id = ?, review_note = ?, reviewed_at = ?
		WHERE id = ? AND status = ?`,
		status, reviewerID, note, time.Now().UTC().Format(timeLayout), id, ApplicationPending)
	if err != nil {
		return fmt.Errorf("review application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) HasApplication(ctx context.Context, promptID, userID, status string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE prompt_id = ? AND user_id = ? AND status = ?`,
		promptID, userID, status).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check application: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) ListApplicationsByPrompt(ctx context.Context, promptID string) ([]*Application, error) {
	return r.listApplications(ctx, "prompt_id", promptID)
}

func (r *Repository) ListApplicationsByUser(ctx context.Context, userID string) ([]*Application, error) {
	return r.listApplications(ctx, "user_id", userID)
}

func (r *Repository) listApplications(ctx context.Context, column, value string) ([]*Application, error) {
	query := fmt.Sprintf(`
		SELECT id, prompt_id, user_id, reason, status,
			COALESCE(reviewer_id, ''), review_note, reviewed_at, created_at
		FROM applications WHERE %s = ? ORDER BY created_at DESC`, column)
	rows, err := r.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	var out []*Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
