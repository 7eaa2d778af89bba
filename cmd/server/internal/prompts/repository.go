package prompts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a prompt or category does not exist.
var ErrNotFound = errors.New("not found")

const timeLayout = time.RFC3339

// ListFilter narrows and pages a prompt listing.
type ListFilter struct {
	ViewerID   string // restricts private prompts to this author; empty means admin view
	AuthorID   string // only prompts by this author
	CategoryID string
	Status     string
	Search     string // substring match on name and description
	OrderByHot bool
	Page       int
	PageSize   int
}

// Repository persists prompts, their contents and parameters, and categories.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the prompt with its contents and parameters in one transaction.
func (r *Repository) Create(ctx context.Context, p *Prompt) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO prompts (id, author_id, category_id, name, description, status,
			is_public, is_content_public, require_application,
			is_banned, ban_reason, view_count, use_count, like_count,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', 0, 0, 0, ?, ?)`,
		p.ID, p.AuthorID, nullable(p.CategoryID), p.Name, p.Description, p.Status,
		p.IsPublic, p.IsContentPublic, p.RequireApplication,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}

	if err := insertContents(ctx, tx, p.ID, p.Contents); err != nil {
		return err
	}
	return tx.Commit()
}

// Update replaces the prompt's fields and rewrites its contents wholesale.
func (r *Repository) Update(ctx context.Context, p *Prompt) error {
	now := time.Now().UTC()
	p.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE prompts SET category_id = ?, name = ?, description = ?, status = ?,
			is_public = ?, is_content_public = ?, require_application = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		nullable(p.CategoryID), p.Name, p.Description, p.Status,
		p.IsPublic, p.IsContentPublic, p.RequireApplication,
		now.Format(timeLayout), p.ID)
	if err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM prompt_parameters WHERE content_id IN
			(SELECT id FROM prompt_contents WHERE prompt_id = ?)`, p.ID); err != nil {
		return fmt.Errorf("delete parameters: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM prompt_contents WHERE prompt_id = ?`, p.ID); err != nil {
		return fmt.Errorf("delete contents: %w", err)
	}
	if err := insertContents(ctx, tx, p.ID, p.Contents); err != nil {
		return err
	}
	return tx.Commit()
}

func insertContents(ctx context.Context, tx *sql.Tx, promptID string, contents []Content) error {
	for i := range contents {
		c := &contents[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.PromptID = promptID
		if c.SortOrder == 0 {
			c.SortOrder = i
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prompt_contents (id, prompt_id, role, kind, sort_order, enabled, text)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, promptID, c.Role, c.Kind, c.SortOrder, c.Enabled, c.Text)
		if err != nil {
			return fmt.Errorf("insert content: %w", err)
		}
		for j, param := range c.Parameters {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO prompt_parameters (id, content_id, name, required, description, sort_order)
				VALUES (?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), c.ID, param.Name, param.Required, param.Description, j)
			if err != nil {
				return fmt.Errorf("insert parameter: %w", err)
			}
		}
	}
	return nil
}

// GetByID loads one prompt with its contents and parameters. Soft-deleted
// prompts are not returned.
func (r *Repository) GetByID(ctx context.Context, id string) (*Prompt, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, author_id, COALESCE(category_id, ''), name, description, status,
			is_public, is_content_public, require_application,
			is_banned, ban_reason, view_count, use_count, like_count,
			created_at, updated_at
		FROM prompts WHERE id = ? AND deleted_at IS NULL`, id)

	p, err := scanPrompt(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadContents(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) loadContents(ctx context.Context, p *Prompt) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, prompt_id, role, kind, sort_order, enabled, text
		FROM prompt_contents WHERE prompt_id = ? ORDER BY sort_order`, p.ID)
	if err != nil {
		return fmt.Errorf("query contents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Content
		if err := rows.Scan(&c.ID, &c.PromptID, &c.Role, &c.Kind, &c.SortOrder, &c.Enabled, &c.Text); err != nil {
			return fmt.Errorf("scan content: %w", err)
		}
		p.Contents = append(p.Contents, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range p.Contents {
		c := &p.Contents[i]
		prows, err := r.db.QueryContext(ctx, `
			SELECT name, required, description
			FROM prompt_parameters WHERE content_id = ? ORDER BY sort_order`, c.ID)
		if err != nil {
			return fmt.Errorf("query parameters: %w", err)
		}
		for prows.Next() {
			var param Parameter
			if err := prows.Scan(&param.Name, &param.Required, &param.Description); err != nil {
				prows.Close()
				return fmt.Errorf("scan parameter: %w", err)
			}
			c.Parameters = append(c.Parameters, param)
		}
		if err := prows.Err(); err != nil {
			prows.Close()
			return err
		}
		prows.Close()
	}
	return nil
}

// List returns prompts matching the filter plus the unpaged total.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]*Prompt, int, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any

	if f.ViewerID != "" {
		// Non-admin viewers see published public prompts plus everything
		// they authored; drafts and archived prompts of others stay hidden.
		where = append(where, "((is_public = 1 AND status = 'published') OR author_id = ?)")
		args = append(args, f.ViewerID)
	}
	if f.AuthorID != "" {
		where = append(where, "author_id = ?")
		args = append(args, f.AuthorID)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		where = append(where, "(name LIKE ? OR description LIKE ?)")
		pat := "%" + f.Search + "%"
		args = append(args, pat, pat)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prompts WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prompts: %w", err)
	}

	order := "created_at DESC"
	if f.OrderByHot {
		order = "(view_count + use_count * 5 + like_count * 10) DESC, created_at DESC"
	}
	query := fmt.Sprintf(`
		SELECT id, author_id, COALESCE(category_id, ''), name, description, status,
			is_public, is_content_public, require_application,
			is_banned, ban_reason, view_count, use_count, like_count,
			created_at, updated_at
		FROM prompts WHERE %s ORDER BY %s LIMIT ? OFFSET ?`, cond, order)
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query prompts: %w", err)
	}
	defer rows.Close()

	var out []*Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrompt(row rowScanner) (*Prompt, error) {
	var p Prompt
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.AuthorID, &p.CategoryID, &p.Name, &p.Description, &p.Status,
		&p.IsPublic, &p.IsContentPublic, &p.RequireApplication,
		&p.IsBanned, &p.BanReason, &p.ViewCount, &p.UseCount, &p.LikeCount,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan prompt: %w", err)
	}
	p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	p.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &p, nil
}

// SoftDelete marks the prompt deleted; its rows stay for audit history.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE prompts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("soft delete prompt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus moves the prompt to a new lifecycle status.
func (r *Repository) SetStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE prompts SET status = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		status, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBan sets or clears the ban flag and reason.
func (r *Repository) SetBan(ctx context.Context, id string, banned bool, reason string) error {
	if !banned {
		reason = ""
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE prompts SET is_banned = ?, ban_reason = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		banned, reason, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("set ban: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Counter columns adjustable through IncrementCounter.
const (
	CounterView = "view_count"
	CounterUse  = "use_count"
	CounterLike = "like_count"
)

// IncrementCounter adds delta to one of the popularity counters. Counters
// never go below zero.
func (r *Repository) IncrementCounter(ctx context.Context, id, counter string, delta int) error {
	switch counter {
	case CounterView, CounterUse, CounterLike:
	default:
		return fmt.Errorf("unknown counter %q", counter)
	}
	query := fmt.Sprintf(`UPDATE prompts SET %s = MAX(0, %s + ?) WHERE id = ? AND deleted_at IS NULL`, counter, counter)
	res, err := r.db.ExecContext(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("increment %s: %w", counter, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- categories ---

func (r *Repository) CreateCategory(ctx context.Context, c *Category) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, c.SortOrder,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *Repository) UpdateCategory(ctx context.Context, c *Category) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE categories SET name = ?, description = ?, sort_order = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Description, c.SortOrder, c.UpdatedAt.Format(timeLayout), c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetCategory(ctx context.Context, id string) (*Category, error) {
	var c Category
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, sort_order, created_at, updated_at
		FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.SortOrder, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	c.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	c.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &c, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, sort_order, created_at, updated_at
		FROM categories ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []*Category
	for rows.Next() {
		var c Category
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.SortOrder, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		c.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// DeleteCategory removes the category; prompts keep a dangling reference
// cleared to NULL first.
func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE prompts SET category_id = NULL WHERE category_id = ?`, id); err != nil {
		return fmt.Errorf("detach prompts: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
