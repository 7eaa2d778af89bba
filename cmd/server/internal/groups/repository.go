package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

const timeLayout = time.RFC3339

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the group and its items in one transaction.
func (r *Repository) Create(ctx context.Context, g *PromptGroup) error {
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO prompt_groups (id, author_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.AuthorID, g.Name, g.Description,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	if err := insertItems(ctx, tx, g); err != nil {
		return err
	}
	return tx.Commit()
}

// Update rewrites the group's fields and items wholesale.
func (r *Repository) Update(ctx context.Context, g *PromptGroup) error {
	g.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE prompt_groups SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		g.Name, g.Description, g.UpdatedAt.Format(timeLayout), g.ID)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM prompt_group_items WHERE group_id = ?`, g.ID); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	if err := insertItems(ctx, tx, g); err != nil {
		return err
	}
	return tx.Commit()
}

func insertItems(ctx context.Context, tx *sql.Tx, g *PromptGroup) error {
	for i := range g.Items {
		it := &g.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.GroupID = g.ID
		if it.SortOrder == 0 {
			it.SortOrder = i
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prompt_group_items (id, group_id, prompt_id, stage_type, is_required, sort_order)
			VALUES (?, ?, ?, ?, ?, ?)`,
			it.ID, g.ID, it.PromptID, it.StageType, it.IsRequired, it.SortOrder)
		if err != nil {
			return fmt.Errorf("insert group item: %w", err)
		}
	}
	return nil
}

// GetByID loads one group with its items in sort order.
func (r *Repository) GetByID(ctx context.Context, id string) (*PromptGroup, error) {
	var g PromptGroup
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, author_id, name, description, created_at, updated_at
		FROM prompt_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.AuthorID, &g.Name, &g.Description, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	g.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	g.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, prompt_id, stage_type, is_required, sort_order
		FROM prompt_group_items WHERE group_id = ? ORDER BY sort_order`, id)
	if err != nil {
		return nil, fmt.Errorf("query group items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.GroupID, &it.PromptID, &it.StageType, &it.IsRequired, &it.SortOrder); err != nil {
			return nil, fmt.Errorf("scan group item: %w", err)
		}
		g.Items = append(g.Items, it)
	}
	return &g, rows.Err()
}

// GetByName returns the group with the given name, if any.
func (r *Repository) GetByName(ctx context.Context, name string) (*PromptGroup, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM prompt_groups WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group by name: %w", err)
	}
	return r.GetByID(ctx, id)
}

// List returns all groups without items, newest first.
func (r *Repository) List(ctx context.Context) ([]*PromptGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, author_id, name, description, created_at, updated_at
		FROM prompt_groups ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var out []*PromptGroup
	for rows.Next() {
		var g PromptGroup
		var createdAt, updatedAt string
		if err := rows.Scan(&g.ID, &g.AuthorID, &g.Name, &g.Description, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		g.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		out = append(out, &g)
	}
	return out, rows.Err()
}

// Delete removes the group and its items.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM prompt_group_items WHERE group_id = ?`, id); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM prompt_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
