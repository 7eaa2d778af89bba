package books

import (
	"context"
	"database/sql"
	"encoding/json"
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

func (r *Repository) CreateBook(ctx context.Context, b *Book) error {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BookDraft
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO books (id, author_id, group_id, title, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.AuthorID, b.GroupID, b.Title, b.Status,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (r *Repository) GetBook(ctx context.Context, id string) (*Book, error) {
	var b Book
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, author_id, group_id, title, status, created_at, updated_at
		FROM books WHERE id = ?`, id).
		Scan(&b.ID, &b.AuthorID, &b.GroupID, &b.Title, &b.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	b.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	b.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &b, nil
}

func (r *Repository) ListBooks(ctx context.Context, authorID string) ([]*Book, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, author_id, group_id, title, status, created_at, updated_at
		FROM books WHERE author_id = ? ORDER BY created_at DESC`, authorID)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	var out []*Book
	for rows.Next() {
		var b Book
		var createdAt, updatedAt string
		if err := rows.Scan(&b.ID, &b.AuthorID, &b.GroupID, &b.Title, &b.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		b.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		b.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateBook(ctx context.Context, id, title, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE books SET title = ?, status = ?, updated_at = ? WHERE id = ?`,
		title, status, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveResult inserts or replaces the result row for (book, stage, unit).
func (r *Repository) SaveResult(ctx context.Context, res *StageResult) error {
	now := time.Now().UTC()
	res.UpdatedAt = now
	if res.ID == "" {
		res.ID = uuid.NewString()
		res.CreatedAt = now
	}
	params, err := json.Marshal(res.InputParams)
	if err != nil {
		return fmt.Errorf("marshal input params: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO book_stage_results
			(id, book_id, stage_type, unit_key, status, input_params, raw_output, parsed_output, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (book_id, stage_type, unit_key) DO UPDATE SET
			status = excluded.status,
			input_params = excluded.input_params,
			raw_output = excluded.raw_output,
			parsed_output = excluded.parsed_output,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		res.ID, res.BookID, res.StageType, res.UnitKey, res.Status,
		string(params), res.RawOutput, res.ParsedOutput, res.Error,
		res.CreatedAt.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save stage result: %w", err)
	}
	return nil
}

// ResultsForStage returns the unit rows for one stage of a book.
func (r *Repository) ResultsForStage(ctx context.Context, bookID, stageType string) ([]*StageResult, error) {
	return r.queryResults(ctx, `
		SELECT id, book_id, stage_type, unit_key, status, input_params, raw_output, parsed_output, error, created_at, updated_at
		FROM book_stage_results WHERE book_id = ? AND stage_type = ? ORDER BY unit_key`,
		bookID, stageType)
}

// ResultsForBook returns every result row of a book.
func (r *Repository) ResultsForBook(ctx context.Context, bookID string) ([]*StageResult, error) {
	return r.queryResults(ctx, `
		SELECT id, book_id, stage_type, unit_key, status, input_params, raw_output, parsed_output, error, created_at, updated_at
		FROM book_stage_results WHERE book_id = ? ORDER BY stage_type, unit_key`,
		bookID)
}

func (r *Repository) queryResults(ctx context.Context, query string, args ...any) ([]*StageResult, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()

	var out []*StageResult
	for rows.Next() {
		var res StageResult
		var params, createdAt, updatedAt string
		if err := rows.Scan(&res.ID, &res.BookID, &res.StageType, &res.UnitKey, &res.Status,
			&params, &res.RawOutput, &res.ParsedOutput, &res.Error, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		if params != "" && params != "null" {
			_ = json.Unmarshal([]byte(params), &res.InputParams)
		}
		res.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		res.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		out = append(out, &res)
	}
	return out, rows.Err()
}
