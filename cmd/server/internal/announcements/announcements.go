// Package announcements stores typed broadcast messages shown to users.
package announcements

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/promptdeck/promptdeck/cmd/server/internal/apperrors"
	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
)

// Announcement kinds.
const (
	KindSystem      = "system"
	KindActivity    = "activity"
	KindMaintenance = "maintenance"
	KindFeature     = "feature"
	KindNotice      = "notice"
)

const timeLayout = time.RFC3339

var ErrNotFound = errors.New("not found")

// Announcement is one broadcast message. PublishAt/ExpireAt bound the window
// in which it is considered active.
type Announcement struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content,omitempty"`
	Kind      string     `json:"kind"`
	IsActive  bool       `json:"is_active"`
	PublishAt *time.Time `json:"publish_at,omitempty"`
	ExpireAt  *time.Time `json:"expire_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CurrentlyActive reports whether the announcement should be shown now.
func (a *Announcement) CurrentlyActive(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.PublishAt != nil && now.Before(*a.PublishAt) {
		return false
	}
	if a.ExpireAt != nil && now.After(*a.ExpireAt) {
		return false
	}
	return true
}

func validKind(kind string) bool {
	switch kind {
	case KindSystem, KindActivity, KindMaintenance, KindFeature, KindNotice:
		return true
	}
	return false
}

// Input is the write payload for an announcement.
type Input struct {
	Title     string     `json:"title" binding:"required"`
	Content   string     `json:"content"`
	Kind      string     `json:"kind"`
	IsActive  *bool      `json:"is_active"`
	PublishAt *time.Time `json:"publish_at"`
	ExpireAt  *time.Time `json:"expire_at"`
}

// Service is announcement CRUD. Writes are admin only.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func buildFromInput(in *Input) (*Announcement, error) {
	if in.Title == "" {
		return nil, apperrors.Validation("title is required", nil)
	}
	kind := in.Kind
	if kind == "" {
		kind = KindNotice
	}
	if !validKind(kind) {
		return nil, apperrors.Validation(fmt.Sprintf("unknown announcement kind %q", kind), nil)
	}
	return &Announcement{
		Title:     in.Title,
		Content:   in.Content,
		Kind:      kind,
		IsActive:  in.IsActive == nil || *in.IsActive,
		PublishAt: in.PublishAt,
		ExpireAt:  in.ExpireAt,
	}, nil
}

func (s *Service) Create(ctx context.Context, actor prompts.Actor, in *Input) (*Announcement, error) {
	if !actor.IsAdmin {
		return nil, apperrors.Forbidden("admin only")
	}
	a, err := buildFromInput(in)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO announcements (id, title, content, kind, is_active, publish_at, expire_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Content, a.Kind, a.IsActive,
		timePtr(a.PublishAt), timePtr(a.ExpireAt),
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "create announcement", err)
	}
	return a, nil
}

func (s *Service) Update(ctx context.Context, actor prompts.Actor, id string, in *Input) (*Announcement, error) {
	if !actor.IsAdmin {
		return nil, apperrors.Forbidden("admin only")
	}
	a, err := buildFromInput(in)
	if err != nil {
		return nil, err
	}
	a.ID = id
	a.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE announcements SET title = ?, content = ?, kind = ?, is_active = ?, publish_at = ?, expire_at = ?, updated_at = ?
		WHERE id = ?`,
		a.Title, a.Content, a.Kind, a.IsActive,
		timePtr(a.PublishAt), timePtr(a.ExpireAt),
		a.UpdatedAt.Format(timeLayout), id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "update announcement", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperrors.NotFound("announcement")
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, actor prompts.Actor, id string) error {
	if !actor.IsAdmin {
		return apperrors.Forbidden("admin only")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "delete announcement", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("announcement")
	}
	return nil
}

// List returns announcements newest first. With activeOnly, only those inside
// their active window are returned; admins typically list everything.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*Announcement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, kind, is_active, publish_at, expire_at, created_at, updated_at
		FROM announcements ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "query announcements", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var out []*Announcement
	for rows.Next() {
		var a Announcement
		var isActive bool
		var publishAt, expireAt sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.Kind, &isActive,
			&publishAt, &expireAt, &createdAt, &updatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scan announcement", err)
		}
		a.IsActive = isActive
		a.PublishAt = parseNullTime(publishAt)
		a.ExpireAt = parseNullTime(expireAt)
		a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		a.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		if activeOnly && !a.CurrentlyActive(now) {
			continue
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
