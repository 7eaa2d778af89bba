// Package audit records business and API events to an append-only log table.
// Writes happen on a background goroutine and never fail the operation that
// triggered them.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptdeck/promptdeck/pkg/logger"
)

// Log types.
const (
	TypeAuth   = "auth"
	TypeAction = "action"
	TypeAPI    = "api"
	TypeError  = "error"
)

// Log levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Entry is one audit record. Detail holds any nested object, serialized to
// text on write.
type Entry struct {
	ID         string    `json:"id"`
	LogType    string    `json:"log_type"`
	Level      string    `json:"level"`
	Action     string    `json:"action"`
	UserID     string    `json:"user_id,omitempty"`
	IP         string    `json:"ip,omitempty"`
	Path       string    `json:"path,omitempty"`
	Method     string    `json:"method,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Logger is the write side of the audit sink.
type Logger interface {
	Record(e Entry)
	AuthEvent(userID, action, ip string, detail any)
	UserAction(userID, action string, detail any)
	APICall(userID, ip, path, method string, statusCode int, duration time.Duration)
	Error(userID, action string, err error)
}

const timeLayout = time.RFC3339

// Sink writes entries to the logs table asynchronously. The channel is
// bounded; when it is full, entries are dropped rather than blocking the
// caller.
type Sink struct {
	db      *sql.DB
	ch      chan Entry
	done    chan struct{}
	closing sync.Once
}

func NewSink(db *sql.DB) *Sink {
	s := &Sink{
		db:   db,
		ch:   make(chan Entry, 1024),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Sink) loop() {
	defer close(s.done)
	for e := range s.ch {
		s.write(e)
	}
}

func (s *Sink) write(e Entry) {
	_, err := s.db.Exec(`
		INSERT INTO logs (id, log_type, level, action, user_id, ip, path, method, status_code, duration_ms, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.LogType, e.Level, e.Action, e.UserID, e.IP, e.Path, e.Method,
		e.StatusCode, e.DurationMS, e.Detail, e.CreatedAt.Format(timeLayout))
	if err != nil {
		// A failed audit write must never surface to the caller.
		logger.L().Warn("audit write failed", slog.String("action", e.Action), slog.Any("error", err))
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (s *Sink) Close() {
	s.closing.Do(func() {
		close(s.ch)
		<-s.done
	})
}

// Record queues one entry. Drops silently when the queue is full.
func (s *Sink) Record(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	select {
	case s.ch <- e:
	default:
	}
}

func serializeDetail(detail any) string {
	if detail == nil {
		return ""
	}
	if s, ok := detail.(string); ok {
		return s
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Sprintf("%v", detail)
	}
	return string(raw)
}

// AuthEvent records a login or token event.
func (s *Sink) AuthEvent(userID, action, ip string, detail any) {
	s.Record(Entry{
		LogType: TypeAuth,
		Level:   LevelInfo,
		Action:  action,
		UserID:  userID,
		IP:      ip,
		Detail:  serializeDetail(detail),
	})
}

// UserAction records a business operation performed by a user.
func (s *Sink) UserAction(userID, action string, detail any) {
	s.Record(Entry{
		LogType: TypeAction,
		Level:   LevelInfo,
		Action:  action,
		UserID:  userID,
		Detail:  serializeDetail(detail),
	})
}

// APICall records one handled HTTP request.
func (s *Sink) APICall(userID, ip, path, method string, statusCode int, duration time.Duration) {
	level := LevelInfo
	switch {
	case statusCode >= 500:
		level = LevelError
	case statusCode >= 400:
		level = LevelWarn
	}
	s.Record(Entry{
		LogType:    TypeAPI,
		Level:      level,
		Action:     method + " " + path,
		UserID:     userID,
		IP:         ip,
		Path:       path,
		Method:     method,
		StatusCode: statusCode,
		DurationMS: duration.Milliseconds(),
	})
}

// Error records a failure tied to a user action.
func (s *Sink) Error(userID, action string, err error) {
	s.Record(Entry{
		LogType: TypeError,
		Level:   LevelError,
		Action:  action,
		UserID:  userID,
		Detail:  err.Error(),
	})
}

// ListFilter narrows and pages the admin log listing.
type ListFilter struct {
	LogType  string
	Level    string
	UserID   string
	Page     int
	PageSize int
}

// List returns entries newest first plus the unpaged total.
func (s *Sink) List(ctx context.Context, f ListFilter) ([]*Entry, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 200 {
		f.PageSize = 50
	}

	where := []string{"1=1"}
	var args []any
	if f.LogType != "" {
		where = append(where, "log_type = ?")
		args = append(args, f.LogType)
	}
	if f.Level != "" {
		where = append(where, "level = ?")
		args = append(args, f.Level)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, log_type, level, action, user_id, ip, path, method, status_code, duration_ms, detail, created_at
		FROM logs WHERE %s ORDER BY created_at DESC LIMIT ? OFFSET ?`, cond)
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.LogType, &e.Level, &e.Action, &e.UserID, &e.IP,
			&e.Path, &e.Method, &e.StatusCode, &e.DurationMS, &e.Detail, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan log: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, &e)
	}
	return out, total, rows.Err()
}

// Statistics summarizes the log table for the admin dashboard.
type Statistics struct {
	Total   int            `json:"total"`
	ByType  map[string]int `json:"by_type"`
	ByLevel map[string]int `json:"by_level"`
}

func (s *Sink) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{ByType: map[string]int{}, ByLevel: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count logs: %w", err)
	}
	if err := s.countBy(ctx, "log_type", stats.ByType); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "level", stats.ByLevel); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Sink) countBy(ctx context.Context, column string, into map[string]int) error {
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM logs GROUP BY %s`, column, column)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("group logs by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan log group: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}
