// Package users handles accounts, password checks, and JWT issuance.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/promptdeck/promptdeck/pkg/logger"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserExists         = errors.New("username already taken")
)

const timeLayout = time.RFC3339

// User is an account. The password hash never leaves this package.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	passwordHash string
}

// Claims is the JWT payload.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Manager authenticates users and issues HS256 tokens.
type Manager struct {
	db       *sql.DB
	secret   []byte
	tokenTTL time.Duration
}

func NewManager(db *sql.DB, secret string, tokenTTL time.Duration) *Manager {
	if tokenTTL == 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Manager{db: db, secret: []byte(secret), tokenTTL: tokenTTL}
}

// Create adds a new account with a bcrypt-hashed password.
func (m *Manager) Create(ctx context.Context, username, password string, isAdmin bool) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	u := &User{
		ID:        uuid.NewString(),
		Username:  username,
		IsAdmin:   isAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, username, string(hash), isAdmin, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		var count int
		if qerr := m.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&count); qerr == nil && count > 0 {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// EnsureDefaultAdmin creates the admin account on first boot.
func (m *Manager) EnsureDefaultAdmin(ctx context.Context, password string) error {
	var count int
	if err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = 'admin'`).Scan(&count); err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := m.Create(ctx, "admin", password, true); err != nil {
		return err
	}
	logger.L().Info("created default admin user", slog.String("username", "admin"))
	return nil
}

// Authenticate checks the username/password pair.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := m.getBy(ctx, "username", username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// GetByID loads one user.
func (m *Manager) GetByID(ctx context.Context, id string) (*User, error) {
	return m.getBy(ctx, "id", id)
}

// GetByUsername loads one user by name.
func (m *Manager) GetByUsername(ctx context.Context, username string) (*User, error) {
	return m.getBy(ctx, "username", username)
}

func (m *Manager) getBy(ctx context.Context, column, value string) (*User, error) {
	query := fmt.Sprintf(`
		SELECT id, username, password_hash, is_admin, created_at, updated_at
		FROM users WHERE %s = ?`, column)
	var u User
	var createdAt, updatedAt string
	err := m.db.QueryRowContext(ctx, query, value).
		Scan(&u.ID, &u.Username, &u.passwordHash, &u.IsAdmin, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	u.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &u, nil
}

// GenerateToken issues an HS256 JWT for the user.
func (m *Manager) GenerateToken(u *User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates the token and returns its claims.
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
