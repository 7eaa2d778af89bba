package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdeck/promptdeck/cmd/server/internal/access"
	"github.com/promptdeck/promptdeck/cmd/server/internal/announcements"
	"github.com/promptdeck/promptdeck/cmd/server/internal/audit"
	"github.com/promptdeck/promptdeck/cmd/server/internal/books"
	"github.com/promptdeck/promptdeck/cmd/server/internal/config"
	"github.com/promptdeck/promptdeck/cmd/server/internal/groups"
	"github.com/promptdeck/promptdeck/cmd/server/internal/llm"
	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
	"github.com/promptdeck/promptdeck/cmd/server/internal/reports"
	"github.com/promptdeck/promptdeck/cmd/server/internal/store"
	"github.com/promptdeck/promptdeck/cmd/server/internal/users"
	"github.com/promptdeck/promptdeck/pkg/logger"
)

type testServer struct {
	router *gin.Engine
	users  *users.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger.Init(logger.Config{Level: "error", Environment: "test"})
	gin.SetMode(gin.TestMode)

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Server.Env = "test"

	manager := users.NewManager(db, "test-secret-at-least-32-characters!!", time.Hour)
	sink := audit.NewSink(db)
	t.Cleanup(sink.Close)

	promptRepo := prompts.NewRepository(db)
	accessRepo := access.NewRepository(db)
	promptSvc := prompts.NewService(promptRepo, access.NewChecker(accessRepo))
	groupSvc := groups.NewService(groups.NewRepository(db), promptRepo)
	bookSvc := books.NewService(books.NewRepository(db), groupSvc, &llm.MockProvider{Responses: []string{"an idea"}}, 2)

	router := NewRouter(Deps{
		Config:        cfg,
		Users:         manager,
		Prompts:       promptSvc,
		Access:        access.NewService(accessRepo, promptRepo),
		Groups:        groupSvc,
		Books:         bookSvc,
		Announcements: announcements.NewService(db),
		Reports:       reports.NewService(db, promptRepo),
		Audit:         sink,
	})
	return &testServer{router: router, users: manager}
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(gin.H{"username": username, "password": password})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetricsUnauthenticated(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.users.Create(ctx, "alice", "password-123", false)
	require.NoError(t, err)

	token := s.login(t, "alice", "password-123")

	w := s.do(t, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Code    int  `json:"code"`
		Data    struct {
			Username string `json:"username"`
		} `json:"data"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "alice", resp.Data.Username)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestLogin_BadCredentials(t *testing.T) {
	s := newTestServer(t)
	_, err := s.users.Create(context.Background(), "alice", "password-123", false)
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/v1/login", "", gin.H{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Error  string `json:"error"`
			Path   string `json:"path"`
			Method string `json:"method"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "/api/v1/login", resp.Data.Path)
	assert.Equal(t, http.MethodPost, resp.Data.Method)
}

func TestPromptLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	_, err := s.users.Create(context.Background(), "alice", "password-123", false)
	require.NoError(t, err)
	token := s.login(t, "alice", "password-123")

	w := s.do(t, http.MethodPost, "/api/v1/prompts", token, gin.H{
		"name": "opening scene",
		"contents": []gin.H{
			{"role": "user", "text": "Write about {{topic}} in ${style}."},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data prompts.Prompt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created.Data.ID
	require.NotEmpty(t, id)
	require.Len(t, created.Data.Contents, 1)
	assert.Len(t, created.Data.Contents[0].Parameters, 2)

	w = s.do(t, http.MethodPost, "/api/v1/prompts/"+id+"/publish", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Listing returns the pagination block.
	w = s.do(t, http.MethodGet, "/api/v1/prompts?page=1&page_size=10", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Data struct {
			Data       []prompts.Prompt `json:"data"`
			Pagination struct {
				Page       int `json:"page"`
				PageSize   int `json:"page_size"`
				Total      int `json:"total"`
				TotalPages int `json:"total_pages"`
			} `json:"pagination"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Equal(t, 1, listed.Data.Pagination.Total)
	assert.Equal(t, 1, listed.Data.Pagination.TotalPages)
	require.Len(t, listed.Data.Data, 1)

	w = s.do(t, http.MethodDelete, "/api/v1/prompts/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/prompts/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGatedFlagConflictRejected(t *testing.T) {
	s := newTestServer(t)
	_, err := s.users.Create(context.Background(), "alice", "password-123", false)
	require.NoError(t, err)
	token := s.login(t, "alice", "password-123")

	w := s.do(t, http.MethodPost, "/api/v1/prompts", token, gin.H{
		"name":                "bad flags",
		"require_application": true,
		"contents":            []gin.H{{"role": "user", "text": "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	_, err := s.users.Create(context.Background(), "alice", "password-123", false)
	require.NoError(t, err)
	_, err = s.users.Create(context.Background(), "root", "admin-pass-123", true)
	require.NoError(t, err)

	userToken := s.login(t, "alice", "password-123")
	adminToken := s.login(t, "root", "admin-pass-123")

	w := s.do(t, http.MethodGet, "/api/v1/logs", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/logs", adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/logs/statistics", adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApplicationFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	_, err := s.users.Create(context.Background(), "alice", "password-123", false)
	require.NoError(t, err)
	_, err = s.users.Create(context.Background(), "bob", "password-456", false)
	require.NoError(t, err)
	aliceToken := s.login(t, "alice", "password-123")
	bobToken := s.login(t, "bob", "password-456")

	w := s.do(t, http.MethodPost, "/api/v1/prompts", aliceToken, gin.H{
		"name":                "gated",
		"is_content_public":   false,
		"require_application": true,
		"contents":            []gin.H{{"role": "user", "text": "secret sauce {{x}}"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data prompts.Prompt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	w = s.do(t, http.MethodPost, "/api/v1/prompts/"+created.Data.ID+"/publish", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/prompt-applications", bobToken, gin.H{
		"prompt_id": created.Data.ID,
		"reason":    "test",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var applied struct {
		Data access.Application `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &applied))

	w = s.do(t, http.MethodPost, "/api/v1/prompt-applications/"+applied.Data.ID+"/review", aliceToken, gin.H{
		"status":      "rejected",
		"review_note": "not relevant",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/prompt-applications/mine", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine struct {
		Data []access.Application `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	require.Len(t, mine.Data, 1)
	assert.Equal(t, access.ApplicationRejected, mine.Data[0].Status)
	assert.Equal(t, "not relevant", mine.Data[0].ReviewNote)
}
