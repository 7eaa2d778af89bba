package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdeck/promptdeck/cmd/server/internal/users"
	"github.com/promptdeck/promptdeck/pkg/logger"
)

type stubParser struct {
	claims *users.Claims
}

func (s *stubParser) ParseToken(token string) (*users.Claims, error) {
	if token == "good" && s.claims != nil {
		return s.claims, nil
	}
	return nil, users.ErrInvalidToken
}

func setupRouter(parser TokenParser) *gin.Engine {
	logger.Init(logger.Config{Level: "error", Environment: "test"})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Auth(parser), func(c *gin.Context) {
		actor := ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID, "admin": actor.IsAdmin})
	})
	r.GET("/admin", Auth(parser), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

// assertErrorEnvelope checks that a guard rejection carries the same shape as
// handler errors: success/code/message plus data{error,path,method} and a
// timestamp.
func assertErrorEnvelope(t *testing.T, body []byte, code int, method, path string) {
	t.Helper()
	var resp struct {
		Success bool   `json:"success"`
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			Error  string `json:"error"`
			Path   string `json:"path"`
			Method string `json:"method"`
		} `json:"data"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, code, resp.Code)
	assert.NotEmpty(t, resp.Message)
	assert.Equal(t, resp.Message, resp.Data.Error)
	assert.Equal(t, method, resp.Data.Method)
	assert.Equal(t, path, resp.Data.Path)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestAuth(t *testing.T) {
	parser := &stubParser{claims: &users.Claims{UserID: "u-1", Username: "alice", IsAdmin: false}}
	r := setupRouter(parser)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"bad token", "Bearer bad", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want != http.StatusOK {
				assertErrorEnvelope(t, w.Body.Bytes(), tt.want, http.MethodGet, "/me")
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	parser := &stubParser{claims: &users.Claims{UserID: "u-1", Username: "alice", IsAdmin: false}}
	r := setupRouter(parser)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assertErrorEnvelope(t, w.Body.Bytes(), http.StatusForbidden, http.MethodGet, "/admin")

	parser.claims.IsAdmin = true
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	logger.Init(logger.Config{Level: "error", Environment: "test"})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/ping", func(c *gin.Context) {
		rid, ok := c.Get("request_id")
		require.True(t, ok)
		assert.NotEmpty(t, rid)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
