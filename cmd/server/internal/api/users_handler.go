package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/promptdeck/promptdeck/cmd/server/internal/apperrors"
	"github.com/promptdeck/promptdeck/cmd/server/internal/audit"
	"github.com/promptdeck/promptdeck/cmd/server/internal/middleware"
	"github.com/promptdeck/promptdeck/cmd/server/internal/users"
)

// UsersHandler serves login and the current-user endpoint.
type UsersHandler struct {
	manager *users.Manager
	audit   audit.Logger
}

func NewUsersHandler(manager *users.Manager, sink audit.Logger) *UsersHandler {
	return &UsersHandler{manager: manager, audit: sink}
}

// RegisterPublic adds the unauthenticated login route.
func (h *UsersHandler) RegisterPublic(r gin.IRoutes) {
	r.POST("/login", h.Login)
}

func (h *UsersHandler) Register(r gin.IRoutes) {
	r.GET("/me", h.Me)
}

func (h *UsersHandler) Login(c *gin.Context) {
	var in struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}

	u, err := h.manager.Authenticate(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.audit.AuthEvent("", "login_failed", c.ClientIP(), gin.H{"username": in.Username})
			Error(c, apperrors.Unauthorized("invalid username or password"))
			return
		}
		Error(c, apperrors.Wrap(apperrors.KindInternal, "authenticate", err))
		return
	}

	token, err := h.manager.GenerateToken(u)
	if err != nil {
		Error(c, apperrors.Wrap(apperrors.KindInternal, "issue token", err))
		return
	}
	h.audit.AuthEvent(u.ID, "login", c.ClientIP(), nil)
	Success(c, gin.H{"token": token, "user": u})
}

func (h *UsersHandler) Me(c *gin.Context) {
	u, err := h.manager.GetByID(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			Error(c, apperrors.NotFound("user"))
			return
		}
		Error(c, apperrors.Wrap(apperrors.KindInternal, "load user", err))
		return
	}
	Success(c, u)
}
