package api

import (
	"github.com/gin-gonic/gin"

	"github.com/promptdeck/promptdeck/cmd/server/internal/access"
	"github.com/promptdeck/promptdeck/cmd/server/internal/audit"
	"github.com/promptdeck/promptdeck/cmd/server/internal/middleware"
)

// AccessHandler serves permission grants and the application workflow.
type AccessHandler struct {
	svc   *access.Service
	audit audit.Logger
}

func NewAccessHandler(svc *access.Service, sink audit.Logger) *AccessHandler {
	return &AccessHandler{svc: svc, audit: sink}
}

func (h *AccessHandler) Register(r gin.IRoutes) {
	r.GET("/prompts/:id/permissions", h.ListPermissions)
	r.POST("/prompts/:id/permissions", h.Grant)
	r.DELETE("/prompts/:id/permissions/:userId", h.Revoke)

	r.GET("/prompt-applications", h.ListApplications)
	r.POST("/prompt-applications", h.Apply)
	r.GET("/prompt-applications/mine", h.ListMine)
	r.POST("/prompt-applications/:id/review", h.Review)
}

func (h *AccessHandler) ListPermissions(c *gin.Context) {
	out, err := h.svc.ListPermissions(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *AccessHandler) Grant(c *gin.Context) {
	var in struct {
		UserID string `json:"user_id" binding:"required"`
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	actor := middleware.ActorFrom(c)
	out, err := h.svc.Grant(c.Request.Context(), actor, c.Param("id"), in.UserID, in.Action)
	if err != nil {
		Error(c, err)
		return
	}
	h.audit.UserAction(actor.ID, "grant_permission",
		gin.H{"prompt_id": c.Param("id"), "user_id": in.UserID, "action": in.Action})
	Created(c, out)
}

func (h *AccessHandler) Revoke(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	if err := h.svc.Revoke(c.Request.Context(), actor, c.Param("id"), c.Param("userId")); err != nil {
		Error(c, err)
		return
	}
	h.audit.UserAction(actor.ID, "revoke_permission",
		gin.H{"prompt_id": c.Param("id"), "user_id": c.Param("userId")})
	Success(c, nil)
}

// ListApplications lists applications filed against a prompt the caller owns.
func (h *AccessHandler) ListApplications(c *gin.Context) {
	promptID := c.Query("prompt_id")
	if promptID == "" {
		BadRequest(c, errMissingParam("prompt_id"))
		return
	}
	out, err := h.svc.ListApplications(c.Request.Context(), middleware.ActorFrom(c), promptID)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *AccessHandler) Apply(c *gin.Context) {
	var in struct {
		PromptID string `json:"prompt_id" binding:"required"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	out, err := h.svc.Apply(c.Request.Context(), middleware.ActorFrom(c), in.PromptID, in.Reason)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, out)
}

func (h *AccessHandler) ListMine(c *gin.Context) {
	out, err := h.svc.ListMine(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *AccessHandler) Review(c *gin.Context) {
	var in struct {
		Status     string `json:"status" binding:"required"`
		ReviewNote string `json:"review_note"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	actor := middleware.ActorFrom(c)
	out, err := h.svc.Review(c.Request.Context(), actor, c.Param("id"), in.Status, in.ReviewNote)
	if err != nil {
		Error(c, err)
		return
	}
	h.audit.UserAction(actor.ID, "review_application",
		gin.H{"application_id": c.Param("id"), "status": in.Status})
	Success(c, out)
}
