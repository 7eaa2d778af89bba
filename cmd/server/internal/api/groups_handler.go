package api

import (
	"github.com/gin-gonic/gin"

	"github.com/promptdeck/promptdeck/cmd/server/internal/groups"
	"github.com/promptdeck/promptdeck/cmd/server/internal/middleware"
)

// GroupsHandler serves prompt group endpoints.
type GroupsHandler struct {
	svc *groups.Service
}

func NewGroupsHandler(svc *groups.Service) *GroupsHandler {
	return &GroupsHandler{svc: svc}
}

func (h *GroupsHandler) Register(r gin.IRoutes) {
	r.GET("/prompt-groups", h.List)
	r.POST("/prompt-groups", h.Create)
	r.GET("/prompt-groups/:id", h.Get)
	r.PATCH("/prompt-groups/:id", h.Update)
	r.DELETE("/prompt-groups/:id", h.Delete)
}

func (h *GroupsHandler) List(c *gin.Context) {
	out, err := h.svc.List(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *GroupsHandler) Create(c *gin.Context) {
	var in groups.GroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	out, err := h.svc.Create(c.Request.Context(), middleware.ActorFrom(c), &in)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, out)
}

func (h *GroupsHandler) Get(c *gin.Context) {
	out, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *GroupsHandler) Update(c *gin.Context) {
	var in groups.GroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	out, err := h.svc.Update(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), &in)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *GroupsHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	Success(c, nil)
}
