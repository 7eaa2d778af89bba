package api

import (
	"github.com/gin-gonic/gin"

	"github.com/promptdeck/promptdeck/cmd/server/internal/audit"
	"github.com/promptdeck/promptdeck/cmd/server/internal/middleware"
	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
)

// PromptsHandler serves prompt and category endpoints.
type PromptsHandler struct {
	svc   *prompts.Service
	audit audit.Logger
}

func NewPromptsHandler(svc *prompts.Service, sink audit.Logger) *PromptsHandler {
	return &PromptsHandler{svc: svc, audit: sink}
}

func (h *PromptsHandler) Register(r gin.IRoutes) {
	r.GET("/prompts", h.List)
	r.POST("/prompts", h.Create)
	r.GET("/prompts/:id", h.Get)
	r.PATCH("/prompts/:id", h.Update)
	r.DELETE("/prompts/:id", h.Delete)
	r.GET("/prompts/:id/config", h.GetConfig)
	r.POST("/prompts/:id/publish", h.Publish)
	r.POST("/prompts/:id/archive", h.Archive)
	r.POST("/prompts/:id/like", h.Like)
	r.POST("/prompts/:id/use", h.Use)

	r.GET("/categories", h.ListCategories)
	r.POST("/categories", h.CreateCategory)
	r.PATCH("/categories/:id", h.UpdateCategory)
	r.DELETE("/categories/:id", h.DeleteCategory)
}

// RegisterAdmin adds the moderation endpoints.
func (h *PromptsHandler) RegisterAdmin(r gin.IRoutes) {
	r.POST("/prompts/:id/ban", h.Ban)
	r.POST("/prompts/:id/unban", h.Unban)
}

func (h *PromptsHandler) List(c *gin.Context) {
	p := ParsePagination(c)
	filter := prompts.ListFilter{
		CategoryID: c.Query("category_id"),
		Status:     c.Query("status"),
		Search:     c.Query("search"),
		OrderByHot: c.Query("order") == "hot",
		Page:       p.Page,
		PageSize:   p.PageSize,
	}
	if c.Query("mine") == "true" {
		filter.AuthorID = c.GetString(middleware.ContextUserID)
	}
	out, total, err := h.svc.List(c.Request.Context(), middleware.ActorFrom(c), filter)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, Paginated(out, p, total))
}

func (h *PromptsHandler) Create(c *gin.Context) {
	var in prompts.PromptInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	actor := middleware.ActorFrom(c)
	out, err := h.svc.Create(c.Request.Context(), actor, &in)
	if err != nil {
		Error(c, err)
		return
	}
	h.audit.UserAction(actor.ID, "create_prompt", gin.H{"prompt_id": out.ID, "name": out.Name})
	Created(c, out)
}

func (h *PromptsHandler) Get(c *gin.Context) {
	out, err := h.svc.Get(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *PromptsHandler) GetConfig(c *gin.Context) {
	out, err := h.svc.GetConfig(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *PromptsHandler) Update(c *gin.Context) {
	var in prompts.PromptInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	actor := middleware.ActorFrom(c)
	out, err := h.svc.Update(c.Request.Context(), actor, c.Param("id"), &in)
	if err != nil {
		Error(c, err)
		return
	}
	h.audit.UserAction(actor.ID, "update_prompt", gin.H{"prompt_id": out.ID})
	Success(c, out)
}

func (h *PromptsHandler) Delete(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	if err := h.svc.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	h.audit.UserAction(actor.ID, "delete_prompt", gin.H{"prompt_id": c.Param("id")})
	Success(c, nil)
}

func (h *PromptsHandler) Publish(c *gin.Context) {
	if err := h.svc.Publish(c.Request.Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	Success(c, nil)
}

func (h *PromptsHandler) Archive(c *gin.Context) {
	if err := h.svc.Archive(c.Request.Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	Success(c, nil)
}

func (h *PromptsHandler) Like(c *gin.Context) {
	if err := h.svc.Like(c.Request.Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	Success(c, nil)
}

func (h *PromptsHandler) Use(c *gin.Context) {
	out, err := h.svc.Use(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *PromptsHandler) Ban(c *gin.Context) {
	var in struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	actor := middleware.ActorFrom(c)
	if err := h.svc.Ban(c.Request.Context(), actor, c.Param("id"), in.Reason); err != nil {
		Error(c, err)
		return
	}
	h.audit.UserAction(actor.ID, "ban_prompt", gin.H{"prompt_id": c.Param("id"), "reason": in.Reason})
	Success(c, nil)
}

func (h *PromptsHandler) Unban(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	if err := h.svc.Unban(c.Request.Context(), actor, c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	h.audit.UserAction(actor.ID, "unban_prompt", gin.H{"prompt_id": c.Param("id")})
	Success(c, nil)
}

func (h *PromptsHandler) ListCategories(c *gin.Context) {
	out, err := h.svc.ListCategories(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *PromptsHandler) CreateCategory(c *gin.Context) {
	var in prompts.Category
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	if err := h.svc.CreateCategory(c.Request.Context(), middleware.ActorFrom(c), &in); err != nil {
		Error(c, err)
		return
	}
	Created(c, in)
}

func (h *PromptsHandler) UpdateCategory(c *gin.Context) {
	var in prompts.Category
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	in.ID = c.Param("id")
	if err := h.svc.UpdateCategory(c.Request.Context(), middleware.ActorFrom(c), &in); err != nil {
		Error(c, err)
		return
	}
	Success(c, in)
}

func (h *PromptsHandler) DeleteCategory(c *gin.Context) {
	if err := h.svc.DeleteCategory(c.Request.Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	Success(c, nil)
}
