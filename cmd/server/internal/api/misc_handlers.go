package api

import (
	"github.com/gin-gonic/gin"

	"github.com/promptdeck/promptdeck/cmd/server/internal/announcements"
	"github.com/promptdeck/promptdeck/cmd/server/internal/audit"
	"github.com/promptdeck/promptdeck/cmd/server/internal/middleware"
	"github.com/promptdeck/promptdeck/cmd/server/internal/reports"
)

// AnnouncementsHandler serves broadcast messages.
type AnnouncementsHandler struct {
	svc *announcements.Service
}

func NewAnnouncementsHandler(svc *announcements.Service) *AnnouncementsHandler {
	return &AnnouncementsHandler{svc: svc}
}

func (h *AnnouncementsHandler) Register(r gin.IRoutes) {
	r.GET("/announcements", h.List)
}

func (h *AnnouncementsHandler) RegisterAdmin(r gin.IRoutes) {
	r.POST("/announcements", h.Create)
	r.PATCH("/announcements/:id", h.Update)
	r.DELETE("/announcements/:id", h.Delete)
}

// List shows everyone the currently active announcements; admins may pass
// all=true to include inactive ones.
func (h *AnnouncementsHandler) List(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	activeOnly := !(actor.IsAdmin && c.Query("all") == "true")
	out, err := h.svc.List(c.Request.Context(), activeOnly)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *AnnouncementsHandler) Create(c *gin.Context) {
	var in announcements.Input
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

func (h *AnnouncementsHandler) Update(c *gin.Context) {
	var in announcements.Input
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

func (h *AnnouncementsHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	Success(c, nil)
}

// ReportsHandler serves prompt moderation reports.
type ReportsHandler struct {
	svc *reports.Service
}

func NewReportsHandler(svc *reports.Service) *ReportsHandler {
	return &ReportsHandler{svc: svc}
}

func (h *ReportsHandler) Register(r gin.IRoutes) {
	r.POST("/prompts/reports/:promptId", h.File)
}

func (h *ReportsHandler) RegisterAdmin(r gin.IRoutes) {
	r.GET("/prompt-reports", h.List)
}

func (h *ReportsHandler) File(c *gin.Context) {
	var in struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	out, err := h.svc.File(c.Request.Context(), middleware.ActorFrom(c), c.Param("promptId"), in.Reason)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, out)
}

func (h *ReportsHandler) List(c *gin.Context) {
	out, err := h.svc.List(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

// LogsHandler serves the admin read side of the audit log.
type LogsHandler struct {
	sink *audit.Sink
}

func NewLogsHandler(sink *audit.Sink) *LogsHandler {
	return &LogsHandler{sink: sink}
}

func (h *LogsHandler) RegisterAdmin(r gin.IRoutes) {
	r.GET("/logs", h.List)
	r.GET("/logs/statistics", h.Statistics)
}

func (h *LogsHandler) List(c *gin.Context) {
	p := ParsePagination(c)
	entries, total, err := h.sink.List(c.Request.Context(), audit.ListFilter{
		LogType:  c.Query("log_type"),
		Level:    c.Query("level"),
		UserID:   c.Query("user_id"),
		Page:     p.Page,
		PageSize: p.PageSize,
	})
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, Paginated(entries, p, total))
}

func (h *LogsHandler) Statistics(c *gin.Context) {
	out, err := h.sink.Statistics(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}
