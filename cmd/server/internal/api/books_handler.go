package api

import (
	"github.com/gin-gonic/gin"

	"github.com/promptdeck/promptdeck/cmd/server/internal/books"
	"github.com/promptdeck/promptdeck/cmd/server/internal/middleware"
)

// BooksHandler serves book tasks and stage execution.
type BooksHandler struct {
	svc *books.Service
}

func NewBooksHandler(svc *books.Service) *BooksHandler {
	return &BooksHandler{svc: svc}
}

func (h *BooksHandler) Register(r gin.IRoutes) {
	r.GET("/books", h.List)
	r.POST("/books", h.Create)
	r.GET("/books/:id", h.Get)
	r.GET("/books/:id/stages/:stage", h.StageResults)
	r.POST("/books/:id/stages/:stage/run", h.RunStage)
	r.POST("/books/:id/stages/:stage/retry", h.RetryStage)
}

func (h *BooksHandler) List(c *gin.Context) {
	out, err := h.svc.ListBooks(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *BooksHandler) Create(c *gin.Context) {
	var in struct {
		GroupID string `json:"group_id" binding:"required"`
		Title   string `json:"title"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, err)
		return
	}
	out, err := h.svc.CreateBook(c.Request.Context(), middleware.ActorFrom(c), in.GroupID, in.Title)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, out)
}

func (h *BooksHandler) Get(c *gin.Context) {
	book, results, err := h.svc.GetBook(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"book": book, "stage_results": results})
}

func (h *BooksHandler) StageResults(c *gin.Context) {
	out, err := h.svc.StageResults(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), c.Param("stage"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

type runStageRequest struct {
	Params map[string]string `json:"params"`
}

func (h *BooksHandler) RunStage(c *gin.Context) {
	var in runStageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			BadRequest(c, err)
			return
		}
	}
	out, err := h.svc.RunStage(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), c.Param("stage"), in.Params)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}

func (h *BooksHandler) RetryStage(c *gin.Context) {
	var in runStageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			BadRequest(c, err)
			return
		}
	}
	out, err := h.svc.RetryStage(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), c.Param("stage"), in.Params)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, out)
}
