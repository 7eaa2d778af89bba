package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promptdeck/promptdeck/cmd/server/internal/access"
	"github.com/promptdeck/promptdeck/cmd/server/internal/announcements"
	"github.com/promptdeck/promptdeck/cmd/server/internal/audit"
	"github.com/promptdeck/promptdeck/cmd/server/internal/books"
	"github.com/promptdeck/promptdeck/cmd/server/internal/config"
	"github.com/promptdeck/promptdeck/cmd/server/internal/groups"
	"github.com/promptdeck/promptdeck/cmd/server/internal/middleware"
	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
	"github.com/promptdeck/promptdeck/cmd/server/internal/reports"
	"github.com/promptdeck/promptdeck/cmd/server/internal/users"
)

// Deps bundles everything the router serves.
type Deps struct {
	Config        *config.Config
	Users         *users.Manager
	Prompts       *prompts.Service
	Access        *access.Service
	Groups        *groups.Service
	Books         *books.Service
	Announcements *announcements.Service
	Reports       *reports.Service
	Audit         *audit.Sink
}

// NewRouter builds the gin engine with the full middleware chain and all
// routes mounted under /api/v1.
func NewRouter(d Deps) *gin.Engine {
	if d.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(d.Config.Security.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	promptsHandler := NewPromptsHandler(d.Prompts, d.Audit)
	accessHandler := NewAccessHandler(d.Access, d.Audit)
	groupsHandler := NewGroupsHandler(d.Groups)
	booksHandler := NewBooksHandler(d.Books)
	announcementsHandler := NewAnnouncementsHandler(d.Announcements)
	reportsHandler := NewReportsHandler(d.Reports)
	logsHandler := NewLogsHandler(d.Audit)
	usersHandler := NewUsersHandler(d.Users, d.Audit)

	v1 := r.Group("/api/v1")
	usersHandler.RegisterPublic(v1)

	authed := v1.Group("")
	authed.Use(middleware.Auth(d.Users))
	authed.Use(middleware.AuditTrail(d.Audit))
	usersHandler.Register(authed)
	promptsHandler.Register(authed)
	accessHandler.Register(authed)
	groupsHandler.Register(authed)
	booksHandler.Register(authed)
	announcementsHandler.Register(authed)
	reportsHandler.Register(authed)

	admin := authed.Group("")
	admin.Use(middleware.RequireAdmin())
	promptsHandler.RegisterAdmin(admin)
	announcementsHandler.RegisterAdmin(admin)
	reportsHandler.RegisterAdmin(admin)
	logsHandler.RegisterAdmin(admin)

	return r
}
