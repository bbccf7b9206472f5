package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/collabroom/collabroom-server/internal/auth"
	"github.com/collabroom/collabroom-server/internal/config"
	"github.com/collabroom/collabroom-server/internal/core"
	"github.com/collabroom/collabroom-server/internal/service/chat"
	"github.com/collabroom/collabroom-server/internal/store"
)

// NewServer builds the HTTP server: REST API, health check, and the
// WebSocket gateway.
func NewServer(hub *core.Hub, router *chat.Service, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	apiHandlers := NewAPIHandlers(authService, logger)
	projectHandlers := NewProjectHandlers(st, cfg.Assistant.Name, logger)

	api := r.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("", AuthMiddleware(authService, logger))
	authed.POST("/projects", projectHandlers.CreateProject)
	authed.GET("/projects", projectHandlers.ListProjects)
	authed.POST("/projects/:id/members", projectHandlers.AddMember)
	authed.GET("/projects/:id/messages", projectHandlers.ListMessages)

	wsHandler := NewWSHandler(hub, router, authService, st, cfg.MessageRateLimit, logger)
	r.GET("/ws", gin.WrapH(wsHandler))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
