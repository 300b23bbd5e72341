package server

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"lawdesk/internal/auth"
	"lawdesk/internal/server/routes"
)

func (s *Server) RegisterRoutes() http.Handler {
	if s.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// Set up sessions; gothic shares the same cookie store.
	store := auth.NewSessionStore(s.config.Server.SessionSecret, s.config.IsProduction())
	r.Use(sessions.Sessions(auth.SessionName, store))

	providers, err := auth.InitGothProviders(s.config.OAuth, s.config.Server.BaseURL, store)
	switch {
	case errors.Is(err, auth.ErrNoProviders):
		s.logger.Warn("no OAuth providers configured, sign-in is disabled")
	case err != nil:
		s.logger.Error("failed to register OAuth providers", "error", err)
	default:
		s.logger.Info("OAuth providers registered", "providers", providers)
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{s.config.Server.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
	}))

	r.GET("/health", s.healthHandler)

	routes.NewAuthRoutes(s).RegisterRoutes(r)
	routes.NewUserRoutes(s).RegisterRoutes(r)
	routes.NewTeamRoutes(s).RegisterRoutes(r)
	routes.NewInvitationRoutes(s).RegisterRoutes(r)
	routes.NewResourceRoutes(s).RegisterRoutes(r)
	routes.NewBackupRoutes(s).RegisterRoutes(r)

	return r
}

func (s *Server) healthHandler(c *gin.Context) {
	health := s.sqlDB.Health()

	status := http.StatusOK
	if health["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}
