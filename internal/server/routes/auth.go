package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lawdesk/internal/auth"
	"lawdesk/internal/models"
	"lawdesk/internal/ratelimit"
)

type AuthRoutes struct {
	server ServerInterface
}

func NewAuthRoutes(server ServerInterface) *AuthRoutes {
	return &AuthRoutes{server: server}
}

func (ar *AuthRoutes) RegisterRoutes(r *gin.Engine) {
	cfg := ar.server.GetConfig().Server
	limit := ar.server.GetRateLimiter().Middleware(ratelimit.ByClientIP("auth"), cfg.RateLimit, cfg.RateWindow)

	// OAuth routes
	r.GET("/auth/:provider", limit, ar.authHandler)
	r.GET("/auth/:provider/callback", limit, ar.authCallbackHandler)
	r.GET("/logout", ar.logoutHandler)
}

func (ar *AuthRoutes) authHandler(c *gin.Context) {
	auth.BeginAuth(c)
}

func (ar *AuthRoutes) authCallbackHandler(c *gin.Context) {
	gothUser, err := auth.CompleteAuth(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{
		Provider:   gothUser.Provider,
		ProviderID: gothUser.UserID,
		Email:      gothUser.Email,
		Name:       gothUser.Name,
		AvatarURL:  gothUser.AvatarURL,
	}
	if user.Name == "" {
		user.Name = gothUser.NickName
	}

	created, err := ar.server.GetDB().Users.Upsert(c.Request.Context(), user)
	if err != nil {
		ar.server.GetLogger().ErrorContext(c.Request.Context(), "failed to save user", "provider", user.Provider, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save user"})
		return
	}
	if created {
		ar.server.GetLogger().InfoContext(c.Request.Context(), "user signed up", "user_id", user.ID, "provider", user.Provider)
	}

	if err := auth.SignIn(c, user.ID, user.Email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save session"})
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, ar.server.GetConfig().Server.FrontendURL+"/home")
}

func (ar *AuthRoutes) logoutHandler(c *gin.Context) {
	if err := auth.SignOut(c); err != nil {
		_ = c.Error(err)
	}

	c.Redirect(http.StatusFound, ar.server.GetConfig().Server.FrontendURL+"/")
}
