package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lawdesk/internal/auth"
	"lawdesk/internal/models"
	"lawdesk/internal/permission"
	"lawdesk/internal/store"
)

type Middleware struct {
	server ServerInterface
}

func NewMiddleware(server ServerInterface) *Middleware {
	return &Middleware{server: server}
}

func (m *Middleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		user, err := m.server.GetDirectory().User(c.Request.Context(), userID)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				m.server.GetLogger().ErrorContext(c.Request.Context(), "failed to load session user", "user_id", userID, "error", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found or database error"})
			return
		}

		c.Set(userKey, user) // Store user object in context
		c.Next()
	}
}

// SoloMiddleware scopes the request to the user's own namespace, where the
// user acts as owner.
func (m *Middleware) SoloMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.enter(c, store.Solo(currentUser(c).ID))
	}
}

// TeamMiddleware checks that the user belongs to the team named by :slug and
// scopes the request to the team namespace.
func (m *Middleware) TeamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		team, err := m.server.GetDirectory().TeamBySlug(c.Request.Context(), c.Param("slug"))
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Team not found"})
				return
			}
			m.server.GetLogger().ErrorContext(c.Request.Context(), "failed to load team", "slug", c.Param("slug"), "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load team"})
			return
		}

		c.Set(teamKey, team)
		m.enter(c, store.Team(user.ID, team.ID))
	}
}

func (m *Middleware) enter(c *gin.Context, scope store.Scope) {
	gate, err := permission.ForScope(c.Request.Context(), m.server.GetDirectory(), m.server.GetRoles(), scope)
	if err != nil {
		if errors.Is(err, permission.ErrNotMember) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied to team"})
			return
		}
		m.server.GetLogger().ErrorContext(c.Request.Context(), "failed to resolve role", "scope", scope.String(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve role"})
		return
	}

	c.Set(scopeKey, scope)
	permission.SetGate(c, gate)
	c.Next()
}
