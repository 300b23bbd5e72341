// Package auth signs actors in through goth OAuth providers and keeps the
// signed-in user id in a gin cookie session.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/github"
	"github.com/markbates/goth/providers/google"

	"lawdesk/internal/config"
)

const (
	SessionName = "lawdesk-session"

	userIDKey = "user_id"
	emailKey  = "email"
)

var ErrNoProviders = errors.New("no OAuth providers configured")

// NewSessionStore builds the cookie store shared by gin sessions and gothic.
func NewSessionStore(secret string, secure bool) cookie.Store {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

// InitGothProviders registers every provider that has credentials and points
// gothic at store. It returns the registered provider names.
func InitGothProviders(cfg config.OAuthConfig, baseURL string, store cookie.Store) ([]string, error) {
	gothic.Store = store

	callback := func(provider string) string {
		return strings.TrimRight(baseURL, "/") + "/auth/" + provider + "/callback"
	}

	var providers []goth.Provider
	if cfg.GoogleKey != "" {
		providers = append(providers, google.New(cfg.GoogleKey, cfg.GoogleSecret, callback("google"), "email", "profile"))
	}
	if cfg.GithubKey != "" {
		providers = append(providers, github.New(cfg.GithubKey, cfg.GithubSecret, callback("github"), "user:email"))
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	goth.UseProviders(providers...)

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return names, nil
}

// CurrentUserID returns the signed-in user id from the session.
func CurrentUserID(c *gin.Context) (int, bool) {
	id, ok := sessions.Default(c).Get(userIDKey).(int)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

func SignIn(c *gin.Context, userID int, email string) error {
	session := sessions.Default(c)
	session.Set(userIDKey, userID)
	session.Set(emailKey, email)
	return session.Save()
}

func SignOut(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	return session.Save()
}

// providerRequest rewrites the request the way gothic expects: the provider
// in the query string and a canonical path.
func providerRequest(c *gin.Context, suffix string) *http.Request {
	provider := c.Param("provider")

	req := c.Request.Clone(c.Request.Context())
	req.URL.Path = "/auth/" + provider + suffix

	q := req.URL.Query()
	q.Set("provider", provider)
	req.URL.RawQuery = q.Encode()
	return req
}

// BeginAuth redirects to the provider named in the :provider param.
func BeginAuth(c *gin.Context) {
	gothic.BeginAuthHandler(c.Writer, providerRequest(c, ""))
}

// CompleteAuth finishes the provider callback and returns the provider user.
func CompleteAuth(c *gin.Context) (goth.User, error) {
	return gothic.CompleteUserAuth(c.Writer, providerRequest(c, "/callback"))
}
