package routes

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lawdesk/internal/backup"
	"lawdesk/internal/config"
	"lawdesk/internal/models"
	"lawdesk/internal/permission"
	"lawdesk/internal/ratelimit"
	"lawdesk/internal/storage"
	"lawdesk/internal/store"
)

// Directory resolves the signed-in user and the teams they belong to.
// *models.DB implements it.
type Directory interface {
	User(ctx context.Context, id int) (*models.User, error)
	TeamBySlug(ctx context.Context, slug string) (*models.Team, error)
	TeamsFor(ctx context.Context, userID int) ([]models.UserTeam, error)
	RoleFor(ctx context.Context, userID int, teamID uuid.UUID) (permission.Role, error)
}

// AttachmentStore keeps uploaded document files. *storage.S3Service
// implements it.
type AttachmentStore interface {
	UploadAttachment(ctx context.Context, namespace string, file multipart.File, header *multipart.FileHeader) (*storage.UploadResult, error)
	// GetObject returns the decrypted file after checking its integrity.
	GetObject(ctx context.Context, key string) (*storage.DownloadResult, error)
	DeleteObject(ctx context.Context, key string) error
}

type ServerInterface interface {
	GetDB() *models.DB
	GetDirectory() Directory
	GetStore() *store.Store
	GetBackup() *backup.Service
	// GetAttachments is nil when object storage is not configured.
	GetAttachments() AttachmentStore
	GetRateLimiter() *ratelimit.RateLimiter
	GetRoles() permission.Table
	GetConfig() *config.Config
	GetLogger() *slog.Logger
}

// Keys of values the middleware stores on the gin context.
const (
	userKey  = "user"
	teamKey  = "team"
	scopeKey = "scope"
)

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(userKey).(*models.User)
}

func currentScope(c *gin.Context) store.Scope {
	return c.MustGet(scopeKey).(store.Scope)
}

func currentGate(c *gin.Context) *permission.Gate {
	g, _ := permission.GateFrom(c)
	return g
}

// respondError maps domain errors onto HTTP statuses. Anything unexpected is
// logged and reported as a 500 with fallback as the message.
func respondError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Validation failed", "fields": verr.Fields})
	case errors.Is(err, store.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
	case errors.Is(err, permission.ErrDenied), errors.Is(err, permission.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have permission to do this"})
	case errors.Is(err, models.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, models.ErrLastOwner):
		c.JSON(http.StatusConflict, gin.H{"error": "Cannot remove the last owner from team"})
	case errors.Is(err, models.ErrAlreadyMember):
		c.JSON(http.StatusConflict, gin.H{"error": "User is already a member of this team"})
	case errors.Is(err, models.ErrAlreadyInvited):
		c.JSON(http.StatusConflict, gin.H{"error": "An invitation was already sent to this email"})
	case errors.Is(err, models.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
	case errors.Is(err, backup.ErrNotConfirmed), errors.Is(err, backup.ErrUnsupportedVersion):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage is unavailable, try again later"})
	default:
		logger.ErrorContext(c.Request.Context(), fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
