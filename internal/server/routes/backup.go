package routes

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lawdesk/internal/backup"
	"lawdesk/internal/permission"
)

type BackupRoutes struct {
	server ServerInterface
}

func NewBackupRoutes(server ServerInterface) *BackupRoutes {
	return &BackupRoutes{server: server}
}

func (br *BackupRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(br.server)

	br.register(r.Group("/me", middleware.AuthMiddleware(), middleware.SoloMiddleware()))
	br.register(r.Group("/teams/:slug", middleware.AuthMiddleware(), middleware.TeamMiddleware()))
}

func (br *BackupRoutes) register(g *gin.RouterGroup) {
	g.GET("/backup", permission.Guard(br.exportHandler, permission.ModuleBackup, permission.ActionView, denied))
	g.POST("/backup", permission.Guard(br.importHandler, permission.ModuleBackup, permission.ActionEdit, denied))
	g.GET("/backup/snapshots", permission.Guard(br.snapshotsHandler, permission.ModuleBackup, permission.ActionView, denied))
	g.POST("/backup/restore", permission.Guard(br.restoreHandler, permission.ModuleBackup, permission.ActionEdit, denied))
}

// exportHandler downloads the whole context as one JSON document.
func (br *BackupRoutes) exportHandler(c *gin.Context) {
	snap, err := br.server.GetBackup().Export(c.Request.Context(), currentScope(c))
	if err != nil {
		respondError(c, br.server.GetLogger(), err, "Failed to export backup")
		return
	}

	filename := fmt.Sprintf("lawdesk-backup-%s.json", snap.ExportedAt.Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Status(http.StatusOK)
	if err := backup.Encode(c.Writer, snap); err != nil {
		_ = c.Error(err)
	}
}

// importHandler replaces the context with the uploaded snapshot. The caller
// must pass confirm=true.
func (br *BackupRoutes) importHandler(c *gin.Context) {
	confirm, _ := strconv.ParseBool(c.Query("confirm"))

	snap, err := backup.Decode(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := br.server.GetBackup().Import(c.Request.Context(), currentScope(c), snap, backup.ImportOptions{Confirm: confirm})
	if err != nil {
		respondError(c, br.server.GetLogger(), err, "Failed to import backup")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (br *BackupRoutes) snapshotsHandler(c *gin.Context) {
	snapshots, err := br.server.GetBackup().Snapshots(c.Request.Context(), currentScope(c))
	if err != nil {
		respondError(c, br.server.GetLogger(), err, "Failed to list snapshots")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshots": snapshots,
		"total":     len(snapshots),
	})
}

// restoreHandler imports one of the stored safety snapshots.
func (br *BackupRoutes) restoreHandler(c *gin.Context) {
	var req struct {
		Key     string `json:"key" binding:"required"`
		Confirm bool   `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := br.server.GetBackup()
	scope := currentScope(c)
	snap, err := svc.Load(c.Request.Context(), scope, req.Key)
	if err != nil {
		respondError(c, br.server.GetLogger(), err, "Failed to load snapshot")
		return
	}

	result, err := svc.Import(c.Request.Context(), scope, snap, backup.ImportOptions{Confirm: req.Confirm})
	if err != nil {
		respondError(c, br.server.GetLogger(), err, "Failed to restore snapshot")
		return
	}
	c.JSON(http.StatusOK, result)
}
