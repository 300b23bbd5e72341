package routes

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"lawdesk/internal/permission"
	"lawdesk/internal/records"
	"lawdesk/internal/storage"
	"lawdesk/internal/store"
)

var denied = permission.GuardOptions{ShowMessage: true}

// ResourceRoutes serves the record collections, summaries and attachments.
// The same routes are mounted under /me for the solo context and under
// /teams/:slug for a team; only the middleware picking the scope differs.
type ResourceRoutes struct {
	server ServerInterface
}

func NewResourceRoutes(server ServerInterface) *ResourceRoutes {
	return &ResourceRoutes{server: server}
}

func (rr *ResourceRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(rr.server)

	rr.register(r.Group("/me", middleware.AuthMiddleware(), middleware.SoloMiddleware()))
	rr.register(r.Group("/teams/:slug", middleware.AuthMiddleware(), middleware.TeamMiddleware()))
}

func (rr *ResourceRoutes) register(g *gin.RouterGroup) {
	st := rr.server.GetStore()

	registerResource(g, rr.server, store.CollectionCases, permission.ModuleCases, st.Cases)
	registerResource(g, rr.server, store.CollectionEvents, permission.ModuleCalendar, st.Events)
	registerResource(g, rr.server, store.CollectionRevenues, permission.ModuleFinance, st.Revenues)
	registerResource(g, rr.server, store.CollectionExpenses, permission.ModuleFinance, st.Expenses)
	documents := registerResource(g, rr.server, store.CollectionDocuments, permission.ModuleDocuments, st.Documents)
	documents.afterDelete = rr.removeAttachment
	registerResource(g, rr.server, store.CollectionLawyers, permission.ModuleTeam, st.Lawyers)
	registerResource(g, rr.server, store.CollectionEmployees, permission.ModuleTeam, st.Employees)

	g.GET("/summary/finance", permission.Guard(rr.financeSummaryHandler, permission.ModuleFinance, permission.ActionView, denied))
	g.GET("/summary/stats", rr.statsHandler)
	g.GET("/capabilities", rr.capabilitiesHandler)

	g.POST("/attachments", permission.Guard(rr.uploadAttachmentHandler, permission.ModuleDocuments, permission.ActionCreate, denied))
	g.GET("/attachments/file", permission.Guard(rr.downloadAttachmentHandler, permission.ModuleDocuments, permission.ActionView, denied))
}

// resource serves one record collection.
type resource[T any] struct {
	server     ServerInterface
	name       string
	collection func(store.Scope) *store.Collection[T]
	// afterDelete, when set, gets the last stored state of a deleted record.
	afterDelete func(c *gin.Context, rec *T)
}

func registerResource[T any](g *gin.RouterGroup, server ServerInterface, name string, module permission.Module, collection func(store.Scope) *store.Collection[T]) *resource[T] {
	res := &resource[T]{server: server, name: name, collection: collection}

	g.GET("/"+name, permission.Guard(res.listHandler, module, permission.ActionView, denied))
	g.POST("/"+name, permission.Guard(res.createHandler, module, permission.ActionCreate, denied))
	g.GET("/"+name+"/:id", permission.Guard(res.getHandler, module, permission.ActionView, denied))
	g.PATCH("/"+name+"/:id", permission.Guard(res.updateHandler, module, permission.ActionEdit, denied))
	g.DELETE("/"+name+"/:id", permission.Guard(res.deleteHandler, module, permission.ActionDelete, denied))
	return res
}

func (res *resource[T]) listHandler(c *gin.Context) {
	items := res.collection(currentScope(c)).List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		res.name: items,
		"total":  len(items),
	})
}

func (res *resource[T]) getHandler(c *gin.Context) {
	item := res.collection(currentScope(c)).Get(c.Request.Context(), c.Param("id"))
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (res *resource[T]) createHandler(c *gin.Context) {
	var rec T
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := res.collection(currentScope(c)).Save(c.Request.Context(), rec)
	if err != nil {
		respondError(c, res.server.GetLogger(), err, "Failed to save record")
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (res *resource[T]) updateHandler(c *gin.Context) {
	var patch store.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := res.collection(currentScope(c)).Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, res.server.GetLogger(), err, "Failed to update record")
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (res *resource[T]) deleteHandler(c *gin.Context) {
	ctx := c.Request.Context()
	col := res.collection(currentScope(c))

	var prev *T
	if res.afterDelete != nil {
		prev = col.Get(ctx, c.Param("id"))
	}
	deleted, err := col.Delete(ctx, c.Param("id"))
	if err != nil {
		respondError(c, res.server.GetLogger(), err, "Failed to delete record")
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	if prev != nil {
		res.afterDelete(c, prev)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}

func (rr *ResourceRoutes) financeSummaryHandler(c *gin.Context) {
	c.JSON(http.StatusOK, rr.server.GetStore().FinancialSummary(c.Request.Context(), currentScope(c)))
}

func (rr *ResourceRoutes) statsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, rr.server.GetStore().GeneralStats(c.Request.Context(), currentScope(c)))
}

// capabilitiesHandler tells the client which controls to render.
func (rr *ResourceRoutes) capabilitiesHandler(c *gin.Context) {
	gate := currentGate(c)
	c.JSON(http.StatusOK, gin.H{
		"role":    gate.Role(),
		"modules": gate.All(),
	})
}

func (rr *ResourceRoutes) uploadAttachmentHandler(c *gin.Context) {
	attachments := rr.server.GetAttachments()
	if attachments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "File storage is not configured"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	if header.Size > storage.MaxAttachmentSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
		return
	}
	if _, err := storage.AttachmentType(header.Filename); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := attachments.UploadAttachment(c.Request.Context(), currentScope(c).Namespace(), file, header)
	if err != nil {
		respondError(c, rr.server.GetLogger(), err, "Failed to upload file")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// downloadAttachmentHandler streams a decrypted attachment of the current
// namespace.
func (rr *ResourceRoutes) downloadAttachmentHandler(c *gin.Context) {
	attachments := rr.server.GetAttachments()
	if attachments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "File storage is not configured"})
		return
	}

	key := c.Query("key")
	if !storage.InNamespace(key, currentScope(c).Namespace()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Attachment not found"})
		return
	}

	obj, err := attachments.GetObject(c.Request.Context(), key)
	if err != nil {
		respondError(c, rr.server.GetLogger(), err, "Failed to download file")
		return
	}

	contentType := obj.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if name := obj.Metadata["original-filename"]; name != "" {
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	c.Data(http.StatusOK, contentType, obj.Data)
}

// removeAttachment deletes the stored file of a deleted document. Keys
// outside the current namespace are left alone.
func (rr *ResourceRoutes) removeAttachment(c *gin.Context, doc *records.Document) {
	attachments := rr.server.GetAttachments()
	if attachments == nil || doc.AttachmentKey == "" {
		return
	}
	if !storage.InNamespace(doc.AttachmentKey, currentScope(c).Namespace()) {
		return
	}
	if err := attachments.DeleteObject(c.Request.Context(), doc.AttachmentKey); err != nil {
		rr.server.GetLogger().WarnContext(c.Request.Context(), "failed to delete attachment", "key", doc.AttachmentKey, "error", err)
	}
}
