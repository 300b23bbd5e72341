package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawdesk/internal/auth"
	"lawdesk/internal/backup"
	"lawdesk/internal/config"
	"lawdesk/internal/docstore"
	"lawdesk/internal/models"
	"lawdesk/internal/permission"
	"lawdesk/internal/ratelimit"
	"lawdesk/internal/storage"
	"lawdesk/internal/store"
)

type fakeDirectory struct {
	users map[int]*models.User
	teams map[string]*models.Team
	roles map[uuid.UUID]map[int]permission.Role
}

func (d *fakeDirectory) User(_ context.Context, id int) (*models.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) TeamBySlug(_ context.Context, slug string) (*models.Team, error) {
	t, ok := d.teams[slug]
	if !ok {
		return nil, models.ErrNotFound
	}
	return t, nil
}

func (d *fakeDirectory) TeamsFor(_ context.Context, userID int) ([]models.UserTeam, error) {
	out := []models.UserTeam{}
	for _, t := range d.teams {
		if role, ok := d.roles[t.ID][userID]; ok {
			out = append(out, models.UserTeam{TeamID: t.ID, TeamName: t.Name, TeamSlug: t.Slug, Role: role})
		}
	}
	return out, nil
}

func (d *fakeDirectory) RoleFor(_ context.Context, userID int, teamID uuid.UUID) (permission.Role, error) {
	role, ok := d.roles[teamID][userID]
	if !ok {
		return "", permission.ErrNotMember
	}
	return role, nil
}

type fakeAttachments struct {
	objects map[string]*storage.DownloadResult
	deleted []string
}

func newFakeAttachments() *fakeAttachments {
	return &fakeAttachments{objects: map[string]*storage.DownloadResult{}}
}

func (f *fakeAttachments) UploadAttachment(_ context.Context, namespace string, file multipart.File, header *multipart.FileHeader) (*storage.UploadResult, error) {
	key, mimeType, err := storage.AttachmentKey(namespace, header.Filename)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	f.objects[key] = &storage.DownloadResult{
		Data:     data,
		MimeType: mimeType,
		Metadata: map[string]string{"original-filename": header.Filename},
	}
	return &storage.UploadResult{Key: key, MimeType: mimeType, FileSize: header.Size}, nil
}

func (f *fakeAttachments) GetObject(_ context.Context, key string) (*storage.DownloadResult, error) {
	obj, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return obj, nil
}

func (f *fakeAttachments) DeleteObject(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type testServer struct {
	db          *models.DB
	directory   Directory
	store       *store.Store
	backup      *backup.Service
	attachments AttachmentStore
	config      *config.Config
	logger      *slog.Logger
}

func (s *testServer) GetDB() *models.DB                      { return s.db }
func (s *testServer) GetDirectory() Directory                { return s.directory }
func (s *testServer) GetStore() *store.Store                 { return s.store }
func (s *testServer) GetBackup() *backup.Service             { return s.backup }
func (s *testServer) GetAttachments() AttachmentStore        { return s.attachments }
func (s *testServer) GetRateLimiter() *ratelimit.RateLimiter { return nil }
func (s *testServer) GetRoles() permission.Table             { return permission.DefaultTable() }
func (s *testServer) GetConfig() *config.Config              { return s.config }
func (s *testServer) GetLogger() *slog.Logger                { return s.logger }

// Users 1 (owner), 2 (viewer) and 3 (outsider) of team "firm".
var firmID = uuid.MustParse("6f1f3c9e-3b7a-4c1e-9d4f-2a8b5c7d9e01")

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(docstore.NewMemory(), store.WithLogger(logger))
	return &testServer{
		directory: &fakeDirectory{
			users: map[int]*models.User{
				1: {ID: 1, Email: "ana@example.com", Name: "Ana"},
				2: {ID: 2, Email: "bruno@example.com", Name: "Bruno"},
				3: {ID: 3, Email: "carla@example.com", Name: "Carla"},
			},
			teams: map[string]*models.Team{
				"firm": {ID: firmID, Name: "Firm", Slug: "firm", IsActive: true},
			},
			roles: map[uuid.UUID]map[int]permission.Role{
				firmID: {1: permission.RoleOwner, 2: permission.RoleViewer},
			},
		},
		store:  st,
		backup: backup.NewService(st, nil, backup.WithLogger(logger)),
		config: &config.Config{Server: config.ServerConfig{FrontendURL: "http://localhost:3000"}},
		logger: logger,
	}
}

func newRouter(s ServerInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions(auth.SessionName, auth.NewSessionStore("test-secret", false)))
	r.POST("/test/signin/:id", func(c *gin.Context) {
		id, _ := strconv.Atoi(c.Param("id"))
		if err := auth.SignIn(c, id, ""); err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})

	NewUserRoutes(s).RegisterRoutes(r)
	NewResourceRoutes(s).RegisterRoutes(r)
	NewBackupRoutes(s).RegisterRoutes(r)
	if s.GetDB() != nil {
		NewTeamRoutes(s).RegisterRoutes(r)
		NewInvitationRoutes(s).RegisterRoutes(r)
	}
	return r
}

type client struct {
	t       *testing.T
	router  *gin.Engine
	cookies []*http.Cookie
}

func signIn(t *testing.T, r *gin.Engine, userID int) *client {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test/signin/"+strconv.Itoa(userID), nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	return &client{t: t, router: r, cookies: w.Result().Cookies()}
}

func (cl *client) do(method, path string, body any) *httptest.ResponseRecorder {
	cl.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(cl.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range cl.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	cl.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func caseBody() map[string]any {
	return map[string]any{
		"name":               "Silva v. Acme",
		"number":             "0001234-56.2024.8.26.0100",
		"client":             "Maria Silva",
		"responsibleLawyers": []string{"Ana Souza"},
		"startDate":          "2024-02-01",
	}
}

func TestRequiresSession(t *testing.T) {
	r := newRouter(newTestServer(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me/cases", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A session for a user that no longer exists is rejected too.
	w = signIn(t, r, 99).do(http.MethodGet, "/me/cases", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSoloCaseLifecycle(t *testing.T) {
	cl := signIn(t, newRouter(newTestServer(t)), 1)

	w := cl.do(http.MethodPost, "/me/cases", caseBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody(t, w)
	id := created["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "InProgress", created["status"])
	assert.EqualValues(t, 1, created["userId"])
	assert.NotContains(t, created, "teamId")

	w = cl.do(http.MethodGet, "/me/cases", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody(t, w)
	assert.EqualValues(t, 1, list["total"])

	w = cl.do(http.MethodPatch, "/me/cases/"+id, map[string]any{"notes": "hearing moved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeBody(t, w)
	assert.Equal(t, "hearing moved", updated["notes"])
	assert.Equal(t, "Silva v. Acme", updated["name"])
	assert.NotNil(t, updated["updatedAt"])

	w = cl.do(http.MethodGet, "/me/cases/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = cl.do(http.MethodDelete, "/me/cases/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = cl.do(http.MethodDelete, "/me/cases/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = cl.do(http.MethodGet, "/me/cases/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = cl.do(http.MethodPatch, "/me/cases/"+id, map[string]any{"notes": "gone"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidationErrorIs422(t *testing.T) {
	cl := signIn(t, newRouter(newTestServer(t)), 1)

	body := caseBody()
	body["responsibleLawyers"] = []string{}
	w := cl.do(http.MethodPost, "/me/cases", body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	fields := decodeBody(t, w)["fields"].(map[string]any)
	assert.Contains(t, fields, "responsibleLawyers")

	w = cl.do(http.MethodPost, "/me/events", map[string]any{
		"title": "Hearing", "date": "2024-04-12", "category": "Hearing", "assignedLawyers": []string{},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = cl.do(http.MethodPost, "/me/cases", caseBody())
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeBody(t, w)["id"].(string)
	w = cl.do(http.MethodPatch, "/me/cases/"+id, map[string]any{"id": "other"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestTeamScopeAndRoles(t *testing.T) {
	r := newRouter(newTestServer(t))
	owner := signIn(t, r, 1)
	viewer := signIn(t, r, 2)
	outsider := signIn(t, r, 3)

	w := owner.do(http.MethodPost, "/teams/firm/cases", caseBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, firmID.String(), decodeBody(t, w)["teamId"])

	// The solo context does not see team records.
	w = owner.do(http.MethodGet, "/me/cases", nil)
	assert.EqualValues(t, 0, decodeBody(t, w)["total"])

	w = viewer.do(http.MethodGet, "/teams/firm/cases", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["total"])

	w = viewer.do(http.MethodPost, "/teams/firm/cases", caseBody())
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "You do not have permission to access this module.", decodeBody(t, w)["error"])

	w = outsider.do(http.MethodGet, "/teams/firm/cases", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = owner.do(http.MethodGet, "/teams/unknown/cases", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCapabilities(t *testing.T) {
	r := newRouter(newTestServer(t))

	w := signIn(t, r, 2).do(http.MethodGet, "/teams/firm/capabilities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "viewer", body["role"])
	cases := body["modules"].(map[string]any)["cases"].(map[string]any)
	assert.Equal(t, false, cases["canCreate"])

	w = signIn(t, r, 1).do(http.MethodGet, "/me/capabilities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "owner", body["role"])
	backupCaps := body["modules"].(map[string]any)["backup"].(map[string]any)
	assert.Equal(t, true, backupCaps["canEdit"])
}

func TestFinanceSummaryAndStats(t *testing.T) {
	cl := signIn(t, newRouter(newTestServer(t)), 1)
	today := time.Now().UTC().Format("2006-01-02")

	for _, amount := range []float64{1000, 500} {
		w := cl.do(http.MethodPost, "/me/revenues", map[string]any{
			"date": today, "amount": amount, "source": "Fees", "category": "Honorarium",
			"responsibleMembers": []string{"Ana Souza"},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := cl.do(http.MethodPost, "/me/expenses", map[string]any{
		"date": today, "amount": 300, "type": "Rent", "category": "Office",
		"responsibleMembers": []string{"Ana Souza"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = cl.do(http.MethodGet, "/me/summary/finance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decodeBody(t, w)
	assert.EqualValues(t, 1500, summary["totalRevenue"])
	assert.EqualValues(t, 300, summary["totalExpenses"])
	assert.EqualValues(t, 1200, summary["balance"])
	assert.Len(t, summary["monthlyData"], 6)

	w = cl.do(http.MethodPost, "/me/cases", caseBody())
	require.Equal(t, http.StatusCreated, w.Code)
	w = cl.do(http.MethodGet, "/me/summary/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeBody(t, w)
	assert.EqualValues(t, 1, stats["cases"].(map[string]any)["inProgress"])
}

func TestUserHandlerListsTeams(t *testing.T) {
	w := signIn(t, newRouter(newTestServer(t)), 2).do(http.MethodGet, "/user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "bruno@example.com", body["email"])
	teams := body["teams"].([]any)
	require.Len(t, teams, 1)
	assert.Equal(t, "firm", teams[0].(map[string]any)["team_slug"])
}

func TestBackupRoutes(t *testing.T) {
	cl := signIn(t, newRouter(newTestServer(t)), 1)

	w := cl.do(http.MethodPost, "/me/cases", caseBody())
	require.Equal(t, http.StatusCreated, w.Code)

	w = cl.do(http.MethodGet, "/me/backup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "lawdesk-backup-")
	snap, err := backup.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	require.Len(t, snap.Cases, 1)

	// Import into the team needs confirmation and replaces the collection.
	w = cl.do(http.MethodPost, "/teams/firm/backup", snap)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = cl.do(http.MethodPost, "/teams/firm/backup?confirm=true", snap)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	replaced := decodeBody(t, w)["replaced"].(map[string]any)
	assert.EqualValues(t, 1, replaced["cases"])

	w = cl.do(http.MethodGet, "/teams/firm/cases", nil)
	assert.EqualValues(t, 1, decodeBody(t, w)["total"])

	w = cl.do(http.MethodPost, "/me/backup?confirm=true", map[string]any{"version": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = cl.do(http.MethodGet, "/me/backup/snapshots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decodeBody(t, w)["total"])
}

func TestBackupImportDeniedForViewer(t *testing.T) {
	r := newRouter(newTestServer(t))
	snap := &backup.Snapshot{Version: backup.Version}

	w := signIn(t, r, 2).do(http.MethodPost, "/teams/firm/backup?confirm=true", snap)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func uploadRequest(t *testing.T, cl *client, path, filename string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 petition"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, ck := range cl.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	cl.router.ServeHTTP(w, req)
	return w
}

func TestAttachments(t *testing.T) {
	s := newTestServer(t)
	cl := signIn(t, newRouter(s), 1)

	w := uploadRequest(t, cl, "/me/attachments", "petition.pdf")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	files := newFakeAttachments()
	s.attachments = files
	cl = signIn(t, newRouter(s), 1)

	w = uploadRequest(t, cl, "/me/attachments", "malware.exe")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = uploadRequest(t, cl, "/me/attachments", "petition.pdf")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	key := decodeBody(t, w)["key"].(string)
	require.Len(t, files.objects, 1)

	// Downloads come back as plaintext with the stored content type.
	w = cl.do(http.MethodGet, "/me/attachments/file?key="+key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4 petition", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "petition.pdf")

	w = cl.do(http.MethodGet, "/teams/firm/attachments/file?key="+key, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = cl.do(http.MethodGet, "/me/attachments/file?key=attachments/users/1/missing.pdf", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Deleting the document removes its file.
	w = cl.do(http.MethodPost, "/me/documents", map[string]any{
		"type": "Petition", "client": "Maria Silva", "attachmentKey": key,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	docID := decodeBody(t, w)["id"].(string)

	w = cl.do(http.MethodDelete, "/me/documents/"+docID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{key}, files.deleted)
	assert.Empty(t, files.objects)

	w = cl.do(http.MethodGet, "/me/attachments/file?key="+key, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
