package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"drive/internal/server/auth"
	"drive/internal/server/config"
	"drive/internal/server/database"
	"drive/internal/server/service"
	"drive/internal/server/storage"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const secret = "s3cret"

type testServer struct {
	e *echo.Echo
}

func newTestServer(t *testing.T, limits service.QuotaLimits, rl config.RateLimitConfig) *testServer {
	t.Helper()

	blobs := storage.NewFileSystemStore(t.TempDir())
	require.NoError(t, blobs.EnsureReady(context.Background()))

	store := database.NewMemoryStore()
	quota := service.NewQuota(store, limits)
	classifier, err := service.NewClassifier(nil)
	require.NoError(t, err)

	svc := service.NewHierarchyService(store, blobs, quota, classifier, nil)
	handler := NewHandler(svc, service.NewUsageReporter(store, quota), nil)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	provider, err := auth.NewStaticProvider(map[string]string{
		"alice": string(hash),
		"bob":   string(hash),
	})
	require.NoError(t, err)

	cfg := &config.Config{RateLimit: rl}
	return &testServer{e: SetupRouter(handler, provider, cfg)}
}

func defaultServer(t *testing.T) *testServer {
	return newTestServer(t, service.DefaultQuotaLimits(), config.RateLimitConfig{RPS: 100, Burst: 100})
}

func (s *testServer) do(t *testing.T, owner, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if owner != "" {
		req.SetBasicAuth(owner, secret)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, owner, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return s.do(t, owner, method, path, body, echo.MIMEApplicationJSON)
}

func (s *testServer) upload(t *testing.T, owner, name, content, folderID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if folderID != "" {
		require.NoError(t, w.WriteField("folder_id", folderID))
	}
	require.NoError(t, w.Close())
	return s.do(t, owner, http.MethodPost, "/api/files", &buf, w.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := defaultServer(t)

	rec := s.do(t, "", http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "in-memory", body["database"])
}

func TestAuthRequired(t *testing.T) {
	s := defaultServer(t)

	rec := s.do(t, "", http.MethodGet, "/api/folders", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/folders", nil)
	req.SetBasicAuth("alice", "wrong")
	wrong := httptest.NewRecorder()
	s.e.ServeHTTP(wrong, req)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
}

func TestFolderAndFileLifecycle(t *testing.T) {
	s := defaultServer(t)

	rec := s.doJSON(t, "alice", http.MethodPost, "/api/folders", echo.Map{"name": "docs"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	docs := decode[database.Folder](t, rec)
	assert.Equal(t, "docs", docs.Name)
	assert.Equal(t, "alice", docs.OwnerID)
	assert.Nil(t, docs.ParentID)

	rec = s.doJSON(t, "alice", http.MethodPatch, "/api/folders/"+docs.ID, echo.Map{"name": "papers"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "papers", decode[database.Folder](t, rec).Name)

	rec = s.upload(t, "alice", "notes.txt", "hello drive", docs.ID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	file := decode[map[string]any](t, rec)
	assert.Equal(t, "notes.txt", file["name"])
	assert.EqualValues(t, 11, file["size"])
	assert.Equal(t, "document", file["category"])
	assert.NotContains(t, file, "BlobKey")

	rec = s.do(t, "alice", http.MethodGet, "/api/folders/"+docs.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decode[service.FolderListing](t, rec)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, []service.Crumb{{ID: docs.ID, Name: "papers"}}, listing.Breadcrumbs)

	rec = s.do(t, "alice", http.MethodGet, "/api/files/"+file["id"].(string)+"/download", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello drive", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "notes.txt")

	rec = s.do(t, "alice", http.MethodGet, "/api/usage", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	usage := decode[struct {
		Summary    service.UsageSummary    `json:"summary"`
		UsedHuman  string                  `json:"used_human"`
		LimitHuman string                  `json:"limit_human"`
		ByCategory []service.CategoryUsage `json:"by_category"`
		OverTime   []service.MonthlyUsage  `json:"over_time"`
	}](t, rec)
	assert.EqualValues(t, 11, usage.Summary.UsedBytes)
	assert.Equal(t, "11 B", usage.UsedHuman)
	assert.Equal(t, "50 MiB", usage.LimitHuman)
	assert.Len(t, usage.OverTime, 1)

	rec = s.do(t, "alice", http.MethodDelete, "/api/folders/"+docs.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[service.DeleteResult](t, rec)
	assert.Equal(t, service.DeleteResult{Folders: 1, Files: 1, BytesFreed: 11}, result)

	rec = s.do(t, "alice", http.MethodGet, "/api/folders", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[service.FolderListing](t, rec)
	assert.Empty(t, root.Folders)
	assert.Empty(t, root.Files)
}

func TestForeignItemsLookMissing(t *testing.T) {
	s := defaultServer(t)

	rec := s.upload(t, "alice", "secret.pdf", "classified", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	fileID := decode[database.File](t, rec).ID

	foreign := s.do(t, "bob", http.MethodGet, "/api/files/"+fileID+"/download", nil, "")
	missing := s.do(t, "bob", http.MethodGet, "/api/files/does-not-exist/download", nil, "")

	assert.Equal(t, http.StatusNotFound, foreign.Code)
	assert.Equal(t, missing.Code, foreign.Code)
	assert.Equal(t, missing.Body.String(), foreign.Body.String())

	rec = s.do(t, "bob", http.MethodDelete, "/api/files/"+fileID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "alice", http.MethodGet, "/api/files/"+fileID+"/download", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMoveErrors(t *testing.T) {
	s := defaultServer(t)

	a := decode[database.Folder](t, s.doJSON(t, "alice", http.MethodPost, "/api/folders", echo.Map{"name": "a"}))
	b := decode[database.Folder](t, s.doJSON(t, "alice", http.MethodPost, "/api/folders",
		echo.Map{"name": "b", "parent_id": a.ID}))

	tests := []struct {
		name    string
		payload echo.Map
		status  int
	}{
		{"into descendant", echo.Map{"item_id": a.ID, "item_type": "folder", "destination_id": b.ID}, http.StatusBadRequest},
		{"into itself", echo.Map{"item_id": a.ID, "item_type": "folder", "destination_id": a.ID}, http.StatusBadRequest},
		{"unknown type", echo.Map{"item_id": a.ID, "item_type": "link", "destination_id": nil}, http.StatusBadRequest},
		{"missing destination", echo.Map{"item_id": b.ID, "item_type": "folder", "destination_id": "nope"}, http.StatusNotFound},
		{"to root", echo.Map{"item_id": b.ID, "item_type": "folder", "destination_id": "root"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.doJSON(t, "alice", http.MethodPost, "/api/move", tt.payload)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestUploadLimits(t *testing.T) {
	s := newTestServer(t, service.QuotaLimits{MaxFileSizeBytes: 8, MaxOwnerStorageBytes: 12},
		config.RateLimitConfig{RPS: 100, Burst: 100})

	rec := s.upload(t, "alice", "big.bin", "0123456789", "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = s.upload(t, "alice", "one.bin", "01234567", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.upload(t, "alice", "two.bin", "01234567", "")
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)

	rec = s.upload(t, "bob", "two.bin", "01234567", "")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = s.upload(t, "alice", "   ", "x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "alice", http.MethodPost, "/api/files", strings.NewReader(""), echo.MIMEMultipartForm)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRateLimitedPerOwner(t *testing.T) {
	s := newTestServer(t, service.DefaultQuotaLimits(), config.RateLimitConfig{RPS: 0.001, Burst: 1})

	assert.Equal(t, http.StatusCreated, s.upload(t, "alice", "a.txt", "a", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, s.upload(t, "alice", "b.txt", "b", "").Code)
	assert.Equal(t, http.StatusCreated, s.upload(t, "bob", "a.txt", "a", "").Code)

	rec := s.do(t, "alice", http.MethodGet, "/api/folders", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
