package api_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packforge/packd/pkg/api"
	"github.com/packforge/packd/pkg/langpack"
	"github.com/packforge/packd/pkg/manifest"
	"github.com/packforge/packd/pkg/minifest"
	"github.com/packforge/packd/pkg/publish"
	"github.com/packforge/packd/pkg/signing"
	"github.com/packforge/packd/pkg/storage"
)

const manifestTemplate = `{
	"name": "German Language Pack",
	"version": %q,
	"role": "langpack",
	"developer": {"name": "Packforge"},
	"languages-provided": {"de": {"name": "Deutsch"}},
	"languages-target": {"app://system.gaiamobile.org/manifest.webapp": "2.2"}
}`

func buildUpload(t *testing.T, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create(manifest.ManifestFilename)
	require.NoError(t, err)
	_, err = w.Write([]byte(fmt.Sprintf(manifestTemplate, version)))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestHandler(t *testing.T, opts api.Options) http.Handler {
	t.Helper()

	packs := langpack.NewMemoryStore()
	parser, err := manifest.NewParser()
	require.NoError(t, err)
	signer, err := signing.NewEd25519Signer()
	require.NoError(t, err)
	files, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	cache := minifest.NewMemoryCache(minifest.NewBuilder("https://packs.example.com"))

	publisher, err := publish.New(packs, parser, signer,
		storage.NewPlacer(files), cache, nil, nil)
	require.NoError(t, err)

	server := api.NewServer(publisher, packs, files, cache, "https://packs.example.com", nil)
	return server.Handler(opts)
}

func doUpload(t *testing.T, h http.Handler, method, path, version string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(buildUpload(t, version)))
	req.Header.Set("Content-Type", "application/zip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodePack(t *testing.T, body *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestUploadAndFetch(t *testing.T) {
	h := newTestHandler(t, api.Options{})

	rec := doUpload(t, h, http.MethodPost, "/api/v1/langpacks", "1.0")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	created := decodePack(t, rec.Body)
	uuid := created["uuid"].(string)
	assert.Len(t, uuid, 32)
	assert.Equal(t, "de", created["locale"])
	assert.Equal(t, float64(1), created["file_version"])
	assert.Equal(t,
		"https://packs.example.com/downloads/"+uuid+"/langpack.zip",
		created["download_url"])
	// Inactive packs have no minifest URL.
	assert.NotContains(t, created, "minifest_url")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/langpacks/"+uuid, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decodePack(t, rec.Body)
	assert.Equal(t, uuid, fetched["uuid"])
}

func TestUploadInvalidArchive(t *testing.T) {
	h := newTestHandler(t, api.Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/langpacks",
		bytes.NewReader([]byte("not a zip")))
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem api.ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	assert.Equal(t, "Invalid Upload", problem.Title)
	assert.Equal(t, "/api/v1/langpacks", problem.Instance)
	assert.Equal(t, "req-42", problem.TraceID, "problem carries the request id for log correlation")
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestRepublishAndCollision(t *testing.T) {
	h := newTestHandler(t, api.Options{})

	rec := doUpload(t, h, http.MethodPost, "/api/v1/langpacks", "1.0")
	require.Equal(t, http.StatusCreated, rec.Code)
	uuid := decodePack(t, rec.Body)["uuid"].(string)

	rec = doUpload(t, h, http.MethodPut, "/api/v1/langpacks/"+uuid, "2.0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodePack(t, rec.Body)["file_version"])

	rec = doUpload(t, h, http.MethodPut, "/api/v1/langpacks/"+uuid, "2.0")
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem api.ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	assert.Equal(t, "Version Already Published", problem.Title)
	assert.NotEmpty(t, problem.TraceID)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), problem.TraceID)
}

func TestActivationMinifestAndDownload(t *testing.T) {
	h := newTestHandler(t, api.Options{})

	rec := doUpload(t, h, http.MethodPost, "/api/v1/langpacks", "1.0")
	require.Equal(t, http.StatusCreated, rec.Code)
	uuid := decodePack(t, rec.Body)["uuid"].(string)

	// Hidden while inactive.
	for _, path := range []string{
		"/langpacks/" + uuid + "/manifest.webapp",
		"/downloads/" + uuid + "/langpack.zip",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/langpacks/"+uuid,
		bytes.NewReader([]byte(`{"active": true}`)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	activated := decodePack(t, rec.Body)
	assert.Equal(t, true, activated["active"])
	assert.Equal(t,
		"https://packs.example.com/langpacks/"+uuid+"/manifest.webapp",
		activated["minifest_url"])

	// Minifest with conditional re-fetch.
	req = httptest.NewRequest(http.MethodGet, "/langpacks/"+uuid+"/manifest.webapp", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-web-app-manifest+json", rec.Header().Get("Content-Type"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Contains(t, rec.Body.String(), `"version":"1.0"`)

	req = httptest.NewRequest(http.MethodGet, "/langpacks/"+uuid+"/manifest.webapp", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	// Download serves the signed archive.
	req = httptest.NewRequest(http.MethodGet, "/downloads/"+uuid+"/langpack.zip", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	_, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	h := newTestHandler(t, api.Options{})

	rec := doUpload(t, h, http.MethodPost, "/api/v1/langpacks", "1.0")
	require.Equal(t, http.StatusCreated, rec.Code)
	uuid := decodePack(t, rec.Body)["uuid"].(string)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/langpacks/"+uuid, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/langpacks/"+uuid, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListFiltering(t *testing.T) {
	h := newTestHandler(t, api.Options{})

	rec := doUpload(t, h, http.MethodPost, "/api/v1/langpacks", "1.0")
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/langpacks?lang=de", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Langpacks []map[string]any `json:"langpacks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	assert.Len(t, listed.Langpacks, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/langpacks?lang=fr", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	assert.Empty(t, listed.Langpacks)
}

func adminToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, api.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthProtectsAdminAPI(t *testing.T) {
	h := newTestHandler(t, api.Options{AuthSecret: "test-secret"})

	// No token: rejected.
	rec := doUpload(t, h, http.MethodPost, "/api/v1/langpacks", "1.0")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token: rejected.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/langpacks", nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong secret: rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/langpacks", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "other-secret"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token: accepted.
	token := adminToken(t, "test-secret")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/langpacks",
		bytes.NewReader(buildUpload(t, "1.0")))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Health stays public.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPublicEndpointsSkipAuth(t *testing.T) {
	h := newTestHandler(t, api.Options{AuthSecret: "test-secret"})

	// 404 (not 401): the request made it past auth.
	req := httptest.NewRequest(http.MethodGet, "/langpacks/unknown/manifest.webapp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRateLimit(t *testing.T) {
	h := newTestHandler(t, api.Options{UploadRatePerMinute: 1})

	rec := doUpload(t, h, http.MethodPost, "/api/v1/langpacks", "1.0")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doUpload(t, h, http.MethodPost, "/api/v1/langpacks", "2.0")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Reads are never limited.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/langpacks", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
