package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localshare/share-go/internal/database"
	"github.com/localshare/share-go/internal/idgen"
	"github.com/localshare/share-go/internal/share"
	"github.com/localshare/share-go/internal/upload"
)

type env struct {
	handler http.Handler
	shares  *share.Service
	storage string
}

func setup(t *testing.T) *env {
	t.Helper()
	db, err := database.NewDb(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	repo := database.NewRepository(db)
	ids, err := idgen.New(1)
	require.NoError(t, err)
	storage := t.TempDir()
	engine := upload.NewEngine(repo, storage, getLogger())
	shares := share.NewService(repo, ids, getLogger())
	return &env{
		handler: NewHandler(engine, shares, getLogger()),
		shares:  shares,
		storage: storage,
	}
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (e *env) do(t *testing.T, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)
	return rec
}

func (e *env) postJSON(t *testing.T, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return e.do(t, r)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestUploadFlow(t *testing.T) {
	e := setup(t)
	content := []byte("hello, resumable world")
	id := hashOf(content)

	rec := e.postJSON(t, "/upload/init", initRequest{FileName: "hello.txt", FileSize: int64(len(content)), FileHash: id})
	require.Equal(t, http.StatusOK, rec.Code)
	init := decode[initResponse](t, rec)
	assert.Equal(t, id, init.FileID)
	assert.Equal(t, string(database.StatusUploading), init.Status)
	assert.Empty(t, init.UploadedChunks)

	half := len(content) / 2
	for i, part := range [][]byte{content[:half], content[half:]} {
		meta, err := json.Marshal(chunkMetadata{FileID: id, ChunkNumber: i + 1, ChunkHash: hashOf(part)})
		require.NoError(t, err)
		rec = e.do(t, chunkRequest(t, string(meta), part, false))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.False(t, decode[map[string]bool](t, rec)["already_uploaded"])
	}

	rec = e.postJSON(t, "/upload/complete", completeRequest{FileID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[map[string]string](t, rec)
	assert.Equal(t, "hello.txt", res["file_name"])
	assert.Equal(t, string(database.StatusCompleted), res["status"])

	got, err := os.ReadFile(filepath.Join(e.storage, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUploadFlow_Resume(t *testing.T) {
	e := setup(t)
	content := []byte("abcdef")
	id := hashOf(content)

	rec := e.postJSON(t, "/upload/init", initRequest{FileName: "r.bin", FileSize: 6, FileHash: id})
	require.Equal(t, http.StatusOK, rec.Code)

	meta, err := json.Marshal(chunkMetadata{FileID: id, ChunkNumber: 1, ChunkHash: hashOf(content[:3])})
	require.NoError(t, err)
	rec = e.do(t, chunkRequest(t, string(meta), content[:3], false))
	require.Equal(t, http.StatusOK, rec.Code)

	// a second init reports what is already there
	rec = e.postJSON(t, "/upload/init", initRequest{FileName: "r.bin", FileSize: 6, FileHash: id})
	require.Equal(t, http.StatusOK, rec.Code)
	init := decode[initResponse](t, rec)
	assert.Equal(t, []int{1}, init.UploadedChunks)
	assert.Equal(t, int64(3), init.UploadedSize)
}

func TestUploadErrors(t *testing.T) {
	e := setup(t)
	content := []byte("abcdef")
	id := hashOf(content)
	rec := e.postJSON(t, "/upload/init", initRequest{FileName: "f.bin", FileSize: 6, FileHash: id})
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("init bad body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/upload/init", bytes.NewReader([]byte("{")))
		assert.Equal(t, http.StatusBadRequest, e.do(t, r).Code)
	})
	t.Run("init missing fields", func(t *testing.T) {
		rec := e.postJSON(t, "/upload/init", initRequest{FileName: "f.bin"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("chunk for unknown session", func(t *testing.T) {
		meta, err := json.Marshal(chunkMetadata{FileID: "missing", ChunkNumber: 1, ChunkHash: hashOf([]byte("abc"))})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, e.do(t, chunkRequest(t, string(meta), []byte("abc"), false)).Code)
	})
	t.Run("chunk hash mismatch", func(t *testing.T) {
		meta, err := json.Marshal(chunkMetadata{FileID: id, ChunkNumber: 1, ChunkHash: "wrong"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, e.do(t, chunkRequest(t, string(meta), []byte("abc"), false)).Code)
	})
	t.Run("complete unknown session", func(t *testing.T) {
		rec := e.postJSON(t, "/upload/complete", completeRequest{FileID: "missing"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("complete with chunks missing", func(t *testing.T) {
		rec := e.postJSON(t, "/upload/complete", completeRequest{FileID: id})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func addShare(t *testing.T, e *env, name, content, mimeType string) int64 {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	id, err := e.shares.Add(path, name, mimeType)
	require.NoError(t, err)
	return id
}

func TestListShares(t *testing.T) {
	e := setup(t)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/shares", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]shareResponse](t, rec))

	id := addShare(t, e, "doc.txt", "hello", "text/plain")

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec = e.do(t, httptest.NewRequest(method, "/shares", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[[]shareResponse](t, rec)
		require.Len(t, list, 1)
		assert.Equal(t, strconv.FormatInt(id, 10), list[0].ID)
		assert.Equal(t, "doc.txt", list[0].FileName)
		assert.Equal(t, "text/plain", list[0].MimeType)
	}
}

func TestStreamDownload(t *testing.T) {
	e := setup(t)
	id := addShare(t, e, "doc.txt", "hello world", "text/plain")
	url := "/stream/" + strconv.FormatInt(id, 10)

	t.Run("full body", func(t *testing.T) {
		rec := e.do(t, httptest.NewRequest(http.MethodGet, url, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello world", rec.Body.String())
		assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
		assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	})
	t.Run("range request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, url, nil)
		r.Header.Set("Range", "bytes=6-10")
		rec := e.do(t, r)
		require.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "world", rec.Body.String())
		assert.Equal(t, "bytes 6-10/11", rec.Header().Get("Content-Range"))
	})
	t.Run("force download", func(t *testing.T) {
		rec := e.do(t, httptest.NewRequest(http.MethodGet, url+"?force_download=true", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="doc.txt"`, rec.Header().Get("Content-Disposition"))
	})
	t.Run("unknown share", func(t *testing.T) {
		rec := e.do(t, httptest.NewRequest(http.MethodGet, "/stream/999", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("bad id", func(t *testing.T) {
		rec := e.do(t, httptest.NewRequest(http.MethodGet, "/stream/notanumber", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestIcons(t *testing.T) {
	e := setup(t)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/icons?mime_type=image/png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/icons", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebAssets(t *testing.T) {
	e := setup(t)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<html")

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/web/index.html", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/web/missing.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
