package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasgodse24/chat-with-pdf/internal/config"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = port
	cfg.Storage.Root = t.TempDir()

	srv, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.redis.Close() })
	return srv.Handler()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_UploadThenFetch(t *testing.T) {
	h := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.7\nsome bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("ingest", "false"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(h, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var uploaded struct {
		FileID string `json:"file_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	require.NotEmpty(t, uploaded.FileID)
	assert.Equal(t, "uploaded", uploaded.Status)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+uploaded.FileID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"filename":"report.pdf"`)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestServer_Routing(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"empty message", http.MethodPost, "/api/v1/chat", `{"message":"  "}`, http.StatusBadRequest},
		{"unknown conversation", http.MethodGet, "/api/v1/chats/nope", "", http.StatusNotFound},
		{"empty conversation list", http.MethodGet, "/api/v1/chats", "", http.StatusOK},
		{"unknown file", http.MethodGet, "/api/v1/files/nope", "", http.StatusNotFound},
		{"retrieve over unknown files", http.MethodPost, "/api/v1/retrieve", `{"file_ids":["nope"],"query":"q"}`, http.StatusOK},
		{"retrieve without query", http.MethodPost, "/api/v1/retrieve", `{"file_ids":["nope"]}`, http.StatusBadRequest},
		{"malformed webhook key", http.MethodPost, "/api/v1/webhooks/upload", `{"key":"elsewhere/x.pdf"}`, http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/api/v1/chat", "", http.StatusMethodNotAllowed},
		{"wrong method on file", http.MethodDelete, "/api/v1/files/abc", "", http.StatusMethodNotAllowed},
		{"wrong method on health", http.MethodPost, "/health", "", http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/api/v2/chat", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := serve(h, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_FallbackResponsesAreJSON(t *testing.T) {
	h := newTestServer(t)

	rec := serve(h, httptest.NewRequest(http.MethodDelete, "/api/v1/chat", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Method Not Allowed","message":"Method not allowed","status":405}`, rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v2/chat", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found","message":"Resource not found","status":404}`, rec.Body.String())
}

func TestServer_CORSPreflight(t *testing.T) {
	h := newTestServer(t)

	rec := serve(h, httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}
