package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/showkit/scenerelay/backend/model"
	"github.com/showkit/scenerelay/backend/session"
	"github.com/showkit/scenerelay/backend/storage/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *session.Buffer) {
	t.Helper()
	logger := zerolog.Nop()
	store, err := disk.New(t.TempDir(), &logger)
	require.NoError(t, err)

	buf := session.NewBuffer()
	srv := NewServer(Config{
		Logger:     &logger,
		Store:      store,
		Buffer:     buf,
		Realtime:   http.NotFoundHandler(),
		ListenAddr: ":0",
		PublicURL:  "https://scene.example.com",
	})
	return srv, buf
}

func multipartModel(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("model", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func doUpload(t *testing.T, srv *Server, socketID, role, filename string) UploadResponse {
	t.Helper()
	body, contentType := multipartModel(t, filename, "glb-bytes")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	if socketID != "" {
		req.Header.Set(headerSocketID, socketID)
	}
	if role != "" {
		req.Header.Set(headerUploaderRole, role)
	}

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestUpload_MissingFile(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("not multipart"))
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestUpload_ViewerGetsURLButIsNotBuffered(t *testing.T) {
	srv, buf := newTestServer(t)

	resp := doUpload(t, srv, "viewer-1", model.RoleViewer, "part.glb")
	assert.True(t, strings.HasPrefix(resp.URL, "https://scene.example.com/uploads/"), resp.URL)
	assert.True(t, strings.HasSuffix(resp.Name, "-part.glb"), resp.Name)
	assert.Zero(t, buf.Len("viewer-1"))

	// missing role header defaults to viewer
	doUpload(t, srv, "viewer-2", "", "other.glb")
	assert.Zero(t, buf.Len("viewer-2"))
}

func TestUpload_HostUploadsAccumulate(t *testing.T) {
	srv, buf := newTestServer(t)

	first := doUpload(t, srv, "host-1", model.RoleHost, "a.glb")
	second := doUpload(t, srv, "host-1", model.RoleHost, "b.glb")
	require.Equal(t, 2, buf.Len("host-1"))

	parts := buf.Flush("host-1")
	require.Len(t, parts, 2)
	assert.Equal(t, first.Name, parts[0].Name)
	assert.Equal(t, first.URL, parts[0].URL)
	assert.Equal(t, second.Name, parts[1].Name)
	assert.Equal(t, "host-1", parts[0].Sender)
}

func TestListUploads(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/list-uploads", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	uploaded := doUpload(t, srv, "v", model.RoleViewer, "part.glb")

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/list-uploads", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []ListEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, uploaded.Name, entries[0].Name)
	assert.Equal(t, uploaded.URL, entries[0].URL)
}

func TestDeleteUpload(t *testing.T) {
	srv, _ := newTestServer(t)

	uploaded := doUpload(t, srv, "v", model.RoleViewer, "part.glb")

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/delete-upload/"+uploaded.Name, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), uploaded.Name)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/delete-upload/"+uploaded.Name, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAllUploads(t *testing.T) {
	srv, _ := newTestServer(t)

	doUpload(t, srv, "v", model.RoleViewer, "a.glb")
	doUpload(t, srv, "v", model.RoleViewer, "b.glb")

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/delete-all-uploads", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GenericResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "deleted 2 uploads", resp.Message)
}

func TestBaseURL_FallsBackToRequestHost(t *testing.T) {
	logger := zerolog.Nop()
	store, err := disk.New(t.TempDir(), &logger)
	require.NoError(t, err)

	srv := NewServer(Config{
		Logger:     &logger,
		Store:      store,
		Buffer:     session.NewBuffer(),
		Realtime:   http.NotFoundHandler(),
		ListenAddr: ":0",
	})

	resp := doUpload(t, srv, "v", model.RoleViewer, "part.glb")
	assert.True(t, strings.HasPrefix(resp.URL, "http://example.com/uploads/"), resp.URL)
}
