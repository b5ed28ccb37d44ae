package db

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SQL live debugging")

	req = httptest.NewRequest(http.MethodGet, "/debug/", nil)
	req.RemoteAddr = "203.0.113.9:40000"
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code, "debug routes are local only")
}

func TestBackupRoute(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".db.gz")

	gz, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("SQLite format 3\x00")))
}
