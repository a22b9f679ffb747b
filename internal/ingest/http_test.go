package ingest

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/mediapost/internal/ledger"
)

func multipartBody(t *testing.T, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func newTestHandler(t *testing.T, store *fakeStore, led *fakeLedger) http.Handler {
	t.Helper()
	svc := newTestService(t, store, led)
	h := NewHTTPHandler(svc, zap.NewNop(), 10<<20, 1<<20)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestHandleUploadImage(t *testing.T) {
	store := &fakeStore{}
	router := newTestHandler(t, store, &fakeLedger{})

	body, contentType := multipartBody(t, "photo.jpg", "image/jpeg", jpegUpload(t, 1200, 800).Bytes())
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["smallImageUrl"])
	assert.NotEmpty(t, resp["largeImageUrl"])
}

func TestHandleUploadGif(t *testing.T) {
	router := newTestHandler(t, &fakeStore{}, &fakeLedger{})

	body, contentType := multipartBody(t, "loop.gif", "image/gif", gifUpload(t).Bytes())
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["gifUrl"])
	assert.NotEmpty(t, resp["jpgUrl"])
}

func TestHandleUploadUnsupportedType(t *testing.T) {
	store := &fakeStore{}
	led := &fakeLedger{}
	router := newTestHandler(t, store, led)

	body, contentType := multipartBody(t, "doc.pdf", "application/pdf", []byte("%PDF-"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Empty(t, store.stored)
	assert.Empty(t, led.calls)
}

func TestHandleUploadEnforcesLimitWithoutContentLength(t *testing.T) {
	store := &fakeStore{}
	led := &fakeLedger{}
	svc := newTestService(t, store, led)
	h := NewHTTPHandler(svc, zap.NewNop(), 1024, 1<<20)
	router := chi.NewRouter()
	h.Register(router)

	body, contentType := multipartBody(t, "big.jpg", "image/jpeg", bytes.Repeat([]byte("x"), 8<<10))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	// Chunked transfer: length unknown upfront.
	req.ContentLength = -1
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, store.stored)
	assert.Empty(t, led.calls)
}

func TestHandleUploadMissingFile(t *testing.T) {
	router := newTestHandler(t, &fakeStore{}, &fakeLedger{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("note", "no file here"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRecentUploads(t *testing.T) {
	led := &fakeLedger{recent: []ledger.Record{
		{ID: uuid.New(), Key: "1700000001-b.jpg", ContentType: "image/jpeg", State: ledger.StateCommitted, CreatedAt: time.Now().UTC()},
		{ID: uuid.New(), Key: "1700000000-a.gif", ContentType: "image/gif", State: ledger.StateCommitted, CreatedAt: time.Now().UTC().Add(-time.Hour)},
	}}
	router := newTestHandler(t, &fakeStore{}, led)

	req := httptest.NewRequest(http.MethodGet, "/api/uploads?limit=1", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Uploads []struct {
			Key         string `json:"key"`
			ContentType string `json:"contentType"`
		} `json:"uploads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Uploads, 1)
	assert.Equal(t, "1700000001-b.jpg", resp.Uploads[0].Key)
	assert.Equal(t, "image/jpeg", resp.Uploads[0].ContentType)
}

func TestHandleRecentUploadsRejectsBadLimit(t *testing.T) {
	router := newTestHandler(t, &fakeStore{}, &fakeLedger{})

	req := httptest.NewRequest(http.MethodGet, "/api/uploads?limit=nope", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListObjects(t *testing.T) {
	router := newTestHandler(t, &fakeStore{}, &fakeLedger{})

	req := httptest.NewRequest(http.MethodGet, "/api/list-objects", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Contents")
}
