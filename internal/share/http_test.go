package share

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduss/swiftshare/internal/transform"
)

func newTestRouter(t *testing.T, f *fixture, maxUpload int64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/v1"), HTTPConfig{
		Manager:        f.manager,
		Service:        f.service,
		Transformer:    transform.New(0),
		MaxUploadBytes: maxUpload,
	})
	return r
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func post(r http.Handler, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHTTPConvertShareAndDownload(t *testing.T) {
	f := newFixture(t, nil)
	r := newTestRouter(t, f, 1<<20)

	body, ct := multipartBody(t, map[string]string{"conversion_type": "PDF to Word"}, "report.pdf", []byte("%PDF-1.4 body"))
	res := post(r, "/v1/shares/convert", body, ct)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var created shareResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Len(t, created.Code, 10)
	assert.True(t, strings.HasPrefix(created.FileName, "converted_"))
	assert.True(t, strings.HasSuffix(created.FileName, ".docx"))
	assert.Equal(t, int64(len("%PDF-1.4 body")), created.FileSize)
	assert.Zero(t, created.CompressedSize)

	res = get(r, "/v1/shares/"+created.Code)
	require.Equal(t, http.StatusOK, res.Code)
	var summary Summary
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &summary))
	assert.Equal(t, "PDF to Word", summary.Category)
	assert.Equal(t, "report.pdf", summary.OriginalName)

	res = get(r, "/v1/shares/"+strings.ToLower(created.Code)+"/download")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "%PDF-1.4 body", res.Body.String())
	assert.Contains(t, res.Header().Get("Content-Disposition"), created.FileName)
	assert.Equal(t, "application/octet-stream", res.Header().Get("Content-Type"))
}

func TestHTTPCompressShare(t *testing.T) {
	f := newFixture(t, nil)
	r := newTestRouter(t, f, 1<<20)

	content := bytes.Repeat([]byte("swiftshare "), 500)
	body, ct := multipartBody(t, nil, "notes.txt", content)
	res := post(r, "/v1/shares/compress", body, ct)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var created shareResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Equal(t, "notes.txt_compressed.zip", created.FileName)
	assert.Equal(t, int64(len(content)), created.OriginalSize)
	assert.Equal(t, created.FileSize, created.CompressedSize)
	assert.Less(t, created.CompressedSize, created.OriginalSize)

	res = get(r, "/v1/shares/"+created.Code+"/download")
	require.Equal(t, http.StatusOK, res.Code)

	archive, err := zip.NewReader(bytes.NewReader(res.Body.Bytes()), int64(res.Body.Len()))
	require.NoError(t, err)
	require.Len(t, archive.File, 1)
	assert.Equal(t, "notes.txt", archive.File[0].Name)
	rc, err := archive.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	unpacked, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, unpacked)
}

func TestHTTPDirectConvert(t *testing.T) {
	f := newFixture(t, nil)
	r := newTestRouter(t, f, 1<<20)

	body, ct := multipartBody(t, map[string]string{"conversion_type": "TXT to PDF"}, "a.txt", []byte("plain"))
	res := post(r, "/v1/convert", body, ct)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "plain", res.Body.String())
	assert.Contains(t, res.Header().Get("Content-Disposition"), ".pdf")

	list, err := f.meta.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, list, "direct conversion issues no code")
}

func TestHTTPBadRequests(t *testing.T) {
	f := newFixture(t, nil)
	r := newTestRouter(t, f, 1<<20)

	body, ct := multipartBody(t, nil, "a.pdf", []byte("x"))
	res := post(r, "/v1/shares/convert", body, ct)
	assert.Equal(t, http.StatusBadRequest, res.Code, "conversion type missing")

	body, ct = multipartBody(t, map[string]string{"conversion_type": "PDF to Word"}, "", nil)
	res = post(r, "/v1/shares/convert", body, ct)
	assert.Equal(t, http.StatusBadRequest, res.Code, "file missing")

	body, ct = multipartBody(t, nil, "", nil)
	res = post(r, "/v1/shares/compress", body, ct)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = get(r, "/v1/shares/ABCDEFGHIJ/link?ttl=soon")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHTTPUploadTooLarge(t *testing.T) {
	f := newFixture(t, nil)
	r := newTestRouter(t, f, 16)

	body, ct := multipartBody(t, map[string]string{"conversion_type": "PDF to Word"}, "big.pdf", bytes.Repeat([]byte("a"), 64))
	res := post(r, "/v1/shares/convert", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.Code)

	list, err := f.meta.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHTTPUnknownCodes(t *testing.T) {
	f := newFixture(t, nil)
	r := newTestRouter(t, f, 1<<20)

	for _, path := range []string{
		"/v1/shares/ZZZZZZZZZZ",
		"/v1/shares/ZZZZZZZZZZ/download",
		"/v1/shares/not-a-code/download",
	} {
		res := get(r, path)
		assert.Equal(t, http.StatusNotFound, res.Code, path)
		assert.Contains(t, res.Body.String(), "file not found or expired")
	}
	assert.Zero(t, f.blobs.Calls())
}

func TestHTTPLinkNotImplementedOnDisk(t *testing.T) {
	f := newFixture(t, nil)
	r := newTestRouter(t, f, 1<<20)

	res := get(r, "/v1/shares/ABCDEFGHIJ/link")
	assert.Equal(t, http.StatusNotImplemented, res.Code)
}
