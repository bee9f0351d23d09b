package account

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(service *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/v1"), service, nil)
	return r
}

func doJSON(r http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHTTPLoginFlow(t *testing.T) {
	r := newTestRouter(NewService(newMemoryStore(), testConfig()))

	res := doJSON(r, http.MethodPost, "/v1/auth/login", gin.H{"email": "user@example.com", "password": "StrongPass1!"}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var created authResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Equal(t, "Account created and logged in", created.Message)
	assert.Equal(t, ModePremium, created.Account.Mode)
	require.NotEmpty(t, created.Token.AccessToken)

	res = doJSON(r, http.MethodPost, "/v1/auth/login", gin.H{"email": "user@example.com", "password": "StrongPass1!"}, nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = doJSON(r, http.MethodPost, "/v1/auth/login", gin.H{"email": "user@example.com", "password": "WrongPass1!"}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = doJSON(r, http.MethodGet, "/v1/me", nil, http.Header{"Authorization": {"Bearer " + created.Token.AccessToken}})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "user@example.com")
}

func TestHTTPQuickAccessAndLookup(t *testing.T) {
	r := newTestRouter(NewService(newMemoryStore(), testConfig()))

	res := doJSON(r, http.MethodPost, "/v1/auth/quick", gin.H{"email": "visitor@example.com", "name": "Visitor"}, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = doJSON(r, http.MethodGet, "/v1/users/visitor@example.com", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"mode":"free"`)
	assert.NotContains(t, res.Body.String(), "password")

	res = doJSON(r, http.MethodGet, "/v1/users/nobody@example.com", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestHTTPValidation(t *testing.T) {
	r := newTestRouter(NewService(newMemoryStore(), testConfig()))

	res := doJSON(r, http.MethodPost, "/v1/auth/quick", gin.H{"email": "visitor@example.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = doJSON(r, http.MethodPost, "/v1/auth/login", gin.H{"email": "user@example.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHTTPMeRequiresToken(t *testing.T) {
	r := newTestRouter(NewService(newMemoryStore(), testConfig()))

	res := doJSON(r, http.MethodGet, "/v1/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = doJSON(r, http.MethodGet, "/v1/me", nil, http.Header{"Authorization": {"Token abc"}})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = doJSON(r, http.MethodGet, "/v1/me", nil, http.Header{"Authorization": {"Bearer abc.def.ghi"}})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
