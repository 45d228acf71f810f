package core

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"revenda/internal/config"
	"revenda/internal/types"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s, err := NewServer(&config.Config{Environment: "local"}, logger)
	require.NoError(t, err)
	return s
}

func hashToken(t *testing.T, token string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestPanelTokenAuthenticator_Verify(t *testing.T) {
	auth := NewPanelTokenAuthenticator(hashToken(t, "tok_secret"))

	require.NoError(t, auth.Verify("tok_secret"))
	// Second call hits the cached-token fast path.
	require.NoError(t, auth.Verify("tok_secret"))

	err := auth.Verify("tok_wrong")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)

	err = auth.Verify("")
	require.Error(t, err)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenMissing, appErr.Code)
}

func TestAuthMiddleware_ValidTokenInjectsOrg(t *testing.T) {
	s := testServer(t)
	s.Auth = NewPanelTokenAuthenticator(hashToken(t, "tok_secret"))

	var gotOrg string
	handler := s.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg = types.GetOrganizationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/v1/clients", nil)
	r.Header.Set("Authorization", "Bearer tok_secret")
	r.Header.Set("X-Organization-Id", "org_1")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "org_1", gotOrg)
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	s := testServer(t)
	s.Auth = NewPanelTokenAuthenticator(hashToken(t, "tok_secret"))

	handler := s.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/v1/clients", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "auth_token_missing", resp.Error.Code)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	s := testServer(t)
	s.Auth = NewPanelTokenAuthenticator(hashToken(t, "tok_secret"))

	handler := s.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/v1/clients", nil)
	r.Header.Set("Authorization", "Bearer tok_wrong")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_MissingOrgHeader(t *testing.T) {
	s := testServer(t)
	s.Auth = NewPanelTokenAuthenticator(hashToken(t, "tok_secret"))

	handler := s.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/v1/clients", nil)
	r.Header.Set("Authorization", "Bearer tok_secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_HealthIsPublic(t *testing.T) {
	s := testServer(t)
	s.Auth = NewPanelTokenAuthenticator(hashToken(t, "tok_secret"))

	handler := s.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", extractBearerToken("bearer abc"))
	assert.Equal(t, "", extractBearerToken("Basic abc"))
	assert.Equal(t, "", extractBearerToken(""))
}
