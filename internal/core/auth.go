package core

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"revenda/internal/types"
)

// Authenticator verifies a presented panel token. Injected on Server for
// testability.
type Authenticator interface {
	Verify(token string) error
}

// PanelTokenAuthenticator authenticates the single admin panel token
// against its bcrypt hash from configuration. The tenant is identified by
// the X-Organization-Id header; the token grants access to the panel, not
// to a specific organization.
//
// bcrypt comparison costs ~50-100ms, so the first successful token is
// cached and subsequent requests use a constant-time byte comparison.
type PanelTokenAuthenticator struct {
	tokenHash []byte

	mu          sync.RWMutex
	cachedToken string
}

// NewPanelTokenAuthenticator creates an authenticator for the given bcrypt
// token hash.
func NewPanelTokenAuthenticator(tokenHash string) *PanelTokenAuthenticator {
	return &PanelTokenAuthenticator{tokenHash: []byte(tokenHash)}
}

// Verify checks a presented token against the configured hash.
func (a *PanelTokenAuthenticator) Verify(token string) error {
	if token == "" {
		return types.NewAppError(types.ErrCodeAuthTokenMissing, "panel token is required", nil)
	}

	a.mu.RLock()
	cached := a.cachedToken
	a.mu.RUnlock()

	if cached != "" && subtle.ConstantTimeCompare([]byte(cached), []byte(token)) == 1 {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(a.tokenHash, []byte(token)); err != nil {
		return types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid panel token", err)
	}

	a.mu.Lock()
	a.cachedToken = token
	a.mu.Unlock()
	return nil
}

// authPublicPaths lists URL paths that are exempt from authentication.
// The Stripe webhook authenticates via its own signature header.
var authPublicPaths = map[string]bool{
	"/health":          true,
	"/webhooks/stripe": true,
}

// AuthMiddleware enforces panel token authentication.
//
//  1. Extracts the Bearer token from the Authorization header.
//  2. Verifies it against the configured bcrypt hash.
//  3. Reads the tenant from the X-Organization-Id header and injects it
//     into the context via types.WithOrganizationID.
//  4. Returns 401 with auth_token_missing / auth_token_invalid on failure.
//
// If the Auth field on Server is nil (e.g., during tests that don't inject
// one), the middleware passes through without authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Auth == nil || authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authorization header is required", nil))
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Bearer token is required", nil))
			return
		}

		if err := s.Auth.Verify(token); err != nil {
			Error(w, r, err)
			return
		}

		orgID := r.Header.Get("X-Organization-Id")
		if orgID == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "X-Organization-Id header is required", nil))
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithOrganizationID(r.Context(), orgID)))
	})
}

// extractBearerToken parses the Authorization header value and returns the
// token string. It expects "Bearer <token>" (case-insensitive scheme per
// RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
