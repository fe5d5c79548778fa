// Package csrf implements a session-bound double-submit token guard.
//
// Each session holds at most one token, minted lazily on the first safe
// request or token endpoint call and kept for the life of the session.
// State-changing requests must echo it back in a header or a _csrf field.
package csrf

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"opshop/internal/governance"
	"opshop/internal/models"
	"opshop/internal/session"
	"strings"
)

const (
	// SessionKey is where the token lives in the session.
	SessionKey = "csrf_token"
	// FieldName is the body or query field accepted as a fallback to headers.
	FieldName = "_csrf"

	tokenBytes   = 32
	maxBodyBytes = 1 << 20
)

// TokenHeaders are checked in order for a submitted token.
var TokenHeaders = []string{"csrf-token", "xsrf-token", "x-csrf-token", "x-xsrf-token"}

// Guard validates CSRF tokens on unsafe requests.
type Guard struct {
	exempt   []string
	errs     *governance.Writer
	clientIP func(*http.Request) string
}

// NewGuard returns a Guard exempting the configured paths. An entry ending in
// "/" exempts everything below it; any other entry exempts itself and its
// subpaths, so "/api/login" does not cover "/api/loginx".
func NewGuard(cfg models.CSRFConfig, clientIP func(*http.Request) string, errs *governance.Writer) *Guard {
	return &Guard{
		exempt:   cfg.ExemptPaths,
		errs:     errs,
		clientIP: clientIP,
	}
}

// Exempt reports whether path skips validation.
func (g *Guard) Exempt(path string) bool {
	for _, entry := range g.exempt {
		if entry == "" {
			continue
		}
		if path == entry {
			return true
		}
		if !strings.HasSuffix(entry, "/") {
			entry += "/"
		}
		if strings.HasPrefix(path, entry) {
			return true
		}
	}
	return false
}

// Middleware never blocks safe methods; it only makes sure their session
// has a token. Unsafe methods on protected paths must submit the session's
// token.
func (g *Guard) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, hasSession := session.FromContext(r.Context())

			if isSafeMethod(r.Method) {
				if hasSession {
					if _, err := EnsureToken(s); err != nil {
						slog.Error("Failed to mint CSRF token", "error", err)
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if g.Exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if !hasSession {
				slog.Error("CSRF validation without a session", "path", r.URL.Path)
				g.errs.Write(w, r, governance.NewSessionUnavailableError(nil))
				return
			}

			expected, _ := s.Get(SessionKey)
			submitted := SubmittedToken(r)
			if !Equal(expected, submitted) {
				slog.Warn("CSRF token validation failed",
					"ip", g.ip(r),
					"path", r.URL.Path,
					"method", r.Method,
					"user_agent", r.UserAgent(),
					"has_expected", expected != "",
					"has_submitted", submitted != "",
				)
				g.errs.Write(w, r, governance.NewCSRFError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TokenHandler serves GET /api/csrf-token.
func (g *Guard) TokenHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		g.errs.Write(w, r, governance.NewSessionUnavailableError(nil))
		return
	}

	token, err := EnsureToken(s)
	if err != nil {
		slog.Error("Failed to mint CSRF token", "error", err)
		g.errs.Write(w, r, governance.NewSessionUnavailableError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.CSRFTokenResponse{
		CSRFToken: token,
		Message:   "CSRF token generated successfully",
	})
}

func (g *Guard) ip(r *http.Request) string {
	if g.clientIP != nil {
		return g.clientIP(r)
	}
	return r.RemoteAddr
}

// Token returns the request session's token, or "" when there is none.
func Token(r *http.Request) string {
	s, ok := session.FromContext(r.Context())
	if !ok {
		return ""
	}
	token, _ := s.Get(SessionKey)
	return token
}

// EnsureToken returns the session's token, minting one if absent.
func EnsureToken(s *session.Session) (string, error) {
	if token, ok := s.Get(SessionKey); ok && token != "" {
		return token, nil
	}
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	s.Set(SessionKey, token)
	return token, nil
}

// NewToken returns 32 random bytes, hex encoded.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Equal compares tokens in constant time. Empty tokens never match.
func Equal(expected, submitted string) bool {
	if expected == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1
}

// SubmittedToken reads the token from the first populated header, then the
// query string, then a JSON or urlencoded body field. The body is restored
// for the next handler.
func SubmittedToken(r *http.Request) string {
	for _, h := range TokenHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	if v := r.URL.Query().Get(FieldName); v != "" {
		return v
	}
	return bodyField(r)
}

func bodyField(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" && mediaType != "application/x-www-form-urlencoded" {
		return ""
	}

	body := r.Body
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	r.Body = readCloser{io.MultiReader(bytes.NewReader(raw), body), body}
	if err != nil {
		return ""
	}

	if mediaType == "application/json" {
		var fields map[string]any
		if json.Unmarshal(raw, &fields) != nil {
			return ""
		}
		v, _ := fields[FieldName].(string)
		return v
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return ""
	}
	return values.Get(FieldName)
}

type readCloser struct {
	io.Reader
	io.Closer
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
