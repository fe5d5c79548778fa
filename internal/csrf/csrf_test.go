package csrf

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"opshop/internal/models"
	"opshop/internal/session"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer wires the session manager, guard and token endpoint the way
// the API does.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := models.NewDefaultConfig()
	manager := session.NewManager(session.NewMemoryStore(nil), cfg.Session, nil)
	guard := NewGuard(cfg.Security.CSRF, nil, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/csrf-token", guard.TokenHandler)
	mux.HandleFunc("/api/cart/items", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/products/featured", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Token", Token(r))
		w.WriteHeader(http.StatusOK)
	})

	return manager.Middleware()(guard.Middleware()(mux))
}

func fetchToken(t *testing.T, h http.Handler) (string, *http.Cookie) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/csrf-token", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.CSRFTokenResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "CSRF token generated successfully", resp.Message)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	return resp.CSRFToken, cookies[0]
}

func TestGuard_RoundTrip(t *testing.T) {
	h := newTestServer(t)
	token, cookie := fetchToken(t, h)
	assert.Len(t, token, 64)

	for _, header := range TokenHeaders {
		req := httptest.NewRequest("POST", "/api/cart/items", strings.NewReader(`{"product_id":"p1","quantity":1}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(header, token)
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusCreated, rr.Code, "header %s", header)
	}
}

func TestGuard_TokenStableForSession(t *testing.T) {
	h := newTestServer(t)
	token, cookie := fetchToken(t, h)

	req := httptest.NewRequest("GET", "/api/csrf-token", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var resp models.CSRFTokenResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, token, resp.CSRFToken)
}

func TestGuard_RejectsMismatchedToken(t *testing.T) {
	h := newTestServer(t)
	_, cookie := fetchToken(t, h)

	forged, err := NewToken()
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/cart/items", nil)
	req.Header.Set("X-CSRF-Token", forged)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "Invalid CSRF token", body.Error)
	assert.Equal(t, models.ErrorCodeCSRFValidation, body.Code)
	assert.NotEmpty(t, body.Message)
}

func TestGuard_RejectsMissingToken(t *testing.T) {
	h := newTestServer(t)
	_, cookie := fetchToken(t, h)

	for _, method := range []string{"POST", "PUT", "PATCH", "DELETE"} {
		req := httptest.NewRequest(method, "/api/cart/items", nil)
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code, method)
	}
}

func TestGuard_RejectsTokenFromAnotherSession(t *testing.T) {
	h := newTestServer(t)
	tokenA, _ := fetchToken(t, h)
	_, cookieB := fetchToken(t, h)

	req := httptest.NewRequest("POST", "/api/cart/items", nil)
	req.Header.Set("csrf-token", tokenA)
	req.AddCookie(cookieB)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGuard_BodyAndQueryFallback(t *testing.T) {
	h := newTestServer(t)
	token, cookie := fetchToken(t, h)

	jsonBody := `{"product_id":"p1","quantity":2,"_csrf":"` + token + `"}`
	req := httptest.NewRequest("POST", "/api/cart/items", strings.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, jsonBody, rr.Body.String(), "body is restored for the handler")

	form := url.Values{"product_id": {"p1"}, FieldName: {token}}
	req = httptest.NewRequest("POST", "/api/cart/items", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code)

	req = httptest.NewRequest("POST", "/api/cart/items?_csrf="+token, nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestGuard_ExemptPaths(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGuard_SafeMethodsMintToken(t *testing.T) {
	h := newTestServer(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/products/featured", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	minted := rr.Header().Get("X-Token")
	assert.Len(t, minted, 64)
	require.Len(t, rr.Result().Cookies(), 1, "minting a token persists the session")

	// The minted token is the one the endpoint hands out later
	req := httptest.NewRequest("GET", "/api/csrf-token", nil)
	req.AddCookie(rr.Result().Cookies()[0])
	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req)
	var resp models.CSRFTokenResponse
	require.NoError(t, json.NewDecoder(rr2.Body).Decode(&resp))
	assert.Equal(t, minted, resp.CSRFToken)
}

func TestGuard_NoSession(t *testing.T) {
	guard := NewGuard(models.NewDefaultConfig().Security.CSRF, nil, nil)

	rr := httptest.NewRecorder()
	guard.TokenHandler(rr, httptest.NewRequest("GET", "/api/csrf-token", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, models.ErrorCodeSessionUnavailable, body.Code)
	assert.Contains(t, body.Message, "enable cookies")

	called := false
	h := guard.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/products/featured", nil))
	assert.True(t, called, "safe methods are never blocked")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/messages", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("abc", "abc"))
	assert.False(t, Equal("abc", "abd"))
	assert.False(t, Equal("abc", "ab"))
	assert.False(t, Equal("", ""))
	assert.False(t, Equal("abc", ""))
}

func TestExempt(t *testing.T) {
	guard := NewGuard(models.NewDefaultConfig().Security.CSRF, nil, nil)

	assert.True(t, guard.Exempt("/api/auth/login"))
	assert.True(t, guard.Exempt("/api/auth/logout"))
	assert.True(t, guard.Exempt("/api/csrf-token"))
	assert.True(t, guard.Exempt("/api/login"))
	assert.False(t, guard.Exempt("/api/cart/items"))
	assert.False(t, guard.Exempt("/api/authors"))
	assert.False(t, guard.Exempt("/api/loginanything"))
	assert.False(t, guard.Exempt("/api/csrf-token-x"))
	assert.False(t, guard.Exempt("/api/auth"), "trailing slash entries only cover their subtree")
	assert.True(t, guard.Exempt("/api/login/sso"))
}
