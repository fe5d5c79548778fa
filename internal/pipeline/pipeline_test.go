package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"opshop/internal/cache"
	"opshop/internal/csrf"
	"opshop/internal/governance"
	"opshop/internal/models"
	"opshop/internal/ratelimit"
	"opshop/internal/sanitize"
	"opshop/internal/session"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kindRecorder struct{ kinds []governance.Kind }

func (k *kindRecorder) Rejected(_ context.Context, e *governance.Error) {
	k.kinds = append(k.kinds, e.Kind)
}

func newTestPipeline(t *testing.T, classes map[string]models.RateLimitClassConfig) (*Pipeline, *kindRecorder) {
	t.Helper()
	cfg := models.NewDefaultConfig()
	if classes == nil {
		classes = cfg.Security.RateLimit.Classes
	}

	registry, err := ratelimit.NewRegistry(classes, ratelimit.MemoryFactory(ratelimit.WithCleanupInterval(0)))
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	recorder := &kindRecorder{}
	errs := governance.NewWriter(recorder)
	keyFn := ratelimit.ClientIPKey(false)

	return &Pipeline{
		Detector:  sanitize.NewDetector(true, nil),
		Sanitizer: sanitize.New(cfg.Security.Sanitizer.MaxLength),
		Limiters:  registry,
		Sessions:  session.NewManager(session.NewMemoryStore(nil), cfg.Session, nil),
		Guard:     csrf.NewGuard(cfg.Security.CSRF, keyFn, errs),
		Cache:     cache.NewResponseCache(cache.NewMemoryStore(), cfg.Cache),
		KeyFunc:   keyFn,
		Errors:    errs,
	}, recorder
}

type echoHandler struct{ calls atomic.Int32 }

func (h *echoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls.Add(1)
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if len(body) == 0 {
		body = []byte(`{"ok":true}`)
	}
	w.Write(body)
}

func fetchToken(t *testing.T, p *Pipeline) (string, *http.Cookie) {
	t.Helper()
	h := p.Chain(models.ClassAPI, http.HandlerFunc(p.Guard.TokenHandler))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/csrf-token", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.CSRFTokenResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	return resp.CSRFToken, cookies[0]
}

func TestChain_SanitizedBodyWithValidToken(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	token, cookie := fetchToken(t, p)
	next := &echoHandler{}
	h := p.Chain(models.ClassMessaging, next)

	req := httptest.NewRequest("POST", "/api/messages", strings.NewReader(
		`{"recipient_id":"u2","body":"  hi <script>alert(1)</script> "}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-csrf-token", token)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "hi alert(1)", got["body"])
	assert.Equal(t, "30", rr.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "29", rr.Header().Get("RateLimit-Remaining"))
}

func TestChain_SanitizesUnlabelledJSONBodies(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	token, cookie := fetchToken(t, p)
	h := p.Chain(models.ClassMessaging, &echoHandler{})

	for _, contentType := range []string{"", "text/plain", "application/vnd.api+json"} {
		t.Run("content-type="+contentType, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/messages", strings.NewReader(
				`{"recipient_id":"u2","body":"  hi <script>alert(1)</script> "}`))
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			req.Header.Set("x-csrf-token", token)
			req.AddCookie(cookie)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			require.Equal(t, http.StatusOK, rr.Code)
			var got map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			assert.Equal(t, "hi alert(1)", got["body"])
		})
	}
}

func TestChain_CSRFRejection(t *testing.T) {
	p, recorder := newTestPipeline(t, nil)
	_, cookie := fetchToken(t, p)
	next := &echoHandler{}
	h := p.Chain(models.ClassAPI, next)

	req := httptest.NewRequest("POST", "/api/cart/items", strings.NewReader(`{"product_id":"p1","quantity":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-csrf-token", "forged")
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Invalid CSRF token", body.Error)
	assert.Equal(t, models.ErrorCodeCSRFValidation, body.Code)
	assert.Equal(t, int32(0), next.calls.Load())
	assert.Equal(t, []governance.Kind{governance.KindCsrfValidationFailed}, recorder.kinds)
}

func TestChain_RateLimitRunsBeforeCSRF(t *testing.T) {
	classes := map[string]models.RateLimitClassConfig{
		models.ClassAPI: {MaxRequests: 2, Window: time.Minute, Algorithm: models.AlgorithmSlidingWindow},
	}
	p, recorder := newTestPipeline(t, classes)
	next := &echoHandler{}
	h := p.Chain(models.ClassAPI, next)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/cart/items", strings.NewReader(`{}`)))
		codes = append(codes, rr.Code)
	}

	assert.Equal(t, []int{http.StatusForbidden, http.StatusForbidden, http.StatusTooManyRequests}, codes)
	assert.Equal(t, []governance.Kind{
		governance.KindCsrfValidationFailed,
		governance.KindCsrfValidationFailed,
		governance.KindRateLimitExceeded,
	}, recorder.kinds)
	assert.Equal(t, int32(0), next.calls.Load())
}

func TestChain_DetectorShortCircuits(t *testing.T) {
	p, recorder := newTestPipeline(t, nil)
	next := &echoHandler{}
	h := p.Chain(models.ClassSearch, next, Cached())

	req := httptest.NewRequest("GET", "/api/search?q=1%27%20or%201%3D1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, rr.Header().Get("RateLimit-Limit"), "limiter never ran")
	assert.Equal(t, []governance.Kind{governance.KindSuspiciousActivityDetected}, recorder.kinds)
	assert.Equal(t, int32(0), next.calls.Load())
}

func TestChain_CachedRoute(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	next := &echoHandler{}
	h := p.Chain(models.ClassAPI, next, Cached())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/categories", nil))
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/categories", nil))
	assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))
	assert.Equal(t, "98", rr.Header().Get("RateLimit-Remaining"), "cache hits still count against the budget")
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestChain_UncachedRouteHasNoCacheHeaders(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	h := p.Chain(models.ClassAPI, &echoHandler{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/products/p1/availability", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("X-Cache"))
}

func TestChain_NilStagesSkipped(t *testing.T) {
	p := &Pipeline{}
	next := &echoHandler{}
	rr := httptest.NewRecorder()
	p.Chain(models.ClassAPI, next).ServeHTTP(rr, httptest.NewRequest("POST", "/api/cart/items", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestChain_UnknownClassFallsBackToAPI(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	rr := httptest.NewRecorder()
	p.Chain("reports", &echoHandler{}).ServeHTTP(rr, httptest.NewRequest("GET", "/api/reports", nil))
	assert.Equal(t, "100", rr.Header().Get("RateLimit-Limit"))
}

func TestClassFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/auth/login", models.ClassAuth},
		{"/api/login", models.ClassAuth},
		{"/api/logout", models.ClassAuth},
		{"/api/search", models.ClassSearch},
		{"/api/checkout/payment-intent", models.ClassPayment},
		{"/api/buyback/submissions", models.ClassBuyback},
		{"/api/messages", models.ClassMessaging},
		{"/api/products/featured", models.ClassAPI},
		{"/api/csrf-token", models.ClassAPI},
		{"/api/searchable", models.ClassAPI},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassFor(tt.path))
		})
	}
}
