package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"opshop/internal/clock"
	"opshop/internal/models"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() models.SessionConfig {
	cfg := models.NewDefaultConfig().Session
	cfg.TTL = time.Hour
	return cfg
}

func TestMemoryStore_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Unix(1700000000, 0))
	store := NewMemoryStore(fake)

	s := New("abc", fake.Now(), time.Hour)
	s.Set("csrf_token", "tok")
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	v, ok := got.Get("csrf_token")
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	// Stored copy is isolated from later mutation
	got.Set("csrf_token", "changed")
	again, _ := store.Get(ctx, "abc")
	v, _ = again.Get("csrf_token")
	assert.Equal(t, "tok", v)

	require.NoError(t, store.Delete(ctx, "abc"))
	_, err = store.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ExpiryAndCleanup(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Unix(1700000000, 0))
	store := NewMemoryStore(fake)

	require.NoError(t, store.Save(ctx, New("short", fake.Now(), time.Minute)))
	require.NoError(t, store.Save(ctx, New("long", fake.Now(), time.Hour)))

	fake.Advance(time.Minute)
	_, err := store.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound, "session is invalid at its expiry instant")

	removed, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestSession_DirtyTracking(t *testing.T) {
	s := New("id", time.Now(), time.Hour)
	assert.False(t, s.Dirty())

	s.Set("k", "v")
	assert.True(t, s.Dirty())

	s.markClean()
	s.Set("k", "v")
	assert.False(t, s.Dirty(), "setting the same value is not a change")

	s.Delete("missing")
	assert.False(t, s.Dirty())
	s.Delete("k")
	assert.True(t, s.Dirty())
}

func TestManager_NewSessionCookieOnlyWhenUsed(t *testing.T) {
	store := NewMemoryStore(nil)
	manager := NewManager(store, testConfig(), nil)

	untouched := manager.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := FromContext(r.Context())
		assert.True(t, ok)
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	untouched.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Empty(t, rr.Result().Cookies())
	assert.Equal(t, 0, store.Len())

	used := manager.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		s.Set("csrf_token", "tok")
		w.Write([]byte("ok"))
	}))
	rr = httptest.NewRecorder()
	used.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "opshop_sid", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, 1, store.Len())
}

func TestManager_LoadsExistingSession(t *testing.T) {
	store := NewMemoryStore(nil)
	manager := NewManager(store, testConfig(), nil)

	existing := New("known-id", time.Now(), time.Hour)
	existing.Set("user_id", "u1")
	require.NoError(t, store.Save(context.Background(), existing))

	var seen string
	handler := manager.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		seen, _ = s.Get("user_id")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "opshop_sid", Value: "known-id"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "u1", seen)
	assert.Empty(t, rr.Result().Cookies(), "existing session needs no new cookie")
}

func TestManager_UnknownCookieStartsFreshSession(t *testing.T) {
	store := NewMemoryStore(nil)
	manager := NewManager(store, testConfig(), nil)

	var id string
	handler := manager.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		id = s.ID
		s.Set("k", "v")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "opshop_sid", Value: "forged"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.NotEqual(t, "forged", id)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, id, cookies[0].Value)
}

func TestManager_Destroy(t *testing.T) {
	store := NewMemoryStore(nil)
	manager := NewManager(store, testConfig(), nil)

	existing := New("logout-id", time.Now(), time.Hour)
	existing.Set("user_id", "u1")
	require.NoError(t, store.Save(context.Background(), existing))

	handler := manager.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, manager.Destroy(w, r))
		s, _ := FromContext(r.Context())
		s.Set("late", "write")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "opshop_sid", Value: "logout-id"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, 0, store.Len())
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis tests")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	store := NewRedisStore(rdb, "test:"+uuid.NewString(), nil)

	s := New(uuid.NewString(), time.Now(), time.Minute)
	s.Set("csrf_token", "tok")
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	v, _ := got.Get("csrf_token")
	assert.Equal(t, "tok", v)

	ttl, err := rdb.TTL(ctx, store.prefix+s.ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Delete(ctx, s.ID))
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
