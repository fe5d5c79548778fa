package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"opshop/internal/clock"
	"opshop/internal/models"
	"time"

	"github.com/google/uuid"
)

// Manager binds sessions to a cookie.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	secure     bool
	clock      clock.Clock
}

func NewManager(store Store, cfg models.SessionConfig, c clock.Clock) *Manager {
	if c == nil {
		c = clock.Real()
	}
	return &Manager{
		store:      store,
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL,
		secure:     cfg.Secure,
		clock:      c,
	}
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// Middleware loads the session named by the cookie, or starts a new one, and
// attaches it to the request context. Changed sessions are saved before the
// response is written; a new session's cookie is only sent once something has
// been stored in it.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, isNew := m.load(r)

			sw := &sessionWriter{
				ResponseWriter: w,
				manager:        m,
				ctx:            r.Context(),
				session:        s,
				isNew:          isNew,
			}
			next.ServeHTTP(sw, r.WithContext(NewContext(r.Context(), s)))
			sw.commit()
		})
	}
}

func (m *Manager) load(r *http.Request) (*Session, bool) {
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		s, err := m.store.Get(r.Context(), cookie.Value)
		if err == nil {
			return s, false
		}
		if !errors.Is(err, ErrNotFound) {
			slog.Error("Failed to load session", "error", err)
		}
	}
	return New(uuid.NewString(), m.clock.Now(), m.ttl), true
}

// Destroy deletes the request's session and expires its cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	if s, ok := FromContext(r.Context()); ok {
		if err := m.store.Delete(r.Context(), s.ID); err != nil {
			return err
		}
		s.mu.Lock()
		s.Values = make(map[string]string)
		s.dirty = false
		s.destroyed = true
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) cookie(s *Session) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) save(ctx context.Context, s *Session) bool {
	if err := m.store.Save(ctx, s); err != nil {
		slog.Error("Failed to save session", "session_id", s.ID, "error", err)
		return false
	}
	s.markClean()
	return true
}

// sessionWriter saves the session just before the first byte of the
// response goes out, which is the last moment a cookie can be set.
type sessionWriter struct {
	http.ResponseWriter
	manager   *Manager
	ctx       context.Context
	session   *Session
	isNew     bool
	committed bool
}

func (sw *sessionWriter) WriteHeader(code int) {
	sw.commit()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *sessionWriter) Write(b []byte) (int, error) {
	sw.commit()
	return sw.ResponseWriter.Write(b)
}

func (sw *sessionWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

func (sw *sessionWriter) commit() {
	if !sw.session.Dirty() {
		sw.committed = true
		return
	}
	saved := sw.manager.save(sw.ctx, sw.session)
	if saved && sw.isNew && !sw.committed {
		http.SetCookie(sw.ResponseWriter, sw.manager.cookie(sw.session))
		sw.isNew = false
	}
	sw.committed = true
}
