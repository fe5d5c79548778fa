package sanitize

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"opshop/internal/governance"
	"strconv"
)

// maxBodyBytes bounds how much of a body is buffered for sanitizing.
const maxBodyBytes = 1 << 20

// Middleware rewrites the bodies of mutating requests with every string leaf
// sanitized. Urlencoded forms are rewritten as forms; any other body is
// treated as JSON whatever its Content-Type, since handlers decode JSON
// without looking at the header. Bodies that do not parse are passed on
// untouched so handlers can reject them with a proper validation error.
func (s *Sanitizer) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

			body := r.Body
			raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
			if err != nil || len(raw) > maxBodyBytes {
				r.Body = readCloser{io.MultiReader(bytes.NewReader(raw), body), body}
				next.ServeHTTP(w, r)
				return
			}
			body.Close()

			var cleaned []byte
			if mediaType == "application/x-www-form-urlencoded" {
				cleaned = s.sanitizeForm(raw)
			} else {
				cleaned = s.sanitizeJSON(raw)
			}

			r.Body = io.NopCloser(bytes.NewReader(cleaned))
			r.ContentLength = int64(len(cleaned))
			r.Header.Set("Content-Length", strconv.Itoa(len(cleaned)))
			next.ServeHTTP(w, r)
		})
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

func (s *Sanitizer) sanitizeJSON(raw []byte) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	out, err := json.Marshal(s.Value(v))
	if err != nil {
		return raw
	}
	return out
}

func (s *Sanitizer) sanitizeForm(raw []byte) []byte {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return raw
	}
	for key, vals := range values {
		for i, v := range vals {
			vals[i] = s.String(v)
		}
		values[key] = vals
	}
	return []byte(values.Encode())
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// Middleware rejects requests matching a denylist signature with 403
// SUSPICIOUS_ACTIVITY before any other processing.
func (d *Detector) Middleware(clientIP func(*http.Request) string, errs *governance.Writer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reason := d.Inspect(r.URL.EscapedPath(), r.URL.RawQuery, r.UserAgent())
			if reason == "" {
				next.ServeHTTP(w, r)
				return
			}

			ip := r.RemoteAddr
			if clientIP != nil {
				ip = clientIP(r)
			}
			slog.Warn("Suspicious activity detected",
				"reason", reason,
				"ip", ip,
				"path", r.URL.Path,
				"method", r.Method,
				"user_agent", r.UserAgent(),
			)
			errs.Write(w, r, governance.NewSuspiciousActivityError(reason))
		})
	}
}
