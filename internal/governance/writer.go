package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"opshop/internal/models"
	"strconv"
	"time"
)

// Observer is notified of every rejection a Writer sends.
type Observer interface {
	Rejected(ctx context.Context, e *Error)
}

// Writer terminates rejected requests with the standard JSON error body.
// A nil *Writer is valid and writes without notifying anyone.
type Writer struct {
	observer Observer
}

func NewWriter(observer Observer) *Writer {
	return &Writer{observer: observer}
}

// Write sends e as the response. Rate limit rejections also carry a
// Retry-After header in whole seconds.
func (wr *Writer) Write(w http.ResponseWriter, r *http.Request, e *Error) {
	if wr != nil && wr.observer != nil {
		wr.observer.Rejected(r.Context(), e)
	}

	resp := models.NewErrorResponse(e.Message, e.Code)
	if e.Title != "" {
		resp.Error = e.Title
	}
	if e.Kind == KindRateLimitExceeded {
		resp.RetryAfter = FormatRetryAfter(e.RetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(e.RetryAfter)))
	}
	if id := w.Header().Get("X-Request-ID"); id != "" {
		resp.RequestID = id
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteError writes e without an observer.
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	(*Writer)(nil).Write(w, r, e)
}

// RetryAfterSeconds rounds d up to whole seconds, minimum 1.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// FormatRetryAfter renders d for humans, e.g. "60 seconds" or "15 minutes".
func FormatRetryAfter(d time.Duration) string {
	secs := RetryAfterSeconds(d)
	switch {
	case secs >= 3600 && secs%3600 == 0:
		return plural(secs/3600, "hour")
	case secs >= 60 && secs%60 == 0:
		return plural(secs/60, "minute")
	default:
		return plural(secs, "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
