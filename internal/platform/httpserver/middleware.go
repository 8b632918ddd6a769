package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sky-unifier/sky-unifier-go/internal/platform/requestid"
)

const headerRequestID = "X-Request-Id"

// maxRequestIDLen bounds ids accepted from clients; longer ones are replaced.
const maxRequestIDLen = 128

type ctxKeyRequestID struct{}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyRequestID{}).(string)
	return v, ok
}

// Wrap assigns a request id, recovers panics and logs one line per request.
// A panic after the handler started writing leaves the partial response as is.
func Wrap(logger *slog.Logger, service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := inboundRequestID(r)
		if id == "" {
			id = newRequestID(service)
		}
		r.Header.Set(headerRequestID, id)
		w.Header().Set(headerRequestID, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID{}, id))

		sw := &statusWriter{ResponseWriter: w}
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("panic recovered", "request_id", id, "panic", v, "stack", string(debug.Stack()))
				if !sw.wroteHeader {
					WriteJSON(sw, http.StatusInternalServerError, map[string]any{
						"error":      "internal_server_error",
						"request_id": id,
					})
				}
			}
			logRequest(logger, r, sw, id, time.Since(start))
		}()
		next.ServeHTTP(sw, r)
	})
}

// CORS answers preflight requests and decorates responses for browser clients
// overlaying rendered layers from another origin.
func CORS(origin string, next http.Handler) http.Handler {
	if strings.TrimSpace(origin) == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+headerRequestID)
		h.Set("Access-Control-Expose-Headers", headerRequestID)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func inboundRequestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(headerRequestID))
	if len(id) > maxRequestIDLen {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return ""
		}
	}
	return id
}

func newRequestID(service string) string {
	id, err := requestid.New()
	if err != nil {
		return fmt.Sprintf("%s-%d", service, time.Now().UnixNano())
	}
	return id
}

func logRequest(logger *slog.Logger, r *http.Request, sw *statusWriter, id string, elapsed time.Duration) {
	status := sw.status
	if !sw.wroteHeader {
		status = http.StatusOK
	}
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	}
	logger.LogAttrs(r.Context(), level, "http request",
		slog.String("request_id", id),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Int64("bytes", sw.bytes),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)
}

// statusWriter records what the handler sent. Unwrap lets
// http.ResponseController reach the underlying writer's optional interfaces.
type statusWriter struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.status = http.StatusOK
		w.wroteHeader = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
