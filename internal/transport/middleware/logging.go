package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"

	"github.com/ajirinow/backend/pkg/logger"
)

const (
	maxLoggedBody = 64 << 10
	filtered      = "[FILTERED]"
)

// sensitiveFields are matched as substrings of lower-cased keys and headers.
var sensitiveFields = []string{
	"password",
	"token",
	"authorization",
	"secret",
	"passkey",
	"api_key",
	"id_number",
	"credential",
	"session",
}

// quietPaths are served without body logging.
var quietPaths = []string{"/metrics", "/swagger/", "/openapi.yml", "/api/v1/ping", "/api/v1/health"}

func LoggingMiddleware(lg *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isQuiet(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			reqLog := logger.FromOr(r.Context(), lg).With("request_id", middleware.GetReqID(r.Context()))

			var reqBody []byte
			if r.Body != nil {
				reqBody, _ = io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(reqBody), r.Body))
			}
			reqLog.Info("incoming request",
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"headers", redactHeaders(r.Header),
				"body", redactBody(reqBody))

			var respBody bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&limitedWriter{buf: &respBody, max: maxLoggedBody})

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			reqLog.Log(r.Context(), levelFor(status), "response",
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", ww.BytesWritten(),
				"body", redactBody(respBody.Bytes()))
		})
	}
}

func isQuiet(path string) bool {
	for _, p := range quietPaths {
		if path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, f := range sensitiveFields {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}

func isPhone(key string) bool {
	return strings.Contains(strings.ToLower(key), "phone")
}

// maskPhone keeps the last three digits, enough to tell payers apart in logs.
func maskPhone(v interface{}) interface{} {
	s := fmt.Sprint(v)
	if len(s) <= 3 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-3) + s[len(s)-3:]
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			out[name] = filtered
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func redactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var data interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		if isSensitive(string(body)) {
			return "[FILTERED - non JSON body with sensitive data]"
		}
		return string(body)
	}

	out, err := json.Marshal(redactValue(data))
	if err != nil {
		return "[ERROR - failed to marshal redacted body]"
	}
	return string(out)
}

// redactValue walks decoded JSON. Callback metadata arrives as
// {"Name": ..., "Value": ...} pairs, so the Name decides for its Value.
func redactValue(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		if name, ok := v["Name"].(string); ok {
			if value, has := v["Value"]; has {
				switch {
				case isSensitive(name):
					return map[string]interface{}{"Name": name, "Value": filtered}
				case isPhone(name):
					return map[string]interface{}{"Name": name, "Value": maskPhone(value)}
				}
			}
		}
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			switch {
			case isSensitive(key):
				out[key] = filtered
			case isPhone(key):
				out[key] = maskPhone(value)
			default:
				out[key] = redactValue(value)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
