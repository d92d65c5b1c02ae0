// logging.go — журнал запросов Audio Store: кто, к какому маршруту
// и какой частью аудиофайла обращался.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// responseWriter запоминает статус и число отданных байт.
// Общий для журнала и метрик.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController (SetWriteDeadline при отдаче больших файлов).
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// serviceRoute — служебные маршруты, которые опрашиваются каждые
// несколько секунд; успешные ответы на них пишутся на уровне DEBUG.
func serviceRoute(path string) bool {
	return strings.HasPrefix(path, "/health/") || path == "/metrics"
}

// requestLevel выбирает уровень записи: 5xx — ERROR, 4xx — WARN,
// успешные служебные запросы — DEBUG, остальное — INFO.
func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case serviceRoute(path):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// RequestLogger пишет одну запись на запрос.
// route — путь с {id} вместо идентификатора файла или пользователя,
// range — запрошенный фрагмент при воспроизведении, user_id — владелец
// сессии (заполняется JWT middleware через userHolder).
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			holder := &userHolder{}

			next.ServeHTTP(wrapped, r.WithContext(withUserHolder(r.Context(), holder)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", normalizePath(r.URL.Path)),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if rng := r.Header.Get("Range"); rng != "" {
				attrs = append(attrs, slog.String("range", rng))
			}
			if holder.userID != 0 {
				attrs = append(attrs, slog.Int64("user_id", holder.userID))
			}
			logger.LogAttrs(r.Context(), requestLevel(r.URL.Path, wrapped.statusCode), "HTTP запрос", attrs...)
		})
	}
}
