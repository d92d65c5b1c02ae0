package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/service"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockAuthenticator — мок Authenticator.
type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, token string) (*model.User, error)
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, token string) (*model.User, error) {
	return m.authenticateFn(ctx, token)
}

func tokenAuth(valid string, u *model.User) *mockAuthenticator {
	return &mockAuthenticator{authenticateFn: func(_ context.Context, token string) (*model.User, error) {
		if token == valid {
			return u, nil
		}
		return nil, service.ErrUnauthenticated
	}}
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			t.Error("пользователь отсутствует в контексте")
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTAuth_Middleware(t *testing.T) {
	alice := &model.User{ID: 1, Username: "alice", Role: model.RoleUser}
	mw := NewJWTAuth(tokenAuth("good", alice), testLogger()).Middleware()

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
	}{
		{"Bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK},
		{"bearer в нижнем регистре", func(r *http.Request) { r.Header.Set("Authorization", "bearer good") }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "good"}) }, http.StatusOK},
		{"нет токена", func(*http.Request) {}, http.StatusUnauthorized},
		{"Basic", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, http.StatusUnauthorized},
		{"пустой Bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }, http.StatusUnauthorized},
		{"неверный токен", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/audio/files", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			mw(okHandler(t)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус %d, ожидается %d (тело: %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), "UNAUTHORIZED") {
				t.Errorf("тело ответа %s не содержит код UNAUTHORIZED", rec.Body.String())
			}
		})
	}
}

func TestJWTAuth_BackendFailure(t *testing.T) {
	auth := &mockAuthenticator{authenticateFn: func(context.Context, string) (*model.User, error) {
		return nil, errors.New("redis недоступен")
	}}
	mw := NewJWTAuth(auth, testLogger()).Middleware()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer any")
	rec := httptest.NewRecorder()
	mw(okHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("статус %d, ожидается 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"SERVICE_UNAVAILABLE"`) {
		t.Errorf("тело ответа: %s", rec.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		user       *model.User
		wantStatus int
	}{
		{"администратор", &model.User{ID: 1, Role: model.RoleAdmin}, http.StatusOK},
		{"пользователь", &model.User{ID: 2, Role: model.RoleUser}, http.StatusForbidden},
		{"без пользователя", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			RequireRole(model.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус %d, ожидается %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequestLogger_UserID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	alice := &model.User{ID: 42, Role: model.RoleUser}

	h := RequestLogger(logger)(NewJWTAuth(tokenAuth("good", alice), testLogger()).Middleware()(okHandler(t)))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audio/files/7", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "user_id=42") || !strings.Contains(out, "status=200") {
		t.Errorf("запись лога без user_id или статуса: %s", out)
	}
}

func TestRequestLogger_RouteAndRange(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audio/files/7/play", nil)
	req.Header.Set("Range", "bytes=0-1023")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"route=/api/v1/audio/files/{id}/play", `range="bytes=0-1023"`, "status=206", "component=http"} {
		if !strings.Contains(out, want) {
			t.Errorf("в записи нет %q: %s", want, out)
		}
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/health/ready", http.StatusOK, slog.LevelDebug},
		{"/metrics", http.StatusOK, slog.LevelDebug},
		{"/health/ready", http.StatusServiceUnavailable, slog.LevelError},
		{"/api/v1/audio/files", http.StatusCreated, slog.LevelInfo},
		{"/api/v1/audio/files/9/play", http.StatusNotFound, slog.LevelWarn},
		{"/api/v1/audio/files", http.StatusBadGateway, slog.LevelError},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.path, tt.status); got != tt.want {
			t.Errorf("requestLevel(%q, %d) = %v, ожидается %v", tt.path, tt.status, got, tt.want)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/api/v1/audio/files", "/api/v1/audio/files"},
		{"/api/v1/audio/files/42", "/api/v1/audio/files/{id}"},
		{"/api/v1/audio/files/42/play", "/api/v1/audio/files/{id}/play"},
		{"/api/v1/admin/users/7", "/api/v1/admin/users/{id}"},
		{"/api/v1/audio/files/abc", "/api/v1/audio/files/abc"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидается %q", tt.path, got, tt.want)
		}
	}
}
