// auth.go — JWT middleware для аутентификации и авторизации.
// Токен берётся из заголовка Authorization (Bearer) или cookie as_token.
// Проверка подписи, срока и отзыва выполняется Authenticator'ом.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/goaudiostore/internal/api/errors"
	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/service"
)

// TokenCookieName — cookie с токеном сессии (для браузерного плеера).
const TokenCookieName = "as_token"

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyUser — аутентифицированный пользователь.
	ContextKeyUser contextKey = "user"
	// ContextKeyToken — исходный токен (для logout).
	ContextKeyToken contextKey = "token"

	contextKeyUserHolder contextKey = "user_holder"
)

// Authenticator — проверка токена и получение пользователя.
// Реализуется service.AuthService.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// JWTAuth — middleware аутентификации.
type JWTAuth struct {
	auth   Authenticator
	logger *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
func NewJWTAuth(auth Authenticator, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		auth:   auth,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware: извлекает токен, проверяет его
// и помещает пользователя в контекст запроса.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, msg := TokenFromRequest(r)
			if token == "" {
				apierrors.Unauthorized(w, msg)
				return
			}

			user, err := j.auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					j.logger.Debug("Токен отклонён",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
					apierrors.Unauthorized(w, "Невалидный, просроченный или отозванный токен")
					return
				}
				j.logger.Error("Ошибка проверки токена", slog.String("error", err.Error()))
				apierrors.ServiceUnavailable(w, "Проверка токена временно недоступна")
				return
			}

			if holder, ok := r.Context().Value(contextKeyUserHolder).(*userHolder); ok {
				holder.userID = user.ID
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			ctx = context.WithValue(ctx, ContextKeyToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest извлекает токен из Authorization или cookie.
// При отсутствии токена возвращает "" и описание проблемы.
func TokenFromRequest(r *http.Request) (string, string) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", "Неверный формат Authorization: ожидается Bearer <token>"
		}
		if parts[1] == "" {
			return "", "Пустой Bearer token"
		}
		return parts[1], ""
	}
	if c, err := r.Cookie(TokenCookieName); err == nil && c.Value != "" {
		return c.Value, ""
	}
	return "", "Отсутствует заголовок Authorization"
}

// RequireRole возвращает middleware, требующий одну из указанных ролей.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(roles ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				apierrors.Unauthorized(w, "Отсутствует пользователь в контексте")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			names := make([]string, len(roles))
			for i, role := range roles {
				names[i] = string(role)
			}
			apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(names, " или ")))
		})
	}
}

// --- Context helpers ---

// UserFromContext извлекает пользователя из контекста запроса.
// Возвращает nil, если запрос не аутентифицирован.
func UserFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(ContextKeyUser).(*model.User)
	return u
}

// TokenFromContext возвращает токен текущего запроса.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(ContextKeyToken).(string)
	return t
}

// WithUser помещает пользователя в контекст (для тестов обработчиков).
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, ContextKeyUser, u)
}

// userHolder передаёт ID пользователя из auth middleware в RequestLogger,
// который выполняется раньше и не видит изменённый контекст.
type userHolder struct {
	userID int64
}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, contextKeyUserHolder, h)
}
