// auth.go — регистрация, вход, выход и проверка токенов сессий.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/goaudiostore/internal/auth"
	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/repository"
)

// Параметры кэша пользователей, разрешённых из токенов.
// Короткий TTL ограничивает задержку применения смены роли или удаления.
const (
	userCacheSize = 1024
	userCacheTTL  = 30 * time.Second
)

// dummyPassword хешируется один раз; хеш сравнивается с паролем при входе
// под несуществующим именем, чтобы время ответа не выдавало наличие пользователя.
const dummyPassword = "audio-store-dummy-password"

// SignupRequest — самостоятельная регистрация (роль USER).
type SignupRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
}

// Session — выданный при входе токен.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// AuthService — аутентификация пользователей.
type AuthService struct {
	users   repository.UserRepository
	creator *UserService
	hasher  auth.PasswordHasher
	tokens  *auth.TokenManager
	revoked auth.RevocationList
	cache   *expirable.LRU[int64, *model.User]
	logger  *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(
	users repository.UserRepository,
	creator *UserService,
	hasher auth.PasswordHasher,
	tokens *auth.TokenManager,
	revoked auth.RevocationList,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:   users,
		creator: creator,
		hasher:  hasher,
		tokens:  tokens,
		revoked: revoked,
		cache:   expirable.NewLRU[int64, *model.User](userCacheSize, nil, userCacheTTL),
		logger:  logger.With(slog.String("component", "auth_service")),
	}
}

// TokenTTL — время жизни токенов сессий.
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

// Signup регистрирует пользователя с ролью USER.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*model.User, error) {
	return s.creator.create(ctx, req.Username, req.Email, req.Password, req.FullName, model.RoleUser)
}

// Login проверяет пароль и выдаёт токен.
// Неизвестное имя и неверный пароль неразличимы для клиента.
func (s *AuthService) Login(ctx context.Context, username, password string) (sess *Session, err error) {
	defer func() {
		switch {
		case err == nil:
			loginsTotal.WithLabelValues("success").Inc()
		case errors.Is(err, ErrInvalidCredentials):
			loginsTotal.WithLabelValues("invalid").Inc()
		default:
			loginsTotal.WithLabelValues("error").Inc()
		}
	}()

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Verify(s.dummyPasswordHash(), password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		s.logger.Warn("Неудачная попытка входа", slog.String("username", username))
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Пользователь вошёл",
		slog.Int64("user_id", u.ID),
		slog.String("username", u.Username),
	)
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u}, nil
}

// dummyPasswordHash возвращает хеш dummyPassword с той же стоимостью,
// что и у настоящих паролей.
func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Warn("Не удалось подготовить фиктивный хеш пароля", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Logout отзывает токен до истечения его срока.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("отзыв токена: %w", err)
	}
	s.logger.Info("Токен отозван",
		slog.String("username", claims.Username),
		slog.String("jti", claims.ID),
	)
	return nil
}

// Authenticate проверяет токен и возвращает актуальные данные пользователя.
// Роль берётся из базы, а не из claims: понижение роли действует без перевыпуска.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("проверка отзыва токена: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	userID, _ := claims.UserID()
	if u, ok := s.cache.Get(userID); ok {
		return u, nil
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пользователь %d удалён", ErrUnauthenticated, userID)
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	s.cache.Add(userID, u)
	return u, nil
}

// Forget сбрасывает кэшированные данные пользователя.
// Вызывается после изменения или удаления учётной записи.
func (s *AuthService) Forget(userID int64) {
	s.cache.Remove(userID)
}

// EnsureAdmin создаёт администратора при первом запуске.
// Пустой пароль отключает создание.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	if password == "" {
		s.logger.Info("Создание администратора отключено (пароль не задан)")
		return nil
	}

	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		s.logger.Debug("Администратор уже существует", slog.String("username", username))
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("поиск администратора: %w", err)
	}

	u, err := s.creator.create(ctx, username, email, password, nil, model.RoleAdmin)
	if err != nil {
		// Параллельный запуск другого экземпляра
		if errors.Is(err, ErrConflict) {
			return nil
		}
		return fmt.Errorf("создание администратора: %w", err)
	}

	s.logger.Info("Создан администратор по умолчанию",
		slog.Int64("user_id", u.ID),
		slog.String("username", u.Username),
	)
	return nil
}
