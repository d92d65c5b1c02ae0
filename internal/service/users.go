// users.go — сервис управления учётными записями (админские операции).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goaudiostore/internal/auth"
	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/repository"
)

// Ограничения полей пользователя.
const (
	usernameMinLen = 3
	usernameMaxLen = 80
	passwordMinLen = 8
	// passwordMaxLen — предел bcrypt в байтах
	passwordMaxLen = 72
	emailMaxLen    = 120
	fullNameMaxLen = 120
)

// UserCreateRequest — создание пользователя администратором.
type UserCreateRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
	Role     string  `json:"role"`
}

// UserUpdateRequest — частичное обновление; nil-поля не меняются.
type UserUpdateRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

// TxRunner — выполнение функции в транзакции PostgreSQL.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// ownerBlobPurger удаляет blob'ы файлов владельца перед удалением учётной записи.
type ownerBlobPurger interface {
	PurgeOwnerBlobs(ctx context.Context, ownerID int64) (int, error)
}

// UserService — CRUD пользователей.
type UserService struct {
	users repository.UserRepository
	// tx и txUsers — транзакционное обновление (SELECT ... FOR UPDATE).
	// При tx == nil обновление выполняется без транзакции.
	tx      TxRunner
	txUsers func(repository.DBTX) repository.UserRepository
	hasher  auth.PasswordHasher
	files   ownerBlobPurger
	logger  *slog.Logger
}

// NewUserService создаёт сервис пользователей.
// files может быть nil: тогда blob'ы удалённого пользователя убирает сверка.
func NewUserService(
	users repository.UserRepository,
	tx TxRunner,
	hasher auth.PasswordHasher,
	files *AudioFileManager,
	logger *slog.Logger,
) *UserService {
	s := &UserService{
		users:   users,
		tx:      tx,
		txUsers: repository.NewUserRepository,
		hasher:  hasher,
		logger:  logger.With(slog.String("component", "users_service")),
	}
	if files != nil {
		s.files = files
	}
	return s
}

// List возвращает всех пользователей.
func (s *UserService) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка пользователей: %w", err)
	}
	return users, nil
}

// Get возвращает пользователя по ID.
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пользователь %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return u, nil
}

// Create создаёт пользователя с указанной ролью (пустая роль — USER).
func (s *UserService) Create(ctx context.Context, req UserCreateRequest) (*model.User, error) {
	role := model.UserRole(req.Role)
	if req.Role == "" {
		role = model.RoleUser
	}
	return s.create(ctx, req.Username, req.Email, req.Password, req.FullName, role)
}

func (s *UserService) create(
	ctx context.Context,
	username, email, password string,
	fullName *string,
	role model.UserRole,
) (*model.User, error) {
	email = strings.TrimSpace(email)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if err := validateFullName(fullName); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, validationErr("role", "допустимы ADMIN и USER")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("хеширование пароля: %w", err)
	}

	u := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FullName:     fullName,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, mapUserRepoErr(err, "создание пользователя")
	}

	s.logger.Info("Пользователь создан",
		slog.Int64("user_id", u.ID),
		slog.String("username", u.Username),
		slog.String("role", string(u.Role)),
	)
	return u, nil
}

// Update применяет непустые поля запроса к пользователю.
func (s *UserService) Update(ctx context.Context, id int64, req UserUpdateRequest) (*model.User, error) {
	if req.Email != nil {
		trimmed := strings.TrimSpace(*req.Email)
		req.Email = &trimmed
		if err := validateEmail(trimmed); err != nil {
			return nil, err
		}
	}
	if req.Password != nil {
		if err := validatePassword(*req.Password); err != nil {
			return nil, err
		}
	}
	if err := validateFullName(req.FullName); err != nil {
		return nil, err
	}
	if req.Role != nil && !model.UserRole(*req.Role).Valid() {
		return nil, validationErr("role", "допустимы ADMIN и USER")
	}

	var passwordHash string
	if req.Password != nil {
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return nil, fmt.Errorf("хеширование пароля: %w", err)
		}
		passwordHash = hash
	}

	apply := func(repo repository.UserRepository, lock bool) (*model.User, error) {
		var (
			u   *model.User
			err error
		)
		if lock {
			u, err = repo.GetByIDForUpdate(ctx, id)
		} else {
			u, err = repo.GetByID(ctx, id)
		}
		if err != nil {
			return nil, err
		}
		if req.Email != nil {
			u.Email = *req.Email
		}
		if req.FullName != nil {
			u.FullName = req.FullName
		}
		if req.Role != nil {
			u.Role = model.UserRole(*req.Role)
		}
		if passwordHash != "" {
			u.PasswordHash = passwordHash
		}
		if err := repo.Update(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	}

	var (
		updated *model.User
		err     error
	)
	if s.tx == nil {
		updated, err = apply(s.users, false)
	} else {
		err = s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
			var txErr error
			updated, txErr = apply(s.txUsers(tx), true)
			return txErr
		})
	}
	if err != nil {
		return nil, mapUserRepoErr(err, "обновление пользователя")
	}

	s.logger.Info("Пользователь обновлён",
		slog.Int64("user_id", updated.ID),
		slog.String("role", string(updated.Role)),
	)
	return updated, nil
}

// Delete удаляет пользователя. Удалить собственную учётную запись нельзя.
// Записи аудиофайлов удаляются каскадом, blob'ы — заранее, best-effort.
func (s *UserService) Delete(ctx context.Context, id, actingUserID int64) error {
	if id == actingUserID {
		return ErrSelfDelete
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if s.files != nil {
		removed, err := s.files.PurgeOwnerBlobs(ctx, id)
		if err != nil {
			s.logger.Warn("Не удалось удалить blob'ы пользователя, их уберёт сверка",
				slog.Int64("user_id", id),
				slog.String("error", err.Error()),
			)
		} else if removed > 0 {
			s.logger.Info("Удалены blob'ы пользователя",
				slog.Int64("user_id", id),
				slog.Int("count", removed),
			)
		}
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return mapUserRepoErr(err, "удаление пользователя")
	}

	s.logger.Info("Пользователь удалён",
		slog.Int64("user_id", id),
		slog.Int64("deleted_by", actingUserID),
	)
	return nil
}

// mapUserRepoErr переводит ошибки репозитория в ошибки сервиса.
func mapUserRepoErr(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: пользователь", ErrNotFound)
	case errors.Is(err, repository.ErrUsernameTaken):
		return ErrUsernameTaken
	case errors.Is(err, repository.ErrEmailTaken):
		return ErrEmailTaken
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func validationErr(field, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrValidation, field, msg)
}

// validateUsername: 3–80 символов; только буквы и цифры, либо имя
// содержит подчёркивание.
func validateUsername(username string) error {
	n := len([]rune(username))
	if n < usernameMinLen || n > usernameMaxLen {
		return validationErr("username", fmt.Sprintf("длина от %d до %d символов", usernameMinLen, usernameMaxLen))
	}
	if strings.Contains(username, "_") {
		return nil
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return validationErr("username", "допустимы буквы, цифры и подчёркивание")
		}
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" || len(email) > emailMaxLen {
		return validationErr("email", "некорректный адрес")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationErr("email", "некорректный адрес")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < passwordMinLen {
		return validationErr("password", fmt.Sprintf("не короче %d символов", passwordMinLen))
	}
	if len(password) > passwordMaxLen {
		return validationErr("password", fmt.Sprintf("не длиннее %d байт", passwordMaxLen))
	}
	return nil
}

func validateFullName(fullName *string) error {
	if fullName != nil && len([]rune(*fullName)) > fullNameMaxLen {
		return validationErr("full_name", fmt.Sprintf("не длиннее %d символов", fullNameMaxLen))
	}
	return nil
}
