package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// Конфликты уникальности таблицы users. Оба оборачивают ErrConflict.
var (
	ErrUsernameTaken = fmt.Errorf("%w: имя пользователя уже занято", ErrConflict)
	ErrEmailTaken    = fmt.Errorf("%w: email уже зарегистрирован", ErrConflict)
)

// UserRepository — интерфейс CRUD для таблицы users.
type UserRepository interface {
	// Create создаёт пользователя; заполняет ID, CreatedAt, UpdatedAt.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByIDForUpdate блокирует строку до конца транзакции (SELECT ... FOR UPDATE).
	GetByIDForUpdate(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// List возвращает всех пользователей в порядке id.
	List(ctx context.Context) ([]*model.User, error)
	// Update сохраняет email, password_hash, role, full_name.
	Update(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id int64) error
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, username, email, password_hash, role, full_name, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.FullName,
		&u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// mapUserConflict превращает нарушение уникальности в конкретную ошибку.
func mapUserConflict(err error) error {
	switch violatedConstraint(err) {
	case "":
		return nil
	case "users_username_key":
		return ErrUsernameTaken
	case "users_email_key":
		return ErrEmailTaken
	default:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, role, full_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, u.Username, u.Email, u.PasswordHash, u.Role, u.FullName).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if conflict := mapUserConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *userRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	result := make([]*model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *userRepo) Update(ctx context.Context, u *model.User) error {
	query := `
		UPDATE users
		SET email = $2, password_hash = $3, role = $4, full_name = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, u.ID, u.Email, u.PasswordHash, u.Role, u.FullName).
		Scan(&u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if conflict := mapUserConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
