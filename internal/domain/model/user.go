package model

import "time"

// UserRole — роль пользователя.
type UserRole string

const (
	// RoleAdmin — администратор: управление пользователями.
	RoleAdmin UserRole = "ADMIN"
	// RoleUser — обычный пользователь: работа со своими аудиофайлами.
	RoleUser UserRole = "USER"
)

// Valid проверяет, является ли роль допустимой.
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User — учётная запись пользователя.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	FullName     *string   `json:"full_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin — true для роли ADMIN.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
