// Пакет auth — пароли, JWT-токены сессий и список отозванных токенов.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher — хеширование и проверка паролей.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify возвращает true, если password соответствует hash.
	Verify(hash, password string) bool
}

// BcryptHasher — PasswordHasher на bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher создаёт хешер; cost=0 — bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("пароль длиннее 72 байт: %w", err)
		}
		return "", fmt.Errorf("ошибка хеширования пароля: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
