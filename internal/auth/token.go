package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// ErrInvalidToken — токен не прошёл проверку (подпись, срок, формат).
var ErrInvalidToken = errors.New("недействительный токен")

// Claims — claims JWT сессии.
type Claims struct {
	jwt.RegisteredClaims
	Username string         `json:"username"`
	Role     model.UserRole `json:"role"`
}

// UserID возвращает ID пользователя из sub.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: некорректный sub %q", ErrInvalidToken, c.Subject)
	}
	return id, nil
}

// TokenManager выпускает и проверяет JWT (HS256).
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager создаёт TokenManager.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL — время жизни выпускаемых токенов.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue выпускает токен для пользователя. jti — случайный UUID,
// по нему токен может быть отозван до истечения срока.
func (m *TokenManager) Issue(u *model.User) (string, *Claims, error) {
	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(u.ID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Username: u.Username,
		Role:     u.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, claims, nil
}

// Parse проверяет подпись, issuer и срок действия токена.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: отсутствует jti", ErrInvalidToken)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
