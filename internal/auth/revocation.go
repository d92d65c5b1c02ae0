// revocation.go — список отозванных токенов (logout).
// Запись живёт не дольше самого токена: после exp токен отвергается и так.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// RevocationList — хранилище отозванных jti.
type RevocationList interface {
	// Revoke отзывает токен до момента until.
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevocationList — общий для всех экземпляров список в Redis.
type RedisRevocationList struct {
	client *redis.Client
	prefix string
}

// NewRedisRevocationList создаёт список поверх клиента Redis.
func NewRedisRevocationList(client *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{client: client, prefix: "as:revoked:"}
}

func (l *RedisRevocationList) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, l.prefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("ошибка записи отозванного токена в Redis: %w", err)
	}
	return nil
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := l.client.Get(ctx, l.prefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка чтения отозванного токена из Redis: %w", err)
	}
	return true, nil
}

// MemoryRevocationList — список в памяти процесса (один экземпляр сервиса).
// TTL записи равен времени жизни токена, размер ограничен LRU.
type MemoryRevocationList struct {
	cache *expirable.LRU[string, time.Time]
}

// NewMemoryRevocationList создаёт список на maxSize записей.
func NewMemoryRevocationList(maxSize int, tokenTTL time.Duration) *MemoryRevocationList {
	return &MemoryRevocationList{
		cache: expirable.NewLRU[string, time.Time](maxSize, nil, tokenTTL),
	}
}

func (l *MemoryRevocationList) Revoke(_ context.Context, jti string, until time.Time) error {
	if time.Until(until) <= 0 {
		return nil
	}
	l.cache.Add(jti, until)
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	until, ok := l.cache.Get(jti)
	if !ok {
		return false, nil
	}
	return time.Now().Before(until), nil
}
