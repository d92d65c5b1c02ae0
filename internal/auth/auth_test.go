package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// --- Пароли ---

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("Admin123")
	if err != nil {
		t.Fatalf("Hash ошибка: %v", err)
	}
	if hash == "Admin123" {
		t.Fatal("хеш совпадает с паролем")
	}
	if !h.Verify(hash, "Admin123") {
		t.Error("Verify не принял верный пароль")
	}
	if h.Verify(hash, "admin123") {
		t.Error("Verify принял неверный пароль")
	}
	if h.Verify("not-a-hash", "Admin123") {
		t.Error("Verify принял некорректный хеш")
	}
}

func TestBcryptHasher_TooLong(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	if _, err := h.Hash(strings.Repeat("x", 100)); err == nil {
		t.Fatal("ожидалась ошибка для пароля длиннее 72 байт")
	}
}

// --- JWT ---

func testUser() *model.User {
	return &model.User{ID: 17, Username: "alice", Role: model.RoleUser}
}

func TestTokenManager_IssueParse(t *testing.T) {
	m := NewTokenManager(testSecret, "audio-store", time.Hour)

	token, issued, err := m.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue ошибка: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse ошибка: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 17 {
		t.Errorf("UserID = %d, %v; ожидается 17", id, err)
	}
	if claims.Username != "alice" || claims.Role != model.RoleUser {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID != issued.ID || claims.ID == "" {
		t.Errorf("jti = %q, ожидается %q", claims.ID, issued.ID)
	}
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager(testSecret, "audio-store", time.Hour)
	token, _, _ := m.Issue(testUser())

	t.Run("чужой секрет", func(t *testing.T) {
		other := NewTokenManager("ffffffffffffffffffffffffffffffff", "audio-store", time.Hour)
		if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ошибка %v, ожидается ErrInvalidToken", err)
		}
	})

	t.Run("чужой issuer", func(t *testing.T) {
		other := NewTokenManager(testSecret, "someone-else", time.Hour)
		if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ошибка %v, ожидается ErrInvalidToken", err)
		}
	})

	t.Run("истёкший", func(t *testing.T) {
		expired := NewTokenManager(testSecret, "audio-store", time.Minute)
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		old, _, _ := expired.Issue(testUser())
		if _, err := m.Parse(old); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ошибка %v, ожидается ErrInvalidToken", err)
		}
	})

	t.Run("alg none", func(t *testing.T) {
		unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID: "x", Subject: "1", Issuer: "audio-store",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if _, err := m.Parse(unsigned); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ошибка %v, ожидается ErrInvalidToken", err)
		}
	})

	t.Run("мусор", func(t *testing.T) {
		if _, err := m.Parse("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ошибка %v, ожидается ErrInvalidToken", err)
		}
	})
}

// --- Отзыв токенов ---

func testRevocation(t *testing.T, l RevocationList) {
	t.Helper()
	ctx := context.Background()

	revoked, err := l.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("IsRevoked до Revoke = %v, %v", revoked, err)
	}

	if err := l.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke ошибка: %v", err)
	}
	revoked, err = l.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Errorf("IsRevoked после Revoke = %v, %v; ожидается true", revoked, err)
	}

	// Уже истёкший токен не сохраняется
	if err := l.Revoke(ctx, "jti-old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke истёкшего ошибка: %v", err)
	}
	if revoked, _ := l.IsRevoked(ctx, "jti-old"); revoked {
		t.Error("истёкший токен не должен попадать в список")
	}
}

func TestMemoryRevocationList(t *testing.T) {
	testRevocation(t, NewMemoryRevocationList(100, time.Hour))
}

func TestRedisRevocationList(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisRevocationList(client)
	testRevocation(t, l)

	// Запись исчезает по TTL
	mr.FastForward(2 * time.Hour)
	if revoked, _ := l.IsRevoked(context.Background(), "jti-1"); revoked {
		t.Error("запись должна истечь вместе с токеном")
	}
}

func TestRedisRevocationList_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	l := NewRedisRevocationList(client)
	if _, err := l.IsRevoked(context.Background(), "jti"); err == nil {
		t.Fatal("ожидалась ошибка при недоступном Redis")
	}
}
