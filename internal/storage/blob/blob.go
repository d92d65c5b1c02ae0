// Пакет blob — контракт хранилища байтов аудиофайлов.
//
// Хранилище знает только непрозрачные handle'ы и байты: владельцы,
// имена и размеры в каталоге — забота сервисного слоя. Handle выдаётся
// хранилищем при записи и никогда не переиспользуется.
package blob

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound — blob с указанным handle отсутствует.
var ErrNotFound = errors.New("blob не найден")

// Store — хранилище байтов.
type Store interface {
	// Put сохраняет байты и возвращает новый handle.
	// nameHint и contentType — справочные метаданные, не влияют на handle.
	Put(ctx context.Context, data []byte, nameHint, contentType string) (string, error)
	// Get возвращает байты ровно в том виде, в каком они были записаны.
	// Отсутствующий handle → ErrNotFound.
	Get(ctx context.Context, handle string) ([]byte, error)
	// Delete удаляет blob. Отсутствующий handle не является ошибкой:
	// removed=false сообщает, что удалять было нечего.
	Delete(ctx context.Context, handle string) (removed bool, err error)
}

// Info — краткие сведения о blob'е для сверки с каталогом.
type Info struct {
	Handle    string
	Size      int64
	CreatedAt time.Time
}

// Lister — перечисление всех blob'ов хранилища.
type Lister interface {
	List(ctx context.Context) ([]Info, error)
}

// NewHandle генерирует новый handle в формате ObjectID (24 hex-символа):
// время создания, случайная часть процесса и счётчик.
func NewHandle() string {
	return primitive.NewObjectID().Hex()
}

// ValidHandle проверяет формат handle. Некорректный handle не может
// ссылаться ни на один blob.
func ValidHandle(handle string) bool {
	if len(handle) != 24 {
		return false
	}
	for _, c := range handle {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
