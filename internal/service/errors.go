// errors.go — ошибки бизнес-логики сервисного слоя.
//
// Ошибки сгруппированы по классам: конкретная ошибка оборачивает класс,
// поэтому errors.Is(err, ErrValidation) истинно для ErrTooLarge и т. д.
// Ошибки хранилищ (pgx, MinIO, GridFS) не выходят за границу сервиса:
// их текст попадает в сообщение, но не в цепочку errors.Is.
package service

import (
	"errors"
	"fmt"
)

// Классы ошибок.
var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrAuthorization — нет прав на ресурс.
	ErrAuthorization = errors.New("доступ запрещён")
	// ErrUnauthenticated — неверные учётные данные или токен.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrStorage — сбой blob-хранилища или каталога.
	ErrStorage = errors.New("ошибка хранилища")
	// ErrConsistency — нарушена согласованность каталога и blob-хранилища.
	ErrConsistency = errors.New("нарушение согласованности")
)

// Ошибки аудиофайлов.
var (
	ErrEmptyInput      = fmt.Errorf("%w: файл не передан", ErrValidation)
	ErrUnsupportedType = fmt.Errorf("%w: недопустимый тип файла", ErrValidation)
	ErrTooLarge        = fmt.Errorf("%w: файл слишком большой", ErrValidation)

	ErrFilenameTooLong    = fmt.Errorf("%w: слишком длинное имя файла", ErrValidation)
	ErrContentTypeTooLong = fmt.Errorf("%w: слишком длинный MIME-тип", ErrValidation)

	// ErrAccessDenied — файл принадлежит другому пользователю.
	// Наружу (HTTP) сообщается как «не найден».
	ErrAccessDenied = fmt.Errorf("%w: файл принадлежит другому пользователю", ErrAuthorization)

	ErrStorageWriteFailed  = fmt.Errorf("%w: ошибка записи данных файла", ErrStorage)
	ErrStorageReadFailed   = fmt.Errorf("%w: ошибка чтения данных файла", ErrStorage)
	ErrMetadataWriteFailed = fmt.Errorf("%w: ошибка записи каталога", ErrStorage)
	ErrMetadataReadFailed  = fmt.Errorf("%w: ошибка чтения каталога", ErrStorage)

	// ErrDataMissing — запись есть, а blob'а нет.
	ErrDataMissing = fmt.Errorf("%w: данные файла отсутствуют в хранилище", ErrConsistency)
)

// Ошибки пользователей и аутентификации.
var (
	ErrInvalidCredentials = fmt.Errorf("%w: неверное имя пользователя или пароль", ErrUnauthenticated)
	ErrTokenRevoked       = fmt.Errorf("%w: токен отозван", ErrUnauthenticated)
	ErrUsernameTaken      = fmt.Errorf("%w: имя пользователя уже занято", ErrConflict)
	ErrEmailTaken         = fmt.Errorf("%w: email уже зарегистрирован", ErrConflict)
	ErrSelfDelete         = fmt.Errorf("%w: нельзя удалить собственную учётную запись", ErrValidation)
)

// storageErr оборачивает ошибку нижнего слоя в sentinel сервиса.
// Исходная ошибка сохраняется только как текст.
func storageErr(sentinel, cause error) error {
	return fmt.Errorf("%w: %v", sentinel, cause)
}
