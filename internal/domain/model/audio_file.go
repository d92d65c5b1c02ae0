// Пакет model — доменные модели Audio Store.
package model

import "time"

// DefaultContentType — MIME-тип, подставляемый при отсутствии типа у загрузки.
const DefaultContentType = "audio/mpeg"

// AudioFileRecord — запись каталога, описывающая один аудиофайл.
// Байты файла хранятся в blob-хранилище по BlobHandle.
type AudioFileRecord struct {
	// ID — назначается каталогом при вставке, не меняется
	ID int64 `json:"id"`
	// OwnerID — единственный пользователь, которому доступен файл
	OwnerID int64 `json:"user_id"`
	// Filename — текущее имя (после Replace — имя новой загрузки)
	Filename string `json:"filename"`
	// OriginalFilename — имя, переданное клиентом
	OriginalFilename string `json:"original_filename"`
	ContentType      string `json:"content_type"`
	// FileSize — длина байтов по BlobHandle
	FileSize int64 `json:"file_size"`
	// BlobHandle — ссылка на ровно один blob; уникальна среди всех записей
	BlobHandle string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsOwnedBy проверяет, принадлежит ли файл пользователю.
func (r *AudioFileRecord) IsOwnedBy(ownerID int64) bool {
	return r.OwnerID == ownerID
}
