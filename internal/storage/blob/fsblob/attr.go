// attr.go — сопутствующие метаданные blob'а (*.attr.json).
// Нужны для проверки целостности при чтении и для сверки с каталогом:
// по ним видно, когда blob был записан и под каким именем.
package fsblob

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

// attrSuffix — суффикс файла метаданных.
const attrSuffix = ".attr.json"

// maxAttrFileSize — максимальный допустимый размер attr.json (4 КБ).
const maxAttrFileSize = 4096

// Attr — содержимое attr.json.
type Attr struct {
	Handle      string    `json:"handle"`
	NameHint    string    `json:"name_hint"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"created_at"`
}

func attrPath(dataPath string) string {
	return dataPath + attrSuffix
}

func isAttrFile(name string) bool {
	return strings.HasSuffix(name, attrSuffix)
}

// writeAttr атомарно записывает метаданные: JSON → temp → fsync → rename.
func writeAttr(path string, meta *Attr) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}
	if len(data) > maxAttrFileSize {
		return fmt.Errorf("размер attr.json (%d байт) превышает максимум (%d байт)", len(data), maxAttrFileSize)
	}

	if _, err := writeAtomic(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("ошибка записи attr.json: %w", err)
	}
	return nil
}

func readAttr(path string) (*Attr, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения attr.json %s: %w", path, err)
	}

	var meta Attr
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("ошибка десериализации attr.json %s: %w", path, err)
	}
	return &meta, nil
}

// deleteAttr удаляет attr.json; отсутствие файла не является ошибкой.
func deleteAttr(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления attr.json %s: %w", path, err)
	}
	return nil
}
