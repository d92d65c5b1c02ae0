// Пакет fsblob — blob-хранилище на локальной файловой системе.
//
// Раскладка: <dataDir>/<последние 2 символа handle>/<handle> — байты,
// рядом <handle>.attr.json — сопутствующие метаданные (см. attr.go).
// Запись: temp файл → запись + SHA-256 → fsync → atomic rename.
package fsblob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bigkaa/goaudiostore/internal/storage/blob"
)

// ErrChecksumMismatch — байты на диске не совпадают с checksum из attr.json.
var ErrChecksumMismatch = errors.New("checksum blob'а не совпадает с метаданными")

// Store — управление blob-файлами на диске.
type Store struct {
	// dataDir — корневая директория хранения (AS_BLOB_DATA_DIR)
	dataDir string
}

// New создаёт Store. Проверяет и создаёт директорию, если она не существует.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &Store{dataDir: dataDir}, nil
}

// DataDir возвращает путь к директории данных.
func (s *Store) DataDir() string {
	return s.dataDir
}

// CheckReady проверяет, что директория данных доступна на запись (для /health/ready).
func (s *Store) CheckReady() (status string, message string) {
	f, err := os.CreateTemp(s.dataDir, ".ready-*")
	if err != nil {
		return "fail", fmt.Sprintf("директория %s недоступна на запись: %v", s.dataDir, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return "ok", "директория доступна"
}

// shardLen — длина суффикса handle, задающего поддиректорию.
const shardLen = 2

// shard возвращает поддиректорию blob'а. Начало handle — старший байт
// unix-времени, он месяцами не меняется; хвост — младший байт счётчика,
// он распределяет файлы по 256 директориям равномерно.
func shard(handle string) string {
	return handle[len(handle)-shardLen:]
}

// path возвращает путь файла данных.
func (s *Store) path(handle string) string {
	return filepath.Join(s.dataDir, shard(handle), handle)
}

// Put записывает данные на диск с подсчётом SHA-256 и сохраняет attr.json.
// При ошибке записи метаданных файл данных удаляется.
func (s *Store) Put(ctx context.Context, data []byte, nameHint, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	handle := blob.NewHandle()
	fullPath := s.path(handle)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("не удалось создать директорию %s: %w", filepath.Dir(fullPath), err)
	}

	checksum, err := writeAtomic(fullPath, bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	meta := &Attr{
		Handle:      handle,
		NameHint:    nameHint,
		ContentType: contentType,
		Size:        int64(len(data)),
		Checksum:    checksum,
		CreatedAt:   time.Now().UTC(),
	}
	if err := writeAttr(attrPath(fullPath), meta); err != nil {
		os.Remove(fullPath)
		return "", err
	}

	return handle, nil
}

// Get читает байты blob'а и сверяет их с checksum из attr.json (если он есть).
func (s *Store) Get(ctx context.Context, handle string) ([]byte, error) {
	if !blob.ValidHandle(handle) {
		return nil, blob.ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := s.path(handle)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, blob.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения blob %s: %w", handle, err)
	}

	meta, err := readAttr(attrPath(fullPath))
	if err == nil && meta.Checksum != "" {
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != meta.Checksum {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, handle)
		}
	}

	return data, nil
}

// Delete удаляет файл данных и attr.json.
// removed=false, если файла данных уже не было.
func (s *Store) Delete(ctx context.Context, handle string) (bool, error) {
	if !blob.ValidHandle(handle) {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fullPath := s.path(handle)
	removed := true
	if err := os.Remove(fullPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("ошибка удаления blob %s: %w", handle, err)
		}
		removed = false
	}

	if err := deleteAttr(attrPath(fullPath)); err != nil {
		return removed, err
	}
	return removed, nil
}

// List обходит директорию данных и возвращает сведения о всех blob'ах.
// Время создания берётся из attr.json, при его отсутствии — из mtime файла.
func (s *Store) List(ctx context.Context) ([]blob.Info, error) {
	var infos []blob.Info

	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if isAttrFile(name) || strings.HasSuffix(name, ".tmp") || !blob.ValidHandle(name) {
			return nil
		}

		info := blob.Info{Handle: name}
		if meta, err := readAttr(attrPath(path)); err == nil {
			info.Size = meta.Size
			info.CreatedAt = meta.CreatedAt
			infos = append(infos, info)
			return nil
		}

		st, err := d.Info()
		if err != nil {
			return fmt.Errorf("ошибка получения информации о файле %s: %w", path, err)
		}
		info.Size = st.Size()
		info.CreatedAt = st.ModTime().UTC()
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода директории %s: %w", s.dataDir, err)
	}

	return infos, nil
}

// writeAtomic записывает reader в path через temp файл и возвращает SHA-256.
// При ошибке temp файл удаляется.
func writeAtomic(path string, reader io.Reader) (string, error) {
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	if _, err := io.Copy(f, io.TeeReader(reader, hasher)); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
