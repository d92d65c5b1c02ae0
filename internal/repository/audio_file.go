package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// AudioFileCatalog — интерфейс каталога аудиофайлов (таблица audio_files).
// Каталог отвечает только за записи; байты файлов — в blob-хранилище.
type AudioFileCatalog interface {
	// Insert вставляет запись; заполняет ID, CreatedAt, UpdatedAt.
	// Повтор blob_handle → ErrConflict.
	Insert(ctx context.Context, rec *model.AudioFileRecord) error
	// FindByID возвращает запись без фильтра по владельцу.
	FindByID(ctx context.Context, id int64) (*model.AudioFileRecord, error)
	// FindByOwner возвращает все записи владельца в порядке id.
	FindByOwner(ctx context.Context, ownerID int64) ([]*model.AudioFileRecord, error)
	// UpdateContent атомарно заменяет содержимое записи (имя, тип, размер, handle)
	// и выставляет updated_at. Запись на входе дополняется новыми значениями.
	UpdateContent(ctx context.Context, rec *model.AudioFileRecord) error
	// Delete удаляет запись.
	Delete(ctx context.Context, id int64) error
	// CountByOwner возвращает количество файлов владельца.
	CountByOwner(ctx context.Context, ownerID int64) (int, error)
	// ListHandles возвращает все blob_handle каталога (для сверки).
	ListHandles(ctx context.Context) ([]string, error)
}

type audioFileCatalog struct {
	db DBTX
}

// NewAudioFileCatalog создаёт каталог аудиофайлов.
func NewAudioFileCatalog(db DBTX) AudioFileCatalog {
	return &audioFileCatalog{db: db}
}

const audioFileColumns = `id, owner_id, filename, original_filename, content_type,
			file_size, blob_handle, created_at, updated_at`

func scanAudioFile(row pgx.Row) (*model.AudioFileRecord, error) {
	rec := &model.AudioFileRecord{}
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Filename, &rec.OriginalFilename, &rec.ContentType,
		&rec.FileSize, &rec.BlobHandle, &rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}

func (c *audioFileCatalog) Insert(ctx context.Context, rec *model.AudioFileRecord) error {
	query := `
		INSERT INTO audio_files (owner_id, filename, original_filename, content_type,
			file_size, blob_handle)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := c.db.QueryRow(ctx, query,
		rec.OwnerID, rec.Filename, rec.OriginalFilename, rec.ContentType,
		rec.FileSize, rec.BlobHandle,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: blob handle %s уже используется", ErrConflict, rec.BlobHandle)
		}
		return fmt.Errorf("ошибка вставки записи аудиофайла: %w", err)
	}
	return nil
}

func (c *audioFileCatalog) FindByID(ctx context.Context, id int64) (*model.AudioFileRecord, error) {
	query := `SELECT ` + audioFileColumns + ` FROM audio_files WHERE id = $1`

	rec, err := scanAudioFile(c.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения аудиофайла: %w", err)
	}
	return rec, nil
}

func (c *audioFileCatalog) FindByOwner(ctx context.Context, ownerID int64) ([]*model.AudioFileRecord, error) {
	query := `SELECT ` + audioFileColumns + ` FROM audio_files WHERE owner_id = $1 ORDER BY id`

	rows, err := c.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка аудиофайлов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.AudioFileRecord, 0)
	for rows.Next() {
		rec, err := scanAudioFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования аудиофайла: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (c *audioFileCatalog) UpdateContent(ctx context.Context, rec *model.AudioFileRecord) error {
	query := `
		UPDATE audio_files
		SET filename = $2, original_filename = $3, content_type = $4,
			file_size = $5, blob_handle = $6, updated_at = now()
		WHERE id = $1
		RETURNING owner_id, created_at, updated_at`

	err := c.db.QueryRow(ctx, query,
		rec.ID, rec.Filename, rec.OriginalFilename, rec.ContentType,
		rec.FileSize, rec.BlobHandle,
	).Scan(&rec.OwnerID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: blob handle %s уже используется", ErrConflict, rec.BlobHandle)
		}
		return fmt.Errorf("ошибка обновления аудиофайла: %w", err)
	}
	return nil
}

func (c *audioFileCatalog) Delete(ctx context.Context, id int64) error {
	tag, err := c.db.Exec(ctx, `DELETE FROM audio_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления аудиофайла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *audioFileCatalog) CountByOwner(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := c.db.QueryRow(ctx, `SELECT count(*) FROM audio_files WHERE owner_id = $1`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта аудиофайлов: %w", err)
	}
	return n, nil
}

func (c *audioFileCatalog) ListHandles(ctx context.Context) ([]string, error) {
	rows, err := c.db.Query(ctx, `SELECT blob_handle FROM audio_files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка blob handle: %w", err)
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("ошибка сканирования blob handle: %w", err)
		}
		handles = append(handles, h)
	}
	return handles, rows.Err()
}
