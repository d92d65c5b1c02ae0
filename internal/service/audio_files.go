// audio_files.go — AudioFileManager: согласованная работа каталога
// (PostgreSQL) и blob-хранилища для аудиофайлов пользователей.
//
// Общего коммита у двух хранилищ нет, поэтому согласованность держится
// на порядке операций и компенсирующих удалениях:
//   - blob записывается ДО записи каталога, которая на него сошлётся;
//   - blob удаляется ПОСЛЕ записи каталога, которая перестаёт на него ссылаться.
//
// При сбое посередине возможен только blob-сирота (невидим пользователю,
// находится сверкой — см. reconcile.go), но не запись без данных.
// Исключение — сбой удаления записи в Delete после удаления blob'а.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/events"
	"github.com/bigkaa/goaudiostore/internal/repository"
	"github.com/bigkaa/goaudiostore/internal/storage/blob"
)

// DefaultAllowedExtensions — допустимые расширения аудиофайлов.
var DefaultAllowedExtensions = []string{"mp3", "wav", "ogg", "m4a", "flac"}

// Пределы длины (в символах) совпадают с колонками audio_files:
// filename/original_filename VARCHAR(255), content_type VARCHAR(100).
const (
	DefaultMaxFilenameLen    = 255
	DefaultMaxContentTypeLen = 100
)

// UploadPolicy — правила приёма файлов. Вычисляется один раз при старте.
type UploadPolicy struct {
	// AllowedExtensions — расширения в нижнем регистре, без точки
	AllowedExtensions []string
	// MaxFileSizeBytes — верхняя граница размера (включительно)
	MaxFileSizeBytes int64
	// MaxFilenameLen — предел длины имени файла в символах
	MaxFilenameLen int
	// MaxContentTypeLen — предел длины MIME-типа в символах
	MaxContentTypeLen int
}

// NewUploadPolicy создаёт политику со стандартным списком расширений.
func NewUploadPolicy(maxFileSizeBytes int64) UploadPolicy {
	return UploadPolicy{
		AllowedExtensions: DefaultAllowedExtensions,
		MaxFileSizeBytes:  maxFileSizeBytes,
		MaxFilenameLen:    DefaultMaxFilenameLen,
		MaxContentTypeLen: DefaultMaxContentTypeLen,
	}
}

// Validate проверяет загрузку до любой записи в хранилища.
// Порядок проверок: пустой ввод → длина имени → расширение → размер → MIME-тип.
func (p UploadPolicy) Validate(in UploadInput) error {
	if in.Filename == "" || in.Data == nil {
		return ErrEmptyInput
	}
	if n := utf8.RuneCountInString(in.Filename); n > p.MaxFilenameLen {
		return fmt.Errorf("%w: %d символов при лимите %d", ErrFilenameTooLong, n, p.MaxFilenameLen)
	}
	if !p.AllowedExtension(in.Filename) {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, in.Filename)
	}
	if int64(len(in.Data)) > p.MaxFileSizeBytes {
		return fmt.Errorf("%w: %d байт при лимите %d", ErrTooLarge, len(in.Data), p.MaxFileSizeBytes)
	}
	if n := utf8.RuneCountInString(in.ContentType); n > p.MaxContentTypeLen {
		return fmt.Errorf("%w: %d символов при лимите %d", ErrContentTypeTooLong, n, p.MaxContentTypeLen)
	}
	return nil
}

// AllowedExtension — расширение (подстрока после последней точки,
// без учёта регистра) входит в список. Имя без точки не допускается.
func (p UploadPolicy) AllowedExtension(filename string) bool {
	dot := strings.LastIndex(filename, ".")
	if dot < 0 {
		return false
	}
	ext := strings.ToLower(filename[dot+1:])
	for _, allowed := range p.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// UploadInput — загружаемый файл.
type UploadInput struct {
	// Data — байты файла; nil означает «файл не передан»
	Data     []byte
	Filename string
	// ContentType — заявленный клиентом MIME-тип; пустой → audio/mpeg
	ContentType string
}

func (in UploadInput) contentType() string {
	if in.ContentType == "" {
		return model.DefaultContentType
	}
	return in.ContentType
}

// AudioFileManager — оркестратор операций с аудиофайлами.
// Зависимости передаются при создании; глобального состояния нет.
type AudioFileManager struct {
	catalog repository.AudioFileCatalog
	blobs   blob.Store
	policy  UploadPolicy
	events  events.Publisher
	// locks — сериализация Replace/Delete по ID файла (nil — выключена)
	locks  *keyedMutex
	logger *slog.Logger
}

// ManagerOption — опция AudioFileManager.
type ManagerOption func(*AudioFileManager)

// WithEvents включает публикацию событий жизненного цикла.
func WithEvents(p events.Publisher) ManagerOption {
	return func(m *AudioFileManager) { m.events = p }
}

// WithSerializedMutations сериализует Replace и Delete одного файла
// внутри процесса. Без неё два параллельных Replace одного файла могут
// чередоваться, и проигравший удалит blob, ставший текущим.
func WithSerializedMutations() ManagerOption {
	return func(m *AudioFileManager) { m.locks = newKeyedMutex() }
}

// NewAudioFileManager создаёт AudioFileManager.
func NewAudioFileManager(
	catalog repository.AudioFileCatalog,
	blobs blob.Store,
	policy UploadPolicy,
	logger *slog.Logger,
	opts ...ManagerOption,
) *AudioFileManager {
	m := &AudioFileManager{
		catalog: catalog,
		blobs:   blobs,
		policy:  policy,
		events:  events.NopPublisher{},
		logger:  logger.With(slog.String("component", "audio_files")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy возвращает действующую политику приёма файлов.
func (m *AudioFileManager) Policy() UploadPolicy {
	return m.policy
}

// Upload сохраняет новый файл владельца.
//
// Шаги: валидация → запись blob'а → вставка записи каталога.
// Если вставка не удалась, blob остаётся сиротой: он не удаляется,
// а только логируется (его подберёт сверка).
func (m *AudioFileManager) Upload(ctx context.Context, ownerID int64, in UploadInput) (rec *model.AudioFileRecord, err error) {
	defer func() { operationsTotal.WithLabelValues("upload", resultLabel(err)).Inc() }()

	if err := m.policy.Validate(in); err != nil {
		return nil, err
	}

	// После начала записи операция доводится до конца даже при отмене запроса
	ctx = context.WithoutCancel(ctx)
	contentType := in.contentType()

	handle, err := m.blobs.Put(ctx, in.Data, in.Filename, contentType)
	if err != nil {
		m.logger.Error("Ошибка записи blob",
			slog.Int64("owner_id", ownerID),
			slog.String("filename", in.Filename),
			slog.String("error", err.Error()),
		)
		return nil, storageErr(ErrStorageWriteFailed, err)
	}
	bytesStoredTotal.Add(float64(len(in.Data)))

	rec = &model.AudioFileRecord{
		OwnerID:          ownerID,
		Filename:         in.Filename,
		OriginalFilename: in.Filename,
		ContentType:      contentType,
		FileSize:         int64(len(in.Data)),
		BlobHandle:       handle,
	}
	if err := m.catalog.Insert(ctx, rec); err != nil {
		m.logger.Error("Запись каталога не создана, blob остался сиротой",
			slog.Int64("owner_id", ownerID),
			slog.String("blob_handle", handle),
			slog.String("error", err.Error()),
		)
		return nil, storageErr(ErrMetadataWriteFailed, err)
	}

	m.logger.Info("Файл загружен",
		slog.Int64("file_id", rec.ID),
		slog.Int64("owner_id", ownerID),
		slog.String("filename", rec.Filename),
		slog.Int64("size", rec.FileSize),
	)
	m.publish(ctx, events.TypeUploaded, rec)
	return rec, nil
}

// List возвращает файлы владельца в порядке загрузки.
func (m *AudioFileManager) List(ctx context.Context, ownerID int64) ([]*model.AudioFileRecord, error) {
	records, err := m.catalog.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, storageErr(ErrMetadataReadFailed, err)
	}
	return records, nil
}

// Fetch возвращает запись и байты файла.
// Запись без blob'а — ErrDataMissing: байты никогда не подставляются.
func (m *AudioFileManager) Fetch(ctx context.Context, fileID, ownerID int64) (rec *model.AudioFileRecord, data []byte, err error) {
	defer func() { operationsTotal.WithLabelValues("fetch", resultLabel(err)).Inc() }()

	rec, err = m.lookupOwned(ctx, fileID, ownerID)
	if err != nil {
		return nil, nil, err
	}

	data, err = m.blobs.Get(ctx, rec.BlobHandle)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			consistencyViolationsTotal.Inc()
			m.logger.Error("Нарушена согласованность: запись каталога без blob'а",
				slog.Int64("file_id", rec.ID),
				slog.String("blob_handle", rec.BlobHandle),
			)
			return nil, nil, fmt.Errorf("%w: файл %d", ErrDataMissing, rec.ID)
		}
		m.logger.Error("Ошибка чтения blob",
			slog.Int64("file_id", rec.ID),
			slog.String("blob_handle", rec.BlobHandle),
			slog.String("error", err.Error()),
		)
		return nil, nil, storageErr(ErrStorageReadFailed, err)
	}

	return rec, data, nil
}

// Replace заменяет содержимое файла.
//
// Шаги: поиск и проверка владельца → валидация → запись нового blob'а
// (старый не трогается) → обновление записи. При сбое обновления новый
// blob удаляется, запись продолжает указывать на старый, целый blob.
// После успешного обновления старый blob удаляется без влияния на результат.
func (m *AudioFileManager) Replace(ctx context.Context, fileID, ownerID int64, in UploadInput) (rec *model.AudioFileRecord, err error) {
	defer func() { operationsTotal.WithLabelValues("replace", resultLabel(err)).Inc() }()

	unlock := m.lock(fileID)
	defer unlock()

	current, err := m.lookupOwned(ctx, fileID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := m.policy.Validate(in); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	contentType := in.contentType()

	newHandle, err := m.blobs.Put(ctx, in.Data, in.Filename, contentType)
	if err != nil {
		m.logger.Error("Ошибка записи нового blob при замене",
			slog.Int64("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, storageErr(ErrStorageWriteFailed, err)
	}
	bytesStoredTotal.Add(float64(len(in.Data)))

	oldHandle := current.BlobHandle
	updated := *current
	updated.Filename = in.Filename
	updated.OriginalFilename = in.Filename
	updated.ContentType = contentType
	updated.FileSize = int64(len(in.Data))
	updated.BlobHandle = newHandle

	if err := m.catalog.UpdateContent(ctx, &updated); err != nil {
		m.deleteBlobBestEffort(ctx, newHandle, "replace_rollback", fileID)
		if errors.Is(err, repository.ErrNotFound) {
			// Запись удалена параллельным Delete
			return nil, fmt.Errorf("%w: файл %d", ErrNotFound, fileID)
		}
		m.logger.Error("Ошибка обновления записи, замена откачена",
			slog.Int64("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, storageErr(ErrMetadataWriteFailed, err)
	}

	m.deleteBlobBestEffort(ctx, oldHandle, "replace_old", fileID)

	m.logger.Info("Файл заменён",
		slog.Int64("file_id", fileID),
		slog.Int64("owner_id", ownerID),
		slog.String("filename", updated.Filename),
		slog.Int64("size", updated.FileSize),
	)
	m.publish(ctx, events.TypeReplaced, &updated)
	return &updated, nil
}

// Delete удаляет файл: сначала blob (отсутствие blob'а не мешает),
// затем запись каталога. Сбой удаления записи оставляет висячую
// запись; повторный Delete её убирает.
func (m *AudioFileManager) Delete(ctx context.Context, fileID, ownerID int64) (err error) {
	defer func() { operationsTotal.WithLabelValues("delete", resultLabel(err)).Inc() }()

	unlock := m.lock(fileID)
	defer unlock()

	rec, err := m.lookupOwned(ctx, fileID, ownerID)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	m.deleteBlobBestEffort(ctx, rec.BlobHandle, "delete", fileID)

	if err := m.catalog.Delete(ctx, fileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: файл %d", ErrNotFound, fileID)
		}
		m.logger.Error("Blob удалён, но запись каталога осталась (висячая запись)",
			slog.Int64("file_id", fileID),
			slog.String("blob_handle", rec.BlobHandle),
			slog.String("error", err.Error()),
		)
		return storageErr(ErrMetadataWriteFailed, err)
	}

	m.logger.Info("Файл удалён",
		slog.Int64("file_id", fileID),
		slog.Int64("owner_id", ownerID),
	)
	m.publish(ctx, events.TypeDeleted, rec)
	return nil
}

// PurgeOwnerBlobs удаляет blob'ы всех файлов владельца, не трогая записи
// каталога (их удаляет каскад при удалении пользователя).
// Возвращает количество удалённых blob'ов.
func (m *AudioFileManager) PurgeOwnerBlobs(ctx context.Context, ownerID int64) (int, error) {
	records, err := m.catalog.FindByOwner(ctx, ownerID)
	if err != nil {
		return 0, storageErr(ErrMetadataReadFailed, err)
	}

	ctx = context.WithoutCancel(ctx)
	removed := 0
	for _, rec := range records {
		if m.deleteBlobBestEffort(ctx, rec.BlobHandle, "purge_owner", rec.ID) {
			removed++
		}
	}
	return removed, nil
}

// lookupOwned находит запись и проверяет владельца.
// Чужой файл — ErrAccessDenied (логируется отдельно от «не найден»).
func (m *AudioFileManager) lookupOwned(ctx context.Context, fileID, ownerID int64) (*model.AudioFileRecord, error) {
	rec, err := m.catalog.FindByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: файл %d", ErrNotFound, fileID)
		}
		return nil, storageErr(ErrMetadataReadFailed, err)
	}

	if !rec.IsOwnedBy(ownerID) {
		m.logger.Warn("Попытка доступа к чужому файлу",
			slog.Int64("file_id", fileID),
			slog.Int64("owner_id", rec.OwnerID),
			slog.Int64("requester_id", ownerID),
		)
		return nil, ErrAccessDenied
	}
	return rec, nil
}

// deleteBlobBestEffort удаляет blob; ошибки только логируются.
// Возвращает true, если blob был удалён.
func (m *AudioFileManager) deleteBlobBestEffort(ctx context.Context, handle, stage string, fileID int64) bool {
	removed, err := m.blobs.Delete(ctx, handle)
	if err != nil {
		cleanupFailuresTotal.WithLabelValues(stage).Inc()
		m.logger.Warn("Не удалось удалить blob",
			slog.String("stage", stage),
			slog.Int64("file_id", fileID),
			slog.String("blob_handle", handle),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !removed {
		m.logger.Warn("Blob уже отсутствовал",
			slog.String("stage", stage),
			slog.Int64("file_id", fileID),
			slog.String("blob_handle", handle),
		)
	}
	return removed
}

func (m *AudioFileManager) lock(fileID int64) func() {
	if m.locks == nil {
		return func() {}
	}
	return m.locks.Lock(fileID)
}

// publish отправляет событие; ошибка не влияет на результат операции.
func (m *AudioFileManager) publish(ctx context.Context, typ events.Type, rec *model.AudioFileRecord) {
	err := m.events.Publish(ctx, events.Event{
		Type:       typ,
		FileID:     rec.ID,
		OwnerID:    rec.OwnerID,
		Filename:   rec.Filename,
		BlobHandle: rec.BlobHandle,
		Size:       rec.FileSize,
	})
	if err != nil {
		m.logger.Warn("Не удалось опубликовать событие",
			slog.String("type", string(typ)),
			slog.Int64("file_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}
