// Пакет minioblob — blob-хранилище в MinIO / S3-совместимом бакете.
// Ключ объекта совпадает с handle; имя файла хранится в user metadata.
package minioblob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigkaa/goaudiostore/internal/storage/blob"
)

// nameHintMeta — ключ user metadata с исходным именем файла.
const nameHintMeta = "Name-Hint"

// Options — параметры подключения к MinIO.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store — хранилище blob'ов в бакете MinIO.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New подключается к MinIO и создаёт бакет, если он отсутствует.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента MinIO: %w", err)
	}

	s := &Store{
		client: client,
		bucket: opts.Bucket,
		logger: logger.With(slog.String("component", "minioblob")),
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("ошибка проверки бакета %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("ошибка создания бакета %s: %w", s.bucket, err)
	}
	s.logger.Info("Бакет создан", slog.String("bucket", s.bucket))
	return nil
}

// EndpointURL возвращает URL MinIO (для health-проверок).
func (s *Store) EndpointURL() string {
	return s.client.EndpointURL().String()
}

// CheckReady проверяет доступность бакета (для /health/ready).
func (s *Store) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return "fail", fmt.Sprintf("MinIO недоступен: %v", err)
	}
	if !exists {
		return "fail", fmt.Sprintf("бакет %s не найден", s.bucket)
	}
	return "ok", "бакет доступен"
}

// Put загружает объект под новым handle.
func (s *Store) Put(ctx context.Context, data []byte, nameHint, contentType string) (string, error) {
	handle := blob.NewHandle()

	_, err := s.client.PutObject(ctx, s.bucket, handle, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: map[string]string{nameHintMeta: nameHint},
		})
	if err != nil {
		return "", fmt.Errorf("ошибка загрузки объекта в MinIO: %w", err)
	}
	return handle, nil
}

// Get читает объект целиком.
func (s *Store) Get(ctx context.Context, handle string) ([]byte, error) {
	if !blob.ValidHandle(handle) {
		return nil, blob.ErrNotFound
	}

	obj, err := s.client.GetObject(ctx, s.bucket, handle, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, blob.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения объекта %s: %w", handle, err)
	}
	defer obj.Close()

	// Ошибка отсутствия объекта проявляется только при первом чтении
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, blob.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения объекта %s: %w", handle, err)
	}
	return data, nil
}

// Delete удаляет объект. S3 RemoveObject не сообщает о наличии объекта,
// поэтому сначала выполняется StatObject.
func (s *Store) Delete(ctx context.Context, handle string) (bool, error) {
	if !blob.ValidHandle(handle) {
		return false, nil
	}

	if _, err := s.client.StatObject(ctx, s.bucket, handle, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка получения информации об объекте %s: %w", handle, err)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, handle, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("ошибка удаления объекта %s: %w", handle, err)
	}
	return true, nil
}

// List перечисляет все объекты бакета.
func (s *Store) List(ctx context.Context) ([]blob.Info, error) {
	var infos []blob.Info
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("ошибка перечисления объектов: %w", obj.Err)
		}
		if !blob.ValidHandle(obj.Key) {
			continue
		}
		infos = append(infos, blob.Info{
			Handle:    obj.Key,
			Size:      obj.Size,
			CreatedAt: obj.LastModified,
		})
	}
	return infos, nil
}

// isNotFound распознаёт ответ S3 об отсутствии объекта.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return true
	}
	var errResp minio.ErrorResponse
	return errors.As(err, &errResp) && errResp.Code == "NoSuchKey"
}
