// Пакет gridfsblob — blob-хранилище в MongoDB GridFS.
// Handle — hex-представление ObjectID файла, назначенного GridFS.
package gridfsblob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/bigkaa/goaudiostore/internal/storage/blob"
)

// Options — параметры подключения к MongoDB.
type Options struct {
	URI      string
	Database string
	// Bucket — префикс коллекций GridFS (<bucket>.files, <bucket>.chunks)
	Bucket string
}

// Store — хранилище blob'ов в GridFS.
type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	bucketName string
	logger     *slog.Logger
}

// gridFile — документ коллекции <bucket>.files.
type gridFile struct {
	ID         primitive.ObjectID `bson:"_id"`
	Length     int64              `bson:"length"`
	UploadDate time.Time          `bson:"uploadDate"`
}

// New подключается к MongoDB и проверяет доступность.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("MongoDB недоступна: %w", err)
	}

	logger.Info("Подключение к MongoDB установлено",
		slog.String("database", opts.Database),
		slog.String("bucket", opts.Bucket),
	)

	return &Store{
		client:     client,
		db:         client.Database(opts.Database),
		bucketName: opts.Bucket,
		logger:     logger.With(slog.String("component", "gridfsblob")),
	}, nil
}

// Close закрывает подключение к MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CheckReady проверяет доступность MongoDB (для /health/ready).
func (s *Store) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return "fail", fmt.Sprintf("MongoDB недоступна: %v", err)
	}
	return "ok", "подключение активно"
}

// bucket создаёт GridFS bucket для одной операции.
// Дедлайн контекста переносится на bucket: API GridFS не принимает context.
func (s *Store) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(s.db, options.GridFSBucket().SetName(s.bucketName))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GridFS bucket: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := b.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		if err := b.SetWriteDeadline(deadline); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Put загружает байты в GridFS; handle — ObjectID нового файла.
func (s *Store) Put(ctx context.Context, data []byte, nameHint, contentType string) (string, error) {
	b, err := s.bucket(ctx)
	if err != nil {
		return "", err
	}

	uploadOpts := options.GridFSUpload().SetMetadata(bson.D{
		{Key: "content_type", Value: contentType},
	})
	id, err := b.UploadFromStream(nameHint, bytes.NewReader(data), uploadOpts)
	if err != nil {
		return "", fmt.Errorf("ошибка загрузки в GridFS: %w", err)
	}
	return id.Hex(), nil
}

// Get читает файл GridFS целиком.
func (s *Store) Get(ctx context.Context, handle string) ([]byte, error) {
	id, err := parseHandle(handle)
	if err != nil {
		return nil, blob.ErrNotFound
	}

	b, err := s.bucket(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := b.DownloadToStream(id, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, blob.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения из GridFS %s: %w", handle, err)
	}
	return buf.Bytes(), nil
}

// Delete удаляет файл и его чанки.
func (s *Store) Delete(ctx context.Context, handle string) (bool, error) {
	id, err := parseHandle(handle)
	if err != nil {
		return false, nil
	}

	b, err := s.bucket(ctx)
	if err != nil {
		return false, err
	}

	if err := b.Delete(id); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка удаления из GridFS %s: %w", handle, err)
	}
	return true, nil
}

// List перечисляет все файлы bucket'а.
func (s *Store) List(ctx context.Context) ([]blob.Info, error) {
	cursor, err := s.db.Collection(s.bucketName+".files").Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления файлов GridFS: %w", err)
	}

	var files []gridFile
	if err := cursor.All(ctx, &files); err != nil {
		return nil, fmt.Errorf("ошибка чтения списка файлов GridFS: %w", err)
	}

	infos := make([]blob.Info, 0, len(files))
	for _, f := range files {
		infos = append(infos, blob.Info{
			Handle:    f.ID.Hex(),
			Size:      f.Length,
			CreatedAt: f.UploadDate,
		})
	}
	return infos, nil
}

func parseHandle(handle string) (primitive.ObjectID, error) {
	if !blob.ValidHandle(handle) {
		return primitive.NilObjectID, fmt.Errorf("некорректный handle %q", handle)
	}
	return primitive.ObjectIDFromHex(handle)
}
