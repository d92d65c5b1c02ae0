package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/goaudiostore/internal/auth"
	"github.com/bigkaa/goaudiostore/internal/config"
	"github.com/bigkaa/goaudiostore/internal/events"
	"github.com/bigkaa/goaudiostore/internal/service"
	"github.com/bigkaa/goaudiostore/internal/storage/blob/fsblob"
	"github.com/bigkaa/goaudiostore/internal/storage/blob/gridfsblob"
	"github.com/bigkaa/goaudiostore/internal/storage/blob/memblob"
	"github.com/bigkaa/goaudiostore/internal/storage/blob/minioblob"
)

// blobBackend — blob-хранилище с перечислением и проверкой готовности.
type blobBackend interface {
	service.ReconcileStore
	CheckReady() (status, message string)
}

// revocationListSize — ёмкость in-memory списка отозванных токенов.
const revocationListSize = 10000

// openBlobStore создаёт backend по AS_BLOB_BACKEND. Возвращаемая функция
// освобождает ресурсы backend'а.
func openBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobBackend, func(), error) {
	noop := func() {}

	switch cfg.BlobBackend {
	case config.BlobBackendFS:
		s, err := fsblob.New(cfg.BlobDataDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Blob-хранилище: файловая система", slog.String("data_dir", s.DataDir()))
		return s, noop, nil

	case config.BlobBackendMinIO:
		s, err := minioblob.New(ctx, minioblob.Options{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Blob-хранилище: MinIO",
			slog.String("endpoint", cfg.MinIOEndpoint),
			slog.String("bucket", cfg.MinIOBucket),
		)
		return s, noop, nil

	case config.BlobBackendGridFS:
		s, err := gridfsblob.New(ctx, gridfsblob.Options{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
			Bucket:   cfg.GridFSBucket,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Close(closeCtx); err != nil {
				logger.Warn("Ошибка отключения от MongoDB", slog.String("error", err.Error()))
			}
		}
		return s, closeFn, nil

	case config.BlobBackendMemory:
		logger.Warn("Blob-хранилище в памяти: данные не переживут перезапуск")
		return memblob.New(), noop, nil

	default:
		return nil, nil, fmt.Errorf("неизвестный backend blob-хранилища: %q", cfg.BlobBackend)
	}
}

// openRevocationList — Redis при заданном AS_REDIS_ADDR, иначе in-memory LRU
// (отзыв действует только в пределах экземпляра).
func openRevocationList(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.RevocationList, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Warn("AS_REDIS_ADDR не задан, отзыв токенов хранится в памяти процесса")
		return auth.NewMemoryRevocationList(revocationListSize, cfg.JWTTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("Redis недоступен: %w", err)
	}
	logger.Info("Подключение к Redis установлено", slog.String("addr", cfg.RedisAddr))

	return auth.NewRedisRevocationList(client), func() { _ = client.Close() }, nil
}

// openPublisher — Kafka при заданных AS_KAFKA_BROKERS, иначе события не публикуются.
func openPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("AS_KAFKA_BROKERS не задан, события не публикуются")
		return events.NopPublisher{}
	}
	logger.Info("Публикация событий в Kafka",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.String("topic", cfg.KafkaTopic),
	)
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}
