package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/goaudiostore/internal/api/handlers"
	"github.com/bigkaa/goaudiostore/internal/api/middleware"
	"github.com/bigkaa/goaudiostore/internal/auth"
	"github.com/bigkaa/goaudiostore/internal/config"
	"github.com/bigkaa/goaudiostore/internal/database"
	"github.com/bigkaa/goaudiostore/internal/repository"
	"github.com/bigkaa/goaudiostore/internal/server"
	"github.com/bigkaa/goaudiostore/internal/service"
	"github.com/bigkaa/goaudiostore/internal/storage/blob/minioblob"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API",
	Long: `Применяет миграции, подключается к PostgreSQL и blob-хранилищу,
создаёт администратора (если задан AS_ADMIN_PASSWORD) и запускает HTTP-сервер.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd)
	},
}

func serve(cmd *cobra.Command) error {
	ctx := cmd.Context()

	logger.Info("Audio Store запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("blob_backend", cfg.BlobBackend),
	)

	if os.Getenv("AS_DEPHEALTH_GROUP") == "" {
		logger.Warn("AS_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 1. Миграции БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return err
	}

	// 2. PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// 2.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 3. Blob-хранилище
	blobs, closeBlobs, err := openBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBlobs()

	// 4. Отзыв токенов и публикация событий
	revoked, closeRevoked, err := openRevocationList(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRevoked()

	publisher := openPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Ошибка закрытия публикатора событий", slog.String("error", err.Error()))
		}
	}()

	// 5. Repositories
	catalog := repository.NewAudioFileCatalog(pool)
	userRepo := repository.NewUserRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 6. Services
	managerOpts := []service.ManagerOption{service.WithEvents(publisher)}
	if cfg.SerializeFileMutations {
		managerOpts = append(managerOpts, service.WithSerializedMutations())
	}
	filesSvc := service.NewAudioFileManager(
		catalog, blobs,
		service.NewUploadPolicy(cfg.MaxFileSizeBytes()),
		logger,
		managerOpts...,
	)

	hasher := auth.NewBcryptHasher(0)
	usersSvc := service.NewUserService(userRepo, txRunner, hasher, filesSvc, logger)
	authSvc := service.NewAuthService(
		userRepo, usersSvc, hasher,
		auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
		revoked,
		logger,
	)

	// 7. Администратор при первом запуске
	if err := authSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("создание администратора: %w", err)
	}

	// 8. Фоновая сверка
	var reconcileSvc *service.ReconcileService
	if cfg.ReconcileInterval > 0 {
		reconcileSvc = service.NewReconcileService(catalog, blobs, service.ReconcileOptions{
			Interval:      cfg.ReconcileInterval,
			OrphanGrace:   cfg.ReconcileOrphanGrace,
			DeleteOrphans: cfg.ReconcileDeleteOrphans,
		}, logger)
		reconcileSvc.Start(ctx)
	} else {
		logger.Info("Фоновая сверка отключена (AS_RECONCILE_INTERVAL=0)")
	}

	// 9. topologymetrics — мониторинг зависимостей (PostgreSQL + MinIO)
	dhCfg := service.DephealthConfig{
		ServiceID:     "audio-store",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PgConnURL:     cfg.DatabaseURL("postgres"),
		CheckInterval: cfg.DephealthCheckInterval,
	}
	if m, ok := blobs.(*minioblob.Store); ok {
		dhCfg.MinIOURL = m.EndpointURL()
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(dhCfg, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. HTTP
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), blobs, cfg.BlobBackend)
	apiHandler := handlers.NewAPIHandler(healthHandler, filesSvc, usersSvc, authSvc, cfg.CookieSecure, logger)
	jwtAuth := middleware.NewJWTAuth(authSvc, logger)

	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	runErr := srv.Run()

	// 11. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if reconcileSvc != nil {
		reconcileSvc.Stop()
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("Audio Store остановлен")
	return nil
}
