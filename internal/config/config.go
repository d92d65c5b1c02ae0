// Пакет config — загрузка и валидация конфигурации Audio Store.
// Источники (по убыванию приоритета): переменные окружения AS_*,
// YAML-файл (AS_CONFIG_FILE или environments/<APP_ENV>.yml), значения по умолчанию.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые backend'ы blob-хранилища.
const (
	BlobBackendFS     = "fs"
	BlobBackendMinIO  = "minio"
	BlobBackendGridFS = "gridfs"
	BlobBackendMemory = "memory"
)

// Config содержит все параметры конфигурации Audio Store.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- PostgreSQL (каталог аудиофайлов и пользователи) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Blob-хранилище ---

	// Backend: fs, minio, gridfs, memory
	BlobBackend string
	// Корневая директория для backend fs
	BlobDataDir string

	// MinIO / S3
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	// MongoDB GridFS
	MongoURI      string
	MongoDatabase string
	GridFSBucket  string

	// --- Загрузка файлов ---

	// Максимальный размер файла в мегабайтах (file_upload.max_file_size_mb)
	MaxFileSizeMB int
	// Сериализация Replace/Delete одного файла внутри процесса
	SerializeFileMutations bool

	// --- Аутентификация ---

	// Секрет подписи JWT (HS256)
	JWTSecret string
	// Время жизни токена
	JWTTTL time.Duration
	// Issuer JWT
	JWTIssuer string
	// Флаг Secure у cookie сессии (включать за HTTPS)
	CookieSecure bool

	// Redis для списка отозванных токенов (пусто — in-memory LRU)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Администратор, создаваемый при старте, если отсутствует
	AdminUsername string
	AdminPassword string
	AdminEmail    string

	// --- События ---

	// Брокеры Kafka (пусто — события не публикуются)
	KafkaBrokers []string
	// Топик событий жизненного цикла аудиофайлов
	KafkaTopic string

	// --- Сверка хранилищ ---

	// Интервал фоновой сверки (0 — выключена)
	ReconcileInterval time.Duration
	// Минимальный возраст blob'а без записи, чтобы считать его сиротой
	ReconcileOrphanGrace time.Duration
	// Удалять найденные blob-сироты
	ReconcileDeleteOrphans bool

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию, валидирует обязательные поля
// и возвращает Config или ошибку.
func Load() (*Config, error) {
	file, err := loadFileValues()
	if err != nil {
		return nil, err
	}
	s := &source{file: file}

	cfg := &Config{}

	// --- Сервер ---

	// AS_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = s.getEnvInt("AS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("AS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("AS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(s.getEnvDefault("AS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = s.getEnvDefault("AS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = s.getEnvDuration("AS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = s.getEnvRequired("AS_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = s.getEnvInt("AS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("AS_DB_PORT: %w", err)
	}
	if cfg.DBName, err = s.getEnvRequired("AS_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = s.getEnvRequired("AS_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = s.getEnvRequired("AS_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = s.getEnvDefault("AS_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("AS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Blob-хранилище ---

	cfg.BlobBackend = strings.ToLower(s.getEnvDefault("AS_BLOB_BACKEND", BlobBackendFS))
	switch cfg.BlobBackend {
	case BlobBackendFS:
		cfg.BlobDataDir = s.getEnvDefault("AS_BLOB_DATA_DIR", "/data/audio")
	case BlobBackendMinIO:
		if cfg.MinIOEndpoint, err = s.getEnvRequired("AS_MINIO_ENDPOINT"); err != nil {
			return nil, err
		}
		if cfg.MinIOAccessKey, err = s.getEnvRequired("AS_MINIO_ACCESS_KEY"); err != nil {
			return nil, err
		}
		if cfg.MinIOSecretKey, err = s.getEnvRequired("AS_MINIO_SECRET_KEY"); err != nil {
			return nil, err
		}
		cfg.MinIOBucket = s.getEnvDefault("AS_MINIO_BUCKET", "audio-files")
		cfg.MinIOUseSSL, err = s.getEnvBool("AS_MINIO_USE_SSL", false)
		if err != nil {
			return nil, fmt.Errorf("AS_MINIO_USE_SSL: %w", err)
		}
	case BlobBackendGridFS:
		if cfg.MongoURI, err = s.getEnvRequired("AS_MONGO_URI"); err != nil {
			return nil, err
		}
		cfg.MongoDatabase = s.getEnvDefault("AS_MONGO_DATABASE", "audio_store")
		cfg.GridFSBucket = s.getEnvDefault("AS_GRIDFS_BUCKET", "fs")
	case BlobBackendMemory:
	default:
		return nil, fmt.Errorf("AS_BLOB_BACKEND: недопустимое значение %q, допустимые: fs, minio, gridfs, memory", cfg.BlobBackend)
	}

	// --- Загрузка файлов ---

	cfg.MaxFileSizeMB, err = s.getEnvInt("AS_MAX_FILE_SIZE_MB", 50)
	if err != nil {
		return nil, fmt.Errorf("AS_MAX_FILE_SIZE_MB: %w", err)
	}
	if cfg.MaxFileSizeMB < 1 {
		return nil, fmt.Errorf("AS_MAX_FILE_SIZE_MB: значение %d должно быть положительным", cfg.MaxFileSizeMB)
	}
	cfg.SerializeFileMutations, err = s.getEnvBool("AS_SERIALIZE_FILE_MUTATIONS", false)
	if err != nil {
		return nil, fmt.Errorf("AS_SERIALIZE_FILE_MUTATIONS: %w", err)
	}

	// --- Аутентификация ---

	if cfg.JWTSecret, err = s.getEnvRequired("AS_JWT_SECRET"); err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("AS_JWT_SECRET: секрет должен быть не короче 32 символов")
	}
	cfg.JWTTTL, err = s.getEnvDuration("AS_JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AS_JWT_TTL: %w", err)
	}
	cfg.JWTIssuer = s.getEnvDefault("AS_JWT_ISSUER", "audio-store")
	cfg.CookieSecure, err = s.getEnvBool("AS_COOKIE_SECURE", false)
	if err != nil {
		return nil, fmt.Errorf("AS_COOKIE_SECURE: %w", err)
	}

	cfg.RedisAddr = s.getEnvDefault("AS_REDIS_ADDR", "")
	cfg.RedisPassword = s.getEnvDefault("AS_REDIS_PASSWORD", "")
	cfg.RedisDB, err = s.getEnvInt("AS_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("AS_REDIS_DB: %w", err)
	}

	cfg.AdminUsername = s.getEnvDefault("AS_ADMIN_USERNAME", "Admin")
	cfg.AdminPassword = s.getEnvDefault("AS_ADMIN_PASSWORD", "")
	cfg.AdminEmail = s.getEnvDefault("AS_ADMIN_EMAIL", "admin@audioapp.com")

	// --- События ---

	cfg.KafkaBrokers = parseCSV(s.getEnvDefault("AS_KAFKA_BROKERS", ""))
	cfg.KafkaTopic = s.getEnvDefault("AS_KAFKA_TOPIC", "audio.files")

	// --- Сверка хранилищ ---

	cfg.ReconcileInterval, err = s.getEnvDuration("AS_RECONCILE_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("AS_RECONCILE_INTERVAL: %w", err)
	}
	cfg.ReconcileOrphanGrace, err = s.getEnvDuration("AS_RECONCILE_ORPHAN_GRACE", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AS_RECONCILE_ORPHAN_GRACE: %w", err)
	}
	cfg.ReconcileDeleteOrphans, err = s.getEnvBool("AS_RECONCILE_DELETE_ORPHANS", false)
	if err != nil {
		return nil, fmt.Errorf("AS_RECONCILE_DELETE_ORPHANS: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = s.getEnvDefault("AS_DEPHEALTH_GROUP", "audio-store")
	cfg.DephealthCheckInterval, err = s.getEnvDuration("AS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// MaxFileSizeBytes возвращает лимит размера файла в байтах.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL (для golang-migrate и лейблов topologymetrics).
func (c *Config) DatabaseURL(scheme string) string {
	return fmt.Sprintf(
		"%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// source — поиск значения: сначала переменная окружения, затем YAML-файл.
type source struct {
	file map[string]string
}

func (s *source) lookup(key string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if yamlKey, ok := yamlKeys[key]; ok {
		return s.file[yamlKey]
	}
	return ""
}

// getEnvRequired возвращает значение или ошибку, если оно не задано ни в окружении, ни в файле.
func (s *source) getEnvRequired(key string) (string, error) {
	val := s.lookup(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение или значение по умолчанию.
func (s *source) getEnvDefault(key, defaultVal string) string {
	val := s.lookup(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение или значение по умолчанию.
func (s *source) getEnvInt(key string, defaultVal int) (int, error) {
	val := s.lookup(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает логическое значение или значение по умолчанию.
func (s *source) getEnvBool(key string, defaultVal bool) (bool, error) {
	val := s.lookup(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration или значение по умолчанию.
func (s *source) getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := s.lookup(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("отрицательная длительность: %q", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// configFilePath определяет путь к YAML-файлу конфигурации.
// Возвращает required=true, если файл указан явно и обязан существовать.
func configFilePath() (path string, required bool) {
	if p := os.Getenv("AS_CONFIG_FILE"); p != "" {
		return p, true
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		return filepath.Join("environments", env+".yml"), false
	}
	return "", false
}
