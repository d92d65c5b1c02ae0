package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	t.Setenv("AS_CONFIG_FILE", "")
	t.Setenv("APP_ENV", "")
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"AS_DB_HOST":     "localhost",
		"AS_DB_NAME":     "audio",
		"AS_DB_USER":     "audio",
		"AS_DB_PASSWORD": "secret",
		"AS_JWT_SECRET":  "0123456789abcdef0123456789abcdef",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.BlobBackend != BlobBackendFS {
		t.Errorf("BlobBackend = %q, ожидается fs", cfg.BlobBackend)
	}
	if cfg.BlobDataDir != "/data/audio" {
		t.Errorf("BlobDataDir = %q, ожидается /data/audio", cfg.BlobDataDir)
	}
	if cfg.MaxFileSizeMB != 50 {
		t.Errorf("MaxFileSizeMB = %d, ожидается 50", cfg.MaxFileSizeMB)
	}
	if cfg.MaxFileSizeBytes() != 50*1024*1024 {
		t.Errorf("MaxFileSizeBytes = %d, ожидается %d", cfg.MaxFileSizeBytes(), 50*1024*1024)
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Errorf("JWTTTL = %v, ожидается 24h", cfg.JWTTTL)
	}
	if cfg.ReconcileInterval != 0 {
		t.Errorf("ReconcileInterval = %v, ожидается 0 (выключена)", cfg.ReconcileInterval)
	}
	if cfg.ReconcileOrphanGrace != time.Hour {
		t.Errorf("ReconcileOrphanGrace = %v, ожидается 1h", cfg.ReconcileOrphanGrace)
	}
	if cfg.SerializeFileMutations {
		t.Error("SerializeFileMutations по умолчанию должен быть false")
	}
	if cfg.KafkaBrokers != nil {
		t.Errorf("KafkaBrokers = %v, ожидается nil", cfg.KafkaBrokers)
	}
	if cfg.AdminUsername != "Admin" {
		t.Errorf("AdminUsername = %q, ожидается Admin", cfg.AdminUsername)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	required := []string{"AS_DB_HOST", "AS_DB_NAME", "AS_DB_USER", "AS_DB_PASSWORD", "AS_JWT_SECRET"}

	for _, key := range required {
		t.Run(key, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, key)
			setEnvs(t, envs)
			t.Setenv(key, "")

			_, err := Load()
			if err == nil {
				t.Fatalf("ожидалась ошибка при отсутствии %s", key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("ошибка %q не упоминает %s", err, key)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"порт вне диапазона", "AS_PORT", "70000"},
		{"формат логов", "AS_LOG_FORMAT", "xml"},
		{"уровень логов", "AS_LOG_LEVEL", "trace"},
		{"ssl mode", "AS_DB_SSL_MODE", "maybe"},
		{"backend", "AS_BLOB_BACKEND", "ftp"},
		{"размер файла", "AS_MAX_FILE_SIZE_MB", "0"},
		{"короткий секрет", "AS_JWT_SECRET", "short"},
		{"длительность", "AS_RECONCILE_INTERVAL", "soon"},
		{"логическое значение", "AS_RECONCILE_DELETE_ORPHANS", "yes please"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, minimalEnvs())
			t.Setenv(tt.key, tt.val)

			if _, err := Load(); err == nil {
				t.Fatalf("ожидалась ошибка для %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_MinIORequiresCredentials(t *testing.T) {
	setEnvs(t, minimalEnvs())
	t.Setenv("AS_BLOB_BACKEND", "minio")

	if _, err := Load(); err == nil {
		t.Fatal("ожидалась ошибка: для minio не заданы endpoint и ключи")
	}

	t.Setenv("AS_MINIO_ENDPOINT", "minio:9000")
	t.Setenv("AS_MINIO_ACCESS_KEY", "ak")
	t.Setenv("AS_MINIO_SECRET_KEY", "sk")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.MinIOBucket != "audio-files" {
		t.Errorf("MinIOBucket = %q, ожидается audio-files", cfg.MinIOBucket)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "development.yml")
	content := `
database:
  host: db.local
  name: audio
  user: audio
  password: from-file
  port: 6432
file_upload:
  max_file_size_mb: 10
auth:
  jwt_secret: 0123456789abcdef0123456789abcdef
kafka:
  brokers:
    - k1:9092
    - k2:9092
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("ошибка записи файла: %v", err)
	}

	setEnvs(t, nil)
	for _, k := range []string{"AS_DB_HOST", "AS_DB_NAME", "AS_DB_USER", "AS_DB_PASSWORD", "AS_JWT_SECRET", "AS_DB_PORT", "AS_MAX_FILE_SIZE_MB", "AS_KAFKA_BROKERS"} {
		t.Setenv(k, "")
	}
	t.Setenv("AS_CONFIG_FILE", path)
	// Переменная окружения имеет приоритет над файлом
	t.Setenv("AS_DB_HOST", "db.env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.DBHost != "db.env" {
		t.Errorf("DBHost = %q, ожидается db.env", cfg.DBHost)
	}
	if cfg.DBPassword != "from-file" {
		t.Errorf("DBPassword = %q, ожидается from-file", cfg.DBPassword)
	}
	if cfg.DBPort != 6432 {
		t.Errorf("DBPort = %d, ожидается 6432", cfg.DBPort)
	}
	if cfg.MaxFileSizeMB != 10 {
		t.Errorf("MaxFileSizeMB = %d, ожидается 10", cfg.MaxFileSizeMB)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v, ожидается [k1:9092 k2:9092]", cfg.KafkaBrokers)
	}
}

func TestLoad_ExplicitConfigFileMissing(t *testing.T) {
	setEnvs(t, minimalEnvs())
	t.Setenv("AS_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yml"))

	if _, err := Load(); err == nil {
		t.Fatal("ожидалась ошибка для отсутствующего AS_CONFIG_FILE")
	}
}

func TestLoad_AppEnvFileOptional(t *testing.T) {
	setEnvs(t, minimalEnvs())
	t.Setenv("APP_ENV", "nonexistent-env-for-test")

	if _, err := Load(); err != nil {
		t.Fatalf("отсутствие environments/<APP_ENV>.yml не должно быть ошибкой: %v", err)
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" a, ,b ,c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("parseCSV = %v, ожидается [a b c]", got)
	}
	if parseCSV("") != nil {
		t.Error("parseCSV(\"\") должен вернуть nil")
	}
}
