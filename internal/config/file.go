// file.go — чтение YAML-файла конфигурации.
// Вложенные ключи разворачиваются в плоские ("file_upload.max_file_size_mb"),
// затем сопоставляются с переменными окружения через yamlKeys.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlKeys — соответствие переменных окружения ключам YAML-файла.
var yamlKeys = map[string]string{
	"AS_PORT":             "server.port",
	"AS_LOG_LEVEL":        "server.log_level",
	"AS_LOG_FORMAT":       "server.log_format",
	"AS_SHUTDOWN_TIMEOUT": "server.shutdown_timeout",

	"AS_DB_HOST":     "database.host",
	"AS_DB_PORT":     "database.port",
	"AS_DB_NAME":     "database.name",
	"AS_DB_USER":     "database.user",
	"AS_DB_PASSWORD": "database.password",
	"AS_DB_SSL_MODE": "database.sslmode",

	"AS_BLOB_BACKEND":     "blob.backend",
	"AS_BLOB_DATA_DIR":    "blob.data_dir",
	"AS_MINIO_ENDPOINT":   "blob.minio.endpoint",
	"AS_MINIO_ACCESS_KEY": "blob.minio.access_key",
	"AS_MINIO_SECRET_KEY": "blob.minio.secret_key",
	"AS_MINIO_BUCKET":     "blob.minio.bucket",
	"AS_MINIO_USE_SSL":    "blob.minio.use_ssl",
	"AS_MONGO_URI":        "blob.mongodb.uri",
	"AS_MONGO_DATABASE":   "blob.mongodb.database",
	"AS_GRIDFS_BUCKET":    "blob.mongodb.bucket",

	"AS_MAX_FILE_SIZE_MB":         "file_upload.max_file_size_mb",
	"AS_SERIALIZE_FILE_MUTATIONS": "file_upload.serialize_mutations",

	"AS_JWT_SECRET":     "auth.jwt_secret",
	"AS_JWT_TTL":        "auth.jwt_ttl",
	"AS_JWT_ISSUER":     "auth.jwt_issuer",
	"AS_REDIS_ADDR":     "redis.addr",
	"AS_REDIS_PASSWORD": "redis.password",
	"AS_REDIS_DB":       "redis.db",
	"AS_ADMIN_USERNAME": "admin.username",
	"AS_ADMIN_PASSWORD": "admin.password",
	"AS_ADMIN_EMAIL":    "admin.email",

	"AS_KAFKA_BROKERS": "kafka.brokers",
	"AS_KAFKA_TOPIC":   "kafka.topic",

	"AS_RECONCILE_INTERVAL":       "reconcile.interval",
	"AS_RECONCILE_ORPHAN_GRACE":   "reconcile.orphan_grace",
	"AS_RECONCILE_DELETE_ORPHANS": "reconcile.delete_orphans",

	"AS_DEPHEALTH_GROUP":          "dephealth.group",
	"AS_DEPHEALTH_CHECK_INTERVAL": "dephealth.check_interval",
}

// loadFileValues читает YAML-файл конфигурации, если он задан.
// Отсутствие файла, выведенного из APP_ENV, не является ошибкой.
func loadFileValues() (map[string]string, error) {
	path, required := configFilePath()
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения файла конфигурации %s: %w", path, err)
	}

	return parseYAML(data)
}

// parseYAML разворачивает YAML-документ в плоскую карту ключ → строковое значение.
// Списки склеиваются через запятую (например, kafka.brokers).
func parseYAML(data []byte) (map[string]string, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("ошибка разбора YAML конфигурации: %w", err)
	}

	values := make(map[string]string)
	flatten("", root, values)
	return values, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
