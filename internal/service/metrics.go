// metrics.go — бизнес-метрики сервисного слоя.
package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal — операции с аудиофайлами по результату.
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "as_audio_operations_total",
			Help: "Общее количество операций с аудиофайлами",
		},
		[]string{"operation", "result"},
	)

	// bytesStoredTotal — объём байтов, записанных в blob-хранилище.
	bytesStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_audio_bytes_stored_total",
		Help: "Объём данных, записанных в blob-хранилище, в байтах",
	})

	// cleanupFailuresTotal — неудачные best-effort удаления blob'ов.
	cleanupFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "as_cleanup_failures_total",
			Help: "Количество неудачных компенсирующих удалений blob'ов",
		},
		[]string{"stage"},
	)

	// consistencyViolationsTotal — обнаруженные висячие записи при чтении.
	consistencyViolationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_consistency_violations_total",
		Help: "Количество записей каталога без blob'а, обнаруженных при чтении",
	})

	// loginsTotal — попытки входа.
	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "as_auth_logins_total",
			Help: "Количество попыток входа",
		},
		[]string{"result"},
	)
)

// resultLabel возвращает метку результата операции для метрик.
func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAuthorization):
		return "not_found"
	case errors.Is(err, ErrConsistency):
		return "inconsistent"
	default:
		return "error"
	}
}
