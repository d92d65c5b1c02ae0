// reconcile.go — сервис фоновой сверки каталога и blob-хранилища.
//
// Сверка сравнивает handle'ы из каталога со списком blob'ов и находит:
//   - dangling_record: запись каталога без blob'а (только отчёт, не удаляется);
//   - orphan_blob: blob без записи каталога (удаляется, если разрешено).
//
// Blob младше AS_RECONCILE_ORPHAN_GRACE не считается сиротой: между Put
// и Insert загрузки blob ещё не имеет записи.
//
// Запускается как горутина с периодическим тикером (AS_RECONCILE_INTERVAL)
// или однократно командой `audio-store reconcile`.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goaudiostore/internal/storage/blob"
)

// Prometheus метрики сверки
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	})

	// reconcileIssuesTotal — обнаруженные расхождения по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "as_reconcile_issues_total",
		Help: "Количество расхождений, обнаруженных сверкой",
	}, []string{"type"})

	reconcileOrphansDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_reconcile_orphans_deleted_total",
		Help: "Количество blob'ов-сирот, удалённых сверкой",
	})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "as_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// HandleLister — перечисление handle'ов, на которые ссылается каталог.
type HandleLister interface {
	ListHandles(ctx context.Context) ([]string, error)
}

// ReconcileStore — blob-хранилище, поддерживающее перечисление.
type ReconcileStore interface {
	blob.Store
	blob.Lister
}

// ReconcileOptions — параметры сверки.
type ReconcileOptions struct {
	// Interval — период фонового запуска
	Interval time.Duration
	// OrphanGrace — минимальный возраст blob'а-сироты
	OrphanGrace time.Duration
	// DeleteOrphans — удалять найденных сирот (иначе только отчёт)
	DeleteOrphans bool
}

// ReconcileResult — результат одного запуска сверки.
type ReconcileResult struct {
	// DanglingRecords — handle'ы записей каталога без blob'а
	DanglingRecords []string
	// Orphans — handle'ы blob'ов без записи старше OrphanGrace
	Orphans []string
	// OrphansDeleted — сколько сирот удалено
	OrphansDeleted int
	// YoungOrphans — blob'ы без записи моложе OrphanGrace (пропущены)
	YoungOrphans int
	// Errors — ошибки удаления
	Errors   int
	Duration time.Duration
}

// ReconcileService — сервис сверки.
type ReconcileService struct {
	catalog HandleLister
	blobs   ReconcileStore
	opts    ReconcileOptions
	now     func() time.Time
	logger  *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	catalog HandleLister,
	blobs ReconcileStore,
	opts ReconcileOptions,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		catalog: catalog,
		blobs:   blobs,
		opts:    opts,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину сверки.
func (s *ReconcileService) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)

	s.logger.Info("Сверка запущена",
		slog.String("interval", s.opts.Interval.String()),
		slog.Bool("delete_orphans", s.opts.DeleteOrphans),
	)
}

// Stop останавливает фоновую сверку и дожидается завершения текущего прохода.
func (s *ReconcileService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Сверка остановлена")
}

func (s *ReconcileService) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один проход сверки.
// Ошибка возвращается, только если не удалось получить один из списков.
func (s *ReconcileService) RunOnce(ctx context.Context) (*ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &ReconcileResult{}

	// Список blob'ов берётся до списка каталога: blob, записанный
	// между двумя запросами, не попадёт в сироты.
	blobs, err := s.blobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка blob'ов: %w", err)
	}
	handles, err := s.catalog.ListHandles(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение handle'ов каталога: %w", err)
	}

	referenced := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		referenced[h] = struct{}{}
	}
	present := make(map[string]struct{}, len(blobs))
	for _, b := range blobs {
		present[b.Handle] = struct{}{}
	}

	// Фаза 1: записи без blob'ов
	for _, h := range handles {
		if _, ok := present[h]; ok {
			continue
		}
		result.DanglingRecords = append(result.DanglingRecords, h)
		reconcileIssuesTotal.WithLabelValues("dangling_record").Inc()
		s.logger.Error("Сверка: запись каталога без blob'а",
			slog.String("blob_handle", h),
		)
	}

	// Фаза 2: blob'ы без записей
	cutoff := s.now().Add(-s.opts.OrphanGrace)
	for _, b := range blobs {
		if _, ok := referenced[b.Handle]; ok {
			continue
		}
		if b.CreatedAt.After(cutoff) {
			result.YoungOrphans++
			continue
		}
		result.Orphans = append(result.Orphans, b.Handle)
		reconcileIssuesTotal.WithLabelValues("orphan_blob").Inc()

		if !s.opts.DeleteOrphans {
			s.logger.Warn("Сверка: blob без записи каталога",
				slog.String("blob_handle", b.Handle),
				slog.Int64("size", b.Size),
			)
			continue
		}
		if _, err := s.blobs.Delete(ctx, b.Handle); err != nil {
			result.Errors++
			s.logger.Error("Сверка: ошибка удаления blob'а-сироты",
				slog.String("blob_handle", b.Handle),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.OrphansDeleted++
		reconcileOrphansDeletedTotal.Inc()
		s.logger.Info("Сверка: удалён blob-сирота",
			slog.String("blob_handle", b.Handle),
			slog.Int64("size", b.Size),
		)
	}

	result.Duration = time.Since(start)
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Сверка завершена",
		slog.Int("records", len(handles)),
		slog.Int("blobs", len(blobs)),
		slog.Int("dangling", len(result.DanglingRecords)),
		slog.Int("orphans", len(result.Orphans)),
		slog.Int("orphans_deleted", result.OrphansDeleted),
		slog.Int("young_orphans", result.YoungOrphans),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}
