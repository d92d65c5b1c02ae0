// handler.go — основной обработчик API Audio Store.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goaudiostore/internal/api/errors"
	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/service"
)

// AudioFiles — операции с аудиофайлами (service.AudioFileManager).
type AudioFiles interface {
	Upload(ctx context.Context, ownerID int64, in service.UploadInput) (*model.AudioFileRecord, error)
	List(ctx context.Context, ownerID int64) ([]*model.AudioFileRecord, error)
	Fetch(ctx context.Context, fileID, ownerID int64) (*model.AudioFileRecord, []byte, error)
	Replace(ctx context.Context, fileID, ownerID int64, in service.UploadInput) (*model.AudioFileRecord, error)
	Delete(ctx context.Context, fileID, ownerID int64) error
	Policy() service.UploadPolicy
}

// Users — управление пользователями (service.UserService).
type Users interface {
	List(ctx context.Context) ([]*model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)
	Create(ctx context.Context, req service.UserCreateRequest) (*model.User, error)
	Update(ctx context.Context, id int64, req service.UserUpdateRequest) (*model.User, error)
	Delete(ctx context.Context, id, actingUserID int64) error
}

// Auth — регистрация и сессии (service.AuthService).
type Auth interface {
	Signup(ctx context.Context, req service.SignupRequest) (*model.User, error)
	Login(ctx context.Context, username, password string) (*service.Session, error)
	Logout(ctx context.Context, token string) error
	Forget(userID int64)
}

// APIHandler — основной обработчик API.
type APIHandler struct {
	health *HealthHandler
	files  AudioFiles
	users  Users
	auth   Auth
	// secureCookie — выставлять Secure у cookie сессии
	secureCookie bool
	logger       *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	files AudioFiles,
	users Users,
	auth Auth,
	secureCookie bool,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:       health,
		files:        files,
		users:        users,
		auth:         auth,
		secureCookie: secureCookie,
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса; неизвестные поля отвергаются.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// pathID извлекает числовой параметр пути.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// statusFor возвращает HTTP-статус для ошибки сервисного слоя.
// Чужой файл сообщается как «не найден», чтобы не раскрывать его существование.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrAccessDenied):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError записывает ошибку сервисного слоя в стандартном формате.
// Внутренние детали (ошибки хранилищ) клиенту не передаются.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, notFoundMsg string) {
	status := statusFor(err)
	switch status {
	case http.StatusRequestEntityTooLarge:
		apierrors.FileTooLarge(w, service.UserMessage(err, h.files.Policy()))
	case http.StatusBadRequest:
		apierrors.ValidationError(w, err.Error())
	case http.StatusNotFound:
		apierrors.NotFound(w, notFoundMsg)
	case http.StatusUnauthorized:
		apierrors.Unauthorized(w, err.Error())
	case http.StatusForbidden:
		apierrors.Forbidden(w, err.Error())
	case http.StatusConflict:
		apierrors.Conflict(w, conflictMessage(err))
	case http.StatusBadGateway:
		h.logger.Error("Ошибка хранилища", slog.String("error", err.Error()))
		apierrors.StorageUnavailable(w, "Хранилище временно недоступно")
	default:
		if errors.Is(err, service.ErrDataMissing) {
			apierrors.DataMissing(w, "Данные файла отсутствуют в хранилище")
			return
		}
		h.logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		return "Username already exists"
	case errors.Is(err, service.ErrEmailTaken):
		return "Email already exists"
	default:
		return "Resource already exists"
	}
}
