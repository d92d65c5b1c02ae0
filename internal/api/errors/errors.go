// Пакет errors — ошибки JSON API Audio Store: аутентификация,
// администрирование пользователей, воспроизведение и скачивание файлов.
// Тело: {"error": {"code": "...", "message": "..."}}.
//
// Upload, Replace и Delete отвечают service.Result ({"success": false, ...}).
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды для поля error.code.
const (
	CodeValidationError = "VALIDATION_ERROR"
	// CodeNotFound — нет файла, пользователя, либо файл принадлежит другому
	// владельцу (чужие файлы не отличаются от отсутствующих).
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	// CodeConflict — занят username или email.
	CodeConflict     = "CONFLICT"
	CodeFileTooLarge = "FILE_TOO_LARGE"
	// CodeDataMissing — запись в каталоге есть, blob отсутствует.
	CodeDataMissing = "DATA_MISSING"
	// CodeStorageUnavailable — сбой blob-хранилища или каталога PostgreSQL.
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	// CodeServiceUnavailable — недоступна зависимость проверки сессий
	// (список отозванных токенов в Redis).
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError пишет ответ с заданным статусом. message уходит клиенту
// как есть: причины сбоев хранилища в него не подставляются.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400: неверный JSON, id не число, слабый пароль и т. п.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401: нет токена, он просрочен или отозван, неверный пароль.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403: маршрут /admin для роли USER.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// FileTooLarge — 413: файл больше лимита загрузки.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// DataMissing — 500 при воспроизведении или скачивании файла без данных.
func DataMissing(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeDataMissing, message)
}

// StorageUnavailable — 502.
func StorageUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeStorageUnavailable, message)
}

// ServiceUnavailable — 503: токен нельзя проверить прямо сейчас.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

// InternalError — 500.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
