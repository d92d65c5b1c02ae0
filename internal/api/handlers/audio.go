// audio.go — обработчики /api/v1/audio/files endpoints.
// Загрузка, список, воспроизведение, скачивание, замена и удаление файлов
// текущего пользователя.
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	apierrors "github.com/bigkaa/goaudiostore/internal/api/errors"
	"github.com/bigkaa/goaudiostore/internal/api/middleware"
	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/service"
)

const (
	// uploadFormField — имя поля multipart с файлом.
	uploadFormField = "file"
	// multipartOverhead — запас на границы и заголовки multipart сверх размера файла.
	multipartOverhead = 1 << 20
	// multipartMemory — часть формы, удерживаемая в памяти при разборе.
	multipartMemory = 32 << 20
)

const fileNotFoundMsg = "File not found"

// fileListResponse — ответ GET /api/v1/audio/files.
type fileListResponse struct {
	Files []*model.AudioFileRecord `json:"files"`
	Total int                      `json:"total"`
}

// ListFiles — GET /api/v1/audio/files.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	records, err := h.files.List(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, err, fileNotFoundMsg)
		return
	}
	writeJSON(w, http.StatusOK, fileListResponse{Files: records, Total: len(records)})
}

// UploadFile — POST /api/v1/audio/files (multipart, поле "file").
// Ответ — service.Result; статус соответствует результату.
func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	in, err := h.readUpload(w, r)
	var rec *model.AudioFileRecord
	if err == nil {
		rec, err = h.files.Upload(r.Context(), user.ID, in)
	}
	h.writeResult(w, service.OpUpload, rec, err, http.StatusCreated)
}

// PlayFile — GET /api/v1/audio/files/{id}/play. Отдаёт файл для
// воспроизведения в браузере; поддерживает Range-запросы.
func (h *APIHandler) PlayFile(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "inline")
}

// DownloadFile — GET /api/v1/audio/files/{id}/download.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "attachment")
}

func (h *APIHandler) serveFile(w http.ResponseWriter, r *http.Request, disposition string) {
	user := middleware.UserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		apierrors.NotFound(w, fileNotFoundMsg)
		return
	}

	rec, data, err := h.files.Fetch(r.Context(), id, user.ID)
	if err != nil {
		h.writeServiceError(w, err, fileNotFoundMsg)
		return
	}

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType(disposition, map[string]string{"filename": rec.OriginalFilename}))
	http.ServeContent(w, r, rec.OriginalFilename, rec.UpdatedAt, bytes.NewReader(data))
}

// ReplaceFile — PUT /api/v1/audio/files/{id} (multipart, поле "file").
func (h *APIHandler) ReplaceFile(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		h.writeResult(w, service.OpReplace, nil, service.ErrNotFound, http.StatusOK)
		return
	}

	in, err := h.readUpload(w, r)
	var rec *model.AudioFileRecord
	if err == nil {
		rec, err = h.files.Replace(r.Context(), id, user.ID, in)
	}
	h.writeResult(w, service.OpReplace, rec, err, http.StatusOK)
}

// DeleteFile — DELETE /api/v1/audio/files/{id}.
func (h *APIHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		h.writeResult(w, service.OpDelete, nil, service.ErrNotFound, http.StatusOK)
		return
	}

	err := h.files.Delete(r.Context(), id, user.ID)
	h.writeResult(w, service.OpDelete, nil, err, http.StatusOK)
}

// readUpload разбирает multipart-форму. Отсутствие поля "file" не ошибка
// разбора: пустой UploadInput отвергается валидацией как «файл не передан».
func (h *APIHandler) readUpload(w http.ResponseWriter, r *http.Request) (service.UploadInput, error) {
	limit := h.files.Policy().MaxFileSizeBytes + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return service.UploadInput{}, service.ErrTooLarge
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return service.UploadInput{}, nil
		}
		return service.UploadInput{}, fmt.Errorf("%w: некорректная multipart-форма: %v", service.ErrValidation, err)
	}

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return service.UploadInput{}, nil
		}
		return service.UploadInput{}, fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.UploadInput{}, err
	}
	return service.UploadInput{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}

// writeResult отвечает service.Result; статус ошибки — по statusFor.
func (h *APIHandler) writeResult(
	w http.ResponseWriter,
	op service.Operation,
	rec *model.AudioFileRecord,
	err error,
	successStatus int,
) {
	res := service.ResultOf(op, rec, err, h.files.Policy())
	status := successStatus
	if err != nil {
		status = statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Ошибка операции с файлом",
				"operation", string(op),
				"error", err.Error(),
			)
		}
	}
	writeJSON(w, status, res)
}
