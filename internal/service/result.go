// result.go — единый ответ операций изменения аудиофайлов.
package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// Operation — операция изменения файла.
type Operation string

const (
	OpUpload  Operation = "upload"
	OpReplace Operation = "replace"
	OpDelete  Operation = "delete"
)

// Result — итог операции для клиента: признак успеха, сообщение
// для пользователя и запись (при успешных Upload/Replace).
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Record  *model.AudioFileRecord `json:"file,omitempty"`
}

// GenericErrorMessage — сообщение для непредвиденных ошибок.
// Детали сбоя пользователю не показываются.
const GenericErrorMessage = "An error occurred while processing the file. Please try again."

var successMessages = map[Operation]string{
	OpUpload:  "File uploaded successfully",
	OpReplace: "File updated successfully",
	OpDelete:  "File deleted successfully",
}

// ResultOf строит Result по итогу операции.
func ResultOf(op Operation, rec *model.AudioFileRecord, err error, policy UploadPolicy) Result {
	if err != nil {
		return Result{Success: false, Message: UserMessage(err, policy)}
	}
	return Result{Success: true, Message: successMessages[op], Record: rec}
}

// UserMessage — безопасное для показа пользователю описание ошибки.
func UserMessage(err error, policy UploadPolicy) string {
	switch {
	case errors.Is(err, ErrEmptyInput):
		return "No file provided"
	case errors.Is(err, ErrUnsupportedType):
		return "Invalid file type. Allowed types: " + strings.Join(policy.AllowedExtensions, ", ")
	case errors.Is(err, ErrFilenameTooLong):
		return fmt.Sprintf("Filename too long. Maximum length: %d characters", policy.MaxFilenameLen)
	case errors.Is(err, ErrContentTypeTooLong):
		return "Invalid content type"
	case errors.Is(err, ErrTooLarge):
		return fmt.Sprintf("File too large. Maximum size: %d MB", policy.MaxFileSizeBytes/(1024*1024))
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAccessDenied):
		return "File not found"
	case errors.Is(err, ErrDataMissing):
		return "File data is missing from storage"
	default:
		return GenericErrorMessage
	}
}
