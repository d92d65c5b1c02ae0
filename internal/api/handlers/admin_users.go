// admin_users.go — обработчики /api/v1/admin/users endpoints.
// Доступ только для роли ADMIN (проверяется middleware.RequireRole).
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/goaudiostore/internal/api/errors"
	"github.com/bigkaa/goaudiostore/internal/api/middleware"
	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/service"
)

const userNotFoundMsg = "User not found"

// userListResponse — ответ GET /api/v1/admin/users.
type userListResponse struct {
	Items []*model.User `json:"items"`
	Total int           `json:"total"`
}

// ListUsers — GET /api/v1/admin/users.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err, userNotFoundMsg)
		return
	}
	writeJSON(w, http.StatusOK, userListResponse{Items: users, Total: len(users)})
}

// CreateUser — POST /api/v1/admin/users.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req service.UserCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	user, err := h.users.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, userNotFoundMsg)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// GetUser — GET /api/v1/admin/users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		apierrors.NotFound(w, userNotFoundMsg)
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, userNotFoundMsg)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateUser — PATCH /api/v1/admin/users/{id}. Отсутствующие поля не меняются.
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		apierrors.NotFound(w, userNotFoundMsg)
		return
	}

	var req service.UserUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	user, err := h.users.Update(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, err, userNotFoundMsg)
		return
	}
	h.auth.Forget(id)
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser — DELETE /api/v1/admin/users/{id}. Удалить себя нельзя.
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		apierrors.NotFound(w, userNotFoundMsg)
		return
	}
	acting := middleware.UserFromContext(r.Context())

	if err := h.users.Delete(r.Context(), id, acting.ID); err != nil {
		h.writeServiceError(w, err, userNotFoundMsg)
		return
	}
	h.auth.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}
