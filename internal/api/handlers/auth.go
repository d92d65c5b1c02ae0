// auth.go — обработчики /api/v1/auth endpoints: регистрация, вход, выход.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/bigkaa/goaudiostore/internal/api/errors"
	"github.com/bigkaa/goaudiostore/internal/api/middleware"
	"github.com/bigkaa/goaudiostore/internal/service"
)

// loginRequest — тело POST /api/v1/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup — POST /api/v1/auth/signup. Создаёт пользователя с ролью USER.
func (h *APIHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	user, err := h.auth.Signup(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, "User not found")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login — POST /api/v1/auth/login. Возвращает токен и ставит cookie сессии.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}
	if req.Username == "" || req.Password == "" {
		apierrors.ValidationError(w, "Требуются username и password")
		return
	}

	sess, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err, "User not found")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, sess)
}

// Logout — POST /api/v1/auth/logout. Отзывает текущий токен.
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), middleware.TokenFromContext(r.Context())); err != nil {
		h.writeServiceError(w, err, "User not found")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me — GET /api/v1/auth/me. Текущий пользователь.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, middleware.UserFromContext(r.Context()))
}
