package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goaudiostore/internal/api/middleware"
	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- AudioFiles ---

type mockFiles struct {
	policy    service.UploadPolicy
	uploadFn  func(ctx context.Context, ownerID int64, in service.UploadInput) (*model.AudioFileRecord, error)
	listFn    func(ctx context.Context, ownerID int64) ([]*model.AudioFileRecord, error)
	fetchFn   func(ctx context.Context, fileID, ownerID int64) (*model.AudioFileRecord, []byte, error)
	replaceFn func(ctx context.Context, fileID, ownerID int64, in service.UploadInput) (*model.AudioFileRecord, error)
	deleteFn  func(ctx context.Context, fileID, ownerID int64) error
}

func newMockFiles(maxBytes int64) *mockFiles {
	return &mockFiles{policy: service.NewUploadPolicy(maxBytes)}
}

func (m *mockFiles) Upload(ctx context.Context, ownerID int64, in service.UploadInput) (*model.AudioFileRecord, error) {
	return m.uploadFn(ctx, ownerID, in)
}

func (m *mockFiles) List(ctx context.Context, ownerID int64) ([]*model.AudioFileRecord, error) {
	return m.listFn(ctx, ownerID)
}

func (m *mockFiles) Fetch(ctx context.Context, fileID, ownerID int64) (*model.AudioFileRecord, []byte, error) {
	return m.fetchFn(ctx, fileID, ownerID)
}

func (m *mockFiles) Replace(ctx context.Context, fileID, ownerID int64, in service.UploadInput) (*model.AudioFileRecord, error) {
	return m.replaceFn(ctx, fileID, ownerID, in)
}

func (m *mockFiles) Delete(ctx context.Context, fileID, ownerID int64) error {
	return m.deleteFn(ctx, fileID, ownerID)
}

func (m *mockFiles) Policy() service.UploadPolicy { return m.policy }

// --- Users ---

type mockUsers struct {
	listFn   func(ctx context.Context) ([]*model.User, error)
	getFn    func(ctx context.Context, id int64) (*model.User, error)
	createFn func(ctx context.Context, req service.UserCreateRequest) (*model.User, error)
	updateFn func(ctx context.Context, id int64, req service.UserUpdateRequest) (*model.User, error)
	deleteFn func(ctx context.Context, id, actingUserID int64) error
}

func (m *mockUsers) List(ctx context.Context) ([]*model.User, error) { return m.listFn(ctx) }

func (m *mockUsers) Get(ctx context.Context, id int64) (*model.User, error) { return m.getFn(ctx, id) }

func (m *mockUsers) Create(ctx context.Context, req service.UserCreateRequest) (*model.User, error) {
	return m.createFn(ctx, req)
}

func (m *mockUsers) Update(ctx context.Context, id int64, req service.UserUpdateRequest) (*model.User, error) {
	return m.updateFn(ctx, id, req)
}

func (m *mockUsers) Delete(ctx context.Context, id, actingUserID int64) error {
	return m.deleteFn(ctx, id, actingUserID)
}

// --- Auth ---

type mockAuth struct {
	signupFn  func(ctx context.Context, req service.SignupRequest) (*model.User, error)
	loginFn   func(ctx context.Context, username, password string) (*service.Session, error)
	logoutFn  func(ctx context.Context, token string) error
	forgotten []int64
}

func (m *mockAuth) Signup(ctx context.Context, req service.SignupRequest) (*model.User, error) {
	return m.signupFn(ctx, req)
}

func (m *mockAuth) Login(ctx context.Context, username, password string) (*service.Session, error) {
	return m.loginFn(ctx, username, password)
}

func (m *mockAuth) Logout(ctx context.Context, token string) error { return m.logoutFn(ctx, token) }

func (m *mockAuth) Forget(userID int64) { m.forgotten = append(m.forgotten, userID) }

// --- Readiness ---

type staticChecker struct {
	status, message string
}

func (c staticChecker) CheckReady() (string, string) { return c.status, c.message }

// --- Вспомогательные функции ---

var (
	testUser  = &model.User{ID: 7, Username: "alice", Email: "alice@example.com", Role: model.RoleUser}
	testAdmin = &model.User{ID: 1, Username: "Admin", Email: "admin@example.com", Role: model.RoleAdmin}
)

func newTestHandler(files AudioFiles, users Users, auth Auth) *APIHandler {
	if files == nil {
		files = newMockFiles(10 << 20)
	}
	health := NewHealthHandler(staticChecker{"ok", ""}, staticChecker{"ok", ""}, "memory")
	return NewAPIHandler(health, files, users, auth, false, testLogger())
}

// route оборачивает обработчик в chi-маршрут (для URL-параметров)
// и помещает пользователя в контекст, как это делает JWTAuth.
func route(method, pattern string, h http.HandlerFunc, u *model.User) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if u != nil {
				req = req.WithContext(middleware.WithUser(req.Context(), u))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Method(method, pattern, h)
	return r
}

// multipartFile строит multipart-тело с одним файлом в поле field.
func multipartFile(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("запись части: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("закрытие multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeResult(t *testing.T, body io.Reader) service.Result {
	t.Helper()
	var res service.Result
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		t.Fatalf("декодирование Result: %v", err)
	}
	return res
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, body io.Reader) errorResponse {
	t.Helper()
	var res errorResponse
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		t.Fatalf("декодирование ошибки: %v", err)
	}
	return res
}
