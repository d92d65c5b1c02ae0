package gridfsblob

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/bigkaa/goaudiostore/internal/storage/blob"
)

func TestParseHandle(t *testing.T) {
	h := blob.NewHandle()
	id, err := parseHandle(h)
	if err != nil {
		t.Fatalf("parseHandle(%q) ошибка: %v", h, err)
	}
	if id.Hex() != h {
		t.Errorf("id.Hex() = %q, ожидается %q", id.Hex(), h)
	}

	for _, bad := range []string{"", "not-a-handle", "65F1A2B3C4D5E6F708192A3B"} {
		if _, err := parseHandle(bad); err == nil {
			t.Errorf("parseHandle(%q) должен вернуть ошибку", bad)
		}
	}
}

// setupGridFS запускает MongoDB в контейнере.
func setupGridFS(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("Не удалось запустить MongoDB контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить адрес MongoDB: %v", err)
	}

	s, err := New(ctx, Options{URI: uri, Database: "audio_test", Bucket: "fs"}, slog.Default())
	if err != nil {
		t.Fatalf("Ошибка создания Store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(ctx) })
	return s
}

func TestStore_Integration(t *testing.T) {
	s := setupGridFS(t)
	ctx := context.Background()

	if status, msg := s.CheckReady(); status != "ok" {
		t.Fatalf("CheckReady() = %s (%s)", status, msg)
	}

	content := bytes.Repeat([]byte("OggS"), 100000) // больше одного чанка GridFS
	h, err := s.Put(ctx, content, "long.ogg", "audio/ogg")
	if err != nil {
		t.Fatalf("Put ошибка: %v", err)
	}
	if !blob.ValidHandle(h) {
		t.Fatalf("Put вернул некорректный handle %q", h)
	}

	got, err := s.Get(ctx, h)
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("прочитанные байты не совпадают с записанными")
	}

	infos, err := s.List(ctx)
	if err != nil || len(infos) != 1 || infos[0].Size != int64(len(content)) {
		t.Errorf("List = %v, %v", infos, err)
	}

	removed, err := s.Delete(ctx, h)
	if err != nil || !removed {
		t.Fatalf("Delete = %v, %v; ожидается true, nil", removed, err)
	}
	removed, err = s.Delete(ctx, h)
	if err != nil || removed {
		t.Errorf("повторный Delete = %v, %v; ожидается false, nil", removed, err)
	}
	if _, err := s.Get(ctx, h); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("Get после Delete: ошибка %v, ожидается ErrNotFound", err)
	}
}
