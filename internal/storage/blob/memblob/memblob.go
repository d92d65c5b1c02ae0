// Пакет memblob — blob-хранилище в памяти процесса.
// Используется в тестах и для локального запуска (AS_BLOB_BACKEND=memory);
// содержимое теряется при перезапуске.
package memblob

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/goaudiostore/internal/storage/blob"
)

type entry struct {
	data      []byte
	createdAt time.Time
}

// Store — потокобезопасное хранилище в памяти.
type Store struct {
	mu    sync.RWMutex
	blobs map[string]entry
	now   func() time.Time
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{blobs: make(map[string]entry), now: time.Now}
}

// Put копирует data и сохраняет под новым handle.
func (s *Store) Put(_ context.Context, data []byte, _, _ string) (string, error) {
	handle := blob.NewHandle()
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.blobs[handle] = entry{data: cp, createdAt: s.now()}
	s.mu.Unlock()
	return handle, nil
}

// Get возвращает копию байтов.
func (s *Store) Get(_ context.Context, handle string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.blobs[handle]
	s.mu.RUnlock()
	if !ok {
		return nil, blob.ErrNotFound
	}
	cp := make([]byte, len(e.data))
	copy(cp, e.data)
	return cp, nil
}

// Delete удаляет blob; removed=false, если его не было.
func (s *Store) Delete(_ context.Context, handle string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[handle]; !ok {
		return false, nil
	}
	delete(s.blobs, handle)
	return true, nil
}

// List возвращает сведения о всех blob'ах, упорядоченные по handle.
func (s *Store) List(_ context.Context) ([]blob.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]blob.Info, 0, len(s.blobs))
	for h, e := range s.blobs {
		infos = append(infos, blob.Info{Handle: h, Size: int64(len(e.data)), CreatedAt: e.createdAt})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Handle < infos[j].Handle })
	return infos, nil
}

// Len — количество хранимых blob'ов.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// SetClock подменяет источник времени (для тестов сверки).
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// CheckReady всегда возвращает ok: хранилище в памяти процесса.
func (s *Store) CheckReady() (status string, message string) {
	return "ok", "хранилище в памяти"
}
