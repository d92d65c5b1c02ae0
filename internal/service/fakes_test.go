package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/events"
	"github.com/bigkaa/goaudiostore/internal/repository"
	"github.com/bigkaa/goaudiostore/internal/storage/blob"
	"github.com/bigkaa/goaudiostore/internal/storage/blob/memblob"
)

var errInjected = errors.New("внедрённый сбой")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Каталог в памяти ---

type fakeCatalog struct {
	mu      sync.Mutex
	records map[int64]model.AudioFileRecord
	nextID  int64

	insertErr error
	updateErr error
	deleteErr error
	findErr   error
	// onUpdate вызывается перед UpdateContent (для гонок с Delete)
	onUpdate func()
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{records: make(map[int64]model.AudioFileRecord)}
}

func (c *fakeCatalog) Insert(ctx context.Context, rec *model.AudioFileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.insertErr != nil {
		return c.insertErr
	}
	for _, r := range c.records {
		if r.BlobHandle == rec.BlobHandle {
			return repository.ErrConflict
		}
	}
	c.nextID++
	now := time.Now().UTC()
	rec.ID = c.nextID
	rec.CreatedAt = now
	rec.UpdatedAt = now
	c.records[rec.ID] = *rec
	return nil
}

func (c *fakeCatalog) FindByID(_ context.Context, id int64) (*model.AudioFileRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.findErr != nil {
		return nil, c.findErr
	}
	r, ok := c.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (c *fakeCatalog) FindByOwner(_ context.Context, ownerID int64) ([]*model.AudioFileRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.findErr != nil {
		return nil, c.findErr
	}
	result := make([]*model.AudioFileRecord, 0)
	for _, r := range c.records {
		if r.OwnerID == ownerID {
			r := r
			result = append(result, &r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (c *fakeCatalog) UpdateContent(ctx context.Context, rec *model.AudioFileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.onUpdate != nil {
		c.onUpdate()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updateErr != nil {
		return c.updateErr
	}
	cur, ok := c.records[rec.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Filename = rec.Filename
	cur.OriginalFilename = rec.OriginalFilename
	cur.ContentType = rec.ContentType
	cur.FileSize = rec.FileSize
	cur.BlobHandle = rec.BlobHandle
	cur.UpdatedAt = time.Now().UTC()
	c.records[rec.ID] = cur
	*rec = cur
	return nil
}

func (c *fakeCatalog) Delete(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	if _, ok := c.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(c.records, id)
	return nil
}

func (c *fakeCatalog) CountByOwner(_ context.Context, ownerID int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.records {
		if r.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (c *fakeCatalog) ListHandles(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	handles := make([]string, 0, len(c.records))
	for _, r := range c.records {
		handles = append(handles, r.BlobHandle)
	}
	sort.Strings(handles)
	return handles, nil
}

func (c *fakeCatalog) get(id int64) (model.AudioFileRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[id]
	return r, ok
}

// --- blob-хранилище со сбоями ---

// faultyBlobs — memblob с управляемыми сбоями.
type faultyBlobs struct {
	*memblob.Store

	mu        sync.Mutex
	putErr    error
	getErr    error
	deleteErr error
	// deleteErrFor — сбой удаления только для указанного handle
	deleteErrFor map[string]error
}

func newFaultyBlobs() *faultyBlobs {
	return &faultyBlobs{Store: memblob.New(), deleteErrFor: make(map[string]error)}
}

func (b *faultyBlobs) Put(ctx context.Context, data []byte, nameHint, contentType string) (string, error) {
	b.mu.Lock()
	err := b.putErr
	b.mu.Unlock()
	if err != nil {
		return "", err
	}
	return b.Store.Put(ctx, data, nameHint, contentType)
}

func (b *faultyBlobs) Get(ctx context.Context, handle string) ([]byte, error) {
	b.mu.Lock()
	err := b.getErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.Store.Get(ctx, handle)
}

func (b *faultyBlobs) Delete(ctx context.Context, handle string) (bool, error) {
	b.mu.Lock()
	err := b.deleteErr
	if e, ok := b.deleteErrFor[handle]; ok {
		err = e
	}
	b.mu.Unlock()
	if err != nil {
		return false, err
	}
	return b.Store.Delete(ctx, handle)
}

func (b *faultyBlobs) has(handle string) bool {
	_, err := b.Store.Get(context.Background(), handle)
	return err == nil
}

var _ blob.Store = (*faultyBlobs)(nil)

// --- Публикация событий ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		types = append(types, ev.Type)
	}
	return types
}

// --- Репозиторий пользователей ---

type mockUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	nextID int64

	createFn func(u *model.User) error
	updateFn func(u *model.User) error
	locked   []int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[int64]*model.User)}
}

func (r *mockUserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createFn != nil {
		if err := r.createFn(u); err != nil {
			return err
		}
	}
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return repository.ErrUsernameTaken
		}
		if existing.Email == u.Email {
			return repository.ErrEmailTaken
		}
	}
	r.nextID++
	u.ID = r.nextID
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *mockUserRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *mockUserRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	r.locked = append(r.locked, id)
	r.mu.Unlock()
	return r.GetByID(ctx, id)
}

func (r *mockUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *mockUserRepo) List(_ context.Context) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *mockUserRepo) Update(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateFn != nil {
		if err := r.updateFn(u); err != nil {
			return err
		}
	}
	if _, ok := r.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range r.users {
		if existing.ID != u.ID && existing.Email == u.Email {
			return repository.ErrEmailTaken
		}
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *mockUserRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// fakeTxRunner выполняет fn без транзакции (tx == nil).
type fakeTxRunner struct {
	calls int
}

func (f *fakeTxRunner) RunInTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	f.calls++
	return fn(nil)
}

// plainHasher — хешер без bcrypt для быстрых тестов.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hash:" + password, nil }
func (plainHasher) Verify(hash, password string) bool   { return hash == "hash:"+password }

// countingHasher — plainHasher со счётчиком вызовов Verify.
type countingHasher struct {
	plainHasher
	verified []string
}

func (h *countingHasher) Verify(hash, password string) bool {
	h.verified = append(h.verified, hash)
	return h.plainHasher.Verify(hash, password)
}
