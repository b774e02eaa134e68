package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/db"
	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/optimistic"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/remote/sqlstore"
	"github.com/vbonduro/homeinv/internal/repository"
	"github.com/vbonduro/homeinv/internal/service"
)

type testEnv struct {
	svc   *service.InventoryService
	store *sqlstore.Store
	user  domain.User
	ctx   context.Context
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	store := sqlstore.New(d, discard())
	user := domain.User{ID: "user-1", Email: "sam@example.com", PasswordHash: "x", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Insert(context.Background(), remote.TableUsers, user))
	return testEnv{
		svc:   service.New(repository.New(store), nil, nil, discard()),
		store: store,
		user:  user,
		ctx:   auth.WithUser(context.Background(), user),
	}
}

func (e testEnv) open(t *testing.T, backend Backend) *Session {
	t.Helper()
	s, err := Open(e.ctx, backend, e.store, e.user, discard(), Options{UndoDepth: 20, RefreshOnSuccess: true})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func (e testEnv) item(t *testing.T, item domain.Item) domain.Item {
	t.Helper()
	view, err := e.svc.CreateItem(e.ctx, service.NewItem{Item: item})
	require.NoError(t, err)
	return view.Item
}

// gatedBackend holds item updates until released and can fail them.
type gatedBackend struct {
	Backend
	gate chan struct{}

	mu  sync.Mutex
	err error
}

func (b *gatedBackend) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *gatedBackend) UpdateFields(ctx context.Context, t domain.EntityType, id string, values remote.Record) (domain.Snapshot, error) {
	if b.gate != nil {
		<-b.gate
	}
	b.mu.Lock()
	err := b.err
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.Backend.UpdateFields(ctx, t, id, values)
}

func TestFailedQuantityChangeRollsBack(t *testing.T) {
	env := newTestEnv(t)
	threshold := 8
	created := env.item(t, domain.Item{Name: "Coffee", Quantity: 4, MinThreshold: &threshold})
	require.Equal(t, domain.StatusLowStock, created.Status)

	backend := &gatedBackend{Backend: env.svc, gate: make(chan struct{})}
	backend.fail(errors.New("network down"))
	s := env.open(t, backend)
	before, ok := s.Item(created.ID)
	require.True(t, ok)

	item, pending, err := s.AdjustQuantity(context.Background(), created.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)
	assert.Equal(t, domain.StatusLowStock, item.Status)

	visible, _ := s.Item(created.ID)
	assert.Equal(t, 3, visible.Quantity, "optimistic value is visible before the write settles")

	close(backend.gate)
	require.Error(t, pending.Wait(context.Background()))

	after, _ := s.Item(created.ID)
	assert.Equal(t, before, after)
	assert.Equal(t, 4, after.Quantity)
	assert.Equal(t, domain.StatusLowStock, after.Status)
	assert.False(t, s.State().CanUndo)

	stored, err := env.svc.GetItem(env.ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Quantity)
}

func TestQuantityChangeIsStored(t *testing.T) {
	env := newTestEnv(t)
	created := env.item(t, domain.Item{Name: "Rice", Quantity: 1})
	s := env.open(t, env.svc)

	_, pending, err := s.AdjustQuantity(context.Background(), created.ID, 2)
	require.NoError(t, err)
	require.NoError(t, pending.Wait(context.Background()))

	stored, err := env.svc.GetItem(env.ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Quantity)
	cached, _ := s.Item(created.ID)
	assert.Equal(t, stored.UpdatedAt, cached.UpdatedAt, "cache holds the server's copy")

	rows, err := env.svc.History(env.ctx, domain.EntityItem, created.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	var update *domain.ChangeHistory
	for i := range rows {
		if rows[i].Action == domain.ActionUpdate {
			update = &rows[i]
		}
	}
	require.NotNil(t, update)
	assert.Equal(t, "quantity", *update.FieldName)
	assert.Equal(t, "user-1", *update.ChangedBy)
}

func TestUndoRedoFavorite(t *testing.T) {
	env := newTestEnv(t)
	created := env.item(t, domain.Item{Name: "Tea", Quantity: 2})
	s := env.open(t, env.svc)
	ctx := context.Background()

	_, pending, err := s.ToggleFavorite(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, pending.Wait(ctx))
	require.True(t, s.State().ToastVisible)

	action, ok, err := s.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Toggle favorite", action.Label)
	assert.Equal(t, created.ID, action.EntityID)
	assert.Equal(t, 1, s.State().RedoDepth)
	assert.Equal(t, 0, s.State().UndoDepth)

	item, _ := s.Item(created.ID)
	assert.False(t, item.IsFavorite)
	stored, err := env.svc.GetItem(env.ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsFavorite)

	_, ok, err = s.Redo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	item, _ = s.Item(created.ID)
	assert.True(t, item.IsFavorite)
	stored, err = env.svc.GetItem(env.ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsFavorite)

	_, ok, err = s.Redo(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "redo on an empty stack is a no-op")
}

func TestCreateUndoArchives(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, env.svc)
	ctx := context.Background()

	snap, pending, err := s.Create(ctx, domain.ItemSnapshot{Item: domain.Item{Name: "Soap", Quantity: 0}})
	require.NoError(t, err)
	id := snap.EntityID()
	assert.NotEmpty(t, id)
	assert.Equal(t, domain.StatusOutOfStock, snap.(domain.ItemSnapshot).Item.Status)
	require.NoError(t, pending.Wait(ctx))

	_, ok, err := s.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	_, cached := s.Item(id)
	assert.False(t, cached)
	stored, err := env.svc.GetItem(env.ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.IsArchived)

	_, ok, err = s.Redo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	stored, err = env.svc.GetItem(env.ctx, id)
	require.NoError(t, err)
	assert.False(t, stored.IsArchived)
	_, cached = s.Item(id)
	assert.True(t, cached)
}

func TestRemoveTagUndoReinserts(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Create(env.ctx, domain.TagSnapshot{Tag: domain.Tag{ID: "tag-1", Name: "bulk", Color: "#abc"}})
	require.NoError(t, err)
	s := env.open(t, env.svc)
	ctx := context.Background()

	pending, err := s.Remove(ctx, domain.EntityTag, "tag-1")
	require.NoError(t, err)
	assert.Empty(t, s.Tags())
	require.NoError(t, pending.Wait(ctx))

	_, ok, err := s.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, s.Tags(), 1)
	assert.Equal(t, "#abc", s.Tags()[0].Color)

	exists, err := env.svc.Exists(env.ctx, domain.EntityTag, "tag-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpdateCategory(t *testing.T) {
	env := newTestEnv(t)
	cat, err := env.svc.Create(env.ctx, domain.CategorySnapshot{Category: domain.Category{Name: "Food"}})
	require.NoError(t, err)
	s := env.open(t, env.svc)
	ctx := context.Background()

	next, pending, err := s.Update(ctx, domain.EntityCategory, cat.EntityID(), remote.Record{"name": "Groceries"})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", next.(domain.CategorySnapshot).Category.Name)
	require.NoError(t, pending.Wait(ctx))

	roots, err := s.CategoryTree()
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "Groceries", roots[0].Name)

	_, _, err = s.Update(ctx, domain.EntityCategory, cat.EntityID(), remote.Record{"created_by": "x"})
	assert.Error(t, err)
	_, _, err = s.Update(ctx, domain.EntityCategory, "missing", remote.Record{"name": "x"})
	var nf *optimistic.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestRemoteChangesRefreshCache(t *testing.T) {
	env := newTestEnv(t)
	created := env.item(t, domain.Item{Name: "Milk", Quantity: 1})
	s := env.open(t, env.svc)

	_, err := env.svc.UpdateItem(env.ctx, created.ID, remote.Record{"quantity": 5})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		item, ok := s.Item(created.ID)
		return ok && item.Quantity == 5
	}, 2*time.Second, 10*time.Millisecond)

	_, err = env.svc.Create(env.ctx, domain.LocationSnapshot{Location: domain.Location{Name: "Cellar"}})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return len(s.LocationOptions()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClosedSessionRejectsWrites(t *testing.T) {
	env := newTestEnv(t)
	created := env.item(t, domain.Item{Name: "Salt", Quantity: 1})
	s, err := Open(env.ctx, env.svc, env.store, env.user, discard(), Options{})
	require.NoError(t, err)
	s.Close()

	_, _, err = s.AdjustQuantity(context.Background(), created.ID, 1)
	assert.ErrorIs(t, err, optimistic.ErrClosed)
}

func TestRegistryEvictsLeastRecent(t *testing.T) {
	env := newTestEnv(t)
	opened := 0
	reg, err := NewRegistry(1, func(ctx context.Context, user domain.User) (*Session, error) {
		opened++
		return Open(ctx, env.svc, env.store, user, discard(), Options{})
	})
	require.NoError(t, err)
	defer reg.Close()

	first, err := reg.Get(env.ctx, env.user)
	require.NoError(t, err)
	again, err := reg.Get(env.ctx, env.user)
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = reg.Get(env.ctx, domain.User{ID: "user-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, opened)
	assert.Equal(t, 1, reg.Len())

	_, err = first.Remove(context.Background(), domain.EntityTag, "any")
	assert.ErrorIs(t, err, optimistic.ErrClosed, "evicted sessions are closed")
}
