// Package client keeps a per-user session: a local cache of every entity,
// optimistic writes through the coordinator, the undo ledger, and a change
// feed subscription that refetches tables other sessions modify.
package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/optimistic"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/repository"
	"github.com/vbonduro/homeinv/internal/tree"
	"github.com/vbonduro/homeinv/internal/undo"
)

var entityTypes = []domain.EntityType{
	domain.EntityItem,
	domain.EntityCategory,
	domain.EntityLocation,
	domain.EntityTag,
	domain.EntityTemplate,
}

// Subscriber delivers change notifications. remote.Store implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, tables ...string) (*remote.Subscription, error)
}

type Options struct {
	UndoDepth        int
	RefreshOnSuccess bool
}

type Session struct {
	origin  string
	user    domain.User
	backend Backend
	cache   *optimistic.Cache
	ledger  *undo.Ledger
	coord   *optimistic.Coordinator
	logger  *slog.Logger

	sub    *remote.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// Open loads every entity for user into a fresh cache and starts listening
// for changes made elsewhere. feed may be nil.
func Open(ctx context.Context, backend Backend, feed Subscriber, user domain.User, logger *slog.Logger, opts Options) (*Session, error) {
	s := &Session{
		origin:  uuid.NewString(),
		user:    user,
		backend: backend,
		cache:   optimistic.NewCache(),
		ledger:  undo.NewLedger(opts.UndoDepth),
		logger:  logger.With("user_id", user.ID),
		done:    make(chan struct{}),
	}
	var coordOpts []optimistic.Option
	if opts.RefreshOnSuccess {
		coordOpts = append(coordOpts, optimistic.WithRefresh(s.Refresh))
	}
	s.coord = optimistic.NewCoordinator(s.cache, writer{backend: backend}, s.ledger, s.logger, coordOpts...)

	for _, t := range entityTypes {
		if err := s.Refresh(ctx, t); err != nil {
			return nil, err
		}
	}

	if feed == nil {
		close(s.done)
		return s, nil
	}
	tables := make([]string, len(entityTypes))
	for i, t := range entityTypes {
		tables[i] = t.Table()
	}
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := feed.Subscribe(subCtx, tables...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to changes: %w", err)
	}
	s.sub, s.cancel = sub, cancel
	go s.listen(subCtx)
	return s, nil
}

// Context returns ctx carrying the session's user and origin.
func (s *Session) Context(ctx context.Context) context.Context {
	return auth.WithUser(remote.WithOrigin(ctx, s.origin), s.user)
}

func (s *Session) Origin() string { return s.origin }

func (s *Session) User() domain.User { return s.user }

// Refresh replaces the cached rows of t with the stored ones.
func (s *Session) Refresh(ctx context.Context, t domain.EntityType) error {
	rows, err := s.backend.Snapshots(s.Context(ctx), t)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", t.Table(), err)
	}
	s.cache.Load(t, rows)
	return nil
}

func (s *Session) listen(ctx context.Context) {
	defer close(s.done)
	for change := range s.sub.C {
		if change.Origin == s.origin {
			continue
		}
		t, ok := entityForTable(change.Table)
		if !ok {
			continue
		}
		if err := s.Refresh(ctx, t); err != nil {
			s.logger.Warn("failed to refresh after remote change", "table", change.Table, "error", err)
			continue
		}
		s.logger.Debug("refreshed after remote change", "table", change.Table, "origin", change.Origin)
	}
}

func entityForTable(table string) (domain.EntityType, bool) {
	for _, t := range entityTypes {
		if t.Table() == table {
			return t, true
		}
	}
	return "", false
}

// Close stops the change listener. Writes still in flight complete without
// touching the cache.
func (s *Session) Close() {
	s.coord.Close()
	if s.cancel != nil {
		s.cancel()
		s.sub.Close()
	}
	<-s.done
}

// Wait blocks until every started write has settled.
func (s *Session) Wait() {
	s.coord.Wait()
}

// AdjustQuantity changes an item's quantity by delta, clamping at zero and
// re-deriving its status. The new value is visible immediately.
func (s *Session) AdjustQuantity(ctx context.Context, id string, delta int) (domain.Item, *optimistic.Pending, error) {
	return s.mutateItem(ctx, id, "Adjust quantity", func(item *domain.Item) error {
		item.AdjustQuantity(delta)
		return nil
	})
}

func (s *Session) ToggleFavorite(ctx context.Context, id string) (domain.Item, *optimistic.Pending, error) {
	return s.mutateItem(ctx, id, "Toggle favorite", func(item *domain.Item) error {
		item.IsFavorite = !item.IsFavorite
		return nil
	})
}

func (s *Session) mutateItem(ctx context.Context, id, label string, fn func(item *domain.Item) error) (domain.Item, *optimistic.Pending, error) {
	snap, pending, err := s.coord.Mutate(s.Context(ctx), optimistic.Mutation{
		Type:  domain.EntityItem,
		ID:    id,
		Label: label,
		Apply: func(prev domain.Snapshot) (domain.Snapshot, error) {
			item := prev.(domain.ItemSnapshot).Item
			if err := fn(&item); err != nil {
				return nil, err
			}
			return domain.ItemSnapshot{Item: item}, nil
		},
	})
	if err != nil {
		return domain.Item{}, nil, err
	}
	return snap.(domain.ItemSnapshot).Item, pending, nil
}

// Update changes columns of any cached entity.
func (s *Session) Update(ctx context.Context, t domain.EntityType, id string, values remote.Record) (domain.Snapshot, *optimistic.Pending, error) {
	return s.coord.Mutate(s.Context(ctx), optimistic.Mutation{
		Type:  t,
		ID:    id,
		Label: "Edit " + string(t),
		Apply: func(prev domain.Snapshot) (domain.Snapshot, error) {
			return repository.Patch(prev, values)
		},
	})
}

// Create adds a new entity. An empty id is filled in so the entity can be
// cached before it is stored.
func (s *Session) Create(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, *optimistic.Pending, error) {
	switch v := snap.(type) {
	case domain.ItemSnapshot:
		if v.Item.ID == "" {
			v.Item.ID = uuid.NewString()
		}
		v.Item.Status = domain.NextStatus(v.Item.Status, v.Item.Quantity, v.Item.MinThreshold)
		snap = v
	case domain.CategorySnapshot:
		if v.Category.ID == "" {
			v.Category.ID = uuid.NewString()
		}
		snap = v
	case domain.LocationSnapshot:
		if v.Location.ID == "" {
			v.Location.ID = uuid.NewString()
		}
		snap = v
	case domain.TagSnapshot:
		if v.Tag.ID == "" {
			v.Tag.ID = uuid.NewString()
		}
		snap = v
	case domain.TemplateSnapshot:
		if v.Template.ID == "" {
			v.Template.ID = uuid.NewString()
		}
		snap = v
	}
	pending, err := s.coord.Create(s.Context(ctx), "Create "+string(snap.EntityType()), snap)
	if err != nil {
		return nil, nil, err
	}
	return snap, pending, nil
}

// Remove archives an item or deletes another entity. Either way it leaves
// the local cache at once.
func (s *Session) Remove(ctx context.Context, t domain.EntityType, id string) (*optimistic.Pending, error) {
	label := "Delete " + string(t)
	if t.Archivable() {
		label = "Archive " + string(t)
	}
	return s.coord.Remove(s.Context(ctx), label, t, id)
}

// Undo reverts the most recent confirmed action. ok is false when there is
// nothing to undo.
func (s *Session) Undo(ctx context.Context) (undo.Action, bool, error) {
	return s.ledger.Undo(s.Context(ctx), s.coord)
}

func (s *Session) Redo(ctx context.Context) (undo.Action, bool, error) {
	return s.ledger.Redo(s.Context(ctx), s.coord)
}

func (s *Session) State() undo.State { return s.ledger.State() }

func (s *Session) DismissToast() { s.ledger.DismissToast() }

// Get returns the cached entity, reflecting any write still in flight.
func (s *Session) Get(t domain.EntityType, id string) (domain.Snapshot, bool) {
	return s.cache.Get(t, id)
}

func (s *Session) Item(id string) (domain.Item, bool) {
	snap, ok := s.cache.Get(domain.EntityItem, id)
	if !ok {
		return domain.Item{}, false
	}
	return snap.(domain.ItemSnapshot).Item, true
}

func (s *Session) Items() []domain.Item { return s.cache.Items() }

func (s *Session) Tags() []domain.Tag { return s.cache.Tags() }

func (s *Session) Templates() []domain.ItemTemplate { return s.cache.Templates() }

func (s *Session) CategoryTree() ([]*tree.CategoryNode, error) {
	return tree.Categories(s.cache.Categories(), s.cache.Items())
}

func (s *Session) LocationTree() ([]*tree.LocationNode, error) {
	return tree.Locations(s.cache.Locations())
}

func (s *Session) LocationOptions() []tree.LocationOption {
	return tree.LocationOptions(s.cache.Locations())
}
