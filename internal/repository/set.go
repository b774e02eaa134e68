package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
)

// Set bundles the repositories and dispatches snapshot-level operations to
// the repository for the snapshot's entity type.
type Set struct {
	Items         *Items
	Categories    *Categories
	Locations     *Locations
	Tags          *Tags
	Templates     *Templates
	History       *History
	Notifications *Notifications
}

func New(store remote.Store, opts ...Option) *Set {
	return &Set{
		Items:         NewItems(store, opts...),
		Categories:    NewCategories(store, opts...),
		Locations:     NewLocations(store, opts...),
		Tags:          NewTags(store, opts...),
		Templates:     NewTemplates(store, opts...),
		History:       NewHistory(store, opts...),
		Notifications: NewNotifications(store, opts...),
	}
}

var errUnknownType = errors.New("unknown entity type")

func (s *Set) Get(ctx context.Context, t domain.EntityType, id string) (domain.Snapshot, error) {
	switch t {
	case domain.EntityItem:
		return wrap(s.Items.Get(ctx, id))
	case domain.EntityCategory:
		return wrap(s.Categories.Get(ctx, id))
	case domain.EntityLocation:
		return wrap(s.Locations.Get(ctx, id))
	case domain.EntityTag:
		return wrap(s.Tags.Get(ctx, id))
	case domain.EntityTemplate:
		return wrap(s.Templates.Get(ctx, id))
	}
	return nil, fmt.Errorf("get %s: %w", t, errUnknownType)
}

// Exists reports whether the entity is stored, archived or not.
func (s *Set) Exists(ctx context.Context, t domain.EntityType, id string) (bool, error) {
	_, err := s.Get(ctx, t, id)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	return err == nil, err
}

// List returns every live entity of type t. Archived items are left out.
func (s *Set) List(ctx context.Context, t domain.EntityType) ([]domain.Snapshot, error) {
	switch t {
	case domain.EntityItem:
		return wrapAll(s.Items.List(ctx, ItemFilter{}))
	case domain.EntityCategory:
		return wrapAll(s.Categories.List(ctx))
	case domain.EntityLocation:
		return wrapAll(s.Locations.List(ctx))
	case domain.EntityTag:
		return wrapAll(s.Tags.List(ctx))
	case domain.EntityTemplate:
		return wrapAll(s.Templates.List(ctx))
	}
	return nil, fmt.Errorf("list %s: %w", t, errUnknownType)
}

func (s *Set) Create(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	switch v := snap.(type) {
	case domain.ItemSnapshot:
		return wrap(s.Items.Insert(ctx, v.Item))
	case domain.CategorySnapshot:
		return wrap(s.Categories.Create(ctx, v.Category))
	case domain.LocationSnapshot:
		return wrap(s.Locations.Create(ctx, v.Location))
	case domain.TagSnapshot:
		return wrap(s.Tags.Create(ctx, v.Tag))
	case domain.TemplateSnapshot:
		return wrap(s.Templates.Create(ctx, v.Template))
	}
	return nil, fmt.Errorf("create %T: %w", snap, errUnknownType)
}

func (s *Set) Update(ctx context.Context, t domain.EntityType, id string, values remote.Record) (domain.Snapshot, error) {
	switch t {
	case domain.EntityItem:
		return wrap(s.Items.Update(ctx, id, values))
	case domain.EntityCategory:
		return wrap(s.Categories.Update(ctx, id, values))
	case domain.EntityLocation:
		return wrap(s.Locations.Update(ctx, id, values))
	case domain.EntityTag:
		return wrap(s.Tags.Update(ctx, id, values))
	case domain.EntityTemplate:
		return wrap(s.Templates.Update(ctx, id, values))
	}
	return nil, fmt.Errorf("update %s: %w", t, errUnknownType)
}

// Remove archives an item or deletes any other entity. It returns the
// archived item, or nil for a deletion.
func (s *Set) Remove(ctx context.Context, t domain.EntityType, id string) (domain.Snapshot, error) {
	if t.Archivable() {
		return s.SetArchived(ctx, t, id, true)
	}
	return nil, s.Delete(ctx, t, id)
}

// Delete removes the row for good.
func (s *Set) Delete(ctx context.Context, t domain.EntityType, id string) error {
	switch t {
	case domain.EntityItem:
		return s.Items.Delete(ctx, id)
	case domain.EntityCategory:
		return s.Categories.Delete(ctx, id)
	case domain.EntityLocation:
		return s.Locations.Delete(ctx, id)
	case domain.EntityTag:
		return s.Tags.Delete(ctx, id)
	case domain.EntityTemplate:
		return s.Templates.Delete(ctx, id)
	}
	return fmt.Errorf("delete %s: %w", t, errUnknownType)
}

func (s *Set) SetArchived(ctx context.Context, t domain.EntityType, id string, archived bool) (domain.Snapshot, error) {
	if !t.Archivable() {
		return nil, fmt.Errorf("%s cannot be archived", t)
	}
	return wrap(s.Items.SetArchived(ctx, id, archived))
}

// Restore writes a snapshot back, re-inserting the entity if it was deleted.
func (s *Set) Restore(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	switch v := snap.(type) {
	case domain.ItemSnapshot:
		return wrap(s.Items.Restore(ctx, v.Item))
	}

	exists, err := s.Exists(ctx, snap.EntityType(), snap.EntityID())
	if err != nil {
		return nil, err
	}
	if exists {
		values, err := Diff(nil, snap)
		if err != nil {
			return nil, err
		}
		return s.Update(ctx, snap.EntityType(), snap.EntityID(), values)
	}

	switch v := snap.(type) {
	case domain.CategorySnapshot:
		return wrap(s.Categories.Restore(ctx, v.Category))
	case domain.LocationSnapshot:
		return wrap(s.Locations.Restore(ctx, v.Location))
	case domain.TagSnapshot:
		return wrap(s.Tags.Restore(ctx, v.Tag))
	case domain.TemplateSnapshot:
		return wrap(s.Templates.Restore(ctx, v.Template))
	}
	return nil, fmt.Errorf("restore %T: %w", snap, errUnknownType)
}

// SetItemLocations replaces the location rows of an item.
func (s *Set) SetItemLocations(ctx context.Context, itemID string, locs []domain.ItemLocation) error {
	_, err := s.Items.SetLocations(ctx, itemID, locs)
	return err
}

func (s *Set) SetItemTags(ctx context.Context, itemID string, tagIDs []string) error {
	return s.Items.SetTags(ctx, itemID, tagIDs)
}

func wrap[T any](v *T, err error) (domain.Snapshot, error) {
	if err != nil {
		return nil, err
	}
	return domain.SnapshotOf(*v)
}

func wrapAll[T any](rows []T, err error) ([]domain.Snapshot, error) {
	if err != nil {
		return nil, err
	}
	out := make([]domain.Snapshot, 0, len(rows))
	for _, r := range rows {
		s, err := domain.SnapshotOf(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
