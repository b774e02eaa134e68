package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/tree"
	"github.com/vbonduro/homeinv/internal/validate"
)

var locationEditable = keys("name", "description", "parent_id", "sort_order")

// Locations keeps each location's cached path and depth in step with its
// ancestry.
type Locations struct {
	base
}

func NewLocations(store remote.Store, opts ...Option) *Locations {
	return &Locations{base: newBase(store, opts...)}
}

func (r *Locations) List(ctx context.Context) ([]domain.Location, error) {
	var locs []domain.Location
	q := remote.Query{}.OrderBy(remote.Asc("sort_order"), remote.Asc("name"))
	if err := r.store.Select(ctx, remote.TableLocations, q, &locs); err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locs, nil
}

func (r *Locations) Get(ctx context.Context, id string) (*domain.Location, error) {
	return get[domain.Location](ctx, r.store, remote.TableLocations, "location", id)
}

func (r *Locations) Create(ctx context.Context, l domain.Location) (*domain.Location, error) {
	by, err := actor(ctx, "create location")
	if err != nil {
		return nil, err
	}
	if l.ID == "" {
		l.ID = newID()
	}
	if err := validate.Struct(l); err != nil {
		return nil, err
	}

	path, depth := l.Name, 0
	if l.ParentID != nil {
		parent, err := r.Get(ctx, *l.ParentID)
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) {
				return nil, validate.FieldError("parent_id", "does not exist")
			}
			return nil, err
		}
		parentPath := parent.Name
		if parent.Path != nil && *parent.Path != "" {
			parentPath = *parent.Path
		}
		path = parentPath + tree.PathSeparator + l.Name
		depth = parent.Depth + 1
	}
	now := r.timestamp()
	l.Path, l.Depth = &path, depth
	l.CreatedBy = by
	l.CreatedAt, l.UpdatedAt = now, now

	if err := r.store.Insert(ctx, remote.TableLocations, l); err != nil {
		return nil, fmt.Errorf("failed to create location: %w", err)
	}
	return r.Get(ctx, l.ID)
}

// Update changes the given columns. Renaming or moving a location recomputes
// the path and depth of the location and all of its descendants.
func (r *Locations) Update(ctx context.Context, id string, values remote.Record) (*domain.Location, error) {
	if _, err := actor(ctx, "update location"); err != nil {
		return nil, err
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := patch(*cur, values, locationEditable)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(next); err != nil {
		return nil, err
	}

	_, moved := values["parent_id"]
	_, renamed := values["name"]
	if moved && next.ParentID != nil {
		all, err := r.List(ctx)
		if err != nil {
			return nil, err
		}
		if !containsID(all, *next.ParentID) {
			return nil, validate.FieldError("parent_id", "does not exist")
		}
		if tree.WouldCycle(all, id, next.ParentID) {
			return nil, &tree.CyclicHierarchyError{IDs: []string{id, *next.ParentID}}
		}
	}

	write := columns(next, keysOf(values))
	write["updated_at"] = r.timestamp()
	if _, err := r.store.Update(ctx, remote.TableLocations, write, remote.Eq("id", id)); err != nil {
		return nil, fmt.Errorf("failed to update location: %w", err)
	}
	if moved || renamed {
		if err := r.RecomputePaths(ctx); err != nil {
			return nil, err
		}
	}
	return r.Get(ctx, id)
}

// Delete removes the location. Its children become roots.
func (r *Locations) Delete(ctx context.Context, id string) error {
	n, err := r.store.Delete(ctx, remote.TableLocations, remote.Eq("id", id))
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "location", ID: id}
	}
	return r.RecomputePaths(ctx)
}

// Restore inserts a deleted location again with its original id.
func (r *Locations) Restore(ctx context.Context, l domain.Location) (*domain.Location, error) {
	if err := r.store.Insert(ctx, remote.TableLocations, l); err != nil {
		return nil, fmt.Errorf("failed to restore location: %w", err)
	}
	if err := r.RecomputePaths(ctx); err != nil {
		return nil, err
	}
	return r.Get(ctx, l.ID)
}

// RecomputePaths rewrites every cached path and depth that no longer
// matches the ancestry.
func (r *Locations) RecomputePaths(ctx context.Context) error {
	all, err := r.List(ctx)
	if err != nil {
		return err
	}
	paths, err := tree.ComputePaths(all)
	if err != nil {
		return err
	}
	for _, l := range all {
		want := paths[l.ID]
		if l.Path != nil && *l.Path == want.Path && l.Depth == want.Depth {
			continue
		}
		_, err := r.store.Update(ctx, remote.TableLocations,
			remote.Record{"path": want.Path, "depth": want.Depth}, remote.Eq("id", l.ID))
		if err != nil {
			return fmt.Errorf("failed to update location path: %w", err)
		}
	}
	return nil
}

func containsID(locs []domain.Location, id string) bool {
	for _, l := range locs {
		if l.ID == id {
			return true
		}
	}
	return false
}
