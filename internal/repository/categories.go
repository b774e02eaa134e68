package repository

import (
	"context"
	"fmt"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/tree"
	"github.com/vbonduro/homeinv/internal/validate"
)

var categoryEditable = keys("name", "description", "icon", "color", "parent_id", "sort_order")

type Categories struct {
	base
}

func NewCategories(store remote.Store, opts ...Option) *Categories {
	return &Categories{base: newBase(store, opts...)}
}

func (r *Categories) List(ctx context.Context) ([]domain.Category, error) {
	var cats []domain.Category
	q := remote.Query{}.OrderBy(remote.Asc("sort_order"), remote.Asc("name"))
	if err := r.store.Select(ctx, remote.TableCategories, q, &cats); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return cats, nil
}

func (r *Categories) Get(ctx context.Context, id string) (*domain.Category, error) {
	return get[domain.Category](ctx, r.store, remote.TableCategories, "category", id)
}

func (r *Categories) Create(ctx context.Context, c domain.Category) (*domain.Category, error) {
	by, err := actor(ctx, "create category")
	if err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = newID()
	}
	if err := validate.Struct(c); err != nil {
		return nil, err
	}
	if err := r.checkParent(ctx, c.ParentID); err != nil {
		return nil, err
	}
	now := r.timestamp()
	c.CreatedBy = by
	c.CreatedAt, c.UpdatedAt = now, now

	if err := r.store.Insert(ctx, remote.TableCategories, c); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return r.Get(ctx, c.ID)
}

// Update changes the given columns. Moving a category under one of its own
// descendants fails with a CyclicHierarchyError.
func (r *Categories) Update(ctx context.Context, id string, values remote.Record) (*domain.Category, error) {
	if _, err := actor(ctx, "update category"); err != nil {
		return nil, err
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := patch(*cur, values, categoryEditable)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(next); err != nil {
		return nil, err
	}

	if _, moved := values["parent_id"]; moved {
		if err := r.checkParent(ctx, next.ParentID); err != nil {
			return nil, err
		}
		all, err := r.List(ctx)
		if err != nil {
			return nil, err
		}
		if tree.WouldCycle(all, id, next.ParentID) {
			return nil, &tree.CyclicHierarchyError{IDs: []string{id, *next.ParentID}}
		}
	}

	write := columns(next, keysOf(values))
	write["updated_at"] = r.timestamp()
	if _, err := r.store.Update(ctx, remote.TableCategories, write, remote.Eq("id", id)); err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	return r.Get(ctx, id)
}

// Delete removes the category. Its children become roots and its items
// become uncategorized.
func (r *Categories) Delete(ctx context.Context, id string) error {
	n, err := r.store.Delete(ctx, remote.TableCategories, remote.Eq("id", id))
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "category", ID: id}
	}
	return nil
}

// Restore inserts a deleted category again with its original id.
func (r *Categories) Restore(ctx context.Context, c domain.Category) (*domain.Category, error) {
	if c.ParentID != nil {
		if err := r.checkParent(ctx, c.ParentID); err != nil {
			c.ParentID = nil
		}
	}
	if err := r.store.Insert(ctx, remote.TableCategories, c); err != nil {
		return nil, fmt.Errorf("failed to restore category: %w", err)
	}
	return r.Get(ctx, c.ID)
}

func (r *Categories) checkParent(ctx context.Context, parentID *string) error {
	if parentID == nil {
		return nil
	}
	n, err := r.store.Count(ctx, remote.TableCategories, remote.Eq("id", *parentID))
	if err != nil {
		return fmt.Errorf("failed to check parent category: %w", err)
	}
	if n == 0 {
		return validate.FieldError("parent_id", "does not exist")
	}
	return nil
}

func keysOf(values remote.Record) map[string]bool {
	m := make(map[string]bool, len(values))
	for k := range values {
		m[k] = true
	}
	return m
}
