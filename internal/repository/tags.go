package repository

import (
	"context"
	"fmt"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/validate"
)

var tagEditable = keys("name", "color")

type Tags struct {
	base
}

func NewTags(store remote.Store, opts ...Option) *Tags {
	return &Tags{base: newBase(store, opts...)}
}

func (r *Tags) List(ctx context.Context) ([]domain.Tag, error) {
	var tags []domain.Tag
	if err := r.store.Select(ctx, remote.TableTags, remote.Query{}.OrderBy(remote.Asc("name")), &tags); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

func (r *Tags) Get(ctx context.Context, id string) (*domain.Tag, error) {
	return get[domain.Tag](ctx, r.store, remote.TableTags, "tag", id)
}

func (r *Tags) Create(ctx context.Context, t domain.Tag) (*domain.Tag, error) {
	by, err := actor(ctx, "create tag")
	if err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = newID()
	}
	if err := validate.Struct(t); err != nil {
		return nil, err
	}
	n, err := r.store.Count(ctx, remote.TableTags, remote.Eq("name", t.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to check tag name: %w", err)
	}
	if n > 0 {
		return nil, validate.FieldError("name", "is already in use")
	}
	t.CreatedBy = by
	t.CreatedAt = r.timestamp()

	if err := r.store.Insert(ctx, remote.TableTags, t); err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	return r.Get(ctx, t.ID)
}

func (r *Tags) Update(ctx context.Context, id string, values remote.Record) (*domain.Tag, error) {
	if _, err := actor(ctx, "update tag"); err != nil {
		return nil, err
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := patch(*cur, values, tagEditable)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(next); err != nil {
		return nil, err
	}
	if _, err := r.store.Update(ctx, remote.TableTags, columns(next, keysOf(values)), remote.Eq("id", id)); err != nil {
		return nil, fmt.Errorf("failed to update tag: %w", err)
	}
	return r.Get(ctx, id)
}

// Delete removes the tag and detaches it from every item.
func (r *Tags) Delete(ctx context.Context, id string) error {
	if _, err := r.store.Delete(ctx, remote.TableItemTags, remote.Eq("tag_id", id)); err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}
	n, err := r.store.Delete(ctx, remote.TableTags, remote.Eq("id", id))
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "tag", ID: id}
	}
	return nil
}

func (r *Tags) Restore(ctx context.Context, t domain.Tag) (*domain.Tag, error) {
	if err := r.store.Insert(ctx, remote.TableTags, t); err != nil {
		return nil, fmt.Errorf("failed to restore tag: %w", err)
	}
	return r.Get(ctx, t.ID)
}
