package repository

import (
	"context"
	"fmt"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/validate"
)

var templateEditable = keys(
	"name", "description", "category_id", "unit", "default_quantity",
	"min_threshold", "is_essential", "custom_fields",
)

type Templates struct {
	base
}

func NewTemplates(store remote.Store, opts ...Option) *Templates {
	return &Templates{base: newBase(store, opts...)}
}

// List returns templates most used first.
func (r *Templates) List(ctx context.Context) ([]domain.ItemTemplate, error) {
	var tpls []domain.ItemTemplate
	q := remote.Query{}.OrderBy(remote.Desc("use_count"), remote.Asc("name"))
	if err := r.store.Select(ctx, remote.TableTemplates, q, &tpls); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return tpls, nil
}

func (r *Templates) Get(ctx context.Context, id string) (*domain.ItemTemplate, error) {
	return get[domain.ItemTemplate](ctx, r.store, remote.TableTemplates, "template", id)
}

func (r *Templates) Create(ctx context.Context, t domain.ItemTemplate) (*domain.ItemTemplate, error) {
	by, err := actor(ctx, "create template")
	if err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = newID()
	}
	if err := validate.Struct(t); err != nil {
		return nil, err
	}
	now := r.timestamp()
	t.UseCount = 0
	t.CreatedBy = by
	t.CreatedAt, t.UpdatedAt = now, now

	if err := r.store.Insert(ctx, remote.TableTemplates, t); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	return r.Get(ctx, t.ID)
}

func (r *Templates) Update(ctx context.Context, id string, values remote.Record) (*domain.ItemTemplate, error) {
	if _, err := actor(ctx, "update template"); err != nil {
		return nil, err
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := patch(*cur, values, templateEditable)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(next); err != nil {
		return nil, err
	}
	write := columns(next, keysOf(values))
	write["updated_at"] = r.timestamp()
	if _, err := r.store.Update(ctx, remote.TableTemplates, write, remote.Eq("id", id)); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	return r.Get(ctx, id)
}

// Use bumps the template's use count and returns it.
func (r *Templates) Use(ctx context.Context, id string) (*domain.ItemTemplate, error) {
	n, err := r.store.Update(ctx, remote.TableTemplates,
		remote.Record{"use_count": remote.Increment{By: 1}}, remote.Eq("id", id))
	if err != nil {
		return nil, fmt.Errorf("failed to count template use: %w", err)
	}
	if n == 0 {
		return nil, &NotFoundError{Kind: "template", ID: id}
	}
	return r.Get(ctx, id)
}

func (r *Templates) Delete(ctx context.Context, id string) error {
	n, err := r.store.Delete(ctx, remote.TableTemplates, remote.Eq("id", id))
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "template", ID: id}
	}
	return nil
}

func (r *Templates) Restore(ctx context.Context, t domain.ItemTemplate) (*domain.ItemTemplate, error) {
	if err := r.store.Insert(ctx, remote.TableTemplates, t); err != nil {
		return nil, fmt.Errorf("failed to restore template: %w", err)
	}
	return r.Get(ctx, t.ID)
}
