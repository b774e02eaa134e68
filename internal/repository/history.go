package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
)

// History is the append-only change log.
type History struct {
	base
}

func NewHistory(store remote.Store, opts ...Option) *History {
	return &History{base: newBase(store, opts...)}
}

func (r *History) Append(ctx context.Context, h domain.ChangeHistory) (*domain.ChangeHistory, error) {
	if h.ID == "" {
		h.ID = newID()
	}
	h.IsUndone = false
	h.UndoneBy, h.UndoneAt = nil, nil
	if h.CreatedAt.IsZero() {
		h.CreatedAt = r.timestamp()
	}
	if err := r.store.Insert(ctx, remote.TableHistory, h); err != nil {
		return nil, fmt.Errorf("failed to append history: %w", err)
	}
	return &h, nil
}

func (r *History) Get(ctx context.Context, id string) (*domain.ChangeHistory, error) {
	return get[domain.ChangeHistory](ctx, r.store, remote.TableHistory, "history entry", id)
}

// ListForEntity returns an entity's history newest first.
func (r *History) ListForEntity(ctx context.Context, t domain.EntityType, id string) ([]domain.ChangeHistory, error) {
	var rows []domain.ChangeHistory
	q := remote.Where(remote.Eq("entity_type", t), remote.Eq("entity_id", id)).
		OrderBy(remote.Desc("created_at"), remote.Desc("id"))
	if err := r.store.Select(ctx, remote.TableHistory, q, &rows); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return rows, nil
}

// ListRecent returns the newest entries across all entities.
func (r *History) ListRecent(ctx context.Context, limit int) ([]domain.ChangeHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []domain.ChangeHistory
	q := remote.Query{}.OrderBy(remote.Desc("created_at"), remote.Desc("id")).Page(limit, 0)
	if err := r.store.Select(ctx, remote.TableHistory, q, &rows); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return rows, nil
}

// MarkUndone flags an entry as undone. It reports false when the entry was
// already undone, so the flag only ever moves from false to true.
func (r *History) MarkUndone(ctx context.Context, id, by string, at time.Time) (bool, error) {
	n, err := r.store.Update(ctx, remote.TableHistory,
		remote.Record{"is_undone": true, "undone_by": by, "undone_at": at.UTC()},
		remote.Eq("id", id), remote.Eq("is_undone", false))
	if err != nil {
		return false, fmt.Errorf("failed to mark history undone: %w", err)
	}
	return n > 0, nil
}
