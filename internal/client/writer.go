package client

import (
	"context"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/repository"
)

// Backend is the server side of a session. *service.InventoryService
// implements it.
type Backend interface {
	Get(ctx context.Context, t domain.EntityType, id string) (domain.Snapshot, error)
	Exists(ctx context.Context, t domain.EntityType, id string) (bool, error)
	Snapshots(ctx context.Context, t domain.EntityType) ([]domain.Snapshot, error)
	Create(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error)
	UpdateFields(ctx context.Context, t domain.EntityType, id string, values remote.Record) (domain.Snapshot, error)
	Remove(ctx context.Context, t domain.EntityType, id string) error
	Restore(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error)
}

// writer turns cache transitions into backend calls.
type writer struct {
	backend Backend
}

func (w writer) Save(ctx context.Context, prev, next domain.Snapshot) (domain.Snapshot, error) {
	switch {
	case next == nil:
		return nil, w.backend.Remove(ctx, prev.EntityType(), prev.EntityID())
	case prev == nil:
		exists, err := w.backend.Exists(ctx, next.EntityType(), next.EntityID())
		if err != nil {
			return nil, err
		}
		if exists {
			return w.backend.Restore(ctx, next)
		}
		return w.backend.Create(ctx, next)
	}

	values, err := repository.Diff(prev, next)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return w.backend.Get(ctx, next.EntityType(), next.EntityID())
	}
	return w.backend.UpdateFields(ctx, next.EntityType(), next.EntityID(), values)
}
