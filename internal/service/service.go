package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/filestore"
	"github.com/vbonduro/homeinv/internal/history"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/repository"
	"github.com/vbonduro/homeinv/internal/tree"
	"github.com/vbonduro/homeinv/internal/vision"
)

var (
	ErrVisionDisabled = errors.New("photo capture is not configured")
	ErrFilesDisabled  = errors.New("file storage is not configured")
)

// lowStockTTL is how long a low stock notification stays visible.
const lowStockTTL = 7 * 24 * time.Hour

// InventoryService runs every confirmed write through the history recorder
// and exposes the read models the view layer renders.
type InventoryService struct {
	repos     *repository.Set
	recorder  *history.Recorder
	undoer    *history.Undoer
	files     filestore.Files
	visionAPI vision.Analyzer
	logger    *slog.Logger
	now       func() time.Time
}

// New builds the service. files and visionAPI may be nil, which disables
// photo upload and photo capture respectively.
func New(
	repos *repository.Set,
	files filestore.Files,
	visionAPI vision.Analyzer,
	logger *slog.Logger,
) *InventoryService {
	return &InventoryService{
		repos:     repos,
		recorder:  history.NewRecorder(repos.History, logger),
		undoer:    history.NewUndoer(repos.History, repos, logger),
		files:     files,
		visionAPI: visionAPI,
		logger:    logger,
		now:       time.Now,
	}
}

// Get returns the stored state of one entity.
func (s *InventoryService) Get(ctx context.Context, t domain.EntityType, id string) (domain.Snapshot, error) {
	return s.repos.Get(ctx, t, id)
}

// Exists reports whether the entity is stored, archived or not.
func (s *InventoryService) Exists(ctx context.Context, t domain.EntityType, id string) (bool, error) {
	return s.repos.Exists(ctx, t, id)
}

// Snapshots lists every live entity of type t.
func (s *InventoryService) Snapshots(ctx context.Context, t domain.EntityType) ([]domain.Snapshot, error) {
	return s.repos.List(ctx, t)
}

// Create stores a new entity of any type and records it.
func (s *InventoryService) Create(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	return s.recorder.Apply(ctx, history.Mutation{
		Type:   snap.EntityType(),
		ID:     snap.EntityID(),
		Action: domain.ActionCreate,
	}, func(ctx context.Context) (domain.Snapshot, error) {
		return s.repos.Create(ctx, snap)
	})
}

// UpdateFields changes the given columns of one entity and records the
// change. An item whose quantity change leaves it short of stock raises a
// notification for the acting user.
func (s *InventoryService) UpdateFields(ctx context.Context, t domain.EntityType, id string, values remote.Record) (domain.Snapshot, error) {
	before, err := s.repos.Get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return before, nil
	}
	after, err := s.recorder.Apply(ctx, history.Mutation{
		Type:   t,
		ID:     id,
		Action: domain.ActionUpdate,
		Before: before,
	}, func(ctx context.Context) (domain.Snapshot, error) {
		return s.repos.Update(ctx, t, id, values)
	})
	if err != nil {
		return nil, err
	}
	s.notifyLowStock(ctx, before, after)
	return after, nil
}

// Remove archives an item or deletes any other entity, recording a delete.
func (s *InventoryService) Remove(ctx context.Context, t domain.EntityType, id string) error {
	before, err := s.repos.Get(ctx, t, id)
	if err != nil {
		return err
	}
	_, err = s.recorder.Apply(ctx, history.Mutation{
		Type:   t,
		ID:     id,
		Action: domain.ActionDelete,
		Before: before,
	}, func(ctx context.Context) (domain.Snapshot, error) {
		return s.repos.Remove(ctx, t, id)
	})
	return err
}

// Restore writes a full snapshot back, re-inserting the entity if it was
// deleted, and records a restore.
func (s *InventoryService) Restore(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	t, id := snap.EntityType(), snap.EntityID()
	before, err := s.repos.Get(ctx, t, id)
	var nf *repository.NotFoundError
	if err != nil && !errors.As(err, &nf) {
		return nil, err
	}
	return s.recorder.Apply(ctx, history.Mutation{
		Type:   t,
		ID:     id,
		Action: domain.ActionRestore,
		Before: before,
	}, func(ctx context.Context) (domain.Snapshot, error) {
		return s.repos.Restore(ctx, snap)
	})
}

// SetArchived archives or unarchives an item, recorded as a delete or a
// restore.
func (s *InventoryService) SetArchived(ctx context.Context, id string, archived bool) (*domain.Item, error) {
	before, err := s.repos.Get(ctx, domain.EntityItem, id)
	if err != nil {
		return nil, err
	}
	action := domain.ActionRestore
	if archived {
		action = domain.ActionDelete
	}
	after, err := s.recorder.Apply(ctx, history.Mutation{
		Type:   domain.EntityItem,
		ID:     id,
		Action: action,
		Before: before,
	}, func(ctx context.Context) (domain.Snapshot, error) {
		return s.repos.SetArchived(ctx, domain.EntityItem, id, archived)
	})
	if err != nil {
		return nil, err
	}
	item := after.(domain.ItemSnapshot).Item
	return &item, nil
}

func (s *InventoryService) CategoryTree(ctx context.Context) ([]*tree.CategoryNode, error) {
	cats, err := s.repos.Categories.List(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.repos.Items.List(ctx, repository.ItemFilter{})
	if err != nil {
		return nil, err
	}
	return tree.Categories(cats, items)
}

func (s *InventoryService) LocationTree(ctx context.Context) ([]*tree.LocationNode, error) {
	locs, err := s.repos.Locations.List(ctx)
	if err != nil {
		return nil, err
	}
	return tree.Locations(locs)
}

func (s *InventoryService) LocationOptions(ctx context.Context) ([]tree.LocationOption, error) {
	locs, err := s.repos.Locations.List(ctx)
	if err != nil {
		return nil, err
	}
	return tree.LocationOptions(locs), nil
}

func (s *InventoryService) ListTags(ctx context.Context) ([]domain.Tag, error) {
	return s.repos.Tags.List(ctx)
}

func (s *InventoryService) ListTemplates(ctx context.Context) ([]domain.ItemTemplate, error) {
	return s.repos.Templates.List(ctx)
}

// History lists the recorded changes of one entity, or the most recent
// changes overall when id is empty.
func (s *InventoryService) History(ctx context.Context, t domain.EntityType, id string, limit int) ([]domain.ChangeHistory, error) {
	if id == "" {
		return s.repos.History.ListRecent(ctx, limit)
	}
	return s.repos.History.ListForEntity(ctx, t, id)
}

// UndoChange reverts a recorded change by its history id.
func (s *InventoryService) UndoChange(ctx context.Context, historyID string) (*domain.ChangeHistory, error) {
	h, err := s.undoer.Undo(ctx, historyID)
	if err != nil {
		return nil, fmt.Errorf("failed to undo change: %w", err)
	}
	return h, nil
}
