package service

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/history"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/repository"
)

// NewItem is an item together with where it is kept and how it is tagged.
type NewItem struct {
	Item      domain.Item           `json:"item"`
	Locations []domain.ItemLocation `json:"locations"`
	TagIDs    []string              `json:"tag_ids"`
}

func (s *InventoryService) ListItems(ctx context.Context, f repository.ItemFilter) ([]domain.ItemView, error) {
	return s.repos.Items.ListViews(ctx, f)
}

func (s *InventoryService) GetItem(ctx context.Context, id string) (*domain.ItemView, error) {
	return s.repos.Items.GetView(ctx, id)
}

func (s *InventoryService) LowStock(ctx context.Context) ([]domain.Item, error) {
	return s.repos.Items.LowStock(ctx)
}

// CreateItem inserts the item and attaches its locations and tags. If an
// attachment fails the item and any rows already written are removed again
// and the original error is returned with any cleanup failures.
func (s *InventoryService) CreateItem(ctx context.Context, in NewItem) (*domain.ItemView, error) {
	snap, err := s.recorder.Apply(ctx, history.Mutation{
		Type:   domain.EntityItem,
		ID:     in.Item.ID,
		Action: domain.ActionCreate,
	}, func(ctx context.Context) (domain.Snapshot, error) {
		item, err := s.repos.Items.Insert(ctx, in.Item)
		if err != nil {
			return nil, err
		}
		if err := s.attach(ctx, item.ID, in); err != nil {
			return nil, s.compensate(ctx, item.ID, err)
		}
		return domain.SnapshotOf(*item)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("item created", "item_id", snap.EntityID(), "locations", len(in.Locations), "tags", len(in.TagIDs))
	return s.repos.Items.GetView(ctx, snap.EntityID())
}

func (s *InventoryService) attach(ctx context.Context, itemID string, in NewItem) error {
	if len(in.Locations) > 0 {
		if _, err := s.repos.Items.SetLocations(ctx, itemID, in.Locations); err != nil {
			return err
		}
	}
	if len(in.TagIDs) > 0 {
		if err := s.repos.Items.SetTags(ctx, itemID, in.TagIDs); err != nil {
			return err
		}
	}
	return nil
}

// compensate removes a half-created item. Cleanup runs even when ctx is
// already cancelled.
func (s *InventoryService) compensate(ctx context.Context, itemID string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	result := multierror.Append(nil, cause)
	if err := s.repos.Items.ClearTags(ctx, itemID); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to remove tags: %w", err))
	}
	if err := s.repos.Items.ClearLocations(ctx, itemID); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to remove locations: %w", err))
	}
	if err := s.repos.Items.Delete(ctx, itemID); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to remove item: %w", err))
	}
	s.logger.Warn("item create rolled back", "item_id", itemID, "error", result)
	if len(result.Errors) == 1 {
		return cause
	}
	return result
}

// TemplateUse overrides a template's defaults. Quantity, when set, wins
// over the template's default quantity, zero included.
type TemplateUse struct {
	NewItem
	Quantity *int `json:"quantity,omitempty"`
}

// CreateFromTemplate creates an item from a template's defaults and counts
// the template as used once the item exists. Fields set on the overrides win
// over the template.
func (s *InventoryService) CreateFromTemplate(ctx context.Context, templateID string, use TemplateUse) (*domain.ItemView, error) {
	tpl, err := s.repos.Templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	in := use.NewItem
	item := &in.Item
	if item.Name == "" {
		item.Name = tpl.Name
	}
	if item.Description == "" {
		item.Description = tpl.Description
	}
	if item.Unit == "" {
		item.Unit = tpl.Unit
	}
	item.Quantity = tpl.DefaultQuantity
	if use.Quantity != nil {
		item.Quantity = *use.Quantity
	}
	if item.CategoryID == nil && tpl.CategoryID != nil {
		id := *tpl.CategoryID
		item.CategoryID = &id
	}
	if item.MinThreshold == nil && tpl.MinThreshold != nil {
		v := *tpl.MinThreshold
		item.MinThreshold = &v
	}
	item.IsEssential = item.IsEssential || tpl.IsEssential
	if item.CustomFields == nil {
		item.CustomFields = tpl.CustomFields.Clone()
	}

	view, err := s.CreateItem(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, err := s.repos.Templates.Use(ctx, templateID); err != nil {
		s.logger.Warn("failed to count template use", "template_id", templateID, "item_id", view.ID, "error", err)
	}
	return view, nil
}

// UpdateItem changes item columns. Status is re-derived by the repository.
func (s *InventoryService) UpdateItem(ctx context.Context, id string, values remote.Record) (*domain.Item, error) {
	snap, err := s.UpdateFields(ctx, domain.EntityItem, id, values)
	if err != nil {
		return nil, err
	}
	item := snap.(domain.ItemSnapshot).Item
	return &item, nil
}

// AdjustQuantity adds delta to the stored quantity, clamping at zero.
func (s *InventoryService) AdjustQuantity(ctx context.Context, id string, delta int) (*domain.Item, error) {
	cur, err := s.repos.Items.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	next.AdjustQuantity(delta)
	return s.UpdateItem(ctx, id, remote.Record{"quantity": next.Quantity})
}

// SetItemLocations replaces where an item is kept and records the change.
func (s *InventoryService) SetItemLocations(ctx context.Context, id string, locs []domain.ItemLocation) (*domain.ItemView, error) {
	return s.relink(ctx, id, domain.FieldLocations, locationRows, func(ctx context.Context) error {
		_, err := s.repos.Items.SetLocations(ctx, id, locs)
		return err
	})
}

// SetItemTags replaces an item's tags and records the change.
func (s *InventoryService) SetItemTags(ctx context.Context, id string, tagIDs []string) (*domain.ItemView, error) {
	return s.relink(ctx, id, domain.FieldTags, tagIDsOf, func(ctx context.Context) error {
		return s.repos.Items.SetTags(ctx, id, tagIDs)
	})
}

// relink runs a write to an item's join rows and records the rows before and
// after as a change of field.
func (s *InventoryService) relink(ctx context.Context, id, field string, rows func(domain.ItemView) any, write func(context.Context) error) (*domain.ItemView, error) {
	before, err := s.repos.Items.GetView(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := write(ctx); err != nil {
		return nil, err
	}
	after, err := s.repos.Items.GetView(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, history.Mutation{
		Type:   domain.EntityItem,
		ID:     id,
		Action: domain.ActionUpdate,
		Before: domain.ItemSnapshot{Item: before.Item},
		After:  domain.ItemSnapshot{Item: after.Item},
		Field:  field,
		Old:    rows(*before),
		New:    rows(*after),
	})
	return after, nil
}

func locationRows(v domain.ItemView) any {
	out := make([]domain.ItemLocation, 0, len(v.Locations))
	for _, l := range v.Locations {
		out = append(out, l.ItemLocation)
	}
	return out
}

func tagIDsOf(v domain.ItemView) any {
	out := make([]string, 0, len(v.Tags))
	for _, t := range v.Tags {
		out = append(out, t.ID)
	}
	return out
}
