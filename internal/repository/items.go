package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/validate"
)

var itemEditable = keys(
	"name", "description", "quantity", "unit", "min_threshold", "max_threshold",
	"is_essential", "is_favorite", "is_archived", "status", "category_id",
	"purchase_price", "current_value", "barcode", "image_url", "notes", "custom_fields",
)

type ItemFilter struct {
	Search          string
	CategoryID      string
	LocationID      string
	TagID           string
	Status          domain.ItemStatus
	Favorites       bool
	Essential       bool
	IncludeArchived bool
}

type Items struct {
	base
}

func NewItems(store remote.Store, opts ...Option) *Items {
	return &Items{base: newBase(store, opts...)}
}

func (r *Items) List(ctx context.Context, f ItemFilter) ([]domain.Item, error) {
	var filters []remote.Filter
	if !f.IncludeArchived {
		filters = append(filters, remote.Eq("is_archived", false))
	}
	if f.Search != "" {
		filters = append(filters, remote.Like("name", "%"+f.Search+"%"))
	}
	if f.CategoryID != "" {
		filters = append(filters, remote.Eq("category_id", f.CategoryID))
	}
	if f.Status != "" {
		filters = append(filters, remote.Eq("status", f.Status))
	}
	if f.Favorites {
		filters = append(filters, remote.Eq("is_favorite", true))
	}
	if f.Essential {
		filters = append(filters, remote.Eq("is_essential", true))
	}
	if f.LocationID != "" {
		var links []domain.ItemLocation
		if err := r.store.Select(ctx, remote.TableItemLocations, remote.Where(remote.Eq("location_id", f.LocationID)), &links); err != nil {
			return nil, fmt.Errorf("failed to list item locations: %w", err)
		}
		filters = append(filters, remote.In("id", ids(links, func(l domain.ItemLocation) string { return l.ItemID })))
	}
	if f.TagID != "" {
		var links []domain.ItemTag
		if err := r.store.Select(ctx, remote.TableItemTags, remote.Where(remote.Eq("tag_id", f.TagID)), &links); err != nil {
			return nil, fmt.Errorf("failed to list item tags: %w", err)
		}
		filters = append(filters, remote.In("id", ids(links, func(l domain.ItemTag) string { return l.ItemID })))
	}

	var items []domain.Item
	q := remote.Where(filters...).OrderBy(remote.Asc("name"), remote.Asc("id"))
	if err := r.store.Select(ctx, remote.TableItems, q, &items); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (r *Items) Get(ctx context.Context, id string) (*domain.Item, error) {
	return get[domain.Item](ctx, r.store, remote.TableItems, "item", id)
}

// LowStock lists active items that are low on or out of stock.
func (r *Items) LowStock(ctx context.Context) ([]domain.Item, error) {
	var items []domain.Item
	q := remote.Where(
		remote.Eq("is_archived", false),
		remote.In("status", []domain.ItemStatus{domain.StatusLowStock, domain.StatusOutOfStock}),
	).OrderBy(remote.Asc("quantity"), remote.Asc("name"))
	if err := r.store.Select(ctx, remote.TableItems, q, &items); err != nil {
		return nil, fmt.Errorf("failed to list low stock items: %w", err)
	}
	return items, nil
}

// Insert creates an item. The id is generated when empty and a status that
// is not set explicitly is derived from the quantity.
func (r *Items) Insert(ctx context.Context, item domain.Item) (*domain.Item, error) {
	by, err := actor(ctx, "create item")
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = newID()
	}
	item.Status = domain.NextStatus(item.Status, item.Quantity, item.MinThreshold)
	if err := validate.Struct(item); err != nil {
		return nil, err
	}
	now := r.timestamp()
	item.CreatedBy, item.UpdatedBy = by, by
	item.CreatedAt, item.UpdatedAt = now, now

	if err := r.store.Insert(ctx, remote.TableItems, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return r.Get(ctx, item.ID)
}

// Update changes the given columns. The status is re-derived whenever the
// quantity, threshold or status is touched.
func (r *Items) Update(ctx context.Context, id string, values remote.Record) (*domain.Item, error) {
	by, err := actor(ctx, "update item")
	if err != nil {
		return nil, err
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := patch(*cur, values, itemEditable)
	if err != nil {
		return nil, err
	}

	changed := make(map[string]bool, len(values)+1)
	for k := range values {
		changed[k] = true
	}
	if changed["quantity"] || changed["min_threshold"] || changed["status"] {
		if next.Status == "" || !next.Status.Valid() {
			return nil, validate.FieldError("status", "must be a known item status")
		}
		next.Status = domain.NextStatus(next.Status, next.Quantity, next.MinThreshold)
		changed["status"] = true
	}
	if err := validate.Struct(next); err != nil {
		return nil, err
	}

	write := columns(next, changed)
	write["updated_by"] = by
	write["updated_at"] = r.timestamp()
	if _, err := r.store.Update(ctx, remote.TableItems, write, remote.Eq("id", id)); err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return r.Get(ctx, id)
}

// Replace overwrites every editable column with the values in item.
func (r *Items) Replace(ctx context.Context, item domain.Item) (*domain.Item, error) {
	return r.Update(ctx, item.ID, columns(item, itemEditable))
}

// Restore writes a full item back, inserting it again if it is gone.
func (r *Items) Restore(ctx context.Context, item domain.Item) (*domain.Item, error) {
	n, err := r.store.Count(ctx, remote.TableItems, remote.Eq("id", item.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to check item: %w", err)
	}
	if n == 0 {
		if err := r.store.Insert(ctx, remote.TableItems, item); err != nil {
			return nil, fmt.Errorf("failed to restore item: %w", err)
		}
		return r.Get(ctx, item.ID)
	}
	return r.Replace(ctx, item)
}

func (r *Items) SetArchived(ctx context.Context, id string, archived bool) (*domain.Item, error) {
	return r.Update(ctx, id, remote.Record{"is_archived": archived})
}

// Delete removes the item row. Items are normally archived; this is used to
// undo a half-finished create.
func (r *Items) Delete(ctx context.Context, id string) error {
	n, err := r.store.Delete(ctx, remote.TableItems, remote.Eq("id", id))
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "item", ID: id}
	}
	return nil
}

// SetLocations replaces the item's locations. At most one may be primary;
// when none is marked the first becomes primary.
func (r *Items) SetLocations(ctx context.Context, itemID string, locs []domain.ItemLocation) ([]domain.ItemLocation, error) {
	primaries := 0
	seen := make(map[string]bool, len(locs))
	for _, l := range locs {
		if l.IsPrimary {
			primaries++
		}
		if l.LocationID == "" {
			return nil, validate.FieldError("location_id", "is required")
		}
		if seen[l.LocationID] {
			return nil, validate.FieldError("location_id", "is listed more than once")
		}
		seen[l.LocationID] = true
		if err := validate.Struct(l); err != nil {
			return nil, err
		}
	}
	if primaries > 1 {
		return nil, validate.FieldError("is_primary", "only one location can be primary")
	}

	if _, err := r.store.Delete(ctx, remote.TableItemLocations, remote.Eq("item_id", itemID)); err != nil {
		return nil, fmt.Errorf("failed to clear item locations: %w", err)
	}

	now := r.timestamp()
	out := make([]domain.ItemLocation, 0, len(locs))
	for i, l := range locs {
		l.ID = newID()
		l.ItemID = itemID
		l.IsPrimary = l.IsPrimary || (primaries == 0 && i == 0)
		l.CreatedAt = now
		if err := r.store.Insert(ctx, remote.TableItemLocations, l); err != nil {
			return out, fmt.Errorf("failed to add item location: %w", err)
		}
		out = append(out, l)
	}
	return out, nil
}

// ClearLocations removes every location link of the item.
func (r *Items) ClearLocations(ctx context.Context, itemID string) error {
	if _, err := r.store.Delete(ctx, remote.TableItemLocations, remote.Eq("item_id", itemID)); err != nil {
		return fmt.Errorf("failed to clear item locations: %w", err)
	}
	return nil
}

// SetTags replaces the tags on an item.
func (r *Items) SetTags(ctx context.Context, itemID string, tagIDs []string) error {
	if err := r.ClearTags(ctx, itemID); err != nil {
		return err
	}
	now := r.timestamp()
	seen := make(map[string]bool, len(tagIDs))
	for _, tagID := range tagIDs {
		if seen[tagID] {
			continue
		}
		seen[tagID] = true
		link := domain.ItemTag{ID: newID(), ItemID: itemID, TagID: tagID, CreatedAt: now}
		if err := r.store.Insert(ctx, remote.TableItemTags, link); err != nil {
			return fmt.Errorf("failed to tag item: %w", err)
		}
	}
	return nil
}

func (r *Items) ClearTags(ctx context.Context, itemID string) error {
	if _, err := r.store.Delete(ctx, remote.TableItemTags, remote.Eq("item_id", itemID)); err != nil {
		return fmt.Errorf("failed to clear item tags: %w", err)
	}
	return nil
}

func (r *Items) GetView(ctx context.Context, id string) (*domain.ItemView, error) {
	item, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := r.views(ctx, []domain.Item{*item})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (r *Items) ListViews(ctx context.Context, f ItemFilter) ([]domain.ItemView, error) {
	items, err := r.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return r.views(ctx, items)
}

// views joins items with their category, locations and tags using one
// query per table.
func (r *Items) views(ctx context.Context, items []domain.Item) ([]domain.ItemView, error) {
	itemIDs := ids(items, func(i domain.Item) string { return i.ID })
	catIDs := ids(items, func(i domain.Item) string {
		if i.CategoryID == nil {
			return ""
		}
		return *i.CategoryID
	})

	var cats []domain.Category
	if err := r.store.Select(ctx, remote.TableCategories, remote.Where(remote.In("id", catIDs)), &cats); err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	catByID := make(map[string]domain.Category, len(cats))
	for _, c := range cats {
		catByID[c.ID] = c
	}

	var links []domain.ItemLocation
	if err := r.store.Select(ctx, remote.TableItemLocations, remote.Where(remote.In("item_id", itemIDs)), &links); err != nil {
		return nil, fmt.Errorf("failed to load item locations: %w", err)
	}
	var locs []domain.Location
	locIDs := ids(links, func(l domain.ItemLocation) string { return l.LocationID })
	if err := r.store.Select(ctx, remote.TableLocations, remote.Where(remote.In("id", locIDs)), &locs); err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	locByID := make(map[string]domain.Location, len(locs))
	for _, l := range locs {
		locByID[l.ID] = l
	}

	var tagLinks []domain.ItemTag
	if err := r.store.Select(ctx, remote.TableItemTags, remote.Where(remote.In("item_id", itemIDs)), &tagLinks); err != nil {
		return nil, fmt.Errorf("failed to load item tags: %w", err)
	}
	var tags []domain.Tag
	tagIDs := ids(tagLinks, func(l domain.ItemTag) string { return l.TagID })
	if err := r.store.Select(ctx, remote.TableTags, remote.Where(remote.In("id", tagIDs)), &tags); err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}
	tagByID := make(map[string]domain.Tag, len(tags))
	for _, t := range tags {
		tagByID[t.ID] = t
	}

	locsByItem := make(map[string][]domain.ItemLocationView)
	for _, l := range links {
		loc, ok := locByID[l.LocationID]
		if !ok {
			continue
		}
		locsByItem[l.ItemID] = append(locsByItem[l.ItemID], domain.ItemLocationView{ItemLocation: l, Location: loc})
	}
	tagsByItem := make(map[string][]domain.Tag)
	for _, l := range tagLinks {
		if t, ok := tagByID[l.TagID]; ok {
			tagsByItem[l.ItemID] = append(tagsByItem[l.ItemID], t)
		}
	}

	out := make([]domain.ItemView, 0, len(items))
	for _, it := range items {
		v := domain.ItemView{Item: it, Locations: locsByItem[it.ID], Tags: tagsByItem[it.ID]}
		if it.CategoryID != nil {
			if c, ok := catByID[*it.CategoryID]; ok {
				v.Category = &c
			}
		}
		sort.SliceStable(v.Locations, func(i, j int) bool {
			return v.Locations[i].IsPrimary && !v.Locations[j].IsPrimary
		})
		sort.Slice(v.Tags, func(i, j int) bool { return v.Tags[i].Name < v.Tags[j].Name })
		out = append(out, v)
	}
	return out, nil
}
