package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntityType string

const (
	EntityItem     EntityType = "item"
	EntityCategory EntityType = "category"
	EntityLocation EntityType = "location"
	EntityTag      EntityType = "tag"
	EntityTemplate EntityType = "template"
)

// Table returns the record collection backing the entity type.
func (e EntityType) Table() string {
	switch e {
	case EntityItem:
		return "items"
	case EntityCategory:
		return "categories"
	case EntityLocation:
		return "locations"
	case EntityTag:
		return "tags"
	case EntityTemplate:
		return "item_templates"
	default:
		return ""
	}
}

// Archivable reports whether the entity is soft-deleted rather than removed.
func (e EntityType) Archivable() bool {
	return e == EntityItem
}

type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Item struct {
	ID            string              `db:"id" json:"id"`
	Name          string              `db:"name" json:"name" validate:"required,max=200"`
	Description   string              `db:"description" json:"description"`
	Quantity      int                 `db:"quantity" json:"quantity" validate:"gte=0"`
	Unit          string              `db:"unit" json:"unit" validate:"max=50"`
	MinThreshold  *int                `db:"min_threshold" json:"min_threshold" validate:"omitempty,gte=0"`
	MaxThreshold  *int                `db:"max_threshold" json:"max_threshold" validate:"omitempty,gte=0"`
	IsEssential   bool                `db:"is_essential" json:"is_essential"`
	IsFavorite    bool                `db:"is_favorite" json:"is_favorite"`
	IsArchived    bool                `db:"is_archived" json:"is_archived"`
	Status        ItemStatus          `db:"status" json:"status" validate:"required,item_status"`
	CategoryID    *string             `db:"category_id" json:"category_id"`
	PurchasePrice decimal.NullDecimal `db:"purchase_price" json:"purchase_price"`
	CurrentValue  decimal.NullDecimal `db:"current_value" json:"current_value"`
	Barcode       string              `db:"barcode" json:"barcode"`
	ImageURL      *string             `db:"image_url" json:"image_url"`
	Notes         string              `db:"notes" json:"notes"`
	CustomFields  Fields              `db:"custom_fields" json:"custom_fields"`
	CreatedBy     *string             `db:"created_by" json:"created_by"`
	UpdatedBy     *string             `db:"updated_by" json:"updated_by"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so cached values never share pointers or maps.
func (i Item) Clone() Item {
	c := i
	c.MinThreshold = cloneInt(i.MinThreshold)
	c.MaxThreshold = cloneInt(i.MaxThreshold)
	c.CategoryID = cloneString(i.CategoryID)
	c.ImageURL = cloneString(i.ImageURL)
	c.CreatedBy = cloneString(i.CreatedBy)
	c.UpdatedBy = cloneString(i.UpdatedBy)
	c.CustomFields = i.CustomFields.Clone()
	return c
}

type Category struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name" validate:"required,max=100"`
	Description string    `db:"description" json:"description"`
	Icon        string    `db:"icon" json:"icon"`
	Color       string    `db:"color" json:"color"`
	ParentID    *string   `db:"parent_id" json:"parent_id"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	CreatedBy   *string   `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (c Category) Clone() Category {
	out := c
	out.ParentID = cloneString(c.ParentID)
	out.CreatedBy = cloneString(c.CreatedBy)
	return out
}

func (c Category) NodeID() string        { return c.ID }
func (c Category) NodeParentID() *string { return c.ParentID }
func (c Category) NodeSortKey() int      { return c.SortOrder }
func (c Category) NodeName() string      { return c.Name }

// Location is a place items live in. Path and Depth are a materialized cache
// of the ancestry and are recomputed by the location repository on every
// structural edit.
type Location struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name" validate:"required,max=100"`
	Description string    `db:"description" json:"description"`
	ParentID    *string   `db:"parent_id" json:"parent_id"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	Path        *string   `db:"path" json:"path"`
	Depth       int       `db:"depth" json:"depth"`
	CreatedBy   *string   `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (l Location) Clone() Location {
	out := l
	out.ParentID = cloneString(l.ParentID)
	out.Path = cloneString(l.Path)
	out.CreatedBy = cloneString(l.CreatedBy)
	return out
}

func (l Location) NodeID() string        { return l.ID }
func (l Location) NodeParentID() *string { return l.ParentID }
func (l Location) NodeSortKey() int      { return l.SortOrder }
func (l Location) NodeName() string      { return l.Name }

type Tag struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name" validate:"required,max=50"`
	Color     string    `db:"color" json:"color" validate:"max=32"`
	CreatedBy *string   `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (t Tag) Clone() Tag {
	out := t
	out.CreatedBy = cloneString(t.CreatedBy)
	return out
}

type ItemTag struct {
	ID        string    `db:"id" json:"id"`
	ItemID    string    `db:"item_id" json:"item_id"`
	TagID     string    `db:"tag_id" json:"tag_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ItemLocation records how much of an item sits at a location. At most one
// row per item has IsPrimary set.
type ItemLocation struct {
	ID         string    `db:"id" json:"id"`
	ItemID     string    `db:"item_id" json:"item_id"`
	LocationID string    `db:"location_id" json:"location_id"`
	Quantity   int       `db:"quantity" json:"quantity" validate:"gte=0"`
	IsPrimary  bool      `db:"is_primary" json:"is_primary"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// History field names for changes to an item's join rows.
const (
	FieldLocations = "locations"
	FieldTags      = "tags"
)

// ChangeHistory is an append-only audit row. IsUndone moves from false to
// true once and never back.
type ChangeHistory struct {
	ID          string         `db:"id" json:"id"`
	EntityType  EntityType     `db:"entity_type" json:"entity_type"`
	EntityID    string         `db:"entity_id" json:"entity_id"`
	Action      Action         `db:"action" json:"action"`
	FieldName   *string        `db:"field_name" json:"field_name"`
	OldValue    *string        `db:"old_value" json:"old_value"`
	NewValue    *string        `db:"new_value" json:"new_value"`
	OldSnapshot SnapshotColumn `db:"old_snapshot" json:"old_snapshot"`
	NewSnapshot SnapshotColumn `db:"new_snapshot" json:"new_snapshot"`
	ChangedBy   *string        `db:"changed_by" json:"changed_by"`
	IsUndone    bool           `db:"is_undone" json:"is_undone"`
	UndoneBy    *string        `db:"undone_by" json:"undone_by"`
	UndoneAt    *time.Time     `db:"undone_at" json:"undone_at"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

type ItemTemplate struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name" validate:"required,max=200"`
	Description     string    `db:"description" json:"description"`
	CategoryID      *string   `db:"category_id" json:"category_id"`
	Unit            string    `db:"unit" json:"unit"`
	DefaultQuantity int       `db:"default_quantity" json:"default_quantity" validate:"gte=0"`
	MinThreshold    *int      `db:"min_threshold" json:"min_threshold" validate:"omitempty,gte=0"`
	IsEssential     bool      `db:"is_essential" json:"is_essential"`
	CustomFields    Fields    `db:"custom_fields" json:"custom_fields"`
	UseCount        int       `db:"use_count" json:"use_count"`
	CreatedBy       *string   `db:"created_by" json:"created_by"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

func (t ItemTemplate) Clone() ItemTemplate {
	out := t
	out.CategoryID = cloneString(t.CategoryID)
	out.MinThreshold = cloneInt(t.MinThreshold)
	out.CreatedBy = cloneString(t.CreatedBy)
	out.CustomFields = t.CustomFields.Clone()
	return out
}

type Notification struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Type      string     `db:"type" json:"type"`
	Title     string     `db:"title" json:"title" validate:"required"`
	Message   string     `db:"message" json:"message"`
	ItemID    *string    `db:"item_id" json:"item_id"`
	IsRead    bool       `db:"is_read" json:"is_read"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Expired reports whether the notification should no longer be shown.
func (n Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

// ItemView is an item joined with its category, locations and tags.
type ItemView struct {
	Item
	Category  *Category          `json:"category"`
	Locations []ItemLocationView `json:"locations"`
	Tags      []Tag              `json:"tags"`
}

// PrimaryLocation returns the location flagged primary, if any.
func (v ItemView) PrimaryLocation() *ItemLocationView {
	for i := range v.Locations {
		if v.Locations[i].IsPrimary {
			return &v.Locations[i]
		}
	}
	return nil
}

type ItemLocationView struct {
	ItemLocation
	Location Location `json:"location"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
