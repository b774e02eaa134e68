package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Snapshot is a full copy of one entity, tagged by its entity type. The
// concrete types are ItemSnapshot, CategorySnapshot, LocationSnapshot,
// TagSnapshot and TemplateSnapshot.
type Snapshot interface {
	EntityType() EntityType
	EntityID() string
	snapshot()
}

type ItemSnapshot struct{ Item Item }
type CategorySnapshot struct{ Category Category }
type LocationSnapshot struct{ Location Location }
type TagSnapshot struct{ Tag Tag }
type TemplateSnapshot struct{ Template ItemTemplate }

func (ItemSnapshot) EntityType() EntityType     { return EntityItem }
func (CategorySnapshot) EntityType() EntityType { return EntityCategory }
func (LocationSnapshot) EntityType() EntityType { return EntityLocation }
func (TagSnapshot) EntityType() EntityType      { return EntityTag }
func (TemplateSnapshot) EntityType() EntityType { return EntityTemplate }

func (s ItemSnapshot) EntityID() string     { return s.Item.ID }
func (s CategorySnapshot) EntityID() string { return s.Category.ID }
func (s LocationSnapshot) EntityID() string { return s.Location.ID }
func (s TagSnapshot) EntityID() string      { return s.Tag.ID }
func (s TemplateSnapshot) EntityID() string { return s.Template.ID }

func (ItemSnapshot) snapshot()     {}
func (CategorySnapshot) snapshot() {}
func (LocationSnapshot) snapshot() {}
func (TagSnapshot) snapshot()      {}
func (TemplateSnapshot) snapshot() {}

// SnapshotOf wraps an entity value in its snapshot type. Values are cloned.
func SnapshotOf(v any) (Snapshot, error) {
	switch e := v.(type) {
	case Item:
		return ItemSnapshot{Item: e.Clone()}, nil
	case *Item:
		return ItemSnapshot{Item: e.Clone()}, nil
	case Category:
		return CategorySnapshot{Category: e.Clone()}, nil
	case *Category:
		return CategorySnapshot{Category: e.Clone()}, nil
	case Location:
		return LocationSnapshot{Location: e.Clone()}, nil
	case *Location:
		return LocationSnapshot{Location: e.Clone()}, nil
	case Tag:
		return TagSnapshot{Tag: e.Clone()}, nil
	case *Tag:
		return TagSnapshot{Tag: e.Clone()}, nil
	case ItemTemplate:
		return TemplateSnapshot{Template: e.Clone()}, nil
	case *ItemTemplate:
		return TemplateSnapshot{Template: e.Clone()}, nil
	default:
		return nil, fmt.Errorf("no snapshot type for %T", v)
	}
}

// Entity returns the wrapped entity value.
func Entity(s Snapshot) any {
	switch e := s.(type) {
	case ItemSnapshot:
		return e.Item
	case CategorySnapshot:
		return e.Category
	case LocationSnapshot:
		return e.Location
	case TagSnapshot:
		return e.Tag
	case TemplateSnapshot:
		return e.Template
	default:
		return nil
	}
}

type snapshotEnvelope struct {
	Type EntityType      `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalSnapshot encodes s as {"type": ..., "data": ...}.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(Entity(s))
	if err != nil {
		return nil, err
	}
	return json.Marshal(snapshotEnvelope{Type: s.EntityType(), Data: data})
}

// UnmarshalSnapshot decodes an envelope produced by MarshalSnapshot into the
// snapshot type named by its tag.
func UnmarshalSnapshot(raw []byte) (Snapshot, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot envelope: %w", err)
	}
	switch env.Type {
	case EntityItem:
		var s ItemSnapshot
		if err := decodeSnapshot(env.Data, &s.Item); err != nil {
			return nil, err
		}
		return s, nil
	case EntityCategory:
		var s CategorySnapshot
		if err := decodeSnapshot(env.Data, &s.Category); err != nil {
			return nil, err
		}
		return s, nil
	case EntityLocation:
		var s LocationSnapshot
		if err := decodeSnapshot(env.Data, &s.Location); err != nil {
			return nil, err
		}
		return s, nil
	case EntityTag:
		var s TagSnapshot
		if err := decodeSnapshot(env.Data, &s.Tag); err != nil {
			return nil, err
		}
		return s, nil
	case EntityTemplate:
		var s TemplateSnapshot
		if err := decodeSnapshot(env.Data, &s.Template); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown snapshot type %q", env.Type)
	}
}

func decodeSnapshot(data json.RawMessage, into any) error {
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to decode snapshot data: %w", err)
	}
	return nil
}

// SnapshotColumn stores an optional Snapshot in a text column.
type SnapshotColumn struct {
	Snapshot Snapshot
}

func (c SnapshotColumn) Valid() bool { return c.Snapshot != nil }

func (c SnapshotColumn) Value() (driver.Value, error) {
	if c.Snapshot == nil {
		return nil, nil
	}
	b, err := MarshalSnapshot(c.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return string(b), nil
}

func (c *SnapshotColumn) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		c.Snapshot = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported snapshot type %T", src)
	}
	if len(raw) == 0 {
		c.Snapshot = nil
		return nil
	}
	s, err := UnmarshalSnapshot(raw)
	if err != nil {
		return err
	}
	c.Snapshot = s
	return nil
}

func (c SnapshotColumn) MarshalJSON() ([]byte, error) {
	if c.Snapshot == nil {
		return []byte("null"), nil
	}
	return MarshalSnapshot(c.Snapshot)
}

func (c *SnapshotColumn) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		c.Snapshot = nil
		return nil
	}
	s, err := UnmarshalSnapshot(b)
	if err != nil {
		return err
	}
	c.Snapshot = s
	return nil
}

// CloneSnapshot returns a deep copy of s. A nil snapshot stays nil.
func CloneSnapshot(s Snapshot) Snapshot {
	if s == nil {
		return nil
	}
	c, err := SnapshotOf(Entity(s))
	if err != nil {
		return s
	}
	return c
}
