package repository

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
)

// Editable returns the columns of t that callers may change.
func Editable(t domain.EntityType) map[string]bool {
	switch t {
	case domain.EntityItem:
		return itemEditable
	case domain.EntityCategory:
		return categoryEditable
	case domain.EntityLocation:
		return locationEditable
	case domain.EntityTag:
		return tagEditable
	case domain.EntityTemplate:
		return templateEditable
	}
	return nil
}

// Diff returns the editable columns whose values differ between prev and
// next, with next's values. A nil prev yields every editable column.
func Diff(prev, next domain.Snapshot) (remote.Record, error) {
	if next == nil {
		return nil, fmt.Errorf("diff needs a target state")
	}
	if prev != nil && (prev.EntityType() != next.EntityType() || prev.EntityID() != next.EntityID()) {
		return nil, fmt.Errorf("cannot diff %s %s against %s %s",
			prev.EntityType(), prev.EntityID(), next.EntityType(), next.EntityID())
	}
	editable := Editable(next.EntityType())
	want := columns(domain.Entity(next), editable)
	if prev == nil {
		return want, nil
	}
	have := columns(domain.Entity(prev), editable)

	out := remote.Record{}
	for col, v := range want {
		same, err := sameValue(have[col], v)
		if err != nil {
			return nil, err
		}
		if !same {
			out[col] = v
		}
	}
	return out, nil
}

func sameValue(a, b any) (bool, error) {
	ja, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("failed to encode value: %w", err)
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("failed to encode value: %w", err)
	}
	return bytes.Equal(ja, jb), nil
}

// Patch returns a copy of s with values applied, the way the repository
// update for its type would apply them. Columns that cannot be edited are
// rejected.
func Patch(s domain.Snapshot, values remote.Record) (domain.Snapshot, error) {
	switch v := s.(type) {
	case domain.ItemSnapshot:
		next, err := patch(v.Item, values, itemEditable)
		if err != nil {
			return nil, err
		}
		_, q := values["quantity"]
		_, m := values["min_threshold"]
		_, st := values["status"]
		if q || m || st {
			next.Status = domain.NextStatus(next.Status, next.Quantity, next.MinThreshold)
		}
		return domain.ItemSnapshot{Item: next}, nil
	case domain.CategorySnapshot:
		next, err := patch(v.Category, values, categoryEditable)
		return domain.CategorySnapshot{Category: next}, err
	case domain.LocationSnapshot:
		next, err := patch(v.Location, values, locationEditable)
		return domain.LocationSnapshot{Location: next}, err
	case domain.TagSnapshot:
		next, err := patch(v.Tag, values, tagEditable)
		return domain.TagSnapshot{Tag: next}, err
	case domain.TemplateSnapshot:
		next, err := patch(v.Template, values, templateEditable)
		return domain.TemplateSnapshot{Template: next}, err
	}
	return nil, fmt.Errorf("patch %T: %w", s, errUnknownType)
}
