// Package repository translates entity operations into remote store calls
// and assembles joined item views.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/validate"
)

// NotFoundError reports a lookup by id that matched nothing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

type Option func(*base)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

type base struct {
	store remote.Store
	now   func() time.Time
}

func newBase(store remote.Store, opts ...Option) base {
	b := base{store: store, now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) timestamp() time.Time {
	return b.now().UTC()
}

func newID() string {
	return uuid.NewString()
}

// actor returns the signed-in user's id for audit columns.
func actor(ctx context.Context, op string) (*string, error) {
	id, err := auth.CurrentUserID(ctx)
	if err != nil {
		return nil, &auth.NotAuthenticatedError{Op: op}
	}
	return &id, nil
}

// get loads one row or returns a NotFoundError.
func get[T any](ctx context.Context, store remote.Store, table, kind, id string) (*T, error) {
	var v T
	found, err := store.Get(ctx, table, id, &v)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	if !found {
		return nil, &NotFoundError{Kind: kind, ID: id}
	}
	return &v, nil
}

// patch overlays values onto a copy of cur. Keys are the JSON names of T's
// fields, which match the column names.
func patch[T any](cur T, values remote.Record, editable map[string]bool) (T, error) {
	var out T
	bad := &validate.Error{}
	for k := range values {
		if !editable[k] {
			bad.Add(k, "cannot be changed")
		}
	}
	if len(bad.Fields) > 0 {
		return out, bad
	}

	b, err := json.Marshal(cur)
	if err != nil {
		return out, fmt.Errorf("failed to encode current value: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return out, fmt.Errorf("failed to decode current value: %w", err)
	}
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("failed to encode %s: %w", k, err)
		}
		fields[k] = raw
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return out, fmt.Errorf("failed to encode changes: %w", err)
	}
	if err := json.Unmarshal(merged, &out); err != nil {
		return out, validate.FieldError("body", "has a value of the wrong type")
	}
	return out, nil
}

// columns reads the named columns from a db-tagged struct so updates bind
// typed values rather than decoded JSON.
func columns(v any, names map[string]bool) remote.Record {
	out := remote.Record{}
	rv := reflect.Indirect(reflect.ValueOf(v))
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		col := strings.Split(rt.Field(i).Tag.Get("db"), ",")[0]
		if col != "" && names[col] {
			out[col] = rv.Field(i).Interface()
		}
	}
	return out
}

func keys(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func ids[T any](rows []T, id func(T) string) []string {
	out := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		v := id(r)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
