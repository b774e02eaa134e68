// Package remote defines the record store the repositories are written
// against: filtered CRUD on named tables plus a change feed.
package remote

import (
	"context"
	"fmt"
)

const (
	TableUsers         = "users"
	TableItems         = "items"
	TableCategories    = "categories"
	TableLocations     = "locations"
	TableTags          = "tags"
	TableItemTags      = "item_tags"
	TableItemLocations = "item_locations"
	TableHistory       = "change_history"
	TableTemplates     = "item_templates"
	TableNotifications = "notifications"
)

// Record maps column names to values for inserts and updates.
type Record map[string]any

// Increment is an update value that adds By to the column's current value.
type Increment struct {
	By int
}

// Store is the remote record store.
type Store interface {
	// Select loads the rows matching q into dest, a pointer to a slice of structs.
	Select(ctx context.Context, table string, q Query, dest any) error
	// Get loads the row with the given id into dest. It reports false when
	// no such row exists.
	Get(ctx context.Context, table, id string, dest any) (bool, error)
	Count(ctx context.Context, table string, filters ...Filter) (int, error)
	// Insert writes a new row. record is a struct with db tags or a Record,
	// and must carry an "id".
	Insert(ctx context.Context, table string, record any) error
	Update(ctx context.Context, table string, values Record, filters ...Filter) (int64, error)
	Delete(ctx context.Context, table string, filters ...Filter) (int64, error)
	Subscribe(ctx context.Context, tables ...string) (*Subscription, error)
}

// Error wraps every failure reported by a Store backend.
type Error struct {
	Op    string
	Table string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote store: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type originKey struct{}

// WithOrigin tags writes made with ctx so change notifications carry origin.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin set by WithOrigin, or "".
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}
