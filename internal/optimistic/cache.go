package optimistic

import (
	"sync"

	"github.com/vbonduro/homeinv/internal/domain"
)

type table struct {
	order []string
	rows  map[string]domain.Snapshot
}

// Cache is a client's local copy of the remote tables. Values go in and come
// out as deep copies.
type Cache struct {
	mu     sync.RWMutex
	tables map[domain.EntityType]*table
}

func NewCache() *Cache {
	return &Cache{tables: make(map[domain.EntityType]*table)}
}

func (c *Cache) Get(t domain.EntityType, id string) (domain.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tb, ok := c.tables[t]
	if !ok {
		return nil, false
	}
	s, ok := tb.rows[id]
	return domain.CloneSnapshot(s), ok
}

// Put inserts or replaces a row. New rows go to the end of the table.
func (c *Cache) Put(s domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tb := c.table(s.EntityType())
	if _, ok := tb.rows[s.EntityID()]; !ok {
		tb.order = append(tb.order, s.EntityID())
	}
	tb.rows[s.EntityID()] = domain.CloneSnapshot(s)
}

// Remove drops a row and returns the position it held, or -1 when absent.
func (c *Cache) Remove(t domain.EntityType, id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	tb, ok := c.tables[t]
	if !ok {
		return -1
	}
	if _, ok := tb.rows[id]; !ok {
		return -1
	}
	delete(tb.rows, id)
	for i, o := range tb.order {
		if o == id {
			tb.order = append(tb.order[:i:i], tb.order[i+1:]...)
			return i
		}
	}
	return -1
}

// Insert puts a row back at position i. A row already present is replaced
// where it stands; an out of range position appends.
func (c *Cache) Insert(s domain.Snapshot, i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tb := c.table(s.EntityType())
	id := s.EntityID()
	if _, ok := tb.rows[id]; !ok {
		if i < 0 || i > len(tb.order) {
			i = len(tb.order)
		}
		tb.order = append(tb.order[:i:i], append([]string{id}, tb.order[i:]...)...)
	}
	tb.rows[id] = domain.CloneSnapshot(s)
}

// Load replaces a whole table, keeping the given order.
func (c *Cache) Load(t domain.EntityType, rows []domain.Snapshot) {
	tb := &table{order: make([]string, 0, len(rows)), rows: make(map[string]domain.Snapshot, len(rows))}
	for _, s := range rows {
		if _, dup := tb.rows[s.EntityID()]; !dup {
			tb.order = append(tb.order, s.EntityID())
		}
		tb.rows[s.EntityID()] = domain.CloneSnapshot(s)
	}
	c.mu.Lock()
	c.tables[t] = tb
	c.mu.Unlock()
}

func (c *Cache) List(t domain.EntityType) []domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tb, ok := c.tables[t]
	if !ok {
		return nil
	}
	out := make([]domain.Snapshot, 0, len(tb.order))
	for _, id := range tb.order {
		out = append(out, domain.CloneSnapshot(tb.rows[id]))
	}
	return out
}

func (c *Cache) table(t domain.EntityType) *table {
	tb, ok := c.tables[t]
	if !ok {
		tb = &table{rows: make(map[string]domain.Snapshot)}
		c.tables[t] = tb
	}
	return tb
}

// Items returns the cached items in table order.
func (c *Cache) Items() []domain.Item {
	return entities[domain.Item](c.List(domain.EntityItem))
}

func (c *Cache) Categories() []domain.Category {
	return entities[domain.Category](c.List(domain.EntityCategory))
}

func (c *Cache) Locations() []domain.Location {
	return entities[domain.Location](c.List(domain.EntityLocation))
}

func (c *Cache) Tags() []domain.Tag {
	return entities[domain.Tag](c.List(domain.EntityTag))
}

func (c *Cache) Templates() []domain.ItemTemplate {
	return entities[domain.ItemTemplate](c.List(domain.EntityTemplate))
}

func entities[T any](snaps []domain.Snapshot) []T {
	out := make([]T, 0, len(snaps))
	for _, s := range snaps {
		if v, ok := domain.Entity(s).(T); ok {
			out = append(out, v)
		}
	}
	return out
}
