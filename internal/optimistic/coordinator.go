// Package optimistic applies mutations to a local cache before the remote
// write completes and rolls them back when the write fails.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/undo"
)

var ErrClosed = errors.New("coordinator closed")

// Writer persists a state transition remotely. prev is nil for a create and
// next is nil for a removal. It returns the stored state when it has one.
type Writer interface {
	Save(ctx context.Context, prev, next domain.Snapshot) (domain.Snapshot, error)
}

// Refresher reloads a whole table from the remote store into the cache.
type Refresher func(ctx context.Context, t domain.EntityType) error

type NotFoundError struct {
	Type domain.EntityType
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not in local cache", e.Type, e.ID)
}

type Option func(*Coordinator)

// WithRefresh reloads the affected table after every confirmed write.
func WithRefresh(fn Refresher) Option {
	return func(c *Coordinator) { c.refresh = fn }
}

type Coordinator struct {
	cache  *Cache
	writer Writer
	ledger *undo.Ledger
	logger *slog.Logger

	refresh Refresher

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewCoordinator(cache *Cache, writer Writer, ledger *undo.Ledger, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{cache: cache, writer: writer, ledger: ledger, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mutation changes one cached entity. Apply receives a private copy of the
// current value and returns the new one.
type Mutation struct {
	Type  domain.EntityType
	ID    string
	Label string
	Apply func(prev domain.Snapshot) (domain.Snapshot, error)
}

// Mutate applies m to the cache and starts the remote write. The returned
// snapshot is the optimistic value, already visible to readers.
func (c *Coordinator) Mutate(ctx context.Context, m Mutation) (domain.Snapshot, *Pending, error) {
	if c.isClosed() {
		return nil, nil, ErrClosed
	}
	prev, ok := c.cache.Get(m.Type, m.ID)
	if !ok {
		return nil, nil, &NotFoundError{Type: m.Type, ID: m.ID}
	}
	next, err := m.Apply(domain.CloneSnapshot(prev))
	if err != nil {
		return nil, nil, err
	}
	if next == nil || next.EntityType() != m.Type || next.EntityID() != m.ID {
		return nil, nil, fmt.Errorf("mutation %q returned a different entity", m.Label)
	}
	return next, c.start(ctx, m.Label, prev, next), nil
}

// Create adds a new entity to the cache and starts its remote insert.
func (c *Coordinator) Create(ctx context.Context, label string, next domain.Snapshot) (*Pending, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if _, exists := c.cache.Get(next.EntityType(), next.EntityID()); exists {
		return nil, fmt.Errorf("%s %s already exists", next.EntityType(), next.EntityID())
	}
	return c.start(ctx, label, nil, next), nil
}

// Remove drops an entity from the cache and starts its remote removal.
func (c *Coordinator) Remove(ctx context.Context, label string, t domain.EntityType, id string) (*Pending, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	prev, ok := c.cache.Get(t, id)
	if !ok {
		return nil, &NotFoundError{Type: t, ID: id}
	}
	return c.start(ctx, label, prev, nil), nil
}

func (c *Coordinator) start(ctx context.Context, label string, prev, next domain.Snapshot) *Pending {
	pos := c.apply(prev, next)

	p := newPending()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// In-flight writes are never cancelled.
		wctx := context.WithoutCancel(ctx)
		saved, err := c.writer.Save(wctx, prev, next)
		p.finish(c.settle(wctx, label, prev, next, saved, pos, err))
	}()
	return p
}

func (c *Coordinator) settle(ctx context.Context, label string, prev, next, saved domain.Snapshot, pos int, err error) error {
	t, id := identify(prev, next)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("ignoring late completion", "type", t, "id", id, "label", label)
		if err != nil {
			return err
		}
		return ErrClosed
	}
	if err != nil {
		c.revert(next, prev, pos)
		c.mu.Unlock()
		c.logger.Warn("remote write failed, rolled back", "type", t, "id", id, "label", label, "error", err)
		return err
	}
	if saved != nil {
		c.cache.Put(saved)
	}
	c.mu.Unlock()

	c.ledger.Push(undo.Action{
		Type:     t,
		EntityID: id,
		Label:    label,
		Previous: prev,
		Next:     next,
		At:       time.Now().UTC(),
	})
	c.reload(ctx, t)
	return nil
}

// Restore moves an entity from one state to another and waits for the
// remote write. On failure the cache is put back the way it was.
func (c *Coordinator) Restore(ctx context.Context, from, to domain.Snapshot) error {
	if c.isClosed() {
		return ErrClosed
	}
	t, id := identify(from, to)
	cur, _ := c.cache.Get(t, id)
	base := cur
	if base == nil {
		base = from
	}

	pos := c.apply(cur, to)
	saved, err := c.writer.Save(ctx, base, to)
	if err != nil {
		c.revert(to, cur, pos)
		return err
	}
	if saved != nil {
		c.cache.Put(saved)
	}
	c.reload(ctx, t)
	return nil
}

func (c *Coordinator) reload(ctx context.Context, t domain.EntityType) {
	if c.refresh == nil || c.isClosed() {
		return
	}
	if err := c.refresh(ctx, t); err != nil {
		c.logger.Warn("failed to refresh after write", "type", t, "error", err)
	}
}

// apply replaces from with to in the cache. When the entity is dropped it
// returns the position it held, otherwise -1.
func (c *Coordinator) apply(from, to domain.Snapshot) int {
	switch {
	case to != nil:
		c.cache.Put(to)
	case from != nil:
		return c.cache.Remove(from.EntityType(), from.EntityID())
	}
	return -1
}

// revert undoes apply(prev, cur), putting a dropped entity back at pos.
func (c *Coordinator) revert(cur, prev domain.Snapshot, pos int) {
	switch {
	case prev == nil:
		c.apply(cur, nil)
	case cur == nil:
		c.cache.Insert(prev, pos)
	default:
		c.cache.Put(prev)
	}
}

// Close stops accepting mutations. Writes still in flight complete but no
// longer touch the cache or the ledger.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Wait blocks until every started write has settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func identify(a, b domain.Snapshot) (domain.EntityType, string) {
	if b != nil {
		return b.EntityType(), b.EntityID()
	}
	if a != nil {
		return a.EntityType(), a.EntityID()
	}
	return "", ""
}

// Pending tracks a remote write started by the coordinator.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) finish(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the write has settled and the cache is reconciled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the write's error after Done is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the write settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
