package remote

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// Change describes a committed write to one table.
type Change struct {
	Table  string
	Op     ChangeOp
	IDs    []string
	Origin string
	At     time.Time
}

const subscriptionBuffer = 64

// Subscription delivers changes for a set of tables until closed or until
// the context passed to Subscribe is done.
type Subscription struct {
	C <-chan Change

	ch     chan Change
	tables map[string]bool
	feed   *Feed
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.remove(s)
		close(s.done)
	})
}

// Feed fans committed changes out to subscribers. A subscriber whose buffer
// is full misses the change rather than blocking the writer.
type Feed struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	logger *slog.Logger
}

func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{subs: make(map[*Subscription]struct{}), logger: logger}
}

// Subscribe registers interest in tables. No tables means every table.
func (f *Feed) Subscribe(ctx context.Context, tables ...string) *Subscription {
	ch := make(chan Change, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, feed: f, done: make(chan struct{})}
	if len(tables) > 0 {
		sub.tables = make(map[string]bool, len(tables))
		for _, t := range tables {
			sub.tables[t] = true
		}
	}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub
}

func (f *Feed) Publish(c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		if sub.tables != nil && !sub.tables[c.Table] {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			f.logger.Warn("dropping change for slow subscriber", "table", c.Table, "op", c.Op)
		}
	}
}

func (f *Feed) remove(s *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[s]; ok {
		delete(f.subs, s)
		close(s.ch)
	}
}
