// Package undo keeps the in-memory undo and redo stacks of a client session.
package undo

import (
	"context"
	"sync"
	"time"

	"github.com/vbonduro/homeinv/internal/domain"
)

const DefaultCapacity = 20

// Action is a reversible mutation: applying Previous undoes it, applying
// Next redoes it. A nil state means the entity did not exist on that side.
type Action struct {
	Type     domain.EntityType `json:"type"`
	EntityID string            `json:"entity_id"`
	Label    string            `json:"label"`
	Previous domain.Snapshot   `json:"-"`
	Next     domain.Snapshot   `json:"-"`
	At       time.Time         `json:"timestamp"`
}

// Applier moves an entity from one state to another.
type Applier interface {
	Restore(ctx context.Context, from, to domain.Snapshot) error
}

type State struct {
	UndoDepth    int     `json:"undo_depth"`
	RedoDepth    int     `json:"redo_depth"`
	CanUndo      bool    `json:"can_undo"`
	CanRedo      bool    `json:"can_redo"`
	ToastVisible bool    `json:"toast_visible"`
	LastAction   *Action `json:"last_action,omitempty"`
}

// Ledger holds two bounded stacks. Pushing a new action clears redo.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	undo     []Action
	redo     []Action
	toast    bool
	gen      uint64 // bumped by Push and Clear
}

func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{capacity: capacity}
}

func (l *Ledger) Push(a Action) {
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.undo = pushBounded(l.undo, a, l.capacity)
	l.redo = nil
	l.toast = true
	l.gen++
}

// Undo pops the newest action and applies its previous state. It reports
// false when there is nothing to undo. If applying fails the action is put
// back, unless a Push or Clear ran while it was being applied.
func (l *Ledger) Undo(ctx context.Context, applier Applier) (Action, bool, error) {
	return l.step(ctx, applier, true)
}

// Redo pops the newest undone action and applies its next state.
func (l *Ledger) Redo(ctx context.Context, applier Applier) (Action, bool, error) {
	return l.step(ctx, applier, false)
}

func (l *Ledger) step(ctx context.Context, applier Applier, undo bool) (Action, bool, error) {
	l.mu.Lock()
	from, to := &l.undo, &l.redo
	if !undo {
		from, to = &l.redo, &l.undo
	}
	if len(*from) == 0 {
		l.mu.Unlock()
		return Action{}, false, nil
	}
	a := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]
	gen := l.gen
	l.mu.Unlock()

	var err error
	if undo {
		err = applier.Restore(ctx, a.Next, a.Previous)
	} else {
		err = applier.Restore(ctx, a.Previous, a.Next)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	stale := gen != l.gen
	if err != nil {
		if !stale {
			*from = pushBounded(*from, a, l.capacity)
		}
		return a, true, err
	}
	// A newer action supersedes whatever was undone.
	if undo && stale {
		return a, true, nil
	}
	*to = pushBounded(*to, a, l.capacity)
	return a, true, nil
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.undo = nil
	l.redo = nil
	l.toast = false
	l.gen++
}

func (l *Ledger) DismissToast() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.toast = false
}

func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := State{
		UndoDepth:    len(l.undo),
		RedoDepth:    len(l.redo),
		CanUndo:      len(l.undo) > 0,
		CanRedo:      len(l.redo) > 0,
		ToastVisible: l.toast,
	}
	if len(l.undo) > 0 {
		last := l.undo[len(l.undo)-1]
		s.LastAction = &last
	}
	return s
}

// UndoStack returns the undo entries oldest first.
func (l *Ledger) UndoStack() []Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Action(nil), l.undo...)
}

// RedoStack returns the redo entries oldest first.
func (l *Ledger) RedoStack() []Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Action(nil), l.redo...)
}

func pushBounded(stack []Action, a Action, capacity int) []Action {
	stack = append(stack, a)
	if over := len(stack) - capacity; over > 0 {
		stack = append([]Action(nil), stack[over:]...)
	}
	return stack
}
