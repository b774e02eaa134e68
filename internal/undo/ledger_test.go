package undo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/homeinv/internal/domain"
)

// itemApplier keeps one item per id and applies snapshots to it.
type itemApplier struct {
	items map[string]domain.Item
	err   error
	calls int
}

func (a *itemApplier) Restore(_ context.Context, from, to domain.Snapshot) error {
	a.calls++
	if a.err != nil {
		return a.err
	}
	if to == nil {
		delete(a.items, from.EntityID())
		return nil
	}
	a.items[to.EntityID()] = to.(domain.ItemSnapshot).Item
	return nil
}

func favoriteAction(id string, from, to bool) Action {
	return Action{
		Type:     domain.EntityItem,
		EntityID: id,
		Previous: domain.ItemSnapshot{Item: domain.Item{ID: id, IsFavorite: from}},
		Next:     domain.ItemSnapshot{Item: domain.Item{ID: id, IsFavorite: to}},
	}
}

func TestPushEvictsOldest(t *testing.T) {
	l := NewLedger(DefaultCapacity)
	for i := 0; i < 25; i++ {
		l.Push(favoriteAction(fmt.Sprintf("item-%d", i), false, true))
	}

	stack := l.UndoStack()
	require.Len(t, stack, 20)
	assert.Equal(t, "item-5", stack[0].EntityID)
	assert.Equal(t, "item-24", stack[19].EntityID)
}

func TestUndoThenPushClearsRedo(t *testing.T) {
	l := NewLedger(DefaultCapacity)
	applier := &itemApplier{items: map[string]domain.Item{}}
	ctx := context.Background()

	l.Push(favoriteAction("a", false, true))
	l.Push(favoriteAction("b", false, true))
	_, ok, err := l.Undo(ctx, applier)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, l.State().RedoDepth)

	l.Push(favoriteAction("c", false, true))
	assert.Empty(t, l.RedoStack())
	assert.Equal(t, 2, l.State().UndoDepth)
}

func TestUndoOnEmptyIsNoop(t *testing.T) {
	l := NewLedger(DefaultCapacity)
	applier := &itemApplier{items: map[string]domain.Item{}}

	_, ok, err := l.Undo(context.Background(), applier)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, applier.calls)
	assert.Equal(t, State{}, l.State())

	_, ok, err = l.Redo(context.Background(), applier)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUndoRedoFavorite(t *testing.T) {
	l := NewLedger(DefaultCapacity)
	applier := &itemApplier{items: map[string]domain.Item{"x": {ID: "x", IsFavorite: true}}}
	ctx := context.Background()
	pushed := favoriteAction("x", false, true)
	l.Push(pushed)

	got, ok, err := l.Undo(ctx, applier)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", got.EntityID)
	assert.False(t, applier.items["x"].IsFavorite)
	require.Len(t, l.RedoStack(), 1)
	assert.Equal(t, "x", l.RedoStack()[0].EntityID)

	_, ok, err = l.Redo(ctx, applier)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, applier.items["x"].IsFavorite)
	assert.Empty(t, l.RedoStack())
	assert.Len(t, l.UndoStack(), 1)
}

func TestFailedUndoKeepsAction(t *testing.T) {
	l := NewLedger(DefaultCapacity)
	applier := &itemApplier{items: map[string]domain.Item{}, err: errors.New("offline")}
	l.Push(favoriteAction("x", false, true))

	_, ok, err := l.Undo(context.Background(), applier)
	assert.True(t, ok)
	assert.EqualError(t, err, "offline")
	assert.Len(t, l.UndoStack(), 1)
	assert.Empty(t, l.RedoStack())
}

func TestToast(t *testing.T) {
	l := NewLedger(3)
	assert.False(t, l.State().ToastVisible)

	l.Push(favoriteAction("x", false, true))
	s := l.State()
	assert.True(t, s.ToastVisible)
	require.NotNil(t, s.LastAction)
	assert.Equal(t, "x", s.LastAction.EntityID)

	l.DismissToast()
	assert.False(t, l.State().ToastVisible)

	l.Clear()
	assert.Equal(t, State{}, l.State())
}

// gatedApplier signals entered, then blocks until release and returns err.
type gatedApplier struct {
	entered chan struct{}
	release chan struct{}
	err     error
}

func (a *gatedApplier) Restore(context.Context, domain.Snapshot, domain.Snapshot) error {
	close(a.entered)
	<-a.release
	return a.err
}

func newGatedApplier(err error) *gatedApplier {
	return &gatedApplier{entered: make(chan struct{}), release: make(chan struct{}), err: err}
}

func TestPushDuringFailedRedoDropsRedo(t *testing.T) {
	l := NewLedger(DefaultCapacity)
	plain := &itemApplier{items: map[string]domain.Item{}}
	l.Push(favoriteAction("x", false, true))
	_, _, err := l.Undo(context.Background(), plain)
	require.NoError(t, err)
	require.Len(t, l.RedoStack(), 1)

	applier := newGatedApplier(errors.New("offline"))
	done := make(chan error)
	go func() {
		_, _, err := l.Redo(context.Background(), applier)
		done <- err
	}()
	<-applier.entered
	l.Push(favoriteAction("y", false, true))
	close(applier.release)

	assert.EqualError(t, <-done, "offline")
	assert.Empty(t, l.RedoStack())
	stack := l.UndoStack()
	require.Len(t, stack, 1)
	assert.Equal(t, "y", stack[0].EntityID)
}

func TestPushDuringUndoDropsRedo(t *testing.T) {
	l := NewLedger(DefaultCapacity)
	l.Push(favoriteAction("x", false, true))

	applier := newGatedApplier(nil)
	done := make(chan error)
	go func() {
		_, _, err := l.Undo(context.Background(), applier)
		done <- err
	}()
	<-applier.entered
	l.Push(favoriteAction("y", false, true))
	close(applier.release)

	require.NoError(t, <-done)
	assert.Empty(t, l.RedoStack())
	stack := l.UndoStack()
	require.Len(t, stack, 1)
	assert.Equal(t, "y", stack[0].EntityID)
}

func TestFailedUndoAfterClearStaysCleared(t *testing.T) {
	l := NewLedger(DefaultCapacity)
	l.Push(favoriteAction("x", false, true))

	applier := newGatedApplier(errors.New("offline"))
	done := make(chan error)
	go func() {
		_, _, err := l.Undo(context.Background(), applier)
		done <- err
	}()
	<-applier.entered
	l.Clear()
	close(applier.release)

	assert.Error(t, <-done)
	assert.Equal(t, State{}, l.State())
}
