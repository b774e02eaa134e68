package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
)

// ErrNoSnapshot is returned when undoing an entry needs a stored state that
// the entry does not carry.
var ErrNoSnapshot = errors.New("history entry has no snapshot to restore")

type entityWriter interface {
	Update(ctx context.Context, t domain.EntityType, id string, values remote.Record) (domain.Snapshot, error)
	SetArchived(ctx context.Context, t domain.EntityType, id string, archived bool) (domain.Snapshot, error)
	Restore(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error)
	Delete(ctx context.Context, t domain.EntityType, id string) error
	SetItemLocations(ctx context.Context, itemID string, locs []domain.ItemLocation) error
	SetItemTags(ctx context.Context, itemID string, tagIDs []string) error
}

// Undoer reverts a recorded change and marks its history row undone.
type Undoer struct {
	log    historyLog
	writer entityWriter
	logger *slog.Logger
	now    func() time.Time
}

func NewUndoer(log historyLog, writer entityWriter, logger *slog.Logger) *Undoer {
	return &Undoer{log: log, writer: writer, logger: logger, now: time.Now}
}

// Undo reverts the change recorded under historyID. Undoing an entry that
// is already undone does nothing. The returned row reflects the undo.
func (u *Undoer) Undo(ctx context.Context, historyID string) (*domain.ChangeHistory, error) {
	by, err := auth.CurrentUserID(ctx)
	if err != nil {
		return nil, &auth.NotAuthenticatedError{Op: "undo change"}
	}
	h, err := u.log.Get(ctx, historyID)
	if err != nil {
		return nil, err
	}
	if h.IsUndone {
		return h, nil
	}

	if err := u.revert(ctx, h); err != nil {
		return nil, fmt.Errorf("failed to undo %s of %s %s: %w", h.Action, h.EntityType, h.EntityID, err)
	}

	at := u.now().UTC()
	marked, err := u.log.MarkUndone(ctx, h.ID, by, at)
	if err != nil {
		return nil, fmt.Errorf("failed to mark history undone: %w", err)
	}
	if !marked {
		u.logger.Warn("history entry was undone concurrently", "history_id", h.ID)
		return u.log.Get(ctx, h.ID)
	}
	h.IsUndone = true
	h.UndoneBy = &by
	h.UndoneAt = &at
	u.logger.Info("change undone", "history_id", h.ID, "entity_type", h.EntityType, "entity_id", h.EntityID, "action", h.Action)
	return h, nil
}

func (u *Undoer) revert(ctx context.Context, h *domain.ChangeHistory) error {
	t := h.EntityType
	switch h.Action {
	case domain.ActionUpdate:
		if t == domain.EntityItem && h.FieldName != nil && h.OldValue != nil {
			switch *h.FieldName {
			case domain.FieldLocations, domain.FieldTags:
				return u.revertLinks(ctx, h)
			}
		}
		if h.FieldName != nil && h.OldValue != nil {
			var v any
			if err := json.Unmarshal([]byte(*h.OldValue), &v); err != nil {
				return fmt.Errorf("failed to decode old value: %w", err)
			}
			_, err := u.writer.Update(ctx, t, h.EntityID, remote.Record{*h.FieldName: v})
			return err
		}
		if !h.OldSnapshot.Valid() {
			return ErrNoSnapshot
		}
		_, err := u.writer.Restore(ctx, h.OldSnapshot.Snapshot)
		return err

	case domain.ActionDelete:
		if t.Archivable() {
			_, err := u.writer.SetArchived(ctx, t, h.EntityID, false)
			return err
		}
		if !h.OldSnapshot.Valid() {
			return ErrNoSnapshot
		}
		_, err := u.writer.Restore(ctx, h.OldSnapshot.Snapshot)
		return err

	case domain.ActionCreate, domain.ActionRestore:
		if t.Archivable() {
			_, err := u.writer.SetArchived(ctx, t, h.EntityID, true)
			return err
		}
		return u.writer.Delete(ctx, t, h.EntityID)
	}
	return fmt.Errorf("unknown history action %q", h.Action)
}

// revertLinks puts back the locations or tags an item had before the change.
func (u *Undoer) revertLinks(ctx context.Context, h *domain.ChangeHistory) error {
	if *h.FieldName == domain.FieldLocations {
		var locs []domain.ItemLocation
		if err := json.Unmarshal([]byte(*h.OldValue), &locs); err != nil {
			return fmt.Errorf("failed to decode old locations: %w", err)
		}
		return u.writer.SetItemLocations(ctx, h.EntityID, locs)
	}
	var tagIDs []string
	if err := json.Unmarshal([]byte(*h.OldValue), &tagIDs); err != nil {
		return fmt.Errorf("failed to decode old tags: %w", err)
	}
	return u.writer.SetItemTags(ctx, h.EntityID, tagIDs)
}
