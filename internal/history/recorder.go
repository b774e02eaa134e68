// Package history records entity mutations in the change history and undoes
// them by history id.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/repository"
)

type historyLog interface {
	Append(ctx context.Context, h domain.ChangeHistory) (*domain.ChangeHistory, error)
	Get(ctx context.Context, id string) (*domain.ChangeHistory, error)
	MarkUndone(ctx context.Context, id, by string, at time.Time) (bool, error)
}

// Mutation describes one entity write. Before is nil for a create; After is
// nil for a hard delete.
type Mutation struct {
	Type   domain.EntityType
	ID     string
	Action domain.Action
	Before domain.Snapshot
	After  domain.Snapshot

	// Field names a change kept outside the snapshot, such as an item's
	// locations or tags. Old and New hold its values.
	Field string
	Old   any
	New   any
}

// Recorder appends a ChangeHistory row for every write that goes through it.
type Recorder struct {
	log    historyLog
	logger *slog.Logger
}

func NewRecorder(log historyLog, logger *slog.Logger) *Recorder {
	return &Recorder{log: log, logger: logger}
}

// Apply runs write and records the mutation it made. The write's error is
// returned untouched and nothing is recorded for a failed write.
func (r *Recorder) Apply(ctx context.Context, m Mutation, write func(context.Context) (domain.Snapshot, error)) (domain.Snapshot, error) {
	after, err := write(ctx)
	if err != nil {
		return nil, err
	}
	m.After = after
	if m.ID == "" && after != nil {
		m.ID = after.EntityID()
	}
	r.Record(ctx, m)
	return after, nil
}

// Record appends the history row for m. A failure to record is logged and
// does not fail the mutation.
func (r *Recorder) Record(ctx context.Context, m Mutation) *domain.ChangeHistory {
	entry, err := Entry(m)
	if err != nil {
		r.logger.Error("failed to build history entry", "entity_type", m.Type, "entity_id", m.ID, "error", err)
		return nil
	}
	if id, err := auth.CurrentUserID(ctx); err == nil {
		entry.ChangedBy = &id
	}
	saved, err := r.log.Append(ctx, entry)
	if err != nil {
		r.logger.Error("failed to record history", "entity_type", m.Type, "entity_id", m.ID, "action", m.Action, "error", err)
		return nil
	}
	r.logger.Debug("history recorded", "history_id", saved.ID, "entity_type", m.Type, "entity_id", m.ID, "action", m.Action)
	return saved
}

// Entry builds the history row for m. An update that changed one editable
// field records that field with its old and new values; a quantity change
// that also moved the derived status is recorded as a quantity change.
func Entry(m Mutation) (domain.ChangeHistory, error) {
	h := domain.ChangeHistory{
		EntityType:  m.Type,
		EntityID:    m.ID,
		Action:      m.Action,
		OldSnapshot: domain.SnapshotColumn{Snapshot: m.Before},
		NewSnapshot: domain.SnapshotColumn{Snapshot: m.After},
	}
	if m.Field != "" {
		oldValue, err := encodeValue(m.Old)
		if err != nil {
			return h, err
		}
		newValue, err := encodeValue(m.New)
		if err != nil {
			return h, err
		}
		setField(&h, m.Field, oldValue, newValue)
		return h, nil
	}
	if m.Action != domain.ActionUpdate || m.Before == nil || m.After == nil {
		return h, nil
	}

	field, err := changedField(m.Before, m.After)
	if err != nil || field == "" {
		return h, err
	}
	oldValue, err := fieldValue(m.Before, field)
	if err != nil {
		return h, err
	}
	newValue, err := fieldValue(m.After, field)
	if err != nil {
		return h, err
	}
	setField(&h, field, oldValue, newValue)
	return h, nil
}

func setField(h *domain.ChangeHistory, field, oldValue, newValue string) {
	h.FieldName = &field
	h.OldValue = &oldValue
	h.NewValue = &newValue
}

func encodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return string(b), nil
}

func changedField(before, after domain.Snapshot) (string, error) {
	changed, err := repository.Diff(before, after)
	if err != nil {
		return "", err
	}
	switch len(changed) {
	case 1:
		for k := range changed {
			return k, nil
		}
	case 2:
		_, q := changed["quantity"]
		_, s := changed["status"]
		if q && s {
			return "quantity", nil
		}
	}
	return "", nil
}

// fieldValue returns the JSON encoding of one column of the snapshot.
func fieldValue(s domain.Snapshot, field string) (string, error) {
	b, err := json.Marshal(domain.Entity(s))
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return "", fmt.Errorf("failed to decode snapshot: %w", err)
	}
	v, ok := fields[field]
	if !ok {
		return "", fmt.Errorf("snapshot has no field %q", field)
	}
	return string(v), nil
}
