package repository

import (
	"context"
	"fmt"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/validate"
)

type Notifications struct {
	base
}

func NewNotifications(store remote.Store, opts ...Option) *Notifications {
	return &Notifications{base: newBase(store, opts...)}
}

// ListForUser returns the user's notifications newest first, hiding expired
// ones.
func (r *Notifications) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	filters := []remote.Filter{remote.Eq("user_id", userID)}
	if unreadOnly {
		filters = append(filters, remote.Eq("is_read", false))
	}
	var rows []domain.Notification
	q := remote.Where(filters...).OrderBy(remote.Desc("created_at"), remote.Desc("id"))
	if err := r.store.Select(ctx, remote.TableNotifications, q, &rows); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	now := r.timestamp()
	out := rows[:0]
	for _, n := range rows {
		if !n.Expired(now) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *Notifications) Create(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	if n.ID == "" {
		n.ID = newID()
	}
	if n.UserID == "" {
		return nil, validate.FieldError("user_id", "is required")
	}
	if err := validate.Struct(n); err != nil {
		return nil, err
	}
	n.IsRead = false
	n.CreatedAt = r.timestamp()
	if err := r.store.Insert(ctx, remote.TableNotifications, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return &n, nil
}

func (r *Notifications) MarkRead(ctx context.Context, userID, id string) error {
	n, err := r.store.Update(ctx, remote.TableNotifications, remote.Record{"is_read": true},
		remote.Eq("id", id), remote.Eq("user_id", userID))
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "notification", ID: id}
	}
	return nil
}

func (r *Notifications) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := r.store.Update(ctx, remote.TableNotifications, remote.Record{"is_read": true},
		remote.Eq("user_id", userID), remote.Eq("is_read", false))
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}

func (r *Notifications) UnreadCount(ctx context.Context, userID string) (int, error) {
	unread, err := r.ListForUser(ctx, userID, true)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

func (r *Notifications) Delete(ctx context.Context, userID, id string) error {
	n, err := r.store.Delete(ctx, remote.TableNotifications, remote.Eq("id", id), remote.Eq("user_id", userID))
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "notification", ID: id}
	}
	return nil
}

// PurgeExpired deletes every expired notification.
func (r *Notifications) PurgeExpired(ctx context.Context) (int64, error) {
	var rows []domain.Notification
	if err := r.store.Select(ctx, remote.TableNotifications, remote.Where(remote.NotNull("expires_at")), &rows); err != nil {
		return 0, fmt.Errorf("failed to list expiring notifications: %w", err)
	}
	now := r.timestamp()
	var expired []string
	for _, n := range rows {
		if n.Expired(now) {
			expired = append(expired, n.ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	n, err := r.store.Delete(ctx, remote.TableNotifications, remote.In("id", expired))
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	return n, nil
}
