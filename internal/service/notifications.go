package service

import (
	"context"
	"fmt"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/domain"
)

// notifyLowStock raises a notification when an item update moves it into
// low or out of stock. Failures are logged.
func (s *InventoryService) notifyLowStock(ctx context.Context, before, after domain.Snapshot) {
	prev, ok := before.(domain.ItemSnapshot)
	if !ok {
		return
	}
	next, ok := after.(domain.ItemSnapshot)
	if !ok || prev.Item.Status == next.Item.Status || !next.Item.Status.NeedsRestock() {
		return
	}
	if prev.Item.Status.NeedsRestock() && next.Item.Status != domain.StatusOutOfStock {
		return
	}
	userID, err := auth.CurrentUserID(ctx)
	if err != nil {
		return
	}

	title := fmt.Sprintf("%s is running low", next.Item.Name)
	if next.Item.Status == domain.StatusOutOfStock {
		title = fmt.Sprintf("%s is out of stock", next.Item.Name)
	}
	expires := s.now().UTC().Add(lowStockTTL)
	itemID := next.Item.ID
	_, err = s.repos.Notifications.Create(ctx, domain.Notification{
		UserID:    userID,
		Type:      "low_stock",
		Title:     title,
		Message:   fmt.Sprintf("%d %s left", next.Item.Quantity, next.Item.Unit),
		ItemID:    &itemID,
		ExpiresAt: &expires,
	})
	if err != nil {
		s.logger.Error("failed to create low stock notification", "item_id", itemID, "error", err)
		return
	}
	s.logger.Info("low stock notification created", "item_id", itemID, "status", next.Item.Status)
}

func (s *InventoryService) Notifications(ctx context.Context, unreadOnly bool) ([]domain.Notification, error) {
	userID, err := s.userID(ctx, "list notifications")
	if err != nil {
		return nil, err
	}
	return s.repos.Notifications.ListForUser(ctx, userID, unreadOnly)
}

func (s *InventoryService) UnreadNotifications(ctx context.Context) (int, error) {
	userID, err := s.userID(ctx, "count notifications")
	if err != nil {
		return 0, err
	}
	return s.repos.Notifications.UnreadCount(ctx, userID)
}

func (s *InventoryService) MarkNotificationRead(ctx context.Context, id string) error {
	userID, err := s.userID(ctx, "mark notification read")
	if err != nil {
		return err
	}
	return s.repos.Notifications.MarkRead(ctx, userID, id)
}

func (s *InventoryService) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	userID, err := s.userID(ctx, "mark notifications read")
	if err != nil {
		return 0, err
	}
	return s.repos.Notifications.MarkAllRead(ctx, userID)
}

func (s *InventoryService) DeleteNotification(ctx context.Context, id string) error {
	userID, err := s.userID(ctx, "delete notification")
	if err != nil {
		return err
	}
	return s.repos.Notifications.Delete(ctx, userID, id)
}

// PurgeExpiredNotifications deletes every expired notification.
func (s *InventoryService) PurgeExpiredNotifications(ctx context.Context) (int64, error) {
	n, err := s.repos.Notifications.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired notifications purged", "count", n)
	}
	return n, nil
}

func (s *InventoryService) userID(ctx context.Context, op string) (string, error) {
	id, err := auth.CurrentUserID(ctx)
	if err != nil {
		return "", &auth.NotAuthenticatedError{Op: op}
	}
	return id, nil
}
