package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"task-collab/common"
	"task-collab/entity"
	"task-collab/storage"
)

type NotificationList struct {
	Notifications []entity.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

type NotificationService struct {
	store storage.NotificationStore
	log   *zap.Logger
}

func NewNotificationService(store storage.NotificationStore, logger *zap.Logger) *NotificationService {
	return &NotificationService{store: store, log: logger}
}

// List returns the user's notifications newest first with the unread count.
func (s *NotificationService) List(ctx context.Context, userID string) (NotificationList, error) {
	items, err := s.store.FindNotificationsByUser(ctx, userID)
	if err != nil {
		return NotificationList{}, err
	}
	list := NotificationList{Notifications: items}
	for _, n := range items {
		if !n.Read {
			list.UnreadCount++
		}
	}
	return list, nil
}

// MarkRead sets the read flag on a notification owned by userID. Marking an
// already read notification succeeds with no change.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) (entity.Notification, error) {
	n, err := s.store.FindNotificationByID(ctx, id)
	if err != nil {
		return entity.Notification{}, err
	}
	if n.UserID != userID {
		return entity.Notification{}, fmt.Errorf("notification %s: %w", id, common.ErrForbidden)
	}
	if n.Read {
		return n, nil
	}
	if err := s.store.MarkNotificationRead(ctx, id); err != nil {
		return entity.Notification{}, err
	}
	n.Read = true
	return n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.log.Debug("notifications marked read", zap.String("userId", userID), zap.Int64("count", n))
	return n, nil
}
