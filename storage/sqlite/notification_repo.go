package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"task-collab/common"
	"task-collab/entity"
)

type notificationRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	TaskID    string `db:"task_id"`
	Type      string `db:"type"`
	Message   string `db:"message"`
	Read      bool   `db:"read"`
	CreatedAt int64  `db:"created_at"`
}

func (r notificationRow) toEntity() entity.Notification {
	return entity.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		TaskID:    r.TaskID,
		Type:      entity.NotificationType(r.Type),
		Message:   r.Message,
		Read:      r.Read,
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

const notificationColumns = "id, user_id, task_id, type, message, read, created_at"

func (s *Store) CreateNotification(ctx context.Context, n *entity.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO notifications ("+notificationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		n.ID, n.UserID, n.TaskID, string(n.Type), n.Message, n.Read, toMillis(n.CreatedAt),
	)
	if err != nil {
		return common.StoreError("create notification", err)
	}
	return nil
}

func (s *Store) FindNotificationByID(ctx context.Context, id string) (entity.Notification, error) {
	var row notificationRow
	err := s.q.QueryRowxContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id,
	).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Notification{}, fmt.Errorf("notification %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return entity.Notification{}, common.StoreError("find notification", err)
	}
	return row.toEntity(), nil
}

func (s *Store) FindNotificationsByUser(ctx context.Context, userID string) ([]entity.Notification, error) {
	rows := []notificationRow{}
	err := sqlxSelect(ctx, s, &rows,
		"SELECT "+notificationColumns+" FROM notifications WHERE user_id = ? ORDER BY created_at DESC, rowid DESC",
		userID,
	)
	if err != nil {
		return nil, common.StoreError("find notifications", err)
	}
	out := make([]entity.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntity())
	}
	return out, nil
}

// MarkNotificationRead is idempotent: marking an already read row succeeds.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE id = ?", id)
	if err != nil {
		return common.StoreError("mark notification read", err)
	}
	return expectAffected(res, "notification "+id)
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.q.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0", userID)
	if err != nil {
		return 0, common.StoreError("mark all notifications read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, common.StoreError("rows affected", err)
	}
	return n, nil
}

func (s *Store) DeleteNotificationsByTask(ctx context.Context, taskID string) (int64, error) {
	res, err := s.q.ExecContext(ctx, "DELETE FROM notifications WHERE task_id = ?", taskID)
	if err != nil {
		return 0, common.StoreError("delete notifications", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, common.StoreError("rows affected", err)
	}
	return n, nil
}
