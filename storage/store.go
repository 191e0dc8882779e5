package storage

import (
	"context"
	"time"

	"task-collab/entity"
)

type TaskSort string

const (
	SortCreatedAt TaskSort = "createdAt"
	SortDueDate   TaskSort = "dueDate"
)

// TaskFilter narrows FindTasks. Zero fields do not filter.
type TaskFilter struct {
	// ParticipantID matches tasks the user created or is assigned to.
	ParticipantID string
	CreatorID     string
	AssignedToID  string
	Status        entity.Status
	Priority      entity.Priority
	// DueBefore and NotStatus together express "overdue".
	DueBefore *time.Time
	NotStatus entity.Status

	Sort TaskSort
	Asc  bool
}

type UserStore interface {
	FindUserByID(ctx context.Context, id string) (entity.User, error)
	FindUserByEmail(ctx context.Context, email string) (entity.User, error)
	ListUsers(ctx context.Context) ([]entity.User, error)
	CreateUser(ctx context.Context, u *entity.User) error
	UpdateUser(ctx context.Context, u *entity.User) error
}

type TaskStore interface {
	FindTaskByID(ctx context.Context, id string) (entity.Task, error)
	FindTasks(ctx context.Context, f TaskFilter) ([]entity.Task, error)
	CreateTask(ctx context.Context, t *entity.Task) error
	UpdateTask(ctx context.Context, t *entity.Task) error
	DeleteTask(ctx context.Context, id string) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *entity.Notification) error
	FindNotificationByID(ctx context.Context, id string) (entity.Notification, error)
	// FindNotificationsByUser returns the user's notifications newest first.
	FindNotificationsByUser(ctx context.Context, userID string) ([]entity.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotificationsByTask(ctx context.Context, taskID string) (int64, error)
}

// Store is the transactional persistence collaborator. Lookups of missing
// rows return common.ErrNotFound; any other failure matches common.ErrStore.
type Store interface {
	UserStore
	TaskStore
	NotificationStore

	// WithTx runs fn against a store bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}
