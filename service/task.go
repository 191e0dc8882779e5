package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"task-collab/cache"
	"task-collab/common"
	"task-collab/entity"
	"task-collab/notify"
	"task-collab/storage"
)

const maxTitleLen = 100

type TaskInput struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	DueDate      time.Time       `json:"dueDate"`
	Priority     entity.Priority `json:"priority"`
	Status       entity.Status   `json:"status"`
	AssignedToID *string         `json:"assignedToId"`
}

// TaskPatch is a partial update. Omitted members are left untouched; an
// explicit null clears description and assignedToId and is rejected for
// the required fields.
type TaskPatch struct {
	Title        entity.Field[string]          `json:"title"`
	Description  entity.Field[string]          `json:"description"`
	DueDate      entity.Field[time.Time]       `json:"dueDate"`
	Priority     entity.Field[entity.Priority] `json:"priority"`
	Status       entity.Field[entity.Status]   `json:"status"`
	AssignedToID entity.Field[string]          `json:"assignedToId"`
}

type ListQuery struct {
	Status   entity.Status
	Priority entity.Priority
	Sort     storage.TaskSort
	Asc      bool
}

type Dashboard struct {
	AssignedToMe []entity.Task `json:"assignedToMe"`
	CreatedByMe  []entity.Task `json:"createdByMe"`
	Overdue      []entity.Task `json:"overdue"`
}

type TaskService struct {
	store  storage.Store
	events Events
	cache  *cache.Cache
	log    *zap.Logger

	newID func() string
	now   func() time.Time
}

func NewTaskService(store storage.Store, events Events, c *cache.Cache, logger *zap.Logger) *TaskService {
	return &TaskService{
		store:  store,
		events: events,
		cache:  c,
		log:    logger,
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func validTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", common.NewValidationError("title", "is required")
	}
	if len([]rune(title)) > maxTitleLen {
		return "", common.NewValidationError("title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	}
	return title, nil
}

func normalizeInput(in TaskInput) (TaskInput, error) {
	var err error
	if in.Title, err = validTitle(in.Title); err != nil {
		return in, err
	}
	if in.DueDate.IsZero() {
		return in, common.NewValidationError("dueDate", "is required")
	}
	if in.Priority, err = entity.ParsePriority(string(in.Priority)); err != nil {
		return in, common.NewValidationError("priority", err.Error())
	}
	if in.Status == "" {
		in.Status = entity.StatusTodo
	} else if in.Status, err = entity.ParseStatus(string(in.Status)); err != nil {
		return in, common.NewValidationError("status", err.Error())
	}
	if in.AssignedToID != nil && strings.TrimSpace(*in.AssignedToID) == "" {
		in.AssignedToID = nil
	}
	return in, nil
}

// CreateTask persists a task owned by creatorID. When it is assigned to
// someone other than the creator, the assignee's notification row is written
// in the same transaction and pushed after commit.
func (s *TaskService) CreateTask(ctx context.Context, in TaskInput, creatorID string) (entity.Task, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return entity.Task{}, err
	}
	task := entity.Task{
		ID:           s.newID(),
		Title:        in.Title,
		Description:  in.Description,
		DueDate:      in.DueDate.UTC(),
		Priority:     in.Priority,
		Status:       in.Status,
		CreatorID:    creatorID,
		AssignedToID: in.AssignedToID,
		CreatedAt:    s.now(),
	}

	var pushes []notify.Push
	err = s.store.WithTx(ctx, func(tx storage.Store) error {
		if a := task.Assignee(); a != "" {
			if err := requireUser(ctx, tx, a, common.ErrAssignedUserNotFound); err != nil {
				return err
			}
		}
		if err := tx.CreateTask(ctx, &task); err != nil {
			return err
		}
		if a := task.Assignee(); a != "" && a != creatorID {
			p, err := s.events.Record(ctx, tx, notify.MutationEvent{Kind: notify.Assigned, Task: task, Recipient: a})
			if err != nil {
				return err
			}
			pushes = append(pushes, p...)
		}
		return nil
	})
	if err != nil {
		return entity.Task{}, err
	}

	s.log.Info("task created", zap.String("taskId", task.ID), zap.String("creatorId", creatorID), zap.String("assignedToId", task.Assignee()))
	s.events.Publish(pushes...)
	return task, nil
}

// apply validates p and writes its present members onto t.
func (p TaskPatch) apply(t *entity.Task) error {
	if p.Title.Set {
		if p.Title.Null {
			return common.NewValidationError("title", "cannot be null")
		}
		title, err := validTitle(p.Title.Value)
		if err != nil {
			return err
		}
		t.Title = title
	}
	if p.Description.Set {
		t.Description = p.Description.Value
	}
	if p.DueDate.Set {
		if p.DueDate.Null || p.DueDate.Value.IsZero() {
			return common.NewValidationError("dueDate", "cannot be cleared")
		}
		t.DueDate = p.DueDate.Value.UTC()
	}
	if p.Priority.Set {
		if p.Priority.Null {
			return common.NewValidationError("priority", "cannot be null")
		}
		pr, err := entity.ParsePriority(string(p.Priority.Value))
		if err != nil {
			return common.NewValidationError("priority", err.Error())
		}
		t.Priority = pr
	}
	if p.Status.Set {
		if p.Status.Null {
			return common.NewValidationError("status", "cannot be null")
		}
		st, err := entity.ParseStatus(string(p.Status.Value))
		if err != nil {
			return common.NewValidationError("status", err.Error())
		}
		t.Status = st
	}
	if p.AssignedToID.Set {
		if id := strings.TrimSpace(p.AssignedToID.Value); p.AssignedToID.Null || id == "" {
			t.AssignedToID = nil
		} else {
			t.AssignedToID = &id
		}
	}
	return nil
}

// UpdateTask applies patch for the task's creator or current assignee. Every
// successful update broadcasts a task-updated snapshot; a change of assignee
// to a user other than the creator also notifies that user.
//
// Concurrent updates are not versioned: the last committed write wins.
func (s *TaskService) UpdateTask(ctx context.Context, taskID string, patch TaskPatch, requesterID string) (entity.Task, error) {
	var (
		task   entity.Task
		pushes []notify.Push
	)
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		var err error
		if task, err = tx.FindTaskByID(ctx, taskID); err != nil {
			return err
		}
		if !task.IsParticipant(requesterID) {
			return fmt.Errorf("task %s: %w", taskID, common.ErrForbidden)
		}
		previous := task.Assignee()
		if err := patch.apply(&task); err != nil {
			return err
		}
		assignee := task.Assignee()
		if assignee != "" && assignee != previous {
			if err := requireUser(ctx, tx, assignee, common.ErrAssignedUserNotFound); err != nil {
				return err
			}
		}
		if err := tx.UpdateTask(ctx, &task); err != nil {
			return err
		}

		p, err := s.events.Record(ctx, tx, notify.MutationEvent{Kind: notify.Updated, Task: task, PreviousAssignee: previous})
		if err != nil {
			return err
		}
		pushes = append(pushes, p...)
		if assignee != "" && assignee != previous && assignee != task.CreatorID {
			p, err := s.events.Record(ctx, tx, notify.MutationEvent{Kind: notify.Assigned, Task: task, Recipient: assignee})
			if err != nil {
				return err
			}
			pushes = append(pushes, p...)
		}
		return nil
	})
	if err != nil {
		return entity.Task{}, err
	}

	s.cache.SetTask(ctx, task)
	s.events.Publish(pushes...)
	return task, nil
}

// DeleteTask removes a task and, first, every notification referencing it.
// Only the creator may delete.
func (s *TaskService) DeleteTask(ctx context.Context, taskID, requesterID string) error {
	var pushes []notify.Push
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		task, err := tx.FindTaskByID(ctx, taskID)
		if err != nil {
			return err
		}
		if task.CreatorID != requesterID {
			return fmt.Errorf("task %s: %w", taskID, common.ErrForbidden)
		}
		removed, err := tx.DeleteNotificationsByTask(ctx, taskID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, taskID); err != nil {
			return err
		}
		s.log.Debug("task notifications removed", zap.String("taskId", taskID), zap.Int64("count", removed))
		pushes, err = s.events.Record(ctx, tx, notify.MutationEvent{Kind: notify.Deleted, Task: task})
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info("task deleted", zap.String("taskId", taskID), zap.String("creatorId", requesterID))
	s.cache.InvalidateTask(ctx, taskID)
	s.events.Publish(pushes...)
	return nil
}

// GetTask returns a task visible to requesterID, reading through the cache.
func (s *TaskService) GetTask(ctx context.Context, taskID, requesterID string) (entity.Task, error) {
	task, ok := s.cache.GetTask(ctx, taskID)
	if !ok {
		var err error
		if task, err = s.store.FindTaskByID(ctx, taskID); err != nil {
			return entity.Task{}, err
		}
		s.cache.SetTask(ctx, task)
	}
	if !task.IsParticipant(requesterID) {
		return entity.Task{}, fmt.Errorf("task %s: %w", taskID, common.ErrForbidden)
	}
	return task, nil
}

// ListTasks returns the tasks userID created or is assigned to.
func (s *TaskService) ListTasks(ctx context.Context, userID string, q ListQuery) ([]entity.Task, error) {
	return s.store.FindTasks(ctx, storage.TaskFilter{
		ParticipantID: userID,
		Status:        q.Status,
		Priority:      q.Priority,
		Sort:          q.Sort,
		Asc:           q.Asc,
	})
}

// Overdue returns the user's tasks past their due date and not completed,
// soonest due first.
func (s *TaskService) Overdue(ctx context.Context, userID string) ([]entity.Task, error) {
	now := s.now()
	return s.store.FindTasks(ctx, storage.TaskFilter{
		ParticipantID: userID,
		DueBefore:     &now,
		NotStatus:     entity.StatusCompleted,
		Sort:          storage.SortDueDate,
		Asc:           true,
	})
}

func (s *TaskService) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	var (
		d   Dashboard
		err error
	)
	if d.AssignedToMe, err = s.store.FindTasks(ctx, storage.TaskFilter{AssignedToID: userID}); err != nil {
		return Dashboard{}, err
	}
	if d.CreatedByMe, err = s.store.FindTasks(ctx, storage.TaskFilter{CreatorID: userID}); err != nil {
		return Dashboard{}, err
	}
	if d.Overdue, err = s.Overdue(ctx, userID); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
