package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"task-collab/common"
	"task-collab/entity"
	"task-collab/storage"
)

type taskRow struct {
	ID           string         `db:"id"`
	Title        string         `db:"title"`
	Description  string         `db:"description"`
	DueDate      int64          `db:"due_date"`
	Priority     string         `db:"priority"`
	Status       string         `db:"status"`
	CreatorID    string         `db:"creator_id"`
	AssignedToID sql.NullString `db:"assigned_to_id"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
}

func (r taskRow) toEntity() entity.Task {
	t := entity.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		DueDate:     fromMillis(r.DueDate),
		Priority:    entity.Priority(r.Priority),
		Status:      entity.Status(r.Status),
		CreatorID:   r.CreatorID,
		CreatedAt:   fromMillis(r.CreatedAt),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}
	if r.AssignedToID.Valid {
		id := r.AssignedToID.String
		t.AssignedToID = &id
	}
	return t
}

var taskColumns = []string{
	"id", "title", "description", "due_date", "priority", "status",
	"creator_id", "assigned_to_id", "created_at", "updated_at",
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (s *Store) FindTaskByID(ctx context.Context, id string) (entity.Task, error) {
	query, args, err := sq.Select(taskColumns...).From("tasks").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return entity.Task{}, common.StoreError("build query", err)
	}
	var row taskRow
	err = s.q.QueryRowxContext(ctx, query, args...).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Task{}, fmt.Errorf("task %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return entity.Task{}, common.StoreError("find task", err)
	}
	return row.toEntity(), nil
}

func (s *Store) FindTasks(ctx context.Context, f storage.TaskFilter) ([]entity.Task, error) {
	b := sq.Select(taskColumns...).From("tasks")
	if f.ParticipantID != "" {
		b = b.Where(sq.Or{sq.Eq{"creator_id": f.ParticipantID}, sq.Eq{"assigned_to_id": f.ParticipantID}})
	}
	if f.CreatorID != "" {
		b = b.Where(sq.Eq{"creator_id": f.CreatorID})
	}
	if f.AssignedToID != "" {
		b = b.Where(sq.Eq{"assigned_to_id": f.AssignedToID})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.NotStatus != "" {
		b = b.Where(sq.NotEq{"status": string(f.NotStatus)})
	}
	if f.Priority != "" {
		b = b.Where(sq.Eq{"priority": string(f.Priority)})
	}
	if f.DueBefore != nil {
		b = b.Where(sq.Lt{"due_date": toMillis(*f.DueBefore)})
	}

	column := "created_at"
	if f.Sort == storage.SortDueDate {
		column = "due_date"
	}
	direction := "DESC"
	if f.Asc {
		direction = "ASC"
	}
	b = b.OrderBy(column+" "+direction, "id "+direction)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, common.StoreError("build query", err)
	}
	rows := []taskRow{}
	if err := sqlxSelect(ctx, s, &rows, query, args...); err != nil {
		return nil, common.StoreError("find tasks", err)
	}
	tasks := make([]entity.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toEntity())
	}
	return tasks, nil
}

func (s *Store) CreateTask(ctx context.Context, t *entity.Task) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	query, args, err := sq.Insert("tasks").Columns(taskColumns...).Values(
		t.ID, t.Title, t.Description, toMillis(t.DueDate), string(t.Priority), string(t.Status),
		t.CreatorID, nullable(t.AssignedToID), toMillis(t.CreatedAt), toMillis(t.UpdatedAt),
	).ToSql()
	if err != nil {
		return common.StoreError("build query", err)
	}
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return common.StoreError("create task", err)
	}
	return nil
}

// UpdateTask writes every mutable column; creator_id is never updated.
// updated_at moves forward by at least a millisecond from the loaded value so
// it can order cached copies of the row.
func (s *Store) UpdateTask(ctx context.Context, t *entity.Task) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Millisecond)
	}
	t.UpdatedAt = now
	query, args, err := sq.Update("tasks").SetMap(map[string]interface{}{
		"title":          t.Title,
		"description":    t.Description,
		"due_date":       toMillis(t.DueDate),
		"priority":       string(t.Priority),
		"status":         string(t.Status),
		"assigned_to_id": nullable(t.AssignedToID),
		"updated_at":     toMillis(t.UpdatedAt),
	}).Where(sq.Eq{"id": t.ID}).ToSql()
	if err != nil {
		return common.StoreError("build query", err)
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return common.StoreError("update task", err)
	}
	return expectAffected(res, "task "+t.ID)
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return common.StoreError("delete task", err)
	}
	return expectAffected(res, "task "+id)
}
