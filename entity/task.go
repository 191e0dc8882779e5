package entity

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("priority must be one of LOW, MEDIUM, HIGH, URGENT")
	}
	return p, nil
}

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReview     Status = "REVIEW"
	StatusCompleted  Status = "COMPLETED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusCompleted:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("status must be one of TODO, IN_PROGRESS, REVIEW, COMPLETED")
	}
	return st, nil
}

type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	DueDate      time.Time `json:"dueDate"`
	Priority     Priority  `json:"priority"`
	Status       Status    `json:"status"`
	CreatorID    string    `json:"creatorId"`
	AssignedToID *string   `json:"assignedToId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Assignee returns the assigned user id or "" when unassigned.
func (t Task) Assignee() string {
	if t.AssignedToID == nil {
		return ""
	}
	return *t.AssignedToID
}

// IsParticipant reports whether userID created or is assigned to the task.
func (t Task) IsParticipant(userID string) bool {
	return userID != "" && (t.CreatorID == userID || t.Assignee() == userID)
}

// Overdue holds when the due date has passed and the task is not completed.
func (t Task) Overdue(now time.Time) bool {
	return t.DueDate.Before(now) && t.Status != StatusCompleted
}

// TaskSummary is the lightweight snapshot carried by task-updated pushes.
type TaskSummary struct {
	TaskID       string   `json:"taskId"`
	Status       Status   `json:"status"`
	Priority     Priority `json:"priority"`
	AssignedToID *string  `json:"assignedToId"`
}

func (t Task) Summary() TaskSummary {
	return TaskSummary{
		TaskID:       t.ID,
		Status:       t.Status,
		Priority:     t.Priority,
		AssignedToID: t.AssignedToID,
	}
}
