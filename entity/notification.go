package entity

import (
	"fmt"
	"time"
)

type NotificationType string

const TypeTaskAssigned NotificationType = "TASK_ASSIGNED"

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	TaskID    string           `json:"taskId"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

func AssignedMessage(title string) string {
	return fmt.Sprintf("You have been assigned a new task: \"%s\"", title)
}
