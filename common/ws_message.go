package common

import (
	"encoding/json"

	"task-collab/entity"
)

const (
	EventTaskAssigned = "task-assigned"
	EventTaskUpdated  = "task-updated"
	EventTaskDeleted  = "task-deleted"
)

// Event is a server to client push. The set of implementations is closed:
// TaskAssigned, TaskUpdated and TaskDeleted.
type Event interface {
	EventName() string
	payload() interface{}
}

type TaskAssigned struct {
	Notification entity.Notification
}

func (TaskAssigned) EventName() string      { return EventTaskAssigned }
func (e TaskAssigned) payload() interface{} { return e.Notification }

type TaskUpdated struct {
	Summary entity.TaskSummary
}

func (TaskUpdated) EventName() string      { return EventTaskUpdated }
func (e TaskUpdated) payload() interface{} { return e.Summary }

type TaskDeleted struct {
	TaskID string `json:"taskId"`
}

func (TaskDeleted) EventName() string      { return EventTaskDeleted }
func (e TaskDeleted) payload() interface{} { return e }

// WSMessage is the wire frame of every push.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func EncodeEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev.payload())
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Event: ev.EventName(), Data: data})
}
