package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"task-collab/common"
	"task-collab/config"
	"task-collab/entity"
	"task-collab/metrics"
	"task-collab/storage"
)

type Kind int

const (
	Assigned Kind = iota + 1
	Updated
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Assigned:
		return "assigned"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MutationEvent describes a task change that has been written but not yet
// pushed. For Deleted, Task is the row as it was before removal.
// PreviousAssignee is the assignee before an Updated change.
type MutationEvent struct {
	Kind             Kind
	Task             entity.Task
	Recipient        string
	PreviousAssignee string
}

// Push is one live message. An empty UserIDs means every admitted channel.
type Push struct {
	TaskID  string
	UserIDs []string
	Event   common.Event
}

// Dispatcher turns mutation events into notification rows and pushes.
// Delivery happens in two steps so that a push can only follow a committed
// write: Record runs inside the caller's transaction, Publish after commit.
type Dispatcher struct {
	pool  *WorkerPool
	scope string
	log   *zap.Logger

	newID func() string
	now   func() time.Time
}

func NewDispatcher(pool *WorkerPool, scope string, logger *zap.Logger) *Dispatcher {
	if scope == "" {
		scope = config.ScopeBroadcast
	}
	return &Dispatcher{
		pool:  pool,
		scope: scope,
		log:   logger,
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Record writes whatever durable state ev requires and returns the pushes to
// publish once the surrounding transaction commits. An error means nothing
// must be published.
func (d *Dispatcher) Record(ctx context.Context, store storage.NotificationStore, ev MutationEvent) ([]Push, error) {
	switch ev.Kind {
	case Assigned:
		n := entity.Notification{
			ID:        d.newID(),
			UserID:    ev.Recipient,
			TaskID:    ev.Task.ID,
			Type:      entity.TypeTaskAssigned,
			Message:   entity.AssignedMessage(ev.Task.Title),
			CreatedAt: d.now(),
		}
		if err := store.CreateNotification(ctx, &n); err != nil {
			return nil, err
		}
		return []Push{{TaskID: ev.Task.ID, UserIDs: []string{ev.Recipient}, Event: common.TaskAssigned{Notification: n}}}, nil
	case Updated:
		return []Push{{TaskID: ev.Task.ID, UserIDs: d.audience(ev.Task, ev.PreviousAssignee), Event: common.TaskUpdated{Summary: ev.Task.Summary()}}}, nil
	case Deleted:
		return []Push{{TaskID: ev.Task.ID, UserIDs: d.audience(ev.Task, ""), Event: common.TaskDeleted{TaskID: ev.Task.ID}}}, nil
	}
	return nil, fmt.Errorf("unknown mutation event %s", ev.Kind)
}

// audience is nil (everyone) in broadcast scope, otherwise the task's
// creator and assignee, plus a former assignee who just lost the task.
func (d *Dispatcher) audience(t entity.Task, previous string) []string {
	if d.scope != config.ScopeParticipants {
		return nil
	}
	users := []string{t.CreatorID}
	a := t.Assignee()
	if a != "" && a != t.CreatorID {
		users = append(users, a)
	}
	if previous != "" && previous != a && previous != t.CreatorID {
		users = append(users, previous)
	}
	return users
}

// Publish hands pushes to the delivery pool. It never blocks on delivery and
// has no failure the caller could observe. Only committed notifications reach
// here, so this is where they are counted.
func (d *Dispatcher) Publish(pushes ...Push) {
	for _, p := range pushes {
		if _, ok := p.Event.(common.TaskAssigned); ok {
			metrics.NotificationsCreated.Inc()
		}
		if !d.pool.Submit(p) {
			d.log.Warn("push dropped", zap.String("event", p.Event.EventName()), zap.String("taskId", p.TaskID))
		}
	}
}
