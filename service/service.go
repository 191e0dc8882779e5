package service

import (
	"context"
	"errors"
	"fmt"

	"task-collab/common"
	"task-collab/notify"
	"task-collab/storage"
)

// Events is the dispatcher contract the mutation services depend on. Record
// runs inside the write transaction; Publish runs only after commit and has
// no result the caller could fail on.
type Events interface {
	Record(ctx context.Context, store storage.NotificationStore, ev notify.MutationEvent) ([]notify.Push, error)
	Publish(pushes ...notify.Push)
}

// requireUser maps a missing user to errMissing and keeps store failures as
// they are.
func requireUser(ctx context.Context, users storage.UserStore, id string, errMissing error) error {
	_, err := users.FindUserByID(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("user %s: %w", id, errMissing)
	}
	return err
}
