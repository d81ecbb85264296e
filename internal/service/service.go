// Package service implements the conversation directory, message channel and presence tracker.
package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/pkg/errcode"
)

// Notifier receives change notifications after successful writes
type Notifier interface {
	Publish(ctx context.Context, change entity.Change)
}

// ReplyTrigger is handed every persisted message and decides on its own whether to answer.
// Implementations must not block the caller.
type ReplyTrigger interface {
	TriggerAIResponse(ctx context.Context, conv *entity.Conversation, msg *entity.Message)
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, entity.Change) {}

// storeErr keeps business errors as they are and wraps everything else as a store failure
func storeErr(err error) error {
	var e *errcode.Error
	if errors.As(err, &e) {
		return e
	}
	return errcode.ErrStoreUnavailable.Wrap(err)
}
