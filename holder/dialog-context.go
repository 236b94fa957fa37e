package holder

import (
	"log/slog"

	"Genie/lib/sl"
	"Genie/storage"
)

type Message = storage.Message

type DialogContext = storage.DialogContext

// ContextManager wraps a ContextStorage. History is best effort: storage
// errors are logged and never fail a chat reply.
type ContextManager struct {
	storage storage.ContextStorage
	log     *slog.Logger
}

func NewContextManager(store storage.ContextStorage, log *slog.Logger) *ContextManager {
	return &ContextManager{
		storage: store,
		log:     log.With(sl.Module("context")),
	}
}

func (cm *ContextManager) GetUserContext(userId int64) *DialogContext {
	ctx, err := cm.storage.GetUserContext(userId)
	if err != nil {
		cm.log.With(sl.User(userId)).Error("getting user context", sl.Err(err))
		return nil
	}
	return ctx
}

func (cm *ContextManager) UpdateUserContext(userId int64, message Message) {
	if err := cm.storage.UpdateUserContext(userId, message); err != nil {
		cm.log.With(sl.User(userId)).Error("updating user context", sl.Err(err))
	}
}

func (cm *ContextManager) SetTopic(userId int64, topic string) {
	if err := cm.storage.SetTopic(userId, topic); err != nil {
		cm.log.With(sl.User(userId)).Error("setting topic", sl.Err(err))
	}
}

func (cm *ContextManager) ClearUserContext(userId int64) {
	if err := cm.storage.ClearUserContext(userId); err != nil {
		cm.log.With(sl.User(userId)).Error("clearing user context", sl.Err(err))
	}
}

func (cm *ContextManager) Close() error {
	return cm.storage.Close()
}
