package engine

import (
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"go.uber.org/zap"
)

// StateHandlerContainer runs the handler a definition names for a thread
// that reached FINISHED or FAIL.
type StateHandlerContainer struct {
	handlers map[definition.TerminalHandler]func(thread *model.ActivityThread) error
	storage  persistence.ThreadStorage
}

func NewStateHandlerContainer(storage persistence.ThreadStorage) *StateHandlerContainer {
	hd := &StateHandlerContainer{
		storage:  storage,
		handlers: make(map[definition.TerminalHandler]func(thread *model.ActivityThread) error, 2),
	}
	hd.handlers[definition.DELETE] = hd.delete
	hd.handlers[definition.NOOP] = hd.noop
	return hd
}

func (s *StateHandlerContainer) GetHandler(st definition.TerminalHandler) func(thread *model.ActivityThread) error {
	handler, ok := s.handlers[st]
	if ok {
		return handler
	}
	return s.noop
}

func (s *StateHandlerContainer) delete(thread *model.ActivityThread) error {
	logger.Debug("deleting terminal thread", zap.String("thread", thread.Key()), zap.String("status", thread.Status.String()))
	return s.storage.Delete(thread.ActivityID, thread.DomainID)
}

func (s *StateHandlerContainer) noop(thread *model.ActivityThread) error {
	return s.storage.Upsert(thread)
}
