package action

import (
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/model"
)

type Kind string

const (
	SYNC  Kind = "SYNC"
	ASYNC Kind = "ASYNC"
)

type Action interface {
	Name() string
	Definition() *definition.ActionDefinition
}

// SyncAction runs to completion inside one scheduling step and must not block.
type SyncAction interface {
	Action
	Execute(env *Env) (model.Result, error)
}

// AsyncAction emits a request and is later handed every inbound message while
// the thread waits on it. HandleResponse returns an ignore result for messages
// that are not meant for it.
type AsyncAction interface {
	Action
	SendRequest(env *Env) error
	HandleResponse(env *Env, msg model.Message) (model.Result, error)
}

var _ Action = new(baseAction)

type baseAction struct {
	def *definition.ActionDefinition
}

func newBaseAction(def *definition.ActionDefinition) baseAction {
	return baseAction{def: def}
}

func (ba *baseAction) Name() string {
	return ba.def.Name
}

func (ba *baseAction) Definition() *definition.ActionDefinition {
	return ba.def
}

// addressedTo reports whether msg targets the current thread and action.
func (ba *baseAction) addressedTo(env *Env, msg model.Message) bool {
	return msg.ActivityID == env.Thread.ActivityID &&
		msg.DomainID == env.Thread.DomainID &&
		msg.Action == ba.def.Name
}
