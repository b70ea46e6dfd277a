package action

import (
	"github.com/mohitkumar/strand/clock"
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/expression"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/service"
)

// Env is everything an action can see or touch while it runs for a thread.
type Env struct {
	Thread      *model.ActivityThread
	Activity    *model.Activity
	Definition  *definition.ActivityDefinition
	Evaluator   expression.Evaluator
	Clock       clock.Clock
	Source      clock.Source
	Services    service.Resolver
	ServiceName string
	// Event is the message being handled, if any.
	Event *model.Message
}

func (e *Env) Now() int64 {
	return clock.Millis(e.Source)
}

// Config is the definition config overridden by the activity config.
func (e *Env) Config() map[string]any {
	cfg := make(map[string]any)
	for k, v := range e.Definition.Config {
		cfg[k] = v
	}
	for k, v := range e.Activity.Config {
		cfg[k] = v
	}
	return cfg
}

// Context is a copy of the thread context. Expressions only ever see the
// copy, actions change the thread through its context vars.
func (e *Env) Context() map[string]any {
	ctx := make(map[string]any, len(e.Thread.Context))
	for k, v := range e.Thread.Context {
		ctx[k] = v
	}
	return ctx
}

// Root builds the object expressions are evaluated against. msg and result
// may be nil, a nil msg falls back to the event being handled.
func (e *Env) Root(msg *model.Message, result *model.Result) map[string]any {
	if msg == nil {
		msg = e.Event
	}
	root := map[string]any{
		"definition": e.Definition.ToMap(),
		"activity":   e.Activity.ToMap(),
		"config":     e.Config(),
		"thread":     e.Thread.ToMap(),
		"context":    e.Context(),
	}
	if msg != nil {
		root["event"] = msg.ToMap()
	}
	if result != nil {
		root["result"] = result
	}
	return root
}

// Args renders the action arguments against the current root.
func (e *Env) Args(def *definition.ActionDefinition, msg *model.Message) (map[string]any, error) {
	if len(def.Args) == 0 {
		return map[string]any{}, nil
	}
	out, err := expression.Render(e.Evaluator, def.Args, e.Root(msg, nil))
	if err != nil {
		return nil, newRuntimeError(InvalidArgument, "action %s: %s", def.Name, err.Error())
	}
	return out.(map[string]any), nil
}

// CheckAssertions evaluates the action assertions in order and fails on the
// first one that does not hold.
func CheckAssertions(env *Env, def *definition.ActionDefinition) error {
	if len(def.Assertions) == 0 {
		return nil
	}
	root := env.Root(nil, nil)
	for _, as := range def.Assertions {
		ok, err := env.Evaluator.EvalBool(as.Expression, root)
		if err != nil {
			return newRuntimeError(AssertionFailed, "action %s: %s", def.Name, err.Error())
		}
		if !ok {
			return newRuntimeError(AssertionFailed, "action %s: %s", def.Name, as.Message)
		}
	}
	return nil
}
