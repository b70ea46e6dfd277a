package action

import (
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/model"
)

var clockFactory = Factory{
	Type: "clock",
	Kind: ASYNC,
	CheckArgs: func(args map[string]any) error {
		return requireArg(args, "time")
	},
	New: func(def *definition.ActionDefinition) Action {
		return &timerAction{baseAction: newBaseAction(def), arg: "time"}
	},
}

var sleepFactory = Factory{
	Type: "sleep",
	Kind: ASYNC,
	CheckArgs: func(args map[string]any) error {
		return requireArg(args, "duration")
	},
	New: func(def *definition.ActionDefinition) Action {
		return &timerAction{baseAction: newBaseAction(def), arg: "duration", relative: true}
	},
}

var _ AsyncAction = new(timerAction)

// timerAction completes when its own clock message fires. clock takes an
// absolute time, sleep a delay from now.
type timerAction struct {
	baseAction
	arg      string
	relative bool
}

func (a *timerAction) SendRequest(env *Env) error {
	args, err := env.Args(a.def, nil)
	if err != nil {
		return err
	}
	at, ok, err := millisArg(args, a.arg)
	if err != nil {
		return err
	}
	if !ok {
		return newRuntimeError(InvalidArgument, "action %s: argument %s is required", a.def.Name, a.arg)
	}
	if a.relative {
		at = env.Now() + at
	}
	id := beginRequest(env, a.def.Name)
	return registerTimer(env, a.def.Name, at, id)
}

func (a *timerAction) HandleResponse(env *Env, msg model.Message) (model.Result, error) {
	if msg.Type == model.ClockMessageType && a.addressedTo(env, msg) && currentRequest(env, a.def.Name, msg) {
		return model.OkWithData(map[string]any{"fired_at": msg.Timestamp}), nil
	}
	return model.Ignore(), nil
}
