package action

import (
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/model"
)

var receiveFactory = Factory{
	Type: "receive",
	Kind: ASYNC,
	CheckArgs: func(args map[string]any) error {
		return requireStringArg(args, "when")
	},
	New: func(def *definition.ActionDefinition) Action {
		return &receiveAction{baseAction: newBaseAction(def)}
	},
}

var _ AsyncAction = new(receiveAction)

// receiveAction waits for an event satisfying the when expression. An after
// argument drops events older than the given timestamp and a timeout argument
// bounds the wait.
type receiveAction struct {
	baseAction
}

func (a *receiveAction) SendRequest(env *Env) error {
	args, err := env.Args(a.def, nil)
	if err != nil {
		return err
	}
	id := beginRequest(env, a.def.Name)
	timeout, ok, err := millisArg(args, "timeout")
	if err != nil {
		return err
	}
	if ok {
		return registerTimer(env, a.def.Name, env.Now()+timeout, id)
	}
	return nil
}

func (a *receiveAction) HandleResponse(env *Env, msg model.Message) (model.Result, error) {
	if msg.IsAddressed() {
		if msg.Type == model.ClockMessageType && a.addressedTo(env, msg) && currentRequest(env, a.def.Name, msg) {
			return model.Timeout(), nil
		}
		return model.Ignore(), nil
	}
	if after, ok := a.def.Args["after"].(string); ok {
		v, err := env.Evaluator.Eval(after, env.Root(&msg, nil))
		if err != nil {
			return model.Result{}, err
		}
		if msg.Timestamp < int64(model.ToInt(v, 0)) {
			return model.Ignore(), nil
		}
	}
	ok, err := env.Evaluator.EvalBool(a.def.StringArg("when"), env.Root(&msg, nil))
	if err != nil {
		return model.Result{}, err
	}
	if !ok {
		return model.Ignore(), nil
	}
	return model.OkWithData(msg.ToMap()), nil
}
