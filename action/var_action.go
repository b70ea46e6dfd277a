package action

import (
	"fmt"

	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"go.uber.org/zap"
)

var computeFactory = Factory{
	Type: "compute",
	Kind: SYNC,
	New: func(def *definition.ActionDefinition) Action {
		return &computeAction{baseAction: newBaseAction(def)}
	},
}

var updateVarFactory = Factory{
	Type: "update_var",
	Kind: SYNC,
	CheckArgs: func(args map[string]any) error {
		if _, ok := args["vars"].(map[string]any); !ok {
			return fmt.Errorf("argument vars is required and must be a map")
		}
		return nil
	},
	New: func(def *definition.ActionDefinition) Action {
		return &updateVarAction{baseAction: newBaseAction(def)}
	},
}

var deleteVarFactory = Factory{
	Type: "delete_var",
	Kind: SYNC,
	CheckArgs: func(args map[string]any) error {
		if _, ok := args["vars"].([]any); !ok {
			return fmt.Errorf("argument vars is required and must be a list")
		}
		return nil
	},
	New: func(def *definition.ActionDefinition) Action {
		return &deleteVarAction{baseAction: newBaseAction(def)}
	},
}

var stdoutFactory = Factory{
	Type: "stdout",
	Kind: SYNC,
	CheckArgs: func(args map[string]any) error {
		return requireArg(args, "message")
	},
	New: func(def *definition.ActionDefinition) Action {
		return &stdoutAction{baseAction: newBaseAction(def)}
	},
}

var _ SyncAction = new(computeAction)

// computeAction renders its arguments and hands them back as result data.
type computeAction struct {
	baseAction
}

func (a *computeAction) Execute(env *Env) (model.Result, error) {
	args, err := env.Args(a.def, nil)
	if err != nil {
		return model.Result{}, err
	}
	return model.OkWithData(args), nil
}

var _ SyncAction = new(updateVarAction)

type updateVarAction struct {
	baseAction
}

func (a *updateVarAction) Execute(env *Env) (model.Result, error) {
	args, err := env.Args(a.def, nil)
	if err != nil {
		return model.Result{}, err
	}
	vars, _ := args["vars"].(map[string]any)
	env.Thread.PutContextVars(vars)
	return model.Ok(), nil
}

var _ SyncAction = new(deleteVarAction)

type deleteVarAction struct {
	baseAction
}

func (a *deleteVarAction) Execute(env *Env) (model.Result, error) {
	names, _ := a.def.Args["vars"].([]any)
	for _, n := range names {
		name, ok := n.(string)
		if !ok {
			return model.Result{}, newRuntimeError(InvalidArgument, "action %s: var name %v is not a string", a.def.Name, n)
		}
		env.Thread.RemoveContextVar(name)
	}
	return model.Ok(), nil
}

var _ SyncAction = new(stdoutAction)

type stdoutAction struct {
	baseAction
}

func (a *stdoutAction) Execute(env *Env) (model.Result, error) {
	args, err := env.Args(a.def, nil)
	if err != nil {
		return model.Result{}, err
	}
	logger.Info("stdout",
		zap.Int("activity", env.Thread.ActivityID),
		zap.String("domain", env.Thread.DomainID),
		zap.String("action", a.def.Name),
		zap.Any("message", args["message"]))
	return model.Ok(), nil
}
