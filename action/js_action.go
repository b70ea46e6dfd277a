package action

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"go.uber.org/zap"
)

var scriptFactory = Factory{
	Type: "script",
	Kind: SYNC,
	CheckArgs: func(args map[string]any) error {
		script, ok := args["script"].(string)
		if !ok || len(script) == 0 {
			return fmt.Errorf("script can not be empty")
		}
		if _, err := goja.Compile("", script, false); err != nil {
			return fmt.Errorf("invalid script: %w", err)
		}
		return nil
	},
	New: func(def *definition.ActionDefinition) Action {
		return &jsAction{baseAction: newBaseAction(def)}
	},
}

var _ SyncAction = new(jsAction)

// jsAction runs a script against a copy of the context bound to $. The value
// of $ afterwards replaces the context entries it holds and is returned as
// result data.
type jsAction struct {
	baseAction
}

func (d *jsAction) Execute(env *Env) (model.Result, error) {
	logger.Debug("running script", zap.String("action", d.def.Name), zap.String("thread", env.Thread.Key()))
	data, err := json.Marshal(env.Thread.Context)
	if err != nil {
		return model.Result{}, err
	}
	expression := fmt.Sprintf("var $ = %s;\n", data)
	expression = expression + d.def.StringArg("script")
	vm := goja.New()
	if err := vm.Set("config", env.Config()); err != nil {
		return model.Result{}, err
	}
	if _, err := vm.RunString(expression); err != nil {
		return model.Result{}, fmt.Errorf("error executing javascript %w", err)
	}
	val, err := vm.RunString("$")
	if err != nil {
		return model.Result{}, fmt.Errorf("error executing javascript %w", err)
	}
	res, err := json.Marshal(val.Export())
	if err != nil {
		return model.Result{}, err
	}
	var output map[string]any
	if err := json.Unmarshal(res, &output); err != nil {
		return model.Result{}, newRuntimeError(InvalidArgument, "action %s: $ must stay an object", d.def.Name)
	}
	env.Thread.PutContextVars(output)
	return model.OkWithData(output), nil
}
