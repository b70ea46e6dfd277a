package engine

import (
	"github.com/mohitkumar/strand/action"
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/model"
)

const ctrlDataKey = "$ctrl"

// resolve turns the outcome of an action into the next transition. The ctrl
// conditions are tried in order and the first whose when holds decides.
// Otherwise the default ctrl applies, then a $ctrl token in the result data,
// and finally a failure with reason no_ctrl.
func resolve(env *action.Env, def *definition.ActionDefinition, msg *model.Message, result model.Result) (action.CtrlInfo, error) {
	root := env.Root(msg, &result)
	ev := env.Evaluator
	for _, c := range def.Ctrl {
		ok, err := ev.EvalBool(c.When, root)
		if err != nil {
			return action.CtrlInfo{}, err
		}
		if !ok {
			continue
		}
		return evalCtrl(env, c.Then, c.ContextVars, root)
	}
	if def.HasDefaultCtrl() {
		return evalCtrl(env, def.DefaultCtrl, def.DefaultContextVars, root)
	}
	if token, ok := result.Data[ctrlDataKey].(string); ok && len(token) > 0 {
		vars, err := evalVars(env, def.DefaultContextVars, root)
		if err != nil {
			return action.CtrlInfo{}, err
		}
		return action.ParseCtrl(token, vars)
	}
	return action.Fail(action.NoCtrl, nil), nil
}

func evalCtrl(env *action.Env, then string, vars map[string]string, root map[string]any) (action.CtrlInfo, error) {
	token, err := env.Evaluator.EvalString(then, root)
	if err != nil {
		return action.CtrlInfo{}, err
	}
	patch, err := evalVars(env, vars, root)
	if err != nil {
		return action.CtrlInfo{}, err
	}
	return action.ParseCtrl(token, patch)
}

func evalVars(env *action.Env, vars map[string]string, root map[string]any) (map[string]any, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(vars))
	for name, src := range vars {
		v, err := env.Evaluator.Eval(src, root)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
