package action

import (
	"fmt"
	"strconv"

	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/expression"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/util"
)

// ctrlDataKey is the result data entry read by the resolver when no ctrl
// condition of the action decides.
const ctrlDataKey = "$ctrl"

var caseFactory = Factory{
	Type:         "case",
	Kind:         SYNC,
	ProvidesCtrl: true,
	CheckArgs: func(args map[string]any) error {
		cases, ok := args["cases"].([]any)
		if !ok || len(cases) == 0 {
			return fmt.Errorf("argument cases is required and must be a non empty list")
		}
		for i, c := range cases {
			m, ok := c.(map[string]any)
			if !ok {
				return fmt.Errorf("case %d must be a map", i)
			}
			if err := requireStringArg(m, "when"); err != nil {
				return fmt.Errorf("case %d: %w", i, err)
			}
			if err := requireStringArg(m, "then"); err != nil {
				return fmt.Errorf("case %d: %w", i, err)
			}
		}
		return nil
	},
	New: func(def *definition.ActionDefinition) Action {
		return &caseAction{baseAction: newBaseAction(def)}
	},
}

var switchFactory = Factory{
	Type:         "switch",
	Kind:         SYNC,
	ProvidesCtrl: true,
	CheckArgs: func(args map[string]any) error {
		exp, ok := args["expression"].(string)
		if !ok || len(exp) == 0 {
			return fmt.Errorf("expression can not be empty")
		}
		if err := util.ValidatePath(exp); err != nil {
			return err
		}
		if _, ok := args["cases"].(map[string]any); !ok {
			return fmt.Errorf("switch action should have cases")
		}
		return nil
	},
	New: func(def *definition.ActionDefinition) Action {
		return &switchAction{baseAction: newBaseAction(def)}
	},
}

var _ SyncAction = new(caseAction)

// caseAction evaluates its cases in order and yields the then expression of
// the first one whose when holds.
type caseAction struct {
	baseAction
}

func (a *caseAction) Execute(env *Env) (model.Result, error) {
	root := env.Root(nil, nil)
	cases, _ := a.def.Args["cases"].([]any)
	for _, c := range cases {
		m := c.(map[string]any)
		ok, err := env.Evaluator.EvalBool(m["when"].(string), root)
		if err != nil {
			return model.Result{}, err
		}
		if !ok {
			continue
		}
		token, err := env.Evaluator.EvalString(m["then"].(string), root)
		if err != nil {
			return model.Result{}, err
		}
		return model.OkWithData(map[string]any{ctrlDataKey: token}), nil
	}
	if def, ok := a.def.Args["default"].(string); ok {
		token, err := env.Evaluator.EvalString(def, root)
		if err != nil {
			return model.Result{}, err
		}
		return model.OkWithData(map[string]any{ctrlDataKey: token}), nil
	}
	return model.OkWithData(map[string]any{ctrlDataKey: "FAIL because no_case_matched"}), nil
}

var _ SyncAction = new(switchAction)

// switchAction looks a value up with a jsonpath expression and picks the ctrl
// token listed for it in cases.
type switchAction struct {
	baseAction
}

func (a *switchAction) Execute(env *Env) (model.Result, error) {
	exp := a.def.StringArg("expression")
	value, err := util.LookupPath(env.Root(nil, nil), exp)
	if err != nil {
		return model.Result{}, newRuntimeError(InvalidArgument, "action %s: %s", a.def.Name, err.Error())
	}
	event := "default"
	switch v := value.(type) {
	case int:
		event = strconv.Itoa(v)
	case int64:
		event = strconv.FormatInt(v, 10)
	case float64:
		event = strconv.Itoa(int(v))
	case bool:
		event = strconv.FormatBool(v)
	case string:
		event = v
	}
	cases, _ := a.def.Args["cases"].(map[string]any)
	token, ok := cases[event].(string)
	if !ok {
		token, ok = a.def.Args["default"].(string)
	}
	if !ok {
		return model.OkWithData(map[string]any{ctrlDataKey: "FAIL because no_case_matched"}), nil
	}
	if expression.IsExpression(token) {
		out, err := expression.Render(env.Evaluator, token, env.Root(nil, nil))
		if err != nil {
			return model.Result{}, err
		}
		token = fmt.Sprintf("%v", out)
	}
	return model.OkWithData(map[string]any{ctrlDataKey: token}), nil
}
