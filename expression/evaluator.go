package expression

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/mohitkumar/strand/clock"
	gocache "github.com/patrickmn/go-cache"
)

// Evaluator evaluates expressions against a root object. Root keys become
// global names inside the expression.
type Evaluator interface {
	Eval(src string, root map[string]any) (any, error)
	EvalBool(src string, root map[string]any) (bool, error)
	EvalString(src string, root map[string]any) (string, error)
	Compile(src string) error
}

type EvalError struct {
	Source  string
	Message string
}

func (e EvalError) Error() string {
	return fmt.Sprintf("error evaluating '%s': %s", e.Source, e.Message)
}

var _ Evaluator = new(gojaEvaluator)

type gojaEvaluator struct {
	programs *gocache.Cache
	source   clock.Source
}

// NewGojaEvaluator evaluates JavaScript expressions. Compiled programs are
// kept in the given cache, which the caller owns.
func NewGojaEvaluator(programs *gocache.Cache, source clock.Source) *gojaEvaluator {
	return &gojaEvaluator{
		programs: programs,
		source:   source,
	}
}

func NewProgramCache(ttl time.Duration) *gocache.Cache {
	return gocache.New(ttl, 2*ttl)
}

func (e *gojaEvaluator) program(src string) (*goja.Program, error) {
	if p, ok := e.programs.Get(src); ok {
		return p.(*goja.Program), nil
	}
	p, err := goja.Compile("", "("+src+")", true)
	if err != nil {
		return nil, EvalError{Source: src, Message: err.Error()}
	}
	e.programs.SetDefault(src, p)
	return p, nil
}

func (e *gojaEvaluator) Compile(src string) error {
	if strings.TrimSpace(src) == "" {
		return EvalError{Source: src, Message: "empty expression"}
	}
	_, err := e.program(src)
	return err
}

func (e *gojaEvaluator) Eval(src string, root map[string]any) (any, error) {
	p, err := e.program(src)
	if err != nil {
		return nil, err
	}
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := e.installHelpers(vm); err != nil {
		return nil, err
	}
	for k, v := range root {
		if err := vm.Set(k, v); err != nil {
			return nil, EvalError{Source: src, Message: err.Error()}
		}
	}
	val, err := vm.RunProgram(p)
	if err != nil {
		return nil, EvalError{Source: src, Message: err.Error()}
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

func (e *gojaEvaluator) EvalBool(src string, root map[string]any) (bool, error) {
	v, err := e.Eval(src, root)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, EvalError{Source: src, Message: fmt.Sprintf("expected boolean, got %T", v)}
	}
	return b, nil
}

func (e *gojaEvaluator) EvalString(src string, root map[string]any) (string, error) {
	v, err := e.Eval(src, root)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", EvalError{Source: src, Message: fmt.Sprintf("expected string, got %T", v)}
	}
	return s, nil
}

func (e *gojaEvaluator) installHelpers(vm *goja.Runtime) error {
	helpers := map[string]any{
		"call": func(step string) string {
			return "CALL " + step
		},
		"fail": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 || goja.IsUndefined(call.Argument(0)) {
				return vm.ToValue("FAIL")
			}
			return vm.ToValue("FAIL because " + call.Argument(0).String())
		},
		"finish": func() string {
			return "FINISH"
		},
		"waiting": func() string {
			return "WAITING"
		},
		"retry": func(call goja.FunctionCall) goja.Value {
			token := fmt.Sprintf("RETRY %d", call.Argument(0).ToInteger())
			if len(call.Arguments) > 1 && !goja.IsUndefined(call.Argument(1)) {
				token = token + " " + call.Argument(1).String()
			}
			return vm.ToValue(token)
		},
		"repairing": func(problem string) string {
			return "REPAIRING " + problem
		},
		"seconds": func(n int64) int64 {
			return n * int64(time.Second/time.Millisecond)
		},
		"minutes": func(n int64) int64 {
			return n * int64(time.Minute/time.Millisecond)
		},
		"hours": func(n int64) int64 {
			return n * int64(time.Hour/time.Millisecond)
		},
		"days": func(n int64) int64 {
			return n * 24 * int64(time.Hour/time.Millisecond)
		},
		"now": func() int64 {
			return e.source.Now().UnixMilli()
		},
	}
	for name, fn := range helpers {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}
