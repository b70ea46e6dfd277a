package action

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/service"
)

// Factory describes one action type.
type Factory struct {
	Type string
	Kind Kind
	// ProvidesCtrl is set for types that put a $ctrl token in their result
	// data, so their actions do not need a default ctrl.
	ProvidesCtrl bool
	CheckArgs    func(args map[string]any) error
	New          func(def *definition.ActionDefinition) Action
}

var builtins = []Factory{
	computeFactory,
	updateVarFactory,
	deleteVarFactory,
	stdoutFactory,
	caseFactory,
	switchFactory,
	scriptFactory,
	receiveFactory,
	clockFactory,
	sleepFactory,
	serviceFactory,
}

// Registry maps action types to factories. Types that are not registered
// resolve to the service action when a service of that name exists.
type Registry struct {
	sync.RWMutex
	factories map[string]Factory
	services  service.Resolver
}

func NewRegistry(services service.Resolver) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		services:  services,
	}
	for _, f := range builtins {
		r.factories[f.Type] = f
	}
	return r
}

func (r *Registry) Register(f Factory) error {
	r.Lock()
	defer r.Unlock()
	if len(f.Type) == 0 || f.New == nil {
		return fmt.Errorf("action factory needs a type and a constructor")
	}
	if _, ok := r.factories[f.Type]; ok {
		return fmt.Errorf("action type %s already registered", f.Type)
	}
	r.factories[f.Type] = f
	return nil
}

func (r *Registry) Lookup(actionType string) (Factory, bool) {
	r.RLock()
	f, ok := r.factories[actionType]
	r.RUnlock()
	if ok {
		return f, true
	}
	if r.services != nil && r.services.Contains(actionType) {
		return serviceFactory, true
	}
	return Factory{}, false
}

func (r *Registry) Types() []string {
	r.RLock()
	defer r.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// CheckAction validates an action type and its arguments at build time.
func (r *Registry) CheckAction(actionType string, args map[string]any) (bool, error) {
	f, ok := r.Lookup(actionType)
	if !ok {
		return false, fmt.Errorf("action type %s not registered", actionType)
	}
	if f.Type == serviceType && actionType == serviceType {
		name, _ := args["service"].(string)
		if r.services == nil || !r.services.Contains(name) {
			return false, fmt.Errorf("service %s not registered", name)
		}
	}
	if f.CheckArgs != nil {
		if err := f.CheckArgs(args); err != nil {
			return false, err
		}
	}
	return f.ProvidesCtrl, nil
}

func (r *Registry) New(def *definition.ActionDefinition) (Action, error) {
	f, ok := r.Lookup(def.Type)
	if !ok {
		return nil, newRuntimeError(InvalidArgument, "action type %s not registered", def.Type)
	}
	return f.New(def), nil
}

func requireArg(args map[string]any, name string) error {
	if _, ok := args[name]; !ok {
		return fmt.Errorf("argument %s is required", name)
	}
	return nil
}

func requireStringArg(args map[string]any, name string) error {
	s, ok := args[name].(string)
	if !ok || len(s) == 0 {
		return fmt.Errorf("argument %s is required and must be a string", name)
	}
	return nil
}
