package definition

import (
	"fmt"
	"strings"
)

type TerminalHandler string

const (
	DELETE TerminalHandler = "DELETE"
	NOOP   TerminalHandler = "NOOP"
)

func ValidateTerminalHandler(h string) error {
	if len(h) == 0 {
		return nil
	}
	if strings.EqualFold(h, string(DELETE)) || strings.EqualFold(h, string(NOOP)) {
		return nil
	}
	return fmt.Errorf("invalid terminal handler %s, valid values are DELETE, NOOP", h)
}

func toTerminalHandler(h string) TerminalHandler {
	if strings.EqualFold(h, string(DELETE)) {
		return DELETE
	}
	return NOOP
}

// ActivityDefinition is an immutable workflow template identified by name
// and version. It is shared read-only by every thread running it.
type ActivityDefinition struct {
	Name             string
	Version          string
	DomainIDStrategy string
	Description      string
	Config           map[string]any
	Enable           bool
	Trigger          TriggerDefinition
	OnFinished       TerminalHandler
	OnFailed         TerminalHandler
	CreatedOn        int64

	actions []*ActionDefinition
	index   map[string]*ActionDefinition
}

// Entry is the first declared action, where new threads start.
func (d *ActivityDefinition) Entry() *ActionDefinition {
	return d.actions[0]
}

func (d *ActivityDefinition) Action(name string) (*ActionDefinition, bool) {
	a, ok := d.index[name]
	return a, ok
}

func (d *ActivityDefinition) Actions() []*ActionDefinition {
	out := make([]*ActionDefinition, len(d.actions))
	copy(out, d.actions)
	return out
}

func (d *ActivityDefinition) ToMap() map[string]any {
	cfg := d.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return map[string]any{
		"name":               d.Name,
		"version":            d.Version,
		"domain_id_strategy": d.DomainIDStrategy,
		"description":        d.Description,
		"config":             cfg,
	}
}

// WithEnable returns a copy of the definition with the enable flag changed.
// Actions are shared since they never change after build.
func (d *ActivityDefinition) WithEnable(enable bool) *ActivityDefinition {
	c := *d
	c.Enable = enable
	return &c
}

type ActionDefinition struct {
	Name               string
	Type               string
	Args               map[string]any
	Ctrl               []CtrlCondition
	DefaultCtrl        string
	DefaultContextVars map[string]string
	Assertions         []Assertion
	Await              bool
}

func (a *ActionDefinition) HasDefaultCtrl() bool {
	return len(strings.TrimSpace(a.DefaultCtrl)) > 0
}

func (a *ActionDefinition) Arg(name string) (any, bool) {
	v, ok := a.Args[name]
	return v, ok
}

func (a *ActionDefinition) StringArg(name string) string {
	s, _ := a.Args[name].(string)
	return s
}

// CtrlCondition selects the transition produced by Then when When holds.
type CtrlCondition struct {
	When        string
	Then        string
	ContextVars map[string]string
}

type Assertion struct {
	Expression string
	Message    string
}

type TriggerDefinition struct {
	Type        string
	Args        map[string]any
	ContextVars map[string]string
}
