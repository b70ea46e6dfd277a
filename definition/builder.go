package definition

import (
	"fmt"
	"strings"

	"github.com/mohitkumar/strand/expression"
)

type BuildError struct {
	Definition string
	Message    string
}

func (e BuildError) Error() string {
	return fmt.Sprintf("invalid definition %s: %s", e.Definition, e.Message)
}

// ComponentChecker validates action and trigger types against the registries
// known to the process.
type ComponentChecker interface {
	// CheckAction validates the arguments of an action type and reports
	// whether that type yields its own $ctrl in the result data.
	CheckAction(actionType string, args map[string]any) (providesCtrl bool, err error)
	CheckTrigger(triggerType string, args map[string]any) error
}

// Build validates a document and turns it into an immutable definition. Any
// failure here keeps the definition from ever being used by a thread.
func Build(doc *Document, checker ComponentChecker, ev expression.Evaluator) (*ActivityDefinition, error) {
	b := &builder{doc: doc, checker: checker, ev: ev}
	return b.build()
}

type builder struct {
	doc     *Document
	checker ComponentChecker
	ev      expression.Evaluator
}

func (b *builder) fail(format string, args ...any) error {
	return BuildError{Definition: b.id(), Message: fmt.Sprintf(format, args...)}
}

func (b *builder) id() string {
	return fmt.Sprintf("%s:%s", b.doc.Name, b.doc.Version)
}

func (b *builder) build() (*ActivityDefinition, error) {
	doc := b.doc
	if len(strings.TrimSpace(doc.Name)) == 0 {
		return nil, b.fail("name can not be empty")
	}
	if len(strings.TrimSpace(doc.Version)) == 0 {
		return nil, b.fail("version can not be empty")
	}
	if len(strings.TrimSpace(doc.DomainIDStrategy)) == 0 {
		return nil, b.fail("domain_id_strategy can not be empty")
	}
	if len(doc.Actions) == 0 {
		return nil, b.fail("at least one action is required")
	}
	if err := ValidateTerminalHandler(doc.OnFinished); err != nil {
		return nil, b.fail(err.Error())
	}
	if err := ValidateTerminalHandler(doc.OnFailed); err != nil {
		return nil, b.fail(err.Error())
	}
	trigger, err := b.buildTrigger()
	if err != nil {
		return nil, err
	}
	def := &ActivityDefinition{
		Name:             doc.Name,
		Version:          doc.Version,
		DomainIDStrategy: doc.DomainIDStrategy,
		Description:      doc.Description,
		Config:           doc.Config,
		Enable:           doc.Enable,
		Trigger:          trigger,
		OnFinished:       toTerminalHandler(doc.OnFinished),
		OnFailed:         toTerminalHandler(doc.OnFailed),
		CreatedOn:        doc.CreatedOn,
		index:            make(map[string]*ActionDefinition, len(doc.Actions)),
	}
	for _, ad := range doc.Actions {
		act, err := b.buildAction(ad)
		if err != nil {
			return nil, err
		}
		if _, ok := def.index[act.Name]; ok {
			return nil, b.fail("action %s is duplicate", act.Name)
		}
		def.index[act.Name] = act
		def.actions = append(def.actions, act)
	}
	return def, nil
}

func (b *builder) buildTrigger() (TriggerDefinition, error) {
	td := b.doc.Trigger
	if len(td.Type) == 0 {
		return TriggerDefinition{}, b.fail("trigger type can not be empty")
	}
	if err := b.checker.CheckTrigger(td.Type, td.Args); err != nil {
		return TriggerDefinition{}, b.fail("trigger %s: %s", td.Type, err.Error())
	}
	if err := b.compileVars("trigger", td.ContextVars); err != nil {
		return TriggerDefinition{}, err
	}
	return TriggerDefinition{
		Type:        td.Type,
		Args:        td.Args,
		ContextVars: td.ContextVars,
	}, nil
}

func (b *builder) buildAction(ad ActionDocument) (*ActionDefinition, error) {
	if len(strings.TrimSpace(ad.Name)) == 0 {
		return nil, b.fail("action name can not be empty")
	}
	if len(ad.Type) == 0 {
		return nil, b.fail("action %s, type can not be empty", ad.Name)
	}
	providesCtrl, err := b.checker.CheckAction(ad.Type, ad.Args)
	if err != nil {
		return nil, b.fail("action %s: %s", ad.Name, err.Error())
	}
	if err := expression.CompileArgs(b.ev, ad.Args); err != nil {
		return nil, b.fail("action %s, args: %s", ad.Name, err.Error())
	}
	act := &ActionDefinition{
		Name:               ad.Name,
		Type:               ad.Type,
		Args:               ad.Args,
		DefaultCtrl:        ad.DefaultCtrl,
		DefaultContextVars: ad.DefaultContextVars,
		Await:              true,
	}
	if ad.Await != nil {
		act.Await = *ad.Await
	}
	for i, c := range ad.Ctrl {
		if len(strings.TrimSpace(c.When)) == 0 || len(strings.TrimSpace(c.Then)) == 0 {
			return nil, b.fail("action %s, ctrl %d needs both when and then", ad.Name, i)
		}
		if err := b.ev.Compile(c.When); err != nil {
			return nil, b.fail("action %s, ctrl %d when: %s", ad.Name, i, err.Error())
		}
		if err := b.ev.Compile(c.Then); err != nil {
			return nil, b.fail("action %s, ctrl %d then: %s", ad.Name, i, err.Error())
		}
		if err := b.compileVars("action "+ad.Name, c.ContextVars); err != nil {
			return nil, err
		}
		act.Ctrl = append(act.Ctrl, CtrlCondition{When: c.When, Then: c.Then, ContextVars: c.ContextVars})
	}
	if act.HasDefaultCtrl() {
		if err := b.ev.Compile(act.DefaultCtrl); err != nil {
			return nil, b.fail("action %s, default ctrl: %s", ad.Name, err.Error())
		}
	} else if !providesCtrl {
		return nil, b.fail("action %s has no default ctrl and its type %s does not yield one", ad.Name, ad.Type)
	}
	if err := b.compileVars("action "+ad.Name, ad.DefaultContextVars); err != nil {
		return nil, err
	}
	for _, as := range ad.Assert {
		if err := b.ev.Compile(as.Expression); err != nil {
			return nil, b.fail("action %s, assertion: %s", ad.Name, err.Error())
		}
		msg := as.Message
		if len(msg) == 0 {
			msg = as.Expression
		}
		act.Assertions = append(act.Assertions, Assertion{Expression: as.Expression, Message: msg})
	}
	return act, nil
}

func (b *builder) compileVars(owner string, vars map[string]string) error {
	for name, src := range vars {
		if err := b.ev.Compile(src); err != nil {
			return b.fail("%s, context var %s: %s", owner, name, err.Error())
		}
	}
	return nil
}
