package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mohitkumar/strand/action"
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/expression"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"go.uber.org/zap"
)

// MatchResult tells whether a mailbox should spawn a thread. Vars is the
// initial context, Trailing the messages after the one that matched.
type MatchResult struct {
	Matched  bool
	Vars     map[string]any
	Trailing []model.Message
}

type Trigger interface {
	Match(domainID string, mailbox []model.Message) (MatchResult, error)
}

type TriggerFactory struct {
	Type      string
	CheckArgs func(args map[string]any) error
	New       func(def *definition.ActivityDefinition, activity *model.Activity, ev expression.Evaluator) Trigger
}

type TriggerRegistry struct {
	sync.RWMutex
	factories map[string]TriggerFactory
}

func NewTriggerRegistry() *TriggerRegistry {
	r := &TriggerRegistry{factories: make(map[string]TriggerFactory)}
	r.factories[eventTriggerFactory.Type] = eventTriggerFactory
	return r
}

func (r *TriggerRegistry) Register(f TriggerFactory) error {
	r.Lock()
	defer r.Unlock()
	if len(f.Type) == 0 || f.New == nil {
		return fmt.Errorf("trigger factory needs a type and a constructor")
	}
	if _, ok := r.factories[f.Type]; ok {
		return fmt.Errorf("trigger type %s already registered", f.Type)
	}
	r.factories[f.Type] = f
	return nil
}

func (r *TriggerRegistry) Types() []string {
	r.RLock()
	defer r.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (r *TriggerRegistry) CheckTrigger(triggerType string, args map[string]any) error {
	r.RLock()
	f, ok := r.factories[triggerType]
	r.RUnlock()
	if !ok {
		return fmt.Errorf("unknown trigger type %s", triggerType)
	}
	if f.CheckArgs != nil {
		return f.CheckArgs(args)
	}
	return nil
}

func (r *TriggerRegistry) New(def *definition.ActivityDefinition, activity *model.Activity, ev expression.Evaluator) (Trigger, error) {
	r.RLock()
	f, ok := r.factories[def.Trigger.Type]
	r.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown trigger type %s", def.Trigger.Type)
	}
	return f.New(def, activity, ev), nil
}

var eventTriggerFactory = TriggerFactory{
	Type: "event",
	CheckArgs: func(args map[string]any) error {
		cond, ok := args["condition"].(string)
		if !ok || len(cond) == 0 {
			return fmt.Errorf("event trigger needs a condition")
		}
		return nil
	},
	New: func(def *definition.ActivityDefinition, activity *model.Activity, ev expression.Evaluator) Trigger {
		return &eventTrigger{def: def, activity: activity, ev: ev}
	},
}

var _ Trigger = new(eventTrigger)

// eventTrigger spawns on the first message whose condition holds.
type eventTrigger struct {
	def      *definition.ActivityDefinition
	activity *model.Activity
	ev       expression.Evaluator
}

func (t *eventTrigger) Match(domainID string, mailbox []model.Message) (MatchResult, error) {
	cond, _ := t.def.Trigger.Args["condition"].(string)
	cfg := make(map[string]any)
	for k, v := range t.def.Config {
		cfg[k] = v
	}
	for k, v := range t.activity.Config {
		cfg[k] = v
	}
	for i, msg := range mailbox {
		root := map[string]any{
			"definition": t.def.ToMap(),
			"activity":   t.activity.ToMap(),
			"config":     cfg,
			"domain_id":  domainID,
			"event":      msg.ToMap(),
		}
		ok, err := t.ev.EvalBool(cond, root)
		if err != nil {
			return MatchResult{}, err
		}
		if !ok {
			continue
		}
		vars := make(map[string]any, len(t.def.Trigger.ContextVars))
		for name, src := range t.def.Trigger.ContextVars {
			v, err := t.ev.Eval(src, root)
			if err != nil {
				return MatchResult{}, err
			}
			vars[name] = v
		}
		return MatchResult{Matched: true, Vars: vars, Trailing: mailbox[i+1:]}, nil
	}
	return MatchResult{}, nil
}

var _ definition.ComponentChecker = new(ComponentChecker)

// ComponentChecker validates definitions against the registered action and
// trigger types.
type ComponentChecker struct {
	Actions  *action.Registry
	Triggers *TriggerRegistry
}

func (c *ComponentChecker) CheckAction(actionType string, args map[string]any) (bool, error) {
	return c.Actions.CheckAction(actionType, args)
}

func (c *ComponentChecker) CheckTrigger(triggerType string, args map[string]any) error {
	return c.Triggers.CheckTrigger(triggerType, args)
}

// HandleMailbox delivers a mailbox to the thread of the domain, spawning it
// when the trigger of def matches and no live thread exists.
func (s *Scheduler) HandleMailbox(activity *model.Activity, def *definition.ActivityDefinition, domainID string, mailbox []model.Message) error {
	thread, err := s.storage.Get(activity.ID, domainID)
	if err == nil && !thread.Status.IsTerminal() {
		return s.Advance(thread, mailbox)
	}
	var nf persistence.NotFoundError
	if err != nil && !errors.As(err, &nf) {
		return err
	}
	if activity.Status != model.ActivityCommon {
		return nil
	}
	trigger, err := s.triggers.New(def, activity, s.evaluator)
	if err != nil {
		return err
	}
	res, err := trigger.Match(domainID, mailbox)
	if err != nil {
		logger.Error("error matching trigger", zap.Int("activity", activity.ID), zap.String("domain", domainID), zap.Error(err))
		return err
	}
	if !res.Matched {
		return nil
	}
	if thread != nil {
		// a thread that ended is replaced by the new one
		if err := s.storage.Delete(activity.ID, domainID); err != nil {
			return err
		}
	}
	spawned, err := s.Spawn(def, activity, domainID, res.Vars)
	if err != nil {
		var exists persistence.AlreadyExistsError
		if !errors.As(err, &exists) {
			return err
		}
		existing, err := s.storage.Get(activity.ID, domainID)
		if err != nil {
			return err
		}
		logger.Debug("thread spawned elsewhere, rerouting mailbox", zap.String("thread", existing.Key()))
		return s.Advance(existing, mailbox)
	}
	return s.Advance(spawned, res.Trailing)
}
