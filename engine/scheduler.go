package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/mohitkumar/strand/action"
	"github.com/mohitkumar/strand/clock"
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/expression"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"github.com/mohitkumar/strand/service"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Catalog is the read side of the metadata service the scheduler needs.
type Catalog interface {
	Definition(name string, version string) (*definition.ActivityDefinition, bool)
	Latest(name string) (*definition.ActivityDefinition, bool)
	Activity(id int) (*model.Activity, error)
	Activities() []*model.Activity
}

type SchedulerConfig struct {
	ServiceName        string
	MaxContinuePeriods int
	SuspendTime        time.Duration
	DedupTTL           time.Duration
}

// Scheduler drives activity threads through their actions. A thread must only
// be handed to the scheduler by the key worker that owns it.
type Scheduler struct {
	conf      SchedulerConfig
	storage   persistence.ThreadStorage
	catalog   Catalog
	actions   *action.Registry
	triggers  *TriggerRegistry
	evaluator expression.Evaluator
	clock     clock.Clock
	source    clock.Source
	services  service.Resolver
	handlers  *StateHandlerContainer
	listeners listeners
	consumed  *gocache.Cache
}

func NewScheduler(conf SchedulerConfig, storage persistence.ThreadStorage, catalog Catalog, actions *action.Registry,
	triggers *TriggerRegistry, evaluator expression.Evaluator, clk clock.Clock, source clock.Source,
	services service.Resolver) *Scheduler {
	if conf.SuspendTime <= 0 {
		conf.SuspendTime = time.Millisecond
	}
	if conf.DedupTTL <= 0 {
		conf.DedupTTL = 10 * time.Minute
	}
	return &Scheduler{
		conf:      conf,
		storage:   storage,
		catalog:   catalog,
		actions:   actions,
		triggers:  triggers,
		evaluator: evaluator,
		clock:     clk,
		source:    source,
		services:  services,
		handlers:  NewStateHandlerContainer(storage),
		consumed:  gocache.New(conf.DedupTTL, 2*conf.DedupTTL),
	}
}

func (s *Scheduler) AddListener(l StatusListener) {
	s.listeners = append(s.listeners, l)
}

// Spawn creates and stores a new thread at the entry action of def. It fails
// with persistence.AlreadyExistsError when the key is taken.
func (s *Scheduler) Spawn(def *definition.ActivityDefinition, activity *model.Activity, domainID string, vars map[string]any) (*model.ActivityThread, error) {
	thread := model.NewActivityThread(activity, def.Name, def.Version, domainID, def.Entry().Name, s.now(), vars)
	if err := s.storage.Insert(thread); err != nil {
		return nil, err
	}
	logger.Info("thread spawned", zap.Int("activity", activity.ID), zap.String("domain", domainID),
		zap.String("definition", def.Name), zap.String("version", def.Version), zap.String("action", thread.CurrentAction))
	s.listeners.spawn(thread)
	return thread, nil
}

// Advance runs the thread until it has to wait for a message, is suspended,
// or ends. Messages in the mailbox are consumed at most once per thread.
func (s *Scheduler) Advance(thread *model.ActivityThread, mailbox []model.Message) error {
	if thread.Status.IsTerminal() {
		return s.reject(thread, newScheduleError(InvalidStatus, "thread %s is %s", thread.Key(), thread.Status))
	}
	if thread.Status == model.PAUSED || thread.InRepair() {
		logger.Debug("thread not advancing", zap.String("thread", thread.Key()), zap.String("status", thread.Status.String()),
			zap.Bool("repair", thread.InRepair()))
		return nil
	}
	env, err := s.env(thread)
	if err != nil {
		return s.reject(thread, err)
	}
	if env.Activity.IsPaused() && !env.Activity.ConfigBool("pause_continue_old", false) {
		logger.Debug("activity paused", zap.Int("activity", thread.ActivityID))
		return nil
	}
	mailbox = s.unconsumed(thread, mailbox)
	s.advance(env, mailbox)
	if err := s.persist(env); err != nil {
		return err
	}
	s.markConsumed(thread, mailbox)
	return nil
}

// HandleCtrl applies operator commands. A kill in the batch wins, otherwise
// only the last command is applied.
func (s *Scheduler) HandleCtrl(thread *model.ActivityThread, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	msgs = s.unconsumed(thread, msgs)
	if len(msgs) == 0 {
		return nil
	}
	err := s.applyCtrl(thread, msgs)
	var se ScheduleError
	if err == nil || errors.As(err, &se) {
		s.markConsumed(thread, msgs)
	}
	return err
}

func (s *Scheduler) applyCtrl(thread *model.ActivityThread, msgs []model.Message) error {
	for _, msg := range msgs {
		if msg.Command() == model.KillCommand {
			return s.Kill(thread)
		}
	}
	last := msgs[len(msgs)-1]
	switch last.Command() {
	case model.PauseCommand:
		return s.Pause(thread)
	case model.ContinueCommand:
		return s.Continue(thread)
	case model.RepairCommand:
		args, err := model.RepairArgsFromMap(last.CommandArgs())
		if err != nil {
			return s.reject(thread, newScheduleError(UnknownRepairCtrl, "%s", err.Error()))
		}
		return s.Repair(thread, args)
	}
	return s.reject(thread, newScheduleError(ErrorCode, "unknown command %s", last.Command()))
}

func (s *Scheduler) Pause(thread *model.ActivityThread) error {
	if thread.Status.IsTerminal() {
		return s.reject(thread, newScheduleError(InvalidStatus, "can not pause %s thread", thread.Status))
	}
	if thread.Status == model.PAUSED {
		return nil
	}
	thread.PutContextVar(model.BeforePauseStatus, int(thread.Status))
	s.changeState(thread, model.PAUSED)
	return s.save(thread)
}

// Continue restores the status the thread had before it was paused and
// advances it when it was runnable.
func (s *Scheduler) Continue(thread *model.ActivityThread) error {
	if thread.Status != model.PAUSED {
		return s.reject(thread, newScheduleError(InvalidStatus, "can not continue %s thread", thread.Status))
	}
	v, ok := thread.ContextVar(model.BeforePauseStatus)
	if !ok {
		return s.reject(thread, newScheduleError(BpsNotFound, "thread %s has no status before pause", thread.Key()))
	}
	st, ok := model.StatusFromCode(model.ToInt(v, -1))
	if !ok || st.IsTerminal() || st == model.PAUSED {
		return s.reject(thread, newScheduleError(InvalidBps, "thread %s has invalid status before pause %v", thread.Key(), v))
	}
	env, err := s.env(thread)
	if err != nil {
		return s.reject(thread, err)
	}
	thread.RemoveContextVar(model.BeforePauseStatus)
	s.changeState(thread, st)
	if st == model.SUSPENDING || st == model.RUNNING {
		s.advance(env, nil)
	}
	return s.persist(env)
}

func (s *Scheduler) Kill(thread *model.ActivityThread) error {
	if thread.Status == model.KILLED {
		return s.reject(thread, newScheduleError(AlreadyKilled, "thread %s", thread.Key()))
	}
	s.changeState(thread, model.KILLED)
	return s.save(thread)
}

// Repair resumes a thread that is in repair. On any other thread it has no
// effect.
func (s *Scheduler) Repair(thread *model.ActivityThread, args model.RepairArgs) error {
	if !thread.InRepair() {
		logger.Debug("repair on thread not in repair", zap.String("thread", thread.Key()))
		return nil
	}
	env, err := s.env(thread)
	if err != nil {
		return s.reject(thread, err)
	}
	switch args.Ctrl {
	case model.RepairWaiting:
		thread.PutContextVars(args.ContextVars)
		return s.save(thread)
	case model.RepairGoto:
		if _, ok := env.Definition.Action(args.Goto); !ok {
			return s.reject(thread, newScheduleError(ActionNotFound, "no action %s in %s", args.Goto, env.Definition.Name))
		}
		thread.PutContextVars(args.ContextVars)
		thread.RemoveContextVar(thread.RetryCountVar())
		clearRepair(thread)
		thread.CurrentAction = args.Goto
	case model.RepairRetry:
		thread.PutContextVars(args.ContextVars)
		clearRepair(thread)
	default:
		return s.reject(thread, newScheduleError(UnknownRepairCtrl, "unknown repair ctrl %s", args.Ctrl))
	}
	logger.Info("thread repaired", zap.String("thread", thread.Key()), zap.String("ctrl", string(args.Ctrl)),
		zap.String("action", thread.CurrentAction))
	s.changeState(thread, model.SUSPENDING)
	s.advance(env, nil)
	return s.persist(env)
}

func (s *Scheduler) advance(env *action.Env, mailbox []model.Message) {
	thread := env.Thread
	maxPeriods := env.Activity.ConfigInt("max_continue_periods", s.conf.MaxContinuePeriods)
	periods := 0
	for {
		switch thread.Status {
		case model.SUSPENDING:
			s.changeState(thread, model.RUNNING)
		case model.RUNNING:
			if maxPeriods > 0 && periods >= maxPeriods {
				s.suspend(env)
				return
			}
			periods++
			s.step(env)
		case model.WAITING:
			if thread.InRepair() || len(mailbox) == 0 {
				return
			}
			mailbox = s.deliver(env, mailbox)
			if thread.Status == model.WAITING && len(mailbox) == 0 {
				return
			}
		default:
			return
		}
	}
}

// step runs the current action once.
func (s *Scheduler) step(env *action.Env) {
	defer func() {
		env.Event = nil
	}()
	thread := env.Thread
	def, ok := env.Definition.Action(thread.CurrentAction)
	if !ok {
		s.fault(env, newScheduleError(ActionNotFound, "no action %s in %s", thread.CurrentAction, env.Definition.Name))
		return
	}
	act, err := s.actions.New(def)
	if err != nil {
		s.fault(env, err)
		return
	}
	if err := action.CheckAssertions(env, def); err != nil {
		s.fault(env, err)
		return
	}
	logger.Debug("running action", zap.String("thread", thread.Key()), zap.String("action", def.Name), zap.String("type", def.Type))
	switch a := act.(type) {
	case action.SyncAction:
		res, err := a.Execute(env)
		if err != nil {
			s.fault(env, err)
			return
		}
		s.resolve(env, def, nil, res)
	case action.AsyncAction:
		if err := a.SendRequest(env); err != nil {
			s.fault(env, err)
			return
		}
		if def.Await {
			s.changeState(thread, model.WAITING)
			return
		}
		ctrl, err := resolve(env, def, nil, model.Ok())
		if err != nil {
			s.fault(env, err)
			return
		}
		switch ctrl.Type {
		case action.FAIL, action.FINISH, action.CALL:
			s.apply(env, ctrl)
		default:
			s.fault(env, fmt.Errorf("action %s does not await a response and can not %s", def.Name, ctrl))
		}
	default:
		s.fault(env, fmt.Errorf("action %s has no known kind", def.Name))
	}
}

// deliver hands messages to the action the thread waits on until it leaves
// WAITING. It returns the messages left over.
func (s *Scheduler) deliver(env *action.Env, mailbox []model.Message) []model.Message {
	thread := env.Thread
	def, ok := env.Definition.Action(thread.CurrentAction)
	if !ok {
		s.fault(env, newScheduleError(ActionNotFound, "no action %s in %s", thread.CurrentAction, env.Definition.Name))
		return nil
	}
	act, err := s.actions.New(def)
	if err != nil {
		s.fault(env, err)
		return nil
	}
	for i := range mailbox {
		msg := mailbox[i]
		if msg.Type == model.ClockMessageType && msg.Action == model.SuspendClockAction {
			continue
		}
		async, ok := act.(action.AsyncAction)
		if !ok {
			// a sync action that resolved to WAITING runs again on the next
			// event. Responses and timers are never addressed to it.
			if msg.IsAddressed() {
				logger.Debug("ignoring addressed message", zap.String("thread", thread.Key()),
					zap.String("action", thread.CurrentAction), zap.String("type", msg.Type), zap.String("to", msg.Action))
				continue
			}
			env.Event = &msg
			s.changeState(thread, model.RUNNING)
			return mailbox[i+1:]
		}
		res, err := async.HandleResponse(env, msg)
		if err != nil {
			s.fault(env, err)
			return mailbox[i+1:]
		}
		if res.IsIgnore() {
			continue
		}
		s.resolve(env, def, &msg, res)
		if thread.Status != model.WAITING {
			return mailbox[i+1:]
		}
	}
	return nil
}

func (s *Scheduler) resolve(env *action.Env, def *definition.ActionDefinition, msg *model.Message, res model.Result) {
	ctrl, err := resolve(env, def, msg, res)
	if err != nil {
		s.fault(env, err)
		return
	}
	s.apply(env, ctrl)
}

func (s *Scheduler) apply(env *action.Env, ctrl action.CtrlInfo) {
	thread := env.Thread
	logger.Debug("ctrl resolved", zap.String("thread", thread.Key()), zap.String("action", thread.CurrentAction),
		zap.String("ctrl", ctrl.String()))
	switch ctrl.Type {
	case action.CALL:
		if _, ok := env.Definition.Action(ctrl.NextStep); !ok {
			s.fault(env, newScheduleError(ActionNotFound, "no action %s in %s", ctrl.NextStep, env.Definition.Name))
			return
		}
		s.markGotoNext(thread, ctrl.NextStep, ctrl.ContextVars)
	case action.FINISH:
		s.markFinished(env, ctrl.ContextVars)
	case action.FAIL:
		s.markFailure(env, ctrl.FailureReason, ctrl.ContextVars)
	case action.WAITING:
		thread.PutContextVars(ctrl.ContextVars)
		s.changeState(thread, model.WAITING)
	case action.RETRY:
		counter := thread.RetryCountVar()
		v, _ := thread.ContextVar(counter)
		count := model.ToInt(v, 0)
		if count >= ctrl.RetryCount {
			fallback := *ctrl.Fallback
			fallback.ContextVars = mergeVars(ctrl.ContextVars, fallback.ContextVars)
			s.apply(env, fallback)
			return
		}
		thread.PutContextVars(ctrl.ContextVars)
		thread.PutContextVar(counter, count+1)
		logger.Info("retrying action", zap.String("thread", thread.Key()), zap.String("action", thread.CurrentAction),
			zap.Int("attempt", count+1), zap.Int("max", ctrl.RetryCount))
		s.changeState(thread, model.RUNNING)
	case action.REPAIRING:
		thread.PutContextVars(ctrl.ContextVars)
		s.enterRepair(thread, RepairByCtrl, ctrl.Problem)
	}
}

func (s *Scheduler) markGotoNext(thread *model.ActivityThread, next string, vars map[string]any) {
	thread.PutContextVars(vars)
	thread.RemoveContextVar(thread.RetryCountVar())
	clearRepair(thread)
	thread.CurrentAction = next
	s.changeState(thread, model.RUNNING)
}

func (s *Scheduler) markFinished(env *action.Env, vars map[string]any) {
	thread := env.Thread
	thread.PutContextVars(vars)
	thread.RemoveContextVar(thread.RetryCountVar())
	clearRepair(thread)
	s.changeState(thread, model.FINISHED)
}

func (s *Scheduler) markFailure(env *action.Env, reason string, vars map[string]any) {
	thread := env.Thread
	thread.PutContextVars(vars)
	thread.RemoveContextVar(thread.RetryCountVar())
	clearRepair(thread)
	thread.PutContextVar(model.FailReasonVar, reason)
	logger.Info("thread failed", zap.String("thread", thread.Key()), zap.String("action", thread.CurrentAction),
		zap.String("reason", reason))
	s.changeState(thread, model.FAIL)
}

// fault puts the thread into repair after an unexpected error.
func (s *Scheduler) fault(env *action.Env, err error) {
	logger.Error("action fault", zap.String("thread", env.Thread.Key()), zap.String("action", env.Thread.CurrentAction),
		zap.Error(err))
	s.enterRepair(env.Thread, RepairByFault, err.Error())
}

func (s *Scheduler) enterRepair(thread *model.ActivityThread, cause RepairCause, problem string) {
	thread.PutContextVar(model.InRepairVar, true)
	if cause == RepairByCtrl {
		thread.PutContextVar(model.RepairProblemVar, problem)
	} else {
		thread.PutContextVar(model.FaultProblemVar, problem)
	}
	s.changeState(thread, model.WAITING)
	logger.Warn("thread in repair", zap.String("thread", thread.Key()), zap.String("action", thread.CurrentAction),
		zap.String("cause", string(cause)), zap.String("problem", problem))
	s.listeners.repair(thread, cause, problem)
}

func (s *Scheduler) suspend(env *action.Env) {
	thread := env.Thread
	fireAt := env.Now() + s.conf.SuspendTime.Milliseconds()
	if err := s.clock.RegisterTimer(fireAt, thread.ActivityID, thread.DomainID, model.SuspendClockAction, nil); err != nil {
		s.fault(env, err)
		return
	}
	logger.Debug("thread suspended", zap.String("thread", thread.Key()), zap.String("action", thread.CurrentAction))
	s.changeState(thread, model.SUSPENDING)
}

func (s *Scheduler) changeState(thread *model.ActivityThread, st model.Status) {
	from := thread.Status
	if from == st {
		return
	}
	thread.Status = st
	thread.UpdatedOn = s.now()
	logger.Debug("thread status changed", zap.Int("activity", thread.ActivityID), zap.String("domain", thread.DomainID),
		zap.String("action", thread.CurrentAction), zap.String("from", from.String()), zap.String("to", st.String()))
	s.listeners.statusChange(thread, from)
}

// persist stores the thread, running the terminal handler of its definition
// when it ended.
func (s *Scheduler) persist(env *action.Env) error {
	thread := env.Thread
	var handler definition.TerminalHandler
	switch thread.Status {
	case model.FINISHED:
		handler = env.Definition.OnFinished
	case model.FAIL:
		handler = env.Definition.OnFailed
	default:
		return s.save(thread)
	}
	if err := s.handlers.GetHandler(handler)(thread); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *Scheduler) save(thread *model.ActivityThread) error {
	if err := s.storage.Upsert(thread); err != nil {
		logger.Error("error saving thread", zap.String("thread", thread.Key()), zap.Error(err))
		return err
	}
	return nil
}

// env loads what an action needs to run for the thread. The definition
// version of the thread must still be enabled.
func (s *Scheduler) env(thread *model.ActivityThread) (*action.Env, error) {
	def, ok := s.catalog.Definition(thread.DefinitionName, thread.DefinitionVersion)
	if !ok || !def.Enable {
		return nil, newScheduleError(DefNotEnable, "definition %s version %s is not enabled", thread.DefinitionName, thread.DefinitionVersion)
	}
	activity, err := s.catalog.Activity(thread.ActivityID)
	if err != nil {
		return nil, newScheduleError(ErrorCode, "%s", err.Error())
	}
	return &action.Env{
		Thread:      thread,
		Activity:    activity,
		Definition:  def,
		Evaluator:   s.evaluator,
		Clock:       s.clock,
		Source:      s.source,
		Services:    s.services,
		ServiceName: s.conf.ServiceName,
	}, nil
}

// unconsumed drops messages already delivered to the thread and marks the
// rest as delivered.
// unconsumed drops the messages the thread already consumed, and repeats
// within the mailbox.
func (s *Scheduler) unconsumed(thread *model.ActivityThread, mailbox []model.Message) []model.Message {
	out := mailbox[:0:0]
	seen := make(map[string]bool, len(mailbox))
	for _, msg := range mailbox {
		if len(msg.ID) == 0 {
			out = append(out, msg)
			continue
		}
		if _, found := s.consumed.Get(consumedKey(thread, msg)); found || seen[msg.ID] {
			logger.Debug("message already consumed", zap.String("thread", thread.Key()), zap.String("message", msg.ID))
			continue
		}
		seen[msg.ID] = true
		out = append(out, msg)
	}
	return out
}

// markConsumed records the messages once the thread state they led to is
// stored, so a mailbox whose save failed is handled again on redelivery.
func (s *Scheduler) markConsumed(thread *model.ActivityThread, mailbox []model.Message) {
	for _, msg := range mailbox {
		if len(msg.ID) > 0 {
			s.consumed.SetDefault(consumedKey(thread, msg), struct{}{})
		}
	}
}

func consumedKey(thread *model.ActivityThread, msg model.Message) string {
	return thread.Key() + "/" + msg.ID
}

func (s *Scheduler) reject(thread *model.ActivityThread, err error) error {
	var se ScheduleError
	if !errors.As(err, &se) {
		se = newScheduleError(ErrorCode, "%s", err.Error())
	}
	logger.Warn("schedule error", zap.String("thread", thread.Key()), zap.String("code", se.Code), zap.String("message", se.Message))
	s.listeners.scheduleError(thread, se)
	return se
}

func (s *Scheduler) now() int64 {
	return clock.Millis(s.source)
}

func clearRepair(thread *model.ActivityThread) {
	thread.RemoveContextVar(model.InRepairVar)
	thread.RemoveContextVar(model.RepairProblemVar)
	thread.RemoveContextVar(model.FaultProblemVar)
}

func mergeVars(base map[string]any, over map[string]any) map[string]any {
	if len(base) == 0 {
		return over
	}
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
