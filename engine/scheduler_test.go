package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"github.com/stretchr/testify/require"
)

const twoStepDef = `
name: order
version: "1"
domain_id_strategy: order_id
enable: true
trigger:
  type: event
  args:
    condition: "event.type == 'start'"
  context_vars:
    amount: "event.attr.amount"
actions:
  - name: A
    type: receive
    args:
      when: "event.type == 'ok'"
    default_ctrl: "call('B')"
  - name: B
    type: receive
    args:
      when: "event.type == 'ok'"
    default_ctrl: "finish()"
`

const branchDef = `
name: order
version: "1"
domain_id_strategy: order_id
enable: true
trigger:
  type: event
  args:
    condition: "event.type == 'start'"
  context_vars:
    amount: "event.attr.amount"
actions:
  - name: A
    type: compute
    ctrl:
      - when: "context.amount > 100"
        then: "call('B')"
      - when: "context.amount > 10"
        then: "call('C')"
    default_ctrl: "fail('small')"
  - name: B
    type: update_var
    args:
      vars:
        path: b
    default_ctrl: "finish()"
  - name: C
    type: update_var
    args:
      vars:
        path: c
    default_ctrl: "finish()"
`

const retryDef = `
name: order
version: "1"
domain_id_strategy: order_id
enable: true
trigger:
  type: event
  args:
    condition: "event.type == 'start'"
actions:
  - name: A
    type: payments
    args:
      request:
        kind: charge
    ctrl:
      - when: "result.isOk()"
        then: "finish()"
    default_ctrl: "retry(2, call('F'))"
  - name: F
    type: update_var
    args:
      vars:
        fallback: true
    default_ctrl: "finish()"
`

const fireAndForgetDef = `
name: order
version: "1"
domain_id_strategy: order_id
enable: true
trigger:
  type: event
  args:
    condition: "event.type == 'start'"
actions:
  - name: A
    type: service
    await: false
    args:
      service: payments
      request:
        kind: notify
    default_ctrl: "call('B')"
  - name: B
    type: update_var
    args:
      vars:
        notified: true
    default_ctrl: "finish()"
`

const timeoutDef = `
name: order
version: "1"
domain_id_strategy: order_id
enable: true
trigger:
  type: event
  args:
    condition: "event.type == 'start'"
actions:
  - name: A
    type: payments
    args:
      timeout: 1000
    ctrl:
      - when: "result.isTimeout()"
        then: "call('T')"
    default_ctrl: "finish()"
  - name: T
    type: update_var
    args:
      vars:
        timeouts: "${(context.timeouts || 0) + 1}"
    default_ctrl: "waiting()"
`

const repairDef = `
name: order
version: "1"
domain_id_strategy: order_id
enable: true
trigger:
  type: event
  args:
    condition: "event.type == 'start'"
actions:
  - name: A
    type: script
    args:
      script: "throw new Error('boom')"
    default_ctrl: "call('B')"
  - name: B
    type: receive
    args:
      when: "event.type == 'done'"
    default_ctrl: "finish()"
  - name: R
    type: compute
    default_ctrl: "repairing('needs review')"
`

const noAwaitWaitingDef = `
name: order
version: "1"
domain_id_strategy: order_id
enable: true
trigger:
  type: event
  args:
    condition: "event.type == 'start'"
actions:
  - name: A
    type: payments
    await: false
    default_ctrl: "waiting()"
`

const loopDef = `
name: order
version: "1"
domain_id_strategy: order_id
enable: true
trigger:
  type: event
  args:
    condition: "event.type == 'start'"
actions:
  - name: A
    type: update_var
    args:
      vars:
        count: "${(context.count || 0) + 1}"
    ctrl:
      - when: "context.count < 5"
        then: "call('A')"
    default_ctrl: "finish()"
`

const waitSyncDef = `
name: order
version: "1"
domain_id_strategy: order_id
enable: true
on_finished: delete
trigger:
  type: event
  args:
    condition: "event.type == 'start'"
actions:
  - name: A
    type: compute
    args:
      kind: "${typeof event === 'undefined' ? 'none' : event.type}"
    ctrl:
      - when: "result.data.kind == 'go'"
        then: "finish()"
    default_ctrl: "waiting()"
`

func TestScheduler(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"first matching condition wins":            testFirstMatchWins,
		"retry falls back once":                    testRetryFallback,
		"no await moves on without response":       testNoAwait,
		"timeout delivered once":                   testTimeoutOnce,
		"at most one spawn":                        testAtMostOneSpawn,
		"repair by goto then finish":               testRepairGoto,
		"trigger spawns only on match":             testTriggerSpawn,
		"pause ignores events until continue":      testPauseContinue,
		"kill wins in ctrl batch":                  testKillWins,
		"continue errors":                          testContinueErrors,
		"repair directives":                        testRepairDirectives,
		"repairing ctrl keeps its problem":         testRepairingCtrl,
		"max continue periods suspends":            testMaxContinuePeriods,
		"disabled definition rejected":             testDisabledDefinition,
		"waiting sync action reruns on next event": testWaitingSyncAction,
		"finished thread respawns on next trigger": testRespawnAfterFinish,
		"no await rejects waiting ctrl":            testNoAwaitInvalidCtrl,
		"mailbox consumed once":                    testMailboxConsumedOnce,
		"late response skips waiting sync action":  testLateResponseIgnored,
		"mailbox kept when save fails":             testMailboxKeptOnSaveFailure,
	} {
		t.Run(scenario, fn)
	}
}

func testFirstMatchWins(t *testing.T) {
	h := newHarness(t, branchDef, SchedulerConfig{})
	h.event(t, "start", "o-1", map[string]any{"amount": 150})
	h.event(t, "start", "o-2", map[string]any{"amount": 50})
	h.event(t, "start", "o-3", map[string]any{"amount": 5})
	h.step(t)

	o1 := h.thread(t, "o-1")
	require.Equal(t, model.FINISHED, o1.Status)
	require.Equal(t, "b", o1.Context["path"])
	o2 := h.thread(t, "o-2")
	require.Equal(t, model.FINISHED, o2.Status)
	require.Equal(t, "c", o2.Context["path"])
	o3 := h.thread(t, "o-3")
	require.Equal(t, model.FAIL, o3.Status)
	require.Equal(t, "small", o3.Context[model.FailReasonVar])
}

func testRetryFallback(t *testing.T) {
	h := newHarness(t, retryDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)
	require.Len(t, h.requests(t), 1)
	require.Equal(t, model.WAITING, h.thread(t, "o-1").Status)

	for i := 1; i <= 2; i++ {
		h.respond(t, "o-1", "A", model.Fail("declined", "no funds"))
		h.step(t)
		thread := h.thread(t, "o-1")
		require.Equal(t, model.WAITING, thread.Status)
		require.Equal(t, "A", thread.CurrentAction)
		require.Equal(t, i, model.ToInt(thread.Context["$A.retry"], 0))
		require.Len(t, h.requests(t), 1)
	}

	h.respond(t, "o-1", "A", model.Fail("declined", "no funds"))
	h.step(t)
	thread := h.thread(t, "o-1")
	require.Equal(t, model.FINISHED, thread.Status)
	require.Equal(t, "F", thread.CurrentAction)
	require.Equal(t, true, thread.Context["fallback"])
	require.NotContains(t, thread.Context, "$A.retry")
	require.Empty(t, h.requests(t))
}

func testNoAwait(t *testing.T) {
	h := newHarness(t, fireAndForgetDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)

	thread := h.thread(t, "o-1")
	require.Equal(t, model.FINISHED, thread.Status)
	require.Equal(t, true, thread.Context["notified"])
	sent := h.requests(t)
	require.Len(t, sent, 1)
	require.Equal(t, true, sent[0].Attributes["ignore_result"])
}

func testTimeoutOnce(t *testing.T) {
	h := newHarness(t, timeoutDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)
	require.Equal(t, model.WAITING, h.thread(t, "o-1").Status)

	h.source.Advance(500 * time.Millisecond)
	h.step(t)
	require.Equal(t, "A", h.thread(t, "o-1").CurrentAction)

	h.source.Advance(5 * time.Second)
	h.step(t)
	thread := h.thread(t, "o-1")
	require.Equal(t, "T", thread.CurrentAction)
	require.Equal(t, 1, model.ToInt(thread.Context["timeouts"], 0))

	h.source.Advance(5 * time.Second)
	h.step(t)
	require.Equal(t, 1, model.ToInt(h.thread(t, "o-1").Context["timeouts"], 0))
}

func testAtMostOneSpawn(t *testing.T) {
	h := newHarness(t, twoStepDef, SchedulerConfig{})
	def, ok := h.meta.Latest("order")
	require.True(t, ok)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := model.NewEvent("start", "test", "", map[string]any{"order_id": "o-1"}, h.now())
			_ = h.scheduler.HandleMailbox(h.activity, def, "o-1", []model.Message{start})
		}()
	}
	wg.Wait()

	require.Equal(t, 1, h.listener.spawnCount())
	threads, err := h.storage.List(h.activity.ID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	require.Equal(t, "A", threads[0].CurrentAction)
}

func testRepairGoto(t *testing.T) {
	h := newHarness(t, repairDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)

	thread := h.thread(t, "o-1")
	require.True(t, thread.InRepair())
	require.Contains(t, thread.Context[model.FaultProblemVar], "boom")
	require.Equal(t, []RepairCause{RepairByFault}, h.listener.repairs)

	h.event(t, "done", "o-1", nil)
	h.step(t)
	require.True(t, h.thread(t, "o-1").InRepair())

	args := model.RepairArgs{Ctrl: model.RepairGoto, Goto: "B", ContextVars: map[string]any{"fixed": true}}
	h.ctrl(t, "o-1", model.RepairCommand, args.ToMap())
	h.step(t)
	thread = h.thread(t, "o-1")
	require.False(t, thread.InRepair())
	require.Equal(t, model.WAITING, thread.Status)
	require.Equal(t, "B", thread.CurrentAction)
	require.NotContains(t, thread.Context, model.FaultProblemVar)

	h.event(t, "done", "o-1", nil)
	h.step(t)
	thread = h.thread(t, "o-1")
	require.Equal(t, model.FINISHED, thread.Status)
	require.Equal(t, true, thread.Context["fixed"])
}

func testTriggerSpawn(t *testing.T) {
	h := newHarness(t, twoStepDef, SchedulerConfig{})
	h.event(t, "other", "o-1", nil)
	h.step(t)
	h.noThread(t, "o-1")
	require.Zero(t, h.listener.spawnCount())

	h.event(t, "start", "o-1", map[string]any{"amount": 3})
	h.step(t)
	thread := h.thread(t, "o-1")
	require.Equal(t, 1, h.listener.spawnCount())
	require.Equal(t, "A", thread.CurrentAction)
	require.Equal(t, model.WAITING, thread.Status)
	require.Equal(t, 3, model.ToInt(thread.Context["amount"], 0))

	h.event(t, "ok", "o-1", nil)
	h.step(t)
	require.Equal(t, "B", h.thread(t, "o-1").CurrentAction)

	h.event(t, "ok", "o-1", nil)
	h.step(t)
	require.Equal(t, model.FINISHED, h.thread(t, "o-1").Status)
	require.Equal(t, 1, h.listener.spawnCount())
}

func testPauseContinue(t *testing.T) {
	h := newHarness(t, twoStepDef, SchedulerConfig{})
	h.event(t, "start", "o-1", map[string]any{"amount": 3})
	h.step(t)
	before := h.thread(t, "o-1")

	h.ctrl(t, "o-1", model.PauseCommand, nil)
	h.step(t)
	paused := h.thread(t, "o-1")
	require.Equal(t, model.PAUSED, paused.Status)
	require.Equal(t, int(model.WAITING), model.ToInt(paused.Context[model.BeforePauseStatus], -1))

	h.event(t, "ok", "o-1", nil)
	h.step(t)
	require.Equal(t, model.PAUSED, h.thread(t, "o-1").Status)

	h.ctrl(t, "o-1", model.ContinueCommand, nil)
	h.step(t)
	after := h.thread(t, "o-1")
	require.Equal(t, model.WAITING, after.Status)
	require.Equal(t, before.CurrentAction, after.CurrentAction)
	require.Equal(t, before.Context, after.Context)
}

func testKillWins(t *testing.T) {
	h := newHarness(t, twoStepDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)

	h.ctrl(t, "o-1", model.KillCommand, nil)
	h.ctrl(t, "o-1", model.PauseCommand, nil)
	h.step(t)
	require.Equal(t, model.KILLED, h.thread(t, "o-1").Status)

	err := h.scheduler.Kill(h.thread(t, "o-1"))
	require.ErrorAs(t, err, &ScheduleError{})
	require.Equal(t, AlreadyKilled, err.(ScheduleError).Code)
}

func testContinueErrors(t *testing.T) {
	h := newHarness(t, twoStepDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)

	thread := h.thread(t, "o-1")
	err := h.scheduler.Continue(thread)
	require.Equal(t, InvalidStatus, err.(ScheduleError).Code)

	thread.Status = model.PAUSED
	err = h.scheduler.Continue(thread)
	require.Equal(t, BpsNotFound, err.(ScheduleError).Code)

	thread.PutContextVar(model.BeforePauseStatus, int(model.FINISHED))
	err = h.scheduler.Continue(thread)
	require.Equal(t, InvalidBps, err.(ScheduleError).Code)
	require.Len(t, h.listener.errors, 3)
}

func testRepairDirectives(t *testing.T) {
	h := newHarness(t, repairDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)
	thread := h.thread(t, "o-1")
	require.True(t, thread.InRepair())

	require.NoError(t, h.scheduler.Repair(thread, model.RepairArgs{Ctrl: model.RepairWaiting, ContextVars: map[string]any{"note": "x"}}))
	thread = h.thread(t, "o-1")
	require.True(t, thread.InRepair())
	require.Equal(t, "x", thread.Context["note"])

	err := h.scheduler.Repair(thread, model.RepairArgs{Ctrl: model.RepairGoto, Goto: "missing"})
	require.Equal(t, ActionNotFound, err.(ScheduleError).Code)

	require.NoError(t, h.scheduler.Repair(thread, model.RepairArgs{Ctrl: model.RepairRetry}))
	thread = h.thread(t, "o-1")
	require.True(t, thread.InRepair())
	require.Equal(t, "A", thread.CurrentAction)
	require.Equal(t, []RepairCause{RepairByFault, RepairByFault}, h.listener.repairs)

	h.ctrl(t, "o-1", model.RepairCommand, map[string]any{"ctrl": "rewind"})
	h.step(t)
	require.Len(t, h.listener.errors, 2)
	require.Equal(t, UnknownRepairCtrl, h.listener.errors[1].(ScheduleError).Code)

	require.NoError(t, h.scheduler.Repair(thread, model.RepairArgs{Ctrl: model.RepairGoto, Goto: "B"}))
	thread = h.thread(t, "o-1")
	require.NoError(t, h.scheduler.Repair(thread, model.RepairArgs{Ctrl: model.RepairGoto, Goto: "A"}))
	require.Equal(t, "B", h.thread(t, "o-1").CurrentAction)
}

func testRepairingCtrl(t *testing.T) {
	h := newHarness(t, repairDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)
	thread := h.thread(t, "o-1")

	require.NoError(t, h.scheduler.Repair(thread, model.RepairArgs{Ctrl: model.RepairGoto, Goto: "R"}))
	thread = h.thread(t, "o-1")
	require.True(t, thread.InRepair())
	require.Equal(t, "needs review", thread.Context[model.RepairProblemVar])
	require.NotContains(t, thread.Context, model.FaultProblemVar)
	require.Equal(t, []RepairCause{RepairByFault, RepairByCtrl}, h.listener.repairs)
}

func testMaxContinuePeriods(t *testing.T) {
	h := newHarness(t, loopDef, SchedulerConfig{MaxContinuePeriods: 2, SuspendTime: 10 * time.Millisecond})
	h.event(t, "start", "o-1", nil)
	h.step(t)
	thread := h.thread(t, "o-1")
	require.Equal(t, model.SUSPENDING, thread.Status)
	require.Equal(t, 2, model.ToInt(thread.Context["count"], 0))

	h.source.Advance(10 * time.Millisecond)
	h.step(t)
	require.Equal(t, 4, model.ToInt(h.thread(t, "o-1").Context["count"], 0))

	h.source.Advance(10 * time.Millisecond)
	h.step(t)
	thread = h.thread(t, "o-1")
	require.Equal(t, model.FINISHED, thread.Status)
	require.Equal(t, 5, model.ToInt(thread.Context["count"], 0))
}

func testDisabledDefinition(t *testing.T) {
	h := newHarness(t, twoStepDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)
	require.NoError(t, h.meta.DisableDefinition("order", "1"))

	err := h.scheduler.Advance(h.thread(t, "o-1"), nil)
	require.Equal(t, DefNotEnable, err.(ScheduleError).Code)
}

func testWaitingSyncAction(t *testing.T) {
	h := newHarness(t, waitSyncDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)
	thread := h.thread(t, "o-1")
	require.Equal(t, model.WAITING, thread.Status)

	h.event(t, "later", "o-1", nil)
	h.step(t)
	require.Equal(t, model.WAITING, h.thread(t, "o-1").Status)

	h.event(t, "go", "o-1", nil)
	h.step(t)
	h.noThread(t, "o-1")
}

func testRespawnAfterFinish(t *testing.T) {
	h := newHarness(t, branchDef, SchedulerConfig{})
	h.event(t, "start", "o-1", map[string]any{"amount": 150})
	h.step(t)
	require.Equal(t, "b", h.thread(t, "o-1").Context["path"])

	h.event(t, "start", "o-1", map[string]any{"amount": 50})
	h.step(t)
	thread := h.thread(t, "o-1")
	require.Equal(t, "c", thread.Context["path"])
	require.Equal(t, 2, h.listener.spawnCount())
}

func testNoAwaitInvalidCtrl(t *testing.T) {
	h := newHarness(t, noAwaitWaitingDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)
	thread := h.thread(t, "o-1")
	require.True(t, thread.InRepair())
	require.Contains(t, thread.Context[model.FaultProblemVar], "WAITING")
}

func testMailboxConsumedOnce(t *testing.T) {
	h := newHarness(t, twoStepDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)

	ok := model.NewEvent("ok", "test", "", map[string]any{"order_id": "o-1"}, h.now())
	require.NoError(t, h.scheduler.Advance(h.thread(t, "o-1"), []model.Message{ok}))
	require.Equal(t, "B", h.thread(t, "o-1").CurrentAction)

	require.NoError(t, h.scheduler.Advance(h.thread(t, "o-1"), []model.Message{ok}))
	require.Equal(t, model.WAITING, h.thread(t, "o-1").Status)
}

func testLateResponseIgnored(t *testing.T) {
	h := newHarness(t, timeoutDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)
	h.source.Advance(500 * time.Millisecond)
	h.step(t)
	h.source.Advance(5 * time.Second)
	h.step(t)
	thread := h.thread(t, "o-1")
	require.Equal(t, "T", thread.CurrentAction)
	require.Equal(t, model.WAITING, thread.Status)
	require.Equal(t, 1, model.ToInt(thread.Context["timeouts"], 0))

	h.respond(t, "o-1", "A", model.Ok())
	h.step(t)
	thread = h.thread(t, "o-1")
	require.Equal(t, "T", thread.CurrentAction)
	require.Equal(t, model.WAITING, thread.Status)
	require.Equal(t, 1, model.ToInt(thread.Context["timeouts"], 0))

	h.event(t, "poke", "o-1", nil)
	h.step(t)
	require.Equal(t, 2, model.ToInt(h.thread(t, "o-1").Context["timeouts"], 0))
}

type failingStorage struct {
	persistence.ThreadStorage
	failures int
}

func (s *failingStorage) Upsert(thread *model.ActivityThread) error {
	if s.failures > 0 {
		s.failures--
		return persistence.StorageLayerError{Message: "unavailable"}
	}
	return s.ThreadStorage.Upsert(thread)
}

func testMailboxKeptOnSaveFailure(t *testing.T) {
	h := newHarness(t, twoStepDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)

	storage := &failingStorage{ThreadStorage: h.storage, failures: 1}
	scheduler := NewScheduler(SchedulerConfig{ServiceName: "runner"}, storage, h.meta, h.scheduler.actions,
		h.scheduler.triggers, h.scheduler.evaluator, h.clock, h.source, h.scheduler.services)

	ok := model.NewEvent("ok", "test", "", map[string]any{"order_id": "o-1"}, h.now())
	require.ErrorAs(t, scheduler.Advance(h.thread(t, "o-1"), []model.Message{ok}), &persistence.StorageLayerError{})
	require.Equal(t, "A", h.thread(t, "o-1").CurrentAction)

	require.NoError(t, scheduler.Advance(h.thread(t, "o-1"), []model.Message{ok}))
	require.Equal(t, "B", h.thread(t, "o-1").CurrentAction)

	require.NoError(t, scheduler.Advance(h.thread(t, "o-1"), []model.Message{ok}))
	thread := h.thread(t, "o-1")
	require.Equal(t, "B", thread.CurrentAction)
	require.Equal(t, model.WAITING, thread.Status)
}

func TestStateHandlers(t *testing.T) {
	h := newHarness(t, twoStepDef, SchedulerConfig{})
	h.event(t, "start", "o-1", nil)
	h.step(t)
	thread := h.thread(t, "o-1")

	handlers := NewStateHandlerContainer(h.storage)
	require.NoError(t, handlers.GetHandler(definition.NOOP)(thread))
	h.thread(t, "o-1")
	require.NoError(t, handlers.GetHandler("unknown")(thread))
	h.thread(t, "o-1")
	require.NoError(t, handlers.GetHandler(definition.DELETE)(thread))
	h.noThread(t, "o-1")
}
