package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/strand/action"
	"github.com/mohitkumar/strand/bus"
	"github.com/mohitkumar/strand/clock"
	"github.com/mohitkumar/strand/expression"
	"github.com/mohitkumar/strand/metadata"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"github.com/mohitkumar/strand/persistence/memory"
	"github.com/mohitkumar/strand/service"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu      sync.Mutex
	spawns  []string
	changes []string
	repairs []RepairCause
	errors  []error
}

func (l *recordingListener) OnSpawn(thread *model.ActivityThread) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spawns = append(l.spawns, thread.Key())
}

func (l *recordingListener) OnStatusChange(thread *model.ActivityThread, from model.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, from.String()+">"+thread.Status.String())
}

func (l *recordingListener) OnRepair(thread *model.ActivityThread, cause RepairCause, problem string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.repairs = append(l.repairs, cause)
}

func (l *recordingListener) OnScheduleError(thread *model.ActivityThread, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, err)
}

func (l *recordingListener) spawnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.spawns)
}

type harness struct {
	source     *clock.ManualSource
	clock      clock.Clock
	storage    persistence.ThreadStorage
	meta       *metadata.Service
	scheduler  *Scheduler
	runner     *Runner
	input      bus.MessageBus
	serviceBus bus.MessageBus
	listener   *recordingListener
	activity   *model.Activity
}

func newHarness(t *testing.T, defYaml string, conf SchedulerConfig) *harness {
	source := clock.NewManualSource(time.UnixMilli(1_000_000))
	buses := bus.NewManager()
	input := bus.NewMemoryBus("input")
	serviceBus := bus.NewMemoryBus("service-bus")
	buses.Register(input)
	buses.Register(serviceBus)
	services := service.NewRegistry(buses)
	require.NoError(t, services.Register(service.Meta{Name: "payments", MessageBus: "service-bus"}))

	ev := expression.NewGojaEvaluator(expression.NewProgramCache(time.Minute), source)
	actions := action.NewRegistry(services)
	triggers := NewTriggerRegistry()
	meta := metadata.NewService(memory.NewMetadataStorage(), &ComponentChecker{Actions: actions, Triggers: triggers}, ev, source)
	_, err := meta.AddDefinition([]byte(defYaml))
	require.NoError(t, err)
	activity, err := meta.CreateActivity("orders", "order", nil)
	require.NoError(t, err)

	storage := memory.NewThreadStorage()
	clk := clock.NewMemoryClock()
	if conf.ServiceName == "" {
		conf.ServiceName = "runner"
	}
	scheduler := NewScheduler(conf, storage, meta, actions, triggers, ev, clk, source, services)
	listener := &recordingListener{}
	scheduler.AddListener(listener)

	strategies := NewStrategies()
	strategies.Register(NewAttributeStrategy("order_id", "order_id"))
	runner := NewRunner(RunnerConfig{BatchSize: 50, Workers: 4}, input, clk, source, scheduler, strategies, nil)
	runner.pool.Start()
	t.Cleanup(runner.pool.Stop)

	return &harness{
		source:     source,
		clock:      clk,
		storage:    storage,
		meta:       meta,
		scheduler:  scheduler,
		runner:     runner,
		input:      input,
		serviceBus: serviceBus,
		listener:   listener,
		activity:   activity,
	}
}

func (h *harness) now() int64 {
	return clock.Millis(h.source)
}

func (h *harness) event(t *testing.T, eventType string, orderID string, attrs map[string]any) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["order_id"] = orderID
	require.NoError(t, h.input.Write(model.NewEvent(eventType, "test", "", attrs, h.now())))
}

func (h *harness) respond(t *testing.T, orderID string, actionName string, res model.Result) {
	msg := model.NewServiceResponse(h.activity.ID, orderID, actionName, "payments", "runner", res, h.now())
	require.NoError(t, h.input.Write(msg))
}

func (h *harness) ctrl(t *testing.T, orderID string, command string, args map[string]any) {
	require.NoError(t, h.input.Write(model.NewCtrlMessage(h.activity.ID, orderID, command, args, "operator", h.now())))
}

func (h *harness) step(t *testing.T) {
	_, err := h.runner.Step()
	require.NoError(t, err)
}

func (h *harness) thread(t *testing.T, orderID string) *model.ActivityThread {
	thread, err := h.storage.Get(h.activity.ID, orderID)
	require.NoError(t, err)
	return thread
}

func (h *harness) noThread(t *testing.T, orderID string) {
	_, err := h.storage.Get(h.activity.ID, orderID)
	require.ErrorAs(t, err, &persistence.NotFoundError{})
}

func (h *harness) requests(t *testing.T) []model.Message {
	msgs, err := h.serviceBus.Read(100)
	require.NoError(t, err)
	return msgs
}
