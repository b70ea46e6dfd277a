package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/mohitkumar/strand/bus"
	"github.com/mohitkumar/strand/clock"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"github.com/mohitkumar/strand/util"
	"go.uber.org/zap"
)

// Ownership decides which thread keys this node runs. Nil means all of them.
type Ownership interface {
	Owns(key string) bool
}

type RunnerConfig struct {
	BatchSize     int
	LoopInterval  time.Duration
	Workers       int
	QueueCapacity int
}

// Runner reads the input bus and the clock on every tick and hands the
// messages to the key workers owning their threads.
type Runner struct {
	conf       RunnerConfig
	input      bus.MessageBus
	clock      clock.Clock
	source     clock.Source
	scheduler  *Scheduler
	strategies *Strategies
	owner      Ownership
	pool       *util.KeyedWorkerPool
	tick       *util.TickWorker
	wg         sync.WaitGroup
}

func NewRunner(conf RunnerConfig, input bus.MessageBus, clk clock.Clock, source clock.Source, scheduler *Scheduler,
	strategies *Strategies, owner Ownership) *Runner {
	if conf.BatchSize <= 0 {
		conf.BatchSize = 100
	}
	if conf.LoopInterval <= 0 {
		conf.LoopInterval = 100 * time.Millisecond
	}
	if conf.QueueCapacity <= 0 {
		conf.QueueCapacity = conf.BatchSize
	}
	r := &Runner{
		conf:       conf,
		input:      input,
		clock:      clk,
		source:     source,
		scheduler:  scheduler,
		strategies: strategies,
		owner:      owner,
		pool:       util.NewKeyedWorkerPool("key-worker", conf.Workers, conf.QueueCapacity),
	}
	r.tick = util.NewTickWorker("runner", conf.LoopInterval, r.loop, &r.wg)
	return r
}

func (r *Runner) Start() {
	r.pool.Start()
	r.tick.Start()
}

func (r *Runner) Stop() {
	r.tick.Stop()
	r.wg.Wait()
	r.pool.Stop()
}

func (r *Runner) loop() {
	if _, err := r.Step(); err != nil {
		logger.Error("runner step failed", zap.Error(err))
	}
}

// Step runs one batch and waits for it to drain. It returns the number of
// messages read.
func (r *Runner) Step() (int, error) {
	msgs, err := r.input.Read(r.conf.BatchSize)
	if err != nil {
		return 0, err
	}
	timers, err := r.clock.Fetch(clock.Millis(r.source), r.conf.BatchSize)
	if err != nil {
		return 0, err
	}
	msgs = append(msgs, timers...)
	if len(msgs) == 0 {
		return 0, nil
	}
	var ctrls, addressed, events []model.Message
	for _, msg := range msgs {
		switch {
		case msg.Type == model.CtrlMessageType:
			ctrls = append(ctrls, msg)
		case msg.IsAddressed():
			addressed = append(addressed, msg)
		default:
			events = append(events, msg)
		}
	}
	var batch sync.WaitGroup
	r.dispatchCtrl(&batch, ctrls)
	r.dispatchAddressed(&batch, addressed)
	r.dispatchEvents(&batch, events)
	batch.Wait()
	return len(msgs), nil
}

func (r *Runner) dispatchCtrl(batch *sync.WaitGroup, msgs []model.Message) {
	for _, g := range groupByThread(msgs) {
		g := g
		r.submit(batch, g.key, func() error {
			thread, err := r.thread(g.activityID, g.domainID)
			if err != nil {
				return err
			}
			return r.scheduler.HandleCtrl(thread, g.msgs)
		})
	}
}

func (r *Runner) dispatchAddressed(batch *sync.WaitGroup, msgs []model.Message) {
	for _, g := range groupByThread(msgs) {
		g := g
		r.submit(batch, g.key, func() error {
			thread, err := r.thread(g.activityID, g.domainID)
			if err != nil {
				return err
			}
			return r.scheduler.Advance(thread, g.msgs)
		})
	}
}

func (r *Runner) dispatchEvents(batch *sync.WaitGroup, msgs []model.Message) {
	if len(msgs) == 0 {
		return
	}
	byStrategy := make(map[string]domainGroups)
	for _, activity := range r.scheduler.catalog.Activities() {
		if activity.Status == model.ActivityKilled {
			continue
		}
		def, ok := r.scheduler.catalog.Latest(activity.DefinitionName)
		if !ok {
			continue
		}
		groups, ok := byStrategy[def.DomainIDStrategy]
		if !ok {
			st, found := r.strategies.Get(def.DomainIDStrategy)
			if !found {
				logger.Warn("unknown domain strategy", zap.Int("activity", activity.ID), zap.String("strategy", def.DomainIDStrategy))
				continue
			}
			groups = groupByDomain(st, msgs)
			byStrategy[def.DomainIDStrategy] = groups
		}
		activity := activity
		for _, domainID := range groups.order {
			domainID := domainID
			mailbox := groups.groups[domainID]
			r.submit(batch, model.ThreadKey(activity.ID, domainID), func() error {
				return r.scheduler.HandleMailbox(activity, def, domainID, mailbox)
			})
		}
	}
}

func (r *Runner) submit(batch *sync.WaitGroup, key string, fn func() error) {
	if r.owner != nil && !r.owner.Owns(key) {
		return
	}
	batch.Add(1)
	r.pool.Submit(key, func() error {
		defer batch.Done()
		err := fn()
		if err != nil {
			logger.Debug("task failed", zap.String("key", key), zap.Error(err))
		}
		return err
	})
}

func (r *Runner) thread(activityID int, domainID string) (*model.ActivityThread, error) {
	thread, err := r.scheduler.storage.Get(activityID, domainID)
	if err != nil {
		var nf persistence.NotFoundError
		if errors.As(err, &nf) {
			return nil, newScheduleError(ThreadNotFound, "no thread %s", model.ThreadKey(activityID, domainID))
		}
		return nil, err
	}
	return thread, nil
}

type threadGroup struct {
	key        string
	activityID int
	domainID   string
	msgs       []model.Message
}

func groupByThread(msgs []model.Message) []*threadGroup {
	var out []*threadGroup
	index := make(map[string]*threadGroup)
	for _, msg := range msgs {
		key := model.ThreadKey(msg.ActivityID, msg.DomainID)
		g, ok := index[key]
		if !ok {
			g = &threadGroup{key: key, activityID: msg.ActivityID, domainID: msg.DomainID}
			index[key] = g
			out = append(out, g)
		}
		g.msgs = append(g.msgs, msg)
	}
	return out
}
