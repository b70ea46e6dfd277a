package worker

import (
	"fmt"
	"sync"
	"time"

	"github.com/mohitkumar/strand/bus"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/util"
	"go.uber.org/zap"
)

// TaskPoller reads the requests sent to one service, runs the worker
// registered for the requested action and writes the response to the
// replies bus.
type TaskPoller struct {
	Config   WorkerConfiguration
	requests bus.MessageBus
	replies  bus.MessageBus
	workers  map[string]*pollerWorker
	tick     *util.TickWorker
	wg       *sync.WaitGroup
	mu       sync.RWMutex
}

func NewTaskPoller(conf WorkerConfiguration, requests bus.MessageBus, replies bus.MessageBus, wg *sync.WaitGroup) *TaskPoller {
	if conf.PollInterval <= 0 {
		conf.PollInterval = 100 * time.Millisecond
	}
	if conf.BatchSize <= 0 {
		conf.BatchSize = 50
	}
	tp := &TaskPoller{
		Config:   conf,
		requests: requests,
		replies:  replies,
		workers:  make(map[string]*pollerWorker),
		wg:       wg,
	}
	tp.tick = util.NewTickWorker("task-poller-"+conf.ServiceName, conf.PollInterval, tp.loop, wg)
	return tp
}

func (tp *TaskPoller) RegisterWorker(w *WorkerWrapper) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if _, ok := tp.workers[w.GetName()]; ok {
		return fmt.Errorf("worker %s already registered", w.GetName())
	}
	tp.workers[w.GetName()] = &pollerWorker{
		worker:                   w,
		serviceName:              tp.Config.ServiceName,
		replies:                  tp.replies,
		maxRetryBeforeResultPush: tp.Config.MaxRetryBeforeResultPush,
	}
	return nil
}

func (tp *TaskPoller) Start() {
	tp.tick.Start()
}

func (tp *TaskPoller) Stop() {
	tp.tick.Stop()
}

func (tp *TaskPoller) loop() {
	if _, err := tp.Poll(); err != nil {
		logger.Error("error polling requests", zap.String("service", tp.Config.ServiceName), zap.Error(err))
	}
}

// Poll handles one batch of requests and returns how many it read.
func (tp *TaskPoller) Poll() (int, error) {
	msgs, err := tp.requests.Read(tp.Config.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		if msg.Type != model.ServiceRequestMessageType || msg.Receiver != tp.Config.ServiceName {
			logger.Debug("skipping message", zap.String("service", tp.Config.ServiceName), zap.String("type", msg.Type), zap.String("receiver", msg.Receiver))
			continue
		}
		tp.mu.RLock()
		pw, ok := tp.workers[msg.Action]
		tp.mu.RUnlock()
		if !ok {
			if ignore, _ := msg.Attributes["ignore_result"].(bool); ignore {
				continue
			}
			res := response(msg, tp.Config.ServiceName, model.Fail(UnknownAction, "no worker for "+msg.Action))
			if err := tp.replies.Write(res); err != nil {
				logger.Error("error sending unknown action response", zap.String("action", msg.Action), zap.Error(err))
			}
			continue
		}
		pw.handle(msg)
	}
	return len(msgs), nil
}
