package util

import (
	"fmt"
	"sync"

	"github.com/mohitkumar/strand/logger"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

// Task is a unit of work run by a worker. Key is only used for logging.
type Task struct {
	Key string
	Run func() error
}

type Worker struct {
	name     string
	stop     chan struct{}
	wg       *sync.WaitGroup
	handler  func(Task) error
	taskChan chan Task
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		for {
			select {
			case task := <-w.taskChan:
				err := w.handler(task)
				if err != nil {
					logger.Error("error in executing task in worker", zap.String("worker", w.name), zap.String("key", task.Key), zap.Error(err))
				}
			case <-w.stop:
				logger.Info("stopping worker", zap.String("worker", w.name))
				return
			}
		}
	}()
}

func (w *Worker) Sender() chan<- Task {
	return w.taskChan
}

func (w *Worker) Stop() {
	w.stop <- struct{}{}
}

func NewWorker(name string, wg *sync.WaitGroup, handler func(Task) error, capacity int) *Worker {
	ch := make(chan Task, capacity)
	stop := make(chan struct{})
	return &Worker{
		taskChan: ch,
		name:     name,
		wg:       wg,
		stop:     stop,
		handler:  handler,
	}
}

// KeyedWorkerPool runs tasks on a fixed set of workers. Tasks sharing a key
// always land on the same worker and run one after another in submission
// order, tasks with different keys run in parallel up to the pool size.
type KeyedWorkerPool struct {
	name    string
	workers []*Worker
	wg      sync.WaitGroup
}

func NewKeyedWorkerPool(name string, size int, capacity int) *KeyedWorkerPool {
	if size <= 0 {
		size = 1
	}
	p := &KeyedWorkerPool{
		name:    name,
		workers: make([]*Worker, size),
	}
	for i := 0; i < size; i++ {
		p.workers[i] = NewWorker(fmt.Sprintf("%s-%d", name, i), &p.wg, runTask, capacity)
	}
	return p
}

func runTask(t Task) error {
	return t.Run()
}

func (p *KeyedWorkerPool) Start() {
	for _, w := range p.workers {
		w.Start()
	}
	logger.Info("worker pool started", zap.String("pool", p.name), zap.Int("size", len(p.workers)))
}

// Stop waits for every worker to finish its current task and exit.
func (p *KeyedWorkerPool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()
}

func (p *KeyedWorkerPool) Size() int {
	return len(p.workers)
}

// Slot returns the index of the worker owning key.
func (p *KeyedWorkerPool) Slot(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(len(p.workers)))
}

// Submit queues fn on the worker owning key. It blocks while that worker's
// queue is full.
func (p *KeyedWorkerPool) Submit(key string, fn func() error) {
	p.workers[p.Slot(key)].Sender() <- Task{Key: key, Run: fn}
}
