package worker

import (
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

type RetryPolicy string

const RETRY_POLICY_FIXED RetryPolicy = "FIXED"
const RETRY_POLICY_BACKOFF RetryPolicy = "BACKOFF"

var _ Worker = new(WorkerWrapper)

// WorkerWrapper turns a function into a Worker and carries how failed
// response pushes are retried.
type WorkerWrapper struct {
	name          string
	worker        func(map[string]any) (map[string]any, error)
	retryInterval time.Duration
	retryPolicy   RetryPolicy
}

func NewDefaultWorker(name string, w func(map[string]any) (map[string]any, error)) *WorkerWrapper {
	return &WorkerWrapper{
		name:          name,
		worker:        w,
		retryInterval: time.Second,
		retryPolicy:   RETRY_POLICY_FIXED,
	}
}

func (w *WorkerWrapper) WithRetryInterval(retryInterval time.Duration) *WorkerWrapper {
	w.retryInterval = retryInterval
	return w
}

func (w *WorkerWrapper) WithRetryPolicy(policy string) *WorkerWrapper {
	w.retryPolicy = RetryPolicy(policy)
	return w
}

func (w *WorkerWrapper) Execute(args map[string]any) (map[string]any, error) {
	return w.worker(args)
}

func (w *WorkerWrapper) GetName() string {
	return w.name
}

func (w *WorkerWrapper) backOff(maxRetries int) backoff.BackOff {
	var b backoff.BackOff
	switch w.retryPolicy {
	case RETRY_POLICY_BACKOFF:
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = w.retryInterval
		exp.MaxElapsedTime = 0
		b = exp
	default:
		b = backoff.NewConstantBackOff(w.retryInterval)
	}
	return backoff.WithMaxRetries(b, uint64(maxRetries))
}
