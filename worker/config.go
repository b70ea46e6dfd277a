package worker

import "time"

type WorkerConfiguration struct {
	ServiceName              string
	PollInterval             time.Duration
	BatchSize                int
	MaxRetryBeforeResultPush int
}
