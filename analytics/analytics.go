package analytics

import (
	"fmt"

	"github.com/mohitkumar/strand/engine"
)

type DataCollectorConfig struct {
	FileName      string
	CollectorType DataCollectorType
}

type DataCollectorType string

const LOG_FILE_DATA_COLLECTOR DataCollectorType = "LOG_FILE_DATA_COLLECTOR"
const NOOP_DATA_COLLECTOR DataCollectorType = "NOOP_DATA_COLLECTOR"

// ThreadDataCollector records thread lifecycle events for offline analysis.
type ThreadDataCollector interface {
	engine.StatusListener
	Close() error
}

// NewDataCollector returns nil for the noop collector.
func NewDataCollector(config DataCollectorConfig) (ThreadDataCollector, error) {
	switch config.CollectorType {
	case LOG_FILE_DATA_COLLECTOR:
		return NewLogFileDataCollector(config.FileName)
	case NOOP_DATA_COLLECTOR, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown data collector %s", config.CollectorType)
}
