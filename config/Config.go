package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mohitkumar/strand/analytics"
)

type StorageType string

type BusType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

const BUS_TYPE_INMEM BusType = "memory"
const BUS_TYPE_REDIS BusType = "redis"
const BUS_TYPE_NATS BusType = "nats"

type Config struct {
	RedisConfig      RedisStorageConfig
	NatsConfig       NatsConfig
	HttpPort         int
	GrpcPort         int
	StorageType      StorageType
	BusType          BusType
	InputBus         string
	ServiceName      string
	Services         []ServiceConfig
	DomainStrategies []string
	ExecutorCapacity int
	BatchSize        int
	LoopInterval     time.Duration
	SchedulerConfig  SchedulerConfig
	DefinitionsDir   string
	LogLevel         string
	ClusterConfig    ClusterConfig
	AnalyticsConfig  analytics.DataCollectorConfig
}

type SchedulerConfig struct {
	MaxContinuePeriods int
	SuspendTime        time.Duration
	DedupTTL           time.Duration
	ExpressionCacheTTL time.Duration
}

// ServiceConfig names the bus a service listens on.
type ServiceConfig struct {
	Name       string
	MessageBus string
}

type ClusterConfig struct {
	NodeName       string
	BindAddr       string
	Tags           map[string]string
	StartJoinAddrs []string
	PartitionCount int
}

func (c ClusterConfig) Enabled() bool {
	return c.BindAddr != ""
}

func (c Config) RPCAddr() (string, error) {
	host, _, err := net.SplitHostPort(c.ClusterConfig.BindAddr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", host, c.GrpcPort), nil
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}

type NatsConfig struct {
	URL string
}

// ParseServices reads name=bus pairs.
func ParseServices(pairs []string) ([]ServiceConfig, error) {
	var out []ServiceConfig
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, busName, ok := strings.Cut(pair, "=")
		if !ok || name == "" || busName == "" {
			return nil, fmt.Errorf("invalid service %q, expected name=bus", pair)
		}
		out = append(out, ServiceConfig{Name: strings.TrimSpace(name), MessageBus: strings.TrimSpace(busName)})
	}
	return out, nil
}

// BusNames lists the input bus followed by every distinct service bus.
func (c Config) BusNames() []string {
	seen := map[string]bool{c.InputBus: true}
	names := []string{c.InputBus}
	for _, s := range c.Services {
		if !seen[s.MessageBus] {
			seen[s.MessageBus] = true
			names = append(names, s.MessageBus)
		}
	}
	return names
}
