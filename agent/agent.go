package agent

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/mohitkumar/strand/action"
	"github.com/mohitkumar/strand/analytics"
	"github.com/mohitkumar/strand/bus"
	"github.com/mohitkumar/strand/clock"
	"github.com/mohitkumar/strand/cluster"
	"github.com/mohitkumar/strand/config"
	"github.com/mohitkumar/strand/engine"
	"github.com/mohitkumar/strand/expression"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/metadata"
	"github.com/mohitkumar/strand/persistence"
	"github.com/mohitkumar/strand/persistence/memory"
	"github.com/mohitkumar/strand/persistence/redis"
	"github.com/mohitkumar/strand/rest"
	"github.com/mohitkumar/strand/rpc"
	"github.com/mohitkumar/strand/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type Agent struct {
	Config       config.Config
	source       clock.Source
	buses        *bus.Manager
	input        bus.MessageBus
	services     *service.Registry
	storage      persistence.ThreadStorage
	metaStorage  metadata.Storage
	clock        clock.Clock
	evaluator    expression.Evaluator
	metadata     *metadata.Service
	scheduler    *engine.Scheduler
	collector    analytics.ThreadDataCollector
	ring         *cluster.Ring
	membership   *cluster.Membership
	runner       *engine.Runner
	control      *engine.Control
	httpServer   *rest.Server
	grpcServer   *grpc.Server
	closers      []io.Closer
	shutdown     bool
	shutdownLock sync.Mutex
}

func New(config config.Config) (*Agent, error) {
	a := &Agent{
		Config: config,
		source: clock.SystemSource{},
	}
	setup := []func() error{
		a.setupLogger,
		a.setupStorage,
		a.setupBuses,
		a.setupServices,
		a.setupMetadata,
		a.setupAnalytics,
		a.setupCluster,
		a.setupRunner,
		a.setupHttpServer,
		a.setupGrpcServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupLogger() error {
	if a.Config.LogLevel == "" {
		return nil
	}
	return logger.Init(a.Config.LogLevel, false)
}

func (a *Agent) redisConfig() redis.Config {
	return redis.Config{
		Addrs:     a.Config.RedisConfig.Addrs,
		Namespace: a.Config.RedisConfig.Namespace,
	}
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_INMEM:
		a.storage = memory.NewThreadStorage()
		a.metaStorage = memory.NewMetadataStorage()
		a.clock = clock.NewMemoryClock()
	case config.STORAGE_TYPE_REDIS:
		threads := redis.NewRedisThreadStorage(a.redisConfig())
		meta := redis.NewRedisMetadataStorage(a.redisConfig())
		clk := redis.NewRedisClock(a.redisConfig())
		a.storage, a.metaStorage, a.clock = threads, meta, clk
		a.closers = append(a.closers, threads, meta, clk)
	default:
		return fmt.Errorf("unknown storage %s", a.Config.StorageType)
	}
	return nil
}

func (a *Agent) newBus(name string) (bus.MessageBus, error) {
	switch a.Config.BusType {
	case config.BUS_TYPE_INMEM:
		return bus.NewMemoryBus(name), nil
	case config.BUS_TYPE_REDIS:
		return redis.NewRedisQueue(name, a.redisConfig()), nil
	case config.BUS_TYPE_NATS:
		return bus.NewNatsBus(name, bus.NatsConfig{
			URL:           a.Config.NatsConfig.URL,
			Subject:       a.Config.RedisConfig.Namespace + "." + name,
			QueueGroup:    a.Config.RedisConfig.Namespace,
			Buffer:        a.Config.BatchSize * 10,
			MaxReconnects: -1,
		})
	}
	return nil, fmt.Errorf("unknown message bus %s", a.Config.BusType)
}

func (a *Agent) setupBuses() error {
	a.buses = bus.NewManager()
	for _, name := range a.Config.BusNames() {
		b, err := a.newBus(name)
		if err != nil {
			return err
		}
		a.buses.Register(b)
	}
	a.input, _ = a.buses.Get(a.Config.InputBus)
	return nil
}

func (a *Agent) setupServices() error {
	a.services = service.NewRegistry(a.buses)
	for _, s := range a.Config.Services {
		if err := a.services.Register(service.Meta{Name: s.Name, MessageBus: s.MessageBus}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) setupMetadata() error {
	a.evaluator = expression.NewGojaEvaluator(expression.NewProgramCache(a.Config.SchedulerConfig.ExpressionCacheTTL), a.source)
	actions := action.NewRegistry(a.services)
	triggers := engine.NewTriggerRegistry()
	a.metadata = metadata.NewService(a.metaStorage, &engine.ComponentChecker{Actions: actions, Triggers: triggers}, a.evaluator, a.source)
	if err := a.metadata.Load(); err != nil {
		return err
	}
	if a.Config.DefinitionsDir != "" {
		if err := a.metadata.LoadDir(a.Config.DefinitionsDir); err != nil {
			return err
		}
	}
	a.scheduler = engine.NewScheduler(engine.SchedulerConfig{
		ServiceName:        a.Config.ServiceName,
		MaxContinuePeriods: a.Config.SchedulerConfig.MaxContinuePeriods,
		SuspendTime:        a.Config.SchedulerConfig.SuspendTime,
		DedupTTL:           a.Config.SchedulerConfig.DedupTTL,
	}, a.storage, a.metadata, actions, triggers, a.evaluator, a.clock, a.source, a.services)
	return nil
}

func (a *Agent) setupAnalytics() error {
	collector, err := analytics.NewDataCollector(a.Config.AnalyticsConfig)
	if err != nil {
		return err
	}
	if collector != nil {
		a.collector = collector
		a.scheduler.AddListener(collector)
		a.closers = append(a.closers, collector)
	}
	return nil
}

func (a *Agent) setupCluster() error {
	conf := a.Config.ClusterConfig
	a.ring = cluster.NewRing(cluster.RingConfig{PartitionCount: conf.PartitionCount})
	if !conf.Enabled() {
		return nil
	}
	if conf.NodeName == "" {
		conf.NodeName = uuid.NewString()
	}
	rpcAddr, err := a.Config.RPCAddr()
	if err != nil {
		return err
	}
	if err := a.ring.JoinLocal(conf.NodeName, rpcAddr); err != nil {
		return err
	}
	tags := map[string]string{"rpc_addr": rpcAddr}
	for k, v := range conf.Tags {
		tags[k] = v
	}
	a.membership, err = cluster.NewMembership(a.ring, cluster.Config{
		NodeName:       conf.NodeName,
		BindAddr:       conf.BindAddr,
		Tags:           tags,
		StartJoinAddrs: conf.StartJoinAddrs,
	})
	return err
}

func (a *Agent) setupRunner() error {
	strategies := engine.NewStrategies()
	for _, raw := range a.Config.DomainStrategies {
		st, err := engine.ParseStrategy(raw, a.evaluator)
		if err != nil {
			return err
		}
		strategies.Register(st)
	}
	a.runner = engine.NewRunner(engine.RunnerConfig{
		BatchSize:    a.Config.BatchSize,
		LoopInterval: a.Config.LoopInterval,
		Workers:      a.Config.ExecutorCapacity,
	}, a.input, a.clock, a.source, a.scheduler, strategies, a.ring)
	a.control = engine.NewControl(a.input, a.storage, a.source, a.Config.ServiceName)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.metadata, a.control)
	return err
}

func (a *Agent) setupGrpcServer() error {
	var err error
	a.grpcServer, err = rpc.NewGrpcServer(&rpc.GrpcConfig{Threads: a.control})
	return err
}

func (a *Agent) Start() error {
	a.runner.Start()
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server failed", zap.Error(err))
			_ = a.Shutdown()
		}
	}()

	logger.Info("starting grpc server on", zap.Int("port", a.Config.GrpcPort))
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.Config.GrpcPort))
	if err != nil {
		return err
	}
	go func() {
		if err := a.grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server failed", zap.Error(err))
			_ = a.Shutdown()
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		func() error {
			if a.membership == nil {
				return nil
			}
			return a.membership.Leave()
		},
		a.httpServer.Stop,
		func() error {
			logger.Info("stopping grpc server")
			a.grpcServer.GracefulStop()
			return nil
		},
		func() error {
			a.runner.Stop()
			return nil
		},
		a.buses.Close,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.Error("error closing", zap.Error(err))
		}
	}
	_ = logger.Sync()
	return nil
}
