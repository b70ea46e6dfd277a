package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohitkumar/strand/agent"
	"github.com/mohitkumar/strand/analytics"
	"github.com/mohitkumar/strand/config"
	"github.com/mohitkumar/strand/rpc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "strand", "namespace used in storage and bus subjects")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().Int("grpc-port", 8099, "grpc port for thread control")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage: redis or memory")
	cmd.Flags().String("bus-impl", "redis", "implementation of message bus: redis, nats or memory")
	cmd.Flags().String("nats-url", "nats://localhost:4222", "nats server url")
	cmd.Flags().String("input-bus", "input", "bus the runner reads events and responses from")
	cmd.Flags().String("service-name", "strand", "name this runner uses as sender and response target")
	cmd.Flags().StringSlice("services", nil, "service=bus pairs of known services")
	cmd.Flags().Int("executor-capacity", 64, "number of key workers")
	cmd.Flags().Int("batch-size", 100, "messages read per runner step")
	cmd.Flags().Duration("loop-interval", 100*time.Millisecond, "runner tick interval")
	cmd.Flags().Int("max-continue-periods", 0, "actions run in one go before a thread suspends, 0 means unlimited")
	cmd.Flags().Duration("suspend-time", time.Millisecond, "delay before a suspended thread resumes")
	cmd.Flags().Duration("expression-cache-ttl", 10*time.Minute, "how long compiled expressions are cached")
	cmd.Flags().Duration("dedup-ttl", 10*time.Minute, "how long consumed message ids are remembered")
	cmd.Flags().String("definitions-dir", "", "directory of yaml definitions loaded at start")
	cmd.Flags().String("node-name", "", "cluster member name, random if empty")
	cmd.Flags().String("bind-addr", "", "serf bind address, clustering is off if empty")
	cmd.Flags().StringSlice("join-addrs", nil, "serf addresses to join")
	cmd.Flags().Int("partition-count", 271, "partitions in the cluster ring")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().String("analytics-file", "", "file receiving thread events as json lines")
	cmd.Flags().StringSlice("domain-strategies", nil, "domain id strategies as name=attribute or name=${expression}")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.NatsConfig.URL = viper.GetString("nats-url")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.GrpcPort = viper.GetInt("grpc-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.BusType = config.BusType(viper.GetString("bus-impl"))
	c.cfg.InputBus = viper.GetString("input-bus")
	c.cfg.ServiceName = viper.GetString("service-name")
	c.cfg.Services, err = config.ParseServices(viper.GetStringSlice("services"))
	if err != nil {
		return err
	}
	c.cfg.ExecutorCapacity = viper.GetInt("executor-capacity")
	c.cfg.BatchSize = viper.GetInt("batch-size")
	c.cfg.LoopInterval = viper.GetDuration("loop-interval")
	c.cfg.SchedulerConfig.MaxContinuePeriods = viper.GetInt("max-continue-periods")
	c.cfg.SchedulerConfig.SuspendTime = viper.GetDuration("suspend-time")
	c.cfg.SchedulerConfig.ExpressionCacheTTL = viper.GetDuration("expression-cache-ttl")
	c.cfg.SchedulerConfig.DedupTTL = viper.GetDuration("dedup-ttl")
	c.cfg.DefinitionsDir = viper.GetString("definitions-dir")
	c.cfg.ClusterConfig.NodeName = viper.GetString("node-name")
	c.cfg.ClusterConfig.BindAddr = viper.GetString("bind-addr")
	c.cfg.ClusterConfig.StartJoinAddrs = viper.GetStringSlice("join-addrs")
	c.cfg.ClusterConfig.PartitionCount = viper.GetInt("partition-count")
	c.cfg.LogLevel = viper.GetString("log-level")
	c.cfg.DomainStrategies = viper.GetStringSlice("domain-strategies")
	if file := viper.GetString("analytics-file"); file != "" {
		c.cfg.AnalyticsConfig = analytics.DataCollectorConfig{FileName: file, CollectorType: analytics.LOG_FILE_DATA_COLLECTOR}
	}
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	var err error
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		return err
	}
	err = agent.Start()
	if err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func threadCommand() *cobra.Command {
	var addr string
	var activityID int
	var domainID string
	cmd := &cobra.Command{
		Use:   "thread",
		Short: "Inspect and control activity threads",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "localhost:8099", "grpc address of a strand node")
	cmd.PersistentFlags().IntVar(&activityID, "activity", 0, "activity id")
	cmd.PersistentFlags().StringVar(&domainID, "domain", "", "domain id")

	call := func(method string, extra map[string]any) error {
		conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return err
		}
		defer conn.Close()
		req := map[string]any{"activity_id": activityID, "domain_id": domainID}
		for k, v := range extra {
			req[k] = v
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := rpc.NewClient(conn).Call(ctx, method, req)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	for _, method := range []string{"GetThread", "Pause", "Continue", "Kill"} {
		method := method
		cmd.AddCommand(&cobra.Command{
			Use:  strings.ToLower(strings.TrimSuffix(method, "Thread")),
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(method, nil)
			},
		})
	}

	var ctrl, gotoAction string
	repair := &cobra.Command{
		Use:  "repair",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("Repair", map[string]any{"ctrl": ctrl, "goto": gotoAction})
		},
	}
	repair.Flags().StringVar(&ctrl, "ctrl", "retry", "repair directive: waiting, goto or retry")
	repair.Flags().StringVar(&gotoAction, "goto", "", "action to go to")
	cmd.AddCommand(repair)
	return cmd
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "strand",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}
	cmd.AddCommand(threadCommand())

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
