package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/intimehq/txlog-publisher/cfg"
	"github.com/intimehq/txlog-publisher/pipeline"
	"github.com/intimehq/txlog-publisher/publisher"
	"github.com/intimehq/txlog-publisher/publisher/sink"
	"github.com/intimehq/txlog-publisher/source"
	"github.com/intimehq/txlog-publisher/telemetry"
	"github.com/intimehq/txlog-publisher/tracker"
	"github.com/intimehq/txlog-publisher/txlog"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Str("program", cfg.Config.Publisher.ProgramName).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("Transaction Log Publisher")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Checkpoint store
	checkpoints, err := openTracker()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open checkpoint store")
		return
	}
	defer checkpoints.Close()

	if err := checkpoints.EnsureExists(ctx, cfg.Config.Publisher.ProgramName); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize checkpoint row")
		return
	}

	// Transaction log source
	src, err := openSource()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transaction log source")
		return
	}
	defer src.Close()

	// Message bus sink
	busSink, err := openSink(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect message bus sink")
		return
	}
	defer busSink.Close()

	pub, err := buildPublisher(busSink)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build batch publisher")
		return
	}

	filter, err := buildFilter()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid event type filter")
		return
	}

	formatter := &txlog.Formatter{
		AddTraceID: cfg.Config.Publisher.AddTraceID,
		DataType:   cfg.Config.Publisher.DataType,
	}

	orchestrator, err := pipeline.NewOrchestrator(
		cfg.Config.Publisher.ProgramName,
		cfg.Config.Publisher.MaxRecordsPerCycle,
		src,
		formatter,
		filter,
		pub,
		checkpoints,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
		return
	}

	scheduler := pipeline.NewScheduler(
		orchestrator,
		time.Duration(cfg.Config.Publisher.PollIntervalSeconds)*time.Second,
	)

	log.Info().
		Str("sink", cfg.Config.Sink.Type).
		Str("subject", cfg.Config.Publisher.Subject).
		Int("batch_size", cfg.Config.Publisher.BatchSize).
		Msg("Starting publisher")

	scheduler.Run(ctx)

	log.Info().Msg("Shutdown complete")
}

func openTracker() (tracker.Store, error) {
	c := cfg.Config.Tracker
	switch c.Driver {
	case "mysql":
		return tracker.NewMySQLStore(c.DSN, c.PoolSize)
	case "sqlite":
		return tracker.NewSQLiteStore(c.DSN)
	default:
		return nil, fmt.Errorf("unsupported tracker driver %q", c.Driver)
	}
}

func openSource() (*source.SQLStore, error) {
	c := cfg.Config.Source
	table := source.DefaultTableConfig()
	if c.Table != "" {
		table.Table = c.Table
	}
	if c.TimeColumn != "" {
		table.TimeColumn = c.TimeColumn
	}
	if c.TypeColumn != "" {
		table.TypeColumn = c.TypeColumn
	}
	if c.CaseColumn != "" {
		table.CaseColumn = c.CaseColumn
	}
	return source.NewMySQLStore(c.DSN, c.PoolSize, table)
}

func openSink(ctx context.Context) (publisher.Sink, error) {
	switch cfg.Config.Sink.Type {
	case "nats":
		c := cfg.Config.Sink.Nats
		natsSink, err := sink.NewNatsSink(sink.NatsConfig{
			Servers:        c.Servers,
			Username:       c.Username,
			Password:       c.Password,
			ConnectTimeout: time.Duration(c.ConnectTimeoutSeconds) * time.Second,
			MaxReconnects:  c.MaxReconnects,
			ReconnectWait:  time.Duration(c.ReconnectWaitSeconds) * time.Second,
			StreamName:     c.StreamName,
			Subjects:       []string{cfg.Config.Publisher.Subject},
		})
		if err != nil {
			return nil, err
		}
		policy, err := publisher.NewBackoffPolicy(time.Second, 10*time.Second, 2.0)
		if err != nil {
			return nil, err
		}
		connect := publisher.Wrap(policy, cfg.Config.Publisher.MaxRetries, func() error {
			return natsSink.Connect(ctx)
		})
		if err := connect(ctx); err != nil {
			return nil, err
		}
		return natsSink, nil
	case "kafka":
		c := cfg.Config.Sink.Kafka
		return sink.NewKafkaSink(sink.KafkaConfig{
			Brokers:          c.Brokers,
			AutoCreateTopics: c.AutoCreateTopics,
		})
	default:
		return nil, fmt.Errorf("unsupported sink type %q", cfg.Config.Sink.Type)
	}
}

func buildPublisher(busSink publisher.Sink) (*publisher.BatchPublisher, error) {
	p := cfg.Config.Publisher
	backoff, err := publisher.NewBackoffPolicy(
		time.Duration(p.InitialBackoffSeconds*float64(time.Second)),
		time.Duration(p.MaxBackoffSeconds*float64(time.Second)),
		p.BackoffMultiplier,
	)
	if err != nil {
		return nil, err
	}
	return publisher.NewBatchPublisher(busSink, p.Subject, p.BatchSize, p.MaxRetries, backoff)
}

func buildFilter() (*publisher.TypeFilter, error) {
	if len(cfg.Config.Publisher.EventTypes) == 0 {
		return nil, nil
	}
	field := cfg.Config.Source.TypeColumn
	if field == "" {
		field = source.DefaultTableConfig().TypeColumn
	}
	return publisher.NewTypeFilter(field, cfg.Config.Publisher.EventTypes)
}
