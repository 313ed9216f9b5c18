package cfg

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

// SourceConfiguration points at the transaction-log store.
type SourceConfiguration struct {
	DSN        string `toml:"dsn" env:"SOURCE_DSN"`
	PoolSize   int    `toml:"pool_size"`
	Table      string `toml:"table"`
	TimeColumn string `toml:"time_column"`
	TypeColumn string `toml:"type_column"`
	CaseColumn string `toml:"case_column"`
}

// TrackerConfiguration points at the checkpoint store.
type TrackerConfiguration struct {
	Driver   string `toml:"driver"` // "mysql" or "sqlite"
	DSN      string `toml:"dsn" env:"TRACKER_DSN"`
	PoolSize int    `toml:"pool_size"`
}

// NatsConfiguration for the JetStream sink.
type NatsConfiguration struct {
	Servers               []string `toml:"servers" env:"NATS_SERVERS" envSeparator:","`
	Username              string   `toml:"username" env:"NATS_USERNAME"`
	Password              string   `toml:"password" env:"NATS_PASSWORD"`
	ConnectTimeoutSeconds int      `toml:"connect_timeout_seconds"`
	MaxReconnects         int      `toml:"max_reconnect_attempts"`
	ReconnectWaitSeconds  int      `toml:"reconnect_time_wait"`
	StreamName            string   `toml:"stream_name"`
}

// KafkaConfiguration for the Kafka sink.
type KafkaConfiguration struct {
	Brokers          []string `toml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	AutoCreateTopics bool     `toml:"auto_create_topics"`
}

// SinkConfiguration selects and configures the message-bus destination.
type SinkConfiguration struct {
	Type  string             `toml:"type"` // "nats" or "kafka"
	Nats  NatsConfiguration  `toml:"nats"`
	Kafka KafkaConfiguration `toml:"kafka"`
}

// PublisherConfiguration controls the polling pipeline itself.
type PublisherConfiguration struct {
	ProgramName           string   `toml:"program_name" env:"PROGRAM_NAME"`
	PollIntervalSeconds   int      `toml:"poll_interval_seconds" env:"POLL_INTERVAL"`
	BatchSize             int      `toml:"batch_size" env:"BATCH_SIZE"`
	MaxRecordsPerCycle    int      `toml:"max_records_per_cycle" env:"MAX_RECORDS_PER_CYCLE"`
	MaxRetries            int      `toml:"max_retries"`
	InitialBackoffSeconds float64  `toml:"initial_backoff_seconds"`
	MaxBackoffSeconds     float64  `toml:"max_backoff_seconds"`
	BackoffMultiplier     float64  `toml:"backoff_multiplier"`
	AddTraceID            bool     `toml:"add_trace_id"`
	DataType              string   `toml:"data_type"`
	Subject               string   `toml:"subject" env:"SUBJECT"`
	EventTypes            []string `toml:"event_types"` // glob filter, empty = all
}

// LoggingConfiguration controls logging behavior.
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format" env:"LOG_FORMAT"` // "console" or "json"
}

// PrometheusConfiguration for metrics.
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// Configuration is the main configuration structure.
type Configuration struct {
	Source     SourceConfiguration     `toml:"source"`
	Tracker    TrackerConfiguration    `toml:"tracker"`
	Sink       SinkConfiguration       `toml:"sink"`
	Publisher  PublisherConfiguration  `toml:"publisher"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag  = flag.String("config", "config.toml", "Path to configuration file")
	ProgramNameFlag = flag.String("program-name", "", "Program name (overrides config)")
	VerboseFlag     = flag.Bool("verbose", false, "Enable debug logging (overrides config)")
)

// Default configuration
var Config = &Configuration{
	Source: SourceConfiguration{
		DSN:        "txlog:txlog@tcp(localhost:3306)/spc",
		PoolSize:   2,
		Table:      "TXLOG_EVENTS",
		TimeColumn: "CREATED_AT",
		TypeColumn: "EVENT_TYPE",
		CaseColumn: "CASE_ID",
	},

	Tracker: TrackerConfiguration{
		Driver:   "mysql",
		DSN:      "etl:etl@tcp(localhost:3306)/intime",
		PoolSize: 2,
	},

	Sink: SinkConfiguration{
		Type: "nats",
		Nats: NatsConfiguration{
			Servers:               []string{"nats://localhost:4222"},
			ConnectTimeoutSeconds: 10,
			MaxReconnects:         60,
			ReconnectWaitSeconds:  2,
			StreamName:            "TXLOG_STREAM",
		},
		Kafka: KafkaConfiguration{
			AutoCreateTopics: true,
		},
	},

	Publisher: PublisherConfiguration{
		ProgramName:           "M_INTIMECASEAGENT",
		PollIntervalSeconds:   60,
		BatchSize:             100,
		MaxRecordsPerCycle:    10000,
		MaxRetries:            3,
		InitialBackoffSeconds: 1,
		MaxBackoffSeconds:     30,
		BackoffMultiplier:     2.0,
		AddTraceID:            true,
		DataType:              "TXLOG",
		Subject:               "txlog.events",
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: false,
		Address: "0.0.0.0",
		Port:    9090,
	},
}

// Load merges configuration: defaults, then file, then environment, then CLI
// flags. Missing files fall back to defaults with a warning.
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if err := env.Parse(Config); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if *ProgramNameFlag != "" {
		Config.Publisher.ProgramName = *ProgramNameFlag
	}
	if *VerboseFlag {
		Config.Logging.Verbose = true
	}

	return nil
}

// Validate checks configuration for errors. Invalid values are rejected here,
// at startup, never at first use.
func Validate() error {
	p := Config.Publisher
	if p.ProgramName == "" {
		return fmt.Errorf("program name is required")
	}
	if p.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll interval must be >= 1 second, got %d", p.PollIntervalSeconds)
	}
	if p.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", p.BatchSize)
	}
	if p.MaxRecordsPerCycle < 1 {
		return fmt.Errorf("max records per cycle must be >= 1, got %d", p.MaxRecordsPerCycle)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.InitialBackoffSeconds < 0 {
		return fmt.Errorf("initial backoff must be >= 0, got %v", p.InitialBackoffSeconds)
	}
	if p.MaxBackoffSeconds < p.InitialBackoffSeconds {
		return fmt.Errorf("max backoff (%v) must be >= initial backoff (%v)",
			p.MaxBackoffSeconds, p.InitialBackoffSeconds)
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1, got %v", p.BackoffMultiplier)
	}
	if p.DataType == "" {
		return fmt.Errorf("data type tag is required")
	}
	if p.Subject == "" {
		return fmt.Errorf("subject is required")
	}

	switch Config.Sink.Type {
	case "nats":
		if len(Config.Sink.Nats.Servers) == 0 {
			return fmt.Errorf("nats sink requires at least one server URL")
		}
		if Config.Sink.Nats.StreamName == "" {
			return fmt.Errorf("nats sink requires a stream name")
		}
	case "kafka":
		if len(Config.Sink.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka sink requires at least one broker address")
		}
	default:
		return fmt.Errorf("unknown sink type: %s", Config.Sink.Type)
	}

	switch Config.Tracker.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unknown tracker driver: %s", Config.Tracker.Driver)
	}
	if Config.Tracker.DSN == "" {
		return fmt.Errorf("tracker DSN is required")
	}
	if Config.Source.DSN == "" {
		return fmt.Errorf("source DSN is required")
	}
	if Config.Source.Table == "" || Config.Source.TimeColumn == "" {
		return fmt.Errorf("source table and time column are required")
	}

	switch Config.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format: %s", Config.Logging.Format)
	}

	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}

	return nil
}
