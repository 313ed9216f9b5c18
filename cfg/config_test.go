package cfg

import (
	"os"
	"path/filepath"
	"testing"
)

func validTestConfig() *Configuration {
	return &Configuration{
		Source: SourceConfiguration{
			DSN:        "u:p@tcp(localhost:3306)/spc",
			Table:      "TXLOG_EVENTS",
			TimeColumn: "CREATED_AT",
		},
		Tracker: TrackerConfiguration{
			Driver: "mysql",
			DSN:    "u:p@tcp(localhost:3306)/intime",
		},
		Sink: SinkConfiguration{
			Type: "nats",
			Nats: NatsConfiguration{
				Servers:    []string{"nats://localhost:4222"},
				StreamName: "TXLOG_STREAM",
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
			DataType:              "TXLOG",
			Subject:               "txlog.events",
		},
		Logging: LoggingConfiguration{Format: "console"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validTestConfig()
	if err := Validate(); err != nil {
		t.Errorf("Expected no error for valid config, got: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"empty program name", func(c *Configuration) { c.Publisher.ProgramName = "" }},
		{"zero poll interval", func(c *Configuration) { c.Publisher.PollIntervalSeconds = 0 }},
		{"zero batch size", func(c *Configuration) { c.Publisher.BatchSize = 0 }},
		{"zero max records", func(c *Configuration) { c.Publisher.MaxRecordsPerCycle = 0 }},
		{"negative retries", func(c *Configuration) { c.Publisher.MaxRetries = -1 }},
		{"negative initial backoff", func(c *Configuration) { c.Publisher.InitialBackoffSeconds = -1 }},
		{"max backoff below initial", func(c *Configuration) {
			c.Publisher.InitialBackoffSeconds = 10
			c.Publisher.MaxBackoffSeconds = 1
		}},
		{"multiplier below one", func(c *Configuration) { c.Publisher.BackoffMultiplier = 0.5 }},
		{"empty data type", func(c *Configuration) { c.Publisher.DataType = "" }},
		{"empty subject", func(c *Configuration) { c.Publisher.Subject = "" }},
		{"unknown sink type", func(c *Configuration) { c.Sink.Type = "rabbitmq" }},
		{"nats without servers", func(c *Configuration) { c.Sink.Nats.Servers = nil }},
		{"nats without stream", func(c *Configuration) { c.Sink.Nats.StreamName = "" }},
		{"kafka without brokers", func(c *Configuration) { c.Sink.Type = "kafka" }},
		{"unknown tracker driver", func(c *Configuration) { c.Tracker.Driver = "oracle" }},
		{"empty tracker dsn", func(c *Configuration) { c.Tracker.DSN = "" }},
		{"empty source dsn", func(c *Configuration) { c.Source.DSN = "" }},
		{"empty source table", func(c *Configuration) { c.Source.Table = "" }},
		{"unknown log format", func(c *Configuration) { c.Logging.Format = "xml" }},
		{"bad prometheus port", func(c *Configuration) {
			c.Prometheus.Enabled = true
			c.Prometheus.Port = 99999
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Config = validTestConfig()
			tt.mutate(Config)
			if err := Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}

func TestLoad_FileAndDefaults(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = validTestConfig()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[publisher]
program_name = "M_TESTAGENT"
batch_size = 25

[sink]
type = "nats"

[sink.nats]
servers = ["nats://bus-1:4222", "nats://bus-2:4222"]
stream_name = "TXLOG_STREAM"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if Config.Publisher.ProgramName != "M_TESTAGENT" {
		t.Errorf("Expected program name from file, got %s", Config.Publisher.ProgramName)
	}
	if Config.Publisher.BatchSize != 25 {
		t.Errorf("Expected batch size 25, got %d", Config.Publisher.BatchSize)
	}
	// Untouched keys keep their previous values
	if Config.Publisher.MaxRecordsPerCycle != 10000 {
		t.Errorf("Expected default max records, got %d", Config.Publisher.MaxRecordsPerCycle)
	}
	if len(Config.Sink.Nats.Servers) != 2 {
		t.Errorf("Expected 2 NATS servers, got %d", len(Config.Sink.Nats.Servers))
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = validTestConfig()

	if err := Load(filepath.Join(t.TempDir(), "nope.toml")); err != nil {
		t.Fatalf("Load with missing file should not error, got: %v", err)
	}
	if Config.Publisher.ProgramName != "M_INTIMECASEAGENT" {
		t.Errorf("Expected defaults to survive, got %s", Config.Publisher.ProgramName)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = validTestConfig()

	t.Setenv("PROGRAM_NAME", "M_ENVAGENT")
	t.Setenv("NATS_SERVERS", "nats://a:4222,nats://b:4222")
	t.Setenv("BATCH_SIZE", "7")

	if err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if Config.Publisher.ProgramName != "M_ENVAGENT" {
		t.Errorf("Expected env program name, got %s", Config.Publisher.ProgramName)
	}
	if Config.Publisher.BatchSize != 7 {
		t.Errorf("Expected env batch size, got %d", Config.Publisher.BatchSize)
	}
	if len(Config.Sink.Nats.Servers) != 2 || Config.Sink.Nats.Servers[0] != "nats://a:4222" {
		t.Errorf("Expected env NATS servers, got %v", Config.Sink.Nats.Servers)
	}
}
