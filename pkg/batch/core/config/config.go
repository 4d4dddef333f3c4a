// Package config holds the application configuration and its loader.
package config

// EmbeddedConfig holds the content of the configuration file compiled into the binary.
type EmbeddedConfig []byte

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level ("DEBUG", "INFO", "WARN", "ERROR").
	Level string `yaml:"level"`
	// Encoding is "console" or "json".
	Encoding string `yaml:"encoding"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// IngestConfig configures a bulk ingestion run.
type IngestConfig struct {
	// Dataset is a local path, file:// URI or gs://bucket/object reference.
	Dataset string `yaml:"dataset"`
	// BatchSize is the maximum number of rows per batch.
	BatchSize int `yaml:"batch_size"`
	// Workers is the number of concurrent chunk loaders.
	Workers int `yaml:"workers"`
	// Table is the sink table.
	Table string `yaml:"table"`
	// TargetDBRef names the entry under bulkload.database used as the sink.
	TargetDBRef string `yaml:"target_db_ref"`
	// TuningEnabled switches the engine into bulk-write mode for the duration of a run.
	TuningEnabled bool `yaml:"tuning_enabled"`
	// CreateTable creates the sink table when it does not exist.
	CreateTable bool `yaml:"create_table"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr                string `yaml:"addr"`
	TargetDBRef         string `yaml:"target_db_ref"`
	BulkInsertBatchSize int    `yaml:"bulk_insert_batch_size"`
	AutoMigrate         bool   `yaml:"auto_migrate"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	// MaxBodyBytes bounds the size of a request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// MetricsConfig selects the metrics backend: "prometheus", "otel" or "noop".
type MetricsConfig struct {
	Backend string `yaml:"backend"`
	// Path is where the Prometheus handler is mounted on the API server.
	Path string `yaml:"path"`
	// Endpoint, Protocol and Insecure configure OTLP export for the "otel" backend.
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
	// IntervalSeconds is the OTLP export interval.
	IntervalSeconds int `yaml:"interval_seconds"`
	// AsyncBufferSize, when positive, queues metric calls for a background worker.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Endpoint is host:port of the OTLP collector.
	Endpoint string `yaml:"endpoint"`
	// Protocol is "http" or "grpc".
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
	// ServiceName is reported as service.name.
	ServiceName string `yaml:"service_name"`
}

// ObservabilityConfig groups metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// GCSConfig configures the Cloud Storage dataset adapter.
type GCSConfig struct {
	// Endpoint overrides the storage API endpoint (emulators).
	Endpoint              string `yaml:"endpoint"`
	WithoutAuthentication bool   `yaml:"without_authentication"`
}

// StorageConfig configures dataset storage adapters.
type StorageConfig struct {
	GCS GCSConfig `yaml:"gcs"`
}

// BulkloadConfig holds all configuration under the "bulkload" top-level key.
type BulkloadConfig struct {
	Ingest        IngestConfig        `yaml:"ingest"`
	Server        ServerConfig        `yaml:"server"`
	System        SystemConfig        `yaml:"system"`
	Observability ObservabilityConfig `yaml:"observability"`
	Storage       StorageConfig       `yaml:"storage"`
	// AdapterConfigs holds named database connection settings, decoded by the database adapter.
	AdapterConfigs map[string]interface{} `yaml:"database"`
}

// Config is the root structure for the application configuration.
type Config struct {
	Bulkload BulkloadConfig `yaml:"bulkload"`
}

// Defaults.
const (
	DefaultBatchSize           = 10000
	DefaultWorkers             = 30
	DefaultTable               = "large_table"
	DefaultDBRef               = "workload"
	DefaultBulkInsertBatchSize = 1000
)

// NewConfig returns a Config populated with default values.
func NewConfig() *Config {
	return &Config{
		Bulkload: BulkloadConfig{
			Ingest: IngestConfig{
				BatchSize:     DefaultBatchSize,
				Workers:       DefaultWorkers,
				Table:         DefaultTable,
				TargetDBRef:   DefaultDBRef,
				TuningEnabled: true,
				CreateTable:   true,
			},
			Server: ServerConfig{
				Addr:                ":8000",
				TargetDBRef:         DefaultDBRef,
				BulkInsertBatchSize: DefaultBulkInsertBatchSize,
				AutoMigrate:         true,
				ReadTimeoutSeconds:  30,
				WriteTimeoutSeconds: 60,
				MaxBodyBytes:        32 << 20,
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", Encoding: "console"},
			},
			Observability: ObservabilityConfig{
				Metrics: MetricsConfig{Backend: "prometheus", Path: "/metrics", Protocol: "http", IntervalSeconds: 15},
				Tracing: TracingConfig{Protocol: "http", ServiceName: "bulkload"},
			},
			AdapterConfigs: map[string]interface{}{},
		},
	}
}
