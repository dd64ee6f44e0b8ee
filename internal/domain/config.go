package domain

import "time"

// Config holds the complete ProcureSight configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier selects the infrastructure stack
	Tier Tier `json:"tier"`

	Engine EngineConfig `json:"engine"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string  `json:"host"`
	Port         int     `json:"port"`
	ReadTimeout  int     `json:"readTimeout"`  // seconds
	WriteTimeout int     `json:"writeTimeout"` // seconds
	RateLimit    float64 `json:"rateLimit"`    // requests per second per client, 0 disables
	RateBurst    int     `json:"rateBurst"`
}

// EngineConfig tunes the scoring components.
type EngineConfig struct {
	TopContributions  int           `json:"topContributions"`
	ComparableLimit   int           `json:"comparableLimit"`
	AssessmentTTL     time.Duration `json:"assessmentTtl"`
	WorkerConcurrency int           `json:"workerConcurrency"`
	AsyncWorker       bool          `json:"asyncWorker"` // consume assessment requests from the bus
	CatalogPath       string        `json:"catalogPath"` // replaces the embedded compliance catalog
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"` // OTLP gRPC collector, host:port
	Insecure    bool   `json:"insecure"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, channels and an in-process LRU.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS and Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			RateLimit:    50,
			RateBurst:    100,
		},
		Tier: TierCommunity,
		Engine: EngineConfig{
			TopContributions:  12,
			ComparableLimit:   20,
			AssessmentTTL:     10 * time.Minute,
			WorkerConcurrency: 8,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./procuresight.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "procuresight",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "procuresight",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueue:         "procuresight-workers",
	}
	cfg.Engine.AsyncWorker = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Endpoint = "localhost:4317"
	cfg.Tracing.Insecure = true
	return cfg
}
