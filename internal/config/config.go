// Package config builds the runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// Prefix is prepended to every environment variable read by Load.
const Prefix = "PROCURESIGHT_"

// Load reads envFiles (missing files are skipped) and overlays PROCURESIGHT_*
// variables on the defaults of the selected tier. Variables already set in
// the process environment win over file values.
func Load(envFiles ...string) (*domain.Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
	}

	cfg := domain.DefaultConfig()
	switch tier := getEnv("TIER", string(domain.TierCommunity)); domain.Tier(tier) {
	case domain.TierCommunity:
	case domain.TierPro:
		cfg = domain.ProConfig()
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}

	var p parser

	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.Port = p.int("PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = p.int("READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = p.int("WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.RateLimit = p.float("RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.RateBurst = p.int("RATE_BURST", cfg.Server.RateBurst)

	cfg.Engine.TopContributions = p.int("TOP_CONTRIBUTIONS", cfg.Engine.TopContributions)
	cfg.Engine.ComparableLimit = p.int("COMPARABLE_LIMIT", cfg.Engine.ComparableLimit)
	cfg.Engine.AssessmentTTL = p.duration("ASSESSMENT_TTL", cfg.Engine.AssessmentTTL)
	cfg.Engine.WorkerConcurrency = p.int("WORKER_CONCURRENCY", cfg.Engine.WorkerConcurrency)
	cfg.Engine.AsyncWorker = p.bool("ASYNC_WORKER", cfg.Engine.AsyncWorker)
	cfg.Engine.CatalogPath = getEnv("CATALOG_PATH", cfg.Engine.CatalogPath)

	cfg.Repository.Driver = getEnv("DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = getEnv("SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresURL = getEnv("DATABASE_URL", cfg.Repository.PostgresURL)
	cfg.Repository.PostgresHost = getEnv("PG_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = p.int("PG_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = getEnv("PG_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("PG_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("PG_DATABASE", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = getEnv("PG_SSLMODE", cfg.Repository.PostgresSSLMode)
	cfg.Repository.MaxOpenConns = p.int("DB_MAX_OPEN_CONNS", cfg.Repository.MaxOpenConns)

	cfg.Cache.Type = getEnv("CACHE", cfg.Cache.Type)
	cfg.Cache.LocalMaxSize = p.int("CACHE_SIZE", cfg.Cache.LocalMaxSize)
	cfg.Cache.LocalTTL = p.duration("CACHE_LOCAL_TTL", cfg.Cache.LocalTTL)
	cfg.Cache.RedisAddr = getEnv("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = p.int("REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.EnableTwoPhase = p.bool("CACHE_TWO_PHASE", cfg.Cache.EnableTwoPhase)

	cfg.EventBus.Type = getEnv("BUS", cfg.EventBus.Type)
	cfg.EventBus.ChannelBufferSize = p.int("BUS_BUFFER", cfg.EventBus.ChannelBufferSize)
	cfg.EventBus.NATSUrl = getEnv("NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("NATS_TOKEN", cfg.EventBus.NATSToken)
	cfg.EventBus.NATSQueue = getEnv("NATS_QUEUE", cfg.EventBus.NATSQueue)

	cfg.Logging.Level = strings.ToLower(getEnv("LOG_LEVEL", cfg.Logging.Level))
	if p.bool("DEBUG", false) {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Format = strings.ToLower(getEnv("LOG_FORMAT", cfg.Logging.Format))

	cfg.Tracing.Enabled = p.bool("TRACING", cfg.Tracing.Enabled)
	cfg.Tracing.ServiceName = getEnv("SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.Endpoint = getEnv("OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Insecure = p.bool("OTLP_INSECURE", cfg.Tracing.Insecure)

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the components cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported repository driver %q", cfg.Repository.Driver))
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported cache type %q", cfg.Cache.Type))
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		errs = append(errs, fmt.Errorf("unsupported event bus type %q", cfg.EventBus.Type))
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, fmt.Errorf("unknown log format %q", cfg.Logging.Format))
	}
	if cfg.Engine.TopContributions < 0 || cfg.Engine.ComparableLimit < 0 {
		errs = append(errs, errors.New("engine limits must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(Prefix + key); ok {
		return v
	}
	return fallback
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return fallback
	}
	return v
}
