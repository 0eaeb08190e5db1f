package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/smart-captures/internal/common"
)

// EnvPrefix is prepended to environment overrides, e.g. CAPTURES_STORAGE_BACKEND.
const EnvPrefix = "CAPTURES"

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config is the typed application configuration.
type Config struct {
	Storage    StorageConfig
	Keys       KeysConfig
	Ingest     IngestConfig
	Classifier ClassifierConfig
	Capture    CaptureConfig
	Ledger     LedgerConfig
	Engine     EngineConfig
	Logging    common.LogConfig
	Metrics    MetricsConfig
}

// StorageConfig selects the shared key/value store.
type StorageConfig struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string
	RedisDB       int
}

// KeysConfig names the store keys.
type KeysConfig struct {
	Relay      string
	Dedup      string
	Queue      string
	Preference string
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	StalenessWindow time.Duration
	DedupCapacity   int
	TitleMaxLen     int
	SuggestCategory bool
}

// ClassifierConfig selects and tunes category suggestion.
type ClassifierConfig struct {
	Mode          string
	EndpointURL   string
	EndpointToken string
	Provider      string
	APIKey        string
	Model         string
	BaseURL       string
	MinConfidence float64
	CacheTTL      time.Duration
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxRetries    int
	RetryDelay    time.Duration
	Refine        bool
}

// CaptureConfig controls live capture.
type CaptureConfig struct {
	LiveEnabled bool
	ForceLive   bool
	Permissions []string
	NATSURL     string
	NATSSubject string
}

// LedgerConfig selects where accepted transactions go.
type LedgerConfig struct {
	Backend  string
	DSN      string
	UserID   string
	MaxConns int
}

// EngineConfig tunes startup and background draining.
type EngineConfig struct {
	ReadyAttempts  int
	ReadyDelay     time.Duration
	ResumeInterval time.Duration
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Addr string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.path", "$HOME/.local/share/captures/captures.db")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_prefix", "")
	v.SetDefault("storage.redis_db", 0)

	v.SetDefault("keys.relay", "sms:relay:pending")
	v.SetDefault("keys.dedup", "sms:lastProcessedKeys")
	v.SetDefault("keys.queue", "sms:pending")
	v.SetDefault("keys.preference", "settings:smartSmsCapture")

	v.SetDefault("ingest.staleness_window", "720h")
	v.SetDefault("ingest.dedup_capacity", 50)
	v.SetDefault("ingest.title_max_len", 80)
	v.SetDefault("ingest.suggest_category", false)

	v.SetDefault("classifier.mode", "keyword")
	v.SetDefault("classifier.provider", "gemini")
	v.SetDefault("classifier.min_confidence", 0.5)
	v.SetDefault("classifier.cache_ttl", "1h")
	v.SetDefault("classifier.timeout", "15s")
	v.SetDefault("classifier.rate_per_second", 2.0)
	v.SetDefault("classifier.burst", 4)
	v.SetDefault("classifier.max_retries", 3)
	v.SetDefault("classifier.retry_delay", "500ms")
	v.SetDefault("classifier.refine", false)

	v.SetDefault("capture.live_enabled", false)
	v.SetDefault("capture.force_live", false)
	v.SetDefault("capture.permissions", []string{"receive_sms", "read_sms"})
	v.SetDefault("capture.nats_url", "")
	v.SetDefault("capture.nats_subject", "sms.inbound")

	v.SetDefault("ledger.backend", BackendSQLite)
	v.SetDefault("ledger.user_id", "")
	v.SetDefault("ledger.max_conns", 5)

	v.SetDefault("engine.ready_attempts", 10)
	v.SetDefault("engine.ready_delay", "300ms")
	v.SetDefault("engine.resume_interval", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.addr", "")
}

// BindEnv makes every key overridable from CAPTURES_* variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads a typed Config from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Storage: StorageConfig{
			Backend:       strings.ToLower(v.GetString("storage.backend")),
			Path:          ExpandPath(v.GetString("storage.path")),
			RedisAddr:     v.GetString("storage.redis_addr"),
			RedisPassword: v.GetString("storage.redis_password"),
			RedisPrefix:   v.GetString("storage.redis_prefix"),
			RedisDB:       v.GetInt("storage.redis_db"),
		},
		Keys: KeysConfig{
			Relay:      v.GetString("keys.relay"),
			Dedup:      v.GetString("keys.dedup"),
			Queue:      v.GetString("keys.queue"),
			Preference: v.GetString("keys.preference"),
		},
		Ingest: IngestConfig{
			StalenessWindow: v.GetDuration("ingest.staleness_window"),
			DedupCapacity:   v.GetInt("ingest.dedup_capacity"),
			TitleMaxLen:     v.GetInt("ingest.title_max_len"),
			SuggestCategory: v.GetBool("ingest.suggest_category"),
		},
		Classifier: ClassifierConfig{
			Mode:          strings.ToLower(v.GetString("classifier.mode")),
			EndpointURL:   v.GetString("classifier.endpoint_url"),
			EndpointToken: v.GetString("classifier.endpoint_token"),
			Provider:      strings.ToLower(v.GetString("classifier.provider")),
			APIKey:        v.GetString("classifier.api_key"),
			Model:         v.GetString("classifier.model"),
			BaseURL:       v.GetString("classifier.base_url"),
			MinConfidence: v.GetFloat64("classifier.min_confidence"),
			CacheTTL:      v.GetDuration("classifier.cache_ttl"),
			Timeout:       v.GetDuration("classifier.timeout"),
			RatePerSecond: v.GetFloat64("classifier.rate_per_second"),
			Burst:         v.GetInt("classifier.burst"),
			MaxRetries:    v.GetInt("classifier.max_retries"),
			RetryDelay:    v.GetDuration("classifier.retry_delay"),
			Refine:        v.GetBool("classifier.refine"),
		},
		Capture: CaptureConfig{
			LiveEnabled: v.GetBool("capture.live_enabled"),
			ForceLive:   v.GetBool("capture.force_live"),
			Permissions: v.GetStringSlice("capture.permissions"),
			NATSURL:     v.GetString("capture.nats_url"),
			NATSSubject: v.GetString("capture.nats_subject"),
		},
		Ledger: LedgerConfig{
			Backend:  strings.ToLower(v.GetString("ledger.backend")),
			DSN:      v.GetString("ledger.dsn"),
			UserID:   v.GetString("ledger.user_id"),
			MaxConns: v.GetInt("ledger.max_conns"),
		},
		Engine: EngineConfig{
			ReadyAttempts:  v.GetInt("engine.ready_attempts"),
			ReadyDelay:     v.GetDuration("engine.ready_delay"),
			ResumeInterval: v.GetDuration("engine.resume_interval"),
		},
		Logging: common.LogConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
			File:   ExpandPath(v.GetString("logging.file")),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail far from their source.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for sqlite", common.ErrMissingConfig)
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("%w: storage.redis_addr is required for redis", common.ErrMissingConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: storage.backend %q", common.ErrInvalidConfig, c.Storage.Backend)
	}

	switch c.Ledger.Backend {
	case BackendSQLite:
		if c.Storage.Backend != BackendSQLite {
			return fmt.Errorf("%w: ledger.backend sqlite needs storage.backend sqlite", common.ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.Ledger.DSN == "" {
			return fmt.Errorf("%w: ledger.dsn is required for postgres", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: ledger.backend %q", common.ErrInvalidConfig, c.Ledger.Backend)
	}

	if c.Ingest.StalenessWindow <= 0 {
		return fmt.Errorf("%w: ingest.staleness_window must be positive", common.ErrInvalidConfig)
	}
	if c.Ingest.DedupCapacity <= 0 {
		return fmt.Errorf("%w: ingest.dedup_capacity must be positive", common.ErrInvalidConfig)
	}
	if c.Classifier.MinConfidence < 0 || c.Classifier.MinConfidence > 1 {
		return fmt.Errorf("%w: classifier.min_confidence must be within [0,1]", common.ErrInvalidConfig)
	}
	if c.Engine.ReadyAttempts <= 0 {
		return fmt.Errorf("%w: engine.ready_attempts must be positive", common.ErrInvalidConfig)
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}
