package config

import (
	"time"

	"github.com/jonesrussell/north-cloud/veritas/internal/cache"
	"github.com/jonesrussell/north-cloud/veritas/internal/credentials"
	"github.com/jonesrussell/north-cloud/veritas/internal/heuristic"
	"github.com/jonesrussell/north-cloud/veritas/internal/llm"
	"github.com/jonesrussell/north-cloud/veritas/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/veritas/internal/settings"
	infraconfig "github.com/jonesrussell/north-cloud/veritas/infrastructure/config"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/veritas/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/veritas/infrastructure/sse"
)

// Cache drivers.
const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
	CacheDriverSQLite = "sqlite"
)

// Default configuration values.
const (
	defaultServiceName  = "veritas"
	defaultServicePort  = 8095
	defaultVersion      = "0.1.0"
	defaultLoggingLevel = "info"
	defaultLoggingFmt   = "json"

	defaultCacheDriver      = CacheDriverMemory
	defaultSQLitePath       = "data/veritas-cache.db"
	defaultRedisCachePrefix = "veritas:"

	defaultRequestsPerSec  = 1.0
	defaultRequestBurst    = 3
	defaultBreakerFailures = 5
	defaultBreakerSuccess  = 1
	defaultBreakerTimeout  = 60 * time.Second

	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds the application configuration.
type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Redis        RedisConfig        `yaml:"redis"`
	Cache        CacheConfig        `yaml:"cache"`
	Remote       RemoteConfig       `yaml:"remote"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Heuristic    HeuristicConfig    `yaml:"heuristic"`
	Credentials  CredentialsConfig  `yaml:"credentials"`
	Settings     SettingsConfig     `yaml:"settings"`
	SSE          SSEConfig          `yaml:"sse"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Port            int           `env:"VERITAS_PORT" yaml:"port"`
	Debug           bool          `env:"APP_DEBUG"    yaml:"debug"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" yaml:"cors_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig enables Redis when Enabled is set.
type RedisConfig struct {
	Enabled           bool `env:"REDIS_ENABLED" yaml:"enabled"`
	infraredis.Config `yaml:",inline"`
}

// CacheConfig selects and configures the result cache backend.
type CacheConfig struct {
	Driver      string        `env:"CACHE_DRIVER"      yaml:"driver"`
	TTL         time.Duration `env:"CACHE_TTL"         yaml:"ttl"`
	SQLitePath  string        `env:"CACHE_SQLITE_PATH" yaml:"sqlite_path"`
	RedisPrefix string        `yaml:"redis_prefix"`
}

// RemoteConfig configures the chat-completion client.
type RemoteConfig struct {
	Endpoint        string  `env:"REMOTE_ENDPOINT" yaml:"endpoint"`
	Model           string  `env:"REMOTE_MODEL"    yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	MaxContentChars int     `yaml:"max_content_chars"`
	RequestsPerSec  float64 `yaml:"requests_per_second"`
	Burst           int     `yaml:"burst"`
}

// OrchestratorConfig holds analysis limits.
type OrchestratorConfig struct {
	Timeout              time.Duration `env:"ANALYSIS_TIMEOUT" yaml:"timeout"`
	MinContentLength     int           `yaml:"min_content_length"`
	ProvisionalThreshold int           `yaml:"provisional_threshold"`
}

// HeuristicConfig holds the local rule set.
type HeuristicConfig struct {
	SensationalWords       []string `yaml:"sensational_words"`
	PoliticalTerms         []string `yaml:"political_terms"`
	TrustedDomains         []string `yaml:"trusted_domains"`
	MinContentLength       int      `yaml:"min_content_length"`
	UnknownSourceThreshold float64  `yaml:"unknown_source_threshold"`
}

// CredentialsConfig holds API key rules and the remote circuit breaker.
type CredentialsConfig struct {
	// APIKey seeds the settings store when it holds no key.
	APIKey    string        `env:"CEREBRAS_API_KEY" yaml:"api_key"`
	KeyPrefix string        `yaml:"key_prefix"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the remote circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// SettingsConfig configures the Redis-backed settings store.
type SettingsConfig struct {
	HashKey string `yaml:"hash_key"`
	Channel string `yaml:"channel"`
}

// SSEConfig configures the event broker.
type SSEConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxClients        int           `yaml:"max_clients"`
	ClientBufferSize  int           `yaml:"client_buffer_size"`
	EventBufferSize   int           `yaml:"event_buffer_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setCacheDefaults(&cfg.Cache)
	setRemoteDefaults(&cfg.Remote)
	setOrchestratorDefaults(&cfg.Orchestrator)
	setHeuristicDefaults(&cfg.Heuristic)
	setCredentialsDefaults(&cfg.Credentials)
	setSettingsDefaults(&cfg.Settings)
	setSSEDefaults(&cfg.SSE)
	setLoggingDefaults(&cfg.Logging)
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.ReadTimeout == 0 {
		svc.ReadTimeout = defaultReadTimeout
	}
	if svc.IdleTimeout == 0 {
		svc.IdleTimeout = defaultIdleTimeout
	}
	if svc.ShutdownTimeout == 0 {
		svc.ShutdownTimeout = defaultShutdownTimeout
	}
}

func setCacheDefaults(c *CacheConfig) {
	if c.Driver == "" {
		c.Driver = defaultCacheDriver
	}
	if c.TTL == 0 {
		c.TTL = cache.DefaultTTL
	}
	if c.SQLitePath == "" {
		c.SQLitePath = defaultSQLitePath
	}
	if c.RedisPrefix == "" {
		c.RedisPrefix = defaultRedisCachePrefix
	}
}

func setRemoteDefaults(r *RemoteConfig) {
	if r.Endpoint == "" {
		r.Endpoint = llm.DefaultEndpoint
	}
	if r.Model == "" {
		r.Model = llm.DefaultModel
	}
	if r.Temperature == 0 {
		r.Temperature = llm.DefaultTemperature
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = llm.DefaultMaxTokens
	}
	if r.MaxContentChars == 0 {
		r.MaxContentChars = llm.DefaultMaxContentChars
	}
	if r.RequestsPerSec == 0 {
		r.RequestsPerSec = defaultRequestsPerSec
	}
	if r.Burst == 0 {
		r.Burst = defaultRequestBurst
	}
}

func setOrchestratorDefaults(o *OrchestratorConfig) {
	defaults := orchestrator.DefaultConfig()
	if o.Timeout == 0 {
		o.Timeout = defaults.Timeout
	}
	if o.MinContentLength == 0 {
		o.MinContentLength = defaults.MinContentLength
	}
	if o.ProvisionalThreshold == 0 {
		o.ProvisionalThreshold = defaults.ProvisionalThreshold
	}
}

func setHeuristicDefaults(h *HeuristicConfig) {
	defaults := heuristic.DefaultConfig()
	if len(h.SensationalWords) == 0 {
		h.SensationalWords = defaults.SensationalWords
	}
	if len(h.PoliticalTerms) == 0 {
		h.PoliticalTerms = defaults.PoliticalTerms
	}
	if len(h.TrustedDomains) == 0 {
		h.TrustedDomains = defaults.TrustedDomains
	}
	if h.MinContentLength == 0 {
		h.MinContentLength = defaults.MinContentLength
	}
	if h.UnknownSourceThreshold == 0 {
		h.UnknownSourceThreshold = defaults.UnknownSourceThreshold
	}
}

func setCredentialsDefaults(c *CredentialsConfig) {
	if c.KeyPrefix == "" {
		c.KeyPrefix = credentials.DefaultKeyPrefix
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = defaultBreakerFailures
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = defaultBreakerSuccess
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = defaultBreakerTimeout
	}
}

func setSettingsDefaults(s *SettingsConfig) {
	if s.HashKey == "" {
		s.HashKey = settings.DefaultHashKey
	}
	if s.Channel == "" {
		s.Channel = settings.DefaultChannel
	}
}

func setSSEDefaults(s *SSEConfig) {
	if s.HeartbeatInterval == 0 {
		s.HeartbeatInterval = sse.DefaultHeartbeatInterval
	}
	if s.MaxClients == 0 {
		s.MaxClients = sse.DefaultMaxClients
	}
	if s.ClientBufferSize == 0 {
		s.ClientBufferSize = sse.DefaultClientBufferSize
	}
	if s.EventBufferSize == 0 {
		s.EventBufferSize = sse.DefaultEventBufferSize
	}
}

func setLoggingDefaults(log *LoggingConfig) {
	if log.Level == "" {
		log.Level = defaultLoggingLevel
	}
	if log.Format == "" {
		log.Format = defaultLoggingFmt
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if err := infraconfig.ValidateLogLevel("logging.level", c.Logging.Level); err != nil {
		return err
	}
	if err := infraconfig.ValidateOneOf("cache.driver", c.Cache.Driver,
		CacheDriverMemory, CacheDriverRedis, CacheDriverSQLite); err != nil {
		return err
	}
	if c.Cache.Driver == CacheDriverRedis && !c.Redis.Enabled {
		return &infraconfig.ValidationError{
			Field:   "cache.driver",
			Message: "redis driver requires redis.enabled",
		}
	}
	if c.Redis.Enabled {
		if err := infraconfig.ValidateRequired("redis.address", c.Redis.Address); err != nil {
			return err
		}
	}
	if err := infraconfig.ValidateURL("remote.endpoint", c.Remote.Endpoint); err != nil {
		return err
	}
	if c.Orchestrator.Timeout <= 0 {
		return &infraconfig.ValidationError{Field: "orchestrator.timeout", Message: "must be positive"}
	}
	if c.Orchestrator.ProvisionalThreshold > 100 {
		return &infraconfig.ValidationError{
			Field:   "orchestrator.provisional_threshold",
			Message: "must be at most 100",
		}
	}
	if c.Heuristic.UnknownSourceThreshold < 0 || c.Heuristic.UnknownSourceThreshold > 1 {
		return &infraconfig.ValidationError{
			Field:   "heuristic.unknown_source_threshold",
			Message: "must be between 0 and 1",
		}
	}
	if c.Credentials.APIKey != "" {
		if err := credentials.ValidateKey(c.Credentials.APIKey, c.Credentials.KeyPrefix); err != nil {
			return &infraconfig.ValidationError{Field: "credentials.api_key", Message: err.Error()}
		}
	}
	return nil
}

// HeuristicRules converts the section to the analyzer's rule set.
func (h HeuristicConfig) HeuristicRules() heuristic.Config {
	return heuristic.Config{
		SensationalWords:       h.SensationalWords,
		PoliticalTerms:         h.PoliticalTerms,
		TrustedDomains:         h.TrustedDomains,
		MinContentLength:       h.MinContentLength,
		UnknownSourceThreshold: h.UnknownSourceThreshold,
	}
}

// OrchestratorLimits converts the section to orchestrator limits.
func (o OrchestratorConfig) OrchestratorLimits() orchestrator.Config {
	return orchestrator.Config{
		Timeout:              o.Timeout,
		MinContentLength:     o.MinContentLength,
		ProvisionalThreshold: o.ProvisionalThreshold,
	}
}

// BrokerConfig converts the section to the SSE broker configuration.
func (s SSEConfig) BrokerConfig() sse.Config {
	return sse.Config{
		EventBufferSize:   s.EventBufferSize,
		ClientBufferSize:  s.ClientBufferSize,
		HeartbeatInterval: s.HeartbeatInterval,
		ShutdownTimeout:   sse.DefaultShutdownTimeout,
		MaxClients:        s.MaxClients,
	}
}

// LoggerConfig converts the section to the logger configuration.
func (l LoggingConfig) LoggerConfig(debug bool) infralogger.Config {
	return infralogger.Config{Level: l.Level, Format: l.Format, Development: debug}
}
