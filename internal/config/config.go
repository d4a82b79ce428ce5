package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hello-drektopia/redditbot-go/internal/models"
	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig          `mapstructure:"bot"`
	Platform   PlatformConfig     `mapstructure:"platform"`
	OpenAI     OpenAIConfig       `mapstructure:"openai"`
	Defaults   models.AppSettings `mapstructure:"defaults"`
	Storage    StorageConfig      `mapstructure:"storage"`
	Cache      CacheConfig        `mapstructure:"cache"`
	RateLimit  RateLimitConfig    `mapstructure:"rate_limit"`
	Logging    LoggingConfig      `mapstructure:"logging"`
	Monitoring MonitoringConfig   `mapstructure:"monitoring"`
	I18n       I18nConfig         `mapstructure:"i18n"`
}

type BotConfig struct {
	AppName        string        `mapstructure:"app_name"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type PlatformConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	ModerationModel   string        `mapstructure:"moderation_model"`
}

type StorageConfig struct {
	Type   string       `mapstructure:"type"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Memory MemoryConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemoryConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.app_name", "Hello-drektopia")
	v.SetDefault("bot.listen_addr", ":8080")
	v.SetDefault("bot.request_timeout", 60*time.Second)

	v.SetDefault("platform.base_url", "https://oauth.reddit.com")
	v.SetDefault("platform.user_agent", "redditbot-go/1.0")
	v.SetDefault("platform.timeout", 20*time.Second)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.timeout", 30*time.Second)
	v.SetDefault("openai.moderation_model", "text-moderation-stable")

	v.SetDefault("defaults.temperature", 0.8)
	v.SetDefault("defaults.maxhour", 3)
	v.SetDefault("defaults.maxday", 9)
	v.SetDefault("defaults.maxcharacters", 10000)
	v.SetDefault("defaults.summarizationthreshold", 5000)
	v.SetDefault("defaults.chanceof", 0)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.memory.cleanup_interval", 10*time.Minute)

	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("rate_limit.requests_per_minute", 6)
	v.SetDefault("rate_limit.burst", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en"})
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Enable environment variable substitution
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.BindEnv("bot.webhook_secret", "BOT_WEBHOOK_SECRET")
	v.BindEnv("platform.token", "PLATFORM_TOKEN")
	v.BindEnv("defaults.key", "OPENAI_API_KEY")
	v.BindEnv("defaults.model", "OPENAI_MODEL")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := v.GetString("REDIS_HOST"); redisHost != "" {
		redisPort := v.GetString("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.AppName == "" {
		return fmt.Errorf("bot app name is required")
	}
	if cfg.Platform.Token == "" {
		return fmt.Errorf("platform token is required")
	}
	if cfg.Bot.RequestTimeout < 0 {
		return fmt.Errorf("bot request_timeout must not be negative")
	}
	switch cfg.Storage.Type {
	case "memory":
	case "redis":
		if cfg.Storage.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for redis storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate limit requests_per_minute must be positive")
	}
	return nil
}
