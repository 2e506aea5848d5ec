package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Bot      BotConfig      `mapstructure:"bot"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Log      LogConfig      `mapstructure:"log"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"gt=0,lt=65536"`
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst    int           `mapstructure:"rate_burst" validate:"gte=0"`
}

// BotConfig 机器人配置。AdminID 是唯一的特权身份。
type BotConfig struct {
	Token          string        `mapstructure:"token" validate:"required"`
	AdminID        int64         `mapstructure:"admin_id" validate:"gt=0"`
	WebAppURL      string        `mapstructure:"webapp_url" validate:"required,url"`
	Categories     []string      `mapstructure:"categories" validate:"dive,oneof=news biz svc"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PollTimeout    int           `mapstructure:"poll_timeout" validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN          string `mapstructure:"dsn" validate:"required"`
	LogLevel     string `mapstructure:"log_level" validate:"oneof=silent error warn info"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	MediaURLTTL time.Duration `mapstructure:"media_url_ttl"`
}

// FeedConfig MediaProxy 为 true 时 feed 返回 /api/media/<id>，不暴露网关的文件地址
type FeedConfig struct {
	Limit        int  `mapstructure:"limit" validate:"gt=0,lte=100"`
	PendingLimit int  `mapstructure:"pending_limit" validate:"gt=0"`
	MediaProxy   bool `mapstructure:"media_proxy"`
}

type NotifyConfig struct {
	Workers       int     `mapstructure:"workers" validate:"gt=0"`
	QueueSize     int     `mapstructure:"queue_size" validate:"gt=0"`
	MaxAttempts   int     `mapstructure:"max_attempts" validate:"gt=0"`
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// Load 读取 config.yaml（可选）与环境变量
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// legacy env names used by existing deployments
	for key, env := range map[string]string{
		"bot.token":      "BOT_TOKEN",
		"bot.admin_id":   "ADMIN_ID",
		"bot.webapp_url": "WEBAPP_URL",
		"server.port":    "PORT",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验必填项与取值范围
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)

	v.SetDefault("bot.token", "")
	v.SetDefault("bot.admin_id", 0)
	v.SetDefault("bot.webapp_url", "")
	v.SetDefault("bot.categories", []string{"news", "biz", "svc"})
	v.SetDefault("bot.request_timeout", 10*time.Second)
	v.SetDefault("bot.poll_timeout", 60)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "feed.db?_busy_timeout=5000&_journal_mode=WAL")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.media_url_ttl", 50*time.Minute)

	v.SetDefault("feed.limit", 100)
	v.SetDefault("feed.pending_limit", 10)
	v.SetDefault("feed.media_proxy", true)

	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.queue_size", 1024)
	v.SetDefault("notify.max_attempts", 3)
	v.SetDefault("notify.rate_per_second", 25.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "district-feed")
}
