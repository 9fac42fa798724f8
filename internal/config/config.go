package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/internal/runtime"
	"github.com/aretw0/botflow/pkg/adapters/redis"
	"github.com/aretw0/botflow/pkg/scheduler"
	"github.com/aretw0/botflow/pkg/session"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "BOTFLOW_"

// Config is the process configuration of the botflow server and CLI.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Redis      RedisConfig      `yaml:"redis"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Engine     EngineConfig     `yaml:"engine"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Discord    DiscordConfig    `yaml:"discord"`
	Blueprints BlueprintsConfig `yaml:"blueprints"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig enables the Redis session, blueprint, lock and audience stores.
// An empty Addr keeps everything in memory.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	StreamMaxLen int64         `yaml:"stream_max_len"`
}

// SQLiteConfig enables the durable scheduler job table. An empty Path keeps jobs in memory.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type EngineConfig struct {
	MaxSteps   int           `yaml:"max_steps"`
	SuspendTTL time.Duration `yaml:"suspend_ttl"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
}

type SchedulerConfig struct {
	Workers      int           `yaml:"workers"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	SendTimeout  time.Duration `yaml:"send_timeout"`
	Timezone     string        `yaml:"timezone"`
}

type TelegramConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	Token    string        `yaml:"token"`
	Bots     []BotConfig   `yaml:"bots"`
}

// BotConfig binds a tenant's bot id to its token for webhook routing.
type BotConfig struct {
	Tenant string `yaml:"tenant"`
	ID     string `yaml:"id"`
	Token  string `yaml:"token"`
}

type DiscordConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"token"`
}

// BlueprintsConfig points at a directory of blueprint files loaded at boot.
type BlueprintsConfig struct {
	Dir    string `yaml:"dir"`
	Tenant string `yaml:"tenant"`
}

// Defaults returns a configuration that runs fully in memory.
func Defaults() *Config {
	return &Config{
		Log:  LogConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{Addr: ":8080", ReadTimeout: 15 * time.Second, ShutdownTimeout: 10 * time.Second},
		Redis: RedisConfig{
			Prefix:       redis.DefaultPrefix,
			StreamMaxLen: 10000,
		},
		Engine: EngineConfig{
			MaxSteps: runtime.DefaultMaxSteps,
			LockTTL:  session.DefaultLockTTL,
		},
		Scheduler: SchedulerConfig{
			Workers:      scheduler.DefaultWorkers,
			MaxAttempts:  scheduler.DefaultMaxAttempts,
			RetryBackoff: scheduler.DefaultRetryBackoff,
			SendTimeout:  scheduler.DefaultSendTimeout,
			Timezone:     "UTC",
		},
		Telegram: TelegramConfig{Timeout: 10 * time.Second},
		Discord:  DiscordConfig{Timeout: 10 * time.Second},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if any),
// then BOTFLOW_* environment variables. A .env file in the working directory
// is loaded first and never overrides variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_FORMAT":         &c.Log.Format,
		"HTTP_ADDR":          &c.HTTP.Addr,
		"REDIS_ADDR":         &c.Redis.Addr,
		"REDIS_PASSWORD":     &c.Redis.Password,
		"REDIS_PREFIX":       &c.Redis.Prefix,
		"SQLITE_PATH":        &c.SQLite.Path,
		"SCHEDULER_TIMEZONE": &c.Scheduler.Timezone,
		"TELEGRAM_ENDPOINT":  &c.Telegram.Endpoint,
		"TELEGRAM_TOKEN":     &c.Telegram.Token,
		"DISCORD_TOKEN":      &c.Discord.Token,
		"BLUEPRINTS_DIR":     &c.Blueprints.Dir,
		"BLUEPRINTS_TENANT":  &c.Blueprints.Tenant,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REDIS_DB":               &c.Redis.DB,
		"ENGINE_MAX_STEPS":       &c.Engine.MaxSteps,
		"SCHEDULER_WORKERS":      &c.Scheduler.Workers,
		"SCHEDULER_MAX_ATTEMPTS": &c.Scheduler.MaxAttempts,
	}
	var errs []error
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				continue
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"REDIS_SESSION_TTL":       &c.Redis.SessionTTL,
		"ENGINE_SUSPEND_TTL":      &c.Engine.SuspendTTL,
		"ENGINE_LOCK_TTL":         &c.Engine.LockTTL,
		"SCHEDULER_RETRY_BACKOFF": &c.Scheduler.RetryBackoff,
		"SCHEDULER_SEND_TIMEOUT":  &c.Scheduler.SendTimeout,
		"TELEGRAM_TIMEOUT":        &c.Telegram.Timeout,
		"DISCORD_TIMEOUT":         &c.Discord.Timeout,
	}
	for name, dst := range durations {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				continue
			}
			*dst = d
		}
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Engine.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_steps must be positive, got %d", c.Engine.MaxSteps))
	}
	if c.Engine.SuspendTTL < 0 {
		errs = append(errs, errors.New("engine.suspend_ttl must not be negative"))
	}
	if c.Scheduler.Workers <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.workers must be positive, got %d", c.Scheduler.Workers))
	}
	if c.Scheduler.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.max_attempts must be positive, got %d", c.Scheduler.MaxAttempts))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	for i, bot := range c.Telegram.Bots {
		if bot.Tenant == "" || bot.ID == "" || bot.Token == "" {
			errs = append(errs, fmt.Errorf("telegram.bots[%d] requires tenant, id and token", i))
		}
	}
	return errors.Join(errs...)
}

// Location resolves the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// BotToken looks up the Telegram token of a tenant's bot.
func (c *Config) BotToken(tenantID, botID string) (string, bool) {
	for _, bot := range c.Telegram.Bots {
		if bot.Tenant == tenantID && bot.ID == botID {
			return bot.Token, true
		}
	}
	return "", false
}
