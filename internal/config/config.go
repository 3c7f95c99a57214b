// Package config loads process settings from an optional config file, a
// .env file and TAJAFEED_ environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TAJAFEED"

// Cache backends.
const (
	CacheMemory = "memory"
	CacheBolt   = "bolt"
	CacheRedis  = "redis"
)

// Config is the full process configuration.
type Config struct {
	Log            LogConfig       `mapstructure:"log"`
	HTTP           HTTPConfig      `mapstructure:"http"`
	Cache          CacheConfig     `mapstructure:"cache"`
	Server         ServerConfig    `mapstructure:"server"`
	Scheduler      SchedulerConfig `mapstructure:"scheduler"`
	SourcesFile    string          `mapstructure:"sources_file"`
	PublishersFile string          `mapstructure:"publishers_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// CacheConfig selects the memo cache backing. The in-process level is
// always present; bolt and redis add a second level that survives restarts
// or is shared between instances.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	Backend       string        `mapstructure:"backend"`
	BoltPath      string        `mapstructure:"bolt_path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// RunTimeout bounds one on-demand feed build.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

type SchedulerConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Spec      string   `mapstructure:"spec"`
	OutputDir string   `mapstructure:"output_dir"`
	Format    string   `mapstructure:"format"`
	Sources   []string `mapstructure:"sources"`
	Publish   bool     `mapstructure:"publish"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an optional YAML/JSON/TOML file; a missing file is an
	// error only when set explicitly.
	ConfigFile string
	// EnvFile defaults to ".env"; a missing file is ignored.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.bolt_path", "tajafeed-cache.db")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", "tajafeed:")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.run_timeout", 2*time.Minute)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.spec", "@every 30m")
	v.SetDefault("scheduler.output_dir", "feeds")
	v.SetDefault("scheduler.format", "rss")
	v.SetDefault("scheduler.sources", []string{})
	v.SetDefault("scheduler.publish", false)
	v.SetDefault("sources_file", "")
	v.SetDefault("publishers_file", "")
}

// Load builds the configuration.
func Load(opts Options) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.Scheduler.Format = strings.ToLower(strings.TrimSpace(c.Scheduler.Format))
	c.SourcesFile = strings.TrimSpace(c.SourcesFile)
	c.PublishersFile = strings.TrimSpace(c.PublishersFile)

	// Env values arrive as one comma separated string.
	var sources []string
	for _, s := range c.Scheduler.Sources {
		for _, part := range strings.Split(s, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				sources = append(sources, part)
			}
		}
	}
	c.Scheduler.Sources = sources
}

// Validate checks enumerated and required values.
func (c Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q must be json or console", c.Log.Format)
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheBolt:
		if strings.TrimSpace(c.Cache.BoltPath) == "" {
			return errors.New("cache.bolt_path is required for the bolt backend")
		}
	case CacheRedis:
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return errors.New("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q must be memory, bolt or redis", c.Cache.Backend)
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.Scheduler.Enabled && strings.TrimSpace(c.Scheduler.Spec) == "" {
		return errors.New("scheduler.spec is required when the scheduler is enabled")
	}
	return nil
}
