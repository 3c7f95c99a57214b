package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Backend != CacheMemory || cfg.Cache.TTL != time.Hour {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Server.Addr != ":8080" || cfg.HTTP.Timeout != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Scheduler.Spec != "@every 30m" || len(cfg.Scheduler.Sources) != 0 {
		t.Fatalf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
}

func TestLoadFileEnvAndDotenv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tajafeed.yaml")
	envPath := filepath.Join(dir, "test.env")

	yaml := `log:
  level: DEBUG
  format: console
cache:
  backend: bolt
  ttl: 10m
scheduler:
  enabled: true
  sources: [sukebei]
sources_file: sources.yaml
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(envPath, []byte("TAJAFEED_SERVER_ADDR=:9999\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("TAJAFEED_SERVER_ADDR", "")
	os.Unsetenv("TAJAFEED_SERVER_ADDR")
	t.Setenv("TAJAFEED_CACHE_TTL", "5m")
	t.Setenv("TAJAFEED_SCHEDULER_SOURCES", "kaiyan, T66Y")

	cfg, err := Load(Options{ConfigFile: cfgPath, EnvFile: envPath})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Cache.Backend != CacheBolt || cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("dotenv not applied: %q", cfg.Server.Addr)
	}
	if len(cfg.Scheduler.Sources) != 2 || cfg.Scheduler.Sources[1] != "t66y" {
		t.Fatalf("sources = %v", cfg.Scheduler.Sources)
	}
	if cfg.SourcesFile != "sources.yaml" {
		t.Fatalf("sources file = %q", cfg.SourcesFile)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := Config{
		Log:   LogConfig{Format: "json"},
		HTTP:  HTTPConfig{Timeout: time.Second},
		Cache: CacheConfig{Backend: CacheMemory},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	bad := []func(*Config){
		func(c *Config) { c.Log.Format = "xml" },
		func(c *Config) { c.Cache.Backend = "memcached" },
		func(c *Config) { c.Cache.Backend = CacheRedis },
		func(c *Config) { c.HTTP.Timeout = 0 },
		func(c *Config) { c.Scheduler.Enabled = true },
	}
	for i, mutate := range bad {
		c := base
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml"), EnvFile: filepath.Join(t.TempDir(), "x.env")})
	if err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
