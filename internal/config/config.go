package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	LeetCodeAPIURL     string
	LeetCodeAPITimeout time.Duration

	RequestTimeout time.Duration

	StatsMaxAge     time.Duration
	FanOutWorkers   int
	Coalesce        bool
	CoalesceTimeout time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	DatabaseURL string

	JWTSecret      string
	AccessTokenTTL time.Duration

	UsernameMinLen int
	UsernameMaxLen int

	RateLimitRPS   int
	RateLimitBurst int

	BreakerFailureThreshold int
	BreakerCooldown         time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	ShutdownTimeout time.Duration

	WarmCache     bool
	WarmUsernames []string
	WarmInterval  time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	LeetCodeAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"leetcode_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Stats struct {
		MaxAge          string `yaml:"max_age"`
		FanOutWorkers   int    `yaml:"fanout_workers"`
		Coalesce        *bool  `yaml:"coalesce"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
	} `yaml:"stats"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Auth struct {
		AccessTokenTTL string `yaml:"access_token_ttl"`
		UsernameMinLen int    `yaml:"username_min_len"`
		UsernameMaxLen int    `yaml:"username_max_len"`
	} `yaml:"auth"`

	Reliability struct {
		RateLimitRPS            int    `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
		BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
		BreakerCooldown         string `yaml:"breaker_cooldown"`
	} `yaml:"reliability"`

	Lifecycle struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Warming struct {
		Enabled   bool     `yaml:"enabled"`
		Usernames []string `yaml:"usernames"`
		Interval  string   `yaml:"interval"`
	} `yaml:"warming"`
}

type secretsFile struct {
	JWTSecret   string `yaml:"jwt_secret"`
	DatabaseURL string `yaml:"database_url"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. The JWT secret comes from the JWT_SECRET env var or
// the secrets file, the database URL from DATABASE_URL, the YAML, or the
// secrets file. A .env file in the working directory is applied first.
// Call from project root.
func Load() (*Config, error) {
	// Missing .env is fine; explicit env always wins over file values.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	if secretsData, err := os.ReadFile(secretsPath); err == nil {
		if err := yaml.Unmarshal(secretsData, &sec); err != nil {
			return nil, fmt.Errorf("parse secrets file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.LeetCodeAPIURL = fc.LeetCodeAPI.URL
	if cfg.LeetCodeAPIURL == "" {
		cfg.LeetCodeAPIURL = "https://leetcode.com/graphql"
	}
	cfg.LeetCodeAPITimeout = parseDuration(fc.LeetCodeAPI.Timeout, 3*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.StatsMaxAge = parseDuration(fc.Stats.MaxAge, 24*time.Hour)
	cfg.FanOutWorkers = fc.Stats.FanOutWorkers
	if cfg.FanOutWorkers <= 0 {
		cfg.FanOutWorkers = 5
	}
	cfg.Coalesce = true
	if fc.Stats.Coalesce != nil {
		cfg.Coalesce = *fc.Stats.Coalesce
	}
	cfg.CoalesceTimeout = parseDuration(fc.Stats.CoalesceTimeout, 5*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fc.Database.URL
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = sec.DatabaseURL
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = sec.JWTSecret
	}
	cfg.AccessTokenTTL = parseDuration(fc.Auth.AccessTokenTTL, 24*time.Hour)
	cfg.UsernameMinLen = fc.Auth.UsernameMinLen
	if cfg.UsernameMinLen <= 0 {
		cfg.UsernameMinLen = 1
	}
	cfg.UsernameMaxLen = fc.Auth.UsernameMaxLen
	if cfg.UsernameMaxLen <= 0 {
		cfg.UsernameMaxLen = 30
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.BreakerFailureThreshold = fc.Reliability.BreakerFailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerCooldown = parseDuration(fc.Reliability.BreakerCooldown, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.WarmCache = fc.Warming.Enabled
	cfg.WarmUsernames = fc.Warming.Usernames
	cfg.WarmInterval = parseDuration(fc.Warming.Interval, time.Hour)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values. The
// request timeout is widened when it would undercut the upstream timeout.
func validate(cfg *Config) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET required (set env or config/secrets.yaml jwt_secret)")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL required (set env, database.url, or config/secrets.yaml database_url)")
	}
	if cfg.RequestTimeout <= cfg.LeetCodeAPITimeout {
		cfg.RequestTimeout = cfg.LeetCodeAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.UsernameMinLen > cfg.UsernameMaxLen {
		return fmt.Errorf("auth.username_min_len %d exceeds username_max_len %d",
			cfg.UsernameMinLen, cfg.UsernameMaxLen)
	}
	return nil
}
