package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-pipeline/internal/validation"
)

// Roles a process can run.
const (
	RoleValidator    = "validator"
	RoleFetcher      = "fetcher"
	RoleFormatter    = "formatter"
	RoleOrchestrator = "orchestrator"
	RoleAll          = "all"
)

// Cache and store backends.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
	BackendSQLite    = "sqlite"
)

// Default listener ports per role.
var defaultPorts = map[string]string{
	RoleValidator:    "3001",
	RoleFetcher:      "3002",
	RoleFormatter:    "3003",
	RoleOrchestrator: "5000",
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	Env  string
	Role string

	// Ports maps each role to its listen port.
	Ports map[string]string

	ValidatorURL string
	FetcherURL   string
	FormatterURL string
	StageTimeout time.Duration

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	WeatherCountry    string
	WeatherUnits      string

	RequestTimeout time.Duration

	CacheBackend          string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisURL              string
	RedisPoolSize         int

	StoreBackend string
	SQLitePath   string

	RateLimitRPS    int
	RateLimitBurst  int
	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	WarmZipcodes []string
	WarmInterval time.Duration
}

// Roles returns the roles this process runs, in start order.
func (c *Config) Roles() []string {
	if c.Role == RoleAll {
		return []string{RoleValidator, RoleFetcher, RoleFormatter, RoleOrchestrator}
	}
	return []string{c.Role}
}

// Runs reports whether this process runs role.
func (c *Config) Runs(role string) bool {
	return c.Role == RoleAll || c.Role == role
}

type fileConfig struct {
	Service struct {
		Role string `yaml:"role"`
	} `yaml:"service"`

	Server struct {
		Ports map[string]string `yaml:"ports"`
	} `yaml:"server"`

	Stages struct {
		ValidatorURL string `yaml:"validator_url"`
		FetcherURL   string `yaml:"fetcher_url"`
		FormatterURL string `yaml:"formatter_url"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"stages"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
		Country string `yaml:"country"`
		Units   string `yaml:"units"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			URL      string `yaml:"url"`
			PoolSize int    `yaml:"pool_size"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Store struct {
		Backend string `yaml:"backend"`
		SQLite  struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
	} `yaml:"store"`

	Reliability struct {
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
		CoalesceEnabled bool   `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		CircuitBreaker  struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Warming struct {
		Zipcodes []string `yaml:"zipcodes"`
		Interval string   `yaml:"interval"`
	} `yaml:"warming"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// envOverrides are applied on top of the YAML file. Empty values leave the file value in place.
type envOverrides struct {
	Role           string `env:"SERVICE_ROLE"`
	Port           string `env:"PORT"`
	OpenWeatherKey string `env:"OPENWEATHER_API_KEY"`
	WeatherAPIKey  string `env:"WEATHER_API_KEY"`
	CacheBackend   string `env:"CACHE_BACKEND"`
	MemcachedAddrs string `env:"MEMCACHED_ADDRS"`
	RedisURL       string `env:"REDIS_URL"`
	StoreBackend   string `env:"STORE_BACKEND"`
	SQLitePath     string `env:"SQLITE_PATH"`
	ValidatorURL   string `env:"ZIPCODE_SERVICE_URL"`
	FetcherURL     string `env:"WEATHER_SERVICE_URL"`
	FormatterURL   string `env:"RESULT_SERVICE_URL"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), then
// config/secrets.yaml for the provider key, then environment overrides.
// A missing provider key is not an error; the fetcher reports it per request.
// Call from project root.
func Load() (*Config, error) {
	envName := os.Getenv("ENV_NAME")
	if envName == "" {
		envName = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", envName+".yaml")
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

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := fromFile(&fc)
	cfg.Env = envName

	cfg.WeatherAPIKey = firstNonEmpty(ov.OpenWeatherKey, ov.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		key, err := readSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}

	if err := applyOverrides(cfg, ov); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fromFile maps the YAML document onto Config, filling defaults.
func fromFile(fc *fileConfig) *Config {
	cfg := &Config{}

	cfg.Role = normalize(fc.Service.Role)
	cfg.Ports = make(map[string]string, len(defaultPorts))
	for role, port := range defaultPorts {
		cfg.Ports[role] = port
		if p := strings.TrimSpace(fc.Server.Ports[role]); p != "" {
			cfg.Ports[role] = p
		}
	}

	cfg.ValidatorURL = orDefault(fc.Stages.ValidatorURL, "http://localhost:"+cfg.Ports[RoleValidator])
	cfg.FetcherURL = orDefault(fc.Stages.FetcherURL, "http://localhost:"+cfg.Ports[RoleFetcher])
	cfg.FormatterURL = orDefault(fc.Stages.FormatterURL, "http://localhost:"+cfg.Ports[RoleFormatter])
	cfg.StageTimeout = parseDuration(fc.Stages.Timeout, 10*time.Second)

	cfg.WeatherAPIURL = orDefault(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.WeatherCountry = orDefault(fc.WeatherAPI.Country, "US")
	cfg.WeatherUnits = orDefault(fc.WeatherAPI.Units, "imperial")

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.CacheBackend = orDefault(normalize(fc.Cache.Backend), BackendInMemory)
	cfg.MemcachedAddrs = orDefault(fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisURL = strings.TrimSpace(fc.Cache.Redis.URL)
	cfg.RedisPoolSize = fc.Cache.Redis.PoolSize

	cfg.StoreBackend = orDefault(normalize(fc.Store.Backend), BackendInMemory)
	cfg.SQLitePath = orDefault(fc.Store.SQLite.Path, "data/weather.db")

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}
	cfg.CoalesceEnabled = fc.Reliability.CoalesceEnabled
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 10*time.Second)

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 1
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.WarmZipcodes = fc.Warming.Zipcodes
	cfg.WarmInterval = parseDurationOrZero(fc.Warming.Interval, 0)
	return cfg
}

// applyOverrides layers environment values over the file configuration.
func applyOverrides(cfg *Config, ov envOverrides) error {
	if r := normalize(ov.Role); r != "" {
		cfg.Role = r
	}
	if p := strings.TrimSpace(ov.Port); p != "" {
		if cfg.Role == RoleAll {
			return errors.New("PORT cannot be used with role all; set server.ports instead")
		}
		cfg.Ports[cfg.Role] = p
	}
	if b := normalize(ov.CacheBackend); b != "" {
		cfg.CacheBackend = b
	}
	if b := normalize(ov.StoreBackend); b != "" {
		cfg.StoreBackend = b
	}
	cfg.MemcachedAddrs = firstNonEmpty(ov.MemcachedAddrs, cfg.MemcachedAddrs)
	cfg.RedisURL = firstNonEmpty(ov.RedisURL, cfg.RedisURL)
	cfg.SQLitePath = firstNonEmpty(ov.SQLitePath, cfg.SQLitePath)
	cfg.ValidatorURL = firstNonEmpty(ov.ValidatorURL, cfg.ValidatorURL)
	cfg.FetcherURL = firstNonEmpty(ov.FetcherURL, cfg.FetcherURL)
	cfg.FormatterURL = firstNonEmpty(ov.FormatterURL, cfg.FormatterURL)
	return nil
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks enumerations and timeouts. RequestTimeout is raised above
// StageTimeout when needed so a stage call can finish inside the request.
func validate(cfg *Config) error {
	switch cfg.Role {
	case "":
		return errors.New("service.role is required; set it in the env file or SERVICE_ROLE")
	case RoleValidator, RoleFetcher, RoleFormatter, RoleOrchestrator, RoleAll:
	default:
		return fmt.Errorf("service.role must be validator, fetcher, formatter, orchestrator or all, got %q", cfg.Role)
	}
	switch cfg.CacheBackend {
	case BackendInMemory, BackendMemcached, BackendRedis:
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	switch cfg.StoreBackend {
	case BackendInMemory, BackendSQLite:
	default:
		return fmt.Errorf("store.backend must be in_memory or sqlite, got %q", cfg.StoreBackend)
	}
	if cfg.WeatherAPITimeout <= 0 {
		return errors.New("weather_api.timeout must be positive")
	}
	for _, zip := range cfg.WarmZipcodes {
		if _, err := validation.ValidateZipcode(zip); err != nil {
			return fmt.Errorf("warming.zipcodes: %q: %w", zip, err)
		}
	}
	if cfg.RequestTimeout <= cfg.StageTimeout {
		cfg.RequestTimeout = cfg.StageTimeout + time.Second
	}
	return nil
}
