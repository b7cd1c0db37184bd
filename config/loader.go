package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration with the precedence defaults -> YAML file ->
// environment overrides.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a Loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AZENTIQ"}
}

// WithConfigPath sets the YAML file path. When unset, only defaults and
// environment variables apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load builds the configuration and validates it.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", l.configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", l.configPath, err)
		}
	}

	l.applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) applyEnvOverrides(cfg *Config) {
	l.envString("APPLICATION_NAME", &cfg.Application.Name)
	l.envString("APPLICATION_FRAMEWORK", &cfg.Application.Framework)
	l.envInt("APPLICATION_GLOBAL_TOKEN_LIMIT", &cfg.Application.GlobalTokenLimit)
	l.envInt("APPLICATION_RESERVED_TOKENS", &cfg.Application.ReservedTokens)
	l.envString("APPLICATION_DEFAULT_COMPONENT", &cfg.Application.DefaultComponent)

	if v, ok := l.lookup("TOKEN_BUDGET_ALLOCATION_STRATEGY"); ok {
		cfg.TokenBudget.AllocationStrategy = AllocationStrategy(v)
	}

	if v, ok := l.lookup("ESTIMATOR_KIND"); ok {
		cfg.Estimator.Kind = EstimatorKind(v)
	}
	l.envString("ESTIMATOR_ENCODING", &cfg.Estimator.Encoding)
	l.envFloat("ESTIMATOR_CHARS_PER_TOKEN", &cfg.Estimator.CharsPerToken)
	l.envFloat("ESTIMATOR_WORDS_PER_TOKEN", &cfg.Estimator.WordsPerToken)

	l.envString("REDIS_ADDR", &cfg.Redis.Addr)
	l.envString("REDIS_PASSWORD", &cfg.Redis.Password)
	l.envInt("REDIS_DB", &cfg.Redis.DB)
	l.envString("REDIS_KEY_PREFIX", &cfg.Redis.KeyPrefix)
	l.envDuration("REDIS_SHORT_TERM_TTL", &cfg.Redis.ShortTermTTL)

	l.envString("SERVER_ADDR", &cfg.Server.Addr)
	l.envString("SERVER_METRICS_ADDR", &cfg.Server.MetricsAddr)
	l.envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	l.envString("LOG_LEVEL", &cfg.Log.Level)
	l.envString("LOG_FORMAT", &cfg.Log.Format)
}

func (l *Loader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(l.envPrefix + "_" + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *Loader) envInt(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (l *Loader) envFloat(key string, dst *float64) {
	if v, ok := l.lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	if v, ok := l.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
