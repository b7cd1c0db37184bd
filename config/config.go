package config

import (
	"fmt"
	"time"
)

// Config is the complete configuration document.
type Config struct {
	// Application holds global identity and token limits.
	Application ApplicationConfig `yaml:"application"`

	// TokenBudget holds the budget allocation rules.
	TokenBudget TokenBudgetConfig `yaml:"token_budget"`

	// Components lists per-component budget configuration.
	Components []ComponentConfig `yaml:"components"`

	// Estimator selects and tunes the token estimator.
	Estimator EstimatorConfig `yaml:"estimator"`

	// Redis configures the tiered store backend.
	Redis RedisConfig `yaml:"redis"`

	// Server configures the HTTP service.
	Server ServerConfig `yaml:"server"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`
}

// ApplicationConfig holds global application settings.
type ApplicationConfig struct {
	Name             string `yaml:"name"`
	Framework        string `yaml:"framework"`
	GlobalTokenLimit int    `yaml:"global_token_limit"`
	ReservedTokens   int    `yaml:"reserved_tokens"`
	DefaultComponent string `yaml:"default_component"`
}

// AllocationStrategy selects how tier budgets are derived.
type AllocationStrategy string

const (
	AllocationStatic        AllocationStrategy = "static"
	AllocationDynamic       AllocationStrategy = "dynamic"
	AllocationPriorityBased AllocationStrategy = "priority_based"
	AllocationAdaptive      AllocationStrategy = "adaptive"
)

// AdaptationKind selects the strategy applied under token pressure.
// Parsed once at load time; unknown values normalize to AdaptReduce.
type AdaptationKind string

const (
	AdaptReduce            AdaptationKind = "reduce_memories"
	AdaptSummarize         AdaptationKind = "summarize"
	AdaptPrioritizeWorking AdaptationKind = "prioritize_working"
	AdaptPrioritizeSTM     AdaptationKind = "prioritize_stm"
)

// TokenBudgetConfig holds the budget allocation rules.
type TokenBudgetConfig struct {
	AllocationStrategy    AllocationStrategy        `yaml:"allocation_strategy"`
	DefaultTierAllocation map[string]float64        `yaml:"default_tier_allocation"`
	DynamicAllocation     DynamicAllocationConfig   `yaml:"dynamic_allocation"`
	MemoryCompression     MemoryCompressionConfig   `yaml:"memory_compression"`
	TokenMonitoring       TokenMonitoringConfig     `yaml:"token_monitoring"`
}

// DynamicAllocationConfig tunes activity-based budget multipliers.
type DynamicAllocationConfig struct {
	ActiveBoost       float64 `yaml:"active_boost"`
	IdleReduction     float64 `yaml:"idle_reduction"`
	MinimumAllocation float64 `yaml:"minimum_allocation"`
}

// MemoryCompressionConfig gates adaptation under token pressure.
type MemoryCompressionConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Threshold       float64 `yaml:"threshold"`
	TargetReduction float64 `yaml:"target_reduction"`
	ReductionTarget float64 `yaml:"reduction_target"`
}

// TokenMonitoringConfig tunes token usage logging.
type TokenMonitoringConfig struct {
	Enabled        bool    `yaml:"enabled"`
	LogLevel       string  `yaml:"log_level"`
	AlertThreshold float64 `yaml:"alert_threshold"`
}

// PriorityClass is a component's memory priority.
type PriorityClass string

const (
	PriorityHigh   PriorityClass = "high"
	PriorityMedium PriorityClass = "medium"
	PriorityLow    PriorityClass = "low"
)

// ComponentConfig is the per-component budget configuration.
type ComponentConfig struct {
	ID               string             `yaml:"id"`
	TokenLimit       int                `yaml:"token_limit"`
	MemoryAllocation map[string]float64 `yaml:"memory_allocation"`
	MemoryPriority   PriorityClass      `yaml:"memory_priority"`
	TokenRules       TokenRulesConfig   `yaml:"token_allocation_rules"`
}

// TokenRulesConfig holds component-specific selection and adaptation rules.
type TokenRulesConfig struct {
	MaxMemoryItems     int            `yaml:"max_memory_items"`
	RecencyWeight      float64        `yaml:"recency_weight"`
	ImportanceWeight   float64        `yaml:"importance_weight"`
	RelevanceThreshold float64        `yaml:"relevance_threshold"`
	AdaptationStrategy AdaptationKind `yaml:"adaptation_strategy"`
}

// EstimatorKind selects the token estimator implementation.
type EstimatorKind string

const (
	EstimatorHeuristic EstimatorKind = "heuristic"
	EstimatorTiktoken  EstimatorKind = "tiktoken"
)

// EstimatorConfig tunes token estimation.
type EstimatorConfig struct {
	Kind          EstimatorKind `yaml:"kind"`
	Encoding      string        `yaml:"encoding"`
	CharsPerToken float64       `yaml:"chars_per_token"`
	WordsPerToken float64       `yaml:"words_per_token"`
}

// RedisConfig configures the Redis-backed tiered store.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ShortTermTTL time.Duration `yaml:"short_term_ttl"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Component returns the configuration for a component ID, if present.
func (c *Config) Component(id string) (ComponentConfig, bool) {
	for _, comp := range c.Components {
		if comp.ID == id {
			return comp, true
		}
	}
	return ComponentConfig{}, false
}

// Validate normalizes enum-like fields and bounds-checks fractions.
// Unknown strategy names degrade to their documented defaults rather than
// failing the load.
func (c *Config) Validate() error {
	switch c.TokenBudget.AllocationStrategy {
	case AllocationStatic, AllocationDynamic, AllocationPriorityBased, AllocationAdaptive:
	case "":
		c.TokenBudget.AllocationStrategy = AllocationStatic
	default:
		c.TokenBudget.AllocationStrategy = AllocationStatic
	}

	for i := range c.Components {
		comp := &c.Components[i]
		if comp.ID == "" {
			return fmt.Errorf("components[%d]: id is required", i)
		}
		if comp.TokenLimit < 0 {
			return fmt.Errorf("component %q: token_limit must be >= 0", comp.ID)
		}
		switch comp.MemoryPriority {
		case PriorityHigh, PriorityMedium, PriorityLow:
		default:
			comp.MemoryPriority = PriorityMedium
		}
		switch comp.TokenRules.AdaptationStrategy {
		case AdaptReduce, AdaptSummarize, AdaptPrioritizeWorking, AdaptPrioritizeSTM:
		default:
			comp.TokenRules.AdaptationStrategy = AdaptReduce
		}
		for tier, frac := range comp.MemoryAllocation {
			if frac < 0 || frac > 1 {
				return fmt.Errorf("component %q: memory_allocation[%s] must be in [0,1]", comp.ID, tier)
			}
		}
	}

	for tier, frac := range c.TokenBudget.DefaultTierAllocation {
		if frac < 0 || frac > 1 {
			return fmt.Errorf("token_budget.default_tier_allocation[%s] must be in [0,1]", tier)
		}
	}

	if c.TokenBudget.MemoryCompression.Threshold <= 0 {
		c.TokenBudget.MemoryCompression.Threshold = defaultCompressionThreshold
	}
	if c.TokenBudget.MemoryCompression.TargetReduction <= 0 {
		c.TokenBudget.MemoryCompression.TargetReduction = defaultTargetReduction
	}
	if c.TokenBudget.MemoryCompression.ReductionTarget <= 0 {
		c.TokenBudget.MemoryCompression.ReductionTarget = defaultReductionTarget
	}

	switch c.Estimator.Kind {
	case EstimatorHeuristic, EstimatorTiktoken:
	default:
		c.Estimator.Kind = EstimatorHeuristic
	}

	if c.Application.GlobalTokenLimit <= 0 {
		return fmt.Errorf("application.global_token_limit must be > 0")
	}
	if c.Application.ReservedTokens < 0 {
		return fmt.Errorf("application.reserved_tokens must be >= 0")
	}

	return nil
}
