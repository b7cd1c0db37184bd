package config

import "time"

// Default budget constants. These mirror the documented fallbacks used when
// a component or setting is absent.
const (
	defaultGlobalTokenLimit = 8000
	defaultReservedTokens   = 800

	defaultCompressionThreshold = 0.9
	defaultTargetReduction      = 0.3
	defaultReductionTarget      = 0.2

	defaultActiveBoost       = 1.5
	defaultIdleReduction     = 0.5
	defaultMinimumAllocation = 0.1

	defaultCharsPerToken = 4.0
	defaultWordsPerToken = 0.75
)

// DefaultTierAllocation is the global tier split applied when a component
// does not declare its own memory_allocation.
func DefaultTierAllocation() map[string]float64 {
	return map[string]float64{
		"short_term": 0.6,
		"working":    0.3,
		"long_term":  0.1,
	}
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:             "azentiq-memory-manager",
			Framework:        "app",
			GlobalTokenLimit: defaultGlobalTokenLimit,
			ReservedTokens:   defaultReservedTokens,
			DefaultComponent: "main",
		},
		TokenBudget: TokenBudgetConfig{
			AllocationStrategy:    AllocationStatic,
			DefaultTierAllocation: DefaultTierAllocation(),
			DynamicAllocation: DynamicAllocationConfig{
				ActiveBoost:       defaultActiveBoost,
				IdleReduction:     defaultIdleReduction,
				MinimumAllocation: defaultMinimumAllocation,
			},
			MemoryCompression: MemoryCompressionConfig{
				Enabled:         true,
				Threshold:       defaultCompressionThreshold,
				TargetReduction: defaultTargetReduction,
				ReductionTarget: defaultReductionTarget,
			},
			TokenMonitoring: TokenMonitoringConfig{
				Enabled:        true,
				LogLevel:       "info",
				AlertThreshold: 0.95,
			},
		},
		Estimator: EstimatorConfig{
			Kind:          EstimatorHeuristic,
			Encoding:      "cl100k_base",
			CharsPerToken: defaultCharsPerToken,
			WordsPerToken: defaultWordsPerToken,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			KeyPrefix:    "memory:",
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ShortTermTTL: 30 * time.Minute,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
