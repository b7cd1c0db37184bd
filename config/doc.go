/*
Package config provides the declarative configuration for the memory manager:
application limits, token budget rules (tier allocations, dynamic allocation,
compression, monitoring), per-component budgets, the store connection, and
the service surface.

Precedence: defaults, then the YAML file, then AZENTIQ_* environment
overrides.

	cfg, err := config.NewLoader().
	    WithConfigPath("config.yaml").
	    Load()
*/
package config
